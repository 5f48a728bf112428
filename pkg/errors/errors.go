package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error ошибка с кодом для транспортного слоя
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// ErrorCode код ошибки
type ErrorCode string

const (
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrValidation         ErrorCode = "VALIDATION_ERROR"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrInternal           ErrorCode = "INTERNAL_ERROR"
	ErrConflict           ErrorCode = "CONFLICT"
	ErrProvisioningFailed ErrorCode = "PROVISIONING_FAILED"
	ErrCryptoFailure      ErrorCode = "CRYPTO_FAILURE"
	ErrUnavailable        ErrorCode = "UNAVAILABLE"
	ErrTooManyRequests    ErrorCode = "TOO_MANY_REQUESTS"
)

// ErrorDomain домен ошибок в деталях gRPC статуса
const ErrorDomain = "shop-platform"

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New создает ошибку с кодом
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap оборачивает ошибку, сохраняя причину для errors.Is/As
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// WithDetails возвращает копию ошибки с деталями
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = details
	return &cp
}

// As извлекает *Error из цепочки. Для прочих ошибок возвращает ErrInternal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal, "internal error")
}

// GRPCCode код gRPC, соответствующий коду ошибки
func (e *Error) GRPCCode() codes.Code {
	switch e.Code {
	case ErrNotFound:
		return codes.NotFound
	case ErrValidation:
		return codes.InvalidArgument
	case ErrUnauthorized:
		return codes.Unauthenticated
	case ErrForbidden:
		return codes.PermissionDenied
	case ErrConflict:
		return codes.AlreadyExists
	case ErrUnavailable:
		return codes.Unavailable
	case ErrTooManyRequests:
		return codes.ResourceExhausted
	case ErrInternal, ErrProvisioningFailed, ErrCryptoFailure:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// ToGRPCErr переводит ошибку в gRPC статус. Код ошибки передается в ErrorInfo.Reason.
func (e *Error) ToGRPCErr() error {
	if e == nil {
		return nil
	}

	st := status.New(e.GRPCCode(), e.Message)
	info := &errdetails.ErrorInfo{Reason: string(e.Code), Domain: ErrorDomain}
	if e.Details != "" {
		info.Metadata = map[string]string{"details": e.Details}
	}
	if withDetails, err := st.WithDetails(info); err == nil {
		st = withDetails
	}
	return st.Err()
}

// FromGRPCErr восстанавливает ошибку из gRPC статуса
func FromGRPCErr(err error) *Error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return Wrap(err, ErrInternal, "internal error")
	}

	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.Domain == ErrorDomain {
			return &Error{Code: ErrorCode(info.Reason), Message: st.Message(), Details: info.Metadata["details"]}
		}
	}

	var code ErrorCode
	switch st.Code() {
	case codes.NotFound:
		code = ErrNotFound
	case codes.InvalidArgument:
		code = ErrValidation
	case codes.Unauthenticated:
		code = ErrUnauthorized
	case codes.PermissionDenied:
		code = ErrForbidden
	case codes.AlreadyExists:
		code = ErrConflict
	case codes.Unavailable:
		code = ErrUnavailable
	case codes.ResourceExhausted:
		code = ErrTooManyRequests
	default:
		code = ErrInternal
	}
	return &Error{Code: code, Message: st.Message()}
}

// HTTPStatus HTTP статус для ошибки
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}

	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	case ErrTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// GetUserMessage сообщение для пользователя
func (e *Error) GetUserMessage() string {
	if e == nil {
		return ""
	}

	switch e.Code {
	case ErrNotFound:
		return "Ресурс не найден"
	case ErrValidation:
		return "Ошибка валидации данных"
	case ErrUnauthorized:
		return "Не авторизован"
	case ErrForbidden:
		return "Доступ запрещен"
	case ErrConflict:
		return "Конфликт данных"
	case ErrProvisioningFailed:
		return "Не удалось подготовить хранилище арендатора"
	case ErrCryptoFailure:
		return "Не удалось расшифровать учетные данные арендатора"
	case ErrUnavailable:
		return "Сервис временно недоступен"
	case ErrTooManyRequests:
		return "Слишком много запросов"
	case ErrInternal:
		return "Внутренняя ошибка сервера"
	default:
		return "Произошла ошибка"
	}
}

// WriteJSON пишет ошибку в ответ в формате {"error":{"code","message","details"}}.
// Причина (Cause) клиенту не передается.
func WriteJSON(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())

	body := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    err.Code,
			"message": err.GetUserMessage(),
			"details": err.Details,
		},
	}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"Internal server error"}}`))
	}
}

// Middleware переводит панику обработчика в ответ INTERNAL_ERROR
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				WriteJSON(w, New(ErrInternal, "Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
