package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"ShopPlatform/pkg/errors"
	"ShopPlatform/pkg/logger"
	"ShopPlatform/pkg/validation"
	"ShopPlatform/services/tenant-broker/internal/domain"
	"ShopPlatform/services/tenant-broker/internal/middleware"
	"ShopPlatform/services/tenant-broker/internal/pkg/jwt"
	"ShopPlatform/services/tenant-broker/internal/repository"
	"ShopPlatform/services/tenant-broker/internal/service"
)

// maxBodyBytes ограничение размера тела запроса входа
const maxBodyBytes = 1 << 16

// Authenticator операции входа, которые обслуживает HTTP слой.
// *service.AuthService удовлетворяет интерфейсу.
type Authenticator interface {
	CheckEmail(ctx context.Context, email string) (bool, error)
	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error)
	EmployeeLogin(ctx context.Context, req domain.EmployeeLoginRequest) (*domain.AuthResult, error)
	ValidateToken(token string) (*jwt.TokenClaims, error)
}

// SessionOpener открывает сессию в базе арендатора
type SessionOpener interface {
	OpenAs(ctx context.Context, descriptor domain.ConnectionDescriptor) (repository.TenantSession, error)
}

// HTTPHandler обрабатывает HTTP запросы брокера арендаторов
type HTTPHandler struct {
	auth     Authenticator
	resolver service.ContextResolver
	sessions SessionOpener
	logger   logger.Logger

	// loginLimiter оборачивает открытые маршруты входа, nil если ограничение выключено
	loginLimiter func(http.Handler) http.Handler
}

// Option настройка HTTPHandler
type Option func(*HTTPHandler)

// WithLoginRateLimit ограничивает частоту запросов к маршрутам входа
func WithLoginRateLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *HTTPHandler) {
		h.loginLimiter = mw
	}
}

// NewHTTPHandler создает новый HTTP обработчик
func NewHTTPHandler(auth Authenticator, resolver service.ContextResolver, sessions SessionOpener, log logger.Logger, opts ...Option) *HTTPHandler {
	h := &HTTPHandler{auth: auth, resolver: resolver, sessions: sessions, logger: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes регистрирует HTTP маршруты
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	limit := func(next http.HandlerFunc) http.Handler {
		if h.loginLimiter == nil {
			return next
		}
		return h.loginLimiter(next)
	}

	// Открытые маршруты входа
	mux.Handle("POST /api/v1/auth/check-email", limit(h.handleCheckEmail))
	mux.Handle("POST /api/v1/auth/login", limit(h.handleLogin))
	mux.Handle("POST /api/v1/auth/employee-login", limit(h.handleEmployeeLogin))

	// Защищенные маршруты
	protected := middleware.AuthMiddleware(h.auth, h.logger)
	mux.Handle("GET /api/v1/auth/me", protected(http.HandlerFunc(h.handleMe)))
	mux.Handle("GET /api/v1/tenant/connection-check", protected(http.HandlerFunc(h.handleConnectionCheck)))
}

// CheckEmailRequest тело запроса проверки email
type CheckEmailRequest struct {
	Email string `json:"email"`
}

// CheckEmailResponse ответ проверки email
type CheckEmailResponse struct {
	Exists  bool   `json:"exists"`
	Message string `json:"message"`
}

// LoginRequest тело запроса входа владельца
type LoginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	UserLogin     string `json:"user_login"`
	PasswordLogin string `json:"password_login"`
}

// EmployeeLoginRequest тело запроса входа сотрудника
type EmployeeLoginRequest struct {
	ShopEmail        string `json:"shop_email"`
	EmployeePhone    string `json:"employee_phone"`
	EmployeePassword string `json:"employee_password"`
}

// LoginResponse ответ на успешный вход
type LoginResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DatabaseName string `json:"database_name"`
	Token        string `json:"token"`
	UserRole     string `json:"user_role"`
	EmployeeID   string `json:"employee_id,omitempty"`
	EmployeeName string `json:"employee_name,omitempty"`
}

// MeResponse данные текущей сессии
type MeResponse struct {
	Email        string    `json:"email"`
	DatabaseName string    `json:"database_name"`
	UserRole     string    `json:"user_role"`
	EmployeeID   string    `json:"employee_id,omitempty"`
	EmployeeName string    `json:"employee_name,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ConnectionCheckResponse результат проверки подключения к базе арендатора
type ConnectionCheckResponse struct {
	Connected    bool   `json:"connected"`
	DatabaseName string `json:"database_name"`
}

func (h *HTTPHandler) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	var req CheckEmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	exists, err := h.auth.CheckEmail(r.Context(), req.Email)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := CheckEmailResponse{Exists: exists, Message: "Email is not registered, a new account will be created"}
	if exists {
		resp.Message = "Email is registered, enter the password to sign in"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.auth.Login(r.Context(), domain.LoginRequest{
		Email:       req.Email,
		Password:    req.Password,
		LoginName:   req.UserLogin,
		LoginSecret: req.PasswordLogin,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	message := "Signed in"
	if result.Provisioned {
		message = "Account and database created"
	}
	writeJSON(w, http.StatusOK, toLoginResponse(result, message))
}

func (h *HTTPHandler) handleEmployeeLogin(w http.ResponseWriter, r *http.Request) {
	var req EmployeeLoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.auth.EmployeeLogin(r.Context(), domain.EmployeeLoginRequest{
		OwnerEmail: req.ShopEmail,
		Phone:      req.EmployeePhone,
		Password:   req.EmployeePassword,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toLoginResponse(result, "Signed in as "+result.EmployeeName))
}

func (h *HTTPHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		errors.WriteJSON(w, errors.New(errors.ErrUnauthorized, "no session"))
		return
	}

	resp := MeResponse{
		Email:        claims.Email,
		DatabaseName: claims.Email,
		UserRole:     claims.UserRole,
		EmployeeID:   claims.EmployeeID,
		EmployeeName: claims.EmployeeName,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConnectionCheck разрешает контекст арендатора и проверяет, что база отвечает
func (h *HTTPHandler) handleConnectionCheck(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		errors.WriteJSON(w, errors.New(errors.ErrUnauthorized, "no session"))
		return
	}

	descriptor, err := h.resolver.ResolveClaims(r.Context(), claims)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	session, err := h.sessions.OpenAs(r.Context(), *descriptor)
	if err != nil {
		h.logger.Warn("Tenant connection check failed",
			logger.CtxField(r.Context()),
			logger.String("descriptor", descriptor.String()),
			logger.Error(err))
		errors.WriteJSON(w, errors.New(errors.ErrUnavailable, "tenant storage unavailable"))
		return
	}
	defer session.Close()

	if err := session.Ping(r.Context()); err != nil {
		h.logger.Warn("Tenant storage ping failed",
			logger.CtxField(r.Context()),
			logger.String("descriptor", descriptor.String()),
			logger.Error(err))
		errors.WriteJSON(w, errors.New(errors.ErrUnavailable, "tenant storage unavailable"))
		return
	}

	writeJSON(w, http.StatusOK, ConnectionCheckResponse{Connected: true, DatabaseName: descriptor.Database})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.logger.Debug("Malformed request body", logger.CtxField(r.Context()), logger.Error(err))
		errors.WriteJSON(w, errors.New(errors.ErrValidation, "malformed request body").WithDetails("body: invalid JSON"))
		return false
	}
	return true
}

// writeDomainError переводит ошибку домена в ответ. Подробности шагов подготовки
// и то, какая часть учетных данных не совпала, клиенту не передаются.
func (h *HTTPHandler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus() >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			logger.CtxField(r.Context()),
			logger.String("path", r.URL.Path),
			logger.String("code", string(appErr.Code)),
			logger.Error(err))
	}
	errors.WriteJSON(w, appErr)
}

func toAppError(err error) *errors.Error {
	switch {
	case stderrors.Is(err, domain.ErrValidation):
		appErr := errors.Wrap(err, errors.ErrValidation, "validation failed")
		var fieldErr *validation.FieldError
		if stderrors.As(err, &fieldErr) {
			return appErr.WithDetails(fieldErr.Error())
		}
		if stderrors.Is(err, domain.ErrLoginNameUnavailable) {
			return appErr.WithDetails("login_name: is not available")
		}
		return appErr
	case stderrors.Is(err, domain.ErrCredentialMismatch),
		stderrors.Is(err, domain.ErrInvalidCredentials),
		stderrors.Is(err, domain.ErrOwnerNotFound),
		stderrors.Is(err, domain.ErrPrincipalNotFound),
		stderrors.Is(err, domain.ErrTenantNotFound):
		return errors.Wrap(err, errors.ErrUnauthorized, "invalid credentials")
	case stderrors.Is(err, domain.ErrInvalidToken):
		return errors.Wrap(err, errors.ErrUnauthorized, "invalid token")
	case stderrors.Is(err, domain.ErrProvisioningFailed):
		return errors.Wrap(err, errors.ErrProvisioningFailed, "provisioning failed")
	case stderrors.Is(err, domain.ErrCryptoFailure):
		return errors.Wrap(err, errors.ErrCryptoFailure, "crypto failure")
	case stderrors.Is(err, domain.ErrCredentialUnavailable):
		return errors.Wrap(err, errors.ErrUnavailable, "tenant credentials unavailable")
	case stderrors.Is(err, domain.ErrContextUnavailable):
		return errors.Wrap(err, errors.ErrUnavailable, "tenant context unavailable")
	default:
		return errors.Wrap(err, errors.ErrInternal, "internal error")
	}
}

func toLoginResponse(result *domain.AuthResult, message string) LoginResponse {
	return LoginResponse{
		Success:      true,
		Message:      message,
		DatabaseName: result.DatabaseName,
		Token:        result.Token,
		UserRole:     string(result.Role),
		EmployeeID:   result.EmployeeID,
		EmployeeName: result.EmployeeName,
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
