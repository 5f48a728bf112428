package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL время жизни токена по умолчанию
const DefaultTokenTTL = 120 * time.Minute

// ErrInvalidToken общий отказ валидации: подпись, срок, издатель, аудитория, формат
var ErrInvalidToken = errors.New("invalid token")

// TokenClaims данные сессии в JWT токене.
// Поля сотрудника заполняются только для роли employee.
type TokenClaims struct {
	Email        string `json:"email"`
	LoginName    string `json:"login_name"`
	UserRole     string `json:"user_role"`
	EmployeeID   string `json:"employee_id,omitempty"`
	EmployeeName string `json:"employee_name,omitempty"`
	jwt.RegisteredClaims
}

// IssueParams данные для выпуска токена
type IssueParams struct {
	Email        string
	LoginName    string
	Role         string
	EmployeeID   string
	EmployeeName string
}

// TokenManager интерфейс для работы с JWT токенами
type TokenManager interface {
	Issue(params IssueParams) (string, *TokenClaims, error)
	Validate(token string) (*TokenClaims, error)
}

// Manager реализация TokenManager на HS256
type Manager struct {
	secretKey []byte
	issuer    string
	audience  string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewManager создает новый экземпляр JWT менеджера
func NewManager(secretKey, issuer, audience string, tokenTTL time.Duration) *Manager {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Manager{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		audience:  audience,
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// WithClock подменяет источник времени (для тестов)
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// TTL время жизни выпускаемых токенов
func (m *Manager) TTL() time.Duration {
	return m.tokenTTL
}

// Issue выпускает подписанный токен. Каждый токен получает уникальный jti.
func (m *Manager) Issue(params IssueParams) (string, *TokenClaims, error) {
	if params.Email == "" || params.Role == "" {
		return "", nil, fmt.Errorf("email and role are required")
	}

	now := m.now().UTC()
	claims := &TokenClaims{
		Email:        params.Email,
		LoginName:    params.LoginName,
		UserRole:     params.Role,
		EmployeeID:   params.EmployeeID,
		EmployeeName: params.EmployeeName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			Subject:   params.Email,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Validate проверяет подпись, срок действия, издателя и аудиторию.
// Любой отказ возвращается как ErrInvalidToken, причина сохраняется в цепочке.
func (m *Manager) Validate(token string) (*TokenClaims, error) {
	parsedToken, err := jwt.ParseWithClaims(token, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Проверяем метод подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsedToken.Claims.(*TokenClaims)
	if !ok || !parsedToken.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Email == "" || claims.UserRole == "" {
		return nil, fmt.Errorf("%w: missing session claims", ErrInvalidToken)
	}
	return claims, nil
}
