package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"ShopPlatform/pkg/logger"
	"ShopPlatform/pkg/validation"
	"ShopPlatform/services/tenant-broker/internal/domain"
	"ShopPlatform/services/tenant-broker/internal/metrics"
	"ShopPlatform/services/tenant-broker/internal/pkg/jwt"
	"ShopPlatform/services/tenant-broker/internal/repository"
)

// Причины отказа во входе для метрик
const (
	reasonValidation    = "validation"
	reasonMismatch      = "credential_mismatch"
	reasonOwnerNotFound = "owner_not_found"
	reasonNoPrincipal   = "principal_not_found"
	reasonBadPassword   = "invalid_credentials"
	reasonContext       = "context_unavailable"
	reasonProvisioning  = "provisioning_failed"
)

// AuthService вход владельцев и сотрудников, выдача токенов сессии
type AuthService struct {
	registry    repository.TenantRegistry
	provisioner TenantProvisioner
	resolver    ContextResolver
	principals  repository.PrincipalRepository
	vault       SecretVault
	tokens      jwt.TokenManager
	metrics     *metrics.BrokerMetrics
	logger      logger.Logger
	validator   *validation.Validator
}

// AuthDeps зависимости AuthService
type AuthDeps struct {
	Registry    repository.TenantRegistry
	Provisioner TenantProvisioner
	Resolver    ContextResolver
	Principals  repository.PrincipalRepository
	Vault       SecretVault
	Tokens      jwt.TokenManager
	Metrics     *metrics.BrokerMetrics
	Logger      logger.Logger
}

// NewAuthService создает новый экземпляр AuthService
func NewAuthService(deps AuthDeps) *AuthService {
	return &AuthService{
		registry:    deps.Registry,
		provisioner: deps.Provisioner,
		resolver:    deps.Resolver,
		principals:  deps.Principals,
		vault:       deps.Vault,
		tokens:      deps.Tokens,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		validator:   validation.NewValidator(),
	}
}

// CheckEmail зарегистрирован ли арендатор с таким email
func (s *AuthService) CheckEmail(ctx context.Context, email string) (bool, error) {
	email = validation.NormalizeEmail(email)
	if err := s.validator.ValidateEmail(email); err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	exists, err := s.registry.Exists(ctx, email)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrContextUnavailable, err)
	}
	return exists, nil
}

// Login вход владельца. Для нового email выполняется регистрация с подготовкой хранилища,
// для существующего проверяются пароль приложения, имя роли и секрет входа.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	req.Email = validation.NormalizeEmail(req.Email)
	req.LoginName = strings.TrimSpace(req.LoginName)

	if err := s.validator.ValidateRequiredFields(map[string]string{
		"email":    req.Email,
		"password": req.Password,
	}); err != nil {
		s.metrics.LoginFailure(reasonValidation)
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	identity, err := s.registry.FindByEmail(ctx, req.Email)
	if err != nil {
		s.metrics.LoginFailure(reasonContext)
		return nil, fmt.Errorf("%w: %v", domain.ErrContextUnavailable, err)
	}

	if identity == nil {
		return s.signup(ctx, req)
	}
	return s.ownerLogin(ctx, identity, req)
}

func (s *AuthService) signup(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	result, err := s.provisioner.Provision(ctx, domain.ProvisionRequest{
		Email:       req.Email,
		Password:    req.Password,
		LoginName:   req.LoginName,
		LoginSecret: req.LoginSecret,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			s.metrics.LoginFailure(reasonValidation)
		case errors.Is(err, domain.ErrProvisioningFailed):
			s.metrics.LoginFailure(reasonProvisioning)
		default:
			s.metrics.LoginFailure(reasonContext)
		}
		return nil, err
	}

	// Параллельная регистрация того же email: продолжаем как обычный вход
	if result.AlreadyProvisioned {
		return s.ownerLogin(ctx, result.Identity, req)
	}

	auth, err := s.issueOwner(result.Identity)
	if err != nil {
		return nil, err
	}
	auth.Provisioned = true
	return auth, nil
}

func (s *AuthService) ownerLogin(ctx context.Context, identity *domain.TenantIdentity, req domain.LoginRequest) (*domain.AuthResult, error) {
	if !s.vault.VerifyPassword(req.Password, identity.PasswordHash) {
		return nil, s.mismatch(ctx, identity.Email)
	}

	stored, err := s.vault.DecryptSecret(identity.EncryptedLoginSecret)
	if err != nil {
		s.logger.Error("Failed to decrypt tenant login secret",
			logger.CtxField(ctx), logger.String("email", identity.Email), logger.Error(err))
		s.metrics.LoginFailure(reasonContext)
		return nil, fmt.Errorf("%w: %v", domain.ErrCryptoFailure, err)
	}

	// Обе части сравниваются всегда, чтобы не выдать, какая из них не совпала
	loginMatch := subtle.ConstantTimeCompare([]byte(req.LoginName), []byte(identity.StorageLoginName)) == 1
	secretMatch := subtle.ConstantTimeCompare([]byte(req.LoginSecret), []byte(stored)) == 1
	if !loginMatch || !secretMatch {
		return nil, s.mismatch(ctx, identity.Email)
	}

	return s.issueOwner(identity)
}

func (s *AuthService) mismatch(ctx context.Context, email string) error {
	s.metrics.LoginFailure(reasonMismatch)
	s.logger.Info("Owner credentials mismatch", logger.CtxField(ctx), logger.String("email", email))
	return domain.ErrCredentialMismatch
}

func (s *AuthService) issueOwner(identity *domain.TenantIdentity) (*domain.AuthResult, error) {
	token, _, err := s.tokens.Issue(jwt.IssueParams{
		Email:     identity.Email,
		LoginName: identity.StorageLoginName,
		Role:      string(domain.RoleOwner),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	s.metrics.TokenIssued(string(domain.RoleOwner))

	return &domain.AuthResult{
		Token:        token,
		Email:        identity.Email,
		DatabaseName: identity.UnitName(),
		Role:         domain.RoleOwner,
	}, nil
}

// EmployeeLogin вход сотрудника: учетная запись ищется в базе арендатора владельца
func (s *AuthService) EmployeeLogin(ctx context.Context, req domain.EmployeeLoginRequest) (*domain.AuthResult, error) {
	req.OwnerEmail = validation.NormalizeEmail(req.OwnerEmail)
	req.Phone = strings.TrimSpace(req.Phone)

	if err := s.validator.ValidateRequiredFields(map[string]string{
		"owner_email": req.OwnerEmail,
		"phone":       req.Phone,
		"password":    req.Password,
	}); err != nil {
		s.metrics.LoginFailure(reasonValidation)
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := s.validator.ValidatePhone(req.Phone); err != nil {
		s.metrics.LoginFailure(reasonValidation)
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	owner, err := s.registry.FindByEmail(ctx, req.OwnerEmail)
	if err != nil {
		s.metrics.LoginFailure(reasonContext)
		return nil, fmt.Errorf("%w: %v", domain.ErrContextUnavailable, err)
	}
	if owner == nil {
		s.metrics.LoginFailure(reasonOwnerNotFound)
		return nil, domain.ErrOwnerNotFound
	}

	descriptor, err := s.resolver.Resolve(ctx, owner.Email, owner.StorageLoginName, "")
	if err != nil {
		s.metrics.LoginFailure(reasonContext)
		return nil, err
	}

	principal, err := s.principals.FindByPhone(ctx, *descriptor, req.Phone)
	if err != nil {
		s.metrics.LoginFailure(reasonContext)
		return nil, fmt.Errorf("%w: %v", domain.ErrContextUnavailable, err)
	}
	if principal == nil {
		s.metrics.LoginFailure(reasonNoPrincipal)
		return nil, domain.ErrPrincipalNotFound
	}

	if !s.vault.VerifyPassword(req.Password, principal.PasswordHash) {
		s.metrics.LoginFailure(reasonBadPassword)
		return nil, domain.ErrInvalidCredentials
	}

	token, _, err := s.tokens.Issue(jwt.IssueParams{
		Email:        owner.Email,
		LoginName:    owner.StorageLoginName,
		Role:         string(domain.RoleEmployee),
		EmployeeID:   principal.ID,
		EmployeeName: principal.DisplayName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	s.metrics.TokenIssued(string(domain.RoleEmployee))

	s.logger.Info("Employee logged in",
		logger.CtxField(ctx),
		logger.String("owner", owner.Email),
		logger.String("employee_id", principal.ID))

	return &domain.AuthResult{
		Token:        token,
		Email:        owner.Email,
		DatabaseName: owner.UnitName(),
		Role:         domain.RoleEmployee,
		EmployeeID:   principal.ID,
		EmployeeName: principal.DisplayName,
	}, nil
}

// ValidateToken проверяет токен сессии
func (s *AuthService) ValidateToken(token string) (*jwt.TokenClaims, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	return claims, nil
}
