package service

import (
	"context"
	"fmt"

	"ShopPlatform/pkg/logger"
	"ShopPlatform/pkg/validation"
	"ShopPlatform/services/tenant-broker/internal/domain"
	"ShopPlatform/services/tenant-broker/internal/metrics"
	"ShopPlatform/services/tenant-broker/internal/pkg/jwt"
	"ShopPlatform/services/tenant-broker/internal/repository"
)

// Resolver строит дескриптор подключения к базе арендатора для каждого запроса.
// Результат не кешируется.
type Resolver struct {
	registry repository.TenantRegistry
	vault    SecretVault
	endpoint StorageEndpoint
	metrics  *metrics.BrokerMetrics
	logger   logger.Logger
}

// NewResolver создает Resolver
func NewResolver(registry repository.TenantRegistry, vault SecretVault, endpoint StorageEndpoint, m *metrics.BrokerMetrics, log logger.Logger) *Resolver {
	return &Resolver{registry: registry, vault: vault, endpoint: endpoint, metrics: m, logger: log}
}

var _ ContextResolver = (*Resolver)(nil)

// Resolve возвращает дескриптор. Непустой secret используется как есть,
// иначе секрет берется из реестра и расшифровывается.
func (r *Resolver) Resolve(ctx context.Context, email, loginName, secret string) (*domain.ConnectionDescriptor, error) {
	email = validation.NormalizeEmail(email)

	descriptor, outcome, err := r.resolve(ctx, email, loginName, secret)
	r.metrics.ContextResolution(outcome)
	if err != nil {
		r.logger.Warn("Tenant context resolution failed",
			logger.CtxField(ctx),
			logger.String("email", email),
			logger.String("outcome", outcome),
			logger.Error(err))
		return nil, err
	}
	return descriptor, nil
}

// ResolveClaims контекст арендатора по данным проверенного токена
func (r *Resolver) ResolveClaims(ctx context.Context, claims *jwt.TokenClaims) (*domain.ConnectionDescriptor, error) {
	if claims == nil {
		return nil, domain.ErrInvalidToken
	}
	return r.Resolve(ctx, claims.Email, claims.LoginName, "")
}

func (r *Resolver) resolve(ctx context.Context, email, loginName, secret string) (*domain.ConnectionDescriptor, string, error) {
	if email == "" {
		return nil, metrics.OutcomeNotFound, domain.ErrTenantNotFound
	}

	if secret != "" {
		if loginName == "" {
			return nil, metrics.OutcomeNoSecret, domain.ErrCredentialUnavailable
		}
		d := r.endpoint.Descriptor(email, loginName, secret)
		return &d, metrics.OutcomeResolved, nil
	}

	identity, err := r.registry.FindByEmail(ctx, email)
	if err != nil {
		return nil, metrics.OutcomeError, fmt.Errorf("%w: %v", domain.ErrContextUnavailable, err)
	}
	if identity == nil {
		return nil, metrics.OutcomeNotFound, domain.ErrTenantNotFound
	}

	plain, err := r.vault.DecryptSecret(identity.EncryptedLoginSecret)
	if err != nil {
		return nil, metrics.OutcomeCrypto, fmt.Errorf("%w: %v", domain.ErrCryptoFailure, err)
	}
	if plain == "" {
		return nil, metrics.OutcomeNoSecret, domain.ErrCredentialUnavailable
	}

	if loginName == "" {
		loginName = identity.StorageLoginName
	}
	d := r.endpoint.Descriptor(identity.UnitName(), loginName, plain)
	return &d, metrics.OutcomeResolved, nil
}
