package service

import (
	"context"

	"ShopPlatform/services/tenant-broker/internal/domain"
	"ShopPlatform/services/tenant-broker/internal/pkg/jwt"
)

// SecretVault операции хранилища секретов, которые нужны сервисам.
// *vault.Vault удовлетворяет интерфейсу.
type SecretVault interface {
	HashPassword(plaintext string) (string, error)
	VerifyPassword(plaintext, stored string) bool
	EncryptSecret(plaintext string) (string, error)
	DecryptSecret(ciphertext string) (string, error)
}

// TenantProvisioner подготовка хранилища нового арендатора
type TenantProvisioner interface {
	Provision(ctx context.Context, req domain.ProvisionRequest) (*domain.ProvisionResult, error)
}

// ContextResolver разрешение контекста арендатора для запроса
type ContextResolver interface {
	Resolve(ctx context.Context, email, loginName, secret string) (*domain.ConnectionDescriptor, error)
	ResolveClaims(ctx context.Context, claims *jwt.TokenClaims) (*domain.ConnectionDescriptor, error)
}
