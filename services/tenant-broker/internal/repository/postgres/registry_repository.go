package postgres

import (
	"context"
	"errors"
	"fmt"

	"ShopPlatform/pkg/database"
	"ShopPlatform/services/tenant-broker/internal/domain"
	"ShopPlatform/services/tenant-broker/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const schemaDDL = `CREATE TABLE IF NOT EXISTS tenant_identities (
	email                  VARCHAR(63)  PRIMARY KEY,
	storage_login_name     VARCHAR(63)  NOT NULL UNIQUE,
	encrypted_login_secret TEXT         NOT NULL,
	password_hash          TEXT         NOT NULL,
	created_at             TIMESTAMPTZ  NOT NULL DEFAULT NOW()
)`

const selectColumns = `SELECT email, storage_login_name, encrypted_login_secret, password_hash, created_at
	FROM tenant_identities`

// Querier подмножество pgxpool.Pool, которое нужно репозиторию
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RegistryRepository реализация реестра арендаторов для PostgreSQL
type RegistryRepository struct {
	db Querier
}

// NewRegistryRepository создает новый экземпляр RegistryRepository
func NewRegistryRepository(db Querier) *RegistryRepository {
	return &RegistryRepository{db: db}
}

var _ repository.TenantRegistry = (*RegistryRepository)(nil)

// EnsureSchema создает таблицу реестра, если ее нет
func (r *RegistryRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure registry schema: %w", err)
	}
	return nil
}

// Create сохраняет нового арендатора
func (r *RegistryRepository) Create(ctx context.Context, identity *domain.TenantIdentity) error {
	query := `INSERT INTO tenant_identities (email, storage_login_name, encrypted_login_secret, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query,
		identity.Email,
		identity.StorageLoginName,
		identity.EncryptedLoginSecret,
		identity.PasswordHash,
		identity.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrTenantExists
		}
		return fmt.Errorf("failed to create tenant identity: %w", err)
	}
	return nil
}

// FindByEmail возвращает арендатора по email
func (r *RegistryRepository) FindByEmail(ctx context.Context, email string) (*domain.TenantIdentity, error) {
	identity, err := r.findOne(ctx, selectColumns+` WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by email: %w", err)
	}
	return identity, nil
}

// FindByLoginName возвращает арендатора по имени роли хранилища
func (r *RegistryRepository) FindByLoginName(ctx context.Context, loginName string) (*domain.TenantIdentity, error) {
	identity, err := r.findOne(ctx, selectColumns+` WHERE storage_login_name = $1`, loginName)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by login name: %w", err)
	}
	return identity, nil
}

// Exists проверяет наличие арендатора
func (r *RegistryRepository) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tenant_identities WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check tenant existence: %w", err)
	}
	return exists, nil
}

// Remove удаляет запись. Удаляются только строки с совпадающими email и именем роли.
func (r *RegistryRepository) Remove(ctx context.Context, identity *domain.TenantIdentity) error {
	_, err := r.db.Exec(ctx, `DELETE FROM tenant_identities WHERE email = $1 AND storage_login_name = $2`,
		identity.Email, identity.StorageLoginName)
	if err != nil {
		return fmt.Errorf("failed to remove tenant identity: %w", err)
	}
	return nil
}

func (r *RegistryRepository) findOne(ctx context.Context, query string, arg string) (*domain.TenantIdentity, error) {
	var identity domain.TenantIdentity
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&identity.Email,
		&identity.StorageLoginName,
		&identity.EncryptedLoginSecret,
		&identity.PasswordHash,
		&identity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &identity, nil
}
