package repository

import (
	"context"

	"ShopPlatform/services/tenant-broker/internal/domain"
)

// TenantRegistry реестр арендаторов. Единственный источник истины о том,
// для каких email хранилище уже подготовлено.
type TenantRegistry interface {
	// FindByEmail возвращает (nil, nil), если арендатор не найден
	FindByEmail(ctx context.Context, email string) (*domain.TenantIdentity, error)
	// FindByLoginName возвращает (nil, nil), если имя роли не занято
	FindByLoginName(ctx context.Context, loginName string) (*domain.TenantIdentity, error)
	Exists(ctx context.Context, email string) (bool, error)
	// Create возвращает domain.ErrTenantExists при повторном email или имени роли
	Create(ctx context.Context, identity *domain.TenantIdentity) error
	// Remove идемпотентен: отсутствие записи не ошибка
	Remove(ctx context.Context, identity *domain.TenantIdentity) error
}

// TenantSession подключение к базе арендатора от имени его роли
type TenantSession interface {
	Exec(ctx context.Context, statement string) error
	Ping(ctx context.Context) error
	Close()
}

// StorageDriver административные операции с кластером хранилища.
// Все Create* идемпотентны: уже существующий объект не ошибка.
type StorageDriver interface {
	CreateUnitIfAbsent(ctx context.Context, unit string) error
	CreatePrincipalIfAbsent(ctx context.Context, principal, secret string) error
	GrantOwnership(ctx context.Context, unit, principal string) error
	OpenAs(ctx context.Context, descriptor domain.ConnectionDescriptor) (TenantSession, error)
}

// PrincipalRepository чтение сотрудников из базы арендатора
type PrincipalRepository interface {
	// FindByPhone возвращает первое совпадение или (nil, nil)
	FindByPhone(ctx context.Context, descriptor domain.ConnectionDescriptor, phone string) (*domain.SecondaryPrincipal, error)
}
