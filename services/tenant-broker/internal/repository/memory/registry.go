package memory

import (
	"context"
	"sync"

	"ShopPlatform/services/tenant-broker/internal/domain"
	"ShopPlatform/services/tenant-broker/internal/repository"
)

// Registry реестр арендаторов в памяти процесса. Для тестов и локального запуска.
type Registry struct {
	mu      sync.RWMutex
	byEmail map[string]domain.TenantIdentity
}

// NewRegistry создает пустой реестр
func NewRegistry() *Registry {
	return &Registry{byEmail: make(map[string]domain.TenantIdentity)}
}

var _ repository.TenantRegistry = (*Registry)(nil)

func (r *Registry) FindByEmail(_ context.Context, email string) (*domain.TenantIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	return &identity, nil
}

func (r *Registry) FindByLoginName(_ context.Context, loginName string) (*domain.TenantIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, identity := range r.byEmail {
		if identity.StorageLoginName == loginName {
			found := identity
			return &found, nil
		}
	}
	return nil, nil
}

func (r *Registry) Exists(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byEmail[email]
	return ok, nil
}

// Create проверяет уникальность email и имени роли под одной блокировкой
func (r *Registry) Create(_ context.Context, identity *domain.TenantIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[identity.Email]; ok {
		return domain.ErrTenantExists
	}
	for _, existing := range r.byEmail {
		if existing.StorageLoginName == identity.StorageLoginName {
			return domain.ErrTenantExists
		}
	}
	r.byEmail[identity.Email] = *identity
	return nil
}

func (r *Registry) Remove(_ context.Context, identity *domain.TenantIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byEmail[identity.Email]; ok && existing.StorageLoginName == identity.StorageLoginName {
		delete(r.byEmail, identity.Email)
	}
	return nil
}

// Len количество записей
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEmail)
}
