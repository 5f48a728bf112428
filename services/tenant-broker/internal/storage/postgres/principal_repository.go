package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ShopPlatform/services/tenant-broker/internal/domain"
	"ShopPlatform/services/tenant-broker/internal/repository"

	// Регистрирует драйвер "pgx" для database/sql
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Opener открывает *sql.DB к базе арендатора
type Opener func(descriptor domain.ConnectionDescriptor) (*sql.DB, error)

// Open открывает database/sql подключение к базе арендатора по дескриптору.
// Используется сотрудниками и бизнес-обработчиками, которым нужен database/sql.
func Open(descriptor domain.ConnectionDescriptor) (*sql.DB, error) {
	db, err := sql.Open("pgx", descriptor.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", descriptor, err)
	}
	db.SetMaxOpenConns(2)
	return db, nil
}

// PrincipalRepository поиск сотрудников в базе арендатора
type PrincipalRepository struct {
	open Opener
}

var _ repository.PrincipalRepository = (*PrincipalRepository)(nil)

// NewPrincipalRepository создает репозиторий. nil означает Open.
func NewPrincipalRepository(open Opener) *PrincipalRepository {
	if open == nil {
		open = Open
	}
	return &PrincipalRepository{open: open}
}

// FindByPhone возвращает первого сотрудника с таким телефоном
func (r *PrincipalRepository) FindByPhone(ctx context.Context, descriptor domain.ConnectionDescriptor, phone string) (*domain.SecondaryPrincipal, error) {
	db, err := r.open(descriptor)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query := `SELECT id, name, phone, password FROM employees WHERE phone = $1 ORDER BY id LIMIT 1`

	var (
		principal             domain.SecondaryPrincipal
		name, contact, secret sql.NullString
	)
	err = db.QueryRowContext(ctx, query, phone).Scan(&principal.ID, &name, &contact, &secret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find employee by phone: %w", err)
	}

	principal.DisplayName = name.String
	principal.ContactPhone = contact.String
	principal.PasswordHash = secret.String
	return &principal, nil
}
