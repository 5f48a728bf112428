package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ShopPlatform/pkg/connection"
	"ShopPlatform/pkg/database"
	"ShopPlatform/pkg/validation"
	"ShopPlatform/services/tenant-broker/internal/domain"
	"ShopPlatform/services/tenant-broker/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// AdminQuerier административное подключение к кластеру (обычно *pgxpool.Pool)
type AdminQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn одиночное подключение к конкретной базе (обычно *pgx.Conn)
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer открывает подключение по DSN
type Dialer func(ctx context.Context, dsn string) (Conn, error)

// DriverConfig параметры драйвера хранилища
type DriverConfig struct {
	// Admin шаблон административного подключения. Для операций внутри базы арендатора
	// меняется только имя базы.
	Admin          *database.Config
	ConnectTimeout time.Duration
	Retry          connection.RetryConfig
}

// Driver реализация repository.StorageDriver для PostgreSQL.
// Имена баз и ролей подставляются в DDL только после проверки белым списком
// и экранирования через pgx.Identifier.
type Driver struct {
	admin     AdminQuerier
	cfg       DriverConfig
	dial      Dialer
	validator *validation.Validator
}

var _ repository.StorageDriver = (*Driver)(nil)

// ErrPrivilegedRole существующая роль имеет права выше арендаторских
var ErrPrivilegedRole = errors.New("role is privileged")

// NewDriver создает драйвер поверх административного пула
func NewDriver(admin AdminQuerier, cfg DriverConfig) *Driver {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = connection.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
			Jitter:       true,
		}
	}
	cfg.Retry.Retryable = database.IsTransient

	return &Driver{
		admin:     admin,
		cfg:       cfg,
		dial:      dialPgx,
		validator: validation.NewValidator(),
	}
}

// WithDialer подменяет способ открытия подключений к базам арендаторов
func (d *Driver) WithDialer(dial Dialer) *Driver {
	d.dial = dial
	return d
}

func dialPgx(ctx context.Context, dsn string) (Conn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// CreateUnitIfAbsent создает базу арендатора. Уже существующая база не ошибка.
func (d *Driver) CreateUnitIfAbsent(ctx context.Context, unit string) error {
	if err := d.validator.ValidateUnitName(unit); err != nil {
		return err
	}

	exists, err := d.exists(ctx, `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, unit)
	if err != nil {
		return fmt.Errorf("failed to check database %q: %w", unit, err)
	}
	if exists {
		return nil
	}

	err = d.execAdmin(ctx, "CREATE DATABASE "+quoteIdent(unit))
	if err != nil && database.SQLState(err) != database.SQLStateDuplicateDB {
		return fmt.Errorf("failed to create database %q: %w", unit, err)
	}
	return nil
}

// CreatePrincipalIfAbsent создает роль с правом входа и бессрочным паролем.
// Существующая роль не изменяется. Роль суперпользователя или с правом CREATEDB
// арендатору не передается.
func (d *Driver) CreatePrincipalIfAbsent(ctx context.Context, principal, secret string) error {
	if err := d.validator.ValidatePrincipalName(principal); err != nil {
		return err
	}
	if secret == "" {
		return fmt.Errorf("empty secret for role %q", principal)
	}

	exists, err := d.exists(ctx, `SELECT EXISTS(SELECT 1 FROM pg_roles WHERE rolname = $1)`, principal)
	if err != nil {
		return fmt.Errorf("failed to check role %q: %w", principal, err)
	}
	if exists {
		return d.ensureUnprivileged(ctx, principal)
	}

	// CREATE ROLE не принимает параметры, пароль передается экранированным литералом
	statement := fmt.Sprintf("CREATE ROLE %s WITH LOGIN PASSWORD %s VALID UNTIL 'infinity'",
		quoteIdent(principal), pq.QuoteLiteral(secret))
	err = d.execAdmin(ctx, statement)
	if err != nil && database.SQLState(err) != database.SQLStateDuplicateRole {
		return fmt.Errorf("failed to create role %q: %w", principal, err)
	}
	return nil
}

func (d *Driver) ensureUnprivileged(ctx context.Context, principal string) error {
	privileged, err := d.exists(ctx,
		`SELECT COALESCE(bool_or(rolsuper OR rolcreatedb), false) FROM pg_roles WHERE rolname = $1`, principal)
	if err != nil {
		return fmt.Errorf("failed to check privileges of role %q: %w", principal, err)
	}
	if privileged {
		return fmt.Errorf("role %q: %w", principal, ErrPrivilegedRole)
	}
	return nil
}

// GrantOwnership передает роли владение базой и схемой public. Повторный вызов безопасен.
func (d *Driver) GrantOwnership(ctx context.Context, unit, principal string) error {
	if err := d.validator.ValidateUnitName(unit); err != nil {
		return err
	}
	if err := d.validator.ValidatePrincipalName(principal); err != nil {
		return err
	}

	db, role := quoteIdent(unit), quoteIdent(principal)
	statements := []string{
		fmt.Sprintf("ALTER DATABASE %s OWNER TO %s", db, role),
		fmt.Sprintf("REVOKE CONNECT ON DATABASE %s FROM PUBLIC", db),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", db, role),
	}
	for _, statement := range statements {
		if err := d.execAdmin(ctx, statement); err != nil {
			return fmt.Errorf("failed to grant ownership of %q: %w", unit, err)
		}
	}

	// Схема public принадлежит создателю базы, ее владельца меняем изнутри базы
	conn, err := d.connect(ctx, d.adminUnitDSN(unit))
	if err != nil {
		return fmt.Errorf("failed to connect to %q as admin: %w", unit, err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, fmt.Sprintf("ALTER SCHEMA public OWNER TO %s", role)); err != nil {
		return fmt.Errorf("failed to transfer schema ownership in %q: %w", unit, err)
	}
	return nil
}

// OpenAs открывает подключение к базе арендатора от имени его роли
func (d *Driver) OpenAs(ctx context.Context, descriptor domain.ConnectionDescriptor) (repository.TenantSession, error) {
	conn, err := d.connect(ctx, descriptor.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", descriptor, err)
	}
	return &session{conn: conn}, nil
}

func (d *Driver) connect(ctx context.Context, dsn string) (Conn, error) {
	var conn Conn
	err := connection.WithRetry(ctx, d.cfg.Retry, func(ctx context.Context) error {
		dialCtx, cancel := d.withConnectTimeout(ctx)
		defer cancel()

		c, err := d.dial(dialCtx, dsn)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}

func (d *Driver) withConnectTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.ConnectTimeout > 0 {
		return context.WithTimeout(ctx, d.cfg.ConnectTimeout)
	}
	return context.WithCancel(ctx)
}

func (d *Driver) adminUnitDSN(unit string) string {
	cfg := *d.cfg.Admin
	cfg.Database = unit
	return cfg.DSN()
}

func (d *Driver) exists(ctx context.Context, query, name string) (bool, error) {
	var exists bool
	err := connection.WithRetry(ctx, d.cfg.Retry, func(ctx context.Context) error {
		return d.admin.QueryRow(ctx, query, name).Scan(&exists)
	})
	return exists, err
}

func (d *Driver) execAdmin(ctx context.Context, statement string) error {
	return connection.WithRetry(ctx, d.cfg.Retry, func(ctx context.Context) error {
		_, err := d.admin.Exec(ctx, statement)
		return err
	})
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// session подключение к базе арендатора на время подготовки или запроса
type session struct {
	conn Conn
}

// Exec выполняет команду простым протоколом, допускается несколько команд через ;
func (s *session) Exec(ctx context.Context, statement string) error {
	_, err := s.conn.Exec(ctx, statement)
	return err
}

func (s *session) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *session) Close() {
	_ = s.conn.Close(context.Background())
}
