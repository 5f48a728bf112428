package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ShopPlatform/pkg/connection"
)

// Коды SQLSTATE, которые обрабатываются явно
const (
	SQLStateUniqueViolation = "23505"
	SQLStateDuplicateDB     = "42P04"
	SQLStateDuplicateRole   = "42710"
	SQLStateDuplicateTable  = "42P07"
	SQLStateCannotConnect   = "57P03"
)

// Postgres пул подключений к PostgreSQL
type Postgres struct {
	Pool *pgxpool.Pool
}

// Config параметры подключения и пула
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns       int
	MinConns       int
	MaxConnLife    time.Duration
	MaxConnIdle    time.Duration
	HealthCheck    time.Duration
	ConnectTimeout time.Duration

	MaxRetries    int
	RetryInterval time.Duration
}

// NewConfig конфигурация по умолчанию
func NewConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           5432,
		User:           "postgres",
		Password:       "postgres",
		Database:       "postgres",
		SSLMode:        "disable",
		MaxConns:       10,
		MinConns:       1,
		MaxConnLife:    30 * time.Minute,
		MaxConnIdle:    5 * time.Minute,
		HealthCheck:    30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		MaxRetries:     3,
		RetryInterval:  time.Second,
	}
}

// DSN строка подключения в формате URL. Логин и пароль экранируются.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// String описание подключения без пароля
func (c *Config) String() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.User, c.Host, c.Port, c.Database)
}

// Connect создает пул и проверяет подключение, повторяя попытки при временных ошибках
func Connect(ctx context.Context, cfg *Config) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	poolConfig.MaxConnLifetime = cfg.MaxConnLife
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdle
	poolConfig.HealthCheckPeriod = cfg.HealthCheck

	retry := connection.RetryConfig{
		MaxAttempts:  cfg.MaxRetries + 1,
		InitialDelay: cfg.RetryInterval,
		MaxDelay:     10 * cfg.RetryInterval,
		Multiplier:   2,
		Jitter:       true,
		Retryable:    IsTransient,
	}

	var pool *pgxpool.Pool
	err = connection.WithRetry(ctx, retry, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg, err)
	}

	return &Postgres{Pool: pool}, nil
}

// Close закрывает пул
func (p *Postgres) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}

// HealthCheck проверяет доступность базы
func (p *Postgres) HealthCheck(ctx context.Context) error {
	if p.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	return p.Pool.Ping(ctx)
}

// SQLState код ошибки PostgreSQL или пустая строка
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation нарушение уникального ограничения
func IsUniqueViolation(err error) bool {
	return SQLState(err) == SQLStateUniqueViolation
}

// IsTransient временная ошибка: сеть, таймаут, недоступность сервера,
// нехватка ресурсов (классы SQLSTATE 08 и 53, код 57P03)
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if code := SQLState(err); code != "" {
		return strings.HasPrefix(code, "08") || strings.HasPrefix(code, "53") || code == SQLStateCannotConnect
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
