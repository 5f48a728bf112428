package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := NewConfig()
	cfg.User = "owner@shop.com"
	cfg.Password = "p@ss:w/rd"
	cfg.Database = "owner@shop.com"
	cfg.ConnectTimeout = 5 * time.Second

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "owner%40shop.com:p%40ss%3Aw%2Frd@localhost:5432")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, "connect_timeout=5")

	assert.NotContains(t, cfg.String(), "p@ss")
}

// TestConnect_Unreachable проверяет отказ без поднятой базы
func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cfg := NewConfig()
	cfg.Port = 1
	cfg.MaxRetries = 0
	cfg.ConnectTimeout = time.Second

	_, err := Connect(ctx, cfg)
	assert.Error(t, err)
}

func TestHealthCheck_NoPool(t *testing.T) {
	assert.Error(t, (&Postgres{}).HealthCheck(context.Background()))
}

func TestSQLState(t *testing.T) {
	pgErr := &pgconn.PgError{Code: SQLStateUniqueViolation}
	wrapped := fmt.Errorf("insert: %w", pgErr)

	assert.Equal(t, SQLStateUniqueViolation, SQLState(wrapped))
	assert.True(t, IsUniqueViolation(wrapped))
	assert.Equal(t, "", SQLState(errors.New("plain")))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"cannot connect now", &pgconn.PgError{Code: SQLStateCannotConnect}, true},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"duplicate database", &pgconn.PgError{Code: SQLStateDuplicateDB}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
