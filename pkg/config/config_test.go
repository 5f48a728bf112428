package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey = "0123456789abcdef0123456789abcdef"
	testIV  = "abcdef9876543210"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("VAULT_KEY", testKey)
	t.Setenv("VAULT_IV", testIV)
	t.Setenv("JWT_SECRET", "jwt-test-secret")
}

// TestLoadConfig_DefaultValues проверяет значения по умолчанию
func TestLoadConfig_DefaultValues(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Storage.TenantPort)
	assert.Equal(t, "120m", cfg.JWT.TokenDuration)
	assert.Equal(t, "dev", cfg.Environment)
	assert.False(t, cfg.RabbitMQ.Enabled)
}

// TestLoadConfig_FileOverride проверяет, что значения из файла перекрывают значения по умолчанию
func TestLoadConfig_FileOverride(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `server:
  host: "127.0.0.1"
  port: 9090
storage:
  admin_host: "pg-admin"
  admin_port: 5433
  admin_user: "root"
  tenant_host: "pg-tenants"
  tenant_port: 6432
jwt:
  issuer: "shop"
  audience: "shop-web"
  token_duration: "30m"
environment: "prod"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "pg-admin", cfg.Storage.AdminHost)
	assert.Equal(t, 6432, cfg.Storage.TenantPort)
	assert.Equal(t, "shop-web", cfg.JWT.Audience)
	assert.Equal(t, "prod", cfg.Environment)
}

// TestLoadConfig_EnvOverride проверяет приоритет переменных окружения над файлом
func TestLoadConfig_EnvOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("STORAGE_TENANT_HOST", "tenants.internal")
	t.Setenv("RATE_LIMITING_ENABLED", "true")
	t.Setenv("RATE_LIMITING_TRUST_FORWARDED_FOR", "true")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "tenants.internal", cfg.Storage.TenantHost)
	assert.True(t, cfg.RateLimiting.Enabled)
	assert.True(t, cfg.RateLimiting.TrustForwardedFor)
}

func TestLoadConfig_InvalidEnvValue(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_PORT", "not-a-port")

	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	setRequiredEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// TestValidate проверяет отказ на некорректных значениях до подключения к хранилищам
func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Vault = VaultConfig{Key: testKey, IV: testIV}
		cfg.JWT.Secret = "secret"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"short vault key", func(c *Config) { c.Vault.Key = "short" }},
		{"long vault iv", func(c *Config) { c.Vault.IV = testIV + "x" }},
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }},
		{"bad environment", func(c *Config) { c.Environment = "qa" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad duration", func(c *Config) { c.JWT.TokenDuration = "soon" }},
		{"negative duration", func(c *Config) { c.Storage.ConnectTimeout = "-1s" }},
		{"rabbitmq without url", func(c *Config) { c.RabbitMQ.Enabled = true; c.RabbitMQ.URL = "" }},
		{"rate limit without quota", func(c *Config) { c.RateLimiting.Enabled = true; c.RateLimiting.RequestsPerMinute = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 2*time.Hour, Duration("120m", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("garbage", time.Minute))
}
