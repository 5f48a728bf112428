package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := NewConfig()
	cfg.Addr = mr.Addr()

	client, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := NewConfig()
	cfg.Addr = addr
	cfg.MaxRetries = 1
	cfg.RetryInterval = 10 * time.Millisecond

	_, err := Connect(context.Background(), cfg)
	assert.Error(t, err)
}

func TestHealthCheck_NotInitialized(t *testing.T) {
	assert.Error(t, (&Client{}).HealthCheck(context.Background()))
	assert.NoError(t, (&Client{}).Close())
}
