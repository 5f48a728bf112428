package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"ShopPlatform/services/tenant-broker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateFindRemove(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	identity := &domain.TenantIdentity{Email: "a@x.com", StorageLoginName: "a_login"}
	require.NoError(t, r.Create(ctx, identity))

	found, err := r.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "a_login", found.StorageLoginName)

	byLogin, err := r.FindByLoginName(ctx, "a_login")
	require.NoError(t, err)
	require.NotNil(t, byLogin)

	missing, err := r.FindByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, r.Remove(ctx, identity))
	require.NoError(t, r.Remove(ctx, identity))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ReturnedCopyIsDetached(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	require.NoError(t, r.Create(ctx, &domain.TenantIdentity{Email: "a@x.com", StorageLoginName: "a_login"}))

	found, _ := r.FindByEmail(ctx, "a@x.com")
	found.StorageLoginName = "mutated"

	again, _ := r.FindByEmail(ctx, "a@x.com")
	assert.Equal(t, "a_login", again.StorageLoginName)
}

func TestRegistry_Duplicates(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	require.NoError(t, r.Create(ctx, &domain.TenantIdentity{Email: "a@x.com", StorageLoginName: "a_login"}))

	assert.ErrorIs(t, r.Create(ctx, &domain.TenantIdentity{Email: "a@x.com", StorageLoginName: "other"}), domain.ErrTenantExists)
	assert.ErrorIs(t, r.Create(ctx, &domain.TenantIdentity{Email: "b@x.com", StorageLoginName: "a_login"}), domain.ErrTenantExists)
}

func TestRegistry_RemoveKeepsForeignRecord(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	require.NoError(t, r.Create(ctx, &domain.TenantIdentity{Email: "a@x.com", StorageLoginName: "a_login"}))

	require.NoError(t, r.Remove(ctx, &domain.TenantIdentity{Email: "a@x.com", StorageLoginName: "b_login"}))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := r.Create(ctx, &domain.TenantIdentity{Email: "a@x.com", StorageLoginName: fmt.Sprintf("login_%d", i)})
			if err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, 1, r.Len())
}
