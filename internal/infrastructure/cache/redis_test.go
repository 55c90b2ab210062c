package cache

import (
	"context"
	"testing"
	"time"

	"crm-schema-migrator/internal/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisCacheForTest returns a cache on a local Redis, skipping when none is reachable.
func redisCacheForTest(t *testing.T) *RedisCache[[]string] {
	t.Helper()
	client, err := NewRedisClient(context.Background(), "localhost:6379", "", 0)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	c := NewRedisCache[[]string](client, "test:"+uuid.NewString()+":")
	t.Cleanup(func() {
		_ = c.DeletePrefix(context.Background(), "")
		_ = c.Close()
	})
	return c
}

func TestRedisCache_GetSetDelete(t *testing.T) {
	c := redisCacheForTest(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []string{"a", "b"}, time.Minute))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ports.ErrCacheMiss)
}

func TestRedisCache_DeletePrefix(t *testing.T) {
	c := redisCacheForTest(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "catalog:u1:source:contacts", []string{"x"}, time.Minute))
	require.NoError(t, c.Set(ctx, "catalog:u1:target:contacts", []string{"y"}, time.Minute))

	require.NoError(t, c.DeletePrefix(ctx, "catalog:u1:source:"))

	_, err := c.Get(ctx, "catalog:u1:source:contacts")
	assert.ErrorIs(t, err, ports.ErrCacheMiss)
	_, err = c.Get(ctx, "catalog:u1:target:contacts")
	assert.NoError(t, err)
	assert.NoError(t, c.Health(ctx))
}
