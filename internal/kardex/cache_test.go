package kardex

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*StockCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStockCache(client, 30*time.Second), mr
}

func TestStockCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, 5)
	require.False(t, ok)

	require.NoError(t, cache.Set(ctx, 5, 120))

	stock, ok := cache.Get(ctx, 5)
	require.True(t, ok)
	require.Equal(t, int64(120), stock)
}

func TestStockCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 8, 44))
	require.NoError(t, cache.Invalidate(ctx, 8))

	_, ok := cache.Get(ctx, 8)
	require.False(t, ok)
}

func TestStockCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, 2, 9))
	mr.FastForward(31 * time.Second)

	_, ok := cache.Get(ctx, 2)
	require.False(t, ok)
}

func TestStockCacheNilSafe(t *testing.T) {
	var cache *StockCache
	ctx := context.Background()

	_, ok := cache.Get(ctx, 1)
	require.False(t, ok)
	require.NoError(t, cache.Set(ctx, 1, 10))
	require.NoError(t, cache.Invalidate(ctx, 1))
}
