package kardex

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// StockCache keeps recently read stock figures in Redis for the public read
// endpoint. It is never consulted by in-transaction sufficiency checks.
type StockCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStockCache constructs the cache.
func NewStockCache(client *redis.Client, ttl time.Duration) *StockCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StockCache{client: client, ttl: ttl}
}

func stockKey(productID int64) string {
	return fmt.Sprintf("kardex:stock:%d", productID)
}

// Get returns the cached stock and whether it was present.
func (c *StockCache) Get(ctx context.Context, productID int64) (int64, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	raw, err := c.client.Get(ctx, stockKey(productID)).Result()
	if err != nil {
		return 0, false
	}
	stock, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return stock, true
}

// Set stores a stock figure with the configured TTL.
func (c *StockCache) Set(ctx context.Context, productID, stock int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, stockKey(productID), strconv.FormatInt(stock, 10), c.ttl).Err()
}

// Invalidate drops the cached figure after a ledger write.
func (c *StockCache) Invalidate(ctx context.Context, productID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, stockKey(productID)).Err()
}
