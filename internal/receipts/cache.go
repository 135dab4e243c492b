package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusCache keeps receipt detail payloads in Redis so dashboard reads do
// not hit the rollup query. Entries are invalidated whenever any allocation
// mutation touches the receipt.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusCache constructs the cache.
func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func cacheKey(receiptID int64) string {
	return fmt.Sprintf("receipt:%d:detail", receiptID)
}

// Get returns the cached detail if present.
func (c *StatusCache) Get(ctx context.Context, receiptID int64) (Detail, bool) {
	if c == nil || c.client == nil {
		return Detail{}, false
	}
	raw, err := c.client.Get(ctx, cacheKey(receiptID)).Bytes()
	if err != nil {
		return Detail{}, false
	}
	var detail Detail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return Detail{}, false
	}
	return detail, true
}

// Set stores the detail under the receipt key.
func (c *StatusCache) Set(ctx context.Context, detail Detail) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(detail.ID), raw, c.ttl).Err()
}

// Invalidate drops the cached detail for a receipt.
func (c *StatusCache) Invalidate(ctx context.Context, receiptID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	err := c.client.Del(ctx, cacheKey(receiptID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
