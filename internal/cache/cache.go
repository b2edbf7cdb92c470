// Package cache provides a small Redis-backed JSON cache for recipe
// listings. Writes bump a generation counter instead of enumerating keys,
// so invalidation is a single INCR and stale entries age out via TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 2 * time.Minute

// Cache stores JSON values under generation-scoped keys.
type Cache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New creates a cache. prefix namespaces keys per deployment.
func New(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl}
}

// GetJSON loads the cached value for key into out. Returns false on a miss;
// Redis errors are returned as misses with the error so callers can degrade
// to the source of truth.
func (c *Cache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	full, err := c.fullKey(ctx, key)
	if err != nil {
		return false, err
	}
	data, err := c.rdb.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v under key with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	full, err := c.fullKey(ctx, key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, full, data, c.ttl).Err()
}

// Invalidate bumps the generation so every existing entry becomes
// unreachable. Old entries expire on their own TTL.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, c.genKey()).Err()
}

func (c *Cache) fullKey(ctx context.Context, key string) (string, error) {
	gen, err := c.rdb.Get(ctx, c.genKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s:g%d:%s", c.prefix, gen, key), nil
}

func (c *Cache) genKey() string {
	return c.prefix + ":gen"
}
