package performance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"openapi-mcp/internal/config"
	"openapi-mcp/internal/logging"
)

// keyPrefix namespaces cache keys in a shared Redis instance.
const keyPrefix = "openapi-mcp:results:"

// RedisCache backs the result cache with a shared Redis instance.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logging.Logger

	hits   int64
	misses int64
	sets   int64
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg config.RedisConfig, ttl time.Duration, logger logging.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis cache at %s: %w", cfg.Addr, err)
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.WithComponent("redis-cache"),
	}, nil
}

// Get fetches a cached value. Backend errors degrade to a miss: the cache
// is an optimization, never a dependency.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", "error", err)
		}
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&c.hits, 1)
	return value, true
}

// Set stores a value with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, keyPrefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	atomic.AddInt64(&c.sets, 1)
	return nil
}

// Delete removes one entry.
func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		c.logger.Warn("redis delete failed", "error", err)
	}
}

// Stats reports client-side counters; item counts live server-side.
func (c *RedisCache) Stats() Stats {
	return Stats{
		Backend: "redis",
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Sets:    atomic.LoadInt64(&c.sets),
	}.withHitRate()
}

// Close releases the client connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
