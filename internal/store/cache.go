package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"tg_assistant_bot/internal/config"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

const cachePrefix = "assistant_bot"

// Cache is a small JSON-over-Redis cache with per-key TTLs, used for resolved
// download links so repeated requests skip the provider race.
type Cache struct {
	client *redis.Client
}

// NewCache connects to Redis and verifies connectivity with a ping.
func NewCache(ctx context.Context, cfg config.Config) (*Cache, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Set stores value as JSON under the namespaced key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return errors.New("cache is not initialized")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("set cache key: %w", err)
	}
	return nil
}

// Get loads the JSON value stored under key into dest. Returns ErrCacheMiss
// when the key is absent.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if c == nil || c.client == nil {
		return errors.New("cache is not initialized")
	}

	data, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("get cache key: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal cache value: %w", err)
	}
	return nil
}

// Ping verifies connectivity. Used by the health endpoint.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("cache is not initialized")
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func cacheKey(key string) string {
	return cachePrefix + ":" + key
}
