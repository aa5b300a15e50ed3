// Package cache stores rendered export files in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// RedisExportCache keeps export bytes under a fixed key prefix with a TTL.
type RedisExportCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisExportCache connects to redisURL and verifies the connection.
func NewRedisExportCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisExportCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisExportCacheWithClient(client, ttl), nil
}

func NewRedisExportCacheWithClient(client *redis.Client, ttl time.Duration) *RedisExportCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisExportCache{
		client: client,
		prefix: "export:",
		ttl:    ttl,
	}
}

func (c *RedisExportCache) key(k string) string {
	return c.prefix + k
}

// Get returns the cached bytes for k. A miss is (nil, false, nil).
func (c *RedisExportCache) Get(ctx context.Context, k string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached export: %w", err)
	}
	return data, true, nil
}

func (c *RedisExportCache) Set(ctx context.Context, k string, data []byte) error {
	if err := c.client.Set(ctx, c.key(k), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save cached export: %w", err)
	}
	return nil
}

func (c *RedisExportCache) Close() error {
	return c.client.Close()
}

func (c *RedisExportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
