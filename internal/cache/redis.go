package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix isolates Kestrel keys in a shared Redis.
const keyPrefix = "kestrel:"

// RedisCache implements domain.Cache on Redis.
// Used on its own or as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get returns the value under namespace/key, or nil when absent.
func (c *RedisCache) Get(ctx context.Context, namespace string, key string) ([]byte, error) {
	fullKey, err := namespacedKey(namespace, key)
	if err != nil {
		return nil, err
	}

	val, err := c.client.Get(ctx, keyPrefix+fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", fullKey, err)
	}
	return val, nil
}

// Set stores value under namespace/key. A non-positive ttl never expires.
func (c *RedisCache) Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error {
	fullKey, err := namespacedKey(namespace, key)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, keyPrefix+fullKey, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", fullKey, err)
	}
	return nil
}

// Delete removes namespace/key.
func (c *RedisCache) Delete(ctx context.Context, namespace string, key string) error {
	fullKey, err := namespacedKey(namespace, key)
	if err != nil {
		return err
	}
	if err := c.client.Del(ctx, keyPrefix+fullKey).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", fullKey, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
