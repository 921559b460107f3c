package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// Every key lives under a namespace so workspaces never collide.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, namespace string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, namespace string, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `env:"KESTREL_CACHE_TYPE"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `env:"KESTREL_CACHE_LOCAL_MAX_SIZE"`
	LocalTTL     time.Duration `env:"KESTREL_CACHE_LOCAL_TTL"`

	// Redis settings (Pro tier)
	RedisAddr     string `env:"KESTREL_REDIS_ADDR"`
	RedisPassword string `env:"KESTREL_REDIS_PASSWORD"`
	RedisDB       int    `env:"KESTREL_REDIS_DB"`

	// Two-phase settings
	EnableTwoPhase bool `env:"KESTREL_CACHE_TWO_PHASE"` // If true, check local first, then Redis

	// SuggestionTTL bounds how long the engine's account list is reused.
	SuggestionTTL time.Duration `env:"KESTREL_SUGGESTION_TTL"`
}
