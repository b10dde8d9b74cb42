// Package cache provides the process-local cache used to hold verified
// third-party OAuth signing keys (spec §5.2). Trimmed from the teacher's
// broader multi-backend cache to the operations the signing-key lookup
// actually needs: Get/Set/Delete/Exists with a TTL.
package cache

import (
	"context"
	"errors"
	"time"

	"runcore/internal/platform/config"
)

// Backend types for cache implementations.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrKeyNotFound is returned when a requested key does not exist in the cache.
var ErrKeyNotFound = errors.New("key not found")

// Cache is the minimal interface both backends satisfy.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// Options configures cache construction.
type Options struct {
	Backend    string
	DefaultTTL time.Duration

	MaxEntries      int
	CleanupInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultOptions returns sensible defaults for a memory-backed cache.
func DefaultOptions() *Options {
	return &Options{
		Backend:         BackendMemory,
		DefaultTTL:      24 * time.Hour,
		MaxEntries:      1000,
		CleanupInterval: time.Hour,
	}
}

// FromConfig builds Options from the process configuration.
func FromConfig(cfg *config.CacheConfig) *Options {
	return &Options{
		Backend:       cfg.Driver,
		DefaultTTL:    cfg.DefaultTTL,
		MaxEntries:    cfg.MaxEntries,
		RedisAddr:     cfg.Address(),
		RedisPassword: cfg.Password,
		RedisDB:       cfg.DB,
	}
}

// New constructs a Cache from opts, defaulting to an in-memory backend for
// the single-process deployment spec §5 describes.
func New(opts *Options) (Cache, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	switch opts.Backend {
	case BackendRedis:
		return NewRedisCache(opts)
	default:
		return NewMemoryCache(opts), nil
	}
}
