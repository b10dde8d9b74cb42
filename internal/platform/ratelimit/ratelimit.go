// Package ratelimit provides the per-client request limiter applied by
// internal/httpapi/middleware (installed after logging and before metrics,
// ahead of auth), adapted from the teacher's pkg/ratelimit.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"runcore/internal/platform/config"
)

// ErrLimiterClosed is returned once Close has been called.
var ErrLimiterClosed = errors.New("limiter is closed")

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// Config tunes a sliding-window limiter.
type Config struct {
	Requests        int
	Window          time.Duration
	Burst           int
	CleanupInterval time.Duration
}

// FromConfig builds a Config from the process configuration.
func FromConfig(cfg *config.RateLimitConfig) *Config {
	return &Config{
		Requests:        cfg.Requests,
		Window:          cfg.Window,
		Burst:           cfg.Burst,
		CleanupInterval: 5 * time.Minute,
	}
}

// New builds a memory-backed sliding window Limiter. A shared Redis backend
// is not wired here: the signing-key cache (internal/platform/cache)
// already demonstrates the multi-replica-shared-state path with
// github.com/redis/go-redis/v9, and this server's single-process deployment
// model (spec §5) has no second replica for a rate limiter to coordinate
// with.
func New(cfg *Config) Limiter {
	if cfg == nil {
		cfg = &Config{Requests: 120, Window: time.Minute, Burst: 20, CleanupInterval: 5 * time.Minute}
	}
	if cfg.Requests <= 0 {
		cfg.Requests = 120
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	return newMemoryLimiter(cfg)
}
