package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memoryLimiter is a sliding-window limiter scoped per key, adapted from
// the teacher's pkg/ratelimit.MemoryLimiter (token-bucket strategy dropped:
// spec has no burst-shaping requirement, just a per-client request cap).
type memoryLimiter struct {
	mu      sync.Mutex
	cfg     *Config
	windows map[string][]time.Time
	stopCh  chan struct{}
	closed  bool
}

func newMemoryLimiter(cfg *Config) *memoryLimiter {
	l := &memoryLimiter{
		cfg:     cfg,
		windows: make(map[string][]time.Time),
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *memoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false, ErrLimiterClosed
	}

	now := time.Now()
	windowStart := now.Add(-l.cfg.Window)

	requests := l.windows[key]
	kept := requests[:0]
	for _, t := range requests {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.cfg.Requests+l.cfg.Burst {
		l.windows[key] = kept
		return false, nil
	}

	l.windows[key] = append(kept, now)
	return true, nil
}

func (l *memoryLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.stopCh)
	l.windows = nil
	return nil
}

func (l *memoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *memoryLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	cutoff := time.Now().Add(-2 * l.cfg.Window)
	for key, requests := range l.windows {
		kept := requests[:0]
		for _, t := range requests {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(l.windows, key)
			continue
		}
		l.windows[key] = kept
	}
}
