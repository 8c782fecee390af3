// Package ratelimit throttles searches per user. Local is an in-process
// token bucket; Redis is a fixed window shared by every bot replica.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Limiter reports whether key may perform one more action now.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

type entry struct {
	tokens    float64
	lastCheck time.Time
}

// Local gives each key limit tokens per window, refilled continuously.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewLocal(limit int, window time.Duration) *Local {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Local{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (l *Local) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, exists := l.entries[key]
	if !exists {
		l.entries[key] = &entry{tokens: float64(l.limit - 1), lastCheck: now}
		return true
	}

	elapsed := now.Sub(e.lastCheck)
	e.lastCheck = now
	rate := float64(l.limit) / l.window.Seconds()
	e.tokens = min(e.tokens+elapsed.Seconds()*rate, float64(l.limit))
	if e.tokens < 1 {
		return false
	}
	e.tokens--
	return true
}

func (l *Local) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Run evicts idle keys every interval until ctx is cancelled.
func (l *Local) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

func (l *Local) evict() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, e := range l.entries {
		if e.lastCheck.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Counter is the subset of *pkgredis.Client Redis needs.
type Counter interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Redis allows limit actions per key within each aligned window. Redis
// errors fail open so an outage never locks users out.
type Redis struct {
	counter Counter
	limit   int
	window  time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func NewRedis(counter Counter, limit int, window time.Duration) *Redis {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Redis{
		counter: counter,
		limit:   limit,
		window:  window,
		now:     time.Now,
		logger:  slog.Default().With("component", "ratelimit"),
	}
}

func (r *Redis) Allow(ctx context.Context, key string) bool {
	bucket := r.now().Truncate(r.window).Unix()
	n, err := r.counter.IncrWindow(ctx, fmt.Sprintf("rl:%s:%d", key, bucket), r.window)
	if err != nil {
		r.logger.Warn("rate limit check failed, allowing", "key", key, "error", err)
		return true
	}
	return n <= int64(r.limit)
}
