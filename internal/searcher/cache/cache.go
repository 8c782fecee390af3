// Package cache stores ranked search results in Redis keyed by the
// normalized query, mode and limit.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/redis"
)

const keyPrefix = "search:"

// Store is the subset of *pkgredis.Client the cache needs.
type Store interface {
	pkgredis.Getter
	pkgredis.Setter
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, query string, mode engine.Mode, limit int) (*engine.Result, bool) {
	key := BuildKey(query, mode, limit)
	result, found, err := pkgredis.GetJSON[*engine.Result](ctx, c.store, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if !found || err != nil || result == nil {
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "query", query, "key", key)
	return result, true
}

// Set stores result unless every provider call behind it failed.
func (c *QueryCache) Set(ctx context.Context, query string, mode engine.Mode, limit int, result *engine.Result) {
	if result == nil || result.Degraded() {
		return
	}
	key := BuildKey(query, mode, limit)
	if err := pkgredis.SetJSON(ctx, c.store, key, result, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes it once for all
// concurrent callers of the same key.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query string,
	mode engine.Mode,
	limit int,
	computeFn func() (*engine.Result, error),
) (*engine.Result, bool, error) {
	if result, ok := c.Get(ctx, query, mode, limit); ok {
		return result, true, nil
	}
	key := BuildKey(query, mode, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, mode, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*engine.Result), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes the case- and space-folded query with mode and limit.
func BuildKey(query string, mode engine.Mode, limit int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	raw := fmt.Sprintf("%s|mode=%s|limit=%d", normalized, mode, limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
