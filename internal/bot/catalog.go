package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/redis"
)

// Catalog remembers the candidates recently shown to users so a delivery can
// recover the title, artist and media locator from a bare track key.
type Catalog interface {
	Remember(ctx context.Context, candidates []track.Candidate)
	Lookup(ctx context.Context, key track.Key) (track.Candidate, bool)
}

const catalogPrefix = "track:"

// KV is the subset of the redis client the shared catalog needs.
type KV interface {
	redis.Getter
	redis.Setter
}

// RedisCatalog shares shown candidates between bot replicas.
type RedisCatalog struct {
	kv     KV
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCatalog(kv KV, ttl time.Duration) *RedisCatalog {
	return &RedisCatalog{
		kv:     kv,
		ttl:    ttl,
		logger: slog.Default().With("component", "catalog"),
	}
}

func (c *RedisCatalog) Remember(ctx context.Context, candidates []track.Candidate) {
	for _, cand := range candidates {
		if err := redis.SetJSON(ctx, c.kv, catalogPrefix+cand.Key().String(), cand, c.ttl); err != nil {
			c.logger.Warn("catalog write failed", "key", cand.Key().String(), "error", err)
			return
		}
	}
}

func (c *RedisCatalog) Lookup(ctx context.Context, key track.Key) (track.Candidate, bool) {
	cand, found, err := redis.GetJSON[track.Candidate](ctx, c.kv, catalogPrefix+key.String())
	if err != nil {
		c.logger.Warn("catalog read failed", "key", key.String(), "error", err)
		return track.Candidate{}, false
	}
	return cand, found
}

// MemoryCatalog keeps up to size candidates in process, evicting the
// oldest insertions first.
type MemoryCatalog struct {
	mu    sync.Mutex
	items map[track.Key]track.Candidate
	order []track.Key
	size  int
}

func NewMemoryCatalog(size int) *MemoryCatalog {
	if size <= 0 {
		size = 1000
	}
	return &MemoryCatalog{
		items: make(map[track.Key]track.Candidate, size),
		size:  size,
	}
}

func (c *MemoryCatalog) Remember(_ context.Context, candidates []track.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cand := range candidates {
		key := cand.Key()
		if _, ok := c.items[key]; !ok {
			c.order = append(c.order, key)
		}
		c.items[key] = cand
	}
	for len(c.order) > c.size {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *MemoryCatalog) Lookup(_ context.Context, key track.Key) (track.Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cand, ok := c.items[key]
	return cand, ok
}
