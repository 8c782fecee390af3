// Package redis wraps go-redis/v9 for the caches and rate limiters. Every
// key passes through a configurable namespace prefix so several
// deployments can share one server.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/health"
)

const scanBatch = 100

type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient connects and verifies the server with a PING bounded by the
// dial timeout.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

func (c *Client) key(k string) string {
	return c.prefix + k
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, c.key(key)).Result()
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.rdb.Del(ctx, full...).Err()
}

// IncrWindow increments key and starts its ttl on the first increment,
// returning the new count. It backs fixed-window counters shared across
// processes.
func (c *Client) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := c.key(key)
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	return incr.Val(), nil
}

// FlushByPattern deletes every key matching the glob pattern, SCANning in
// batches so a large keyspace never blocks the server. It returns the
// number of keys removed.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	iter := c.rdb.Scan(ctx, 0, escapeGlob(c.prefix)+pattern, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for {
		more := iter.Next(ctx)
		if more {
			batch = append(batch, iter.Val())
		}
		if len(batch) == scanBatch || (!more && len(batch) > 0) {
			n, err := c.rdb.Unlink(ctx, batch...).Result()
			if err != nil {
				return deleted, fmt.Errorf("deleting %d keys: %w", len(batch), err)
			}
			deleted += n
			batch = batch[:0]
		}
		if !more {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning %s: %w", pattern, err)
	}
	return deleted, nil
}

var globEscaper = strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`, `\`, `\\`)

// escapeGlob makes s match itself literally in a SCAN pattern.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

// IsNilError reports whether err is a Redis nil (key-not-found) error.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Health pings the server. Callers fall back to in-process state while
// Redis is away, so failures are degraded rather than down.
func (c *Client) Health(ctx context.Context) health.ComponentHealth {
	if err := c.Ping(ctx); err != nil {
		return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
	}
	st := c.rdb.PoolStats()
	return health.ComponentHealth{
		Status:  health.StatusUp,
		Message: fmt.Sprintf("conns=%d idle=%d timeouts=%d", st.TotalConns, st.IdleConns, st.Timeouts),
	}
}

// Getter and Setter are the subsets of Client the JSON helpers need.
type Getter interface {
	Get(ctx context.Context, key string) (string, error)
}

type Setter interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// GetJSON decodes the JSON value stored at key. found is false when the key
// does not exist.
func GetJSON[T any](ctx context.Context, c Getter, key string) (val T, found bool, err error) {
	data, err := c.Get(ctx, key)
	if err != nil {
		if IsNilError(err) {
			return val, false, nil
		}
		return val, false, err
	}
	if err := json.Unmarshal([]byte(data), &val); err != nil {
		return val, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return val, true, nil
}

// SetJSON stores v as JSON at key with ttl.
func SetJSON(ctx context.Context, c Setter, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
