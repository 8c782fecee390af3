// Package postgres owns the shared *sql.DB: pool settings, connect retry,
// advisory-locked schema setup and transactions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/resilience"
)

type Client struct {
	DB *sql.DB
}

// New opens the pool and waits for the server to answer, retrying while it
// starts up. ctx bounds the whole wait.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log := slog.Default().With("component", "postgres", "host", cfg.Host, "database", cfg.Database)
	err = resilience.Retry(ctx, "postgres.connect", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		OnRetry: func(attempt int, err error) {
			log.Warn("postgres not ready", "attempt", attempt, "error", err)
		},
	}, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	log.Info("postgres connected")
	return &Client{DB: db}, nil
}

// NewFromDB wraps an already opened database handle.
func NewFromDB(db *sql.DB) *Client {
	return &Client{DB: db}
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Health pings the server and reports pool usage. A pool where every
// connection is busy and callers are queueing is degraded.
func (c *Client) Health(ctx context.Context) health.ComponentHealth {
	if err := c.Ping(ctx); err != nil {
		return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
	}
	st := c.DB.Stats()
	msg := fmt.Sprintf("open=%d in_use=%d idle=%d", st.OpenConnections, st.InUse, st.Idle)
	if st.MaxOpenConnections > 0 && st.InUse >= st.MaxOpenConnections && st.WaitCount > 0 {
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "pool exhausted: " + msg}
	}
	return health.ComponentHealth{Status: health.StatusUp, Message: msg}
}

// Migrate runs idempotent DDL in one transaction while holding an advisory
// lock derived from scope, so processes starting together apply a scope's
// schema one at a time.
func (c *Client) Migrate(ctx context.Context, scope string, statements ...string) error {
	return c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey(scope)); err != nil {
			return fmt.Errorf("locking %s schema: %w", scope, err)
		}
		for i, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%s schema statement %d: %w", scope, i, err)
			}
		}
		return nil
	})
}

func lockKey(scope string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("musicbot:" + scope))
	return int64(h.Sum64())
}

// InTx runs fn in a transaction, committing on nil and rolling back on an
// error or panic. Panics are re-raised after the rollback.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
