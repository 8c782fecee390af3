// Package aggregator persists periodic snapshots of the analytics
// aggregator to PostgreSQL.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS analytics_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	data        JSONB NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const schemaIndex = `CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at_idx
	ON analytics_snapshots (captured_at DESC)`

type Store struct {
	db        *postgres.Client
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewStore keeps snapshots for retention; zero keeps them forever.
func NewStore(db *postgres.Client, retention time.Duration) *Store {
	return &Store{
		db:        db,
		retention: retention,
		now:       time.Now,
		logger:    slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.db.Migrate(ctx, "analytics", schema, schemaIndex); err != nil {
		return fmt.Errorf("creating analytics schema: %w", err)
	}
	return nil
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	captured := stats.CapturedAt
	if captured.IsZero() {
		captured = s.now().UTC()
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
		data, captured,
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved", "total_searches", stats.TotalSearches)
	return nil
}

// LatestSnapshot returns nil, nil when no snapshot exists yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns up to limit snapshots captured at or after since,
// newest first. Corrupt rows are skipped.
func (s *Store) ListSnapshots(ctx context.Context, since time.Time, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM analytics_snapshots
		 WHERE captured_at >= $1
		 ORDER BY captured_at DESC LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]analytics.AggregatedStats, 0, limit)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}
	return snapshots, rows.Err()
}

// Prune deletes snapshots older than the retention window.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM analytics_snapshots WHERE captured_at < $1`,
		s.now().Add(-s.retention).UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return res.RowsAffected()
}

// RunPeriodicSave snapshots agg every interval until ctx is done, then
// saves once more. Ticks where nothing new was recorded are skipped so an
// idle bot does not fill the table with copies.
func (s *Store) RunPeriodicSave(ctx context.Context, agg analytics.StatsSource, interval time.Duration) {
	s.logger.Info("periodic snapshot started", "interval", interval, "retention", s.retention)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last int64 = -1
	save := func(ctx context.Context, force bool) {
		stats := agg.Stats()
		mark := activity(stats)
		if !force && mark == last {
			return
		}
		if err := s.SaveSnapshot(ctx, stats); err != nil {
			s.logger.Error("saving snapshot failed", "error", err)
			return
		}
		last = mark
		if n, err := s.Prune(ctx); err != nil {
			s.logger.Warn("pruning snapshots failed", "error", err)
		} else if n > 0 {
			s.logger.Info("pruned old snapshots", "count", n)
		}
	}
	for {
		select {
		case <-ticker.C:
			save(ctx, false)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			save(shutdownCtx, true)
			cancel()
			return
		}
	}
}

// activity is a counter that grows with every recorded event.
func activity(stats analytics.AggregatedStats) int64 {
	n := stats.TotalSearches
	for _, d := range stats.Deliveries {
		n += d.OK + d.Failed
	}
	return n
}
