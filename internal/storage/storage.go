// Package storage keeps the bot's durable state in PostgreSQL: the users
// who have talked to the bot and the Telegram file ids of tracks already
// uploaded once.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id    BIGINT PRIMARY KEY,
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS file_cache (
		source      TEXT NOT NULL,
		external_id TEXT NOT NULL,
		file_id     TEXT NOT NULL,
		message_id  BIGINT NOT NULL DEFAULT 0,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (source, external_id)
	)`,
}

// CachedFile is a track already stored on Telegram's side.
type CachedFile struct {
	Key       track.Key
	FileID    string
	MessageID int
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "storage"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.db.Migrate(ctx, "bot", schema...); err != nil {
		return fmt.Errorf("creating bot schema: %w", err)
	}
	return nil
}

// AddUser registers a user. Known users are reactivated.
func (s *Store) AddUser(ctx context.Context, userID int64) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO users (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET is_active = TRUE`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("adding user %d: %w", userID, err)
	}
	return nil
}

func (s *Store) ActiveUsers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT user_id FROM users WHERE is_active ORDER BY user_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE is_active`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting active users: %w", err)
	}
	return n, nil
}

// MarkInactive flags a user who blocked the bot.
func (s *Store) MarkInactive(ctx context.Context, userID int64) error {
	if _, err := s.db.DB.ExecContext(ctx,
		`UPDATE users SET is_active = FALSE WHERE user_id = $1`,
		userID,
	); err != nil {
		return fmt.Errorf("deactivating user %d: %w", userID, err)
	}
	return nil
}

// CachedFile returns apperrors.ErrTrackNotFound when the track was never
// uploaded.
func (s *Store) CachedFile(ctx context.Context, key track.Key) (CachedFile, error) {
	f := CachedFile{Key: key}
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT file_id, message_id FROM file_cache WHERE source = $1 AND external_id = $2`,
		string(key.Source), key.ExternalID,
	).Scan(&f.FileID, &f.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedFile{}, fmt.Errorf("file cache %s: %w", key, apperrors.ErrTrackNotFound)
	}
	if err != nil {
		return CachedFile{}, fmt.Errorf("reading file cache %s: %w", key, err)
	}
	return f, nil
}

func (s *Store) SaveFile(ctx context.Context, f CachedFile) error {
	if f.FileID == "" {
		return fmt.Errorf("file cache %s: empty file id: %w", f.Key, apperrors.ErrInvalidInput)
	}
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO file_cache (source, external_id, file_id, message_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (source, external_id)
		 DO UPDATE SET file_id = EXCLUDED.file_id, message_id = EXCLUDED.message_id, updated_at = NOW()`,
		string(f.Key.Source), f.Key.ExternalID, f.FileID, f.MessageID,
	)
	if err != nil {
		return fmt.Errorf("saving file cache %s: %w", f.Key, err)
	}
	s.logger.Debug("file id cached", "key", f.Key.String())
	return nil
}
