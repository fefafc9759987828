// Package store persists trigger associations and usage events in SQLite.
//
// All operations degrade on storage failure: errors are logged and an
// empty/false result is returned, so callers treat "no result" and "failure"
// identically and never surface raw storage errors to the sender.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/earhater/shumaxer-bot/pkg/stickerbot"

	_ "modernc.org/sqlite"
)

const topTriggersLimit = 10

const schema = `
CREATE TABLE IF NOT EXISTS associations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id INTEGER NOT NULL,
	image_ref TEXT NOT NULL,
	trigger_text TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (image_ref, trigger_text)
);
CREATE INDEX IF NOT EXISTS idx_associations_owner ON associations(owner_id, id);
CREATE INDEX IF NOT EXISTS idx_associations_trigger ON associations(trigger_text);

CREATE TABLE IF NOT EXISTS usage_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id INTEGER NOT NULL,
	image_ref TEXT NOT NULL,
	trigger_text TEXT NOT NULL,
	used_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_events_trigger ON usage_events(trigger_text);
`

// Option mutates store configuration.
type Option func(*Store)

// WithLogger injects structured logging for degraded operations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func withClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Store owns all durable state: associations and append-only usage events.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	clock  func() time.Time
}

// Open creates or opens the SQLite database at path and initializes the
// schema. Schema failures propagate; they are startup errors, not the
// degraded-operation path.
func Open(path string, options ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open store: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("open store: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	// The store is a single-writer point-query workload; one connection
	// avoids SQLITE_BUSY contention entirely.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		path:   path,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, option := range options {
		option(s)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open store %s: init schema: %w", path, err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// AddAssociation normalizes trigger and inserts the binding unless the
// (image_ref, trigger) pair already exists. Returns whether a new row was
// inserted; a duplicate is a normal outcome, not an error.
func (s *Store) AddAssociation(ctx context.Context, owner int64, imageRef, trigger string) bool {
	normalized := stickerbot.NormalizeTrigger(trigger)
	if normalized == "" || imageRef == "" {
		return false
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO associations (owner_id, image_ref, trigger_text, created_at) VALUES (?, ?, ?, ?)`,
		owner, imageRef, normalized, s.clock().UTC(),
	)
	if err != nil {
		s.logFailure(ctx, "add_association", err, "owner", owner, "trigger", normalized)
		return false
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		s.logFailure(ctx, "add_association", err, "owner", owner, "trigger", normalized)
		return false
	}

	return inserted > 0
}

// FindImageByTrigger normalizes text and returns the image reference of the
// most recently created association whose trigger contains text as a
// substring. Insertion order descending breaks ties.
func (s *Store) FindImageByTrigger(ctx context.Context, text string) (string, bool) {
	normalized := stickerbot.NormalizeTrigger(text)
	if normalized == "" {
		return "", false
	}

	var imageRef string
	err := s.db.QueryRowContext(ctx,
		`SELECT image_ref FROM associations WHERE instr(trigger_text, ?) > 0 ORDER BY id DESC LIMIT 1`,
		normalized,
	).Scan(&imageRef)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		s.logFailure(ctx, "find_image_by_trigger", err, "text", normalized)
		return "", false
	}

	return imageRef, true
}

// ListAssociationsForOwner returns the owner's associations, newest first.
func (s *Store) ListAssociationsForOwner(ctx context.Context, owner int64) []stickerbot.Association {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, image_ref, trigger_text, created_at FROM associations WHERE owner_id = ? ORDER BY id DESC`,
		owner,
	)
	if err != nil {
		s.logFailure(ctx, "list_associations", err, "owner", owner)
		return nil
	}
	defer rows.Close()

	var associations []stickerbot.Association
	for rows.Next() {
		var association stickerbot.Association
		if err := rows.Scan(
			&association.OwnerID,
			&association.ImageRef,
			&association.Trigger,
			&association.CreatedAt,
		); err != nil {
			s.logFailure(ctx, "list_associations", err, "owner", owner)
			return nil
		}
		associations = append(associations, association)
	}
	if err := rows.Err(); err != nil {
		s.logFailure(ctx, "list_associations", err, "owner", owner)
		return nil
	}

	return associations
}

// DeleteAssociation removes one exact binding scoped to owner. Returns
// whether a row was removed.
func (s *Store) DeleteAssociation(ctx context.Context, owner int64, imageRef, trigger string) bool {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM associations WHERE owner_id = ? AND image_ref = ? AND trigger_text = ?`,
		owner, imageRef, stickerbot.NormalizeTrigger(trigger),
	)
	if err != nil {
		s.logFailure(ctx, "delete_association", err, "owner", owner, "trigger", trigger)
		return false
	}

	removed, err := result.RowsAffected()
	if err != nil {
		s.logFailure(ctx, "delete_association", err, "owner", owner, "trigger", trigger)
		return false
	}

	return removed > 0
}

// RecordUsage appends one usage event. It never fails the caller; a failed
// append is logged and dropped.
func (s *Store) RecordUsage(ctx context.Context, owner int64, imageRef, trigger string) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (owner_id, image_ref, trigger_text, used_at) VALUES (?, ?, ?, ?)`,
		owner, imageRef, stickerbot.NormalizeTrigger(trigger), s.clock().UTC(),
	)
	if err != nil {
		s.logFailure(ctx, "record_usage", err, "owner", owner, "trigger", trigger)
	}
}

// GetStats aggregates store-wide statistics. Partial failures degrade to
// zero values for the affected fields.
func (s *Store) GetStats(ctx context.Context) stickerbot.Stats {
	var stats stickerbot.Stats

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT image_ref), COUNT(DISTINCT owner_id) FROM associations`,
	).Scan(&stats.TotalAssociations, &stats.UniqueImages, &stats.TotalOwners)
	if err != nil {
		s.logFailure(ctx, "get_stats", err)
		return stickerbot.Stats{}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT trigger_text, COUNT(*) AS uses FROM usage_events GROUP BY trigger_text ORDER BY uses DESC, trigger_text ASC LIMIT ?`,
		topTriggersLimit,
	)
	if err != nil {
		s.logFailure(ctx, "get_stats", err)
		return stats
	}
	defer rows.Close()

	for rows.Next() {
		var usage stickerbot.TriggerUsage
		if err := rows.Scan(&usage.Trigger, &usage.Count); err != nil {
			s.logFailure(ctx, "get_stats", err)
			return stats
		}
		stats.TopTriggers = append(stats.TopTriggers, usage)
	}
	if err := rows.Err(); err != nil {
		s.logFailure(ctx, "get_stats", err)
	}

	return stats
}

func (s *Store) logFailure(ctx context.Context, operation string, err error, attrs ...any) {
	values := make([]any, 0, 4+len(attrs))
	values = append(values, "operation", operation, "error", err)
	values = append(values, attrs...)
	s.logger.ErrorContext(ctx, "store operation degraded", values...)
}
