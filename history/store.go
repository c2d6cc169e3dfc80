// Package history persists presence updates to a local sqlite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one recorded presence update.
type Entry struct {
	ID             string    `json:"id"`
	At             time.Time `json:"at"`
	Path           string    `json:"path"`
	Classification string    `json:"classification"`
	Details        string    `json:"details"`
	State          string    `json:"state"`
}

type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts one presence update. Empty id and zero timestamp are
// filled in.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO presence_updates(id, at, path, classification, details, state)
VALUES (?, ?, ?, ?, ?, ?)
`, entry.ID, ts(entry.At), entry.Path, entry.Classification, entry.Details, entry.State)
	if err != nil {
		return fmt.Errorf("record presence update: %w", err)
	}
	return nil
}

// Recent returns the newest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, at, path, classification, details, state
FROM presence_updates
ORDER BY at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query presence updates: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var at string
		if err := rows.Scan(&entry.ID, &at, &entry.Path, &entry.Classification, &entry.Details, &entry.State); err != nil {
			return nil, fmt.Errorf("scan presence update: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", at, err)
		}
		entry.At = parsed
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presence updates: %w", err)
	}
	return entries, nil
}

// Prune removes entries older than the retention window and reports how
// many were deleted.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, errors.New("retention must be positive")
	}
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM presence_updates WHERE at < ?`, ts(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune presence updates: %w", err)
	}
	return res.RowsAffected()
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
