package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/famomatic/streamgate/internal/catalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS playback_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    content_type TEXT NOT NULL,
    content_id INTEGER NOT NULL,
    started_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_playback_events_user
    ON playback_events (user_id, started_at);
`

// Store persists playback events in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordPlaybackStart inserts one playback event.
func (s *Store) RecordPlaybackStart(ctx context.Context, ev Event) error {
	startedAt := ev.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO playback_events (user_id, content_type, content_id, started_at)
         VALUES (?, ?, ?, ?)`,
		ev.UserID,
		string(ev.ContentType),
		ev.ContentID,
		startedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert playback event: %w", err)
	}
	return nil
}

// RecentForUser returns the most recent playback events for a user, newest
// first, capped at limit.
func (s *Store) RecentForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT user_id, content_type, content_id, started_at
         FROM playback_events
         WHERE user_id = ?
         ORDER BY started_at DESC, id DESC
         LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query playback events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var contentType, startedAt string
		if err := rows.Scan(&ev.UserID, &contentType, &ev.ContentID, &startedAt); err != nil {
			return nil, fmt.Errorf("scan playback event: %w", err)
		}
		ev.ContentType = catalog.ContentType(contentType)
		if ts, parseErr := time.Parse(time.RFC3339Nano, startedAt); parseErr == nil {
			ev.StartedAt = ts
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate playback events: %w", err)
	}
	return events, nil
}
