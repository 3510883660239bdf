// Package chatlog provides the durable message log and per-user read-position
// store backed by SQLite.
package chatlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Message is a single persisted chat message. Messages are immutable once
// written; ID is assigned by the log at append time and is the ordering key
// for history replay and read-position comparisons.
type Message struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists messages and read positions.
type Store struct {
	db *sql.DB
}

// Config contains configuration for the chatlog store.
type Config struct {
	Path string // Path to SQLite database file; ":memory:" for ephemeral use
}

// timestampLayout matches the wall-clock format written into the messages table.
const timestampLayout = "2006-01-02 15:04:05"

// Open opens (creating if necessary) the chat log database.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers (SQLite allows only one anyway)
	// and keeps ":memory:" databases from fragmenting across the pool.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS read_state (
			username TEXT PRIMARY KEY,
			last_read_id INTEGER
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create read_state table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp)`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append persists a message and returns its newly assigned id. Ids are
// strictly increasing; assignment is serialized by the database, so two
// concurrent appends never observe the same id.
func (s *Store) Append(ctx context.Context, sender, text string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (sender, message, timestamp)
		VALUES (?, ?, ?)
	`, sender, text, time.Now().Format(timestampLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	return id, nil
}

// ListByDate returns every message whose timestamp falls on the given
// calendar date, ascending by id.
func (s *Store) ListByDate(ctx context.Context, day time.Time) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, message, timestamp FROM messages
		WHERE DATE(timestamp) = ?
		ORDER BY id ASC
	`, day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg Message
			ts  string
		)
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Text, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		parsed, err := time.ParseInLocation(timestampLayout, ts, time.Local)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", ts, err)
		}
		msg.Timestamp = parsed
		out = append(out, msg)
	}
	return out, rows.Err()
}

// LastReadID returns the last message id the user is recorded to have read.
// The second return is false when the user has no record.
func (s *Store) LastReadID(ctx context.Context, username string) (int64, bool, error) {
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_read_id FROM read_state WHERE username = ?`, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query read state: %w", err)
	}
	if !id.Valid {
		return 0, false, nil
	}
	return id.Int64, true, nil
}

// SetLastReadID upserts the user's read position. Last write wins; no history
// is kept.
func (s *Store) SetLastReadID(ctx context.Context, username string, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_state (username, last_read_id)
		VALUES (?, ?)
		ON CONFLICT(username) DO UPDATE SET last_read_id = excluded.last_read_id
	`, username, id)
	if err != nil {
		return fmt.Errorf("failed to upsert read state: %w", err)
	}
	return nil
}
