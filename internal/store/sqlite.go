// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides transcript persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			text TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_user_id
			ON messages(user_id);

		CREATE INDEX IF NOT EXISTS idx_messages_user_created
			ON messages(user_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// SaveMessage appends a message to the transcript.
// A missing ID or timestamp is filled in so callers can stay terse.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, sender, text, channel, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, msg.Sender, msg.Text, msg.Channel, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit messages for a user, oldest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, userID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}

	// Fetch the newest N rows, then reverse into chronological order.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, sender, text, channel, created_at
		 FROM messages
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Sender, &m.Text, &m.Channel, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	// Reverse to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
