// ABOUTME: Store interface and data types for chat transcript persistence
// ABOUTME: Defines Message struct and the Store interface for the append-only log

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Well-known sender values. Agent senders use AgentSender(id).
const (
	SenderUser   = "user"
	SenderBot    = "bot"
	SenderSystem = "system"
)

// AgentSender returns the sender value for a CSR agent, e.g. "agent:csr1".
func AgentSender(agentID string) string {
	return "agent:" + agentID
}

// Message is a single persisted chat message, keyed by the user identity
// that owns the conversation. Messages are immutable once saved.
type Message struct {
	ID        string
	UserID    string
	Sender    string // "user", "bot", "system", or "agent:<id>"
	Text      string
	Channel   string // room the message was delivered through, if any
	CreatedAt time.Time
}

// Store defines the interface for transcript persistence.
// The log is append-only: there are no update or delete operations.
type Store interface {
	// SaveMessage appends a message to the transcript.
	SaveMessage(ctx context.Context, msg *Message) error

	// RecentMessages returns up to limit messages for a user in
	// chronological order (oldest first).
	RecentMessages(ctx context.Context, userID string, limit int) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}
