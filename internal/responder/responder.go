// ABOUTME: Uniform respond contract for the ordered responder chain
// ABOUTME: Defines Reply, SessionContext, and the Timeout/Unavailable failure modes

package responder

import (
	"context"
	"errors"

	"github.com/deepika827/ChatbotRasa/internal/store"
)

// Responder failure modes. The escalation controller treats both as a
// signal to fall through to the next engine in the chain.
var (
	// ErrTimeout means the engine did not answer within the deadline.
	// Its eventual late reply, if any, is discarded.
	ErrTimeout = errors.New("responder timed out")

	// ErrUnavailable means the engine could not be reached or returned
	// a malformed response.
	ErrUnavailable = errors.New("responder unavailable")
)

// Button is a quick-reply option suggested by an engine.
type Button struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Reply is the interpreted output of one responder engine. It is ephemeral:
// only its text ever becomes a persisted message.
type Reply struct {
	Text             string
	HandoffRequested bool
	Buttons          []Button
}

// SessionContext carries whatever contextual data the caller supplies to an
// engine. Its contents are opaque to the routing core.
type SessionContext struct {
	UserID   string
	SenderID string
	Recent   []*store.Message
}

// Responder is the uniform contract every engine in the chain implements.
type Responder interface {
	// Respond answers a user message. Fails with ErrTimeout or
	// ErrUnavailable; any other error is treated as ErrUnavailable.
	Respond(ctx context.Context, text string, sc SessionContext) (*Reply, error)

	// Name identifies the engine in logs.
	Name() string
}
