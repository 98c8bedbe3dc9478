// ABOUTME: Outbound wire event delivered through rooms to connections
// ABOUTME: JSON shape matches the browser and CSR console clients

package room

import "time"

// Event types pushed to clients.
const (
	TypeWelcome      = "welcome"
	TypeBotResponse  = "bot_response"
	TypeAgentMessage = "agent_message"
	TypeUserMessage  = "message"
	TypeSystem       = "system"
	TypeJoinRequest  = "join_request"
)

// Button is a quick-reply option attached to a bot response.
type Button struct {
	Title   string `json:"title"`
	Payload string `json:"payload,omitempty"`
}

// Event is one outbound message pushed to a client connection.
type Event struct {
	Type      string    `json:"type"`
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text,omitempty"`
	Buttons   []Button  `json:"buttons,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}
