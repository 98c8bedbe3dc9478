// ABOUTME: Inbound wire events sent by browser and CSR console clients
// ABOUTME: One JSON envelope, discriminated by the event field

package gateway

// Inbound event names.
const (
	EventUserRoom      = "user_room"
	EventAgentRoom     = "agent_room"
	EventAcceptHandoff = "accept_handoff"
	EventMessage       = "message"
	EventAgentMessage  = "agent_message"
	EventResume        = "resume"
)

// ClientEvent is one inbound message from a websocket client.
type ClientEvent struct {
	Event   string `json:"event"`
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	Token   string `json:"token,omitempty"`
	Text    string `json:"text,omitempty"`
}
