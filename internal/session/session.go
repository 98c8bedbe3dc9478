// ABOUTME: Session state machine types for the bot-to-human handoff lifecycle
// ABOUTME: Defines the Automated/PendingHandoff/HumanAssisted states and events

package session

import "time"

// State is the routing state of a user's conversation.
type State int

const (
	// StateAutomated means messages are answered by the responder chain.
	StateAutomated State = iota
	// StatePendingHandoff means escalation was triggered and the session is
	// waiting for a CSR agent to accept.
	StatePendingHandoff
	// StateHumanAssisted means a CSR agent is paired and messages are relayed.
	StateHumanAssisted
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateAutomated:
		return "automated"
	case StatePendingHandoff:
		return "pending_handoff"
	case StateHumanAssisted:
		return "human_assisted"
	default:
		return "unknown"
	}
}

// Event is a state machine input.
type Event int

const (
	// EventEscalate moves Automated -> PendingHandoff.
	EventEscalate Event = iota
	// EventAgentAccept moves PendingHandoff -> HumanAssisted.
	EventAgentAccept
	// EventResume moves PendingHandoff or HumanAssisted -> Automated.
	EventResume
)

// String returns the event name for logging.
func (e Event) String() string {
	switch e {
	case EventEscalate:
		return "escalate"
	case EventAgentAccept:
		return "agent_accept"
	case EventResume:
		return "resume"
	default:
		return "unknown"
	}
}

// Session is one user's conversational state. PairedAgent is non-empty
// if and only if State is StateHumanAssisted.
type Session struct {
	UserID       string
	State        State
	PairedAgent  string
	LastActivity time.Time
}

// AssistedBy returns the paired agent ID and whether a pairing exists.
func (s Session) AssistedBy() (string, bool) {
	return s.PairedAgent, s.PairedAgent != ""
}
