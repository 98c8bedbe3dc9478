// ABOUTME: Registry tracks every active user's session and its paired CSR agent
// ABOUTME: All mutations go through per-user locked transitions, never shared maps

package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrInvalidTransition is returned for a (state, event) pair outside the
// transition table. The session is left unchanged; this is never fatal.
var ErrInvalidTransition = errors.New("invalid session transition")

// entry holds one user's session behind its own lock so unrelated
// users never contend.
type entry struct {
	mu sync.Mutex
	s  Session
}

// Registry tracks active sessions and their handoff pairings. The user-to-agent
// pair lives inside the session itself and is mutated only through Transition,
// so the pairing invariant can't drift out of sync with the state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*entry),
		logger:   logger.With("component", "session"),
	}
}

// lookup returns the entry for a user, creating it in StateAutomated if needed.
func (r *Registry) lookup(userID string) *entry {
	r.mu.RLock()
	e, ok := r.sessions[userID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.sessions[userID]; ok {
		return e
	}
	e = &entry{s: Session{
		UserID:       userID,
		State:        StateAutomated,
		LastActivity: time.Now(),
	}}
	r.sessions[userID] = e
	r.logger.Debug("session created", "user_id", userID)
	return e
}

// GetOrCreate returns the session for a user, creating it on first contact.
func (r *Registry) GetOrCreate(userID string) Session {
	e := r.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	r.repairLocked(e)
	return e.s
}

// Get returns the session for a user, if one exists.
func (r *Registry) Get(userID string) (Session, bool) {
	r.mu.RLock()
	e, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	r.repairLocked(e)
	return e.s, true
}

// Transition applies a state machine event to a user's session. agentID is
// required for EventAgentAccept and ignored otherwise. On an invalid
// (state, event) pair the session is unchanged and ErrInvalidTransition is
// returned. Each call is linearized against other mutations for the same user.
func (r *Registry) Transition(userID string, ev Event, agentID string) (Session, error) {
	e := r.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	r.repairLocked(e)
	from := e.s.State

	switch {
	case from == StateAutomated && ev == EventEscalate:
		e.s.State = StatePendingHandoff
	case from == StatePendingHandoff && ev == EventAgentAccept:
		e.s.State = StateHumanAssisted
		e.s.PairedAgent = agentID
	case from == StateHumanAssisted && ev == EventResume,
		from == StatePendingHandoff && ev == EventResume:
		e.s.State = StateAutomated
		e.s.PairedAgent = ""
	default:
		r.logger.Warn("invalid session transition",
			"user_id", userID,
			"state", from,
			"event", ev)
		return e.s, ErrInvalidTransition
	}

	e.s.LastActivity = time.Now()
	r.logger.Info("session transition",
		"user_id", userID,
		"from", from,
		"to", e.s.State,
		"event", ev)
	return e.s, nil
}

// Resume moves a user back to Automated, clearing any pairing. Unlike
// Transition, resuming an already-Automated session is a silent no-op:
// it returns changed=false so callers skip notifications. The previous
// agent ID is returned so its room can be notified and torn down.
func (r *Registry) Resume(userID string) (prevAgent string, changed bool) {
	e := r.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	r.repairLocked(e)
	if e.s.State == StateAutomated {
		return "", false
	}

	prevAgent = e.s.PairedAgent
	from := e.s.State
	e.s.State = StateAutomated
	e.s.PairedAgent = ""
	e.s.LastActivity = time.Now()
	r.logger.Info("session resumed",
		"user_id", userID,
		"from", from,
		"prev_agent", prevAgent)
	return prevAgent, true
}

// AgentFor returns the CSR agent paired with a user, if any.
func (r *Registry) AgentFor(userID string) (string, bool) {
	s, ok := r.Get(userID)
	if !ok {
		return "", false
	}
	return s.AssistedBy()
}

// Touch updates the last-activity timestamp for a user's session.
func (r *Registry) Touch(userID string) {
	e := r.lookup(userID)
	e.mu.Lock()
	e.s.LastActivity = time.Now()
	e.mu.Unlock()
}

// Reset drops a user's session entirely. Used for explicit session end
// and by inactivity sweeps owned by the caller.
func (r *Registry) Reset(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[userID]; ok {
		delete(r.sessions, userID)
		r.logger.Info("session reset", "user_id", userID)
	}
}

// repairLocked enforces the pairing invariant: PairedAgent is set iff the
// session is HumanAssisted. A violation means registry corruption; the
// session is reset to Automated rather than propagating bad state.
// Must be called with the entry lock held.
func (r *Registry) repairLocked(e *entry) {
	assisted := e.s.State == StateHumanAssisted
	paired := e.s.PairedAgent != ""
	if assisted == paired {
		return
	}
	r.logger.Error("session invariant violation, resetting to automated",
		"user_id", e.s.UserID,
		"state", e.s.State,
		"paired_agent", e.s.PairedAgent)
	e.s.State = StateAutomated
	e.s.PairedAgent = ""
}
