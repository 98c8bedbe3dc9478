// ABOUTME: Room router delivering events to exactly the subscribed connection set
// ABOUTME: In-memory fan-out with non-blocking sends, modeled as named delivery groups

package room

import (
	"errors"
	"log/slog"
	"sync"
)

const (
	// connBufferSize is the channel buffer for each attached connection.
	connBufferSize = 64

	// BroadcastAgents is the room every CSR agent joins. Pending handoffs
	// are announced here.
	BroadcastAgents = "broadcast:agents"
)

// ErrUnknownConnection is returned when subscribing a connection that was
// never attached (or was already detached).
var ErrUnknownConnection = errors.New("unknown connection")

// UserRoom returns the delivery room for a user, e.g. "user:alice".
// Every connected user is addressed exclusively through this room.
func UserRoom(userID string) string {
	return "user:" + userID
}

// AgentRoom returns the private per-pairing room, e.g. "agent:csr1:alice".
// Only the paired agent subscribes; the user never does, so the agent's
// own messages can't loop back.
func AgentRoom(agentID, userID string) string {
	return "agent:" + agentID + ":" + userID
}

// conn is one attached connection: its event sink plus the rooms it joined.
type conn struct {
	ch    chan *Event
	rooms map[string]bool
}

// Router maintains named rooms and fans events out to every connection
// currently subscribed to a room, and to no others.
type Router struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]bool // room -> set of connIDs
	conns  map[string]*conn
	logger *slog.Logger
}

// NewRouter creates an empty router. Pass nil logger for default.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		rooms:  make(map[string]map[string]bool),
		conns:  make(map[string]*conn),
		logger: logger.With("component", "room"),
	}
}

// Attach registers a connection and returns its event sink. The channel is
// closed on Detach. Attaching an existing connection replaces its sink and
// drops its previous subscriptions.
func (r *Router) Attach(connID string) <-chan *Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[connID]; ok {
		r.detachLocked(connID, old)
	}

	c := &conn{
		ch:    make(chan *Event, connBufferSize),
		rooms: make(map[string]bool),
	}
	r.conns[connID] = c
	r.logger.Debug("connection attached", "conn_id", connID)
	return c.ch
}

// Subscribe adds a connection to a room, creating the room on first use.
func (r *Router) Subscribe(connID, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}

	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(map[string]bool)
	}
	r.rooms[room][connID] = true
	c.rooms[room] = true

	r.logger.Debug("subscribed", "conn_id", connID, "room", room)
	return nil
}

// Unsubscribe removes a connection from a room. Unknown rooms or
// connections are a no-op.
func (r *Router) Unsubscribe(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(connID, room)
}

func (r *Router) unsubscribeLocked(connID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if c, ok := r.conns[connID]; ok {
		delete(c.rooms, room)
	}
}

// Publish fans an event out to every current subscriber of a room.
// Publishing to an unknown or empty room is a no-op, not an error: the
// counterpart may reconnect later and simply misses events published
// while absent. Sends are non-blocking; a full sink drops the event.
func (r *Router) Publish(room string, event *Event) {
	r.mu.RLock()
	members, ok := r.rooms[room]
	if !ok || len(members) == 0 {
		r.mu.RUnlock()
		return
	}

	// Copy sinks under the read lock so sends happen outside it
	targets := make([]chan *Event, 0, len(members))
	for connID := range members {
		if c, ok := r.conns[connID]; ok {
			targets = append(targets, c.ch)
		}
	}
	r.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			r.logger.Debug("dropped event for slow connection",
				"room", room,
				"event", event.Type)
		}
	}
}

// Send delivers an event to one connection only, regardless of rooms.
// Used for the welcome event on connect.
func (r *Router) Send(connID string, event *Event) {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.ch <- event:
	default:
		r.logger.Debug("dropped event for slow connection",
			"conn_id", connID,
			"event", event.Type)
	}
}

// DropRoom removes a room and all its subscriptions. Connections stay
// attached. Used to tear down private agent rooms on resume.
func (r *Router) DropRoom(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return
	}
	for connID := range members {
		if c, ok := r.conns[connID]; ok {
			delete(c.rooms, room)
		}
	}
	delete(r.rooms, room)
	r.logger.Debug("room dropped", "room", room)
}

// Detach removes all of a connection's subscriptions and closes its sink.
func (r *Router) Detach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return
	}
	r.detachLocked(connID, c)
}

// detachLocked removes a connection. Must be called with mu held.
func (r *Router) detachLocked(connID string, c *conn) {
	for room := range c.rooms {
		if members, ok := r.rooms[room]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	delete(r.conns, connID)
	close(c.ch)
	r.logger.Debug("connection detached", "conn_id", connID)
}

// Subscribers returns how many connections are currently in a room.
func (r *Router) Subscribers(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
