// ABOUTME: Conversation gateway tying connections, sessions, rooms, and the escalation controller together
// ABOUTME: Persists before publishing and applies controller dispatches in order

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deepika827/ChatbotRasa/internal/auth"
	"github.com/deepika827/ChatbotRasa/internal/dedupe"
	"github.com/deepika827/ChatbotRasa/internal/escalation"
	"github.com/deepika827/ChatbotRasa/internal/responder"
	"github.com/deepika827/ChatbotRasa/internal/room"
	"github.com/deepika827/ChatbotRasa/internal/session"
	"github.com/deepika827/ChatbotRasa/internal/store"
)

const (
	// welcomeText greets every new user connection.
	welcomeText = "Hello! I'm your virtual assistant. How can I help you today? Type 'human' anytime to talk to an agent."

	// historyLimit bounds the transcript slice handed to responders.
	historyLimit = 10
)

// Gateway routes inbound client events through the escalation controller
// and fans the resulting deliveries out to rooms. All persistence happens
// here: a message is recorded before it is forwarded.
type Gateway struct {
	registry *session.Registry
	rooms    *room.Router
	ctrl     *escalation.Controller
	store    store.Store
	dedupe   *dedupe.Cache

	// verifier checks agent tokens; nil disables verification (dev mode).
	verifier auth.TokenVerifier

	logger *slog.Logger
}

// Options carries the gateway's collaborators.
type Options struct {
	Registry   *session.Registry
	Rooms      *room.Router
	Controller *escalation.Controller
	Store      store.Store
	Dedupe     *dedupe.Cache
	Verifier   auth.TokenVerifier
	Logger     *slog.Logger
}

// New creates a gateway. Registry, Rooms, Controller, Store, and Dedupe
// are required; Verifier and Logger are optional.
func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		registry: opts.Registry,
		rooms:    opts.Rooms,
		ctrl:     opts.Controller,
		store:    opts.Store,
		dedupe:   opts.Dedupe,
		verifier: opts.Verifier,
		logger:   logger.With("component", "gateway"),
	}
}

// Connect attaches a connection and returns its event sink. The caller
// drains the channel until Disconnect closes it.
func (g *Gateway) Connect(connID string) <-chan *room.Event {
	events := g.rooms.Attach(connID)
	g.logger.Debug("connection attached", "conn_id", connID)
	return events
}

// Disconnect detaches a connection and closes its sink. Session state is
// untouched so a user can reconnect mid-handoff.
func (g *Gateway) Disconnect(connID string) {
	g.rooms.Detach(connID)
	g.logger.Debug("connection detached", "conn_id", connID)
}

// JoinUser binds a connection to a user identity: the connection starts
// receiving everything published to user:<id>, and gets the welcome.
func (g *Gateway) JoinUser(connID, userID string) error {
	if err := g.rooms.Subscribe(connID, room.UserRoom(userID)); err != nil {
		return fmt.Errorf("joining user room: %w", err)
	}
	g.registry.GetOrCreate(userID)
	g.rooms.Send(connID, &room.Event{
		Type:      room.TypeWelcome,
		Sender:    store.SenderBot,
		Text:      welcomeText,
		Timestamp: time.Now().UTC(),
	})
	g.logger.Info("user joined", "conn_id", connID, "user_id", userID)
	return nil
}

// JoinAgent binds a connection to a CSR identity and subscribes it to the
// shared agent broadcast room. When a verifier is configured the token is
// mandatory and its subject overrides the claimed agent ID.
func (g *Gateway) JoinAgent(connID, agentID, token string) (string, error) {
	if g.verifier != nil {
		verified, err := g.verifier.Verify(token)
		if err != nil {
			g.logger.Warn("agent token rejected", "conn_id", connID, "error", err)
			return "", fmt.Errorf("verifying agent token: %w", err)
		}
		agentID = verified
	}
	if agentID == "" {
		return "", fmt.Errorf("joining agent room: %w", auth.ErrMissingClaim)
	}
	if err := g.rooms.Subscribe(connID, room.BroadcastAgents); err != nil {
		return "", fmt.Errorf("joining agent room: %w", err)
	}
	g.logger.Info("agent joined", "conn_id", connID, "agent_id", agentID)
	return agentID, nil
}

// AcceptHandoff pairs an agent with a pending user. On success the
// accepting connection is subscribed to the private room before the join
// notices go out, so the agent sees them. First acceptor wins; losers get
// session.ErrInvalidTransition wrapped.
func (g *Gateway) AcceptHandoff(ctx context.Context, connID, agentID, userID string) error {
	d, err := g.ctrl.Accept(agentID, userID)
	if err != nil {
		return err
	}

	if err := g.rooms.Subscribe(connID, room.AgentRoom(agentID, userID)); err != nil {
		return fmt.Errorf("joining private room: %w", err)
	}
	g.apply(ctx, d)
	return nil
}

// UserMessage records an inbound user message, assembles the responder
// context from recent history, and applies the controller's dispatch.
func (g *Gateway) UserMessage(ctx context.Context, userID, text string) {
	inbound := &store.Message{
		UserID:  userID,
		Sender:  store.SenderUser,
		Text:    text,
		Channel: room.UserRoom(userID),
	}
	if err := g.store.SaveMessage(ctx, inbound); err != nil {
		g.logger.Error("persisting user message failed", "user_id", userID, "error", err)
	}

	recent, err := g.store.RecentMessages(ctx, userID, historyLimit)
	if err != nil {
		g.logger.Warn("loading history failed, continuing without", "user_id", userID, "error", err)
		recent = nil
	}

	d := g.ctrl.HandleUserMessage(ctx, userID, text, responder.SessionContext{
		UserID:   userID,
		SenderID: userID,
		Recent:   recent,
	})
	g.apply(ctx, d)
	g.registry.Touch(userID)
}

// AgentMessage relays a CSR message to its paired user.
func (g *Gateway) AgentMessage(ctx context.Context, agentID, userID, text string) error {
	d, err := g.ctrl.RelayAgentMessage(agentID, userID, text)
	if err != nil {
		return err
	}
	g.apply(ctx, d)
	return nil
}

// Resume returns a user to automation regardless of who asked.
func (g *Gateway) Resume(ctx context.Context, userID string) {
	g.apply(ctx, g.ctrl.Resume(userID))
}

// History returns a user's transcript, oldest first.
func (g *Gateway) History(ctx context.Context, userID string, limit int) ([]*store.Message, error) {
	return g.store.RecentMessages(ctx, userID, limit)
}

// apply executes one dispatch: dedupe check, persist, publish, each
// delivery in order, then room teardown and dedupe resets.
func (g *Gateway) apply(ctx context.Context, d *escalation.Dispatch) {
	if d == nil {
		return
	}

	for _, del := range d.Deliveries {
		if del.DedupeKey != "" && g.dedupe.CheckAndMark(del.DedupeKey) {
			g.logger.Debug("duplicate delivery suppressed", "room", del.Room, "key", del.DedupeKey)
			continue
		}

		if del.Event.Timestamp.IsZero() {
			del.Event.Timestamp = time.Now().UTC()
		}

		if del.Persist {
			msg := &store.Message{
				UserID:    d.UserID,
				Sender:    del.Event.Sender,
				Text:      del.Event.Text,
				Channel:   del.Room,
				CreatedAt: del.Event.Timestamp,
			}
			if err := g.store.SaveMessage(ctx, msg); err != nil {
				g.logger.Error("persisting outbound message failed",
					"user_id", d.UserID,
					"room", del.Room,
					"error", err)
			}
		}

		g.rooms.Publish(del.Room, del.Event)
	}

	for _, rm := range d.DropRooms {
		g.rooms.DropRoom(rm)
	}
	for _, key := range d.ClearDedupe {
		g.dedupe.Forget(key)
	}
}
