// ABOUTME: Escalation controller deciding between automation, fallback, and human handoff
// ABOUTME: Owns the ordered responder chain and drives session transitions

package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deepika827/ChatbotRasa/internal/responder"
	"github.com/deepika827/ChatbotRasa/internal/room"
	"github.com/deepika827/ChatbotRasa/internal/session"
	"github.com/deepika827/ChatbotRasa/internal/store"
)

// ErrNotPaired is returned when an agent sends into a pairing that does
// not exist (or belongs to another agent).
var ErrNotPaired = errors.New("agent is not paired with this user")

// Delivery is one outbound message the gateway must handle, in order:
// persist first (when Persist is set), then publish to Room.
type Delivery struct {
	Room    string
	Event   *room.Event
	Persist bool

	// DedupeKey, when non-empty, lets the gateway suppress repeats of
	// this delivery within its dedupe window (used for join requests).
	DedupeKey string
}

// Dispatch is the controller's routing decision for one inbound event.
type Dispatch struct {
	UserID     string
	Deliveries []Delivery

	// DropRooms are torn down after the deliveries are published.
	DropRooms []string

	// ClearDedupe keys are forgotten so future broadcasts go out again.
	ClearDedupe []string
}

// Controller is the policy engine deciding when to leave automation and
// call for a human, and when to resume automation.
type Controller struct {
	registry *session.Registry
	chain    []responder.Responder
	policy   Policy
	logger   *slog.Logger
}

// NewController creates a controller over an ordered responder chain.
// The first engine is the primary (generative) responder; later engines
// are consulted only when earlier ones fail or answer with low
// confidence. Pass nil logger for default.
func NewController(registry *session.Registry, chain []responder.Responder, policy Policy, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		registry: registry,
		chain:    chain,
		policy:   policy,
		logger:   logger.With("component", "escalation"),
	}
}

// HandleUserMessage routes one inbound user message according to the
// session state. Responder calls happen here, outside any per-user lock;
// the resulting transition re-enters the registry's locked path.
func (c *Controller) HandleUserMessage(ctx context.Context, userID, text string, sc responder.SessionContext) *Dispatch {
	s := c.registry.GetOrCreate(userID)

	switch s.State {
	case session.StateHumanAssisted:
		if isResumeCommand(text) {
			return c.Resume(userID)
		}
		agentID, _ := s.AssistedBy()
		// One writer per direction: the raw message goes only into the
		// private agent room, never echoed back to user:<id>.
		return &Dispatch{
			UserID: userID,
			Deliveries: []Delivery{{
				Room:  room.AgentRoom(agentID, userID),
				Event: &room.Event{Type: room.TypeUserMessage, Sender: userID, Text: text, UserID: userID},
			}},
		}

	case session.StatePendingHandoff:
		if isResumeCommand(text) {
			return c.Resume(userID)
		}
		// No agent yet: the message is already persisted by the gateway;
		// nudge the agent pool again, deduplicated per user.
		return &Dispatch{
			UserID: userID,
			Deliveries: []Delivery{{
				Room:      room.BroadcastAgents,
				Event:     &room.Event{Type: room.TypeJoinRequest, UserID: userID, Text: joinRequest},
				DedupeKey: userID,
			}},
		}
	}

	// Automated: the keyword fast path always wins over the chain.
	if c.policy.wantsHuman(text) {
		c.logger.Info("handoff keyword detected", "user_id", userID)
		return c.escalate(userID, handoffNotice, nil)
	}

	reply := c.consult(ctx, userID, text, sc)
	if reply == nil {
		// Total failure: never escalate on transport errors everywhere,
		// a CSR would have no context to work with.
		return &Dispatch{
			UserID: userID,
			Deliveries: []Delivery{{
				Room:    room.UserRoom(userID),
				Event:   &room.Event{Type: room.TypeBotResponse, Sender: store.SenderBot, Text: apologyText},
				Persist: true,
			}},
		}
	}

	if reply.HandoffRequested {
		notice := reply.Text
		if notice == "" {
			notice = handoffNotice
		}
		return c.escalate(userID, notice, reply.Buttons)
	}

	return &Dispatch{
		UserID: userID,
		Deliveries: []Delivery{{
			Room: room.UserRoom(userID),
			Event: &room.Event{
				Type:    room.TypeBotResponse,
				Sender:  store.SenderBot,
				Text:    reply.Text,
				Buttons: buttons(reply.Buttons),
			},
			Persist: true,
		}},
	}
}

// consult walks the responder chain in order and returns the first usable
// reply, or nil when every engine failed or answered with low confidence.
// Each call gets its own deadline; a late reply is simply abandoned with
// its context, and the same engine is never retried for one message.
func (c *Controller) consult(ctx context.Context, userID, text string, sc responder.SessionContext) *responder.Reply {
	for _, eng := range c.chain {
		callCtx, cancel := context.WithTimeout(ctx, c.policy.ResponderTimeout)
		reply, err := eng.Respond(callCtx, text, sc)
		cancel()

		if err != nil {
			c.logger.Warn("responder failed, falling through",
				"engine", eng.Name(),
				"user_id", userID,
				"error", err)
			continue
		}
		if reply.HandoffRequested {
			c.logger.Info("responder requested handoff",
				"engine", eng.Name(),
				"user_id", userID)
			return reply
		}
		if c.policy.lowConfidence(reply.Text) {
			c.logger.Info("low-confidence reply discarded",
				"engine", eng.Name(),
				"user_id", userID)
			continue
		}
		return reply
	}
	return nil
}

// escalate transitions a user to PendingHandoff and builds the system
// notice plus the agent-pool broadcast.
func (c *Controller) escalate(userID, notice string, btns []responder.Button) *Dispatch {
	if _, err := c.registry.Transition(userID, session.EventEscalate, ""); err != nil {
		// Lost a race with a concurrent escalation; the broadcast is
		// already on its way, so stay quiet.
		c.logger.Warn("escalation skipped", "user_id", userID, "error", err)
		return &Dispatch{UserID: userID}
	}

	return &Dispatch{
		UserID: userID,
		Deliveries: []Delivery{
			{
				Room: room.UserRoom(userID),
				Event: &room.Event{
					Type:    room.TypeSystem,
					Sender:  store.SenderSystem,
					Text:    notice,
					Buttons: buttons(btns),
				},
				Persist: true,
			},
			{
				Room:      room.BroadcastAgents,
				Event:     &room.Event{Type: room.TypeJoinRequest, UserID: userID, Text: joinRequest},
				DedupeKey: userID,
			},
		},
	}
}

// Accept handles an agent accepting a pending handoff. First acceptor
// wins; anything else gets session.ErrInvalidTransition back.
func (c *Controller) Accept(agentID, userID string) (*Dispatch, error) {
	if _, err := c.registry.Transition(userID, session.EventAgentAccept, agentID); err != nil {
		return nil, fmt.Errorf("accepting handoff for %s: %w", userID, err)
	}

	c.logger.Info("handoff accepted", "agent_id", agentID, "user_id", userID)
	return &Dispatch{
		UserID: userID,
		Deliveries: []Delivery{
			{
				Room: room.UserRoom(userID),
				Event: &room.Event{
					Type:   room.TypeSystem,
					Sender: store.SenderSystem,
					Text:   fmt.Sprintf("CSR %s has joined the chat. You are now talking to a human agent.", agentID),
				},
				Persist: true,
			},
			{
				Room: room.AgentRoom(agentID, userID),
				Event: &room.Event{
					Type:   room.TypeSystem,
					Sender: store.SenderSystem,
					Text:   fmt.Sprintf("You have joined %s's chat. You can now assist them.", userID),
				},
			},
		},
		ClearDedupe: []string{userID},
	}, nil
}

// Resume moves a user back to automation. Idempotent: resuming an
// already-Automated session yields an empty dispatch, no notifications.
// The private room teardown is ordered before any new message routing
// because the gateway applies DropRooms before handling further events.
func (c *Controller) Resume(userID string) *Dispatch {
	prevAgent, changed := c.registry.Resume(userID)
	if !changed {
		return &Dispatch{UserID: userID}
	}

	d := &Dispatch{
		UserID: userID,
		Deliveries: []Delivery{{
			Room:    room.UserRoom(userID),
			Event:   &room.Event{Type: room.TypeBotResponse, Sender: store.SenderBot, Text: resumedNotice},
			Persist: true,
		}},
		ClearDedupe: []string{userID},
	}
	if prevAgent != "" {
		agentRoom := room.AgentRoom(prevAgent, userID)
		d.Deliveries = append(d.Deliveries, Delivery{
			Room: agentRoom,
			Event: &room.Event{
				Type:   room.TypeSystem,
				Sender: store.SenderSystem,
				Text:   fmt.Sprintf("User %s has resumed conversation with bot. Handoff session ended.", userID),
			},
		})
		d.DropRooms = append(d.DropRooms, agentRoom)
	}
	return d
}

// RelayAgentMessage routes a CSR message to its paired user. The event
// goes only to user:<id>; the agent's own room never sees an echo.
func (c *Controller) RelayAgentMessage(agentID, userID, text string) (*Dispatch, error) {
	paired, ok := c.registry.AgentFor(userID)
	if !ok || paired != agentID {
		return nil, fmt.Errorf("relaying message from %s to %s: %w", agentID, userID, ErrNotPaired)
	}

	return &Dispatch{
		UserID: userID,
		Deliveries: []Delivery{{
			Room: room.UserRoom(userID),
			Event: &room.Event{
				Type:   room.TypeAgentMessage,
				Sender: store.AgentSender(agentID),
				Text:   text,
			},
			Persist: true,
		}},
	}, nil
}

// buttons converts responder quick replies to the wire shape.
func buttons(in []responder.Button) []room.Button {
	if len(in) == 0 {
		return nil
	}
	out := make([]room.Button, len(in))
	for i, b := range in {
		out[i] = room.Button{Title: b.Title, Payload: b.Payload}
	}
	return out
}
