// ABOUTME: Websocket transport: one goroutine pair per connection
// ABOUTME: Read loop dispatches client events, write loop drains the room sink

package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/deepika827/ChatbotRasa/internal/room"
	"github.com/deepika827/ChatbotRasa/internal/store"
)

// wsSession is the per-connection state for one websocket client. A
// connection can hold a user identity, an agent identity, or neither.
type wsSession struct {
	gw     *Gateway
	ws     *websocket.Conn
	connID string
	logger *slog.Logger

	userID  string
	agentID string
}

// HandleWS upgrades the request and runs the session until the client
// disconnects or the server shuts down.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request, originPatterns []string) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns,
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	connID := uuid.New().String()
	s := &wsSession{
		gw:     g,
		ws:     ws,
		connID: connID,
		logger: g.logger.With("conn_id", connID),
	}
	s.run(r.Context())
}

func (s *wsSession) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := s.gw.Connect(s.connID)
	defer s.gw.Disconnect(s.connID)
	defer func() {
		_ = s.ws.Close(websocket.StatusNormalClosure, "session ended")
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		s.writeLoop(ctx, events)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.readLoop(ctx)
	}()
	wg.Wait()
	s.logger.Debug("websocket session ended")
}

// writeLoop pushes room events to the client until the sink closes.
func (s *wsSession) writeLoop(ctx context.Context, events <-chan *room.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("marshaling event failed", "error", err)
				continue
			}
			if err := s.ws.Write(ctx, websocket.MessageText, data); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// readLoop decodes inbound client events and dispatches them.
func (s *wsSession) readLoop(ctx context.Context) {
	for {
		_, data, err := s.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				s.logger.Debug("websocket closed by client")
			} else if ctx.Err() == nil {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var ev ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("malformed client event dropped", "error", err)
			continue
		}
		s.dispatch(ctx, ev)
	}
}

func (s *wsSession) dispatch(ctx context.Context, ev ClientEvent) {
	switch ev.Event {
	case EventUserRoom:
		userID := ev.UserID
		if userID == "" {
			userID = uuid.New().String()
		}
		if err := s.gw.JoinUser(s.connID, userID); err != nil {
			s.logger.Error("user join failed", "error", err)
			return
		}
		s.userID = userID

	case EventAgentRoom:
		agentID, err := s.gw.JoinAgent(s.connID, ev.AgentID, ev.Token)
		if err != nil {
			s.notify("Authentication failed. Check your agent token.")
			return
		}
		s.agentID = agentID

	case EventAcceptHandoff:
		if s.agentID == "" {
			s.notify("Join the agent room before accepting handoffs.")
			return
		}
		if err := s.gw.AcceptHandoff(ctx, s.connID, s.agentID, ev.UserID); err != nil {
			s.logger.Info("handoff accept rejected", "agent_id", s.agentID, "user_id", ev.UserID, "error", err)
			s.notify("This chat has already been taken by another agent.")
		}

	case EventMessage:
		if s.userID == "" {
			s.notify("Join a user room before sending messages.")
			return
		}
		s.gw.UserMessage(ctx, s.userID, ev.Text)

	case EventAgentMessage:
		if s.agentID == "" {
			s.notify("Join the agent room before sending messages.")
			return
		}
		if err := s.gw.AgentMessage(ctx, s.agentID, ev.UserID, ev.Text); err != nil {
			s.notify("You are not paired with this user.")
		}

	case EventResume:
		userID := ev.UserID
		if userID == "" {
			userID = s.userID
		}
		if userID == "" {
			return
		}
		s.gw.Resume(ctx, userID)

	default:
		s.logger.Warn("unknown client event dropped", "event", ev.Event)
	}
}

// notify sends a system event to this connection only.
func (s *wsSession) notify(text string) {
	s.gw.rooms.Send(s.connID, &room.Event{
		Type:   room.TypeSystem,
		Sender: store.SenderSystem,
		Text:   text,
	})
}
