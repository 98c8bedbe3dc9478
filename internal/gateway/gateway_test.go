// ABOUTME: End-to-end tests for the gateway over an in-memory store
// ABOUTME: Exercises join, bot replies, escalation, handoff, relay, and resume

package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepika827/ChatbotRasa/internal/auth"
	"github.com/deepika827/ChatbotRasa/internal/dedupe"
	"github.com/deepika827/ChatbotRasa/internal/escalation"
	"github.com/deepika827/ChatbotRasa/internal/responder"
	"github.com/deepika827/ChatbotRasa/internal/room"
	"github.com/deepika827/ChatbotRasa/internal/session"
	"github.com/deepika827/ChatbotRasa/internal/store"
)

// memStore is an in-memory transcript log for tests.
type memStore struct {
	mu   sync.Mutex
	msgs []*store.Message
}

func (m *memStore) SaveMessage(_ context.Context, msg *store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *msg
	if saved.ID == "" {
		saved.ID = uuid.New().String()
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now().UTC()
	}
	m.msgs = append(m.msgs, &saved)
	return nil
}

func (m *memStore) RecentMessages(_ context.Context, userID string, limit int) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Message
	for _, msg := range m.msgs {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

type fakeResponder struct {
	reply *responder.Reply
	err   error
}

func (f *fakeResponder) Respond(_ context.Context, _ string, _ responder.SessionContext) (*responder.Reply, error) {
	return f.reply, f.err
}

func (f *fakeResponder) Name() string { return "fake" }

type fixture struct {
	gw    *Gateway
	store *memStore
	reg   *session.Registry
}

func newFixture(t *testing.T, verifier auth.TokenVerifier, engines ...responder.Responder) *fixture {
	t.Helper()
	reg := session.NewRegistry(nil)
	rooms := room.NewRouter(nil)
	st := &memStore{}
	gw := New(Options{
		Registry:   reg,
		Rooms:      rooms,
		Controller: escalation.NewController(reg, engines, escalation.DefaultPolicy(), nil),
		Store:      st,
		Dedupe:     dedupe.New(time.Minute, 100),
		Verifier:   verifier,
	})
	return &fixture{gw: gw, store: st, reg: reg}
}

// drain collects everything currently buffered on a sink.
func drain(ch <-chan *room.Event) []*room.Event {
	var out []*room.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(evs []*room.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestGateway_UserJoinReceivesWelcome(t *testing.T) {
	f := newFixture(t, nil)

	sink := f.gw.Connect("c1")
	require.NoError(t, f.gw.JoinUser("c1", "alice"))

	evs := drain(sink)
	require.Len(t, evs, 1)
	assert.Equal(t, room.TypeWelcome, evs[0].Type)
	assert.NotEmpty(t, evs[0].Text)
	assert.False(t, evs[0].Timestamp.IsZero())
}

func TestGateway_BotReplyRoundTrip(t *testing.T) {
	bot := &fakeResponder{reply: &responder.Reply{Text: "Our store opens at 9am."}}
	f := newFixture(t, nil, bot)

	sink := f.gw.Connect("c1")
	require.NoError(t, f.gw.JoinUser("c1", "alice"))
	drain(sink)

	f.gw.UserMessage(context.Background(), "alice", "when do you open")

	evs := drain(sink)
	require.Len(t, evs, 1)
	assert.Equal(t, room.TypeBotResponse, evs[0].Type)
	assert.Equal(t, "Our store opens at 9am.", evs[0].Text)

	// Both directions land in the transcript, user first.
	msgs, err := f.store.RecentMessages(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.SenderUser, msgs[0].Sender)
	assert.Equal(t, store.SenderBot, msgs[1].Sender)
}

func TestGateway_EscalationNotifiesAgentPool(t *testing.T) {
	bot := &fakeResponder{reply: &responder.Reply{Text: "unused"}}
	f := newFixture(t, nil, bot)

	userSink := f.gw.Connect("u1")
	require.NoError(t, f.gw.JoinUser("u1", "alice"))
	drain(userSink)

	agentSink := f.gw.Connect("a1")
	_, err := f.gw.JoinAgent("a1", "csr1", "")
	require.NoError(t, err)

	f.gw.UserMessage(context.Background(), "alice", "I want to speak to a human")

	userEvs := drain(userSink)
	require.Len(t, userEvs, 1)
	assert.Equal(t, room.TypeSystem, userEvs[0].Type)

	agentEvs := drain(agentSink)
	require.Len(t, agentEvs, 1)
	assert.Equal(t, room.TypeJoinRequest, agentEvs[0].Type)
	assert.Equal(t, "alice", agentEvs[0].UserID)

	// Repeat messages while pending do not spam the pool.
	f.gw.UserMessage(context.Background(), "alice", "anyone?")
	assert.Empty(t, drain(agentSink), "join request is deduplicated per user")
}

func TestGateway_HandoffPrivateRoomFlow(t *testing.T) {
	bot := &fakeResponder{reply: &responder.Reply{Text: "unused"}}
	f := newFixture(t, nil, bot)

	userSink := f.gw.Connect("u1")
	require.NoError(t, f.gw.JoinUser("u1", "alice"))
	agentSink := f.gw.Connect("a1")
	_, err := f.gw.JoinAgent("a1", "csr1", "")
	require.NoError(t, err)

	f.gw.UserMessage(context.Background(), "alice", "get me a live agent")
	drain(userSink)
	drain(agentSink)

	require.NoError(t, f.gw.AcceptHandoff(context.Background(), "a1", "csr1", "alice"))

	userEvs := drain(userSink)
	require.Len(t, userEvs, 1)
	assert.Equal(t, room.TypeSystem, userEvs[0].Type)
	assert.Contains(t, userEvs[0].Text, "csr1")

	agentEvs := drain(agentSink)
	require.Len(t, agentEvs, 1)
	assert.Equal(t, room.TypeSystem, agentEvs[0].Type)

	// User messages flow only into the private room, never echoed back.
	f.gw.UserMessage(context.Background(), "alice", "my order never arrived")
	assert.Empty(t, drain(userSink), "no echo to the user room while assisted")
	agentEvs = drain(agentSink)
	require.Len(t, agentEvs, 1)
	assert.Equal(t, room.TypeUserMessage, agentEvs[0].Type)
	assert.Equal(t, "my order never arrived", agentEvs[0].Text)

	// Agent replies flow to the user and are persisted with agent sender.
	require.NoError(t, f.gw.AgentMessage(context.Background(), "csr1", "alice", "let me check"))
	userEvs = drain(userSink)
	require.Len(t, userEvs, 1)
	assert.Equal(t, room.TypeAgentMessage, userEvs[0].Type)
	assert.Equal(t, store.AgentSender("csr1"), userEvs[0].Sender)

	msgs, err := f.store.RecentMessages(context.Background(), "alice", 20)
	require.NoError(t, err)
	last := msgs[len(msgs)-1]
	assert.Equal(t, store.AgentSender("csr1"), last.Sender)
}

func TestGateway_SecondAcceptorIsRejected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.reg.Transition("alice", session.EventEscalate, "")
	require.NoError(t, err)

	f.gw.Connect("a1")
	_, err = f.gw.JoinAgent("a1", "csr1", "")
	require.NoError(t, err)
	f.gw.Connect("a2")
	_, err = f.gw.JoinAgent("a2", "csr2", "")
	require.NoError(t, err)

	require.NoError(t, f.gw.AcceptHandoff(context.Background(), "a1", "csr1", "alice"))
	err = f.gw.AcceptHandoff(context.Background(), "a2", "csr2", "alice")
	assert.ErrorIs(t, err, session.ErrInvalidTransition)
}

func TestGateway_UnpairedAgentCannotRelay(t *testing.T) {
	f := newFixture(t, nil)

	err := f.gw.AgentMessage(context.Background(), "csr9", "alice", "hello")
	assert.ErrorIs(t, err, escalation.ErrNotPaired)
}

func TestGateway_ResumeTearsDownAndReEnablesBot(t *testing.T) {
	bot := &fakeResponder{reply: &responder.Reply{Text: "Back to automation."}}
	f := newFixture(t, nil, bot)

	userSink := f.gw.Connect("u1")
	require.NoError(t, f.gw.JoinUser("u1", "alice"))
	agentSink := f.gw.Connect("a1")
	_, err := f.gw.JoinAgent("a1", "csr1", "")
	require.NoError(t, err)

	f.gw.UserMessage(context.Background(), "alice", "human please")
	require.NoError(t, f.gw.AcceptHandoff(context.Background(), "a1", "csr1", "alice"))
	drain(userSink)
	drain(agentSink)

	f.gw.UserMessage(context.Background(), "alice", "resume")

	userEvs := drain(userSink)
	require.Len(t, userEvs, 1)
	assert.Equal(t, room.TypeBotResponse, userEvs[0].Type)

	agentEvs := drain(agentSink)
	require.Len(t, agentEvs, 1)
	assert.Equal(t, room.TypeSystem, agentEvs[0].Type, "paired agent is told the session ended")

	// Bot handles traffic again.
	f.gw.UserMessage(context.Background(), "alice", "one more question")
	userEvs = drain(userSink)
	require.Equal(t, []string{room.TypeBotResponse}, eventTypes(userEvs))
	assert.Equal(t, "Back to automation.", userEvs[0].Text)

	// The private room is gone: nothing reaches the old agent.
	assert.Empty(t, drain(agentSink))

	// A fresh escalation broadcasts again (dedupe was cleared on accept).
	f.gw.UserMessage(context.Background(), "alice", "talk to human again")
	agentEvs = drain(agentSink)
	require.Len(t, agentEvs, 1)
	assert.Equal(t, room.TypeJoinRequest, agentEvs[0].Type)
}

func TestGateway_ResumeIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	userSink := f.gw.Connect("u1")
	require.NoError(t, f.gw.JoinUser("u1", "alice"))
	drain(userSink)

	f.gw.Resume(context.Background(), "alice")
	assert.Empty(t, drain(userSink), "resuming an automated session is silent")
}

func TestGateway_AgentTokenVerification(t *testing.T) {
	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	f := newFixture(t, verifier)

	f.gw.Connect("a1")

	_, err := f.gw.JoinAgent("a1", "csr1", "not-a-token")
	assert.Error(t, err)

	token, err := verifier.Generate("csr7", time.Hour)
	require.NoError(t, err)

	agentID, err := f.gw.JoinAgent("a1", "someone-else", token)
	require.NoError(t, err)
	assert.Equal(t, "csr7", agentID, "token subject overrides the claimed ID")
}

func TestGateway_HistoryIsChronological(t *testing.T) {
	bot := &fakeResponder{reply: &responder.Reply{Text: "reply"}}
	f := newFixture(t, nil, bot)

	f.gw.Connect("u1")
	require.NoError(t, f.gw.JoinUser("u1", "alice"))

	f.gw.UserMessage(context.Background(), "alice", "first")
	f.gw.UserMessage(context.Background(), "alice", "second")

	msgs, err := f.gw.History(context.Background(), "alice", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[2].Text)
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}

func TestGateway_ApologyWhenChainEmpty(t *testing.T) {
	f := newFixture(t, nil)

	userSink := f.gw.Connect("u1")
	require.NoError(t, f.gw.JoinUser("u1", "alice"))
	drain(userSink)

	f.gw.UserMessage(context.Background(), "alice", "what is the answer")

	evs := drain(userSink)
	require.Len(t, evs, 1)
	assert.Equal(t, room.TypeBotResponse, evs[0].Type)
	assert.Contains(t, evs[0].Text, "trouble processing")
}
