// ABOUTME: Tests for the Rasa webhook responder
// ABOUTME: Covers message folding, structured handoff, buttons, timeout and status failures

package responder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRasaResponder_FoldsMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "sess-1", body["sender"])
		assert.Equal(t, "hello", body["message"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"text": "Hi there!"},
			{"text": "How can I help?", "buttons": [{"title": "Billing", "payload": "/billing"}]}
		]`))
	}))
	defer srv.Close()

	r := NewRasaResponder(srv.URL, nil)
	reply, err := r.Respond(context.Background(), "hello", SessionContext{SenderID: "sess-1"})
	require.NoError(t, err)

	assert.Equal(t, "Hi there! How can I help?", reply.Text)
	assert.False(t, reply.HandoffRequested)
	require.Len(t, reply.Buttons, 1)
	assert.Equal(t, "Billing", reply.Buttons[0].Title)
}

func TestRasaResponder_StructuredHandoffSignal(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{
			"custom field",
			`[{"text": "Connecting you...", "custom": {"handoff": true, "user": "sess-1"}}]`,
			true,
		},
		{
			"json_message field",
			`[{"text": "Connecting you...", "json_message": {"handoff": true}}]`,
			true,
		},
		{
			"handoff false",
			`[{"text": "ok", "custom": {"handoff": false}}]`,
			false,
		},
		{
			"no signal",
			`[{"text": "ok"}]`,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			r := NewRasaResponder(srv.URL, nil)
			reply, err := r.Respond(context.Background(), "human please", SessionContext{SenderID: "s"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.HandoffRequested)
		})
	}
}

func TestRasaResponder_NonOKStatusIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewRasaResponder(srv.URL, nil)
	_, err := r.Respond(context.Background(), "hi", SessionContext{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRasaResponder_MalformedBodyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"not": "an array"}`))
	}))
	defer srv.Close()

	r := NewRasaResponder(srv.URL, nil)
	_, err := r.Respond(context.Background(), "hi", SessionContext{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRasaResponder_DeadlineIsTimeout(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		close(started)
		<-req.Context().Done()
	}))
	defer srv.Close()

	r := NewRasaResponder(srv.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Respond(ctx, "hi", SessionContext{})
	<-started
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRasaResponder_UnreachableIsUnavailable(t *testing.T) {
	r := NewRasaResponder("http://127.0.0.1:1/webhooks/rest/webhook", nil)
	_, err := r.Respond(context.Background(), "hi", SessionContext{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRasaResponder_EmptyResponseArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	r := NewRasaResponder(srv.URL, nil)
	reply, err := r.Respond(context.Background(), "hi", SessionContext{})
	require.NoError(t, err)
	assert.Empty(t, reply.Text)
	assert.False(t, reply.HandoffRequested)
}
