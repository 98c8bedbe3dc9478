// ABOUTME: Rule-based dialogue responder speaking the Rasa REST webhook protocol
// ABOUTME: Collapses the webhook's message array into a single Reply with a structured handoff flag

package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// RasaResponder is the secondary engine: a rule-based dialogue manager
// reached over its REST webhook. Unlike the generative engine it signals
// handoff through a structured field, not a sentinel string.
type RasaResponder struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRasaResponder creates a responder for the given webhook URL
// (e.g. "http://localhost:5005/webhooks/rest/webhook"). Pass nil logger
// for default. The HTTP client carries no timeout of its own; deadlines
// come from the caller's context.
func NewRasaResponder(webhookURL string, logger *slog.Logger) *RasaResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return &RasaResponder{
		webhookURL: webhookURL,
		httpClient: &http.Client{},
		logger:     logger.With("component", "responder", "engine", "rasa"),
	}
}

// Name identifies the engine in logs.
func (r *RasaResponder) Name() string { return "rasa" }

// webhookMessage is one element of the webhook's response array.
type webhookMessage struct {
	Text        string         `json:"text"`
	Buttons     []Button       `json:"buttons"`
	Custom      map[string]any `json:"custom"`
	JSONMessage map[string]any `json:"json_message"`
}

// Respond posts {sender, message} to the webhook and folds the returned
// message array into one Reply: texts joined by a space, buttons
// concatenated, handoff set if any element carries it.
func (r *RasaResponder) Respond(ctx context.Context, text string, sc SessionContext) (*Reply, error) {
	payload, err := json.Marshal(map[string]string{
		"sender":  sc.SenderID,
		"message": text,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		r.logger.Warn("webhook request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: webhook status %d", ErrUnavailable, resp.StatusCode)
	}

	var msgs []webhookMessage
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("%w: decoding webhook response: %v", ErrUnavailable, err)
	}

	reply := &Reply{}
	var texts []string
	for _, m := range msgs {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
		reply.Buttons = append(reply.Buttons, m.Buttons...)
		if handoffFlag(m.Custom) || handoffFlag(m.JSONMessage) {
			reply.HandoffRequested = true
		}
	}
	reply.Text = strings.Join(texts, " ")

	r.logger.Debug("webhook reply",
		"sender_id", sc.SenderID,
		"messages", len(msgs),
		"handoff", reply.HandoffRequested)
	return reply, nil
}

// handoffFlag reports whether a custom payload carries {"handoff": true}.
func handoffFlag(m map[string]any) bool {
	v, ok := m["handoff"].(bool)
	return ok && v
}
