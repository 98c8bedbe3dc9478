// ABOUTME: Generative responder backed by an OpenAI-compatible chat completion API
// ABOUTME: Prompts the model to answer only from known data, with an explicit no-data sentinel

package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/deepika827/ChatbotRasa/internal/store"
)

// Sentinel is the exact token the generative model is instructed to emit
// when its data sources do not cover the question. The escalation
// controller discards any reply containing it.
const Sentinel = "NO_RELEVANT_DATA_FOUND"

const systemPrompt = `You are a customer-support assistant. Answer only from the
conversation history and the data you were given. Keep answers short and
factual. If the available data does not contain the exact information
requested, you MUST respond with exactly: ` + Sentinel

// OpenAIConfig configures the generative responder.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for OpenAI-compatible local servers
}

// OpenAIResponder is the primary engine of the chain: a chat completion
// call against an OpenAI-compatible endpoint.
type OpenAIResponder struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIResponder creates the generative responder. Pass nil logger
// for default.
func NewOpenAIResponder(cfg OpenAIConfig, logger *slog.Logger) *OpenAIResponder {
	if logger == nil {
		logger = slog.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIResponder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger.With("component", "responder", "engine", "openai"),
	}
}

// Name identifies the engine in logs.
func (r *OpenAIResponder) Name() string { return "openai" }

// Respond sends the user text plus recent transcript to the model.
// The model never signals handoff structurally; low confidence surfaces
// as the sentinel in the reply text, which the caller inspects.
func (r *OpenAIResponder) Respond(ctx context.Context, text string, sc SessionContext) (*Reply, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(sc.Recent)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range sc.Recent {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    historyRole(m.Sender),
			Content: m.Text,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: msgs,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		r.logger.Warn("chat completion failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrUnavailable)
	}

	reply := &Reply{Text: resp.Choices[0].Message.Content}
	r.logger.Debug("reply generated",
		"user_id", sc.UserID,
		"chars", len(reply.Text))
	return reply, nil
}

// historyRole maps a persisted sender to a chat role. Agent and system
// messages count as assistant turns for prompting purposes.
func historyRole(sender string) string {
	if sender == store.SenderUser {
		return openai.ChatMessageRoleUser
	}
	return openai.ChatMessageRoleAssistant
}
