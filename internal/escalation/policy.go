// ABOUTME: Escalation policy tables: handoff lexicon, low-confidence phrases, fixed texts
// ABOUTME: Heuristic substring matching is configuration, not hard-coded logic

package escalation

import (
	"strings"
	"time"

	"github.com/deepika827/ChatbotRasa/internal/responder"
)

// Fixed user-visible texts.
const (
	handoffNotice = "Connecting you to a human agent... Type 'resume' to continue with the bot."
	apologyText   = "I'm having trouble processing your request. Please try again later."
	resumedNotice = "Conversation resumed with bot. You are no longer connected to a human agent."
	joinRequest   = "A human agent is required. Click join to assist."
)

// resumeCommand is the literal message that ends a handoff, compared
// case-insensitively after trimming.
const resumeCommand = "resume"

// Policy holds the configurable heuristics the controller applies to user
// text and generative output. Substring sniffing of model output is
// inherently approximate, so both lists are plain configuration.
type Policy struct {
	// HandoffKeywords trigger escalation before any responder is consulted.
	HandoffKeywords []string

	// Sentinel is the explicit no-data token the generative engine emits.
	Sentinel string

	// LowConfidencePhrases mark a generative reply as unusable when any
	// fragment appears in it.
	LowConfidencePhrases []string

	// ResponderTimeout bounds each engine call.
	ResponderTimeout time.Duration
}

// DefaultPolicy returns the stock lexicon and phrase list.
func DefaultPolicy() Policy {
	return Policy{
		HandoffKeywords: []string{
			"human", "agent", "person", "support", "help",
			"talk to human", "speak to human", "connect me",
			"transfer", "live agent", "real person",
		},
		Sentinel: responder.Sentinel,
		LowConfidencePhrases: []string{
			"do not have any information about",
			"unable to find any information about",
			"does not contain information about",
			"does not contain any information",
			"i recommend checking",
			"i suggest checking",
			"database does not include",
			"not included in the database",
			"appears to be random text",
			"i apologize, but",
			"provide more context",
			"clarify what you are trying to ask",
		},
		ResponderTimeout: 10 * time.Second,
	}
}

// wantsHuman reports whether the text matches the handoff lexicon
// (case-insensitive substring match).
func (p Policy) wantsHuman(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range p.HandoffKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// lowConfidence reports whether a reply text should be discarded: empty,
// carrying the no-data sentinel, or matching a low-confidence fragment.
func (p Policy) lowConfidence(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	lower := strings.ToLower(text)
	if p.Sentinel != "" && strings.Contains(lower, strings.ToLower(p.Sentinel)) {
		return true
	}
	for _, phrase := range p.LowConfidencePhrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// isResumeCommand reports whether the text is the literal resume command.
func isResumeCommand(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), resumeCommand)
}
