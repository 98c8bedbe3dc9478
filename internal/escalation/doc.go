// Package escalation decides when a conversation leaves automation.
//
// The Controller consults an ordered chain of responders and applies the
// handoff policy: explicit keywords escalate immediately, low-confidence
// replies fall through to the next engine, and a total miss yields an
// apology without escalating. Its output is a Dispatch, a plain
// description of what to persist and publish, which keeps this package
// free of transport and storage concerns.
package escalation
