// Package gateway orchestrates the chat-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the chat-gateway
// server. It owns the session registry, room router, escalation
// controller, transcript store, and dedupe cache, and exposes them over
// a websocket transport plus a small HTTP API.
//
// # Message flow
//
// Every inbound user message follows the same path:
//
//  1. Persist the message to the transcript store.
//  2. Load recent history for responder context.
//  3. Ask the escalation controller for a Dispatch.
//  4. Apply the dispatch: persist-then-publish each delivery in order,
//     then tear down rooms and reset dedupe keys.
//
// Persistence always happens before publication, so the transcript never
// misses a message a client saw.
//
// # Websocket protocol
//
// Clients send one JSON envelope per message, discriminated by "event":
//
//	{"event": "user_room", "user_id": "alice"}
//	{"event": "agent_room", "agent_id": "csr1", "token": "..."}
//	{"event": "message", "text": "hello"}
//	{"event": "accept_handoff", "user_id": "alice"}
//	{"event": "agent_message", "user_id": "alice", "text": "hi"}
//	{"event": "resume", "user_id": "alice"}
//
// The server pushes room.Event values back: welcome, bot_response,
// agent_message, message, system, and join_request.
//
// # HTTP API
//
//   - GET /ws - websocket upgrade
//   - GET /healthz - liveness check
//   - GET /history/{userID}?limit=N - transcript, oldest first
//
// # Lifecycle
//
//	gw := gateway.New(gateway.Options{...})
//	srv := gateway.NewServer(gw, addr, origins)
//	err := srv.Run(ctx) // blocks until ctx is canceled
package gateway
