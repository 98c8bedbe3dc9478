// ABOUTME: HTTP server hosting the websocket endpoint, health check, and transcript API
// ABOUTME: Runs until the context is canceled, then shuts down gracefully

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

const defaultHistoryLimit = 50

// Server wraps the gateway in an HTTP server.
type Server struct {
	gw         *Gateway
	httpServer *http.Server
	origins    []string
}

// NewServer builds the HTTP server for a gateway. Allowed origins apply
// to both CORS and the websocket upgrade; empty means allow all.
func NewServer(gw *Gateway, addr string, allowedOrigins []string) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	s := &Server{gw: gw, origins: allowedOrigins}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/history/{userID}", s.handleHistory)
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		gw.HandleWS(w, req, s.origins)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run starts the server and blocks until the context is canceled or the
// server fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.gw.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.gw.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.gw.logger.Error("server error", "error", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := s.httpServer.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleHistory serves a user's transcript, oldest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	msgs, err := s.gw.History(r.Context(), userID, limit)
	if err != nil {
		s.gw.logger.Error("history lookup failed", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	type wireMessage struct {
		ID        string    `json:"id"`
		Sender    string    `json:"sender"`
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		out[i] = wireMessage{ID: m.ID, Sender: m.Sender, Text: m.Text, CreatedAt: m.CreatedAt}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
