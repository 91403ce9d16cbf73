// Package healthsrv runs a minimal liveness endpoint for the copy-trading
// engine: a single /health route — no snapshot API, no dashboard.
package healthsrv

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server is a single-route HTTP server reporting process liveness.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// New builds a health server bound to addr. It does not start listening
// until Start is called.
func New(addr string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)

	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "healthsrv"),
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// Start blocks serving until Stop is called; callers should run it in its
// own goroutine.
func (s *Server) Start() error {
	s.logger.Info("health server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
