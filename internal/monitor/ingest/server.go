// Package ingest implements the Monitor's telemetry ingest endpoint:
// POST /v1/events and /v1/events/batch, request normalization,
// x-api-key auth, and per-remote-address rate limiting.
package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Server is the Monitor's ingest HTTP server.
type Server struct {
	httpServer *http.Server
}

// Config controls ingest server behavior.
type Config struct {
	Addr          string
	APIKey        string // empty disables auth
	RatePerSecond float64
	RateBurst     int
	BatchLimit    int // max events accepted per /v1/events/batch request
}

// New builds the ingest HTTP server, wiring auth and rate-limit
// middleware ahead of the event handlers, following the teacher's
// controller.New: build handlers, wrap with middleware, mount routes
// on a method-pattern ServeMux.
func New(cfg Config, store EventStore, checks CheckApplier, now func() time.Time, log *slog.Logger) *Server {
	h := &handlers{store: store, checks: checks, now: now, log: log, batchLimit: cfg.BatchLimit}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", h.postEvent)
	mux.HandleFunc("POST /v1/events/batch", h.postEventBatch)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(cfg.RatePerSecond, cfg.RateBurst)(handler)
	handler = authMiddleware(cfg.APIKey)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutDownCtx)
	}
}
