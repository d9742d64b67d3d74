// Package server exposes sessions over an HTTP/JSON API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"RoiLedger/internal/feed"
	"RoiLedger/internal/observability"
	"RoiLedger/internal/persistence"
	"RoiLedger/internal/roi"

	"github.com/rs/zerolog"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr          string
	DefaultPolicy roi.Policy
	Currency      string
}

// Server is the HTTP API server. Sources and the archive are optional: a
// server without them still supports manual sessions, it just cannot fetch.
type Server struct {
	httpServer *http.Server
	registry   *Registry
	sources    map[string]feed.Source
	loader     *feed.Loader
	archive    *persistence.Archive
	health     *observability.HealthChecker
	metrics    *observability.Metrics
	cfg        Config
	log        zerolog.Logger
}

func NewServer(
	cfg Config,
	registry *Registry,
	sources map[string]feed.Source,
	archive *persistence.Archive,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	s := &Server{
		registry: registry,
		sources:  sources,
		loader:   feed.NewLoader(log),
		archive:  archive,
		health:   health,
		metrics:  metrics,
		cfg:      cfg,
		log:      log,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.LivenessHandler)
	mux.HandleFunc("GET /readyz", health.ReadinessHandler)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)

	mux.HandleFunc("GET /api/sessions/{id}/result", s.handleResult)
	mux.HandleFunc("GET /api/sessions/{id}/breakdown", s.handleBreakdown)
	mux.HandleFunc("GET /api/sessions/{id}/ledger", s.handleLedger)
	mux.HandleFunc("GET /api/sessions/{id}/projected-end-balance", s.handleProjectedEndBalance)

	mux.HandleFunc("POST /api/sessions/{id}/transfers", s.handleAddTransfer)
	mux.HandleFunc("DELETE /api/sessions/{id}/transfers/{index}", s.handleDeleteTransfer)
	mux.HandleFunc("POST /api/sessions/{id}/pnl", s.handleAddPnl)
	mux.HandleFunc("DELETE /api/sessions/{id}/pnl/{index}", s.handleDeletePnl)
	mux.HandleFunc("PUT /api/sessions/{id}/inputs/{field}", s.handleSetInput)
	mux.HandleFunc("PUT /api/sessions/{id}/policy", s.handleSetPolicy)
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.handleReset)
	mux.HandleFunc("POST /api/sessions/{id}/fetch", s.handleFetch)

	var h http.Handler = mux
	h = s.loggingMiddleware(h)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
