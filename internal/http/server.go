// Package http exposes the projection engine as a thin JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"grana/internal/middleware/trace"
	"grana/internal/services"
)

// Server wires the engine services to HTTP routes. It serves a single
// household; the configured user id scopes every operation.
type Server struct {
	httpServer *http.Server

	forecaster  *services.ForecastEngine
	coordinator *services.GenerationCoordinator
	debts       *services.DebtService

	userID         int64
	defaultHorizon int
	ready          func(ctx context.Context) error
	started        time.Time
}

// Options carries the server's collaborators and settings.
type Options struct {
	Addr           string
	UserID         int64
	DefaultHorizon int
	// Ready is polled by the readiness endpoint; nil means always ready.
	Ready func(ctx context.Context) error
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(opts Options, forecaster *services.ForecastEngine, coordinator *services.GenerationCoordinator, debts *services.DebtService) *Server {
	s := &Server{
		forecaster:     forecaster,
		coordinator:    coordinator,
		debts:          debts,
		userID:         opts.UserID,
		defaultHorizon: opts.DefaultHorizon,
		ready:          opts.Ready,
		started:        time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/forecast", s.handleForecast)
	mux.HandleFunc("POST /api/recurring/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/debts/{id}/installments", s.handleDebtInstallments)
	mux.HandleFunc("POST /api/debts/{id}/schedule", s.handleRegenerateSchedule)
	mux.HandleFunc("POST /api/debts/schedule/preview", s.handlePreviewSchedule)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           trace.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving requests until the server is shut down.
func (s *Server) ListenAndServe() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
