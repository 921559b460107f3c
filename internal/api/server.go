// Package api serves the workspace to the rendering surface over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies, version string) *Server {
	handler := NewHandler(deps, version, cfg.MaxUploadSize)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5, "application/json"))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	// Analysis lifecycle
	router.Post("/analyze", handler.Analyze)
	router.Post("/reset", handler.Reset)
	router.Get("/status", handler.Status)
	router.Get("/export", handler.Export)

	// Projection views
	router.Get("/graph", handler.Graph)
	router.Get("/accounts", handler.ListAccounts)
	router.Get("/accounts/{id}", handler.GetAccount)
	router.Get("/rings", handler.ListRings)
	router.Get("/transactions", handler.ListTransactions)
	router.Get("/summary", handler.Summary)
	router.Get("/suggestions", handler.Suggestions)

	// What-if simulations
	router.Route("/simulations", func(r chi.Router) {
		r.Post("/", handler.Simulate)
		r.Get("/", handler.ListSimulations)
		r.Get("/active", handler.ActiveSimulation)
		r.Delete("/active", handler.ClearSimulation)
		r.Post("/{id}/restore", handler.RestoreSimulation)
	})

	// Pointer events and selection
	router.Post("/events/click", handler.Click)
	router.Post("/events/hover", handler.Hover)
	router.Delete("/events/hover", handler.ClearHover)
	router.Get("/selection", handler.Selection)
	router.Delete("/selection", handler.ClearSelection)

	// Audit trail
	router.Get("/audit/simulations", handler.ListAudit)
	router.Get("/audit/simulations/{id}", handler.GetAudit)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
