package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/audience-dispatch/internal/config"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
)

// Server represents the API server
type Server struct {
	config   config.ServerConfig
	handlers *Handlers
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new API server. health may be nil.
func NewServer(cfg config.ServerConfig, h *Handlers, health *HealthChecker) *Server {
	if health == nil {
		health = NewHealthChecker(nil, nil)
	}
	return &Server{
		config:   cfg,
		handlers: h,
		router:   SetupRoutes(h, health, cfg.AllowedOrigins),
	}
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout(),
		ReadHeaderTimeout: 10 * time.Second,
		// Sends run inline and may take minutes for large snapshots.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	logger.Info("api server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}
