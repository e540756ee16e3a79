// Package core provides the HTTP chassis for the cropwise service. It
// creates a chi router and enforces cross-cutting concerns (logging,
// observability, error handling, security headers) before requests reach
// domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cropwise/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	// RecordRequest records request latency and count for one completed
	// request.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server encapsulates all dependencies for the HTTP surface, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics MetricsCollector

	// HealthProbes are checked concurrently by GET /health.
	HealthProbes []HealthProbe

	// StatusDetail, when set, contributes extra fields to the health
	// response (for example the store's current sensor reading). It runs
	// under the health check's context budget.
	StatusDetail func(ctx context.Context) map[string]any

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	// RouteRegistrars are called by MountRoutes to register domain handler
	// routes. This indirection avoids import cycles between core and the
	// handler packages.
	RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes the router and prepares the server for route
// mounting. The caller mounts routes (via MountRoutes) after construction;
// this separation allows tests to customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown complete")
	return nil
}
