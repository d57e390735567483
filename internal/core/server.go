// Package core provides the API chassis for the Rainpoint service.
// It creates a chi router and enforces cross-cutting concerns -- recovery,
// request correlation, logging, CORS, and error handling -- before requests
// reach the estimate handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rainpoint/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
// Implementations record request latency and count metrics to CloudWatch
// or equivalent backends.
type MetricsCollector interface {
	// RecordRequest records API request metrics including latency and count.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server encapsulates all dependencies for the Rainpoint API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// HealthProbes are checked by the /health endpoint. Registered by the
	// entry point after construction.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handler routes under /v1. Populated by
	// the entry point; the indirection avoids import cycles between core
	// and handler packages.
	V1RouteRegistrars []func(chi.Router)

	// Internal router
	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction. This separation allows tests to customize route
// registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
// This is used internally by route-mounting methods and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
