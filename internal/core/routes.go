package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft timeout applied to request contexts
// when the configuration does not specify one.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes defines the top-level routing hierarchy.
// It registers the global middleware chain, API version groups, and
// top-level routes (health check).
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	// API Version Groups
	s.router.Route("/v1", s.mountV1)

	// Top-Level Routes (outside /v1 namespace)
	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering Rationale:
//  1. Recoverer      - Catches panics; outermost to catch all failures.
//  2. ContextTimeout - Sets a soft deadline on every request.
//  3. RequestID      - Generates/propagates correlation ID for tracing.
//  4. RequestLogger  - Structured logging (redacted headers).
//  5. CORS           - Browser security headers.
//  6. Metrics        - Request latency and count recording.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.Config.Server.CorsAllowedOrigins))
	s.router.Use(s.MetricsMiddleware)
}

// mountV1 registers all v1 endpoints. Domain handler routes are registered
// via V1RouteRegistrars, populated by the application entry point. This
// indirection avoids import cycles between core and handler packages.
func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

// requestTimeout returns the configured request timeout, falling back to
// the default when unset.
func (s *Server) requestTimeout() time.Duration {
	if s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}
