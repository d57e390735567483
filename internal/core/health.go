package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout is the maximum time allowed for all health probes to
// complete. If any probe exceeds this deadline, the health check returns
// 503 Service Unavailable.
const healthCheckTimeout = 2 * time.Second

// HealthProbe defines the interface for a subsystem health check. Each
// probe represents a critical dependency (dataset store) that must be
// reachable for the service to answer queries.
type HealthProbe interface {
	// Name returns a human-readable identifier for the probe.
	Name() string

	// Check performs the health check against the subsystem. It should
	// respect the context deadline and return an error if the subsystem is
	// unhealthy or unreachable.
	Check(ctx context.Context) error
}

// componentStatus represents the health state of a single subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth executes all registered health probes concurrently with a
// short timeout. Returns 200 OK if all probes report healthy, 503 Service
// Unavailable if any subsystem fails or the global timeout is exceeded.
//
// This endpoint is public and is mounted at GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	version := s.Config.Build.Version

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy", Version: version})
		return
	}

	type probeResult struct {
		name string
		err  error
	}

	results := make(chan probeResult, len(probes))
	var wg sync.WaitGroup
	for _, probe := range probes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			results <- probeResult{name: p.Name(), err: p.Check(ctx)}
		}(probe)
	}
	wg.Wait()
	close(results)

	components := make(map[string]componentStatus, len(probes))
	healthy := true
	for res := range results {
		if res.err != nil {
			healthy = false
			components[res.name] = componentStatus{
				Status:  "unhealthy",
				Message: fmt.Sprintf("%v", res.err),
			}
			continue
		}
		components[res.name] = componentStatus{Status: "healthy"}
	}

	status := http.StatusOK
	resp := healthResponse{Status: "healthy", Version: version, Components: components}
	if !healthy {
		status = http.StatusServiceUnavailable
		resp.Status = "unhealthy"
	}

	JSON(w, r, status, resp)
}
