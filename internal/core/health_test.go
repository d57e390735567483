package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubProbe struct {
	name string
	err  error
}

func (p *stubProbe) Name() string                 { return p.name }
func (p *stubProbe) Check(_ context.Context) error { return p.err }

func TestHandleHealth_NoProbes(t *testing.T) {
	srv := newTestServer(t)
	srv.Config.Build.Version = "1.2.3"

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", resp.Version)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		&stubProbe{name: "dataset-store"},
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Components map[string]struct {
			Status string `json:"status"`
		} `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Components["dataset-store"].Status != "healthy" {
		t.Errorf("dataset-store = %+v, want healthy", resp.Components["dataset-store"])
	}
}

func TestHandleHealth_UnhealthyProbeReturns503(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = []HealthProbe{
		&stubProbe{name: "dataset-store", err: errors.New("source unreachable")},
		&stubProbe{name: "other"},
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	var resp struct {
		Status     string `json:"status"`
		Components map[string]struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("status = %q, want unhealthy", resp.Status)
	}
	if resp.Components["dataset-store"].Status != "unhealthy" {
		t.Error("failing probe should report unhealthy")
	}
	if resp.Components["dataset-store"].Message == "" {
		t.Error("failing probe should carry its error message")
	}
	if resp.Components["other"].Status != "healthy" {
		t.Error("passing probe should report healthy")
	}
}
