// Package handlers contains the HTTP handler implementations for the
// Rainpoint API. It covers:
//   - Point estimate retrieval (GET /v1/estimates/point)
//   - Batch estimate retrieval (POST /v1/estimates/points)
//   - Horizon listing (GET /v1/estimates/horizons)
//   - Dataset cache invalidation (POST /v1/datasets/reload)
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"rainpoint/internal/config"
	"rainpoint/internal/core"
	"rainpoint/internal/horizon"
	"rainpoint/internal/types"
)

// maxBatchLocations is the maximum number of locations in a batch request.
const maxBatchLocations = 50

// EstimateServiceInterface defines the service contract for the estimate
// handler. It matches horizon.Service but is defined locally to avoid tight
// coupling per the handler injection pattern.
type EstimateServiceInterface interface {
	EvaluatePoint(ctx context.Context, lat, lon float64) (*horizon.PointEstimate, error)
	Horizons() []config.HorizonSpec
	Baseline() string
	MetricKinds() []types.MetricKind
	InvalidateDatasets()
}

// EstimateHandler maps HTTP requests to the horizon evaluation service.
type EstimateHandler struct {
	service   EstimateServiceInterface
	validator *core.Validator
	logger    *slog.Logger
}

// NewEstimateHandler creates a new EstimateHandler with the provided
// dependencies.
func NewEstimateHandler(svc EstimateServiceInterface, val *core.Validator, logger *slog.Logger) *EstimateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EstimateHandler{
		service:   svc,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the estimate endpoints onto the mux.
func (h *EstimateHandler) RegisterRoutes(r chi.Router) {
	r.Route("/estimates", func(r chi.Router) {
		r.Get("/point", h.HandleGetPoint)
		r.Post("/points", h.HandleGetBatch)
		r.Get("/horizons", h.HandleListHorizons)
	})
	r.Post("/datasets/reload", h.HandleReloadDatasets)
}

// PointEstimateResponse wraps a single point evaluation with a query ID for
// client-side correlation.
type PointEstimateResponse struct {
	QueryID  string                 `json:"query_id"`
	Estimate *horizon.PointEstimate `json:"estimate"`
}

// HandleGetPoint handles GET /v1/estimates/point.
//
//  1. Parse query params: lat, lon.
//  2. Call EvaluatePoint (partial per-horizon failures are part of the
//     response body, not an HTTP error).
//  3. Return the JSON envelope.
func (h *EstimateHandler) HandleGetPoint(w http.ResponseWriter, r *http.Request) {
	lat, err := parseCoord(r.URL.Query().Get("lat"), "lat", types.ErrCodeValidationInvalidLat)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	lon, err := parseCoord(r.URL.Query().Get("lon"), "lon", types.ErrCodeValidationInvalidLon)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	est, err := h.service.EvaluatePoint(r.Context(), lat, lon)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: PointEstimateResponse{
		QueryID:  uuid.NewString(),
		Estimate: est,
	}})
}

// parseCoord parses a required coordinate query parameter.
func parseCoord(raw, name string, invalidCode types.ErrorCode) (float64, error) {
	if raw == "" {
		return 0, types.NewAppError(
			types.ErrCodeValidationMissingField,
			name+" query parameter is required",
			nil,
		)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, types.NewAppError(invalidCode, name+" must be a valid number", nil)
	}
	return v, nil
}

// BatchLocation is one location in a batch estimate request.
type BatchLocation struct {
	ID  string   `json:"id"`
	Lat *float64 `json:"lat" validate:"required"`
	Lon *float64 `json:"lon" validate:"required"`
}

// BatchEstimateRequest allows querying multiple points in one call.
type BatchEstimateRequest struct {
	Locations []BatchLocation `json:"locations" validate:"required,min=1,max=50,dive"`
}

// BatchEstimateItem is the per-location result in a batch response.
// Exactly one of Estimate/Error is set; one bad location never blocks the
// rest of the batch.
type BatchEstimateItem struct {
	ID       string                 `json:"id"`
	Estimate *horizon.PointEstimate `json:"estimate,omitempty"`
	Error    *core.ErrorDetail      `json:"error,omitempty"`
}

// BatchEstimateResponse is the body of a batch estimate response.
type BatchEstimateResponse struct {
	QueryID string              `json:"query_id"`
	Results []BatchEstimateItem `json:"results"`
}

// HandleGetBatch handles POST /v1/estimates/points. Locations are
// evaluated sequentially (datasets are shared through the cache, so the
// cost per extra location is one interpolation, not one load).
func (h *EstimateHandler) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchEstimateRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	results := make([]BatchEstimateItem, 0, len(req.Locations))
	for i, loc := range req.Locations {
		id := loc.ID
		if id == "" {
			id = strconv.Itoa(i)
		}

		est, err := h.service.EvaluatePoint(r.Context(), *loc.Lat, *loc.Lon)
		if err != nil {
			detail := errorDetail(err)
			h.logger.Warn("batch location evaluation failed",
				"location_id", id,
				"error", err,
			)
			results = append(results, BatchEstimateItem{ID: id, Error: &detail})
			continue
		}
		results = append(results, BatchEstimateItem{ID: id, Estimate: est})
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: BatchEstimateResponse{
		QueryID: uuid.NewString(),
		Results: results,
	}})
}

// errorDetail converts an evaluation error into the client-facing detail
// shape without leaking wrapped internals.
func errorDetail(err error) core.ErrorDetail {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return core.ErrorDetail{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Details: appErr.Details,
		}
	}
	return core.ErrorDetail{
		Code:    string(types.ErrCodeInternalUnexpected),
		Message: "an unexpected error occurred",
	}
}

// HorizonInfo describes one configured horizon in the listing response.
type HorizonInfo struct {
	Label    string `json:"label"`
	Source   string `json:"source"`
	Baseline bool   `json:"baseline,omitempty"`
}

// HorizonListResponse is the body of the horizon listing response.
type HorizonListResponse struct {
	Horizons []HorizonInfo      `json:"horizons"`
	Baseline string             `json:"baseline"`
	Metrics  []types.MetricKind `json:"metrics"`
}

// HandleListHorizons handles GET /v1/estimates/horizons.
func (h *EstimateHandler) HandleListHorizons(w http.ResponseWriter, r *http.Request) {
	baseline := h.service.Baseline()

	specs := h.service.Horizons()
	infos := make([]HorizonInfo, 0, len(specs))
	for _, spec := range specs {
		infos = append(infos, HorizonInfo{
			Label:    spec.Label,
			Source:   spec.Source,
			Baseline: spec.Label == baseline,
		})
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: HorizonListResponse{
		Horizons: infos,
		Baseline: baseline,
		Metrics:  h.service.MetricKinds(),
	}})
}

// HandleReloadDatasets handles POST /v1/datasets/reload. It drops every
// cached dataset so the next query reloads from the sources.
func (h *EstimateHandler) HandleReloadDatasets(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateDatasets()
	h.logger.Info("dataset cache invalidated", "request_id", types.GetRequestID(r.Context()))
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]string{"status": "reloaded"}})
}
