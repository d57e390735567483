// Package horizon implements multi-horizon evaluation: for one query point
// it loads every configured horizon dataset (through the cache), runs the
// interpolation engine, and aggregates the per-horizon results into a
// chronological series with percentage deltas against a baseline horizon.
//
// Per-horizon failures are isolated: one horizon's load error is recorded
// on its result and never prevents computing the other horizons.
package horizon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"rainpoint/internal/config"
	"rainpoint/internal/dataset"
	"rainpoint/internal/interp"
	"rainpoint/internal/types"
)

// Service evaluates rainfall estimates across all configured horizons.
// It is safe for concurrent use: datasets and interpolators are immutable
// once built and the internal interpolator cache is lock-protected.
type Service struct {
	cache    *dataset.Cache
	horizons []config.HorizonSpec
	kinds    []types.MetricKind
	baseline string
	logger   *slog.Logger

	// Interpolators are cached per source so the triangulation is rebuilt
	// only when the underlying dataset fingerprint changes.
	mu      sync.Mutex
	interps map[string]*interp.Interpolator
}

// NewService creates a Service over the given dataset cache and horizon
// configuration. The horizons slice defines the chronological order of the
// series; baseline must be one of its labels.
func NewService(
	cache *dataset.Cache,
	horizons []config.HorizonSpec,
	kinds []types.MetricKind,
	baseline string,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:    cache,
		horizons: horizons,
		kinds:    kinds,
		baseline: baseline,
		logger:   logger,
		interps:  make(map[string]*interp.Interpolator),
	}
}

// PointEstimate is the full multi-horizon answer for one query point.
type PointEstimate struct {
	Query    types.QueryPoint                        `json:"query"`
	Baseline string                                  `json:"baseline"`
	Series   types.HorizonSeries                     `json:"series"`
	Deltas   map[string]map[types.MetricKind]types.Delta `json:"deltas,omitempty"`
}

// Horizons returns the configured horizon specs in chronological order.
func (s *Service) Horizons() []config.HorizonSpec {
	return s.horizons
}

// Baseline returns the baseline horizon label.
func (s *Service) Baseline() string {
	return s.baseline
}

// MetricKinds returns the tracked metric kinds in deterministic order.
func (s *Service) MetricKinds() []types.MetricKind {
	return s.kinds
}

// InvalidateDatasets drops every cached dataset and interpolator, forcing
// a reload from the sources on the next query. Invalidation is the
// caller's responsibility; a changed source fingerprint also triggers a
// rebuild without it.
func (s *Service) InvalidateDatasets() {
	s.cache.InvalidateAll()
	s.mu.Lock()
	s.interps = make(map[string]*interp.Interpolator)
	s.mu.Unlock()
}

// EvaluatePoint interpolates every tracked metric at (lat, lon) for every
// configured horizon. A horizon whose dataset cannot be loaded contributes
// a HorizonResult carrying the load error; the remaining horizons are still
// computed (partial success). The only hard error is a non-finite query.
func (s *Service) EvaluatePoint(ctx context.Context, lat, lon float64) (*PointEstimate, error) {
	q := types.QueryPoint{Lat: lat, Lon: lon}
	if !q.Valid() {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidQuery,
			fmt.Sprintf("query point (%v, %v) is not finite", lat, lon),
			nil,
		)
	}

	series := make(types.HorizonSeries, 0, len(s.horizons))
	for _, h := range s.horizons {
		series = append(series, s.evaluateHorizon(ctx, h, q))
	}

	return &PointEstimate{
		Query:    q,
		Baseline: s.baseline,
		Series:   series,
		Deltas:   ComputeDeltas(series, s.baseline, s.kinds),
	}, nil
}

// evaluateHorizon computes one horizon's results, mapping any failure into
// the result record instead of propagating it.
func (s *Service) evaluateHorizon(ctx context.Context, h config.HorizonSpec, q types.QueryPoint) types.HorizonResult {
	it, err := s.interpolator(ctx, h)
	if err != nil {
		var appErr *types.AppError
		if !errors.As(err, &appErr) {
			appErr = types.NewAppError(
				types.ErrCodeInternalUnexpected,
				fmt.Sprintf("loading horizon %s failed", h.Label),
				err,
			)
		}
		s.logger.Warn("horizon evaluation failed",
			"horizon", h.Label,
			"source", h.Source,
			"error", appErr,
		)
		return types.HorizonResult{Horizon: h.Label, Err: appErr}
	}

	results, err := it.At(q, s.kinds)
	if err != nil {
		// At only fails on a non-finite query, which EvaluatePoint has
		// already rejected.
		var appErr *types.AppError
		if !errors.As(err, &appErr) {
			appErr = types.NewAppError(types.ErrCodeInternalUnexpected, "interpolation failed", err)
		}
		return types.HorizonResult{Horizon: h.Label, Err: appErr}
	}

	return types.HorizonResult{Horizon: h.Label, Results: results}
}

// interpolator returns the cached Interpolator for the horizon's source,
// rebuilding it when the dataset fingerprint changed.
func (s *Service) interpolator(ctx context.Context, h config.HorizonSpec) (*interp.Interpolator, error) {
	ds, err := s.cache.Get(ctx, h.Label, h.Source)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.interps[h.Source]; ok && it.Dataset() == ds {
		return it, nil
	}
	it := interp.New(ds)
	s.interps[h.Source] = it
	return it, nil
}

// ComputeDeltas computes, for each non-baseline horizon and metric, the
// percentage change relative to the baseline horizon:
//
//	pct = (value - baseline) / baseline * 100
//
// The delta is Undefined (reported, never computed as Inf or NaN) when the
// baseline value is exactly zero, either horizon failed to load, or either
// value is OutOfCoverage.
func ComputeDeltas(series types.HorizonSeries, baseline string, kinds []types.MetricKind) map[string]map[types.MetricKind]types.Delta {
	var base *types.HorizonResult
	for i := range series {
		if series[i].Horizon == baseline {
			base = &series[i]
			break
		}
	}

	deltas := make(map[string]map[types.MetricKind]types.Delta)
	for _, hr := range series {
		if hr.Horizon == baseline {
			continue
		}
		kindDeltas := make(map[types.MetricKind]types.Delta, len(kinds))
		for _, kind := range kinds {
			kindDeltas[kind] = computeDelta(base, &hr, kind)
		}
		deltas[hr.Horizon] = kindDeltas
	}
	return deltas
}

// computeDelta evaluates one (horizon, metric) delta against the baseline.
func computeDelta(base *types.HorizonResult, hr *types.HorizonResult, kind types.MetricKind) types.Delta {
	if base == nil || base.Err != nil || hr.Err != nil {
		return types.Delta{Undefined: true}
	}
	bv, ok := base.Results[kind]
	if !ok || bv.OutOfCoverage || bv.Value == nil || *bv.Value == 0 {
		return types.Delta{Undefined: true}
	}
	hv, ok := hr.Results[kind]
	if !ok || hv.OutOfCoverage || hv.Value == nil {
		return types.Delta{Undefined: true}
	}

	pct := (*hv.Value - *bv.Value) / *bv.Value * 100
	return types.Delta{PctChange: &pct}
}
