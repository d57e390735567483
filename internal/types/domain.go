// Package types defines the shared domain model for the Rainpoint service:
// station records, per-horizon datasets, query points, interpolation results
// and the error taxonomy used across all packages.
package types

import "math"

// MetricKind identifies one tracked rainfall metric within a dataset.
// The set of metrics is configuration-driven; these two are always present.
type MetricKind string

const (
	// MetricMeanRainfall is the mean rainfall metric (mm).
	MetricMeanRainfall MetricKind = "mean_rainfall"

	// MetricExceptionalRainfall is the exceptional-event rainfall metric (mm).
	MetricExceptionalRainfall MetricKind = "exceptional_rainfall"
)

// StationRecord is one fully-populated row of ground-truth data.
// Records are constructed during load and immutable thereafter; a record with
// any missing coordinate or metric never enters a Dataset.
type StationRecord struct {
	Latitude  float64                `json:"latitude"`
	Longitude float64                `json:"longitude"`
	Metrics   map[MetricKind]float64 `json:"metrics"`
}

// Dataset is the set of station records for one horizon.
// It is built once per source file, then treated as read-only and shared
// across queries. Duplicate coordinates are legal; partial records are not.
type Dataset struct {
	// Horizon is the label of the time horizon this dataset describes,
	// e.g. "2030" or "2100".
	Horizon string `json:"horizon"`

	// SourceID identifies the file or object the dataset was loaded from.
	SourceID string `json:"source_id"`

	// Fingerprint captures the source content identity (mtime+size or ETag)
	// at load time. Used by the cache to detect source changes.
	Fingerprint string `json:"-"`

	// Records holds the cleaned rows in original source order.
	Records []StationRecord `json:"records"`
}

// QueryPoint is a user-supplied coordinate to interpolate at.
// The range is unconstrained beyond finiteness; a point outside the station
// hull is answered with OutOfCoverage, not rejected.
type QueryPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both coordinates are finite numbers.
func (q QueryPoint) Valid() bool {
	return !math.IsNaN(q.Lat) && !math.IsInf(q.Lat, 0) &&
		!math.IsNaN(q.Lon) && !math.IsInf(q.Lon, 0)
}

// InterpolationResult is the outcome of interpolating one metric at one
// query point: either a finite estimate, or the explicit OutOfCoverage
// marker when the point lies outside the triangulated hull (or the dataset
// is too small to triangulate). OutOfCoverage is a result, not an error.
type InterpolationResult struct {
	Value         *float64 `json:"value,omitempty"`
	OutOfCoverage bool     `json:"out_of_coverage,omitempty"`
}

// Covered returns a result carrying a finite interpolated value.
func Covered(v float64) InterpolationResult {
	return InterpolationResult{Value: &v}
}

// OutOfCoverageResult is the shared marker for uncovered query points.
var OutOfCoverageResult = InterpolationResult{OutOfCoverage: true}

// HorizonResult holds the per-metric interpolation results for one horizon,
// or the load error that prevented them. Exactly one of Results/Err is set;
// a failed horizon never blocks the others.
type HorizonResult struct {
	Horizon string                             `json:"horizon"`
	Results map[MetricKind]InterpolationResult `json:"results,omitempty"`
	Err     *AppError                          `json:"error,omitempty"`
}

// HorizonSeries is the chronological sequence of per-horizon results for a
// single query point, ordered as configured (earliest first).
type HorizonSeries []HorizonResult

// Delta is the percentage change of a metric relative to the baseline
// horizon. Undefined is reported (never computed as Inf/NaN) when the
// baseline value is exactly zero or either value is unavailable.
type Delta struct {
	PctChange *float64 `json:"pct_change,omitempty"`
	Undefined bool     `json:"undefined,omitempty"`
}
