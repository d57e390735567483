package interp

import (
	"math"
	"testing"

	"rainpoint/internal/types"
)

func makeDataset(records ...types.StationRecord) *types.Dataset {
	return &types.Dataset{
		Horizon:  "2030",
		SourceID: "test.csv",
		Records:  records,
	}
}

func station(lat, lon, mean float64) types.StationRecord {
	return types.StationRecord{
		Latitude:  lat,
		Longitude: lon,
		Metrics: map[types.MetricKind]float64{
			types.MetricMeanRainfall: mean,
		},
	}
}

var meanOnly = []types.MetricKind{types.MetricMeanRainfall}

func mustValue(t *testing.T, res types.InterpolationResult) float64 {
	t.Helper()
	if res.OutOfCoverage || res.Value == nil {
		t.Fatal("expected a covered result")
	}
	return *res.Value
}

func TestInterpolator_ExactAtStations(t *testing.T) {
	ds := makeDataset(
		station(43, 0, 100),
		station(44, 0, 200),
		station(43.5, 1, 150),
	)
	it := New(ds)
	if !it.Covered() {
		t.Fatal("expected a covered triangulation")
	}

	for _, rec := range ds.Records {
		res, err := it.At(types.QueryPoint{Lat: rec.Latitude, Lon: rec.Longitude}, meanOnly)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := mustValue(t, res[types.MetricMeanRainfall])
		want := rec.Metrics[types.MetricMeanRainfall]
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("at station (%v, %v): got %v, want %v", rec.Latitude, rec.Longitude, got, want)
		}
	}
}

func TestInterpolator_InteriorValueIsBounded(t *testing.T) {
	ds := makeDataset(
		station(43, 0, 100),
		station(44, 0, 200),
		station(43.5, 1, 150),
	)
	it := New(ds)

	res, err := it.At(types.QueryPoint{Lat: 43.5, Lon: 0.3}, meanOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := mustValue(t, res[types.MetricMeanRainfall])
	if got <= 100 || got >= 200 {
		t.Errorf("interior estimate %v not strictly between 100 and 200", got)
	}
}

func TestInterpolator_MidpointOfEdge(t *testing.T) {
	ds := makeDataset(
		station(43, 0, 100),
		station(44, 0, 200),
		station(43.5, 1, 150),
	)
	it := New(ds)

	// Midpoint of the edge between the first two stations.
	res, err := it.At(types.QueryPoint{Lat: 43.5, Lon: 0}, meanOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := mustValue(t, res[types.MetricMeanRainfall])
	if math.Abs(got-150) > 1e-9 {
		t.Errorf("edge midpoint = %v, want 150", got)
	}
}

func TestInterpolator_OutsideHullIsOutOfCoverage(t *testing.T) {
	ds := makeDataset(
		station(43, 0, 100),
		station(44, 0, 200),
		station(43.5, 1, 150),
	)
	it := New(ds)

	for _, q := range []types.QueryPoint{
		{Lat: 50, Lon: 50},
		{Lat: 43.5, Lon: -0.1},
		{Lat: 42, Lon: 0.5},
	} {
		res, err := it.At(q, meanOnly)
		if err != nil {
			t.Fatalf("unexpected error at (%v, %v): %v", q.Lat, q.Lon, err)
		}
		if !res[types.MetricMeanRainfall].OutOfCoverage {
			t.Errorf("query (%v, %v) inside coverage, want OutOfCoverage", q.Lat, q.Lon)
		}
	}
}

func TestInterpolator_DegenerateDatasets(t *testing.T) {
	tests := []struct {
		name string
		ds   *types.Dataset
	}{
		{"empty", makeDataset()},
		{"one station", makeDataset(station(43, 0, 100))},
		{"two stations", makeDataset(station(43, 0, 100), station(44, 0, 200))},
		{"collinear stations", makeDataset(
			station(43, 0, 100),
			station(44, 1, 200),
			station(45, 2, 300),
		)},
		{"duplicates collapse below three", makeDataset(
			station(43, 0, 100),
			station(43, 0, 999),
			station(44, 1, 200),
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := New(tt.ds)
			if it.Covered() {
				t.Error("expected degenerate dataset to be uncovered")
			}
			res, err := it.At(types.QueryPoint{Lat: 43.5, Lon: 0.5}, meanOnly)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res[types.MetricMeanRainfall].OutOfCoverage {
				t.Error("expected OutOfCoverage from degenerate dataset")
			}
		})
	}
}

func TestInterpolator_DuplicateCoordinatesUseFirstRecord(t *testing.T) {
	ds := makeDataset(
		station(43, 0, 100),
		station(43, 0, 500), // same coordinate, later record: ignored
		station(44, 0, 200),
		station(43.5, 1, 150),
	)
	it := New(ds)

	res, err := it.At(types.QueryPoint{Lat: 43, Lon: 0}, meanOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := mustValue(t, res[types.MetricMeanRainfall])
	if math.Abs(got-100) > 1e-9 {
		t.Errorf("duplicate vertex value = %v, want 100 (first occurrence)", got)
	}
}

func TestInterpolator_NonFiniteQueryIsError(t *testing.T) {
	ds := makeDataset(
		station(43, 0, 100),
		station(44, 0, 200),
		station(43.5, 1, 150),
	)
	it := New(ds)

	for _, q := range []types.QueryPoint{
		{Lat: math.NaN(), Lon: 0},
		{Lat: 43.5, Lon: math.Inf(1)},
		{Lat: math.Inf(-1), Lon: math.NaN()},
	} {
		_, err := it.At(q, meanOnly)
		if err == nil {
			t.Fatalf("expected error for query (%v, %v)", q.Lat, q.Lon)
		}
		appErr, ok := err.(*types.AppError)
		if !ok {
			t.Fatalf("expected AppError, got %T", err)
		}
		if appErr.Code != types.ErrCodeValidationInvalidQuery {
			t.Errorf("error code = %s, want %s", appErr.Code, types.ErrCodeValidationInvalidQuery)
		}
	}
}

func TestInterpolator_UntrackedMetricIsOutOfCoverage(t *testing.T) {
	ds := makeDataset(
		station(43, 0, 100),
		station(44, 0, 200),
		station(43.5, 1, 150),
	)
	it := New(ds)

	res, err := it.At(types.QueryPoint{Lat: 43.5, Lon: 0.3}, []types.MetricKind{
		types.MetricMeanRainfall,
		types.MetricExceptionalRainfall, // not tracked by these records
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res[types.MetricMeanRainfall].OutOfCoverage {
		t.Error("tracked metric should be covered")
	}
	if !res[types.MetricExceptionalRainfall].OutOfCoverage {
		t.Error("untracked metric should be OutOfCoverage")
	}
}

func TestInterpolator_ReproducesLinearField(t *testing.T) {
	// Station values sampled from f(lat, lon) = 10 + 10*lat + 20*lon.
	// Piecewise-linear interpolation over any triangulation reproduces a
	// linear field exactly, including across shared edges.
	f := func(lat, lon float64) float64 { return 10 + 10*lat + 20*lon }
	ds := makeDataset(
		station(0, 0, f(0, 0)),
		station(1, 0, f(1, 0)),
		station(1, 1, f(1, 1)),
		station(0, 1, f(0, 1)),
	)
	it := New(ds)
	if len(it.tri.Triangles) != 2 {
		t.Fatalf("got %d triangles, want 2", len(it.tri.Triangles))
	}

	for _, q := range []types.QueryPoint{
		{Lat: 0.25, Lon: 0.25},
		{Lat: 0.5, Lon: 0.5},
		{Lat: 0.75, Lon: 0.75},
		{Lat: 0.2, Lon: 0.9},
		{Lat: 0.9, Lon: 0.1},
	} {
		res, err := it.At(q, meanOnly)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := mustValue(t, res[types.MetricMeanRainfall])
		want := f(q.Lat, q.Lon)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("f(%v, %v) = %v, want %v", q.Lat, q.Lon, got, want)
		}
	}
}

func TestInterpolate_OneShot(t *testing.T) {
	ds := makeDataset(
		station(43, 0, 100),
		station(44, 0, 200),
		station(43.5, 1, 150),
	)

	res, err := Interpolate(ds, types.QueryPoint{Lat: 43.5, Lon: 0.3}, meanOnly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res[types.MetricMeanRainfall].OutOfCoverage {
		t.Error("expected covered result")
	}
}
