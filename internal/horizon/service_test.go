package horizon

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"

	"rainpoint/internal/config"
	"rainpoint/internal/dataset"
	"rainpoint/internal/types"
)

// --- Test Fixtures ---

const csvHeader = "Latitude;Longitude;mm"

var testKinds = []types.MetricKind{types.MetricMeanRainfall}

var testColumns = dataset.ColumnSpec{
	Lat:     "Latitude",
	Lon:     "Longitude",
	Metrics: map[types.MetricKind]string{types.MetricMeanRainfall: "mm"},
}

// mapSource serves datasets from an in-memory map. Fingerprints are
// per-entry version strings.
type mapSource struct {
	mu     sync.Mutex
	bodies map[string]string
	fps    map[string]string
}

func newMapSource() *mapSource {
	return &mapSource{bodies: make(map[string]string), fps: make(map[string]string)}
}

func (s *mapSource) put(id, body, fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[id] = body
	s.fps[id] = fp
}

func (s *mapSource) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bodies, id)
	delete(s.fps, id)
}

func (s *mapSource) Open(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.bodies[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeLoadNotFound, fmt.Sprintf("dataset source %s not found", id), nil)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (s *mapSource) Fingerprint(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp, ok := s.fps[id]
	if !ok {
		return "", types.NewAppError(types.ErrCodeLoadNotFound, fmt.Sprintf("dataset source %s not found", id), nil)
	}
	return fp, nil
}

// triangleBody builds a three-station dataset body where every station
// carries the given metric value scaled per vertex: v, v*2, v*1.5. A query
// at (43.5, 0.3) always falls inside the triangle.
func triangleBody(v float64) string {
	f := func(x float64) string {
		return strings.ReplaceAll(fmt.Sprintf("%g", x), ".", ",")
	}
	return csvHeader + "\n" +
		"43,0;0,0;" + f(v) + "\n" +
		"44,0;0,0;" + f(2*v) + "\n" +
		"43,5;1,0;" + f(1.5*v) + "\n"
}

var testHorizons = []config.HorizonSpec{
	{Label: "2030", Source: "2030.csv"},
	{Label: "2050", Source: "2050.csv"},
	{Label: "2100", Source: "2100.csv"},
}

func newTestService(src dataset.Source) *Service {
	loader := dataset.NewLoader(src, testColumns, nil)
	cache := dataset.NewCache(loader, nil)
	return NewService(cache, testHorizons, testKinds, "2030", nil)
}

// --- Tests ---

func TestEvaluatePoint_AllHorizons(t *testing.T) {
	src := newMapSource()
	src.put("2030.csv", triangleBody(100), "v1")
	src.put("2050.csv", triangleBody(120), "v1")
	src.put("2100.csv", triangleBody(150), "v1")

	svc := newTestService(src)

	est, err := svc.EvaluatePoint(context.Background(), 43.5, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if est.Baseline != "2030" {
		t.Errorf("baseline = %q, want 2030", est.Baseline)
	}
	if len(est.Series) != 3 {
		t.Fatalf("series length = %d, want 3", len(est.Series))
	}
	for i, want := range []string{"2030", "2050", "2100"} {
		if est.Series[i].Horizon != want {
			t.Errorf("series[%d].Horizon = %q, want %q", i, est.Series[i].Horizon, want)
		}
		if est.Series[i].Err != nil {
			t.Errorf("series[%d] unexpectedly failed: %v", i, est.Series[i].Err)
		}
		res := est.Series[i].Results[types.MetricMeanRainfall]
		if res.OutOfCoverage || res.Value == nil {
			t.Errorf("series[%d] out of coverage, expected a value", i)
		}
	}

	// The three datasets are the same field scaled by 1.2 and 1.5, so the
	// interpolated values scale identically and the deltas are exact.
	d2050 := est.Deltas["2050"][types.MetricMeanRainfall]
	if d2050.Undefined || d2050.PctChange == nil {
		t.Fatal("2050 delta should be defined")
	}
	if math.Abs(*d2050.PctChange-20) > 1e-9 {
		t.Errorf("2050 delta = %v%%, want +20%%", *d2050.PctChange)
	}

	d2100 := est.Deltas["2100"][types.MetricMeanRainfall]
	if d2100.Undefined || d2100.PctChange == nil {
		t.Fatal("2100 delta should be defined")
	}
	if math.Abs(*d2100.PctChange-50) > 1e-9 {
		t.Errorf("2100 delta = %v%%, want +50%%", *d2100.PctChange)
	}

	// The baseline itself never appears in the delta map.
	if _, ok := est.Deltas["2030"]; ok {
		t.Error("baseline horizon must not carry a delta")
	}
}

func TestEvaluatePoint_PartialSuccess(t *testing.T) {
	src := newMapSource()
	src.put("2030.csv", triangleBody(100), "v1")
	// 2050.csv missing entirely.
	src.put("2100.csv", triangleBody(150), "v1")

	svc := newTestService(src)

	est, err := svc.EvaluatePoint(context.Background(), 43.5, 0.3)
	if err != nil {
		t.Fatalf("one failed horizon must not fail the query: %v", err)
	}
	if len(est.Series) != 3 {
		t.Fatalf("series length = %d, want 3", len(est.Series))
	}

	if est.Series[0].Err != nil {
		t.Errorf("2030 unexpectedly failed: %v", est.Series[0].Err)
	}
	if est.Series[1].Err == nil {
		t.Fatal("2050 should carry its load error")
	}
	if est.Series[1].Err.Code != types.ErrCodeLoadNotFound {
		t.Errorf("2050 error code = %s, want %s", est.Series[1].Err.Code, types.ErrCodeLoadNotFound)
	}
	if est.Series[2].Err != nil {
		t.Errorf("2100 unexpectedly failed: %v", est.Series[2].Err)
	}

	// Delta against an intact baseline is still computed for 2100, but the
	// failed 2050 horizon reports Undefined.
	if est.Deltas["2050"][types.MetricMeanRainfall].Undefined != true {
		t.Error("failed horizon delta should be Undefined")
	}
	if est.Deltas["2100"][types.MetricMeanRainfall].Undefined {
		t.Error("intact horizon delta should be defined")
	}
}

func TestEvaluatePoint_OutOfCoverage(t *testing.T) {
	src := newMapSource()
	src.put("2030.csv", triangleBody(100), "v1")
	src.put("2050.csv", triangleBody(120), "v1")
	src.put("2100.csv", triangleBody(150), "v1")

	svc := newTestService(src)

	est, err := svc.EvaluatePoint(context.Background(), 50, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range est.Series {
		res := est.Series[i].Results[types.MetricMeanRainfall]
		if !res.OutOfCoverage {
			t.Errorf("series[%d] should be OutOfCoverage", i)
		}
	}
	for h, kinds := range est.Deltas {
		if !kinds[types.MetricMeanRainfall].Undefined {
			t.Errorf("delta for %s should be Undefined when out of coverage", h)
		}
	}
}

func TestEvaluatePoint_NonFiniteQuery(t *testing.T) {
	src := newMapSource()
	svc := newTestService(src)

	_, err := svc.EvaluatePoint(context.Background(), math.NaN(), 0.3)
	if err == nil {
		t.Fatal("expected error for non-finite query")
	}
	appErr, ok := err.(*types.AppError)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidQuery {
		t.Errorf("error code = %s, want %s", appErr.Code, types.ErrCodeValidationInvalidQuery)
	}
}

func TestEvaluatePoint_ZeroBaselineDeltaUndefined(t *testing.T) {
	src := newMapSource()
	// All stations in the baseline carry 0, so the interpolated baseline is
	// exactly 0 at any covered point.
	src.put("2030.csv", csvHeader+"\n43,0;0,0;0\n44,0;0,0;0\n43,5;1,0;0\n", "v1")
	src.put("2050.csv", triangleBody(120), "v1")
	src.put("2100.csv", triangleBody(150), "v1")

	svc := newTestService(src)

	est, err := svc.EvaluatePoint(context.Background(), 43.5, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, h := range []string{"2050", "2100"} {
		d := est.Deltas[h][types.MetricMeanRainfall]
		if !d.Undefined {
			t.Errorf("delta for %s against a zero baseline should be Undefined", h)
		}
		if d.PctChange != nil {
			t.Errorf("Undefined delta for %s must not carry a value", h)
		}
	}
}

func TestEvaluatePoint_FailedBaselineDeltasUndefined(t *testing.T) {
	src := newMapSource()
	// Baseline missing; later horizons intact.
	src.put("2050.csv", triangleBody(120), "v1")
	src.put("2100.csv", triangleBody(150), "v1")

	svc := newTestService(src)

	est, err := svc.EvaluatePoint(context.Background(), 43.5, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.Series[0].Err == nil {
		t.Fatal("baseline should carry its load error")
	}
	for _, h := range []string{"2050", "2100"} {
		if !est.Deltas[h][types.MetricMeanRainfall].Undefined {
			t.Errorf("delta for %s should be Undefined without a baseline", h)
		}
	}
}

func TestEvaluatePoint_InterpolatorReuseAndRebuild(t *testing.T) {
	src := newMapSource()
	src.put("2030.csv", triangleBody(100), "v1")
	src.put("2050.csv", triangleBody(120), "v1")
	src.put("2100.csv", triangleBody(150), "v1")

	svc := newTestService(src)

	est1, err := svc.EvaluatePoint(context.Background(), 43.5, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v1 := *est1.Series[0].Results[types.MetricMeanRainfall].Value

	// Same content identity: the answer is identical.
	est2, err := svc.EvaluatePoint(context.Background(), 43.5, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v2 := *est2.Series[0].Results[types.MetricMeanRainfall].Value; v2 != v1 {
		t.Errorf("cached evaluation changed: %v != %v", v2, v1)
	}

	// Changed source content with a new fingerprint is picked up without
	// explicit invalidation.
	src.put("2030.csv", triangleBody(200), "v2")
	est3, err := svc.EvaluatePoint(context.Background(), 43.5, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v3 := *est3.Series[0].Results[types.MetricMeanRainfall].Value
	if math.Abs(v3-2*v1) > 1e-9 {
		t.Errorf("rebuilt evaluation = %v, want %v", v3, 2*v1)
	}
}

func TestInvalidateDatasets(t *testing.T) {
	src := newMapSource()
	src.put("2030.csv", triangleBody(100), "v1")
	src.put("2050.csv", triangleBody(120), "v1")
	src.put("2100.csv", triangleBody(150), "v1")

	svc := newTestService(src)

	if _, err := svc.EvaluatePoint(context.Background(), 43.5, 0.3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// After invalidation a removed source surfaces as a failed horizon.
	src.remove("2100.csv")
	svc.InvalidateDatasets()

	est, err := svc.EvaluatePoint(context.Background(), 43.5, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if est.Series[2].Err == nil {
		t.Error("removed source should fail after invalidation")
	}
}

func TestComputeDeltas_Direct(t *testing.T) {
	v := func(x float64) types.InterpolationResult { return types.Covered(x) }
	series := types.HorizonSeries{
		{Horizon: "2030", Results: map[types.MetricKind]types.InterpolationResult{types.MetricMeanRainfall: v(100)}},
		{Horizon: "2050", Results: map[types.MetricKind]types.InterpolationResult{types.MetricMeanRainfall: v(120)}},
		{Horizon: "2100", Results: map[types.MetricKind]types.InterpolationResult{types.MetricMeanRainfall: types.OutOfCoverageResult}},
	}

	deltas := ComputeDeltas(series, "2030", testKinds)

	d := deltas["2050"][types.MetricMeanRainfall]
	if d.Undefined || d.PctChange == nil || math.Abs(*d.PctChange-20) > 1e-9 {
		t.Errorf("2050 delta = %+v, want +20%%", d)
	}
	if !deltas["2100"][types.MetricMeanRainfall].Undefined {
		t.Error("OutOfCoverage horizon delta should be Undefined")
	}
	if _, ok := deltas["2030"]; ok {
		t.Error("baseline must not carry a delta")
	}
}

func TestComputeDeltas_NegativeChange(t *testing.T) {
	v := func(x float64) types.InterpolationResult { return types.Covered(x) }
	series := types.HorizonSeries{
		{Horizon: "2030", Results: map[types.MetricKind]types.InterpolationResult{types.MetricMeanRainfall: v(200)}},
		{Horizon: "2050", Results: map[types.MetricKind]types.InterpolationResult{types.MetricMeanRainfall: v(150)}},
	}

	deltas := ComputeDeltas(series, "2030", testKinds)
	d := deltas["2050"][types.MetricMeanRainfall]
	if d.Undefined || d.PctChange == nil || math.Abs(*d.PctChange+25) > 1e-9 {
		t.Errorf("2050 delta = %+v, want -25%%", d)
	}
}
