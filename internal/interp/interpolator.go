package interp

import (
	"fmt"

	"rainpoint/internal/types"
)

// weightEpsilon is the tolerance on barycentric weights when deciding that
// a query point lies inside (or exactly on the boundary of) a triangle.
// Piecewise-linear interpolation is continuous across shared edges, so any
// triangle accepted within this tolerance yields the same value.
const weightEpsilon = 1e-9

// Interpolator evaluates piecewise-linear interpolation over one Dataset.
// It precomputes the triangulation of the station coordinates so repeated
// queries against the same dataset share the geometric work. An
// Interpolator is immutable and safe for concurrent use.
type Interpolator struct {
	dataset *types.Dataset

	// points are the distinct station coordinates; recordIdx maps each
	// point back to the first record carrying that coordinate. Duplicate
	// coordinates are legal in a Dataset; collapsing them to the first
	// occurrence keeps vertex values well-defined.
	points    []Point
	recordIdx []int

	tri *Triangulation
}

// New builds an Interpolator over the given dataset.
func New(ds *types.Dataset) *Interpolator {
	it := &Interpolator{dataset: ds}

	seen := make(map[Point]struct{}, len(ds.Records))
	for i, rec := range ds.Records {
		p := Point{X: rec.Latitude, Y: rec.Longitude}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		it.points = append(it.points, p)
		it.recordIdx = append(it.recordIdx, i)
	}

	it.tri = Triangulate(it.points)
	return it
}

// Dataset returns the dataset this Interpolator was built over.
func (it *Interpolator) Dataset() *types.Dataset {
	return it.dataset
}

// Covered reports whether the dataset admits any interpolation at all,
// i.e. it has at least 3 distinct non-collinear station coordinates.
func (it *Interpolator) Covered() bool {
	return len(it.tri.Triangles) > 0
}

// At evaluates every requested metric at the query point. Each metric is
// either a finite estimate or OutOfCoverage; a query outside the convex
// hull of the stations, or against a degenerate dataset, is OutOfCoverage
// for every metric. The only error is a non-finite query point.
func (it *Interpolator) At(q types.QueryPoint, kinds []types.MetricKind) (map[types.MetricKind]types.InterpolationResult, error) {
	if !q.Valid() {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidQuery,
			fmt.Sprintf("query point (%v, %v) is not finite", q.Lat, q.Lon),
			nil,
		)
	}

	results := make(map[types.MetricKind]types.InterpolationResult, len(kinds))

	tr, w, ok := it.locate(Point{X: q.Lat, Y: q.Lon})
	if !ok {
		for _, kind := range kinds {
			results[kind] = types.OutOfCoverageResult
		}
		return results, nil
	}

	recs := [3]types.StationRecord{
		it.dataset.Records[it.recordIdx[tr.A]],
		it.dataset.Records[it.recordIdx[tr.B]],
		it.dataset.Records[it.recordIdx[tr.C]],
	}

	for _, kind := range kinds {
		v0, ok0 := recs[0].Metrics[kind]
		v1, ok1 := recs[1].Metrics[kind]
		v2, ok2 := recs[2].Metrics[kind]
		if !ok0 || !ok1 || !ok2 {
			// A kind the dataset does not track cannot be estimated.
			results[kind] = types.OutOfCoverageResult
			continue
		}
		results[kind] = types.Covered(w[0]*v0 + w[1]*v1 + w[2]*v2)
	}

	return results, nil
}

// locate finds a triangle containing p and the barycentric weights of p
// with respect to its vertices. Returns ok=false when p lies outside every
// triangle of the triangulation.
func (it *Interpolator) locate(p Point) (Triangle, [3]float64, bool) {
	for _, tr := range it.tri.Triangles {
		w, ok := barycentric(it.points[tr.A], it.points[tr.B], it.points[tr.C], p)
		if ok {
			return tr, w, true
		}
	}
	return Triangle{}, [3]float64{}, false
}

// barycentric computes the weights of p with respect to triangle (a, b, c).
// Returns ok=false when p falls outside the triangle (any weight below
// -weightEpsilon) or the triangle is degenerate.
func barycentric(a, b, c, p Point) ([3]float64, bool) {
	det := (b.Y-c.Y)*(a.X-c.X) + (c.X-b.X)*(a.Y-c.Y)
	if det == 0 {
		return [3]float64{}, false
	}

	w0 := ((b.Y-c.Y)*(p.X-c.X) + (c.X-b.X)*(p.Y-c.Y)) / det
	w1 := ((c.Y-a.Y)*(p.X-c.X) + (a.X-c.X)*(p.Y-c.Y)) / det
	w2 := 1 - w0 - w1

	if w0 < -weightEpsilon || w1 < -weightEpsilon || w2 < -weightEpsilon {
		return [3]float64{}, false
	}
	return [3]float64{w0, w1, w2}, true
}

// Interpolate is the one-shot form: it builds the triangulation for ds and
// evaluates the query. Callers issuing repeated queries against the same
// dataset should construct an Interpolator instead.
func Interpolate(ds *types.Dataset, q types.QueryPoint, kinds []types.MetricKind) (map[types.MetricKind]types.InterpolationResult, error) {
	return New(ds).At(q, kinds)
}
