// Package interp implements the scattered-data interpolation engine: a
// Delaunay triangulation over station coordinates and piecewise-linear
// barycentric evaluation at a query point. Extrapolation outside the convex
// hull is never approximated; uncovered queries yield the explicit
// OutOfCoverage result.
package interp

import "math"

// Point is a 2D station coordinate (X = latitude, Y = longitude).
type Point struct {
	X float64
	Y float64
}

// Triangle holds three vertex indices into the point slice, in
// counter-clockwise order.
type Triangle struct {
	A int
	B int
	C int
}

// Triangulation is a Delaunay triangulation of a point set. A set with
// fewer than 3 distinct points, or with all points collinear, produces an
// empty triangle list.
type Triangulation struct {
	Points    []Point
	Triangles []Triangle
}

// Triangulate builds a Delaunay triangulation of the given points using the
// Bowyer-Watson incremental algorithm. The input is expected to be free of
// exact duplicates; duplicate coordinates must be collapsed by the caller.
func Triangulate(points []Point) *Triangulation {
	t := &Triangulation{Points: points}
	if len(points) < 3 {
		return t
	}

	// Working vertex slice: input points followed by the three
	// super-triangle vertices at indices n, n+1, n+2.
	n := len(points)
	verts := make([]Point, n, n+3)
	copy(verts, points)
	verts = append(verts, superTriangle(points)...)

	tris := []Triangle{{A: n, B: n + 1, C: n + 2}}

	for i := 0; i < n; i++ {
		tris = insertPoint(verts, tris, i)
	}

	// Drop every triangle that touches a super-triangle vertex. Collinear
	// inputs leave nothing behind, which is the degenerate-input signal.
	for _, tr := range tris {
		if tr.A >= n || tr.B >= n || tr.C >= n {
			continue
		}
		t.Triangles = append(t.Triangles, tr)
	}

	return t
}

// superTriangle returns three vertices of a triangle that safely encloses
// the bounding box of the input points.
func superTriangle(points []Point) []Point {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}

	d := math.Max(maxX-minX, maxY-minY)
	if d == 0 {
		d = 1
	}
	midX := (minX + maxX) / 2
	midY := (minY + maxY) / 2

	return []Point{
		{X: midX - 20*d, Y: midY - d},
		{X: midX + 20*d, Y: midY - d},
		{X: midX, Y: midY + 20*d},
	}
}

// edge is an undirected edge key between two vertex indices.
type edge struct {
	lo int
	hi int
}

func makeEdge(a, b int) edge {
	if a < b {
		return edge{lo: a, hi: b}
	}
	return edge{lo: b, hi: a}
}

// insertPoint performs one Bowyer-Watson insertion step: remove every
// triangle whose circumcircle contains the point, then re-triangulate the
// resulting cavity as a fan from the new point.
func insertPoint(verts []Point, tris []Triangle, pi int) []Triangle {
	p := verts[pi]

	// Find the cavity: triangles whose circumcircle contains p. Boundary
	// edges are those appearing in exactly one cavity triangle.
	var kept []Triangle
	edgeCount := make(map[edge]int)
	for _, tr := range tris {
		if inCircumcircle(verts[tr.A], verts[tr.B], verts[tr.C], p) {
			edgeCount[makeEdge(tr.A, tr.B)]++
			edgeCount[makeEdge(tr.B, tr.C)]++
			edgeCount[makeEdge(tr.C, tr.A)]++
		} else {
			kept = append(kept, tr)
		}
	}

	for e, count := range edgeCount {
		if count != 1 {
			continue
		}
		kept = append(kept, makeCCW(verts, e.lo, e.hi, pi))
	}

	return kept
}

// makeCCW builds a triangle from three vertex indices with counter-clockwise
// winding.
func makeCCW(verts []Point, a, b, c int) Triangle {
	if orient(verts[a], verts[b], verts[c]) < 0 {
		return Triangle{A: a, B: c, C: b}
	}
	return Triangle{A: a, B: b, C: c}
}

// orient returns a positive value when a, b, c wind counter-clockwise,
// negative when clockwise, and zero when collinear.
func orient(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// inCircumcircle reports whether p lies strictly inside the circumcircle of
// the counter-clockwise triangle (a, b, c).
func inCircumcircle(a, b, c, p Point) bool {
	ax, ay := a.X-p.X, a.Y-p.Y
	bx, by := b.X-p.X, b.Y-p.Y
	cx, cy := c.X-p.X, c.Y-p.Y

	det := (ax*ax+ay*ay)*(bx*cy-cx*by) -
		(bx*bx+by*by)*(ax*cy-cx*ay) +
		(cx*cx+cy*cy)*(ax*by-bx*ay)

	return det > 0
}
