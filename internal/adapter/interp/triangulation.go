package interp

import (
	"fmt"
	"math"

	"github.com/fogleman/delaunay"
	"github.com/golang/geo/r2"

	"go.ngs.io/forecast-prep/internal/domain"
)

// barycentricTolerance admits points on shared edges and the hull boundary.
const barycentricTolerance = 1e-12

// Triangulation is a Delaunay mesh over an irregular source point set.
type Triangulation struct {
	points    []r2.Point
	triangles []int // Vertex indices, three per triangle.
	bounds    r2.Rect
	index     *bucketIndex
}

// Build triangulates the source points given as parallel lon/lat slices.
func Build(lon, lat []float64) (*Triangulation, error) {
	if len(lon) != len(lat) {
		return nil, fmt.Errorf("coordinate length mismatch: %d longitudes vs %d latitudes", len(lon), len(lat))
	}
	if len(lon) < 3 {
		return nil, &domain.DegenerateGridError{Points: len(lon), Reason: "fewer than 3 points"}
	}

	pts := make([]delaunay.Point, len(lon))
	r2pts := make([]r2.Point, len(lon))
	for i := range lon {
		if math.IsNaN(lon[i]) || math.IsNaN(lat[i]) {
			return nil, fmt.Errorf("source point %d has NaN coordinate", i)
		}
		pts[i] = delaunay.Point{X: lon[i], Y: lat[i]}
		r2pts[i] = r2.Point{X: lon[i], Y: lat[i]}
	}

	tri, err := delaunay.Triangulate(pts)
	if err != nil || len(tri.Triangles) == 0 {
		return nil, &domain.DegenerateGridError{Points: len(lon), Reason: "all points collinear"}
	}

	t := &Triangulation{
		points:    r2pts,
		triangles: tri.Triangles,
		bounds:    r2.RectFromPoints(r2pts...),
	}
	t.index = newBucketIndex(t)
	return t, nil
}

// NumPoints returns the number of source vertices.
func (t *Triangulation) NumPoints() int { return len(t.points) }

// NumTriangles returns the number of triangles in the mesh.
func (t *Triangulation) NumTriangles() int { return len(t.triangles) / 3 }

// Bounds returns the bounding rectangle of the source points.
func (t *Triangulation) Bounds() r2.Rect { return t.bounds }

func (t *Triangulation) vertex(tri, k int) r2.Point {
	return t.points[t.triangles[3*tri+k]]
}

// locate returns the triangle containing p and the barycentric weights of its
// second and third vertices, or tri = -1 when p is outside the convex hull.
func (t *Triangulation) locate(p r2.Point) (tri int, l1, l2 float64) {
	if !t.bounds.ContainsPoint(p) {
		return -1, 0, 0
	}
	for _, cand := range t.index.candidates(p) {
		a, b, c := t.vertex(cand, 0), t.vertex(cand, 1), t.vertex(cand, 2)
		ab, ac, ap := b.Sub(a), c.Sub(a), p.Sub(a)
		det := ab.Cross(ac)
		if det == 0 {
			continue
		}
		l1 = ap.Cross(ac) / det
		l2 = ab.Cross(ap) / det
		if l1 >= -barycentricTolerance && l2 >= -barycentricTolerance && 1-l1-l2 >= -barycentricTolerance {
			return cand, l1, l2
		}
	}
	return -1, 0, 0
}

// Weights are precomputed barycentric stencils from a triangulation onto destination points.
type Weights struct {
	Vertices []int32   // Three source indices per destination point; -1 when outside the hull.
	Lambdas  []float64 // Weights of the second and third vertex per destination point.
	Outside  int       // Destination points outside the convex hull.
}

// Len returns the number of destination points.
func (w Weights) Len() int { return len(w.Vertices) / 3 }

// Weights computes interpolation stencils for destination points given as parallel lon/lat slices.
func (t *Triangulation) Weights(lon, lat []float64) (Weights, error) {
	if len(lon) != len(lat) {
		return Weights{}, fmt.Errorf("destination length mismatch: %d longitudes vs %d latitudes", len(lon), len(lat))
	}
	w := Weights{
		Vertices: make([]int32, 3*len(lon)),
		Lambdas:  make([]float64, 2*len(lon)),
	}
	for i := range lon {
		tri, l1, l2 := t.locate(r2.Point{X: lon[i], Y: lat[i]})
		if tri < 0 {
			w.Vertices[3*i], w.Vertices[3*i+1], w.Vertices[3*i+2] = -1, -1, -1
			w.Outside++
			continue
		}
		for k := 0; k < 3; k++ {
			w.Vertices[3*i+k] = int32(t.triangles[3*tri+k])
		}
		w.Lambdas[2*i], w.Lambdas[2*i+1] = l1, l2
	}
	return w, nil
}

// Apply interpolates source values into out. Points outside the hull become NaN.
func (w Weights) Apply(values, out []float64) error {
	if len(out) != w.Len() {
		return fmt.Errorf("output holds %d values, weights cover %d points", len(out), w.Len())
	}
	for i := range out {
		a := w.Vertices[3*i]
		if a < 0 {
			out[i] = math.NaN()
			continue
		}
		b, c := w.Vertices[3*i+1], w.Vertices[3*i+2]
		if int(max(a, b, c)) >= len(values) {
			return fmt.Errorf("source field has %d values, stencil references vertex %d", len(values), max(a, b, c))
		}
		va := values[a]
		// Written relative to the first vertex so a constant field is reproduced exactly.
		out[i] = va + w.Lambdas[2*i]*(values[b]-va) + w.Lambdas[2*i+1]*(values[c]-va)
	}
	return nil
}

// Interpolate returns a new slice of interpolated values.
func (w Weights) Interpolate(values []float64) ([]float64, error) {
	out := make([]float64, w.Len())
	if err := w.Apply(values, out); err != nil {
		return nil, err
	}
	return out, nil
}

// InterpolatePair interpolates a mean/std pair. Each channel is interpolated independently.
func (w Weights) InterpolatePair(pair domain.FieldPair) (domain.FieldPair, error) {
	mean, err := w.Interpolate(pair.Mean)
	if err != nil {
		return domain.FieldPair{}, fmt.Errorf("mean: %w", err)
	}
	std, err := w.Interpolate(pair.Std)
	if err != nil {
		return domain.FieldPair{}, fmt.Errorf("std: %w", err)
	}
	return domain.FieldPair{Mean: mean, Std: std}, nil
}

// bucketIndex is a uniform grid over the source bounds listing overlapping triangles per cell.
type bucketIndex struct {
	bounds r2.Rect
	nx, ny int
	cellW  float64
	cellH  float64
	cells  [][]int
}

func newBucketIndex(t *Triangulation) *bucketIndex {
	n := t.NumTriangles()
	side := max(1, int(math.Sqrt(float64(n)/2)))
	b := &bucketIndex{bounds: t.bounds, nx: side, ny: side}
	size := t.bounds.Size()
	b.cellW = size.X / float64(side)
	b.cellH = size.Y / float64(side)
	b.cells = make([][]int, side*side)

	for tri := 0; tri < n; tri++ {
		box := r2.RectFromPoints(t.vertex(tri, 0), t.vertex(tri, 1), t.vertex(tri, 2))
		x0, y0 := b.cell(box.Lo())
		x1, y1 := b.cell(box.Hi())
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				b.cells[y*b.nx+x] = append(b.cells[y*b.nx+x], tri)
			}
		}
	}
	return b
}

func (b *bucketIndex) cell(p r2.Point) (int, int) {
	x, y := 0, 0
	if b.cellW > 0 {
		x = int((p.X - b.bounds.X.Lo) / b.cellW)
	}
	if b.cellH > 0 {
		y = int((p.Y - b.bounds.Y.Lo) / b.cellH)
	}
	return min(max(x, 0), b.nx-1), min(max(y, 0), b.ny-1)
}

func (b *bucketIndex) candidates(p r2.Point) []int {
	x, y := b.cell(p)
	return b.cells[y*b.nx+x]
}
