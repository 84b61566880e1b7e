package lgcp

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Region is a set of polygons (holes permitted) tagged with the coordinate
// frame they are expressed in. The frame tag is checked against the session
// frame at ingestion; geometry from mismatched frames is rejected rather
// than silently combined.
type Region struct {
	Frame    string
	Polygons orb.MultiPolygon
}

// NewRegion validates the polygons and returns a Region. Rings must be
// simple (non-self-intersecting) and have nonzero area. Outer rings are
// normalized to counter-clockwise orientation and holes to clockwise.
func NewRegion(frame string, polygons orb.MultiPolygon) (*Region, error) {
	if frame == "" {
		return nil, &DegenerateGeometryError{Reason: "region has no coordinate frame"}
	}
	if len(polygons) == 0 {
		return nil, &DegenerateGeometryError{Reason: "region has no polygons"}
	}

	normalized := make(orb.MultiPolygon, len(polygons))
	for pi, poly := range polygons {
		if len(poly) == 0 {
			return nil, &DegenerateGeometryError{Reason: fmt.Sprintf("polygon %d has no rings", pi)}
		}
		out := make(orb.Polygon, len(poly))
		for ri, ring := range poly {
			ring = closedRing(ring)
			if len(ring) < 4 {
				return nil, &DegenerateGeometryError{Reason: fmt.Sprintf("polygon %d ring %d has fewer than 3 vertices", pi, ri)}
			}
			if math.Abs(signedArea(ring)) < 1e-12 {
				return nil, &DegenerateGeometryError{Reason: fmt.Sprintf("polygon %d ring %d has zero area", pi, ri)}
			}
			if selfIntersects(ring) {
				return nil, &DegenerateGeometryError{Reason: fmt.Sprintf("polygon %d ring %d self-intersects", pi, ri)}
			}
			// Outer ring CCW (positive area), holes CW (negative area).
			wantCCW := ri == 0
			if (signedArea(ring) > 0) != wantCCW {
				ring.Reverse()
			}
			out[ri] = ring
		}
		normalized[pi] = out
	}

	return &Region{Frame: frame, Polygons: normalized}, nil
}

// Contains reports whether p lies inside the region (holes excluded).
func (r *Region) Contains(p orb.Point) bool {
	return planar.MultiPolygonContains(r.Polygons, p)
}

// Area returns the total polygon area, holes subtracted.
func (r *Region) Area() float64 {
	return planar.Area(r.Polygons)
}

// Bound returns the bounding box of all polygons.
func (r *Region) Bound() orb.Bound {
	return r.Polygons.Bound()
}

// PointPattern is an ordered, immutable set of observed point locations in
// a named coordinate frame.
type PointPattern struct {
	Frame  string
	Points []orb.Point
}

// NewPointPattern copies pts into a new pattern. The pattern is treated as
// immutable after construction.
func NewPointPattern(frame string, pts []orb.Point) *PointPattern {
	cp := make([]orb.Point, len(pts))
	copy(cp, pts)
	return &PointPattern{Frame: frame, Points: cp}
}

// Restrict returns the subset of points inside the given bound, preserving
// order.
func (pp *PointPattern) Restrict(b orb.Bound) []orb.Point {
	var out []orb.Point
	for _, p := range pp.Points {
		if b.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

// CirclePolygon approximates a circle as a counter-clockwise polygon with n
// segments. Used for circular cell outlines and buffer boundaries.
func CirclePolygon(center orb.Point, radius float64, n int) orb.Polygon {
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, orb.Point{center[0] + radius*math.Cos(a), center[1] + radius*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// closedRing ensures first == last without mutating the input.
func closedRing(ring orb.Ring) orb.Ring {
	if len(ring) == 0 || ring[0] == ring[len(ring)-1] {
		return ring
	}
	out := make(orb.Ring, len(ring)+1)
	copy(out, ring)
	out[len(ring)] = ring[0]
	return out
}

// selfIntersects checks a closed ring for proper intersections between
// non-adjacent edges. O(n^2); rings here are small (hundreds of vertices).
func selfIntersects(ring orb.Ring) bool {
	n := len(ring) - 1 // last vertex repeats the first
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			// Skip adjacent edges, including the wrap-around pair.
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsCross(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

// segmentsCross reports a proper crossing of segments ab and cd.
func segmentsCross(a, b, c, d orb.Point) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

// signedArea returns the signed shoelace area of a closed ring
// (positive for counter-clockwise winding).
func signedArea(ring orb.Ring) float64 {
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return sum / 2
}

// cross returns the z-component of (b-a) x (p-a).
func cross(a, b, p orb.Point) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

// triArea returns the signed area of triangle abc (positive if CCW).
func triArea(a, b, c orb.Point) float64 {
	return 0.5 * ((b[0]-a[0])*(c[1]-a[1]) - (c[0]-a[0])*(b[1]-a[1]))
}

// barycentric returns the barycentric coordinates of p in triangle abc.
// The three weights sum to 1 for any p; all are >= 0 iff p is inside.
func barycentric(a, b, c, p orb.Point) (w0, w1, w2 float64) {
	area := triArea(a, b, c)
	if area == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	w0 = triArea(p, b, c) / area
	w1 = triArea(a, p, c) / area
	w2 = 1 - w0 - w1
	return w0, w1, w2
}

// kdPoint is a coordinate plus its index, stored in a kd-tree for
// nearest-neighbor queries (node merging, point-location seeding,
// nearest-crowder lookups in the simulator).
type kdPoint struct {
	P   orb.Point
	Idx int
}

// Compare implements kdtree.Comparable.
func (p kdPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdPoint)
	if d == 0 {
		return p.P[0] - q.P[0]
	}
	return p.P[1] - q.P[1]
}

// Dims implements kdtree.Comparable.
func (p kdPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance to c.
func (p kdPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(kdPoint)
	dx := p.P[0] - q.P[0]
	dy := p.P[1] - q.P[1]
	return dx*dx + dy*dy
}

// kdPoints satisfies kdtree.Interface.
type kdPoints []kdPoint

func (p kdPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p kdPoints) Len() int                              { return len(p) }
func (p kdPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p kdPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(kdPlane{kdPoints: p, Dim: d}, kdtree.MedianOfRandoms(kdPlane{kdPoints: p, Dim: d}, 100))
}

// kdPlane implements kdtree.SortSlicer over one dimension of kdPoints.
type kdPlane struct {
	kdPoints
	kdtree.Dim
}

func (p kdPlane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.kdPoints[i].P[0] < p.kdPoints[j].P[0]
	}
	return p.kdPoints[i].P[1] < p.kdPoints[j].P[1]
}

func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	return kdPlane{kdPoints: p.kdPoints[start:end], Dim: p.Dim}
}

func (p kdPlane) Swap(i, j int) {
	p.kdPoints[i], p.kdPoints[j] = p.kdPoints[j], p.kdPoints[i]
}

// newPointTree builds a kd-tree over the given coordinates.
func newPointTree(pts []orb.Point) *kdtree.Tree {
	data := make(kdPoints, len(pts))
	for i, p := range pts {
		data[i] = kdPoint{P: p, Idx: i}
	}
	return kdtree.New(data, false)
}
