package lgcp

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Triangle is a node-index triple, oriented counter-clockwise.
type Triangle struct {
	A, B, C int
}

// dtri is a working triangle, stored counter-clockwise.
type dtri struct {
	a, b, c int
}

// inCircumcircle reports whether p lies strictly inside the circumcircle of
// the counter-clockwise triangle (a, b, c). The determinant is filtered
// against a relative error bound so exactly and nearly co-circular points
// count as outside. An inclusive or rounded test corrupts the insertion
// cavity on co-circular inputs, and every resampled circular boundary
// produces those.
func inCircumcircle(a, b, c, p orb.Point) bool {
	adx, ady := a[0]-p[0], a[1]-p[1]
	bdx, bdy := b[0]-p[0], b[1]-p[1]
	cdx, cdy := c[0]-p[0], c[1]-p[1]
	ad := adx*adx + ady*ady
	bd := bdx*bdx + bdy*bdy
	cd := cdx*cdx + cdy*cdy
	det := ad*(bdx*cdy-bdy*cdx) + bd*(cdx*ady-cdy*adx) + cd*(adx*bdy-ady*bdx)
	perm := ad*(math.Abs(bdx*cdy)+math.Abs(bdy*cdx)) +
		bd*(math.Abs(cdx*ady)+math.Abs(cdy*adx)) +
		cd*(math.Abs(adx*bdy)+math.Abs(ady*bdx))
	return det > 1e-12*perm
}

// delaunayTriangulate computes the Delaunay triangulation of pts using the
// incremental Bowyer-Watson algorithm. Insertion order follows the input
// slice, which keeps the result deterministic for a given point sequence.
// Points must be pairwise distinct (the mesh builder guarantees this by
// merging nodes under the cutoff distance first).
func delaunayTriangulate(pts []orb.Point) ([]Triangle, error) {
	if len(pts) < 3 {
		return nil, &DegenerateGeometryError{Reason: "fewer than 3 points to triangulate"}
	}

	// Super-triangle comfortably enclosing every input point.
	b := orb.MultiPoint(pts).Bound()
	cx := (b.Min[0] + b.Max[0]) / 2
	cy := (b.Min[1] + b.Max[1]) / 2
	span := math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1])
	if span == 0 {
		return nil, &DegenerateGeometryError{Reason: "all points coincide"}
	}
	m := 20 * span
	nodes := make([]orb.Point, len(pts), len(pts)+3)
	copy(nodes, pts)
	s0 := len(nodes)
	nodes = append(nodes,
		orb.Point{cx - m, cy - m},
		orb.Point{cx + m, cy - m},
		orb.Point{cx, cy + m},
	)

	tris := []dtri{newDtri(nodes, s0, s0+1, s0+2)}

	for i := range pts {
		p := pts[i]

		// Collect triangles whose circumcircle strictly contains the point.
		bad := tris[:0:0]
		keep := tris[:0:0]
		for _, t := range tris {
			if inCircumcircle(nodes[t.a], nodes[t.b], nodes[t.c], p) {
				bad = append(bad, t)
			} else {
				keep = append(keep, t)
			}
		}

		// Boundary of the cavity: edges that belong to exactly one bad triangle.
		type edge struct{ u, v int }
		edgeCount := make(map[edge]int, 3*len(bad))
		for _, t := range bad {
			for _, e := range [3]edge{{t.a, t.b}, {t.b, t.c}, {t.c, t.a}} {
				key := e
				if key.u > key.v {
					key.u, key.v = key.v, key.u
				}
				edgeCount[key]++
			}
		}
		tris = keep
		for _, t := range bad {
			for _, e := range [3]edge{{t.a, t.b}, {t.b, t.c}, {t.c, t.a}} {
				key := e
				if key.u > key.v {
					key.u, key.v = key.v, key.u
				}
				if edgeCount[key] == 1 {
					tris = append(tris, newDtri(nodes, e.u, e.v, i))
				}
			}
		}
	}

	// Drop triangles touching the super-triangle.
	out := make([]Triangle, 0, len(tris))
	for _, t := range tris {
		if t.a >= s0 || t.b >= s0 || t.c >= s0 {
			continue
		}
		out = append(out, Triangle{A: t.a, B: t.b, C: t.c})
	}
	if len(out) == 0 {
		return nil, &DegenerateGeometryError{Reason: "triangulation produced no triangles (collinear input?)"}
	}
	// Euler bound: a planar triangulation of n points has at most 2n-5
	// interior triangles. Exceeding it means the cavity logic was defeated
	// by degenerate input and the mesh contains overlaps.
	if len(out) > 2*len(pts) {
		return nil, &DegenerateGeometryError{Reason: fmt.Sprintf("inconsistent triangulation: %d triangles from %d points", len(out), len(pts))}
	}
	return out, nil
}

// newDtri builds a working triangle oriented counter-clockwise, as the
// in-circle predicate requires.
func newDtri(nodes []orb.Point, a, b, c int) dtri {
	if triArea(nodes[a], nodes[b], nodes[c]) < 0 {
		b, c = c, b
	}
	return dtri{a: a, b: b, c: c}
}
