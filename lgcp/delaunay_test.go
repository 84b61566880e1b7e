package lgcp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelaunayTriangulate_Square(t *testing.T) {
	pts := []orb.Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	tris, err := delaunayTriangulate(pts)
	require.NoError(t, err)
	require.Len(t, tris, 2)

	var area float64
	for _, tr := range tris {
		a := triArea(pts[tr.A], pts[tr.B], pts[tr.C])
		assert.Greater(t, a, 0.0, "triangles should come out CCW")
		area += a
	}
	assert.InDelta(t, 1.0, area, 1e-12)
}

func TestDelaunayTriangulate_TooFewPoints(t *testing.T) {
	_, err := delaunayTriangulate([]orb.Point{{0, 0}, {1, 1}})
	assert.Error(t, err)
}

// The defining property: no input point falls strictly inside the
// circumcircle of any triangle.
func TestDelaunayTriangulate_EmptyCircumcircles(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pts := make([]orb.Point, 60)
	for i := range pts {
		pts[i] = orb.Point{rng.Float64() * 10, rng.Float64() * 10}
	}

	tris, err := delaunayTriangulate(pts)
	require.NoError(t, err)
	require.NotEmpty(t, tris)

	for ti, tr := range tris {
		for pi, p := range pts {
			if pi == tr.A || pi == tr.B || pi == tr.C {
				continue
			}
			assert.False(t, inCircumcircle(pts[tr.A], pts[tr.B], pts[tr.C], p),
				"point %d inside circumcircle of triangle %d", pi, ti)
		}
	}
}

// Co-circular inputs are the worst case for the insertion cavity: every
// resampled circular boundary puts all of its samples on one circle. The
// triangulation must stay consistent (no overlaps, full polygon coverage)
// instead of degenerating.
func TestDelaunayTriangulate_CocircularPoints(t *testing.T) {
	for _, n := range []int{8, 16, 64} {
		pts := make([]orb.Point, n)
		for i := range pts {
			theta := 2 * math.Pi * float64(i) / float64(n)
			pts[i] = orb.Point{math.Cos(theta), math.Sin(theta)}
		}

		tris, err := delaunayTriangulate(pts)
		require.NoError(t, err, "n=%d", n)
		// A triangulated n-gon has exactly n-2 triangles.
		assert.Len(t, tris, n-2, "n=%d", n)

		var area float64
		for _, tr := range tris {
			a := triArea(pts[tr.A], pts[tr.B], pts[tr.C])
			assert.Greater(t, a, 0.0)
			area += a
		}
		want := float64(n) / 2 * math.Sin(2*math.Pi/float64(n))
		assert.InDelta(t, want, area, 1e-9, "n=%d", n)
	}
}

// Points on a circle plus interior points, the shape every disk mesh
// produces. The triangle count must respect the planar Euler bound rather
// than exploding with overlapping triangles.
func TestDelaunayTriangulate_CocircularWithInterior(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	var pts []orb.Point
	const n = 48
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		pts = append(pts, orb.Point{math.Cos(theta), math.Sin(theta)})
	}
	for len(pts) < n+40 {
		p := orb.Point{2*rng.Float64() - 1, 2*rng.Float64() - 1}
		if p[0]*p[0]+p[1]*p[1] < 0.8 {
			pts = append(pts, p)
		}
	}

	tris, err := delaunayTriangulate(pts)
	require.NoError(t, err)
	assert.Less(t, len(tris), 2*len(pts))

	var area float64
	for _, tr := range tris {
		area += triArea(pts[tr.A], pts[tr.B], pts[tr.C])
	}
	want := float64(n) / 2 * math.Sin(2*math.Pi/float64(n))
	assert.InDelta(t, want, area, 1e-9)
}

func TestDelaunayTriangulate_CoversConvexHullArea(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	pts := []orb.Point{{0, 0}, {4, 0}, {4, 4}, {0, 4}}
	for i := 0; i < 40; i++ {
		pts = append(pts, orb.Point{rng.Float64() * 4, rng.Float64() * 4})
	}

	tris, err := delaunayTriangulate(pts)
	require.NoError(t, err)

	var area float64
	for _, tr := range tris {
		area += triArea(pts[tr.A], pts[tr.B], pts[tr.C])
	}
	assert.InDelta(t, 16.0, area, 1e-9)
}
