package lgcp

import (
	"testing"

	"github.com/paulmach/orb"
)

const testFrame = "pixels"

// squareRegion returns an axis-aligned square [lo, hi]^2.
func squareRegion(t *testing.T, lo, hi float64) *Region {
	t.Helper()
	r, err := NewRegion(testFrame, orb.MultiPolygon{orb.Polygon{orb.Ring{
		{lo, lo}, {hi, lo}, {hi, hi}, {lo, hi}, {lo, lo},
	}}})
	if err != nil {
		t.Fatalf("building square region: %v", err)
	}
	return r
}

// diskRegion returns a polygonal disk around the origin.
func diskRegion(t *testing.T, radius float64, segments int) *Region {
	t.Helper()
	r, err := NewRegion(testFrame, orb.MultiPolygon{CirclePolygon(orb.Point{0, 0}, radius, segments)})
	if err != nil {
		t.Fatalf("building disk region: %v", err)
	}
	return r
}

// unitSession builds a session over the unit square [0,1]^2 with a padded
// rectangular buffer, at a resolution coarse enough for fast tests.
func unitSession(t *testing.T) *Session {
	t.Helper()
	domain := squareRegion(t, 0, 1)
	buffer := squareRegion(t, -0.3, 1.3)
	sess, err := NewSession(domain, buffer, MeshConfig{
		InnerMaxEdge: 0.12,
		OuterMaxEdge: 0.35,
		Cutoff:       0.02,
	})
	if err != nil {
		t.Fatalf("building session: %v", err)
	}
	return sess
}
