package lgcp

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjector_PartitionOfUnity(t *testing.T) {
	sess := unitSession(t)
	pr := sess.Projector()

	rng := rand.New(rand.NewSource(3))
	pts := make([]orb.Point, 200)
	for i := range pts {
		pts[i] = orb.Point{rng.Float64(), rng.Float64()}
	}

	proj, err := pr.Project(pts)
	require.NoError(t, err)
	require.Len(t, proj.Rows, len(pts))

	for i, row := range proj.Rows {
		sum := row.Weights[0] + row.Weights[1] + row.Weights[2]
		assert.InDelta(t, 1.0, sum, 1e-12, "row %d", i)
		for _, w := range row.Weights {
			assert.GreaterOrEqual(t, w, 0.0, "row %d", i)
		}
		assert.GreaterOrEqual(t, row.Triangle, 0)
	}
}

// Projecting a mesh node must recover that node's coefficient exactly.
func TestProjector_NodeIdentity(t *testing.T) {
	sess := unitSession(t)
	pr := sess.Projector()
	mesh := sess.Mesh

	vals := make([]float64, mesh.NumNodes())
	for i := range vals {
		vals[i] = float64(i)
	}

	proj, err := pr.Project(mesh.Nodes)
	require.NoError(t, err)
	got := proj.Apply(vals)
	for i := range mesh.Nodes {
		assert.InDelta(t, vals[i], got[i], 1e-9, "node %d", i)
	}
}

// A linear function is reproduced exactly by linear basis interpolation.
func TestProjector_ReproducesLinearFields(t *testing.T) {
	sess := unitSession(t)
	pr := sess.Projector()
	mesh := sess.Mesh

	f := func(p orb.Point) float64 { return 2*p[0] - 3*p[1] + 0.5 }
	vals := make([]float64, mesh.NumNodes())
	for i, p := range mesh.Nodes {
		vals[i] = f(p)
	}

	pts := []orb.Point{{0.2, 0.7}, {0.5, 0.5}, {0.93, 0.08}, {0.01, 0.99}}
	proj, err := pr.Project(pts)
	require.NoError(t, err)
	got := proj.Apply(vals)
	for i, p := range pts {
		assert.InDelta(t, f(p), got[i], 1e-9)
	}
}

func TestProjector_OutOfDomainFailsBatch(t *testing.T) {
	sess := unitSession(t)
	pr := sess.Projector()

	pts := []orb.Point{{0.5, 0.5}, {10, 10}, {0.2, 0.2}}
	_, err := pr.Project(pts)
	var ood *OutOfDomainError
	require.Error(t, err)
	require.True(t, errors.As(err, &ood))
	assert.Equal(t, 1, ood.Index)
	assert.Equal(t, orb.Point{10, 10}, ood.Point)
}

func TestProjector_Covers(t *testing.T) {
	sess := unitSession(t)
	pr := sess.Projector()

	assert.True(t, pr.Covers(orb.Point{0.5, 0.5}), "domain interior")
	assert.True(t, pr.Covers(orb.Point{1.15, 0.5}), "buffer annulus is meshed too")
	assert.False(t, pr.Covers(orb.Point{5, 5}))
}

// Points on shared edges must resolve to the same row every time.
func TestProjector_EdgePointsDeterministic(t *testing.T) {
	sess := unitSession(t)
	pr := sess.Projector()
	mesh := sess.Mesh

	tr := mesh.Triangles[0]
	a, b := mesh.Nodes[tr.A], mesh.Nodes[tr.B]
	mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}

	first, ok := pr.locate(mid)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		row, ok := pr.locate(mid)
		require.True(t, ok)
		assert.Equal(t, first, row)
	}
}
