package lgcp

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_CachesDerivedViews(t *testing.T) {
	sess := unitSession(t)

	assert.Same(t, sess.Projector(), sess.Projector())
	assert.Same(t, sess.Integration(), sess.Integration())

	op1, err := sess.Operator(1)
	require.NoError(t, err)
	op1again, err := sess.Operator(1)
	require.NoError(t, err)
	assert.Same(t, op1, op1again)

	op2, err := sess.Operator(2)
	require.NoError(t, err)
	assert.NotSame(t, op1, op2)

	_, err = sess.Operator(5)
	assert.Error(t, err)
}

func TestSession_CheckPattern(t *testing.T) {
	sess := unitSession(t)

	assert.NoError(t, sess.CheckPattern(NewPointPattern(testFrame, []orb.Point{{0.5, 0.5}})))

	err := sess.CheckPattern(NewPointPattern("micrometers", []orb.Point{{0.5, 0.5}}))
	var degenerate *DegenerateGeometryError
	require.Error(t, err)
	assert.ErrorAs(t, err, &degenerate)

	// Points in the buffer but outside the domain are rejected too.
	err = sess.CheckPattern(NewPointPattern(testFrame, []orb.Point{{0.5, 0.5}, {1.2, 0.5}}))
	var ood *OutOfDomainError
	require.Error(t, err)
	require.ErrorAs(t, err, &ood)
	assert.Equal(t, 1, ood.Index)
}

func TestSession_CheckCovariate(t *testing.T) {
	sess := unitSession(t)

	good, err := NewRaster("dapi", testFrame, orb.Point{0, 0}, 0.5, 0.5, 2, 2, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.NoError(t, sess.CheckCovariate(good))

	bad, err := NewRaster("dapi", "micrometers", orb.Point{0, 0}, 0.5, 0.5, 2, 2, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Error(t, sess.CheckCovariate(bad))

	// Non-raster covariates carry no frame.
	assert.NoError(t, sess.CheckCovariate(&ConstantCovariate{CovName: "one", Value: 1}))
}
