package lgcp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewFieldOperator_RejectsBadAlpha(t *testing.T) {
	sess := unitSession(t)
	for _, alpha := range []int{0, 3, -1} {
		_, err := NewFieldOperator(sess.Mesh, alpha)
		assert.Error(t, err, "alpha=%d", alpha)
	}
}

func TestFieldOperator_MassSumsToMeshArea(t *testing.T) {
	sess := unitSession(t)
	op, err := NewFieldOperator(sess.Mesh, 2)
	require.NoError(t, err)

	var total float64
	for _, m := range op.MassDiag() {
		assert.Greater(t, m, 0.0)
		total += m
	}
	assert.InDelta(t, sess.Mesh.TotalArea(), total, 1e-9)
}

func TestFieldOperator_StiffnessProperties(t *testing.T) {
	sess := unitSession(t)
	op, err := NewFieldOperator(sess.Mesh, 1)
	require.NoError(t, err)
	g := op.Stiffness()

	assert.Equal(t, sess.Mesh.NumNodes(), g.N)
	assert.InDelta(t, 0.0, g.MaxAsymmetry(), 1e-10)

	// The stiffness matrix annihilates constants: G * 1 = 0.
	ones := make([]float64, g.N)
	for i := range ones {
		ones[i] = 1
	}
	for i, v := range g.MulVec(ones) {
		assert.InDelta(t, 0.0, v, 1e-9, "row %d", i)
	}
}

func TestPrecision_RejectsBadHyperparameters(t *testing.T) {
	sess := unitSession(t)
	op, err := NewFieldOperator(sess.Mesh, 2)
	require.NoError(t, err)

	tests := []struct {
		name       string
		rng, sigma float64
		wantName   string
	}{
		{"zero range", 0, 1, "range"},
		{"negative range", -2, 1, "range"},
		{"zero sigma", 1, 0, "sigma"},
		{"negative sigma", 1, -0.5, "sigma"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := op.Precision(tt.rng, tt.sigma)
			var invalid *InvalidHyperparameterError
			require.Error(t, err)
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, tt.wantName, invalid.Name)
		})
	}
}

func TestPrecision_SymmetricPositiveDefinite(t *testing.T) {
	sess := unitSession(t)

	for _, alpha := range []int{1, 2} {
		op, err := NewFieldOperator(sess.Mesh, alpha)
		require.NoError(t, err)

		for _, rng := range []float64{0.1, 0.5, 2.0} {
			for _, sigma := range []float64{0.2, 1.0, 5.0} {
				t.Run(fmt.Sprintf("alpha=%d_range=%g_sigma=%g", alpha, rng, sigma), func(t *testing.T) {
					q, err := op.Precision(rng, sigma)
					require.NoError(t, err)
					assert.Equal(t, sess.Mesh.NumNodes(), q.N)
					assert.InDelta(t, 0.0, q.MaxAsymmetry(), 1e-8*maxAbsDiag(q))

					var chol mat.Cholesky
					assert.True(t, chol.Factorize(q.ToSym()),
						"precision should be positive definite")
				})
			}
		}
	}
}

func TestPrecision_SparsitySurvivesAlpha2(t *testing.T) {
	sess := unitSession(t)
	op, err := NewFieldOperator(sess.Mesh, 2)
	require.NoError(t, err)

	q, err := op.Precision(0.5, 1.0)
	require.NoError(t, err)

	// alpha=2 widens the stencil to second-order neighbors but stays far
	// from dense.
	n := sess.Mesh.NumNodes()
	assert.Less(t, q.NNZ(), n*n/4, "precision lost its sparsity")
}

// At fixed range the precision scales exactly with 1/sigma^2.
func TestPrecision_SigmaScaling(t *testing.T) {
	sess := unitSession(t)
	op, err := NewFieldOperator(sess.Mesh, 1)
	require.NoError(t, err)

	q1, err := op.Precision(0.5, 1.0)
	require.NoError(t, err)
	q2, err := op.Precision(0.5, 2.0)
	require.NoError(t, err)

	require.Equal(t, q1.NNZ(), q2.NNZ())
	for k := range q1.Vals {
		assert.InDelta(t, q1.Vals[k]/4, q2.Vals[k], 1e-12*maxAbsDiag(q1))
	}
}

func maxAbsDiag(s *SparseMatrix) float64 {
	var worst float64
	for _, v := range s.Diag() {
		if v > worst {
			worst = v
		}
	}
	return worst
}
