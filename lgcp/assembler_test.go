package lgcp

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelSpec_BuildValidation(t *testing.T) {
	field := FieldConfig{Alpha: 2}

	tests := []struct {
		name    string
		spec    *ModelSpec
		avail   []string
		wantErr string
	}{
		{
			name:    "empty model",
			spec:    NewModelSpec(),
			wantErr: "no terms",
		},
		{
			name:    "unknown covariate",
			spec:    NewModelSpec().AddIntercept().AddFixed("dist", "distance"),
			avail:   []string{"density"},
			wantErr: "unknown covariate",
		},
		{
			name:    "duplicate names",
			spec:    NewModelSpec().AddIntercept().AddFixed("intercept", ""),
			wantErr: "duplicate",
		},
		{
			name:    "two field terms",
			spec:    NewModelSpec().AddIntercept().AddField("f1", field).AddField("f2", field),
			wantErr: "more than one field",
		},
		{
			name:    "bad alpha",
			spec:    NewModelSpec().AddIntercept().AddField("field", FieldConfig{Alpha: 3}),
			wantErr: "alpha",
		},
		{
			name:  "valid full model",
			spec:  NewModelSpec().AddIntercept().AddFixed("dist", "distance").AddField("field", field),
			avail: []string{"distance"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := tt.spec.Build(tt.avail)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, model)
		})
	}
}

func TestModel_TermAccessors(t *testing.T) {
	model, err := NewModelSpec().
		AddIntercept().
		AddFixed("dist", "distance").
		AddField("field", FieldConfig{Alpha: 1}).
		Build([]string{"distance"})
	require.NoError(t, err)

	ft, ok := model.FieldTerm()
	require.True(t, ok)
	assert.Equal(t, "field", ft.Name)
	assert.Equal(t, 1, ft.Field.Alpha)

	fixed := model.FixedTerms()
	require.Len(t, fixed, 2)
	assert.Equal(t, "intercept", fixed[0].Name)
	assert.Equal(t, "dist", fixed[1].Name)
}

func TestModel_AssembleFixedOnly(t *testing.T) {
	model, err := NewModelSpec().AddIntercept().AddFixed("grad", "gradient").Build([]string{"gradient"})
	require.NoError(t, err)

	design := &AugmentedDesign{
		CovNames:    []string{"gradient"},
		NumNodes:    5,
		NumObserved: 1,
		Rows: []DesignRow{
			{Response: 1, Weight: 1, Loc: orb.Point{0.1, 0.1}, Covs: []float64{0.25}},
			{Response: 0, Weight: 0.5, Loc: orb.Point{0.3, 0.3}, Covs: []float64{-1.5}},
		},
	}

	in, err := model.Assemble(nil, design)
	require.NoError(t, err)

	assert.Equal(t, []string{"intercept", "grad"}, in.FixedNames)
	assert.Equal(t, []float64{1, 0}, in.Response)
	assert.Equal(t, []float64{1, 0.5}, in.Weights)
	assert.Nil(t, in.Basis)
	assert.Nil(t, in.Operator)

	rows, cols := in.Design.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 2, cols)
	// Intercept column is uniformly 1.
	assert.Equal(t, 1.0, in.Design.At(0, 0))
	assert.Equal(t, 1.0, in.Design.At(1, 0))
	assert.Equal(t, 0.25, in.Design.At(0, 1))
	assert.Equal(t, -1.5, in.Design.At(1, 1))
}

func TestModel_AssembleRejectsNaNCovariate(t *testing.T) {
	model, err := NewModelSpec().AddIntercept().AddFixed("grad", "gradient").Build([]string{"gradient"})
	require.NoError(t, err)

	design := &AugmentedDesign{
		CovNames: []string{"gradient"},
		Rows: []DesignRow{
			{Response: 1, Weight: 1, Covs: []float64{0.5}},
			{Response: 0, Weight: 1, Covs: []float64{math.NaN()}},
		},
	}

	_, err = model.Assemble(nil, design)
	var incomplete *IncompleteCovariateError
	require.Error(t, err)
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, "grad", incomplete.Effect)
	assert.Equal(t, 1, incomplete.Row)
}

func TestModel_AssembleWithField(t *testing.T) {
	sess := unitSession(t)
	pattern := NewPointPattern(testFrame, []orb.Point{{0.4, 0.4}})
	design, err := Discretize(sess, pattern, nil)
	require.NoError(t, err)

	model, err := NewModelSpec().
		AddIntercept().
		AddField("field", FieldConfig{Alpha: 2, RangePrior: LogNormalPrior{Mu: -1, Sigma: 0.5}, SigmaPrior: LogNormalPrior{Mu: 0, Sigma: 0.5}}).
		Build(nil)
	require.NoError(t, err)

	in, err := model.Assemble(sess, design)
	require.NoError(t, err)

	assert.Equal(t, "field", in.FieldName)
	require.NotNil(t, in.Operator)
	assert.Equal(t, 2, in.Operator.Alpha)
	assert.Equal(t, sess.Mesh.NumNodes(), in.NumNodes)
	assert.Len(t, in.Basis, len(design.Rows))
	assert.Equal(t, LogNormalPrior{Mu: -1, Sigma: 0.5}, in.RangePrior)
}
