package lgcp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFit() *FitResult {
	return &FitResult{
		Effects: map[string]Marginal{
			"intercept": {Mean: 1.5, SD: 0.2, Lower: 1.1, Upper: 1.9, Density: []DensityPoint{{X: 1.0, Y: 0.1}, {X: 1.5, Y: 2.0}}},
		},
		Hyper: map[string]Marginal{
			HyperRangeKey: {Mean: 0.4, SD: 0.05, Lower: 0.3, Upper: 0.5},
			HyperSigmaKey: {Mean: 1.1, SD: 0.1, Lower: 0.9, Upper: 1.3},
		},
		Converged: true,
	}
}

// The key layout is a stable contract with downstream reporting; renaming
// any of these keys is a breaking change.
func TestMarshalMarginals_KeyStability(t *testing.T) {
	data, err := MarshalMarginals(exportFit())
	require.NoError(t, err)

	var doc map[string]map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))

	require.Contains(t, doc, "effects")
	require.Contains(t, doc, "hyperparameters")
	require.Contains(t, doc["effects"], "intercept")
	require.Contains(t, doc["hyperparameters"], "range")
	require.Contains(t, doc["hyperparameters"], "sigma")

	intercept := doc["effects"]["intercept"]
	require.Contains(t, intercept, "summary")
	require.Contains(t, intercept, "density")

	var summary map[string]float64
	require.NoError(t, json.Unmarshal(intercept["summary"], &summary))
	assert.Equal(t, map[string]float64{"mean": 1.5, "sd": 0.2, "q025": 1.1, "q975": 1.9}, summary)

	var density [][2]float64
	require.NoError(t, json.Unmarshal(intercept["density"], &density))
	assert.Equal(t, [][2]float64{{1.0, 0.1}, {1.5, 2.0}}, density)

	// Marginals without a density table omit the key.
	rng := doc["hyperparameters"]["range"]
	assert.NotContains(t, rng, "density")
}

func TestExportMarginals_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marginals.json")
	require.NoError(t, ExportMarginals(path, exportFit()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestMarshalPredictions_Layout(t *testing.T) {
	preds := []Prediction{
		{Loc: orb.Point{0.5, 1.5}, Mean: 12.5, SD: 3.1},
		{Loc: orb.Point{2.5, 1.5}, Mean: 8.0, SD: 2.2},
	}
	data, err := MarshalPredictions(preds)
	require.NoError(t, err)

	var got []map[string]float64
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, map[string]float64{"x": 0.5, "y": 1.5, "mean": 12.5, "sd": 3.1}, got[0])
}

func TestExportResiduals_Layout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "residuals.json")
	cells := []ResidualCell{{
		Bound:    orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}},
		Observed: 7,
		Mean:     -0.3,
		SD:       0.8,
	}}
	require.NoError(t, ExportResiduals(path, cells))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "bound")
	assert.Contains(t, got[0], "observed")
	assert.Contains(t, got[0], "mean")
	assert.Contains(t, got[0], "sd")
}
