package lgcp

import (
	"encoding/json"
	"fmt"
	"os"
)

// Export key layout (stable, consumed by downstream reporting):
//
//	{
//	  "effects":         { "<effect>": {"summary": {...}, "density": [[x,y], ...]} },
//	  "hyperparameters": { "range": {...}, "sigma": {...} }
//	}
//
// Every summary carries mean, sd and the central 95% credible interval.

type summaryJSON struct {
	Mean float64 `json:"mean"`
	SD   float64 `json:"sd"`
	Q025 float64 `json:"q025"`
	Q975 float64 `json:"q975"`
}

type marginalJSON struct {
	Summary summaryJSON  `json:"summary"`
	Density [][2]float64 `json:"density,omitempty"`
}

type marginalsDoc struct {
	Effects map[string]marginalJSON `json:"effects"`
	Hyper   map[string]marginalJSON `json:"hyperparameters"`
}

func toMarginalJSON(m Marginal) marginalJSON {
	out := marginalJSON{Summary: summaryJSON{Mean: m.Mean, SD: m.SD, Q025: m.Lower, Q975: m.Upper}}
	for _, d := range m.Density {
		out.Density = append(out.Density, [2]float64{d.X, d.Y})
	}
	return out
}

// MarshalMarginals serializes the fit's posterior marginals in the stable
// nested key layout.
func MarshalMarginals(fit *FitResult) ([]byte, error) {
	doc := marginalsDoc{
		Effects: make(map[string]marginalJSON, len(fit.Effects)),
		Hyper:   make(map[string]marginalJSON, len(fit.Hyper)),
	}
	for name, m := range fit.Effects {
		doc.Effects[name] = toMarginalJSON(m)
	}
	for name, m := range fit.Hyper {
		doc.Hyper[name] = toMarginalJSON(m)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ExportMarginals writes the marginals document to a file.
func ExportMarginals(path string, fit *FitResult) error {
	data, err := MarshalMarginals(fit)
	if err != nil {
		return fmt.Errorf("marshaling marginals: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing marginals file: %w", err)
	}
	return nil
}

type predictionJSON struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Mean float64 `json:"mean"`
	SD   float64 `json:"sd"`
}

// MarshalPredictions serializes per-location prediction summaries as a
// plain point collection suitable for rasterized visualization downstream.
func MarshalPredictions(preds []Prediction) ([]byte, error) {
	out := make([]predictionJSON, len(preds))
	for i, p := range preds {
		out[i] = predictionJSON{X: p.Loc[0], Y: p.Loc[1], Mean: p.Mean, SD: p.SD}
	}
	return json.MarshalIndent(out, "", "  ")
}

// ExportPredictions writes prediction summaries to a file.
func ExportPredictions(path string, preds []Prediction) error {
	data, err := MarshalPredictions(preds)
	if err != nil {
		return fmt.Errorf("marshaling predictions: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing predictions file: %w", err)
	}
	return nil
}

// ExportResiduals writes the residual cell table to a file.
func ExportResiduals(path string, cells []ResidualCell) error {
	data, err := json.MarshalIndent(cells, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling residuals: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing residuals file: %w", err)
	}
	return nil
}
