package lgcp

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ResidualCell is one cell of the diagnostic partition: the observed point
// count and the posterior mean and spread of the variance-stabilized
// residual. A well calibrated model keeps Mean broadly within ±2.
type ResidualCell struct {
	Bound    orb.Bound `json:"bound"`
	Observed int       `json:"observed"`
	Mean     float64   `json:"mean"`
	SD       float64   `json:"sd"`
}

// ComputeResiduals partitions the sub-region bound into a rows-by-cols
// grid and, for every posterior sample, compares the observed points in
// each cell with the predicted intensity integrated over the cell using
// the session's dual-cell quadrature.
//
// The statistic per cell and sample, with h = 1/sqrt(lambda), is
//
//	sum over observed points of h(lambda)  -  sum over quadrature nodes of w * h(lambda) * lambda
//
// a Pearson-type residual whose posterior mean and spread are reported.
// Cells without quadrature support and without observations (entirely
// outside the domain) are dropped.
func ComputeResiduals(sess *Session, pred *Predictor, pattern *PointPattern, bound orb.Bound, rows, cols int) ([]ResidualCell, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("residual grid must have positive dimensions")
	}
	if pattern.Frame != sess.Frame {
		return nil, &DegenerateGeometryError{Reason: fmt.Sprintf("frame mismatch: pattern %q vs session %q", pattern.Frame, sess.Frame)}
	}

	dx := (bound.Max[0] - bound.Min[0]) / float64(cols)
	dy := (bound.Max[1] - bound.Min[1]) / float64(rows)
	cellOf := func(p orb.Point) int {
		ci := clampInt(int((p[0]-bound.Min[0])/dx), 0, cols-1)
		cj := clampInt(int((p[1]-bound.Min[1])/dy), 0, rows-1)
		return cj*cols + ci
	}

	// Quadrature nodes and observed points inside the sub-region, grouped
	// by cell once; intensities are then evaluated per posterior sample.
	sch := sess.Integration()
	var quadPts []orb.Point
	var quadW []float64
	quadCell := make([]int, 0)
	for k, p := range sch.Points {
		if bound.Contains(p) {
			quadPts = append(quadPts, p)
			quadW = append(quadW, sch.Weights[k])
			quadCell = append(quadCell, cellOf(p))
		}
	}
	obsPts := pattern.Restrict(bound)
	obsCell := make([]int, len(obsPts))
	for i, p := range obsPts {
		obsCell[i] = cellOf(p)
	}

	ncells := rows * cols
	observed := make([]int, ncells)
	for _, c := range obsCell {
		observed[c]++
	}
	hasQuad := make([]bool, ncells)
	for _, c := range quadCell {
		hasQuad[c] = true
	}

	sum := make([]float64, ncells)
	sum2 := make([]float64, ncells)
	nSamples := pred.NumSamples()
	for s := 0; s < nSamples; s++ {
		lamObs, err := pred.SampleIntensity(s, obsPts)
		if err != nil {
			return nil, err
		}
		lamQuad, err := pred.SampleIntensity(s, quadPts)
		if err != nil {
			return nil, err
		}

		stat := make([]float64, ncells)
		for i, lam := range lamObs {
			stat[obsCell[i]] += 1 / math.Sqrt(lam)
		}
		for k, lam := range lamQuad {
			stat[quadCell[k]] -= quadW[k] * math.Sqrt(lam)
		}
		for c := range stat {
			sum[c] += stat[c]
			sum2[c] += stat[c] * stat[c]
		}
	}

	var out []ResidualCell
	n := float64(nSamples)
	for cj := 0; cj < rows; cj++ {
		for ci := 0; ci < cols; ci++ {
			c := cj*cols + ci
			if !hasQuad[c] && observed[c] == 0 {
				continue
			}
			mean := sum[c] / n
			variance := sum2[c]/n - mean*mean
			if variance < 0 {
				variance = 0
			}
			out = append(out, ResidualCell{
				Bound: orb.Bound{
					Min: orb.Point{bound.Min[0] + float64(ci)*dx, bound.Min[1] + float64(cj)*dy},
					Max: orb.Point{bound.Min[0] + float64(ci+1)*dx, bound.Min[1] + float64(cj+1)*dy},
				},
				Observed: observed[c],
				Mean:     mean,
				SD:       math.Sqrt(variance),
			})
		}
	}
	return out, nil
}
