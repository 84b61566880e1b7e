package lgcp

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

// Formula selects the per-sample combination the predictor evaluates.
type Formula int

const (
	// FormulaField evaluates the latent field alone.
	FormulaField Formula = iota
	// FormulaLinear evaluates fixed effects plus field on the log scale.
	FormulaLinear
	// FormulaIntensity exponentiates the full linear predictor.
	FormulaIntensity
)

// PredictorConfig controls posterior sampling.
type PredictorConfig struct {
	Samples int   // number of joint posterior draws
	Seed    int64 // RNG seed; a fixed seed gives bit-identical output
}

// DefaultPredictorConfig returns sampling defaults.
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{Samples: 200, Seed: 1}
}

// Prediction is the posterior summary at one query location.
type Prediction struct {
	Loc  orb.Point
	Mean float64
	SD   float64
}

// Predictor draws joint posterior samples of the latent field and fixed
// effects, then evaluates them at arbitrary query locations through the
// session's projector. All draws happen at construction with a seeded RNG,
// so repeated Predict calls and repeated runs are deterministic.
//
// Fixed-effect draws use the engine's per-effect Gaussian summaries and
// the field draws its Gaussian approximation at the posterior mode; the
// engine contract does not ship cross-covariances between the two blocks,
// so they are sampled independently.
type Predictor struct {
	sess  *Session
	model *Model
	covs  []Covariate
	fit   *FitResult
	cfg   PredictorConfig

	fixedNames   []string
	fixedSamples [][]float64 // [sample][fixed term]
	fieldSamples [][]float64 // [sample][node]; nil when the model has no field
}

// NewPredictor prepares a predictor for one fit result, drawing all
// posterior samples up front.
func NewPredictor(sess *Session, model *Model, covs []Covariate, fit *FitResult, cfg PredictorConfig) (*Predictor, error) {
	if cfg.Samples <= 0 {
		cfg.Samples = DefaultPredictorConfig().Samples
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	p := &Predictor{sess: sess, model: model, covs: covs, fit: fit, cfg: cfg}
	for _, t := range model.FixedTerms() {
		p.fixedNames = append(p.fixedNames, t.Name)
	}

	// Latent field: x = mode + L^-T z with Q = L L^T.
	var chol mat.Cholesky
	_, hasField := model.FieldTerm()
	if hasField {
		if fit.LatentPrecision == nil || len(fit.LatentMean) != fit.LatentPrecision.N {
			return nil, fmt.Errorf("fit result has no usable latent field block")
		}
		if ok := chol.Factorize(fit.LatentPrecision.ToSym()); !ok {
			return nil, fmt.Errorf("latent precision is not positive definite")
		}
	}

	p.fixedSamples = make([][]float64, cfg.Samples)
	if hasField {
		p.fieldSamples = make([][]float64, cfg.Samples)
	}
	var lower mat.TriDense
	if hasField {
		chol.LTo(&lower)
	}
	for s := 0; s < cfg.Samples; s++ {
		fx := make([]float64, len(p.fixedNames))
		for i, name := range p.fixedNames {
			m, ok := fit.Effects[name]
			if !ok {
				return nil, fmt.Errorf("fit result has no marginal for effect %q", name)
			}
			fx[i] = m.Mean + m.SD*rng.NormFloat64()
		}
		p.fixedSamples[s] = fx

		if hasField {
			n := fit.LatentPrecision.N
			z := mat.NewVecDense(n, nil)
			for i := 0; i < n; i++ {
				z.SetVec(i, rng.NormFloat64())
			}
			var u mat.VecDense
			if err := u.SolveVec(lower.T(), z); err != nil {
				return nil, fmt.Errorf("sampling latent field: %w", err)
			}
			x := make([]float64, n)
			for i := 0; i < n; i++ {
				x[i] = fit.LatentMean[i] + u.AtVec(i)
			}
			p.fieldSamples[s] = x
		}
	}
	return p, nil
}

// NumSamples returns the number of posterior draws held by the predictor.
func (p *Predictor) NumSamples() int { return p.cfg.Samples }

// Predict evaluates the requested formula at every query point, returning
// the mean and standard deviation across posterior samples. Points outside
// the mesh fail the batch with OutOfDomainError.
func (p *Predictor) Predict(points []orb.Point, formula Formula) ([]Prediction, error) {
	proj, err := p.sess.Projector().Project(points)
	if err != nil {
		return nil, err
	}

	sum := make([]float64, len(points))
	sum2 := make([]float64, len(points))
	for s := 0; s < p.cfg.Samples; s++ {
		vals := p.sampleAt(s, points, proj, formula)
		for i, v := range vals {
			sum[i] += v
			sum2[i] += v * v
		}
	}

	n := float64(p.cfg.Samples)
	out := make([]Prediction, len(points))
	for i := range points {
		mean := sum[i] / n
		variance := sum2[i]/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		out[i] = Prediction{Loc: points[i], Mean: mean, SD: math.Sqrt(variance)}
	}
	return out, nil
}

// PredictGrid evaluates the formula on a nx-by-ny grid of pixel centers
// over the bound, silently dropping pixels that fall outside the mesh
// (out-of-domain is recoverable per point for raster output).
func (p *Predictor) PredictGrid(bound orb.Bound, nx, ny int, formula Formula) ([]Prediction, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("grid must have positive dimensions")
	}
	dx := (bound.Max[0] - bound.Min[0]) / float64(nx)
	dy := (bound.Max[1] - bound.Min[1]) / float64(ny)
	pr := p.sess.Projector()
	var points []orb.Point
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			pt := orb.Point{bound.Min[0] + (float64(i)+0.5)*dx, bound.Min[1] + (float64(j)+0.5)*dy}
			if pr.Covers(pt) {
				points = append(points, pt)
			}
		}
	}
	return p.Predict(points, formula)
}

// SampleIntensity evaluates the intensity surface of one posterior draw at
// the given points. The residual diagnostic integrates these per-sample
// surfaces over its cells.
func (p *Predictor) SampleIntensity(s int, points []orb.Point) ([]float64, error) {
	if s < 0 || s >= p.cfg.Samples {
		return nil, fmt.Errorf("sample index %d out of range [0, %d)", s, p.cfg.Samples)
	}
	proj, err := p.sess.Projector().Project(points)
	if err != nil {
		return nil, err
	}
	return p.sampleAt(s, points, proj, FormulaIntensity), nil
}

func (p *Predictor) sampleAt(s int, points []orb.Point, proj *Projection, formula Formula) []float64 {
	vals := make([]float64, len(points))
	if p.fieldSamples != nil {
		copy(vals, proj.Apply(p.fieldSamples[s]))
	}
	if formula == FormulaField {
		return vals
	}

	fixed := p.model.FixedTerms()
	covIdx := make(map[string]int, len(p.covs))
	for i, c := range p.covs {
		covIdx[c.Name()] = i
	}
	for i, pt := range points {
		for ti, t := range fixed {
			v := 1.0
			if t.Covariate != "" {
				if ci, ok := covIdx[t.Covariate]; ok {
					v = p.covs[ci].At(pt)
				}
			}
			vals[i] += p.fixedSamples[s][ti] * v
		}
		if formula == FormulaIntensity {
			vals[i] = math.Exp(vals[i])
		}
	}
	return vals
}
