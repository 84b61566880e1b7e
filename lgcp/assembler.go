package lgcp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// TermKind distinguishes fixed linear effects from the latent field effect.
type TermKind int

const (
	TermFixed TermKind = iota
	TermField
)

// LogNormalPrior is the prior on a positive hyperparameter: log of the
// parameter is Normal(Mu, Sigma).
type LogNormalPrior struct {
	Mu    float64 `yaml:"mu" json:"mu"`
	Sigma float64 `yaml:"sigma" json:"sigma"`
}

// FieldConfig configures the latent field term.
type FieldConfig struct {
	Alpha      int
	RangePrior LogNormalPrior
	SigmaPrior LogNormalPrior
}

// Term is one named effect in the model. Fixed terms reference a covariate
// column by name; an empty Covariate means the constant intercept column.
type Term struct {
	Name      string
	Kind      TermKind
	Covariate string
	Field     FieldConfig
}

// ModelSpec is an ordered, typed collection of effect terms, built with the
// Add methods and validated against the available covariate columns by
// Build. This replaces string-pasted model formulas: bad term names fail at
// construction, not at fit time.
type ModelSpec struct {
	terms []Term
}

// NewModelSpec returns an empty model specification.
func NewModelSpec() *ModelSpec {
	return &ModelSpec{}
}

// AddIntercept appends the constant intercept term.
func (m *ModelSpec) AddIntercept() *ModelSpec {
	m.terms = append(m.terms, Term{Name: "intercept", Kind: TermFixed})
	return m
}

// AddFixed appends a fixed linear effect reading the named covariate.
func (m *ModelSpec) AddFixed(name, covariate string) *ModelSpec {
	m.terms = append(m.terms, Term{Name: name, Kind: TermFixed, Covariate: covariate})
	return m
}

// AddField appends the latent Gaussian field term.
func (m *ModelSpec) AddField(name string, cfg FieldConfig) *ModelSpec {
	if cfg.Alpha == 0 {
		cfg.Alpha = 2
	}
	m.terms = append(m.terms, Term{Name: name, Kind: TermField, Field: cfg})
	return m
}

// Model is a validated model specification.
type Model struct {
	Terms []Term
}

// Build validates the specification against the available covariate column
// names: every referenced covariate must exist, term names must be unique,
// and at most one field term is allowed.
func (m *ModelSpec) Build(available []string) (*Model, error) {
	if len(m.terms) == 0 {
		return nil, fmt.Errorf("model has no terms")
	}
	have := make(map[string]bool, len(available))
	for _, n := range available {
		have[n] = true
	}
	names := make(map[string]bool, len(m.terms))
	fields := 0
	for _, t := range m.terms {
		if t.Name == "" {
			return nil, fmt.Errorf("model term has no name")
		}
		if names[t.Name] {
			return nil, fmt.Errorf("duplicate model term %q", t.Name)
		}
		names[t.Name] = true
		switch t.Kind {
		case TermFixed:
			if t.Covariate != "" && !have[t.Covariate] {
				return nil, fmt.Errorf("term %q references unknown covariate %q", t.Name, t.Covariate)
			}
		case TermField:
			fields++
			if fields > 1 {
				return nil, fmt.Errorf("model has more than one field term")
			}
			if t.Field.Alpha != 1 && t.Field.Alpha != 2 {
				return nil, fmt.Errorf("field term %q: unsupported alpha %d", t.Name, t.Field.Alpha)
			}
		}
	}
	return &Model{Terms: append([]Term(nil), m.terms...)}, nil
}

// FieldTerm returns the field term, if the model has one.
func (m *Model) FieldTerm() (Term, bool) {
	for _, t := range m.Terms {
		if t.Kind == TermField {
			return t, true
		}
	}
	return Term{}, false
}

// FixedTerms returns the fixed terms in model order.
func (m *Model) FixedTerms() []Term {
	var out []Term
	for _, t := range m.Terms {
		if t.Kind == TermFixed {
			out = append(out, t)
		}
	}
	return out
}

// ModelInputs is the exact input contract of the external inference engine:
// a dense fixed-effect design matrix, response and weight vectors, the
// per-row field basis weights, and the precision family with its priors.
type ModelInputs struct {
	FixedNames []string
	Design     *mat.Dense // len(rows) x len(FixedNames)
	Response   []float64
	Weights    []float64

	// Field block; Basis is nil when the model has no field term.
	FieldName  string
	Basis      []BasisRow
	Operator   *FieldOperator
	RangePrior LogNormalPrior
	SigmaPrior LogNormalPrior
	NumNodes   int
}

// Assemble combines the augmented design with the model's terms into the
// engine input contract. Every fixed-effect value is checked for NaN
// before any inference work happens; a missing value fails with
// IncompleteCovariateError.
func (m *Model) Assemble(sess *Session, design *AugmentedDesign) (*ModelInputs, error) {
	covIdx := make(map[string]int, len(design.CovNames))
	for i, n := range design.CovNames {
		covIdx[n] = i
	}

	fixed := m.FixedTerms()
	nrows := len(design.Rows)
	in := &ModelInputs{
		Response: make([]float64, nrows),
		Weights:  make([]float64, nrows),
		NumNodes: design.NumNodes,
	}
	for _, t := range fixed {
		in.FixedNames = append(in.FixedNames, t.Name)
	}
	x := mat.NewDense(nrows, len(fixed), nil)

	for r, row := range design.Rows {
		in.Response[r] = row.Response
		in.Weights[r] = row.Weight
		for c, t := range fixed {
			v := 1.0
			if t.Covariate != "" {
				ci, ok := covIdx[t.Covariate]
				if !ok {
					return nil, fmt.Errorf("term %q: covariate %q missing from design", t.Name, t.Covariate)
				}
				v = row.Covs[ci]
			}
			if math.IsNaN(v) {
				return nil, &IncompleteCovariateError{Effect: t.Name, Row: r}
			}
			x.Set(r, c, v)
		}
	}
	in.Design = x

	if ft, ok := m.FieldTerm(); ok {
		op, err := sess.Operator(ft.Field.Alpha)
		if err != nil {
			return nil, err
		}
		in.FieldName = ft.Name
		in.Operator = op
		in.RangePrior = ft.Field.RangePrior
		in.SigmaPrior = ft.Field.SigmaPrior
		in.Basis = make([]BasisRow, nrows)
		for r, row := range design.Rows {
			in.Basis[r] = row.Basis
		}
	}

	return in, nil
}
