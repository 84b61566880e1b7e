package lgcp

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// DegenerateGeometryError reports invalid geometric input: self-intersecting
// or zero-area polygons, inconsistent resolution parameters, or a coordinate
// frame mismatch between entities. It is fatal; callers must fix the input.
type DegenerateGeometryError struct {
	Reason string
}

func (e *DegenerateGeometryError) Error() string {
	return "degenerate geometry: " + e.Reason
}

// InvalidHyperparameterError reports a non-positive range or standard
// deviation passed to the field operator.
type InvalidHyperparameterError struct {
	Name  string
	Value float64
}

func (e *InvalidHyperparameterError) Error() string {
	return fmt.Sprintf("invalid hyperparameter %s=%g: must be > 0", e.Name, e.Value)
}

// OutOfDomainError reports a query point that falls outside every mesh
// triangle. Index is the position of the offending point in the query batch,
// so callers can drop it and retry the rest.
type OutOfDomainError struct {
	Point orb.Point
	Index int
}

func (e *OutOfDomainError) Error() string {
	return fmt.Sprintf("point %d at (%g, %g) is outside the mesh", e.Index, e.Point[0], e.Point[1])
}

// IncompleteCovariateError reports a missing (NaN) covariate value at a
// design row. Raised during assembly, before any inference call.
type IncompleteCovariateError struct {
	Effect string
	Row    int
}

func (e *IncompleteCovariateError) Error() string {
	return fmt.Sprintf("covariate %q has no value at design row %d", e.Effect, e.Row)
}

// InferenceTimeoutError reports that the external inference engine did not
// return within the configured deadline. Partial solver state is discarded.
type InferenceTimeoutError struct {
	Timeout time.Duration
}

func (e *InferenceTimeoutError) Error() string {
	return fmt.Sprintf("inference engine did not finish within %s", e.Timeout)
}

// NonConvergenceError reports that the external inference engine ran to
// completion but did not converge. The core never retries automatically;
// callers may refit with relaxed priors or a coarser mesh.
type NonConvergenceError struct {
	Detail string
}

func (e *NonConvergenceError) Error() string {
	if e.Detail == "" {
		return "inference engine reported non-convergence"
	}
	return "inference engine reported non-convergence: " + e.Detail
}
