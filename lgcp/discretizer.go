package lgcp

import (
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
)

// defaultSubdivisionDepth controls the triangle subdivision used to
// restrict dual-cell areas to the domain: depth 3 tests 64 sub-triangles
// per mesh triangle.
const defaultSubdivisionDepth = 3

// IntegrationScheme holds the dual-cell quadrature of the point-process
// likelihood: one mesh node per entry with the area of its dual cell
// intersected with the domain. Nodes whose dual cell misses the domain
// entirely are omitted.
type IntegrationScheme struct {
	NodeIndex []int
	Weights   []float64
	Points    []orb.Point // mesh node locations, parallel to NodeIndex
}

// TotalWeight returns the summed integration weight; it approximates the
// domain area, converging as the mesh is refined.
func (s *IntegrationScheme) TotalWeight() float64 {
	return floats.Sum(s.Weights)
}

// BuildIntegrationScheme computes domain-restricted dual-cell areas.
// Each triangle is subdivided 4^depth times; every sub-triangle whose
// centroid lies inside the domain credits its area to the original vertex
// with the largest barycentric coordinate there. Triangles fully inside
// the domain take the exact one-third split without subdividing.
func BuildIntegrationScheme(mesh *Mesh, domain *Region, depth int) *IntegrationScheme {
	if depth <= 0 {
		depth = defaultSubdivisionDepth
	}
	acc := make([]float64, mesh.NumNodes())

	for _, t := range mesh.Triangles {
		a, b, c := mesh.Nodes[t.A], mesh.Nodes[t.B], mesh.Nodes[t.C]
		if triangleInside(domain, a, b, c) {
			third := triArea(a, b, c) / 3
			acc[t.A] += third
			acc[t.B] += third
			acc[t.C] += third
			continue
		}
		subdivideAccumulate(domain, a, b, c, a, b, c, depth, acc, t)
	}

	var sch IntegrationScheme
	for i, w := range acc {
		if w > 0 {
			sch.NodeIndex = append(sch.NodeIndex, i)
			sch.Weights = append(sch.Weights, w)
			sch.Points = append(sch.Points, mesh.Nodes[i])
		}
	}
	return &sch
}

// triangleInside is a cheap all-inside test: the three vertices plus the
// three edge midpoints. Boundary triangles fail it and go through
// subdivision instead.
func triangleInside(domain *Region, a, b, c orb.Point) bool {
	pts := [6]orb.Point{
		a, b, c,
		{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2},
		{(b[0] + c[0]) / 2, (b[1] + c[1]) / 2},
		{(c[0] + a[0]) / 2, (c[1] + a[1]) / 2},
	}
	for _, p := range pts {
		if !domain.Contains(p) {
			return false
		}
	}
	return true
}

// subdivideAccumulate recursively splits triangle (a, b, c) and, at the
// leaves, credits sub-triangle area to the nearest vertex (largest
// barycentric coordinate) of the original triangle orig, counting only
// sub-triangles whose centroid lies in the domain.
func subdivideAccumulate(domain *Region, a, b, c, origA, origB, origC orb.Point, depth int, acc []float64, orig Triangle) {
	if depth == 0 {
		centroid := orb.Point{(a[0] + b[0] + c[0]) / 3, (a[1] + b[1] + c[1]) / 3}
		if !domain.Contains(centroid) {
			return
		}
		area := triArea(a, b, c)
		w0, w1, w2 := barycentric(origA, origB, origC, centroid)
		switch {
		case w0 >= w1 && w0 >= w2:
			acc[orig.A] += area
		case w1 >= w2:
			acc[orig.B] += area
		default:
			acc[orig.C] += area
		}
		return
	}
	ab := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
	bc := orb.Point{(b[0] + c[0]) / 2, (b[1] + c[1]) / 2}
	ca := orb.Point{(c[0] + a[0]) / 2, (c[1] + a[1]) / 2}
	subdivideAccumulate(domain, a, ab, ca, origA, origB, origC, depth-1, acc, orig)
	subdivideAccumulate(domain, ab, b, bc, origA, origB, origC, depth-1, acc, orig)
	subdivideAccumulate(domain, ca, bc, c, origA, origB, origC, depth-1, acc, orig)
	subdivideAccumulate(domain, ab, bc, ca, origA, origB, origC, depth-1, acc, orig)
}

// DesignRow is one augmented observation of the weighted-Poisson form of
// the LGCP likelihood: observed points carry response 1 and weight 1,
// integration nodes carry response 0 and their dual-cell area.
type DesignRow struct {
	Response float64
	Weight   float64
	Loc      orb.Point
	Basis    BasisRow
	Covs     []float64
}

// AugmentedDesign is the full collection of design rows plus the covariate
// naming needed by the model assembler. Immutable once built.
type AugmentedDesign struct {
	Rows        []DesignRow
	CovNames    []string
	NumNodes    int
	NumObserved int
}

// Discretize converts the continuous LGCP likelihood over the session's
// domain into the augmented weighted-Poisson design: one row per observed
// point followed by one row per integration node. Covariates are evaluated
// at every row location.
func Discretize(sess *Session, pattern *PointPattern, covs []Covariate) (*AugmentedDesign, error) {
	if err := sess.CheckPattern(pattern); err != nil {
		return nil, err
	}
	for _, c := range covs {
		if err := sess.CheckCovariate(c); err != nil {
			return nil, err
		}
	}

	proj, err := sess.Projector().Project(pattern.Points)
	if err != nil {
		return nil, err
	}
	sch := sess.Integration()

	d := &AugmentedDesign{
		NumNodes:    sess.Mesh.NumNodes(),
		NumObserved: len(pattern.Points),
		Rows:        make([]DesignRow, 0, len(pattern.Points)+len(sch.NodeIndex)),
	}
	for _, c := range covs {
		d.CovNames = append(d.CovNames, c.Name())
	}

	for i, p := range pattern.Points {
		d.Rows = append(d.Rows, DesignRow{
			Response: 1,
			Weight:   1,
			Loc:      p,
			Basis:    proj.Rows[i],
			Covs:     evalCovs(covs, p),
		})
	}
	for k, ni := range sch.NodeIndex {
		d.Rows = append(d.Rows, DesignRow{
			Response: 0,
			Weight:   sch.Weights[k],
			Loc:      sch.Points[k],
			// Identity projection: the row sits exactly on mesh node ni.
			Basis: BasisRow{Triangle: -1, Nodes: [3]int{ni, ni, ni}, Weights: [3]float64{1, 0, 0}},
			Covs:  evalCovs(covs, sch.Points[k]),
		})
	}
	return d, nil
}

func evalCovs(covs []Covariate, p orb.Point) []float64 {
	out := make([]float64, len(covs))
	for i, c := range covs {
		out[i] = c.At(p)
	}
	return out
}
