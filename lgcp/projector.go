package lgcp

import (
	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// baryTolerance absorbs floating-point noise for points sitting exactly on
// triangle edges or vertices.
const baryTolerance = 1e-9

// Projector builds sparse linear maps from mesh-node coefficients to values
// at arbitrary query points. It is a read-only view keyed to one mesh.
type Projector struct {
	mesh *Mesh
	tree *kdtree.Tree
}

// NewProjector creates a projector for the mesh. The kd-tree over mesh
// nodes seeds point location with the triangles around the nearest node.
func NewProjector(mesh *Mesh) *Projector {
	return &Projector{mesh: mesh, tree: newPointTree(mesh.Nodes)}
}

// BasisRow is one row of a projection matrix: the three barycentric
// weights of the triangle containing the query point. Weights sum to 1.
type BasisRow struct {
	Triangle int
	Nodes    [3]int
	Weights  [3]float64
}

// Projection is a sparse matrix mapping mesh-node coefficients to values
// at the query points it was built for.
type Projection struct {
	NumNodes int
	Rows     []BasisRow
}

// Apply evaluates the projection for one node-coefficient vector.
func (p *Projection) Apply(nodeVals []float64) []float64 {
	out := make([]float64, len(p.Rows))
	for i, r := range p.Rows {
		out[i] = r.Weights[0]*nodeVals[r.Nodes[0]] +
			r.Weights[1]*nodeVals[r.Nodes[1]] +
			r.Weights[2]*nodeVals[r.Nodes[2]]
	}
	return out
}

// Project builds the projection matrix for the given points. A point
// outside every triangle fails the whole batch with OutOfDomainError
// carrying the point's batch index, so the caller can drop it and retry.
func (pr *Projector) Project(points []orb.Point) (*Projection, error) {
	rows := make([]BasisRow, len(points))
	for i, p := range points {
		row, ok := pr.locate(p)
		if !ok {
			return nil, &OutOfDomainError{Point: p, Index: i}
		}
		rows[i] = row
	}
	return &Projection{NumNodes: pr.mesh.NumNodes(), Rows: rows}, nil
}

// Covers reports whether p falls inside some mesh triangle.
func (pr *Projector) Covers(p orb.Point) bool {
	_, ok := pr.locate(p)
	return ok
}

// locate finds the triangle containing p and its barycentric weights.
// Triangles incident to the nearest mesh node are tried first, in ascending
// triangle index order, then all triangles in index order. The fixed
// traversal makes weights on shared edges and vertices unambiguous: the
// first containing triangle wins.
func (pr *Projector) locate(p orb.Point) (BasisRow, bool) {
	nearest, _ := pr.tree.Nearest(kdPoint{P: p})
	if n, ok := nearest.(kdPoint); ok {
		for _, ti := range pr.mesh.incident[n.Idx] {
			if row, ok := pr.tryTriangle(ti, p); ok {
				return row, true
			}
		}
	}
	for ti := range pr.mesh.Triangles {
		if row, ok := pr.tryTriangle(ti, p); ok {
			return row, true
		}
	}
	return BasisRow{}, false
}

func (pr *Projector) tryTriangle(ti int, p orb.Point) (BasisRow, bool) {
	t := pr.mesh.Triangles[ti]
	a, b, c := pr.mesh.Nodes[t.A], pr.mesh.Nodes[t.B], pr.mesh.Nodes[t.C]
	w0, w1, w2 := barycentric(a, b, c, p)
	if w0 < -baryTolerance || w1 < -baryTolerance || w2 < -baryTolerance {
		return BasisRow{}, false
	}
	// Clamp noise and renormalize so the row sums to exactly 1.
	w0 = max(w0, 0)
	w1 = max(w1, 0)
	w2 = max(w2, 0)
	sum := w0 + w1 + w2
	return BasisRow{
		Triangle: ti,
		Nodes:    [3]int{t.A, t.B, t.C},
		Weights:  [3]float64{w0 / sum, w1 / sum, w2 / sum},
	}, true
}
