package lgcp

import (
	"fmt"
	"log"
	"math"

	"github.com/paulmach/orb"
)

// MeshConfig holds the resolution parameters for mesh construction.
// All lengths are in the shared analysis unit (micrometers or simulation
// length units).
type MeshConfig struct {
	InnerMaxEdge float64 // max edge length inside the domain (h_in)
	OuterMaxEdge float64 // max edge length in the buffer annulus (h_out)
	Cutoff       float64 // minimum node separation; closer nodes are merged

	// MaxRefinePasses caps the refinement loop. Each pass splits every
	// over-long edge once and re-triangulates.
	MaxRefinePasses int
}

// DefaultMeshConfig returns resolution defaults suitable for a unit-scale
// domain. Real analyses should set resolutions relative to the expected
// field range (a common choice is h_in around range/5).
func DefaultMeshConfig() MeshConfig {
	return MeshConfig{
		InnerMaxEdge:    0.1,
		OuterMaxEdge:    0.4,
		Cutoff:          0.02,
		MaxRefinePasses: 12,
	}
}

// Mesh is a conforming triangulation of Domain ∪ Buffer. Node order is
// frozen at build time: the field operator, projector and discretizer all
// index nodes by position in Nodes and must never reorder them.
type Mesh struct {
	Nodes     []orb.Point
	Triangles []Triangle

	incident [][]int // node index -> indices of triangles touching it
}

// BuildMesh triangulates the domain plus its buffer region. Boundary rings
// of both regions are resampled at the local edge bound and kept as mesh
// nodes, interior fill points are laid on staggered grids, nodes closer
// than the cutoff are merged, and the triangulation is refined until every
// edge respects its local bound.
func BuildMesh(domain, buffer *Region, cfg MeshConfig) (*Mesh, error) {
	if domain.Frame != buffer.Frame {
		return nil, &DegenerateGeometryError{Reason: fmt.Sprintf("frame mismatch: domain %q vs buffer %q", domain.Frame, buffer.Frame)}
	}
	if cfg.InnerMaxEdge <= 0 || cfg.OuterMaxEdge <= 0 {
		return nil, &DegenerateGeometryError{Reason: "edge bounds must be positive"}
	}
	if cfg.OuterMaxEdge <= cfg.InnerMaxEdge {
		return nil, &DegenerateGeometryError{Reason: fmt.Sprintf("outer edge bound %g must exceed inner bound %g", cfg.OuterMaxEdge, cfg.InnerMaxEdge)}
	}
	if cfg.Cutoff <= 0 || cfg.Cutoff >= cfg.InnerMaxEdge {
		return nil, &DegenerateGeometryError{Reason: fmt.Sprintf("cutoff %g must be in (0, h_in=%g)", cfg.Cutoff, cfg.InnerMaxEdge)}
	}
	passes := cfg.MaxRefinePasses
	if passes <= 0 {
		passes = DefaultMeshConfig().MaxRefinePasses
	}

	// Candidate nodes: boundary samples first so they survive merging,
	// then interior fill. Spacing slightly under the bound leaves headroom
	// for Delaunay edges between neighboring samples.
	var candidates []orb.Point
	var chains [][]orb.Point // resampled boundary rings, for constraint recovery
	for _, poly := range domain.Polygons {
		for _, ring := range poly {
			samples := resampleRing(ring, 0.9*cfg.InnerMaxEdge)
			chains = append(chains, samples)
			candidates = append(candidates, samples...)
		}
	}
	for _, poly := range buffer.Polygons {
		for _, ring := range poly {
			samples := resampleRing(ring, 0.9*cfg.OuterMaxEdge)
			chains = append(chains, samples)
			candidates = append(candidates, samples...)
		}
	}
	candidates = append(candidates, fillPoints(domain.Bound(), 0.9*cfg.InnerMaxEdge, domain.Contains)...)
	outerFill := fillPoints(buffer.Bound(), 0.9*cfg.OuterMaxEdge, func(p orb.Point) bool {
		return buffer.Contains(p) && !domain.Contains(p)
	})
	candidates = append(candidates, outerFill...)

	// Merge nodes under the cutoff. Greedy in candidate order: a candidate
	// is dropped when an accepted node already sits within the cutoff.
	grid := newPointGrid(cfg.Cutoff)
	nodes := make([]orb.Point, 0, len(candidates))
	for _, p := range candidates {
		if grid.hasWithin(p, cfg.Cutoff) {
			continue
		}
		grid.insert(p)
		nodes = append(nodes, p)
	}

	tris, err := delaunayTriangulate(nodes)
	if err != nil {
		return nil, err
	}

	// Refine: split the longest edge of any triangle exceeding its local
	// bound, then re-triangulate. The local bound follows the triangle
	// centroid (inside the domain: h_in, otherwise h_out).
	for pass := 0; pass < passes; pass++ {
		var added int
		nodes, added = splitLongEdges(nodes, tris, domain, cfg, grid)
		if added == 0 {
			break
		}
		tris, err = delaunayTriangulate(nodes)
		if err != nil {
			return nil, err
		}
		log.Printf("mesh refinement pass %d: %d nodes, %d triangles", pass+1, len(nodes), len(tris))
	}

	// Constraint recovery: every consecutive pair of surviving boundary
	// samples must appear as a mesh edge. Missing segments are split at
	// their midpoint (the midpoint joins the chain, so sub-segments are
	// checked on the next pass) until every chain is conforming.
	for pass := 0; pass < 5; pass++ {
		var added int
		nodes, chains, added = recoverChains(nodes, tris, chains, grid)
		if added == 0 {
			break
		}
		tris, err = delaunayTriangulate(nodes)
		if err != nil {
			return nil, err
		}
	}
	// A chain can still be non-conforming here, either because the pass
	// budget ran out or because a missing segment's midpoint was suppressed
	// by the cutoff. Proceeding would silently drop boundary edges.
	if pu, pv, missing := firstMissingSegment(nodes, tris, chains); missing {
		return nil, &DegenerateGeometryError{Reason: fmt.Sprintf(
			"boundary segment (%g,%g)-(%g,%g) could not be recovered as a mesh edge", pu[0], pu[1], pv[0], pv[1])}
	}

	m := &Mesh{Nodes: nodes, Triangles: tris}
	m.buildIncidence()
	return m, nil
}

// NumNodes returns the number of mesh nodes.
func (m *Mesh) NumNodes() int { return len(m.Nodes) }

// TotalArea returns the summed area of all triangles (domain plus buffer).
func (m *Mesh) TotalArea() float64 {
	var sum float64
	for _, t := range m.Triangles {
		sum += triArea(m.Nodes[t.A], m.Nodes[t.B], m.Nodes[t.C])
	}
	return sum
}

// AreaInside returns the summed area of triangles whose centroid lies in r.
// Because region boundaries are mesh constraints, this approximates the
// meshed area of r itself.
func (m *Mesh) AreaInside(r *Region) float64 {
	var sum float64
	for _, t := range m.Triangles {
		if r.Contains(m.centroid(t)) {
			sum += triArea(m.Nodes[t.A], m.Nodes[t.B], m.Nodes[t.C])
		}
	}
	return sum
}

func (m *Mesh) centroid(t Triangle) orb.Point {
	a, b, c := m.Nodes[t.A], m.Nodes[t.B], m.Nodes[t.C]
	return orb.Point{(a[0] + b[0] + c[0]) / 3, (a[1] + b[1] + c[1]) / 3}
}

func (m *Mesh) buildIncidence() {
	m.incident = make([][]int, len(m.Nodes))
	for ti, t := range m.Triangles {
		m.incident[t.A] = append(m.incident[t.A], ti)
		m.incident[t.B] = append(m.incident[t.B], ti)
		m.incident[t.C] = append(m.incident[t.C], ti)
	}
}

// splitLongEdges proposes midpoints for every triangle edge that exceeds
// the triangle's local bound. Midpoints landing within the cutoff of an
// existing node are discarded. Returns the extended node slice and the
// number of nodes added.
func splitLongEdges(nodes []orb.Point, tris []Triangle, domain *Region, cfg MeshConfig, grid *pointGrid) ([]orb.Point, int) {
	type ekey struct{ u, v int }
	seen := make(map[ekey]bool)
	added := 0
	for _, t := range tris {
		bound := cfg.OuterMaxEdge
		a, b, c := nodes[t.A], nodes[t.B], nodes[t.C]
		centroid := orb.Point{(a[0] + b[0] + c[0]) / 3, (a[1] + b[1] + c[1]) / 3}
		if domain.Contains(centroid) {
			bound = cfg.InnerMaxEdge
		}
		for _, e := range [3][2]int{{t.A, t.B}, {t.B, t.C}, {t.C, t.A}} {
			u, v := e[0], e[1]
			if u > v {
				u, v = v, u
			}
			if seen[ekey{u, v}] {
				continue
			}
			seen[ekey{u, v}] = true
			p, q := nodes[u], nodes[v]
			if dist(p, q) <= bound {
				continue
			}
			mid := orb.Point{(p[0] + q[0]) / 2, (p[1] + q[1]) / 2}
			if grid.hasWithin(mid, cfg.Cutoff) {
				continue
			}
			grid.insert(mid)
			nodes = append(nodes, mid)
			added++
		}
	}
	return nodes, added
}

// recoverChains walks every boundary chain and splits chain segments that
// are not present as triangulation edges, appending the midpoints to both
// the node set and the chain so sub-segments are verified on later passes.
func recoverChains(nodes []orb.Point, tris []Triangle, chains [][]orb.Point, grid *pointGrid) ([]orb.Point, [][]orb.Point, int) {
	loc := make(map[orb.Point]int, len(nodes))
	for i, p := range nodes {
		loc[p] = i
	}
	type ekey struct{ u, v int }
	edges := make(map[ekey]bool, 3*len(tris))
	for _, t := range tris {
		for _, e := range [3][2]int{{t.A, t.B}, {t.B, t.C}, {t.C, t.A}} {
			u, v := e[0], e[1]
			if u > v {
				u, v = v, u
			}
			edges[ekey{u, v}] = true
		}
	}

	added := 0
	newChains := make([][]orb.Point, 0, len(chains))
	for _, chain := range chains {
		// Surviving chain nodes in ring order (merging may have dropped some).
		var kept []orb.Point
		for _, p := range chain {
			if _, ok := loc[p]; ok {
				kept = append(kept, p)
			}
		}
		if len(kept) < 2 {
			newChains = append(newChains, kept)
			continue
		}
		var rebuilt []orb.Point
		for i := range kept {
			pu := kept[i]
			pv := kept[(i+1)%len(kept)]
			rebuilt = append(rebuilt, pu)
			u, v := loc[pu], loc[pv]
			if u == v {
				continue
			}
			if u > v {
				u, v = v, u
			}
			if edges[ekey{u, v}] {
				continue
			}
			mid := orb.Point{(pu[0] + pv[0]) / 2, (pu[1] + pv[1]) / 2}
			if grid.hasWithin(mid, grid.cell/2) {
				continue
			}
			grid.insert(mid)
			nodes = append(nodes, mid)
			rebuilt = append(rebuilt, mid)
			added++
		}
		newChains = append(newChains, rebuilt)
	}
	return nodes, newChains, added
}

// firstMissingSegment reports a boundary chain segment that is absent from
// the triangulation's edge set, if any remain after recovery.
func firstMissingSegment(nodes []orb.Point, tris []Triangle, chains [][]orb.Point) (orb.Point, orb.Point, bool) {
	loc := make(map[orb.Point]int, len(nodes))
	for i, p := range nodes {
		loc[p] = i
	}
	type ekey struct{ u, v int }
	edges := make(map[ekey]bool, 3*len(tris))
	for _, t := range tris {
		for _, e := range [3][2]int{{t.A, t.B}, {t.B, t.C}, {t.C, t.A}} {
			u, v := e[0], e[1]
			if u > v {
				u, v = v, u
			}
			edges[ekey{u, v}] = true
		}
	}
	for _, chain := range chains {
		var kept []orb.Point
		for _, p := range chain {
			if _, ok := loc[p]; ok {
				kept = append(kept, p)
			}
		}
		if len(kept) < 2 {
			continue
		}
		for i := range kept {
			pu := kept[i]
			pv := kept[(i+1)%len(kept)]
			u, v := loc[pu], loc[pv]
			if u == v {
				continue
			}
			if u > v {
				u, v = v, u
			}
			if !edges[ekey{u, v}] {
				return pu, pv, true
			}
		}
	}
	return orb.Point{}, orb.Point{}, false
}

// resampleRing returns ring vertices plus evenly spaced intermediate points
// so that no returned segment is longer than spacing. The closing duplicate
// vertex is omitted.
func resampleRing(ring orb.Ring, spacing float64) []orb.Point {
	ring = closedRing(ring)
	var out []orb.Point
	for i := 0; i < len(ring)-1; i++ {
		a, b := ring[i], ring[i+1]
		out = append(out, a)
		d := dist(a, b)
		if d <= spacing {
			continue
		}
		n := int(math.Ceil(d / spacing))
		for k := 1; k < n; k++ {
			f := float64(k) / float64(n)
			out = append(out, orb.Point{a[0] + f*(b[0]-a[0]), a[1] + f*(b[1]-a[1])})
		}
	}
	return out
}

// fillPoints lays a staggered grid of the given spacing over the bound and
// keeps points accepted by keep.
func fillPoints(b orb.Bound, spacing float64, keep func(orb.Point) bool) []orb.Point {
	var out []orb.Point
	dy := spacing * math.Sqrt(3) / 2
	row := 0
	for y := b.Min[1] + dy/2; y < b.Max[1]; y += dy {
		offset := 0.0
		if row%2 == 1 {
			offset = spacing / 2
		}
		for x := b.Min[0] + offset + spacing/2; x < b.Max[0]; x += spacing {
			p := orb.Point{x, y}
			if keep(p) {
				out = append(out, p)
			}
		}
		row++
	}
	return out
}

func dist(a, b orb.Point) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return math.Hypot(dx, dy)
}

// pointGrid is a uniform spatial hash used to enforce the minimum node
// separation during candidate collection and refinement.
type pointGrid struct {
	cell  float64
	cells map[[2]int][]orb.Point
}

func newPointGrid(cell float64) *pointGrid {
	return &pointGrid{cell: cell, cells: make(map[[2]int][]orb.Point)}
}

func (g *pointGrid) key(p orb.Point) [2]int {
	return [2]int{int(math.Floor(p[0] / g.cell)), int(math.Floor(p[1] / g.cell))}
}

func (g *pointGrid) insert(p orb.Point) {
	k := g.key(p)
	g.cells[k] = append(g.cells[k], p)
}

// hasWithin reports whether any inserted point lies strictly within r of p.
// Requires r <= cell so the 3x3 neighborhood suffices.
func (g *pointGrid) hasWithin(p orb.Point, r float64) bool {
	k := g.key(p)
	for di := -1; di <= 1; di++ {
		for dj := -1; dj <= 1; dj++ {
			for _, q := range g.cells[[2]int{k[0] + di, k[1] + dj}] {
				if dist(p, q) < r {
					return true
				}
			}
		}
	}
	return false
}
