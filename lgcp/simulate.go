package lgcp

import (
	"math"
	"math/rand"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Circle supports the geometric queries the simulator needs: signed
// distance, containment, nearest boundary point and intersection.
type Circle struct {
	Center orb.Point
	Radius float64
}

// SignedDistance is negative inside the circle, positive outside.
func (c Circle) SignedDistance(p orb.Point) float64 {
	return dist(p, c.Center) - c.Radius
}

// Contains reports whether p lies strictly inside the circle.
func (c Circle) Contains(p orb.Point) bool {
	return c.SignedDistance(p) < 0
}

// NearestPoint returns the boundary point closest to p.
func (c Circle) NearestPoint(p orb.Point) orb.Point {
	d := dist(p, c.Center)
	if d == 0 {
		return orb.Point{c.Center[0] + c.Radius, c.Center[1]}
	}
	scale := c.Radius / d
	return orb.Point{
		c.Center[0] + (p[0]-c.Center[0])*scale,
		c.Center[1] + (p[1]-c.Center[1])*scale,
	}
}

// Intersects reports whether the two circle boundaries cross.
func (c Circle) Intersects(o Circle) bool {
	d := dist(c.Center, o.Center)
	return math.Abs(c.Radius-o.Radius) < d && d < c.Radius+o.Radius
}

// Bound returns the circle's bounding box.
func (c Circle) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{c.Center[0] - c.Radius, c.Center[1] - c.Radius},
		Max: orb.Point{c.Center[0] + c.Radius, c.Center[1] + c.Radius},
	}
}

// SimulationConfig parameterizes the crowded-cell particle simulation:
// a circular cell with a nuclear exclusion zone and randomly scattered
// circular crowders, particles produced at the nuclear envelope, diffusing
// with reflecting boundaries and degrading at a constant rate.
type SimulationConfig struct {
	CellRadius     float64
	NucleusRadius  float64
	CrowderRadius  float64
	CrowderDensity float64 // mean crowders per unit area of the cell bounding box
	ProductionRate float64 // particle births per unit time
	DegradationRate float64 // per-particle death rate per unit time
	DiffusionCoeff float64
	Dt             float64
	RNG            *rand.Rand // required; fixed seed gives identical runs
}

// DefaultSimulationConfig returns the parameters used in exploratory runs,
// with a fixed-seed RNG.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		CellRadius:      10,
		NucleusRadius:   3,
		CrowderRadius:   0.4,
		CrowderDensity:  0.5,
		ProductionRate:  20,
		DegradationRate: 0.05,
		DiffusionCoeff:  1,
		Dt:              0.05,
		RNG:             rand.New(rand.NewSource(1)),
	}
}

// Simulation is one realization of the crowded-cell point process.
type Simulation struct {
	Cell      Circle
	Nucleus   Circle
	Crowders  []Circle
	Particles []orb.Point

	cfg  SimulationConfig
	rng  *rand.Rand
	tree *kdtree.Tree // over crowder centers
}

// NewSimulation scatters the crowders and prepares the simulation state.
func NewSimulation(cfg SimulationConfig) *Simulation {
	rng := cfg.RNG
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	s := &Simulation{
		Cell:    Circle{Radius: cfg.CellRadius},
		Nucleus: Circle{Radius: cfg.NucleusRadius},
		cfg:     cfg,
		rng:     rng,
	}

	// Crowder count is Poisson in the cell's bounding box area; centers
	// falling entirely outside the cell are discarded.
	b := s.Cell.Bound()
	boxArea := (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1])
	n := poissonDraw(rng, cfg.CrowderDensity*boxArea)
	for i := 0; i < n; i++ {
		center := orb.Point{
			b.Min[0] + rng.Float64()*(b.Max[0]-b.Min[0]),
			b.Min[1] + rng.Float64()*(b.Max[1]-b.Min[1]),
		}
		crowder := Circle{Center: center, Radius: cfg.CrowderRadius}
		if s.Cell.Contains(center) || s.Cell.Intersects(crowder) {
			s.Crowders = append(s.Crowders, crowder)
		}
	}
	if len(s.Crowders) > 0 {
		centers := make([]orb.Point, len(s.Crowders))
		for i, c := range s.Crowders {
			centers[i] = c.Center
		}
		s.tree = newPointTree(centers)
	}
	return s
}

// Run advances the simulation n steps.
func (s *Simulation) Run(steps int) {
	for i := 0; i < steps; i++ {
		s.Step()
	}
}

// Step performs one time step: degradation, production at the nuclear
// envelope, then a diffusion move with reflecting boundaries.
func (s *Simulation) Step() {
	// Degradation: each particle dies independently this step.
	pDeath := s.cfg.DegradationRate * s.cfg.Dt
	alive := s.Particles[:0]
	for _, p := range s.Particles {
		if s.rng.Float64() >= pDeath {
			alive = append(alive, p)
		}
	}
	s.Particles = alive

	// Production on the nuclear envelope, rejecting birth positions that
	// land inside a crowder.
	births := poissonDraw(s.rng, s.cfg.ProductionRate*s.cfg.Dt)
	for i := 0; i < births; i++ {
		var p orb.Point
		for {
			angle := s.rng.Float64() * 2 * math.Pi
			p = orb.Point{
				s.Nucleus.Center[0] + s.Nucleus.Radius*math.Cos(angle),
				s.Nucleus.Center[1] + s.Nucleus.Radius*math.Sin(angle),
			}
			ci := s.nearestCrowder(p)
			if ci < 0 || !s.Crowders[ci].Contains(p) {
				break
			}
		}
		s.Particles = append(s.Particles, p)
	}

	s.diffuse()
}

func (s *Simulation) diffuse() {
	step := math.Sqrt(2 * s.cfg.DiffusionCoeff * s.cfg.Dt)
	for i, p := range s.Particles {
		p[0] += s.rng.NormFloat64() * step
		p[1] += s.rng.NormFloat64() * step

		// Reflect off the nearest obstacle surface.
		if !s.Cell.Contains(p) {
			p = reflect(p, s.Cell.NearestPoint(p))
		} else if s.Nucleus.Contains(p) {
			p = reflect(p, s.Nucleus.NearestPoint(p))
		} else if ci := s.nearestCrowder(p); ci >= 0 && s.Crowders[ci].Contains(p) {
			p = reflect(p, s.Crowders[ci].NearestPoint(p))
		}
		s.Particles[i] = p
	}
}

// nearestCrowder returns the index of the crowder whose center is closest
// to p, or -1 when there are no crowders.
func (s *Simulation) nearestCrowder(p orb.Point) int {
	if s.tree == nil {
		return -1
	}
	got, _ := s.tree.Nearest(kdPoint{P: p})
	if kp, ok := got.(kdPoint); ok {
		return kp.Idx
	}
	return -1
}

// Pattern snapshots the current particle positions as a point pattern in
// the given coordinate frame.
func (s *Simulation) Pattern(frame string) *PointPattern {
	return NewPointPattern(frame, s.Particles)
}

// DomainRegion returns the analysis domain (cell with the nucleus as a
// hole) as a polygon with the given number of boundary segments.
func (s *Simulation) DomainRegion(frame string, segments int) (*Region, error) {
	outer := CirclePolygon(s.Cell.Center, s.Cell.Radius, segments)
	hole := CirclePolygon(s.Nucleus.Center, s.Nucleus.Radius, segments)[0]
	return NewRegion(frame, orb.MultiPolygon{orb.Polygon{outer[0], hole}})
}

// BufferRegion returns a circular buffer scaled from the cell radius.
func (s *Simulation) BufferRegion(frame string, factor float64, segments int) (*Region, error) {
	return NewRegion(frame, orb.MultiPolygon{CirclePolygon(s.Cell.Center, factor*s.Cell.Radius, segments)})
}

// reflect mirrors p across the surface point q.
func reflect(p, q orb.Point) orb.Point {
	return orb.Point{2*q[0] - p[0], 2*q[1] - p[1]}
}

// SampleInhomogeneousPoisson draws a point pattern with the given
// intensity over the region by thinning a homogeneous pattern at
// maxIntensity. Used to generate ground-truth data for calibration checks.
func SampleInhomogeneousPoisson(region *Region, maxIntensity float64, intensity func(orb.Point) float64, rng *rand.Rand) []orb.Point {
	b := region.Bound()
	boxArea := (b.Max[0] - b.Min[0]) * (b.Max[1] - b.Min[1])
	n := poissonDraw(rng, maxIntensity*boxArea)
	var out []orb.Point
	for i := 0; i < n; i++ {
		p := orb.Point{
			b.Min[0] + rng.Float64()*(b.Max[0]-b.Min[0]),
			b.Min[1] + rng.Float64()*(b.Max[1]-b.Min[1]),
		}
		if !region.Contains(p) {
			continue
		}
		if rng.Float64()*maxIntensity < intensity(p) {
			out = append(out, p)
		}
	}
	return out
}

// poissonDraw samples a Poisson count by multiplying uniforms (Knuth).
// Lambda is split to keep the running product away from underflow.
func poissonDraw(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	n := 0
	for lambda > 0 {
		chunk := math.Min(lambda, 500)
		lambda -= chunk
		limit := math.Exp(-chunk)
		prod := rng.Float64()
		for prod > limit {
			n++
			prod *= rng.Float64()
		}
	}
	return n
}
