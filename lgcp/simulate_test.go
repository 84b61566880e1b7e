package lgcp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircle_Geometry(t *testing.T) {
	c := Circle{Center: orb.Point{1, 1}, Radius: 2}

	assert.InDelta(t, -2, c.SignedDistance(orb.Point{1, 1}), 1e-12)
	assert.InDelta(t, 1, c.SignedDistance(orb.Point{4, 1}), 1e-12)
	assert.True(t, c.Contains(orb.Point{2, 1}))
	assert.False(t, c.Contains(orb.Point{4, 1}))

	np := c.NearestPoint(orb.Point{5, 1})
	assert.InDelta(t, 3, np[0], 1e-12)
	assert.InDelta(t, 1, np[1], 1e-12)

	assert.True(t, c.Intersects(Circle{Center: orb.Point{4, 1}, Radius: 1.5}))
	assert.False(t, c.Intersects(Circle{Center: orb.Point{10, 1}, Radius: 1}))
	assert.False(t, c.Intersects(Circle{Center: orb.Point{1, 1}, Radius: 0.5}), "contained circle does not cross")
}

func TestSimulation_DeterministicUnderFixedSeed(t *testing.T) {
	run := func(seed int64) *Simulation {
		cfg := DefaultSimulationConfig()
		cfg.RNG = rand.New(rand.NewSource(seed))
		sim := NewSimulation(cfg)
		sim.Run(200)
		return sim
	}

	s1 := run(3)
	s2 := run(3)
	assert.Equal(t, len(s1.Crowders), len(s2.Crowders))
	assert.Equal(t, s1.Particles, s2.Particles, "fixed seed must reproduce the trajectory")

	s3 := run(4)
	assert.NotEqual(t, s1.Particles, s3.Particles)
}

func TestSimulation_ParticlesStayInCell(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.RNG = rand.New(rand.NewSource(8))
	sim := NewSimulation(cfg)
	sim.Run(500)

	require.NotEmpty(t, sim.Particles)
	// A reflection off a crowder that overlaps the membrane can overshoot
	// by up to one crowder diameter; anything beyond that is a real escape.
	slack := 2 * cfg.CrowderRadius
	for i, p := range sim.Particles {
		assert.LessOrEqual(t, sim.Cell.SignedDistance(p), slack, "particle %d escaped the cell", i)
	}
}

func TestSimulation_ReachesProductionDegradationBalance(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.RNG = rand.New(rand.NewSource(2))
	sim := NewSimulation(cfg)
	sim.Run(2000)

	// Steady state around production/degradation = 20/0.05 = 400.
	n := float64(len(sim.Particles))
	assert.Greater(t, n, 200.0)
	assert.Less(t, n, 700.0)
}

func TestSimulation_Regions(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.RNG = rand.New(rand.NewSource(1))
	sim := NewSimulation(cfg)

	domain, err := sim.DomainRegion(testFrame, 64)
	require.NoError(t, err)
	// Annulus between nucleus and cell membrane.
	want := math.Pi * (cfg.CellRadius*cfg.CellRadius - cfg.NucleusRadius*cfg.NucleusRadius)
	assert.InEpsilon(t, want, domain.Area(), 0.01)
	assert.True(t, domain.Contains(orb.Point{(cfg.NucleusRadius + cfg.CellRadius) / 2, 0}))
	assert.False(t, domain.Contains(orb.Point{0, 0}), "nucleus is a hole")

	buffer, err := sim.BufferRegion(testFrame, 1.5, 48)
	require.NoError(t, err)
	assert.InEpsilon(t, math.Pi*math.Pow(1.5*cfg.CellRadius, 2), buffer.Area(), 0.01)
}

func TestSimulation_PatternSnapshot(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.RNG = rand.New(rand.NewSource(12))
	sim := NewSimulation(cfg)
	sim.Run(100)

	pp := sim.Pattern(testFrame)
	assert.Equal(t, testFrame, pp.Frame)
	assert.Equal(t, sim.Particles, pp.Points)

	// Snapshot is a copy: advancing the simulation must not mutate it.
	before := append([]orb.Point(nil), pp.Points...)
	sim.Run(10)
	assert.Equal(t, before, pp.Points)
}

func TestPoissonDraw(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	assert.Equal(t, 0, poissonDraw(rng, 0))
	assert.Equal(t, 0, poissonDraw(rng, -3))

	// Sample mean tracks lambda, including above the internal chunk size.
	for _, lambda := range []float64{4, 60, 1200} {
		const trials = 2000
		var sum float64
		for i := 0; i < trials; i++ {
			sum += float64(poissonDraw(rng, lambda))
		}
		mean := sum / trials
		assert.InEpsilon(t, lambda, mean, 0.1, "lambda=%g", lambda)
	}
}

func TestSampleInhomogeneousPoisson(t *testing.T) {
	region := squareRegion(t, 0, 2)
	rng := rand.New(rand.NewSource(3))

	// Intensity nonzero only in the left half.
	intensity := func(p orb.Point) float64 {
		if p[0] < 1 {
			return 50
		}
		return 0
	}
	pts := SampleInhomogeneousPoisson(region, 50, intensity, rng)
	require.NotEmpty(t, pts)
	for _, p := range pts {
		assert.Less(t, p[0], 1.0)
		assert.True(t, region.Contains(p))
	}
	// Expected count: 50 * area(left half) = 100.
	assert.InDelta(t, 100, float64(len(pts)), 40)
}
