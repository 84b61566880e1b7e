package lgcp

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Covariate is a scalar surface that can be sampled at any point of the
// analysis frame. NaN marks "no value here"; the model assembler rejects
// design rows with NaN covariates before inference.
type Covariate interface {
	Name() string
	At(p orb.Point) float64
}

// Raster is a regular grid of scalar values in the analysis coordinate
// frame. Values are stored row-major, index j*NX + i, with cell (i, j)
// centered at Origin + ((i+0.5) Dx, (j+0.5) Dy).
type Raster struct {
	RasterName string
	Frame      string
	Origin     orb.Point // min corner of the grid
	Dx, Dy     float64
	NX, NY     int
	Values     []float64
}

// NewRaster validates dimensions and wraps the value slice (not copied).
func NewRaster(name, frame string, origin orb.Point, dx, dy float64, nx, ny int, values []float64) (*Raster, error) {
	if dx <= 0 || dy <= 0 || nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("raster %s: invalid grid geometry", name)
	}
	if len(values) != nx*ny {
		return nil, fmt.Errorf("raster %s: %d values for %dx%d grid", name, len(values), nx, ny)
	}
	return &Raster{RasterName: name, Frame: frame, Origin: origin, Dx: dx, Dy: dy, NX: nx, NY: ny, Values: values}, nil
}

// Name implements Covariate.
func (r *Raster) Name() string { return r.RasterName }

// Bound returns the raster's bounding box.
func (r *Raster) Bound() orb.Bound {
	return orb.Bound{
		Min: r.Origin,
		Max: orb.Point{r.Origin[0] + float64(r.NX)*r.Dx, r.Origin[1] + float64(r.NY)*r.Dy},
	}
}

// CellCenter returns the center of cell (i, j).
func (r *Raster) CellCenter(i, j int) orb.Point {
	return orb.Point{
		r.Origin[0] + (float64(i)+0.5)*r.Dx,
		r.Origin[1] + (float64(j)+0.5)*r.Dy,
	}
}

// At bilinearly interpolates the four surrounding cell centers. Queries
// are clamped to the grid, so points slightly outside the raster (mesh
// buffer nodes, for instance) take the nearest edge value rather than NaN.
func (r *Raster) At(p orb.Point) float64 {
	fx := (p[0]-r.Origin[0])/r.Dx - 0.5
	fy := (p[1]-r.Origin[1])/r.Dy - 0.5
	i0 := clampInt(int(math.Floor(fx)), 0, r.NX-1)
	j0 := clampInt(int(math.Floor(fy)), 0, r.NY-1)
	i1 := clampInt(i0+1, 0, r.NX-1)
	j1 := clampInt(j0+1, 0, r.NY-1)
	tx := clampF(fx-float64(i0), 0, 1)
	ty := clampF(fy-float64(j0), 0, 1)

	v00 := r.Values[j0*r.NX+i0]
	v10 := r.Values[j0*r.NX+i1]
	v01 := r.Values[j1*r.NX+i0]
	v11 := r.Values[j1*r.NX+i1]
	return (1-ty)*((1-tx)*v00+tx*v10) + ty*((1-tx)*v01+tx*v11)
}

// StandardizeWithin rescales the raster to zero mean and unit variance over
// cells whose center lies inside the region, and zeroes every exterior
// cell so values outside the mask stay neutral for prediction.
func (r *Raster) StandardizeWithin(region *Region) error {
	if r.Frame != region.Frame {
		return &DegenerateGeometryError{Reason: fmt.Sprintf("frame mismatch: raster %q vs region %q", r.Frame, region.Frame)}
	}

	var sum, sum2 float64
	var n int
	inside := make([]bool, len(r.Values))
	for j := 0; j < r.NY; j++ {
		for i := 0; i < r.NX; i++ {
			k := j*r.NX + i
			if region.Contains(r.CellCenter(i, j)) {
				inside[k] = true
				sum += r.Values[k]
				sum2 += r.Values[k] * r.Values[k]
				n++
			}
		}
	}
	if n < 2 {
		return fmt.Errorf("raster %s: region covers %d cells, cannot standardize", r.RasterName, n)
	}
	mean := sum / float64(n)
	sd := math.Sqrt(sum2/float64(n) - mean*mean)
	if sd < 1e-12 {
		return fmt.Errorf("raster %s: constant over the region, cannot standardize", r.RasterName)
	}

	for k := range r.Values {
		if inside[k] {
			r.Values[k] = (r.Values[k] - mean) / sd
		} else {
			r.Values[k] = 0
		}
	}
	return nil
}

// ConstantCovariate takes the same value everywhere. A value of 1 is the
// model intercept.
type ConstantCovariate struct {
	CovName string
	Value   float64
}

// Name implements Covariate.
func (c *ConstantCovariate) Name() string { return c.CovName }

// At implements Covariate.
func (c *ConstantCovariate) At(orb.Point) float64 { return c.Value }

// FuncCovariate evaluates an arbitrary function; used for simulated
// covariate surfaces in tests and scenario studies.
type FuncCovariate struct {
	CovName string
	Fn      func(orb.Point) float64
}

// Name implements Covariate.
func (c *FuncCovariate) Name() string { return c.CovName }

// At implements Covariate.
func (c *FuncCovariate) At(p orb.Point) float64 { return c.Fn(p) }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
