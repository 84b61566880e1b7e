package lgcp

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
)

// Input exchange formats. The upstream image/ROI extraction collaborator
// supplies points, region polygons and raster covariates pre-aligned to
// one shared coordinate frame; every file therefore declares its frame and
// ingestion rejects mismatches instead of silently combining layers.

type pointsFile struct {
	Frame  string       `json:"frame"`
	Points [][2]float64 `json:"points"`
}

// ParsePointsJSON decodes a point pattern from its JSON exchange form.
func ParsePointsJSON(data []byte) (*PointPattern, error) {
	var f pointsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing points JSON: %w", err)
	}
	if f.Frame == "" {
		return nil, &DegenerateGeometryError{Reason: "points file has no coordinate frame"}
	}
	pts := make([]orb.Point, len(f.Points))
	for i, p := range f.Points {
		pts[i] = orb.Point{p[0], p[1]}
	}
	return NewPointPattern(f.Frame, pts), nil
}

// LoadPoints reads a point pattern file.
func LoadPoints(path string) (*PointPattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading points file: %w", err)
	}
	return ParsePointsJSON(data)
}

// SavePoints writes a point pattern in the exchange form.
func SavePoints(path string, pp *PointPattern) error {
	f := pointsFile{Frame: pp.Frame, Points: make([][2]float64, len(pp.Points))}
	for i, p := range pp.Points {
		f.Points[i] = [2]float64{p[0], p[1]}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling points: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing points file: %w", err)
	}
	return nil
}

type regionFile struct {
	Frame    string           `json:"frame"`
	Polygons [][][][2]float64 `json:"polygons"` // polygon -> ring -> vertex
}

// ParseRegionJSON decodes and validates a region from its JSON exchange
// form: a list of polygons, each a list of rings (first outer, rest holes).
func ParseRegionJSON(data []byte) (*Region, error) {
	var f regionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing region JSON: %w", err)
	}
	mp := make(orb.MultiPolygon, len(f.Polygons))
	for pi, poly := range f.Polygons {
		p := make(orb.Polygon, len(poly))
		for ri, ring := range poly {
			r := make(orb.Ring, len(ring))
			for vi, v := range ring {
				r[vi] = orb.Point{v[0], v[1]}
			}
			p[ri] = r
		}
		mp[pi] = p
	}
	return NewRegion(f.Frame, mp)
}

// LoadRegion reads a region file.
func LoadRegion(path string) (*Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading region file: %w", err)
	}
	return ParseRegionJSON(data)
}

// SaveRegion writes a region in the exchange form.
func SaveRegion(path string, region *Region) error {
	f := regionFile{Frame: region.Frame, Polygons: make([][][][2]float64, len(region.Polygons))}
	for pi, poly := range region.Polygons {
		f.Polygons[pi] = make([][][2]float64, len(poly))
		for ri, ring := range poly {
			f.Polygons[pi][ri] = make([][2]float64, len(ring))
			for vi, v := range ring {
				f.Polygons[pi][ri][vi] = [2]float64{v[0], v[1]}
			}
		}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling region: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing region file: %w", err)
	}
	return nil
}

type rasterFile struct {
	Name   string     `json:"name"`
	Frame  string     `json:"frame"`
	Origin [2]float64 `json:"origin"`
	Dx     float64    `json:"dx"`
	Dy     float64    `json:"dy"`
	NX     int        `json:"nx"`
	NY     int        `json:"ny"`
	Values []float64  `json:"values"`
}

// ParseRasterJSON decodes a raster covariate from its JSON exchange form.
func ParseRasterJSON(data []byte) (*Raster, error) {
	var f rasterFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing raster JSON: %w", err)
	}
	if f.Frame == "" {
		return nil, &DegenerateGeometryError{Reason: fmt.Sprintf("raster %q has no coordinate frame", f.Name)}
	}
	return NewRaster(f.Name, f.Frame, orb.Point{f.Origin[0], f.Origin[1]}, f.Dx, f.Dy, f.NX, f.NY, f.Values)
}

// LoadRaster reads a raster covariate file.
func LoadRaster(path string) (*Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading raster file: %w", err)
	}
	return ParseRasterJSON(data)
}
