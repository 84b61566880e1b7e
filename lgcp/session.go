package lgcp

import (
	"fmt"
)

// Session owns the mesh for one Domain/Buffer combination and hands out the
// derived read-only views (field operator, projector, integration scheme).
// Every pipeline stage takes the session explicitly; there is no ambient
// "current mesh" state.
type Session struct {
	Frame  string
	Domain *Region
	Buffer *Region
	Mesh   *Mesh

	projector *Projector
	operators map[int]*FieldOperator
	scheme    *IntegrationScheme
}

// NewSession builds the mesh for the domain and buffer and returns the
// session that owns it. The buffer must share the domain's coordinate
// frame and strictly contain it.
func NewSession(domain, buffer *Region, cfg MeshConfig) (*Session, error) {
	mesh, err := BuildMesh(domain, buffer, cfg)
	if err != nil {
		return nil, err
	}
	return &Session{
		Frame:     domain.Frame,
		Domain:    domain,
		Buffer:    buffer,
		Mesh:      mesh,
		operators: make(map[int]*FieldOperator),
	}, nil
}

// Projector returns the session's projector, building it on first use.
func (s *Session) Projector() *Projector {
	if s.projector == nil {
		s.projector = NewProjector(s.Mesh)
	}
	return s.projector
}

// Operator returns the field operator for the given smoothness order,
// assembling and caching it on first use.
func (s *Session) Operator(alpha int) (*FieldOperator, error) {
	if op, ok := s.operators[alpha]; ok {
		return op, nil
	}
	op, err := NewFieldOperator(s.Mesh, alpha)
	if err != nil {
		return nil, err
	}
	s.operators[alpha] = op
	return op, nil
}

// Integration returns the domain-restricted dual-cell integration scheme,
// building it on first use with the default subdivision depth.
func (s *Session) Integration() *IntegrationScheme {
	if s.scheme == nil {
		s.scheme = BuildIntegrationScheme(s.Mesh, s.Domain, defaultSubdivisionDepth)
	}
	return s.scheme
}

// CheckPattern verifies the pattern's coordinate frame and that every point
// lies inside the domain.
func (s *Session) CheckPattern(pp *PointPattern) error {
	if pp.Frame != s.Frame {
		return &DegenerateGeometryError{Reason: fmt.Sprintf("frame mismatch: pattern %q vs session %q", pp.Frame, s.Frame)}
	}
	for i, p := range pp.Points {
		if !s.Domain.Contains(p) {
			return &OutOfDomainError{Point: p, Index: i}
		}
	}
	return nil
}

// CheckCovariate verifies a raster covariate's coordinate frame. Non-raster
// covariates carry no frame and always pass.
func (s *Session) CheckCovariate(c Covariate) error {
	r, ok := c.(*Raster)
	if !ok {
		return nil
	}
	if r.Frame != s.Frame {
		return &DegenerateGeometryError{Reason: fmt.Sprintf("frame mismatch: raster %q in %q vs session %q", r.RasterName, r.Frame, s.Frame)}
	}
	return nil
}
