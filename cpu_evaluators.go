package cantucci

import (
	"github.com/soypat/geometry/ms3"
)

func (s *Sphere) MinDistanceFrom(p ms3.Vec) float32 {
	return ms3.Norm(ms3.Sub(p, s.center)) - s.r
}

func (s *Sphere) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	}
	c, r := s.center, s.r
	for i, p := range pos {
		dist[i] = ms3.Norm(ms3.Sub(p, c)) - r
	}
	return nil
}

func (m *Mandelbulb) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	}
	for i, p := range pos {
		dist[i] = m.MinDistanceFrom(p)
	}
	return nil
}
