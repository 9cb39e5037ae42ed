package cantucci

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/cantucci/glbuild"
	"github.com/soypat/geometry/ms3"
)

// Shape is a 3D object described by a distance estimator (DE) instead of a
// triangle mesh. The only way to learn about the geometry of a Shape is by
// querying it for distances.
//
// Implementations must be safe for concurrent use: mesh extraction jobs share a
// single Shape across worker goroutines.
type Shape interface {
	// Evaluate is the batched form of MinDistanceFrom. pos and dist must be
	// of same length and results are stored in dist.
	//
	// userData facilitates getting data to the evaluators, such as [gleval.VecPool].
	Evaluate(pos []ms3.Vec, dist []float32, userData any) error
	// MinDistanceFrom returns a lower bound of the distance from p to the
	// closest surface point. The result is negative iff p is inside the shape
	// and must converge towards the real distance when approaching the surface.
	MinDistanceFrom(p ms3.Vec) float32
	// MaxDistanceFrom returns an upper bound of the distance from p to the surface.
	// If ok is false once the Shape never provides an upper bound, regardless of p.
	MaxDistanceFrom(p ms3.Vec) (dmax float32, ok bool)
	// Contains reports whether p lies inside the shape.
	Contains(p ms3.Vec) bool
	// Bounds returns the shape's bounding box such that all of the shape is contained within.
	Bounds() ms3.Box

	glbuild.Shader3D
}

var (
	// ErrNoMaxDistance is returned by batch upper bound queries on shapes that
	// do not provide upper bounds.
	ErrNoMaxDistance        = errors.New("shape provides no upper distance bound")
	errMismatchBufferLength = errors.New("position and distance buffer length mismatch")
)

// ContainsDefault is the default Contains implementation in terms of MinDistanceFrom.
func ContainsDefault(s Shape, p ms3.Vec) bool {
	return s.MinDistanceFrom(p) < 0
}

// BoundedDistanceFrom returns both the lower and upper bound of the distance from p to s.
// ok is false if s does not provide upper bounds.
func BoundedDistanceFrom(s Shape, p ms3.Vec) (dmin, dmax float32, ok bool) {
	if b, isBounded := s.(boundedShape); isBounded {
		return b.BoundedDistanceFrom(p)
	}
	dmax, ok = s.MaxDistanceFrom(p)
	return s.MinDistanceFrom(p), dmax, ok
}

// EvaluateMax stores upper distance bounds of pos in dmax.
// It returns [ErrNoMaxDistance] if s can't provide upper bounds.
func EvaluateMax(s Shape, pos []ms3.Vec, dmax []float32) error {
	if len(pos) != len(dmax) {
		return errMismatchBufferLength
	}
	for i, p := range pos {
		d, ok := s.MaxDistanceFrom(p)
		if !ok {
			return ErrNoMaxDistance
		}
		dmax[i] = d
	}
	return nil
}

// EvaluateBounded stores lower and upper distance bounds of pos in dmin and dmax.
// It returns [ErrNoMaxDistance] if s can't provide upper bounds.
func EvaluateBounded(s Shape, pos []ms3.Vec, dmin, dmax []float32) error {
	if len(pos) != len(dmin) || len(pos) != len(dmax) {
		return errMismatchBufferLength
	}
	for i, p := range pos {
		lo, hi, ok := BoundedDistanceFrom(s, p)
		if !ok {
			return ErrNoMaxDistance
		}
		dmin[i] = lo
		dmax[i] = hi
	}
	return nil
}

// DEShader returns the GLSL source of the distance estimator of s
// with the signature `float shape_de(vec3 p)`.
func DEShader(s Shape) string {
	return string(glbuild.AppendDEShader(nil, s))
}

type boundedShape interface {
	BoundedDistanceFrom(p ms3.Vec) (dmin, dmax float32, ok bool)
}

// Builder creates shapes. By default invalid shape parameters panic.
// Set NoDimensionPanic to accumulate errors instead, which are returned by [Builder.Err].
type Builder struct {
	NoDimensionPanic bool
	accumErrs        []error
}

func (bld *Builder) Err() error {
	if len(bld.accumErrs) == 0 {
		return nil
	}
	return errors.Join(bld.accumErrs...)
}

func (bld *Builder) shapeErrorf(msg string, args ...any) {
	if !bld.NoDimensionPanic {
		panic(fmt.Sprintf(msg, args...))
	}
	bld.accumErrs = append(bld.accumErrs, fmt.Errorf(msg, args...))
}

func isBadFloat(f float32) bool {
	return math32.IsNaN(f) || math32.IsInf(f, 0)
}
