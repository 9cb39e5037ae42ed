package gleval

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/soypat/geometry/ms3"
)

// SDF3 implements a 3D signed distance field in vectorized form.
// All cantucci shapes implement SDF3.
type SDF3 interface {
	// Evaluate evaluates the signed distance field over pos positions.
	// dist and pos must be of same length.  Resulting distances are stored
	// in dist.
	//
	// userData facilitates getting data to the evaluators for use in processing, such as [VecPool].
	Evaluate(pos []ms3.Vec, dist []float32, userData any) error
	// Bounds returns the SDF's bounding box such that all of the shape is contained within.
	Bounds() ms3.Box
}

var (
	errEmptyBuffers         = errors.New("empty buffers")
	errMismatchBufferLength = errors.New("position and distance buffer length mismatch")
)

// NormalsCentralDiff uses central differences algorithm for normal calculation, which are stored in normals for each position.
// step is the distance between the two sampled points along each axis.
// The returned normals are not normalized (converted to unit length).
func NormalsCentralDiff(s SDF3, pos []ms3.Vec, normals []ms3.Vec, step float32, userData any) error {
	step *= 0.5
	if step <= 0 {
		return errors.New("invalid step")
	} else if len(pos) != len(normals) {
		return errors.New("length of position must match length of normals")
	} else if s == nil {
		return errors.New("nil SDF3")
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	vp, err := GetVecPool(userData)
	if err != nil {
		return fmt.Errorf("VecPool required for normal calculation: %w", err)
	}
	d1 := vp.Float.Acquire(len(pos))
	d2 := vp.Float.Acquire(len(pos))
	auxPos := vp.V3.Acquire(len(pos))
	defer vp.Float.Release(d1)
	defer vp.Float.Release(d2)
	defer vp.V3.Release(auxPos)
	var vecs = [3]ms3.Vec{{X: step}, {Y: step}, {Z: step}}
	for dim := 0; dim < 3; dim++ {
		h := vecs[dim]
		for i, p := range pos {
			auxPos[i] = ms3.Add(p, h)
		}
		err = s.Evaluate(auxPos, d1, userData)
		if err != nil {
			return err
		}
		for i, p := range pos {
			auxPos[i] = ms3.Sub(p, h)
		}
		err = s.Evaluate(auxPos, d2, userData)
		if err != nil {
			return err
		}

		switch dim {
		case 0:
			for i, d := range d1 {
				normals[i].X = d - d2[i]
			}
		case 1:
			for i, d := range d1 {
				normals[i].Y = d - d2[i]
			}
		case 2:
			for i, d := range d1 {
				normals[i].Z = d - d2[i]
			}
		}
	}
	return nil
}

// CountingSDF3 wraps an SDF3 and counts the distance queries issued through it.
// It is safe for concurrent use if the wrapped SDF3 is.
type CountingSDF3 struct {
	sdf     SDF3
	calls   atomic.Uint64
	queries atomic.Uint64
}

// NewCountingSDF3 wraps s so evaluations can be tallied.
func NewCountingSDF3(s SDF3) *CountingSDF3 {
	if s == nil {
		panic("nil SDF3")
	}
	return &CountingSDF3{sdf: s}
}

// Evaluate implements the [SDF3] interface and counts the positions evaluated.
func (c3 *CountingSDF3) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	}
	err := c3.sdf.Evaluate(pos, dist, userData)
	if err != nil {
		return err
	}
	c3.calls.Add(1)
	c3.queries.Add(uint64(len(pos)))
	return nil
}

// Bounds returns the SDF's bounding box such that all of the shape is contained within.
func (c3 *CountingSDF3) Bounds() ms3.Box {
	return c3.sdf.Bounds()
}

// Evaluations returns total distances evaluated succesfully during the wrapper's lifetime.
func (c3 *CountingSDF3) Evaluations() uint64 {
	return c3.queries.Load()
}

// Calls returns the amount of successful batch Evaluate calls.
func (c3 *CountingSDF3) Calls() uint64 {
	return c3.calls.Load()
}

// Reset zeroes the counters.
func (c3 *CountingSDF3) Reset() {
	c3.calls.Store(0)
	c3.queries.Store(0)
}
