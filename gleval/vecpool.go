package gleval

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms3"
)

// VecPool holds reusable buffers for evaluators that need scratch space.
// A VecPool is not safe for concurrent use: give each goroutine its own pool.
type VecPool struct {
	V3    bufPool[ms3.Vec]
	Float bufPool[float32]
}

// GetVecPool extracts a VecPool from the userData passed to an Evaluate call.
// userData may be a *VecPool or implement interface{ VecPool() *VecPool }.
func GetVecPool(userData any) (*VecPool, error) {
	switch v := userData.(type) {
	case *VecPool:
		if v == nil {
			return nil, errors.New("nil VecPool")
		}
		return v, nil
	case interface{ VecPool() *VecPool }:
		vp := v.VecPool()
		if vp == nil {
			return nil, errors.New("VecPool method returned nil")
		}
		return vp, nil
	case nil:
		return nil, errors.New("nil userData, expected VecPool")
	}
	return nil, fmt.Errorf("want VecPool userData, got %T", userData)
}

// AssertAllReleased returns an error if any acquired buffer has not been released.
func (vp *VecPool) AssertAllReleased() error {
	if err := vp.V3.assertAllReleased(); err != nil {
		return fmt.Errorf("V3 pool: %w", err)
	}
	if err := vp.Float.assertAllReleased(); err != nil {
		return fmt.Errorf("float pool: %w", err)
	}
	return nil
}

type bufPool[T any] struct {
	free  [][]T
	taken int
}

// Acquire returns a buffer of length n. Its contents are undefined.
func (bp *bufPool[T]) Acquire(n int) []T {
	bp.taken++
	for i, buf := range bp.free {
		if cap(buf) >= n {
			last := len(bp.free) - 1
			bp.free[i] = bp.free[last]
			bp.free = bp.free[:last]
			return buf[:n]
		}
	}
	return make([]T, n)
}

// Release returns a buffer obtained with Acquire to the pool.
func (bp *bufPool[T]) Release(buf []T) {
	if bp.taken <= 0 {
		panic("release of buffer not acquired from pool")
	}
	bp.taken--
	bp.free = append(bp.free, buf[:0])
}

func (bp *bufPool[T]) assertAllReleased() error {
	if bp.taken != 0 {
		return fmt.Errorf("%d buffers not released", bp.taken)
	}
	return nil
}
