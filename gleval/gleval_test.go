package gleval

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// plane is the half space z < height.
type plane struct{ height float32 }

func (p plane) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	}
	for i, v := range pos {
		dist[i] = v.Z - p.height
	}
	return nil
}

func (p plane) Bounds() ms3.Box {
	return ms3.Box{Min: ms3.Vec{X: -1, Y: -1, Z: -1}, Max: ms3.Vec{X: 1, Y: 1, Z: 1}}
}

// ball is a unit sphere at the origin.
type ball struct{}

func (ball) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	for i, v := range pos {
		dist[i] = ms3.Norm(v) - 1
	}
	return nil
}

func (ball) Bounds() ms3.Box {
	return ms3.Box{Min: ms3.Vec{X: -1, Y: -1, Z: -1}, Max: ms3.Vec{X: 1, Y: 1, Z: 1}}
}

func TestNormalsCentralDiff(t *testing.T) {
	var vp VecPool
	pos := []ms3.Vec{{X: 1}, {Y: -1}, {X: 0.6, Z: 0.8}, {X: 2, Y: 2, Z: 1}}
	normals := make([]ms3.Vec, len(pos))
	err := NormalsCentralDiff(ball{}, pos, normals, 1e-2, &vp)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range pos {
		got := ms3.Unit(normals[i])
		want := ms3.Unit(p)
		if ms3.Norm(ms3.Sub(got, want)) > 1e-3 {
			t.Errorf("normal at %v = %v, want %v", p, got, want)
		}
	}
	if err := vp.AssertAllReleased(); err != nil {
		t.Fatal(err)
	}
}

func TestNormalsCentralDiffErrors(t *testing.T) {
	var vp VecPool
	pos := make([]ms3.Vec, 2)
	if err := NormalsCentralDiff(ball{}, pos, make([]ms3.Vec, 1), 1, &vp); err == nil {
		t.Error("expected length mismatch error")
	}
	if err := NormalsCentralDiff(ball{}, pos, make([]ms3.Vec, 2), 0, &vp); err == nil {
		t.Error("expected invalid step error")
	}
	if err := NormalsCentralDiff(ball{}, pos, make([]ms3.Vec, 2), 1, nil); err == nil {
		t.Error("expected missing VecPool error")
	}
}

func TestCountingSDF3(t *testing.T) {
	c := NewCountingSDF3(plane{height: 0.5})
	pos := []ms3.Vec{{Z: 1}, {Z: 0}, {Z: 0.5}}
	dist := make([]float32, len(pos))
	for i := 0; i < 3; i++ {
		if err := c.Evaluate(pos, dist, nil); err != nil {
			t.Fatal(err)
		}
	}
	want := []float32{0.5, -0.5, 0}
	for i := range want {
		if math32.Abs(dist[i]-want[i]) > 1e-7 {
			t.Errorf("dist[%d] = %v, want %v", i, dist[i], want[i])
		}
	}
	if c.Evaluations() != 9 || c.Calls() != 3 {
		t.Errorf("Evaluations()=%d Calls()=%d, want 9 and 3", c.Evaluations(), c.Calls())
	}
	if err := c.Evaluate(pos, dist[:1], nil); err == nil {
		t.Error("expected buffer mismatch error")
	}
	if c.Evaluations() != 9 {
		t.Error("failed evaluation counted")
	}
	c.Reset()
	if c.Evaluations() != 0 || c.Calls() != 0 {
		t.Error("Reset did not zero counters")
	}
	if c.Bounds() != (plane{}).Bounds() {
		t.Error("bounds not forwarded")
	}
}

func TestVecPool(t *testing.T) {
	var vp VecPool
	a := vp.Float.Acquire(10)
	if len(a) != 10 {
		t.Fatalf("len = %d, want 10", len(a))
	}
	if vp.AssertAllReleased() == nil {
		t.Fatal("expected unreleased buffer error")
	}
	vp.Float.Release(a)
	b := vp.Float.Acquire(5)
	if cap(b) < 10 {
		t.Error("released buffer not reused")
	}
	vp.Float.Release(b)
	if err := vp.AssertAllReleased(); err != nil {
		t.Fatal(err)
	}
	if _, err := GetVecPool(42); err == nil {
		t.Error("expected error for non VecPool userData")
	}
	got, err := GetVecPool(&vp)
	if err != nil || got != &vp {
		t.Errorf("GetVecPool(&vp) = %p, %v", got, err)
	}
}
