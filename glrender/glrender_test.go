package glrender

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/cantucci"
	"github.com/soypat/geometry/ms3"
)

// constField evaluates to the same distance everywhere.
type constField float32

func (c constField) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	for i := range dist {
		dist[i] = float32(c)
	}
	return nil
}

func (c constField) Bounds() ms3.Box {
	return ms3.Box{Min: ms3.Vec{X: -1, Y: -1, Z: -1}, Max: ms3.Vec{X: 1, Y: 1, Z: 1}}
}

var unitSpan = ms3.Box{Min: ms3.Vec{X: -1, Y: -1, Z: -1}, Max: ms3.Vec{X: 1, Y: 1, Z: 1}}

func TestSurfaceNetsConstantField(t *testing.T) {
	for _, d := range []float32{1, -1, 0, math32.Copysign(0, -1)} {
		for _, res := range []int{1, 2, 8, 32} {
			buf, err := SurfaceNets(unitSpan, constField(d), res)
			if err != nil {
				t.Fatal(err)
			}
			if len(buf.Vertices) != 0 || len(buf.Indices) != 0 {
				t.Errorf("field %v res %d: got %d vertices, %d indices, want none", d, res, len(buf.Vertices), len(buf.Indices))
			}
		}
	}
}

func TestSurfaceNetsSingleCornerInside(t *testing.T) {
	// Span is expanded to [-2,2]³ so the corners lie at -2, 0 and 2.
	// Only corner (0,0,0) at (-2,-2,-2) is inside the small sphere.
	var bld cantucci.Builder
	s := bld.NewSphere(ms3.Vec{X: -2, Y: -2, Z: -2}, 0.5)
	buf, err := SurfaceNets(unitSpan, s, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Vertices) != 1 {
		t.Fatalf("got %d vertices, want 1", len(buf.Vertices))
	}
	// No edge around the vertex has all four adjacent cells within the grid.
	if len(buf.Indices) != 0 {
		t.Fatalf("got %d indices, want 0", len(buf.Indices))
	}
	v := buf.Vertices[0]
	cellBox := ms3.Box{Min: ms3.Vec{X: -2, Y: -2, Z: -2}, Max: ms3.Vec{}}
	if !boxContains(cellBox, v.Position) {
		t.Errorf("vertex %v outside of cell %+v", v.Position, cellBox)
	}
	const want = -2 + 0.5/3
	for _, c := range []float32{v.Position.X, v.Position.Y, v.Position.Z} {
		if math32.Abs(c-want) > 1e-5 {
			t.Errorf("vertex %v, want all components %v", v.Position, want)
			break
		}
	}
	if v.Normal.X <= 0 || v.Normal.Y <= 0 || v.Normal.Z <= 0 {
		t.Errorf("normal %v should point away from inside corner", v.Normal)
	}
}

func TestSurfaceNetsSingleCenterInside(t *testing.T) {
	// Only the center corner at the origin is inside. All 8 cells touch it.
	var bld cantucci.Builder
	s := bld.NewSphere(ms3.Vec{}, 0.5)
	buf, err := SurfaceNets(unitSpan, s, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Vertices) != 8 {
		t.Fatalf("got %d vertices, want 8", len(buf.Vertices))
	}
	if len(buf.Indices) != 6*2*3 {
		t.Fatalf("got %d indices, want 36", len(buf.Indices))
	}
	for _, v := range buf.Vertices {
		for _, c := range []float32{v.Position.X, v.Position.Y, v.Position.Z} {
			if math32.Abs(math32.Abs(c)-0.5/3) > 1e-5 {
				t.Errorf("unexpected vertex position %v", v.Position)
			}
		}
	}
	for i, tri := range buf.Triangles() {
		n := ms3.Cross(ms3.Sub(tri[1], tri[0]), ms3.Sub(tri[2], tri[0]))
		if ms3.Norm(n) < 1e-6 {
			t.Errorf("triangle %d is degenerate: %v", i, tri)
		}
		centroid := ms3.Scale(1./3, ms3.Add(tri[0], ms3.Add(tri[1], tri[2])))
		if ms3.Dot(n, centroid) <= 0 {
			t.Errorf("triangle %d faces inward: %v", i, tri)
		}
	}
}

func TestSurfaceNetsSphereScenario(t *testing.T) {
	var bld cantucci.Builder
	s := bld.NewSphere(ms3.Vec{}, 1)
	span := ms3.Box{Min: ms3.Vec{X: -1.5, Y: -1.5, Z: -1.5}, Max: ms3.Vec{X: 1.5, Y: 1.5, Z: 1.5}}
	buf, err := SurfaceNets(span, s, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Vertices) == 0 || len(buf.Indices) == 0 {
		t.Fatal("empty mesh")
	}
	if buf.Timings.NumVertices != len(buf.Vertices) || buf.Timings.NumFaces*3 != len(buf.Indices) {
		t.Errorf("timings counts %+v do not match buffer", buf.Timings)
	}
	for _, v := range buf.Vertices {
		r := ms3.Norm(v.Position)
		if math32.Abs(r-1) > 0.15 {
			t.Errorf("vertex %v at distance %v from origin", v.Position, r)
		}
		if math32.Abs(ms3.Norm(v.Normal)-1) > 1e-4 {
			t.Errorf("normal %v not of unit length", v.Normal)
		}
		if ms3.Dot(v.Normal, v.Position) <= 0 {
			t.Errorf("normal %v at %v points inward", v.Normal, v.Position)
		}
	}
	edgeUse := make(map[[2]uint32]int)
	for i := 0; i < len(buf.Indices); i += 3 {
		tri := buf.Indices[i : i+3]
		for j := 0; j < 3; j++ {
			a, b := tri[j], tri[(j+1)%3]
			if a > b {
				a, b = b, a
			}
			edgeUse[[2]uint32{a, b}]++
		}
	}
	for e, n := range edgeUse {
		if n != 1 && n != 2 {
			t.Errorf("edge %v used by %d triangles", e, n)
		}
	}
	for i, tri := range buf.Triangles() {
		n := ms3.Cross(ms3.Sub(tri[1], tri[0]), ms3.Sub(tri[2], tri[0]))
		if ms3.Dot(n, tri[0]) <= 0 {
			t.Errorf("triangle %d faces inward", i)
		}
	}
}

func TestSurfaceNetsMandelbulbNormals(t *testing.T) {
	var bld cantucci.Builder
	s := bld.NewClassicMandelbulb(5, 2.5)
	buf, err := SurfaceNets(s.Bounds(), s, 32)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Vertices) == 0 {
		t.Fatal("no vertices")
	}
	if len(buf.Indices)%3 != 0 {
		t.Fatalf("index count %d not a multiple of 3", len(buf.Indices))
	}
	for _, idx := range buf.Indices {
		if int(idx) >= len(buf.Vertices) {
			t.Fatalf("index %d out of range", idx)
		}
	}
	for _, v := range buf.Vertices {
		if math32.Abs(ms3.Norm(v.Normal)-1) > 1e-4 {
			t.Fatalf("normal %v not of unit length", v.Normal)
		}
	}
}

func TestSurfaceNetsMandelbulbAxisZoom(t *testing.T) {
	// Deeply zoomed leaf straddling the z axis at the top of the bulb.
	var bld cantucci.Builder
	s := bld.NewClassicMandelbulb(8, 2.5)
	const h = 4e-6
	for _, zc := range []float32{0.64, 0.656, 0.672, 0.688} {
		span := ms3.Box{
			Min: ms3.Vec{X: -h, Y: -h, Z: zc - h},
			Max: ms3.Vec{X: h, Y: h, Z: zc + h},
		}
		buf, err := SurfaceNets(span, s, 8)
		if err != nil {
			t.Fatal(err)
		}
		for _, v := range buf.Vertices {
			if hasNaN(v.Position) || hasNaN(v.Normal) || math32.IsNaN(v.DistanceFromSurface) {
				t.Fatalf("z=%v: NaN in vertex %+v", zc, v)
			}
		}
	}
}

func hasNaN(v ms3.Vec) bool {
	return math32.IsNaN(v.X) || math32.IsNaN(v.Y) || math32.IsNaN(v.Z)
}

func TestNormalFallback(t *testing.T) {
	var bld cantucci.Builder
	sphere := bld.NewSphere(ms3.Vec{}, 1)
	// Flat interpolated field: corner distances are all zero. Normal must come from the shape.
	c := cell{
		min:  ms3.Vec{X: 0.5, Y: -0.5, Z: -0.5},
		step: ms3.Vec{X: 1, Y: 1, Z: 1},
	}
	sn := nets{s: sphere}
	p := ms3.Vec{X: 1}
	n, err := sn.normal(&c, p)
	if err != nil {
		t.Fatal(err)
	}
	if ms3.Norm(ms3.Sub(n, ms3.Vec{X: 1})) > 1e-3 {
		t.Errorf("sphere fallback normal = %v, want +X", n)
	}

	// Shape is flat as well: lower x corners are inside (-0), upper are outside (+0).
	sn = nets{s: constField(0)}
	negZero := math32.Copysign(0, -1)
	c.d = [8]float32{negZero, negZero, negZero, negZero, 0, 0, 0, 0}
	n, err = sn.normal(&c, p)
	if err != nil {
		t.Fatal(err)
	}
	if n != (ms3.Vec{X: 1}) {
		t.Errorf("inside centroid fallback normal = %v, want +X", n)
	}

	// No direction can be inferred at all.
	c.d = [8]float32{}
	n, err = sn.normal(&c, p)
	if err != nil {
		t.Fatal(err)
	}
	if n != (ms3.Vec{Z: 1}) {
		t.Errorf("final fallback normal = %v, want +Z", n)
	}
}

func TestCellInterpolate(t *testing.T) {
	c := cell{
		min:  ms3.Vec{X: 1, Y: 2, Z: 3},
		step: ms3.Vec{X: 2, Y: 2, Z: 2},
	}
	for i := range c.d {
		c.d[i] = float32(i)
	}
	for i := 0; i < 8; i++ {
		if got := c.interpolate(c.corner(i)); math32.Abs(got-float32(i)) > 1e-6 {
			t.Errorf("interpolate(corner %d) = %v, want %d", i, got, i)
		}
	}
	center := ms3.Vec{X: 2, Y: 3, Z: 4}
	if got := c.interpolate(center); math32.Abs(got-3.5) > 1e-6 {
		t.Errorf("interpolate(center) = %v, want 3.5", got)
	}
}

func TestSurfaceNetsPreconditions(t *testing.T) {
	s := constField(1)
	for name, fn := range map[string]func(){
		"degenerate span": func() {
			SurfaceNets(ms3.Box{Min: ms3.Vec{X: 1}, Max: ms3.Vec{X: 1, Y: 2, Z: 2}}, s, 4)
		},
		"non power of two": func() { SurfaceNets(unitSpan, s, 6) },
		"zero resolution":  func() { SurfaceNets(unitSpan, s, 0) },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: expected panic", name)
				}
			}()
			fn()
		}()
	}
}

func TestWriteBinarySTL(t *testing.T) {
	var bld cantucci.Builder
	buf, err := SurfaceNets(unitSpan, bld.NewSphere(ms3.Vec{}, 0.8), 8)
	if err != nil {
		t.Fatal(err)
	}
	tris := buf.Triangles()
	if len(tris) != len(buf.Indices)/3 {
		t.Fatalf("got %d triangles, want %d", len(tris), len(buf.Indices)/3)
	}
	var out bytes.Buffer
	n, err := WriteBinarySTL(&out, tris)
	if err != nil {
		t.Fatal(err)
	}
	wantSize := 84 + 50*len(tris)
	if n != wantSize || out.Len() != wantSize {
		t.Fatalf("wrote %d bytes (buffer %d), want %d", n, out.Len(), wantSize)
	}
	if count := binary.LittleEndian.Uint32(out.Bytes()[80:84]); int(count) != len(tris) {
		t.Errorf("STL header triangle count %d, want %d", count, len(tris))
	}
}

func TestSTLFacetNormals(t *testing.T) {
	tris := []ms3.Triangle{
		{{X: 0, Y: 0, Z: 1}, {X: 2, Y: 0, Z: 1}, {X: 0, Y: 3, Z: 1}}, // Counter-clockwise in XY.
		{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 5}, {X: 4, Y: 0, Z: 0}}, // Normal along +Y.
		{{X: 1, Y: 1, Z: 1}, {X: 2, Y: 2, Z: 2}, {X: 3, Y: 3, Z: 3}}, // Degenerate.
	}
	want := []ms3.Vec{{Z: 1}, {Y: 1}, {}}
	var out bytes.Buffer
	if _, err := WriteBinarySTL(&out, tris); err != nil {
		t.Fatal(err)
	}
	data := out.Bytes()
	for i := range tris {
		facet := data[84+50*i:]
		got := ms3.Vec{
			X: math.Float32frombits(binary.LittleEndian.Uint32(facet[0:])),
			Y: math.Float32frombits(binary.LittleEndian.Uint32(facet[4:])),
			Z: math.Float32frombits(binary.LittleEndian.Uint32(facet[8:])),
		}
		if ms3.Norm(ms3.Sub(got, want[i])) > 1e-6 {
			t.Errorf("facet %d normal %v, want %v", i, got, want[i])
		}
		v0 := math.Float32frombits(binary.LittleEndian.Uint32(facet[12:]))
		if v0 != tris[i][0].X {
			t.Errorf("facet %d first vertex x=%v, want %v", i, v0, tris[i][0].X)
		}
	}
}

func TestImageSliceRenderer(t *testing.T) {
	var bld cantucci.Builder
	s := bld.NewSphere(ms3.Vec{}, 1)
	ir, err := NewImageSliceRenderer(256, nil)
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	err = ir.RenderZ(s, 0, img, nil)
	if err != nil {
		t.Fatal(err)
	}
	if img.RGBAAt(16, 16) != (color.RGBA{A: 255}) {
		t.Errorf("center pixel %v, want black", img.RGBAAt(16, 16))
	}
	if img.RGBAAt(0, 0) != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("corner pixel %v, want white", img.RGBAAt(0, 0))
	}
	if _, err := NewImageSliceRenderer(10, nil); err == nil {
		t.Error("expected small buffer error")
	}
}

func boxContains(bb ms3.Box, p ms3.Vec) bool {
	return bb.Min.X <= p.X && p.X <= bb.Max.X &&
		bb.Min.Y <= p.Y && p.Y <= bb.Max.Y &&
		bb.Min.Z <= p.Z && p.Z <= bb.Max.Z
}
