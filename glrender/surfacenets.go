package glrender

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/chewxy/math32"
	"github.com/soypat/cantucci"
	"github.com/soypat/cantucci/distcache"
	"github.com/soypat/cantucci/gleval"
	"github.com/soypat/cantucci/grid"
	"github.com/soypat/geometry/ms3"
)

// Vertex is a mesh vertex. Its memory layout is 7 consecutive float32 so
// vertex buffers can be uploaded to the GPU as is.
type Vertex struct {
	Position ms3.Vec
	// Normal is of unit length.
	Normal ms3.Vec
	// DistanceFromSurface is the interpolated distance estimate at Position. Useful for shading.
	DistanceFromSurface float32
}

// Buffer is a triangle list mesh. Every three consecutive indices form a triangle
// wound counter-clockwise when viewed from outside of the shape.
type Buffer struct {
	Vertices []Vertex
	Indices  []uint32
	Timings  Timings
}

// Timings holds diagnostic information about a surface extraction.
type Timings struct {
	Sampling    time.Duration
	Vertices    time.Duration
	Faces       time.Duration
	NumVertices int
	NumFaces    int
}

func (t Timings) Total() time.Duration { return t.Sampling + t.Vertices + t.Faces }

func (t Timings) String() string {
	r := func(d time.Duration) time.Duration { return d.Round(time.Microsecond) }
	return fmt.Sprintf("total %v (%v, %v, %v)", r(t.Total()), r(t.Sampling), r(t.Vertices), r(t.Faces))
}

// Triangles returns the faces of the buffer as triangles.
func (b *Buffer) Triangles() []ms3.Triangle {
	tris := make([]ms3.Triangle, 0, len(b.Indices)/3)
	for i := 0; i+2 < len(b.Indices); i += 3 {
		tris = append(tris, ms3.Triangle{
			b.Vertices[b.Indices[i]].Position,
			b.Vertices[b.Indices[i+1]].Position,
			b.Vertices[b.Indices[i+2]].Position,
		})
	}
	return tris
}

// Bounds returns the bounding box of all vertex positions. It returns the zero box for an empty buffer.
func (b *Buffer) Bounds() ms3.Box {
	if len(b.Vertices) == 0 {
		return ms3.Box{}
	}
	bb := ms3.Box{Min: b.Vertices[0].Position, Max: b.Vertices[0].Position}
	for _, v := range b.Vertices[1:] {
		p := v.Position
		bb.Min = ms3.Vec{X: math32.Min(bb.Min.X, p.X), Y: math32.Min(bb.Min.Y, p.Y), Z: math32.Min(bb.Min.Z, p.Z)}
		bb.Max = ms3.Vec{X: math32.Max(bb.Max.X, p.X), Y: math32.Max(bb.Max.Y, p.Y), Z: math32.Max(bb.Max.Z, p.Z)}
	}
	return bb
}

// Cell corners are indexed by x<<2 | y<<1 | z.
var cellEdges = [12][2]int{
	// x aligned.
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
	// y aligned.
	{0, 2}, {1, 3}, {4, 6}, {5, 7},
	// z aligned.
	{0, 1}, {2, 3}, {4, 5}, {6, 7},
}

// SurfaceNets extracts the surface of s within span using the naive surface nets algorithm
// over a grid of resolution³ cells. One vertex is placed in every cell crossing the surface
// at the centroid of the cell's edge crossings and a quad is emitted for every grid edge
// crossing the surface.
//
// The span is grown by one cell on every side so that meshes of adjacent spans overlap
// and leave no gaps. resolution must be a power of two.
func SurfaceNets(span ms3.Box, s gleval.SDF3, resolution int) (Buffer, error) {
	sz := span.Size()
	if !(sz.X > 0 && sz.Y > 0 && sz.Z > 0) {
		panic("degenerate surface nets span")
	} else if resolution < 1 || bits.OnesCount(uint(resolution)) != 1 {
		panic("surface nets resolution must be a power of two")
	}
	start := time.Now()
	var timings Timings
	overflow := ms3.Scale(1/float32(resolution), sz)
	span.Min = ms3.Sub(span.Min, overflow)
	span.Max = ms3.Add(span.Max, overflow)

	cache, err := distcache.New(span, s, resolution)
	if err != nil {
		return Buffer{}, err
	}
	sn := nets{
		s:     s,
		cache: cache,
		res:   resolution,
		step:  ms3.Scale(1/float32(resolution), span.Size()),
	}
	err = sn.sampleCorners()
	if err != nil {
		return Buffer{}, err
	}
	timings.Sampling = time.Since(start)

	start = time.Now()
	err = sn.generateVertices()
	if err != nil {
		return Buffer{}, err
	}
	timings.Vertices = time.Since(start)

	start = time.Now()
	sn.generateFaces()
	timings.Faces = time.Since(start)

	timings.NumVertices = len(sn.vertices)
	timings.NumFaces = len(sn.indices) / 3
	cantucci.Logger().Debug("surface nets",
		"resolution", resolution,
		"vertices", timings.NumVertices,
		"faces", timings.NumFaces,
		"evaluations", cache.Evaluations(),
		"timings", timings.String(),
	)
	return Buffer{Vertices: sn.vertices, Indices: sn.indices, Timings: timings}, nil
}

type nets struct {
	s       gleval.SDF3
	cache   *distcache.Cache
	res     int
	step    ms3.Vec
	corners *grid.Table[float32]
	// cellVerts holds the vertex index of every cell, -1 for cells not crossing the surface.
	cellVerts []int32
	vertices  []Vertex
	indices   []uint32
	vp        gleval.VecPool
}

// sampleCorners reads all (res+1)³ corner distances from the cache.
// Corners in regions the cache skipped are queried from the shape directly.
func (sn *nets) sampleCorners() error {
	n := sn.res + 1
	data := make([]float32, n*n*n)
	var missingPos []ms3.Vec
	var missingIdx []int
	i := 0
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				d, err := sn.cache.At(x, y, z)
				var skipped *distcache.SkippedError
				if errors.As(err, &skipped) {
					missingPos = append(missingPos, sn.cache.Corner(x, y, z))
					missingIdx = append(missingIdx, i)
				}
				data[i] = d
				i++
			}
		}
	}
	if len(missingPos) > 0 {
		dist := make([]float32, len(missingPos))
		err := sn.s.Evaluate(missingPos, dist, &sn.vp)
		if err != nil {
			return err
		}
		for j, idx := range missingIdx {
			data[idx] = dist[j]
		}
	}
	sn.corners = grid.FromSlice(n, data)
	return nil
}

func (sn *nets) cellIndex(x, y, z int) int {
	return x*sn.res*sn.res + y*sn.res + z
}

func (sn *nets) cellAt(x, y, z int) cell {
	c := cell{
		min:  sn.cache.Corner(x, y, z),
		step: sn.step,
	}
	for i := range c.d {
		c.d[i] = sn.corners.At(x+(i>>2)&1, y+(i>>1)&1, z+i&1)
	}
	return c
}

func (sn *nets) generateVertices() error {
	res := sn.res
	sn.cellVerts = make([]int32, res*res*res)
	for x := 0; x < res; x++ {
		for y := 0; y < res; y++ {
			for z := 0; z < res; z++ {
				idx := sn.cellIndex(x, y, z)
				sn.cellVerts[idx] = -1
				c := sn.cellAt(x, y, z)
				if !c.crossesSurface() {
					continue
				}
				p := c.vertexPosition()
				normal, err := sn.normal(&c, p)
				if err != nil {
					return err
				}
				sn.cellVerts[idx] = int32(len(sn.vertices))
				sn.vertices = append(sn.vertices, Vertex{
					Position:            p,
					Normal:              normal,
					DistanceFromSurface: c.interpolate(p),
				})
			}
		}
	}
	return nil
}

// normal estimates the surface normal at p, which lies within cell c.
// The returned normal is always of unit length.
func (sn *nets) normal(c *cell, p ms3.Vec) (ms3.Vec, error) {
	h := c.step
	g := ms3.Vec{
		X: c.interpolate(ms3.Add(p, ms3.Vec{X: h.X})) - c.interpolate(ms3.Sub(p, ms3.Vec{X: h.X})),
		Y: c.interpolate(ms3.Add(p, ms3.Vec{Y: h.Y})) - c.interpolate(ms3.Sub(p, ms3.Vec{Y: h.Y})),
		Z: c.interpolate(ms3.Add(p, ms3.Vec{Z: h.Z})) - c.interpolate(ms3.Sub(p, ms3.Vec{Z: h.Z})),
	}
	if n, ok := unitOK(g); ok {
		return n, nil
	}
	// Interpolated field is flat around p, query the shape directly.
	var normals [1]ms3.Vec
	minStep := math32.Min(h.X, math32.Min(h.Y, h.Z))
	err := gleval.NormalsCentralDiff(sn.s, []ms3.Vec{p}, normals[:], 2*minStep, &sn.vp)
	if err != nil {
		return ms3.Vec{}, err
	}
	if n, ok := unitOK(normals[0]); ok {
		return n, nil
	}
	return c.fallbackNormal(), nil
}

// generateFaces emits two triangles for every grid edge crossing the surface.
// The four cells sharing an edge are those offset by -1 along the two axes orthogonal to it.
func (sn *nets) generateFaces() {
	res := sn.res
	inner := func(v int) bool { return v > 0 && v < res }
	for x := 0; x <= res; x++ {
		for y := 0; y <= res; y++ {
			for z := 0; z <= res; z++ {
				in := distcache.InclusionOf(sn.corners.At(x, y, z))
				if x < res && inner(y) && inner(z) {
					sn.edgeFace(0, in, distcache.InclusionOf(sn.corners.At(x+1, y, z)),
						[4][3]int{{x, y - 1, z - 1}, {x, y - 1, z}, {x, y, z - 1}, {x, y, z}})
				}
				if y < res && inner(x) && inner(z) {
					sn.edgeFace(1, in, distcache.InclusionOf(sn.corners.At(x, y+1, z)),
						[4][3]int{{x - 1, y, z - 1}, {x - 1, y, z}, {x, y, z - 1}, {x, y, z}})
				}
				if z < res && inner(x) && inner(y) {
					sn.edgeFace(2, in, distcache.InclusionOf(sn.corners.At(x, y, z+1)),
						[4][3]int{{x - 1, y - 1, z}, {x - 1, y, z}, {x, y - 1, z}, {x, y, z}})
				}
			}
		}
	}
}

// quadSign is the direction along the edge axis of the normal of the quad
// (v0,v1,v3,v2), where v0..v3 are the cells at offsets (-,-), (-,+), (+,-), (+,+)
// along the two axes orthogonal to the edge.
var quadSign = [3]int{-1, +1, -1}

func (sn *nets) edgeFace(axis int, lower, upper distcache.Inclusion, cells [4][3]int) {
	if lower == upper {
		return
	}
	var v [4]uint32
	for i, c := range cells {
		vi := sn.cellVerts[sn.cellIndex(c[0], c[1], c[2])]
		if vi < 0 {
			panic("inconsistent sign sampling")
		}
		v[i] = uint32(vi)
	}
	// Faces point from the inside corner towards the outside corner.
	want := -1
	if lower == distcache.Inside {
		want = 1
	}
	if want == quadSign[axis] {
		sn.indices = append(sn.indices, v[0], v[1], v[3], v[0], v[3], v[2])
	} else {
		sn.indices = append(sn.indices, v[0], v[2], v[3], v[0], v[3], v[1])
	}
}

// cell holds the corner distances of a single grid cell. Corner i lies at
// min + step*(i>>2&1, i>>1&1, i&1).
type cell struct {
	min  ms3.Vec
	step ms3.Vec
	d    [8]float32
}

func (c *cell) corner(i int) ms3.Vec {
	return ms3.Vec{
		X: c.min.X + float32(i>>2&1)*c.step.X,
		Y: c.min.Y + float32(i>>1&1)*c.step.Y,
		Z: c.min.Z + float32(i&1)*c.step.Z,
	}
}

func (c *cell) inclusion(i int) distcache.Inclusion { return distcache.InclusionOf(c.d[i]) }

func (c *cell) crossesSurface() bool {
	first := c.inclusion(0)
	for i := 1; i < 8; i++ {
		if c.inclusion(i) != first {
			return true
		}
	}
	return false
}

// vertexPosition returns the centroid of the surface crossings on the cell's edges.
// The cell must cross the surface.
func (c *cell) vertexPosition() ms3.Vec {
	var sum ms3.Vec
	n := 0
	for _, e := range cellEdges {
		a, b := e[0], e[1]
		if c.inclusion(a) == c.inclusion(b) {
			continue
		}
		if c.inclusion(a) != distcache.Inside {
			a, b = b, a
		}
		dIn := -math32.Abs(c.d[a])
		dOut := math32.Abs(c.d[b])
		delta := dOut - dIn
		var w float32 = 0.5
		if delta != 0 {
			// Weight of the inside corner.
			w = (dIn + delta) / delta
		}
		p := ms3.Add(ms3.Scale(w, c.corner(a)), ms3.Scale(1-w, c.corner(b)))
		sum = ms3.Add(sum, p)
		n++
	}
	if n == 0 {
		panic("vertex of cell not crossing surface")
	}
	return ms3.Scale(1/float32(n), sum)
}

// interpolate trilinearly interpolates the corner distances at p.
// Points outside of the cell are extrapolated.
func (c *cell) interpolate(p ms3.Vec) float32 {
	t := ms3.DivElem(ms3.Sub(p, c.min), c.step)
	d := &c.d
	c00 := d[0]*(1-t.X) + d[4]*t.X
	c01 := d[1]*(1-t.X) + d[5]*t.X
	c10 := d[2]*(1-t.X) + d[6]*t.X
	c11 := d[3]*(1-t.X) + d[7]*t.X
	c0 := c00*(1-t.Y) + c10*t.Y
	c1 := c01*(1-t.Y) + c11*t.Y
	return c0*(1-t.Z) + c1*t.Z
}

// fallbackNormal points away from the centroid of the inside corners, or +Z
// if that direction is undefined.
func (c *cell) fallbackNormal() ms3.Vec {
	var inside ms3.Vec
	n := 0
	for i := 0; i < 8; i++ {
		if c.inclusion(i) == distcache.Inside {
			inside = ms3.Add(inside, c.corner(i))
			n++
		}
	}
	if n > 0 {
		center := ms3.Add(c.min, ms3.Scale(0.5, c.step))
		inside = ms3.Scale(1/float32(n), inside)
		if u, ok := unitOK(ms3.Sub(center, inside)); ok {
			return u
		}
	}
	return ms3.Vec{Z: 1}
}

// unitOK normalizes v. ok is false if v has zero or non-finite length.
func unitOK(v ms3.Vec) (u ms3.Vec, ok bool) {
	n := ms3.Norm(v)
	if n == 0 || math32.IsNaN(n) || math32.IsInf(n, 0) {
		return ms3.Vec{}, false
	}
	return ms3.Scale(1/n, v), true
}
