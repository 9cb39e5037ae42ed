// Package distcache samples a distance field on a regular grid of corners and
// stores the samples in an octree so that adjacent mesh cells share corner
// values instead of querying the shape again.
package distcache

import (
	"fmt"
	"math/bits"

	"github.com/chewxy/math32"
	"github.com/soypat/cantucci/gleval"
	"github.com/soypat/cantucci/grid"
	"github.com/soypat/cantucci/octree"
	"github.com/soypat/geometry/ms3"
)

// LeafSize is the largest amount of cells per axis stored in a single leaf.
// Nodes spanning more cells are split into octants.
const LeafSize = 16

// Inclusion describes on which side of the surface a point lies.
type Inclusion uint8

const (
	Outside Inclusion = iota
	Inside
)

// InclusionOf returns Inside if the sign bit of d is set. Note -0 is Inside and +0 is Outside.
func InclusionOf(d float32) Inclusion {
	if math32.Signbit(d) {
		return Inside
	}
	return Outside
}

func (inc Inclusion) String() string {
	switch inc {
	case Inside:
		return "inside"
	case Outside:
		return "outside"
	}
	return "Inclusion(" + fmt.Sprint(uint8(inc)) + ")"
}

// SkippedError is returned by [Cache.At] for corners in a region that was not
// sampled because it lies entirely on one side of the surface.
type SkippedError struct {
	Inclusion Inclusion
}

func (e *SkippedError) Error() string {
	return "distance not sampled, region is " + e.Inclusion.String()
}

// leaf is either Exact, holding sampled corners, or Skipped, holding only its inclusion.
type leaf struct {
	exact *grid.Table[float32]
	incl  Inclusion
}

// Cache holds distance samples at the corners of a resolution³ cell grid, that is
// (resolution+1)³ corners with global integer coordinates in 0..resolution.
type Cache struct {
	span  ms3.Box
	res   int
	step  ms3.Vec
	tree  *octree.Octree[leaf, struct{}]
	evals uint64
}

// New samples every corner of span divided into resolution³ cells. resolution must be a power of two.
func New(span ms3.Box, s gleval.SDF3, resolution int) (*Cache, error) {
	return newCache(span, s, resolution, false)
}

// NewSkipping is like [New] but does not sample leaves whose center lies farther
// from the surface than half the leaf diagonal. Corners in those leaves
// only report their inclusion.
func NewSkipping(span ms3.Box, s gleval.SDF3, resolution int) (*Cache, error) {
	return newCache(span, s, resolution, true)
}

func newCache(span ms3.Box, s gleval.SDF3, resolution int, skip bool) (*Cache, error) {
	if resolution < 1 || bits.OnesCount(uint(resolution)) != 1 {
		panic("distcache resolution must be a power of two")
	}
	c := &Cache{
		span: span,
		res:  resolution,
		step: ms3.Scale(1/float32(resolution), span.Size()),
		tree: octree.New[leaf, struct{}](span),
	}
	b := builder{
		c:    c,
		s:    s,
		skip: skip,
		pos:  make([]ms3.Vec, 0, (LeafSize+1)*(LeafSize+1)*(LeafSize+1)),
	}
	err := b.build(c.tree.Root(), 0, 0, 0, resolution)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type builder struct {
	c    *Cache
	s    gleval.SDF3
	skip bool
	pos  []ms3.Vec
}

// build fills the node at integer origin (ox,oy,oz) spanning n cells per axis.
func (b *builder) build(nd octree.Node[leaf, struct{}], ox, oy, oz, n int) error {
	if n > LeafSize {
		nd.Split(struct{}{})
		half := n / 2
		for i := 0; i < 8; i++ {
			cx, cy, cz := ox, oy, oz
			if i&4 != 0 {
				cx += half
			}
			if i&2 != 0 {
				cy += half
			}
			if i&1 != 0 {
				cz += half
			}
			if err := b.build(nd.Child(i), cx, cy, cz, half); err != nil {
				return err
			}
		}
		return nil
	}
	c := b.c
	if b.skip {
		lo := c.Corner(ox, oy, oz)
		hi := c.Corner(ox+n, oy+n, oz+n)
		center := ms3.Scale(0.5, ms3.Add(lo, hi))
		var d [1]float32
		err := b.s.Evaluate([]ms3.Vec{center}, d[:], nil)
		if err != nil {
			return fmt.Errorf("distcache sampling leaf center: %w", err)
		}
		c.evals++
		halfDiagonal := 0.5 * ms3.Norm(ms3.Sub(hi, lo))
		if math32.Abs(d[0]) > halfDiagonal {
			*nd.Leaf() = leaf{incl: InclusionOf(d[0])}
			return nil
		}
	}
	sz := n + 1
	pos := b.pos[:0]
	for x := 0; x < sz; x++ {
		for y := 0; y < sz; y++ {
			for z := 0; z < sz; z++ {
				pos = append(pos, c.Corner(ox+x, oy+y, oz+z))
			}
		}
	}
	b.pos = pos
	dist := make([]float32, len(pos))
	err := b.s.Evaluate(pos, dist, nil)
	if err != nil {
		return fmt.Errorf("distcache sampling leaf: %w", err)
	}
	c.evals += uint64(len(pos))
	*nd.Leaf() = leaf{exact: grid.FromSlice(sz, dist)}
	return nil
}

// Span returns the region covered by the cache.
func (c *Cache) Span() ms3.Box { return c.span }

// Resolution returns the amount of cells per axis.
func (c *Cache) Resolution() int { return c.res }

// Evaluations returns the amount of distances the cache queried from the shape.
func (c *Cache) Evaluations() uint64 { return c.evals }

// Corner returns the position of the corner with global coordinates (x,y,z).
// Every leaf computes positions with this same expression so shared corners coincide.
func (c *Cache) Corner(x, y, z int) ms3.Vec {
	return ms3.Vec{
		X: c.span.Min.X + float32(x)*c.step.X,
		Y: c.span.Min.Y + float32(y)*c.step.Y,
		Z: c.span.Min.Z + float32(z)*c.step.Z,
	}
}

// At returns the distance sampled at corner (x,y,z). If the corner lies in a
// skipped region the returned error is a *[SkippedError].
// Coordinates must be in 0..resolution.
func (c *Cache) At(x, y, z int) (float32, error) {
	lf, lx, ly, lz := c.find(x, y, z)
	if lf.exact == nil {
		return 0, &SkippedError{Inclusion: lf.incl}
	}
	return lf.exact.At(lx, ly, lz), nil
}

// InclusionAt returns the inclusion of corner (x,y,z) regardless of whether it was sampled exactly.
func (c *Cache) InclusionAt(x, y, z int) Inclusion {
	lf, lx, ly, lz := c.find(x, y, z)
	if lf.exact == nil {
		return lf.incl
	}
	return InclusionOf(lf.exact.At(lx, ly, lz))
}

// find descends the tree consuming coordinate bits, most significant first,
// and returns the leaf holding (x,y,z) and the leaf-local coordinates.
func (c *Cache) find(x, y, z int) (lf *leaf, lx, ly, lz int) {
	res := c.res
	if uint(x) > uint(res) || uint(y) > uint(res) || uint(z) > uint(res) {
		panic("distcache coordinate out of range")
	}
	// The far boundary belongs to the last leaf along that axis.
	dx, dy, dz := min(x, res-1), min(y, res-1), min(z, res-1)
	nd := c.tree.Root()
	n := res
	ox, oy, oz := 0, 0, 0
	for !nd.IsLeaf() {
		n /= 2
		shift := bits.TrailingZeros(uint(n))
		xb := (dx >> shift) & 1
		yb := (dy >> shift) & 1
		zb := (dz >> shift) & 1
		ox += xb * n
		oy += yb * n
		oz += zb * n
		nd = nd.Child(xb<<2 | yb<<1 | zb)
	}
	return nd.Leaf(), x - ox, y - oy, z - oz
}
