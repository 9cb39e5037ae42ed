// Package octree implements a pointer based octree that recursively partitions
// an axis aligned box into eight equally sized octants.
//
// Spans are half-open: a point lies in a span if min <= p < max on every axis.
// This way a point on a face shared by two octants belongs to exactly one of them.
//
// Octants are ordered by the bit pattern x<<2 | y<<1 | z where a set bit selects
// the upper half along that axis:
//
//	0: (-x,-y,-z)  1: (-x,-y,+z)  2: (-x,+y,-z)  3: (-x,+y,+z)
//	4: (+x,-y,-z)  5: (+x,-y,+z)  6: (+x,+y,-z)  7: (+x,+y,+z)
package octree

import (
	"github.com/soypat/geometry/ms3"
)

// Octree stores leaf data of type L in its leaves and data of type I
// in its inner (subdivided) nodes. The zero value of L represents an empty leaf.
// An Octree is not safe for concurrent use.
type Octree[L, I any] struct {
	span ms3.Box
	root node[L, I]
}

type node[L, I any] struct {
	// children is nil for leaves.
	children *[8]node[L, I]
	leaf     L
	inner    I
}

// New creates an octree consisting of a single empty leaf spanning span.
// span must have positive size along every axis.
func New[L, I any](span ms3.Box) *Octree[L, I] {
	sz := span.Size()
	if !(sz.X > 0 && sz.Y > 0 && sz.Z > 0) {
		panic("octree span must be non-degenerate")
	}
	return &Octree[L, I]{span: span}
}

// Span returns the span of the root node.
func (t *Octree[L, I]) Span() ms3.Box { return t.span }

// Root returns a cursor to the root node.
func (t *Octree[L, I]) Root() Node[L, I] {
	return Node[L, I]{n: &t.root, span: t.span}
}

// LeafAround returns the leaf whose span contains p.
// ok is false if p lies outside of the octree's span.
func (t *Octree[L, I]) LeafAround(p ms3.Vec) (leaf Node[L, I], ok bool) {
	if !Contains(t.span, p) {
		return Node[L, I]{}, false
	}
	nd := t.Root()
	for !nd.IsLeaf() {
		mid := midpoint(nd.span)
		idx := 0
		if p.X >= mid.X {
			idx |= 4
		}
		if p.Y >= mid.Y {
			idx |= 2
		}
		if p.Z >= mid.Z {
			idx |= 1
		}
		nd = nd.Child(idx)
	}
	return nd, true
}

// Walk visits every node in depth first pre-order starting at the root. If fn returns
// false the children of the visited node are not visited.
// The tree may be modified during Walk only through the visited node, i.e: calling
// [Node.Split] on the visited node causes its new children to be visited next.
func (t *Octree[L, I]) Walk(fn func(nd Node[L, I]) bool) {
	walk(t.Root(), fn)
}

func walk[L, I any](nd Node[L, I], fn func(Node[L, I]) bool) {
	if !fn(nd) || nd.IsLeaf() {
		return
	}
	for i := 0; i < 8; i++ {
		walk(nd.Child(i), fn)
	}
}

// Leaves calls fn for every leaf of the tree in octant order.
func (t *Octree[L, I]) Leaves(fn func(leaf Node[L, I])) {
	t.Walk(func(nd Node[L, I]) bool {
		if nd.IsLeaf() {
			fn(nd)
		}
		return true
	})
}

// Node is a cursor to a node inside an [Octree] which knows its span and depth.
// Nodes are invalidated by splitting any of their ancestors.
type Node[L, I any] struct {
	n     *node[L, I]
	span  ms3.Box
	depth int
}

// IsLeaf returns true if the node has not been split.
func (nd Node[L, I]) IsLeaf() bool { return nd.n.children == nil }

// Span returns the region of space the node covers.
func (nd Node[L, I]) Span() ms3.Box { return nd.span }

// Center returns the center of the node's span.
func (nd Node[L, I]) Center() ms3.Vec { return nd.span.Center() }

// Depth is the amount of splits between the root and the node. The root has depth 0.
func (nd Node[L, I]) Depth() int { return nd.depth }

// Leaf returns a pointer to the leaf data. It returns nil if the node is not a leaf.
func (nd Node[L, I]) Leaf() *L {
	if !nd.IsLeaf() {
		return nil
	}
	return &nd.n.leaf
}

// Inner returns a pointer to the inner node data. It returns nil if the node is a leaf.
func (nd Node[L, I]) Inner() *I {
	if nd.IsLeaf() {
		return nil
	}
	return &nd.n.inner
}

// Child returns the i'th octant of an inner node. It panics if nd is a leaf.
func (nd Node[L, I]) Child(i int) Node[L, I] {
	if nd.IsLeaf() {
		panic("octree: leaf has no children")
	}
	return Node[L, I]{
		n:     &nd.n.children[i],
		span:  ChildSpan(nd.span, i),
		depth: nd.depth + 1,
	}
}

// Children returns all eight octants of an inner node. It panics if nd is a leaf.
func (nd Node[L, I]) Children() (children [8]Node[L, I]) {
	for i := range children {
		children[i] = nd.Child(i)
	}
	return children
}

// Split turns the leaf into an inner node holding inner with eight empty leaf children.
// The leaf data held before the split is returned. Split panics if nd is not a leaf.
func (nd Node[L, I]) Split(inner I) (old L) {
	if !nd.IsLeaf() {
		panic("octree: split of inner node")
	}
	old = nd.n.leaf
	var zero L
	nd.n.leaf = zero
	nd.n.inner = inner
	nd.n.children = new([8]node[L, I])
	return old
}

// ChildSpan returns the span of the i'th octant of span. Lower octants
// end exactly where upper octants start so octants never overlap or leave gaps.
func ChildSpan(span ms3.Box, i int) ms3.Box {
	if i < 0 || i > 7 {
		panic("octree: octant index out of range")
	}
	mid := midpoint(span)
	child := ms3.Box{Min: span.Min, Max: mid}
	if i&4 != 0 {
		child.Min.X, child.Max.X = mid.X, span.Max.X
	}
	if i&2 != 0 {
		child.Min.Y, child.Max.Y = mid.Y, span.Max.Y
	}
	if i&1 != 0 {
		child.Min.Z, child.Max.Z = mid.Z, span.Max.Z
	}
	return child
}

// Contains reports whether p lies inside the half-open span [min, max).
func Contains(span ms3.Box, p ms3.Vec) bool {
	return span.Min.X <= p.X && span.Min.Y <= p.Y && span.Min.Z <= p.Z &&
		p.X < span.Max.X && p.Y < span.Max.Y && p.Z < span.Max.Z
}

func midpoint(span ms3.Box) ms3.Vec {
	return ms3.Add(span.Min, ms3.Scale(0.5, span.Size()))
}
