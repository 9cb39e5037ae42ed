// Package shapemesh manages the meshes of a shape over a region of space.
// Space is partitioned by an octree whose leaves each own at most one mesh
// view. A [Coordinator] extracts meshes for leaves in the background and
// refines the partition around a point of interest.
package shapemesh

import (
	"errors"
	"fmt"

	"github.com/soypat/cantucci/octree"
	"github.com/soypat/geometry/ms3"
)

// ErrNotRequested is returned when installing a view in a leaf that
// was not waiting for one.
var ErrNotRequested = errors.New("leaf not requested")

// View is a renderable mesh owned by the index. Release frees its resources.
type View interface {
	Release()
}

// State is the mesh status of a leaf.
type State uint8

const (
	// Empty leaves have no mesh and no pending request. It is the zero value.
	Empty State = iota
	// Requested leaves wait for a mesh. They may still hold the previous view.
	Requested
	// Ready leaves hold an up to date view.
	Ready
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Requested:
		return "requested"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

type leafStatus struct {
	state State
	// view is the current view when Ready and the replaced view when Requested.
	view View
}

type innerData struct {
	// stale is the view of the leaf before splitting. Drawn in place of
	// the subtree until every leaf below is Ready.
	stale View
}

// Index is an octree of leaf mesh statuses. Index is not safe for concurrent use.
type Index struct {
	tree *octree.Octree[leafStatus, innerData]
}

// Leaf is a cursor to a leaf of an [Index]. Leaves are invalidated by
// splitting them or by [Index.Release].
type Leaf struct {
	nd octree.Node[leafStatus, innerData]
}

// State returns the mesh status of the leaf.
func (l Leaf) State() State { return l.nd.Leaf().state }

// View returns the view held by the leaf. For Requested leaves it is the old
// view, which may be nil.
func (l Leaf) View() View { return l.nd.Leaf().view }

func (l Leaf) Span() ms3.Box   { return l.nd.Span() }
func (l Leaf) Center() ms3.Vec { return l.nd.Center() }
func (l Leaf) Depth() int      { return l.nd.Depth() }

// NewIndex returns an index consisting of a single Empty leaf covering span.
func NewIndex(span ms3.Box) *Index {
	return &Index{tree: octree.New[leafStatus, innerData](span)}
}

// Span returns the region of space covered by the index.
func (ix *Index) Span() ms3.Box { return ix.tree.Span() }

// LeafAround returns the leaf containing p. Spans are half-open so a point on
// a face shared by two leaves belongs to the upper one.
func (ix *Index) LeafAround(p ms3.Vec) (Leaf, bool) {
	nd, ok := ix.tree.LeafAround(p)
	return Leaf{nd: nd}, ok
}

// Request marks the leaf as waiting for a mesh. An Empty leaf becomes Requested
// without a view, a Ready leaf keeps its view as the old view until replaced.
// Request panics if the leaf is already Requested.
func (ix *Index) Request(l Leaf) {
	st := l.nd.Leaf()
	if st.state == Requested {
		panic("leaf already requested")
	}
	st.state = Requested
}

// Install sets the view of the Requested leaf containing center and marks it Ready.
// The leaf's old view, if any, is released. If no leaf contains center or the
// leaf is not Requested an error is returned and view is not taken by the index.
func (ix *Index) Install(center ms3.Vec, view View) error {
	path, ok := ix.pathTo(center)
	if !ok {
		return fmt.Errorf("install at %v: point outside of index span", center)
	}
	st := path[len(path)-1].Leaf()
	if st.state != Requested {
		return fmt.Errorf("install at %v in %s leaf: %w", center, st.state, ErrNotRequested)
	}
	if st.view != nil {
		st.view.Release()
	}
	st.state = Ready
	st.view = view

	// Ancestors whose subtree just became complete no longer need their stale view.
	for i := len(path) - 2; i >= 0; i-- {
		inner := path[i].Inner()
		if inner.stale == nil {
			continue
		}
		if !complete(path[i]) {
			break
		}
		inner.stale.Release()
		inner.stale = nil
	}
	return nil
}

// pathTo returns the nodes from the root down to the leaf containing p.
func (ix *Index) pathTo(p ms3.Vec) (path []octree.Node[leafStatus, innerData], ok bool) {
	nd := ix.tree.Root()
	if !octree.Contains(nd.Span(), p) {
		return nil, false
	}
	path = append(path, nd)
	for !nd.IsLeaf() {
		found := false
		for _, child := range nd.Children() {
			if octree.Contains(child.Span(), p) {
				nd = child
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
		path = append(path, nd)
	}
	return path, true
}

// complete reports whether every leaf below nd is Ready.
func complete(nd octree.Node[leafStatus, innerData]) bool {
	if nd.IsLeaf() {
		return nd.Leaf().state == Ready
	}
	for _, child := range nd.Children() {
		if !complete(child) {
			return false
		}
	}
	return true
}

// EmptyLeaves returns all leaves without a mesh or pending request.
func (ix *Index) EmptyLeaves() []Leaf {
	return ix.leavesIn(Empty)
}

// ReadyLeaves returns all leaves holding an up to date view.
func (ix *Index) ReadyLeaves() []Leaf {
	return ix.leavesIn(Ready)
}

func (ix *Index) leavesIn(state State) []Leaf {
	var leaves []Leaf
	ix.tree.Leaves(func(nd octree.Node[leafStatus, innerData]) {
		if nd.Leaf().state == state {
			leaves = append(leaves, Leaf{nd: nd})
		}
	})
	return leaves
}

// Count returns the number of leaves in each state.
func (ix *Index) Count() (empty, requested, ready int) {
	ix.tree.Leaves(func(nd octree.Node[leafStatus, innerData]) {
		switch nd.Leaf().state {
		case Empty:
			empty++
		case Requested:
			requested++
		case Ready:
			ready++
		}
	})
	return empty, requested, ready
}

// ForEachView calls fn for every view that should be drawn along with the span it covers.
// These are the views of Ready leaves, old views of Requested leaves and the stale view of
// split leaves whose children are not all Ready yet. Subtrees covered by a stale view are
// not visited so no region is drawn twice.
func (ix *Index) ForEachView(fn func(v View, span ms3.Box)) {
	ix.tree.Walk(func(nd octree.Node[leafStatus, innerData]) bool {
		if !nd.IsLeaf() {
			inner := nd.Inner()
			if inner.stale != nil {
				fn(inner.stale, nd.Span())
				return false
			}
			return true
		}
		if st := nd.Leaf(); st.view != nil {
			fn(st.view, nd.Span())
		}
		return false
	})
}

// Split subdivides a Ready leaf into eight Empty leaves. Its view is kept
// as the stale view of the new subtree. Split panics if the leaf is not Ready.
func (ix *Index) Split(l Leaf) {
	if l.State() != Ready {
		panic("split of leaf that is not ready")
	}
	view := l.View()
	l.nd.Split(innerData{stale: view})
}

// Release frees every view held by the index and resets it to a single Empty leaf.
// All outstanding leaves are invalidated.
func (ix *Index) Release() {
	ix.tree.Walk(func(nd octree.Node[leafStatus, innerData]) bool {
		if nd.IsLeaf() {
			if v := nd.Leaf().view; v != nil {
				v.Release()
			}
			return false
		}
		if v := nd.Inner().stale; v != nil {
			v.Release()
		}
		return true
	})
	ix.tree = octree.New[leafStatus, innerData](ix.tree.Span())
}
