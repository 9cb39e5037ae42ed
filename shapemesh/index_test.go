package shapemesh

import (
	"errors"
	"testing"

	"github.com/soypat/geometry/ms3"
)

type testView struct {
	id       int
	released int
}

func (v *testView) Release() { v.released++ }

var testSpan = ms3.Box{Min: ms3.Vec{X: -2, Y: -2, Z: -2}, Max: ms3.Vec{X: 2, Y: 2, Z: 2}}

func collectViews(ix *Index) (views []View, spans []ms3.Box) {
	ix.ForEachView(func(v View, span ms3.Box) {
		views = append(views, v)
		spans = append(spans, span)
	})
	return views, spans
}

func TestIndexLeafLifecycle(t *testing.T) {
	ix := NewIndex(testSpan)
	empty := ix.EmptyLeaves()
	if len(empty) != 1 {
		t.Fatalf("new index has %d empty leaves, want 1", len(empty))
	}
	leaf := empty[0]
	if leaf.Span() != testSpan || leaf.Depth() != 0 {
		t.Fatalf("unexpected root leaf span %v depth %d", leaf.Span(), leaf.Depth())
	}
	ix.Request(leaf)
	if leaf.State() != Requested || leaf.View() != nil {
		t.Fatalf("after request: state %v view %v", leaf.State(), leaf.View())
	}
	if len(ix.EmptyLeaves()) != 0 {
		t.Fatal("requested leaf still reported empty")
	}

	v1 := &testView{id: 1}
	if err := ix.Install(leaf.Center(), v1); err != nil {
		t.Fatal(err)
	}
	if leaf.State() != Ready || leaf.View() != v1 {
		t.Fatalf("after install: state %v view %v", leaf.State(), leaf.View())
	}

	// Installing again without request fails and leaves the current view untouched.
	v2 := &testView{id: 2}
	err := ix.Install(leaf.Center(), v2)
	if !errors.Is(err, ErrNotRequested) {
		t.Fatalf("got error %v, want %v", err, ErrNotRequested)
	}
	if leaf.View() != v1 || v2.released != 0 {
		t.Fatal("failed install modified index or released view")
	}

	// Re-requesting a Ready leaf keeps the old view drawable until replaced.
	ix.Request(leaf)
	if leaf.State() != Requested || leaf.View() != v1 {
		t.Fatalf("re-request: state %v view %v", leaf.State(), leaf.View())
	}
	views, _ := collectViews(ix)
	if len(views) != 1 || views[0] != v1 {
		t.Fatalf("old view not drawn while requested: %v", views)
	}
	if err := ix.Install(leaf.Center(), v2); err != nil {
		t.Fatal(err)
	}
	if v1.released != 1 {
		t.Errorf("old view released %d times, want 1", v1.released)
	}
	if leaf.View() != v2 {
		t.Error("new view not installed")
	}

	ix.Release()
	if v2.released != 1 {
		t.Errorf("view released %d times on Release, want 1", v2.released)
	}
	if len(ix.EmptyLeaves()) != 1 {
		t.Error("released index should be a single empty leaf")
	}
}

func TestIndexSplitOutOfOrderCompletion(t *testing.T) {
	ix := NewIndex(testSpan)
	root := ix.EmptyLeaves()[0]
	ix.Request(root)
	rootView := &testView{id: -1}
	if err := ix.Install(root.Center(), rootView); err != nil {
		t.Fatal(err)
	}
	ix.Split(root)

	children := ix.EmptyLeaves()
	if len(children) != 8 {
		t.Fatalf("split produced %d empty leaves, want 8", len(children))
	}
	for _, ch := range children {
		if ch.Depth() != 1 {
			t.Errorf("child depth %d, want 1", ch.Depth())
		}
		ix.Request(ch)
	}
	views, spans := collectViews(ix)
	if len(views) != 1 || views[0] != rootView || spans[0] != testSpan {
		t.Fatalf("stale root view should cover the incomplete subtree, got %v", views)
	}

	// Complete children in reverse order.
	childViews := make([]*testView, 8)
	for i := 7; i >= 0; i-- {
		childViews[i] = &testView{id: i}
		if err := ix.Install(children[i].Center(), childViews[i]); err != nil {
			t.Fatal(err)
		}
		if i > 0 {
			views, _ = collectViews(ix)
			if len(views) != 1 || views[0] != rootView {
				t.Fatalf("with %d children pending want only stale view drawn, got %d views", i, len(views))
			}
			if rootView.released != 0 {
				t.Fatal("stale view released before subtree complete")
			}
		}
	}
	if rootView.released != 1 {
		t.Errorf("stale view released %d times, want 1", rootView.released)
	}
	views, spans = collectViews(ix)
	if len(views) != 8 {
		t.Fatalf("got %d views, want 8", len(views))
	}
	for i, v := range views {
		if v != childViews[i] || spans[i] != children[i].Span() {
			t.Errorf("view %d: got %v over %v", i, v, spans[i])
		}
	}
	empty, requested, ready := ix.Count()
	if empty != 0 || requested != 0 || ready != 8 {
		t.Errorf("Count() = %d, %d, %d, want 0, 0, 8", empty, requested, ready)
	}
}

func TestIndexNestedSplit(t *testing.T) {
	ix := NewIndex(testSpan)
	root := ix.EmptyLeaves()[0]
	ix.Request(root)
	ix.Install(root.Center(), &testView{})
	ix.Split(root)
	children := ix.EmptyLeaves()
	for _, ch := range children {
		ix.Request(ch)
	}
	// Only first child completes, then it is split as well.
	first := &testView{id: 0}
	ix.Install(children[0].Center(), first)
	ix.Split(children[0])
	if first.released != 0 {
		t.Fatal("split released view")
	}
	views, _ := collectViews(ix)
	if len(views) != 1 {
		t.Fatalf("root stale view should hide nested subtree, got %d views", len(views))
	}
	empty, requested, ready := ix.Count()
	if empty != 8 || requested != 7 || ready != 0 {
		t.Errorf("Count() = %d, %d, %d, want 8, 7, 0", empty, requested, ready)
	}
	ix.Release()
	if first.released != 1 {
		t.Errorf("nested stale view released %d times, want 1", first.released)
	}
}

func TestIndexLeafAroundHalfOpen(t *testing.T) {
	ix := NewIndex(testSpan)
	root := ix.EmptyLeaves()[0]
	ix.Request(root)
	ix.Install(root.Center(), &testView{})
	ix.Split(root)

	// Center of the root lies on faces shared by all octants and belongs to the upper one.
	leaf, ok := ix.LeafAround(ms3.Vec{})
	if !ok {
		t.Fatal("origin not found")
	}
	if leaf.Span().Min != (ms3.Vec{}) {
		t.Errorf("origin leaf span %v, want upper octant", leaf.Span())
	}
	if _, ok := ix.LeafAround(testSpan.Max); ok {
		t.Error("max corner should lie outside of half-open span")
	}
	if _, ok := ix.LeafAround(testSpan.Min); !ok {
		t.Error("min corner should lie inside span")
	}
	err := ix.Install(ms3.Vec{X: 10}, &testView{})
	if err == nil {
		t.Error("expected error installing outside of span")
	}
}

func TestIndexPreconditions(t *testing.T) {
	for name, fn := range map[string]func(ix *Index, leaf Leaf){
		"double request": func(ix *Index, leaf Leaf) {
			ix.Request(leaf)
			ix.Request(leaf)
		},
		"split empty": func(ix *Index, leaf Leaf) { ix.Split(leaf) },
		"split requested": func(ix *Index, leaf Leaf) {
			ix.Request(leaf)
			ix.Split(leaf)
		},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: expected panic", name)
				}
			}()
			ix := NewIndex(testSpan)
			fn(ix, ix.EmptyLeaves()[0])
		}()
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{Empty: "empty", Requested: "requested", Ready: "ready", 9: "State(9)"} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
