// Package glview builds renderable views of extracted meshes.
//
// [GPUBuilder] uploads meshes to OpenGL buffer objects and requires cgo.
// [MemoryBuilder] keeps meshes in memory and is used for headless rendering.
package glview

import (
	"errors"
	"sync/atomic"

	"github.com/soypat/cantucci/glrender"
	"github.com/soypat/cantucci/shapemesh"
	"github.com/soypat/geometry/ms3"
)

var (
	_ shapemesh.ViewBuilder = (*MemoryBuilder)(nil)
	_ shapemesh.View        = (*MemoryView)(nil)
)

var errReleased = errors.New("view already released")

// MemoryView holds a copy of a mesh in memory.
type MemoryView struct {
	buf      glrender.Buffer
	builder  *MemoryBuilder
	released bool
}

// Buffer returns the mesh held by the view. The returned buffer must not be modified.
// It returns an error if the view was released.
func (v *MemoryView) Buffer() (glrender.Buffer, error) {
	if v.released {
		return glrender.Buffer{}, errReleased
	}
	return v.buf, nil
}

// Release drops the view's mesh. Releasing twice panics.
func (v *MemoryView) Release() {
	if v.released {
		panic("memory view released twice")
	}
	v.released = true
	v.buf = glrender.Buffer{}
	if v.builder != nil {
		v.builder.live.Add(-1)
	}
}

// MemoryBuilder builds [MemoryView]s.
type MemoryBuilder struct {
	built atomic.Int64
	live  atomic.Int64
}

// BuildView implements [shapemesh.ViewBuilder]. Vertices and indices are copied.
func (mb *MemoryBuilder) BuildView(vertices []glrender.Vertex, indices []uint32) (shapemesh.View, error) {
	if len(indices)%3 != 0 {
		return nil, errors.New("index count not a multiple of 3")
	}
	for _, idx := range indices {
		if int(idx) >= len(vertices) {
			return nil, errors.New("index out of vertex range")
		}
	}
	mb.built.Add(1)
	mb.live.Add(1)
	v := &MemoryView{
		buf: glrender.Buffer{
			Vertices: append([]glrender.Vertex(nil), vertices...),
			Indices:  append([]uint32(nil), indices...),
		},
		builder: mb,
	}
	return v, nil
}

// Built returns the amount of views built.
func (mb *MemoryBuilder) Built() int { return int(mb.built.Load()) }

// Live returns the amount of views built and not yet released.
func (mb *MemoryBuilder) Live() int { return int(mb.live.Load()) }

// Merge concatenates the meshes of all views drawn by the index into a single buffer.
func Merge(ix *shapemesh.Index) (glrender.Buffer, error) {
	var merged glrender.Buffer
	var err error
	ix.ForEachView(func(view shapemesh.View, span ms3.Box) {
		if err != nil {
			return
		}
		mv, ok := view.(*MemoryView)
		if !ok {
			err = errors.New("merge requires memory views")
			return
		}
		buf, berr := mv.Buffer()
		if berr != nil {
			err = berr
			return
		}
		base := uint32(len(merged.Vertices))
		merged.Vertices = append(merged.Vertices, buf.Vertices...)
		for _, idx := range buf.Indices {
			merged.Indices = append(merged.Indices, base+idx)
		}
	})
	if err != nil {
		return glrender.Buffer{}, err
	}
	merged.Timings.NumVertices = len(merged.Vertices)
	merged.Timings.NumFaces = len(merged.Indices) / 3
	return merged, nil
}
