//go:build !tinygo && cgo

package glview

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/cantucci/glrender"
	"github.com/soypat/cantucci/shapemesh"
	"github.com/soypat/glgl/v4.6-core/glgl"
)

// Vertex attribute locations of GPU views. Shaders drawing them should declare:
//
//	layout(location = 0) in vec3 aPos;
//	layout(location = 1) in vec3 aNormal;
//	layout(location = 2) in float aDist;
const (
	AttribPosition = 0
	AttribNormal   = 1
	AttribDistance = 2
)

var (
	_ shapemesh.ViewBuilder = (*GPUBuilder)(nil)
	_ shapemesh.View        = (*GPUView)(nil)
)

// GPUView is a mesh uploaded to a vertex array object with its vertex and element buffers.
type GPUView struct {
	vao, vbo, ebo uint32
	count         int32
}

// GPUBuilder uploads meshes to the GPU. It must be used from the goroutine
// owning the current OpenGL context.
type GPUBuilder struct{}

// NewGPUBuilder returns a GPUBuilder. An OpenGL context must be current.
func NewGPUBuilder() (*GPUBuilder, error) {
	return &GPUBuilder{}, nil
}

// BuildView implements [shapemesh.ViewBuilder].
func (gb *GPUBuilder) BuildView(vertices []glrender.Vertex, indices []uint32) (shapemesh.View, error) {
	if len(indices)%3 != 0 {
		return nil, errors.New("index count not a multiple of 3")
	}
	v := &GPUView{count: int32(len(indices))}
	if len(indices) == 0 {
		// Nothing to draw, avoid allocating GPU objects.
		return v, nil
	}
	var p runtime.Pinner
	p.Pin(v)
	defer p.Unpin()
	gl.GenVertexArrays(1, &v.vao)
	gl.BindVertexArray(v.vao)
	defer gl.BindVertexArray(0)
	v.vbo = loadBuffer(gl.ARRAY_BUFFER, vertices, gl.STATIC_DRAW)
	v.ebo = loadBuffer(gl.ELEMENT_ARRAY_BUFFER, indices, gl.STATIC_DRAW)
	if v.vao == 0 || v.vbo == 0 || v.ebo == 0 {
		v.Release()
		return nil, glErrOrMessage("creating view buffers got zero id")
	}
	stride := int32(elemSize[glrender.Vertex]())
	gl.EnableVertexAttribArray(AttribPosition)
	gl.VertexAttribPointerWithOffset(AttribPosition, 3, gl.FLOAT, false, stride, unsafe.Offsetof(glrender.Vertex{}.Position))
	gl.EnableVertexAttribArray(AttribNormal)
	gl.VertexAttribPointerWithOffset(AttribNormal, 3, gl.FLOAT, false, stride, unsafe.Offsetof(glrender.Vertex{}.Normal))
	gl.EnableVertexAttribArray(AttribDistance)
	gl.VertexAttribPointerWithOffset(AttribDistance, 1, gl.FLOAT, false, stride, unsafe.Offsetof(glrender.Vertex{}.DistanceFromSurface))
	if err := glgl.Err(); err != nil {
		v.Release()
		return nil, fmt.Errorf("configuring view attributes: %w", err)
	}
	return v, nil
}

// Draw draws the view's triangles with the currently bound program.
func (v *GPUView) Draw() {
	if v.count == 0 || v.vao == 0 {
		return
	}
	gl.BindVertexArray(v.vao)
	gl.DrawElements(gl.TRIANGLES, v.count, gl.UNSIGNED_INT, nil)
	gl.BindVertexArray(0)
}

// Release deletes the view's GPU objects.
func (v *GPUView) Release() {
	var p runtime.Pinner
	p.Pin(v)
	defer p.Unpin()
	if v.ebo != 0 {
		gl.DeleteBuffers(1, &v.ebo)
	}
	if v.vbo != 0 {
		gl.DeleteBuffers(1, &v.vbo)
	}
	if v.vao != 0 {
		gl.DeleteVertexArrays(1, &v.vao)
	}
	*v = GPUView{}
}

func loadBuffer[T any](target uint32, slice []T, usage uint32) (id uint32) {
	var p runtime.Pinner
	p.Pin(&id)
	gl.GenBuffers(1, &id)
	p.Unpin()
	gl.BindBuffer(target, id)
	size := len(slice) * elemSize[T]()
	gl.BufferData(target, size, unsafe.Pointer(&slice[0]), usage)
	return id
}

func elemSize[T any]() int {
	var z T
	return int(unsafe.Sizeof(z))
}

func glErrOrMessage(defaultMsg string) (err error) {
	err = glgl.Err()
	if err == nil {
		err = errors.New(defaultMsg)
	} else {
		err = fmt.Errorf("%s: %w", defaultMsg, err)
	}
	return err
}
