//go:build tinygo || !cgo

package glview

import (
	"errors"

	"github.com/soypat/cantucci/glrender"
	"github.com/soypat/cantucci/shapemesh"
)

// GPUView is unavailable without cgo.
type GPUView struct{}

func (v *GPUView) Draw()    {}
func (v *GPUView) Release() {}

// GPUBuilder is unavailable without cgo.
type GPUBuilder struct{}

// NewGPUBuilder returns an error when built without cgo.
func NewGPUBuilder() (*GPUBuilder, error) {
	return nil, errors.New("require cgo for GPU views")
}

func (gb *GPUBuilder) BuildView(vertices []glrender.Vertex, indices []uint32) (shapemesh.View, error) {
	return nil, errors.New("require cgo for GPU views")
}
