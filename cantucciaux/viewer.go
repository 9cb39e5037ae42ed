package cantucciaux

import (
	"context"

	"github.com/soypat/cantucci"
	"github.com/soypat/cantucci/shapemesh"
)

type UIConfig struct {
	Width, Height int
	// Context cancels the UI loop when done. May be nil.
	Context context.Context
	// Resolution, MaxDepth, Workers and SplitFactor configure the mesh coordinator.
	// See [shapemesh.Config].
	Resolution  int
	MaxDepth    int
	Workers     int
	SplitFactor float32
	// Cache is an optional persistent mesh cache, such as a meshstore.Store.
	Cache shapemesh.MeshCache
}

// UI opens a window showing meshes of s, refined around the camera as it moves.
// Drag with the left mouse button to orbit and scroll to zoom.
// Requires cgo and an OpenGL 4.6 capable driver.
func UI(s cantucci.Shape, cfg UIConfig) error {
	if cfg.Width <= 0 {
		cfg.Width = 800
	}
	if cfg.Height <= 0 {
		cfg.Height = 600
	}
	return ui(s, cfg)
}
