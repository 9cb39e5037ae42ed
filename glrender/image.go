package glrender

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/soypat/cantucci/gleval"
	"github.com/soypat/geometry/ms3"
)

type setImage = interface {
	image.Image
	Set(x, y int, c color.Color)
}

// ImageSliceRenderer renders planar cuts of 3D distance fields to images.
type ImageSliceRenderer struct {
	conv func(f float32) color.Color
	pos  []ms3.Vec
	dist []float32
}

// NewImageSliceRenderer instances a new [ImageSliceRenderer]. A nil float->color conversion
// function results in a simple black-white color scheme where black is the interior of the SDF (negative distance).
func NewImageSliceRenderer(evalBufferSize int, conversion func(float32) color.Color) (*ImageSliceRenderer, error) {
	if evalBufferSize <= 64 {
		return nil, errors.New("too small evaluation buffer size")
	}
	if conversion == nil {
		conversion = func(f float32) color.Color {
			switch {
			case math32.IsNaN(f) || math32.IsInf(f, 0):
				return color.RGBA{R: 255, A: 255}
			case f > 0:
				return color.White
			default:
				return color.Black
			}
		}
	}
	ir := &ImageSliceRenderer{
		conv: conversion,
		pos:  make([]ms3.Vec, evalBufferSize),
		dist: make([]float32, evalBufferSize),
	}
	return ir, nil
}

// RenderZ renders the plane z=const of sdf over the XY extent of the SDF's bounds.
// Image rows grow towards -Y so the image is not mirrored. It uses userData as an
// argument to all [gleval.SDF3.Evaluate] calls.
func (ir *ImageSliceRenderer) RenderZ(sdf gleval.SDF3, z float32, img setImage, userData any) error {
	imgBB := img.Bounds()
	dxi := imgBB.Dx()
	dyi := imgBB.Dy()
	if len(ir.dist) < dyi {
		return fmt.Errorf("require evaluation buffer (%d) to be at least of length of image rows (%d)", len(ir.dist), dyi)
	}
	bb := sdf.Bounds()
	sz := bb.Size()
	dx := sz.X / float32(dxi)
	dy := sz.Y / float32(dyi)
	// Offset to center pixels.
	xmin := bb.Min.X + dx/2
	ymax := bb.Max.Y - dy/2
	for i := 0; i < dxi; i++ {
		x := float32(i)*dx + xmin
		err := ir.renderColumn(sdf, i, x, ymax, -dy, z, imgBB, img, userData)
		if err != nil {
			return err
		}
	}
	return nil
}

func (ir *ImageSliceRenderer) renderColumn(sdf gleval.SDF3, col int, x, ystart, dy, z float32, imgBB image.Rectangle, img setImage, userData any) error {
	dyi := imgBB.Dy()
	for j := 0; j < dyi; j++ {
		ir.pos[j] = ms3.Vec{X: x, Y: float32(j)*dy + ystart, Z: z}
	}
	err := sdf.Evaluate(ir.pos[:dyi], ir.dist[:dyi], userData)
	if err != nil {
		return err
	}
	conv := ir.conv
	for j := 0; j < dyi; j++ {
		img.Set(col+imgBB.Min.X, j+imgBB.Min.Y, conv(ir.dist[j]))
	}
	return nil
}
