// Package sdfxshape exposes signed distance functions built with
// github.com/deadsy/sdfx as [cantucci.Shape]s so they can be meshed.
package sdfxshape

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/soypat/cantucci"
	"github.com/soypat/cantucci/glbuild"
	"github.com/soypat/geometry/ms3"
)

// Shape wraps an sdf.SDF3. sdfx distances are not guaranteed to be exact so
// only a lower bound is provided.
type Shape struct {
	s  sdf.SDF3
	bb ms3.Box
	id [8]byte
}

var _ cantucci.Shape = (*Shape)(nil)

// New wraps s. The bounding box is read once and assumed constant.
// id names the shape and must differ between shapes that mesh differently:
// the generated shader only approximates the shape by its bounds so id is
// what tells shapes apart in shader names and mesh cache keys.
func New(s sdf.SDF3, id string) (*Shape, error) {
	if s == nil {
		return nil, errors.New("nil sdfx shape")
	} else if id == "" {
		return nil, errors.New("empty sdfx shape id")
	}
	bb := s.BoundingBox()
	box := ms3.Box{Min: fromV3(bb.Min), Max: fromV3(bb.Max)}
	sz := box.Size()
	if !(sz.X > 0 && sz.Y > 0 && sz.Z > 0) {
		return nil, errors.New("sdfx shape has degenerate bounding box")
	}
	sum := sha256.Sum256([]byte(id))
	sh := &Shape{s: s, bb: box}
	copy(sh.id[:], sum[:])
	return sh, nil
}

// SDF3 returns the wrapped sdfx shape.
func (sh *Shape) SDF3() sdf.SDF3 { return sh.s }

func (sh *Shape) MinDistanceFrom(p ms3.Vec) float32 {
	return float32(sh.s.Evaluate(toV3(p)))
}

func (sh *Shape) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errors.New("position and distance buffer length mismatch")
	}
	for i, p := range pos {
		dist[i] = float32(sh.s.Evaluate(toV3(p)))
	}
	return nil
}

func (sh *Shape) MaxDistanceFrom(p ms3.Vec) (float32, bool) { return 0, false }

func (sh *Shape) Contains(p ms3.Vec) bool { return cantucci.ContainsDefault(sh, p) }

func (sh *Shape) Bounds() ms3.Box { return sh.bb }

func (sh *Shape) AppendShaderName(b []byte) []byte {
	b = append(b, "sdfx"...)
	b = hex.AppendEncode(b, sh.id[:])
	return glbuild.AppendFloats(b, 0, 'n', 'p', sh.bb.Min.X, sh.bb.Min.Y, sh.bb.Min.Z, sh.bb.Max.X, sh.bb.Max.Y, sh.bb.Max.Z)
}

// AppendShaderBody approximates the shape by its bounding box since sdfx
// shapes carry no GLSL source.
func (sh *Shape) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendVec3Decl(b, "c", sh.bb.Center())
	b = glbuild.AppendVec3Decl(b, "h", ms3.Scale(0.5, sh.bb.Size()))
	b = append(b, "vec3 q=abs(p-c)-h;\nreturn length(max(q,0.0))+min(max(q.x,max(q.y,q.z)),0.0);"...)
	return b
}

func toV3(p ms3.Vec) v3.Vec {
	return v3.Vec{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
}

func fromV3(v v3.Vec) ms3.Vec {
	return ms3.Vec{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}
