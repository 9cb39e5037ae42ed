package cantucciaux

import (
	math "github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/math/ms1"
)

// minTheta keeps the orbit camera away from the poles where the view direction is parallel to up.
const minTheta = 0.05

// OrbitCamera orbits a target point at a distance. Theta is the polar angle
// measured from +Z and Phi the azimuth around Z, both in radians.
type OrbitCamera struct {
	Target      mgl32.Vec3
	Distance    float32
	Theta, Phi  float32
	MinDistance float32
	MaxDistance float32
	// FovY is the vertical field of view in radians.
	FovY float32
}

// NewOrbitCamera returns a camera looking at the center of bb along +X from
// a distance of the box diagonal. It may zoom in to a hundred-thousandth of that distance.
func NewOrbitCamera(bb ms3.Box) OrbitCamera {
	diag := ms3.Norm(bb.Size())
	c := bb.Center()
	return OrbitCamera{
		Target:      mgl32.Vec3{c.X, c.Y, c.Z},
		Distance:    diag,
		Theta:       math.Pi / 2,
		MinDistance: diag * 1e-5,
		MaxDistance: diag * 10,
		FovY:        1,
	}
}

// Direction returns the unit vector from the camera towards its target.
func (c *OrbitCamera) Direction() mgl32.Vec3 {
	st, ct := math.Sin(c.Theta), math.Cos(c.Theta)
	sp, cp := math.Sin(c.Phi), math.Cos(c.Phi)
	return mgl32.Vec3{st * cp, st * sp, ct}
}

// Position returns the camera's eye position.
func (c *OrbitCamera) Position() mgl32.Vec3 {
	return c.Target.Sub(c.Direction().Mul(c.Distance))
}

// Focus returns the eye position as a [ms3.Vec], used to drive mesh refinement.
func (c *OrbitCamera) Focus() ms3.Vec {
	p := c.Position()
	return ms3.Vec{X: p[0], Y: p[1], Z: p[2]}
}

// Rotate turns the camera around its target. Theta is clamped so the camera never reaches the poles.
func (c *OrbitCamera) Rotate(dtheta, dphi float32) {
	c.Theta = ms1.Clamp(c.Theta+dtheta, minTheta, math.Pi-minTheta)
	c.Phi = math.Mod(c.Phi+dphi, 2*math.Pi)
}

// Zoom moves the camera towards its target for positive steps. Each step
// changes the distance by a constant factor so zooming is equally fast at any scale.
func (c *OrbitCamera) Zoom(steps float32) {
	c.Distance = ms1.Clamp(c.Distance*math.Pow(2, -steps/4), c.MinDistance, c.MaxDistance)
}

// View returns the world to eye space transform.
func (c *OrbitCamera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position(), c.Target, mgl32.Vec3{0, 0, 1})
}

// Projection returns the perspective projection for the given aspect ratio.
// Clip planes scale with the distance to the target.
func (c *OrbitCamera) Projection(aspect float32) mgl32.Mat4 {
	near := c.Distance * 1e-3
	far := c.Distance + 2*c.MaxDistance
	return mgl32.Perspective(c.FovY, aspect, near, far)
}
