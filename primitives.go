package cantucci

import (
	"strconv"

	"github.com/chewxy/math32"
	"github.com/soypat/cantucci/glbuild"
	"github.com/soypat/geometry/ms3"
)

// mandelbulbExtent bounds the mandelbulb set for the powers and bailouts
// commonly used. Found by experimenting.
const mandelbulbExtent = 1.2

// Sphere is a solid ball. It provides exact distances, so upper and lower bounds coincide.
type Sphere struct {
	center ms3.Vec
	r      float32
}

var _ Shape = (*Sphere)(nil)

// NewSphere creates a sphere of radius r centered at center.
func (bld *Builder) NewSphere(center ms3.Vec, r float32) *Sphere {
	if r <= 0 || isBadFloat(r) {
		bld.shapeErrorf("zero, negative or non-finite sphere radius")
	}
	return &Sphere{center: center, r: r}
}

// Center returns the center of the sphere.
func (s *Sphere) Center() ms3.Vec { return s.center }

// Radius returns the radius of the sphere.
func (s *Sphere) Radius() float32 { return s.r }

func (s *Sphere) AppendShaderName(b []byte) []byte {
	b = append(b, "sphere"...)
	b = glbuild.AppendFloats(b, 0, 'n', 'p', s.center.X, s.center.Y, s.center.Z, s.r)
	return b
}

func (s *Sphere) AppendShaderBody(b []byte) []byte {
	b = append(b, "return length(p-"...)
	b = glbuild.AppendVec3(b, s.center)
	b = append(b, ")-"...)
	b = glbuild.AppendFloat(b, '-', '.', s.r)
	b = append(b, ';')
	return b
}

func (s *Sphere) Bounds() ms3.Box {
	off := ms3.Vec{X: s.r, Y: s.r, Z: s.r}
	return ms3.Box{
		Min: ms3.Sub(s.center, off),
		Max: ms3.Add(s.center, off),
	}
}

// Contains overrides the default implementation to avoid a square root.
func (s *Sphere) Contains(p ms3.Vec) bool {
	d := ms3.Sub(s.center, p)
	return ms3.Dot(d, d) <= s.r*s.r
}

func (s *Sphere) MaxDistanceFrom(p ms3.Vec) (float32, bool) {
	return s.MinDistanceFrom(p), true
}

func (s *Sphere) BoundedDistanceFrom(p ms3.Vec) (dmin, dmax float32, ok bool) {
	d := s.MinDistanceFrom(p)
	return d, d, true
}

// Mandelbulb is the 3D version of the classical mandelbrot set described by
// Daniel White and Paul Nylander. Only a lower bound of the distance is provided.
type Mandelbulb struct {
	power    int
	maxIters int
	bailout  float32
}

var _ Shape = (*Mandelbulb)(nil)

// NewMandelbulb creates a mandelbulb of integer power. maxIters is the maximum amount
// of triplex iterations per distance query and bailout the escape radius.
func (bld *Builder) NewMandelbulb(power, maxIters int, bailout float32) *Mandelbulb {
	if power < 2 {
		bld.shapeErrorf("mandelbulb power must be 2 or larger")
	}
	if maxIters < 1 {
		bld.shapeErrorf("mandelbulb requires at least one iteration")
	}
	if bailout <= 0 || isBadFloat(bailout) {
		bld.shapeErrorf("bad mandelbulb bailout")
	}
	return &Mandelbulb{power: power, maxIters: maxIters, bailout: bailout}
}

// NewClassicMandelbulb creates the classic power 8 mandelbulb.
func (bld *Builder) NewClassicMandelbulb(maxIters int, bailout float32) *Mandelbulb {
	return bld.NewMandelbulb(8, maxIters, bailout)
}

func (m *Mandelbulb) Power() int { return m.power }

func (m *Mandelbulb) AppendShaderName(b []byte) []byte {
	b = append(b, "mandelbulb"...)
	b = strconv.AppendInt(b, int64(m.power), 10)
	b = append(b, 'i')
	b = strconv.AppendInt(b, int64(m.maxIters), 10)
	b = append(b, 'b')
	b = glbuild.AppendFloat(b, 'n', 'p', m.bailout)
	return b
}

func (m *Mandelbulb) AppendShaderBody(b []byte) []byte {
	b = glbuild.AppendFloatDecl(b, "P", float32(m.power))
	b = glbuild.AppendFloatDecl(b, "bailout", m.bailout)
	b = append(b, `vec3 z = p;
float dr = 1.0;
float r = 0.0;
for (int i = 0; i < `...)
	b = strconv.AppendInt(b, int64(m.maxIters), 10)
	b = append(b, `; i++) {
	r = length(z);
	if (r > bailout) break;
	float theta = acos(z.z/r)*P;
	float phi = atan(z.y, z.x)*P;
	dr = pow(r, P-1.0)*P*dr + 1.0;
	z = pow(r, P)*vec3(sin(theta)*cos(phi), sin(phi)*sin(theta), cos(theta)) + p;
}
return 0.5*log(r)*r/dr;`...)
	return b
}

func (m *Mandelbulb) Bounds() ms3.Box {
	return ms3.Box{
		Min: ms3.Vec{X: -mandelbulbExtent, Y: -mandelbulbExtent, Z: -mandelbulbExtent},
		Max: ms3.Vec{X: mandelbulbExtent, Y: mandelbulbExtent, Z: mandelbulbExtent},
	}
}

func (m *Mandelbulb) Contains(p ms3.Vec) bool {
	return ContainsDefault(m, p)
}

func (m *Mandelbulb) MaxDistanceFrom(p ms3.Vec) (float32, bool) {
	return 0, false
}

// MinDistanceFrom evaluates the mandelbulb distance estimator 0.5*ln(r)*r/dr.
func (m *Mandelbulb) MinDistanceFrom(p ms3.Vec) float32 {
	P := float32(m.power)
	z := p
	var dr float32 = 1
	var r float32
	for i := 0; i < m.maxIters; i++ {
		r = ms3.Norm(z)
		if r > m.bailout {
			break
		}
		dr = math32.Pow(r, P-1)*P*dr + 1
		z = ms3.Add(m.rotate(z, r), p)
	}
	if r == 0 {
		// Orbit collapsed onto the origin, deep inside the set.
		return math32.Copysign(0, -1)
	}
	return 0.5 * math32.Log(r) * r / dr
}

// rotate raises z to the power of the mandelbulb as a triplex number, which
// is the 3D analogue of squaring in the 2D mandelbrot iteration.
// r is the norm of z.
func (m *Mandelbulb) rotate(z ms3.Vec, r float32) ms3.Vec {
	switch {
	case r == 0:
		return ms3.Vec{}
	case z.X == 0 && z.Y == 0:
		return rotateOnZAxis(z, r, m.power)
	case m.power == 8 && r > rotate8MinNorm && z.X*z.X+z.Y*z.Y > rotate8MinAxisDist2*r*r:
		return rotate8(z)
	}
	return rotateGeneric(z, r, m.power)
}

// Below these bounds rotate8 divides by a denormal power of the distance to
// the z axis and returns NaN. rotateGeneric is stable there.
const (
	rotate8MinNorm      = 1e-4
	rotate8MinAxisDist2 = 1e-8 // Squared axis distance relative to r².
)

// rotateOnZAxis handles points where the azimuth is undefined.
func rotateOnZAxis(z ms3.Vec, r float32, power int) ms3.Vec {
	theta := math32.Acos(z.Z/r) * float32(power)
	return ms3.Vec{Z: math32.Pow(r, float32(power)) * math32.Cos(theta)}
}

func rotateGeneric(z ms3.Vec, r float32, power int) ms3.Vec {
	P := float32(power)
	theta := math32.Acos(z.Z/r) * P
	phi := math32.Atan2(z.Y, z.X) * P
	sinTheta, cosTheta := math32.Sincos(theta)
	sinPhi, cosPhi := math32.Sincos(phi)
	return ms3.Scale(math32.Pow(r, P), ms3.Vec{
		X: sinTheta * cosPhi,
		Y: sinPhi * sinTheta,
		Z: cosTheta,
	})
}

// rotate8 is rotateGeneric for power 8 without trigonometric functions.
// With rho the distance to the z axis, (x+iy)^8 gives the azimuthal rotation and
// (z+i*rho)^8 the polar rotation. z must be away from the z axis and the origin,
// see rotate8MinAxisDist2.
func rotate8(z ms3.Vec) ms3.Vec {
	x, y, zz := z.X, z.Y, z.Z
	x2, y2, z2 := x*x, y*y, zz*zz
	x4, y4, z4 := x2*x2, y2*y2, z2*z2
	x6, y6, z6 := x4*x2, y4*y2, z4*z2
	rho2 := x2 + y2
	rho4 := rho2 * rho2
	rho6 := rho4 * rho2
	rho := math32.Sqrt(rho2)

	reXY := x4*x4 - 28*x6*y2 + 70*x4*y4 - 28*x2*y6 + y4*y4
	imXY := 8 * x * y * (x6 - 7*x4*y2 + 7*x2*y4 - y6)
	reZR := z4*z4 - 28*z6*rho2 + 70*z4*rho4 - 28*z2*rho6 + rho4*rho4
	// Im((z+i*rho)^8) / rho^8.
	k := 8 * zz * (z6 - 7*z4*rho2 + 7*z2*rho4 - rho6) / (rho6 * rho)
	return ms3.Vec{
		X: k * reXY,
		Y: k * imXY,
		Z: reZR,
	}
}
