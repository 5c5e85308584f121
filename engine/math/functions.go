package math

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// RotationRollPitchYaw rotates by roll around Z, then pitch around X, then
// yaw around Y.
func RotationRollPitchYaw(pitch, yaw, roll float32) mgl32.Mat4 {
	return mgl32.HomogRotate3DY(yaw).Mul4(mgl32.HomogRotate3DX(pitch)).Mul4(mgl32.HomogRotate3DZ(roll))
}

// Compose applies the transforms in order: the first argument is applied first.
func Compose(transforms ...mgl32.Mat4) mgl32.Mat4 {
	out := mgl32.Ident4()
	for _, t := range transforms {
		out = t.Mul4(out)
	}
	return out
}

// IntersectTriangle is a two-sided Moller-Trumbore test. It returns the hit
// distance and the barycentrics of v1 and v2.
func IntersectTriangle(r Ray, v0, v1, v2 Vec3, tMin, tMax float32) (t, u, v float32, ok bool) {
	const epsilon = 1e-8

	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	p := r.Direction.Cross(e2)
	det := e1.Dot(p)
	if det > -epsilon && det < epsilon {
		return 0, 0, 0, false
	}
	invDet := 1 / det

	s := r.Origin.Sub(v0)
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := s.Cross(e1)
	v = r.Direction.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t = e2.Dot(q) * invDet
	if t < tMin || t > tMax {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

// TriangleNormal returns the unit geometric normal of a counter-clockwise triangle.
func TriangleNormal(v0, v1, v2 Vec3) Vec3 {
	n := v1.Sub(v0).Cross(v2.Sub(v0))
	if n.Len() == 0 {
		return Vec3{0, 1, 0}
	}
	return n.Normalize()
}

func Reflect(d, n Vec3) Vec3 {
	return d.Sub(n.Mul(2 * d.Dot(n)))
}

func Sin(x float32) float32 {
	return float32(math.Sin(float64(x)))
}

func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// Frac returns the fractional part of x, always in [0, 1).
func Frac(x float32) float32 {
	return x - float32(math.Floor(float64(x)))
}

func Saturate(x float32) float32 {
	return Clamp(x, 0, 1)
}

func LerpVec3(a, b Vec3, t float32) Vec3 {
	return Vec3{Lerp(a[0], b[0], t), Lerp(a[1], b[1], t), Lerp(a[2], b[2], t)}
}
