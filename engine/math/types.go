package math

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type Vec3 = mgl32.Vec3

// Mat3x4 is an affine transform stored as the top three rows of a
// column-vector 4x4 matrix, row-major. This is the layout acceleration
// structure instances expect.
type Mat3x4 [12]float32

func Identity3x4() Mat3x4 {
	return Mat3x4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
}

func Mat3x4FromMat4(m mgl32.Mat4) Mat3x4 {
	var out Mat3x4
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = m.At(r, c)
		}
	}
	return out
}

func (m Mat3x4) At(row, col int) float32 {
	return m[row*4+col]
}

func (m Mat3x4) Mat4() mgl32.Mat4 {
	var out mgl32.Mat4
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			out.Set(r, c, m[r*4+c])
		}
	}
	out.Set(3, 3, 1)
	return out
}

func (m Mat3x4) TransformPoint(p Vec3) Vec3 {
	return Vec3{
		m[0]*p[0] + m[1]*p[1] + m[2]*p[2] + m[3],
		m[4]*p[0] + m[5]*p[1] + m[6]*p[2] + m[7],
		m[8]*p[0] + m[9]*p[1] + m[10]*p[2] + m[11],
	}
}

func (m Mat3x4) TransformVector(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[4]*v[0] + m[5]*v[1] + m[6]*v[2],
		m[8]*v[0] + m[9]*v[1] + m[10]*v[2],
	}
}

// TransformNormal applies the inverse transpose. inv must be the inverse of the
// transform the normal is leaving.
func (inv Mat3x4) TransformNormal(n Vec3) Vec3 {
	return Vec3{
		inv[0]*n[0] + inv[4]*n[1] + inv[8]*n[2],
		inv[1]*n[0] + inv[5]*n[1] + inv[9]*n[2],
		inv[2]*n[0] + inv[6]*n[1] + inv[10]*n[2],
	}
}

// Inverse returns the inverse affine transform. ok is false for singular matrices.
func (m Mat3x4) Inverse() (Mat3x4, bool) {
	m4 := m.Mat4()
	if det := m4.Det(); det == 0 || math.IsNaN(float64(det)) {
		return Mat3x4{}, false
	}
	return Mat3x4FromMat4(m4.Inv()), true
}

func (m Mat3x4) ApproxEqual(other Mat3x4, eps float32) bool {
	for i := range m {
		if !mgl32.FloatEqualThreshold(m[i], other[i], eps) {
			return false
		}
	}
	return true
}

type Ray struct {
	Origin    Vec3
	Direction Vec3
}

func (r Ray) At(t float32) Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Transform moves the ray into the space described by m. The direction is
// not renormalized so hit distances stay comparable across spaces.
func (r Ray) Transform(m Mat3x4) Ray {
	return Ray{
		Origin:    m.TransformPoint(r.Origin),
		Direction: m.TransformVector(r.Direction),
	}
}

func (r Ray) InvDirection() Vec3 {
	return Vec3{1 / r.Direction[0], 1 / r.Direction[1], 1 / r.Direction[2]}
}

type AABB struct {
	Min Vec3
	Max Vec3
}

func EmptyAABB() AABB {
	return AABB{
		Min: Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

func (b AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

func (b AABB) Extend(p Vec3) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

func (b AABB) Union(o AABB) AABB {
	for i := 0; i < 3; i++ {
		b.Min[i] = min(b.Min[i], o.Min[i])
		b.Max[i] = max(b.Max[i], o.Max[i])
	}
	return b
}

func (b AABB) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b AABB) Extent() Vec3 {
	return b.Max.Sub(b.Min)
}

func (b AABB) SurfaceArea() float32 {
	if b.IsEmpty() {
		return 0
	}
	d := b.Extent()
	return 2 * (d[0]*d[1] + d[1]*d[2] + d[2]*d[0])
}

// LargestAxis returns the index of the longest side.
func (b AABB) LargestAxis() int {
	d := b.Extent()
	axis := 0
	if d[1] > d[axis] {
		axis = 1
	}
	if d[2] > d[axis] {
		axis = 2
	}
	return axis
}

// Transform returns the bounds of the eight transformed corners.
func (b AABB) Transform(m Mat3x4) AABB {
	out := EmptyAABB()
	if b.IsEmpty() {
		return out
	}
	for i := 0; i < 8; i++ {
		corner := Vec3{b.Min[0], b.Min[1], b.Min[2]}
		if i&1 != 0 {
			corner[0] = b.Max[0]
		}
		if i&2 != 0 {
			corner[1] = b.Max[1]
		}
		if i&4 != 0 {
			corner[2] = b.Max[2]
		}
		out = out.Extend(m.TransformPoint(corner))
	}
	return out
}

// IntersectRay runs a slab test and returns the entry distance.
func (b AABB) IntersectRay(origin, invDir Vec3, tMin, tMax float32) (float32, bool) {
	for axis := 0; axis < 3; axis++ {
		t0 := (b.Min[axis] - origin[axis]) * invDir[axis]
		t1 := (b.Max[axis] - origin[axis]) * invDir[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		// NaN from 0 * inf leaves the interval untouched
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMax < tMin {
			return 0, false
		}
	}
	return tMin, true
}
