package math

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestMat3x4RoundTrip(t *testing.T) {
	m4 := Compose(RotationRollPitchYaw(0.5, 0.25, 0.1), mgl32.Translate3D(1, 2, 3))
	m := Mat3x4FromMat4(m4)

	if got := m.At(0, 3); got != 1 {
		t.Fatalf("expected translation x in row 0 col 3 to be 1; got %f", got)
	}
	if got := m.At(2, 3); got != 3 {
		t.Fatalf("expected translation z in row 2 col 3 to be 3; got %f", got)
	}

	p := Vec3{0.3, -1, 4}
	exp := m4.Mul4x1(p.Vec4(1)).Vec3()
	if got := m.TransformPoint(p); !got.ApproxEqualThreshold(exp, 1e-5) {
		t.Fatalf("expected %v; got %v", exp, got)
	}
}

func TestMat3x4Inverse(t *testing.T) {
	m := Mat3x4FromMat4(Compose(mgl32.Scale3D(5, 5, 5), mgl32.Translate3D(0, 0, 2)))
	inv, ok := m.Inverse()
	if !ok {
		t.Fatal("expected matrix to be invertible")
	}
	p := Vec3{1, 2, 3}
	if got := inv.TransformPoint(m.TransformPoint(p)); !got.ApproxEqualThreshold(p, 1e-5) {
		t.Fatalf("expected %v; got %v", p, got)
	}

	if _, ok := (Mat3x4{}).Inverse(); ok {
		t.Fatal("expected zero matrix to be singular")
	}
}

func TestAABBRay(t *testing.T) {
	box := EmptyAABB().Extend(Vec3{-1, -1, -1}).Extend(Vec3{1, 1, 1})

	specs := []struct {
		ray   Ray
		hit   bool
		tNear float32
	}{
		{Ray{Vec3{0, 0, -5}, Vec3{0, 0, 1}}, true, 4},
		{Ray{Vec3{0, 0, -5}, Vec3{0, 0, -1}}, false, 0},
		{Ray{Vec3{3, 0, -5}, Vec3{0, 0, 1}}, false, 0},
		{Ray{Vec3{0, 0, 0}, Vec3{1, 0, 0}}, true, 0},
	}

	for specIndex, spec := range specs {
		tNear, hit := box.IntersectRay(spec.ray.Origin, spec.ray.InvDirection(), 0, math.MaxFloat32)
		if hit != spec.hit {
			t.Fatalf("[spec %d] expected hit %t; got %t", specIndex, spec.hit, hit)
		}
		if hit && tNear != spec.tNear {
			t.Fatalf("[spec %d] expected tNear %f; got %f", specIndex, spec.tNear, tNear)
		}
	}
}

func TestAABBTransform(t *testing.T) {
	box := AABB{Min: Vec3{-1, -1, -1}, Max: Vec3{1, 1, 1}}
	m := Mat3x4FromMat4(Compose(mgl32.Scale3D(2, 2, 2), mgl32.Translate3D(10, 0, 0)))
	got := box.Transform(m)
	exp := AABB{Min: Vec3{8, -2, -2}, Max: Vec3{12, 2, 2}}
	if !got.Min.ApproxEqualThreshold(exp.Min, 1e-6) || !got.Max.ApproxEqualThreshold(exp.Max, 1e-6) {
		t.Fatalf("expected %v; got %v", exp, got)
	}
	if sa := got.SurfaceArea(); sa != 96 {
		t.Fatalf("expected surface area 96; got %f", sa)
	}
}

func TestIntersectTriangle(t *testing.T) {
	v0, v1, v2 := Vec3{-1, 0, -1}, Vec3{1, 0, -1}, Vec3{0, 0, 1}

	tHit, _, _, ok := IntersectTriangle(Ray{Vec3{0, 5, 0}, Vec3{0, -1, 0}}, v0, v1, v2, 0, 100)
	if !ok || tHit != 5 {
		t.Fatalf("expected hit at distance 5; got %f (hit %t)", tHit, ok)
	}
	if _, _, _, ok = IntersectTriangle(Ray{Vec3{0, 5, 0}, Vec3{0, -1, 0}}, v0, v1, v2, 0, 4); ok {
		t.Fatal("expected tMax to reject the hit")
	}
	if _, _, _, ok = IntersectTriangle(Ray{Vec3{5, 5, 0}, Vec3{0, -1, 0}}, v0, v1, v2, 0, 100); ok {
		t.Fatal("expected miss outside the triangle")
	}
}

func TestAlignUp(t *testing.T) {
	specs := []struct{ v, a, exp uint64 }{
		{0, 64, 0},
		{1, 64, 64},
		{64, 64, 64},
		{65, 256, 256},
		{32, 0, 32},
	}
	for specIndex, spec := range specs {
		if got := AlignUp(spec.v, spec.a); got != spec.exp {
			t.Fatalf("[spec %d] expected %d; got %d", specIndex, spec.exp, got)
		}
	}
}
