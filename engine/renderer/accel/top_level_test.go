package accel

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/math"
)

func quadBLAS(t *testing.T) *BottomLevel {
	t.Helper()
	blas, err := BuildBottomLevel([]math.Vec3{
		{-1, 0, -1}, {1, 0, -1}, {-1, 0, 1},
		{1, 0, -1}, {1, 0, 1}, {-1, 0, 1},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return blas
}

func translated(x, y, z float32) math.Mat3x4 {
	return math.Mat3x4FromMat4(mgl32.Translate3D(x, y, z))
}

func TestTopLevelRefitReflectsLatestTransforms(t *testing.T) {
	blas := quadBLAS(t)
	tl, err := BuildTopLevel([]Instance{
		{Transform: translated(0, 0, 0), InstanceID: 0, Mask: 1, BLAS: blas},
		{Transform: translated(50, 0, 0), InstanceID: 1, Mask: 1, BLAS: blas},
	}, true)
	if err != nil {
		t.Fatal(err)
	}

	down := math.Ray{Origin: math.Vec3{0, 5, 0}, Direction: math.Vec3{0, -1, 0}}
	heights := []float32{0, 2, -1, 3.5, 1, 4.25, -2, 0.5}

	for frame, y := range heights {
		err := tl.Refit([]Instance{
			{Transform: translated(0, y, 0), InstanceID: 0, Mask: 1, BLAS: blas},
			{Transform: translated(50, 0, 0), InstanceID: 1, Mask: 1, BLAS: blas},
		})
		if err != nil {
			t.Fatalf("[frame %d] unexpected refit error: %v", frame, err)
		}

		hit, ok := tl.Intersect(down, 0, 100, 0xFF, false)
		if !ok {
			t.Fatalf("[frame %d] expected a hit", frame)
		}
		if exp := 5 - y; !mgl32.FloatEqualThreshold(hit.T, exp, 1e-5) {
			t.Fatalf("[frame %d] expected distance %f; got %f", frame, exp, hit.T)
		}
		if hit.InstanceID != 0 {
			t.Fatalf("[frame %d] expected instance 0; got %d", frame, hit.InstanceID)
		}
	}

	if tl.RefitCount != uint64(len(heights)) {
		t.Fatalf("expected %d refits; got %d", len(heights), tl.RefitCount)
	}

	// Move instance 0 away: the old location must no longer report a hit.
	if err := tl.Refit([]Instance{
		{Transform: translated(-50, 0, 0), InstanceID: 0, Mask: 1, BLAS: blas},
		{Transform: translated(50, 0, 0), InstanceID: 1, Mask: 1, BLAS: blas},
	}); err != nil {
		t.Fatal(err)
	}
	if _, ok := tl.Intersect(down, 0, 100, 0xFF, false); ok {
		t.Fatal("expected no hit at the previous instance location")
	}
	moved := math.Ray{Origin: math.Vec3{-50, 5, 0}, Direction: math.Vec3{0, -1, 0}}
	if _, ok := tl.Intersect(moved, 0, 100, 0xFF, false); !ok {
		t.Fatal("expected a hit at the new instance location")
	}
}

func TestTopLevelRefitErrors(t *testing.T) {
	blas := quadBLAS(t)
	instances := []Instance{{Transform: translated(0, 0, 0), Mask: 1, BLAS: blas}}

	static, err := BuildTopLevel(instances, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := static.Refit(instances); !errors.Is(err, ErrNotUpdatable) {
		t.Fatalf("expected ErrNotUpdatable; got %v", err)
	}

	tl, err := BuildTopLevel(instances, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := tl.Refit(append(instances, instances[0])); !errors.Is(err, ErrInstanceCount) {
		t.Fatalf("expected ErrInstanceCount; got %v", err)
	}
	if err := tl.Refit([]Instance{{Mask: 1, BLAS: blas}}); !errors.Is(err, ErrSingularTransform) {
		t.Fatalf("expected ErrSingularTransform; got %v", err)
	}
	if _, err := BuildTopLevel([]Instance{{Transform: math.Identity3x4()}}, true); !errors.Is(err, ErrMissingBLAS) {
		t.Fatalf("expected ErrMissingBLAS; got %v", err)
	}
}

func TestTopLevelMask(t *testing.T) {
	blas := quadBLAS(t)
	tl, err := BuildTopLevel([]Instance{{Transform: translated(0, 0, 0), Mask: 0x2, BLAS: blas}}, true)
	if err != nil {
		t.Fatal(err)
	}
	down := math.Ray{Origin: math.Vec3{0, 5, 0}, Direction: math.Vec3{0, -1, 0}}
	if _, ok := tl.Intersect(down, 0, 100, 0x1, false); ok {
		t.Fatal("expected mask 0x1 to skip the instance")
	}
	hit, ok := tl.Intersect(down, 0, 100, 0x2, false)
	if !ok {
		t.Fatal("expected mask 0x2 to hit the instance")
	}
	if !hit.Normal.ApproxEqualThreshold(math.Vec3{0, 1, 0}, 1e-5) && !hit.Normal.ApproxEqualThreshold(math.Vec3{0, -1, 0}, 1e-5) {
		t.Fatalf("expected a vertical normal; got %v", hit.Normal)
	}
}
