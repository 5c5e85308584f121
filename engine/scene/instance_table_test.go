package scene

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func newBuffer(count uint32) *metadata.InstanceBuffer {
	return &metadata.InstanceBuffer{Count: count, Mapped: make([]byte, int(count)*metadata.InstanceDescriptorSize)}
}

func testScene() *Scene {
	return &Scene{
		Name: "test",
		Meshes: []*metadata.GeometryDesc{
			{Name: "tri", Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}},
		},
		Objects: []Object{
			{Name: "moving", Mesh: "tri", InstanceID: 0, Mask: 1, Animate: func(t float32) mgl32.Mat4 { return mgl32.Translate3D(t, 0, 0) }},
			{Name: "still", Mesh: "tri", InstanceID: 1, Mask: 1, Animate: Static(mgl32.Scale3D(2, 2, 2))},
		},
	}
}

func TestInstanceTableCountIsFixed(t *testing.T) {
	table, err := NewInstanceTable(newBuffer(2))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		index uint32
		err   error
	}{
		{0, nil},
		{1, nil},
		{2, metadata.ErrInstanceOutOfRange},
		{100, metadata.ErrInstanceOutOfRange},
	}
	for i, tt := range tests {
		d := metadata.InstanceDescriptor{InstanceID: tt.index, Mask: 1}
		err := table.Set(tt.index, &d)
		if tt.err == nil && err != nil || tt.err != nil && !errors.Is(err, tt.err) {
			t.Fatalf("[spec %d] expected %v; got %v", i, tt.err, err)
		}
		if err := table.SetAnimation(tt.index, nil); tt.err != nil && !errors.Is(err, tt.err) {
			t.Fatalf("[spec %d] expected %v from SetAnimation; got %v", i, tt.err, err)
		}
	}
	if table.Count() != 2 {
		t.Fatalf("expected count 2; got %d", table.Count())
	}
}

func TestUpdateTransformsKeepsOtherFields(t *testing.T) {
	s := testScene()
	if err := s.Validate(); err != nil {
		t.Fatal(err)
	}
	table, _ := NewInstanceTable(newBuffer(2))
	if err := table.Load(s, func(string) (uint64, error) { return 0x4000, nil }); err != nil {
		t.Fatal(err)
	}
	if err := table.UpdateTransforms(3); err != nil {
		t.Fatal(err)
	}

	d, err := table.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if d.Transform.At(0, 3) != 3 {
		t.Fatalf("expected translation 3; got %v", d.Transform)
	}
	if d.AccelerationStructure != 0x4000 || d.Mask != 1 || d.InstanceID != 0 {
		t.Fatalf("expected the non transform fields untouched; got %+v", d)
	}

	still, _ := table.Get(1)
	before := still.Transform
	if err := table.UpdateTransforms(7); err != nil {
		t.Fatal(err)
	}
	still, _ = table.Get(1)
	if still.Transform != before || !still.Transform.ApproxEqual(math.Mat3x4FromMat4(mgl32.Scale3D(2, 2, 2)), 0) {
		t.Fatalf("expected the static transform to stay put; got %v", still.Transform)
	}
	if table.Updates() != 2 {
		t.Fatalf("expected 2 updates; got %d", table.Updates())
	}
}

func TestSceneValidate(t *testing.T) {
	tests := []func(*Scene){
		func(s *Scene) { s.Objects = nil },
		func(s *Scene) { s.Objects[0].Mesh = "missing" },
		func(s *Scene) { s.Objects[1].Mask = 0 },
		func(s *Scene) { s.Meshes = append(s.Meshes, s.Meshes[0]) },
		func(s *Scene) { s.Objects[0].InstanceID = metadata.MaxInstanceField + 1 },
		func(s *Scene) { s.Objects[1].HitGroupIndex = 1 << 24 },
	}
	for i, mutate := range tests {
		s := testScene()
		mutate(s)
		if err := s.Validate(); !errors.Is(err, ErrInvalidScene) {
			t.Fatalf("[spec %d] expected ErrInvalidScene; got %v", i, err)
		}
	}

	s := testScene()
	s.Objects[0].InstanceID = metadata.MaxInstanceField
	if err := s.Validate(); err != nil {
		t.Fatalf("expected the largest 24 bit id to be accepted; got %v", err)
	}
	table, _ := NewInstanceTable(newBuffer(3))
	if err := table.Load(s, func(string) (uint64, error) { return 1, nil }); !errors.Is(err, ErrInvalidScene) {
		t.Fatalf("expected a count mismatch to be rejected; got %v", err)
	}
}
