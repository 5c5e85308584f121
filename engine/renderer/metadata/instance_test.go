package metadata

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/math"
)

func TestInstanceDescriptorLayout(t *testing.T) {
	d := InstanceDescriptor{
		Transform:             math.Identity3x4(),
		InstanceID:            0x123456,
		Mask:                  0xAB,
		HitGroupIndex:         7,
		Flags:                 InstanceFlagForceOpaque,
		AccelerationStructure: 0x1000,
	}
	d.Transform[3] = -1.5

	buf := make([]byte, InstanceDescriptorSize)
	d.Encode(buf)

	if buf[48] != 0x56 || buf[50] != 0x12 || buf[51] != 0xAB {
		t.Fatalf("expected packed id/mask bytes; got % x", buf[48:52])
	}
	if buf[55] != byte(InstanceFlagForceOpaque) {
		t.Fatalf("expected flags in the top byte; got %x", buf[55])
	}

	got := DecodeInstanceDescriptor(buf)
	if got != d {
		t.Fatalf("expected %+v; got %+v", d, got)
	}
}

func TestInstanceIDTruncatedTo24Bits(t *testing.T) {
	d := InstanceDescriptor{InstanceID: 0xFF000001, Mask: 1}
	buf := make([]byte, InstanceDescriptorSize)
	d.Encode(buf)
	if got := DecodeInstanceDescriptor(buf); got.InstanceID != 1 || got.Mask != 1 {
		t.Fatalf("expected id 1 mask 1; got id %d mask %d", got.InstanceID, got.Mask)
	}
}

func TestInstanceBufferBounds(t *testing.T) {
	b := &InstanceBuffer{Count: 2, Mapped: make([]byte, 2*InstanceDescriptorSize)}

	if err := b.WriteTransform(1, math.Identity3x4()); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteTransform(2, math.Identity3x4()); !errors.Is(err, ErrInstanceOutOfRange) {
		t.Fatalf("expected ErrInstanceOutOfRange; got %v", err)
	}

	released := 0
	b.Bind(b.ID, "instances", func() { released++ })
	b.Release()
	b.Release()
	if released != 1 {
		t.Fatalf("expected destroy to run once; ran %d times", released)
	}
	if _, err := b.Read(0); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased; got %v", err)
	}
}

func TestGeometryValidate(t *testing.T) {
	quad := []float32{0, 0, 0, 1, 0, 0, 0, 1, 0, 1, 1, 0, 0, 1, 0, 1, 0, 0}

	specs := []struct {
		desc  GeometryDesc
		valid bool
	}{
		{GeometryDesc{Name: "quad", Vertices: quad}, true},
		{GeometryDesc{Name: "empty"}, false},
		{GeometryDesc{Name: "partial", Vertices: quad[:17]}, false},
		{GeometryDesc{Name: "not-a-list", Vertices: quad[:12]}, false},
		{GeometryDesc{Name: "indexed", Vertices: quad[:9], Indices: []uint32{0, 1, 2}, IndexFormat: IndexFormatUint16}, true},
		{GeometryDesc{Name: "bad-count", Vertices: quad[:9], Indices: []uint32{0, 1}, IndexFormat: IndexFormatUint16}, false},
		{GeometryDesc{Name: "bad-index", Vertices: quad[:9], Indices: []uint32{0, 1, 3}, IndexFormat: IndexFormatUint32}, false},
		{GeometryDesc{Name: "no-format", Vertices: quad, Indices: []uint32{0, 1, 2}}, false},
	}

	for specIndex, spec := range specs {
		err := spec.desc.Validate()
		if spec.valid && err != nil {
			t.Fatalf("[spec %d] expected %s to be valid; got %v", specIndex, spec.desc.Name, err)
		}
		if !spec.valid && !errors.Is(err, ErrMalformedGeometry) {
			t.Fatalf("[spec %d] expected ErrMalformedGeometry for %s; got %v", specIndex, spec.desc.Name, err)
		}
	}
}

func TestShaderTableLayout(t *testing.T) {
	st := NewShaderTableLayout(0x10000)
	if st.Miss.Start != 0x10000+64 || st.HitGroup.Start != 0x10000+128 {
		t.Fatalf("expected 64 byte record stride; got miss %x hit %x", st.Miss.Start, st.HitGroup.Start)
	}
	if st.RayGen.Size != ShaderIdentifierSize || st.Size != 192 {
		t.Fatalf("unexpected sizes: raygen %d table %d", st.RayGen.Size, st.Size)
	}
}
