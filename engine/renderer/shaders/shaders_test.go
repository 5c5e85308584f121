package shaders

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestSceneLibraryDecodes(t *testing.T) {
	blob, err := SceneLibrary().Encode()
	if err != nil {
		t.Fatal(err)
	}
	lib, err := DecodeLibrary(blob)
	if err != nil {
		t.Fatal(err)
	}
	hg, ok := lib.Find(metadata.ExportHitGroup)
	if !ok || hg.Kind != KindHitGroup || hg.Import != metadata.ExportClosestHit {
		t.Fatalf("expected hit group importing %s; got %+v", metadata.ExportClosestHit, hg)
	}
	if len(lib.Exports) != 4 {
		t.Fatalf("expected 4 exports; got %d", len(lib.Exports))
	}
}

func TestDecodeLibraryRejectsCorruption(t *testing.T) {
	blob, _ := SceneLibrary().Encode()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"magic", append([]byte("DXIL"), blob[4:]...)},
		{"checksum", func() []byte {
			b := append([]byte(nil), blob...)
			b[8] ^= 0xFF
			return b
		}()},
		{"truncated", blob[:len(blob)/2]},
	}
	for i, tt := range tests {
		if _, err := DecodeLibrary(tt.data); !errors.Is(err, ErrInvalidLibrary) {
			t.Fatalf("[spec %d] %s: expected ErrInvalidLibrary; got %v", i, tt.name, err)
		}
	}

	dup := &Library{Exports: []Export{{Kind: KindMiss, Name: "Miss"}, {Kind: KindMiss, Name: "Miss"}}}
	b, err := dup.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeLibrary(b); !errors.Is(err, ErrInvalidLibrary) {
		t.Fatalf("expected duplicate export to be rejected; got %v", err)
	}
}

func TestPayloadLayout(t *testing.T) {
	if PayloadSize != 20 {
		t.Fatalf("expected 20 byte payload; got %d", PayloadSize)
	}
	if AttributeSize != 8 {
		t.Fatalf("expected 8 byte attributes; got %d", AttributeSize)
	}
	cfg := metadata.DefaultPipelineConfig()
	if PayloadSize > cfg.MaxPayloadSize || AttributeSize > cfg.MaxAttributeSize {
		t.Fatalf("scene programs exceed the default pipeline limits")
	}
}

func TestRegisterValidates(t *testing.T) {
	if err := Register(&Program{Name: "broken", Kind: KindMiss}); err == nil {
		t.Fatalf("expected a miss program without body to be rejected")
	}
	if _, err := Lookup("broken"); !errors.Is(err, ErrUnknownProgram) {
		t.Fatalf("expected ErrUnknownProgram; got %v", err)
	}
	for _, name := range []string{metadata.ExportRayGeneration, metadata.ExportMiss, metadata.ExportClosestHit} {
		if _, err := Lookup(name); err != nil {
			t.Fatalf("expected scene program %s to be registered: %v", name, err)
		}
	}
}

type missContext struct {
	RayContext
	dir math.Vec3
}

func (c *missContext) WorldRayDirection() math.Vec3 { return c.dir }

func TestMissShadesSky(t *testing.T) {
	var up, down Payload
	if err := miss(&missContext{dir: math.Vec3{0, 1, 0}}, &up); err != nil {
		t.Fatal(err)
	}
	if err := miss(&missContext{dir: math.Vec3{0, -1, 0}}, &down); err != nil {
		t.Fatal(err)
	}
	if !up.Color.ApproxEqualThreshold(skyTop, 1e-6) || !down.Color.ApproxEqualThreshold(skyBottom, 1e-6) {
		t.Fatalf("expected sky gradient endpoints; got %v and %v", up.Color, down.Color)
	}
	if up.Missed != 1 {
		t.Fatalf("expected miss to flag the payload")
	}
}

func TestPrimaryRayCenter(t *testing.T) {
	r := PrimaryRay(50, 50, 100, 100)
	if r.Origin != cameraPosition {
		t.Fatalf("expected ray from the camera; got %v", r.Origin)
	}
	if r.Direction[0] != 0 || r.Direction[2] <= 0 {
		t.Fatalf("expected center ray to look down +z; got %v", r.Direction)
	}
}
