package testbed

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
	"github.com/spaghettifunk/lumen/engine/renderer/soft"
)

var frameTimes = []float32{0, 1.0 / 60, 2.0 / 60}

func TestDemoSceneGeometry(t *testing.T) {
	s := DemoScene()
	if err := s.Validate(); err != nil {
		t.Fatalf("expected the demo scene to be valid; got %v", err)
	}

	specs := []struct {
		mesh      string
		vertices  uint32
		indices   int
		triangles uint32
		format    metadata.IndexFormat
	}{
		{"cube", 8, 36, 12, metadata.IndexFormatUint16},
		{"quad", 6, 0, 2, metadata.IndexFormatNone},
	}
	for specIndex, spec := range specs {
		i, ok := s.Mesh(spec.mesh)
		if !ok {
			t.Fatalf("[spec %d] expected mesh %s in the scene", specIndex, spec.mesh)
		}
		m := s.Meshes[i]
		if m.VertexCount() != spec.vertices || len(m.Indices) != spec.indices || m.TriangleCount() != spec.triangles {
			t.Fatalf("[spec %d] expected %d vertices, %d indices, %d triangles; got %d, %d, %d",
				specIndex, spec.vertices, spec.indices, spec.triangles, m.VertexCount(), len(m.Indices), m.TriangleCount())
		}
		if m.IndexFormat != spec.format {
			t.Fatalf("[spec %d] expected index format %d; got %d", specIndex, spec.format, m.IndexFormat)
		}
	}

	for i, o := range s.Objects {
		if o.InstanceID != uint32(i) || o.Mask != maskAll {
			t.Fatalf("expected object %d to have id %d and mask %d; got %d and %d", i, i, maskAll, o.InstanceID, o.Mask)
		}
	}
}

func TestDemoSceneAnimations(t *testing.T) {
	s := DemoScene()
	floor := math.Mat3x4FromMat4(math.Compose(mgl32.Scale3D(5, 5, 5), mgl32.Translate3D(0, 0, 2)))

	var lastCube math.Mat3x4
	for specIndex, tm := range frameTimes {
		cube := s.Objects[0].Transform(tm)
		mirror := s.Objects[1].Transform(tm)

		// rotation first, so the translation column is untouched
		for row, exp := range [3]float32{-1.5, 2, 2} {
			if got := cube.At(row, 3); got != exp {
				t.Fatalf("[spec %d] expected cube translation %v at row %d; got %v", specIndex, exp, row, got)
			}
			if got := mirror.At(row, 3); got != 2 {
				t.Fatalf("[spec %d] expected mirror translation 2 at row %d; got %v", specIndex, row, got)
			}
		}
		if specIndex > 0 && cube == lastCube {
			t.Fatalf("[spec %d] expected the cube to rotate between frames", specIndex)
		}
		lastCube = cube

		if got := s.Objects[2].Transform(tm); !got.ApproxEqual(floor, 1e-6) {
			t.Fatalf("[spec %d] expected a static floor %v; got %v", specIndex, floor, got)
		}
	}
}

func TestDemoSceneRendersHeadless(t *testing.T) {
	recorder := renderer.NewFrameRecorder("", 0)
	surface := platform.NewHeadless(64, 48, recorder)

	options := renderer.Options{
		FramesInFlight:    2,
		FenceTimeout:      5 * time.Second,
		WaitForCompletion: true,
		Pipeline:          metadata.DefaultPipelineConfig(),
		Backend: metadata.BackendConfig{
			ApplicationName: "testbed",
			FramesInFlight:  2,
			FenceTimeout:    5 * time.Second,
			Workers:         2,
			TileSize:        8,
			MemoryBudget:    64 << 20,
		},
	}
	r := renderer.New(soft.New(), options)
	library, err := shaders.SceneLibrary().Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Initialize(surface, DemoScene(), library); err != nil {
		t.Fatalf("expected renderer to initialize; got %v", err)
	}

	var firstFloor, lastCube metadata.InstanceDescriptor
	for specIndex, tm := range frameTimes {
		if err := r.Draw(tm); err != nil {
			t.Fatalf("[spec %d] expected frame at t=%v to render; got %v", specIndex, tm, err)
		}
		cube, err := r.Instances().Get(0)
		if err != nil {
			t.Fatal(err)
		}
		floor, err := r.Instances().Get(2)
		if err != nil {
			t.Fatal(err)
		}
		if specIndex == 0 {
			firstFloor = floor
		} else {
			if floor != firstFloor {
				t.Fatalf("[spec %d] expected the floor record to stay bit identical; got %v, first %v", specIndex, floor, firstFloor)
			}
			if cube.Transform == lastCube.Transform {
				t.Fatalf("[spec %d] expected the cube record to change after the update", specIndex)
			}
		}
		lastCube = cube
	}
	if got := r.TLAS().Handle().RefitCount; got != uint64(len(frameTimes)) {
		t.Fatalf("expected %d refits; got %d", len(frameTimes), got)
	}
	if got := r.Instances().Updates(); got != uint64(len(frameTimes)) {
		t.Fatalf("expected %d transform updates; got %d", len(frameTimes), got)
	}
	if err := r.Shutdown(); err != nil {
		t.Fatalf("expected a clean shutdown; got %v", err)
	}

	if got := recorder.Frames(); got != uint64(len(frameTimes)) {
		t.Fatalf("expected %d presented frames; got %d", len(frameTimes), got)
	}
	last := recorder.Last()
	sky := last.RGBAAt(0, 0)
	if sky.B <= sky.R {
		t.Fatalf("expected the top row to show the sky; got %v", sky)
	}
	floor := last.RGBAAt(32, 47)
	if floor.R != floor.G || floor.G != floor.B {
		t.Fatalf("expected the bottom row to show the gray floor; got %v", floor)
	}
}
