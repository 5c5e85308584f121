package soft

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
)

type testSurface struct {
	width, height uint32
	block         chan struct{}

	mu     sync.Mutex
	frames []*image.RGBA
}

func (s *testSurface) FramebufferSize() (uint32, uint32) {
	return s.width, s.height
}

func (s *testSurface) PresentImage(frame *image.RGBA) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
}

func (s *testSurface) presented() []*image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*image.RGBA(nil), s.frames...)
}

func newTestBackend(t *testing.T, surface *testSurface, zeroScratch bool) *Backend {
	t.Helper()
	b := New()
	err := b.Initialize(surface, &metadata.BackendConfig{
		ApplicationName:         "soft-test",
		FramesInFlight:          2,
		FenceTimeout:            5 * time.Second,
		Workers:                 2,
		TileSize:                8,
		MemoryBudget:            64 << 20,
		ReportZeroUpdateScratch: zeroScratch,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

type testScene struct {
	geometry  []*metadata.GeometryBuffer
	blas      []*metadata.AccelerationStructure
	instances *metadata.InstanceBuffer
	tlas      *metadata.AccelerationStructure
	pipeline  *metadata.Pipeline
	target    *metadata.RenderTarget
}

func (s *testScene) release() {
	for _, r := range []interface{ Release() }{s.target, s.pipeline, s.tlas, s.instances} {
		if r != nil {
			r.Release()
		}
	}
	for _, bl := range s.blas {
		bl.Release()
	}
	for _, g := range s.geometry {
		g.Release()
	}
}

func quadDesc() *metadata.GeometryDesc {
	return &metadata.GeometryDesc{
		Name:     "quad",
		Vertices: []float32{-1, 0, -1, -1, 0, 1, 1, 0, 1, -1, 0, -1, 1, 0, -1, 1, 0, 1},
		Opaque:   true,
	}
}

func cubeDesc() *metadata.GeometryDesc {
	return &metadata.GeometryDesc{
		Name:     "cube",
		Vertices: []float32{-1, -1, -1, 1, -1, -1, -1, 1, -1, 1, 1, -1, -1, -1, 1, 1, -1, 1, -1, 1, 1, 1, 1, 1},
		Indices: []uint32{
			4, 6, 0, 2, 0, 6, 0, 1, 4, 5, 4, 1,
			0, 2, 1, 3, 1, 2, 1, 3, 5, 7, 5, 3,
			2, 6, 3, 7, 3, 6, 4, 5, 6, 7, 6, 5,
		},
		IndexFormat: metadata.IndexFormatUint16,
		Opaque:      true,
	}
}

func transforms(t float32) []math.Mat3x4 {
	return []math.Mat3x4{
		math.Mat3x4FromMat4(math.Compose(math.RotationRollPitchYaw(t/2, t/3, t/5), mgl32.Translate3D(-1.5, 2, 2))),
		math.Mat3x4FromMat4(math.Compose(mgl32.HomogRotate3DX(-1.8), mgl32.HomogRotate3DY(math.Sin(t)/8+1), mgl32.Translate3D(2, 2, 2))),
		math.Mat3x4FromMat4(math.Compose(mgl32.Scale3D(5, 5, 5), mgl32.Translate3D(0, 0, 2))),
	}
}

func buildTestScene(t *testing.T, b *Backend, scratch uint64) *testScene {
	t.Helper()
	s := &testScene{}
	for _, desc := range []*metadata.GeometryDesc{cubeDesc(), quadDesc()} {
		g, err := b.CreateGeometry(desc)
		if err != nil {
			t.Fatal(err)
		}
		s.geometry = append(s.geometry, g)
		bl, err := b.BuildBLAS(g)
		if err != nil {
			t.Fatal(err)
		}
		s.blas = append(s.blas, bl)
	}

	var err error
	if s.instances, err = b.CreateInstanceBuffer(3); err != nil {
		t.Fatal(err)
	}
	for i, m := range transforms(0) {
		blas := s.blas[1]
		if i == 0 {
			blas = s.blas[0]
		}
		d := metadata.InstanceDescriptor{Transform: m, InstanceID: uint32(i), Mask: 1, AccelerationStructure: blas.Address}
		if err := s.instances.Write(uint32(i), &d); err != nil {
			t.Fatal(err)
		}
	}
	if s.tlas, err = b.BuildTLAS(s.instances, scratch); err != nil {
		t.Fatal(err)
	}

	lib, _ := shaders.SceneLibrary().Encode()
	if s.pipeline, err = b.CreatePipeline(lib, metadata.DefaultPipelineConfig()); err != nil {
		t.Fatal(err)
	}
	w, h := b.surface.FramebufferSize()
	if s.target, err = b.CreateRenderTarget(w, h); err != nil {
		t.Fatal(err)
	}
	return s
}

func renderFrame(b *Backend, frame *metadata.FrameSyncState, s *testScene) (uint64, error) {
	if err := b.BeginFrame(frame); err != nil {
		return 0, err
	}
	if err := b.RefitTLAS(frame, s.tlas, s.instances); err != nil {
		return 0, err
	}
	if err := b.Dispatch(frame, s.pipeline, s.target, s.tlas); err != nil {
		return 0, err
	}
	if err := b.CopyToSurface(frame, s.target); err != nil {
		return 0, err
	}
	value, err := b.Submit(frame)
	if err != nil {
		return 0, err
	}
	return value, b.Present(frame)
}

func TestRenderFrameAndShutdownClean(t *testing.T) {
	surface := &testSurface{width: 64, height: 36}
	b := newTestBackend(t, surface, false)
	s := buildTestScene(t, b, b.MinimumUpdateScratchSize())

	frame, err := b.CreateFrameSync(0)
	if err != nil {
		t.Fatal(err)
	}
	value, err := renderFrame(b, frame, s)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.WaitForFence(value, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := b.WaitIdle(); err != nil {
		t.Fatal(err)
	}

	frames := surface.presented()
	if len(frames) != 1 {
		t.Fatalf("expected 1 presented frame; got %d", len(frames))
	}
	colors := make(map[[4]uint8]struct{})
	pix := frames[0].Pix
	for i := 0; i < len(pix); i += 4 {
		if pix[i+3] != 255 {
			t.Fatalf("expected every pixel written; pixel %d has alpha %d", i/4, pix[i+3])
		}
		colors[[4]uint8{pix[i], pix[i+1], pix[i+2], pix[i+3]}] = struct{}{}
	}
	if len(colors) < 4 {
		t.Fatalf("expected sky, floor and objects in the image; got %d distinct colors", len(colors))
	}
	if s.tlas.RefitCount != 1 {
		t.Fatalf("expected 1 refit; got %d", s.tlas.RefitCount)
	}

	s.release()
	if err := b.Shutdown(); err != nil {
		t.Fatalf("expected no live objects after shutdown; got %v", err)
	}
}

func TestAllocatorResetBeforeFenceCompletes(t *testing.T) {
	surface := &testSurface{width: 8, height: 8, block: make(chan struct{})}
	b := newTestBackend(t, surface, false)
	frame, err := b.CreateFrameSync(0)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.BeginFrame(frame); err != nil {
		t.Fatal(err)
	}
	// the queue stalls inside this present until the surface is unblocked
	if err := b.Present(frame); err != nil {
		t.Fatal(err)
	}
	value, err := b.Submit(frame)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.BeginFrame(frame); !errors.Is(err, ErrAllocatorInUse) {
		t.Fatalf("expected ErrAllocatorInUse; got %v", err)
	}
	if err := b.WaitForFence(value, 10*time.Millisecond); !errors.Is(err, core.ErrTimeout) {
		t.Fatalf("expected ErrTimeout; got %v", err)
	}

	close(surface.block)
	if err := b.WaitForFence(value, time.Second); err != nil {
		t.Fatal(err)
	}
	if err := b.BeginFrame(frame); err != nil {
		t.Fatalf("expected reset after the fence completed to succeed; got %v", err)
	}
	if _, err := b.Submit(frame); err != nil {
		t.Fatal(err)
	}
	if err := b.Shutdown(); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchWithoutBarrierLosesDevice(t *testing.T) {
	surface := &testSurface{width: 16, height: 16}
	b := newTestBackend(t, surface, false)
	s := buildTestScene(t, b, b.MinimumUpdateScratchSize())
	frame, _ := b.CreateFrameSync(0)

	if err := b.BeginFrame(frame); err != nil {
		t.Fatal(err)
	}
	res := s.tlas.InternalData.(*accelResources)
	fr := frame.InternalData.(*frameResources)
	fr.list.BuildRaytracingAccelerationStructure(&BuildDesc{
		Inputs:  topLevelInputs(s.instances, s.tlas.Flags|metadata.BuildFlagPerformUpdate),
		Dest:    res.result.Address,
		Source:  res.result.Address,
		Scratch: res.updateScratch.Address,
	})
	if err := b.Dispatch(frame, s.pipeline, s.target, s.tlas); err != nil {
		t.Fatal(err)
	}
	value, err := b.Submit(frame)
	if err != nil {
		t.Fatal(err)
	}
	err = b.WaitForFence(value, time.Second)
	if !errors.Is(err, ErrMissingBarrier) || !errors.Is(err, core.ErrDeviceLost) {
		t.Fatalf("expected a lost device caused by ErrMissingBarrier; got %v", err)
	}
	if _, err := b.Submit(frame); err == nil {
		t.Fatalf("expected submissions to fail once the device is lost")
	}

	s.release()
	if err := b.Shutdown(); err != nil {
		t.Fatal(err)
	}
}

func TestZeroReportedUpdateScratch(t *testing.T) {
	surface := &testSurface{width: 16, height: 16}
	b := newTestBackend(t, surface, true)

	instances, err := b.CreateInstanceBuffer(3)
	if err != nil {
		t.Fatal(err)
	}
	info, err := b.TLASPrebuildInfo(instances)
	if err != nil {
		t.Fatal(err)
	}
	if info.UpdateScratchDataSize != 0 {
		t.Fatalf("expected the quirk to report 0; got %d", info.UpdateScratchDataSize)
	}
	if _, err := b.BuildTLAS(instances, info.UpdateScratchDataSize); err == nil {
		t.Fatalf("expected a zero sized update scratch to be refused")
	}
	instances.Release()

	tests := []struct {
		scratch uint64
		ok      bool
	}{
		{scratch: max(info.UpdateScratchDataSize, b.MinimumUpdateScratchSize()), ok: true},
		{scratch: 4, ok: false},
	}
	for i, tt := range tests {
		s := buildTestScene(t, b, tt.scratch)
		frame, _ := b.CreateFrameSync(uint8(i))

		var err error
		for n := 0; n < 3 && err == nil; n++ {
			var value uint64
			if value, err = renderFrame(b, frame, s); err == nil {
				err = b.WaitForFence(value, time.Second)
			}
		}
		if tt.ok && err != nil {
			t.Fatalf("[spec %d] expected refits with scratch %d to succeed; got %v", i, tt.scratch, err)
		}
		if !tt.ok && !errors.Is(err, ErrScratchTooSmall) {
			t.Fatalf("[spec %d] expected ErrScratchTooSmall with scratch %d; got %v", i, tt.scratch, err)
		}
		s.release()
	}
	if err := b.Shutdown(); err != nil {
		t.Fatal(err)
	}
}

func TestPipelineValidation(t *testing.T) {
	b := newTestBackend(t, &testSurface{width: 4, height: 4}, false)
	defer func() {
		if err := b.Shutdown(); err != nil {
			t.Fatal(err)
		}
	}()

	full, _ := shaders.SceneLibrary().Encode()
	noMiss, _ := (&shaders.Library{Exports: []shaders.Export{
		{Kind: shaders.KindRayGeneration, Name: metadata.ExportRayGeneration},
		{Kind: shaders.KindClosestHit, Name: metadata.ExportClosestHit},
		{Kind: shaders.KindHitGroup, Name: metadata.ExportHitGroup, Import: metadata.ExportClosestHit},
	}}).Encode()

	deep := metadata.DefaultPipelineConfig()
	deep.MaxTraceRecursionDepth = metadata.MaxTraceRecursionLimit + 1
	tinyPayload := metadata.DefaultPipelineConfig()
	tinyPayload.MaxPayloadSize = 4

	tests := []struct {
		library []byte
		config  metadata.PipelineConfig
	}{
		{noMiss, metadata.DefaultPipelineConfig()},
		{full, deep},
		{full, tinyPayload},
		{[]byte("not a library"), metadata.DefaultPipelineConfig()},
	}
	for i, tt := range tests {
		if p, err := b.CreatePipeline(tt.library, tt.config); err == nil {
			p.Release()
			t.Fatalf("[spec %d] expected pipeline creation to fail", i)
		}
	}

	p, err := b.CreatePipeline(full, metadata.DefaultPipelineConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release()

	table := p.ShaderTable
	if table.RayGen.Start%metadata.ShaderTableAlignment != 0 || table.Miss.Start-table.RayGen.Start != 64 || table.HitGroup.Start-table.Miss.Start != 64 {
		t.Fatalf("expected 64 byte aligned records; got %+v", table)
	}
	_, raw, err := b.device.allocator.ResolveRange(table.Address, table.Size)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw[0:32]) == string(raw[64:96]) || string(raw[64:96]) == string(raw[128:160]) {
		t.Fatalf("expected distinct shader identifiers")
	}
}

func TestResizeSurfaceIsIdempotent(t *testing.T) {
	surface := &testSurface{width: 32, height: 32}
	b := newTestBackend(t, surface, false)
	for i := 0; i < 2; i++ {
		if err := b.WaitIdle(); err != nil {
			t.Fatal(err)
		}
		if err := b.ResizeSurface(20, 10); err != nil {
			t.Fatal(err)
		}
		if w, h := b.swapchain.Size(); w != 20 || h != 10 {
			t.Fatalf("[spec %d] expected 20x10 back buffers; got %dx%d", i, w, h)
		}
	}
	if n := len(b.device.LiveObjects()); n == 0 {
		t.Fatalf("expected swapchain objects to be alive")
	}
	if err := b.Shutdown(); err != nil {
		t.Fatal(err)
	}
}
