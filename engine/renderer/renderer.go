package renderer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/scene"
)

// Number of frame times kept for the rolling average.
const frameWindow = 120

type Options struct {
	FramesInFlight    uint8
	FenceTimeout      time.Duration
	WaitForCompletion bool
	MinUpdateScratch  uint64
	Pipeline          metadata.PipelineConfig
	Backend           metadata.BackendConfig
}

func OptionsFromConfig(cfg *config.Config) Options {
	timeout := time.Duration(cfg.Renderer.FenceTimeoutMS) * time.Millisecond
	return Options{
		FramesInFlight:    cfg.Renderer.FramesInFlight,
		FenceTimeout:      timeout,
		WaitForCompletion: cfg.Renderer.WaitForCompletion,
		MinUpdateScratch:  cfg.Renderer.MinUpdateScratch,
		Pipeline:          metadata.DefaultPipelineConfig(),
		Backend: metadata.BackendConfig{
			ApplicationName:         cfg.Application.Name,
			FramesInFlight:          cfg.Renderer.FramesInFlight,
			FenceTimeout:            timeout,
			Validation:              cfg.Vulkan.Validation,
			Workers:                 cfg.Soft.Workers,
			MemoryBudget:            cfg.Soft.MemoryBudgetMB << 20,
			TileSize:                cfg.Soft.TileSize,
			ReportZeroUpdateScratch: cfg.Soft.ReportZeroUpdateScratch,
			ShaderPath:              cfg.Vulkan.ShaderPath,
		},
	}
}

// FrameStats are the timings of the last frame plus a rolling average.
type FrameStats struct {
	Frames         uint64
	LastFenceValue uint64
	Wait           time.Duration
	Refit          time.Duration
	Record         time.Duration
	Present        time.Duration
	Frame          time.Duration
	Average        time.Duration
}

type Renderer struct {
	backend RayTracingBackend
	options Options
	surface metadata.Surface

	geometry       []*metadata.GeometryBuffer
	blas           map[string]*metadata.AccelerationStructure
	instanceBuffer *metadata.InstanceBuffer
	instances      *scene.InstanceTable
	tlas           *TLAS
	pipeline       *metadata.Pipeline
	target         *metadata.RenderTarget

	frames        []*metadata.FrameSyncState
	slot          int
	lastSubmitted uint64
	frameNumber   uint64

	stats      FrameStats
	frameTimes *containers.RingQueue[time.Duration]
}

func New(backend RayTracingBackend, options Options) *Renderer {
	if options.FramesInFlight == 0 {
		options.FramesInFlight = 2
	}
	return &Renderer{
		backend:    backend,
		options:    options,
		blas:       make(map[string]*metadata.AccelerationStructure),
		frameTimes: containers.NewRingQueue[time.Duration](frameWindow),
	}
}

// Initialize creates every device object in dependency order: geometry,
// bottom level structures, instances, the top level structure, the
// pipeline, the render target and the frame slots.
func (r *Renderer) Initialize(surface metadata.Surface, s *scene.Scene, library []byte) error {
	if err := s.Validate(); err != nil {
		return core.InitError(err, "scene %s", s.Name)
	}
	r.surface = surface
	if err := r.backend.Initialize(surface, &r.options.Backend); err != nil {
		return core.InitError(err, "initializing backend")
	}
	info := r.backend.Info()
	core.LogInfo("backend %s ready on %s", info.Backend, info.DeviceName)

	for _, desc := range s.Meshes {
		g, err := r.backend.CreateGeometry(desc)
		if err != nil {
			return core.InitError(err, "creating geometry %s", desc.Name)
		}
		r.geometry = append(r.geometry, g)

		start := hrtime.Now()
		blas, err := r.backend.BuildBLAS(g)
		if err != nil {
			return core.InitError(err, "building BLAS for %s", desc.Name)
		}
		r.blas[desc.Name] = blas
		core.LogDebug("BLAS for %s built: %d triangles in %s", desc.Name, blas.PrimitiveCount, hrtime.Since(start))
	}

	var err error
	if r.instanceBuffer, err = r.backend.CreateInstanceBuffer(uint32(len(s.Objects))); err != nil {
		return core.InitError(err, "creating instance buffer")
	}
	if r.instances, err = scene.NewInstanceTable(r.instanceBuffer); err != nil {
		return core.InitError(err, "creating instance table")
	}
	err = r.instances.Load(s, func(mesh string) (uint64, error) {
		b, ok := r.blas[mesh]
		if !ok {
			return 0, errors.Newf("no BLAS for mesh %q", mesh)
		}
		return b.Address, nil
	})
	if err != nil {
		return core.InitError(err, "filling instance table")
	}

	r.tlas = NewTLAS(r.backend, r.options.MinUpdateScratch)
	if err := r.tlas.Build(r.instanceBuffer); err != nil {
		return core.InitError(err, "building TLAS")
	}

	if r.pipeline, err = r.backend.CreatePipeline(library, r.options.Pipeline); err != nil {
		return core.InitError(err, "creating pipeline %s", r.options.Pipeline.Name)
	}

	width, height := surface.FramebufferSize()
	if r.target, err = r.backend.CreateRenderTarget(max(width, 1), max(height, 1)); err != nil {
		return core.InitError(err, "creating render target")
	}

	for slot := uint8(0); slot < r.options.FramesInFlight; slot++ {
		frame, err := r.backend.CreateFrameSync(slot)
		if err != nil {
			return core.InitError(err, "creating frame slot %d", slot)
		}
		r.frames = append(r.frames, frame)
	}
	core.LogInfo("renderer initialized: scene %s, %d instances, %d frames in flight", s.Name, r.instances.Count(), len(r.frames))
	return nil
}

// Draw renders and presents one frame with the scene animated to time t.
func (r *Renderer) Draw(t float32) error {
	if len(r.frames) == 0 || r.tlas == nil || r.tlas.State() != TLASBuilt {
		return core.FrameError(ErrNotInitialized, "draw")
	}
	start := hrtime.Now()
	frame := r.frames[r.slot]

	if err := r.backend.WaitForFence(frame.FenceValue, r.options.FenceTimeout); err != nil {
		return core.FrameError(err, "waiting for frame slot %d", frame.Slot)
	}
	frame.State = metadata.FrameStateIdle

	if err := r.backend.BeginFrame(frame); err != nil {
		return core.FrameError(err, "beginning frame %d", r.frameNumber)
	}
	frame.State = metadata.FrameStateRecording
	frame.FrameNumber = r.frameNumber

	// the instance buffer is read by every submitted frame, so all of them
	// have to retire before it is written
	if err := r.backend.WaitForFence(r.lastSubmitted, r.options.FenceTimeout); err != nil {
		return core.FrameError(err, "waiting for the last submission")
	}
	r.stats.Wait = hrtime.Since(start)

	refitStart := hrtime.Now()
	if err := r.instances.UpdateTransforms(t); err != nil {
		return core.FrameError(err, "updating instance transforms")
	}
	if err := r.tlas.Refit(frame, r.instanceBuffer); err != nil {
		return core.FrameError(err, "refitting TLAS")
	}
	r.stats.Refit = hrtime.Since(refitStart)

	recordStart := hrtime.Now()
	if err := r.backend.Dispatch(frame, r.pipeline, r.target, r.tlas.Handle()); err != nil {
		return core.FrameError(err, "recording dispatch")
	}
	if err := r.backend.CopyToSurface(frame, r.target); err != nil {
		return core.FrameError(err, "recording copy to surface")
	}
	value, err := r.backend.Submit(frame)
	if err != nil {
		return core.FrameError(err, "submitting frame %d", r.frameNumber)
	}
	frame.FenceValue = value
	frame.State = metadata.FrameStateSubmitted
	r.lastSubmitted = value
	r.stats.Record = hrtime.Since(recordStart)

	presentStart := hrtime.Now()
	if r.options.WaitForCompletion {
		if err := r.backend.WaitForFence(value, r.options.FenceTimeout); err != nil {
			return core.FrameError(err, "waiting for frame %d", r.frameNumber)
		}
	}
	if err := r.backend.Present(frame); err != nil {
		return core.FrameError(err, "presenting frame %d", r.frameNumber)
	}
	frame.State = metadata.FrameStatePresented
	r.stats.Present = hrtime.Since(presentStart)

	r.slot = (r.slot + 1) % len(r.frames)
	r.frameNumber++
	r.recordFrameTime(hrtime.Since(start))
	return nil
}

func (r *Renderer) recordFrameTime(d time.Duration) {
	r.frameTimes.Push(d)
	var total time.Duration
	r.frameTimes.Each(func(v time.Duration) { total += v })

	r.stats.Frame = d
	r.stats.Average = total / time.Duration(r.frameTimes.Len())
	r.stats.Frames = r.frameNumber
	r.stats.LastFenceValue = r.lastSubmitted
}

// Resize waits for the device to go idle, resizes the swap buffers and
// recreates the render target. Dimensions are clamped to at least 1.
func (r *Renderer) Resize(width, height uint32) error {
	width, height = max(width, 1), max(height, 1)
	if err := r.backend.WaitIdle(); err != nil {
		return core.FrameError(err, "waiting for idle before resize")
	}
	if err := r.backend.ResizeSurface(width, height); err != nil {
		return core.FrameError(err, "resizing surface to %dx%d", width, height)
	}
	if r.target != nil {
		r.target.Release()
	}
	target, err := r.backend.CreateRenderTarget(width, height)
	if err != nil {
		r.target = nil
		return core.FrameError(err, "recreating render target %dx%d", width, height)
	}
	r.target = target
	core.LogInfo("renderer resized to %dx%d (target generation %d)", width, height, target.Generation)
	return nil
}

// ReloadPipeline swaps in a pipeline built from library. The current
// pipeline stays in use when the new one fails to build.
func (r *Renderer) ReloadPipeline(library []byte) error {
	if err := r.backend.WaitIdle(); err != nil {
		return core.FrameError(err, "waiting for idle before pipeline reload")
	}
	p, err := r.backend.CreatePipeline(library, r.options.Pipeline)
	if err != nil {
		return errors.WithHint(errors.Wrap(err, "reloading pipeline"), "the previous pipeline is still in use")
	}
	if r.pipeline != nil {
		r.pipeline.Release()
	}
	r.pipeline = p
	core.LogInfo("pipeline %s reloaded", r.options.Pipeline.Name)
	return nil
}

// Shutdown waits for the device and releases everything in reverse
// creation order.
func (r *Renderer) Shutdown() error {
	if err := r.backend.WaitIdle(); err != nil {
		core.LogError("device did not go idle before shutdown: %s", err)
	}
	if r.target != nil {
		r.target.Release()
	}
	if r.pipeline != nil {
		r.pipeline.Release()
	}
	if r.tlas != nil {
		r.tlas.Release()
	}
	if r.instanceBuffer != nil {
		r.instanceBuffer.Release()
	}
	for _, b := range r.blas {
		b.Release()
	}
	for _, g := range r.geometry {
		g.Release()
	}
	r.frames = nil
	return r.backend.Shutdown()
}

func (r *Renderer) Stats() FrameStats {
	return r.stats
}

func (r *Renderer) Target() *metadata.RenderTarget {
	return r.target
}

func (r *Renderer) TLAS() *TLAS {
	return r.tlas
}

func (r *Renderer) Instances() *scene.InstanceTable {
	return r.instances
}

func (r *Renderer) Backend() RayTracingBackend {
	return r.backend
}

// Slot is the frame slot the next Draw uses.
func (r *Renderer) Slot() int {
	return r.slot
}
