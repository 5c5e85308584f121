package renderer

import (
	"time"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// RayTracingBackend is a device that can build acceleration structures and
// dispatch rays. Every object it returns is released through its Handle.
type RayTracingBackend interface {
	Initialize(surface metadata.Surface, config *metadata.BackendConfig) error
	Shutdown() error
	Info() metadata.DeviceInfo

	CreateGeometry(desc *metadata.GeometryDesc) (*metadata.GeometryBuffer, error)
	BuildBLAS(geometry ...*metadata.GeometryBuffer) (*metadata.AccelerationStructure, error)

	CreateInstanceBuffer(count uint32) (*metadata.InstanceBuffer, error)
	TLASPrebuildInfo(instances *metadata.InstanceBuffer) (metadata.PrebuildInfo, error)
	// MinimumUpdateScratchSize is the smallest update scratch the device
	// accepts, whatever the prebuild info reported.
	MinimumUpdateScratchSize() uint64
	BuildTLAS(instances *metadata.InstanceBuffer, updateScratchSize uint64) (*metadata.AccelerationStructure, error)
	// RefitTLAS records an in place update followed by a UAV barrier.
	RefitTLAS(frame *metadata.FrameSyncState, tlas *metadata.AccelerationStructure, instances *metadata.InstanceBuffer) error

	CreatePipeline(library []byte, config metadata.PipelineConfig) (*metadata.Pipeline, error)
	CreateRenderTarget(width, height uint32) (*metadata.RenderTarget, error)
	ResizeSurface(width, height uint32) error

	CreateFrameSync(slot uint8) (*metadata.FrameSyncState, error)
	CompletedFenceValue() uint64
	WaitForFence(value uint64, timeout time.Duration) error
	WaitIdle() error

	BeginFrame(frame *metadata.FrameSyncState) error
	Dispatch(frame *metadata.FrameSyncState, pipeline *metadata.Pipeline, target *metadata.RenderTarget, tlas *metadata.AccelerationStructure) error
	CopyToSurface(frame *metadata.FrameSyncState, target *metadata.RenderTarget) error
	// Submit closes and submits the frame's commands and returns the fence
	// value that retires them.
	Submit(frame *metadata.FrameSyncState) (uint64, error)
	Present(frame *metadata.FrameSyncState) error
}
