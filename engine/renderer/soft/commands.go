package soft

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var (
	ErrAllocatorInUse   = errors.New("command allocator reset while its commands may still execute")
	ErrInvalidListState = errors.New("command list is not in a valid state for this call")
)

type CommandListState int

const (
	COMMAND_LIST_STATE_READY CommandListState = iota
	COMMAND_LIST_STATE_RECORDING
	COMMAND_LIST_STATE_RECORDING_ENDED
	COMMAND_LIST_STATE_SUBMITTED
	COMMAND_LIST_STATE_NOT_ALLOCATED
)

func (s CommandListState) String() string {
	switch s {
	case COMMAND_LIST_STATE_READY:
		return "ready"
	case COMMAND_LIST_STATE_RECORDING:
		return "recording"
	case COMMAND_LIST_STATE_RECORDING_ENDED:
		return "recording-ended"
	case COMMAND_LIST_STATE_SUBMITTED:
		return "submitted"
	}
	return "not-allocated"
}

// CommandAllocator backs the memory of recorded commands. It may only be
// reset once the fence value of its last submission has completed.
type CommandAllocator struct {
	metadata.Handle
	device *Device
	// fence value that retires the last submission, MaxUint64 while unknown
	retireValue uint64
	ResetCount  uint64
}

func (a *CommandAllocator) Reset() error {
	if err := a.Check(); err != nil {
		return err
	}
	q := a.device.queue
	q.mu.Lock()
	retire := a.retireValue
	q.mu.Unlock()

	completed := q.fence.CompletedValue()
	if retire > completed {
		if retire == math.MaxUint64 {
			return errors.Wrapf(ErrAllocatorInUse, "allocator %s was submitted without a fence signal", a.Name)
		}
		return errors.Wrapf(ErrAllocatorInUse, "allocator %s retires at %d, fence is at %d", a.Name, retire, completed)
	}
	a.ResetCount++
	return nil
}

type command interface {
	execute(ctx *executionContext) error
}

// CommandList records commands for the queue. Recording errors are kept and
// reported by Close so call sites can record without checking every call.
type CommandList struct {
	metadata.Handle
	State     CommandListState
	allocator *CommandAllocator
	commands  []command
	err       error
}

// Reset starts a new recording into alloc.
func (cl *CommandList) Reset(alloc *CommandAllocator) error {
	if err := cl.Check(); err != nil {
		return err
	}
	if err := alloc.Check(); err != nil {
		return err
	}
	if cl.State == COMMAND_LIST_STATE_RECORDING {
		return errors.Wrapf(ErrInvalidListState, "list %s is already recording", cl.Name)
	}
	cl.allocator = alloc
	cl.commands = cl.commands[:0]
	cl.err = nil
	cl.State = COMMAND_LIST_STATE_RECORDING
	return nil
}

func (cl *CommandList) Close() error {
	if cl.State != COMMAND_LIST_STATE_RECORDING {
		return errors.Wrapf(ErrInvalidListState, "close on list %s in state %s", cl.Name, cl.State)
	}
	cl.State = COMMAND_LIST_STATE_RECORDING_ENDED
	return cl.err
}

func (cl *CommandList) record(c command) {
	if cl.State != COMMAND_LIST_STATE_RECORDING {
		if cl.err == nil {
			cl.err = errors.Wrapf(ErrInvalidListState, "recording into list %s in state %s", cl.Name, cl.State)
			core.LogError(cl.err.Error())
		}
		return
	}
	cl.commands = append(cl.commands, c)
}

func (cl *CommandList) fail(err error) {
	if cl.err == nil {
		cl.err = err
	}
}

// BarrierType selects between a state transition and a write-to-read hazard fence.
type BarrierType uint8

const (
	BarrierTransition BarrierType = iota
	BarrierUAV
)

type Barrier struct {
	Type     BarrierType
	Resource resource
	Before   metadata.ResourceState
	After    metadata.ResourceState
}

func TransitionBarrier(r resource, before, after metadata.ResourceState) Barrier {
	return Barrier{Type: BarrierTransition, Resource: r, Before: before, After: after}
}

func UAVBarrier(r resource) Barrier {
	return Barrier{Type: BarrierUAV, Resource: r}
}

type barrierCommand struct {
	barriers []Barrier
}

func (cl *CommandList) ResourceBarrier(barriers ...Barrier) {
	for _, b := range barriers {
		if b.Resource == nil {
			cl.fail(errors.New("barrier without resource"))
			return
		}
		if b.Type == BarrierTransition && b.Before == b.After {
			cl.fail(errors.Newf("transition of %s from %s to itself", b.Resource.name(), b.Before))
			return
		}
	}
	cl.record(&barrierCommand{barriers: append([]Barrier(nil), barriers...)})
}

// GeometryTriangles describes one triangle geometry of a bottom level build.
type GeometryTriangles struct {
	VertexBuffer uint64
	VertexCount  uint32
	VertexStride uint64
	IndexBuffer  uint64
	IndexCount   uint32
	IndexFormat  metadata.IndexFormat
	Opaque       bool
}

type BuildInputs struct {
	Kind       metadata.AccelerationStructureKind
	Flags      metadata.BuildFlags
	Geometries []GeometryTriangles
	// top level only
	InstanceDescs uint64
	NumDescs      uint32
}

type BuildDesc struct {
	Inputs  BuildInputs
	Dest    uint64
	Source  uint64
	Scratch uint64
}

type buildCommand struct {
	desc BuildDesc
}

func (cl *CommandList) BuildRaytracingAccelerationStructure(desc *BuildDesc) {
	if desc.Dest == 0 || desc.Scratch == 0 {
		cl.fail(errors.New("acceleration structure build needs a destination and scratch address"))
		return
	}
	if desc.Inputs.Flags&metadata.BuildFlagPerformUpdate != 0 && desc.Source == 0 {
		cl.fail(errors.New("acceleration structure update needs a source address"))
		return
	}
	d := *desc
	d.Inputs.Geometries = append([]GeometryTriangles(nil), desc.Inputs.Geometries...)
	cl.record(&buildCommand{desc: d})
}

type copyBufferCommand struct {
	dst, src       *Buffer
	dstOff, srcOff uint64
	size           uint64
}

func (cl *CommandList) CopyBufferRegion(dst *Buffer, dstOffset uint64, src *Buffer, srcOffset, size uint64) {
	if dstOffset+size > dst.Size || srcOffset+size > src.Size {
		cl.fail(errors.Newf("copy of %d bytes overruns %s or %s", size, dst.Name, src.Name))
		return
	}
	cl.record(&copyBufferCommand{dst: dst, src: src, dstOff: dstOffset, srcOff: srcOffset, size: size})
}

type copyImageCommand struct {
	dst, src *Image
}

func (cl *CommandList) CopyResource(dst, src *Image) {
	if dst.Width != src.Width || dst.Height != src.Height {
		cl.fail(errors.Newf("copy from %s (%dx%d) to %s (%dx%d) changes size", src.Name, src.Width, src.Height, dst.Name, dst.Width, dst.Height))
		return
	}
	cl.record(&copyImageCommand{dst: dst, src: src})
}

type setPipelineCommand struct {
	pso *PipelineState
}

func (cl *CommandList) SetPipelineState1(pso *PipelineState) {
	cl.record(&setPipelineCommand{pso: pso})
}

type setRootSignatureCommand struct {
	rs *RootSignature
}

func (cl *CommandList) SetComputeRootSignature(rs *RootSignature) {
	cl.record(&setRootSignatureCommand{rs: rs})
}

type setDescriptorHeapCommand struct {
	heap *DescriptorHeap
}

func (cl *CommandList) SetDescriptorHeaps(heap *DescriptorHeap) {
	cl.record(&setDescriptorHeapCommand{heap: heap})
}

type setRootArgumentCommand struct {
	index   uint32
	table   uint32
	address uint64
	isTable bool
}

func (cl *CommandList) SetComputeRootDescriptorTable(index, heapIndex uint32) {
	cl.record(&setRootArgumentCommand{index: index, table: heapIndex, isTable: true})
}

func (cl *CommandList) SetComputeRootShaderResourceView(index uint32, address uint64) {
	cl.record(&setRootArgumentCommand{index: index, address: address})
}

type DispatchRaysDesc struct {
	RayGeneration metadata.AddressRange
	Miss          metadata.AddressRange
	HitGroup      metadata.AddressRange
	Width         uint32
	Height        uint32
	Depth         uint32
}

type dispatchCommand struct {
	desc DispatchRaysDesc
}

func (cl *CommandList) DispatchRays(desc *DispatchRaysDesc) {
	if desc.Width == 0 || desc.Height == 0 || desc.Depth == 0 {
		cl.fail(errors.Newf("dispatch of %dx%dx%d rays", desc.Width, desc.Height, desc.Depth))
		return
	}
	cl.record(&dispatchCommand{desc: *desc})
}
