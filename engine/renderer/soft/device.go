package soft

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/systems"
)

// Limits of the software device.
const (
	MaxTraceRecursionDepth uint32 = metadata.MaxTraceRecursionLimit
	MaxAttributeSize       uint32 = 32
	// The update writes a uint64 refit counter into its scratch buffer.
	UpdateScratchRequirement uint64 = 8
	DescriptorHeapSize       uint32 = 16
)

type DeviceOptions struct {
	Workers      int
	MemoryBudget uint64
	TileSize     uint32
	// Report zero update scratch from prebuild info, like some drivers do.
	ReportZeroUpdateScratch bool
}

type Device struct {
	options   DeviceOptions
	registry  *core.Registry
	allocator *Allocator
	queue     *Queue
	jobs      *systems.JobSystem
}

func NewDevice(options DeviceOptions) (*Device, error) {
	if options.Workers <= 0 {
		options.Workers = 1
	}
	if options.TileSize == 0 {
		options.TileSize = 16
	}
	jobs, err := systems.NewJobSystem(options.Workers, options.Workers*2)
	if err != nil {
		return nil, err
	}
	registry := core.NewRegistry()
	d := &Device{
		options:   options,
		registry:  registry,
		allocator: NewAllocator(registry, options.MemoryBudget),
		jobs:      jobs,
	}
	d.queue = newQueue(d)
	core.LogDebug("soft device created: %d workers, budget %d bytes, tile %d", options.Workers, options.MemoryBudget, options.TileSize)
	return d, nil
}

func (d *Device) Allocator() *Allocator {
	return d.allocator
}

func (d *Device) Queue() *Queue {
	return d.queue
}

func (d *Device) Options() DeviceOptions {
	return d.options
}

func (d *Device) register(h *metadata.Handle, owner interface{}, name string, destroy func()) {
	id := d.registry.Acquire(owner)
	h.Bind(id, name, func() {
		if destroy != nil {
			destroy()
		}
		if err := d.registry.Release(id); err != nil {
			core.LogWarn(err.Error())
		}
	})
}

func (d *Device) CreateCommandAllocator(name string) *CommandAllocator {
	a := &CommandAllocator{device: d}
	d.register(&a.Handle, a, name, nil)
	return a
}

func (d *Device) CreateCommandList(name string, alloc *CommandAllocator) (*CommandList, error) {
	cl := &CommandList{State: COMMAND_LIST_STATE_NOT_ALLOCATED}
	d.register(&cl.Handle, cl, name, func() {
		cl.commands = nil
		cl.State = COMMAND_LIST_STATE_NOT_ALLOCATED
	})
	cl.State = COMMAND_LIST_STATE_READY
	if alloc != nil {
		if err := cl.Reset(alloc); err != nil {
			cl.Release()
			return nil, err
		}
	}
	return cl, nil
}

// WaitIdle signals a fresh fence value and waits for it.
func (d *Device) WaitIdle() error {
	value, err := d.queue.SignalNext()
	if err != nil {
		return err
	}
	return d.queue.fence.Wait(value, 0)
}

// LiveObjects lists the names of every device object not yet released.
func (d *Device) LiveObjects() []string {
	owners := d.registry.Owners()
	out := make([]string, 0, len(owners))
	for _, o := range owners {
		switch v := o.(type) {
		case *Buffer:
			out = append(out, fmt.Sprintf("buffer %s (%d bytes, %s)", v.Name, v.Size, v.Heap))
		case *Image:
			out = append(out, fmt.Sprintf("image %s (%dx%d)", v.Name, v.Width, v.Height))
		case interface{ DebugName() string }:
			out = append(out, fmt.Sprintf("%T %s", v, v.DebugName()))
		default:
			out = append(out, fmt.Sprintf("%T", v))
		}
	}
	return out
}

// Close stops the queue and the workers. Objects still alive are reported,
// which means the caller leaked them.
func (d *Device) Close() error {
	d.queue.close()
	if err := d.jobs.Shutdown(); err != nil {
		return err
	}
	live := d.LiveObjects()
	for _, l := range live {
		core.LogWarn("live object at device shutdown: %s", l)
	}
	if len(live) > 0 {
		return errors.Newf("%d device objects leaked", len(live))
	}
	return nil
}

// DescriptorHeap holds the shader visible views. Only unordered access views
// of images are needed by the ray dispatch.
type DescriptorHeap struct {
	metadata.Handle
	views []*Image
}

func (d *Device) CreateDescriptorHeap(name string, size uint32) *DescriptorHeap {
	h := &DescriptorHeap{views: make([]*Image, size)}
	d.register(&h.Handle, h, name, func() { h.views = nil })
	return h
}

func (h *DescriptorHeap) CreateUnorderedAccessView(img *Image, index uint32) error {
	if int(index) >= len(h.views) {
		return errors.Newf("descriptor index %d outside heap of %d", index, len(h.views))
	}
	h.views[index] = img
	return nil
}

// ClearView drops the view at index if it still refers to img.
func (h *DescriptorHeap) ClearView(img *Image, index uint32) {
	if int(index) < len(h.views) && h.views[index] == img {
		h.views[index] = nil
	}
}

func (h *DescriptorHeap) view(index uint32) (*Image, error) {
	if int(index) >= len(h.views) || h.views[index] == nil {
		return nil, errors.Newf("descriptor %d of heap %s is empty", index, h.Name)
	}
	img := h.views[index]
	if err := img.Check(); err != nil {
		return nil, errors.Wrapf(err, "descriptor %d of heap %s", index, h.Name)
	}
	return img, nil
}

type RootParameterType uint8

const (
	RootParameterDescriptorTable RootParameterType = iota
	RootParameterShaderResourceView
)

type RootSignature struct {
	metadata.Handle
	Parameters []RootParameterType
}

func (d *Device) CreateRootSignature(name string, params ...RootParameterType) *RootSignature {
	rs := &RootSignature{Parameters: append([]RootParameterType(nil), params...)}
	d.register(&rs.Handle, rs, name, nil)
	return rs
}
