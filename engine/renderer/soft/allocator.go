package soft

import (
	"image"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Every buffer starts on this boundary of the virtual address space.
const addressAlignment uint64 = 256

// First address handed out, so that 0 always means "no resource".
const addressBase uint64 = 0x10000

var (
	ErrOutOfMemory    = errors.New("device memory budget exhausted")
	ErrInvalidAddress = errors.New("address does not belong to a live buffer")
	ErrNotMappable    = errors.New("only upload and readback buffers can be mapped")
)

// resource is implemented by everything the command list can transition.
type resource interface {
	name() string
	state() metadata.ResourceState
	setState(metadata.ResourceState)
	alive() error
}

type Buffer struct {
	metadata.Handle
	Size    uint64
	Heap    metadata.HeapType
	Address uint64

	data         []byte
	currentState metadata.ResourceState
	// acceleration structure written by a build, owned by the queue timeline
	payload interface{}
}

func (b *Buffer) name() string                      { return b.Name }
func (b *Buffer) state() metadata.ResourceState     { return b.currentState }
func (b *Buffer) setState(s metadata.ResourceState) { b.currentState = s }
func (b *Buffer) alive() error                      { return b.Check() }

// Map returns the CPU view of an upload or readback buffer. The slice stays
// valid until the buffer is released.
func (b *Buffer) Map() ([]byte, error) {
	if err := b.Check(); err != nil {
		return nil, err
	}
	if b.Heap == metadata.HeapTypeDefault {
		return nil, errors.Wrapf(ErrNotMappable, "buffer %s lives in the %s heap", b.Name, b.Heap)
	}
	return b.data, nil
}

type Image struct {
	metadata.Handle
	Width  uint32
	Height uint32
	Pixels *image.RGBA

	currentState metadata.ResourceState
}

func (i *Image) name() string                      { return i.Name }
func (i *Image) state() metadata.ResourceState     { return i.currentState }
func (i *Image) setState(s metadata.ResourceState) { i.currentState = s }
func (i *Image) alive() error                      { return i.Check() }

// Allocator owns device memory. Buffers get monotonic virtual addresses that
// are never reused, so a stale address always faults instead of aliasing.
type Allocator struct {
	mu       sync.Mutex
	registry *core.Registry
	budget   uint64
	used     uint64
	next     uint64
	// live buffers sorted by address
	buffers []*Buffer
}

func NewAllocator(registry *core.Registry, budget uint64) *Allocator {
	return &Allocator{
		registry: registry,
		budget:   budget,
		next:     addressBase,
	}
}

func (a *Allocator) reserve(size uint64, what string) error {
	if a.budget > 0 && a.used+size > a.budget {
		return errors.Wrapf(ErrOutOfMemory, "%s needs %d bytes, %d of %d in use", what, size, a.used, a.budget)
	}
	a.used += size
	return nil
}

func (a *Allocator) CreateBuffer(name string, size uint64, heap metadata.HeapType, initial metadata.ResourceState) (*Buffer, error) {
	if size == 0 {
		return nil, errors.Newf("buffer %s: size must be greater than zero", name)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.reserve(size, "buffer "+name); err != nil {
		return nil, err
	}
	b := &Buffer{
		Size:         size,
		Heap:         heap,
		Address:      a.next,
		data:         make([]byte, size),
		currentState: initial,
	}
	a.next = math.AlignUp(a.next+size, addressAlignment)
	a.buffers = append(a.buffers, b)

	id := a.registry.Acquire(b)
	b.Bind(id, name, func() { a.freeBuffer(b) })
	return b, nil
}

func (a *Allocator) freeBuffer(b *Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := sort.Search(len(a.buffers), func(i int) bool { return a.buffers[i].Address >= b.Address })
	if i < len(a.buffers) && a.buffers[i] == b {
		a.buffers = append(a.buffers[:i], a.buffers[i+1:]...)
	}
	a.used -= b.Size
	b.data = nil
	b.payload = nil
	if err := a.registry.Release(b.ID); err != nil {
		core.LogWarn(err.Error())
	}
}

func (a *Allocator) CreateImage(name string, width, height uint32, initial metadata.ResourceState) (*Image, error) {
	if width == 0 || height == 0 {
		return nil, errors.Newf("image %s: %dx%d is not a valid size", name, width, height)
	}
	size := uint64(width) * uint64(height) * 4

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reserve(size, "image "+name); err != nil {
		return nil, err
	}
	img := &Image{
		Width:        width,
		Height:       height,
		Pixels:       image.NewRGBA(image.Rect(0, 0, int(width), int(height))),
		currentState: initial,
	}
	id := a.registry.Acquire(img)
	img.Bind(id, name, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.used -= size
		img.Pixels = nil
		if err := a.registry.Release(img.ID); err != nil {
			core.LogWarn(err.Error())
		}
	})
	return img, nil
}

// Resolve maps a device address to its buffer and the offset inside it.
func (a *Allocator) Resolve(address uint64) (*Buffer, uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := sort.Search(len(a.buffers), func(i int) bool { return a.buffers[i].Address > address })
	if i == 0 {
		return nil, 0, errors.Wrapf(ErrInvalidAddress, "0x%x", address)
	}
	b := a.buffers[i-1]
	if address >= b.Address+b.Size {
		return nil, 0, errors.Wrapf(ErrInvalidAddress, "0x%x", address)
	}
	return b, address - b.Address, nil
}

// ResolveRange is Resolve plus a check that size bytes fit in the buffer.
func (a *Allocator) ResolveRange(address, size uint64) (*Buffer, []byte, error) {
	b, off, err := a.Resolve(address)
	if err != nil {
		return nil, nil, err
	}
	if off+size > b.Size {
		return nil, nil, errors.Wrapf(ErrInvalidAddress, "range 0x%x+%d overruns buffer %s", address, size, b.Name)
	}
	return b, b.data[off : off+size], nil
}

func (a *Allocator) Used() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

func (a *Allocator) Budget() uint64 {
	return a.budget
}
