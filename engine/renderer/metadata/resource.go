package metadata

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var ErrReleased = errors.New("handle used after release")

/**
 * @brief Handle is embedded by every device object. It gives single
 * ownership semantics: Release runs the destroy function exactly once and
 * later calls are no-ops.
 */
type Handle struct {
	/** @brief Unique identifier of the device object. */
	ID uuid.UUID
	/** @brief Debug name. */
	Name     string
	released atomic.Bool
	destroy  func()
}

// Bind sets identity and destructor. It must be called before the handle is shared.
func (h *Handle) Bind(id uuid.UUID, name string, destroy func()) {
	h.ID = id
	h.Name = name
	h.destroy = destroy
}

// Release destroys the underlying object. Safe to call more than once.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	if h.released.CompareAndSwap(false, true) && h.destroy != nil {
		h.destroy()
	}
}

func (h *Handle) DebugName() string {
	return h.Name
}

func (h *Handle) Released() bool {
	return h == nil || h.released.Load()
}

// Check returns ErrReleased when the handle is no longer usable.
func (h *Handle) Check() error {
	if h.Released() {
		if h == nil {
			return errors.Wrap(ErrReleased, "nil handle")
		}
		return errors.Wrapf(ErrReleased, "%s (%s)", h.Name, h.ID)
	}
	return nil
}

/** @brief Memory heap a buffer lives in. */
type HeapType uint8

const (
	/** @brief Device local memory, not CPU visible. */
	HeapTypeDefault HeapType = iota
	/** @brief CPU writable, GPU readable memory. */
	HeapTypeUpload
	/** @brief GPU writable, CPU readable memory. */
	HeapTypeReadback
)

func (h HeapType) String() string {
	switch h {
	case HeapTypeDefault:
		return "default"
	case HeapTypeUpload:
		return "upload"
	case HeapTypeReadback:
		return "readback"
	}
	return "unknown"
}

/** @brief How a resource may currently be accessed by the GPU. */
type ResourceState uint16

const (
	ResourceStateCommon ResourceState = iota
	ResourceStateUnorderedAccess
	ResourceStateCopySource
	ResourceStateCopyDest
	ResourceStatePresent
	ResourceStateGenericRead
	ResourceStateAccelerationStructure
)

func (s ResourceState) String() string {
	switch s {
	case ResourceStateCommon:
		return "common"
	case ResourceStateUnorderedAccess:
		return "unordered-access"
	case ResourceStateCopySource:
		return "copy-source"
	case ResourceStateCopyDest:
		return "copy-dest"
	case ResourceStatePresent:
		return "present"
	case ResourceStateGenericRead:
		return "generic-read"
	case ResourceStateAccelerationStructure:
		return "acceleration-structure"
	}
	return "unknown"
}
