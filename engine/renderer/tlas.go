package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type TLASState uint8

const (
	TLASUnbuilt TLASState = iota
	TLASBuilt
	TLASRefitting
	TLASDestroyed
)

func (s TLASState) String() string {
	switch s {
	case TLASUnbuilt:
		return "unbuilt"
	case TLASBuilt:
		return "built"
	case TLASRefitting:
		return "refitting"
	case TLASDestroyed:
		return "destroyed"
	}
	return "unknown"
}

var ErrTLASState = errors.New("operation not allowed in the current TLAS state")

// ErrNotInitialized is returned by Draw before Initialize or after Shutdown.
var ErrNotInitialized = errors.New("renderer is not initialized")

// UpdateScratchSize is the size of the persistent update scratch buffer:
// the reported size raised to every floor. Drivers that report 0 still get
// a usable buffer.
func UpdateScratchSize(reported uint64, floors ...uint64) uint64 {
	size := reported
	for _, f := range floors {
		size = max(size, f)
	}
	return size
}

// TLAS is built once with allow-update and refit in place every frame.
type TLAS struct {
	backend          RayTracingBackend
	minUpdateScratch uint64
	state            TLASState
	handle           *metadata.AccelerationStructure
}

func NewTLAS(backend RayTracingBackend, minUpdateScratch uint64) *TLAS {
	return &TLAS{backend: backend, minUpdateScratch: minUpdateScratch}
}

func (t *TLAS) State() TLASState {
	return t.state
}

func (t *TLAS) Handle() *metadata.AccelerationStructure {
	return t.handle
}

func (t *TLAS) Build(instances *metadata.InstanceBuffer) error {
	if t.state != TLASUnbuilt {
		return errors.Wrapf(ErrTLASState, "build in state %s", t.state)
	}
	info, err := t.backend.TLASPrebuildInfo(instances)
	if err != nil {
		return err
	}
	scratch := UpdateScratchSize(info.UpdateScratchDataSize, t.backend.MinimumUpdateScratchSize(), t.minUpdateScratch)
	if info.UpdateScratchDataSize < scratch {
		core.LogDebug("update scratch raised from %d to %d bytes", info.UpdateScratchDataSize, scratch)
	}

	handle, err := t.backend.BuildTLAS(instances, scratch)
	if err != nil {
		return err
	}
	t.handle = handle
	t.state = TLASBuilt
	core.LogDebug("TLAS built: instances %d, result %d bytes, update scratch %d bytes", instances.Count, handle.ResultSize, scratch)
	return nil
}

// Refit records an update in place plus its UAV barrier into frame.
func (t *TLAS) Refit(frame *metadata.FrameSyncState, instances *metadata.InstanceBuffer) error {
	if t.state != TLASBuilt {
		return errors.Wrapf(ErrTLASState, "refit in state %s", t.state)
	}
	t.state = TLASRefitting
	err := t.backend.RefitTLAS(frame, t.handle, instances)
	t.state = TLASBuilt
	return err
}

func (t *TLAS) Release() {
	if t.state == TLASDestroyed {
		return
	}
	if t.handle != nil {
		t.handle.Release()
		t.handle = nil
	}
	t.state = TLASDestroyed
}
