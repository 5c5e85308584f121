package metadata

type FrameState uint8

const (
	FrameStateIdle FrameState = iota
	FrameStateRecording
	FrameStateSubmitted
	FrameStatePresented
)

func (s FrameState) String() string {
	switch s {
	case FrameStateIdle:
		return "idle"
	case FrameStateRecording:
		return "recording"
	case FrameStateSubmitted:
		return "submitted"
	case FrameStatePresented:
		return "presented"
	}
	return "unknown"
}

/**
 * @brief Per slot synchronization state. The command recorder and fence
 * objects live in InternalData and belong to the backend.
 */
type FrameSyncState struct {
	Slot uint8
	/** @brief Fence value signaled by the last submission from this slot, 0 if none. */
	FenceValue uint64
	/** @brief Frame number that last used this slot. */
	FrameNumber  uint64
	State        FrameState
	InternalData interface{}
}
