package metadata

type AccelerationStructureKind uint8

const (
	AccelerationStructureBottomLevel AccelerationStructureKind = iota
	AccelerationStructureTopLevel
)

func (k AccelerationStructureKind) String() string {
	if k == AccelerationStructureTopLevel {
		return "TLAS"
	}
	return "BLAS"
}

type BuildFlags uint32

const (
	BuildFlagNone            BuildFlags = 0
	BuildFlagAllowUpdate     BuildFlags = 0x1
	BuildFlagPreferFastTrace BuildFlags = 0x4
	BuildFlagPerformUpdate   BuildFlags = 0x20
)

/**
 * @brief Sizes reported by the backend before a build.
 */
type PrebuildInfo struct {
	/** @brief Upper bound for the result buffer. */
	ResultDataMaxSize uint64
	/** @brief Scratch needed by a full build. */
	ScratchDataSize uint64
	/** @brief Scratch needed by an update in place. Some drivers report 0. */
	UpdateScratchDataSize uint64
}

/**
 * @brief Opaque acceleration structure. It owns its result buffer and, for a
 * refittable TLAS, the persistent update scratch buffer.
 */
type AccelerationStructure struct {
	Handle
	Kind AccelerationStructureKind
	/** @brief Device address of the result buffer. Instances reference BLASes by it. */
	Address    uint64
	ResultSize uint64
	/** @brief Size of the persistent update scratch buffer, TLAS only. */
	UpdateScratchSize uint64
	Flags             BuildFlags
	/** @brief Triangle count for a BLAS, instance count for a TLAS. */
	PrimitiveCount uint32
	/** @brief Number of in place updates applied since the build. */
	RefitCount   uint64
	InternalData interface{}
}
