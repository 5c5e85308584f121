package metadata

const (
	/** @brief Size of an opaque shader identifier. */
	ShaderIdentifierSize uint64 = 32
	/** @brief Every shader table record starts on this boundary. */
	ShaderTableAlignment uint64 = 64
	/** @brief Records in the table: ray generation, miss, hit group. */
	ShaderRecordCount uint64 = 3
	/** @brief Highest recursion depth any backend accepts. */
	MaxTraceRecursionLimit uint32 = 31
)

// Export names a ray tracing shader library must provide.
const (
	ExportRayGeneration = "RayGeneration"
	ExportMiss          = "Miss"
	ExportClosestHit    = "ClosestHit"
	ExportHitGroup      = "HitGroup"
	// Entry point of the compute variant.
	ExportComputeMain = "main"
)

/**
 * @brief Limits the pipeline is created with.
 */
type PipelineConfig struct {
	Name                   string
	MaxPayloadSize         uint32
	MaxAttributeSize       uint32
	MaxTraceRecursionDepth uint32
	RayGenerationExport    string
	MissExport             string
	HitGroupExport         string
	ClosestHitExport       string
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Name:                   "scene",
		MaxPayloadSize:         20,
		MaxAttributeSize:       8,
		MaxTraceRecursionDepth: 3,
		RayGenerationExport:    ExportRayGeneration,
		MissExport:             ExportMiss,
		HitGroupExport:         ExportHitGroup,
		ClosestHitExport:       ExportClosestHit,
	}
}

/** @brief A device address range inside the shader table. */
type AddressRange struct {
	Start  uint64
	Size   uint64
	Stride uint64
}

/**
 * @brief Shader identifiers copied into an upload buffer, one aligned record per stage.
 */
type ShaderTable struct {
	Address      uint64
	Size         uint64
	RecordStride uint64
	RayGen       AddressRange
	Miss         AddressRange
	HitGroup     AddressRange
}

// NewShaderTableLayout lays the three records out from base.
func NewShaderTableLayout(base uint64) ShaderTable {
	stride := ShaderTableAlignment
	return ShaderTable{
		Address:      base,
		Size:         ShaderRecordCount * stride,
		RecordStride: stride,
		RayGen:       AddressRange{Start: base, Size: ShaderIdentifierSize},
		Miss:         AddressRange{Start: base + stride, Size: ShaderIdentifierSize, Stride: stride},
		HitGroup:     AddressRange{Start: base + 2*stride, Size: ShaderIdentifierSize, Stride: stride},
	}
}

/**
 * @brief Binding slots of the global binding layout.
 */
type RootParameter uint8

const (
	/** @brief Descriptor table with the output image UAV. */
	RootParameterOutputTable RootParameter = 0
	/** @brief Root shader resource view holding the TLAS address. */
	RootParameterSceneBVH RootParameter = 1
)

type Pipeline struct {
	Handle
	Config PipelineConfig
	/** @brief nil for the compute variant. */
	ShaderTable  *ShaderTable
	InternalData interface{}
}
