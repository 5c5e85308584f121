package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Local workgroup size declared by the compute shader.
const WorkgroupSize uint32 = 8

var ErrInvalidPipeline = errors.New("invalid pipeline description")

/**
 * @brief Values pushed before every dispatch. Matches the push_constant
 * block of the compute shader.
 */
type PushConstants struct {
	Width    uint32
	Height   uint32
	MaxDepth uint32
	/** @brief 1 when the shader must write BGRA. */
	Swizzle uint32
}

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
	MaxDepth       uint32
}

// ValidatePipelineConfig applies the same limits as a ray tracing pipeline.
func ValidatePipelineConfig(config metadata.PipelineConfig, limit uint32) error {
	if config.MaxTraceRecursionDepth == 0 || config.MaxTraceRecursionDepth > limit {
		return errors.Wrapf(ErrInvalidPipeline, "recursion depth %d outside [1, %d]", config.MaxTraceRecursionDepth, limit)
	}
	if config.MaxPayloadSize == 0 {
		return errors.Wrap(ErrInvalidPipeline, "payload size is zero")
	}
	return nil
}

func NewComputePipeline(context *VulkanContext, stage *VulkanShaderStage, setLayout vk.DescriptorSetLayout, maxDepth uint32) (*VulkanPipeline, error) {
	device := context.Device.LogicalDevice
	pipeline := &VulkanPipeline{MaxDepth: maxDepth}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{setLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			Offset:     0,
			Size:       uint32(unsafe.Sizeof(PushConstants{})),
		}},
	}
	if err := resultError(vk.CreatePipelineLayout(device, &layoutInfo, context.Allocator, &pipeline.PipelineLayout), "vkCreatePipelineLayout"); err != nil {
		return nil, err
	}

	createInfo := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stage.ShaderStageCreateInfo,
		Layout: pipeline.PipelineLayout,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := resultError(vk.CreateComputePipelines(device, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{createInfo}, context.Allocator, pipelines), "vkCreateComputePipelines"); err != nil {
		vk.DestroyPipelineLayout(device, pipeline.PipelineLayout, context.Allocator)
		return nil, err
	}
	pipeline.Handle = pipelines[0]
	core.LogDebug("Compute pipeline created, max depth %d.", maxDepth)
	return pipeline, nil
}

func (p *VulkanPipeline) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if p.Handle != vk.NullPipeline {
		vk.DestroyPipeline(device, p.Handle, context.Allocator)
		p.Handle = vk.NullPipeline
	}
	if p.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(device, p.PipelineLayout, context.Allocator)
		p.PipelineLayout = vk.NullPipelineLayout
	}
}

func (p *VulkanPipeline) Bind(cb *VulkanCommandBuffer, set vk.DescriptorSet, constants *PushConstants) {
	vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointCompute, p.Handle)
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointCompute, p.PipelineLayout, 0, 1, []vk.DescriptorSet{set}, 0, nil)
	vk.CmdPushConstants(cb.Handle, p.PipelineLayout, vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, uint32(unsafe.Sizeof(*constants)), unsafe.Pointer(constants))
}

// DispatchGroups is the workgroup count covering width x height pixels.
func DispatchGroups(width, height uint32) (uint32, uint32) {
	return (width + WorkgroupSize - 1) / WorkgroupSize, (height + WorkgroupSize - 1) / WorkgroupSize
}
