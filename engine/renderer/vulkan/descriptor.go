package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

// Bindings of the compute shader's only descriptor set.
const (
	BindingOutputImage uint32 = iota
	BindingTLASNodes
	BindingBLASArena
	BindingInstances
	bindingCount
)

/**
 * @brief What a slot's descriptor set currently points at. A set is only
 * rewritten when the target or the acceleration structure changed, and only
 * while its slot is idle.
 */
type VulkanDescriptorState struct {
	TargetGeneration uint64
	TLASGeneration   uint64
}

/**
 * @brief One descriptor set per frame slot over a shared layout.
 */
type VulkanDescriptorSets struct {
	Layout vk.DescriptorSetLayout
	Pool   vk.DescriptorPool
	Sets   []vk.DescriptorSet
	States []VulkanDescriptorState
}

func NewDescriptorSets(context *VulkanContext, slots uint32) (*VulkanDescriptorSets, error) {
	device := context.Device.LogicalDevice
	ds := &VulkanDescriptorSets{}

	bindings := make([]vk.DescriptorSetLayoutBinding, bindingCount)
	for i := range bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		}
	}
	bindings[BindingOutputImage].DescriptorType = vk.DescriptorTypeStorageImage

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if err := resultError(vk.CreateDescriptorSetLayout(device, &layoutInfo, context.Allocator, &ds.Layout), "vkCreateDescriptorSetLayout"); err != nil {
		return nil, err
	}

	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: slots},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: slots * (bindingCount - 1)},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       slots,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if err := resultError(vk.CreateDescriptorPool(device, &poolInfo, context.Allocator, &ds.Pool), "vkCreateDescriptorPool"); err != nil {
		ds.Destroy(context)
		return nil, err
	}

	layouts := make([]vk.DescriptorSetLayout, slots)
	for i := range layouts {
		layouts[i] = ds.Layout
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     ds.Pool,
		DescriptorSetCount: slots,
		PSetLayouts:        layouts,
	}
	ds.Sets = make([]vk.DescriptorSet, slots)
	if err := resultError(vk.AllocateDescriptorSets(device, &allocInfo, &ds.Sets[0]), "vkAllocateDescriptorSets"); err != nil {
		ds.Destroy(context)
		return nil, err
	}
	ds.States = make([]VulkanDescriptorState, slots)
	core.LogDebug("Descriptor sets created for %d slots.", slots)
	return ds, nil
}

// Update points slot's set at the target image and the scene buffers when
// either changed since the last update.
func (ds *VulkanDescriptorSets) Update(context *VulkanContext, slot uint8, target *VulkanImage, targetGeneration uint64, scene *tlasResources) {
	state := &ds.States[slot]
	if state.TargetGeneration == targetGeneration && state.TLASGeneration == scene.generation {
		return
	}
	set := ds.Sets[slot]
	writes := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      BindingOutputImage,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeStorageImage,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageView:   target.View,
			ImageLayout: vk.ImageLayoutGeneral,
		}},
	}}
	for binding, buffer := range map[uint32]*VulkanBuffer{
		BindingTLASNodes: scene.nodes,
		BindingBLASArena: scene.arena,
		BindingInstances: scene.instances,
	} {
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      binding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			PBufferInfo:     []vk.DescriptorBufferInfo{buffer.descriptorInfo()},
		})
	}
	vk.UpdateDescriptorSets(context.Device.LogicalDevice, uint32(len(writes)), writes, 0, nil)
	state.TargetGeneration = targetGeneration
	state.TLASGeneration = scene.generation
}

// Invalidate forces every set to be rewritten on its next use.
func (ds *VulkanDescriptorSets) Invalidate() {
	for i := range ds.States {
		ds.States[i] = VulkanDescriptorState{}
	}
}

func (ds *VulkanDescriptorSets) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if ds.Pool != vk.NullDescriptorPool {
		// sets go with the pool
		vk.DestroyDescriptorPool(device, ds.Pool, context.Allocator)
		ds.Pool = vk.NullDescriptorPool
		ds.Sets = nil
	}
	if ds.Layout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(device, ds.Layout, context.Allocator)
		ds.Layout = vk.NullDescriptorSetLayout
	}
}
