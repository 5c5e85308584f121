package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
)

// Vulkan rejects zero sized buffers.
const minBufferSize uint64 = 16

/**
 * @brief A host visible, coherent buffer that stays mapped for its lifetime.
 * The compute shader reads it directly, so CPU writes only need a host
 * to shader barrier before the dispatch that consumes them.
 */
type VulkanBuffer struct {
	ID     uuid.UUID
	Name   string
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	Usage  vk.BufferUsageFlags
	/** @brief The mapped bytes. Valid until Destroy. */
	Data []byte
}

func NewBuffer(context *VulkanContext, name string, size uint64, usage vk.BufferUsageFlagBits) (*VulkanBuffer, error) {
	size = max(size, minBufferSize)
	buffer := &VulkanBuffer{
		Name:  name,
		Size:  size,
		Usage: vk.BufferUsageFlags(usage),
	}
	device := context.Device.LogicalDevice

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       buffer.Usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if err := resultError(vk.CreateBuffer(device, &bufferInfo, context.Allocator, &buffer.Handle), "vkCreateBuffer"); err != nil {
		return nil, err
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, buffer.Handle, &memReqs)
	memReqs.Deref()
	memTypeIndex, err := context.FindMemoryIndex(memReqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyBuffer(device, buffer.Handle, context.Allocator)
		return nil, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memTypeIndex,
	}
	if err := resultError(vk.AllocateMemory(device, &allocInfo, context.Allocator, &buffer.Memory), "vkAllocateMemory"); err != nil {
		vk.DestroyBuffer(device, buffer.Handle, context.Allocator)
		return nil, err
	}
	if err := resultError(vk.BindBufferMemory(device, buffer.Handle, buffer.Memory, 0), "vkBindBufferMemory"); err != nil {
		buffer.free(context)
		return nil, err
	}

	var data unsafe.Pointer
	if err := resultError(vk.MapMemory(device, buffer.Memory, 0, vk.DeviceSize(size), 0, &data), "vkMapMemory"); err != nil {
		buffer.free(context)
		return nil, err
	}
	buffer.Data = unsafe.Slice((*byte)(data), size)
	buffer.ID = context.Objects.Acquire(buffer)
	return buffer, nil
}

// Write copies src at offset and returns the number of bytes written.
func (b *VulkanBuffer) Write(offset uint64, src []byte) int {
	return copy(b.Data[offset:], src)
}

func (b *VulkanBuffer) free(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, b.Handle, context.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, b.Memory, context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}

// Destroy unmaps and frees the buffer. Calling it twice is a no-op.
func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	if b.Handle == vk.NullBuffer {
		return
	}
	if b.Data != nil {
		vk.UnmapMemory(context.Device.LogicalDevice, b.Memory)
		b.Data = nil
	}
	b.free(context)
	context.Objects.Release(b.ID)
}

func (b *VulkanBuffer) descriptorInfo() vk.DescriptorBufferInfo {
	return vk.DescriptorBufferInfo{
		Buffer: b.Handle,
		Offset: 0,
		Range:  vk.DeviceSize(vk.WholeSize),
	}
}
