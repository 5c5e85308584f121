package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
)

type VulkanImage struct {
	ID     uuid.UUID
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format vk.Format
	Layout vk.ImageLayout
}

var colorSubresource = vk.ImageSubresourceRange{
	AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
	BaseMipLevel:   0,
	LevelCount:     1,
	BaseArrayLayer: 0,
	LayerCount:     1,
}

// ImageCreate creates a device local 2D image with a view over its single mip.
func ImageCreate(context *VulkanContext, width, height uint32, format vk.Format, usage vk.ImageUsageFlags) (*VulkanImage, error) {
	device := context.Device.LogicalDevice
	image := &VulkanImage{Width: width, Height: height, Format: format, Layout: vk.ImageLayoutUndefined}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if err := resultError(vk.CreateImage(device, &imageCreateInfo, context.Allocator, &image.Handle), "vkCreateImage"); err != nil {
		return nil, err
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image.Handle, &memReqs)
	memReqs.Deref()
	memTypeIndex, err := context.FindMemoryIndex(memReqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		image.Destroy(context)
		return nil, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memTypeIndex,
	}
	if err := resultError(vk.AllocateMemory(device, &allocInfo, context.Allocator, &image.Memory), "vkAllocateMemory"); err != nil {
		image.Destroy(context)
		return nil, err
	}
	if err := resultError(vk.BindImageMemory(device, image.Handle, image.Memory, 0), "vkBindImageMemory"); err != nil {
		image.Destroy(context)
		return nil, err
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            image.Handle,
		ViewType:         vk.ImageViewType2d,
		Format:           format,
		SubresourceRange: colorSubresource,
	}
	if err := resultError(vk.CreateImageView(device, &viewInfo, context.Allocator, &image.View), "vkCreateImageView"); err != nil {
		image.Destroy(context)
		return nil, err
	}
	image.ID = context.Objects.Acquire(image)
	return image, nil
}

func (i *VulkanImage) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if i.View != vk.NullImageView {
		vk.DestroyImageView(device, i.View, context.Allocator)
		i.View = vk.NullImageView
	}
	if i.Handle != vk.NullImage {
		vk.DestroyImage(device, i.Handle, context.Allocator)
		i.Handle = vk.NullImage
	}
	if i.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, i.Memory, context.Allocator)
		i.Memory = vk.NullDeviceMemory
	}
	if i.ID != uuid.Nil {
		context.Objects.Release(i.ID)
		i.ID = uuid.Nil
	}
}

func imageBarrier(image vk.Image, oldLayout, newLayout vk.ImageLayout, srcAccess, dstAccess vk.AccessFlagBits) vk.ImageMemoryBarrier {
	return vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange:    colorSubresource,
		SrcAccessMask:       vk.AccessFlags(srcAccess),
		DstAccessMask:       vk.AccessFlags(dstAccess),
	}
}

func cmdImageBarriers(cb *VulkanCommandBuffer, srcStage, dstStage vk.PipelineStageFlagBits, barriers ...vk.ImageMemoryBarrier) {
	vk.CmdPipelineBarrier(
		cb.Handle,
		vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage),
		0,
		0, nil,
		0, nil,
		uint32(len(barriers)), barriers,
	)
}

// cmdHostWriteBarrier makes mapped memory writes visible to the compute shader.
func cmdHostWriteBarrier(cb *VulkanCommandBuffer) {
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessHostWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
	}
	vk.CmdPipelineBarrier(
		cb.Handle,
		vk.PipelineStageFlags(vk.PipelineStageHostBit), vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		0,
		1, []vk.MemoryBarrier{barrier},
		0, nil,
		0, nil,
	)
}
