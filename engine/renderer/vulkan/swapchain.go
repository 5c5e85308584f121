package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

// VulkanSwapchain images are copy destinations only; nothing renders into
// them directly.
type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	ImageCount  uint32
	Images      []vk.Image
	Extent      vk.Extent2D
	// images that were presented at least once and start in PRESENT_SRC
	presented []bool
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

func SwapchainCreate(context *VulkanContext, width uint32, height uint32) (*VulkanSwapchain, error) {
	return createSwapchain(context, width, height, vk.NullSwapchain)
}

func (vs *VulkanSwapchain) SwapchainRecreate(context *VulkanContext, width uint32, height uint32) (*VulkanSwapchain, error) {
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, &context.Device.SwapchainSupport); err != nil {
		return nil, err
	}
	next, err := createSwapchain(context, width, height, vs.Handle)
	vs.SwapchainDestroy(context)
	return next, err
}

func (vs *VulkanSwapchain) SwapchainDestroy(context *VulkanContext) {
	if vs.Handle == vk.NullSwapchain {
		return
	}
	// images are owned by the swapchain and go with it
	vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
	vs.Handle = vk.NullSwapchain
	vs.Images = nil
}

// SwapchainAcquireNextImageIndex returns core.ErrSwapchainBooting when the
// surface changed and the swapchain has to be recreated.
func (vs *VulkanSwapchain) SwapchainAcquireNextImageIndex(context *VulkanContext, timeoutNS uint64, imageAvailableSemaphore vk.Semaphore) (uint32, error) {
	var index uint32
	result := vk.AcquireNextImage(context.Device.LogicalDevice, vs.Handle, timeoutNS, imageAvailableSemaphore, vk.NullFence, &index)
	if result == vk.Suboptimal {
		return index, nil
	}
	if err := resultError(result, "vkAcquireNextImageKHR"); err != nil {
		return 0, err
	}
	return index, nil
}

// SwapchainPresent hands the image back for presentation after renderComplete is signaled.
func (vs *VulkanSwapchain) SwapchainPresent(context *VulkanContext, renderCompleteSemaphore vk.Semaphore, presentImageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderCompleteSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{presentImageIndex},
	}
	var result vk.Result
	context.Locks.SafeCall(QueueManagement, func() error {
		result = vk.QueuePresent(context.Device.PresentQueue, &presentInfo)
		return nil
	})
	vs.presented[presentImageIndex] = true
	if result == vk.Suboptimal {
		return errors.Mark(errors.New("swapchain is suboptimal"), core.ErrSwapchainBooting)
	}
	return resultError(result, "vkQueuePresentKHR")
}

// layout the image is in before this frame's copy
func (vs *VulkanSwapchain) currentLayout(index uint32) vk.ImageLayout {
	if vs.presented[index] {
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func createSwapchain(context *VulkanContext, width, height uint32, old vk.Swapchain) (*VulkanSwapchain, error) {
	support := &context.Device.SwapchainSupport
	swapchain := &VulkanSwapchain{}

	// BGRA is what most surfaces offer, the copy swizzles in the shader
	swapchain.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		if (format.Format == vk.FormatB8g8r8a8Unorm || format.Format == vk.FormatR8g8b8a8Unorm) &&
			format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.ImageFormat = format
			if format.Format == vk.FormatR8g8b8a8Unorm {
				break
			}
		}
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	caps := support.Capabilities
	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	swapchain.Extent = extent

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	if context.Device.ComputeQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.ComputeQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	}

	if err := resultError(vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &swapchain.Handle), "vkCreateSwapchainKHR"); err != nil {
		return nil, err
	}

	if err := resultError(vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, nil), "vkGetSwapchainImagesKHR"); err != nil {
		return nil, err
	}
	swapchain.Images = make([]vk.Image, swapchain.ImageCount)
	if err := resultError(vk.GetSwapchainImages(context.Device.LogicalDevice, swapchain.Handle, &swapchain.ImageCount, swapchain.Images), "vkGetSwapchainImagesKHR"); err != nil {
		return nil, err
	}
	swapchain.presented = make([]bool, swapchain.ImageCount)

	core.LogInfo("Swapchain created: %dx%d, %d images, format %d.", extent.Width, extent.Height, swapchain.ImageCount, swapchain.ImageFormat.Format)
	return swapchain, nil
}

func clamp(v, lo, hi uint32) uint32 {
	return max(lo, min(v, hi))
}

// swizzles reports whether the swapchain stores blue first, in which case
// the shader writes BGRA so the raw copy lands the right way round.
func (vs *VulkanSwapchain) swizzles() bool {
	switch vs.ImageFormat.Format {
	case vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb:
		return true
	}
	return false
}
