package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/lumen/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice    vk.PhysicalDevice
	LogicalDevice     vk.Device
	SwapchainSupport  VulkanSwapchainSupportInfo
	ComputeQueueIndex int32
	PresentQueueIndex int32

	ComputeQueue vk.Queue
	PresentQueue vk.Queue

	ComputeCommandPool vk.CommandPool

	Name       string
	Properties vk.PhysicalDeviceProperties
	Memory     vk.PhysicalDeviceMemoryProperties
	// sum of the device local heaps
	LocalMemory uint64
}

type VulkanPhysicalDeviceRequirements struct {
	Compute              bool
	Present              bool
	DeviceExtensionNames []string
	StorageImageFormat   vk.Format
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	ComputeFamilyIndex int32
	PresentFamilyIndex int32
}

func DeviceCreate(context *VulkanContext) error {
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}
	device := context.Device
	core.LogInfo("Creating logical device...")

	indices := []uint32{uint32(device.ComputeQueueIndex)}
	if device.PresentQueueIndex != device.ComputeQueueIndex {
		indices = append(indices, uint32(device.PresentQueueIndex))
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if hasDeviceExtension(device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}
	if err := resultError(vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device.LogicalDevice), "vkCreateDevice"); err != nil {
		return err
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.ComputeQueueIndex), 0, &device.ComputeQueue)
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.PresentQueueIndex), 0, &device.PresentQueue)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(device.ComputeQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := resultError(vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &device.ComputeCommandPool), "vkCreateCommandPool"); err != nil {
		return err
	}
	core.LogInfo("Compute command pool created.")
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}
	device.ComputeQueue = nil
	device.PresentQueue = nil

	if device.ComputeCommandPool != vk.NullCommandPool {
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(device.LogicalDevice, device.ComputeCommandPool, context.Allocator)
		device.ComputeCommandPool = vk.NullCommandPool
	}
	if device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}
	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	device.ComputeQueueIndex = -1
	device.PresentQueueIndex = -1
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if err := resultError(vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities), "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return err
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	if err := resultError(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return err
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
	if supportInfo.FormatCount != 0 {
		if err := resultError(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
			return err
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	if err := resultError(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return err
	}
	supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
	if supportInfo.PresentModeCount != 0 {
		if err := resultError(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
			return err
		}
	}
	return nil
}

func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if err := resultError(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		return core.CapabilityError("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := resultError(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Compute:              true,
		Present:              true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
		StorageImageFormat:   vk.FormatR8g8b8a8Unorm,
	}

	var rejected []string
	for _, physicalDevice := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
		properties.Deref()
		properties.Limits.Deref()
		name := cString(properties.DeviceName[:])

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
		memory.Deref()

		queueInfo, reason := PhysicalDeviceMeetsRequirements(physicalDevice, context.Surface, &requirements, &context.Device.SwapchainSupport)
		if reason != "" {
			core.LogInfo("Skipping device '%s': %s.", name, reason)
			rejected = append(rejected, fmt.Sprintf("%s: %s", name, reason))
			continue
		}

		core.LogInfo("Selected device: '%s'.", name)
		switch properties.DeviceType {
		case vk.PhysicalDeviceTypeIntegratedGpu:
			core.LogInfo("GPU type is Integrated.")
		case vk.PhysicalDeviceTypeDiscreteGpu:
			core.LogInfo("GPU type is Discrete.")
		case vk.PhysicalDeviceTypeVirtualGpu:
			core.LogInfo("GPU type is Virtual.")
		case vk.PhysicalDeviceTypeCpu:
			core.LogInfo("GPU type is CPU.")
		default:
			core.LogInfo("GPU type is Unknown.")
		}
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version(properties.ApiVersion).Major(),
			vk.Version(properties.ApiVersion).Minor(),
			vk.Version(properties.ApiVersion).Patch(),
		)

		var local uint64
		for j := uint32(0); j < memory.MemoryHeapCount; j++ {
			memory.MemoryHeaps[j].Deref()
			heap := memory.MemoryHeaps[j]
			sizeMiB := uint64(heap.Size) / 1024 / 1024
			if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
				local += uint64(heap.Size)
				core.LogInfo("Local GPU memory: %d MiB", sizeMiB)
			} else {
				core.LogInfo("Shared System memory: %d MiB", sizeMiB)
			}
		}

		context.Device.PhysicalDevice = physicalDevice
		context.Device.ComputeQueueIndex = queueInfo.ComputeFamilyIndex
		context.Device.PresentQueueIndex = queueInfo.PresentFamilyIndex
		context.Device.Name = name
		context.Device.Properties = properties
		context.Device.Memory = memory
		context.Device.LocalMemory = local
		return nil
	}
	return core.CapabilityError("no physical device has a compute queue that can present: %v", rejected)
}

// PhysicalDeviceMeetsRequirements returns the chosen queue families, or a
// non empty reason when the device cannot run the renderer.
func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, requirements *VulkanPhysicalDeviceRequirements, outSwapchainSupport *VulkanSwapchainSupportInfo) (VulkanPhysicalDeviceQueueFamilyInfo, string) {
	info := VulkanPhysicalDeviceQueueFamilyInfo{ComputeFamilyIndex: -1, PresentFamilyIndex: -1}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	core.LogDebug("Compute | Present | Family")
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		compute := queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0

		var supportsPresent vk.Bool32
		if err := resultError(vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent), "vkGetPhysicalDeviceSurfaceSupport"); err != nil {
			return info, err.Error()
		}
		present := supportsPresent == vk.True
		core.LogDebug("   %5t |   %5t | %d", compute, present, i)

		// a family that does both avoids sharing the swapchain images
		if compute && present {
			info.ComputeFamilyIndex = int32(i)
			info.PresentFamilyIndex = int32(i)
			break
		}
		if compute && info.ComputeFamilyIndex < 0 {
			info.ComputeFamilyIndex = int32(i)
		}
		if present && info.PresentFamilyIndex < 0 {
			info.PresentFamilyIndex = int32(i)
		}
	}
	if requirements.Compute && info.ComputeFamilyIndex < 0 {
		return info, "no compute queue"
	}
	if requirements.Present && info.PresentFamilyIndex < 0 {
		return info, "no queue can present to the surface"
	}

	if err := DeviceQuerySwapchainSupport(device, surface, outSwapchainSupport); err != nil {
		return info, err.Error()
	}
	if outSwapchainSupport.FormatCount < 1 || outSwapchainSupport.PresentModeCount < 1 {
		return info, "required swapchain support not present"
	}
	usage := vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	if outSwapchainSupport.Capabilities.SupportedUsageFlags&usage != usage {
		return info, "swapchain images cannot be copy destinations"
	}

	for _, ext := range requirements.DeviceExtensionNames {
		if !hasDeviceExtension(device, ext) {
			return info, fmt.Sprintf("required extension %s not found", ext)
		}
	}

	var formatProperties vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(device, requirements.StorageImageFormat, &formatProperties)
	formatProperties.Deref()
	storage := vk.FormatFeatureFlags(vk.FormatFeatureStorageImageBit)
	if formatProperties.OptimalTilingFeatures&storage != storage {
		return info, "RGBA8 storage images are not supported"
	}
	return info, ""
}

func hasDeviceExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(device, "", &count, nil) != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(device, "", &count, available) != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}
