package metadata

import (
	"image"
	"time"
)

type PixelFormat uint8

const (
	PixelFormatRGBA8 PixelFormat = iota
	PixelFormatBGRA8
)

/**
 * @brief Output image of the ray dispatch, sized to the surface.
 */
type RenderTarget struct {
	Handle
	Width  uint32
	Height uint32
	Format PixelFormat
	/** @brief Descriptor slot of the output image binding. */
	UAVIndex uint32
	/** @brief False once the binding was invalidated by a resize. */
	UAVValid bool
	/** @brief Incremented every time the target is recreated. */
	Generation   uint64
	InternalData interface{}
}

/**
 * @brief Surface the renderer presents to. Supplied by the host.
 */
type Surface interface {
	FramebufferSize() (uint32, uint32)
}

/**
 * @brief Optional: surfaces that want a copy of every presented frame.
 */
type Presenter interface {
	PresentImage(frame *image.RGBA)
}

/**
 * @brief Optional: surfaces that can back a Vulkan swapchain.
 */
type VulkanSurface interface {
	Surface
	RequiredInstanceExtensions() []string
	CreateVulkanSurface(instance interface{}) (uintptr, error)
}

type BackendConfig struct {
	ApplicationName string
	FramesInFlight  uint8
	FenceTimeout    time.Duration
	Validation      bool
	// soft backend
	Workers                 int
	MemoryBudget            uint64
	TileSize                uint32
	ReportZeroUpdateScratch bool
	// vulkan backend
	ShaderPath string
}

/**
 * @brief Static facts about the device, used by diagnostics.
 */
type DeviceInfo struct {
	Backend                string
	DeviceName             string
	MaxTraceRecursionDepth uint32
	ShaderIdentifierSize   uint64
	ShaderTableAlignment   uint64
	MinUpdateScratchSize   uint64
	MemoryBudget           uint64
	Workers                int
}
