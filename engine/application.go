package engine

import (
	"github.com/spaghettifunk/lumen/engine/config"
)

type ApplicationConfig struct {
	Config *config.Config
	// Path of the config file, watched for changes when WatchAssets is set.
	ConfigPath string
	// Render offscreen instead of opening a window.
	Headless bool
	// Stop after this many frames. 0 runs until the window is closed.
	MaxFrames uint64
	// Advance animation time by a fixed step per frame instead of the wall
	// clock. Headless runs use it to produce repeatable frames.
	FixedTimeStep float64
	// Hot reload the config file and the shader library.
	WatchAssets bool
}

// ShaderPath is the pipeline blob of the configured backend.
func (a *ApplicationConfig) ShaderPath() string {
	if a.Config.Renderer.Backend == config.BackendVulkan {
		return a.Config.Vulkan.ShaderPath
	}
	return a.Config.Renderer.ShaderLibrary
}
