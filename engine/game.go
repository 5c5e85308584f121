package engine

import (
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/scene"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Set by the engine once the renderer is initialized.
	Renderer     *renderer.Renderer
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Initialize returns the scene the renderer is built for. Its object count
// is fixed for the lifetime of the engine.
type Initialize func() (*scene.Scene, error)

// Update runs before every frame. t is the animation time in seconds.
type Update func(deltaTime float64, t float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
