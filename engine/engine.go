package engine

import (
	"fmt"
	"image"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/soft"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// messagePump is implemented by the window and the headless surface.
type messagePump interface {
	PumpMessages() bool
}

// windowSurface lets the soft backend present into a window: the window
// provides the size and the frames go to the recorder.
type windowSurface struct {
	*platform.Platform
	sink metadata.Presenter
}

func (w *windowSurface) PresentImage(frame *image.RGBA) {
	w.sink.PresentImage(frame)
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    bool
	isSuspended  bool
	isPaused     bool

	window       *platform.Platform
	headless     *platform.Headless
	surface      metadata.Surface
	pump         messagePump
	assetManager *assets.AssetManager
	renderer     *renderer.Renderer
	recorder     *renderer.FrameRecorder

	width     uint32
	height    uint32
	clock     *core.Clock
	lastTime  float64
	animTime  float64
	frames    uint64
	loopError error
}

// NewBackend returns the backend named in the config.
func NewBackend(kind config.BackendType) (renderer.RayTracingBackend, error) {
	switch kind {
	case config.BackendSoft:
		return soft.New(), nil
	case config.BackendVulkan:
		return vulkan.New(), nil
	}
	return nil, errors.Newf("unknown backend %q", kind)
}

func New(g *Game) (*Engine, error) {
	app := g.ApplicationConfig
	if app == nil || app.Config == nil {
		return nil, errors.New("game has no application config")
	}
	cfg := app.Config
	core.SetLogLevel(cfg.Application.LogLevel)

	backend, err := NewBackend(cfg.Renderer.Backend)
	if err != nil {
		return nil, err
	}
	if app.Headless && cfg.Renderer.Backend == config.BackendVulkan {
		return nil, core.CapabilityError("the vulkan backend needs a window")
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		assetManager: am,
		recorder:     renderer.NewFrameRecorder(cfg.Capture.Directory, cfg.Capture.EveryNFrame),
		clock:        core.NewClock(),
		isRunning:    true,
		width:        cfg.Application.Width,
		height:       cfg.Application.Height,
	}
	e.renderer = renderer.New(backend, renderer.OptionsFromConfig(cfg))
	g.Renderer = e.renderer

	if app.Headless {
		e.headless = platform.NewHeadless(e.width, e.height, e.recorder)
		e.surface = e.headless
		e.pump = e.headless
	} else {
		e.window = platform.New()
		e.pump = e.window
		if cfg.Renderer.Backend == config.BackendSoft {
			e.surface = &windowSurface{Platform: e.window, sink: e.recorder}
		} else {
			e.surface = e.window
		}
	}
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	app := e.gameInstance.ApplicationConfig
	cfg := app.Config

	if !core.EventSystemInitialize() {
		return errors.New("failed to initialize the event system")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e.onResized)
	core.EventRegister(core.EVENT_CODE_CONFIG_CHANGED, e.onConfigChanged)
	core.EventRegister(core.EVENT_CODE_SHADER_CHANGED, e.onShaderChanged)

	if e.window != nil {
		if err := e.window.Startup(cfg.Application.Name,
			cfg.Application.StartPosX,
			cfg.Application.StartPosY,
			cfg.Application.Width,
			cfg.Application.Height); err != nil {
			return core.InitError(err, "starting window")
		}
	}

	shaderPath := app.ShaderPath()
	if app.WatchAssets {
		watched := []string{shaderPath}
		if app.ConfigPath != "" {
			watched = append(watched, app.ConfigPath)
		}
		if err := e.assetManager.Initialize(watched...); err != nil {
			return core.InitError(err, "watching assets")
		}
	}
	library, err := e.assetManager.LoadAsset(shaderPath)
	if err != nil {
		return core.InitError(err, "loading shaders")
	}

	s, err := e.gameInstance.FnInitialize()
	if err != nil {
		return err
	}
	if err := e.renderer.Initialize(e.surface, s, library.Data); err != nil {
		return err
	}

	w, h := e.surface.FramebufferSize()
	e.width, e.height = w, h
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(w, h); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	app := e.gameInstance.ApplicationConfig

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		if !e.pump.PumpMessages() {
			e.isRunning = false
			break
		}
		// listeners run here, between frames
		core.EventDispatch()
		if e.loopError != nil {
			return e.loopError
		}
		if !e.isRunning {
			break
		}
		if e.isSuspended {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := core.GetAbsoluteTime()

		if !e.isPaused {
			if app.FixedTimeStep > 0 {
				e.animTime = float64(e.frames) * app.FixedTimeStep
			} else {
				e.animTime += delta
			}
		}

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta, e.animTime); err != nil {
				return errors.Wrap(err, "game update failed")
			}
		}
		if err := e.renderer.Draw(float32(e.animTime)); err != nil {
			return err
		}

		core.MetricsUpdate(core.GetAbsoluteTime() - frameStartTime)
		e.frames++
		if e.window != nil && e.frames%60 == 0 {
			e.window.Window.SetTitle(fmt.Sprintf("%s - %.0f fps", app.Config.Application.Name, core.MetricsFPS()))
		}
		if app.MaxFrames > 0 && e.frames >= app.MaxFrames {
			e.isRunning = false
		}
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs error
	if e.gameInstance.FnShutdown != nil {
		errs = errors.CombineErrors(errs, e.gameInstance.FnShutdown())
	}
	errs = errors.CombineErrors(errs, e.renderer.Shutdown())
	errs = errors.CombineErrors(errs, e.assetManager.Shutdown())
	if e.window != nil {
		errs = errors.CombineErrors(errs, e.window.Shutdown())
	}
	errs = errors.CombineErrors(errs, core.EventSystemShutdown())
	return errs
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Recorder() *renderer.FrameRecorder {
	return e.recorder
}

func (e *Engine) Frames() uint64 {
	return e.frames
}

// GetFramebufferSize returns the width and height (in this order) of the
// surface as of the last resize.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(context core.EventContext) {
	if context.Type == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
	}
}

func (e *Engine) onKey(context core.EventContext) {
	key, ok := context.Data.(*core.KeyEvent)
	if !ok {
		return
	}
	switch key.KeyCode {
	case core.KEY_ESCAPE:
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	case core.KEY_SPACE:
		e.isPaused = !e.isPaused
		core.LogInfo("animation paused: %t", e.isPaused)
	case core.KEY_R:
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_SHADER_CHANGED, Data: e.gameInstance.ApplicationConfig.ShaderPath()})
	}
}

func (e *Engine) onResized(context core.EventContext) {
	ev, ok := context.Data.(*core.SystemEvent)
	if !ok {
		return
	}
	if ev.WindowWidth == e.width && ev.WindowHeight == e.height && !e.isSuspended {
		return
	}
	e.width, e.height = ev.WindowWidth, ev.WindowHeight

	if e.width == 0 || e.height == 0 {
		core.LogInfo("window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.renderer.Resize(e.width, e.height); err != nil {
		e.loopError = err
		return
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			e.loopError = err
		}
	}
}

func (e *Engine) onConfigChanged(context core.EventContext) {
	path, _ := context.Data.(string)
	cfg, err := config.Load(path)
	if err != nil {
		core.LogError("ignoring config change: %s", err)
		return
	}
	core.SetLogLevel(cfg.Application.LogLevel)

	app := e.gameInstance.ApplicationConfig
	old := app.Config
	app.Config = cfg
	if old.Renderer.Backend != cfg.Renderer.Backend {
		core.LogWarn("backend changes take effect on restart")
	}
	if cfg.Application.Width != old.Application.Width || cfg.Application.Height != old.Application.Height {
		switch {
		case e.headless != nil:
			e.headless.SetSize(cfg.Application.Width, cfg.Application.Height)
		case e.window != nil:
			e.window.Window.SetSize(int(cfg.Application.Width), int(cfg.Application.Height))
		}
	}
	core.LogInfo("config reloaded from %s", path)
}

func (e *Engine) onShaderChanged(context core.EventContext) {
	path, _ := context.Data.(string)
	blob, err := e.assetManager.LoadAsset(path)
	if err != nil {
		core.LogError("ignoring shader change: %s", err)
		return
	}
	if err := e.renderer.ReloadPipeline(blob.Data); err != nil {
		core.LogError("%s", err)
		for _, hint := range errors.GetAllHints(err) {
			core.LogWarn(hint)
		}
	}
}
