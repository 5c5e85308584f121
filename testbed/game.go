package testbed

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/shaders"
	"github.com/spaghettifunk/lumen/engine/scene"
)

// Object masks. Every object is visible to every ray.
const maskAll uint8 = 0x01

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	frames    uint64
	statsEach uint64
}

func NewTestGame(app *engine.ApplicationConfig) (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: app,
			State:             &gameState{statsEach: 300},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

// QuadMesh is a unit quad in the XZ plane, two triangles without indices.
func QuadMesh() *metadata.GeometryDesc {
	return &metadata.GeometryDesc{
		Name:     "quad",
		Vertices: []float32{-1, 0, -1, -1, 0, 1, 1, 0, 1, -1, 0, -1, 1, 0, -1, 1, 0, 1},
		Opaque:   true,
	}
}

// CubeMesh is a 2x2x2 cube: 8 vertices, 36 uint16 indices, faces ordered
// -x -y -z +x +y +z.
func CubeMesh() *metadata.GeometryDesc {
	return &metadata.GeometryDesc{
		Name:     "cube",
		Vertices: []float32{-1, -1, -1, 1, -1, -1, -1, 1, -1, 1, 1, -1, -1, -1, 1, 1, -1, 1, -1, 1, 1, 1, 1, 1},
		Indices: []uint32{
			4, 6, 0, 2, 0, 6, 0, 1, 4, 5, 4, 1,
			0, 2, 1, 3, 1, 2, 1, 3, 5, 7, 5, 3,
			2, 6, 3, 7, 3, 6, 4, 5, 6, 7, 6, 5,
		},
		IndexFormat: metadata.IndexFormatUint16,
		Opaque:      true,
	}
}

func cubeAnimation(t float32) mgl32.Mat4 {
	return math.Compose(math.RotationRollPitchYaw(t/2, t/3, t/5), mgl32.Translate3D(-1.5, 2, 2))
}

func mirrorAnimation(t float32) mgl32.Mat4 {
	return math.Compose(mgl32.HomogRotate3DX(-1.8), mgl32.HomogRotate3DY(math.Sin(t)/8+1), mgl32.Translate3D(2, 2, 2))
}

// DemoScene is a spinning cube, a swaying mirror and a checkered floor.
// Instance ids match the materials of the scene shaders.
func DemoScene() *scene.Scene {
	return &scene.Scene{
		Name:   "cube-mirror-floor",
		Meshes: []*metadata.GeometryDesc{CubeMesh(), QuadMesh()},
		Objects: []scene.Object{
			{Name: "cube", Mesh: "cube", InstanceID: shaders.InstanceCube, Mask: maskAll, Animate: cubeAnimation},
			{Name: "mirror", Mesh: "quad", InstanceID: shaders.InstanceMirror, Mask: maskAll, Animate: mirrorAnimation},
			{
				Name:       "floor",
				Mesh:       "quad",
				InstanceID: shaders.InstanceFloor,
				Mask:       maskAll,
				Animate:    scene.Static(math.Compose(mgl32.Scale3D(5, 5, 5), mgl32.Translate3D(0, 0, 2))),
			},
		},
	}
}

func (g *TestGame) Initialize() (*scene.Scene, error) {
	core.LogDebug("TestGame Initialize fn....")
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, g.gameOnKey)
	s := DemoScene()
	core.LogInfo("scene %s: %d meshes, %d objects", s.Name, len(s.Meshes), len(s.Objects))
	return s, nil
}

func (g *TestGame) Update(deltaTime float64, t float64) error {
	state := g.State.(*gameState)
	state.frames++
	if state.statsEach > 0 && state.frames%state.statsEach == 0 && g.Renderer != nil {
		stats := g.Renderer.Stats()
		core.LogDebug("frame %d: t=%.2fs refit %s, record %s, average %s", stats.Frames, t, stats.Refit, stats.Record, stats.Average)
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width, state.height = width, height
	core.LogDebug("testbed resized to %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	core.LogInfo("testbed shutting down after %d frames", state.frames)
	return nil
}

func (g *TestGame) gameOnKey(context core.EventContext) {
	key, ok := context.Data.(*core.KeyEvent)
	if !ok || g.Renderer == nil {
		return
	}
	if key.KeyCode == core.KEY_I {
		info := g.Renderer.Backend().Info()
		stats := g.Renderer.Stats()
		core.LogInfo("%s on %s: %d frames, fence %d, average %s", info.Backend, info.DeviceName, stats.Frames, stats.LastFenceValue, stats.Average)
	}
}
