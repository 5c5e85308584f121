package cmd

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/urfave/cli"
)

var RenderFlags = append([]cli.Flag{
	cli.Uint64Flag{
		Name:  "frames, n",
		Value: 3,
		Usage: "number of frames to render",
	},
	cli.Float64Flag{
		Name:  "step",
		Value: 1.0 / 60,
		Usage: "animation time step per frame in seconds",
	},
	cli.StringFlag{
		Name:  "out, o",
		Value: "frames",
		Usage: "directory the BMP frames are written to",
	},
	cli.Uint64Flag{
		Name:  "every",
		Value: 1,
		Usage: "capture every Nth frame, 0 keeps only the last one",
	},
}, engineFlags...)

// Render runs the soft backend offscreen for a fixed number of frames and
// dumps the presented images.
func Render(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	cfg.Renderer.Backend = config.BackendSoft
	cfg.Capture.Directory = ctx.String("out")
	cfg.Capture.EveryNFrame = ctx.Uint64("every")
	if err := os.MkdirAll(cfg.Capture.Directory, 0o755); err != nil {
		return errors.Wrapf(err, "creating output directory %s", cfg.Capture.Directory)
	}

	frames := ctx.Uint64("frames")
	if frames == 0 {
		return errors.New("--frames must be at least 1")
	}
	app := &engine.ApplicationConfig{
		Config:        cfg,
		ConfigPath:    ctx.String("config"),
		Headless:      true,
		MaxFrames:     frames,
		FixedTimeStep: ctx.Float64("step"),
	}
	e, err := startEngine(app)
	if err != nil {
		return err
	}
	if err := runEngine(e); err != nil {
		return err
	}
	displayFrameStats(e.Renderer().Stats())

	written, err := e.Recorder().Written()
	if err != nil {
		return err
	}
	last, err := e.Recorder().Flush("last.bmp")
	if err != nil {
		return err
	}
	core.LogInfo("%d frames written to %s, last frame at %s", len(written), cfg.Capture.Directory, last)
	return nil
}
