package cmd

import (
	"github.com/spaghettifunk/lumen/engine"
	"github.com/urfave/cli"
)

var WindowFlags = append([]cli.Flag{
	cli.StringFlag{
		Name:   "backend, b",
		Value:  "soft",
		Usage:  "ray tracing backend: soft or vulkan",
		EnvVar: "LUMEN_BACKEND",
	},
	cli.BoolFlag{
		Name:  "watch, w",
		Usage: "reload the config file and the shaders when they change",
	},
	cli.Uint64Flag{
		Name:  "frames, n",
		Usage: "stop after this many frames, 0 runs until the window is closed",
	},
}, engineFlags...)

// Window renders the demo scene into a GLFW window until it is closed.
func Window(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	app := &engine.ApplicationConfig{
		Config:      cfg,
		ConfigPath:  ctx.String("config"),
		MaxFrames:   ctx.Uint64("frames"),
		WatchAssets: ctx.Bool("watch"),
	}
	e, err := startEngine(app)
	if err != nil {
		return err
	}
	if err := runEngine(e); err != nil {
		return err
	}
	displayFrameStats(e.Renderer().Stats())
	return nil
}
