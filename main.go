/*
lumen renders an animated scene through a ray tracing acceleration
structure, on the soft device or on Vulkan compute.
*/
package main

import (
	"os"

	"github.com/spaghettifunk/lumen/cmd"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "lumen"
	app.Usage = "ray trace an animated scene with per frame TLAS refits"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:   "log-level",
			Usage:  "debug, info, warn or error, overrides the config",
			EnvVar: "LUMEN_LOG_LEVEL",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render frames offscreen with the soft backend",
			Description: `
Render the demo scene headless for a fixed number of frames, advancing the
animation by a fixed step, and write the presented frames as BMP files.`,
			Flags:  cmd.RenderFlags,
			Action: cmd.Render,
		},
		{
			Name:   "window",
			Usage:  "render the demo scene into a window",
			Flags:  cmd.WindowFlags,
			Action: cmd.Window,
		},
		{
			Name:   "info",
			Usage:  "print device limits and acceleration structure sizes",
			Flags:  cmd.InfoFlags,
			Action: cmd.Info,
		},
		{
			Name:   "library",
			Usage:  "write the soft backend shader library",
			Flags:  cmd.LibraryFlags,
			Action: cmd.Library,
		},
	}

	if err := app.Run(os.Args); err != nil {
		core.LogError("%+v", err)
		os.Exit(1)
	}
}
