package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/spaghettifunk/lumen/testbed"
	"github.com/urfave/cli"
)

// Flags shared by every command that starts the engine.
var engineFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Usage: "TOML configuration file, defaults are used when empty",
	},
	cli.IntFlag{
		Name:  "width",
		Usage: "surface width, overrides the config",
	},
	cli.IntFlag{
		Name:  "height",
		Usage: "surface height, overrides the config",
	},
	cli.IntFlag{
		Name:  "frames-in-flight",
		Usage: "number of frame slots, overrides the config",
	},
}

// loadConfig reads the config file, if any, and applies the command line
// overrides on top of it.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := ctx.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if w := ctx.Int("width"); w > 0 {
		cfg.Application.Width = uint32(w)
	}
	if h := ctx.Int("height"); h > 0 {
		cfg.Application.Height = uint32(h)
	}
	if n := ctx.Int("frames-in-flight"); n > 0 {
		cfg.Renderer.FramesInFlight = uint8(n)
	}
	if ctx.IsSet("backend") {
		cfg.Renderer.Backend = config.BackendType(ctx.String("backend"))
	}
	if level := ctx.GlobalString("log-level"); level != "" {
		cfg.Application.LogLevel = level
	}
	if ctx.GlobalBool("v") {
		cfg.Application.LogLevel = "info"
	}
	if ctx.GlobalBool("vv") {
		cfg.Application.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	core.SetLogLevel(cfg.Application.LogLevel)
	return cfg, nil
}

func startEngine(app *engine.ApplicationConfig) (*engine.Engine, error) {
	game, err := testbed.NewTestGame(app)
	if err != nil {
		return nil, err
	}
	e, err := engine.New(game.Game)
	if err != nil {
		return nil, err
	}
	if err := e.Initialize(); err != nil {
		// release whatever was created before the failure
		_ = e.Shutdown()
		return nil, err
	}
	return e, nil
}

// runEngine runs the frame loop until it ends or a signal asks to quit,
// then shuts the engine down.
func runEngine(e *engine.Engine) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	go func() {
		if _, ok := <-sigCh; ok {
			core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		}
	}()

	runErr := e.Run()
	if runErr != nil && core.IsFatal(runErr) {
		core.LogError("frame loop stopped: %s", runErr)
	}
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func displayFrameStats(stats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Stage", "Last frame"})
	table.AppendBulk([][]string{
		{"Fence wait", stats.Wait.String()},
		{"Refit", stats.Refit.String()},
		{"Record + submit", stats.Record.String()},
		{"Present", stats.Present.String()},
		{"Frame", stats.Frame.String()},
	})
	table.SetFooter([]string{fmt.Sprintf("%d frames, fence %d", stats.Frames, stats.LastFenceValue), "avg " + stats.Average.String()})
	table.Render()
	core.LogInfo("frame statistics\n%s", buf.String())
}
