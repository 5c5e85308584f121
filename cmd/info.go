package cmd

import (
	"bytes"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer"
	"github.com/urfave/cli"
)

var InfoFlags = append([]cli.Flag{
	cli.StringFlag{
		Name:   "backend, b",
		Value:  "soft",
		Usage:  "ray tracing backend: soft or vulkan",
		EnvVar: "LUMEN_BACKEND",
	},
}, engineFlags...)

// Info initializes the demo scene on a backend and prints its limits and
// acceleration structure sizes.
func Info(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	app := &engine.ApplicationConfig{
		Config:   cfg,
		Headless: cfg.Renderer.Backend == config.BackendSoft,
	}
	e, err := startEngine(app)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Shutdown(); err != nil {
			core.LogError("shutdown: %s", err)
		}
	}()

	r := e.Renderer()
	fmt.Print(deviceTable(r.Backend()))
	sizes, err := structureTable(r)
	if err != nil {
		return err
	}
	fmt.Print(sizes)
	return nil
}

func deviceTable(backend renderer.RayTracingBackend) string {
	info := backend.Info()
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Property", "Value"})
	table.AppendBulk([][]string{
		{"Backend", info.Backend},
		{"Device", info.DeviceName},
		{"Max trace recursion depth", fmt.Sprintf("%d", info.MaxTraceRecursionDepth)},
		{"Shader identifier size", fmt.Sprintf("%d", info.ShaderIdentifierSize)},
		{"Shader table alignment", fmt.Sprintf("%d", info.ShaderTableAlignment)},
		{"Min update scratch", fmt.Sprintf("%d", info.MinUpdateScratchSize)},
		{"Memory budget", fmt.Sprintf("%d MiB", info.MemoryBudget>>20)},
		{"Workers", fmt.Sprintf("%d", info.Workers)},
	})
	table.Render()
	return buf.String()
}

// structureTable compares the prebuild sizes the device reports with the
// sizes the renderer built the scene with.
func structureTable(r *renderer.Renderer) (string, error) {
	backend := r.Backend()
	count := r.Instances().Count()
	probe, err := backend.CreateInstanceBuffer(count)
	if err != nil {
		return "", err
	}
	defer probe.Release()
	prebuild, err := backend.TLASPrebuildInfo(probe)
	if err != nil {
		return "", err
	}
	built := r.TLAS().Handle()

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"TLAS", "Result", "Scratch", "Update scratch"})
	table.Append([]string{
		fmt.Sprintf("prebuild, %d instances", count),
		fmt.Sprintf("%d", prebuild.ResultDataMaxSize),
		fmt.Sprintf("%d", prebuild.ScratchDataSize),
		fmt.Sprintf("%d", prebuild.UpdateScratchDataSize),
	})
	table.Append([]string{
		fmt.Sprintf("built, %s", r.TLAS().State()),
		fmt.Sprintf("%d", built.ResultSize),
		"-",
		fmt.Sprintf("%d", built.UpdateScratchSize),
	})
	table.SetFooter([]string{"", "", "floor", fmt.Sprintf("%d", backend.MinimumUpdateScratchSize())})
	table.Render()
	return buf.String(), nil
}
