package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

type BackendType string

const (
	BackendSoft   BackendType = "soft"
	BackendVulkan BackendType = "vulkan"
)

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position, if applicable.
	StartPosX uint32 `toml:"start_pos_x"`
	StartPosY uint32 `toml:"start_pos_y"`
	// Surface starting size.
	Width    uint32 `toml:"width"`
	Height   uint32 `toml:"height"`
	LogLevel string `toml:"log_level"`
}

type RendererConfig struct {
	Backend        BackendType `toml:"backend"`
	FramesInFlight uint8       `toml:"frames_in_flight"`
	FenceTimeoutMS uint32      `toml:"fence_timeout_ms"`
	// Block on every submission before presenting. When off the frame loop
	// still waits for the previous submission before touching instance data.
	WaitForCompletion bool   `toml:"wait_for_completion"`
	ShaderLibrary     string `toml:"shader_library"`
	// Lower bound for the TLAS update scratch buffer. Zero means the backend default.
	MinUpdateScratch uint64 `toml:"min_update_scratch"`
}

type SoftConfig struct {
	Workers        int    `toml:"workers"`
	MemoryBudgetMB uint64 `toml:"memory_budget_mb"`
	TileSize       uint32 `toml:"tile_size"`
	// Emulates drivers that report a zero update scratch size.
	ReportZeroUpdateScratch bool `toml:"report_zero_update_scratch"`
}

type VulkanConfig struct {
	Validation bool   `toml:"validation"`
	ShaderPath string `toml:"shader_path"`
}

type CaptureConfig struct {
	Directory   string `toml:"directory"`
	EveryNFrame uint64 `toml:"every_n_frames"`
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Soft        SoftConfig        `toml:"soft"`
	Vulkan      VulkanConfig      `toml:"vulkan"`
	Capture     CaptureConfig     `toml:"capture"`
}

func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:      "Lumen",
			StartPosX: 100,
			StartPosY: 100,
			Width:     1280,
			Height:    720,
			LogLevel:  "info",
		},
		Renderer: RendererConfig{
			Backend:           BackendSoft,
			FramesInFlight:    2,
			FenceTimeoutMS:    10000,
			WaitForCompletion: true,
			ShaderLibrary:     "assets/shaders/scene.lsl",
		},
		Soft: SoftConfig{
			Workers:        0,
			MemoryBudgetMB: 512,
			TileSize:       16,
		},
		Vulkan: VulkanConfig{
			Validation: false,
			ShaderPath: "assets/shaders/raytrace.comp.spv",
		},
		Capture: CaptureConfig{
			Directory:   "",
			EveryNFrame: 0,
		},
	}
}

// Load reads a TOML file on top of the defaults. Keys missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read config file %s", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, errors.Wrapf(err, "invalid config at line %d column %d", row, col)
		}
		return nil, errors.Wrap(err, "invalid config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	c.Renderer.Backend = BackendType(strings.ToLower(string(c.Renderer.Backend)))
	switch c.Renderer.Backend {
	case BackendSoft, BackendVulkan:
	default:
		return errors.WithHint(
			errors.Newf("unknown renderer backend %q", c.Renderer.Backend),
			"valid backends are \"soft\" and \"vulkan\"",
		)
	}
	if c.Renderer.FramesInFlight < 1 || c.Renderer.FramesInFlight > 3 {
		return errors.Newf("frames_in_flight must be between 1 and 3, got %d", c.Renderer.FramesInFlight)
	}
	if c.Renderer.FenceTimeoutMS == 0 {
		return errors.New("fence_timeout_ms must be greater than zero")
	}
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return errors.Newf("invalid surface size %dx%d", c.Application.Width, c.Application.Height)
	}
	if c.Soft.Workers < 0 {
		return errors.Newf("soft.workers must not be negative, got %d", c.Soft.Workers)
	}
	if c.Soft.TileSize == 0 {
		c.Soft.TileSize = 16
	}
	return nil
}

// Marshal renders the configuration back to TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
