package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[application]
width = 320
height = 200

[renderer]
backend = "Soft"
frames_in_flight = 3
wait_for_completion = false

[soft]
report_zero_update_scratch = true
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Application.Width != 320 || cfg.Application.Height != 200 {
		t.Fatalf("expected 320x200; got %dx%d", cfg.Application.Width, cfg.Application.Height)
	}
	if cfg.Renderer.Backend != BackendSoft {
		t.Fatalf("expected backend to be normalized to %q; got %q", BackendSoft, cfg.Renderer.Backend)
	}
	if cfg.Renderer.FramesInFlight != 3 {
		t.Fatalf("expected 3 frames in flight; got %d", cfg.Renderer.FramesInFlight)
	}
	if cfg.Renderer.WaitForCompletion {
		t.Fatal("expected wait_for_completion to be disabled")
	}
	if !cfg.Soft.ReportZeroUpdateScratch {
		t.Fatal("expected report_zero_update_scratch to be enabled")
	}
	if cfg.Renderer.FenceTimeoutMS != Default().Renderer.FenceTimeoutMS {
		t.Fatalf("expected default fence timeout; got %d", cfg.Renderer.FenceTimeoutMS)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	specs := []string{
		"[renderer]\nbackend = \"metal\"\n",
		"[renderer]\nframes_in_flight = 0\n",
		"[renderer]\nframes_in_flight = 4\n",
		"[application]\nwidth = 0\n",
		"[renderer]\nfence_timeout_ms = 0\n",
		"[soft]\nworkers = -1\n",
		"[application\nwidth = 10\n",
	}
	for specIndex, spec := range specs {
		if _, err := Parse([]byte(spec)); err == nil {
			t.Fatalf("[spec %d] expected an error", specIndex)
		}
	}
}

func TestLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Application.Name = "roundtrip"
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "lumen.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Application.Name != "roundtrip" {
		t.Fatalf("expected name %q; got %q", "roundtrip", loaded.Application.Name)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
