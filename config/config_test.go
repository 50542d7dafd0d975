package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if cfg.Screen.Width != 1024 || cfg.Screen.Height != 768 {
		t.Errorf("unexpected default screen size %dx%d",
			cfg.Screen.Width, cfg.Screen.Height)
	}
	if cfg.Particles.Count != 8192 {
		t.Errorf("unexpected default particle count %d", cfg.Particles.Count)
	}
	if cfg.Particles.WorkgroupSize != 256 {
		t.Errorf("unexpected default workgroup size %d", cfg.Particles.WorkgroupSize)
	}
	if cfg.Frames.InFlight != 2 {
		t.Errorf("unexpected default frames in flight %d", cfg.Frames.InFlight)
	}
	if cfg.Emitter.FromModel {
		t.Error("emitter should default to the disc seeder")
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
particles:
  count: 500
frames:
  in_flight: 3
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if cfg.Particles.Count != 500 {
		t.Errorf("override not applied, count is %d", cfg.Particles.Count)
	}
	if cfg.Frames.InFlight != 3 {
		t.Errorf("override not applied, in flight is %d", cfg.Frames.InFlight)
	}

	// Values the overlay does not mention keep their defaults.
	if cfg.Screen.Width != 1024 {
		t.Errorf("default screen width lost, got %d", cfg.Screen.Width)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "no-such.yaml"))
	if err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"zero particles":      "particles:\n  count: 0\n",
		"zero workgroup":      "particles:\n  workgroup_size: 0\n",
		"one frame in flight": "frames:\n  in_flight: 1\n",
		"negative timeout":    "frames:\n  fence_timeout_ms: -1\n",
		"zero screen width":   "screen:\n  width: 0\n",
	}

	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
				t.Fatal(err)
			}

			if _, err := Load(path); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestFenceTimeout(t *testing.T) {
	f := FramesConfig{FenceTimeoutMs: 5000}
	if f.FenceTimeout() != 5*time.Second {
		t.Errorf("unexpected timeout %s", f.FenceTimeout())
	}

	f = FramesConfig{FenceTimeoutMs: 0}
	if f.FenceTimeout() != 0 {
		t.Errorf("zero ms should map to zero duration, got %s", f.FenceTimeout())
	}
}
