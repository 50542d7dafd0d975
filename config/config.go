// Package config provides configuration loading and access for the particle
// program.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all runtime parameters of the program.
type Config struct {
	Screen    ScreenConfig    `yaml:"screen"`
	Particles ParticlesConfig `yaml:"particles"`
	Frames    FramesConfig    `yaml:"frames"`
	Emitter   EmitterConfig   `yaml:"emitter"`
}

// ScreenConfig holds the window dimensions.
type ScreenConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ParticlesConfig sizes the simulation.
type ParticlesConfig struct {
	Count int `yaml:"count"`

	// WorkgroupSize is the compute shader local size. It must match
	// local_size_x in the compiled shader; it is only used for sizing the
	// dispatch on the host.
	WorkgroupSize int `yaml:"workgroup_size"`
}

// FramesConfig controls the frame pipelining.
type FramesConfig struct {
	InFlight       int `yaml:"in_flight"`
	FenceTimeoutMs int `yaml:"fence_timeout_ms"`
}

// EmitterConfig selects how initial particle state is seeded.
type EmitterConfig struct {
	FromModel bool `yaml:"from_model"`
}

// FenceTimeout returns the configured fence wait bound as a duration. Zero
// means wait without bound.
func (f FramesConfig) FenceTimeout() time.Duration {
	return time.Duration(f.FenceTimeoutMs) * time.Millisecond
}

// Load parses the embedded defaults and then, if path is not empty, overlays
// the YAML file at path on top of them.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Screen.Width < 1 || c.Screen.Height < 1 {
		return fmt.Errorf("screen size %dx%d is not positive",
			c.Screen.Width, c.Screen.Height)
	}
	if c.Particles.Count < 1 {
		return fmt.Errorf("particle count %d is not positive", c.Particles.Count)
	}
	if c.Particles.WorkgroupSize < 1 {
		return fmt.Errorf("workgroup size %d is not positive",
			c.Particles.WorkgroupSize)
	}
	if c.Frames.InFlight < 2 {
		// With a single slot the compute pass would read the same buffer it
		// writes; the buffer pairing needs at least two.
		return fmt.Errorf("frames in flight must be at least 2, got %d",
			c.Frames.InFlight)
	}
	if c.Frames.FenceTimeoutMs < 0 {
		return fmt.Errorf("fence timeout %dms is negative", c.Frames.FenceTimeoutMs)
	}
	return nil
}
