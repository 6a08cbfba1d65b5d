package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/prismatik/lumen/engine/core"
)

// Config drives renderer startup. All fields have working defaults so an
// empty file (or no file at all) yields a usable configuration.
type Config struct {
	// The application name used for windowing and the Vulkan instance.
	AppName string `toml:"app_name"`
	// Window starting width and height in pixels.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	// FramesInFlight is the frame-overlap depth N: how many frames the CPU
	// may prepare ahead of the GPU. Clamped to [2, 3].
	FramesInFlight int `toml:"frames_in_flight"`
	// MinBlockSize is the minimum size of a device memory block in bytes.
	// Sub-allocations are carved out of blocks of at least this size.
	MinBlockSize uint64 `toml:"min_block_size"`
	// PresentMode selects how presentation paces frames: "fifo" (vsync) or
	// "mailbox" (low latency, falls back to fifo when unsupported).
	PresentMode string `toml:"present_mode"`
	// ShaderDir is where compiled shader binaries live; watched for changes
	// to prewarm rebuilt pipelines.
	ShaderDir string `toml:"shader_dir"`
	// Validation enables the Vulkan validation layer and debug messenger.
	Validation bool   `toml:"validation"`
	LogLevel   string `toml:"log_level"`
}

func Default() *Config {
	return &Config{
		AppName:        "Lumen",
		Width:          1280,
		Height:         720,
		FramesInFlight: 2,
		MinBlockSize:   64 * 1024 * 1024,
		PresentMode:    "fifo",
		ShaderDir:      "shaders",
		LogLevel:       "info",
	}
}

// Load reads a TOML config file, filling missing fields with defaults. A
// missing file is not an error; it returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogInfo("no config at %s, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	def := Default()
	if c.AppName == "" {
		c.AppName = def.AppName
	}
	if c.Width == 0 {
		c.Width = def.Width
	}
	if c.Height == 0 {
		c.Height = def.Height
	}
	if c.FramesInFlight < 2 {
		c.FramesInFlight = 2
	}
	if c.FramesInFlight > 3 {
		c.FramesInFlight = 3
	}
	if c.MinBlockSize == 0 {
		c.MinBlockSize = def.MinBlockSize
	}
	if c.PresentMode != "mailbox" {
		c.PresentMode = "fifo"
	}
	if c.ShaderDir == "" {
		c.ShaderDir = def.ShaderDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}
