package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/constraints"

	"github.com/spaghettifunk/vitro/engine/core"
)

/**
 * @brief Application-level settings: window identity and dimensions.
 */
type ApplicationConfig struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

/**
 * @brief Renderer-level toggles. PushDescriptors and UpdateTemplates select
 * the descriptor fast paths; both fall back to legal slower modes when off
 * or unsupported by the device.
 */
type RendererConfig struct {
	Validation      bool   `toml:"validation"`
	PushDescriptors bool   `toml:"push_descriptors"`
	UpdateTemplates bool   `toml:"update_templates"`
	FramesInFlight  uint32 `toml:"frames_in_flight"`
	LogLevel        string `toml:"log_level"`
}

/**
 * @brief Descriptor pool sizing. PoolSetCapacity is the hard per-pool set
 * count every pool grows toward (10, 100, ... capacity).
 */
type DescriptorConfig struct {
	PoolSetCapacity uint32 `toml:"pool_set_capacity"`
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
	Descriptors DescriptorConfig  `toml:"descriptors"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:   "Vitro",
			Width:  1280,
			Height: 720,
		},
		Renderer: RendererConfig{
			Validation:      false,
			PushDescriptors: true,
			UpdateTemplates: true,
			FramesInFlight:  2,
			LogLevel:        "debug",
		},
		Descriptors: DescriptorConfig{
			PoolSetCapacity: 100,
		},
	}
}

// Load reads the TOML file at path. A missing file is not an error: the
// defaults are returned so the layer can run unconfigured.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogDebug("no config at %s, using defaults", path)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		err := fmt.Errorf("config %s is not valid TOML: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}

	cfg.validate()
	return cfg, nil
}

// validate clamps every tunable into its workable range. Out-of-range
// values are a config mistake, not a fatal condition.
func (c *Config) validate() {
	c.Application.Width = clamp(c.Application.Width, 320, 7680)
	c.Application.Height = clamp(c.Application.Height, 240, 4320)
	c.Renderer.FramesInFlight = clamp(c.Renderer.FramesInFlight, 1, 8)
	c.Descriptors.PoolSetCapacity = clamp(c.Descriptors.PoolSetCapacity, 10, 5000)
}

func clamp[T constraints.Ordered](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
