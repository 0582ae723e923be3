package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	def := Default()
	if cfg.Descriptors.PoolSetCapacity != def.Descriptors.PoolSetCapacity {
		t.Fatalf("pool_set_capacity: have %d, want default %d",
			cfg.Descriptors.PoolSetCapacity, def.Descriptors.PoolSetCapacity)
	}
	if !cfg.Renderer.PushDescriptors || !cfg.Renderer.UpdateTemplates {
		t.Fatalf("fast paths should default on")
	}
}

func TestLoadParsesAndClamps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vitro.toml")
	body := `
[application]
name = "demo"
width = 64
height = 100000

[renderer]
validation = true
push_descriptors = false
frames_in_flight = 99
log_level = "warn"

[descriptors]
pool_set_capacity = 3
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Application.Name != "demo" {
		t.Errorf("name: have %q, want %q", cfg.Application.Name, "demo")
	}
	if cfg.Application.Width != 320 {
		t.Errorf("width should clamp up to 320, have %d", cfg.Application.Width)
	}
	if cfg.Application.Height != 4320 {
		t.Errorf("height should clamp down to 4320, have %d", cfg.Application.Height)
	}
	if cfg.Renderer.FramesInFlight != 8 {
		t.Errorf("frames_in_flight should clamp to 8, have %d", cfg.Renderer.FramesInFlight)
	}
	if cfg.Descriptors.PoolSetCapacity != 10 {
		t.Errorf("pool_set_capacity should clamp up to 10, have %d", cfg.Descriptors.PoolSetCapacity)
	}
	if cfg.Renderer.PushDescriptors {
		t.Errorf("push_descriptors should be off")
	}
	if !cfg.Renderer.Validation {
		t.Errorf("validation should be on")
	}
	// Unset key keeps its default.
	if !cfg.Renderer.UpdateTemplates {
		t.Errorf("update_templates unset should stay default on")
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vitro.toml")
	if err := os.WriteFile(path, []byte("[renderer\nvalidation=??"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed TOML should error")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		value, lo, hi, want uint32
	}{
		{5, 10, 100, 10},
		{50, 10, 100, 50},
		{500, 10, 100, 100},
		{10, 10, 100, 10},
		{100, 10, 100, 100},
	}
	for _, tt := range tests {
		if have := clamp(tt.value, tt.lo, tt.hi); have != tt.want {
			t.Errorf("clamp(%d, %d, %d): have %d, want %d", tt.value, tt.lo, tt.hi, have, tt.want)
		}
	}
}
