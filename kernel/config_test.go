package kernel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernel.json")
	data := `{
		"num_ranks": 4,
		"num_threads": 8,
		"num_synapse_types": 3,
		"buffer_capacity": 128,
		"num_lags": 10
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NumRanks != 4 || cfg.NumThreads != 8 || cfg.NumSynapseTypes != 3 ||
		cfg.BufferCapacity != 128 || cfg.NumLags != 10 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.CompactionThreshold != 0 {
		t.Errorf("expected default compaction threshold but got %d", cfg.CompactionThreshold)
	}
}

func TestLoadConfigPartial(t *testing.T) {
	// Omitted fields keep their defaults.
	path := filepath.Join(t.TempDir(), "kernel.json")
	if err := os.WriteFile(path, []byte(`{"num_threads": 2}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultConfig()
	if cfg.NumThreads != 2 || cfg.BufferCapacity != def.BufferCapacity ||
		cfg.NumRanks != def.NumRanks {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	t.Run("Missing", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "nope.json"))
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "load config") {
			t.Errorf("error %q lacks its context", err)
		}
	})
	t.Run("Malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		os.WriteFile(path, []byte("{"), 0644)
		if _, err := LoadConfig(path); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("Invalid", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.json")
		os.WriteFile(path, []byte(`{"num_threads": 0}`), 0644)
		if _, err := LoadConfig(path); err == nil {
			t.Error("expected error")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	for i, mutate := range []func(*Config){
		func(c *Config) { c.NumRanks = 0 },
		func(c *Config) { c.NumThreads = -1 },
		func(c *Config) { c.NumSynapseTypes = 1 << 20 },
		func(c *Config) { c.BufferCapacity = 0 },
		func(c *Config) { c.NumLags = 0 },
		func(c *Config) { c.CompactionThreshold = -5 },
	} {
		t.Run(fmt.Sprintf("Case%d", i), func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}
