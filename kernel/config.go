// Package kernel wires the registries, the fill/drain
// driver, and a collective exchanger into one simulation
// kernel instance. Everything is passed in explicitly;
// there is no process-wide singleton, so several kernels
// can coexist (one per rank in the in-process tests).
package kernel

import (
	"fmt"
	"os"

	"github.com/sugawarayuuta/sonnet"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/spikecomm/registry"
	"github.com/unixpickle/spikecomm/wire"
)

// A Config holds the scale parameters of one kernel. All of
// them are fixed for the kernel's lifetime.
type Config struct {
	// NumRanks is the number of processes in the exchange
	// group. Must match the exchanger's group size.
	NumRanks int `json:"num_ranks"`

	// NumThreads is the number of worker threads per rank.
	// Must be identical on every rank.
	NumThreads int `json:"num_threads"`

	// NumSynapseTypes is the number of connection-model
	// categories.
	NumSynapseTypes int `json:"num_synapse_types"`

	// BufferCapacity is the number of records one thread
	// may place in one rank's buffer region per round.
	BufferCapacity int `json:"buffer_capacity"`

	// NumLags is the number of sub-steps per communication
	// time slice.
	NumLags int `json:"num_lags"`

	// CompactionThreshold is the number of disabled
	// connections a thread accumulates before Compact
	// physically removes them. Zero keeps the registry
	// default.
	CompactionThreshold int `json:"compaction_threshold"`
}

// DefaultConfig returns a small single-rank configuration.
func DefaultConfig() *Config {
	return &Config{
		NumRanks:        1,
		NumThreads:      1,
		NumSynapseTypes: 1,
		BufferCapacity:  4096,
		NumLags:         1,
	}
}

// LoadConfig reads a JSON configuration file.
func LoadConfig(path string) (c *Config, err error) {
	defer essentials.AddCtxTo("load config", &err)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c = DefaultConfig()
	if err := sonnet.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration against the wire-format
// bounds. A configuration that cannot be packed is rejected
// before any record is built.
func (c *Config) Validate() error {
	if c.NumRanks < 1 || c.NumRanks > wire.MaxRank+1 {
		return fmt.Errorf("num_ranks %d outside [1, %d]", c.NumRanks, wire.MaxRank+1)
	}
	if c.NumThreads < 1 || c.NumThreads > wire.MaxThread+1 {
		return fmt.Errorf("num_threads %d outside [1, %d]", c.NumThreads, wire.MaxThread+1)
	}
	if c.NumSynapseTypes < 1 || c.NumSynapseTypes > wire.MaxSynapseType+1 {
		return fmt.Errorf("num_synapse_types %d outside [1, %d]",
			c.NumSynapseTypes, wire.MaxSynapseType+1)
	}
	if c.BufferCapacity < 1 {
		return fmt.Errorf("buffer_capacity %d outside [1, inf)", c.BufferCapacity)
	}
	if c.NumLags < 1 || c.NumLags > wire.MaxLag+1 {
		return fmt.Errorf("num_lags %d outside [1, %d]", c.NumLags, wire.MaxLag+1)
	}
	if c.CompactionThreshold < 0 {
		return fmt.Errorf("compaction_threshold %d is negative", c.CompactionThreshold)
	}
	return nil
}

// compactionThreshold resolves the registry threshold.
func (c *Config) compactionThreshold() int {
	if c.CompactionThreshold == 0 {
		return registry.DefaultCompactionThreshold
	}
	return c.CompactionThreshold
}
