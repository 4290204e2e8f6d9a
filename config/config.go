// Package config provides the simulator's typed configuration:
// cache geometry, core/trace wiring, the RNG seed, and the simulated
// miss-wait cycle count, loadable from JSON and overridable by flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds every knob needed to size and wire up a run: cache
// geometry, core/trace wiring, the memory-initialization seed, and the
// simulated miss-wait cycle count.
type Config struct {
	// BlockSize is B, the cache-line/memory-block size in bytes.
	BlockSize int `json:"block_size"`

	// LineCount is L, the number of lines per (fully-associative)
	// cache.
	LineCount int `json:"line_count"`

	// Cores is N, the number of cores (and caches, and trace files).
	Cores int `json:"cores"`

	// TracePaths holds one trace-file path per core, in core order.
	TracePaths []string `json:"trace_paths"`

	// Seed seeds the pseudo-random block-initialization policy.
	Seed int64 `json:"seed"`

	// WaitCycles is the number of WaitingForMemory ticks charged to a
	// core for each miss that reaches main memory.
	WaitCycles int `json:"wait_cycles"`
}

// DefaultConfig returns a small baseline configuration: an 8-byte
// block, 3 lines per cache, two cores, a 2-cycle memory wait, and no
// trace files (the caller must supply those).
func DefaultConfig() *Config {
	return &Config{
		BlockSize:  8,
		LineCount:  3,
		Cores:      2,
		TracePaths: nil,
		Seed:       1,
		WaitCycles: 2,
	}
}

// LoadConfig reads a Config from a JSON file, starting from
// DefaultConfig so that an omitted field keeps its default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes c to path as indented JSON.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that c describes a simulatable system.
func (c *Config) Validate() error {
	if c.BlockSize <= 0 || (c.BlockSize&(c.BlockSize-1)) != 0 {
		return fmt.Errorf("config: block_size must be a positive power of two, got %d", c.BlockSize)
	}
	if c.LineCount <= 0 {
		return fmt.Errorf("config: line_count must be > 0, got %d", c.LineCount)
	}
	if c.Cores <= 0 {
		return fmt.Errorf("config: cores must be > 0, got %d", c.Cores)
	}
	if len(c.TracePaths) != c.Cores {
		return fmt.Errorf("config: expected %d trace_paths, got %d", c.Cores, len(c.TracePaths))
	}
	if c.WaitCycles <= 0 {
		return fmt.Errorf("config: wait_cycles must be > 0, got %d", c.WaitCycles)
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	clone.TracePaths = append([]string(nil), c.TracePaths...)
	return &clone
}
