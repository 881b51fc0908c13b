// Package config holds the simulator configuration: cache geometry,
// prefetcher dimensions, and behavior switches.
package config

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"os"
	"strconv"
)

// Prefetcher attachment points. The stream buffer sits on a single cache
// level; which one is a configured choice.
const (
	// AttachLowest attaches the stream buffer to the lowest cache present
	// (L2 if configured, otherwise L1).
	AttachLowest = "lowest"
	// AttachL1 attaches the stream buffer to L1 regardless of L2.
	AttachL1 = "l1"
)

// Config holds the full simulator configuration.
//
// The geometry fields mirror the command line:
//
//	cachesim BLOCKSIZE L1_SIZE L1_ASSOC L2_SIZE L2_ASSOC PREF_N PREF_M trace_file
//
// L2Size == 0 means no L2. PrefN == 0 or PrefM == 0 means no prefetcher.
type Config struct {
	// BlockSize in bytes, common to both levels. Must be a power of two.
	BlockSize int `json:"block_size"`

	// L1Size is the total L1 capacity in bytes. Must be a power of two.
	L1Size int `json:"l1_size"`

	// L1Assoc is the L1 associativity (1 = direct mapped).
	L1Assoc int `json:"l1_assoc"`

	// L2Size is the total L2 capacity in bytes. 0 disables L2.
	L2Size int `json:"l2_size"`

	// L2Assoc is the L2 associativity. Ignored when L2Size is 0.
	L2Assoc int `json:"l2_assoc"`

	// PrefN is the number of stream buffers. 0 disables prefetching.
	PrefN int `json:"pref_n"`

	// PrefM is the depth of each stream buffer. 0 disables prefetching.
	PrefM int `json:"pref_m"`

	// TraceFile is the path of the trace to simulate.
	TraceFile string `json:"trace_file,omitempty"`

	// CountPrefetchHit, when true, increments the read/write miss counter
	// even when the stream buffer supplies the block. The default (false)
	// treats a stream-buffer hit as not-a-miss for miss-rate accounting.
	CountPrefetchHit bool `json:"count_prefetch_hit"`

	// PrefetchAttach selects the level that owns the stream buffer:
	// AttachLowest (default) or AttachL1.
	PrefetchAttach string `json:"prefetch_attach"`
}

// Default returns a Config with the behavior switches at their defaults and
// no geometry set.
func Default() *Config {
	return &Config{
		PrefetchAttach: AttachLowest,
	}
}

// ParseArgs builds a Config from the eight positional command-line
// arguments, in order: BLOCKSIZE L1_SIZE L1_ASSOC L2_SIZE L2_ASSOC PREF_N
// PREF_M trace_file.
func ParseArgs(args []string) (*Config, error) {
	if len(args) != 8 {
		return nil, fmt.Errorf(
			"expected 8 command-line arguments but was provided %d", len(args))
	}

	names := []string{
		"BLOCKSIZE", "L1_SIZE", "L1_ASSOC", "L2_SIZE", "L2_ASSOC",
		"PREF_N", "PREF_M",
	}
	values := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", name, args[i])
		}
		values[i] = v
	}

	cfg := Default()
	cfg.BlockSize = values[0]
	cfg.L1Size = values[1]
	cfg.L1Assoc = values[2]
	cfg.L2Size = values[3]
	cfg.L2Assoc = values[4]
	cfg.PrefN = values[5]
	cfg.PrefM = values[6]
	cfg.TraceFile = args[7]

	return cfg, nil
}

// Load reads a Config from a JSON file. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save writes the Config to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// HasL2 reports whether an L2 cache is configured.
func (c *Config) HasL2() bool {
	return c.L2Size > 0
}

// HasPrefetcher reports whether a stream-buffer unit is configured.
func (c *Config) HasPrefetcher() bool {
	return c.PrefN > 0 && c.PrefM > 0
}

// Validate checks the configuration. Sizes and associativities must be
// powers of two, prefetch dimensions non-negative, and the L1 geometry must
// describe at least one set.
func (c *Config) Validate() error {
	if !isPowerOfTwo(c.BlockSize) {
		return fmt.Errorf("BLOCKSIZE must be a power of two, got %d", c.BlockSize)
	}
	if !isPowerOfTwo(c.L1Size) {
		return fmt.Errorf("L1_SIZE must be a power of two, got %d", c.L1Size)
	}
	if !isPowerOfTwo(c.L1Assoc) {
		return fmt.Errorf("L1_ASSOC must be a power of two, got %d", c.L1Assoc)
	}
	if c.L1Size < c.BlockSize*c.L1Assoc {
		return fmt.Errorf("L1_SIZE %d is too small for BLOCKSIZE %d x L1_ASSOC %d",
			c.L1Size, c.BlockSize, c.L1Assoc)
	}
	if c.L2Size < 0 {
		return fmt.Errorf("L2_SIZE must be non-negative, got %d", c.L2Size)
	}
	if c.HasL2() {
		if !isPowerOfTwo(c.L2Size) {
			return fmt.Errorf("L2_SIZE must be a power of two, got %d", c.L2Size)
		}
		if !isPowerOfTwo(c.L2Assoc) {
			return fmt.Errorf("L2_ASSOC must be a power of two, got %d", c.L2Assoc)
		}
		if c.L2Size < c.BlockSize*c.L2Assoc {
			return fmt.Errorf("L2_SIZE %d is too small for BLOCKSIZE %d x L2_ASSOC %d",
				c.L2Size, c.BlockSize, c.L2Assoc)
		}
	}
	if c.PrefN < 0 {
		return fmt.Errorf("PREF_N must be non-negative, got %d", c.PrefN)
	}
	if c.PrefM < 0 {
		return fmt.Errorf("PREF_M must be non-negative, got %d", c.PrefM)
	}
	if c.PrefetchAttach != AttachLowest && c.PrefetchAttach != AttachL1 {
		return fmt.Errorf("prefetch_attach must be %q or %q, got %q",
			AttachLowest, AttachL1, c.PrefetchAttach)
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

func isPowerOfTwo(v int) bool {
	return v > 0 && bits.OnesCount(uint(v)) == 1
}
