// Package memsys composes cache levels into a memory hierarchy and routes
// trace references through it.
package memsys

import (
	"fmt"

	"github.com/sarchlab/cachesim/config"
	"github.com/sarchlab/cachesim/memsys/cache"
	"github.com/sarchlab/cachesim/memsys/prefetch"
	"github.com/sarchlab/cachesim/trace"
)

// Hierarchy owns the cache levels. L2 is nil when not configured; L1 is
// always present.
type Hierarchy struct {
	l1 *cache.Level
	l2 *cache.Level
}

// Build constructs the hierarchy described by cfg. It validates cfg first
// and returns an error when the configuration is invalid.
func Build(cfg *config.Config) (*Hierarchy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	h := &Hierarchy{}

	var l1Opts, l2Opts []cache.Option
	if cfg.CountPrefetchHit {
		l1Opts = append(l1Opts, cache.WithPrefetchHitCountedAsMiss())
		l2Opts = append(l2Opts, cache.WithPrefetchHitCountedAsMiss())
	}

	if cfg.HasPrefetcher() {
		sb := prefetch.New(cfg.PrefN, cfg.PrefM)
		if cfg.PrefetchAttach == config.AttachL1 || !cfg.HasL2() {
			l1Opts = append(l1Opts, cache.WithStreamBuffers(sb))
		} else {
			l2Opts = append(l2Opts, cache.WithStreamBuffers(sb))
		}
	}

	if cfg.HasL2() {
		h.l2 = cache.New(cache.Config{
			Name:      "L2",
			Size:      cfg.L2Size,
			Assoc:     cfg.L2Assoc,
			BlockSize: cfg.BlockSize,
		}, l2Opts...)
		l1Opts = append(l1Opts, cache.WithNextLevel(h.l2))
	}

	h.l1 = cache.New(cache.Config{
		Name:      "L1",
		Size:      cfg.L1Size,
		Assoc:     cfg.L1Assoc,
		BlockSize: cfg.BlockSize,
	}, l1Opts...)

	return h, nil
}

// Feed routes one trace reference into the hierarchy.
func (h *Hierarchy) Feed(addr uint32, kind trace.Kind) {
	h.l1.Request(addr, kind)
}

// L1 returns the first-level cache.
func (h *Hierarchy) L1() *cache.Level {
	return h.l1
}

// L2 returns the second-level cache, nil when not configured.
func (h *Hierarchy) L2() *cache.Level {
	return h.l2
}

// Lowest returns the cache closest to main memory.
func (h *Hierarchy) Lowest() *cache.Level {
	if h.l2 != nil {
		return h.l2
	}
	return h.l1
}

// MemoryTraffic returns the number of requests the lowest level sends to
// main memory: its writebacks plus its read and write misses.
func (h *Hierarchy) MemoryTraffic() uint64 {
	stats := h.Lowest().Stats()
	return stats.Writebacks + stats.ReadMisses + stats.WriteMisses
}
