// Package cache models one level of a set-associative, write-back,
// write-allocate cache using Akita cache components for tag and LRU state.
//
// Only tags and metadata are modeled. A level serves demand requests, keeps
// its own counters, optionally forwards misses and writebacks to the next
// level, and optionally consults a stream-buffer prefetch unit.
package cache

import (
	"fmt"
	"math/bits"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/cachesim/memsys/prefetch"
	"github.com/sarchlab/cachesim/trace"
)

// Config holds the geometry of one cache level. All sizes must be powers of
// two; validation happens before construction.
type Config struct {
	// Name identifies the level in reports and diagnostics ("L1", "L2").
	Name string
	// Size in bytes.
	Size int
	// Assoc is the number of ways per set.
	Assoc int
	// BlockSize in bytes (cache line size).
	BlockSize int
}

// Statistics holds the counters of one level. All counters are cumulative
// and only ever increase during a run.
type Statistics struct {
	Reads       uint64
	ReadMisses  uint64
	Writes      uint64
	WriteMisses uint64
	Writebacks  uint64
	Prefetches  uint64
}

// MissRate returns (read misses + write misses) / (reads + writes), or 0
// before any access.
func (s Statistics) MissRate() float64 {
	accesses := s.Reads + s.Writes
	if accesses == 0 {
		return 0
	}
	return float64(s.ReadMisses+s.WriteMisses) / float64(accesses)
}

// Line is one valid way in a contents snapshot.
type Line struct {
	// Tag is the high-order address bits identifying the block in its set.
	Tag uint32
	// Dirty marks a line modified since it was brought in.
	Dirty bool
}

// SetContents is the snapshot of one set, lines ordered MRU to LRU.
type SetContents struct {
	Set   int
	Lines []Line
}

// Option configures a Level at construction.
type Option func(*Level)

// WithNextLevel links the level to the next one in the hierarchy. A level
// without a next level fetches from and writes back to main memory, which
// is not modeled beyond the counters.
func WithNextLevel(next *Level) Option {
	return func(l *Level) {
		l.next = next
	}
}

// WithStreamBuffers attaches a stream-buffer prefetch unit to the level.
func WithStreamBuffers(sb *prefetch.StreamBuffers) Option {
	return func(l *Level) {
		l.streams = sb
	}
}

// WithPrefetchHitCountedAsMiss makes the level increment its miss counters
// even when the stream buffer supplies the block. By default such accesses
// are not counted as misses.
func WithPrefetchHitCountedAsMiss() Option {
	return func(l *Level) {
		l.countPrefetchHit = true
	}
}

// Level is one cache level.
type Level struct {
	config  Config
	numSets int

	offsetBits int
	indexBits  int

	// Akita cache directory for tag/LRU state.
	directory *akitacache.DirectoryImpl

	// next is a non-owning link to the next level in the hierarchy, nil for
	// the level closest to memory.
	next *Level

	// streams is the optional prefetch unit owned by this level.
	streams *prefetch.StreamBuffers

	countPrefetchHit bool

	stats Statistics
}

// New creates a cache level with the given geometry.
func New(cfg Config, opts ...Option) *Level {
	numSets := cfg.Size / (cfg.Assoc * cfg.BlockSize)

	l := &Level{
		config:     cfg,
		numSets:    numSets,
		offsetBits: bits.TrailingZeros(uint(cfg.BlockSize)),
		indexBits:  bits.TrailingZeros(uint(numSets)),
		directory: akitacache.NewDirectory(
			numSets,
			cfg.Assoc,
			cfg.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Config returns the level's geometry.
func (l *Level) Config() Config {
	return l.config
}

// Stats returns the level's counters.
func (l *Level) Stats() Statistics {
	return l.stats
}

// ResetStats clears the level's counters.
func (l *Level) ResetStats() {
	l.stats = Statistics{}
}

// NumSets returns the number of sets.
func (l *Level) NumSets() int {
	return l.numSets
}

// OffsetBits returns the number of block-offset bits.
func (l *Level) OffsetBits() int {
	return l.offsetBits
}

// IndexBits returns the number of set-index bits.
func (l *Level) IndexBits() int {
	return l.indexBits
}

// TagBits returns the number of tag bits of a 32-bit address.
func (l *Level) TagBits() int {
	return 32 - l.indexBits - l.offsetBits
}

// StreamBuffers returns the attached prefetch unit, nil if none.
func (l *Level) StreamBuffers() *prefetch.StreamBuffers {
	return l.streams
}

// Tag extracts the tag field of an address.
func (l *Level) Tag(addr uint32) uint32 {
	return addr >> (l.offsetBits + l.indexBits)
}

// Index extracts the set-index field of an address.
func (l *Level) Index(addr uint32) int {
	return int(addr>>l.offsetBits) & (l.numSets - 1)
}

// BlockID returns the block number of an address, the currency of the
// stream buffers.
func (l *Level) BlockID(addr uint32) uint64 {
	return uint64(addr) >> l.offsetBits
}

// blockAligned returns the address of the block containing addr. The
// directory stores block-aligned addresses as tags.
func (l *Level) blockAligned(addr uint32) uint64 {
	return uint64(addr) &^ (uint64(l.config.BlockSize) - 1)
}

// Request serves one demand access. It is the level's single entry point:
// it updates counters, consults the stream buffers when attached, promotes
// on a hit, and on a miss evicts the LRU way (writing back a dirty victim
// to the next level before the demand fetch) and installs the new block.
func (l *Level) Request(addr uint32, kind trace.Kind) {
	if kind == trace.Read {
		l.stats.Reads++
	} else {
		l.stats.Writes++
	}

	blockAddr := l.blockAligned(addr)
	block := l.directory.Lookup(0, blockAddr)
	cacheMiss := block == nil

	stbHit := false
	if l.streams != nil {
		var fetched int
		stbHit, fetched = l.streams.Update(cacheMiss, l.BlockID(addr))
		l.stats.Prefetches += uint64(fetched)
	}

	if !cacheMiss {
		l.directory.Visit(block)
		if kind == trace.Write {
			block.IsDirty = true
		}
		l.assertRecency(block.SetID)
		return
	}

	if !stbHit || l.countPrefetchHit {
		if kind == trace.Read {
			l.stats.ReadMisses++
		} else {
			l.stats.WriteMisses++
		}
	}

	victim := l.directory.FindVictim(blockAddr)
	if victim == nil {
		panic(fmt.Sprintf("cache %s: no victim for address %#x",
			l.config.Name, addr))
	}
	if victim.IsDirty && !victim.IsValid {
		panic(fmt.Sprintf("cache %s: dirty invalid way in set %d",
			l.config.Name, victim.SetID))
	}

	// The writeback is ordered before the demand fetch; the tail level
	// counts memory traffic in that order.
	if victim.IsValid && victim.IsDirty {
		l.stats.Writebacks++
		if l.next != nil {
			l.next.Request(uint32(victim.Tag), trace.Write)
		}
	}

	if l.next != nil {
		l.next.Request(addr, trace.Read)
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = kind == trace.Write
	l.directory.Visit(victim)
	l.assertRecency(victim.SetID)
}

// Flush writes back every dirty line to the next level and invalidates all
// lines. Counters other than writebacks are unchanged.
func (l *Level) Flush() {
	sets := l.directory.GetSets()
	for s := range sets {
		for _, block := range sets[s].Blocks {
			if block.IsValid && block.IsDirty {
				l.stats.Writebacks++
				if l.next != nil {
					l.next.Request(uint32(block.Tag), trace.Write)
				}
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Contents returns a snapshot of all valid lines, per set, MRU to LRU.
// Sets with no valid line are omitted.
func (l *Level) Contents() []SetContents {
	sets := l.directory.GetSets()
	out := make([]SetContents, 0, len(sets))
	for s := range sets {
		queue := sets[s].LRUQueue
		var lines []Line
		for i := len(queue) - 1; i >= 0; i-- {
			block := queue[i]
			if !block.IsValid {
				continue
			}
			lines = append(lines, Line{
				Tag:   l.Tag(uint32(block.Tag)),
				Dirty: block.IsDirty,
			})
		}
		if len(lines) > 0 {
			out = append(out, SetContents{Set: s, Lines: lines})
		}
	}
	return out
}

// assertRecency verifies the set's LRU queue is a permutation of its ways.
func (l *Level) assertRecency(setID int) {
	set := l.directory.GetSets()[setID]
	if len(set.LRUQueue) != l.config.Assoc {
		panic(fmt.Sprintf("cache %s: set %d LRU queue holds %d of %d ways",
			l.config.Name, setID, len(set.LRUQueue), l.config.Assoc))
	}
	seen := make([]bool, l.config.Assoc)
	for _, block := range set.LRUQueue {
		if block.WayID < 0 || block.WayID >= l.config.Assoc || seen[block.WayID] {
			panic(fmt.Sprintf("cache %s: set %d LRU queue is not a permutation",
				l.config.Name, setID))
		}
		seen[block.WayID] = true
	}
}
