// Package prefetch implements a stream-buffer prefetch unit: N FIFO streams
// of consecutive block addresses, selected by true LRU across streams.
package prefetch

import (
	"fmt"
)

// A stream is one FIFO of prefetched block addresses. Rank 0 is the most
// recently used stream; rank N-1 is the next to be reallocated. Entries are
// meaningful only while valid is set; a stream never returns to invalid.
type stream struct {
	valid   bool
	rank    int
	entries []uint64
}

// Statistics holds stream-buffer counters.
type Statistics struct {
	// Prefetches is the number of blocks brought into the buffers.
	Prefetches uint64
	// Hits is the number of accesses supplied by a stream.
	Hits uint64
}

// StreamBuffers is a set of prefetch streams attached to one cache level.
// It is tagless: streams hold block addresses (byte address without the
// block offset), not tags.
type StreamBuffers struct {
	numStreams int
	depth      int
	streams    []stream
	stats      Statistics
}

// New creates numStreams stream buffers of the given depth. Both dimensions
// must be positive.
func New(numStreams, depth int) *StreamBuffers {
	if numStreams <= 0 || depth <= 0 {
		panic(fmt.Sprintf(
			"prefetch: stream buffers need positive dimensions, got %dx%d",
			numStreams, depth))
	}

	s := &StreamBuffers{
		numStreams: numStreams,
		depth:      depth,
		streams:    make([]stream, numStreams),
	}
	for i := range s.streams {
		s.streams[i].rank = i
		s.streams[i].entries = make([]uint64, depth)
	}
	return s
}

// NumStreams returns the number of streams.
func (s *StreamBuffers) NumStreams() int {
	return s.numStreams
}

// Depth returns the per-stream depth.
func (s *StreamBuffers) Depth() int {
	return s.depth
}

// Stats returns the stream-buffer counters.
func (s *StreamBuffers) Stats() Statistics {
	return s.stats
}

// Update runs the stream-buffer protocol for one access to the given block.
// cacheMiss reports whether the owning cache missed on the same access.
//
// It returns whether a stream supplied the block, and how many blocks were
// fetched into the buffers on this access.
//
// Streams are probed in recency order, most recent first. On a hit at
// position p the matched stream is rebuilt with the blocks following the
// accessed one and promoted, costing p+1 fetches. When nothing matches and
// the cache also missed, the least recently used stream is reallocated to
// the new miss address, costing a full depth of fetches.
func (s *StreamBuffers) Update(cacheMiss bool, block uint64) (hit bool, fetched int) {
	if idx, pos, ok := s.probe(block); ok {
		s.refill(idx, block)
		s.promote(idx)
		fetched = pos + 1
		s.stats.Prefetches += uint64(fetched)
		s.stats.Hits++
		return true, fetched
	}

	if !cacheMiss {
		return false, 0
	}

	idx := s.lruStream()
	s.refill(idx, block)
	s.streams[idx].valid = true
	s.promote(idx)
	fetched = s.depth
	s.stats.Prefetches += uint64(fetched)
	return false, fetched
}

// probe scans valid streams in increasing rank order and returns the first
// stream and in-buffer position holding block.
func (s *StreamBuffers) probe(block uint64) (streamIdx, pos int, ok bool) {
	for rank := 0; rank < s.numStreams; rank++ {
		idx := s.streamWithRank(rank)
		if !s.streams[idx].valid {
			continue
		}
		for p, entry := range s.streams[idx].entries {
			if entry == block {
				return idx, p, true
			}
		}
	}
	return 0, 0, false
}

// refill rebuilds the stream's window with the depth blocks following block.
func (s *StreamBuffers) refill(idx int, block uint64) {
	for i := range s.streams[idx].entries {
		s.streams[idx].entries[i] = block + uint64(i) + 1
	}
}

// promote makes the stream the most recently used. Streams more recent than
// its old position age by one; the rest are unchanged.
func (s *StreamBuffers) promote(idx int) {
	old := s.streams[idx].rank
	for i := range s.streams {
		if i != idx && s.streams[i].rank < old {
			s.streams[i].rank++
		}
	}
	s.streams[idx].rank = 0
	s.assertRecency()
}

// lruStream returns the stream holding the largest rank.
func (s *StreamBuffers) lruStream() int {
	return s.streamWithRank(s.numStreams - 1)
}

func (s *StreamBuffers) streamWithRank(rank int) int {
	for i := range s.streams {
		if s.streams[i].rank == rank {
			return i
		}
	}
	panic(fmt.Sprintf("prefetch: no stream with rank %d", rank))
}

// assertRecency verifies the ranks form a permutation of 0..N-1.
func (s *StreamBuffers) assertRecency() {
	seen := make([]bool, s.numStreams)
	for i := range s.streams {
		r := s.streams[i].rank
		if r < 0 || r >= s.numStreams || seen[r] {
			panic(fmt.Sprintf("prefetch: stream ranks are not a permutation, rank %d duplicated or out of range", r))
		}
		seen[r] = true
	}
}

// StreamContents describes one stream for inspection, ordered most recently
// used first.
type StreamContents struct {
	Valid   bool
	Entries []uint64
}

// Contents returns a snapshot of all streams in recency order.
func (s *StreamBuffers) Contents() []StreamContents {
	out := make([]StreamContents, 0, s.numStreams)
	for rank := 0; rank < s.numStreams; rank++ {
		idx := s.streamWithRank(rank)
		entries := make([]uint64, len(s.streams[idx].entries))
		copy(entries, s.streams[idx].entries)
		out = append(out, StreamContents{
			Valid:   s.streams[idx].valid,
			Entries: entries,
		})
	}
	return out
}
