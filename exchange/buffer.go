package exchange

import "fmt"

// A SendBuffer is the shared, rank-partitioned buffer one
// rank fills during a round.
//
// The buffer is laid out rank-major: the chunk addressed to
// rank r is contiguous, and within it each sending thread
// owns a fixed region of capacity records. Regions are
// disjoint, so worker threads fill them concurrently
// without locks; the buffer as a whole is handed to the
// collective call between the fill and drain phases.
type SendBuffer struct {
	numThreads int
	numRanks   int
	capacity   int

	data   []uint64
	counts *CountMat
}

// NewSendBuffer creates a buffer with one region per
// (thread, rank) pair, each holding capacity records.
func NewSendBuffer(numThreads, numRanks, capacity int) *SendBuffer {
	if numThreads < 1 || numRanks < 1 {
		panic(fmt.Sprintf("exchange: buffer dimensions %dx%d invalid", numThreads, numRanks))
	}
	if capacity < 1 {
		panic(fmt.Sprintf("exchange: region capacity %d outside [1, inf)", capacity))
	}
	return &SendBuffer{
		numThreads: numThreads,
		numRanks:   numRanks,
		capacity:   capacity,
		data:       make([]uint64, numThreads*numRanks*capacity),
		counts:     NewCountMat(numThreads, numRanks),
	}
}

// ChunkSize returns the number of records in one rank's
// chunk.
func (b *SendBuffer) ChunkSize() int {
	return b.numThreads * b.capacity
}

// Capacity returns the record capacity of a single region.
func (b *SendBuffer) Capacity() int {
	return b.capacity
}

// Data returns the backing buffer in wire order.
func (b *SendBuffer) Data() []uint64 {
	return b.data
}

// Counts returns the per-region fill counts of the current
// round.
func (b *SendBuffer) Counts() *CountMat {
	return b.counts
}

// Reset empties every region for the next round.
func (b *SendBuffer) Reset() {
	b.counts.Reset()
}

// Full reports whether the region for a (thread, rank) pair
// has no free slots left.
func (b *SendBuffer) Full(thread, rank int) bool {
	return b.counts.Get(thread, rank) == b.capacity
}

// Append writes one record into the next free slot of the
// (thread, rank) region. It reports false, writing nothing,
// if the region is full.
func (b *SendBuffer) Append(thread, rank int, word uint64) bool {
	n := b.counts.Get(thread, rank)
	if n == b.capacity {
		return false
	}
	b.data[(rank*b.numThreads+thread)*b.capacity+n] = word
	b.counts.Inc(thread, rank)
	return true
}

// Region returns the filled prefix of a (thread, rank)
// region, for callers inspecting a round's outgoing data.
func (b *SendBuffer) Region(thread, rank int) []uint64 {
	start := (rank*b.numThreads + thread) * b.capacity
	return b.data[start : start+b.counts.Get(thread, rank)]
}
