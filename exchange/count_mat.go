package exchange

import "fmt"

// A CountMat is a fill-count matrix.
//
// Entries in the matrix count the records a sending thread
// (row) has placed in the buffer region of a target rank
// (column) during the current round.
type CountMat struct {
	numThreads int
	numRanks   int
	counts     []int
}

// NewCountMat creates an all-zero count matrix.
func NewCountMat(numThreads, numRanks int) *CountMat {
	return &CountMat{
		numThreads: numThreads,
		numRanks:   numRanks,
		counts:     make([]int, numThreads*numRanks),
	}
}

// Get an entry in the matrix.
func (c *CountMat) Get(thread, rank int) int {
	c.check(thread, rank)
	return c.counts[thread*c.numRanks+rank]
}

// Set an entry in the matrix.
func (c *CountMat) Set(thread, rank, value int) {
	c.check(thread, rank)
	c.counts[thread*c.numRanks+rank] = value
}

// Inc increments an entry and returns the new value.
func (c *CountMat) Inc(thread, rank int) int {
	c.check(thread, rank)
	c.counts[thread*c.numRanks+rank]++
	return c.counts[thread*c.numRanks+rank]
}

// SumRank sums a column of the matrix: the total records
// addressed to one rank this round.
func (c *CountMat) SumRank(rank int) int {
	if rank < 0 || rank >= c.numRanks {
		panic(fmt.Sprintf("exchange: rank %d outside [0, %d)", rank, c.numRanks))
	}
	var sum int
	for t := 0; t < c.numThreads; t++ {
		sum += c.Get(t, rank)
	}
	return sum
}

// SumThread sums a row of the matrix: the total records one
// thread has emitted this round.
func (c *CountMat) SumThread(thread int) int {
	if thread < 0 || thread >= c.numThreads {
		panic(fmt.Sprintf("exchange: thread %d outside [0, %d)", thread, c.numThreads))
	}
	var sum int
	for r := 0; r < c.numRanks; r++ {
		sum += c.Get(thread, r)
	}
	return sum
}

// Reset zeroes the matrix for the next round.
func (c *CountMat) Reset() {
	for i := range c.counts {
		c.counts[i] = 0
	}
}

func (c *CountMat) check(thread, rank int) {
	if thread < 0 || rank < 0 || thread >= c.numThreads || rank >= c.numRanks {
		panic("index out of bounds")
	}
}
