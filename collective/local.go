package collective

import (
	"fmt"
	"sync"
)

// A Comm is one rank's view of an in-process group. All
// ranks of the group live in the same process as separate
// goroutines and exchange data through shared memory.
//
// Comm implements VarExchanger.
type Comm struct {
	g    *group
	rank int
}

type group struct {
	size  int
	bar   *barrier
	sends [][]uint64
}

// SpawnRanks runs f once per rank, each in its own
// goroutine with that rank's Comm, and returns when every
// rank's f has returned.
func SpawnRanks(numRanks int, f func(c *Comm)) {
	if numRanks < 1 {
		panic(fmt.Sprintf("collective: rank count %d outside [1, inf)", numRanks))
	}
	g := &group{
		size:  numRanks,
		bar:   newBarrier(numRanks),
		sends: make([][]uint64, numRanks),
	}
	var wg sync.WaitGroup
	for r := 0; r < numRanks; r++ {
		wg.Add(1)
		rank := r
		go func() {
			defer wg.Done()
			f(&Comm{g: g, rank: rank})
		}()
	}
	wg.Wait()
}

// Rank returns this rank's index in the group.
func (c *Comm) Rank() int {
	return c.rank
}

// Size returns the number of ranks in the group.
func (c *Comm) Size() int {
	return c.g.size
}

// Alltoall exchanges fixed-size chunks between all ranks.
func (c *Comm) Alltoall(send, recv []uint64, chunk int) {
	if len(send) != chunk*c.g.size || len(recv) != chunk*c.g.size {
		panic(fmt.Sprintf("collective: buffer length %d/%d does not match %d ranks of chunk %d",
			len(send), len(recv), c.g.size, chunk))
	}
	c.g.sends[c.rank] = send
	c.g.bar.await()
	for r := 0; r < c.g.size; r++ {
		copy(recv[r*chunk:(r+1)*chunk], c.g.sends[r][c.rank*chunk:(c.rank+1)*chunk])
	}
	// Nobody may touch a send buffer again until every rank
	// has copied out of it.
	c.g.bar.await()
}

// Allgatherv gathers every rank's variable-length send
// buffer on every rank.
func (c *Comm) Allgatherv(send []uint64) [][]uint64 {
	c.g.sends[c.rank] = send
	c.g.bar.await()
	out := make([][]uint64, c.g.size)
	for r := 0; r < c.g.size; r++ {
		out[r] = append([]uint64(nil), c.g.sends[r]...)
	}
	c.g.bar.await()
	return out
}
