package collective

import (
	"fmt"
	"testing"
)

func TestAlltoall(t *testing.T) {
	for _, numRanks := range []int{1, 2, 5, 8} {
		t.Run(fmt.Sprintf("Ranks=%d", numRanks), func(t *testing.T) {
			const chunk = 3
			SpawnRanks(numRanks, func(c *Comm) {
				send := make([]uint64, chunk*numRanks)
				recv := make([]uint64, chunk*numRanks)
				for dst := 0; dst < numRanks; dst++ {
					for i := 0; i < chunk; i++ {
						send[dst*chunk+i] = encode(c.Rank(), dst, i)
					}
				}
				c.Alltoall(send, recv, chunk)
				for src := 0; src < numRanks; src++ {
					for i := 0; i < chunk; i++ {
						want := encode(src, c.Rank(), i)
						if recv[src*chunk+i] != want {
							t.Errorf("rank %d chunk %d slot %d: expected %d but got %d",
								c.Rank(), src, i, want, recv[src*chunk+i])
						}
					}
				}
			})
		})
	}
}

func TestAlltoallRepeatedRounds(t *testing.T) {
	const numRanks = 4
	const rounds = 50
	SpawnRanks(numRanks, func(c *Comm) {
		send := make([]uint64, numRanks)
		recv := make([]uint64, numRanks)
		for round := 0; round < rounds; round++ {
			for dst := 0; dst < numRanks; dst++ {
				send[dst] = uint64(round*1000 + c.Rank()*10 + dst)
			}
			c.Alltoall(send, recv, 1)
			for src := 0; src < numRanks; src++ {
				want := uint64(round*1000 + src*10 + c.Rank())
				if recv[src] != want {
					t.Errorf("round %d: rank %d expected %d from %d but got %d",
						round, c.Rank(), want, src, recv[src])
				}
			}
		}
	})
}

func TestAllgatherv(t *testing.T) {
	const numRanks = 3
	SpawnRanks(numRanks, func(c *Comm) {
		// Rank r contributes r+1 words.
		send := make([]uint64, c.Rank()+1)
		for i := range send {
			send[i] = encode(c.Rank(), 0, i)
		}
		out := c.Allgatherv(send)
		if len(out) != numRanks {
			t.Fatalf("expected %d slices but got %d", numRanks, len(out))
		}
		for src, words := range out {
			if len(words) != src+1 {
				t.Errorf("expected %d words from rank %d but got %d", src+1, src, len(words))
				continue
			}
			for i, w := range words {
				if w != encode(src, 0, i) {
					t.Errorf("rank %d word %d from %d is wrong", c.Rank(), i, src)
				}
			}
		}
	})
}

func TestAlltoallSizeMismatch(t *testing.T) {
	SpawnRanks(1, func(c *Comm) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		c.Alltoall(make([]uint64, 2), make([]uint64, 3), 3)
	})
}

func encode(src, dst, slot int) uint64 {
	return uint64(src)<<32 | uint64(dst)<<16 | uint64(slot)
}
