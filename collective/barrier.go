package collective

import "sync"

// A barrier blocks goroutines until a fixed number of them
// have arrived, then releases them all at once. It is
// reusable: the next await cycle begins as soon as the
// previous one releases.
type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	n     int
	count int
	phase uint64
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// await blocks until n goroutines have called it.
func (b *barrier) await() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	if b.count == b.n {
		b.count = 0
		b.phase++
		b.cond.Broadcast()
		return
	}
	phase := b.phase
	for b.phase == phase {
		b.cond.Wait()
	}
}
