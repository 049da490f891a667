// Package exchange implements the paginated fill/drain
// protocol that moves unbounded per-thread record streams
// through fixed-capacity all-to-all communication rounds.
//
// Every round, worker goroutines pull records out of a
// RecordSource into disjoint regions of a shared send
// buffer until their data runs out or their region fills
// up; a thread that overflows rejects the record that did
// not fit and checkpoints its cursor, resuming in the next
// round. Markers written behind the data let every rank
// decide independently when the whole exchange is over, so
// no extra termination handshake is needed.
package exchange

import (
	"fmt"
	"sync"

	"github.com/unixpickle/spikecomm/collective"
	"github.com/unixpickle/spikecomm/registry"
	"github.com/unixpickle/spikecomm/wire"
)

// A RecordSource produces packed records for the driver,
// one at a time per thread, with checkpoint/resume
// semantics. Both registries satisfy this contract through
// the adapters in this package.
type RecordSource interface {
	// NextRecord returns the target rank and packed record
	// of the thread's next entry whose rank lies in
	// [rankLo, rankHi), or false when the thread is
	// exhausted. A returned rank of registry.BroadcastRank
	// addresses the record to every rank.
	NextRecord(thread, rankLo, rankHi int) (rank int, word uint64, ok bool)

	// RejectLast un-consumes the most recently returned
	// record of the thread.
	RejectLast(thread int)

	// SaveEntryPoint checkpoints the thread's position.
	SaveEntryPoint(thread int)

	// RestoreEntryPoint resumes from the thread's pending
	// checkpoint, if any.
	RestoreEntryPoint(thread int)

	// ResetEntryPoint rewinds the thread to the start of
	// its data.
	ResetEntryPoint(thread int)
}

// A Consumer handles one drained data record. It is called
// on the worker goroutine of the record's owning thread, so
// a Consumer may mutate that thread's local structures
// without synchronization.
type Consumer func(senderRank, thread int, word uint64)

// RunStats summarizes one completed exchange.
type RunStats struct {
	// Rounds is the total number of fill/exchange/drain
	// cycles, including the final marker-only round.
	Rounds int

	// DataRounds is the number of rounds that carried at
	// least one data record.
	DataRounds int

	// RecordsSent counts data records written into the send
	// buffer; a broadcast record counts once per rank.
	RecordsSent int

	// RecordsReceived counts data records drained from the
	// receive buffer.
	RecordsReceived int
}

// A Driver runs communication rounds for one rank: a
// fork-join parallel fill over all worker threads, a single
// collective call, and a parallel drain that hands data
// records to a Consumer while the completion protocol
// watches the markers.
//
// Buffer geometry must be identical on every rank of the
// exchanger's group.
type Driver struct {
	comm       collective.Exchanger
	numThreads int
	numRanks   int
	capacity   int

	send *SendBuffer
	recv []uint64
}

// NewDriver creates a driver for numThreads worker threads
// whose buffer regions hold capacity records each.
func NewDriver(comm collective.Exchanger, numThreads, capacity int) *Driver {
	if numThreads < 1 || numThreads > wire.MaxThread+1 {
		panic(fmt.Sprintf("exchange: thread count %d outside [1, %d]", numThreads, wire.MaxThread+1))
	}
	send := NewSendBuffer(numThreads, comm.Size(), capacity)
	return &Driver{
		comm:       comm,
		numThreads: numThreads,
		numRanks:   comm.Size(),
		capacity:   capacity,
		send:       send,
		recv:       make([]uint64, len(send.Data())),
	}
}

// Run drives rounds until global quiescence: a round in
// which no rank received any data record and every sender
// region carried a stream-end marker. All ranks reach the
// same verdict from their own received buffers.
//
// Run is a collective operation; every rank of the group
// must call it with a source of the same record type.
func (d *Driver) Run(src RecordSource, consume Consumer) RunStats {
	for t := 0; t < d.numThreads; t++ {
		src.ResetEntryPoint(t)
	}

	var stats RunStats
	sent := make([]int, d.numThreads)
	for {
		d.send.Reset()

		var wg sync.WaitGroup
		for t := 0; t < d.numThreads; t++ {
			wg.Add(1)
			thread := t
			go func() {
				defer wg.Done()
				sent[thread] = d.fillThread(src, thread)
			}()
		}
		wg.Wait()

		d.comm.Alltoall(d.send.Data(), d.recv, d.send.ChunkSize())

		received, allEnded := d.drain(consume)

		stats.Rounds++
		stats.RecordsReceived += received
		for t := 0; t < d.numThreads; t++ {
			stats.RecordsSent += sent[t]
		}
		if received > 0 {
			stats.DataRounds++
		}
		// A stream-end marker is only ever written in a
		// round where its thread emitted nothing, so
		// "every region ended" is the same verdict on every
		// rank and implies a data-free round.
		if allEnded {
			return stats
		}
	}
}

// fillThread pulls records for one thread until the thread
// runs dry or a region overflows, then writes the round's
// markers. Returns the number of data records written.
func (d *Driver) fillThread(src RecordSource, thread int) int {
	src.RestoreEntryPoint(thread)

	sent := 0
	exhausted := false
	for {
		rank, word, ok := src.NextRecord(thread, 0, d.numRanks)
		if !ok {
			exhausted = true
			break
		}
		if rank == registry.BroadcastRank {
			// A broadcast record goes into every region or
			// none: partial emission would duplicate it on
			// some ranks after the resume.
			fits := true
			for r := 0; r < d.numRanks; r++ {
				if d.send.Full(thread, r) {
					fits = false
					break
				}
			}
			if !fits {
				src.RejectLast(thread)
				src.SaveEntryPoint(thread)
				break
			}
			for r := 0; r < d.numRanks; r++ {
				d.send.Append(thread, r, word)
			}
			sent += d.numRanks
		} else {
			if !d.send.Append(thread, rank, word) {
				src.RejectLast(thread)
				src.SaveEntryPoint(thread)
				break
			}
			sent++
		}
	}

	// Every region with a free slot gets a marker behind
	// its data, and a full region gets no marker, which the
	// receiver reads as "more to come". The stream-end
	// marker is only written in a round where the thread
	// was exhausted before it began: that way every rank
	// receives it in the same round, and the termination
	// verdict cannot diverge between ranks. A thread that
	// ran dry mid-round sends continuation-complete now and
	// stream-end in the next round.
	marker := wire.MarkerComplete()
	if exhausted && sent == 0 {
		marker = wire.MarkerEnd()
	}
	for r := 0; r < d.numRanks; r++ {
		d.send.Append(thread, r, marker)
	}
	return sent
}

// drain scans the received buffer on one goroutine per
// worker thread. Each goroutine hands its own thread's
// records to the consumer; the completion verdict is the
// same on every goroutine, so thread 0's is returned.
func (d *Driver) drain(consume Consumer) (int, bool) {
	received := make([]int, d.numThreads)
	allEnded := make([]bool, d.numThreads)
	var wg sync.WaitGroup
	for t := 0; t < d.numThreads; t++ {
		wg.Add(1)
		thread := t
		go func() {
			defer wg.Done()
			received[thread], allEnded[thread] = d.drainThread(thread, consume)
		}()
	}
	wg.Wait()
	return received[0], allEnded[0]
}

// drainThread scans every (sender rank, sender thread)
// region of the received buffer: data records owned by this
// thread go to the consumer, a continuation-complete marker
// closes the region, and a stream-end marker additionally
// records that the sender is finished for good. A region
// with no marker is full mid-stream data.
func (d *Driver) drainThread(thread int, consume Consumer) (int, bool) {
	chunk := d.send.ChunkSize()
	received := 0
	allEnded := true
	for sender := 0; sender < d.numRanks; sender++ {
		for st := 0; st < d.numThreads; st++ {
			base := sender*chunk + st*d.capacity
			ended := false
		scan:
			for i := 0; i < d.capacity; i++ {
				word := d.recv[base+i]
				switch {
				case wire.IsComplete(word):
					break scan
				case wire.IsEnd(word):
					ended = true
					break scan
				default:
					received++
					if consume != nil && wire.OwnerThread(word) == thread {
						consume(sender, thread, word)
					}
				}
			}
			if !ended {
				allEnded = false
			}
		}
	}
	return received, allEnded
}
