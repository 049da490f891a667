package registry

import (
	"fmt"

	"github.com/unixpickle/spikecomm/wire"
)

type spikeEntry struct {
	synapseType int32
	slot        int32
}

// A SpikeRegister accumulates the spikes a thread's neurons
// emit during one communication time slice, grouped by the
// lag of the emitting sub-step.
//
// It produces records through the same cursor contract as
// the SourceRegistry, but entries live for a single slice:
// there is no sorting, disabling, or compaction, and Clear
// wipes a thread's register at the slice boundary.
//
// Spike records are addressed to every rank, so NextRecord
// reports BroadcastRank as the target.
type SpikeRegister struct {
	numThreads int
	numLags    int

	spikes  [][][]spikeEntry
	cursors []checkpoint
	last    []Cursor
}

// NewSpikeRegister creates a register for the given thread
// count and number of sub-steps per slice. Both dimensions
// are fixed for the register's lifetime.
func NewSpikeRegister(numThreads, numLags int) *SpikeRegister {
	if numThreads < 1 || numThreads > wire.MaxThread+1 {
		panic(fmt.Sprintf("registry: thread count %d outside [1, %d]", numThreads, wire.MaxThread+1))
	}
	if numLags < 1 || numLags > wire.MaxLag+1 {
		panic(fmt.Sprintf("registry: lag count %d outside [1, %d]", numLags, wire.MaxLag+1))
	}
	s := &SpikeRegister{
		numThreads: numThreads,
		numLags:    numLags,
		spikes:     make([][][]spikeEntry, numThreads),
		cursors:    make([]checkpoint, numThreads),
		last:       make([]Cursor, numThreads),
	}
	for t := range s.spikes {
		s.spikes[t] = make([][]spikeEntry, numLags)
		s.cursors[t].reset(Cursor{Thread: t})
		s.last[t] = NoCursor()
	}
	return s
}

// NumThreads returns the thread count.
func (s *SpikeRegister) NumThreads() int {
	return s.numThreads
}

// AddSpike records one emitted spike for the current slice.
func (s *SpikeRegister) AddSpike(thread, synapseType, slot, lag int) {
	s.checkThread(thread)
	if synapseType < 0 || synapseType > wire.MaxSynapseType {
		panic(fmt.Sprintf("registry: synapse type %d outside [0, %d]", synapseType, wire.MaxSynapseType))
	}
	if slot < 0 || slot > wire.MaxLocalSlot {
		panic(fmt.Sprintf("registry: slot %d outside [0, %d]", slot, wire.MaxLocalSlot))
	}
	if lag < 0 || lag >= s.numLags {
		panic(fmt.Sprintf("registry: lag %d outside [0, %d)", lag, s.numLags))
	}
	s.spikes[thread][lag] = append(s.spikes[thread][lag], spikeEntry{
		synapseType: int32(synapseType),
		slot:        int32(slot),
	})
}

// Clear wipes the thread's register and rewinds its cursor.
// Called once at the start of every time slice; the backing
// storage is retained across slices.
func (s *SpikeRegister) Clear(thread int) {
	s.checkThread(thread)
	for lag := range s.spikes[thread] {
		s.spikes[thread][lag] = s.spikes[thread][lag][:0]
	}
	s.cursors[thread].reset(Cursor{Thread: thread})
	s.last[thread] = NoCursor()
}

// NextRecord advances the thread's cursor and returns the
// next spike record of the current slice, in ascending lag
// order. The rank is always BroadcastRank: every rank
// receives every spike and delivers the ones it hosts
// targets for.
//
// The rank interval is accepted for interface symmetry with
// the SourceRegistry; broadcast records belong to every
// non-empty interval.
func (s *SpikeRegister) NextRecord(thread, rankLo, rankHi int) (int, wire.SpikeRecord, bool) {
	s.checkThread(thread)
	if rankLo >= rankHi {
		return 0, 0, false
	}
	cur := &s.cursors[thread].current
	if !cur.Valid() {
		s.last[thread] = NoCursor()
		return 0, 0, false
	}
	for cur.Group < s.numLags {
		list := s.spikes[thread][cur.Group]
		if cur.Index < len(list) {
			e := list[cur.Index]
			s.last[thread] = *cur
			rec := wire.NewSpikeRecord(thread, int(e.synapseType), int(e.slot), cur.Group)
			cur.Index++
			return BroadcastRank, rec, true
		}
		cur.Group++
		cur.Index = 0
	}
	*cur = NoCursor()
	s.last[thread] = NoCursor()
	return 0, 0, false
}

// RejectLast rewinds the thread's cursor to the most
// recently returned spike so it is produced again. Panics
// with no outstanding record.
func (s *SpikeRegister) RejectLast(thread int) {
	s.checkThread(thread)
	lr := s.last[thread]
	if !lr.Valid() {
		panic("registry: RejectLast without an outstanding record")
	}
	s.cursors[thread].current = lr
	s.last[thread] = NoCursor()
}

// SaveEntryPoint checkpoints the thread's cursor.
func (s *SpikeRegister) SaveEntryPoint(thread int) {
	s.checkThread(thread)
	s.cursors[thread].save()
}

// RestoreEntryPoint resumes from a pending checkpoint, if
// one exists.
func (s *SpikeRegister) RestoreEntryPoint(thread int) {
	s.checkThread(thread)
	s.cursors[thread].restore()
}

// ResetEntryPoint rewinds the thread's cursor to the start
// of the slice's spikes and clears any pending checkpoint.
func (s *SpikeRegister) ResetEntryPoint(thread int) {
	s.checkThread(thread)
	s.cursors[thread].reset(Cursor{Thread: thread})
	s.last[thread] = NoCursor()
}

func (s *SpikeRegister) checkThread(thread int) {
	if thread < 0 || thread >= s.numThreads {
		panic(fmt.Sprintf("registry: thread %d outside [0, %d)", thread, s.numThreads))
	}
}
