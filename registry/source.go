// Package registry stores the per-thread connectivity and
// spike data that the exchange protocol paginates into
// fixed-capacity communication rounds.
//
// Both registries hand out one packed wire record at a
// time through a resumable Cursor, so a caller that runs
// out of buffer space can reject the record that did not
// fit, checkpoint the cursor, and resume in the next round
// without losing or duplicating entries.
package registry

import (
	"fmt"
	"sort"

	"github.com/unixpickle/spikecomm/wire"
)

// DefaultCompactionThreshold is the number of disabled
// entries a thread accumulates before Compact physically
// removes them. Removal shifts every later slot, so it is
// amortized over many disables.
const DefaultCompactionThreshold = 1 << 20

// BroadcastRank is returned as the target rank by sources
// whose records are delivered to every rank.
const BroadcastRank = -1

type entryState uint8

const (
	stateUntouched entryState = iota
	stateProcessed
	stateDisabled
)

type sourceEntry struct {
	remoteID uint64
	primary  bool
	state    entryState
}

// SourceInfo describes one remote-source entry for
// inspection (snapshots, tests).
type SourceInfo struct {
	Thread      int
	SynapseType int
	Slot        int
	RemoteID    uint64
	Primary     bool
	Disabled    bool
}

// A SourceRegistry owns, per thread and per synapse type,
// the ordered list of remote sources discovered during
// connection building, and produces connectivity records
// from them one at a time.
//
// Each thread exclusively mutates its own lists and cursor;
// no locking is done here.
type SourceRegistry struct {
	// CompactionThreshold is the number of disabled entries
	// per thread beyond which Compact actually runs.
	CompactionThreshold int

	numThreads int
	numSyn     int
	numRanks   int

	sources   [][][]sourceEntry
	cursors   []checkpoint
	last      []Cursor
	disabled  []int
	cleared   []bool
	finalized bool
}

// NewSourceRegistry creates an empty registry. The three
// dimensions are fixed for the registry's lifetime; the
// per-thread storage is sized exactly once, here.
//
// Dimensions that do not fit the wire format are a scale
// configuration error and cause a panic.
func NewSourceRegistry(numThreads, numSynapseTypes, numRanks int) *SourceRegistry {
	if numThreads < 1 || numThreads > wire.MaxThread+1 {
		panic(fmt.Sprintf("registry: thread count %d outside [1, %d]", numThreads, wire.MaxThread+1))
	}
	if numSynapseTypes < 1 || numSynapseTypes > wire.MaxSynapseType+1 {
		panic(fmt.Sprintf("registry: synapse type count %d outside [1, %d]",
			numSynapseTypes, wire.MaxSynapseType+1))
	}
	if numRanks < 1 || numRanks > wire.MaxRank+1 {
		panic(fmt.Sprintf("registry: rank count %d outside [1, %d]", numRanks, wire.MaxRank+1))
	}
	r := &SourceRegistry{
		CompactionThreshold: DefaultCompactionThreshold,
		numThreads:          numThreads,
		numSyn:              numSynapseTypes,
		numRanks:            numRanks,
		sources:             make([][][]sourceEntry, numThreads),
		cursors:             make([]checkpoint, numThreads),
		last:                make([]Cursor, numThreads),
		disabled:            make([]int, numThreads),
		cleared:             make([]bool, numThreads),
	}
	for t := range r.sources {
		r.sources[t] = make([][]sourceEntry, numSynapseTypes)
		r.cursors[t].reset(Cursor{Thread: t})
		r.last[t] = NoCursor()
	}
	return r
}

// NumThreads returns the thread count.
func (r *SourceRegistry) NumThreads() int {
	return r.numThreads
}

// NumRanks returns the rank count.
func (r *SourceRegistry) NumRanks() int {
	return r.numRanks
}

// RankOf returns the rank owning a remote node. Nodes are
// distributed round-robin across ranks.
func (r *SourceRegistry) RankOf(remoteID uint64) int {
	return int(remoteID % uint64(r.numRanks))
}

// AddSource appends a remote source discovered during
// connection building.
func (r *SourceRegistry) AddSource(thread, synapseType int, remoteID uint64, primary bool) {
	if r.finalized {
		panic("registry: AddSource after FinalizeAndSort")
	}
	r.checkThread(thread)
	r.checkSyn(synapseType)
	r.sources[thread][synapseType] = append(r.sources[thread][synapseType], sourceEntry{
		remoteID: remoteID,
		primary:  primary,
	})
}

// FinalizeAndSort ends the build phase: every list is
// sorted by remote node id so slots can be found by binary
// search. It must be called exactly once, before any
// NextRecord or FindFirst call.
func (r *SourceRegistry) FinalizeAndSort() {
	if r.finalized {
		panic("registry: FinalizeAndSort called twice")
	}
	r.finalized = true
	for t := range r.sources {
		for syn := range r.sources[t] {
			list := r.sources[t][syn]
			sort.SliceStable(list, func(i, j int) bool {
				return list[i].remoteID < list[j].remoteID
			})
		}
	}
}

// NextRecord advances the thread's cursor to the next
// unprocessed entry whose owning rank lies in
// [rankLo, rankHi) and returns its target rank and packed
// record. The entry is marked processed before it is
// returned; RejectLast is the only way to un-mark it.
//
// The second return value is false once the thread's lists
// are exhausted; the cursor then reads as NoCursor. An
// empty or out-of-range rank interval simply yields no
// records.
func (r *SourceRegistry) NextRecord(thread, rankLo, rankHi int) (int, wire.ConnRecord, bool) {
	if !r.finalized {
		panic("registry: NextRecord before FinalizeAndSort")
	}
	r.checkThread(thread)
	if r.cleared[thread] {
		panic("registry: NextRecord on a cleared thread")
	}
	cur := &r.cursors[thread].current
	if !cur.Valid() {
		r.last[thread] = NoCursor()
		return 0, 0, false
	}
	for cur.Group < r.numSyn {
		list := r.sources[thread][cur.Group]
		for cur.Index < len(list) {
			e := &list[cur.Index]
			if e.state != stateUntouched {
				cur.Index++
				continue
			}
			rank := r.RankOf(e.remoteID)
			if rank < rankLo || rank >= rankHi {
				cur.Index++
				continue
			}
			e.state = stateProcessed
			r.last[thread] = *cur
			rec := wire.NewConnRecord(thread, cur.Group, cur.Index, rank, e.primary)
			cur.Index++
			return rank, rec, true
		}
		cur.Group++
		cur.Index = 0
	}
	*cur = NoCursor()
	r.last[thread] = NoCursor()
	return 0, 0, false
}

// RejectLast undoes the most recent NextRecord on the
// thread: the entry's processed mark is removed and the
// cursor rewinds to it, so the next NextRecord returns the
// same entry again. Used when the returned record did not
// fit in the current round's buffer.
//
// Calling RejectLast with no outstanding record is a
// protocol violation.
func (r *SourceRegistry) RejectLast(thread int) {
	r.checkThread(thread)
	lr := r.last[thread]
	if !lr.Valid() {
		panic("registry: RejectLast without an outstanding record")
	}
	r.sources[thread][lr.Group][lr.Index].state = stateUntouched
	r.cursors[thread].current = lr
	r.last[thread] = NoCursor()
}

// SaveEntryPoint checkpoints the thread's cursor. Panics if
// a checkpoint is already pending.
func (r *SourceRegistry) SaveEntryPoint(thread int) {
	r.checkThread(thread)
	r.cursors[thread].save()
}

// RestoreEntryPoint resumes the thread's cursor from its
// pending checkpoint, if one exists.
func (r *SourceRegistry) RestoreEntryPoint(thread int) {
	r.checkThread(thread)
	r.cursors[thread].restore()
}

// ResetEntryPoint rewinds the thread's cursor to the start
// of its lists, the position with the maximal amount of
// data still ahead of it, and clears any pending
// checkpoint. Lists are traversed front to back.
func (r *SourceRegistry) ResetEntryPoint(thread int) {
	r.checkThread(thread)
	r.cursors[thread].reset(Cursor{Thread: thread})
	r.last[thread] = NoCursor()
}

// ResetProcessed clears the processed mark from every entry
// of the thread, making the full connectivity available for
// another exchange.
func (r *SourceRegistry) ResetProcessed(thread int) {
	r.checkThread(thread)
	for syn := range r.sources[thread] {
		list := r.sources[thread][syn]
		for i := range list {
			if list[i].state == stateProcessed {
				list[i].state = stateUntouched
			}
		}
	}
}

// Disable marks one connection slot as disabled. Disabled
// entries are skipped by NextRecord and FindFirst and are
// physically removed by a later Compact.
func (r *SourceRegistry) Disable(thread, synapseType, slot int) {
	r.checkThread(thread)
	r.checkSyn(synapseType)
	list := r.sources[thread][synapseType]
	if slot < 0 || slot >= len(list) {
		panic(fmt.Sprintf("registry: slot %d outside [0, %d)", slot, len(list)))
	}
	if list[slot].state != stateDisabled {
		list[slot].state = stateDisabled
		r.disabled[thread]++
	}
}

// Compact removes the thread's disabled entries in a single
// pass per list. It only does work once the number of
// disabled entries exceeds CompactionThreshold, so a small
// number of removals never forces a full list copy.
//
// Compact must not run while the thread has a pending
// checkpoint: removal shifts slot indices and would
// invalidate the saved position.
func (r *SourceRegistry) Compact(thread int) {
	r.checkThread(thread)
	if r.cursors[thread].pending {
		panic("registry: Compact with a pending checkpoint")
	}
	if r.disabled[thread] <= r.CompactionThreshold {
		return
	}
	for syn := range r.sources[thread] {
		list := r.sources[thread][syn]
		kept := list[:0]
		for _, e := range list {
			if e.state != stateDisabled {
				kept = append(kept, e)
			}
		}
		r.sources[thread][syn] = kept
	}
	r.disabled[thread] = 0
	r.cursors[thread].reset(Cursor{Thread: thread})
	r.last[thread] = NoCursor()
}

// FindFirst locates the first enabled entry for a remote
// node id in the thread's sorted list, scanning forward
// past disabled entries with the same id. The second return
// value is false if the id is absent or fully disabled.
func (r *SourceRegistry) FindFirst(thread, synapseType int, remoteID uint64) (int, bool) {
	if !r.finalized {
		panic("registry: FindFirst before FinalizeAndSort")
	}
	r.checkThread(thread)
	r.checkSyn(synapseType)
	list := r.sources[thread][synapseType]
	i := sort.Search(len(list), func(i int) bool {
		return list[i].remoteID >= remoteID
	})
	for ; i < len(list) && list[i].remoteID == remoteID; i++ {
		if list[i].state != stateDisabled {
			return i, true
		}
	}
	return 0, false
}

// Clear releases the thread's lists. Requesting records
// from a cleared thread afterwards is a logic error.
func (r *SourceRegistry) Clear(thread int) {
	r.checkThread(thread)
	r.sources[thread] = make([][]sourceEntry, r.numSyn)
	r.cleared[thread] = true
	r.disabled[thread] = 0
	r.cursors[thread].reset(NoCursor())
	r.last[thread] = NoCursor()
}

// ForEachSource calls f for every live entry in slot order.
// Intended for snapshots and tests, not for the exchange
// path.
func (r *SourceRegistry) ForEachSource(f func(info SourceInfo)) {
	for t := range r.sources {
		for syn := range r.sources[t] {
			for slot, e := range r.sources[t][syn] {
				f(SourceInfo{
					Thread:      t,
					SynapseType: syn,
					Slot:        slot,
					RemoteID:    e.remoteID,
					Primary:     e.primary,
					Disabled:    e.state == stateDisabled,
				})
			}
		}
	}
}

func (r *SourceRegistry) checkThread(thread int) {
	if thread < 0 || thread >= r.numThreads {
		panic(fmt.Sprintf("registry: thread %d outside [0, %d)", thread, r.numThreads))
	}
}

func (r *SourceRegistry) checkSyn(synapseType int) {
	if synapseType < 0 || synapseType >= r.numSyn {
		panic(fmt.Sprintf("registry: synapse type %d outside [0, %d)", synapseType, r.numSyn))
	}
}
