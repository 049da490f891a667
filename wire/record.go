// Package wire defines the fixed-width, bit-packed record
// formats exchanged between ranks during connectivity and
// spike communication rounds.
//
// Records are explicit uint64 values assembled with shifts
// and masks rather than struct bitfields, so their layout
// is identical on every platform. Two values of the local
// slot field are reserved as out-of-band markers: a
// "complete" marker meaning "no more data this round" and
// an "end" marker meaning "no more data in any future
// round".
package wire

import "fmt"

// Bit widths of the packed fields.
const (
	slotBits   = 27
	synBits    = 6
	threadBits = 10
	rankBits   = 20
	lagBits    = 14
)

// Bit offsets within a packed record. The slot, synapse
// type, and thread fields occupy the same positions in
// both record types.
const (
	slotShift   = 0
	synShift    = slotShift + slotBits
	threadShift = synShift + synBits
	rankShift   = threadShift + threadBits
	lagShift    = threadShift + threadBits

	primaryShift = rankShift + rankBits
)

const (
	slotMask   = 1<<slotBits - 1
	synMask    = 1<<synBits - 1
	threadMask = 1<<threadBits - 1
	rankMask   = 1<<rankBits - 1
	lagMask    = 1<<lagBits - 1
)

// Marker sentinels, stored in the slot field. Legal slot
// values are strictly below both.
const (
	slotComplete = slotMask
	slotEnd      = slotMask - 1
)

// Inclusive upper bounds for the legal value of each
// field. Exceeding any of these is a configuration-scale
// error and causes record construction to panic.
const (
	MaxThread      = 1<<threadBits - 1
	MaxSynapseType = 1<<synBits - 1
	MaxLocalSlot   = slotEnd - 1
	MaxRank        = 1<<rankBits - 1
	MaxLag         = 1<<lagBits - 1
)

func checkField(name string, value, max int) {
	if value < 0 || value > max {
		panic(fmt.Sprintf("wire: %s %d outside [0, %d]", name, value, max))
	}
}

// A ConnRecord identifies one remote connection target: the
// thread and synapse type that own the connection, the slot
// in that thread's per-type connection list, the rank where
// the record should be delivered, and whether the
// connection is primary (carries discrete spike events).
type ConnRecord uint64

// NewConnRecord packs a connectivity record.
//
// It panics if any field is outside its legal range; a
// value that does not fit the wire format is a scale
// configuration error, not a recoverable condition.
func NewConnRecord(thread, synapseType, slot, rank int, primary bool) ConnRecord {
	checkField("thread", thread, MaxThread)
	checkField("synapse type", synapseType, MaxSynapseType)
	checkField("slot", slot, MaxLocalSlot)
	checkField("rank", rank, MaxRank)
	r := ConnRecord(slot)<<slotShift |
		ConnRecord(synapseType)<<synShift |
		ConnRecord(thread)<<threadShift |
		ConnRecord(rank)<<rankShift
	if primary {
		r |= 1 << primaryShift
	}
	return r
}

// Thread returns the owning thread id.
func (c ConnRecord) Thread() int {
	return int(c>>threadShift) & threadMask
}

// SynapseType returns the synapse type index.
func (c ConnRecord) SynapseType() int {
	return int(c>>synShift) & synMask
}

// Slot returns the local connection slot.
func (c ConnRecord) Slot() int {
	return int(c>>slotShift) & slotMask
}

// Rank returns the target rank.
func (c ConnRecord) Rank() int {
	return int(c>>rankShift) & rankMask
}

// Primary reports whether the connection carries discrete
// spike events rather than continuous secondary events.
func (c ConnRecord) Primary() bool {
	return c>>primaryShift&1 != 0
}

// MarkComplete overwrites the marker field with the
// continuation-complete sentinel. The remaining bits keep
// whatever value they had; they carry no meaning in a
// marker record.
func (c ConnRecord) MarkComplete() ConnRecord {
	return c&^(slotMask<<slotShift) | slotComplete<<slotShift
}

// MarkEnd overwrites the marker field with the stream-end
// sentinel.
func (c ConnRecord) MarkEnd() ConnRecord {
	return c&^(slotMask<<slotShift) | slotEnd<<slotShift
}

// IsComplete reports whether the record is a
// continuation-complete marker.
func (c ConnRecord) IsComplete() bool {
	return c.Slot() == slotComplete
}

// IsEnd reports whether the record is a stream-end marker.
func (c ConnRecord) IsEnd() bool {
	return c.Slot() == slotEnd
}

// IsMarker reports whether the record is either marker.
func (c ConnRecord) IsMarker() bool {
	return c.IsComplete() || c.IsEnd()
}

// A SpikeRecord identifies one emitted spike: the thread
// and synapse type owning the target connection, the local
// connection slot, and the lag of the spike within the
// current communication time slice.
type SpikeRecord uint64

// NewSpikeRecord packs a spike record.
//
// Like NewConnRecord, it panics on any out-of-range field.
func NewSpikeRecord(thread, synapseType, slot, lag int) SpikeRecord {
	checkField("thread", thread, MaxThread)
	checkField("synapse type", synapseType, MaxSynapseType)
	checkField("slot", slot, MaxLocalSlot)
	checkField("lag", lag, MaxLag)
	return SpikeRecord(slot)<<slotShift |
		SpikeRecord(synapseType)<<synShift |
		SpikeRecord(thread)<<threadShift |
		SpikeRecord(lag)<<lagShift
}

// Thread returns the owning thread id.
func (s SpikeRecord) Thread() int {
	return int(s>>threadShift) & threadMask
}

// SynapseType returns the synapse type index.
func (s SpikeRecord) SynapseType() int {
	return int(s>>synShift) & synMask
}

// Slot returns the local connection slot.
func (s SpikeRecord) Slot() int {
	return int(s>>slotShift) & slotMask
}

// Lag returns the spike's sub-step position within the
// time slice.
func (s SpikeRecord) Lag() int {
	return int(s>>lagShift) & lagMask
}

// MarkComplete overwrites the marker field with the
// continuation-complete sentinel.
func (s SpikeRecord) MarkComplete() SpikeRecord {
	return s&^(slotMask<<slotShift) | slotComplete<<slotShift
}

// MarkEnd overwrites the marker field with the stream-end
// sentinel.
func (s SpikeRecord) MarkEnd() SpikeRecord {
	return s&^(slotMask<<slotShift) | slotEnd<<slotShift
}

// IsComplete reports whether the record is a
// continuation-complete marker.
func (s SpikeRecord) IsComplete() bool {
	return s.Slot() == slotComplete
}

// IsEnd reports whether the record is a stream-end marker.
func (s SpikeRecord) IsEnd() bool {
	return s.Slot() == slotEnd
}

// IsMarker reports whether the record is either marker.
func (s SpikeRecord) IsMarker() bool {
	return s.IsComplete() || s.IsEnd()
}

func init() {
	// The marker sentinels must sit strictly above every
	// legal slot value, and the packed fields must fit a
	// single uint64.
	if MaxLocalSlot >= slotEnd || slotEnd >= slotComplete {
		panic("wire: marker sentinels overlap legal slot values")
	}
	if primaryShift+1 > 64 || lagShift+lagBits > 64 {
		panic("wire: record fields exceed 64 bits")
	}
}
