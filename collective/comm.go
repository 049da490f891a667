// Package collective provides the collective-exchange
// capability the round protocol is driven around, plus an
// in-process implementation for tests and single-process
// multi-rank runs.
//
// The protocol core only depends on the interfaces here; a
// production deployment substitutes an implementation
// backed by real transport.
package collective

// An Exchanger performs uniform-count collective exchanges
// for one rank of a group. Calls are collective: every rank
// of the group must make the same call, and the call blocks
// all ranks symmetrically.
type Exchanger interface {
	// Rank returns this rank's index in the group.
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// Alltoall exchanges fixed-size chunks: send holds
	// Size() chunks of chunk records each, chunk i
	// addressed to rank i; on return recv holds one chunk
	// from every rank, in rank order.
	Alltoall(send, recv []uint64, chunk int)
}

// A VarExchanger additionally supports variable per-rank
// counts, for callers whose send sizes are not known to be
// equal across ranks. The round protocol itself always uses
// Alltoall (its region capacity makes chunk sizes uniform
// by construction); Allgatherv is the path for external
// collaborators such as size negotiation between rounds.
type VarExchanger interface {
	Exchanger

	// Allgatherv gathers every rank's entire send buffer on
	// every rank. The result has one slice per rank, in
	// rank order; lengths may differ between ranks.
	Allgatherv(send []uint64) [][]uint64
}
