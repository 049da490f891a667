package exchange

import "github.com/unixpickle/spikecomm/registry"

// connSource adapts a SourceRegistry to the driver's raw
// buffer-word view.
type connSource struct {
	reg *registry.SourceRegistry
}

// ConnectivitySource wraps a source registry as a
// RecordSource for the build-phase exchange.
func ConnectivitySource(reg *registry.SourceRegistry) RecordSource {
	return connSource{reg: reg}
}

func (c connSource) NextRecord(thread, rankLo, rankHi int) (int, uint64, bool) {
	rank, rec, ok := c.reg.NextRecord(thread, rankLo, rankHi)
	return rank, uint64(rec), ok
}

func (c connSource) RejectLast(thread int)        { c.reg.RejectLast(thread) }
func (c connSource) SaveEntryPoint(thread int)    { c.reg.SaveEntryPoint(thread) }
func (c connSource) RestoreEntryPoint(thread int) { c.reg.RestoreEntryPoint(thread) }
func (c connSource) ResetEntryPoint(thread int)   { c.reg.ResetEntryPoint(thread) }

// spikeSource adapts a SpikeRegister the same way.
type spikeSource struct {
	reg *registry.SpikeRegister
}

// SpikeSource wraps a spike register as a RecordSource for
// the per-slice exchange.
func SpikeSource(reg *registry.SpikeRegister) RecordSource {
	return spikeSource{reg: reg}
}

func (s spikeSource) NextRecord(thread, rankLo, rankHi int) (int, uint64, bool) {
	rank, rec, ok := s.reg.NextRecord(thread, rankLo, rankHi)
	return rank, uint64(rec), ok
}

func (s spikeSource) RejectLast(thread int)        { s.reg.RejectLast(thread) }
func (s spikeSource) SaveEntryPoint(thread int)    { s.reg.SaveEntryPoint(thread) }
func (s spikeSource) RestoreEntryPoint(thread int) { s.reg.RestoreEntryPoint(thread) }
func (s spikeSource) ResetEntryPoint(thread int)   { s.reg.ResetEntryPoint(thread) }
