package kernel

import (
	"fmt"

	"github.com/unixpickle/spikecomm/collective"
	"github.com/unixpickle/spikecomm/exchange"
	"github.com/unixpickle/spikecomm/registry"
)

// A Kernel is one rank's simulation kernel instance: it
// owns the rank's source registry and spike register and
// drives both exchange phases over an injected collective
// exchanger.
//
// The per-thread surfaces (AddSource, AddSpike, Disable)
// may be called concurrently by different worker threads as
// long as each thread only passes its own thread id; the
// collective surfaces (FinalizeConnectivity,
// GatherConnectivity, ExchangeSpikes) are called by a
// single designated goroutine per rank.
type Kernel struct {
	cfg    Config
	comm   collective.Exchanger
	driver *exchange.Driver

	sources *registry.SourceRegistry
	spikes  *registry.SpikeRegister
}

// New creates a kernel for one rank. The per-thread storage
// of both registries is sized here, exactly once; the
// thread count cannot change afterwards.
func New(cfg *Config, comm collective.Exchanger) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if comm.Size() != cfg.NumRanks {
		return nil, fmt.Errorf("exchanger has %d ranks but config says %d",
			comm.Size(), cfg.NumRanks)
	}
	sources := registry.NewSourceRegistry(cfg.NumThreads, cfg.NumSynapseTypes, cfg.NumRanks)
	sources.CompactionThreshold = cfg.compactionThreshold()
	return &Kernel{
		cfg:     *cfg,
		comm:    comm,
		driver:  exchange.NewDriver(comm, cfg.NumThreads, cfg.BufferCapacity),
		sources: sources,
		spikes:  registry.NewSpikeRegister(cfg.NumThreads, cfg.NumLags),
	}, nil
}

// Rank returns this kernel's rank.
func (k *Kernel) Rank() int {
	return k.comm.Rank()
}

// Sources exposes the source registry for inspection
// (snapshots, lookups). The exchange surfaces above should
// be used for everything else.
func (k *Kernel) Sources() *registry.SourceRegistry {
	return k.sources
}

// AddSource records, during connection building, that a
// remote node projects to one of this thread's local
// connections.
func (k *Kernel) AddSource(thread, synapseType int, remoteID uint64, primary bool) {
	k.sources.AddSource(thread, synapseType, remoteID, primary)
}

// FinalizeConnectivity ends the build phase: the source
// lists are sorted for binary search and record production.
func (k *Kernel) FinalizeConnectivity() {
	k.sources.FinalizeAndSort()
}

// GatherConnectivity runs the build-phase round loop: every
// rank's source registry is paginated into connectivity
// records and exchanged until global quiescence. Drained
// records are handed to consume on the owning thread's
// goroutine.
//
// This is a collective call.
func (k *Kernel) GatherConnectivity(consume exchange.Consumer) exchange.RunStats {
	return k.driver.Run(exchange.ConnectivitySource(k.sources), consume)
}

// StartSlice clears every thread's spike register for the
// next communication time slice.
func (k *Kernel) StartSlice() {
	for t := 0; t < k.cfg.NumThreads; t++ {
		k.spikes.Clear(t)
	}
}

// AddSpike records a spike emitted by one of this thread's
// neurons during the current slice.
func (k *Kernel) AddSpike(thread, synapseType, slot, lag int) {
	k.spikes.AddSpike(thread, synapseType, slot, lag)
}

// ExchangeSpikes runs the per-slice round loop over the
// spike register. Every rank receives every spike; consume
// decides which ones it hosts targets for.
//
// This is a collective call.
func (k *Kernel) ExchangeSpikes(consume exchange.Consumer) exchange.RunStats {
	return k.driver.Run(exchange.SpikeSource(k.spikes), consume)
}

// Disable marks one connection as pruned by the
// structural-plasticity layer. The slot stays occupied
// until a later Compact.
func (k *Kernel) Disable(thread, synapseType, slot int) {
	k.sources.Disable(thread, synapseType, slot)
}

// Compact physically removes the thread's pruned
// connections once enough of them have accumulated.
func (k *Kernel) Compact(thread int) {
	k.sources.Compact(thread)
}

// FindFirst locates the first enabled connection slot for a
// remote node id.
func (k *Kernel) FindFirst(thread, synapseType int, remoteID uint64) (int, bool) {
	return k.sources.FindFirst(thread, synapseType, remoteID)
}
