package agent

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// PartitionedRNG provides isolated, deterministically derived RNG
// streams per subsystem so that adding randomness to one part of the
// pipeline never perturbs another. All randomness in the core (weight
// init, exploration sampling, patient synthesis, occupancy drift,
// dropout, minibatch shuffling) flows from one master seed through these
// streams, keeping training runs reproducible.
type PartitionedRNG struct {
	masterSeed int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a partitioned RNG with the given master seed.
func NewPartitionedRNG(masterSeed int64) *PartitionedRNG {
	return &PartitionedRNG{
		masterSeed: masterSeed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the RNG stream for the given subsystem name,
// created lazily. Repeated calls with the same name return the same
// instance. Streams are derived order-independently:
// subsystemSeed = masterSeed XOR hash(name).
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	rng := rand.New(rand.NewSource(p.masterSeed ^ int64(h.Sum64())))
	p.subsystems[name] = rng
	return rng
}

// ForWorker returns the RNG stream for a rollout collection worker.
func (p *PartitionedRNG) ForWorker(id int) *rand.Rand {
	return p.ForSubsystem(fmt.Sprintf("worker_%d", id))
}

// Subsystem name constants for common streams.
const (
	SubsystemInit     = "init"
	SubsystemPolicy   = "policy"
	SubsystemDropout  = "dropout"
	SubsystemShuffle  = "shuffle"
	SubsystemPatients = "patients"
)
