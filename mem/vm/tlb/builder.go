package tlb

import (
	"log"
	"math/bits"
)

// A Builder can build TLBs
type Builder struct {
	numSets int
	numWays int
	state   string
}

// MakeBuilder returns a Builder
func MakeBuilder() Builder {
	return Builder{
		numSets: 1,
		numWays: 32,
		state:   tlbStateEnable,
	}
}

// WithNumSets sets the number of sets in a TLB. Use 1 for fully associated
// TLBs. The number of sets must be a power of 2.
func (b Builder) WithNumSets(n int) Builder {
	b.numSets = n
	return b
}

// WithNumWays sets the number of ways in each set.
func (b Builder) WithNumWays(n int) Builder {
	b.numWays = n
	return b
}

// WithDisabled makes the TLB start disabled. A disabled TLB misses on every
// lookup and drops every insertion.
func (b Builder) WithDisabled() Builder {
	b.state = tlbStateDisable
	return b
}

// Build creates a new TLB
func (b Builder) Build(name string) *TLB {
	if b.numSets <= 0 || bits.OnesCount(uint(b.numSets)) != 1 {
		log.Panicf("number of sets must be a power of 2, got %d", b.numSets)
	}

	if b.numWays <= 0 {
		log.Panicf("number of ways must be positive, got %d", b.numWays)
	}

	tlb := &TLB{
		name:    name,
		numSets: b.numSets,
		numWays: b.numWays,
		state:   b.state,
	}

	tlb.reset()

	return tlb
}
