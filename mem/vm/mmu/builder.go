package mmu

import (
	"log"

	"github.com/sarchlab/vmsa/mem/vm"
	"github.com/sarchlab/vmsa/sim/id"
)

// A Builder can build Translators.
type Builder struct {
	features     vm.FeatureSet
	cfg          Config
	regs         RegisterProvider
	mem          PhysicalMemory
	tagger       EncryptionTagger
	dirtyTracker DirtyTracker
	abortHandler AbortHandler
	guardedSink  GuardedPageSink
	cache        TranslationCache
	idGen        id.IDGenerator
}

// MakeBuilder creates a new builder with the default configuration and no
// optional features.
func MakeBuilder() Builder {
	return Builder{
		features: vm.NewFeatureSet(),
		cfg:      DefaultConfig(),
	}
}

// WithRegisters sets the register state the translator reads.
func (b Builder) WithRegisters(regs RegisterProvider) Builder {
	b.regs = regs
	return b
}

// WithMemory sets the physical memory that holds the translation tables.
func (b Builder) WithMemory(mem PhysicalMemory) Builder {
	b.mem = mem
	return b
}

// WithFeatures sets the implemented architecture features.
func (b Builder) WithFeatures(features vm.FeatureSet) Builder {
	b.features = features
	return b
}

// WithConfig sets the implementation choices.
func (b Builder) WithConfig(cfg Config) Builder {
	b.cfg = cfg
	return b
}

// WithEncryptionTagger sets the source of memory encryption context IDs.
// Without one every output carries the default MECID.
func (b Builder) WithEncryptionTagger(tagger EncryptionTagger) Builder {
	b.tagger = tagger
	return b
}

// WithDirtyTracker sets where stage 2 dirty state changes are recorded.
func (b Builder) WithDirtyTracker(tracker DirtyTracker) Builder {
	b.dirtyTracker = tracker
	return b
}

// WithAbortHandler sets the handler of external aborts on table walks.
func (b Builder) WithAbortHandler(handler AbortHandler) Builder {
	b.abortHandler = handler
	return b
}

// WithGuardedPageSink sets the receiver of the guarded page property of
// instruction fetches.
func (b Builder) WithGuardedPageSink(sink GuardedPageSink) Builder {
	b.guardedSink = sink
	return b
}

// WithTLB sets the cache that full translations are looked up in.
func (b Builder) WithTLB(cache TranslationCache) Builder {
	b.cache = cache
	return b
}

// WithIDGenerator sets the generator of task IDs reported to hooks.
func (b Builder) WithIDGenerator(gen id.IDGenerator) Builder {
	b.idGen = gen
	return b
}

// Build creates a Translator.
func (b Builder) Build(name string) *Translator {
	if b.regs == nil {
		log.Panicf("translator %s: register provider is not set", name)
	}

	if b.mem == nil {
		log.Panicf("translator %s: physical memory is not set", name)
	}

	if b.cfg.MaxCASAttempts <= 0 {
		log.Panicf("translator %s: MaxCASAttempts must be positive", name)
	}

	t := &Translator{
		name:         name,
		features:     b.features,
		cfg:          b.cfg,
		regs:         b.regs,
		mem:          b.mem,
		tagger:       b.tagger,
		dirtyTracker: b.dirtyTracker,
		abortHandler: b.abortHandler,
		guardedSink:  b.guardedSink,
		cache:        b.cache,
		idGen:        b.idGen,
	}

	if t.features == nil {
		t.features = vm.NewFeatureSet()
	}

	if t.abortHandler == nil {
		t.abortHandler = NewDefaultAbortHandler()
	}

	if t.idGen == nil {
		t.idGen = id.NewIDGenerator()
	}

	return t
}
