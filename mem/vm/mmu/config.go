package mmu

import "github.com/sarchlab/vmsa/mem/vm"

// Config holds the choices that the architecture leaves to the
// implementation.
type Config struct {
	// PAMax is the implemented physical address size in bits.
	PAMax int

	// FaultOnTxSZBelowMin makes a TxSZ below the minimum fault instead of
	// being clamped, when FEAT_LVA / FEAT_LPA do not already require it.
	FaultOnTxSZBelowMin bool

	// FaultOnTxSZAboveMax makes a TxSZ above the maximum fault instead of
	// being clamped.
	FaultOnTxSZAboveMax bool

	// AFUpdateOnFault lets hardware set the Access flag even when the access
	// takes an Alignment or Permission fault.
	AFUpdateOnFault bool

	// DirtyUpdateOnAlignmentFault lets hardware update the dirty state even
	// when the access takes an Alignment fault.
	DirtyUpdateOnAlignmentFault bool

	// KeepTaggedWhenCacheDisabled keeps Allocation Tagged memory tagged when
	// the stage 1 data cache is disabled.
	KeepTaggedWhenCacheDisabled bool

	// ApplyEffectiveShareabilityAtS1 makes stage 1 output its effective
	// shareability even when stage 2 follows.
	ApplyEffectiveShareabilityAtS1 bool

	// InstrFromDeviceFaults makes an instruction fetch from Device memory a
	// Permission fault.
	InstrFromDeviceFaults bool

	// AccessFlagFaultOnCacheMaint makes IC and DC instructions take Access
	// flag faults.
	AccessFlagFaultOnCacheMaint bool

	// ReservedS2Attr is the cacheability a reserved stage 2 MemAttr field
	// decodes to.
	ReservedS2Attr vm.MemAttr

	// ReservedShareability is what the reserved SH encoding decodes to.
	ReservedShareability vm.Shareability

	// MaxCASAttempts bounds the number of walks a single translation makes
	// while racing other writers of the same descriptor.
	MaxCASAttempts int
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		PAMax:                       48,
		AccessFlagFaultOnCacheMaint: true,
		ReservedS2Attr:              vm.MemAttrNC,
		ReservedShareability:        vm.ShareabilityOSH,
		MaxCASAttempts:              1024,
	}
}
