package mmu

import "github.com/sarchlab/vmsa/mem/vm"

// RegisterProvider exposes the system register state that controls
// translation.
type RegisterProvider interface {
	// PEState returns the state that selects the translation regime.
	PEState() vm.PEState

	// SCTLR returns the system control bits of the regime.
	SCTLR(regime vm.Regime) vm.SystemControl

	// S1TTWParams returns the stage 1 walk parameters of the regime for the
	// VA range that va belongs to.
	S1TTWParams(
		regime vm.Regime,
		ss vm.SecurityState,
		va uint64,
	) vm.S1TTWParams

	// S2TTWParams returns the stage 2 walk parameters for an IPA in ipaspace.
	S2TTWParams(ss vm.SecurityState, ipaspace vm.PASpace) vm.S2TTWParams
}

// PhysicalMemory holds the translation tables.
type PhysicalMemory interface {
	// Read reads size bytes at the descriptor's physical address and returns
	// them as a little-endian value.
	Read(
		desc vm.AddressDescriptor,
		size int,
		accdesc vm.AccessDescriptor,
	) (vm.PhysMemRetStatus, uint64)

	// CompareAndSwap atomically replaces the 64-bit value at the descriptor's
	// physical address with newValue if it equals oldValue. It returns the
	// value held by memory after the operation.
	CompareAndSwap(
		desc vm.AddressDescriptor,
		oldValue, newValue uint64,
		accdesc vm.AccessDescriptor,
	) (vm.PhysMemRetStatus, uint64)
}

// EncryptionTagger assigns memory encryption context IDs.
type EncryptionTagger interface {
	S1OutputMECID(
		params vm.S1TTWParams,
		regime vm.Regime,
		varange vm.VARange,
		paspace vm.PASpace,
		descriptor uint64,
	) uint16
	S2OutputMECID(
		params vm.S2TTWParams,
		paspace vm.PASpace,
		descriptor uint64,
	) uint16
	S1DisabledOutputMECID(
		params vm.S1TTWParams,
		regime vm.Regime,
		paspace vm.PASpace,
	) uint16
	TTWalkMECID(emec bool, regime vm.Regime, ss vm.SecurityState) uint16
}

// DirtyTracker records IPAs whose stage 2 dirty state is set by hardware.
type DirtyTracker interface {
	// Append records the IPA. A faulting status is returned when the record
	// write is aborted. A non-nil error reports any other failure.
	Append(
		ipa vm.FullAddress,
		accdesc vm.AccessDescriptor,
		params vm.S2TTWParams,
		level int,
	) (vm.PhysMemRetStatus, error)
}

// AbortHandler classifies external aborts taken by table walk accesses.
type AbortHandler interface {
	HandleExternalTTWAbort(
		status vm.PhysMemRetStatus,
		isWrite bool,
		desc vm.AddressDescriptor,
		accdesc vm.AccessDescriptor,
		size int,
		fault vm.FaultRecord,
	) vm.FaultRecord
}

// GuardedPageSink receives the guarded page property of fetched instructions.
type GuardedPageSink interface {
	SetInGuardedPage(guarded bool)
}

// TranslationCache caches successful translations.
type TranslationCache interface {
	Lookup(
		ctx vm.TLBContext,
		accdesc vm.AccessDescriptor,
		va uint64,
	) (vm.TLBRecord, bool)
	Insert(
		ctx vm.TLBContext,
		accdesc vm.AccessDescriptor,
		va uint64,
		record vm.TLBRecord,
	)
}
