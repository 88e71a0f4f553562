// Package vm provides the data model of AArch64 address translation:
// access descriptors, faults, memory attributes and walk state.
package vm

// AccessType is the kind of an access that requests a translation.
type AccessType uint8

// The access types.
const (
	AccessTypeIFETCH AccessType = iota
	AccessTypeGPR
	AccessTypeASIMD
	AccessTypeSVE
	AccessTypeSME
	AccessTypeIC
	AccessTypeDC
	AccessTypeDCZero
	AccessTypeAT
	AccessTypeNV2
	AccessTypeSPE
	AccessTypeGCS
	AccessTypeTRBE
	AccessTypeGPTW
	AccessTypeHDBSS
	AccessTypeTTW
)

var accessTypeNames = [...]string{
	AccessTypeIFETCH: "IFETCH",
	AccessTypeGPR:    "GPR",
	AccessTypeASIMD:  "ASIMD",
	AccessTypeSVE:    "SVE",
	AccessTypeSME:    "SME",
	AccessTypeIC:     "IC",
	AccessTypeDC:     "DC",
	AccessTypeDCZero: "DCZero",
	AccessTypeAT:     "AT",
	AccessTypeNV2:    "NV2",
	AccessTypeSPE:    "SPE",
	AccessTypeGCS:    "GCS",
	AccessTypeTRBE:   "TRBE",
	AccessTypeGPTW:   "GPTW",
	AccessTypeHDBSS:  "HDBSS",
	AccessTypeTTW:    "TTW",
}

func (t AccessType) String() string {
	if int(t) < len(accessTypeNames) {
		return accessTypeNames[t]
	}

	return "Unknown"
}

// ParseAccessType returns the access type with the given name.
func ParseAccessType(name string) (AccessType, bool) {
	for i, n := range accessTypeNames {
		if n == name {
			return AccessType(i), true
		}
	}

	return 0, false
}

// CacheOp is the operation of a cache maintenance instruction.
type CacheOp uint8

// The cache maintenance operations.
const (
	CacheOpNone CacheOp = iota
	CacheOpClean
	CacheOpInvalidate
	CacheOpCleanInvalidate
)

// CacheOpScope is the scope of a cache maintenance instruction.
type CacheOpScope uint8

// The cache maintenance scopes.
const (
	CacheOpScopeNone CacheOpScope = iota
	CacheOpScopeSetWay
	CacheOpScopePoU
	CacheOpScopePoC
	CacheOpScopePoE
	CacheOpScopePoP
	CacheOpScopePoDP
	CacheOpScopePoPA
	CacheOpScopeALLU
	CacheOpScopeALLUIS
)

// CacheType is the cache a maintenance instruction targets.
type CacheType uint8

// The cache types.
const (
	CacheTypeData CacheType = iota
	CacheTypeTag
	CacheTypeDataTag
	CacheTypeInstruction
)

// MemAtomicOp is the operation of an atomic access.
type MemAtomicOp uint8

// The atomic operations.
const (
	MemAtomicOpNone MemAtomicOp = iota
	MemAtomicOpADD
	MemAtomicOpBIC
	MemAtomicOpEOR
	MemAtomicOpORR
	MemAtomicOpSWP
	MemAtomicOpCAS
)

// PARTIDSpace is the MPAM partition ID space.
type PARTIDSpace = PASpace

// MPAMInfo is the MPAM label that travels with an access.
type MPAMInfo struct {
	MPAMSP PARTIDSpace
	PARTID uint16
	PMG    uint8
}

// An AccessDescriptor describes one memory access that needs translation.
type AccessDescriptor struct {
	AccType        AccessType
	EL             EL
	SS             SecurityState
	AcqSC          bool
	AcqPC          bool
	RelSC          bool
	LimitedOrdered bool
	Exclusive      bool
	AtomicOp       bool
	ModOp          MemAtomicOp
	NonTemporal    bool
	Read           bool
	Write          bool
	CacheOp        CacheOp
	OpScope        CacheOpScope
	CacheType      CacheType
	PAN            bool
	Transactional  bool
	NonFault       bool
	FirstFault     bool
	First          bool
	Contiguous     bool
	StreamingSVE   bool
	LS64           bool
	MOPS           bool
	RCW            bool
	RCWS           bool
	TopLevel       bool
	VARange        VARange
	A32LSMD        bool
	TagChecked     bool
	TagAccess      bool
	Unpriv         bool
	MPAM           MPAMInfo
}

// AccessDescriptorBuilder builds access descriptors.
type AccessDescriptorBuilder struct {
	desc AccessDescriptor
}

// MakeAccessDescriptorBuilder returns a builder for an access of the given
// type.
func MakeAccessDescriptorBuilder(acctype AccessType) AccessDescriptorBuilder {
	return AccessDescriptorBuilder{desc: AccessDescriptor{AccType: acctype}}
}

// WithEL sets the exception level the access is made from.
func (b AccessDescriptorBuilder) WithEL(el EL) AccessDescriptorBuilder {
	b.desc.EL = el
	return b
}

// WithSecurityState sets the security state of the access.
func (b AccessDescriptorBuilder) WithSecurityState(
	ss SecurityState,
) AccessDescriptorBuilder {
	b.desc.SS = ss
	return b
}

// WithRead marks the access as a read.
func (b AccessDescriptorBuilder) WithRead() AccessDescriptorBuilder {
	b.desc.Read = true
	return b
}

// WithWrite marks the access as a write.
func (b AccessDescriptorBuilder) WithWrite() AccessDescriptorBuilder {
	b.desc.Write = true
	return b
}

// WithPAN sets whether PSTATE.PAN applies to the access.
func (b AccessDescriptorBuilder) WithPAN(pan bool) AccessDescriptorBuilder {
	b.desc.PAN = pan
	return b
}

// WithUnprivileged marks the access as an unprivileged load or store.
func (b AccessDescriptorBuilder) WithUnprivileged() AccessDescriptorBuilder {
	b.desc.Unpriv = true
	return b
}

// WithCacheOp sets the cache maintenance operation and scope.
func (b AccessDescriptorBuilder) WithCacheOp(
	op CacheOp,
	scope CacheOpScope,
	cacheType CacheType,
) AccessDescriptorBuilder {
	b.desc.CacheOp = op
	b.desc.OpScope = scope
	b.desc.CacheType = cacheType

	return b
}

// WithAtomic marks the access as an atomic read-modify-write.
func (b AccessDescriptorBuilder) WithAtomic(op MemAtomicOp) AccessDescriptorBuilder {
	b.desc.AtomicOp = true
	b.desc.ModOp = op
	b.desc.Read = true
	b.desc.Write = true

	return b
}

// WithExclusive marks the access as exclusive.
func (b AccessDescriptorBuilder) WithExclusive() AccessDescriptorBuilder {
	b.desc.Exclusive = true
	return b
}

// WithTransactional marks the access as made inside a transaction.
func (b AccessDescriptorBuilder) WithTransactional() AccessDescriptorBuilder {
	b.desc.Transactional = true
	return b
}

// WithNonFault marks the access as an SVE non-faulting access.
func (b AccessDescriptorBuilder) WithNonFault() AccessDescriptorBuilder {
	b.desc.NonFault = true
	return b
}

// WithFirstFault marks the access as an SVE first-fault access. first tells
// whether this is the first active element.
func (b AccessDescriptorBuilder) WithFirstFault(first bool) AccessDescriptorBuilder {
	b.desc.FirstFault = true
	b.desc.First = first

	return b
}

// WithLS64 marks the access as a single-copy-atomic 64-byte access.
func (b AccessDescriptorBuilder) WithLS64() AccessDescriptorBuilder {
	b.desc.LS64 = true
	return b
}

// WithTagAccess marks the access as an allocation tag access.
func (b AccessDescriptorBuilder) WithTagAccess() AccessDescriptorBuilder {
	b.desc.TagAccess = true
	return b
}

// WithTagChecked marks the access as tag checked.
func (b AccessDescriptorBuilder) WithTagChecked() AccessDescriptorBuilder {
	b.desc.TagChecked = true
	return b
}

// WithA32LSMD marks the access as an AArch32 load/store multiple.
func (b AccessDescriptorBuilder) WithA32LSMD() AccessDescriptorBuilder {
	b.desc.A32LSMD = true
	return b
}

// WithMPAM sets the MPAM label of the access.
func (b AccessDescriptorBuilder) WithMPAM(info MPAMInfo) AccessDescriptorBuilder {
	b.desc.MPAM = info
	return b
}

// Build returns the access descriptor.
func (b AccessDescriptorBuilder) Build() AccessDescriptor {
	return b.desc
}

// CreateAccDescS1TTW returns the descriptor of a stage 1 table walk access made
// on behalf of accdesc.
func CreateAccDescS1TTW(
	toplevel bool,
	varange VARange,
	accdesc AccessDescriptor,
) AccessDescriptor {
	return AccessDescriptor{
		AccType:  AccessTypeTTW,
		EL:       accdesc.EL,
		SS:       accdesc.SS,
		Read:     true,
		TopLevel: toplevel,
		VARange:  varange,
		MPAM:     accdesc.MPAM,
	}
}

// CreateAccDescS2TTW returns the descriptor of a stage 2 table walk access made
// on behalf of accdesc.
func CreateAccDescS2TTW(accdesc AccessDescriptor) AccessDescriptor {
	return AccessDescriptor{
		AccType: AccessTypeTTW,
		EL:      accdesc.EL,
		SS:      accdesc.SS,
		Read:    true,
		MPAM:    accdesc.MPAM,
	}
}

// CreateAccDescTTEUpdate returns the descriptor of the atomic update of a
// translation table entry.
func CreateAccDescTTEUpdate(accdesc AccessDescriptor) AccessDescriptor {
	return AccessDescriptor{
		AccType:  AccessTypeTTW,
		EL:       accdesc.EL,
		SS:       accdesc.SS,
		AtomicOp: true,
		ModOp:    MemAtomicOpCAS,
		Read:     true,
		Write:    true,
		MPAM:     accdesc.MPAM,
	}
}
