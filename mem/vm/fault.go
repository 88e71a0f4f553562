package vm

import "fmt"

// Fault is the kind of a translation fault.
type Fault uint8

// The fault kinds.
const (
	FaultNone Fault = iota
	FaultAccessFlag
	FaultAlignment
	FaultBackground
	FaultDomain
	FaultPermission
	FaultTranslation
	FaultAddressSize
	FaultSyncExternal
	FaultSyncExternalOnWalk
	FaultSyncParity
	FaultSyncParityOnWalk
	FaultAsyncParity
	FaultAsyncExternal
	FaultDebug
	FaultTLBConflict
	FaultBranchTarget
	FaultHWUpdateAccessFlag
	FaultLockdown
	FaultExclusive
	FaultICacheMaint
)

var faultNames = [...]string{
	FaultNone:               "None",
	FaultAccessFlag:         "AccessFlag",
	FaultAlignment:          "Alignment",
	FaultBackground:         "Background",
	FaultDomain:             "Domain",
	FaultPermission:         "Permission",
	FaultTranslation:        "Translation",
	FaultAddressSize:        "AddressSize",
	FaultSyncExternal:       "SyncExternal",
	FaultSyncExternalOnWalk: "SyncExternalOnWalk",
	FaultSyncParity:         "SyncParity",
	FaultSyncParityOnWalk:   "SyncParityOnWalk",
	FaultAsyncParity:        "AsyncParity",
	FaultAsyncExternal:      "AsyncExternal",
	FaultDebug:              "Debug",
	FaultTLBConflict:        "TLBConflict",
	FaultBranchTarget:       "BranchTarget",
	FaultHWUpdateAccessFlag: "HWUpdateAccessFlag",
	FaultLockdown:           "Lockdown",
	FaultExclusive:          "Exclusive",
	FaultICacheMaint:        "ICacheMaint",
}

func (f Fault) String() string {
	if int(f) < len(faultNames) {
		return faultNames[f]
	}

	return fmt.Sprintf("Fault(%d)", uint8(f))
}

// IsExternalAbort reports whether the fault is an external abort, synchronous
// or not.
func (f Fault) IsExternalAbort() bool {
	switch f {
	case FaultSyncExternal, FaultSyncExternalOnWalk,
		FaultSyncParity, FaultSyncParityOnWalk,
		FaultAsyncExternal, FaultAsyncParity:
		return true
	}

	return false
}

// IsAsyncAbort reports whether the fault is an asynchronous abort.
func (f Fault) IsAsyncAbort() bool {
	return f == FaultAsyncExternal || f == FaultAsyncParity
}

// A FaultRecord describes a fault and the access that caused it.
type FaultRecord struct {
	StatusCode   Fault
	AccessDesc   AccessDescriptor
	VAddress     uint64
	IPAddress    FullAddress
	PAddress     FullAddress
	Level        int
	SecondStage  bool
	S2FS1Walk    bool
	Write        bool
	DirtyBit     bool
	TagAccess    bool
	S1TagNotData bool
	TopLevel     bool
	HDBSSF       bool
	ExtFlag      bool
	ErrorType    uint8
	Domain       uint8
	DebugMOE     uint8
}

// NoFault returns an empty fault record.
func NoFault() FaultRecord {
	return FaultRecord{StatusCode: FaultNone}
}

// NoFaultForAccess returns an empty fault record bound to an access.
func NoFaultForAccess(accdesc AccessDescriptor) FaultRecord {
	f := NoFault()
	f.AccessDesc = accdesc
	f.Write = !accdesc.Read && accdesc.Write

	return f
}

// IsFault reports whether the record carries a fault.
func (f FaultRecord) IsFault() bool {
	return f.StatusCode != FaultNone
}

func (f FaultRecord) String() string {
	if !f.IsFault() {
		return "None"
	}

	stage := 1
	if f.SecondStage {
		stage = 2
	}

	return fmt.Sprintf("%s(stage %d, level %d)", f.StatusCode, stage, f.Level)
}

// PhysMemRetStatus is the outcome of a physical memory access.
type PhysMemRetStatus struct {
	StatusCode Fault
	ExtFlag    bool
	ErrorType  uint8
	Store      bool
}

// IsFault reports whether the memory access failed.
func (s PhysMemRetStatus) IsFault() bool {
	return s.StatusCode != FaultNone
}
