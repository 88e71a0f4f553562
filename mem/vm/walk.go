package vm

import "fmt"

// FinalLevel is the lookup level of page descriptors.
const FinalLevel = 3

// DescSizeLog2 is log2 of the size in bytes of a translation table entry.
const DescSizeLog2 = 3

// TGx is a translation granule size.
type TGx uint8

// The translation granules.
const (
	TG4KB TGx = iota
	TG16KB
	TG64KB
)

func (g TGx) String() string {
	switch g {
	case TG16KB:
		return "16KB"
	case TG64KB:
		return "64KB"
	default:
		return "4KB"
	}
}

// GranuleBits returns log2 of the granule size.
func (g TGx) GranuleBits() int {
	switch g {
	case TG16KB:
		return 14
	case TG64KB:
		return 16
	default:
		return 12
	}
}

// Stride returns the number of address bits resolved by one lookup level.
func (g TGx) Stride() int {
	return g.GranuleBits() - DescSizeLog2
}

// IASize returns the input address size configured by a TxSZ value.
func IASize(txsz int) int {
	return 64 - txsz
}

// TranslationSize returns log2 of the size of the block or page mapped by a
// leaf at the level.
func TranslationSize(tgx TGx, level int) int {
	return tgx.GranuleBits() + (FinalLevel-level)*tgx.Stride()
}

// ContiguousSize returns log2 of the number of entries in a contiguous run at
// the level.
func ContiguousSize(tgx TGx, level int) int {
	switch tgx {
	case TG4KB:
		return 4
	case TG16KB:
		if level == 2 {
			return 5
		}

		return 7
	default:
		return 5
	}
}

// StageOA returns the output address of a stage. Input address bits below the
// mapped size pass through; the rest come from the leaf.
func StageOA(ia uint64, tgx TGx, walkstate TTWState) FullAddress {
	csize := 0
	if walkstate.Contiguous {
		csize = ContiguousSize(tgx, walkstate.Level)
	}

	ofs := TranslationSize(tgx, walkstate.Level) + csize

	return FullAddress{
		PASpace: walkstate.BaseAddress.PASpace,
		Address: LowBits(AlignDown(walkstate.BaseAddress.Address, ofs), PAWidth) |
			LowBits(ia, ofs),
	}
}

// Permissions are the access controls collected along a walk.
type Permissions struct {
	APTable  uint64
	XNTable  bool
	PXNTable bool
	UXNTable bool

	// AP holds AP[2:1].
	AP     uint64
	XN     bool
	PXN    bool
	UXN    bool
	DBM    bool
	NDirty bool

	// S2AP holds S2AP[1:0].
	S2AP    uint64
	S2XN    bool
	S2XNX   bool
	S2Dirty bool

	// PIIndex is the permission indirection index of a leaf.
	PIIndex uint64
}

// TTWState is the state of a walk after a lookup.
type TTWState struct {
	IsTable     bool
	Level       int
	BaseAddress FullAddress
	Contiguous  bool
	S1Assured   bool
	NG          bool
	GuardedPage bool
	MemAttrs    MemoryAttributes
	Permissions Permissions
}

func (s TTWState) String() string {
	kind := "leaf"
	if s.IsTable {
		kind = "table"
	}

	return fmt.Sprintf("%s@L%d %s", kind, s.Level, s.BaseAddress)
}
