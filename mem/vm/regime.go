package vm

import "fmt"

// EL is an exception level.
type EL uint8

// The exception levels.
const (
	EL0 EL = iota
	EL1
	EL2
	EL3
)

func (el EL) String() string {
	return fmt.Sprintf("EL%d", uint8(el))
}

// SecurityState is the security state the PE executes in.
type SecurityState uint8

// The security states.
const (
	SSNonSecure SecurityState = iota
	SSRoot
	SSRealm
	SSSecure
)

func (ss SecurityState) String() string {
	switch ss {
	case SSNonSecure:
		return "NonSecure"
	case SSRoot:
		return "Root"
	case SSRealm:
		return "Realm"
	case SSSecure:
		return "Secure"
	}

	return fmt.Sprintf("SecurityState(%d)", uint8(ss))
}

// PASpace returns the physical address space that belongs to the security
// state.
func (ss SecurityState) PASpace() PASpace {
	switch ss {
	case SSSecure:
		return PASSecure
	case SSRoot:
		return PASRoot
	case SSRealm:
		return PASRealm
	default:
		return PASNonSecure
	}
}

// Regime is a translation regime.
type Regime uint8

// The translation regimes.
const (
	RegimeEL10 Regime = iota
	RegimeEL20
	RegimeEL2
	RegimeEL3
	RegimeEL30
)

func (r Regime) String() string {
	switch r {
	case RegimeEL10:
		return "EL1&0"
	case RegimeEL20:
		return "EL2&0"
	case RegimeEL2:
		return "EL2"
	case RegimeEL3:
		return "EL3"
	case RegimeEL30:
		return "EL3&0"
	}

	return fmt.Sprintf("Regime(%d)", uint8(r))
}

// HasUnprivileged reports whether the regime serves two exception levels and
// therefore has both a privileged and an unprivileged view of memory.
func (r Regime) HasUnprivileged() bool {
	return r == RegimeEL20 || r == RegimeEL30 || r == RegimeEL10
}

// VARange is the half of the virtual address space that an address is in.
type VARange uint8

// The VA ranges.
const (
	VARangeLower VARange = iota
	VARangeUpper
)

func (r VARange) String() string {
	if r == VARangeUpper {
		return "Upper"
	}

	return "Lower"
}

// GetVARange returns the VA range selected by bit 55 of the address.
func GetVARange(va uint64) VARange {
	if IsBitSet(va, 55) {
		return VARangeUpper
	}

	return VARangeLower
}

// PEState is the part of the processing element state that decides which
// regime serves an exception level.
type PEState struct {
	SS              SecurityState
	EL2Enabled      bool
	EL3UsingAArch32 bool
	E2H             bool
	TGE             bool
}

// ELIsInHost reports whether the exception level runs under the EL2 host
// (VHE) regime.
func (pe PEState) ELIsInHost(el EL) bool {
	switch el {
	case EL2:
		return pe.EL2Enabled && pe.E2H
	case EL0:
		return pe.EL2Enabled && pe.E2H && pe.TGE
	default:
		return false
	}
}

// TranslationRegime returns the regime that serves accesses made at the
// exception level.
func TranslationRegime(el EL, pe PEState) Regime {
	switch el {
	case EL3:
		if pe.EL3UsingAArch32 {
			return RegimeEL30
		}

		return RegimeEL3
	case EL2:
		if pe.ELIsInHost(EL2) {
			return RegimeEL20
		}

		return RegimeEL2
	case EL1:
		return RegimeEL10
	default:
		if pe.SS == SSSecure && pe.EL3UsingAArch32 {
			return RegimeEL30
		}

		if pe.ELIsInHost(EL0) {
			return RegimeEL20
		}

		return RegimeEL10
	}
}
