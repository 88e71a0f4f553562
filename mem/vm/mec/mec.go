// Package mec selects the memory encryption context of Realm accesses from
// the MECID registers.
package mec

import "github.com/sarchlab/vmsa/mem/vm"

const amecBit = 63

// Registers holds the MECID registers. It implements the translator's
// EncryptionTagger.
type Registers struct {
	P0EL2  uint16 // MECID_P0_EL2
	A0EL2  uint16 // MECID_A0_EL2
	P1EL2  uint16 // MECID_P1_EL2
	A1EL2  uint16 // MECID_A1_EL2
	VPEL2  uint16 // VMECID_P_EL2
	VAEL2  uint16 // VMECID_A_EL2
	RLAEL3 uint16 // MECID_RL_A_EL3

	// TCREL2A1 is TCR_EL2.A1, which selects the ASID source of EL2&0 and
	// with it the MECID of its table walks.
	TCREL2A1 bool
}

func alternate(descriptor uint64) bool {
	return vm.IsBitSet(descriptor, amecBit)
}

// S1OutputMECID returns the MECID of a stage 1 output address.
func (r *Registers) S1OutputMECID(
	params vm.S1TTWParams,
	regime vm.Regime,
	varange vm.VARange,
	paspace vm.PASpace,
	descriptor uint64,
) uint16 {
	if !params.EMEC || paspace != vm.PASRealm {
		return vm.DefaultMECID
	}

	switch regime {
	case vm.RegimeEL3:
		return r.RLAEL3
	case vm.RegimeEL2:
		if alternate(descriptor) {
			return r.A0EL2
		}

		return r.P0EL2
	case vm.RegimeEL20:
		switch {
		case varange == vm.VARangeLower && alternate(descriptor):
			return r.A0EL2
		case varange == vm.VARangeLower:
			return r.P0EL2
		case alternate(descriptor):
			return r.A1EL2
		default:
			return r.P1EL2
		}
	case vm.RegimeEL10:
		return r.VPEL2
	}

	return vm.DefaultMECID
}

// S2OutputMECID returns the MECID of a stage 2 output address.
func (r *Registers) S2OutputMECID(
	params vm.S2TTWParams,
	paspace vm.PASpace,
	descriptor uint64,
) uint16 {
	if !params.EMEC || paspace != vm.PASRealm {
		return vm.DefaultMECID
	}

	if alternate(descriptor) {
		return r.VAEL2
	}

	return r.VPEL2
}

// S1DisabledOutputMECID returns the MECID of an address output by a
// disabled stage 1.
func (r *Registers) S1DisabledOutputMECID(
	params vm.S1TTWParams,
	regime vm.Regime,
	paspace vm.PASpace,
) uint16 {
	if !params.EMEC || paspace != vm.PASRealm {
		return vm.DefaultMECID
	}

	if regime == vm.RegimeEL10 {
		return r.VPEL2
	}

	return r.P0EL2
}

// TTWalkMECID returns the MECID of the table walk accesses of a regime.
func (r *Registers) TTWalkMECID(
	emec bool,
	regime vm.Regime,
	ss vm.SecurityState,
) uint16 {
	if !emec || ss != vm.SSRealm {
		return vm.DefaultMECID
	}

	switch regime {
	case vm.RegimeEL2:
		return r.P0EL2
	case vm.RegimeEL20:
		if r.TCREL2A1 {
			return r.P0EL2
		}

		return r.P1EL2
	case vm.RegimeEL10:
		return r.VPEL2
	}

	return vm.DefaultMECID
}
