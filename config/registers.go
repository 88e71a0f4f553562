package config

import "github.com/sarchlab/vmsa/mem/vm"

// StaticRegisters is a register provider whose values never change while
// translating.
type StaticRegisters struct {
	PE      vm.PEState
	Control map[vm.Regime]vm.SystemControl

	// Stage1 holds the walk parameters of each regime, indexed by VA range.
	// Regimes with a single VA range use the lower entry.
	Stage1 map[vm.Regime][2]vm.S1TTWParams
	Stage2 vm.S2TTWParams
}

// NewStaticRegisters creates a register provider with every regime disabled.
func NewStaticRegisters(pe vm.PEState) *StaticRegisters {
	return &StaticRegisters{
		PE:      pe,
		Control: make(map[vm.Regime]vm.SystemControl),
		Stage1:  make(map[vm.Regime][2]vm.S1TTWParams),
	}
}

// PEState returns the PE state.
func (r *StaticRegisters) PEState() vm.PEState {
	return r.PE
}

// SCTLR returns the system control bits of the regime.
func (r *StaticRegisters) SCTLR(regime vm.Regime) vm.SystemControl {
	return r.Control[regime]
}

// S1TTWParams returns the stage 1 walk parameters of the VA range of va.
func (r *StaticRegisters) S1TTWParams(
	regime vm.Regime,
	_ vm.SecurityState,
	va uint64,
) vm.S1TTWParams {
	params := r.Stage1[regime]

	if regime.HasUnprivileged() && vm.GetVARange(va) == vm.VARangeUpper {
		return params[vm.VARangeUpper]
	}

	return params[vm.VARangeLower]
}

// S2TTWParams returns the stage 2 walk parameters.
func (r *StaticRegisters) S2TTWParams(
	_ vm.SecurityState,
	_ vm.PASpace,
) vm.S2TTWParams {
	return r.Stage2
}
