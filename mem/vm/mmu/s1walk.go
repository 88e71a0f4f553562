package mmu

import (
	"fmt"

	"github.com/sarchlab/vmsa/mem/vm"
)

// walkResult is what a table walk hands back to its stage.
type walkResult struct {
	fault       vm.FaultRecord
	descaddress vm.AddressDescriptor
	walkstate   vm.TTWState
	descriptor  uint64
}

func (t *Translator) s1InitialTTWState(
	params vm.S1TTWParams,
	regime vm.Regime,
	ss vm.SecurityState,
) vm.TTWState {
	iasize := vm.IASize(params.TxSZ)
	granulebits := params.TGx.GranuleBits()
	stride := params.TGx.Stride()
	startlevel := vm.FinalLevel - (iasize-1-granulebits)/stride

	walkstate := vm.TTWState{
		IsTable: true,
		Level:   startlevel,
		BaseAddress: vm.FullAddress{
			PASpace: ss.PASpace(),
			Address: t.ttbBaseAddress(params.TTB, params.TxSZ, params.TGx,
				params.DS, params.PS, startlevel),
		},
		NG: regime.HasUnprivileged(),
		MemAttrs: vm.WalkMemAttrs(params.SH, params.IRGN, params.ORGN,
			t.cfg.ReservedShareability),
	}

	return walkstate
}

// s1StageHasS2 reports whether stage 1 output of the regime is further
// translated by stage 2.
func (t *Translator) s1StageHasS2(regime vm.Regime, ss vm.SecurityState) bool {
	if regime != vm.RegimeEL10 {
		return false
	}

	if !t.el2Enabled() {
		return false
	}

	return t.regs.S2TTWParams(ss, ss.PASpace()).VM
}

func (t *Translator) s1Walk(
	taskID string,
	fault vm.FaultRecord,
	params vm.S1TTWParams,
	va uint64,
	regime vm.Regime,
	accdesc vm.AccessDescriptor,
) walkResult {
	if regime.HasUnprivileged() && params.EPD {
		fault.StatusCode = vm.FaultTranslation
		fault.Level = 0

		return walkResult{fault: fault}
	}

	walkstate := t.s1InitialTTWState(params, regime, accdesc.SS)
	startlevel := walkstate.Level

	if t.oaOutOfRange(walkstate.BaseAddress.Address, params.PS, params.TGx) {
		fault.StatusCode = vm.FaultAddressSize
		fault.Level = 0

		return walkResult{fault: fault}
	}

	walkaddress := vm.AddressDescriptor{VAddress: va}

	sctlr := t.regs.SCTLR(regime)
	if !sctlr.C {
		walkaddress.MemAttrs = vm.NormalNCMemAttr()
		walkaddress.MemAttrs.XS = walkstate.MemAttrs.XS
	} else {
		walkaddress.MemAttrs = walkstate.MemAttrs
	}

	if t.s1StageHasS2(regime, accdesc.SS) &&
		!t.cfg.ApplyEffectiveShareabilityAtS1 {
		walkaddress.MemAttrs.Shareability = walkstate.MemAttrs.Shareability
	} else {
		walkaddress.MemAttrs.Shareability =
			walkaddress.MemAttrs.EffectiveShareability()
	}

	walkaddress.MECID = t.ttWalkMECID(params.EMEC, regime, accdesc.SS)

	nested := regime == vm.RegimeEL10 && t.el2Enabled()
	varange := vm.GetVARange(va)

	var descriptor uint64

	for walkstate.IsTable {
		fault.Level = walkstate.Level

		walkaddress.PAddress = ttEntryAddress(walkstate.Level, params.TGx,
			params.TxSZ, va, walkstate.BaseAddress, false)

		toplevel := walkstate.Level == startlevel
		walkaccess := vm.CreateAccDescS1TTW(toplevel, varange, accdesc)

		fetchaddress := walkaddress
		if nested {
			s1aarch64 := true
			aligned := true

			s2fault, s2walkaddress := t.s2Translate(
				taskID, fault, walkaddress, s1aarch64, aligned, walkaccess)
			if s2fault.IsFault() {
				return walkResult{fault: s2fault}
			}

			fetchaddress = s2walkaddress
		}

		fault, descriptor = t.fetchDescriptor(
			params.EE, fetchaddress, walkaccess, fault)
		if fault.IsFault() {
			return walkResult{fault: fault}
		}

		switch t.decodeDescriptorType(
			descriptor, params.DS, params.TGx, walkstate.Level) {
		case descriptorTable:
			walkstate = t.s1NextWalkStateTable(
				walkstate, regime, params, descriptor)
			t.step(taskID, StepS1Lookup, walkstate.String())

			if t.oaOutOfRange(
				walkstate.BaseAddress.Address, params.PS, params.TGx) {
				fault.StatusCode = vm.FaultAddressSize
				return walkResult{fault: fault}
			}
		case descriptorLeaf:
			walkstate = t.s1NextWalkStateLeaf(
				walkstate, regime, accdesc.SS, params, descriptor)
			t.step(taskID, StepS1Lookup, walkstate.String())
		default:
			fault.StatusCode = vm.FaultTranslation
			return walkResult{fault: fault}
		}
	}

	if t.s1AMECFault(params, walkstate.BaseAddress.PASpace, regime, descriptor) {
		fault.StatusCode = vm.FaultTranslation
		return walkResult{fault: fault}
	}

	if t.oaOutOfRange(walkstate.BaseAddress.Address, params.PS, params.TGx) {
		fault.StatusCode = vm.FaultAddressSize
		return walkResult{fault: fault}
	}

	if !vm.IsBitSet(descriptor, bitAF) && !params.HA &&
		t.accessFlagFaultApplies(accdesc) {
		fault.StatusCode = vm.FaultAccessFlag
		return walkResult{fault: fault}
	}

	return walkResult{
		fault:       fault,
		descaddress: walkaddress,
		walkstate:   walkstate,
		descriptor:  descriptor,
	}
}

func (t *Translator) accessFlagFaultApplies(accdesc vm.AccessDescriptor) bool {
	if accdesc.AccType == vm.AccessTypeDC || accdesc.AccType == vm.AccessTypeIC {
		return t.cfg.AccessFlagFaultOnCacheMaint
	}

	return true
}

func (t *Translator) s1NextWalkStateTable(
	walkstate vm.TTWState,
	regime vm.Regime,
	params vm.S1TTWParams,
	descriptor uint64,
) vm.TTWState {
	next := walkstate
	next.Level = walkstate.Level + 1
	next.IsTable = true
	next.BaseAddress.Address = t.nextTableBase(descriptor, params.DS, params.TGx)

	if walkstate.BaseAddress.PASpace == vm.PASSecure &&
		vm.IsBitSet(descriptor, bitNSTable) {
		next.BaseAddress.PASpace = vm.PASNonSecure
	}

	if params.HPD || params.PIE {
		return next
	}

	perms := &next.Permissions
	if regime.HasUnprivileged() {
		perms.APTable |= vm.Bits(descriptor, 62, 61)
		perms.UXNTable = perms.UXNTable || vm.IsBitSet(descriptor, bitUXNTable)
		perms.PXNTable = perms.PXNTable || vm.IsBitSet(descriptor, bitPXNTable)
	} else {
		perms.APTable |= vm.Bit(descriptor, 62) << 1
		perms.XNTable = perms.XNTable || vm.IsBitSet(descriptor, bitUXNTable)
	}

	return next
}

func (t *Translator) s1NextWalkStateLeaf(
	walkstate vm.TTWState,
	regime vm.Regime,
	ss vm.SecurityState,
	params vm.S1TTWParams,
	descriptor uint64,
) vm.TTWState {
	next := walkstate
	next.IsTable = false
	next.BaseAddress.Address = t.leafBase(
		descriptor, params.DS, params.TGx, walkstate.Level)

	ns := vm.IsBitSet(descriptor, bitNS)

	switch {
	case walkstate.BaseAddress.PASpace == vm.PASSecure:
		if ns {
			next.BaseAddress.PASpace = vm.PASNonSecure
		}
	case walkstate.BaseAddress.PASpace == vm.PASRoot:
		next.BaseAddress.PASpace = vm.DecodePASpace(
			vm.IsBitSet(descriptor, bitNG), ns)
	case walkstate.BaseAddress.PASpace == vm.PASRealm &&
		(regime == vm.RegimeEL2 || regime == vm.RegimeEL20):
		if ns {
			next.BaseAddress.PASpace = vm.PASNonSecure
		}
	}

	sh := vm.Bits(descriptor, 9, 8)
	if params.DS {
		sh = params.SH
	}

	attr := mairAttr(vm.Bits(descriptor, 4, 2), params.MAIR)
	next.MemAttrs = t.s1DecodeMemAttrs(attr, sh, params)
	next.Permissions = s1ApplyOutputPerms(
		walkstate.Permissions, descriptor, regime, params, t.el2Enabled())
	next.Contiguous = contiguousBit(params.TGx, walkstate.Level, descriptor)

	switch {
	case !regime.HasUnprivileged():
		next.NG = false
	case ss == vm.SSSecure && next.BaseAddress.PASpace == vm.PASNonSecure:
		next.NG = true
	default:
		next.NG = vm.IsBitSet(descriptor, bitNG)
	}

	next.GuardedPage = vm.IsBitSet(descriptor, bitGP)

	return next
}

func s1ApplyOutputPerms(
	perms vm.Permissions,
	descriptor uint64,
	regime vm.Regime,
	params vm.S1TTWParams,
	el2Enabled bool,
) vm.Permissions {
	if params.PIE {
		perms.NDirty = vm.IsBitSet(descriptor, bitAP2)
		perms.PIIndex = piIndex(descriptor)

		return perms
	}

	switch {
	case regime == vm.RegimeEL10 && el2Enabled && params.NV1:
		perms.AP = vm.Bit(descriptor, bitAP2) << 1
		perms.PXN = vm.IsBitSet(descriptor, bitUXN)
	case regime.HasUnprivileged():
		perms.AP = vm.Bits(descriptor, 7, 6)
		perms.UXN = vm.IsBitSet(descriptor, bitUXN)
		perms.PXN = vm.IsBitSet(descriptor, bitPXN)
	default:
		perms.AP = vm.Bit(descriptor, bitAP2)<<1 | 1
		perms.XN = vm.IsBitSet(descriptor, bitUXN)
	}

	perms.DBM = vm.IsBitSet(descriptor, bitDBM)

	return perms
}

// piIndex gathers the permission indirection index from descriptor bits
// {54, 53, 51, 6}.
func piIndex(descriptor uint64) uint64 {
	return vm.Bit(descriptor, bitUXN)<<3 |
		vm.Bit(descriptor, bitPXN)<<2 |
		vm.Bit(descriptor, bitDBM)<<1 |
		vm.Bit(descriptor, bitAP1)
}

func (t *Translator) fetchDescriptor(
	ee bool,
	walkaddress vm.AddressDescriptor,
	walkaccess vm.AccessDescriptor,
	fault vm.FaultRecord,
) (vm.FaultRecord, uint64) {
	status, descriptor := t.mem.Read(walkaddress, 8, walkaccess)
	if status.IsFault() {
		isWrite := false
		fault = t.abortHandler.HandleExternalTTWAbort(
			status, isWrite, walkaddress, walkaccess, 8, fault)

		if fault.IsFault() {
			return fault, 0
		}
	}

	if ee {
		descriptor = reverseBytes(descriptor)
	}

	return fault, descriptor
}

func (t *Translator) s1AMECFault(
	params vm.S1TTWParams,
	paspace vm.PASpace,
	regime vm.Regime,
	descriptor uint64,
) bool {
	if !t.features.Has(vm.FeatMEC) || !params.EMEC || params.AMEC {
		return false
	}

	return (regime == vm.RegimeEL2 || regime == vm.RegimeEL20) &&
		paspace == vm.PASRealm &&
		vm.IsBitSet(descriptor, bitAMEC)
}

func (t *Translator) ttWalkMECID(
	emec bool,
	regime vm.Regime,
	ss vm.SecurityState,
) uint16 {
	if t.tagger == nil || !t.features.Has(vm.FeatMEC) {
		return vm.DefaultMECID
	}

	return t.tagger.TTWalkMECID(emec, regime, ss)
}

func formatDescriptor(descriptor uint64) string {
	return fmt.Sprintf("0x%016x", descriptor)
}
