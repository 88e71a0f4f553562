package mmu

import "github.com/sarchlab/vmsa/mem/vm"

func (t *Translator) s2InitialTTWState(
	ss vm.SecurityState,
	ipaspace vm.PASpace,
	params vm.S2TTWParams,
) vm.TTWState {
	startlevel := s2StartLevel(params)

	ttb := params.VTTB
	paspace := vm.PASNonSecure

	switch ss {
	case vm.SSSecure:
		if ipaspace == vm.PASSecure {
			ttb = params.VSTTB
			if !params.SW {
				paspace = vm.PASSecure
			}
		} else if !params.NSW {
			paspace = vm.PASSecure
		}
	case vm.SSRealm:
		paspace = vm.PASRealm
	}

	return vm.TTWState{
		IsTable: true,
		Level:   startlevel,
		BaseAddress: vm.FullAddress{
			PASpace: paspace,
			Address: t.ttbBaseAddress(ttb, params.TxSZ, params.TGx,
				params.DS, params.PS, startlevel),
		},
		MemAttrs: vm.WalkMemAttrs(params.SH, params.IRGN, params.ORGN,
			t.cfg.ReservedShareability),
	}
}

func (t *Translator) s2Walk(
	taskID string,
	fault vm.FaultRecord,
	ipa vm.AddressDescriptor,
	params vm.S2TTWParams,
	accdesc vm.AccessDescriptor,
) walkResult {
	ss := accdesc.SS
	ia := ipa.PAddress.Address

	walkstate := t.s2InitialTTWState(ss, ipa.PAddress.PASpace, params)
	startlevel := walkstate.Level

	if t.oaOutOfRange(walkstate.BaseAddress.Address, params.PS, params.TGx) {
		fault.StatusCode = vm.FaultAddressSize
		fault.Level = 0

		return walkResult{fault: fault}
	}

	walkaddress := vm.AddressDescriptor{VAddress: ipa.VAddress}

	if params.CD {
		walkaddress.MemAttrs = vm.NormalNCMemAttr()
		walkaddress.MemAttrs.XS = walkstate.MemAttrs.XS
	} else {
		walkaddress.MemAttrs = walkstate.MemAttrs
	}

	walkaddress.MemAttrs.Shareability =
		walkaddress.MemAttrs.EffectiveShareability()
	walkaddress.MECID = t.ttWalkMECID(params.EMEC, vm.RegimeEL10, ss)

	walkaccess := vm.CreateAccDescS2TTW(accdesc)

	var descriptor uint64

	for walkstate.IsTable {
		fault.Level = walkstate.Level

		concatenated := walkstate.Level == startlevel
		walkaddress.PAddress = ttEntryAddress(walkstate.Level, params.TGx,
			params.TxSZ, ia, walkstate.BaseAddress, concatenated)

		fault, descriptor = t.fetchDescriptor(
			params.EE, walkaddress, walkaccess, fault)
		if fault.IsFault() {
			return walkResult{fault: fault}
		}

		switch t.decodeDescriptorType(
			descriptor, params.DS, params.TGx, walkstate.Level) {
		case descriptorTable:
			walkstate = t.s2NextWalkStateTable(walkstate, params, descriptor)
			t.step(taskID, StepS2Lookup, walkstate.String())

			if t.oaOutOfRange(
				walkstate.BaseAddress.Address, params.PS, params.TGx) {
				fault.StatusCode = vm.FaultAddressSize
				return walkResult{fault: fault}
			}
		case descriptorLeaf:
			walkstate = t.s2NextWalkStateLeaf(
				walkstate, ss, ipa, params, descriptor)
			t.step(taskID, StepS2Lookup, walkstate.String())
		default:
			fault.StatusCode = vm.FaultTranslation
			return walkResult{fault: fault}
		}
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

func (t *Translator) s2NextWalkStateTable(
	walkstate vm.TTWState,
	params vm.S2TTWParams,
	descriptor uint64,
) vm.TTWState {
	next := walkstate
	next.Level = walkstate.Level + 1
	next.IsTable = true
	next.BaseAddress.Address = t.nextTableBase(descriptor, params.DS, params.TGx)

	return next
}

func (t *Translator) s2NextWalkStateLeaf(
	walkstate vm.TTWState,
	ss vm.SecurityState,
	ipa vm.AddressDescriptor,
	params vm.S2TTWParams,
	descriptor uint64,
) vm.TTWState {
	next := walkstate
	next.IsTable = false
	next.BaseAddress.Address = t.leafBase(
		descriptor, params.DS, params.TGx, walkstate.Level)

	switch ss {
	case vm.SSSecure:
		next.BaseAddress.PASpace = ss2OutputPASpace(params, ipa.PAddress.PASpace)
	case vm.SSRealm:
		next.BaseAddress.PASpace = vm.PASRealm
		if vm.IsBitSet(descriptor, bitS2NS) {
			next.BaseAddress.PASpace = vm.PASNonSecure
		}
	default:
		next.BaseAddress.PASpace = vm.PASNonSecure
	}

	if params.FWB {
		next.MemAttrs = t.s2ApplyFWBMemAttrs(ipa.MemAttrs, params, descriptor)
	} else {
		sh := vm.Bits(descriptor, 9, 8)
		if params.DS {
			sh = params.SH
		}

		next.MemAttrs = t.s2DecodeMemAttrs(vm.Bits(descriptor, 5, 2), sh)

		if t.features.Has(vm.FeatXS) && vm.IsBitSet(descriptor, bitNG) {
			next.MemAttrs.XS = false
		}
	}

	next.Permissions = s2ApplyOutputPerms(descriptor, params)
	next.Contiguous = contiguousBit(params.TGx, walkstate.Level, descriptor)

	return next
}

func s2ApplyOutputPerms(descriptor uint64, params vm.S2TTWParams) vm.Permissions {
	var perms vm.Permissions

	if params.S2PIE {
		perms.PIIndex = piIndex(descriptor)
		perms.S2Dirty = vm.IsBitSet(descriptor, bitAP2)

		return perms
	}

	perms.S2AP = vm.Bits(descriptor, 7, 6)
	perms.S2XN = vm.IsBitSet(descriptor, bitUXN)
	perms.S2XNX = vm.IsBitSet(descriptor, bitPXN)
	perms.DBM = vm.IsBitSet(descriptor, bitDBM)

	return perms
}

func ss2OutputPASpace(params vm.S2TTWParams, ipaspace vm.PASpace) vm.PASpace {
	if ipaspace == vm.PASSecure {
		if !params.SW && !params.SA {
			return vm.PASSecure
		}

		return vm.PASNonSecure
	}

	if !params.SW && !params.SA && !params.NSW && !params.NSA {
		return vm.PASSecure
	}

	return vm.PASNonSecure
}
