package mmu

import (
	"log"

	"github.com/sarchlab/vmsa/mem/vm"
)

func s2HasAlignmentFault(
	accdesc vm.AccessDescriptor,
	aligned bool,
	memattrs vm.MemoryAttributes,
) bool {
	device := memattrs.MemType == vm.MemTypeDevice

	switch accdesc.AccType {
	case vm.AccessTypeIFETCH:
		return false
	case vm.AccessTypeDCZero:
		return device
	default:
		return device && !aligned
	}
}

// s2Translate translates the IPA held by ipa. Faults from stage 1 carried in
// fault are discarded.
func (t *Translator) s2Translate(
	taskID string,
	fault vm.FaultRecord,
	ipa vm.AddressDescriptor,
	s1aarch64 bool,
	aligned bool,
	accdesc vm.AccessDescriptor,
) (vm.FaultRecord, vm.AddressDescriptor) {
	params := t.regs.S2TTWParams(accdesc.SS, ipa.PAddress.PASpace)

	fault.StatusCode = vm.FaultNone
	fault.DirtyBit = false
	fault.TagAccess = false
	fault.S1TagNotData = false
	fault.SecondStage = true
	fault.S2FS1Walk = accdesc.AccType == vm.AccessTypeTTW
	fault.IPAddress = ipa.PAddress

	if !params.VM {
		return fault, ipa
	}

	if t.s2TxSZFaults(params) {
		fault.StatusCode = vm.FaultTranslation
		fault.Level = 0

		return fault, vm.AddressDescriptor{}
	}

	params = t.clampS2TxSZ(params)

	if t.s2InvalidSL(params) || s2InconsistentSL(params) ||
		ipaIsOutOfRange(ipa.PAddress.Address, params) {
		fault.StatusCode = vm.FaultTranslation
		fault.Level = 0

		return fault, vm.AddressDescriptor{}
	}

	var (
		walk     walkResult
		s2fs1mro bool
	)

	for attempt := 0; ; attempt++ {
		if attempt >= t.cfg.MaxCASAttempts {
			log.Panicf("%s: descriptor update of IPA %s did not converge "+
				"after %d attempts", t.name, ipa.PAddress, attempt)
		}

		walk = t.s2Walk(taskID, fault, ipa, params, accdesc)
		if walk.fault.IsFault() {
			return walk.fault, vm.AddressDescriptor{}
		}

		f := walk.fault
		if s2HasAlignmentFault(accdesc, aligned, walk.walkstate.MemAttrs) {
			f.StatusCode = vm.FaultAlignment
		}

		if !f.IsFault() {
			f, s2fs1mro = t.s2CheckPermissions(f, walk.walkstate, params, accdesc)
		}

		newDesc := walk.descriptor

		if params.HA && t.settingAccessFlagPermitted(f) {
			newDesc = vm.SetBit(newDesc, bitAF, true)
		}

		if t.settingDirtyStatePermitted(f) && params.HA && params.HD &&
			(params.S2PIE || vm.IsBitSet(walk.descriptor, bitDBM)) &&
			accdesc.Write && !isMaintenanceOrAT(accdesc.AccType) {
			newDesc = vm.SetBit(newDesc, bitAP2, true)
		}

		if newDesc == walk.descriptor {
			fault = f
			break
		}

		if params.HDBSS && !vm.IsBitSet(walk.descriptor, bitAP2) &&
			vm.IsBitSet(newDesc, bitAP2) {
			var recorded bool

			f, recorded = t.appendToHDBSS(taskID, f, ipa.PAddress, accdesc,
				params, walk.walkstate.Level)
			if f.IsFault() && f.StatusCode != vm.FaultAlignment &&
				f.StatusCode != vm.FaultPermission {
				return f, vm.AddressDescriptor{}
			}

			if !recorded {
				newDesc = vm.SetBit(newDesc, bitAP2, false)
			}

			if newDesc == walk.descriptor {
				fault = f
				break
			}
		}

		descaccess := vm.CreateAccDescTTEUpdate(accdesc)

		var memDesc uint64

		f, memDesc = t.memSwapTableDesc(taskID, f, walk.descriptor, newDesc,
			params.EE, descaccess, walk.descaddress)
		if f.IsFault() && f.StatusCode != vm.FaultAlignment &&
			f.StatusCode != vm.FaultPermission {
			return f, vm.AddressDescriptor{}
		}

		if memDesc == newDesc {
			fault = f
			break
		}
	}

	if fault.IsFault() {
		return fault, vm.AddressDescriptor{}
	}

	return t.s2Output(fault, ipa, accdesc, params, walk, s2fs1mro)
}

func (t *Translator) s2Output(
	fault vm.FaultRecord,
	ipa vm.AddressDescriptor,
	accdesc vm.AccessDescriptor,
	params vm.S2TTWParams,
	walk walkResult,
	s2fs1mro bool,
) (vm.FaultRecord, vm.AddressDescriptor) {
	walkstate := walk.walkstate
	oa := vm.StageOA(ipa.PAddress.Address, params.TGx, walkstate)

	var s2memattrs vm.MemoryAttributes

	device := walkstate.MemAttrs.MemType == vm.MemTypeDevice

	switch {
	case (accdesc.AccType == vm.AccessTypeTTW && device && !params.PTW) ||
		(accdesc.AccType == vm.AccessTypeIFETCH && (device || params.ID)) ||
		(accdesc.AccType != vm.AccessTypeIFETCH && !device && params.CD):
		s2memattrs = vm.NormalNCMemAttr()
		s2memattrs.XS = walkstate.MemAttrs.XS
	default:
		s2memattrs = walkstate.MemAttrs
	}

	if accdesc.LS64 && s2memattrs.IsCacheable() {
		fault.StatusCode = vm.FaultExclusive
		return fault, vm.AddressDescriptor{}
	}

	memattrs := s2memattrs
	if !params.FWB {
		memattrs = t.s2CombineS1MemAttrs(ipa.MemAttrs, s2memattrs)
	}

	pa := vm.CreateAddressDescriptor(ipa.VAddress, oa, memattrs)
	pa.S2FS1MRO = s2fs1mro
	pa.S1Assured = ipa.S1Assured
	pa.MECID = t.s2OutputMECID(params, oa.PASpace, walk.descriptor)

	return fault, pa
}

func (t *Translator) s2OutputMECID(
	params vm.S2TTWParams,
	paspace vm.PASpace,
	descriptor uint64,
) uint16 {
	if t.tagger == nil || !t.features.Has(vm.FeatMEC) {
		return vm.DefaultMECID
	}

	return t.tagger.S2OutputMECID(params, paspace, descriptor)
}
