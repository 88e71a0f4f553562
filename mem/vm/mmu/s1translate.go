package mmu

import (
	"log"

	"github.com/sarchlab/vmsa/mem/vm"
)

// s1Result is the outcome of stage 1.
type s1Result struct {
	fault     vm.FaultRecord
	ipa       vm.AddressDescriptor
	walkstate vm.TTWState
	tgx       vm.TGx

	// walked is false if stage 1 was disabled.
	walked bool
}

func (t *Translator) s1Enabled(regime vm.Regime, params vm.S1TTWParams) bool {
	if !t.regs.SCTLR(regime).M {
		return false
	}

	if regime == vm.RegimeEL10 && t.el2Enabled() {
		return !params.DC && !t.regs.PEState().TGE
	}

	return true
}

func s1HasAlignmentFault(
	accdesc vm.AccessDescriptor,
	aligned bool,
	ntlsmd bool,
	memattrs vm.MemoryAttributes,
) bool {
	device := memattrs.MemType == vm.MemTypeDevice

	switch {
	case accdesc.AccType == vm.AccessTypeIFETCH:
		return false
	case accdesc.A32LSMD && !ntlsmd:
		return device && memattrs.Device != vm.DeviceGRE
	case accdesc.AccType == vm.AccessTypeDCZero:
		return device
	default:
		return device && !aligned
	}
}

func (t *Translator) s1DisabledOutput(
	fault vm.FaultRecord,
	regime vm.Regime,
	va uint64,
	accdesc vm.AccessDescriptor,
	aligned bool,
	params vm.S1TTWParams,
) s1Result {
	t.setInGuardedPage(false)

	oa := vm.FullAddress{
		PASpace: accdesc.SS.PASpace(),
		Address: vm.LowBits(va, vm.PAWidth),
	}

	var memattrs vm.MemoryAttributes

	switch {
	case regime == vm.RegimeEL10 && t.el2Enabled() && params.DC:
		wb := vm.MemAttrHints{Attrs: vm.MemAttrWB, Hints: vm.MemHintRWA}
		memattrs = vm.MemoryAttributes{
			MemType:      vm.MemTypeNormal,
			Inner:        wb,
			Outer:        wb,
			Shareability: vm.ShareabilityNSH,
			Tags:         vm.MemTagUntagged,
		}

		switch {
		case params.DCT:
			memattrs.Tags = vm.MemTagAllocationTagged
		case params.MTX:
			memattrs.Tags = vm.MemTagCanonicallyTagged
		}
	case accdesc.AccType == vm.AccessTypeIFETCH:
		cacheAttr := vm.MemAttrHints{Attrs: vm.MemAttrNC}
		if t.regs.SCTLR(regime).I {
			cacheAttr = vm.MemAttrHints{Attrs: vm.MemAttrWT, Hints: vm.MemHintRA}
		}

		memattrs = vm.MemoryAttributes{
			MemType:      vm.MemTypeNormal,
			Inner:        cacheAttr,
			Outer:        cacheAttr,
			Shareability: vm.ShareabilityOSH,
			Tags:         vm.MemTagUntagged,
			XS:           true,
		}
	default:
		memattrs = vm.MemoryAttributes{
			MemType:      vm.MemTypeDevice,
			Device:       vm.DevicenGnRnE,
			Shareability: vm.ShareabilityOSH,
			Tags:         vm.MemTagUntagged,
			XS:           true,
		}
	}

	fault.Level = 0

	top := addrTop(params.TBID, accdesc.AccType, params.TBI)

	switch {
	case !vm.IsZeroBits(va, top, t.cfg.PAMax):
		fault.StatusCode = vm.FaultAddressSize
	case s1HasAlignmentFault(accdesc, aligned, params.NTLSMD, memattrs):
		fault.StatusCode = vm.FaultAlignment
	}

	if fault.IsFault() {
		return s1Result{fault: fault}
	}

	ipa := vm.CreateAddressDescriptor(va, oa, memattrs)
	ipa.MECID = t.s1DisabledOutputMECID(params, regime, oa.PASpace)

	return s1Result{fault: fault, ipa: ipa}
}

// s1Translate runs stage 1. The walk is repeated while the hardware update of
// the leaf descriptor loses a race against another writer.
func (t *Translator) s1Translate(
	taskID string,
	fault vm.FaultRecord,
	regime vm.Regime,
	va uint64,
	aligned bool,
	accdesc vm.AccessDescriptor,
) s1Result {
	params := t.regs.S1TTWParams(regime, accdesc.SS, va)

	if !t.s1Enabled(regime, params) {
		return t.s1DisabledOutput(fault, regime, va, accdesc, aligned, params)
	}

	if t.s1TxSZFaults(params) {
		fault.StatusCode = vm.FaultTranslation
		fault.Level = 0

		return s1Result{fault: fault}
	}

	params = t.clampS1TxSZ(params)

	if fault, faulted := t.s1EntryChecks(fault, regime, va, accdesc, params); faulted {
		return s1Result{fault: fault}
	}

	var walk walkResult

	for attempt := 0; ; attempt++ {
		if attempt >= t.cfg.MaxCASAttempts {
			log.Panicf("%s: descriptor update of VA 0x%x did not converge "+
				"after %d attempts", t.name, va, attempt)
		}

		walk = t.s1Walk(taskID, fault, params, va, regime, accdesc)
		if walk.fault.IsFault() {
			return s1Result{fault: walk.fault}
		}

		if accdesc.AccType == vm.AccessTypeIFETCH {
			t.setInGuardedPage(walk.walkstate.GuardedPage)
		}

		f := walk.fault
		if s1HasAlignmentFault(accdesc, aligned, params.NTLSMD,
			walk.walkstate.MemAttrs) {
			f.StatusCode = vm.FaultAlignment
		}

		if !f.IsFault() {
			f = t.s1CheckPermissions(f, regime, walk.walkstate, params, accdesc)
		}

		newDesc := walk.descriptor

		if params.HA && t.settingAccessFlagPermitted(f) {
			newDesc = vm.SetBit(newDesc, bitAF, true)
		}

		if t.settingDirtyStatePermitted(f) && params.HA && params.HD &&
			(params.PIE || vm.IsBitSet(walk.descriptor, bitDBM)) &&
			accdesc.Write && !isMaintenanceOrAT(accdesc.AccType) {
			newDesc = vm.SetBit(newDesc, bitAP2, false)
		}

		if newDesc == walk.descriptor {
			fault = f
			break
		}

		descaccess := vm.CreateAccDescTTEUpdate(accdesc)
		descpaddr := walk.descaddress

		if regime == vm.RegimeEL10 && t.el2Enabled() {
			s1aarch64 := true
			aligned := true

			s2fault, s2descpaddr := t.s2Translate(
				taskID, f, walk.descaddress, s1aarch64, aligned, descaccess)
			if s2fault.IsFault() {
				return s1Result{fault: s2fault}
			}

			descpaddr = s2descpaddr
		}

		var memDesc uint64

		f, memDesc = t.memSwapTableDesc(taskID, f, walk.descriptor, newDesc,
			params.EE, descaccess, descpaddr)
		if f.IsFault() && f.StatusCode != vm.FaultAlignment &&
			f.StatusCode != vm.FaultPermission {
			return s1Result{fault: f}
		}

		if memDesc == newDesc {
			fault = f
			break
		}
	}

	if fault.IsFault() {
		return s1Result{fault: fault}
	}

	return t.s1Output(fault, regime, va, accdesc, params, walk)
}

// s1EntryChecks runs the checks that fault before any table is read.
func (t *Translator) s1EntryChecks(
	fault vm.FaultRecord,
	regime vm.Regime,
	va uint64,
	accdesc vm.AccessDescriptor,
	params vm.S1TTWParams,
) (vm.FaultRecord, bool) {
	fault.Level = 0
	fault.StatusCode = vm.FaultTranslation

	if vaIsOutOfRange(va, accdesc.AccType, regime, params) {
		return fault, true
	}

	if accdesc.EL == vm.EL0 && params.E0PD {
		return fault, true
	}

	if t.features.Has(vm.FeatTME) && accdesc.EL == vm.EL0 && params.NFD &&
		accdesc.Transactional {
		return fault, true
	}

	if t.features.Has(vm.FeatSVE) && accdesc.EL == vm.EL0 && params.NFD &&
		((accdesc.NonFault && accdesc.Contiguous) ||
			(accdesc.FirstFault && !accdesc.First && !accdesc.Contiguous)) {
		return fault, true
	}

	fault.StatusCode = vm.FaultNone

	return fault, false
}

// s1Output builds the intermediate physical address from the final walk
// state.
func (t *Translator) s1Output(
	fault vm.FaultRecord,
	regime vm.Regime,
	va uint64,
	accdesc vm.AccessDescriptor,
	params vm.S1TTWParams,
	walk walkResult,
) s1Result {
	walkstate := walk.walkstate
	oa := vm.StageOA(va, params.TGx, walkstate)
	sctlr := t.regs.SCTLR(regime)

	var memattrs vm.MemoryAttributes

	switch {
	case accdesc.AccType == vm.AccessTypeIFETCH &&
		(walkstate.MemAttrs.MemType == vm.MemTypeDevice || !sctlr.I):
		memattrs = vm.NormalNCMemAttr()
		memattrs.XS = walkstate.MemAttrs.XS
	case accdesc.AccType != vm.AccessTypeIFETCH && !sctlr.C &&
		walkstate.MemAttrs.MemType == vm.MemTypeNormal:
		memattrs = vm.NormalNCMemAttr()
		memattrs.XS = walkstate.MemAttrs.XS
		memattrs.Tags = walkstate.MemAttrs.Tags

		if t.features.Has(vm.FeatMTE2) &&
			memattrs.Tags == vm.MemTagAllocationTagged &&
			!t.cfg.KeepTaggedWhenCacheDisabled {
			memattrs.Tags = vm.MemTagUntagged
		}
	default:
		memattrs = walkstate.MemAttrs
	}

	if t.s1StageHasS2(regime, accdesc.SS) &&
		!t.cfg.ApplyEffectiveShareabilityAtS1 {
		memattrs.Shareability = walkstate.MemAttrs.Shareability
	} else {
		memattrs.Shareability = memattrs.EffectiveShareability()
	}

	if accdesc.LS64 && memattrs.IsCacheable() {
		fault.StatusCode = vm.FaultExclusive
		return s1Result{fault: fault}
	}

	ipa := vm.CreateAddressDescriptor(va, oa, memattrs)
	ipa.S1Assured = walkstate.S1Assured
	ipa.MECID = t.s1OutputMECID(params, regime, vm.GetVARange(va),
		oa.PASpace, walk.descriptor)

	return s1Result{
		fault:     fault,
		ipa:       ipa,
		walkstate: walkstate,
		tgx:       params.TGx,
		walked:    true,
	}
}

func (t *Translator) s1OutputMECID(
	params vm.S1TTWParams,
	regime vm.Regime,
	varange vm.VARange,
	paspace vm.PASpace,
	descriptor uint64,
) uint16 {
	if t.tagger == nil || !t.features.Has(vm.FeatMEC) {
		return vm.DefaultMECID
	}

	return t.tagger.S1OutputMECID(params, regime, varange, paspace, descriptor)
}

func (t *Translator) s1DisabledOutputMECID(
	params vm.S1TTWParams,
	regime vm.Regime,
	paspace vm.PASpace,
) uint16 {
	if t.tagger == nil || !t.features.Has(vm.FeatMEC) {
		return vm.DefaultMECID
	}

	return t.tagger.S1DisabledOutputMECID(params, regime, paspace)
}

func isMaintenanceOrAT(acctype vm.AccessType) bool {
	return acctype == vm.AccessTypeAT ||
		acctype == vm.AccessTypeIC ||
		acctype == vm.AccessTypeDC
}
