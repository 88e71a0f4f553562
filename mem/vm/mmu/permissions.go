package mmu

import "github.com/sarchlab/vmsa/mem/vm"

// s1AccessControls are the stage 1 permissions that apply to an access.
type s1AccessControls struct {
	r, w, x    bool
	pr, pw, px bool
	ur, uw, ux bool
}

func (t *Translator) s1DirectBasePermissions(
	regime vm.Regime,
	walkstate vm.TTWState,
	params vm.S1TTWParams,
	accdesc vm.AccessDescriptor,
) s1AccessControls {
	var c s1AccessControls

	perms := walkstate.Permissions

	ap := perms.AP
	if perms.DBM && params.HD {
		ap &^= 0x2
	}

	if !regime.HasUnprivileged() {
		c.pr = true
		c.pw = ap&0x2 == 0

		if perms.APTable&0x2 != 0 {
			c.pw = false
		}

		c.px = !(perms.XN || perms.XNTable)

		return c
	}

	switch ap {
	case 0x0:
		c.pr, c.pw = true, true
	case 0x1:
		c.pr, c.pw, c.ur, c.uw = true, true, true, true
	case 0x2:
		c.pr = true
	case 0x3:
		c.pr, c.ur = true, true
	}

	switch perms.APTable {
	case 0x1:
		c.ur, c.uw = false, false
	case 0x2:
		c.pw, c.uw = false, false
	case 0x3:
		c.pw, c.ur, c.uw = false, false, false
	}

	c.px = !(perms.PXN || perms.PXNTable || c.uw)
	c.ux = !(perms.UXN || perms.UXNTable)

	t.applyPAN(&c, regime, params, accdesc)

	return c
}

func (t *Translator) applyPAN(
	c *s1AccessControls,
	regime vm.Regime,
	params vm.S1TTWParams,
	accdesc vm.AccessDescriptor,
) {
	if !t.features.Has(vm.FeatPAN) || !accdesc.PAN {
		return
	}

	if regime == vm.RegimeEL10 && params.NV1 {
		return
	}

	pan := c.ur || c.uw
	if t.features.Has(vm.FeatPAN3) && params.EPAN && c.ux {
		pan = true
	}

	if pan {
		c.pr = false
		c.pw = false
	}
}

// decodeS1PI decodes a stage 1 permission indirection value into read, write
// and execute permissions.
func decodeS1PI(pi uint64) (r, w, x bool) {
	switch pi & 0xf {
	case 0x1, 0x8, 0x9:
		return true, false, false
	case 0x2:
		return false, false, true
	case 0x3, 0xa:
		return true, false, true
	case 0x5, 0xc:
		return true, true, false
	case 0x6, 0x7, 0xe:
		return true, true, true
	}

	return false, false, false
}

func (t *Translator) s1IndirectBasePermissions(
	regime vm.Regime,
	walkstate vm.TTWState,
	params vm.S1TTWParams,
	accdesc vm.AccessDescriptor,
) s1AccessControls {
	var c s1AccessControls

	index := walkstate.Permissions.PIIndex
	ppi := vm.Bits(params.PIR, int(4*index+3), int(4*index))
	c.pr, c.pw, c.px = decodeS1PI(ppi)

	if regime.HasUnprivileged() {
		upi := vm.Bits(params.PIRE0, int(4*index+3), int(4*index))
		c.ur, c.uw, c.ux = decodeS1PI(upi)

		if c.uw {
			c.px = false
		}

		t.applyPAN(&c, regime, params, accdesc)
	}

	return c
}

func (t *Translator) s1ComputePermissions(
	regime vm.Regime,
	walkstate vm.TTWState,
	params vm.S1TTWParams,
	accdesc vm.AccessDescriptor,
) s1AccessControls {
	var c s1AccessControls
	if params.PIE {
		c = t.s1IndirectBasePermissions(regime, walkstate, params, accdesc)
	} else {
		c = t.s1DirectBasePermissions(regime, walkstate, params, accdesc)
	}

	if accdesc.EL == vm.EL0 || accdesc.Unpriv {
		c.r, c.w, c.x = c.ur, c.uw, c.ux
	} else {
		c.r, c.w, c.x = c.pr, c.pw, c.px
	}

	if params.WXN && c.w {
		c.x = false
	}

	paspace := walkstate.BaseAddress.PASpace

	switch {
	case accdesc.SS == vm.SSSecure && paspace == vm.PASNonSecure && params.SIF:
		c.x = false
	case accdesc.SS == vm.SSRoot && paspace != vm.PASRoot:
		c.x = false
	case accdesc.SS == vm.SSRealm &&
		(regime == vm.RegimeEL2 || regime == vm.RegimeEL20) &&
		paspace != vm.PASRealm:
		c.x = false
	}

	return c
}

func (t *Translator) s1CheckPermissions(
	fault vm.FaultRecord,
	regime vm.Regime,
	walkstate vm.TTWState,
	params vm.S1TTWParams,
	accdesc vm.AccessDescriptor,
) vm.FaultRecord {
	c := t.s1ComputePermissions(regime, walkstate, params, accdesc)
	device := walkstate.MemAttrs.MemType == vm.MemTypeDevice

	switch accdesc.AccType {
	case vm.AccessTypeIFETCH:
		if (device && t.cfg.InstrFromDeviceFaults) || !c.x {
			fault.StatusCode = vm.FaultPermission
		}

		return fault
	case vm.AccessTypeDC:
		if accdesc.CacheOp == vm.CacheOpInvalidate {
			if !c.w {
				fault.StatusCode = vm.FaultPermission
			}
		} else if accdesc.EL == vm.EL0 {
			if !c.r || (params.CMOW &&
				accdesc.OpScope == vm.CacheOpScopePoC &&
				accdesc.CacheOp == vm.CacheOpCleanInvalidate && !c.w) {
				fault.StatusCode = vm.FaultPermission
			}
		}

		return fault
	case vm.AccessTypeIC:
		if accdesc.EL == vm.EL0 {
			if params.CMOW && accdesc.CacheOp == vm.CacheOpInvalidate {
				if !c.w {
					fault.StatusCode = vm.FaultPermission
				}
			} else if !c.r {
				fault.StatusCode = vm.FaultPermission
			}
		}

		return fault
	}

	switch {
	case accdesc.Read && !c.r:
		fault.StatusCode = vm.FaultPermission
		fault.Write = false
	case accdesc.Write && !c.w:
		fault.StatusCode = vm.FaultPermission
		fault.Write = true
	case accdesc.Write && accdesc.TagAccess &&
		walkstate.MemAttrs.Tags == vm.MemTagCanonicallyTagged:
		fault.StatusCode = vm.FaultPermission
		fault.Write = true
		fault.S1TagNotData = true
	case accdesc.Write && !(params.HA && params.HD) && params.PIE &&
		walkstate.Permissions.NDirty:
		fault.StatusCode = vm.FaultPermission
		fault.DirtyBit = true
		fault.Write = true
	}

	return fault
}

// s2AccessControls are the stage 2 permissions that apply to an access.
type s2AccessControls struct {
	r, w, px, ux bool

	// rMMU and wMMU apply to stage 1 table walks and their hardware updates.
	rMMU, wMMU bool

	mro bool
}

func (c s2AccessControls) x(el vm.EL) bool {
	if el == vm.EL0 {
		return c.ux
	}

	return c.px
}

func s2DirectBasePermissions(
	perms vm.Permissions,
	params vm.S2TTWParams,
) s2AccessControls {
	var c s2AccessControls

	c.r = perms.S2AP&0x1 != 0
	c.w = perms.S2AP&0x2 != 0

	switch {
	case !perms.S2XN && !perms.S2XNX:
		c.px, c.ux = true, true
	case !perms.S2XN && perms.S2XNX:
		c.px, c.ux = false, true
	case perms.S2XN && !perms.S2XNX:
		c.px, c.ux = false, false
	default:
		c.px, c.ux = true, false
	}

	if perms.DBM && params.HD {
		c.w = true
	}

	c.rMMU = c.r
	c.wMMU = c.w

	return c
}

func s2IndirectBasePermissions(
	perms vm.Permissions,
	params vm.S2TTWParams,
) s2AccessControls {
	var c s2AccessControls

	index := perms.PIIndex
	pi := vm.Bits(params.S2PIR, int(4*index+3), int(4*index))

	switch pi {
	case 0x2, 0x3, 0x6, 0x7:
		c.r = true
		c.rMMU, c.wMMU = true, true
		c.mro = true

		return c
	case 0x4:
		c.w = true
	case 0x8:
		c.r = true
	case 0x9:
		c.r, c.ux = true, true
	case 0xa:
		c.r, c.px = true, true
	case 0xb:
		c.r, c.px, c.ux = true, true, true
	case 0xc:
		c.r, c.w = true, true
	case 0xd:
		c.r, c.w, c.ux = true, true, true
	case 0xe:
		c.r, c.w, c.px = true, true, true
	case 0xf:
		c.r, c.w, c.px, c.ux = true, true, true, true
	}

	c.rMMU = c.r
	c.wMMU = c.w

	return c
}

func (t *Translator) s2CheckPermissions(
	fault vm.FaultRecord,
	walkstate vm.TTWState,
	params vm.S2TTWParams,
	accdesc vm.AccessDescriptor,
) (vm.FaultRecord, bool) {
	var c s2AccessControls
	if params.S2PIE {
		c = s2IndirectBasePermissions(walkstate.Permissions, params)
	} else {
		c = s2DirectBasePermissions(walkstate.Permissions, params)
	}

	device := walkstate.MemAttrs.MemType == vm.MemTypeDevice

	switch accdesc.AccType {
	case vm.AccessTypeTTW:
		switch {
		case device && params.PTW:
			fault.StatusCode = vm.FaultPermission
			fault.Write = accdesc.Write
		case !c.rMMU:
			fault.StatusCode = vm.FaultPermission
			fault.Write = false
		case accdesc.Write && !c.wMMU:
			fault.StatusCode = vm.FaultPermission
			fault.Write = true
		}
	case vm.AccessTypeIFETCH:
		if (device && t.cfg.InstrFromDeviceFaults) || !c.x(accdesc.EL) {
			fault.StatusCode = vm.FaultPermission
		}
	case vm.AccessTypeDC:
		switch {
		case accdesc.CacheOp == vm.CacheOpInvalidate:
			if !c.w {
				fault.StatusCode = vm.FaultPermission
			}
		case accdesc.EL == vm.EL0 && !c.r:
			fault.StatusCode = vm.FaultPermission
		case params.CMOW && accdesc.OpScope == vm.CacheOpScopePoC &&
			accdesc.CacheOp == vm.CacheOpCleanInvalidate && !c.w:
			fault.StatusCode = vm.FaultPermission
		}
	case vm.AccessTypeIC:
		switch {
		case params.CMOW && accdesc.CacheOp == vm.CacheOpInvalidate && !c.w:
			fault.StatusCode = vm.FaultPermission
		case accdesc.EL == vm.EL0 && !c.r:
			fault.StatusCode = vm.FaultPermission
		}
	default:
		switch {
		case accdesc.Read && !c.r:
			fault.StatusCode = vm.FaultPermission
			fault.Write = false
		case accdesc.Write && !c.w:
			fault.StatusCode = vm.FaultPermission
			fault.Write = true
		case accdesc.Write && !(params.HA && params.HD) && params.S2PIE &&
			!walkstate.Permissions.S2Dirty:
			fault.StatusCode = vm.FaultPermission
			fault.DirtyBit = true
			fault.Write = true
		}
	}

	return fault, c.mro
}
