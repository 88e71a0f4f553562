package mmu

import "github.com/sarchlab/vmsa/mem/vm"

func (t *Translator) s1MinTxSZ(ds bool, tgx vm.TGx) int {
	if (t.features.Has(vm.FeatLVA) && tgx == vm.TG64KB) || ds {
		return 12
	}

	return 16
}

func (t *Translator) maxTxSZ(tgx vm.TGx) int {
	if t.features.Has(vm.FeatTTST) {
		if tgx == vm.TG64KB {
			return 47
		}

		return 48
	}

	return 39
}

func (t *Translator) s1TxSZFaults(params vm.S1TTWParams) bool {
	if params.TxSZ < t.s1MinTxSZ(params.DS, params.TGx) {
		return t.features.Has(vm.FeatLVA) || t.cfg.FaultOnTxSZBelowMin
	}

	if params.TxSZ > t.maxTxSZ(params.TGx) {
		return t.cfg.FaultOnTxSZAboveMax
	}

	return false
}

func (t *Translator) clampS1TxSZ(params vm.S1TTWParams) vm.S1TTWParams {
	mintxsz := t.s1MinTxSZ(params.DS, params.TGx)
	maxtxsz := t.maxTxSZ(params.TGx)

	switch {
	case params.TxSZ < mintxsz:
		params.TxSZ = mintxsz
	case params.TxSZ > maxtxsz:
		params.TxSZ = maxtxsz
	}

	return params
}

func (t *Translator) s2MinTxSZ(ds bool, tgx vm.TGx) int {
	ips := t.cfg.PAMax
	if t.cfg.PAMax == 52 {
		ips = 48
		if (t.features.Has(vm.FeatLPA) && tgx == vm.TG64KB) || ds {
			ips = 52
		}
	}

	return 64 - ips
}

func (t *Translator) s2TxSZFaults(params vm.S2TTWParams) bool {
	if params.TxSZ < t.s2MinTxSZ(params.DS, params.TGx) {
		return t.features.Has(vm.FeatLPA) || t.cfg.FaultOnTxSZBelowMin
	}

	if params.TxSZ > t.maxTxSZ(params.TGx) {
		return t.cfg.FaultOnTxSZAboveMax
	}

	return false
}

func (t *Translator) clampS2TxSZ(params vm.S2TTWParams) vm.S2TTWParams {
	mintxsz := t.s2MinTxSZ(params.DS, params.TGx)
	maxtxsz := t.maxTxSZ(params.TGx)

	switch {
	case params.TxSZ < mintxsz:
		params.TxSZ = mintxsz
	case params.TxSZ > maxtxsz:
		params.TxSZ = maxtxsz
	}

	return params
}

// addrTop returns the most significant bit of a VA that takes part in
// translation.
func addrTop(tbid bool, acctype vm.AccessType, tbi bool) int {
	if tbid && acctype == vm.AccessTypeIFETCH {
		return 63
	}

	if tbi {
		return 55
	}

	return 63
}

func vaIsOutOfRange(
	va uint64,
	acctype vm.AccessType,
	regime vm.Regime,
	params vm.S1TTWParams,
) bool {
	top := addrTop(params.TBID, acctype, params.TBI)

	if params.MTX && acctype != vm.AccessTypeIFETCH {
		va &^= uint64(0xf) << 56
		if vm.GetVARange(va) == vm.VARangeUpper {
			va |= uint64(0xf) << 56
		}
	}

	iasize := vm.IASize(params.TxSZ)

	if regime.HasUnprivileged() && vm.GetVARange(va) == vm.VARangeUpper {
		return !vm.IsOnesBits(va, top, iasize)
	}

	return !vm.IsZeroBits(va, top, iasize)
}

func ipaIsOutOfRange(ipa uint64, params vm.S2TTWParams) bool {
	iasize := vm.IASize(params.TxSZ)
	if iasize >= vm.PAWidth {
		return false
	}

	return !vm.IsZeroBits(ipa, vm.PAWidth-1, iasize)
}

// physicalAddressSize decodes a PS field, limited to what the granule and the
// implementation can address.
func (t *Translator) physicalAddressSize(ps uint64, tgx vm.TGx) int {
	var size int

	switch ps & 0x7 {
	case 0:
		size = 32
	case 1:
		size = 36
	case 2:
		size = 40
	case 3:
		size = 42
	case 4:
		size = 44
	case 5:
		size = 48
	default:
		size = 52
	}

	maxSize := 48
	if (tgx == vm.TG64KB && t.features.Has(vm.FeatLPA)) ||
		(tgx != vm.TG64KB && t.features.Has(vm.FeatLPA2)) {
		maxSize = 52
	}

	if t.cfg.PAMax < maxSize {
		maxSize = t.cfg.PAMax
	}

	if size > maxSize {
		size = maxSize
	}

	return size
}

func (t *Translator) oaOutOfRange(address uint64, ps uint64, tgx vm.TGx) bool {
	oasize := t.physicalAddressSize(ps, tgx)
	if oasize >= vm.PAWidth {
		return false
	}

	return !vm.IsZeroBits(address, vm.PAWidth-1, oasize)
}

// s2InvalidSL reports whether the SL0/SL2 encoding is reserved for the
// granule and the implementation.
func (t *Translator) s2InvalidSL(params vm.S2TTWParams) bool {
	sl := params.SL0 & 0x3
	if params.SL2 {
		sl |= 0x4
	}

	switch params.TGx {
	case vm.TG4KB:
		switch {
		case sl == 0x5 || sl == 0x7 || sl == 0x6:
			return true
		case sl == 0x4:
			return t.cfg.PAMax < 52
		case sl == 0x2:
			return t.cfg.PAMax < 44
		case sl == 0x3:
			return !t.features.Has(vm.FeatTTST)
		}
	case vm.TG16KB:
		switch sl {
		case 0x3:
			return !params.DS || t.cfg.PAMax < 52
		case 0x2:
			return t.cfg.PAMax < 42
		}
	default:
		switch sl {
		case 0x3:
			return true
		case 0x2:
			return t.cfg.PAMax < 44
		}
	}

	return false
}

// s2StartLevel decodes the start level from SL0 and SL2.
func s2StartLevel(params vm.S2TTWParams) int {
	sl := params.SL0 & 0x3

	switch params.TGx {
	case vm.TG4KB:
		if params.SL2 && sl == 0 {
			return -1
		}

		switch sl {
		case 0:
			return 2
		case 1:
			return 1
		case 2:
			return 0
		default:
			return 3
		}
	default:
		return vm.FinalLevel - int(sl)
	}
}

// s2InconsistentSL reports whether the IPA size cannot be resolved starting
// at the start level, allowing up to 16 concatenated tables.
func s2InconsistentSL(params vm.S2TTWParams) bool {
	startlevel := s2StartLevel(params)
	levels := vm.FinalLevel - startlevel
	granulebits := params.TGx.GranuleBits()
	stride := params.TGx.Stride()

	sMin := levels*stride + granulebits + 1
	sMax := sMin + stride - 1 + 4
	iasize := vm.IASize(params.TxSZ)

	return iasize < sMin || iasize > sMax
}
