package mmu

import "github.com/sarchlab/vmsa/mem/vm"

type descriptorType int

const (
	descriptorInvalid descriptorType = iota
	descriptorTable
	descriptorLeaf
)

// Descriptor bit positions.
const (
	bitValid    = 0
	bitTable    = 1
	bitNS       = 5
	bitAP1      = 6
	bitAP2      = 7
	bitAF       = 10
	bitNG       = 11
	bitGP       = 50
	bitDBM      = 51
	bitContig   = 52
	bitPXN      = 53
	bitUXN      = 54
	bitS2NS     = 55
	bitAMEC     = 63
	bitNSTable  = 63
	bitUXNTable = 60
	bitPXNTable = 59
)

func (t *Translator) decodeDescriptorType(
	descriptor uint64,
	ds bool,
	tgx vm.TGx,
	level int,
) descriptorType {
	if !vm.IsBitSet(descriptor, bitValid) {
		return descriptorInvalid
	}

	if vm.IsBitSet(descriptor, bitTable) {
		if level == vm.FinalLevel {
			return descriptorLeaf
		}

		return descriptorTable
	}

	if level == vm.FinalLevel {
		return descriptorInvalid
	}

	if t.blockDescSupported(ds, tgx, level) {
		return descriptorLeaf
	}

	return descriptorInvalid
}

func (t *Translator) blockDescSupported(ds bool, tgx vm.TGx, level int) bool {
	switch tgx {
	case vm.TG4KB:
		return level == 2 || level == 1 || (level == 0 && ds)
	case vm.TG16KB:
		return level == 2 || (level == 1 && ds)
	default:
		return level == 2 || (level == 1 && t.features.Has(vm.FeatLPA))
	}
}

// outputAddress extracts the address held by a table or leaf descriptor with
// the bits below lsb cleared.
func (t *Translator) outputAddress(
	descriptor uint64,
	ds bool,
	tgx vm.TGx,
	lsb int,
) uint64 {
	var addr uint64

	switch {
	case ds && tgx != vm.TG64KB:
		addr = vm.Bits(descriptor, 49, 0)
		addr |= vm.Bits(descriptor, 9, 8) << 50
	case tgx == vm.TG64KB && t.features.Has(vm.FeatLPA):
		addr = vm.Bits(descriptor, 47, 0)
		addr |= vm.Bits(descriptor, 15, 12) << 48
	default:
		addr = vm.Bits(descriptor, 47, 0)
	}

	return vm.AlignDown(addr, lsb)
}

func (t *Translator) nextTableBase(
	descriptor uint64,
	ds bool,
	tgx vm.TGx,
) uint64 {
	return t.outputAddress(descriptor, ds, tgx, tgx.GranuleBits())
}

func (t *Translator) leafBase(
	descriptor uint64,
	ds bool,
	tgx vm.TGx,
	level int,
) uint64 {
	return t.outputAddress(descriptor, ds, tgx, vm.TranslationSize(tgx, level))
}

func contiguousBit(tgx vm.TGx, level int, descriptor uint64) bool {
	switch {
	case tgx == vm.TG4KB && level == 0:
		return false
	case tgx == vm.TG16KB && level == 1:
		return false
	case tgx == vm.TG64KB && level == 1:
		return false
	}

	return vm.IsBitSet(descriptor, bitContig)
}

// ttEntryAddress returns the address of the entry that translates ia in the
// table at tablebase. A concatenated table indexes with all remaining IA bits.
func ttEntryAddress(
	level int,
	tgx vm.TGx,
	txsz int,
	ia uint64,
	tablebase vm.FullAddress,
	concatenated bool,
) vm.FullAddress {
	iasize := vm.IASize(txsz)
	stride := tgx.Stride()
	levels := vm.FinalLevel - level
	lsb := levels*stride + tgx.GranuleBits()

	msb := lsb + stride - 1
	if concatenated || msb > iasize-1 {
		msb = iasize - 1
	}

	index := vm.Bits(ia, msb, lsb) << vm.DescSizeLog2

	return vm.FullAddress{
		PASpace: tablebase.PASpace,
		Address: tablebase.Address | index,
	}
}

// ttbBaseAddress returns the start table address held by a TTBR value.
func (t *Translator) ttbBaseAddress(
	ttb uint64,
	txsz int,
	tgx vm.TGx,
	ds bool,
	ps uint64,
	startlevel int,
) uint64 {
	iasize := vm.IASize(txsz)
	levels := vm.FinalLevel - startlevel
	tsize := iasize - (levels*tgx.Stride() + tgx.GranuleBits()) + vm.DescSizeLog2

	var base uint64
	if ds || (tgx == vm.TG64KB && ps&0x7 == 6 && t.features.Has(vm.FeatLPA)) {
		if tsize < 6 {
			tsize = 6
		}

		base = vm.AlignDown(vm.Bits(ttb, 47, 0), 6) | vm.Bits(ttb, 5, 2)<<48
	} else {
		base = vm.AlignDown(vm.Bits(ttb, 47, 0), 1)
	}

	return vm.AlignDown(base, tsize)
}

func mairAttr(index uint64, mair uint64) uint64 {
	return vm.Bits(mair, int(8*index+7), int(8*index))
}

func (t *Translator) s1DecodeMemAttrs(
	attr uint64,
	sh uint64,
	params vm.S1TTWParams,
) vm.MemoryAttributes {
	var m vm.MemoryAttributes

	xs := t.features.Has(vm.FeatXS)

	switch {
	case vm.Bits(attr, 7, 4) == 0:
		m.MemType = vm.MemTypeDevice
		m.Device = vm.DecodeDevice(vm.Bits(attr, 3, 2))
		m.XS = !(xs && vm.IsBitSet(attr, 0))
	case vm.Bits(attr, 3, 0) != 0:
		m.MemType = vm.MemTypeNormal
		m.Outer = vm.DecodeLDFAttr(vm.Bits(attr, 7, 4))
		m.Inner = vm.DecodeLDFAttr(vm.Bits(attr, 3, 0))
		m.XS = !(m.Inner.Attrs == vm.MemAttrWB && m.Outer.Attrs == vm.MemAttrWB)
	case xs && attr == 0x40:
		m = vm.NormalNCMemAttr()
		m.XS = false
	case xs && attr == 0xa0:
		m.MemType = vm.MemTypeNormal
		m.Outer = vm.DecodeLDFAttr(0xa)
		m.Inner = vm.DecodeLDFAttr(0xa)
		m.XS = false
	case t.features.Has(vm.FeatMTE2) && attr == 0xf0:
		m.MemType = vm.MemTypeNormal
		m.Outer = vm.DecodeLDFAttr(0xf)
		m.Inner = vm.DecodeLDFAttr(0xf)
		m.Tags = vm.MemTagAllocationTagged
		m.XS = false
	default:
		m = vm.NormalNCMemAttr()
		m.XS = true
	}

	m.Shareability = vm.DecodeShareability(sh, t.cfg.ReservedShareability)

	if params.MTX && m.MemType == vm.MemTypeNormal &&
		m.Tags == vm.MemTagUntagged {
		m.Tags = vm.MemTagCanonicallyTagged
	}

	return m
}

func (t *Translator) s2DecodeCacheability(attr uint64) vm.MemAttrHints {
	var a vm.MemAttr

	switch attr & 0x3 {
	case 1:
		a = vm.MemAttrNC
	case 2:
		a = vm.MemAttrWT
	case 3:
		a = vm.MemAttrWB
	default:
		a = t.cfg.ReservedS2Attr
	}

	h := vm.MemAttrHints{Attrs: a}
	if a != vm.MemAttrNC {
		h.Hints = vm.MemHintRWA
	}

	return h
}

func (t *Translator) s2DecodeMemAttrs(attr uint64, sh uint64) vm.MemoryAttributes {
	var m vm.MemoryAttributes

	switch {
	case vm.Bits(attr, 3, 2) == 0:
		m.MemType = vm.MemTypeDevice
		m.Device = vm.DecodeDevice(vm.Bits(attr, 1, 0))
		m.XS = true
	default:
		m.MemType = vm.MemTypeNormal
		m.Outer = t.s2DecodeCacheability(vm.Bits(attr, 3, 2))
		m.Inner = t.s2DecodeCacheability(vm.Bits(attr, 1, 0))
		m.XS = !(m.Inner.Attrs == vm.MemAttrWB && m.Outer.Attrs == vm.MemAttrWB)
	}

	m.Shareability = vm.DecodeShareability(sh, t.cfg.ReservedShareability)

	return m
}

func s2CombineS1Device(s1, s2 vm.DeviceType) vm.DeviceType {
	if s1 > s2 {
		return s1
	}

	return s2
}

func s2CombineS1AttrHints(s1, s2 vm.MemAttrHints) vm.MemAttrHints {
	var h vm.MemAttrHints

	switch {
	case s1.Attrs == vm.MemAttrNC || s2.Attrs == vm.MemAttrNC:
		h.Attrs = vm.MemAttrNC
	case s1.Attrs == vm.MemAttrWT || s2.Attrs == vm.MemAttrWT:
		h.Attrs = vm.MemAttrWT
	default:
		h.Attrs = vm.MemAttrWB
	}

	if h.Attrs != vm.MemAttrNC {
		h.Hints = s1.Hints
		h.Transient = s1.Transient
	}

	return h
}

func s2CombineS1Shareability(s1, s2 vm.Shareability) vm.Shareability {
	switch {
	case s1 == vm.ShareabilityOSH || s2 == vm.ShareabilityOSH:
		return vm.ShareabilityOSH
	case s1 == vm.ShareabilityISH || s2 == vm.ShareabilityISH:
		return vm.ShareabilityISH
	default:
		return vm.ShareabilityNSH
	}
}

func isWBRWA(h vm.MemAttrHints) bool {
	return h.Attrs == vm.MemAttrWB && h.Hints == vm.MemHintRWA && !h.Transient
}

func (t *Translator) s2MemTagType(
	m vm.MemoryAttributes,
	s1 vm.MemTagType,
) vm.MemTagType {
	if !t.features.Has(vm.FeatMTE2) {
		return vm.MemTagUntagged
	}

	if s1 == vm.MemTagAllocationTagged && m.MemType == vm.MemTypeNormal &&
		isWBRWA(m.Inner) && isWBRWA(m.Outer) {
		return vm.MemTagAllocationTagged
	}

	if s1 != vm.MemTagAllocationTagged {
		return s1
	}

	return vm.MemTagUntagged
}

// s2CombineS1MemAttrs combines the stage 1 and stage 2 attributes, the more
// restrictive of the two winning.
func (t *Translator) s2CombineS1MemAttrs(
	s1, s2 vm.MemoryAttributes,
) vm.MemoryAttributes {
	var m vm.MemoryAttributes

	switch {
	case s1.MemType == vm.MemTypeDevice && s2.MemType == vm.MemTypeDevice:
		m.MemType = vm.MemTypeDevice
		m.Device = s2CombineS1Device(s1.Device, s2.Device)
	case s1.MemType == vm.MemTypeDevice:
		m.MemType = vm.MemTypeDevice
		m.Device = s1.Device
	case s2.MemType == vm.MemTypeDevice:
		m.MemType = vm.MemTypeDevice
		m.Device = s2.Device
	default:
		m.MemType = vm.MemTypeNormal
		m.Inner = s2CombineS1AttrHints(s1.Inner, s2.Inner)
		m.Outer = s2CombineS1AttrHints(s1.Outer, s2.Outer)
	}

	m.Tags = t.s2MemTagType(m, s1.Tags)
	m.NoTagAccess = s2.NoTagAccess && s1.Tags == vm.MemTagAllocationTagged
	m.Shareability = s2CombineS1Shareability(s1.Shareability, s2.Shareability)

	if m.MemType == vm.MemTypeNormal &&
		m.Inner.Attrs == vm.MemAttrWB && m.Outer.Attrs == vm.MemAttrWB {
		m.XS = false
	} else {
		m.XS = s2.XS && s1.XS
	}

	m.Shareability = m.EffectiveShareability()

	return m
}

// s2ApplyFWBMemAttrs computes the final attributes when stage 2 forced write
// back is enabled and the stage 2 descriptor selects how stage 1 attributes
// pass through.
func (t *Translator) s2ApplyFWBMemAttrs(
	s1 vm.MemoryAttributes,
	params vm.S2TTWParams,
	descriptor uint64,
) vm.MemoryAttributes {
	var m vm.MemoryAttributes

	attr := vm.Bits(descriptor, 5, 2)

	sh := vm.Bits(descriptor, 9, 8)
	if params.DS {
		sh = params.SH
	}

	switch {
	case !vm.IsBitSet(attr, 2):
		device := vm.DecodeDevice(vm.Bits(attr, 1, 0))
		m.MemType = vm.MemTypeDevice
		m.Device = device

		if s1.MemType == vm.MemTypeDevice {
			m.Device = s2CombineS1Device(s1.Device, device)
		}

		m.XS = s1.XS
	case vm.Bits(attr, 1, 0) == 3:
		m = s1
	case vm.Bits(attr, 1, 0) == 2:
		m.MemType = vm.MemTypeNormal
		m.Inner = forceWriteBack(s1, s1.Inner)
		m.Outer = forceWriteBack(s1, s1.Outer)
		m.XS = false
	default:
		if s1.MemType == vm.MemTypeDevice {
			m = s1
		} else {
			m.MemType = vm.MemTypeNormal
			m.Inner = vm.MemAttrHints{Attrs: vm.MemAttrNC}
			m.Outer = vm.MemAttrHints{Attrs: vm.MemAttrNC}
			m.XS = s1.XS
		}
	}

	s2sh := vm.DecodeShareability(sh, t.cfg.ReservedShareability)
	m.Shareability = s2CombineS1Shareability(s1.Shareability, s2sh)
	m.Tags = t.s2MemTagType(m, s1.Tags)
	m.NoTagAccess = vm.Bits(attr, 3, 1) == 0x7 &&
		m.Tags == vm.MemTagAllocationTagged

	if t.features.Has(vm.FeatXS) && vm.IsBitSet(descriptor, bitNG) {
		m.XS = false
	}

	m.Shareability = m.EffectiveShareability()

	return m
}

func forceWriteBack(s1 vm.MemoryAttributes, h vm.MemAttrHints) vm.MemAttrHints {
	out := vm.MemAttrHints{Attrs: vm.MemAttrWB, Hints: vm.MemHintRWA}

	if s1.MemType == vm.MemTypeNormal && h.Attrs != vm.MemAttrNC {
		out.Hints = h.Hints
		out.Transient = h.Transient
	}

	return out
}
