package vm

// MemType is the memory type of a location.
type MemType uint8

// The memory types.
const (
	MemTypeNormal MemType = iota
	MemTypeDevice
)

func (t MemType) String() string {
	if t == MemTypeDevice {
		return "Device"
	}

	return "Normal"
}

// DeviceType is the Gathering, Reordering and Early-write-acknowledgement
// property of Device memory.
type DeviceType uint8

// The Device memory types.
const (
	DeviceGRE DeviceType = iota
	DevicenGRE
	DevicenGnRE
	DevicenGnRnE
)

func (t DeviceType) String() string {
	switch t {
	case DeviceGRE:
		return "GRE"
	case DevicenGRE:
		return "nGRE"
	case DevicenGnRE:
		return "nGnRE"
	default:
		return "nGnRnE"
	}
}

// DecodeDevice decodes a two-bit Device memory type field.
func DecodeDevice(dd uint64) DeviceType {
	switch dd & 0x3 {
	case 0:
		return DevicenGnRnE
	case 1:
		return DevicenGnRE
	case 2:
		return DevicenGRE
	default:
		return DeviceGRE
	}
}

// MemAttr is the cacheability of Normal memory.
type MemAttr uint8

// The cacheability values.
const (
	MemAttrNC MemAttr = 0
	MemAttrWT MemAttr = 2
	MemAttrWB MemAttr = 3
)

func (a MemAttr) String() string {
	switch a {
	case MemAttrWT:
		return "WT"
	case MemAttrWB:
		return "WB"
	default:
		return "NC"
	}
}

// MemHint is the allocation hint of cacheable memory.
type MemHint uint8

// The allocation hints.
const (
	MemHintNo  MemHint = 0
	MemHintWA  MemHint = 1
	MemHintRA  MemHint = 2
	MemHintRWA MemHint = 3
)

// Shareability is the shareability domain of a location.
type Shareability uint8

// The shareability domains.
const (
	ShareabilityNSH Shareability = iota
	ShareabilityISH
	ShareabilityOSH
)

func (s Shareability) String() string {
	switch s {
	case ShareabilityISH:
		return "ISH"
	case ShareabilityOSH:
		return "OSH"
	default:
		return "NSH"
	}
}

// DecodeShareability decodes an SH field. The reserved encoding 0b01 decodes
// to reserved.
func DecodeShareability(sh uint64, reserved Shareability) Shareability {
	switch sh & 0x3 {
	case 0:
		return ShareabilityNSH
	case 2:
		return ShareabilityOSH
	case 3:
		return ShareabilityISH
	default:
		return reserved
	}
}

// MemTagType is the MTE tagging property of a location.
type MemTagType uint8

// The tag types.
const (
	MemTagUntagged MemTagType = iota
	MemTagAllocationTagged
	MemTagCanonicallyTagged
)

// MemAttrHints is the cacheability of one cache level group.
type MemAttrHints struct {
	Attrs     MemAttr
	Hints     MemHint
	Transient bool
}

// MemoryAttributes are the attributes of a memory location.
type MemoryAttributes struct {
	MemType      MemType
	Device       DeviceType
	Inner        MemAttrHints
	Outer        MemAttrHints
	Shareability Shareability
	Tags         MemTagType
	NoTagAccess  bool
	XS           bool
}

// NormalNCMemAttr returns Normal, Non-cacheable, Outer Shareable attributes.
func NormalNCMemAttr() MemoryAttributes {
	nc := MemAttrHints{Attrs: MemAttrNC}

	return MemoryAttributes{
		MemType:      MemTypeNormal,
		Inner:        nc,
		Outer:        nc,
		Shareability: ShareabilityOSH,
		Tags:         MemTagUntagged,
	}
}

// IsNonCacheable reports whether the location is Normal memory that is
// Non-cacheable at both levels.
func (m MemoryAttributes) IsNonCacheable() bool {
	return m.MemType == MemTypeNormal &&
		m.Inner.Attrs == MemAttrNC &&
		m.Outer.Attrs == MemAttrNC
}

// IsCacheable reports whether the location is Normal memory that is cacheable
// at some level.
func (m MemoryAttributes) IsCacheable() bool {
	return m.MemType == MemTypeNormal &&
		(m.Inner.Attrs != MemAttrNC || m.Outer.Attrs != MemAttrNC)
}

// EffectiveShareability returns the shareability the location behaves with.
// Device memory and fully Non-cacheable memory are Outer Shareable.
func (m MemoryAttributes) EffectiveShareability() Shareability {
	if m.MemType == MemTypeDevice || m.IsNonCacheable() {
		return ShareabilityOSH
	}

	return m.Shareability
}

// DecodeLDFAttr decodes a four-bit Normal memory field of a MAIR attribute.
func DecodeLDFAttr(attr uint64) MemAttrHints {
	attr &= 0xf

	var ldf MemAttrHints

	switch {
	case attr == 0x4:
		ldf.Attrs = MemAttrNC
	case attr&0x4 == 0:
		ldf.Attrs = MemAttrWT
	default:
		ldf.Attrs = MemAttrWB
	}

	if ldf.Attrs != MemAttrNC {
		ldf.Hints = MemHint(attr & 0x3)
	}

	if ldf.Attrs != MemAttrNC && ldf.Hints != MemHintNo {
		ldf.Transient = attr&0x8 == 0
	}

	return ldf
}

// DecodeSDFAttr decodes a two-bit IRGN or ORGN field.
func DecodeSDFAttr(rgn uint64) MemAttrHints {
	switch rgn & 0x3 {
	case 0:
		return MemAttrHints{Attrs: MemAttrNC}
	case 1:
		return MemAttrHints{Attrs: MemAttrWB, Hints: MemHintRWA}
	case 2:
		return MemAttrHints{Attrs: MemAttrWT, Hints: MemHintRA}
	default:
		return MemAttrHints{Attrs: MemAttrWB, Hints: MemHintRA}
	}
}

// WalkMemAttrs returns the attributes of table walk accesses configured by the
// SH, IRGN and ORGN fields.
func WalkMemAttrs(sh, irgn, orgn uint64, reserved Shareability) MemoryAttributes {
	m := MemoryAttributes{
		MemType:      MemTypeNormal,
		Shareability: DecodeShareability(sh, reserved),
		Inner:        DecodeSDFAttr(irgn),
		Outer:        DecodeSDFAttr(orgn),
		Tags:         MemTagUntagged,
	}

	m.XS = !(m.Inner.Attrs == MemAttrWB && m.Outer.Attrs == MemAttrWB)

	return m
}
