package vm

// TLBContext is the translation context compared on TLB lookups and
// invalidations.
type TLBContext struct {
	SS       SecurityState
	Regime   Regime
	VMID     uint16
	ASID     uint16
	NG       bool
	IPASpace PASpace
	IA       uint64
	TG       TGx
	Level    int
}

// UseASID reports whether entries of the context are tagged with an ASID.
func (c TLBContext) UseASID() bool {
	return c.Regime.HasUnprivileged()
}

// UseVMID reports whether entries of the context are tagged with a VMID.
func (c TLBContext) UseVMID(el2Enabled bool) bool {
	return c.Regime == RegimeEL10 && el2Enabled
}

// TLBRecord is a cached translation.
type TLBRecord struct {
	Context     TLBContext
	BlockSize   int
	GuardedPage bool
	Result      AddressDescriptor
}
