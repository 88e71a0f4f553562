// Package mpam generates the Memory Partitioning and Monitoring labels that
// accompany memory accesses, including the table walk accesses of the
// translator.
package mpam

import (
	"errors"

	"github.com/sarchlab/vmsa/mem/vm"
)

// The labels used when MPAM is disabled or a PARTID is out of range.
const (
	DefaultPARTID uint16 = 0
	DefaultPMG    uint8  = 0
)

var (
	errPARTIDRange  = errors.New("PARTID out of range")
	errNoVPARTIDMap = errors.New("virtual PARTID has no valid mapping")
)

// Labels holds the PARTID and PMG fields of one MPAMn_ELx register.
type Labels struct {
	PARTIDI uint16
	PARTIDD uint16
	PMGI    uint8
	PMGD    uint8
}

// IDR is the part of MPAMIDR_EL1 the generator reads.
type IDR struct {
	PARTIDMax uint16
	PMGMax    uint8
	VPMRMax   uint8
	HasHCR    bool
	HasAltSP  bool
	ForceNS   bool
	SDEFLT    bool
}

// Registers holds the MPAM system registers.
type Registers struct {
	IDR IDR

	// MPAM3_EL3
	EL3         Labels
	MPAMEN3     bool
	ForceNS     bool
	SDEFLT      bool
	AltSPEL3    bool
	RTAltSPNS   bool
	AltSPHEN    bool
	AltSPHFC3   bool
	MPAMEN2     bool // MPAM2_EL2.MPAMEN, used when EL2 is the highest EL
	EL2         Labels
	AltSPHFC2   bool // MPAM2_EL2.ALTSP_HFC
	AltSPEL2    bool // MPAM2_EL2.ALTSP_EL2
	MPAMEN1     bool // MPAM1_EL1.MPAMEN, used when EL1 is the highest EL
	EL1         Labels
	EL0         Labels
	SM          Labels // MPAMSM_EL1, only the data fields are used
	EL0VPMEN    bool   // MPAMHCR_EL2.EL0_VPMEN
	EL1VPMEN    bool   // MPAMHCR_EL2.EL1_VPMEN
	GSTAPPPLK   bool   // MPAMHCR_EL2.GSTAPP_PLK
	VPMV        uint32 // MPAMVPMV_EL2
	VPM         [8]uint64
}

// Config holds the implementation choices of MPAM label generation.
type Config struct {
	// HighestEL is the highest implemented exception level.
	HighestEL vm.EL

	// DefaultPMGOnPARTIDError makes a PARTID error also force the default
	// PMG.
	DefaultPMGOnPARTIDError bool

	// SMLabels makes SME accesses use the MPAMSM_EL1 labels.
	SMLabels bool
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		HighestEL:               vm.EL3,
		DefaultPMGOnPARTIDError: true,
		SMLabels:                true,
	}
}

// StateProvider supplies the PE state that MPAM label generation depends on.
type StateProvider interface {
	PEState() vm.PEState
}

// A Generator creates MPAM labels.
type Generator struct {
	regs     *Registers
	state    StateProvider
	features vm.FeatureSet
	cfg      Config
}

// NewGenerator creates a Generator that reads regs and the PE state given by
// state.
func NewGenerator(
	regs *Registers,
	state StateProvider,
	features vm.FeatureSet,
	cfg Config,
) *Generator {
	if features == nil {
		features = vm.NewFeatureSet()
	}

	return &Generator{regs: regs, state: state, features: features, cfg: cfg}
}

// DefaultMPAMInfo returns the default labels in a PARTID space.
func DefaultMPAMInfo(space vm.PARTIDSpace) vm.MPAMInfo {
	return vm.MPAMInfo{MPAMSP: space, PARTID: DefaultPARTID, PMG: DefaultPMG}
}

// GenMPAMAtEL returns the labels of an access of the given type made at el.
func (g *Generator) GenMPAMAtEL(acctype vm.AccessType, el vm.EL) vm.MPAMInfo {
	pe := g.state.PEState()
	security := g.securityStateAtEL(el, pe)
	pspace := security.PASpace()

	if pspace == vm.PASNonSecure && !g.isEnabled() {
		return DefaultMPAMInfo(pspace)
	}

	mpamEL := el
	if acctype == vm.AccessTypeNV2 {
		mpamEL = vm.EL2
	}

	instr := acctype == vm.AccessTypeIFETCH || acctype == vm.AccessTypeIC
	sm := acctype == vm.AccessTypeSME && g.cfg.SMLabels

	if g.features.Has(vm.FeatRME) && g.regs.IDR.HasAltSP {
		pspace = g.altPARTIDSpace(mpamEL, security, pspace, pe)
	}

	if g.features.Has(vm.FeatMPAMv0p1) && g.regs.IDR.ForceNS &&
		g.regs.ForceNS && security == vm.SSSecure {
		pspace = vm.PASNonSecure
	}

	if (g.features.Has(vm.FeatMPAMv0p1) || g.features.Has(vm.FeatMPAMv1p1)) &&
		g.regs.IDR.SDEFLT && g.regs.SDEFLT && security == vm.SSSecure {
		return DefaultMPAMInfo(pspace)
	}

	if !g.isEnabled() {
		return DefaultMPAMInfo(pspace)
	}

	return g.genMPAM(mpamEL, instr, sm, pspace, pe)
}

func (g *Generator) securityStateAtEL(el vm.EL, pe vm.PEState) vm.SecurityState {
	if el != vm.EL3 {
		return pe.SS
	}

	if g.features.Has(vm.FeatRME) {
		return vm.SSRoot
	}

	return vm.SSSecure
}

func (g *Generator) isEnabled() bool {
	switch g.cfg.HighestEL {
	case vm.EL3:
		return g.regs.MPAMEN3
	case vm.EL2:
		return g.regs.MPAMEN2
	default:
		return g.regs.MPAMEN1
	}
}

func (g *Generator) genMPAM(
	el vm.EL,
	instr, sm bool,
	pspace vm.PARTIDSpace,
	pe vm.PEState,
) vm.MPAMInfo {
	// An EL2 hypervisor can lock guest applications to the PARTIDs of EL1.
	gstplk := el == vm.EL0 && pe.EL2Enabled && g.regs.GSTAPPPLK && !pe.TGE

	effEL := el
	if gstplk {
		effEL = vm.EL1
	}

	partid, err := g.genPARTID(effEL, instr, sm, pe)
	pmg := g.genPMG(effEL, instr, sm, err, pe)

	return vm.MPAMInfo{MPAMSP: pspace, PARTID: partid, PMG: pmg}
}

func (g *Generator) genPARTID(
	el vm.EL,
	instr, sm bool,
	pe vm.PEState,
) (uint16, error) {
	l := g.labels(el, sm, pe)

	partid := l.PARTIDD
	if instr && !sm {
		partid = l.PARTIDI
	}

	if partid > g.regs.IDR.PARTIDMax {
		return DefaultPARTID, errPARTIDRange
	}

	if g.isVirtual(el, pe) {
		return g.mapVPARTID(partid)
	}

	return partid, nil
}

func (g *Generator) genPMG(
	el vm.EL,
	instr, sm bool,
	partidErr error,
	pe vm.PEState,
) uint8 {
	if partidErr != nil && g.cfg.DefaultPMGOnPARTIDError {
		return DefaultPMG
	}

	l := g.labels(el, sm, pe)

	pmg := l.PMGD
	if instr && !sm {
		pmg = l.PMGI
	}

	if pmg > g.regs.IDR.PMGMax {
		return DefaultPMG
	}

	return pmg
}

func (g *Generator) labels(el vm.EL, sm bool, pe vm.PEState) Labels {
	if sm {
		return g.regs.SM
	}

	switch el {
	case vm.EL3:
		return g.regs.EL3
	case vm.EL2:
		if !pe.EL2Enabled {
			return Labels{}
		}

		return g.regs.EL2
	case vm.EL1:
		return g.regs.EL1
	default:
		return g.regs.EL0
	}
}

func (g *Generator) isVirtual(el vm.EL, pe vm.PEState) bool {
	if !g.regs.IDR.HasHCR || !pe.EL2Enabled {
		return false
	}

	return (el == vm.EL0 && g.regs.EL0VPMEN && !pe.ELIsInHost(vm.EL0)) ||
		(el == vm.EL1 && g.regs.EL1VPMEN)
}

// mapVPARTID maps a virtual PARTID to a physical one through MPAMVPMn_EL2.
func (g *Generator) mapVPARTID(vpartid uint16) (uint16, error) {
	vpmrMax := min(g.regs.IDR.VPMRMax, 7)
	vpartidMax := uint16(vpmrMax)<<2 + 3
	vpartid %= vpartidMax + 1

	var ppartid uint16

	switch {
	case g.regs.VPMV&(1<<vpartid) != 0:
		ppartid = g.vpmField(vpartid)
	case g.regs.VPMV&1 != 0:
		ppartid = g.vpmField(0)
	default:
		return DefaultPARTID, errNoVPARTIDMap
	}

	if ppartid > g.regs.IDR.PARTIDMax {
		return DefaultPARTID, errPARTIDRange
	}

	return ppartid, nil
}

func (g *Generator) vpmField(vpartid uint16) uint16 {
	reg := g.regs.VPM[vpartid/4]
	lsb := int(vpartid%4) * 16

	return uint16(vm.Bits(reg, lsb+15, lsb))
}

func (g *Generator) altPARTIDSpace(
	el vm.EL,
	security vm.SecurityState,
	primary vm.PARTIDSpace,
	pe vm.PEState,
) vm.PARTIDSpace {
	switch security {
	case vm.SSSecure:
		if primary == vm.PASNonSecure {
			return primary
		}

		return g.altPIDSecure(el, primary, pe)
	case vm.SSRoot:
		if !g.regs.AltSPEL3 {
			return primary
		}

		if g.regs.RTAltSPNS {
			return vm.PASNonSecure
		}

		return vm.PASSecure
	case vm.SSRealm:
		return g.altPIDRealm(el, primary, pe)
	default:
		return primary
	}
}

func (g *Generator) altPIDRealm(
	el vm.EL,
	primary vm.PARTIDSpace,
	pe vm.PEState,
) vm.PARTIDSpace {
	var usePrimary bool

	switch {
	case el == vm.EL0 && pe.ELIsInHost(vm.EL0), el == vm.EL2:
		usePrimary = g.usePrimarySpaceEL2()
	default:
		usePrimary = g.usePrimarySpaceEL10(pe)
	}

	if usePrimary {
		return primary
	}

	return vm.PASNonSecure
}

func (g *Generator) altPIDSecure(
	el vm.EL,
	primary vm.PARTIDSpace,
	pe vm.PEState,
) vm.PARTIDSpace {
	var usePrimary bool

	switch {
	case el == vm.EL2:
		usePrimary = g.usePrimarySpaceEL2()
	case !pe.EL2Enabled:
		usePrimary = g.regs.AltSPHEN || !g.regs.AltSPHFC3
	case el == vm.EL0 && pe.ELIsInHost(vm.EL0):
		usePrimary = g.usePrimarySpaceEL2()
	default:
		usePrimary = g.usePrimarySpaceEL10(pe)
	}

	if usePrimary {
		return primary
	}

	return vm.PASNonSecure
}

func (g *Generator) usePrimarySpaceEL10(pe vm.PEState) bool {
	if !g.regs.AltSPHEN {
		return !g.regs.AltSPHFC3
	}

	return !g.isEnabled() || !pe.EL2Enabled || !g.regs.AltSPHFC2
}

func (g *Generator) usePrimarySpaceEL2() bool {
	if !g.regs.AltSPHEN {
		return !g.regs.AltSPHFC3
	}

	return !g.isEnabled() || !g.regs.AltSPEL2
}
