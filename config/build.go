package config

import (
	"fmt"

	"github.com/sarchlab/vmsa/mem/vm"
	"github.com/sarchlab/vmsa/mem/vm/hdbss"
	"github.com/sarchlab/vmsa/mem/vm/mec"
	"github.com/sarchlab/vmsa/mem/vm/mmu"
	"github.com/sarchlab/vmsa/mem/vm/mpam"
	"github.com/sarchlab/vmsa/mem/vm/pagetable"
	"github.com/sarchlab/vmsa/mem/vm/tlb"
	"github.com/sarchlab/vmsa/memory"
	"github.com/sarchlab/vmsa/sim/id"
)

// IDGenerator returns the generator of the task IDs reported to hooks.
func (s *Scenario) IDGenerator() (id.IDGenerator, error) {
	switch s.TaskIDs {
	case "", "sequential":
		return id.NewIDGenerator(), nil
	case "unique":
		return id.NewParallelIDGenerator(), nil
	default:
		return nil, fmt.Errorf("%w: unknown task ID kind %q",
			ErrInvalidScenario, s.TaskIDs)
	}
}

// DefaultMemoryCapacity is the size of each physical address space when the
// scenario does not give one.
const DefaultMemoryCapacity = uint64(1) << 32

// FeatureSet returns the features the scenario enables.
func (s *Scenario) FeatureSet() (vm.FeatureSet, error) {
	fs := vm.NewFeatureSet()

	for _, name := range s.Features {
		f, err := vm.ParseFeature(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
		}

		fs[f] = struct{}{}
	}

	return fs, nil
}

// MMUConfig applies the scenario overrides to the default translator
// configuration.
func (s *Scenario) MMUConfig() (mmu.Config, error) {
	cfg := mmu.DefaultConfig()
	o := s.MMU

	setInt(&cfg.PAMax, o.PAMax)
	setInt(&cfg.MaxCASAttempts, o.MaxCASAttempts)
	setBool(&cfg.FaultOnTxSZBelowMin, o.FaultOnTxSZBelowMin)
	setBool(&cfg.FaultOnTxSZAboveMax, o.FaultOnTxSZAboveMax)
	setBool(&cfg.AFUpdateOnFault, o.AFUpdateOnFault)
	setBool(&cfg.DirtyUpdateOnAlignmentFault, o.DirtyUpdateOnAlignmentFault)
	setBool(&cfg.KeepTaggedWhenCacheDisabled, o.KeepTaggedWhenCacheDisabled)
	setBool(&cfg.ApplyEffectiveShareabilityAtS1, o.ApplyEffectiveShareabilityAtS1)
	setBool(&cfg.InstrFromDeviceFaults, o.InstrFromDeviceFaults)
	setBool(&cfg.AccessFlagFaultOnCacheMaint, o.AccessFlagFaultOnCacheMaint)

	var err error

	cfg.ReservedS2Attr, err = parseMemAttr(o.ReservedS2Attr, cfg.ReservedS2Attr)
	if err != nil {
		return cfg, err
	}

	cfg.ReservedShareability, err = parseShareability(
		o.ReservedShareability, cfg.ReservedShareability)
	if err != nil {
		return cfg, err
	}

	switch cfg.PAMax {
	case 32, 36, 40, 42, 44, 48, 52, 56:
	default:
		return cfg, fmt.Errorf("%w: unsupported PA size %d",
			ErrInvalidScenario, cfg.PAMax)
	}

	if cfg.MaxCASAttempts <= 0 {
		return cfg, fmt.Errorf("%w: max_cas_attempts must be positive",
			ErrInvalidScenario)
	}

	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Registers returns the register state of the scenario.
func (s *Scenario) Registers() (*StaticRegisters, error) {
	ss, err := ParseSecurityState(s.PE.SS)
	if err != nil {
		return nil, err
	}

	regs := NewStaticRegisters(vm.PEState{
		SS:              ss,
		EL2Enabled:      s.PE.EL2Enabled,
		EL3UsingAArch32: s.PE.EL3UsingAArch32,
		E2H:             s.PE.E2H,
		TGE:             s.PE.TGE,
	})

	for name, c := range s.SCTLR {
		regime, err := ParseRegime(name)
		if err != nil {
			return nil, err
		}

		regs.Control[regime] = vm.SystemControl{M: c.M, C: c.C, I: c.I}
	}

	for name, c := range s.Stage1 {
		regime, err := ParseRegime(name)
		if err != nil {
			return nil, err
		}

		var params [2]vm.S1TTWParams

		params[vm.VARangeLower], err = c.Lower.params()
		if err != nil {
			return nil, err
		}

		if c.Upper != nil {
			if !regime.HasUnprivileged() {
				return nil, fmt.Errorf("%w: regime %s has no upper VA range",
					ErrInvalidScenario, regime)
			}

			params[vm.VARangeUpper], err = c.Upper.params()
			if err != nil {
				return nil, err
			}
		}

		regs.Stage1[regime] = params
	}

	if s.Stage2 != nil {
		regs.Stage2, err = s.Stage2.params()
		if err != nil {
			return nil, err
		}
	}

	return regs, nil
}

func (r S1Range) params() (vm.S1TTWParams, error) {
	tg, err := ParseGranule(r.TG)
	if err != nil {
		return vm.S1TTWParams{}, err
	}

	return vm.S1TTWParams{
		TGx: tg, TxSZ: r.TxSZ, TTB: r.TTB, ASID: r.ASID, PS: r.PS,
		IRGN: r.IRGN, ORGN: r.ORGN, SH: r.SH, MAIR: r.MAIR,
		EPD: r.EPD, HA: r.HA, HD: r.HD, TBI: r.TBI, TBID: r.TBID,
		NFD: r.NFD, E0PD: r.E0PD, MTX: r.MTX, HPD: r.HPD, EE: r.EE,
		WXN: r.WXN, NTLSMD: r.NTLSMD, SIF: r.SIF, DC: r.DC, DCT: r.DCT,
		NV1: r.NV1, CMOW: r.CMOW, DS: r.DS, EPAN: r.EPAN,
		PIE: r.PIE, PIR: r.PIR, PIRE0: r.PIRE0,
		EMEC: r.EMEC, AMEC: r.AMEC,
	}, nil
}

func (c S2Config) params() (vm.S2TTWParams, error) {
	tg, err := ParseGranule(c.TG)
	if err != nil {
		return vm.S2TTWParams{}, err
	}

	return vm.S2TTWParams{
		VM: c.VM, TGx: tg, TxSZ: c.TxSZ, SL0: c.SL0, SL2: c.SL2, PS: c.PS,
		VTTB: c.VTTB, VSTTB: c.VSTTB, VMID: c.VMID,
		IRGN: c.IRGN, ORGN: c.ORGN, SH: c.SH,
		HA: c.HA, HD: c.HD, EE: c.EE, FWB: c.FWB, PTW: c.PTW, DS: c.DS,
		SW: c.SW, NSW: c.NSW, SA: c.SA, NSA: c.NSA, CMOW: c.CMOW,
		ID: c.ID, CD: c.CD, S2PIE: c.S2PIE, S2PIR: c.S2PIR,
		EMEC: c.EMEC, HDBSS: c.HDBSS,
	}, nil
}

// BuildMemory creates the physical memory with the words and faults of the
// scenario.
func (s *Scenario) BuildMemory() (*memory.Memory, error) {
	capacity := s.Memory.Capacity
	if capacity == 0 {
		capacity = DefaultMemoryCapacity
	}

	mem := memory.New(capacity)

	for _, w := range s.Memory.Words {
		space, err := ParsePASpace(w.Space)
		if err != nil {
			return nil, err
		}

		addr := vm.FullAddress{PASpace: space, Address: w.Addr}
		if err := mem.Write64(addr, w.Value); err != nil {
			return nil, fmt.Errorf("%w: word at %s: %w",
				ErrInvalidScenario, addr, err)
		}
	}

	for _, f := range s.Memory.Faults {
		space, err := ParsePASpace(f.Space)
		if err != nil {
			return nil, err
		}

		name := f.Fault
		if name == "" {
			name = vm.FaultSyncExternal.String()
		}

		fault, err := ParseFault(name)
		if err != nil {
			return nil, err
		}

		size := f.Size
		if size == 0 {
			size = 8
		}

		mem.InjectFault(space, f.Addr, size, fault)
	}

	for i, t := range s.Tables {
		if err := t.write(mem); err != nil {
			return nil, fmt.Errorf("%w: table %d: %w", ErrInvalidScenario, i, err)
		}
	}

	return mem, nil
}

func (t TableConfig) write(mem *memory.Memory) error {
	space, err := ParsePASpace(t.Space)
	if err != nil {
		return err
	}

	tg, err := ParseGranule(t.TG)
	if err != nil {
		return err
	}

	pt := pagetable.New(mem, pagetable.Config{
		Space:    space,
		Granule:  tg,
		TxSZ:     t.TxSZ,
		Root:     t.Root,
		PoolBase: t.PoolBase,
		PoolSize: t.PoolSize,
	})

	for _, p := range t.Pages {
		err := pt.Insert(pagetable.Page{
			VA: p.VA, PA: p.PA, Level: p.Level, Attrs: p.Attrs,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// MECRegisters returns the MECID registers, or nil if the scenario does not
// set them.
func (s *Scenario) MECRegisters() *mec.Registers {
	if s.MEC == nil {
		return nil
	}

	c := s.MEC

	return &mec.Registers{
		P0EL2: c.P0EL2, A0EL2: c.A0EL2,
		P1EL2: c.P1EL2, A1EL2: c.A1EL2,
		VPEL2: c.VPEL2, VAEL2: c.VAEL2,
		RLAEL3:   c.RLAEL3,
		TCREL2A1: c.TCREL2A1,
	}
}

func (s *Scenario) mpamRegisters() (*mpam.Registers, error) {
	c := s.MPAM
	regs := &mpam.Registers{
		IDR:     mpam.IDR{PARTIDMax: c.PARTIDMax, PMGMax: c.PMGMax},
		MPAMEN3: c.Enable,
		MPAMEN2: c.Enable,
		MPAMEN1: c.Enable,
	}

	for name, l := range c.Labels {
		labels := mpam.Labels{
			PARTIDI: l.PARTIDI, PARTIDD: l.PARTIDD,
			PMGI: l.PMGI, PMGD: l.PMGD,
		}

		switch name {
		case "EL0":
			regs.EL0 = labels
		case "EL1":
			regs.EL1 = labels
		case "EL2":
			regs.EL2 = labels
		case "EL3":
			regs.EL3 = labels
		case "SM":
			regs.SM = labels
		default:
			return nil, fmt.Errorf("%w: unknown MPAM label set %q",
				ErrInvalidScenario, name)
		}
	}

	return regs, nil
}

// MPAMGenerator returns the generator of the MPAM labels of the accesses, or
// nil if the scenario does not use MPAM.
func (s *Scenario) MPAMGenerator(
	state mpam.StateProvider,
	features vm.FeatureSet,
) (*mpam.Generator, error) {
	if s.MPAM == nil {
		return nil, nil
	}

	regs, err := s.mpamRegisters()
	if err != nil {
		return nil, err
	}

	cfg := mpam.DefaultConfig()

	if s.MPAM.HighestEL != nil {
		cfg.HighestEL, err = parseEL(*s.MPAM.HighestEL)
		if err != nil {
			return nil, err
		}
	}

	if s.MPAM.DefaultPMGOnPARTIDError != nil {
		cfg.DefaultPMGOnPARTIDError = *s.MPAM.DefaultPMGOnPARTIDError
	}

	if s.MPAM.SMLabels != nil {
		cfg.SMLabels = *s.MPAM.SMLabels
	}

	return mpam.NewGenerator(regs, state, features, cfg), nil
}

// HDBSSBuffer returns the dirty state tracking buffer, or nil if the scenario
// does not have one.
func (s *Scenario) HDBSSBuffer(mem hdbss.Writer) (*hdbss.Buffer, error) {
	if s.HDBSS == nil {
		return nil, nil
	}

	space, err := ParsePASpace(s.HDBSS.Space)
	if err != nil {
		return nil, err
	}

	return hdbss.NewBuffer(mem, hdbss.Config{
		Base:     s.HDBSS.Base,
		PASpace:  space,
		SizeCode: s.HDBSS.SizeCode,
	}), nil
}

// BuildTLB returns the translation cache, or nil if the scenario does not
// have one.
func (s *Scenario) BuildTLB(name string) *tlb.TLB {
	if s.TLB == nil {
		return nil
	}

	return tlb.MakeBuilder().
		WithNumSets(s.TLB.Sets).
		WithNumWays(s.TLB.Ways).
		Build(name)
}

// AccessDescriptors returns the descriptors of the accesses of the scenario.
// The accesses carry the labels of gen when it is not nil.
func (s *Scenario) AccessDescriptors(
	gen *mpam.Generator,
) ([]vm.AccessDescriptor, error) {
	ss, err := ParseSecurityState(s.PE.SS)
	if err != nil {
		return nil, err
	}

	descs := make([]vm.AccessDescriptor, 0, len(s.Accesses))

	for i, a := range s.Accesses {
		desc, err := a.descriptor(ss, gen)
		if err != nil {
			return nil, fmt.Errorf("access %d: %w", i, err)
		}

		descs = append(descs, desc)
	}

	return descs, nil
}

func (a Access) descriptor(
	ss vm.SecurityState,
	gen *mpam.Generator,
) (vm.AccessDescriptor, error) {
	el, err := parseEL(a.EL)
	if err != nil {
		return vm.AccessDescriptor{}, err
	}

	name := a.Type
	if name == "" {
		name = "GPR"
	}

	acctype, ok := vm.ParseAccessType(name)
	if !ok {
		return vm.AccessDescriptor{}, fmt.Errorf("%w: unknown access type %q",
			ErrInvalidScenario, name)
	}

	b := vm.MakeAccessDescriptorBuilder(acctype).
		WithEL(el).
		WithSecurityState(ss).
		WithPAN(a.PAN)

	if a.Write {
		b = b.WithWrite()
	} else {
		b = b.WithRead()
	}

	if a.Unpriv {
		b = b.WithUnprivileged()
	}

	if gen != nil {
		b = b.WithMPAM(gen.GenMPAMAtEL(acctype, el))
	}

	return b.Build(), nil
}

// System holds the components that run a scenario.
type System struct {
	Registers  *StaticRegisters
	Memory     *memory.Memory
	Translator *mmu.Translator
	TLB        *tlb.TLB
	HDBSS      *hdbss.Buffer
	MPAM       *mpam.Generator
	Accesses   []vm.AccessDescriptor
}

// Build creates a translator named name and everything it needs to run the
// scenario.
func (s *Scenario) Build(name string) (*System, error) {
	features, err := s.FeatureSet()
	if err != nil {
		return nil, err
	}

	cfg, err := s.MMUConfig()
	if err != nil {
		return nil, err
	}

	sys := &System{}

	if sys.Registers, err = s.Registers(); err != nil {
		return nil, err
	}

	if sys.Memory, err = s.BuildMemory(); err != nil {
		return nil, err
	}

	if sys.HDBSS, err = s.HDBSSBuffer(sys.Memory); err != nil {
		return nil, err
	}

	if sys.MPAM, err = s.MPAMGenerator(sys.Registers, features); err != nil {
		return nil, err
	}

	if sys.Accesses, err = s.AccessDescriptors(sys.MPAM); err != nil {
		return nil, err
	}

	b := mmu.MakeBuilder().
		WithRegisters(sys.Registers).
		WithMemory(sys.Memory).
		WithFeatures(features).
		WithConfig(cfg)

	if m := s.MECRegisters(); m != nil {
		b = b.WithEncryptionTagger(m)
	}

	if sys.HDBSS != nil {
		b = b.WithDirtyTracker(sys.HDBSS)
	}

	if sys.TLB = s.BuildTLB(name + ".TLB"); sys.TLB != nil {
		b = b.WithTLB(sys.TLB)
	}

	gen, err := s.IDGenerator()
	if err != nil {
		return nil, err
	}

	b = b.WithIDGenerator(gen)

	sys.Translator = b.Build(name)

	return sys, nil
}
