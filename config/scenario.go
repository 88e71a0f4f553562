// Package config loads translation scenarios from YAML files and builds the
// components that run them.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidScenario is returned when a scenario cannot be used.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario describes a machine state and the accesses to translate in it.
type Scenario struct {
	Name     string                 `yaml:"name"`
	Features []string               `yaml:"features"`
	MMU      MMUConfig              `yaml:"mmu"`
	PE       PEConfig               `yaml:"pe"`
	SCTLR    map[string]SCTLRConfig `yaml:"sctlr"`
	Stage1   map[string]S1Config    `yaml:"stage1"`
	Stage2   *S2Config              `yaml:"stage2"`
	Memory   MemoryConfig           `yaml:"memory"`
	Tables   []TableConfig          `yaml:"tables"`
	HDBSS    *HDBSSConfig           `yaml:"hdbss"`
	MEC      *MECConfig             `yaml:"mec"`
	MPAM     *MPAMConfig            `yaml:"mpam"`
	TLB      *TLBConfig             `yaml:"tlb"`
	Accesses []Access               `yaml:"accesses"`

	// TaskIDs is "sequential" (the default) or "unique". Unique IDs do not
	// collide when several runs record into the same trace.
	TaskIDs string `yaml:"task_ids"`
}

// MMUConfig overrides the implementation choices of the translator. Unset
// fields keep their defaults.
type MMUConfig struct {
	PAMax                          *int   `yaml:"pa_max"`
	FaultOnTxSZBelowMin            *bool  `yaml:"fault_on_txsz_below_min"`
	FaultOnTxSZAboveMax            *bool  `yaml:"fault_on_txsz_above_max"`
	AFUpdateOnFault                *bool  `yaml:"af_update_on_fault"`
	DirtyUpdateOnAlignmentFault    *bool  `yaml:"dirty_update_on_alignment_fault"`
	KeepTaggedWhenCacheDisabled    *bool  `yaml:"keep_tagged_when_cache_disabled"`
	ApplyEffectiveShareabilityAtS1 *bool  `yaml:"apply_effective_shareability_at_s1"`
	InstrFromDeviceFaults          *bool  `yaml:"instr_from_device_faults"`
	AccessFlagFaultOnCacheMaint    *bool  `yaml:"access_flag_fault_on_cache_maint"`
	ReservedS2Attr                 string `yaml:"reserved_s2_attr"`
	ReservedShareability           string `yaml:"reserved_shareability"`
	MaxCASAttempts                 *int   `yaml:"max_cas_attempts"`
}

// PEConfig is the state of the processing element.
type PEConfig struct {
	SS              string `yaml:"ss"`
	EL2Enabled      bool   `yaml:"el2_enabled"`
	EL3UsingAArch32 bool   `yaml:"el3_aarch32"`
	E2H             bool   `yaml:"e2h"`
	TGE             bool   `yaml:"tge"`
}

// SCTLRConfig holds the SCTLR_ELx enables of a regime.
type SCTLRConfig struct {
	M bool `yaml:"m"`
	C bool `yaml:"c"`
	I bool `yaml:"i"`
}

// S1Config holds the stage 1 registers of a regime, one set per VA range.
type S1Config struct {
	Lower S1Range  `yaml:"lower"`
	Upper *S1Range `yaml:"upper"`
}

// S1Range holds the stage 1 walk parameters of one VA range.
type S1Range struct {
	TG     string `yaml:"tg"`
	TxSZ   int    `yaml:"txsz"`
	TTB    uint64 `yaml:"ttb"`
	ASID   uint16 `yaml:"asid"`
	PS     uint64 `yaml:"ps"`
	IRGN   uint64 `yaml:"irgn"`
	ORGN   uint64 `yaml:"orgn"`
	SH     uint64 `yaml:"sh"`
	MAIR   uint64 `yaml:"mair"`
	EPD    bool   `yaml:"epd"`
	HA     bool   `yaml:"ha"`
	HD     bool   `yaml:"hd"`
	TBI    bool   `yaml:"tbi"`
	TBID   bool   `yaml:"tbid"`
	NFD    bool   `yaml:"nfd"`
	E0PD   bool   `yaml:"e0pd"`
	MTX    bool   `yaml:"mtx"`
	HPD    bool   `yaml:"hpd"`
	EE     bool   `yaml:"ee"`
	WXN    bool   `yaml:"wxn"`
	NTLSMD bool   `yaml:"ntlsmd"`
	SIF    bool   `yaml:"sif"`
	DC     bool   `yaml:"dc"`
	DCT    bool   `yaml:"dct"`
	NV1    bool   `yaml:"nv1"`
	CMOW   bool   `yaml:"cmow"`
	DS     bool   `yaml:"ds"`
	EPAN   bool   `yaml:"epan"`
	PIE    bool   `yaml:"pie"`
	PIR    uint64 `yaml:"pir"`
	PIRE0  uint64 `yaml:"pire0"`
	EMEC   bool   `yaml:"emec"`
	AMEC   bool   `yaml:"amec"`
}

// S2Config holds the stage 2 registers.
type S2Config struct {
	VM    bool   `yaml:"vm"`
	TG    string `yaml:"tg"`
	TxSZ  int    `yaml:"txsz"`
	SL0   uint64 `yaml:"sl0"`
	SL2   bool   `yaml:"sl2"`
	PS    uint64 `yaml:"ps"`
	VTTB  uint64 `yaml:"vttb"`
	VSTTB uint64 `yaml:"vsttb"`
	VMID  uint16 `yaml:"vmid"`
	IRGN  uint64 `yaml:"irgn"`
	ORGN  uint64 `yaml:"orgn"`
	SH    uint64 `yaml:"sh"`
	HA    bool   `yaml:"ha"`
	HD    bool   `yaml:"hd"`
	EE    bool   `yaml:"ee"`
	FWB   bool   `yaml:"fwb"`
	PTW   bool   `yaml:"ptw"`
	DS    bool   `yaml:"ds"`
	SW    bool   `yaml:"sw"`
	NSW   bool   `yaml:"nsw"`
	SA    bool   `yaml:"sa"`
	NSA   bool   `yaml:"nsa"`
	CMOW  bool   `yaml:"cmow"`
	ID    bool   `yaml:"id"`
	CD    bool   `yaml:"cd"`
	S2PIE bool   `yaml:"s2pie"`
	S2PIR uint64 `yaml:"s2pir"`
	EMEC  bool   `yaml:"emec"`
	HDBSS bool   `yaml:"hdbss"`
}

// MemoryConfig describes the initial content of physical memory.
type MemoryConfig struct {
	Capacity uint64        `yaml:"capacity"`
	Words    []WordConfig  `yaml:"words"`
	Faults   []FaultConfig `yaml:"faults"`
}

// WordConfig is a 64-bit value stored at a physical address.
type WordConfig struct {
	Space string `yaml:"space"`
	Addr  uint64 `yaml:"addr"`
	Value uint64 `yaml:"value"`
}

// FaultConfig makes accesses to a physical range fail.
type FaultConfig struct {
	Space string `yaml:"space"`
	Addr  uint64 `yaml:"addr"`
	Size  uint64 `yaml:"size"`
	Fault string `yaml:"fault"`
}

// TableConfig describes a set of translation tables and the pages they map.
// The tables are written after the words of the memory.
type TableConfig struct {
	Space    string       `yaml:"space"`
	TG       string       `yaml:"tg"`
	TxSZ     int          `yaml:"txsz"`
	Root     uint64       `yaml:"root"`
	PoolBase uint64       `yaml:"pool_base"`
	PoolSize uint64       `yaml:"pool_size"`
	Pages    []PageConfig `yaml:"pages"`
}

// PageConfig is a leaf of a translation table.
type PageConfig struct {
	VA    uint64 `yaml:"va"`
	PA    uint64 `yaml:"pa"`
	Level int    `yaml:"level"`
	Attrs uint64 `yaml:"attrs"`
}

// HDBSSConfig describes the hardware dirty state tracking buffer.
type HDBSSConfig struct {
	Base     uint64 `yaml:"base"`
	SizeCode uint8  `yaml:"size_code"`
	Space    string `yaml:"space"`
}

// MECConfig holds the MECID registers.
type MECConfig struct {
	P0EL2    uint16 `yaml:"p0_el2"`
	A0EL2    uint16 `yaml:"a0_el2"`
	P1EL2    uint16 `yaml:"p1_el2"`
	A1EL2    uint16 `yaml:"a1_el2"`
	VPEL2    uint16 `yaml:"vp_el2"`
	VAEL2    uint16 `yaml:"va_el2"`
	RLAEL3   uint16 `yaml:"rl_a_el3"`
	TCREL2A1 bool   `yaml:"tcr_el2_a1"`
}

// MPAMConfig holds the MPAM registers that label the accesses.
type MPAMConfig struct {
	PARTIDMax uint16                `yaml:"partid_max"`
	PMGMax    uint8                 `yaml:"pmg_max"`
	Enable    bool                  `yaml:"enable"`
	HighestEL *int                  `yaml:"highest_el"`
	Labels    map[string]MPAMLabels `yaml:"labels"`

	DefaultPMGOnPARTIDError *bool `yaml:"default_pmg_on_partid_error"`
	SMLabels                *bool `yaml:"sm_labels"`
}

// MPAMLabels holds the PARTID and PMG fields of one exception level.
type MPAMLabels struct {
	PARTIDI uint16 `yaml:"partid_i"`
	PARTIDD uint16 `yaml:"partid_d"`
	PMGI    uint8  `yaml:"pmg_i"`
	PMGD    uint8  `yaml:"pmg_d"`
}

// TLBConfig sizes the translation cache.
type TLBConfig struct {
	Sets int `yaml:"sets"`
	Ways int `yaml:"ways"`
}

// Access is a single access to translate.
type Access struct {
	VA      uint64 `yaml:"va"`
	EL      int    `yaml:"el"`
	Type    string `yaml:"type"`
	Write   bool   `yaml:"write"`
	PAN     bool   `yaml:"pan"`
	Unpriv  bool   `yaml:"unpriv"`
	Aligned *bool  `yaml:"aligned"`
	Size    int    `yaml:"size"`
}

// IsAligned reports whether the access is aligned. Accesses are aligned
// unless the scenario says otherwise.
func (a Access) IsAligned() bool {
	return a.Aligned == nil || *a.Aligned
}

// Load reads and validates the scenario in a YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML scenario.
func Parse(data []byte) (*Scenario, error) {
	s := &Scenario{}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks that every name in the scenario is known.
func (s *Scenario) Validate() error {
	if _, err := s.FeatureSet(); err != nil {
		return err
	}

	if _, err := s.MMUConfig(); err != nil {
		return err
	}

	if _, err := s.IDGenerator(); err != nil {
		return err
	}

	if _, err := s.Registers(); err != nil {
		return err
	}

	if _, err := s.BuildMemory(); err != nil {
		return err
	}

	if _, err := s.AccessDescriptors(nil); err != nil {
		return err
	}

	if s.HDBSS != nil {
		if _, err := ParsePASpace(s.HDBSS.Space); err != nil {
			return err
		}
	}

	if s.MPAM != nil {
		if _, err := s.mpamRegisters(); err != nil {
			return err
		}
	}

	if s.TLB != nil && (s.TLB.Sets <= 0 || s.TLB.Sets&(s.TLB.Sets-1) != 0 ||
		s.TLB.Ways <= 0) {
		return fmt.Errorf("%w: TLB needs a power of 2 sets and at least one way",
			ErrInvalidScenario)
	}

	return nil
}
