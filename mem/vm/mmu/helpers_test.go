package mmu

import (
	"math/bits"
	"sync"

	"github.com/sarchlab/vmsa/mem/vm"
)

// Leaf descriptor fields used to build tables.
const (
	descAF      = uint64(1) << 10
	descNG      = uint64(1) << 11
	descISH     = uint64(3) << 8
	descAPRWAll = uint64(1) << 6
	descAPROEL1 = uint64(2) << 6
	descDBM     = uint64(1) << 51
	descPXN     = uint64(1) << 53
	descUXN     = uint64(1) << 54
	descGP      = uint64(1) << 50

	// MAIR indexes of testMAIR.
	descAttrWB     = uint64(0) << 2
	descAttrNC     = uint64(1) << 2
	descAttrDevice = uint64(2) << 2

	s2DescRW     = uint64(3) << 6
	s2DescRO     = uint64(1) << 6
	s2DescAttrWB = uint64(0xf) << 2

	testMAIR = uint64(0x0044ff)
)

func pageDesc(oa uint64, attrs uint64) uint64 {
	return oa | 0x3 | attrs
}

func s1Page(oa uint64, attrs uint64) uint64 {
	return pageDesc(oa, descAF|descISH|descAttrWB|attrs)
}

func s2Page(oa uint64, attrs uint64) uint64 {
	return pageDesc(oa, descAF|descISH|s2DescAttrWB|attrs)
}

type fakeMemory struct {
	sync.Mutex

	words     map[vm.FullAddress]uint64
	reads     int
	casCount  int
	beforeCAS func(m *fakeMemory)
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{words: make(map[vm.FullAddress]uint64)}
}

func (m *fakeMemory) Read(
	desc vm.AddressDescriptor,
	_ int,
	_ vm.AccessDescriptor,
) (vm.PhysMemRetStatus, uint64) {
	m.Lock()
	defer m.Unlock()

	m.reads++

	return vm.PhysMemRetStatus{}, m.words[desc.PAddress]
}

func (m *fakeMemory) CompareAndSwap(
	desc vm.AddressDescriptor,
	oldValue, newValue uint64,
	_ vm.AccessDescriptor,
) (vm.PhysMemRetStatus, uint64) {
	m.Lock()
	defer m.Unlock()

	m.casCount++

	if m.beforeCAS != nil {
		f := m.beforeCAS
		m.beforeCAS = nil
		f(m)
	}

	if m.words[desc.PAddress] == oldValue {
		m.words[desc.PAddress] = newValue
	}

	return vm.PhysMemRetStatus{Store: true}, m.words[desc.PAddress]
}

func (m *fakeMemory) word(addr vm.FullAddress) uint64 {
	m.Lock()
	defer m.Unlock()

	return m.words[addr]
}

func (m *fakeMemory) write(addr vm.FullAddress, v uint64) {
	m.Lock()
	defer m.Unlock()

	m.words[addr] = v
}

// tableBuilder lays out 4KB granule translation tables in a fakeMemory.
type tableBuilder struct {
	mem        *fakeMemory
	space      vm.PASpace
	next       uint64
	iasize     int
	startLevel int
	ee         bool
	root       uint64
	tables     []uint64
}

func newTableBuilder(
	mem *fakeMemory,
	root uint64,
	rootSize uint64,
	iasize int,
	startLevel int,
) *tableBuilder {
	return &tableBuilder{
		mem:        mem,
		space:      vm.PASNonSecure,
		root:       root,
		next:       root + rootSize,
		iasize:     iasize,
		startLevel: startLevel,
		tables:     []uint64{root},
	}
}

func (b *tableBuilder) entryAddr(table uint64, level int, ia uint64) vm.FullAddress {
	lsb := 12 + 9*(3-level)

	msb := lsb + 8
	if level == b.startLevel || msb > b.iasize-1 {
		msb = b.iasize - 1
	}

	index := (ia >> lsb) & (uint64(1)<<(msb-lsb+1) - 1)

	return vm.FullAddress{PASpace: b.space, Address: table + index*8}
}

func (b *tableBuilder) load(addr vm.FullAddress) uint64 {
	v := b.mem.word(addr)
	if b.ee {
		v = bits.ReverseBytes64(v)
	}

	return v
}

func (b *tableBuilder) store(addr vm.FullAddress, v uint64) {
	if b.ee {
		v = bits.ReverseBytes64(v)
	}

	b.mem.write(addr, v)
}

// mapPage installs leaf as the level 3 entry of ia and returns the address of
// the entry.
func (b *tableBuilder) mapPage(ia uint64, leaf uint64) vm.FullAddress {
	table := b.root

	for level := b.startLevel; level < vm.FinalLevel; level++ {
		addr := b.entryAddr(table, level, ia)

		desc := b.load(addr)
		if desc&1 == 0 {
			next := b.next
			b.next += 0x1000
			b.tables = append(b.tables, next)

			desc = next | 0x3
			b.store(addr, desc)
		}

		table = desc & 0x0000_ffff_ffff_f000
	}

	addr := b.entryAddr(table, vm.FinalLevel, ia)
	b.store(addr, leaf)

	return addr
}

// leaf returns the decoded level 3 entry that maps ia.
func (b *tableBuilder) leaf(addr vm.FullAddress) uint64 {
	return b.load(addr)
}

type fakeRegisters struct {
	pe      vm.PEState
	sctlr   map[vm.Regime]vm.SystemControl
	s1      map[vm.Regime]vm.S1TTWParams
	s2      vm.S2TTWParams
	s2Reads int
}

func newFakeRegisters() *fakeRegisters {
	return &fakeRegisters{
		sctlr: make(map[vm.Regime]vm.SystemControl),
		s1:    make(map[vm.Regime]vm.S1TTWParams),
	}
}

func (r *fakeRegisters) PEState() vm.PEState {
	return r.pe
}

func (r *fakeRegisters) SCTLR(regime vm.Regime) vm.SystemControl {
	return r.sctlr[regime]
}

func (r *fakeRegisters) S1TTWParams(
	regime vm.Regime,
	_ vm.SecurityState,
	_ uint64,
) vm.S1TTWParams {
	return r.s1[regime]
}

func (r *fakeRegisters) S2TTWParams(
	_ vm.SecurityState,
	_ vm.PASpace,
) vm.S2TTWParams {
	r.s2Reads++
	return r.s2
}

func s1Params(ttb uint64) vm.S1TTWParams {
	return vm.S1TTWParams{
		TGx:  vm.TG4KB,
		TxSZ: 16,
		TTB:  ttb,
		PS:   5,
		IRGN: 1,
		ORGN: 1,
		SH:   3,
		MAIR: testMAIR,
	}
}

func s2Params(vttb uint64) vm.S2TTWParams {
	return vm.S2TTWParams{
		VM:   true,
		TGx:  vm.TG4KB,
		TxSZ: 24,
		SL0:  1,
		PS:   5,
		VTTB: vttb,
		IRGN: 1,
		ORGN: 1,
		SH:   3,
	}
}

var enabledSCTLR = vm.SystemControl{M: true, C: true, I: true}

func readAt(el vm.EL) vm.AccessDescriptor {
	return vm.MakeAccessDescriptorBuilder(vm.AccessTypeGPR).
		WithEL(el).
		WithRead().
		Build()
}

func writeAt(el vm.EL) vm.AccessDescriptor {
	return vm.MakeAccessDescriptorBuilder(vm.AccessTypeGPR).
		WithEL(el).
		WithWrite().
		Build()
}

func fetchAt(el vm.EL) vm.AccessDescriptor {
	return vm.MakeAccessDescriptorBuilder(vm.AccessTypeIFETCH).
		WithEL(el).
		WithRead().
		Build()
}

type mapCache struct {
	records map[vm.TLBContext]vm.TLBRecord
}

func newMapCache() *mapCache {
	return &mapCache{records: make(map[vm.TLBContext]vm.TLBRecord)}
}

func (c *mapCache) key(ctx vm.TLBContext) vm.TLBContext {
	return vm.TLBContext{
		SS: ctx.SS, Regime: ctx.Regime, ASID: ctx.ASID, VMID: ctx.VMID,
		IPASpace: ctx.IPASpace, IA: ctx.IA,
	}
}

func (c *mapCache) Lookup(
	ctx vm.TLBContext,
	_ vm.AccessDescriptor,
	_ uint64,
) (vm.TLBRecord, bool) {
	rec, ok := c.records[c.key(ctx)]
	return rec, ok
}

func (c *mapCache) Insert(
	ctx vm.TLBContext,
	_ vm.AccessDescriptor,
	_ uint64,
	rec vm.TLBRecord,
) {
	c.records[c.key(ctx)] = rec
}
