// Package pagetable lays out AArch64 translation tables in physical memory.
package pagetable

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/vmsa/mem/vm"
)

// The descriptor encodings the page table writes.
const (
	descValid = uint64(1)
	descTable = uint64(3)
	descBlock = uint64(1)
	descPage  = uint64(3)

	oaMSB = 47
)

var (
	// ErrNoSpace is returned when no memory is left for a new table.
	ErrNoSpace = errors.New("no space left for translation tables")

	// ErrConflict is returned when a mapping overlaps a block of a different
	// level.
	ErrConflict = errors.New("mapping conflicts with an existing entry")

	// ErrMisaligned is returned when an address is not aligned to the size
	// mapped by its level.
	ErrMisaligned = errors.New("address is not aligned to the mapping size")
)

// Memory is the physical memory the tables are stored in.
type Memory interface {
	Read64(pa vm.FullAddress) (uint64, error)
	Write64(pa vm.FullAddress, value uint64) error
}

// A Page maps the block of input addresses that contains VA to PA. Level is
// the lookup level of the leaf, with level 3 mapping a single granule.
type Page struct {
	VA    uint64
	PA    uint64
	Level int

	// Attrs holds the attribute fields of the leaf descriptor. The valid and
	// type bits and the output address are filled in.
	Attrs uint64
}

// Config describes the shape of a set of tables.
type Config struct {
	Space   vm.PASpace
	Granule vm.TGx
	TxSZ    int

	// Root is the address of the start level table.
	Root uint64

	// PoolBase and PoolSize describe the memory that next level tables are
	// allocated from.
	PoolBase uint64
	PoolSize uint64
}

// A PageTable holds the translation tables of one regime or stage. Only
// 64-bit little-endian descriptors are written.
type PageTable struct {
	sync.Mutex

	mem        Memory
	cfg        Config
	startLevel int
	next       uint64
}

// New creates a PageTable whose start level table is at cfg.Root. The root
// table is assumed to be zeroed.
func New(mem Memory, cfg Config) *PageTable {
	granuleBits := cfg.Granule.GranuleBits()
	iasize := vm.IASize(cfg.TxSZ)

	return &PageTable{
		mem:        mem,
		cfg:        cfg,
		startLevel: vm.FinalLevel - (iasize-1-granuleBits)/cfg.Granule.Stride(),
		next:       alignUp(cfg.PoolBase, granuleBits),
	}
}

func alignUp(v uint64, n int) uint64 {
	return vm.AlignDown(v+uint64(1)<<n-1, n)
}

// StartLevel returns the level of the root table.
func (pt *PageTable) StartLevel() int {
	return pt.startLevel
}

// Root returns the address of the root table.
func (pt *PageTable) Root() uint64 {
	return pt.cfg.Root
}

func (pt *PageTable) entryAddr(table uint64, level int, va uint64) vm.FullAddress {
	tgx := pt.cfg.Granule
	lsb := vm.TranslationSize(tgx, level)

	msb := lsb + tgx.Stride() - 1
	if iasize := vm.IASize(pt.cfg.TxSZ); msb > iasize-1 {
		msb = iasize - 1
	}

	return vm.FullAddress{
		PASpace: pt.cfg.Space,
		Address: table | vm.Bits(va, msb, lsb)<<vm.DescSizeLog2,
	}
}

func (pt *PageTable) nextTable(desc uint64) uint64 {
	gbits := pt.cfg.Granule.GranuleBits()
	return vm.Bits(desc, oaMSB, gbits) << gbits
}

func (pt *PageTable) allocTable() (uint64, error) {
	size := uint64(1) << pt.cfg.Granule.GranuleBits()
	if pt.next+size > pt.cfg.PoolBase+pt.cfg.PoolSize {
		return 0, ErrNoSpace
	}

	table := pt.next
	pt.next += size

	zero := vm.FullAddress{PASpace: pt.cfg.Space}
	for off := uint64(0); off < size; off += 8 {
		zero.Address = table + off
		if err := pt.mem.Write64(zero, 0); err != nil {
			return 0, err
		}
	}

	return table, nil
}

// Insert maps a page, creating the tables on its path. An existing leaf for
// the same block is overwritten.
func (pt *PageTable) Insert(page Page) error {
	pt.Lock()
	defer pt.Unlock()

	level := page.Level
	if level == 0 {
		level = vm.FinalLevel
	}

	if level < pt.startLevel || level > vm.FinalLevel {
		return fmt.Errorf("level %d is outside [%d, %d]",
			level, pt.startLevel, vm.FinalLevel)
	}

	size := vm.TranslationSize(pt.cfg.Granule, level)
	if vm.LowBits(page.VA, size) != 0 || vm.LowBits(page.PA, size) != 0 {
		return fmt.Errorf("%w: %#x -> %#x at level %d",
			ErrMisaligned, page.VA, page.PA, level)
	}

	table, err := pt.walkToLevel(page.VA, level, true)
	if err != nil {
		return err
	}

	leaf := page.PA | page.Attrs&^(descPage|oaMask(pt.cfg.Granule))
	if level == vm.FinalLevel {
		leaf |= descPage
	} else {
		leaf |= descBlock
	}

	return pt.mem.Write64(pt.entryAddr(table, level, page.VA), leaf)
}

func oaMask(tgx vm.TGx) uint64 {
	gbits := tgx.GranuleBits()
	return (uint64(1)<<(oaMSB+1) - 1) &^ (uint64(1)<<gbits - 1)
}

// walkToLevel returns the table that holds the entries of level for va.
func (pt *PageTable) walkToLevel(va uint64, level int, create bool) (uint64, error) {
	table := pt.cfg.Root

	for l := pt.startLevel; l < level; l++ {
		addr := pt.entryAddr(table, l, va)

		desc, err := pt.mem.Read64(addr)
		if err != nil {
			return 0, err
		}

		switch {
		case desc&descValid == 0:
			if !create {
				return 0, nil
			}

			next, err := pt.allocTable()
			if err != nil {
				return 0, err
			}

			if err := pt.mem.Write64(addr, next|descTable); err != nil {
				return 0, err
			}

			table = next
		case desc&descTable == descTable:
			table = pt.nextTable(desc)
		default:
			return 0, fmt.Errorf("%w: block at level %d covers %#x",
				ErrConflict, l, va)
		}
	}

	return table, nil
}

// Find returns the leaf descriptor that maps va and its level.
func (pt *PageTable) Find(va uint64) (desc uint64, level int, found bool) {
	pt.Lock()
	defer pt.Unlock()

	table := pt.cfg.Root

	for l := pt.startLevel; l <= vm.FinalLevel; l++ {
		d, err := pt.mem.Read64(pt.entryAddr(table, l, va))
		if err != nil || d&descValid == 0 {
			return 0, 0, false
		}

		if l == vm.FinalLevel || d&descTable != descTable {
			return d, l, true
		}

		table = pt.nextTable(d)
	}

	return 0, 0, false
}

// Remove invalidates the leaf that maps va. Tables left empty are not
// reclaimed.
func (pt *PageTable) Remove(va uint64) {
	pt.Lock()
	defer pt.Unlock()

	table := pt.cfg.Root

	for l := pt.startLevel; l <= vm.FinalLevel; l++ {
		addr := pt.entryAddr(table, l, va)

		d, err := pt.mem.Read64(addr)
		if err != nil || d&descValid == 0 {
			panic(fmt.Sprintf("page %#x does not exist", va))
		}

		if l == vm.FinalLevel || d&descTable != descTable {
			if err := pt.mem.Write64(addr, 0); err != nil {
				panic(err)
			}

			return
		}

		table = pt.nextTable(d)
	}
}

// Update changes the attributes of the leaf that maps va. The output address
// and the leaf level are kept.
func (pt *PageTable) Update(va uint64, attrs uint64) {
	desc, level, found := pt.Find(va)
	if !found {
		panic(fmt.Sprintf("page %#x does not exist", va))
	}

	size := vm.TranslationSize(pt.cfg.Granule, level)
	page := Page{
		VA:    vm.AlignDown(va, size),
		PA:    desc & oaMask(pt.cfg.Granule),
		Level: level,
		Attrs: attrs,
	}

	if err := pt.Insert(page); err != nil {
		panic(err)
	}
}
