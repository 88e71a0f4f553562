// Package hdbss implements the hardware dirty state tracking structure, a
// buffer in memory that collects the IPAs whose stage 2 dirty state hardware
// has set.
package hdbss

import (
	"errors"
	"sync"

	"github.com/sarchlab/vmsa/mem/vm"
)

var (
	// ErrFull is returned when the buffer has no free entry.
	ErrFull = errors.New("hdbss: buffer full")

	// ErrInvalidBase is returned when the base address is not aligned to
	// the buffer size or the size is not supported.
	ErrInvalidBase = errors.New("hdbss: invalid base address or size")
)

// EntrySize is the number of bytes of one buffer entry.
const EntrySize = 8

// A Writer stores entries into physical memory.
type Writer interface {
	Write(
		desc vm.AddressDescriptor,
		size int,
		value uint64,
		accdesc vm.AccessDescriptor,
	) vm.PhysMemRetStatus
}

// Config describes the buffer as programmed in HDBSSBR_EL2.
type Config struct {
	// Base is the physical address of the buffer.
	Base uint64

	// PASpace is the address space the buffer lives in.
	PASpace vm.PASpace

	// SizeCode is the SZ field. The buffer holds 4KB << (SizeCode-1)
	// bytes, with codes 1 to 7 valid.
	SizeCode uint8
}

// Bytes returns the size of the buffer in bytes, or 0 if the size code is
// not supported.
func (c Config) Bytes() uint64 {
	if c.SizeCode < 1 || c.SizeCode > 7 {
		return 0
	}

	return uint64(4096) << (c.SizeCode - 1)
}

// Buffer is a DirtyTracker backed by physical memory.
type Buffer struct {
	sync.Mutex

	mem   Writer
	cfg   Config
	index uint64
	err   error
}

// NewBuffer creates an empty buffer that writes its entries with mem.
func NewBuffer(mem Writer, cfg Config) *Buffer {
	return &Buffer{mem: mem, cfg: cfg}
}

// Entry encodes the record of an IPA whose dirty state is set by a walk that
// ended at level.
func Entry(ipa uint64, level int) uint64 {
	return vm.AlignDown(ipa, 12) | uint64(level&0x3)<<1 | 1
}

// Append writes the record of ipa at the current index. Once an error is
// reported the buffer stops recording until it is reset.
func (b *Buffer) Append(
	ipa vm.FullAddress,
	accdesc vm.AccessDescriptor,
	params vm.S2TTWParams,
	level int,
) (vm.PhysMemRetStatus, error) {
	b.Lock()
	defer b.Unlock()

	if !params.HDBSS {
		return vm.PhysMemRetStatus{}, nil
	}

	if b.err != nil {
		return vm.PhysMemRetStatus{}, b.err
	}

	size := b.cfg.Bytes()
	if size == 0 || b.cfg.Base%size != 0 {
		b.err = ErrInvalidBase
		return vm.PhysMemRetStatus{}, b.err
	}

	if (b.index+1)*EntrySize > size {
		b.err = ErrFull
		return vm.PhysMemRetStatus{}, b.err
	}

	addr := vm.FullAddress{
		PASpace: b.cfg.PASpace,
		Address: b.cfg.Base + b.index*EntrySize,
	}
	desc := vm.CreateAddressDescriptor(0, addr, vm.NormalNCMemAttr())

	write := vm.MakeAccessDescriptorBuilder(vm.AccessTypeHDBSS).
		WithEL(vm.EL2).
		WithSecurityState(accdesc.SS).
		WithWrite().
		WithMPAM(accdesc.MPAM).
		Build()

	status := b.mem.Write(desc, EntrySize, Entry(ipa.Address, level), write)
	if status.IsFault() {
		return status, nil
	}

	b.index++

	return status, nil
}

// Index returns the number of entries recorded.
func (b *Buffer) Index() uint64 {
	b.Lock()
	defer b.Unlock()

	return b.index
}

// Err returns the error that stopped the buffer, if any.
func (b *Buffer) Err() error {
	b.Lock()
	defer b.Unlock()

	return b.err
}

// Reset empties the buffer and clears its error, as software does after
// draining it.
func (b *Buffer) Reset() {
	b.Lock()
	defer b.Unlock()

	b.index = 0
	b.err = nil
}
