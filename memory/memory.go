// Package memory models the physical memory that holds translation tables
// and the data they map.
package memory

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/sarchlab/vmsa/mem/vm"
)

type injectedFault struct {
	space vm.PASpace
	start uint64
	end   uint64
	fault vm.Fault
}

// Memory is a sparse physical memory with one Storage per physical address
// space. It serves the table walks of a translator.
type Memory struct {
	sync.Mutex

	capacity uint64
	spaces   map[vm.PASpace]*Storage
	faults   []injectedFault
}

// New creates a memory in which every address space holds capacity bytes.
func New(capacity uint64) *Memory {
	return &Memory{
		capacity: capacity,
		spaces:   make(map[vm.PASpace]*Storage),
	}
}

// Storage returns the storage of an address space.
func (m *Memory) Storage(space vm.PASpace) *Storage {
	m.Lock()
	defer m.Unlock()

	s, ok := m.spaces[space]
	if !ok {
		s = NewStorage(m.capacity)
		m.spaces[space] = s
	}

	return s
}

// InjectFault makes every access that overlaps [addr, addr+size) in space
// fail with fault.
func (m *Memory) InjectFault(
	space vm.PASpace,
	addr, size uint64,
	fault vm.Fault,
) {
	m.Lock()
	defer m.Unlock()

	m.faults = append(m.faults, injectedFault{
		space: space,
		start: addr,
		end:   addr + size,
		fault: fault,
	})
}

// ClearFaults removes all the injected faults.
func (m *Memory) ClearFaults() {
	m.Lock()
	defer m.Unlock()

	m.faults = nil
}

func (m *Memory) check(
	pa vm.FullAddress,
	size int,
	isWrite bool,
) vm.PhysMemRetStatus {
	m.Lock()
	defer m.Unlock()

	end := pa.Address + uint64(size)
	for _, f := range m.faults {
		if f.space == pa.PASpace && pa.Address < f.end && f.start < end {
			return vm.PhysMemRetStatus{
				StatusCode: f.fault,
				ExtFlag:    true,
				Store:      isWrite,
			}
		}
	}

	return vm.PhysMemRetStatus{Store: isWrite}
}

func externalAbort(isWrite bool) vm.PhysMemRetStatus {
	return vm.PhysMemRetStatus{
		StatusCode: vm.FaultSyncExternal,
		Store:      isWrite,
	}
}

func checkSize(size int) {
	if size < 1 || size > 8 {
		panic(fmt.Sprintf("unsupported access size %d", size))
	}
}

func decode(data []byte) uint64 {
	var buf [8]byte
	copy(buf[:], data)

	return binary.LittleEndian.Uint64(buf[:])
}

func encode(value uint64, size int) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)

	return buf[:size]
}

// Read reads size bytes at the physical address of desc as a little-endian
// value.
func (m *Memory) Read(
	desc vm.AddressDescriptor,
	size int,
	_ vm.AccessDescriptor,
) (vm.PhysMemRetStatus, uint64) {
	checkSize(size)

	status := m.check(desc.PAddress, size, false)
	if status.IsFault() {
		return status, 0
	}

	data, err := m.Storage(desc.PAddress.PASpace).
		Read(desc.PAddress.Address, uint64(size))
	if err != nil {
		return externalAbort(false), 0
	}

	return status, decode(data)
}

// Write stores the low size bytes of value at the physical address of desc.
func (m *Memory) Write(
	desc vm.AddressDescriptor,
	size int,
	value uint64,
	_ vm.AccessDescriptor,
) vm.PhysMemRetStatus {
	checkSize(size)

	status := m.check(desc.PAddress, size, true)
	if status.IsFault() {
		return status
	}

	err := m.Storage(desc.PAddress.PASpace).
		Write(desc.PAddress.Address, encode(value, size))
	if err != nil {
		return externalAbort(true)
	}

	return status
}

// CompareAndSwap atomically replaces the 64-bit value at the physical address
// of desc if it equals oldValue. It returns the value after the operation.
func (m *Memory) CompareAndSwap(
	desc vm.AddressDescriptor,
	oldValue, newValue uint64,
	_ vm.AccessDescriptor,
) (vm.PhysMemRetStatus, uint64) {
	status := m.check(desc.PAddress, 8, true)
	if status.IsFault() {
		return status, 0
	}

	s := m.Storage(desc.PAddress.PASpace)
	s.Lock()
	defer s.Unlock()

	data, err := s.read(desc.PAddress.Address, 8)
	if err != nil {
		return externalAbort(true), 0
	}

	current := decode(data)
	if current != oldValue {
		return status, current
	}

	if err := s.write(desc.PAddress.Address, encode(newValue, 8)); err != nil {
		return externalAbort(true), 0
	}

	return status, newValue
}

// Read64 returns the 64-bit little-endian value at pa.
func (m *Memory) Read64(pa vm.FullAddress) (uint64, error) {
	data, err := m.Storage(pa.PASpace).Read(pa.Address, 8)
	if err != nil {
		return 0, err
	}

	return decode(data), nil
}

// Write64 stores a 64-bit little-endian value at pa.
func (m *Memory) Write64(pa vm.FullAddress, value uint64) error {
	return m.Storage(pa.PASpace).Write(pa.Address, encode(value, 8))
}
