package vm

import "fmt"

// PASpace is a physical address space.
type PASpace uint8

// The physical address spaces.
const (
	PASNonSecure PASpace = iota
	PASSecure
	PASRoot
	PASRealm
)

func (p PASpace) String() string {
	switch p {
	case PASNonSecure:
		return "NonSecure"
	case PASSecure:
		return "Secure"
	case PASRoot:
		return "Root"
	case PASRealm:
		return "Realm"
	}

	return fmt.Sprintf("PASpace(%d)", uint8(p))
}

// DecodePASpace decodes the NSE:NS pair of a descriptor or register.
func DecodePASpace(nse, ns bool) PASpace {
	switch {
	case !nse && !ns:
		return PASSecure
	case !nse && ns:
		return PASNonSecure
	case nse && !ns:
		return PASRoot
	default:
		return PASRealm
	}
}

// PAWidth is the number of bits an address field of a FullAddress can hold.
const PAWidth = 56

// A FullAddress is a physical address qualified by its address space.
type FullAddress struct {
	PASpace PASpace
	Address uint64
}

func (a FullAddress) String() string {
	return fmt.Sprintf("%s:0x%x", a.PASpace, a.Address)
}

// DefaultMECID is the memory encryption context of untagged output.
const DefaultMECID uint16 = 0

// An AddressDescriptor is the result of a translation. It either carries a
// physical address with its attributes or a fault.
type AddressDescriptor struct {
	Fault     FaultRecord
	MemAttrs  MemoryAttributes
	PAddress  FullAddress
	S1Assured bool
	S2FS1MRO  bool
	MECID     uint16
	VAddress  uint64
}

// CreateAddressDescriptor returns a successful descriptor for the output
// address.
func CreateAddressDescriptor(
	va uint64,
	pa FullAddress,
	memattrs MemoryAttributes,
) AddressDescriptor {
	return AddressDescriptor{
		Fault:    NoFault(),
		MemAttrs: memattrs,
		PAddress: pa,
		VAddress: va,
		MECID:    DefaultMECID,
	}
}

// CreateFaultyAddressDescriptor returns a descriptor that carries only the
// fault.
func CreateFaultyAddressDescriptor(
	va uint64,
	fault FaultRecord,
) AddressDescriptor {
	return AddressDescriptor{
		Fault:    fault,
		VAddress: va,
		MECID:    DefaultMECID,
	}
}

// IsFault reports whether the descriptor carries a fault.
func (d AddressDescriptor) IsFault() bool {
	return d.Fault.IsFault()
}

// PA returns the output address. The second return value is false if the
// translation faulted, in which case the address is meaningless.
func (d AddressDescriptor) PA() (FullAddress, bool) {
	if d.IsFault() {
		return FullAddress{}, false
	}

	return d.PAddress, true
}
