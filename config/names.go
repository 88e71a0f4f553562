package config

import (
	"fmt"

	"github.com/sarchlab/vmsa/mem/vm"
)

func lookupName[T fmt.Stringer](kind, name string, values []T) (T, error) {
	for _, v := range values {
		if v.String() == name {
			return v, nil
		}
	}

	var zero T

	return zero, fmt.Errorf("%w: unknown %s %q", ErrInvalidScenario, kind, name)
}

// ParseRegime returns the regime with the given name, such as "EL1&0".
func ParseRegime(name string) (vm.Regime, error) {
	return lookupName("regime", name, []vm.Regime{
		vm.RegimeEL10, vm.RegimeEL20, vm.RegimeEL2, vm.RegimeEL3, vm.RegimeEL30,
	})
}

// ParseSecurityState returns the security state with the given name.
func ParseSecurityState(name string) (vm.SecurityState, error) {
	if name == "" {
		return vm.SSNonSecure, nil
	}

	return lookupName("security state", name, []vm.SecurityState{
		vm.SSNonSecure, vm.SSRoot, vm.SSRealm, vm.SSSecure,
	})
}

// ParsePASpace returns the physical address space with the given name. An
// empty name is the Non-secure space.
func ParsePASpace(name string) (vm.PASpace, error) {
	if name == "" {
		return vm.PASNonSecure, nil
	}

	return lookupName("address space", name, []vm.PASpace{
		vm.PASNonSecure, vm.PASSecure, vm.PASRoot, vm.PASRealm,
	})
}

// ParseGranule returns the granule with the given size name. An empty name is
// the 4KB granule.
func ParseGranule(name string) (vm.TGx, error) {
	if name == "" {
		return vm.TG4KB, nil
	}

	return lookupName("granule", name, []vm.TGx{vm.TG4KB, vm.TG16KB, vm.TG64KB})
}

// ParseFault returns the fault with the given name.
func ParseFault(name string) (vm.Fault, error) {
	faults := make([]vm.Fault, 0, int(vm.FaultICacheMaint)+1)
	for f := vm.FaultNone; f <= vm.FaultICacheMaint; f++ {
		faults = append(faults, f)
	}

	return lookupName("fault", name, faults)
}

func parseEL(el int) (vm.EL, error) {
	if el < 0 || el > 3 {
		return 0, fmt.Errorf("%w: exception level %d", ErrInvalidScenario, el)
	}

	return vm.EL(el), nil
}

func parseMemAttr(name string, def vm.MemAttr) (vm.MemAttr, error) {
	if name == "" {
		return def, nil
	}

	return lookupName("memory attribute", name, []vm.MemAttr{
		vm.MemAttrNC, vm.MemAttrWT, vm.MemAttrWB,
	})
}

func parseShareability(name string, def vm.Shareability) (vm.Shareability, error) {
	if name == "" {
		return def, nil
	}

	return lookupName("shareability", name, []vm.Shareability{
		vm.ShareabilityNSH, vm.ShareabilityISH, vm.ShareabilityOSH,
	})
}
