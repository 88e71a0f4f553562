package mmu

import (
	"fmt"
	"math/bits"

	"github.com/sarchlab/vmsa/mem/vm"
)

func (t *Translator) settingAccessFlagPermitted(fault vm.FaultRecord) bool {
	switch fault.StatusCode {
	case vm.FaultNone:
		return true
	case vm.FaultAlignment, vm.FaultPermission:
		return t.cfg.AFUpdateOnFault
	default:
		return false
	}
}

func (t *Translator) settingDirtyStatePermitted(fault vm.FaultRecord) bool {
	switch fault.StatusCode {
	case vm.FaultNone:
		return true
	case vm.FaultAlignment:
		return t.cfg.DirtyUpdateOnAlignmentFault
	default:
		return false
	}
}

func reverseBytes(v uint64) uint64 {
	return bits.ReverseBytes64(v)
}

// memSwapTableDesc atomically replaces prevDesc with newDesc in memory. It
// returns the descriptor held by memory after the operation.
func (t *Translator) memSwapTableDesc(
	taskID string,
	fault vm.FaultRecord,
	prevDesc, newDesc uint64,
	ee bool,
	descaccess vm.AccessDescriptor,
	descpaddr vm.AddressDescriptor,
) (vm.FaultRecord, uint64) {
	oldValue, newValue := prevDesc, newDesc
	if ee {
		oldValue = reverseBytes(prevDesc)
		newValue = reverseBytes(newDesc)
	}

	status, memDesc := t.mem.CompareAndSwap(
		descpaddr, oldValue, newValue, descaccess)

	if status.IsFault() {
		fault = t.abortHandler.HandleExternalTTWAbort(
			status, status.Store, descpaddr, descaccess, 8, fault)
		if fault.StatusCode.IsExternalAbort() {
			return fault, prevDesc
		}

		memDesc = oldValue
		if status.Store {
			memDesc = newValue
		}
	}

	if ee {
		memDesc = reverseBytes(memDesc)
	}

	t.step(taskID, StepCAS, fmt.Sprintf("%s %s -> %s (mem %s)",
		descpaddr.PAddress, formatDescriptor(prevDesc),
		formatDescriptor(newDesc), formatDescriptor(memDesc)))

	return fault, memDesc
}

// appendToHDBSS records a stage 2 dirty state change in the dirty tracker.
// The second return value is false if the change could not be recorded, in
// which case the hardware dirty update must not be made.
func (t *Translator) appendToHDBSS(
	taskID string,
	fault vm.FaultRecord,
	ipa vm.FullAddress,
	accdesc vm.AccessDescriptor,
	params vm.S2TTWParams,
	level int,
) (vm.FaultRecord, bool) {
	if t.dirtyTracker == nil || !t.features.Has(vm.FeatHDBSS) {
		return fault, true
	}

	status, err := t.dirtyTracker.Append(ipa, accdesc, params, level)

	if status.IsFault() {
		isWrite := true
		handled := t.abortHandler.HandleExternalTTWAbort(status, isWrite,
			vm.AddressDescriptor{PAddress: ipa}, accdesc, 8, fault)
		t.step(taskID, StepHDBSS, "abort: "+status.StatusCode.String())

		// Only an external abort fails the translation. Any other failure,
		// pended aborts included, leaves the page clean.
		if handled.StatusCode.IsExternalAbort() {
			return handled, false
		}

		return fault, false
	}

	if err != nil {
		t.step(taskID, StepHDBSS, "not recorded: "+err.Error())
		return fault, false
	}

	t.step(taskID, StepHDBSS, ipa.String())

	return fault, true
}
