package mmu

import (
	"sync/atomic"

	"github.com/sarchlab/vmsa/mem/vm"
)

// DefaultAbortHandler reports synchronous external aborts taken by table walk
// accesses as faults on the walk and pends asynchronous ones as SErrors.
type DefaultAbortHandler struct {
	pendingSErrors atomic.Uint64
}

// NewDefaultAbortHandler creates a DefaultAbortHandler.
func NewDefaultAbortHandler() *DefaultAbortHandler {
	return &DefaultAbortHandler{}
}

// HandleExternalTTWAbort turns a failed table walk access into a fault.
func (h *DefaultAbortHandler) HandleExternalTTWAbort(
	status vm.PhysMemRetStatus,
	isWrite bool,
	_ vm.AddressDescriptor,
	_ vm.AccessDescriptor,
	_ int,
	fault vm.FaultRecord,
) vm.FaultRecord {
	if status.StatusCode.IsAsyncAbort() {
		h.pendingSErrors.Add(1)
		return fault
	}

	fault.ExtFlag = status.ExtFlag
	fault.ErrorType = status.ErrorType
	fault.Write = isWrite

	switch status.StatusCode {
	case vm.FaultSyncExternal:
		fault.StatusCode = vm.FaultSyncExternalOnWalk
	case vm.FaultSyncParity:
		fault.StatusCode = vm.FaultSyncParityOnWalk
	default:
		fault.StatusCode = status.StatusCode
	}

	return fault
}

// PendingSErrors returns the number of asynchronous aborts pended so far.
func (h *DefaultAbortHandler) PendingSErrors() uint64 {
	return h.pendingSErrors.Load()
}
