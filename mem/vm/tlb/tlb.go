// Package tlb provides a set-associative cache of successful address
// translations.
package tlb

import (
	"fmt"
	"sync"

	"github.com/sarchlab/vmsa/mem/vm"
	"github.com/sarchlab/vmsa/mem/vm/tlb/internal"
)

const (
	tlbStateEnable  = "enable"
	tlbStateDisable = "disable"
)

// Stats counts the activity of a TLB.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	Invalidations uint64
}

// TLB caches full translations. Entries are keyed by the translation context
// and by the intent of the access, so that a hit never bypasses a
// permission check the cached access did not make.
type TLB struct {
	sync.Mutex

	name    string
	numSets int
	numWays int
	state   string
	sets    []internal.Set
	stats   Stats
}

// Name returns the name of the TLB.
func (t *TLB) Name() string {
	return t.name
}

func (t *TLB) reset() {
	t.sets = make([]internal.Set, t.numSets)
	for i := range t.sets {
		t.sets[i] = internal.NewSet(t.numWays)
	}
}

func (t *TLB) setID(va uint64) int {
	return int((va >> 12) % uint64(t.numSets))
}

// The ASID recorded for global entries.
const globalASID = "g"

func key(ctx vm.TLBContext, accdesc vm.AccessDescriptor, asid string) string {
	return fmt.Sprintf("%d:%d:%d:%s:%d:%016x:%d:%d:%t:%t:%t:%t",
		ctx.SS, ctx.Regime, ctx.VMID, asid, ctx.IPASpace,
		vm.AlignDown(ctx.IA, 12),
		accdesc.EL, accdesc.AccType,
		accdesc.Read, accdesc.Write, accdesc.PAN, accdesc.Unpriv)
}

func asidKey(ctx vm.TLBContext) string {
	return fmt.Sprintf("%d", ctx.ASID)
}

// Lookup returns the cached translation of the page of va for the access.
func (t *TLB) Lookup(
	ctx vm.TLBContext,
	accdesc vm.AccessDescriptor,
	va uint64,
) (vm.TLBRecord, bool) {
	t.Lock()
	defer t.Unlock()

	if t.state == tlbStateDisable {
		return vm.TLBRecord{}, false
	}

	set := t.sets[t.setID(va)]

	keys := []string{key(ctx, accdesc, globalASID)}
	if ctx.UseASID() {
		keys = append(keys, key(ctx, accdesc, asidKey(ctx)))
	}

	for _, k := range keys {
		wayID, entry, found := set.Lookup(k)
		if found {
			set.Visit(wayID)
			t.stats.Hits++

			return entry.Record, true
		}
	}

	t.stats.Misses++

	return vm.TLBRecord{}, false
}

// Insert caches the translation of the page of va. Entries whose context is
// not global are tagged with the ASID.
func (t *TLB) Insert(
	ctx vm.TLBContext,
	accdesc vm.AccessDescriptor,
	va uint64,
	record vm.TLBRecord,
) {
	t.Lock()
	defer t.Unlock()

	if t.state == tlbStateDisable {
		return
	}

	asid := globalASID
	if ctx.NG && ctx.UseASID() {
		asid = asidKey(ctx)
	}

	entry := internal.Entry{
		Key:    key(ctx, accdesc, asid),
		Valid:  true,
		Record: record,
	}
	entry.Record.Context = ctx

	set := t.sets[t.setID(va)]

	wayID, _, found := set.Lookup(entry.Key)
	if !found {
		var victim internal.Entry

		wayID, victim, found = set.Evict()
		if !found {
			return
		}

		if victim.Valid {
			t.stats.Evictions++
		}
	}

	set.Update(wayID, entry)
	set.Visit(wayID)
}

func (t *TLB) invalidate(match func(vm.TLBContext, vm.TLBRecord) bool) {
	t.Lock()
	defer t.Unlock()

	for _, set := range t.sets {
		n := set.Invalidate(func(e internal.Entry) bool {
			return match(e.Record.Context, e.Record)
		})
		t.stats.Invalidations += uint64(n)
	}
}

// InvalidateAll drops every entry.
func (t *TLB) InvalidateAll() {
	t.invalidate(func(vm.TLBContext, vm.TLBRecord) bool { return true })
}

// InvalidateASID drops the non-global entries of a regime tagged with asid.
func (t *TLB) InvalidateASID(regime vm.Regime, asid uint16) {
	t.invalidate(func(ctx vm.TLBContext, _ vm.TLBRecord) bool {
		return ctx.Regime == regime && ctx.NG && ctx.ASID == asid
	})
}

// InvalidateVA drops the entries of a regime whose translation block
// contains va, for any ASID.
func (t *TLB) InvalidateVA(regime vm.Regime, va uint64) {
	t.invalidate(func(ctx vm.TLBContext, rec vm.TLBRecord) bool {
		size := max(uint64(rec.BlockSize), 4096)
		return ctx.Regime == regime && ctx.IA/size == va/size
	})
}

// InvalidateVMID drops the EL1&0 entries tagged with vmid.
func (t *TLB) InvalidateVMID(vmid uint16) {
	t.invalidate(func(ctx vm.TLBContext, _ vm.TLBRecord) bool {
		return ctx.Regime == vm.RegimeEL10 && ctx.VMID == vmid
	})
}

// Enable lets the TLB serve lookups again.
func (t *TLB) Enable() {
	t.Lock()
	defer t.Unlock()

	t.state = tlbStateEnable
}

// Disable makes every lookup miss and drops every insertion until the TLB
// is enabled again. Cached entries are kept.
func (t *TLB) Disable() {
	t.Lock()
	defer t.Unlock()

	t.state = tlbStateDisable
}

// NumEntries returns the number of valid entries.
func (t *TLB) NumEntries() int {
	t.Lock()
	defer t.Unlock()

	n := 0
	for _, set := range t.sets {
		n += set.NumValid()
	}

	return n
}

// Stats returns the counters of the TLB.
func (t *TLB) Stats() Stats {
	t.Lock()
	defer t.Unlock()

	return t.stats
}
