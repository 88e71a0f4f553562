// Package mmu implements the AArch64 VMSA translation pipeline: stage 1 and
// stage 2 table walks, permission checks, hardware access flag and dirty state
// updates and the combination of memory attributes.
package mmu

import (
	"github.com/sarchlab/vmsa/mem/vm"
	"github.com/sarchlab/vmsa/sim/hooking"
	"github.com/sarchlab/vmsa/sim/id"
)

// The step names that a translation task reports.
const (
	StepS1Lookup = "s1-lookup"
	StepS2Lookup = "s2-lookup"
	StepCAS      = "cas"
	StepTLBHit   = "tlb-hit"
	StepHDBSS    = "hdbss"
)

// TaskKindTranslation is the kind of the tasks a Translator reports.
const TaskKindTranslation = "translation"

// TranslationDetail is attached to the start and end hooks of a translation
// task.
type TranslationDetail struct {
	VA      uint64
	AccDesc vm.AccessDescriptor
	Regime  vm.Regime
	Result  vm.AddressDescriptor
}

// Translator translates virtual addresses through the stage 1 and stage 2
// tables of the PE it is attached to.
type Translator struct {
	hooking.HookableBase

	name     string
	features vm.FeatureSet
	cfg      Config

	regs         RegisterProvider
	mem          PhysicalMemory
	tagger       EncryptionTagger
	dirtyTracker DirtyTracker
	abortHandler AbortHandler
	guardedSink  GuardedPageSink
	cache        TranslationCache
	idGen        id.IDGenerator
}

// Name returns the name of the translator.
func (t *Translator) Name() string {
	return t.name
}

// Features returns the features the translator implements.
func (t *Translator) Features() vm.FeatureSet {
	return t.features
}

// Config returns the implementation choices of the translator.
func (t *Translator) Config() Config {
	return t.cfg
}

// FullTranslate translates va for the access. It selects the translation
// regime from the exception level of the access, runs stage 1 and, when the
// regime is EL1&0 and EL2 is enabled, stage 2. A fault at either stage is
// reported in the returned descriptor.
func (t *Translator) FullTranslate(
	va uint64,
	accdesc vm.AccessDescriptor,
	aligned bool,
) vm.AddressDescriptor {
	pe := t.regs.PEState()
	regime := vm.TranslationRegime(accdesc.EL, pe)

	taskID := t.startTask(va, accdesc, regime)
	result := t.fullTranslate(taskID, pe, regime, va, accdesc, aligned)
	t.endTask(taskID, va, accdesc, regime, result)

	return result
}

func (t *Translator) fullTranslate(
	taskID string,
	pe vm.PEState,
	regime vm.Regime,
	va uint64,
	accdesc vm.AccessDescriptor,
	aligned bool,
) vm.AddressDescriptor {
	ctx, useCache := t.tlbContext(pe, regime, va, accdesc, aligned)
	if useCache {
		if rec, hit := t.cache.Lookup(ctx, accdesc, va); hit {
			return t.tlbHit(taskID, rec, va, accdesc)
		}
	}

	fault := vm.NoFaultForAccess(accdesc)

	s1 := t.s1Translate(taskID, fault, regime, va, aligned, accdesc)
	if s1.fault.IsFault() {
		t.tagFault(taskID, s1.fault)
		return vm.CreateFaultyAddressDescriptor(va, s1.fault)
	}

	result := s1.ipa

	if regime == vm.RegimeEL10 && pe.EL2Enabled {
		s1aarch64 := true

		s2fault, pa := t.s2Translate(
			taskID, s1.fault, s1.ipa, s1aarch64, aligned, accdesc)
		if s2fault.IsFault() {
			t.tagFault(taskID, s2fault)
			return vm.CreateFaultyAddressDescriptor(va, s2fault)
		}

		result = pa
	}

	if useCache && s1.walked {
		ctx.NG = s1.walkstate.NG
		ctx.TG = s1.tgx
		ctx.Level = s1.walkstate.Level

		t.cache.Insert(ctx, accdesc, va, vm.TLBRecord{
			Context:     ctx,
			BlockSize:   1 << vm.TranslationSize(s1.tgx, s1.walkstate.Level),
			GuardedPage: s1.walkstate.GuardedPage,
			Result:      result,
		})
	}

	return result
}

// tlbContext returns the context a translation is cached under. The second
// return value is false if the translation must not use the cache.
func (t *Translator) tlbContext(
	pe vm.PEState,
	regime vm.Regime,
	va uint64,
	accdesc vm.AccessDescriptor,
	aligned bool,
) (vm.TLBContext, bool) {
	if t.cache == nil || !aligned || !cacheableAccess(accdesc) {
		return vm.TLBContext{}, false
	}

	ctx := vm.TLBContext{
		SS:       accdesc.SS,
		Regime:   regime,
		IPASpace: accdesc.SS.PASpace(),
		IA:       vm.AlignDown(va, 12),
	}

	if ctx.UseASID() {
		ctx.ASID = t.regs.S1TTWParams(regime, accdesc.SS, va).ASID
	}

	if ctx.UseVMID(pe.EL2Enabled) {
		ctx.VMID = t.regs.S2TTWParams(accdesc.SS, ctx.IPASpace).VMID
	}

	return ctx, true
}

// cacheableAccess reports whether a cached translation can serve the access.
// A hit skips the walk and its checks, so accesses that can fault for reasons
// outside the cache key always translate.
func cacheableAccess(accdesc vm.AccessDescriptor) bool {
	switch accdesc.AccType {
	case vm.AccessTypeDC, vm.AccessTypeIC:
		return false
	}

	return !(accdesc.LS64 || accdesc.TagAccess || accdesc.Transactional ||
		accdesc.NonFault || accdesc.FirstFault || accdesc.Contiguous ||
		accdesc.A32LSMD)
}

func (t *Translator) tlbHit(
	taskID string,
	rec vm.TLBRecord,
	va uint64,
	accdesc vm.AccessDescriptor,
) vm.AddressDescriptor {
	t.step(taskID, StepTLBHit, rec.Result.PAddress.String())

	if accdesc.AccType == vm.AccessTypeIFETCH {
		t.setInGuardedPage(rec.GuardedPage)
	}

	result := rec.Result
	result.VAddress = va
	result.PAddress.Address = vm.AlignDown(result.PAddress.Address, 12) |
		vm.LowBits(va, 12)

	return result
}

// S1Translate runs stage 1 for va and returns the intermediate physical
// address, or a fault.
func (t *Translator) S1Translate(
	va uint64,
	accdesc vm.AccessDescriptor,
	aligned bool,
) (vm.FaultRecord, vm.AddressDescriptor) {
	regime := vm.TranslationRegime(accdesc.EL, t.regs.PEState())

	taskID := t.startTask(va, accdesc, regime)

	s1 := t.s1Translate(
		taskID, vm.NoFaultForAccess(accdesc), regime, va, aligned, accdesc)

	result := s1.ipa
	if s1.fault.IsFault() {
		t.tagFault(taskID, s1.fault)
		result = vm.CreateFaultyAddressDescriptor(va, s1.fault)
	}

	t.endTask(taskID, va, accdesc, regime, result)

	return s1.fault, result
}

// S2Translate runs stage 2 for the intermediate physical address held by ipa.
func (t *Translator) S2Translate(
	fault vm.FaultRecord,
	ipa vm.AddressDescriptor,
	aligned bool,
	accdesc vm.AccessDescriptor,
) (vm.FaultRecord, vm.AddressDescriptor) {
	taskID := t.startTask(ipa.VAddress, accdesc, vm.RegimeEL10)

	s1aarch64 := true
	fault, pa := t.s2Translate(taskID, fault, ipa, s1aarch64, aligned, accdesc)

	result := pa
	if fault.IsFault() {
		t.tagFault(taskID, fault)
		result = vm.CreateFaultyAddressDescriptor(ipa.VAddress, fault)
	}

	t.endTask(taskID, ipa.VAddress, accdesc, vm.RegimeEL10, result)

	return fault, result
}

func (t *Translator) el2Enabled() bool {
	return t.regs.PEState().EL2Enabled
}

func (t *Translator) setInGuardedPage(guarded bool) {
	if t.guardedSink != nil {
		t.guardedSink.SetInGuardedPage(guarded)
	}
}

func (t *Translator) startTask(
	va uint64,
	accdesc vm.AccessDescriptor,
	regime vm.Regime,
) string {
	if t.NumHooks() == 0 {
		return ""
	}

	taskID := t.idGen.Generate()

	t.InvokeHook(hooking.HookCtx{
		Domain: t,
		Pos:    hooking.HookPosTaskStart,
		Item: hooking.TaskStart{
			ID:    taskID,
			Kind:  TaskKindTranslation,
			What:  accdesc.AccType.String(),
			Where: t.name,
		},
		Detail: TranslationDetail{VA: va, AccDesc: accdesc, Regime: regime},
	})

	return taskID
}

func (t *Translator) endTask(
	taskID string,
	va uint64,
	accdesc vm.AccessDescriptor,
	regime vm.Regime,
	result vm.AddressDescriptor,
) {
	if t.NumHooks() == 0 {
		return
	}

	t.InvokeHook(hooking.HookCtx{
		Domain: t,
		Pos:    hooking.HookPosTaskEnd,
		Item:   hooking.TaskEnd{ID: taskID},
		Detail: TranslationDetail{
			VA:      va,
			AccDesc: accdesc,
			Regime:  regime,
			Result:  result,
		},
	})
}

func (t *Translator) step(taskID, what, detail string) {
	if t.NumHooks() == 0 {
		return
	}

	t.InvokeHook(hooking.HookCtx{
		Domain: t,
		Pos:    hooking.HookPosTaskStep,
		Item: hooking.TaskStep{
			TaskID: taskID,
			StepID: t.idGen.Generate(),
			Kind:   TaskKindTranslation,
			What:   what,
			Detail: detail,
		},
	})
}

func (t *Translator) tagFault(taskID string, fault vm.FaultRecord) {
	if t.NumHooks() == 0 {
		return
	}

	t.InvokeHook(hooking.HookCtx{
		Domain: t,
		Pos:    hooking.HookPosTaskTag,
		Item: hooking.TaskTag{
			TaskID: taskID,
			What:   fault.StatusCode.String(),
			Detail: fault.String(),
		},
	})
}
