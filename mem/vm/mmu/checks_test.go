package mmu

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsa/mem/vm"
)

var _ = Describe("Translator checks", func() {
	const (
		s1Root = uint64(0x10000)
		oa     = uint64(0x8000_0000)
	)

	var (
		mem     *fakeMemory
		regs    *fakeRegisters
		s1      *tableBuilder
		builder Builder
	)

	BeforeEach(func() {
		mem = newFakeMemory()
		regs = newFakeRegisters()
		regs.sctlr[vm.RegimeEL10] = enabledSCTLR
		regs.s1[vm.RegimeEL10] = s1Params(s1Root)
		s1 = newTableBuilder(mem, s1Root, 0x1000, 48, 0)

		builder = MakeBuilder().
			WithRegisters(regs).
			WithMemory(mem)
	})

	setParams := func(f func(p *vm.S1TTWParams)) {
		p := regs.s1[vm.RegimeEL10]
		f(&p)
		regs.s1[vm.RegimeEL10] = p
	}

	It("should translate a readable page with the access flag set", func() {
		va := uint64(0x0000_8000_0000_1000)
		s1.mapPage(va, s1Page(oa, 0))
		t := builder.Build("MMU")

		result := t.FullTranslate(va, readAt(vm.EL1), true)

		Expect(result.Fault.StatusCode).To(Equal(vm.FaultNone))
		pa, ok := result.PA()
		Expect(ok).To(BeTrue())
		Expect(pa).To(Equal(vm.FullAddress{PASpace: vm.PASNonSecure, Address: oa}))
		Expect(result.MECID).To(Equal(vm.DefaultMECID))
		Expect(regs.s2Reads).To(BeZero())
	})

	Context("when TxSZ is out of range", func() {
		const va = uint64(0x0000_0040_1234_5678)

		BeforeEach(func() {
			s1.mapPage(vm.AlignDown(va, 12), s1Page(oa, 0))
		})

		It("should fault below the minimum when configured to", func() {
			setParams(func(p *vm.S1TTWParams) { p.TxSZ = 10 })

			cfg := DefaultConfig()
			cfg.FaultOnTxSZBelowMin = true
			t := builder.WithConfig(cfg).Build("MMU")

			result := t.FullTranslate(va, readAt(vm.EL1), true)

			Expect(result.Fault.StatusCode).To(Equal(vm.FaultTranslation))
			Expect(result.Fault.Level).To(Equal(0))
			_, ok := result.PA()
			Expect(ok).To(BeFalse())
			Expect(mem.reads).To(BeZero())
		})

		It("should fault below the minimum with FEAT_LVA", func() {
			setParams(func(p *vm.S1TTWParams) { p.TxSZ = 10 })
			t := builder.WithFeatures(vm.NewFeatureSet(vm.FeatLVA)).Build("MMU")

			result := t.FullTranslate(va, readAt(vm.EL1), true)

			Expect(result.Fault.StatusCode).To(Equal(vm.FaultTranslation))
			Expect(result.Fault.Level).To(Equal(0))
		})

		It("should clamp to the minimum otherwise", func() {
			setParams(func(p *vm.S1TTWParams) { p.TxSZ = 10 })
			t := builder.Build("MMU")

			result := t.FullTranslate(va, readAt(vm.EL1), true)

			pa, ok := result.PA()
			Expect(ok).To(BeTrue())
			Expect(pa.Address).To(Equal(oa | 0x678))
		})

		It("should fault above the maximum when configured to", func() {
			setParams(func(p *vm.S1TTWParams) { p.TxSZ = 45 })

			cfg := DefaultConfig()
			cfg.FaultOnTxSZAboveMax = true
			t := builder.WithConfig(cfg).Build("MMU")

			result := t.FullTranslate(0x123_4678, readAt(vm.EL1), true)

			Expect(result.Fault.StatusCode).To(Equal(vm.FaultTranslation))
			Expect(result.Fault.Level).To(Equal(0))
		})

		It("should clamp to the maximum otherwise", func() {
			const smallVA = uint64(0x123_4678)

			mem = newFakeMemory()
			small := newTableBuilder(mem, s1Root, 0x1000, 25, 2)
			small.mapPage(vm.AlignDown(smallVA, 12), s1Page(oa, 0))
			setParams(func(p *vm.S1TTWParams) { p.TxSZ = 45 })
			t := builder.WithMemory(mem).Build("MMU")

			result := t.FullTranslate(smallVA, readAt(vm.EL1), true)

			pa, ok := result.PA()
			Expect(ok).To(BeTrue())
			Expect(pa.Address).To(Equal(oa | 0x678))
		})
	})

	Context("with EL0 entry controls", func() {
		const va = uint64(0x0000_0040_1234_5000)

		BeforeEach(func() {
			s1.mapPage(va, s1Page(oa, descAPRWAll))
		})

		It("should fault EL0 accesses when E0PD is set", func() {
			setParams(func(p *vm.S1TTWParams) { p.E0PD = true })
			t := builder.Build("MMU")

			result := t.FullTranslate(va, readAt(vm.EL0), true)

			Expect(result.Fault.StatusCode).To(Equal(vm.FaultTranslation))
			Expect(result.Fault.Level).To(Equal(0))
			Expect(mem.reads).To(BeZero())
		})

		It("should not apply E0PD to EL1", func() {
			setParams(func(p *vm.S1TTWParams) { p.E0PD = true })
			t := builder.Build("MMU")

			result := t.FullTranslate(va, readAt(vm.EL1), true)

			Expect(result.IsFault()).To(BeFalse())
		})

		It("should fault SVE first-fault accesses when NFD is set", func() {
			setParams(func(p *vm.S1TTWParams) { p.NFD = true })
			t := builder.WithFeatures(vm.NewFeatureSet(vm.FeatSVE)).Build("MMU")

			accdesc := vm.MakeAccessDescriptorBuilder(vm.AccessTypeSVE).
				WithEL(vm.EL0).
				WithRead().
				WithFirstFault(false).
				Build()

			result := t.FullTranslate(va, accdesc, true)

			Expect(result.Fault.StatusCode).To(Equal(vm.FaultTranslation))
			Expect(result.Fault.Level).To(Equal(0))
		})

		It("should fault transactional accesses when NFD is set", func() {
			setParams(func(p *vm.S1TTWParams) { p.NFD = true })
			t := builder.WithFeatures(vm.NewFeatureSet(vm.FeatTME)).Build("MMU")

			accdesc := vm.MakeAccessDescriptorBuilder(vm.AccessTypeGPR).
				WithEL(vm.EL0).
				WithRead().
				WithTransactional().
				Build()

			result := t.FullTranslate(va, accdesc, true)

			Expect(result.Fault.StatusCode).To(Equal(vm.FaultTranslation))
		})
	})

	Context("with PAN", func() {
		const va = uint64(0x0000_0040_1234_5000)

		var panRead vm.AccessDescriptor

		BeforeEach(func() {
			s1.mapPage(va, s1Page(oa, descAPRWAll))
			panRead = vm.MakeAccessDescriptorBuilder(vm.AccessTypeGPR).
				WithEL(vm.EL1).
				WithRead().
				WithPAN(true).
				Build()
		})

		It("should keep EL1 out of user pages", func() {
			t := builder.WithFeatures(vm.NewFeatureSet(vm.FeatPAN)).Build("MMU")

			result := t.FullTranslate(va, panRead, true)

			Expect(result.Fault.StatusCode).To(Equal(vm.FaultPermission))
			Expect(result.Fault.Level).To(Equal(3))
		})

		It("should ignore PAN without FEAT_PAN", func() {
			t := builder.Build("MMU")

			result := t.FullTranslate(va, panRead, true)

			Expect(result.IsFault()).To(BeFalse())
		})
	})

	Context("with stage 1 permission indirection", func() {
		const va = uint64(0x0000_0040_1234_5000)

		It("should take permissions from PIR", func() {
			s1.mapPage(va, s1Page(oa, 0))
			setParams(func(p *vm.S1TTWParams) {
				p.PIE = true
				p.PIR = 0x1
			})
			t := builder.Build("MMU")

			Expect(t.FullTranslate(va, readAt(vm.EL1), true).IsFault()).
				To(BeFalse())

			result := t.FullTranslate(va, writeAt(vm.EL1), true)
			Expect(result.Fault.StatusCode).To(Equal(vm.FaultPermission))
			Expect(result.Fault.Write).To(BeTrue())
		})

		It("should fault writes to not-dirty pages", func() {
			s1.mapPage(va, s1Page(oa, descAPROEL1))
			setParams(func(p *vm.S1TTWParams) {
				p.PIE = true
				p.PIR = 0x5
			})
			t := builder.Build("MMU")

			Expect(t.FullTranslate(va, readAt(vm.EL1), true).IsFault()).
				To(BeFalse())

			result := t.FullTranslate(va, writeAt(vm.EL1), true)
			Expect(result.Fault.StatusCode).To(Equal(vm.FaultPermission))
			Expect(result.Fault.DirtyBit).To(BeTrue())
		})
	})

	Context("when forcing attributes", func() {
		const va = uint64(0x0000_0040_1234_5000)

		It("should fetch instructions from device pages as normal memory", func() {
			s1.mapPage(va, pageDesc(oa, descAF|descAttrDevice))
			t := builder.Build("MMU")

			result := t.FullTranslate(va, fetchAt(vm.EL1), true)

			Expect(result.IsFault()).To(BeFalse())
			Expect(result.MemAttrs.MemType).To(Equal(vm.MemTypeNormal))
			Expect(result.MemAttrs.Inner.Attrs).To(Equal(vm.MemAttrNC))
			Expect(result.MemAttrs.Outer.Attrs).To(Equal(vm.MemAttrNC))
			Expect(result.MemAttrs.XS).To(BeTrue())
			Expect(result.MemAttrs.Shareability).To(Equal(vm.ShareabilityOSH))
		})

		It("should make data non-cacheable when the data cache is off", func() {
			s1.mapPage(va, s1Page(oa, 0))
			regs.sctlr[vm.RegimeEL10] = vm.SystemControl{M: true, I: true}
			t := builder.Build("MMU")

			result := t.FullTranslate(va, readAt(vm.EL1), true)

			Expect(result.IsFault()).To(BeFalse())
			Expect(result.MemAttrs.IsNonCacheable()).To(BeTrue())
			Expect(result.MemAttrs.XS).To(BeFalse())
			Expect(result.MemAttrs.Shareability).To(Equal(vm.ShareabilityOSH))
		})

		It("should refuse LS64 accesses to cacheable memory", func() {
			s1.mapPage(va, s1Page(oa, 0))
			t := builder.Build("MMU")

			accdesc := vm.MakeAccessDescriptorBuilder(vm.AccessTypeGPR).
				WithEL(vm.EL1).
				WithRead().
				WithLS64().
				Build()

			result := t.FullTranslate(va, accdesc, true)

			Expect(result.Fault.StatusCode).To(Equal(vm.FaultExclusive))
			_, ok := result.PA()
			Expect(ok).To(BeFalse())
		})

		It("should allow LS64 accesses to non-cacheable memory", func() {
			s1.mapPage(va, pageDesc(oa, descAF|descISH|descAttrNC))
			t := builder.Build("MMU")

			accdesc := vm.MakeAccessDescriptorBuilder(vm.AccessTypeGPR).
				WithEL(vm.EL1).
				WithRead().
				WithLS64().
				Build()

			result := t.FullTranslate(va, accdesc, true)

			Expect(result.IsFault()).To(BeFalse())
			Expect(result.MemAttrs.Shareability).To(Equal(vm.ShareabilityOSH))
		})
	})
})
