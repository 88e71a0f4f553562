package mpam_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsa/mem/vm/mpam"

	"github.com/sarchlab/vmsa/mem/vm"
)

type fakeState struct {
	pe vm.PEState
}

func (s *fakeState) PEState() vm.PEState {
	return s.pe
}

func info(space vm.PARTIDSpace, partid uint16, pmg uint8) vm.MPAMInfo {
	return vm.MPAMInfo{MPAMSP: space, PARTID: partid, PMG: pmg}
}

var _ = Describe("Generator", func() {
	var (
		regs     *mpam.Registers
		state    *fakeState
		features vm.FeatureSet
		cfg      mpam.Config
	)

	gen := func() *mpam.Generator {
		return mpam.NewGenerator(regs, state, features, cfg)
	}

	BeforeEach(func() {
		regs = &mpam.Registers{
			IDR:     mpam.IDR{PARTIDMax: 63, PMGMax: 3},
			MPAMEN3: true,
			EL3:     mpam.Labels{PARTIDI: 40, PARTIDD: 41, PMGI: 1, PMGD: 1},
			EL2:     mpam.Labels{PARTIDI: 30, PARTIDD: 31, PMGI: 0, PMGD: 1},
			EL1:     mpam.Labels{PARTIDI: 10, PARTIDD: 11, PMGI: 1, PMGD: 2},
			EL0:     mpam.Labels{PARTIDI: 20, PARTIDD: 21, PMGI: 2, PMGD: 3},
			SM:      mpam.Labels{PARTIDD: 50, PMGD: 3},
		}
		state = &fakeState{}
		features = vm.NewFeatureSet(vm.FeatMPAM)
		cfg = mpam.DefaultConfig()
	})

	It("should use the default labels when MPAM is disabled", func() {
		regs.MPAMEN3 = false

		Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
			To(Equal(info(vm.PASNonSecure, 0, 0)))
	})

	It("should read the enable bit of the highest EL", func() {
		regs.MPAMEN3 = false
		regs.MPAMEN2 = true
		cfg.HighestEL = vm.EL2

		Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
			To(Equal(info(vm.PASNonSecure, 11, 2)))
	})

	It("should select data and instruction labels", func() {
		g := gen()

		Expect(g.GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
			To(Equal(info(vm.PASNonSecure, 11, 2)))
		Expect(g.GenMPAMAtEL(vm.AccessTypeIFETCH, vm.EL1)).
			To(Equal(info(vm.PASNonSecure, 10, 1)))
		Expect(g.GenMPAMAtEL(vm.AccessTypeIC, vm.EL0)).
			To(Equal(info(vm.PASNonSecure, 20, 2)))
		Expect(g.GenMPAMAtEL(vm.AccessTypeGPR, vm.EL0)).
			To(Equal(info(vm.PASNonSecure, 21, 3)))
	})

	It("should use the streaming mode labels for SME accesses", func() {
		Expect(gen().GenMPAMAtEL(vm.AccessTypeSME, vm.EL0)).
			To(Equal(info(vm.PASNonSecure, 50, 3)))

		cfg.SMLabels = false
		Expect(gen().GenMPAMAtEL(vm.AccessTypeSME, vm.EL0)).
			To(Equal(info(vm.PASNonSecure, 21, 3)))
	})

	It("should label NV2 accesses as EL2 accesses", func() {
		Expect(gen().GenMPAMAtEL(vm.AccessTypeNV2, vm.EL1)).
			To(Equal(info(vm.PASNonSecure, 0, 0)))

		state.pe.EL2Enabled = true
		Expect(gen().GenMPAMAtEL(vm.AccessTypeNV2, vm.EL1)).
			To(Equal(info(vm.PASNonSecure, 31, 1)))
	})

	Context("when labels are out of range", func() {
		It("should default the PARTID and the PMG", func() {
			regs.EL1.PARTIDD = 100

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASNonSecure, 0, 0)))
		})

		It("should keep the PMG if configured to", func() {
			regs.EL1.PARTIDD = 100
			cfg.DefaultPMGOnPARTIDError = false

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASNonSecure, 0, 2)))
		})

		It("should default an oversized PMG alone", func() {
			regs.EL1.PMGD = 7

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASNonSecure, 11, 0)))
		})
	})

	It("should lock guest applications to the EL1 labels", func() {
		state.pe.EL2Enabled = true
		regs.GSTAPPPLK = true

		Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL0)).
			To(Equal(info(vm.PASNonSecure, 11, 2)))

		state.pe.TGE = true
		Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL0)).
			To(Equal(info(vm.PASNonSecure, 21, 3)))
	})

	Context("with virtual PARTIDs", func() {
		BeforeEach(func() {
			regs.IDR.HasHCR = true
			regs.EL1VPMEN = true
			regs.EL1.PARTIDD = 5
			regs.VPM[0] = 0x0007_0009
			state.pe.EL2Enabled = true
		})

		It("should map through the valid entry", func() {
			regs.VPMV = 0b10

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASNonSecure, 7, 2)))
		})

		It("should fall back to entry zero", func() {
			regs.VPMV = 0b1

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASNonSecure, 9, 2)))
		})

		It("should default when no entry is valid", func() {
			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASNonSecure, 0, 0)))
		})

		It("should default a mapped PARTID that is out of range", func() {
			regs.VPMV = 0b10
			regs.VPM[0] = 0x0100_0009

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASNonSecure, 0, 0)))
		})

		It("should not map when EL2 is disabled", func() {
			regs.VPMV = 0b10
			state.pe.EL2Enabled = false

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASNonSecure, 5, 2)))
		})
	})

	Context("in Secure state", func() {
		BeforeEach(func() {
			state.pe.SS = vm.SSSecure
		})

		It("should use the Secure PARTID space", func() {
			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASSecure, 11, 2)))
		})

		It("should default Secure labels if SDEFLT is set", func() {
			features = vm.NewFeatureSet(vm.FeatMPAMv1p1)
			regs.IDR.SDEFLT = true
			regs.SDEFLT = true

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASSecure, 0, 0)))
		})

		It("should force the Non-secure space if FORCE_NS is set", func() {
			features = vm.NewFeatureSet(vm.FeatMPAMv0p1)
			regs.IDR.ForceNS = true
			regs.ForceNS = true

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASNonSecure, 11, 2)))
		})

		It("should use the alternate space when EL3 forces it", func() {
			features = vm.NewFeatureSet(vm.FeatRME)
			regs.IDR.HasAltSP = true
			regs.AltSPHFC3 = true

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASNonSecure, 11, 2)))

			regs.AltSPHEN = true
			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASSecure, 11, 2)))
		})
	})

	Context("at EL3", func() {
		It("should use the Secure space without RME", func() {
			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL3)).
				To(Equal(info(vm.PASSecure, 41, 1)))
		})

		It("should use the Root space with RME", func() {
			features = vm.NewFeatureSet(vm.FeatRME)

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL3)).
				To(Equal(info(vm.PASRoot, 41, 1)))
		})

		It("should honour the Root alternate space", func() {
			features = vm.NewFeatureSet(vm.FeatRME)
			regs.IDR.HasAltSP = true
			regs.AltSPEL3 = true

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL3)).
				To(Equal(info(vm.PASSecure, 41, 1)))

			regs.RTAltSPNS = true
			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL3)).
				To(Equal(info(vm.PASNonSecure, 41, 1)))
		})
	})

	Context("in Realm state", func() {
		BeforeEach(func() {
			features = vm.NewFeatureSet(vm.FeatRME)
			regs.IDR.HasAltSP = true
			regs.AltSPHEN = true
			state.pe.SS = vm.SSRealm
			state.pe.EL2Enabled = true
		})

		It("should stay in the Realm space by default", func() {
			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASRealm, 11, 2)))
		})

		It("should let EL2 move EL1 to the Non-secure space", func() {
			regs.AltSPHFC2 = true

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL1)).
				To(Equal(info(vm.PASNonSecure, 11, 2)))
			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL2)).
				To(Equal(info(vm.PASRealm, 31, 1)))
		})

		It("should let EL2 move itself to the Non-secure space", func() {
			regs.AltSPEL2 = true

			Expect(gen().GenMPAMAtEL(vm.AccessTypeGPR, vm.EL2)).
				To(Equal(info(vm.PASNonSecure, 31, 1)))
		})
	})
})
