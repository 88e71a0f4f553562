package hdbss_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsa/mem/vm/hdbss"

	"github.com/sarchlab/vmsa/mem/vm"
	"github.com/sarchlab/vmsa/memory"
)

var _ = Describe("Buffer", func() {
	var (
		mem    *memory.Memory
		buf    *hdbss.Buffer
		acc    vm.AccessDescriptor
		params vm.S2TTWParams
	)

	ipa := func(addr uint64) vm.FullAddress {
		return vm.FullAddress{PASpace: vm.PASNonSecure, Address: addr}
	}

	entryAt := func(index uint64) uint64 {
		v, err := mem.Read64(vm.FullAddress{
			PASpace: vm.PASNonSecure,
			Address: 0x10000 + index*hdbss.EntrySize,
		})
		Expect(err).NotTo(HaveOccurred())

		return v
	}

	BeforeEach(func() {
		mem = memory.New(1 << 20)
		buf = hdbss.NewBuffer(mem, hdbss.Config{
			Base:     0x10000,
			PASpace:  vm.PASNonSecure,
			SizeCode: 1,
		})
		acc = vm.MakeAccessDescriptorBuilder(vm.AccessTypeGPR).
			WithEL(vm.EL1).
			WithWrite().
			Build()
		params = vm.S2TTWParams{HDBSS: true}
	})

	It("should encode entries", func() {
		Expect(hdbss.Entry(0x12345678, 3)).To(Equal(uint64(0x12345000 | 3<<1 | 1)))
		Expect(hdbss.Entry(0x200000, 2)).To(Equal(uint64(0x200000 | 2<<1 | 1)))
	})

	It("should append entries in order", func() {
		status, err := buf.Append(ipa(0x5000), acc, params, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.IsFault()).To(BeFalse())

		_, err = buf.Append(ipa(0x9123), acc, params, 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(buf.Index()).To(Equal(uint64(2)))
		Expect(entryAt(0)).To(Equal(hdbss.Entry(0x5000, 3)))
		Expect(entryAt(1)).To(Equal(hdbss.Entry(0x9000, 2)))
	})

	It("should not record when tracking is disabled", func() {
		_, err := buf.Append(ipa(0x5000), acc, vm.S2TTWParams{}, 3)

		Expect(err).NotTo(HaveOccurred())
		Expect(buf.Index()).To(BeZero())
	})

	It("should report a full buffer until reset", func() {
		for i := range 512 {
			_, err := buf.Append(ipa(uint64(i)<<12), acc, params, 3)
			Expect(err).NotTo(HaveOccurred())
		}

		_, err := buf.Append(ipa(0x1000), acc, params, 3)
		Expect(err).To(MatchError(hdbss.ErrFull))
		Expect(buf.Err()).To(MatchError(hdbss.ErrFull))

		buf.Reset()
		_, err = buf.Append(ipa(0x1000), acc, params, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.Index()).To(Equal(uint64(1)))
	})

	It("should reject a misaligned base", func() {
		buf = hdbss.NewBuffer(mem, hdbss.Config{Base: 0x10800, SizeCode: 1})

		_, err := buf.Append(ipa(0x5000), acc, params, 3)
		Expect(err).To(MatchError(hdbss.ErrInvalidBase))
	})

	It("should reject an unsupported size", func() {
		buf = hdbss.NewBuffer(mem, hdbss.Config{Base: 0x10000, SizeCode: 0})

		_, err := buf.Append(ipa(0x5000), acc, params, 3)
		Expect(err).To(MatchError(hdbss.ErrInvalidBase))
	})

	It("should return the status of an aborted write", func() {
		mem.InjectFault(vm.PASNonSecure, 0x10000, 8, vm.FaultSyncExternal)

		status, err := buf.Append(ipa(0x5000), acc, params, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.StatusCode).To(Equal(vm.FaultSyncExternal))
		Expect(status.Store).To(BeTrue())
		Expect(buf.Index()).To(BeZero())
	})
})
