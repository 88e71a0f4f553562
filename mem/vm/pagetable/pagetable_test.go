package pagetable

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsa/mem/vm"
	"github.com/sarchlab/vmsa/memory"
)

var _ = Describe("PageTable", func() {
	var (
		mem *memory.Memory
		pt  *PageTable
	)

	word := func(addr uint64) uint64 {
		v, err := mem.Read64(vm.FullAddress{Address: addr})
		Expect(err).ToNot(HaveOccurred())

		return v
	}

	BeforeEach(func() {
		mem = memory.New(1 << 24)
		pt = New(mem, Config{
			Granule:  vm.TG4KB,
			TxSZ:     25,
			Root:     0x1000,
			PoolBase: 0x2000,
			PoolSize: 0x4000,
		})
	})

	It("should start at the level the input size needs", func() {
		Expect(pt.StartLevel()).To(Equal(1))
		Expect(pt.Root()).To(Equal(uint64(0x1000)))

		pt64 := New(mem, Config{Granule: vm.TG64KB, TxSZ: 16})
		Expect(pt64.StartLevel()).To(Equal(1))

		pt16 := New(mem, Config{Granule: vm.TG16KB, TxSZ: 16})
		Expect(pt16.StartLevel()).To(Equal(0))
	})

	It("should insert a page and create the tables on its path", func() {
		err := pt.Insert(Page{VA: 0x201000, PA: 0x80000, Attrs: 0x700})
		Expect(err).ToNot(HaveOccurred())

		Expect(word(0x1000)).To(Equal(uint64(0x2003)))
		Expect(word(0x2008)).To(Equal(uint64(0x3003)))
		Expect(word(0x3008)).To(Equal(uint64(0x80703)))

		desc, level, found := pt.Find(0x201abc)
		Expect(found).To(BeTrue())
		Expect(level).To(Equal(3))
		Expect(desc).To(Equal(uint64(0x80703)))
	})

	It("should reuse existing tables", func() {
		Expect(pt.Insert(Page{VA: 0x201000, PA: 0x80000})).To(Succeed())
		Expect(pt.Insert(Page{VA: 0x202000, PA: 0x81000})).To(Succeed())

		Expect(word(0x3010)).To(Equal(uint64(0x81003)))
		Expect(pt.next).To(Equal(uint64(0x4000)))
	})

	It("should map blocks", func() {
		err := pt.Insert(Page{VA: 0x400000, PA: 0x600000, Level: 2, Attrs: 0x400})
		Expect(err).ToNot(HaveOccurred())

		desc, level, found := pt.Find(0x512345)
		Expect(found).To(BeTrue())
		Expect(level).To(Equal(2))
		Expect(desc).To(Equal(uint64(0x600401)))
	})

	It("should reject misaligned mappings", func() {
		err := pt.Insert(Page{VA: 0x401000, PA: 0x600000, Level: 2})
		Expect(err).To(MatchError(ErrMisaligned))
	})

	It("should reject pages under a block", func() {
		Expect(pt.Insert(Page{VA: 0x400000, PA: 0x600000, Level: 2})).
			To(Succeed())

		err := pt.Insert(Page{VA: 0x401000, PA: 0x80000})
		Expect(err).To(MatchError(ErrConflict))
	})

	It("should report when the pool is exhausted", func() {
		small := New(mem, Config{
			Granule:  vm.TG4KB,
			TxSZ:     25,
			Root:     0x1000,
			PoolBase: 0x2000,
			PoolSize: 0x1000,
		})

		err := small.Insert(Page{VA: 0x201000, PA: 0x80000})
		Expect(err).To(MatchError(ErrNoSpace))
	})

	It("should remove a page", func() {
		Expect(pt.Insert(Page{VA: 0x201000, PA: 0x80000})).To(Succeed())

		pt.Remove(0x201000)

		_, _, found := pt.Find(0x201000)
		Expect(found).To(BeFalse())
		Expect(func() { pt.Remove(0x201000) }).To(Panic())
	})

	It("should update the attributes of a page", func() {
		Expect(pt.Insert(Page{VA: 0x201000, PA: 0x80000, Attrs: 0x400})).
			To(Succeed())

		pt.Update(0x201000, 0x4c0)

		desc, _, _ := pt.Find(0x201000)
		Expect(desc).To(Equal(uint64(0x804c3)))
		Expect(func() { pt.Update(0x900000, 0) }).To(Panic())
	})

	It("should write tables in the configured address space", func() {
		secure := New(mem, Config{
			Space:    vm.PASSecure,
			Granule:  vm.TG4KB,
			TxSZ:     25,
			Root:     0x1000,
			PoolBase: 0x2000,
			PoolSize: 0x4000,
		})

		Expect(secure.Insert(Page{VA: 0x201000, PA: 0x80000})).To(Succeed())

		v, err := mem.Read64(vm.FullAddress{PASpace: vm.PASSecure, Address: 0x3008})
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(uint64(0x80003)))

		_, _, found := pt.Find(0x201000)
		Expect(found).To(BeFalse())
	})
})
