package memory

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vmsa/mem/vm"
)

func at(space vm.PASpace, addr uint64) vm.AddressDescriptor {
	return vm.CreateAddressDescriptor(0, vm.FullAddress{
		PASpace: space,
		Address: addr,
	}, vm.NormalNCMemAttr())
}

var _ = Describe("Memory", func() {
	var (
		m   *Memory
		acc vm.AccessDescriptor
	)

	BeforeEach(func() {
		m = New(1 << 20)
		acc = vm.MakeAccessDescriptorBuilder(vm.AccessTypeTTW).WithRead().Build()
	})

	It("should keep address spaces apart", func() {
		Expect(m.Write64(vm.FullAddress{PASpace: vm.PASSecure, Address: 0x100}, 7)).
			To(Succeed())

		status, v := m.Read(at(vm.PASSecure, 0x100), 8, acc)
		Expect(status.IsFault()).To(BeFalse())
		Expect(v).To(Equal(uint64(7)))

		_, v = m.Read(at(vm.PASNonSecure, 0x100), 8, acc)
		Expect(v).To(BeZero())
	})

	It("should read and write little-endian values", func() {
		status := m.Write(at(vm.PASNonSecure, 0x10), 4, 0x11223344, acc)
		Expect(status.IsFault()).To(BeFalse())
		Expect(status.Store).To(BeTrue())

		_, v := m.Read(at(vm.PASNonSecure, 0x10), 2, acc)
		Expect(v).To(Equal(uint64(0x3344)))

		data, _ := m.Storage(vm.PASNonSecure).Read(0x10, 4)
		Expect(data).To(Equal([]byte{0x44, 0x33, 0x22, 0x11}))
	})

	It("should compare and swap", func() {
		pa := vm.FullAddress{PASpace: vm.PASNonSecure, Address: 0x200}
		Expect(m.Write64(pa, 1)).To(Succeed())

		_, v := m.CompareAndSwap(at(pa.PASpace, pa.Address), 1, 2, acc)
		Expect(v).To(Equal(uint64(2)))

		_, v = m.CompareAndSwap(at(pa.PASpace, pa.Address), 1, 3, acc)
		Expect(v).To(Equal(uint64(2)))
	})

	It("should serialize concurrent compare and swaps", func() {
		desc := at(vm.PASNonSecure, 0x300)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					for {
						_, old := m.Read(desc, 8, acc)
						_, v := m.CompareAndSwap(desc, old, old+1, acc)
						if v == old+1 {
							break
						}
					}
				}
			}()
		}
		wg.Wait()

		v, err := m.Read64(desc.PAddress)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(800)))
	})

	It("should report injected faults", func() {
		m.InjectFault(vm.PASNonSecure, 0x1000, 0x1000, vm.FaultSyncParity)

		status, _ := m.Read(at(vm.PASNonSecure, 0x1ff8), 8, acc)
		Expect(status.StatusCode).To(Equal(vm.FaultSyncParity))
		Expect(status.ExtFlag).To(BeTrue())

		status, _ = m.Read(at(vm.PASSecure, 0x1ff8), 8, acc)
		Expect(status.IsFault()).To(BeFalse())

		status = m.Write(at(vm.PASNonSecure, 0xffc), 8, 0, acc)
		Expect(status.StatusCode).To(Equal(vm.FaultSyncParity))

		m.ClearFaults()
		status, _ = m.Read(at(vm.PASNonSecure, 0x1ff8), 8, acc)
		Expect(status.IsFault()).To(BeFalse())
	})

	It("should abort accesses beyond the capacity", func() {
		status, _ := m.Read(at(vm.PASNonSecure, 1<<20), 8, acc)
		Expect(status.StatusCode).To(Equal(vm.FaultSyncExternal))
	})
})
