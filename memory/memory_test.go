package memory_test

import (
	"io"
	"log"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/palmsim/memory"
)

func TestMemory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Memory Suite")
}

var _ = Describe("Memory", func() {
	var mem *memory.Memory

	BeforeEach(func() {
		mem = memory.NewMemory(
			memory.WithLogger(log.New(io.Discard, "", 0)))
		mem.GetCurrentPageTable().Map(0x00100000, 0x2000)
	})

	It("should read back stored values at each width", func() {
		mem.Write8(0x00100000, 0xAB)
		mem.Write16(0x00100002, 0x1234)
		mem.Write32(0x00100004, 0xDEADBEEF)
		mem.Write64(0x00100008, 0x0123456789ABCDEF)

		Expect(mem.Read8(0x00100000)).To(Equal(uint8(0xAB)))
		Expect(mem.Read16(0x00100002)).To(Equal(uint16(0x1234)))
		Expect(mem.Read32(0x00100004)).To(Equal(uint32(0xDEADBEEF)))
		Expect(mem.Read64(0x00100008)).To(Equal(uint64(0x0123456789ABCDEF)))
	})

	It("should store multi-byte values little-endian", func() {
		mem.Write32(0x00100010, 0x11223344)

		Expect(mem.Read8(0x00100010)).To(Equal(uint8(0x44)))
		Expect(mem.Read8(0x00100011)).To(Equal(uint8(0x33)))
		Expect(mem.Read8(0x00100012)).To(Equal(uint8(0x22)))
		Expect(mem.Read8(0x00100013)).To(Equal(uint8(0x11)))
	})

	It("should handle accesses that straddle a page boundary", func() {
		mem.Write32(0x00100FFE, 0xCAFEBABE)

		Expect(mem.Read32(0x00100FFE)).To(Equal(uint32(0xCAFEBABE)))
		Expect(mem.Read16(0x00100FFE)).To(Equal(uint16(0xBABE)))
		Expect(mem.Read16(0x00101000)).To(Equal(uint16(0xCAFE)))
	})

	It("should read unmapped addresses as zero", func() {
		Expect(mem.Read32(0x00000000)).To(Equal(uint32(0)))
		Expect(mem.Read8(0xFFFFFFF0)).To(Equal(uint8(0)))
	})

	It("should drop unmapped writes", func() {
		mem.Write32(0x00000000, 0x12345678)

		Expect(mem.Read32(0x00000000)).To(Equal(uint32(0)))
	})

	It("should round-trip block transfers", func() {
		data := []byte{1, 2, 3, 4, 5, 6, 7}
		mem.WriteBlock(0x00100100, data)

		Expect(mem.ReadBlock(0x00100100, 7)).To(Equal(data))
	})

	Describe("page tables", func() {
		It("should isolate address spaces", func() {
			other := memory.NewPageTable()
			other.Map(0x00100000, 0x1000)

			mem.Write32(0x00100000, 0xAAAA5555)
			mem.SetCurrentPageTable(other)

			Expect(mem.Read32(0x00100000)).To(Equal(uint32(0)))

			mem.Write32(0x00100000, 0x5555AAAA)
			Expect(mem.Read32(0x00100000)).To(Equal(uint32(0x5555AAAA)))
		})

		It("should expose owner mutations through backed mappings", func() {
			backing := make([]byte, memory.PageSize)
			pt := mem.GetCurrentPageTable()
			pt.MapBacked(memory.SharedPageVAddr, backing)

			backing[0x66] = 3
			Expect(mem.Read8(memory.SharedPageVAddr + 0x66)).To(Equal(uint8(3)))

			mem.Write8(memory.SharedPageVAddr+0x67, 2)
			Expect(backing[0x67]).To(Equal(uint8(2)))
		})

		It("should report mapping state", func() {
			pt := memory.NewPageTable()

			Expect(pt.IsMapped(0x00200000)).To(BeFalse())
			pt.Map(0x00200000, 0x1000)
			Expect(pt.IsMapped(0x00200000)).To(BeTrue())
			Expect(pt.IsMapped(0x00200FFF)).To(BeTrue())
			Expect(pt.IsMapped(0x00201000)).To(BeFalse())

			pt.Unmap(0x00200000, 0x1000)
			Expect(pt.IsMapped(0x00200000)).To(BeFalse())
		})
	})
})
