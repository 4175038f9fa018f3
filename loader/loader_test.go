package loader_test

import (
	"encoding/binary"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/palmsim/coretiming"
	"github.com/sarchlab/palmsim/cpu"
	"github.com/sarchlab/palmsim/kernel"
	"github.com/sarchlab/palmsim/loader"
	"github.com/sarchlab/palmsim/memory"
)

func TestLoader(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Loader Suite")
}

const testEntry = 0x00100000

// buildELF assembles a minimal 32-bit ELF image with one loadable segment
// holding code at the entry point.
func buildELF(machine uint16, code []byte) []byte {
	const (
		ehSize = 52
		phSize = 32
	)
	img := make([]byte, ehSize+phSize+len(code))
	le := binary.LittleEndian

	copy(img, "\x7fELF")
	img[4] = 1 // ELFCLASS32
	img[5] = 1 // ELFDATA2LSB
	img[6] = 1 // EV_CURRENT

	le.PutUint16(img[16:], 2) // ET_EXEC
	le.PutUint16(img[18:], machine)
	le.PutUint32(img[20:], 1)
	le.PutUint32(img[24:], testEntry)
	le.PutUint32(img[28:], ehSize) // phoff
	le.PutUint16(img[40:], ehSize)
	le.PutUint16(img[42:], phSize)
	le.PutUint16(img[44:], 1) // phnum

	ph := img[ehSize:]
	le.PutUint32(ph[0:], 1)               // PT_LOAD
	le.PutUint32(ph[4:], ehSize+phSize)   // offset
	le.PutUint32(ph[8:], testEntry)       // vaddr
	le.PutUint32(ph[12:], testEntry)      // paddr
	le.PutUint32(ph[16:], uint32(len(code)))
	le.PutUint32(ph[20:], uint32(len(code))+0x100) // memsz includes bss
	le.PutUint32(ph[24:], 5)                       // R+X
	le.PutUint32(ph[28:], 0x1000)

	copy(img[ehSize+phSize:], code)
	return img
}

func writeImage(dir, name string, data []byte) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, data, 0644)).To(Succeed())
	return path
}

var _ = Describe("Loader", func() {
	var (
		dir    string
		timing *coretiming.Timing
		mem    *memory.Memory
		core   *cpu.Cpu
		k      *kernel.Kernel
		code   []byte
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		quiet := log.New(io.Discard, "", 0)
		mem = memory.NewMemory(memory.WithLogger(quiet))
		timing = coretiming.New()
		core = cpu.New(mem, timing, cpu.WithLogger(quiet))
		k = kernel.New(timing, mem, core, kernel.WithLogger(quiet))

		code = make([]byte, 8)
		binary.LittleEndian.PutUint32(code[0:], 0xE3A00001) // MOV R0, #1
		binary.LittleEndian.PutUint32(code[4:], 0xEF000000) // SVC #0
	})

	Describe("GetLoader", func() {
		It("should recognize ELF images", func() {
			path := writeImage(dir, "app.elf", buildELF(40, code))

			l, err := loader.GetLoader(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(l).To(BeAssignableToTypeOf(&loader.ELFLoader{}))
		})

		It("should reject unknown formats", func() {
			path := writeImage(dir, "app.bin", []byte{1, 2, 3, 4, 5, 6, 7, 8})

			_, err := loader.GetLoader(path)
			Expect(err).To(HaveOccurred())
		})

		It("should report unreadable paths", func() {
			_, err := loader.GetLoader(filepath.Join(dir, "missing.elf"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ELFLoader", func() {
		It("should map the image and create the main thread", func() {
			path := writeImage(dir, "app.elf", buildELF(40, code))

			process, status := loader.NewELFLoader(path).Load(k)
			Expect(status).To(Equal(loader.ResultSuccess))
			Expect(process.Name()).To(Equal("app"))

			view := memory.NewMemory()
			view.SetCurrentPageTable(process.PageTable)
			Expect(view.Read32(testEntry)).To(Equal(uint32(0xE3A00001)))
			Expect(view.Read32(testEntry + uint32(len(code)))).
				To(Equal(uint32(0)), "bss should be zeroed")

			Expect(k.HasRunnableThread()).To(BeTrue())
			k.Reschedule()
			Expect(core.GetPC()).To(Equal(uint32(testEntry)))
			Expect(core.Reg(13)).To(Equal(uint32(0x10000000)))
		})

		It("should reject a corrupt image as invalid format", func() {
			img := buildELF(40, code)[:40] // truncated mid-header
			path := writeImage(dir, "broken.elf", img)

			_, status := loader.NewELFLoader(path).Load(k)
			Expect(status).To(Equal(loader.ResultErrorInvalidFormat))
		})

		It("should reject images for other architectures", func() {
			path := writeImage(dir, "arm64.elf", buildELF(183, code))

			_, status := loader.NewELFLoader(path).Load(k)
			Expect(status).To(Equal(loader.ResultErrorUnsupportedArch))
		})

		It("should expose title and system mode but no program ID", func() {
			path := writeImage(dir, "homebrew.elf", buildELF(40, code))
			l := loader.NewELFLoader(path)

			title, err := l.ReadTitle()
			Expect(err).NotTo(HaveOccurred())
			Expect(title).To(Equal("homebrew"))

			mode, status := l.LoadKernelSystemMode()
			Expect(status).To(Equal(loader.ResultSuccess))
			Expect(mode).To(Equal(loader.SystemModeProd))

			_, err = l.ReadProgramID()
			Expect(err).To(HaveOccurred())
		})
	})
})
