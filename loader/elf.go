package loader

import (
	"debug/elf"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sarchlab/palmsim/kernel"
	"github.com/sarchlab/palmsim/memory"
)

const elfMagic = "\x7fELF"

// Homebrew stack placement: top of the guest heap region, 16 KiB deep.
const (
	defaultStackTop  = 0x10000000
	defaultStackSize = 0x4000
)

// defaultPriority is the main thread priority applications start with.
const defaultPriority = 48

// ELFLoader loads 32-bit ELF images targeting the guest CPU. Used for
// homebrew and test programs; packaged titles come through other loaders.
type ELFLoader struct {
	path string
}

// NewELFLoader creates a loader for the image at path.
func NewELFLoader(path string) *ELFLoader {
	return &ELFLoader{path: path}
}

// LoadKernelSystemMode returns the memory layout mode. ELF images carry no
// layout request, so the standard application mode is assumed.
func (l *ELFLoader) LoadKernelSystemMode() (SystemMode, ResultStatus) {
	return SystemModeProd, ResultSuccess
}

// ReadProgramID reports that ELF images carry no title identifier.
func (l *ELFLoader) ReadProgramID() (uint64, error) {
	return 0, fmt.Errorf("ELF images carry no program ID")
}

// ReadTitle derives a title from the image filename.
func (l *ELFLoader) ReadTitle() (string, error) {
	base := filepath.Base(l.path)
	return strings.TrimSuffix(base, filepath.Ext(base)), nil
}

// Load parses the image, creates a process with the image mapped in, and
// creates its main thread at the entry point.
func (l *ELFLoader) Load(k *kernel.Kernel) (*kernel.Process, ResultStatus) {
	f, err := elf.Open(l.path)
	if err != nil {
		return nil, ResultErrorInvalidFormat
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 || f.Data != elf.ELFDATA2LSB {
		return nil, ResultErrorUnsupportedArch
	}
	if f.Machine != elf.EM_ARM {
		return nil, ResultErrorUnsupportedArch
	}

	title, _ := l.ReadTitle()
	process, _ := k.CreateProcess(title, 0)

	// Segment contents are written through a scratch view of the new
	// address space.
	view := memory.NewMemory()
	view.SetCurrentPageTable(process.PageTable)

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, ResultErrorInvalidFormat
			}
			if uint64(n) != phdr.Filesz {
				return nil, ResultErrorInvalidFormat
			}
		}
		mapSegment(process.PageTable, uint32(phdr.Vaddr), uint32(phdr.Memsz))
		view.WriteBlock(uint32(phdr.Vaddr), data)
	}

	process.PageTable.Map(defaultStackTop-defaultStackSize, defaultStackSize)
	k.CreateThread(title+"_main", process,
		uint32(f.Entry), defaultStackTop, defaultPriority)

	return process, ResultSuccess
}
