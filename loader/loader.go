// Package loader loads guest executable images into a kernel process.
//
// Format loading is a collaborator of the core, not part of it: the system
// controller only sees the Loader interface and a typed ResultStatus. One
// concrete loader is provided for ELF images targeting the guest CPU.
package loader

import (
	"fmt"
	"os"

	"github.com/sarchlab/palmsim/kernel"
	"github.com/sarchlab/palmsim/memory"
)

// ResultStatus classifies the outcome of a load attempt.
type ResultStatus int

// Load result statuses.
const (
	ResultSuccess ResultStatus = iota
	ResultError
	ResultErrorInvalidFormat
	ResultErrorEncrypted
	ResultErrorUnsupportedArch
	ResultErrorNotLoaded
)

func (s ResultStatus) String() string {
	switch s {
	case ResultSuccess:
		return "success"
	case ResultError:
		return "load error"
	case ResultErrorInvalidFormat:
		return "invalid image format"
	case ResultErrorEncrypted:
		return "image is encrypted"
	case ResultErrorUnsupportedArch:
		return "unsupported architecture"
	case ResultErrorNotLoaded:
		return "image not loaded"
	default:
		return "unknown status"
	}
}

// SystemMode is the kernel memory layout mode an image requests.
type SystemMode uint8

// SystemModeProd is the standard 64 MB application memory layout.
const SystemModeProd SystemMode = 2

// Loader is the boundary between the core and a format-specific image
// loader.
type Loader interface {
	// LoadKernelSystemMode returns the memory layout mode the image
	// requests, or an error status when the image cannot say.
	LoadKernelSystemMode() (SystemMode, ResultStatus)

	// Load creates a process in k, maps the image into it, and creates
	// its main thread.
	Load(k *kernel.Kernel) (*kernel.Process, ResultStatus)

	// ReadProgramID returns the image's 64-bit title identifier.
	ReadProgramID() (uint64, error)

	// ReadTitle returns the image's human-readable title.
	ReadTitle() (string, error)
}

// GetLoader sniffs the image format at path and returns a matching loader.
func GetLoader(path string) (Loader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	magic := make([]byte, 4)
	if _, err := f.ReadAt(magic, 0); err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}

	if string(magic) == elfMagic {
		return NewELFLoader(path), nil
	}
	return nil, fmt.Errorf("unrecognized image format in %q", path)
}

// mapSegment maps page-aligned memory covering one segment into pt and
// returns the mapped range.
func mapSegment(pt *memory.PageTable, vaddr, memSize uint32) (uint32, uint32) {
	start := vaddr &^ (memory.PageSize - 1)
	end := (vaddr + memSize + memory.PageSize - 1) &^ (memory.PageSize - 1)
	pt.Map(start, end-start)
	return start, end - start
}
