// Package memory models the guest virtual address space.
//
// Each guest process owns a PageTable, a sparse map of 4 KiB pages. Memory
// routes every access through the currently-active page table; the kernel
// swaps page tables on context switch. Fixed hardware regions (the shared
// status page, the config memory page) are mapped as backed pages so the
// subsystem that owns the backing bytes sees guest reads immediately.
package memory

import (
	"encoding/binary"
	"log"
	"os"
)

// PageSize is the granularity of guest memory mapping.
const PageSize = 0x1000

// Guest-visible fixed mappings.
const (
	ConfigMemVAddr  = 0x1FF80000
	SharedPageVAddr = 0x1FF81000
)

// PageTable is one guest address space: a sparse page-number to backing-slice
// map. Two processes never share a PageTable unless they share the mapping
// deliberately (shared memory, the status pages).
type PageTable struct {
	pages map[uint32][]byte
}

// NewPageTable creates an empty address space.
func NewPageTable() *PageTable {
	return &PageTable{
		pages: map[uint32][]byte{},
	}
}

// Map allocates zeroed pages covering [vaddr, vaddr+size). vaddr and size
// must be page-aligned. Already-mapped pages are left untouched.
func (pt *PageTable) Map(vaddr, size uint32) {
	for page := vaddr / PageSize; page < (vaddr+size)/PageSize; page++ {
		if _, ok := pt.pages[page]; !ok {
			pt.pages[page] = make([]byte, PageSize)
		}
	}
}

// MapBacked maps one page at vaddr onto caller-owned backing bytes. The
// backing slice must be at least PageSize long. Writes by the owner are
// visible to guest reads without copying.
func (pt *PageTable) MapBacked(vaddr uint32, backing []byte) {
	pt.pages[vaddr/PageSize] = backing[:PageSize]
}

// Unmap removes the pages covering [vaddr, vaddr+size).
func (pt *PageTable) Unmap(vaddr, size uint32) {
	for page := vaddr / PageSize; page < (vaddr+size)/PageSize; page++ {
		delete(pt.pages, page)
	}
}

// IsMapped reports whether the page containing vaddr is mapped.
func (pt *PageTable) IsMapped(vaddr uint32) bool {
	_, ok := pt.pages[vaddr/PageSize]
	return ok
}

func (pt *PageTable) page(vaddr uint32) []byte {
	return pt.pages[vaddr/PageSize]
}

// Memory dispatches guest memory accesses through the active page table.
// All multi-byte accesses are little-endian. Accesses to unmapped addresses
// are logged and read as zero; unmapped writes are dropped. The guest
// survives them the way the real machine survives a read of open bus.
type Memory struct {
	current *PageTable
	logger  *log.Logger
}

// MemoryOption is a functional option for configuring Memory.
type MemoryOption func(*Memory)

// WithLogger sets the logger used to report unmapped accesses.
func WithLogger(logger *log.Logger) MemoryOption {
	return func(m *Memory) {
		m.logger = logger
	}
}

// NewMemory creates a Memory with a fresh empty page table active.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		current: NewPageTable(),
		logger:  log.New(os.Stderr, "memory: ", 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetCurrentPageTable switches the active address space.
func (m *Memory) SetCurrentPageTable(pt *PageTable) {
	m.current = pt
}

// GetCurrentPageTable returns the active address space.
func (m *Memory) GetCurrentPageTable() *PageTable {
	return m.current
}

// Read8 reads one byte.
func (m *Memory) Read8(vaddr uint32) uint8 {
	page := m.current.page(vaddr)
	if page == nil {
		m.logger.Printf("unmapped Read8 @ 0x%08X", vaddr)
		return 0
	}
	return page[vaddr%PageSize]
}

// Read16 reads a little-endian halfword.
func (m *Memory) Read16(vaddr uint32) uint16 {
	if off := vaddr % PageSize; off <= PageSize-2 {
		if page := m.current.page(vaddr); page != nil {
			return binary.LittleEndian.Uint16(page[off:])
		}
		m.logger.Printf("unmapped Read16 @ 0x%08X", vaddr)
		return 0
	}
	return uint16(m.Read8(vaddr)) | uint16(m.Read8(vaddr+1))<<8
}

// Read32 reads a little-endian word.
func (m *Memory) Read32(vaddr uint32) uint32 {
	if off := vaddr % PageSize; off <= PageSize-4 {
		if page := m.current.page(vaddr); page != nil {
			return binary.LittleEndian.Uint32(page[off:])
		}
		m.logger.Printf("unmapped Read32 @ 0x%08X", vaddr)
		return 0
	}
	return uint32(m.Read16(vaddr)) | uint32(m.Read16(vaddr+2))<<16
}

// Read64 reads a little-endian doubleword.
func (m *Memory) Read64(vaddr uint32) uint64 {
	return uint64(m.Read32(vaddr)) | uint64(m.Read32(vaddr+4))<<32
}

// Write8 writes one byte.
func (m *Memory) Write8(vaddr uint32, value uint8) {
	page := m.current.page(vaddr)
	if page == nil {
		m.logger.Printf("unmapped Write8 @ 0x%08X = 0x%02X", vaddr, value)
		return
	}
	page[vaddr%PageSize] = value
}

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(vaddr uint32, value uint16) {
	if off := vaddr % PageSize; off <= PageSize-2 {
		if page := m.current.page(vaddr); page != nil {
			binary.LittleEndian.PutUint16(page[off:], value)
			return
		}
		m.logger.Printf("unmapped Write16 @ 0x%08X = 0x%04X", vaddr, value)
		return
	}
	m.Write8(vaddr, uint8(value))
	m.Write8(vaddr+1, uint8(value>>8))
}

// Write32 writes a little-endian word.
func (m *Memory) Write32(vaddr uint32, value uint32) {
	if off := vaddr % PageSize; off <= PageSize-4 {
		if page := m.current.page(vaddr); page != nil {
			binary.LittleEndian.PutUint32(page[off:], value)
			return
		}
		m.logger.Printf("unmapped Write32 @ 0x%08X = 0x%08X", vaddr, value)
		return
	}
	m.Write16(vaddr, uint16(value))
	m.Write16(vaddr+2, uint16(value>>16))
}

// Write64 writes a little-endian doubleword.
func (m *Memory) Write64(vaddr uint32, value uint64) {
	m.Write32(vaddr, uint32(value))
	m.Write32(vaddr+4, uint32(value>>32))
}

// ReadBlock copies length bytes starting at vaddr into a new slice.
func (m *Memory) ReadBlock(vaddr, length uint32) []byte {
	out := make([]byte, length)
	for i := uint32(0); i < length; i++ {
		out[i] = m.Read8(vaddr + i)
	}
	return out
}

// WriteBlock copies data into guest memory starting at vaddr.
func (m *Memory) WriteBlock(vaddr uint32, data []byte) {
	for i, b := range data {
		m.Write8(vaddr+uint32(i), b)
	}
}
