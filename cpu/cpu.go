// Package cpu provides the guest CPU execution unit.
//
// The unit translates guest code into basic blocks, caches one set of
// translations per guest address space, and executes blocks until the
// virtual clock's downcount runs out, the guest issues a kernel call, an
// unrecoverable fault occurs, or a reschedule is requested. Executed cycles
// are reported back to the virtual clock after every block.
//
// Memory access, kernel call dispatch, and fault reporting are all routed
// through injected interfaces; the unit knows nothing about the memory or
// kernel subsystems beyond them.
package cpu

import (
	"log"
	"os"

	"github.com/sarchlab/palmsim/coretiming"
	"github.com/sarchlab/palmsim/insts"
	"github.com/sarchlab/palmsim/memory"
)

// Bus is the memory interface translated code issues accesses through.
type Bus interface {
	Read8(vaddr uint32) uint8
	Read16(vaddr uint32) uint16
	Read32(vaddr uint32) uint32
	Read64(vaddr uint32) uint64
	Write8(vaddr uint32, value uint8)
	Write16(vaddr uint32, value uint16)
	Write32(vaddr uint32, value uint32)
	Write64(vaddr uint32, value uint64)

	// GetCurrentPageTable identifies the active guest address space.
	// Translation caches are keyed by it.
	GetCurrentPageTable() *memory.PageTable
}

// SVCHandler dispatches guest kernel calls. The handler runs synchronously;
// on return execution resumes at the CPU's (possibly updated) program
// counter.
type SVCHandler interface {
	HandleSVC(c *Cpu, index uint32)
}

// FaultKind classifies unrecoverable guest faults.
type FaultKind int

// Fault kinds.
const (
	FaultUndefinedInstruction FaultKind = iota
	FaultThumbUnsupported
	FaultCoprocUnsupported
)

func (k FaultKind) String() string {
	switch k {
	case FaultUndefinedInstruction:
		return "undefined instruction"
	case FaultThumbUnsupported:
		return "Thumb mode not supported"
	case FaultCoprocUnsupported:
		return "unsupported coprocessor access"
	default:
		return "unknown fault"
	}
}

// FaultHandler receives unrecoverable guest faults. These are emulation
// gaps, not guest-recoverable conditions; the handler is expected not to
// return control for continued execution.
type FaultHandler interface {
	HandleFault(pc uint32, kind FaultKind)
}

// Cpu is the guest CPU execution unit.
type Cpu struct {
	bus          Bus
	timing       *coretiming.Timing
	svcHandler   SVCHandler
	faultHandler FaultHandler
	decoder      *insts.Decoder
	logger       *log.Logger

	regs    [16]uint32
	cpsr    uint32
	extRegs [64]uint32
	fpscr   uint32
	fpexc   uint32
	cp15    [16]uint32

	// One translation cache per guest address space.
	caches map[*memory.PageTable]*TransCache
	active *TransCache

	ticksMode   TicksMode
	titleID     uint64
	customTicks uint64

	haltRequested bool
	faulted       bool
}

// Option is a functional option for configuring the Cpu.
type Option func(*Cpu)

// WithSVCHandler sets the kernel call dispatcher.
func WithSVCHandler(h SVCHandler) Option {
	return func(c *Cpu) {
		c.svcHandler = h
	}
}

// WithFaultHandler sets the unrecoverable-fault sink.
func WithFaultHandler(h FaultHandler) Option {
	return func(c *Cpu) {
		c.faultHandler = h
	}
}

// WithLogger sets the logger for fault reporting.
func WithLogger(logger *log.Logger) Option {
	return func(c *Cpu) {
		c.logger = logger
	}
}

// New creates a Cpu bound to the given bus and virtual clock.
func New(bus Bus, timing *coretiming.Timing, opts ...Option) *Cpu {
	c := &Cpu{
		bus:     bus,
		timing:  timing,
		decoder: insts.NewDecoder(),
		logger:  log.New(os.Stderr, "cpu: ", 0),
		caches:  map[*memory.PageTable]*TransCache{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.PageTableChanged()
	return c
}

// SetSVCHandler installs the kernel call dispatcher. The kernel is built
// after the CPU, so the handler is wired late.
func (c *Cpu) SetSVCHandler(h SVCHandler) {
	c.svcHandler = h
}

// SetTickAccounting configures how executed cycles become virtual-clock
// ticks (see TicksMode).
func (c *Cpu) SetTickAccounting(mode TicksMode, titleID, customValue uint64) {
	c.ticksMode = mode
	c.titleID = titleID
	c.customTicks = customValue
}

// RequestHalt asks the unit to stop at the end of the current block. Called
// when the kernel wants to reschedule.
func (c *Cpu) RequestHalt() {
	c.haltRequested = true
}

// PageTableChanged looks up or lazily creates the translation cache for the
// bus's current page table. Called on every guest address-space switch;
// translated blocks are never shared between address spaces.
func (c *Cpu) PageTableChanged() {
	pt := c.bus.GetCurrentPageTable()
	cache, ok := c.caches[pt]
	if !ok {
		cache = NewTransCache()
		c.caches[pt] = cache
	}
	c.active = cache
}

// InvalidateCacheRange discards translated code overlapping
// [start, start+length) in every address space. Must be called after any
// write to guest memory that bypasses translated-code stores.
func (c *Cpu) InvalidateCacheRange(start, length uint32) {
	for _, cache := range c.caches {
		cache.InvalidateRange(start, length)
	}
}

// maxRunTicks bounds one Run burst. Without it a burst runs until the next
// due event, which can be an hour of guest time away; the caller's pause and
// shutdown flags would go unobserved for the whole span.
const maxRunTicks = 20000

// Run executes translated guest code from the current program counter until
// the downcount is exhausted, the burst tick bound is reached, the guest
// faults unrecoverably, or a halt was requested. Kernel calls are dispatched
// synchronously mid-run. Executed cycles are reported to the virtual clock
// per block, subject to the tick accounting mode.
func (c *Cpu) Run() {
	c.haltRequested = false
	override, hasOverride := OverrideTicks(c.ticksMode, c.titleID, c.customTicks)

	var burst uint64
	for !c.haltRequested && !c.faulted && burst < maxRunTicks {
		if c.timing.GetDowncount() <= 0 {
			break
		}

		block := c.active.Lookup(c.regs[15])
		if block == nil {
			block = c.translate(c.regs[15])
			c.active.Insert(block)
		}

		executed := c.executeBlock(block)
		ticks := executed
		if hasOverride {
			ticks = override
		}
		c.timing.AddTicks(ticks)
		burst += ticks
	}
}

// translate decodes one basic block starting at pc.
func (c *Cpu) translate(pc uint32) *TransBlock {
	tb := &TransBlock{Addr: pc}
	addr := pc
	for {
		inst := c.decoder.Decode(c.bus.Read32(addr))
		tb.Insts = append(tb.Insts, inst)
		addr += 4
		if inst.IsBlockEnd() || len(tb.Insts) >= maxBlockInsts {
			break
		}
	}
	tb.Size = addr - pc
	return tb
}

func (c *Cpu) raiseFault(pc uint32, kind FaultKind) {
	c.faulted = true
	c.logger.Printf("unrecoverable fault at PC=0x%08X: %v", pc, kind)
	if c.faultHandler != nil {
		c.faultHandler.HandleFault(pc, kind)
	}
}
