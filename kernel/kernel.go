// Package kernel emulates the guest operating system kernel: the handle
// table backing all kernel object references, processes and cooperatively
// scheduled threads, synchronization primitives, and the kernel call
// dispatcher.
//
// The kernel is owned by the single machine thread. Guest multi-threading
// is produced entirely by the kernel's own scheduling over the one CPU
// execution unit, never by host threads.
package kernel

import (
	"log"
	"os"

	"github.com/sarchlab/palmsim/coretiming"
	"github.com/sarchlab/palmsim/cpu"
	"github.com/sarchlab/palmsim/memory"
)

// Kernel owns all guest kernel state.
type Kernel struct {
	timing *coretiming.Timing
	mem    *memory.Memory
	cpu    *cpu.Cpu
	logger *log.Logger

	handleTable    *HandleTable
	currentProcess *Process
	currentThread  *Thread

	readyQueue    []*Thread
	threadsByID   map[uint32]*Thread
	nextThreadID  uint32
	nextProcessID uint32

	threadWakeup *coretiming.EventType

	configMem []byte
}

// Option is a functional option for configuring the Kernel.
type Option func(*Kernel)

// WithLogger sets the kernel's logger.
func WithLogger(logger *log.Logger) Option {
	return func(k *Kernel) {
		k.logger = logger
	}
}

// New creates a Kernel bound to the virtual clock, guest memory, and CPU
// execution unit, and installs itself as the CPU's kernel call dispatcher.
func New(
	timing *coretiming.Timing,
	mem *memory.Memory,
	core *cpu.Cpu,
	opts ...Option,
) *Kernel {
	k := &Kernel{
		timing:      timing,
		mem:         mem,
		cpu:         core,
		logger:      log.New(os.Stderr, "kernel: ", 0),
		threadsByID: map[uint32]*Thread{},
		configMem:   buildConfigMem(),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.handleTable = NewHandleTable(k)
	k.threadWakeup = timing.RegisterEvent("thread_wakeup", k.onThreadWakeup)
	core.SetSVCHandler(k)
	return k
}

// HandleTable returns the kernel's handle table.
func (k *Kernel) HandleTable() *HandleTable {
	return k.handleTable
}

// CurrentProcess returns the process whose address space is active.
func (k *Kernel) CurrentProcess() *Process {
	return k.currentProcess
}

// CurrentThread returns the running thread, or nil when the machine is
// idle.
func (k *Kernel) CurrentThread() *Thread {
	return k.currentThread
}

// ConfigMem returns the config memory page backing bytes.
func (k *Kernel) ConfigMem() []byte {
	return k.configMem
}

// HasRunnableThread reports whether CPU work is schedulable. When false the
// run loop idles the virtual clock forward instead of executing.
func (k *Kernel) HasRunnableThread() bool {
	return k.currentThread != nil || len(k.readyQueue) > 0
}

// Reschedule performs a cooperative scheduling pass: the running thread
// goes back to the ready queue and the highest-priority ready thread gets
// the CPU. A context switch to a thread of a different process swaps the
// active page table and retargets the translation cache.
func (k *Kernel) Reschedule() {
	if k.currentThread != nil && k.currentThread.status == StatusRunning {
		k.currentThread.status = StatusReady
		k.readyQueue = append(k.readyQueue, k.currentThread)
	}
	k.switchTo(k.popNextReady())
}

func (k *Kernel) popNextReady() *Thread {
	if len(k.readyQueue) == 0 {
		return nil
	}
	best := 0
	for i, t := range k.readyQueue {
		if t.Priority < k.readyQueue[best].Priority {
			best = i
		}
	}
	next := k.readyQueue[best]
	k.readyQueue = append(k.readyQueue[:best], k.readyQueue[best+1:]...)
	return next
}

func (k *Kernel) switchTo(next *Thread) {
	prev := k.currentThread
	if prev == next {
		if prev != nil {
			prev.status = StatusRunning
		}
		return
	}

	if prev != nil {
		k.cpu.SaveContext(&prev.context)
	}
	k.currentThread = next
	if next == nil {
		return
	}

	next.status = StatusRunning
	k.cpu.LoadContext(&next.context)
	if next.Owner != k.currentProcess {
		k.currentProcess = next.Owner
		k.mem.SetCurrentPageTable(next.Owner.PageTable)
		k.cpu.PageTableChanged()
	}
}

func (k *Kernel) onThreadWakeup(userdata uint64, _ int64) {
	t, ok := k.threadsByID[uint32(userdata)]
	if !ok || t.status != StatusWaitSleep {
		return
	}
	t.status = StatusReady
	k.readyQueue = append(k.readyQueue, t)
}

// Shutdown unschedules pending kernel events and releases every object so
// no callback can fire into torn-down state.
func (k *Kernel) Shutdown() {
	for id := range k.threadsByID {
		k.timing.UnscheduleEvent(k.threadWakeup, uint64(id))
	}
	k.readyQueue = nil
	k.currentThread = nil
	k.currentProcess = nil
	k.threadsByID = map[uint32]*Thread{}
	k.handleTable.Clear()
}
