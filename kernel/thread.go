package kernel

import (
	"github.com/sarchlab/palmsim/coretiming"
	"github.com/sarchlab/palmsim/cpu"
)

// ThreadStatus is a thread's scheduling state.
type ThreadStatus int

// Thread statuses.
const (
	StatusReady ThreadStatus = iota
	StatusRunning
	StatusWaitSleep
	StatusDormant
)

// Initial CPSR for a new thread: user mode, ARM state, interrupts enabled.
const initialCpsr = 0x10

// Thread is one guest thread of execution. While the thread is not running
// its full CPU context lives here; the scheduler restores it bit-for-bit
// before the thread next executes.
type Thread struct {
	kernel *Kernel

	name     string
	ThreadID uint32
	Owner    *Process
	Priority int

	status  ThreadStatus
	context cpu.Context
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// Kind returns KindThread.
func (t *Thread) Kind() ObjectKind { return KindThread }

// Status returns the thread's scheduling state.
func (t *Thread) Status() ThreadStatus { return t.status }

// Context returns the saved CPU context. Only meaningful while the thread
// is not running.
func (t *Thread) Context() *cpu.Context { return &t.context }

// CreateThread creates a ready thread in owner's address space with the
// given entry point, stack top, and priority (lower value runs first). The
// kernel holds an internal reference for scheduling in addition to the
// returned handle.
func (k *Kernel) CreateThread(
	name string,
	owner *Process,
	entry, stackTop uint32,
	priority int,
) (*Thread, Handle) {
	t := &Thread{
		kernel:   k,
		name:     name,
		ThreadID: k.nextThreadID,
		Owner:    owner,
		Priority: priority,
		status:   StatusReady,
	}
	k.nextThreadID++
	t.context.Regs[13] = stackTop
	t.context.Regs[15] = entry
	t.context.Cpsr = initialCpsr

	k.threadsByID[t.ThreadID] = t
	k.readyQueue = append(k.readyQueue, t)
	h, _ := k.handleTable.Create(t)
	k.handleTable.Retain(t)
	return t, h
}

// ExitThread terminates the running thread and schedules its successor.
func (k *Kernel) ExitThread() {
	t := k.currentThread
	if t == nil {
		return
	}
	t.status = StatusDormant
	delete(k.threadsByID, t.ThreadID)
	k.currentThread = nil
	k.handleTable.Release(t)
	k.switchTo(k.popNextReady())
	k.cpu.RequestHalt()
}

// SleepThread blocks the running thread for ns nanoseconds of guest time
// and schedules its successor.
func (k *Kernel) SleepThread(ns int64) {
	t := k.currentThread
	if t == nil {
		return
	}
	t.status = StatusWaitSleep
	k.timing.ScheduleEvent(
		coretiming.UsToTicks(ns/1000), k.threadWakeup, uint64(t.ThreadID))
	k.currentThread = nil
	k.cpu.SaveContext(&t.context)
	k.switchTo(k.popNextReady())
	k.cpu.RequestHalt()
}
