// Package coretiming provides the virtual clock and scheduled event queue
// that order every asynchronous side effect in the emulated machine.
//
// All timing is expressed in ticks of the emulated CPU clock. The execution
// unit reports consumed cycles with AddTicks and asks GetDowncount how far
// it may run before the next due event. Advance fires every event whose due
// tick has been reached, in due-tick order with FIFO tie-breaking so that
// runs are deterministic.
//
// The clock and queue are owned by the single machine thread; none of the
// methods here are safe for concurrent use.
package coretiming

import (
	"container/heap"
	"fmt"
)

// BaseClockRate is the emulated CPU clock rate in ticks per second.
const BaseClockRate = 268111856

// MsToTicks converts milliseconds of guest time to ticks.
func MsToTicks(ms int64) int64 {
	return BaseClockRate / 1000 * ms
}

// UsToTicks converts microseconds of guest time to ticks.
func UsToTicks(us int64) int64 {
	return BaseClockRate / 1000000 * us
}

// TicksToUs converts ticks to microseconds of guest time.
func TicksToUs(ticks uint64) uint64 {
	return ticks / (BaseClockRate / 1000000)
}

// EventCallback is invoked when a scheduled event fires. ticksLate is how
// many ticks past the due tick the clock had already advanced (always >= 0).
// Callbacks may re-arm their own event by calling ScheduleEvent.
type EventCallback func(userdata uint64, ticksLate int64)

// EventType identifies one registered kind of recurring work. Tokens are
// created once per name by RegisterEvent and reused for every schedule and
// unschedule of that kind.
type EventType struct {
	name     string
	callback EventCallback
}

// Name returns the name the event type was registered under.
func (et *EventType) Name() string {
	return et.name
}

type scheduledEvent struct {
	dueTick  uint64
	seq      uint64 // insertion order, breaks due-tick ties
	userdata uint64
	typ      *EventType
}

// eventQueue is a min-heap ordered by due tick, then insertion order.
type eventQueue []*scheduledEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].dueTick != q[j].dueTick {
		return q[i].dueTick < q[j].dueTick
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*scheduledEvent)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return ev
}

// Timing is the virtual clock and its event queue.
type Timing struct {
	currentTick uint64
	queue       eventQueue
	nextSeq     uint64
	registered  map[string]*EventType
}

// New creates a Timing instance with the clock at tick zero.
func New() *Timing {
	return &Timing{
		registered: map[string]*EventType{},
	}
}

// RegisterEvent registers a kind of schedulable work under a stable name and
// returns its token. Registration is idempotent per name: registering the
// same name again returns the original token and keeps its callback. The set
// of event kinds is closed and known at subsystem-init time.
func (t *Timing) RegisterEvent(name string, callback EventCallback) *EventType {
	if et, ok := t.registered[name]; ok {
		return et
	}
	et := &EventType{name: name, callback: callback}
	t.registered[name] = et
	return et
}

// ScheduleEvent enqueues an event of the given type due ticksIntoFuture
// ticks from now. Multiple pending entries of the same type are allowed;
// periodic work re-arms itself from its own callback. Scheduling an
// unregistered type is a programming error and panics.
func (t *Timing) ScheduleEvent(ticksIntoFuture int64, et *EventType, userdata uint64) {
	t.assertRegistered(et)
	if ticksIntoFuture < 0 {
		ticksIntoFuture = 0
	}
	heap.Push(&t.queue, &scheduledEvent{
		dueTick:  t.currentTick + uint64(ticksIntoFuture),
		seq:      t.nextSeq,
		userdata: userdata,
		typ:      et,
	})
	t.nextSeq++
}

// UnscheduleEvent removes every pending entry matching the type and
// userdata. Subsystems call this during teardown so no callback can fire
// into a destroyed subsystem.
func (t *Timing) UnscheduleEvent(et *EventType, userdata uint64) {
	t.assertRegistered(et)
	kept := t.queue[:0]
	for _, ev := range t.queue {
		if ev.typ == et && ev.userdata == userdata {
			continue
		}
		kept = append(kept, ev)
	}
	for i := len(kept); i < len(t.queue); i++ {
		t.queue[i] = nil
	}
	t.queue = kept
	heap.Init(&t.queue)
}

// Advance fires every event whose due tick has been reached. Callbacks run
// on the caller's goroutine and may schedule further events, including
// re-arming their own type. Advancing an empty queue is a no-op.
func (t *Timing) Advance() {
	for len(t.queue) > 0 && t.queue[0].dueTick <= t.currentTick {
		ev := heap.Pop(&t.queue).(*scheduledEvent)
		ev.typ.callback(ev.userdata, int64(t.currentTick-ev.dueTick))
	}
}

// AddTicks advances the clock by n ticks. The execution unit calls this once
// per executed block with the block's effective tick cost.
func (t *Timing) AddTicks(n uint64) {
	t.currentTick += n
}

// GetTicks returns the current tick count since boot.
func (t *Timing) GetTicks() uint64 {
	return t.currentTick
}

// GetGlobalTimeUs returns elapsed guest time in microseconds.
func (t *Timing) GetGlobalTimeUs() uint64 {
	return TicksToUs(t.currentTick)
}

// GetDowncount returns how many ticks may elapse before the next due event,
// clamped at zero. With an empty queue the downcount is effectively
// unbounded.
func (t *Timing) GetDowncount() int64 {
	if len(t.queue) == 0 {
		return int64(^uint64(0) >> 2)
	}
	next := t.queue[0].dueTick
	if next <= t.currentTick {
		return 0
	}
	return int64(next - t.currentTick)
}

// Idle jumps the clock forward to the next due event's tick. It never moves
// the clock backward and is a no-op when nothing is pending. Used when no
// guest thread is runnable, instead of burning host cycles.
func (t *Timing) Idle() {
	if len(t.queue) == 0 {
		return
	}
	if next := t.queue[0].dueTick; next > t.currentTick {
		t.currentTick = next
	}
}

func (t *Timing) assertRegistered(et *EventType) {
	if et == nil || t.registered[et.name] != et {
		panic(fmt.Sprintf("coretiming: use of unregistered event type %v", et))
	}
}
