package kernel

import "github.com/sarchlab/palmsim/memory"

// ResetType controls whether an event clears itself after being consumed.
type ResetType int

// Event reset types.
const (
	ResetOneShot ResetType = iota
	ResetSticky
)

// Event is a signalable synchronization object.
type Event struct {
	name      string
	resetType ResetType
	signaled  bool
}

// Name returns the event name.
func (e *Event) Name() string { return e.name }

// Kind returns KindEvent.
func (e *Event) Kind() ObjectKind { return KindEvent }

// Signaled reports whether the event is signaled.
func (e *Event) Signaled() bool { return e.signaled }

// Signal sets the event's signaled state.
func (e *Event) Signal() { e.signaled = true }

// Clear resets the event's signaled state.
func (e *Event) Clear() { e.signaled = false }

// CreateEvent creates an event and registers it in the handle table.
func (k *Kernel) CreateEvent(name string, resetType ResetType) (*Event, Handle) {
	e := &Event{name: name, resetType: resetType}
	h, _ := k.handleTable.Create(e)
	return e, h
}

// Mutex is a recursive lock owned by at most one thread.
type Mutex struct {
	name      string
	holder    *Thread
	lockCount int
}

// Name returns the mutex name.
func (m *Mutex) Name() string { return m.name }

// Kind returns KindMutex.
func (m *Mutex) Kind() ObjectKind { return KindMutex }

// Holder returns the owning thread, or nil when unlocked.
func (m *Mutex) Holder() *Thread { return m.holder }

// Acquire locks the mutex for t. Re-acquisition by the holder nests.
func (m *Mutex) Acquire(t *Thread) bool {
	if m.holder == nil || m.holder == t {
		m.holder = t
		m.lockCount++
		return true
	}
	return false
}

// Release drops one nesting level; the mutex unlocks at zero.
func (m *Mutex) Release() {
	if m.lockCount == 0 {
		return
	}
	m.lockCount--
	if m.lockCount == 0 {
		m.holder = nil
	}
}

// CreateMutex creates a mutex, optionally locked by the current thread,
// and registers it in the handle table.
func (k *Kernel) CreateMutex(name string, initialLocked bool) (*Mutex, Handle) {
	m := &Mutex{name: name}
	if initialLocked && k.currentThread != nil {
		m.Acquire(k.currentThread)
	}
	h, _ := k.handleTable.Create(m)
	return m, h
}

// SharedMemory is a block of memory mappable into guest address spaces.
type SharedMemory struct {
	name    string
	backing []byte
}

// Name returns the shared memory block's name.
func (s *SharedMemory) Name() string { return s.name }

// Kind returns KindSharedMemory.
func (s *SharedMemory) Kind() ObjectKind { return KindSharedMemory }

// Backing returns the block's backing bytes.
func (s *SharedMemory) Backing() []byte { return s.backing }

// MapInto maps the block into pt at vaddr. All mappings share the backing
// bytes.
func (s *SharedMemory) MapInto(pt *memory.PageTable, vaddr uint32) {
	for off := 0; off < len(s.backing); off += memory.PageSize {
		pt.MapBacked(vaddr+uint32(off), s.backing[off:])
	}
}

// CreateSharedMemory creates a shared memory block of size bytes (rounded
// up to whole pages) around existing backing bytes when provided.
func (k *Kernel) CreateSharedMemory(name string, size uint32, backing []byte) (*SharedMemory, Handle) {
	pages := (int(size) + memory.PageSize - 1) / memory.PageSize
	if backing == nil {
		backing = make([]byte, pages*memory.PageSize)
	}
	s := &SharedMemory{name: name, backing: backing}
	h, _ := k.handleTable.Create(s)
	return s, h
}

// Session is one side of an inter-process service connection. Service
// plumbing lives outside this core; the kernel only tracks the object's
// identity and lifetime.
type Session struct {
	name string
}

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// Kind returns KindSession.
func (s *Session) Kind() ObjectKind { return KindSession }

// CreateSession creates a session object and registers it in the handle
// table.
func (k *Kernel) CreateSession(name string) (*Session, Handle) {
	s := &Session{name: name}
	h, _ := k.handleTable.Create(s)
	return s, h
}
