package kernel

import "fmt"

// Handle is an opaque 32-bit reference to a kernel object. Values are
// allocated from a monotonic counter and never reused while an equal value
// is live.
type Handle uint32

// Pseudo-handles, resolved against the current execution context rather
// than stored in the table.
const (
	CurrentThread  Handle = 0xFFFF8000
	CurrentProcess Handle = 0xFFFF8001
)

// firstHandle is the first allocatable handle value. Zero stays invalid so
// guest code can use it as a null handle.
const firstHandle Handle = 1

// HandleTable maps handles to shared references on kernel objects. It is
// mutated only by the machine thread (see the kernel's threading contract),
// so it carries no lock.
type HandleTable struct {
	kernel  *Kernel
	objects map[Handle]Object
	refs    map[Object]int
	next    Handle
}

// NewHandleTable creates an empty handle table bound to the kernel.
func NewHandleTable(kernel *Kernel) *HandleTable {
	return &HandleTable{
		kernel:  kernel,
		objects: map[Handle]Object{},
		refs:    map[Object]int{},
		next:    firstHandle,
	}
}

// Create allocates a new handle referencing obj. Allocation is monotonic;
// counter exhaustion is an emulator defect and panics.
func (ht *HandleTable) Create(obj Object) (Handle, Result) {
	if ht.next == 0 {
		panic(fmt.Sprintf(
			"kernel: handle counter wrapped creating %s %q", obj.Kind(), obj.Name()))
	}
	h := ht.next
	ht.next++
	ht.objects[h] = obj
	ht.refs[obj]++
	return h, ResultSuccess
}

// Duplicate creates a second handle referencing the object behind handle.
// The two handles have independent lifetimes.
func (ht *HandleTable) Duplicate(handle Handle) (Handle, Result) {
	obj := ht.GetGeneric(handle)
	if obj == nil {
		return 0, ResultInvalidHandle
	}
	return ht.Create(obj)
}

// Close drops one handle reference. The object is torn down once its last
// reference (handle-held or internal) is released.
func (ht *HandleTable) Close(handle Handle) Result {
	obj, ok := ht.objects[handle]
	if !ok {
		return ResultInvalidHandle
	}
	delete(ht.objects, handle)
	ht.release(obj)
	return ResultSuccess
}

// GetGeneric resolves a handle to its object, or nil if the handle is not
// live. The pseudo-handles resolve to the current thread and process.
func (ht *HandleTable) GetGeneric(handle Handle) Object {
	switch handle {
	case CurrentThread:
		if ht.kernel.currentThread == nil {
			return nil
		}
		return ht.kernel.currentThread
	case CurrentProcess:
		if ht.kernel.currentProcess == nil {
			return nil
		}
		return ht.kernel.currentProcess
	}
	return ht.objects[handle]
}

// Clear releases every entry. Used only during full kernel teardown.
func (ht *HandleTable) Clear() {
	for h, obj := range ht.objects {
		delete(ht.objects, h)
		ht.release(obj)
	}
}

// Retain adds an internal kernel reference to obj, keeping it alive
// independently of any handle.
func (ht *HandleTable) Retain(obj Object) {
	ht.refs[obj]++
}

// Release drops an internal kernel reference taken with Retain.
func (ht *HandleTable) Release(obj Object) {
	ht.release(obj)
}

func (ht *HandleTable) release(obj Object) {
	ht.refs[obj]--
	if ht.refs[obj] > 0 {
		return
	}
	delete(ht.refs, obj)
	if r, ok := obj.(releaser); ok {
		r.onLastRelease()
	}
}
