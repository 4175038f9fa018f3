package kernel

// ObjectKind discriminates concrete kernel object types. Callers that need
// a concrete type check the kind tag and assert, instead of probing with
// dynamic type inspection.
type ObjectKind int

// Kernel object kinds.
const (
	KindProcess ObjectKind = iota
	KindThread
	KindEvent
	KindMutex
	KindSharedMemory
	KindSession
)

func (k ObjectKind) String() string {
	switch k {
	case KindProcess:
		return "Process"
	case KindThread:
		return "Thread"
	case KindEvent:
		return "Event"
	case KindMutex:
		return "Mutex"
	case KindSharedMemory:
		return "SharedMemory"
	case KindSession:
		return "Session"
	default:
		return "Unknown"
	}
}

// Object is anything that can live in the handle table. Objects are kept
// alive by handle references and internal kernel references together; the
// table calls Release once per dropped reference and the object tears its
// resources down when the last one goes.
type Object interface {
	Name() string
	Kind() ObjectKind
}

// releaser is implemented by objects that must run teardown when their last
// reference is released.
type releaser interface {
	onLastRelease()
}
