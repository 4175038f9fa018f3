package kernel

// Result is a guest-visible kernel result code. Kernel call failures are
// reported to guest code through these values exactly as the real kernel
// would report them; they never escalate to host-level errors.
type Result uint32

// Kernel result codes.
const (
	ResultSuccess       Result = 0x00000000
	ResultInvalidHandle Result = 0xD8E007F7
	ResultOutOfHandles  Result = 0xD8600413
	ResultWrongType     Result = 0xD8E007F5
	ResultNotFound      Result = 0xD88007FA
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultInvalidHandle:
		return "invalid handle"
	case ResultOutOfHandles:
		return "handle table full"
	case ResultWrongType:
		return "wrong object type"
	case ResultNotFound:
		return "not found"
	default:
		return "unknown result"
	}
}

// IsError reports whether the result signals a failure.
func (r Result) IsError() bool {
	return r != ResultSuccess
}
