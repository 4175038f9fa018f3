package kernel

import "github.com/sarchlab/palmsim/cpu"

// Kernel call numbers, as encoded in the guest's SVC immediates.
const (
	svcExitThread        = 0x09
	svcSleepThread       = 0x0A
	svcCreateMutex       = 0x13
	svcReleaseMutex      = 0x14
	svcCreateEvent       = 0x17
	svcSignalEvent       = 0x18
	svcClearEvent        = 0x19
	svcCloseHandle       = 0x23
	svcDuplicateHandle   = 0x27
	svcGetSystemTick     = 0x28
	svcOutputDebugString = 0x3D
)

// HandleSVC dispatches one guest kernel call. Arguments arrive in R0-R3;
// the result code goes back in R0 and output handles in R1, following the
// guest ABI. Failures are returned to the guest as kernel result codes.
func (k *Kernel) HandleSVC(c *cpu.Cpu, index uint32) {
	switch index {
	case svcExitThread:
		k.ExitThread()

	case svcSleepThread:
		ns := int64(c.Reg(0)) | int64(c.Reg(1))<<32
		k.SleepThread(ns)

	case svcCreateMutex:
		_, h := k.CreateMutex("guest_mutex", c.Reg(1) != 0)
		c.SetReg(0, uint32(ResultSuccess))
		c.SetReg(1, uint32(h))

	case svcReleaseMutex:
		m, result := resolveAs[*Mutex](k, Handle(c.Reg(0)), KindMutex)
		if result.IsError() {
			c.SetReg(0, uint32(result))
			return
		}
		m.Release()
		c.SetReg(0, uint32(ResultSuccess))

	case svcCreateEvent:
		resetType := ResetOneShot
		if c.Reg(1) != 0 {
			resetType = ResetSticky
		}
		_, h := k.CreateEvent("guest_event", resetType)
		c.SetReg(0, uint32(ResultSuccess))
		c.SetReg(1, uint32(h))

	case svcSignalEvent:
		e, result := resolveAs[*Event](k, Handle(c.Reg(0)), KindEvent)
		if result.IsError() {
			c.SetReg(0, uint32(result))
			return
		}
		e.Signal()
		c.SetReg(0, uint32(ResultSuccess))

	case svcClearEvent:
		e, result := resolveAs[*Event](k, Handle(c.Reg(0)), KindEvent)
		if result.IsError() {
			c.SetReg(0, uint32(result))
			return
		}
		e.Clear()
		c.SetReg(0, uint32(ResultSuccess))

	case svcCloseHandle:
		c.SetReg(0, uint32(k.handleTable.Close(Handle(c.Reg(0)))))

	case svcDuplicateHandle:
		dup, result := k.handleTable.Duplicate(Handle(c.Reg(1)))
		c.SetReg(0, uint32(result))
		c.SetReg(1, uint32(dup))

	case svcGetSystemTick:
		tick := k.timing.GetTicks()
		c.SetReg(0, uint32(tick))
		c.SetReg(1, uint32(tick>>32))

	case svcOutputDebugString:
		addr, length := c.Reg(0), c.Reg(1)
		k.logger.Printf("guest: %s", k.mem.ReadBlock(addr, length))
		c.SetReg(0, uint32(ResultSuccess))

	default:
		k.logger.Printf("unimplemented kernel call 0x%02X at PC=0x%08X",
			index, c.GetPC())
		c.SetReg(0, uint32(ResultNotFound))
	}
}

// resolveAs resolves a handle and checks the object's kind tag before the
// concrete-type assertion.
func resolveAs[T Object](k *Kernel, handle Handle, kind ObjectKind) (T, Result) {
	var zero T
	obj := k.handleTable.GetGeneric(handle)
	if obj == nil {
		return zero, ResultInvalidHandle
	}
	if obj.Kind() != kind {
		return zero, ResultWrongType
	}
	return obj.(T), ResultSuccess
}
