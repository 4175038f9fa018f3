package cpu

// Context is a full snapshot of one guest execution context. The kernel
// saves the running thread's context here on preemption and restores another
// thread's context bit-for-bit before resuming.
type Context struct {
	// Regs holds R0-R15; Regs[15] is the program counter.
	Regs [16]uint32
	Cpsr uint32

	// VFP state
	ExtRegs [64]uint32
	Fpscr   uint32
	Fpexc   uint32
}

// SaveContext copies the live execution state into ctx.
func (c *Cpu) SaveContext(ctx *Context) {
	ctx.Regs = c.regs
	ctx.Cpsr = c.cpsr
	ctx.ExtRegs = c.extRegs
	ctx.Fpscr = c.fpscr
	ctx.Fpexc = c.fpexc
}

// LoadContext replaces the live execution state with ctx.
func (c *Cpu) LoadContext(ctx *Context) {
	c.regs = ctx.Regs
	c.cpsr = ctx.Cpsr
	c.extRegs = ctx.ExtRegs
	c.fpscr = ctx.Fpscr
	c.fpexc = ctx.Fpexc
}

// GetPC returns the program counter.
func (c *Cpu) GetPC() uint32 {
	return c.regs[15]
}

// SetPC sets the program counter.
func (c *Cpu) SetPC(pc uint32) {
	c.regs[15] = pc
}

// Reg returns general register r.
func (c *Cpu) Reg(r int) uint32 {
	return c.regs[r]
}

// SetReg sets general register r.
func (c *Cpu) SetReg(r int, value uint32) {
	c.regs[r] = value
}

// Cpsr returns the current program status register.
func (c *Cpu) Cpsr() uint32 {
	return c.cpsr
}

// SetCpsr sets the current program status register.
func (c *Cpu) SetCpsr(value uint32) {
	c.cpsr = value
}

// VFPReg returns VFP extension register r.
func (c *Cpu) VFPReg(r int) uint32 {
	return c.extRegs[r]
}

// SetVFPReg sets VFP extension register r.
func (c *Cpu) SetVFPReg(r int, value uint32) {
	c.extRegs[r] = value
}

// CP15Read returns system control register CRn.
func (c *Cpu) CP15Read(crn uint8) uint32 {
	return c.cp15[crn&0xF]
}

// CP15Write sets system control register CRn.
func (c *Cpu) CP15Write(crn uint8, value uint32) {
	c.cp15[crn&0xF] = value
}
