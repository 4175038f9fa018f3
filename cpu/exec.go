package cpu

import (
	"math/bits"

	"github.com/sarchlab/palmsim/insts"
)

// CPSR flag bits.
const (
	flagN = 1 << 31
	flagZ = 1 << 30
	flagC = 1 << 29
	flagV = 1 << 28
)

// executeBlock runs one translated block and returns the number of executed
// instructions. On a fault the program counter is left at the faulting
// instruction.
func (c *Cpu) executeBlock(b *TransBlock) uint64 {
	pc := b.Addr
	var executed uint64

	for _, inst := range b.Insts {
		executed++
		if !c.condPassed(inst.Cond) {
			pc += 4
			continue
		}
		next, ok := c.executeInst(inst, pc)
		if !ok {
			c.regs[15] = pc
			return executed
		}
		// Any control-flow redirect ends the block; the lexical successors
		// must not run.
		if next != pc+4 {
			c.regs[15] = next
			return executed
		}
		pc = next
		if c.haltRequested {
			break
		}
	}

	c.regs[15] = pc
	return executed
}

func (c *Cpu) condPassed(cond insts.Cond) bool {
	n := c.cpsr&flagN != 0
	z := c.cpsr&flagZ != 0
	cf := c.cpsr&flagC != 0
	v := c.cpsr&flagV != 0

	switch cond {
	case insts.CondEQ:
		return z
	case insts.CondNE:
		return !z
	case insts.CondCS:
		return cf
	case insts.CondCC:
		return !cf
	case insts.CondMI:
		return n
	case insts.CondPL:
		return !n
	case insts.CondVS:
		return v
	case insts.CondVC:
		return !v
	case insts.CondHI:
		return cf && !z
	case insts.CondLS:
		return !cf || z
	case insts.CondGE:
		return n == v
	case insts.CondLT:
		return n != v
	case insts.CondGT:
		return !z && n == v
	case insts.CondLE:
		return z || n != v
	default:
		return true
	}
}

// readReg reads register r as the instruction at pc sees it. R15 reads as
// the fetch address plus eight.
func (c *Cpu) readReg(r uint8, pc uint32) uint32 {
	if r == 15 {
		return pc + 8
	}
	return c.regs[r]
}

// executeInst executes one instruction whose condition passed. It returns
// the next program counter and false if an unrecoverable fault was raised.
func (c *Cpu) executeInst(inst *insts.Instruction, pc uint32) (uint32, bool) {
	switch inst.Format {
	case insts.FormatDataProc:
		return c.executeDataProc(inst, pc)
	case insts.FormatMultiply:
		c.executeMultiply(inst, pc)
		return pc + 4, true
	case insts.FormatMoveWide:
		c.executeMoveWide(inst)
		return pc + 4, true
	case insts.FormatLoadStore, insts.FormatLoadStoreMisc:
		return c.executeLoadStore(inst, pc)
	case insts.FormatBranch:
		if inst.Op == insts.OpBL {
			c.regs[14] = pc + 4
		}
		return uint32(int64(pc) + 8 + int64(inst.BranchOffset)), true
	case insts.FormatBranchReg:
		target := c.readReg(inst.Rm, pc)
		if target&1 != 0 {
			c.raiseFault(pc, FaultThumbUnsupported)
			return pc, false
		}
		return target, true
	case insts.FormatSVC:
		c.regs[15] = pc + 4
		if c.svcHandler != nil {
			c.svcHandler.HandleSVC(c, inst.Imm)
		}
		return c.regs[15], true
	case insts.FormatCoproc:
		return c.executeCoproc(inst, pc)
	default:
		c.raiseFault(pc, FaultUndefinedInstruction)
		return pc, false
	}
}

// operand2 evaluates the shifter operand and its carry-out.
func (c *Cpu) operand2(inst *insts.Instruction, pc uint32) (uint32, bool) {
	carryIn := c.cpsr&flagC != 0

	if inst.HasImm {
		if inst.ShiftAmount == 0 {
			return inst.Imm, carryIn
		}
		return inst.Imm, inst.Imm&(1<<31) != 0
	}

	value := c.readReg(inst.Rm, pc)
	if inst.RegShift {
		amount := c.readReg(inst.Rs, pc) & 0xFF
		return regShift(value, inst.ShiftType, amount, carryIn)
	}
	return immShift(value, inst.ShiftType, uint32(inst.ShiftAmount), carryIn)
}

// immShift applies an immediate-amount shift, with the architectural
// amount-zero special cases (LSR/ASR #0 mean #32, ROR #0 means RRX).
func immShift(value uint32, st insts.ShiftType, amount uint32, carryIn bool) (uint32, bool) {
	switch st {
	case insts.ShiftLSL:
		if amount == 0 {
			return value, carryIn
		}
		return value << amount, value&(1<<(32-amount)) != 0
	case insts.ShiftLSR:
		if amount == 0 {
			return 0, value&(1<<31) != 0
		}
		return value >> amount, value&(1<<(amount-1)) != 0
	case insts.ShiftASR:
		if amount == 0 {
			amount = 32
		}
		if amount >= 32 {
			if value&(1<<31) != 0 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
		return uint32(int32(value) >> amount), value&(1<<(amount-1)) != 0
	default: // ROR
		if amount == 0 {
			// RRX: rotate right by one through carry.
			out := value >> 1
			if carryIn {
				out |= 1 << 31
			}
			return out, value&1 != 0
		}
		out := bits.RotateLeft32(value, -int(amount))
		return out, out&(1<<31) != 0
	}
}

// regShift applies a register-amount shift. Amount zero leaves the value
// and carry unchanged; amounts of 32 and beyond follow the architectural
// definitions.
func regShift(value uint32, st insts.ShiftType, amount uint32, carryIn bool) (uint32, bool) {
	if amount == 0 {
		return value, carryIn
	}
	switch st {
	case insts.ShiftLSL:
		switch {
		case amount < 32:
			return value << amount, value&(1<<(32-amount)) != 0
		case amount == 32:
			return 0, value&1 != 0
		default:
			return 0, false
		}
	case insts.ShiftLSR:
		switch {
		case amount < 32:
			return value >> amount, value&(1<<(amount-1)) != 0
		case amount == 32:
			return 0, value&(1<<31) != 0
		default:
			return 0, false
		}
	case insts.ShiftASR:
		if amount >= 32 {
			if value&(1<<31) != 0 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
		return uint32(int32(value) >> amount), value&(1<<(amount-1)) != 0
	default: // ROR
		rot := amount & 31
		if rot == 0 {
			return value, value&(1<<31) != 0
		}
		out := bits.RotateLeft32(value, -int(rot))
		return out, out&(1<<31) != 0
	}
}

func (c *Cpu) executeDataProc(inst *insts.Instruction, pc uint32) (uint32, bool) {
	op2, shCarry := c.operand2(inst, pc)
	n := c.readReg(inst.Rn, pc)
	carryIn := uint32(0)
	if c.cpsr&flagC != 0 {
		carryIn = 1
	}

	var result uint32
	writeResult := true
	logical := false

	switch inst.Op {
	case insts.OpAND:
		result, logical = n&op2, true
	case insts.OpEOR:
		result, logical = n^op2, true
	case insts.OpORR:
		result, logical = n|op2, true
	case insts.OpBIC:
		result, logical = n&^op2, true
	case insts.OpMOV:
		result, logical = op2, true
	case insts.OpMVN:
		result, logical = ^op2, true
	case insts.OpTST:
		result, logical, writeResult = n&op2, true, false
	case insts.OpTEQ:
		result, logical, writeResult = n^op2, true, false
	case insts.OpADD:
		result = c.addWithFlags(inst.SetFlags, n, op2, 0)
	case insts.OpADC:
		result = c.addWithFlags(inst.SetFlags, n, op2, carryIn)
	case insts.OpSUB:
		result = c.addWithFlags(inst.SetFlags, n, ^op2, 1)
	case insts.OpSBC:
		result = c.addWithFlags(inst.SetFlags, n, ^op2, carryIn)
	case insts.OpRSB:
		result = c.addWithFlags(inst.SetFlags, op2, ^n, 1)
	case insts.OpRSC:
		result = c.addWithFlags(inst.SetFlags, op2, ^n, carryIn)
	case insts.OpCMP:
		result = c.addWithFlags(true, n, ^op2, 1)
		writeResult = false
	case insts.OpCMN:
		result = c.addWithFlags(true, n, op2, 0)
		writeResult = false
	}

	if logical && inst.SetFlags {
		c.setNZ(result)
		c.setFlag(flagC, shCarry)
	}

	if !writeResult {
		return pc + 4, true
	}
	if inst.Rd == 15 {
		return result, true
	}
	c.regs[inst.Rd] = result
	return pc + 4, true
}

// addWithFlags computes a + b + carry and, when setFlags is set, updates
// NZCV. Subtraction is expressed as a + ^b + 1 so the carry flag gets the
// architectural not-borrow meaning for free.
func (c *Cpu) addWithFlags(setFlags bool, a, b, carry uint32) uint32 {
	sum := uint64(a) + uint64(b) + uint64(carry)
	result := uint32(sum)
	if setFlags {
		c.setNZ(result)
		c.setFlag(flagC, sum > 0xFFFFFFFF)
		c.setFlag(flagV, (^(a^b)&(a^result))&(1<<31) != 0)
	}
	return result
}

func (c *Cpu) executeMultiply(inst *insts.Instruction, pc uint32) {
	result := c.readReg(inst.Rm, pc) * c.readReg(inst.Rs, pc)
	if inst.Op == insts.OpMLA {
		result += c.readReg(inst.Rn, pc)
	}
	c.regs[inst.Rd] = result
	if inst.SetFlags {
		c.setNZ(result)
	}
}

func (c *Cpu) executeMoveWide(inst *insts.Instruction) {
	if inst.Op == insts.OpMOVT {
		c.regs[inst.Rd] = c.regs[inst.Rd]&0xFFFF | inst.Imm<<16
		return
	}
	c.regs[inst.Rd] = inst.Imm
}

func (c *Cpu) executeLoadStore(inst *insts.Instruction, pc uint32) (uint32, bool) {
	base := c.readReg(inst.Rn, pc)

	var offset uint32
	if inst.HasImm {
		offset = inst.Imm
	} else {
		offset, _ = immShift(c.readReg(inst.Rm, pc), inst.ShiftType,
			uint32(inst.ShiftAmount), c.cpsr&flagC != 0)
	}

	applied := base + offset
	if !inst.Up {
		applied = base - offset
	}

	addr := base
	if inst.PreIndex {
		addr = applied
	}

	var loaded uint32
	switch inst.Op {
	case insts.OpLDR:
		loaded = c.bus.Read32(addr)
	case insts.OpLDRB:
		loaded = uint32(c.bus.Read8(addr))
	case insts.OpLDRH:
		loaded = uint32(c.bus.Read16(addr))
	case insts.OpLDRSB:
		loaded = uint32(int32(int8(c.bus.Read8(addr))))
	case insts.OpLDRSH:
		loaded = uint32(int32(int16(c.bus.Read16(addr))))
	case insts.OpSTR:
		c.bus.Write32(addr, c.readReg(inst.Rd, pc))
	case insts.OpSTRB:
		c.bus.Write8(addr, uint8(c.readReg(inst.Rd, pc)))
	case insts.OpSTRH:
		c.bus.Write16(addr, uint16(c.readReg(inst.Rd, pc)))
	}

	if inst.Writeback && inst.Rn != 15 {
		c.regs[inst.Rn] = applied
	}

	if inst.IsLoad() {
		if inst.Rd == 15 {
			return loaded, true
		}
		c.regs[inst.Rd] = loaded
	}
	return pc + 4, true
}

func (c *Cpu) executeCoproc(inst *insts.Instruction, pc uint32) (uint32, bool) {
	// Only the system control coprocessor is modeled.
	if inst.Coproc != 15 {
		c.raiseFault(pc, FaultCoprocUnsupported)
		return pc, false
	}
	if inst.Op == insts.OpMRC {
		if inst.Rd != 15 {
			c.regs[inst.Rd] = c.cp15[inst.CRn]
		}
	} else {
		c.cp15[inst.CRn] = c.readReg(inst.Rd, pc)
	}
	return pc + 4, true
}

func (c *Cpu) setNZ(result uint32) {
	c.setFlag(flagN, result&(1<<31) != 0)
	c.setFlag(flagZ, result == 0)
}

func (c *Cpu) setFlag(flag uint32, on bool) {
	if on {
		c.cpsr |= flag
	} else {
		c.cpsr &^= flag
	}
}
