// Package insts provides guest instruction definitions and decoding.
//
// The guest CPU is a 32-bit ARM application core. This package decodes the
// subset of the ARM instruction set the translation front end supports:
//   - Data Processing (immediate and register operands, register shifts)
//   - Multiply: MUL, MLA
//   - Wide moves: MOVW, MOVT
//   - Loads/stores: word, byte, halfword and signed variants
//   - Branches: B, BL, BX
//   - SVC (kernel call) and CP15 coprocessor moves (MRC, MCR)
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0xE2810001) // ADD R0, R1, #1
package insts

// Op represents a guest opcode.
type Op uint16

// Guest opcodes.
const (
	OpUnknown Op = iota

	// Data processing
	OpAND
	OpEOR
	OpSUB
	OpRSB
	OpADD
	OpADC
	OpSBC
	OpRSC
	OpTST
	OpTEQ
	OpCMP
	OpCMN
	OpORR
	OpMOV
	OpBIC
	OpMVN

	// Multiply
	OpMUL
	OpMLA

	// Wide moves
	OpMOVW
	OpMOVT

	// Branches
	OpB
	OpBL
	OpBX

	// Loads and stores
	OpLDR
	OpSTR
	OpLDRB
	OpSTRB
	OpLDRH
	OpSTRH
	OpLDRSB
	OpLDRSH

	// System
	OpSVC
	OpMRC
	OpMCR
)

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown      Format = iota
	FormatDataProc            // Data processing (immediate or register operand)
	FormatMultiply            // MUL, MLA
	FormatMoveWide            // MOVW, MOVT
	FormatLoadStore           // Word/byte load and store
	FormatLoadStoreMisc       // Halfword and signed load/store
	FormatBranch              // B, BL
	FormatBranchReg           // BX
	FormatSVC                 // Supervisor call
	FormatCoproc              // MRC, MCR
)

// Cond represents an ARM condition code, tested against CPSR NZCV.
type Cond uint8

// Condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always
	CondNV Cond = 0b1111 // Never (reserved encoding space)
)

// ShiftType represents a barrel-shifter operation for register operands.
type ShiftType uint8

// Shift types.
const (
	ShiftLSL ShiftType = 0b00 // Logical shift left
	ShiftLSR ShiftType = 0b01 // Logical shift right
	ShiftASR ShiftType = 0b10 // Arithmetic shift right
	ShiftROR ShiftType = 0b11 // Rotate right
)

// Instruction represents a decoded guest instruction.
type Instruction struct {
	Raw    uint32 // Original encoding
	Op     Op     // Operation code
	Format Format // Encoding format
	Cond   Cond   // Condition code (CondAL for unconditional)

	SetFlags bool  // true if the instruction updates CPSR flags (S bit)
	Rd       uint8 // Destination register
	Rn       uint8 // First source register (accumulator for MLA)
	Rm       uint8 // Second source register
	Rs       uint8 // Shift-amount register (register-shifted operands, MUL/MLA)

	// Immediate operand. For data processing the value is pre-rotated;
	// ShiftAmount then holds the rotation so the executor can recover the
	// shifter carry-out.
	HasImm bool
	Imm    uint32

	ShiftType   ShiftType
	ShiftAmount uint8
	RegShift    bool // shift amount comes from Rs rather than ShiftAmount

	// Load/store addressing
	PreIndex  bool // offset applied before the access (P bit)
	Up        bool // offset is added rather than subtracted (U bit)
	Writeback bool // base register updated (W bit, or post-indexed)

	// Branch target, relative to the fetch address plus eight
	BranchOffset int32

	// Coprocessor fields (MRC/MCR)
	Coproc uint8
	Opc1   uint8
	Opc2   uint8
	CRn    uint8
	CRm    uint8
}

// IsLoad reports whether the instruction reads memory into Rd.
func (i *Instruction) IsLoad() bool {
	switch i.Op {
	case OpLDR, OpLDRB, OpLDRH, OpLDRSB, OpLDRSH:
		return true
	}
	return false
}

// IsBlockEnd reports whether the instruction terminates a translation
// block: any branch, a kernel call, an undecodable word, or any write to
// R15 (ALU result or load).
func (i *Instruction) IsBlockEnd() bool {
	switch i.Format {
	case FormatBranch, FormatBranchReg, FormatSVC, FormatUnknown:
		return true
	case FormatLoadStore, FormatLoadStoreMisc:
		// LDR pc, [...] is the long-jump / return-via-literal idiom.
		return i.IsLoad() && i.Rd == 15
	}
	// Writes to R15 through the ALU also redirect control flow.
	return i.Format == FormatDataProc && i.Rd == 15 && i.Op != OpTST &&
		i.Op != OpTEQ && i.Op != OpCMP && i.Op != OpCMN
}
