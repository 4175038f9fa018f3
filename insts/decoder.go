package insts

import "math/bits"

// dpOps maps the four-bit data-processing opcode field to an Op.
var dpOps = [16]Op{
	OpAND, OpEOR, OpSUB, OpRSB, OpADD, OpADC, OpSBC, OpRSC,
	OpTST, OpTEQ, OpCMP, OpCMN, OpORR, OpMOV, OpBIC, OpMVN,
}

// Decoder decodes guest machine words into Instruction values.
type Decoder struct{}

// NewDecoder creates a new instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a single 32-bit instruction word. Undecodable words are
// returned with OpUnknown/FormatUnknown; classifying them is the caller's
// job (the execution unit treats them as unrecoverable faults).
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{
		Raw:    word,
		Op:     OpUnknown,
		Format: FormatUnknown,
		Cond:   Cond(word >> 28),
	}

	// The 0b1111 condition space holds unconditional extensions this core
	// does not translate.
	if inst.Cond == CondNV {
		return inst
	}

	switch {
	case word&0x0F000000 == 0x0F000000:
		inst.Op = OpSVC
		inst.Format = FormatSVC
		inst.HasImm = true
		inst.Imm = word & 0x00FFFFFF

	case word&0x0F000010 == 0x0E000010:
		d.decodeCoproc(word, inst)

	case word&0x0E000000 == 0x0A000000:
		inst.Format = FormatBranch
		inst.Op = OpB
		if word&(1<<24) != 0 {
			inst.Op = OpBL
		}
		// 24-bit signed word offset, scaled to bytes.
		inst.BranchOffset = int32(word<<8) >> 6

	case word&0x0FFFFFF0 == 0x012FFF10:
		inst.Op = OpBX
		inst.Format = FormatBranchReg
		inst.Rm = uint8(word & 0xF)

	case word&0x0FF00000 == 0x03000000 || word&0x0FF00000 == 0x03400000:
		inst.Format = FormatMoveWide
		inst.Op = OpMOVW
		if word&0x0FF00000 == 0x03400000 {
			inst.Op = OpMOVT
		}
		inst.Rd = uint8((word >> 12) & 0xF)
		inst.HasImm = true
		inst.Imm = ((word >> 4) & 0xF000) | (word & 0x0FFF)

	case word&0x0FC000F0 == 0x00000090:
		inst.Format = FormatMultiply
		inst.Op = OpMUL
		if word&(1<<21) != 0 {
			inst.Op = OpMLA
		}
		inst.SetFlags = word&(1<<20) != 0
		inst.Rd = uint8((word >> 16) & 0xF)
		inst.Rn = uint8((word >> 12) & 0xF)
		inst.Rs = uint8((word >> 8) & 0xF)
		inst.Rm = uint8(word & 0xF)

	case word&0x0E000090 == 0x00000090 && word&0x60 != 0:
		d.decodeLoadStoreMisc(word, inst)

	case word&0x0C000000 == 0x00000000:
		d.decodeDataProc(word, inst)

	case word&0x0C000000 == 0x04000000:
		d.decodeLoadStore(word, inst)
	}

	return inst
}

func (d *Decoder) decodeDataProc(word uint32, inst *Instruction) {
	opcode := (word >> 21) & 0xF
	setFlags := word&(1<<20) != 0

	// Opcodes 8-11 without the S bit are the MRS/MSR/BX encoding space.
	if opcode >= 8 && opcode <= 11 && !setFlags {
		return
	}

	inst.Format = FormatDataProc
	inst.Op = dpOps[opcode]
	inst.SetFlags = setFlags
	inst.Rn = uint8((word >> 16) & 0xF)
	inst.Rd = uint8((word >> 12) & 0xF)

	if word&(1<<25) != 0 {
		// Immediate operand: an 8-bit value rotated right by twice the
		// four-bit rotation field. Stored pre-rotated; the rotation is kept
		// so the executor can recover the shifter carry-out.
		rot := uint8((word>>8)&0xF) * 2
		inst.HasImm = true
		inst.Imm = bits.RotateLeft32(word&0xFF, -int(rot))
		inst.ShiftAmount = rot
		return
	}

	inst.Rm = uint8(word & 0xF)
	inst.ShiftType = ShiftType((word >> 5) & 0x3)
	if word&(1<<4) != 0 {
		// Register-specified shift amount.
		inst.RegShift = true
		inst.Rs = uint8((word >> 8) & 0xF)
		return
	}
	inst.ShiftAmount = uint8((word >> 7) & 0x1F)
}

func (d *Decoder) decodeLoadStore(word uint32, inst *Instruction) {
	load := word&(1<<20) != 0
	byteOp := word&(1<<22) != 0

	inst.Format = FormatLoadStore
	switch {
	case load && byteOp:
		inst.Op = OpLDRB
	case load:
		inst.Op = OpLDR
	case byteOp:
		inst.Op = OpSTRB
	default:
		inst.Op = OpSTR
	}

	inst.Rn = uint8((word >> 16) & 0xF)
	inst.Rd = uint8((word >> 12) & 0xF)
	inst.PreIndex = word&(1<<24) != 0
	inst.Up = word&(1<<23) != 0
	inst.Writeback = word&(1<<21) != 0 || !inst.PreIndex

	if word&(1<<25) == 0 {
		inst.HasImm = true
		inst.Imm = word & 0xFFF
		return
	}

	// Register offset with an immediate shift. A set bit 4 here is the
	// media instruction space, which is not translated.
	if word&(1<<4) != 0 {
		inst.Op = OpUnknown
		inst.Format = FormatUnknown
		return
	}
	inst.Rm = uint8(word & 0xF)
	inst.ShiftType = ShiftType((word >> 5) & 0x3)
	inst.ShiftAmount = uint8((word >> 7) & 0x1F)
}

func (d *Decoder) decodeLoadStoreMisc(word uint32, inst *Instruction) {
	load := word&(1<<20) != 0
	sh := (word >> 5) & 0x3

	switch {
	case load && sh == 0b01:
		inst.Op = OpLDRH
	case load && sh == 0b10:
		inst.Op = OpLDRSB
	case load && sh == 0b11:
		inst.Op = OpLDRSH
	case !load && sh == 0b01:
		inst.Op = OpSTRH
	default:
		// LDRD/STRD are not translated.
		return
	}

	inst.Format = FormatLoadStoreMisc
	inst.Rn = uint8((word >> 16) & 0xF)
	inst.Rd = uint8((word >> 12) & 0xF)
	inst.PreIndex = word&(1<<24) != 0
	inst.Up = word&(1<<23) != 0
	inst.Writeback = word&(1<<21) != 0 || !inst.PreIndex

	if word&(1<<22) != 0 {
		inst.HasImm = true
		inst.Imm = ((word >> 4) & 0xF0) | (word & 0xF)
		return
	}
	inst.Rm = uint8(word & 0xF)
}

func (d *Decoder) decodeCoproc(word uint32, inst *Instruction) {
	inst.Format = FormatCoproc
	inst.Op = OpMCR
	if word&(1<<20) != 0 {
		inst.Op = OpMRC
	}
	inst.Opc1 = uint8((word >> 21) & 0x7)
	inst.CRn = uint8((word >> 16) & 0xF)
	inst.Rd = uint8((word >> 12) & 0xF)
	inst.Coproc = uint8((word >> 8) & 0xF)
	inst.Opc2 = uint8((word >> 5) & 0x7)
	inst.CRm = uint8(word & 0xF)
}
