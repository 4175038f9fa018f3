package insts

import "testing"

func TestDecodeDataProcessing(t *testing.T) {
	d := NewDecoder()

	tests := []struct {
		name     string
		word     uint32
		op       Op
		rd, rn   uint8
		setFlags bool
	}{
		{"ADD R0, R1, #1", 0xE2810001, OpADD, 0, 1, false},
		{"SUBS R2, R3, #4", 0xE2532004, OpSUB, 2, 3, true},
		{"MOV R0, R1", 0xE1A00001, OpMOV, 0, 0, false},
		{"CMP R1, #0", 0xE3510000, OpCMP, 0, 1, true},
		{"ORR R4, R4, #0xFF", 0xE38440FF, OpORR, 4, 4, false},
		{"MVN R5, #0", 0xE3E05000, OpMVN, 5, 0, false},
	}

	for _, tt := range tests {
		inst := d.Decode(tt.word)
		if inst.Op != tt.op {
			t.Errorf("%s: op = %v, want %v", tt.name, inst.Op, tt.op)
		}
		if inst.Format != FormatDataProc {
			t.Errorf("%s: format = %v, want FormatDataProc", tt.name, inst.Format)
		}
		if inst.Rd != tt.rd || inst.Rn != tt.rn {
			t.Errorf("%s: rd/rn = %d/%d, want %d/%d", tt.name, inst.Rd, inst.Rn, tt.rd, tt.rn)
		}
		if inst.SetFlags != tt.setFlags {
			t.Errorf("%s: setFlags = %v, want %v", tt.name, inst.SetFlags, tt.setFlags)
		}
	}
}

func TestDecodeRotatedImmediate(t *testing.T) {
	d := NewDecoder()

	// MOV R0, #0xFF000000 encodes as 0xFF rotated right by 8.
	inst := d.Decode(0xE3A004FF)
	if inst.Op != OpMOV {
		t.Fatalf("op = %v, want OpMOV", inst.Op)
	}
	if !inst.HasImm || inst.Imm != 0xFF000000 {
		t.Errorf("imm = %#x, want 0xFF000000", inst.Imm)
	}
	if inst.ShiftAmount != 8 {
		t.Errorf("rotation = %d, want 8", inst.ShiftAmount)
	}
}

func TestDecodeBranches(t *testing.T) {
	d := NewDecoder()

	tests := []struct {
		name   string
		word   uint32
		op     Op
		offset int32
	}{
		{"B +0", 0xEA000000, OpB, 0},
		{"B +4", 0xEA000001, OpB, 4},
		{"B -8", 0xEAFFFFFE, OpB, -8},
		{"BL +64", 0xEB000010, OpBL, 64},
		{"BNE -4", 0x1AFFFFFF, OpB, -4},
	}

	for _, tt := range tests {
		inst := d.Decode(tt.word)
		if inst.Op != tt.op {
			t.Errorf("%s: op = %v, want %v", tt.name, inst.Op, tt.op)
		}
		if inst.BranchOffset != tt.offset {
			t.Errorf("%s: offset = %d, want %d", tt.name, inst.BranchOffset, tt.offset)
		}
		if !inst.IsBlockEnd() {
			t.Errorf("%s: expected block end", tt.name)
		}
	}

	bx := d.Decode(0xE12FFF1E) // BX LR
	if bx.Op != OpBX || bx.Rm != 14 {
		t.Errorf("BX LR: op/rm = %v/%d, want OpBX/14", bx.Op, bx.Rm)
	}
}

func TestDecodeConditionCodes(t *testing.T) {
	d := NewDecoder()

	if c := d.Decode(0x0A000000).Cond; c != CondEQ {
		t.Errorf("BEQ cond = %v, want CondEQ", c)
	}
	if c := d.Decode(0xE2810001).Cond; c != CondAL {
		t.Errorf("ADD cond = %v, want CondAL", c)
	}
	if inst := d.Decode(0xF2810001); inst.Op != OpUnknown {
		t.Errorf("NV-space word decoded to %v, want OpUnknown", inst.Op)
	}
}

func TestDecodeLoadStore(t *testing.T) {
	d := NewDecoder()

	tests := []struct {
		name      string
		word      uint32
		op        Op
		rd, rn    uint8
		imm       uint32
		preIndex  bool
		up        bool
		writeback bool
	}{
		{"LDR R0, [R1, #4]", 0xE5910004, OpLDR, 0, 1, 4, true, true, false},
		{"STR R2, [R3]", 0xE5832000, OpSTR, 2, 3, 0, true, true, false},
		{"LDRB R4, [R5, #-1]", 0xE5554001, OpLDRB, 4, 5, 1, true, false, false},
		{"STRB R2, [R3], #1", 0xE4C32001, OpSTRB, 2, 3, 1, false, true, true},
	}

	for _, tt := range tests {
		inst := d.Decode(tt.word)
		if inst.Op != tt.op {
			t.Errorf("%s: op = %v, want %v", tt.name, inst.Op, tt.op)
		}
		if inst.Rd != tt.rd || inst.Rn != tt.rn || inst.Imm != tt.imm {
			t.Errorf("%s: rd/rn/imm = %d/%d/%d, want %d/%d/%d",
				tt.name, inst.Rd, inst.Rn, inst.Imm, tt.rd, tt.rn, tt.imm)
		}
		if inst.PreIndex != tt.preIndex || inst.Up != tt.up || inst.Writeback != tt.writeback {
			t.Errorf("%s: P/U/W = %v/%v/%v, want %v/%v/%v", tt.name,
				inst.PreIndex, inst.Up, inst.Writeback, tt.preIndex, tt.up, tt.writeback)
		}
	}
}

func TestDecodeLoadStoreMisc(t *testing.T) {
	d := NewDecoder()

	tests := []struct {
		name string
		word uint32
		op   Op
	}{
		{"LDRH R0, [R1, #2]", 0xE1D100B2, OpLDRH},
		{"STRH R0, [R1, #2]", 0xE1C100B2, OpSTRH},
		{"LDRSB R0, [R1]", 0xE1D100D0, OpLDRSB},
		{"LDRSH R0, [R1]", 0xE1D100F0, OpLDRSH},
	}

	for _, tt := range tests {
		inst := d.Decode(tt.word)
		if inst.Op != tt.op {
			t.Errorf("%s: op = %v, want %v", tt.name, inst.Op, tt.op)
		}
		if inst.Format != FormatLoadStoreMisc {
			t.Errorf("%s: format = %v, want FormatLoadStoreMisc", tt.name, inst.Format)
		}
	}
}

func TestDecodeWideMoves(t *testing.T) {
	d := NewDecoder()

	movw := d.Decode(0xE3010234) // MOVW R0, #0x1234
	if movw.Op != OpMOVW || movw.Rd != 0 || movw.Imm != 0x1234 {
		t.Errorf("MOVW: op/rd/imm = %v/%d/%#x", movw.Op, movw.Rd, movw.Imm)
	}

	movt := d.Decode(0xE3450678) // MOVT R0, #0x5678
	if movt.Op != OpMOVT || movt.Imm != 0x5678 {
		t.Errorf("MOVT: op/imm = %v/%#x", movt.Op, movt.Imm)
	}
}

func TestDecodeMultiply(t *testing.T) {
	d := NewDecoder()

	mul := d.Decode(0xE0000291) // MUL R0, R1, R2
	if mul.Op != OpMUL || mul.Rd != 0 || mul.Rm != 1 || mul.Rs != 2 {
		t.Errorf("MUL: op/rd/rm/rs = %v/%d/%d/%d", mul.Op, mul.Rd, mul.Rm, mul.Rs)
	}

	mla := d.Decode(0xE0203291) // MLA R0, R1, R2, R3
	if mla.Op != OpMLA || mla.Rn != 3 {
		t.Errorf("MLA: op/acc = %v/%d", mla.Op, mla.Rn)
	}
}

func TestDecodeSystem(t *testing.T) {
	d := NewDecoder()

	svc := d.Decode(0xEF000023)
	if svc.Op != OpSVC || svc.Imm != 0x23 {
		t.Errorf("SVC: op/imm = %v/%#x", svc.Op, svc.Imm)
	}
	if !svc.IsBlockEnd() {
		t.Error("SVC: expected block end")
	}

	mrc := d.Decode(0xEE110F10) // MRC p15, 0, R0, c1, c0, 0
	if mrc.Op != OpMRC || mrc.Coproc != 15 || mrc.CRn != 1 || mrc.Rd != 0 {
		t.Errorf("MRC: op/cp/crn/rd = %v/%d/%d/%d", mrc.Op, mrc.Coproc, mrc.CRn, mrc.Rd)
	}

	mcr := d.Decode(0xEE010F10) // MCR p15, 0, R0, c1, c0, 0
	if mcr.Op != OpMCR {
		t.Errorf("MCR: op = %v", mcr.Op)
	}
}

func TestDecodeUnknown(t *testing.T) {
	d := NewDecoder()

	// LDRD sits in the misc load/store space but is not translated.
	if inst := d.Decode(0xE1C100D0); inst.Op != OpUnknown {
		t.Errorf("STRD-space word decoded to %v, want OpUnknown", inst.Op)
	}
	if !d.Decode(0xE1C100D0).IsBlockEnd() {
		t.Error("unknown word should end a block")
	}
}
