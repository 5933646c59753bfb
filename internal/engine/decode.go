package engine

// Opcode field values (bits [6:0] of the encoding).
const (
	opLoad    = 0b0000011
	opMiscMem = 0b0001111
	opOpImm   = 0b0010011
	opAuipc   = 0b0010111
	opOpImm32 = 0b0011011
	opStore   = 0b0100011
	opOp      = 0b0110011
	opLui     = 0b0110111
	opOp32    = 0b0111011
	opBranch  = 0b1100011
	opJalr    = 0b1100111
	opJal     = 0b1101111
	opSystem  = 0b1110011
)

// Kind tags every decoded instruction. The executor switches on it exactly
// once; no other part of the engine inspects an encoding's opcode bits
// again after Decode returns.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindLui
	KindAuipc
	KindJal
	KindJalr
	KindBranch
	KindLoad
	KindStore
	KindOpImm
	KindOp
	KindOpImm32
	KindOp32
	KindFence
	KindFenceI
	KindEcall
	KindEbreak
	KindMret
	KindSret
	KindWfi
	KindSfenceVMA
	KindCSR
)

// Funct3-level mnemonics, carried alongside Kind so the executor does not
// re-derive them from the raw encoding.
type Op3 uint8

const (
	F3Add Op3 = iota
	F3Sll
	F3Slt
	F3Sltu
	F3Xor
	F3Srl // or Sra, distinguished by Alt
	F3Or
	F3And

	F3Mul
	F3Mulh
	F3Mulhsu
	F3Mulhu
	F3Div
	F3Divu
	F3Rem
	F3Remu

	F3Beq
	F3Bne
	F3Blt
	F3Bge
	F3Bltu
	F3Bgeu

	F3Lb
	F3Lh
	F3Lw
	F3Ld
	F3Lbu
	F3Lhu
	F3Lwu

	F3Sb
	F3Sh
	F3Sw
	F3Sd

	F3Csrrw
	F3Csrrs
	F3Csrrc
)

// Instr is the decoded tagged instruction value. Only the fields relevant
// to Kind are meaningful; unused fields are zero.
type Instr struct {
	Kind   Kind
	Op3    Op3
	Rd     uint8
	Rs1    uint8
	Rs2    uint8
	Imm    int64
	Shamt  uint8
	Alt    bool   // SRA/SRAI/SUB vs SRL/SRLI/ADD (funct7 bit 5)
	CSR    uint16
	ImmCSR bool // CSRRWI/SI/CI: Rs1 carries a 5-bit immediate, not a register
	Raw    uint32
}

func signExtend(val uint32, bits int) int64 {
	shift := 32 - bits
	return int64(int32(val<<shift)) >> shift
}

func opcode(insn uint32) uint32 { return insn & 0x7f }
func rd(insn uint32) uint8      { return uint8((insn >> 7) & 0x1f) }
func funct3(insn uint32) uint32 { return (insn >> 12) & 0x7 }
func rs1(insn uint32) uint8     { return uint8((insn >> 15) & 0x1f) }
func rs2(insn uint32) uint8     { return uint8((insn >> 20) & 0x1f) }
func funct7(insn uint32) uint32 { return (insn >> 25) & 0x7f }

func immI(insn uint32) int64 { return signExtend(insn>>20, 12) }
func immS(insn uint32) int64 {
	v := ((insn >> 25) << 5) | ((insn >> 7) & 0x1f)
	return signExtend(v, 12)
}
func immB(insn uint32) int64 {
	v := (((insn >> 31) & 1) << 12) |
		(((insn >> 7) & 1) << 11) |
		(((insn >> 25) & 0x3f) << 5) |
		(((insn >> 8) & 0xf) << 1)
	return signExtend(v, 13)
}
func immU(insn uint32) int64 {
	return int64(int32(insn & 0xfffff000))
}
func immJ(insn uint32) int64 {
	v := (((insn >> 31) & 1) << 20) |
		(((insn >> 12) & 0xff) << 12) |
		(((insn >> 20) & 1) << 11) |
		(((insn >> 21) & 0x3ff) << 1)
	return signExtend(v, 21)
}

var invalid = Instr{Kind: KindInvalid}

// Decode turns a raw 32-bit little-endian encoding into a tagged Instr, or
// reports that the encoding is invalid. It is a pure function: it consults
// no machine state and has no side effects.
func Decode(insn uint32) (Instr, bool) {
	if insn&0x3 != 0x3 {
		return invalid, false // not a 32-bit (4-byte) encoding
	}

	op := opcode(insn)
	switch op {
	case opLui:
		return Instr{Kind: KindLui, Rd: rd(insn), Imm: immU(insn), Raw: insn}, true
	case opAuipc:
		return Instr{Kind: KindAuipc, Rd: rd(insn), Imm: immU(insn), Raw: insn}, true
	case opJal:
		return Instr{Kind: KindJal, Rd: rd(insn), Imm: immJ(insn), Raw: insn}, true
	case opJalr:
		if funct3(insn) != 0 {
			return invalid, false
		}
		return Instr{Kind: KindJalr, Rd: rd(insn), Rs1: rs1(insn), Imm: immI(insn), Raw: insn}, true
	case opBranch:
		f3, ok := branchOp3(funct3(insn))
		if !ok {
			return invalid, false
		}
		return Instr{Kind: KindBranch, Op3: f3, Rs1: rs1(insn), Rs2: rs2(insn), Imm: immB(insn), Raw: insn}, true
	case opLoad:
		f3, ok := loadOp3(funct3(insn))
		if !ok {
			return invalid, false
		}
		return Instr{Kind: KindLoad, Op3: f3, Rd: rd(insn), Rs1: rs1(insn), Imm: immI(insn), Raw: insn}, true
	case opStore:
		f3, ok := storeOp3(funct3(insn))
		if !ok {
			return invalid, false
		}
		return Instr{Kind: KindStore, Op3: f3, Rs1: rs1(insn), Rs2: rs2(insn), Imm: immS(insn), Raw: insn}, true
	case opOpImm:
		return decodeOpImm(insn, false)
	case opOpImm32:
		return decodeOpImm(insn, true)
	case opOp:
		return decodeOp(insn, false)
	case opOp32:
		return decodeOp(insn, true)
	case opMiscMem:
		switch funct3(insn) {
		case 0:
			return Instr{Kind: KindFence, Raw: insn}, true
		case 1:
			return Instr{Kind: KindFenceI, Raw: insn}, true
		}
		return invalid, false
	case opSystem:
		return decodeSystem(insn)
	}
	return invalid, false
}

func branchOp3(f3 uint32) (Op3, bool) {
	switch f3 {
	case 0:
		return F3Beq, true
	case 1:
		return F3Bne, true
	case 4:
		return F3Blt, true
	case 5:
		return F3Bge, true
	case 6:
		return F3Bltu, true
	case 7:
		return F3Bgeu, true
	}
	return 0, false
}

func loadOp3(f3 uint32) (Op3, bool) {
	switch f3 {
	case 0:
		return F3Lb, true
	case 1:
		return F3Lh, true
	case 2:
		return F3Lw, true
	case 3:
		return F3Ld, true
	case 4:
		return F3Lbu, true
	case 5:
		return F3Lhu, true
	case 6:
		return F3Lwu, true
	}
	return 0, false
}

func storeOp3(f3 uint32) (Op3, bool) {
	switch f3 {
	case 0:
		return F3Sb, true
	case 1:
		return F3Sh, true
	case 2:
		return F3Sw, true
	case 3:
		return F3Sd, true
	}
	return 0, false
}

func decodeOpImm(insn uint32, word32 bool) (Instr, bool) {
	f3 := funct3(insn)
	kind := KindOpImm
	if word32 {
		kind = KindOpImm32
	}
	in := Instr{Kind: kind, Rd: rd(insn), Rs1: rs1(insn), Imm: immI(insn), Raw: insn}
	switch f3 {
	case 0:
		in.Op3 = F3Add
	case 1:
		if word32 {
			if funct7(insn) != 0 {
				return invalid, false
			}
			in.Shamt = uint8(rs2(insn))
		} else {
			if insn>>26 != 0 {
				return invalid, false
			}
			in.Shamt = uint8(insn>>20) & 0x3f
		}
		in.Op3 = F3Sll
	case 2:
		in.Op3 = F3Slt
	case 3:
		in.Op3 = F3Sltu
	case 4:
		in.Op3 = F3Xor
	case 5:
		if word32 {
			f7 := funct7(insn)
			if f7 != 0 && f7 != 0x20 {
				return invalid, false
			}
			in.Alt = f7 == 0x20
			in.Shamt = uint8(rs2(insn))
		} else {
			f6 := insn >> 26 // imm[11:6]; imm[5] is shamt bit 5
			if f6 != 0 && f6 != 0x10 {
				return invalid, false
			}
			in.Alt = f6 == 0x10
			in.Shamt = uint8(insn>>20) & 0x3f
		}
		in.Op3 = F3Srl
	case 6:
		in.Op3 = F3Or
	case 7:
		in.Op3 = F3And
	}
	return in, true
}

func decodeOp(insn uint32, word32 bool) (Instr, bool) {
	f3 := funct3(insn)
	f7 := funct7(insn)
	kind := KindOp
	if word32 {
		kind = KindOp32
	}
	in := Instr{Kind: kind, Rd: rd(insn), Rs1: rs1(insn), Rs2: rs2(insn), Raw: insn}

	if f7 == 0x01 {
		m, ok := mExtOp3(f3, word32)
		if !ok {
			return invalid, false
		}
		in.Op3 = m
		return in, true
	}
	if f7 != 0 && f7 != 0x20 {
		return invalid, false
	}
	in.Alt = f7 == 0x20
	switch f3 {
	case 0:
		in.Op3 = F3Add // Alt => SUB
	case 1:
		if in.Alt {
			return invalid, false
		}
		in.Op3 = F3Sll
	case 2:
		if in.Alt {
			return invalid, false
		}
		in.Op3 = F3Slt
	case 3:
		if in.Alt {
			return invalid, false
		}
		in.Op3 = F3Sltu
	case 4:
		if in.Alt {
			return invalid, false
		}
		in.Op3 = F3Xor
	case 5:
		in.Op3 = F3Srl // Alt => SRA
	case 6:
		if in.Alt {
			return invalid, false
		}
		in.Op3 = F3Or
	case 7:
		if in.Alt {
			return invalid, false
		}
		in.Op3 = F3And
	}
	return in, true
}

func mExtOp3(f3 uint32, word32 bool) (Op3, bool) {
	switch f3 {
	case 0:
		return F3Mul, true
	case 1:
		if word32 {
			return 0, false
		}
		return F3Mulh, true
	case 2:
		if word32 {
			return 0, false
		}
		return F3Mulhsu, true
	case 3:
		if word32 {
			return 0, false
		}
		return F3Mulhu, true
	case 4:
		return F3Div, true
	case 5:
		return F3Divu, true
	case 6:
		return F3Rem, true
	case 7:
		return F3Remu, true
	}
	return 0, false
}

func decodeSystem(insn uint32) (Instr, bool) {
	f3 := funct3(insn)
	if f3 == 0 {
		switch insn {
		case 0x00000073:
			return Instr{Kind: KindEcall, Raw: insn}, true
		case 0x00100073:
			return Instr{Kind: KindEbreak, Raw: insn}, true
		case 0x30200073:
			return Instr{Kind: KindMret, Raw: insn}, true
		case 0x10200073:
			return Instr{Kind: KindSret, Raw: insn}, true
		case 0x10500073:
			return Instr{Kind: KindWfi, Raw: insn}, true
		}
		if funct7(insn) == 0b0001001 {
			return Instr{Kind: KindSfenceVMA, Rs1: rs1(insn), Rs2: rs2(insn), Raw: insn}, true
		}
		return invalid, false
	}

	in := Instr{Kind: KindCSR, Rd: rd(insn), Rs1: rs1(insn), CSR: uint16(insn >> 20), Raw: insn}
	switch f3 {
	case 1:
		in.Op3 = F3Csrrw
	case 2:
		in.Op3 = F3Csrrs
	case 3:
		in.Op3 = F3Csrrc
	case 5:
		in.Op3, in.ImmCSR = F3Csrrw, true
	case 6:
		in.Op3, in.ImmCSR = F3Csrrs, true
	case 7:
		in.Op3, in.ImmCSR = F3Csrrc, true
	default:
		return invalid, false
	}
	return in, true
}
