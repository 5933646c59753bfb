package engine

// Minimal encoders, the inverse of decode.go's field extractors, used only
// by this package's tests to build raw instruction words without hardcoding
// opaque hex literals.

func encR(opcode, funct3, funct7 uint32, rd, rs1, rs2 uint8) uint32 {
	return funct7<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

func encI(opcode, funct3 uint32, rd, rs1 uint8, imm int64) uint32 {
	return uint32(imm&0xfff)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

func encS(opcode, funct3 uint32, rs1, rs2 uint8, imm int64) uint32 {
	u := uint32(imm) & 0xfff
	return (u>>5)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | (u&0x1f)<<7 | opcode
}

func encB(opcode, funct3 uint32, rs1, rs2 uint8, imm int64) uint32 {
	u := uint32(imm) & 0x1fff
	bit12 := (u >> 12) & 1
	bit11 := (u >> 11) & 1
	bits10_5 := (u >> 5) & 0x3f
	bits4_1 := (u >> 1) & 0xf
	return bit12<<31 | bits10_5<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 |
		bits4_1<<8 | bit11<<7 | opcode
}

func encU(opcode uint32, rd uint8, imm int64) uint32 {
	return uint32(imm)&0xfffff000 | uint32(rd)<<7 | opcode
}

func encJ(opcode uint32, rd uint8, imm int64) uint32 {
	u := uint32(imm) & 0x1fffff
	bit20 := (u >> 20) & 1
	bits10_1 := (u >> 1) & 0x3ff
	bit11 := (u >> 11) & 1
	bits19_12 := (u >> 12) & 0xff
	return bit20<<31 | bits10_1<<21 | bit11<<20 | bits19_12<<12 | uint32(rd)<<7 | opcode
}

func encAddi(rd, rs1 uint8, imm int64) uint32 { return encI(opOpImm, 0, rd, rs1, imm) }
func encAdd(rd, rs1, rs2 uint8) uint32        { return encR(opOp, 0, 0, rd, rs1, rs2) }
func encSub(rd, rs1, rs2 uint8) uint32        { return encR(opOp, 0, 0x20, rd, rs1, rs2) }
func encSw(rs1, rs2 uint8, imm int64) uint32  { return encS(opStore, 2, rs1, rs2, imm) }
func encLw(rd, rs1 uint8, imm int64) uint32   { return encI(opLoad, 2, rd, rs1, imm) }
func encDiv(rd, rs1, rs2 uint8) uint32        { return encR(opOp, 4, 1, rd, rs1, rs2) }
func encJal(rd uint8, imm int64) uint32       { return encJ(opJal, rd, imm) }
func encBeq(rs1, rs2 uint8, imm int64) uint32 { return encB(opBranch, 0, rs1, rs2, imm) }
func encEcall() uint32                        { return 0x00000073 }
func encMret() uint32                         { return 0x30200073 }

func encCsrrw(rd uint8, csr uint16, rs1 uint8) uint32 {
	return encI(opSystem, 1, rd, rs1, int64(csr))
}
func encCsrrs(rd uint8, csr uint16, rs1 uint8) uint32 {
	return encI(opSystem, 2, rd, rs1, int64(csr))
}
