package engine

import "math/bits"

// execOutcome is what running one decoded instruction produced, passed back
// up to Step so it can decide whether to deliver a trap or halt the
// machine.
type execOutcome struct {
	trap *Trap
	halt *haltInfo
}

type haltInfo struct {
	reason HaltReason
	code   uint64
	gp     uint64
}

// execute performs the semantic effect of one decoded instruction. On
// entry h.PC is the instruction's own address; execute advances h.PC itself
// for control-flow instructions, and leaves it untouched otherwise so Step
// can apply the default +4 advance.
func (m *Machine) execute(in Instr) execOutcome {
	h := &m.hart
	pc := h.PC

	switch in.Kind {
	case KindLui:
		h.SetReg(in.Rd, uint64(in.Imm))

	case KindAuipc:
		h.SetReg(in.Rd, pc+uint64(in.Imm))

	case KindJal:
		h.SetReg(in.Rd, pc+4)
		h.PC = pc + uint64(in.Imm)

	case KindJalr:
		target := (h.Reg(in.Rs1) + uint64(in.Imm)) &^ 1
		h.SetReg(in.Rd, pc+4)
		h.PC = target

	case KindBranch:
		if execBranch(in.Op3, h.Reg(in.Rs1), h.Reg(in.Rs2)) {
			h.PC = pc + uint64(in.Imm)
		} else {
			h.PC = pc + 4
		}

	case KindOpImm:
		h.SetReg(in.Rd, execAlu(in.Op3, in.Alt, h.Reg(in.Rs1), uint64(in.Imm), in.Shamt, false))

	case KindOpImm32:
		v := execAlu(in.Op3, in.Alt, h.Reg(in.Rs1), uint64(in.Imm), in.Shamt, true)
		h.SetReg(in.Rd, uint64(int64(int32(v))))

	case KindOp:
		if isMExt(in.Op3) {
			h.SetReg(in.Rd, execM(in.Op3, h.Reg(in.Rs1), h.Reg(in.Rs2), false))
		} else {
			h.SetReg(in.Rd, execAlu(in.Op3, in.Alt, h.Reg(in.Rs1), h.Reg(in.Rs2), uint8(h.Reg(in.Rs2)&0x3f), false))
		}

	case KindOp32:
		var v uint64
		if isMExt(in.Op3) {
			v = execM(in.Op3, h.Reg(in.Rs1), h.Reg(in.Rs2), true)
		} else {
			v = execAlu(in.Op3, in.Alt, h.Reg(in.Rs1), h.Reg(in.Rs2), uint8(h.Reg(in.Rs2)&0x1f), true)
		}
		h.SetReg(in.Rd, uint64(int64(int32(v))))

	case KindLoad:
		return m.execLoad(in, pc)

	case KindStore:
		return m.execStore(in, pc)

	case KindFence, KindFenceI:
		// single-hart: no observable ordering effect to enforce

	case KindWfi:
		// no-op: never suspends, per the concurrency model

	case KindSfenceVMA:
		if in.Rs1 == 0 {
			m.mmu.FlushAll()
		} else {
			m.mmu.FlushVA(h.Reg(in.Rs1))
		}

	case KindEcall:
		return execOutcome{trap: ecallTrap(pc, h.CSR.Priv)}

	case KindEbreak:
		return execOutcome{trap: breakpoint(pc)}

	case KindMret:
		if h.CSR.Priv != PrivMachine {
			return execOutcome{trap: illegalInstruction(pc, in.Raw)}
		}
		h.PC = h.CSR.Mepc
		h.CSR.Priv = h.CSR.MPP()
		if h.CSR.Mstatus&MstatusMPIE != 0 {
			h.CSR.Mstatus |= MstatusMIE
		} else {
			h.CSR.Mstatus &^= MstatusMIE
		}
		h.CSR.Mstatus |= MstatusMPIE
		h.CSR.SetMPP(PrivUser)

	case KindSret:
		if h.CSR.Priv == PrivUser {
			return execOutcome{trap: illegalInstruction(pc, in.Raw)}
		}
		h.PC = h.CSR.Sepc
		h.CSR.Priv = h.CSR.SPP()
		if h.CSR.Mstatus&MstatusSPIE != 0 {
			h.CSR.Mstatus |= MstatusSIE
		} else {
			h.CSR.Mstatus &^= MstatusSIE
		}
		h.CSR.Mstatus |= MstatusSPIE
		h.CSR.SetSPP(PrivUser)

	case KindCSR:
		return m.execCSR(in, pc)

	default:
		return execOutcome{trap: illegalInstruction(pc, in.Raw)}
	}

	return execOutcome{}
}

func execBranch(op Op3, a, b uint64) bool {
	switch op {
	case F3Beq:
		return a == b
	case F3Bne:
		return a != b
	case F3Blt:
		return int64(a) < int64(b)
	case F3Bge:
		return int64(a) >= int64(b)
	case F3Bltu:
		return a < b
	case F3Bgeu:
		return a >= b
	}
	return false
}

// execAlu implements ADD/SUB/SLL/SLT/SLTU/XOR/SRL/SRA/OR/AND and their
// immediate forms. shamt is pre-masked by the caller to 6 bits (5 for
// word32); rs2AsImm carries the immediate for *-immediate forms.
func execAlu(op Op3, alt bool, a, rs2AsImm uint64, shamt uint8, word32 bool) uint64 {
	shiftMask := uint8(0x3f)
	if word32 {
		shiftMask = 0x1f
	}
	sh := shamt & shiftMask
	switch op {
	case F3Add:
		if alt {
			return a - rs2AsImm
		}
		return a + rs2AsImm
	case F3Sll:
		return a << sh
	case F3Slt:
		if int64(a) < int64(rs2AsImm) {
			return 1
		}
		return 0
	case F3Sltu:
		if a < rs2AsImm {
			return 1
		}
		return 0
	case F3Xor:
		return a ^ rs2AsImm
	case F3Srl:
		if alt {
			if word32 {
				return uint64(uint32(int32(uint32(a)) >> sh))
			}
			return uint64(int64(a) >> sh)
		}
		if word32 {
			return uint64(uint32(a) >> sh)
		}
		return a >> sh
	case F3Or:
		return a | rs2AsImm
	case F3And:
		return a & rs2AsImm
	}
	return 0
}

func isMExt(op Op3) bool {
	switch op {
	case F3Mul, F3Mulh, F3Mulhsu, F3Mulhu, F3Div, F3Divu, F3Rem, F3Remu:
		return true
	}
	return false
}

// execM implements the M-extension per §4.E's exact edge-case table.
func execM(op Op3, a, b uint64, word32 bool) uint64 {
	if word32 {
		a32, b32 := int32(a), int32(b)
		switch op {
		case F3Mul:
			return uint64(int64(a32 * b32))
		case F3Div:
			return uint64(int64(div32(a32, b32)))
		case F3Divu:
			return uint64(int64(int32(divu32(uint32(a32), uint32(b32)))))
		case F3Rem:
			return uint64(int64(rem32(a32, b32)))
		case F3Remu:
			return uint64(int64(int32(remu32(uint32(a32), uint32(b32)))))
		}
		return 0
	}
	switch op {
	case F3Mul:
		return a * b
	case F3Mulh:
		return uint64(mulh64(int64(a), int64(b)))
	case F3Mulhsu:
		return mulhsu64(int64(a), b)
	case F3Mulhu:
		hi, _ := bits.Mul64(a, b)
		return hi
	case F3Div:
		return uint64(div64(int64(a), int64(b)))
	case F3Divu:
		return divu64(a, b)
	case F3Rem:
		return uint64(rem64(int64(a), int64(b)))
	case F3Remu:
		return remu64(a, b)
	}
	return 0
}

func div64(a, b int64) int64 {
	if b == 0 {
		return -1
	}
	if a == minInt64 && b == -1 {
		return minInt64
	}
	return a / b
}

func divu64(a, b uint64) uint64 {
	if b == 0 {
		return ^uint64(0)
	}
	return a / b
}

func rem64(a, b int64) int64 {
	if b == 0 {
		return a
	}
	if a == minInt64 && b == -1 {
		return 0
	}
	return a % b
}

func remu64(a, b uint64) uint64 {
	if b == 0 {
		return a
	}
	return a % b
}

const minInt64 = -1 << 63
const minInt32 = -1 << 31

func div32(a, b int32) int32 {
	if b == 0 {
		return -1
	}
	if a == minInt32 && b == -1 {
		return minInt32
	}
	return a / b
}

func divu32(a, b uint32) uint32 {
	if b == 0 {
		return ^uint32(0)
	}
	return a / b
}

func rem32(a, b int32) int32 {
	if b == 0 {
		return a
	}
	if a == minInt32 && b == -1 {
		return 0
	}
	return a % b
}

func remu32(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}

func mulh64(a, b int64) int64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	hi -= uint64(a>>63) & uint64(b)
	hi -= uint64(b>>63) & uint64(a)
	return int64(hi)
}

func mulhsu64(a int64, b uint64) uint64 {
	hi, _ := bits.Mul64(uint64(a), b)
	hi -= uint64(a>>63) & b
	return hi
}

func (m *Machine) execLoad(in Instr, pc uint64) execOutcome {
	vaddr := m.hart.Reg(in.Rs1) + uint64(in.Imm)
	paddr, trap := m.mmu.Translate(vaddr, &m.hart.CSR, AccessLoad, pc)
	if trap != nil {
		return execOutcome{trap: trap}
	}

	var v uint64
	var err error
	switch in.Op3 {
	case F3Lb:
		var b uint8
		b, err = m.mem.ReadByte(paddr)
		v = uint64(int64(int8(b)))
	case F3Lbu:
		var b uint8
		b, err = m.mem.ReadByte(paddr)
		v = uint64(b)
	case F3Lh:
		var h uint16
		h, err = m.mem.ReadHalf(paddr)
		v = uint64(int64(int16(h)))
	case F3Lhu:
		var h uint16
		h, err = m.mem.ReadHalf(paddr)
		v = uint64(h)
	case F3Lw:
		var w uint32
		w, err = m.mem.ReadWord(paddr)
		v = uint64(int64(int32(w)))
	case F3Lwu:
		var w uint32
		w, err = m.mem.ReadWord(paddr)
		v = uint64(w)
	case F3Ld:
		v, err = m.mem.ReadDouble(paddr)
	}
	if err != nil {
		return execOutcome{trap: loadAccessFault(pc, vaddr)}
	}
	m.hart.SetReg(in.Rd, v)
	return execOutcome{}
}

func (m *Machine) execStore(in Instr, pc uint64) execOutcome {
	vaddr := m.hart.Reg(in.Rs1) + uint64(in.Imm)
	paddr, trap := m.mmu.Translate(vaddr, &m.hart.CSR, AccessStore, pc)
	if trap != nil {
		return execOutcome{trap: trap}
	}

	val := m.hart.Reg(in.Rs2)
	var err error
	switch in.Op3 {
	case F3Sb:
		err = m.mem.WriteByte(paddr, uint8(val))
	case F3Sh:
		err = m.mem.WriteHalf(paddr, uint16(val))
	case F3Sw:
		err = m.mem.WriteWord(paddr, uint32(val))
	case F3Sd:
		err = m.mem.WriteDouble(paddr, val)
	}
	if err != nil {
		return execOutcome{trap: storeAccessFault(pc, vaddr)}
	}

	if halt := m.checkHostExitDoor(paddr, val); halt != nil {
		return execOutcome{halt: halt}
	}
	return execOutcome{}
}

// checkHostExitDoor implements §4.E's host exit door. It runs after the
// store has already landed in physical memory, comparing the
// post-translation physical address so a virtual alias cannot spoof it.
func (m *Machine) checkHostExitDoor(paddr, val uint64) *haltInfo {
	if m.hostExit == 0 || paddr != m.hostExit {
		return nil
	}
	device := (val >> 56) & 0xff
	command := (val >> 48) & 0xff
	if device == 0 && command == 0 && val != 0 {
		return &haltInfo{reason: HaltHostExit, code: val, gp: m.hart.Reg(3)}
	}
	// Acknowledge the packet so a guest polling the door sees completion.
	_ = m.mem.WriteDouble(paddr, 0)
	return nil
}

// execCSR implements CSRRW/CSRRS/CSRRC and their immediate forms, including
// the read-before-write and skip-modify-phase-on-zero-source rules of
// §4.E.
func (m *Machine) execCSR(in Instr, pc uint64) execOutcome {
	h := &m.hart

	var src uint64
	var srcIsZero bool
	if in.ImmCSR {
		src = uint64(in.Rs1)
		srcIsZero = in.Rs1 == 0
	} else {
		src = h.Reg(in.Rs1)
		srcIsZero = in.Rs1 == 0
	}

	// A privilege violation traps with a zero trap value; an unknown CSR
	// number traps with the instruction encoding.
	illegal := func() execOutcome {
		tval := in.Raw
		if h.CSR.privViolation(in.CSR) {
			tval = 0
		}
		return execOutcome{trap: illegalInstruction(pc, tval)}
	}

	old, ok := h.CSR.Read(in.CSR)
	if !ok {
		return illegal()
	}

	switch in.Op3 {
	case F3Csrrw:
		if !h.CSR.Write(in.CSR, src) {
			return illegal()
		}
	case F3Csrrs:
		if !srcIsZero {
			if !h.CSR.Write(in.CSR, old|src) {
				return illegal()
			}
		}
	case F3Csrrc:
		if !srcIsZero {
			if !h.CSR.Write(in.CSR, old&^src) {
				return illegal()
			}
		}
	}

	if in.CSR == CSRSatp {
		m.mmu.FlushAll()
	}

	h.SetReg(in.Rd, old)
	return execOutcome{}
}
