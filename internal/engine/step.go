package engine

// HaltReason distinguishes the two ways a machine can stop on its own.
type HaltReason uint8

const (
	HaltHostExit HaltReason = iota
	HaltMaxInstructions
)

// StepKind tags a StepResult's three arms, per §3 and the "traps are
// values, not exceptions" design note.
type StepKind uint8

const (
	StepContinue StepKind = iota
	StepTrapped
	StepHalt
)

// StepResult is the tagged outcome of one Machine.Step call.
type StepResult struct {
	Kind       StepKind
	Trap       *Trap // set when Kind == StepTrapped
	HaltReason HaltReason
	Code       uint64 // HaltHostExit: the raw door value
	GP         uint64 // HaltHostExit: x3 at the moment of exit
}

// Step performs one architectural instruction, or the delivery of one
// pending interrupt, following the ordering in §4.E.
func (m *Machine) Step() StepResult {
	h := &m.hart

	if cause, ok := h.CSR.checkPendingInterrupt(); ok {
		trap := interruptTrap(h.PC, cause)
		result := m.deliverTrap(trap)
		h.CSR.Cycle++
		return result
	}

	fetchPC := h.PC
	paddr, trap := m.mmu.Translate(fetchPC, &h.CSR, AccessFetch, fetchPC)
	if trap != nil {
		return m.finishStep(m.deliverTrap(trap))
	}

	raw, err := m.mem.ReadWord(paddr)
	if err != nil {
		return m.finishStep(m.deliverTrap(instructionAccessFault(fetchPC, fetchPC)))
	}
	m.lastPC, m.lastRaw = fetchPC, raw

	in, ok := Decode(raw)
	if !ok {
		return m.finishStep(m.deliverTrap(illegalInstruction(fetchPC, raw)))
	}

	outcome := m.execute(in)
	if outcome.trap != nil {
		return m.finishStep(m.deliverTrap(outcome.trap))
	}
	if outcome.halt != nil {
		return m.finishStep(StepResult{
			Kind:       StepHalt,
			HaltReason: outcome.halt.reason,
			Code:       outcome.halt.code,
			GP:         outcome.halt.gp,
		})
	}

	switch in.Kind {
	case KindJal, KindJalr, KindBranch, KindMret, KindSret:
		// execute already set h.PC, possibly back to fetchPC itself
	default:
		h.PC = fetchPC + 4
	}
	return m.finishStep(StepResult{Kind: StepContinue})
}

// finishStep applies §4.E's commit phase: re-assert x0, advance the
// retirement counter, check the instruction budget, and tick the cycle
// counter. It runs for every step outcome except the interrupt-delivery
// early return, which has no instruction to retire.
func (m *Machine) finishStep(res StepResult) StepResult {
	m.hart.assertX0()
	m.hart.CSR.Instret++
	m.hart.CSR.Cycle++

	if res.Kind == StepContinue && m.maxInstructions != 0 && m.hart.CSR.Instret >= m.maxInstructions {
		return StepResult{Kind: StepHalt, HaltReason: HaltMaxInstructions}
	}
	return res
}

// deliverTrap implements the trap-delivery procedure of §4.E. xepc/xcause/
// xtval writes below deliberately bypass CSRFile.Write's privilege gate,
// per the "status-bit manipulation bypasses privilege gates" design note.
func (m *Machine) deliverTrap(t *Trap) StepResult {
	c := &m.hart.CSR
	causeVal := t.causeValue()

	toSupervisor := false
	if c.Priv <= PrivSupervisor {
		if t.IsInterrupt {
			toSupervisor = c.shouldDelegateInterrupt(t.Cause)
		} else {
			toSupervisor = c.shouldDelegateException(t.Cause)
		}
	}

	pc := t.PC &^ 1

	if toSupervisor {
		c.Sepc, c.Scause, c.Stval = pc, causeVal, t.Tval
		if c.Mstatus&MstatusSIE != 0 {
			c.Mstatus |= MstatusSPIE
		} else {
			c.Mstatus &^= MstatusSPIE
		}
		c.Mstatus &^= MstatusSIE
		c.SetSPP(c.Priv)
		c.Priv = PrivSupervisor

		if c.Stvec == 0 {
			return StepResult{Kind: StepTrapped, Trap: t}
		}
		if c.Stvec&1 == 1 && t.IsInterrupt {
			m.hart.PC = (c.Stvec &^ 1) + 4*t.Cause
		} else {
			m.hart.PC = c.Stvec &^ 3
		}
	} else {
		c.Mepc, c.Mcause, c.Mtval = pc, causeVal, t.Tval
		if c.Mstatus&MstatusMIE != 0 {
			c.Mstatus |= MstatusMPIE
		} else {
			c.Mstatus &^= MstatusMPIE
		}
		c.Mstatus &^= MstatusMIE
		c.SetMPP(c.Priv)
		c.Priv = PrivMachine

		if c.Mtvec == 0 {
			return StepResult{Kind: StepTrapped, Trap: t}
		}
		if c.Mtvec&1 == 1 && t.IsInterrupt {
			m.hart.PC = (c.Mtvec &^ 1) + 4*t.Cause
		} else {
			m.hart.PC = c.Mtvec &^ 3
		}
	}

	return StepResult{Kind: StepContinue}
}
