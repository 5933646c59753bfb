package engine

// Machine wires together a Hart, its physical memory, and its MMU, plus the
// two host-facing knobs §6 names at construction time: the host-exit
// physical address and the max-instruction budget.
type Machine struct {
	hart Hart
	mem  *Memory
	mmu  *MMU

	hostExit        uint64
	maxInstructions uint64

	lastPC  uint64
	lastRaw uint32
}

// Config holds Machine construction inputs. RAMSize is required; the other
// two fields are optional (zero means "unset").
type Config struct {
	RAMSize         uint64
	HostExit        uint64
	MaxInstructions uint64
}

func NewMachine(cfg Config) *Machine {
	m := &Machine{
		mem:             NewMemory(cfg.RAMSize),
		hostExit:        cfg.HostExit,
		maxInstructions: cfg.MaxInstructions,
	}
	m.mmu = NewMMU(m.mem)
	m.hart.Reset()
	return m
}

// Reset returns the hart to its power-on state and drops the TLB. Physical
// memory contents are untouched (the ELF loader or caller repopulates it).
func (m *Machine) Reset() {
	m.hart.Reset()
	m.mmu.FlushAll()
}

func (m *Machine) SetPC(pc uint64)  { m.hart.PC = pc }
func (m *Machine) PC() uint64       { return m.hart.PC }
func (m *Machine) Memory() *Memory  { return m.mem }
func (m *Machine) SetHostExit(addr uint64) { m.hostExit = addr }
func (m *Machine) SetReg(i uint8, v uint64) { m.hart.SetReg(i, v) }
func (m *Machine) Reg(i uint8) uint64       { return m.hart.Reg(i) }
func (m *Machine) Privilege() uint8         { return m.hart.CSR.Priv }
func (m *Machine) Instret() uint64          { return m.hart.CSR.Instret }
func (m *Machine) Cycle() uint64            { return m.hart.CSR.Cycle }

// CSR exposes the hart's register file for host inspection (tests, trace
// printer, the clock stub injecting interrupt bits).
func (m *Machine) CSR() *CSRFile { return &m.hart.CSR }

// LastFetch reports the address and raw encoding of the most recently
// fetched instruction, for the trace printer. Valid only after at least
// one Step call; undefined (zero) before that.
func (m *Machine) LastFetch() (pc uint64, raw uint32) { return m.lastPC, m.lastRaw }

// SetTimerInterrupt sets or clears MTIP/STIP. Per §5, this is the only
// legal way a timer enters mip from outside a Step call.
func (m *Machine) SetTimerInterrupt(supervisor, pending bool) {
	bit := MipMTIP
	if supervisor {
		bit = MipSTIP
	}
	if pending {
		m.hart.CSR.Mip |= bit
	} else {
		m.hart.CSR.Mip &^= bit
	}
}

// SetExternalInterrupt sets or clears MEIP/SEIP, modeling a PLIC stub
// signaling a pending external interrupt.
func (m *Machine) SetExternalInterrupt(supervisor, pending bool) {
	bit := MipMEIP
	if supervisor {
		bit = MipSEIP
	}
	if pending {
		m.hart.CSR.Mip |= bit
	} else {
		m.hart.CSR.Mip &^= bit
	}
}

// Run steps the machine until it halts, surfaces an unhandleable trap, or
// has taken stepLimit steps (stepLimit <= 0 means no limit). It returns the
// terminal StepResult, or a StepContinue result when the limit is reached.
func (m *Machine) Run(stepLimit int) StepResult {
	for i := 0; stepLimit <= 0 || i < stepLimit; i++ {
		res := m.Step()
		if res.Kind != StepContinue {
			return res
		}
	}
	return StepResult{Kind: StepContinue}
}
