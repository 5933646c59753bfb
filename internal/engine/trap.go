package engine

import "fmt"

// Cause codes, matching the standard RISC-V privileged spec numbering used
// verbatim by original_source/src/cpu/trap.rs.
const (
	CauseInstructionAddrMisaligned = 0
	CauseInstructionAccessFault    = 1
	CauseIllegalInstruction        = 2
	CauseBreakpoint                = 3
	CauseLoadAddrMisaligned        = 4
	CauseLoadAccessFault           = 5
	CauseStoreAddrMisaligned       = 6
	CauseStoreAccessFault          = 7
	CauseEcallFromU                = 8
	CauseEcallFromS                = 9
	CauseEcallFromM                = 11
	CauseInstructionPageFault      = 12
	CauseLoadPageFault             = 13
	CauseStorePageFault            = 15
)

// Interrupt cause codes (the exception-code portion; bit 63 of mcause/scause
// marks them as interrupts).
const (
	InterruptSSoftware = 1
	InterruptMSoftware = 3
	InterruptSTimer    = 5
	InterruptMTimer    = 7
	InterruptSExternal = 9
	InterruptMExternal = 11
)

// interruptPriority lists interrupt causes in the order §4.B's
// check_pending_interrupt must honor: MEI, MSI, MTI, SEI, SSI, STI.
var interruptPriority = [...]uint64{
	InterruptMExternal,
	InterruptMSoftware,
	InterruptMTimer,
	InterruptSExternal,
	InterruptSSoftware,
	InterruptSTimer,
}

// Trap is a tagged variant carrying the faulting PC, a cause code, and a
// trap-value payload. It implements error so it can flow through the engine
// as a value, per the "traps are values, not exceptions" design note.
type Trap struct {
	PC          uint64
	Cause       uint64
	Tval        uint64
	IsInterrupt bool
}

func (t *Trap) Error() string {
	kind := "exception"
	if t.IsInterrupt {
		kind = "interrupt"
	}
	return fmt.Sprintf("%s cause=%d pc=0x%x tval=0x%x", kind, t.Cause, t.PC, t.Tval)
}

func newTrap(pc uint64, cause uint64, tval uint64) *Trap {
	return &Trap{PC: pc, Cause: cause, Tval: tval}
}

func illegalInstruction(pc uint64, encoding uint32) *Trap {
	return newTrap(pc, CauseIllegalInstruction, uint64(encoding))
}

func breakpoint(pc uint64) *Trap {
	return newTrap(pc, CauseBreakpoint, pc)
}

func loadMisaligned(pc, addr uint64) *Trap {
	return newTrap(pc, CauseLoadAddrMisaligned, addr)
}

func storeMisaligned(pc, addr uint64) *Trap {
	return newTrap(pc, CauseStoreAddrMisaligned, addr)
}

func loadAccessFault(pc, addr uint64) *Trap {
	return newTrap(pc, CauseLoadAccessFault, addr)
}

func storeAccessFault(pc, addr uint64) *Trap {
	return newTrap(pc, CauseStoreAccessFault, addr)
}

func instructionAccessFault(pc, addr uint64) *Trap {
	return newTrap(pc, CauseInstructionAccessFault, addr)
}

func ecallTrap(pc uint64, priv uint8) *Trap {
	switch priv {
	case PrivMachine:
		return newTrap(pc, CauseEcallFromM, 0)
	case PrivSupervisor:
		return newTrap(pc, CauseEcallFromS, 0)
	default:
		return newTrap(pc, CauseEcallFromU, 0)
	}
}

func instructionPageFault(pc, vaddr uint64) *Trap {
	return newTrap(pc, CauseInstructionPageFault, vaddr)
}

func loadPageFault(pc, vaddr uint64) *Trap {
	return newTrap(pc, CauseLoadPageFault, vaddr)
}

func storePageFault(pc, vaddr uint64) *Trap {
	return newTrap(pc, CauseStorePageFault, vaddr)
}

func interruptTrap(pc uint64, cause uint64) *Trap {
	return &Trap{PC: pc, Cause: cause, Tval: 0, IsInterrupt: true}
}

// causeValue packs the interrupt bit into the cause word the way mcause and
// scause store it.
func (t *Trap) causeValue() uint64 {
	if t.IsInterrupt {
		return t.Cause | (1 << 63)
	}
	return t.Cause
}
