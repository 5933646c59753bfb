// Package clock is a minimal interrupt-source stub standing in for the
// CLINT/PLIC hardware a real RISC-V board would have. It raises timer
// interrupts in the simulated hart from outside a Machine.Step call, per
// the engine's concurrency model.
//
// It is modeled on tinyrange-cc's internal/hv/riscv/rv64/clint.go, adapted
// from a wall-clock timer (appropriate for booting a real OS) to one driven
// by the hart's own retired-instruction count, since this simulator's
// Non-goals exclude timing-accurate interrupt latency and cycle accuracy
// beyond a monotonic counter.
package clock

// Machine is the subset of *engine.Machine the clock needs; kept as an
// interface so this package has no import-time dependency on engine's
// internal layout.
type Machine interface {
	Instret() uint64
	SetTimerInterrupt(supervisor, pending bool)
}

// Timer raises a timer interrupt once the hart's instruction counter
// reaches a configured compare value, the same mtimecmp shape CLINT
// exposes, minus the register-mapped I/O (nothing here models a bus device;
// a host drives it directly).
type Timer struct {
	supervisor bool
	compare    uint64
	armed      bool
}

// NewTimer constructs a timer that raises MTIP (or STIP, if supervisor is
// true) once the hart's retired-instruction count reaches compare.
func NewTimer(supervisor bool, compare uint64) *Timer {
	return &Timer{supervisor: supervisor, compare: compare, armed: true}
}

// SetCompare reprograms the compare value and re-arms the timer, mirroring
// a guest writing mtimecmp.
func (t *Timer) SetCompare(compare uint64) {
	t.compare = compare
	t.armed = true
}

// Tick checks the hart's current instruction count against the compare
// value and raises the configured interrupt-pending bit once due. Call it
// once per host-visible time slice (cmd/rv64sim calls it before every
// Machine.Step); it is idempotent once the bit is raised.
func (t *Timer) Tick(m Machine) {
	if !t.armed {
		return
	}
	if m.Instret() >= t.compare {
		m.SetTimerInterrupt(t.supervisor, true)
		t.armed = false
	}
}

