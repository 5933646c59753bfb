// Package trace is the per-step trace printer (instruction address and raw
// encoding, traps, halts; no disassembly or register dump): the "trace
// printer" the core engine spec calls out as an external collaborator,
// outside the core's own contract.
//
// The teacher repo's own use of github.com/charmbracelet/x/ansi (in its
// terminal emulator's CSI handling) is parameter parsing for terminal
// *input*, not a color-output builder, so it has no counterpart in a
// one-line-per-step trace. Coloring here is a handful of raw SGR escape
// sequences, kept minimal and commented so the mapping from code to color
// is self-evident without a styling dependency.
package trace

import (
	"fmt"
	"io"
)

const ansiReset = "\x1b[0m"

// Printer writes a colorized one-line-per-step trace to w.
type Printer struct {
	w     io.Writer
	color bool
}

func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color}
}

func (p *Printer) paint(code string, s string) string {
	if !p.color {
		return s
	}
	return sgr(code) + s + ansiReset
}

// sgr returns the SGR escape sequence for a named trace color.
func sgr(code string) string {
	switch code {
	case "pc":
		return "\x1b[96m" // bright cyan
	case "trap":
		return "\x1b[31m" // red
	case "halt":
		return "\x1b[32m" // green
	default:
		return "\x1b[37m" // white
	}
}

// Step logs one retired instruction: its address and raw encoding.
func (p *Printer) Step(pc uint64, raw uint32) {
	fmt.Fprintf(p.w, "%s  %s\n",
		p.paint("pc", fmt.Sprintf("0x%016x", pc)),
		fmt.Sprintf("%08x", raw))
}

// Trap logs a delivered trap.
func (p *Printer) Trap(cause uint64, isInterrupt bool, tval uint64) {
	kind := "exception"
	if isInterrupt {
		kind = "interrupt"
	}
	fmt.Fprintf(p.w, "%s cause=%d tval=0x%x\n",
		p.paint("trap", fmt.Sprintf("trap(%s)", kind)), cause, tval)
}

// Halt logs a terminal halt.
func (p *Printer) Halt(reason string, code uint64) {
	fmt.Fprintf(p.w, "%s reason=%s code=0x%x\n", p.paint("halt", "HALT"), reason, code)
}
