// Command rv64sim runs a statically linked RV64IM+Zicsr ELF under the
// internal/engine simulator. It is the "CLI front-end / trace printer"
// the core spec assumes is built by an external collaborator.
//
// Flag parsing and the top-level run/error/os.Exit shape follow
// internal/cmd/benchmark/main.go; raw-terminal single-step mode follows
// cmd/cc/main.go's term.MakeRaw/term.Restore pairing.
package main

import (
	"debug/elf"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tinyhart/rv64sim/internal/clock"
	"github.com/tinyhart/rv64sim/internal/config"
	"github.com/tinyhart/rv64sim/internal/elfload"
	"github.com/tinyhart/rv64sim/internal/engine"
	"github.com/tinyhart/rv64sim/internal/trace"
)

func run() error {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	profilePath := fs.String("profile", "", "path to a YAML machine profile (defaults applied if absent)")
	interactive := fs.Bool("step", false, "single-step interactively: press any key to retire one instruction, q to quit")
	tracePath := fs.Bool("trace", false, "print a one-line trace for every retired instruction")
	timerAt := fs.Uint64("timer-at", 0, "retired-instruction count at which to raise a machine timer interrupt (0 disables)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("parse args: %w", err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: %s [flags] <elf-binary>", os.Args[0])
	}
	binPath := fs.Arg(0)

	prof, err := config.Load(*profilePath)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if *tracePath {
		prof.Trace = true
	}

	f, err := elf.Open(binPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", binPath, err)
	}
	defer f.Close()

	m := engine.NewMachine(prof.EngineConfig())

	result, err := elfload.Load(f, m.Memory())
	if err != nil {
		return fmt.Errorf("load %s: %w", binPath, err)
	}
	m.SetPC(result.Entry)
	if result.HasToHost && prof.HostExit == 0 {
		m.SetHostExit(result.ToHost)
	}

	var timer *clock.Timer
	if *timerAt != 0 {
		timer = clock.NewTimer(false, *timerAt)
	}

	printer := trace.NewPrinter(os.Stdout, prof.Color)

	if *interactive {
		return runInteractive(m, printer, timer)
	}
	return runBatch(m, printer, timer, prof)
}

// runBatch steps the machine to completion, showing a progress bar
// against the instruction budget when one is configured (benchmark
// main.go's progressbar.Default(n) pattern) and otherwise stepping
// unbounded.
func runBatch(m *engine.Machine, printer *trace.Printer, timer *clock.Timer, prof config.Profile) error {
	var pb *progressbar.ProgressBar
	if prof.MaxInstructions > 0 {
		pb = progressbar.Default(int64(prof.MaxInstructions))
		defer pb.Close()
	}

	for {
		if timer != nil {
			timer.Tick(m)
		}
		res := m.Step()
		if pb != nil {
			pb.Add(1)
		}
		if prof.Trace {
			traceResult(printer, m, res)
		}
		if res.Kind != engine.StepContinue {
			return reportTerminal(res)
		}
	}
}

// runInteractive puts the terminal into raw mode and retires one
// instruction per keypress, 'q' quits. Grounded on cmd/cc/main.go's
// term.MakeRaw/term.Restore pairing, guarded the same way by
// term.IsTerminal.
func runInteractive(m *engine.Machine, printer *trace.Printer, timer *clock.Timer) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("rv64sim: -step requires an interactive terminal")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enable raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		if buf[0] == 'q' {
			return nil
		}

		if timer != nil {
			timer.Tick(m)
		}
		res := m.Step()
		traceResult(printer, m, res)
		if res.Kind != engine.StepContinue {
			return reportTerminal(res)
		}
	}
}

func traceResult(printer *trace.Printer, m *engine.Machine, res engine.StepResult) {
	switch res.Kind {
	case engine.StepTrapped:
		printer.Trap(res.Trap.Cause, res.Trap.IsInterrupt, res.Trap.Tval)
	case engine.StepHalt:
		reason := "host-exit"
		if res.HaltReason == engine.HaltMaxInstructions {
			reason = "max-instructions"
		}
		printer.Halt(reason, res.Code)
	default:
		pc, raw := m.LastFetch()
		printer.Step(pc, raw)
	}
}

func reportTerminal(res engine.StepResult) error {
	switch res.Kind {
	case engine.StepHalt:
		if res.HaltReason == engine.HaltHostExit && res.Code != 1 {
			return fmt.Errorf("guest exited with failure code 0x%x (gp=0x%x)", res.Code, res.GP)
		}
		return nil
	case engine.StepTrapped:
		return fmt.Errorf("unhandled trap: cause=%d interrupt=%v tval=0x%x pc=0x%x",
			res.Trap.Cause, res.Trap.IsInterrupt, res.Trap.Tval, res.Trap.PC)
	default:
		return nil
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("rv64sim failed", "error", err)
		os.Exit(1)
	}
}
