// Package elfload loads a statically linked RISC-V ELF64 executable into a
// Machine's physical memory. It is the "external collaborator" the engine
// spec assumes but does not implement: only the physical-write interface is
// assumed by the core.
//
// Behavior is grounded on original_source/src/elf/mod.rs (load_elf_into_memory
// and find_tohost_symbol), translated from goblin to the standard library's
// debug/elf — the example pack carries no third-party ELF parser, and
// debug/elf covers the same PT_LOAD/symbol-table surface goblin does.
package elfload

import (
	"debug/elf"
	"fmt"
)

// PhysicalMemory is the subset of *engine.Memory the loader writes through.
type PhysicalMemory interface {
	WriteBytes(addr uint64, b []byte) error
	Base() uint64
	End() uint64
}

// Result carries what the loader discovered about the binary beyond its
// raw bytes.
type Result struct {
	Entry     uint64
	ToHost    uint64
	HasToHost bool
}

// Load validates the ELF header (64-bit, little-endian, RISC-V, executable
// or PIE), writes every PT_LOAD segment's file bytes into memory at its
// program-header virtual address (bare-mode addressing, per §6), zero-fills
// the gap between file size and memory size, and reports the entry point
// plus any "tohost" symbol found.
func Load(f *elf.File, mem PhysicalMemory) (Result, error) {
	if f.Class != elf.ELFCLASS64 {
		return Result{}, fmt.Errorf("elfload: expected 64-bit ELF, got %s", f.Class)
	}
	if f.Data != elf.ELFDATA2LSB {
		return Result{}, fmt.Errorf("elfload: expected little-endian ELF, got %s", f.Data)
	}
	if f.Machine != elf.EM_RISCV {
		return Result{}, fmt.Errorf("elfload: expected RISC-V ELF, got %s", f.Machine)
	}
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return Result{}, fmt.Errorf("elfload: unsupported ELF type %s (want ET_EXEC or ET_DYN)", f.Type)
	}

	ramEnd := mem.End()
	ramBase := mem.Base()

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		vaddr := prog.Vaddr
		segEnd := vaddr + prog.Memsz
		if vaddr < ramBase || segEnd > ramEnd {
			return Result{}, fmt.Errorf("elfload: segment [0x%x,0x%x) outside RAM [0x%x,0x%x)", vaddr, segEnd, ramBase, ramEnd)
		}

		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			return Result{}, fmt.Errorf("elfload: reading segment at 0x%x: %w", vaddr, err)
		}
		if err := mem.WriteBytes(vaddr, data); err != nil {
			return Result{}, fmt.Errorf("elfload: writing segment at 0x%x: %w", vaddr, err)
		}

		if prog.Memsz > prog.Filesz {
			bss := make([]byte, prog.Memsz-prog.Filesz)
			if err := mem.WriteBytes(vaddr+prog.Filesz, bss); err != nil {
				return Result{}, fmt.Errorf("elfload: zero-filling bss at 0x%x: %w", vaddr+prog.Filesz, err)
			}
		}
	}

	result := Result{Entry: f.Entry}
	if addr, ok := findToHost(f); ok {
		result.ToHost, result.HasToHost = addr, true
	}
	return result, nil
}

// findToHost scans the ELF symbol table for a symbol literally named
// "tohost", the RISC-V test-suite convention for the host-exit door
// address.
func findToHost(f *elf.File) (uint64, bool) {
	syms, err := f.Symbols()
	if err != nil {
		return 0, false
	}
	for _, s := range syms {
		if s.Name == "tohost" {
			return s.Value, true
		}
	}
	return 0, false
}
