package engine

import (
	"encoding/binary"
	"fmt"
)

// RAMBase is the fixed physical base address backing the simulated RAM.
const RAMBase uint64 = 0x8000_0000

var memEndian = binary.LittleEndian

// OutOfBoundsError reports a physical access outside the backing store,
// distinct from any MMU translation fault.
type OutOfBoundsError struct {
	Addr uint64
	Size int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("physical access out of bounds: addr=0x%x size=%d", e.Addr, e.Size)
}

// Memory is a contiguous physical byte store rooted at RAMBase. All typed
// accessors are little-endian and permit misaligned access; an access fails
// if any byte of it falls outside [RAMBase, RAMBase+len).
type Memory struct {
	base uint64
	data []byte
}

// NewMemory allocates size bytes of zeroed physical RAM starting at RAMBase.
func NewMemory(size uint64) *Memory {
	return &Memory{base: RAMBase, data: make([]byte, size)}
}

func (m *Memory) Base() uint64 { return m.base }
func (m *Memory) Size() uint64 { return uint64(len(m.data)) }
func (m *Memory) End() uint64  { return m.base + uint64(len(m.data)) }

func (m *Memory) offset(addr uint64, size int) (int, error) {
	if addr < m.base {
		return 0, &OutOfBoundsError{Addr: addr, Size: size}
	}
	off := addr - m.base
	end := off + uint64(size)
	if end > uint64(len(m.data)) {
		return 0, &OutOfBoundsError{Addr: addr, Size: size}
	}
	return int(off), nil
}

func (m *Memory) ReadByte(addr uint64) (uint8, error) {
	off, err := m.offset(addr, 1)
	if err != nil {
		return 0, err
	}
	return m.data[off], nil
}

func (m *Memory) WriteByte(addr uint64, v uint8) error {
	off, err := m.offset(addr, 1)
	if err != nil {
		return err
	}
	m.data[off] = v
	return nil
}

func (m *Memory) ReadHalf(addr uint64) (uint16, error) {
	off, err := m.offset(addr, 2)
	if err != nil {
		return 0, err
	}
	return memEndian.Uint16(m.data[off:]), nil
}

func (m *Memory) WriteHalf(addr uint64, v uint16) error {
	off, err := m.offset(addr, 2)
	if err != nil {
		return err
	}
	memEndian.PutUint16(m.data[off:], v)
	return nil
}

func (m *Memory) ReadWord(addr uint64) (uint32, error) {
	off, err := m.offset(addr, 4)
	if err != nil {
		return 0, err
	}
	return memEndian.Uint32(m.data[off:]), nil
}

func (m *Memory) WriteWord(addr uint64, v uint32) error {
	off, err := m.offset(addr, 4)
	if err != nil {
		return err
	}
	memEndian.PutUint32(m.data[off:], v)
	return nil
}

func (m *Memory) ReadDouble(addr uint64) (uint64, error) {
	off, err := m.offset(addr, 8)
	if err != nil {
		return 0, err
	}
	return memEndian.Uint64(m.data[off:]), nil
}

func (m *Memory) WriteDouble(addr uint64, v uint64) error {
	off, err := m.offset(addr, 8)
	if err != nil {
		return err
	}
	memEndian.PutUint64(m.data[off:], v)
	return nil
}

// WriteBytes places a contiguous slice at addr, used by the ELF loader.
func (m *Memory) WriteBytes(addr uint64, b []byte) error {
	off, err := m.offset(addr, len(b))
	if err != nil {
		return err
	}
	copy(m.data[off:], b)
	return nil
}

// ReadBytes returns a copy of length bytes at addr.
func (m *Memory) ReadBytes(addr uint64, length int) ([]byte, error) {
	off, err := m.offset(addr, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.data[off:off+length])
	return out, nil
}
