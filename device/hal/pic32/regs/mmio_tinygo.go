//go:build tinygo && mips

package regs

import (
	"runtime/volatile"
	"unsafe"
)

// MMIO is the memory-mapped register window of the on-chip USB module.
type MMIO struct {
	base uintptr
}

// NewMMIO returns the register window at [Base].
func NewMMIO() *MMIO {
	return &MMIO{base: Base}
}

func (m *MMIO) reg(r Reg) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(m.base + uintptr(r)))
}

// Load implements [Registers].
func (m *MMIO) Load(r Reg) uint32 {
	return m.reg(r).Get()
}

// Store implements [Registers].
func (m *MMIO) Store(r Reg, value uint32) {
	m.reg(r).Set(value)
}

var _ Registers = (*MMIO)(nil)
