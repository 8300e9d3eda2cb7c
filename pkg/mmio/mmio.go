//go:build !tinygo

package mmio

import "sync/atomic"

// Register32 is a 32-bit hardware memory cell.
type Register32 struct {
	Reg uint32
}

// Get returns the value of the cell.
func (r *Register32) Get() uint32 {
	return atomic.LoadUint32(&r.Reg)
}

// Set stores value into the cell.
func (r *Register32) Set(value uint32) {
	atomic.StoreUint32(&r.Reg, value)
}

// SetBits sets the bits of value in the cell (read-modify-write).
func (r *Register32) SetBits(value uint32) {
	for {
		old := atomic.LoadUint32(&r.Reg)
		if atomic.CompareAndSwapUint32(&r.Reg, old, old|value) {
			return
		}
	}
}

// ClearBits clears the bits of value in the cell (read-modify-write).
func (r *Register32) ClearBits(value uint32) {
	for {
		old := atomic.LoadUint32(&r.Reg)
		if atomic.CompareAndSwapUint32(&r.Reg, old, old&^value) {
			return
		}
	}
}

// HasBits reports whether any bit of value is set in the cell.
func (r *Register32) HasBits(value uint32) bool {
	return r.Get()&value != 0
}

// ReplaceBits replaces the field mask<<pos with value<<pos.
func (r *Register32) ReplaceBits(value uint32, mask uint32, pos uint8) {
	for {
		old := atomic.LoadUint32(&r.Reg)
		next := old&^(mask<<pos) | (value&mask)<<pos
		if atomic.CompareAndSwapUint32(&r.Reg, old, next) {
			return
		}
	}
}
