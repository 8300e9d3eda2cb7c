package regs

import (
	"fmt"
	"unsafe"

	"github.com/ardnew/pic32usb/pkg"
	"github.com/ardnew/pic32usb/pkg/mem"
	"github.com/ardnew/pic32usb/pkg/mmio"
)

// Buffer descriptor flag bits (word 0, bits 15:0).
const (
	BD_UOWN   = 0x80 // owned by the USB module
	BD_DATA01 = 0x40 // DATA1 packet expected/sent
	BD_KEEP   = 0x20 // module keeps ownership after the transaction
	BD_NINC   = 0x10 // DMA address not incremented
	BD_DTS    = 0x08 // data toggle synchronization enabled
	BD_STALL  = 0x04 // issue STALL handshake

	BD_PID_Msk = 0x3C // token PID written back by the module
	BD_PID_Pos = 2

	BD_COUNT_Msk = 0x3FF // byte count field, word 0 bits 25:16
	BD_COUNT_Pos = 16
)

// PID is a USB token packet identifier as written back into a descriptor.
type PID uint8

// Token PIDs.
const (
	PIDOut   PID = 0x1
	PIDIn    PID = 0x9
	PIDSetup PID = 0xD
)

// String returns the token name.
func (p PID) String() string {
	switch p {
	case PIDOut:
		return "OUT"
	case PIDIn:
		return "IN"
	case PIDSetup:
		return "SETUP"
	default:
		return fmt.Sprintf("PID(%#x)", uint8(p))
	}
}

// Ownership identifies which side may modify a buffer descriptor.
type Ownership uint8

// Descriptor owners.
const (
	Software Ownership = iota // CPU may modify the descriptor
	Hardware                  // USB module owns the descriptor
)

// String returns the owner name.
func (o Ownership) String() string {
	if o == Hardware {
		return "hardware"
	}
	return "software"
}

// BufferDescriptor is one entry of the buffer descriptor table.
type BufferDescriptor struct {
	ctl  mmio.Register32 // flags, byte count
	addr mmio.Register32 // physical buffer address
}

// DescriptorSize is the size of a [BufferDescriptor] in bytes.
const DescriptorSize = 8

// Flags returns the flag bits of the descriptor.
func (bd *BufferDescriptor) Flags() uint16 {
	return uint16(bd.ctl.Get())
}

// SetFlags replaces the flag bits of the descriptor. Setting BD_UOWN hands
// the descriptor to the USB module, so it must be the last write.
func (bd *BufferDescriptor) SetFlags(flags uint16) {
	bd.ctl.ReplaceBits(uint32(flags), 0xFFFF, 0)
}

// ByteCount returns the byte count field.
func (bd *BufferDescriptor) ByteCount() uint16 {
	return uint16(bd.ctl.Get()>>BD_COUNT_Pos) & BD_COUNT_Msk
}

// SetByteCount sets the byte count field.
func (bd *BufferDescriptor) SetByteCount(n uint16) {
	bd.ctl.ReplaceBits(uint32(n), BD_COUNT_Msk, BD_COUNT_Pos)
}

// BufferAddress returns the physical address of the descriptor's buffer.
func (bd *BufferDescriptor) BufferAddress() mem.PhysAddr {
	return mem.PhysAddr(bd.addr.Get())
}

// SetBufferAddress sets the physical address of the descriptor's buffer.
func (bd *BufferDescriptor) SetBufferAddress(p mem.PhysAddr) {
	bd.addr.Set(uint32(p))
}

// Control returns word 0 of the descriptor.
func (bd *BufferDescriptor) Control() uint32 {
	return bd.ctl.Get()
}

// SetControl writes word 0 of the descriptor in a single access.
func (bd *BufferDescriptor) SetControl(w uint32) {
	bd.ctl.Set(w)
}

// Owner returns the current owner of the descriptor.
func (bd *BufferDescriptor) Owner() Ownership {
	if bd.ctl.HasBits(BD_UOWN) {
		return Hardware
	}
	return Software
}

// PID returns the token PID written back by the module on completion.
func (bd *BufferDescriptor) PID() PID {
	return PID((bd.Flags() & BD_PID_Msk) >> BD_PID_Pos)
}

// Buffer descriptor table geometry.
const (
	TableLen   = 4 * NumEndpoints          // descriptors
	TableSize  = TableLen * DescriptorSize // bytes
	TableAlign = 512                       // required physical alignment
)

// Table is the buffer descriptor table: for each endpoint, the even and odd
// descriptors of the OUT direction followed by those of the IN direction.
type Table [TableLen]BufferDescriptor

// Index returns the position of a descriptor in the table.
func Index(ep int, in, odd bool) int {
	i := ep << 2
	if in {
		i |= 2
	}
	if odd {
		i |= 1
	}
	return i
}

// At returns the descriptor at flat index i.
func (t *Table) At(i int) *BufferDescriptor {
	return &t[i]
}

// Pair returns the even/odd descriptor pair of one endpoint direction.
func (t *Table) Pair(ep int, in bool) *[2]BufferDescriptor {
	i := Index(ep, in, false)
	return (*[2]BufferDescriptor)(t[i : i+2])
}

// TableAt returns the table stored in b. The block must be large enough and
// aligned as the module requires.
func TableAt(b mem.Block) (*Table, error) {
	if b.Len() < TableSize {
		return nil, fmt.Errorf("bdt: block of %d bytes: %w", b.Len(), pkg.ErrInvalidParameter)
	}
	if !b.Phys.Aligned(TableAlign) {
		return nil, fmt.Errorf("bdt at %s: %w", b.Phys, pkg.ErrMisaligned)
	}
	p := unsafe.Pointer(&b.Bytes[0])
	if uintptr(p)&3 != 0 {
		return nil, fmt.Errorf("bdt: cpu address %#x: %w", uintptr(p), pkg.ErrMisaligned)
	}
	return (*Table)(p), nil
}
