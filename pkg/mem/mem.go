package mem

import "fmt"

// PhysAddr is a physical bus address as seen by a DMA master.
type PhysAddr uint32

// String returns the address in hexadecimal.
func (p PhysAddr) String() string {
	return fmt.Sprintf("0x%08x", uint32(p))
}

// Aligned reports whether p is a multiple of align (a power of two).
func (p PhysAddr) Aligned(align int) bool {
	return uint32(p)&uint32(align-1) == 0
}

// Block is a region of DMA-reachable memory.
type Block struct {
	Bytes []byte   // CPU view
	Phys  PhysAddr // physical address of Bytes[0]
}

// Len returns the size of the block in bytes.
func (b Block) Len() int {
	return len(b.Bytes)
}

// Allocator hands out DMA-reachable memory.
type Allocator interface {
	// Alloc returns a zeroed block of size bytes whose physical address is a
	// multiple of align. align must be a power of two.
	Alloc(size, align int) (Block, error)

	// Free releases a block obtained from Alloc.
	Free(b Block) error
}

// MIPS fixed mapping translation segments.
const (
	ksegBase = 0x80000000 // start of KSEG0 (cached) and KSEG1 (uncached)
	ksegMask = 0x1FFFFFFF // physical address bits of KSEG0/KSEG1
	kusegOff = 0x40000000 // physical offset of KUSEG
)

// VirtToPhys translates a virtual address of a MIPS M4K/M14K core using the
// fixed mapping translation: KSEG0 and KSEG1 map onto the low 512 MiB, KUSEG
// is offset by 1 GiB.
func VirtToPhys(virt uintptr) PhysAddr {
	if virt >= ksegBase {
		return PhysAddr(virt & ksegMask)
	}
	return PhysAddr(virt + kusegOff)
}

// isPow2 reports whether n is a positive power of two.
func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}
