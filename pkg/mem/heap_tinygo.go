//go:build tinygo && mips

package mem

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ardnew/pic32usb/pkg"
)

// Heap allocates DMA memory from the Go heap of a MIPS microcontroller.
// Blocks stay reachable through the heap until freed, so the collector never
// reclaims memory the peripheral still addresses.
type Heap struct {
	mutex sync.Mutex
	live  map[PhysAddr][]byte
}

// NewHeap returns an empty heap allocator.
func NewHeap() *Heap {
	return &Heap{live: make(map[PhysAddr][]byte)}
}

// Alloc implements [Allocator].
func (h *Heap) Alloc(size, align int) (Block, error) {
	if size < 0 || !isPow2(align) {
		return Block{}, fmt.Errorf("alloc %d bytes (align %d): %w", size, align, pkg.ErrInvalidParameter)
	}
	raw := make([]byte, size+align)
	virt := uintptr(unsafe.Pointer(&raw[0]))
	pad := int(-VirtToPhys(virt)) & (align - 1)
	buf := raw[pad : pad+size : pad+size]
	phys := VirtToPhys(virt + uintptr(pad))

	h.mutex.Lock()
	h.live[phys] = raw
	h.mutex.Unlock()
	return Block{Bytes: buf, Phys: phys}, nil
}

// Free implements [Allocator].
func (h *Heap) Free(b Block) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.live[b.Phys]; !ok {
		return fmt.Errorf("free %s: %w", b.Phys, pkg.ErrInvalidParameter)
	}
	delete(h.live, b.Phys)
	return nil
}

var _ Allocator = (*Heap)(nil)
