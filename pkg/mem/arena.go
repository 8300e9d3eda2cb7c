package mem

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/ardnew/pic32usb/pkg"
)

// span is a range of arena offsets.
type span struct {
	off  int
	size int
}

func (s span) end() int { return s.off + s.size }

// Arena is a fixed RAM window with a physical base address, managed by a
// first-fit free list. Adjacent free spans are coalesced on Free.
//
// Arena is safe for concurrent use.
type Arena struct {
	mutex sync.Mutex
	base  PhysAddr
	words []uint32 // backing store; keeps every block 4-byte aligned in CPU memory
	ram   []byte
	free  []span // sorted by offset, never adjacent
	live  map[PhysAddr]span
	used  int
}

// NewArena creates an arena of size bytes (rounded up to a multiple of 4)
// whose first byte has physical address base.
func NewArena(base PhysAddr, size int) *Arena {
	if size < 0 {
		size = 0
	}
	size = (size + 3) &^ 3
	a := &Arena{
		base: base,
		live: make(map[PhysAddr]span),
	}
	if size > 0 {
		a.words = make([]uint32, size/4)
		a.ram = unsafe.Slice((*byte)(unsafe.Pointer(&a.words[0])), size)
		a.free = []span{{0, size}}
	}
	return a
}

// Base returns the physical address of the first byte of the arena.
func (a *Arena) Base() PhysAddr {
	return a.base
}

// Size returns the capacity of the arena in bytes.
func (a *Arena) Size() int {
	return len(a.ram)
}

// Alloc implements [Allocator]. Sizes are reserved in multiples of 4 bytes;
// a zero size reserves 4 bytes so that every block has a distinct address.
func (a *Arena) Alloc(size, align int) (Block, error) {
	if size < 0 || !isPow2(align) {
		return Block{}, fmt.Errorf("alloc %d bytes (align %d): %w", size, align, pkg.ErrInvalidParameter)
	}
	reserve := (size + 3) &^ 3
	if reserve == 0 {
		reserve = 4
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	for i, s := range a.free {
		start := a.alignOffset(s.off, align)
		pad := start - s.off
		if pad+reserve > s.size {
			continue
		}

		var repl []span
		if pad > 0 {
			repl = append(repl, span{s.off, pad})
		}
		if rest := s.size - pad - reserve; rest > 0 {
			repl = append(repl, span{start + reserve, rest})
		}
		a.free = append(a.free[:i], append(repl, a.free[i+1:]...)...)

		phys := a.base + PhysAddr(start)
		a.live[phys] = span{start, reserve}
		a.used += reserve

		buf := a.ram[start : start+size : start+size]
		clear(buf)
		return Block{Bytes: buf, Phys: phys}, nil
	}
	return Block{}, fmt.Errorf("alloc %d bytes (align %d): %w", size, align, pkg.ErrNoMemory)
}

// alignOffset returns the smallest offset >= off whose physical address is
// a multiple of align.
func (a *Arena) alignOffset(off, align int) int {
	phys := uint64(a.base) + uint64(off)
	mask := uint64(align - 1)
	return int((phys+mask)&^mask - uint64(a.base))
}

// Free implements [Allocator].
func (a *Arena) Free(b Block) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	s, ok := a.live[b.Phys]
	if !ok {
		return fmt.Errorf("free %s: %w", b.Phys, pkg.ErrInvalidParameter)
	}
	delete(a.live, b.Phys)
	a.used -= s.size

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].off > s.off })
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = s

	// merge with successor, then predecessor
	if i+1 < len(a.free) && a.free[i].end() == a.free[i+1].off {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].end() == a.free[i].off {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	return nil
}

// Slice returns the n bytes at physical address phys. It is the view a bus
// master has of the arena.
func (a *Arena) Slice(phys PhysAddr, n int) ([]byte, error) {
	off := int64(phys) - int64(a.base)
	if off < 0 || n < 0 || off+int64(n) > int64(len(a.ram)) {
		return nil, fmt.Errorf("dma %s+%d: %w", phys, n, pkg.ErrInvalidParameter)
	}
	return a.ram[off : off+int64(n) : off+int64(n)], nil
}

// Used returns the number of bytes currently reserved.
func (a *Arena) Used() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.used
}

// Available returns the number of free bytes, regardless of fragmentation.
func (a *Arena) Available() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	n := 0
	for _, s := range a.free {
		n += s.size
	}
	return n
}

// Compile-time interface check
var _ Allocator = (*Arena)(nil)
