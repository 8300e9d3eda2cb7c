// Package mem provides memory that a bus-master peripheral can reach.
//
// The USB module of a PIC32 addresses RAM by physical address, so every
// buffer handed to it is described by a [Block]: the CPU view of the bytes
// and the physical address the peripheral uses for the same bytes.
//
// Two [Allocator] implementations exist:
//
//   - [Arena] manages a fixed RAM window with a first-fit free list. It is
//     used on the host, where it also serves as the DMA view of a simulated
//     peripheral through [Arena.Slice].
//   - Heap (TinyGo on MIPS only) allocates from the Go heap and translates
//     addresses with [VirtToPhys].
package mem
