// Package mmio provides hardware memory cells.
//
// A cell is a 32-bit word shared between software and a peripheral that
// reads and writes it on its own schedule, such as a special function
// register or a DMA descriptor in RAM. Every access to a cell is a real
// memory access: the compiler may not elide, merge, or reorder it.
//
// On TinyGo targets [Register32] is [runtime/volatile.Register32]. On other
// platforms it is implemented with [sync/atomic], which gives the same
// guarantees to a simulated peripheral running in the same process.
package mmio
