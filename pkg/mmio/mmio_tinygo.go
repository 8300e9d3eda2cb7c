//go:build tinygo

package mmio

import "runtime/volatile"

// Register32 is a 32-bit hardware memory cell.
type Register32 = volatile.Register32
