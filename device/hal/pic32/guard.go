package pic32

import "sync/atomic"

// guard enforces exclusive access to the bus state. The driver is called
// from one execution context at a time, so a second concurrent entry is a
// programming error and panics instead of waiting.
type guard struct {
	busy atomic.Bool
}

func (g *guard) acquire() {
	if !g.busy.CompareAndSwap(false, true) {
		panic("pic32: re-entrant bus access")
	}
}

func (g *guard) release() {
	g.busy.Store(false)
}
