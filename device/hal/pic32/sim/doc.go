// Package sim simulates the PIC32MX USB module and the host end of the bus.
//
// A [Peripheral] implements [regs.Registers], so the driver in package pic32
// runs against it unchanged. Register semantics follow the silicon where the
// driver depends on them: CLR/SET/INV aliases, write-one-to-clear interrupt
// flags, and the 4-deep U1STAT FIFO that advances when TRNIF is cleared.
// Buffer descriptors and transaction buffers live in a [mem.Arena] that both
// the driver and the simulated bus master use.
//
// The host side runs whole transactions:
//
//	ram := sim.NewRAM()
//	p := sim.New(ram)
//	bus, _ := pic32.New(p, ram)
//	...
//	p.BusReset()
//	err := p.Setup(0, [8]byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00})
//	pkt, err := p.In(0)
//
// Token outcomes are reported as errors: [pkg.ErrNAK] when no buffer is
// armed, [pkg.ErrStall] for a stalled endpoint, [pkg.ErrBusy] while token
// processing is disabled after a SETUP.
package sim
