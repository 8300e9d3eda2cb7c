// Package pic32 is the device controller driver for the Full-Speed USB module
// of PIC32MX microcontrollers.
//
// The module and software share the buffer descriptor table (BDT): for each
// endpoint direction an even and an odd descriptor, each pointing at a
// transaction buffer. Software fills a buffer, then sets the descriptor's
// UOWN bit to hand it to the module. The module runs the transaction, writes
// the token PID and byte count back, clears UOWN and reports the descriptor
// in U1STAT. The two descriptors are used alternately (ping-pong), so one
// can be prepared while the other is in flight.
//
// [Bus] implements [hal.Bus]. Each allocated endpoint direction is driven by
// an endpoint control block that counts armed and completed buffers and
// tracks the DATA0/DATA1 toggle. [Bus.Poll] drains completions and reports
// which endpoints have data to read or finished IN transactions.
//
// # Usage
//
//	bus, err := pic32.New(regs.NewMMIO(), mem.NewHeap())
//	if err != nil {
//	    return err
//	}
//	ep0 := hal.NewEndpointAddress(0, hal.Out)
//	bus.AllocEP(hal.Out, &ep0, hal.EndpointTypeControl, 8, 0)
//	...
//	bus.Enable()
//
// The driver is not safe for concurrent use. All calls must come from one
// execution context; a re-entrant call panics.
package pic32
