// Package regs is the bit-exact hardware contract of the PIC32MX USB module.
//
// It defines the special function register (SFR) map, the bit fields of the
// registers the device driver uses, the layout of a buffer descriptor and of
// the buffer descriptor table (BDT), and the [Registers] interface through
// which all SFR accesses are made.
//
// # Register Access
//
// Every PIC32 SFR has three atomic alias registers at fixed offsets that
// clear, set, or invert the bits written to them:
//
//	bus.Store(regs.U1CON.Clr(), regs.U1CON_PKTDIS) // U1CONCLR = PKTDIS
//
// Interrupt flag registers (U1IR, U1EIR, U1OTGIR) are write-1-to-clear.
//
// # Buffer Descriptors
//
// A buffer descriptor is two 32-bit words in RAM that both the CPU and the
// USB module read and write. Ownership of a descriptor is transferred by
// the UOWN bit: software arms a descriptor by setting UOWN, the module
// clears it when the transaction completes. Software must not modify a
// descriptor while the module owns it.
package regs
