package regs

import "github.com/ardnew/pic32usb/pkg/mem"

// Base is the KSEG1 virtual address of the first USB module register
// (U1OTGIR) on PIC32MX devices.
const Base uintptr = 0xBF885040

// Reg is the offset of a special function register from [Base].
type Reg uintptr

// Atomic alias offsets, added to the address of any SFR.
const (
	aliasCLR Reg = 0x4 // clear bits written as 1
	aliasSET Reg = 0x8 // set bits written as 1
	aliasINV Reg = 0xC // invert bits written as 1

	// AliasMask selects the alias part of a register offset.
	AliasMask Reg = 0xF
)

// Clr returns the CLR alias of r.
func (r Reg) Clr() Reg { return r + aliasCLR }

// Set returns the SET alias of r.
func (r Reg) Set() Reg { return r + aliasSET }

// Inv returns the INV alias of r.
func (r Reg) Inv() Reg { return r + aliasINV }

// Alias returns the alias part of r (0, CLR, SET or INV offset).
func (r Reg) Alias() Reg { return r & AliasMask }

// Plain returns r without its alias part.
func (r Reg) Plain() Reg { return r &^ AliasMask }

// IsClr reports whether r addresses a CLR alias.
func (r Reg) IsClr() bool { return r.Alias() == aliasCLR }

// IsSet reports whether r addresses a SET alias.
func (r Reg) IsSet() bool { return r.Alias() == aliasSET }

// IsInv reports whether r addresses an INV alias.
func (r Reg) IsInv() bool { return r.Alias() == aliasINV }

// USB module registers.
const (
	U1OTGIR   Reg = 0x000 // OTG interrupt status
	U1OTGIE   Reg = 0x010 // OTG interrupt enable
	U1OTGSTAT Reg = 0x020 // OTG status
	U1OTGCON  Reg = 0x030 // OTG control
	U1PWRC    Reg = 0x040 // power control
	U1IR      Reg = 0x1C0 // interrupt status
	U1IE      Reg = 0x1D0 // interrupt enable
	U1EIR     Reg = 0x1E0 // error interrupt status
	U1EIE     Reg = 0x1F0 // error interrupt enable
	U1STAT    Reg = 0x200 // transaction status (4-deep FIFO)
	U1CON     Reg = 0x210 // control
	U1ADDR    Reg = 0x220 // device address
	U1BDTP1   Reg = 0x230 // BDT page 1, address bits 15:9
	U1FRML    Reg = 0x240 // frame number low
	U1FRMH    Reg = 0x250 // frame number high
	U1TOK     Reg = 0x260 // host token
	U1SOF     Reg = 0x270 // SOF threshold
	U1BDTP2   Reg = 0x280 // BDT page 2, address bits 23:16
	U1BDTP3   Reg = 0x290 // BDT page 3, address bits 31:24
	U1CNFG1   Reg = 0x2A0 // configuration
	U1EP0     Reg = 0x2C0 // endpoint 0 control
)

// NumEndpoints is the number of endpoint numbers supported by the module.
const NumEndpoints = 16

// epStride is the distance between consecutive endpoint control registers.
const epStride Reg = 0x10

// U1EP returns the endpoint control register of endpoint n.
func U1EP(n int) Reg {
	return U1EP0 + Reg(n)*epStride
}

// EndOfMap is the first offset past the last USB module register.
const EndOfMap = U1EP0 + NumEndpoints*epStride

// U1IR and U1IE bits. U1IR bits are write-1-to-clear.
const (
	U1IR_URSTIF   = 1 << 0 // USB reset (device mode)
	U1IR_UERRIF   = 1 << 1 // error condition, see U1EIR
	U1IR_SOFIF    = 1 << 2 // start of frame
	U1IR_TRNIF    = 1 << 3 // transaction complete, U1STAT valid
	U1IR_IDLEIF   = 1 << 4 // idle detected
	U1IR_RESUMEIF = 1 << 5 // resume
	U1IR_ATTACHIF = 1 << 6 // peripheral attach (host mode)
	U1IR_STALLIF  = 1 << 7 // STALL handshake sent

	U1IE_URSTIE   = U1IR_URSTIF
	U1IE_UERRIE   = U1IR_UERRIF
	U1IE_SOFIE    = U1IR_SOFIF
	U1IE_TRNIE    = U1IR_TRNIF
	U1IE_IDLEIE   = U1IR_IDLEIF
	U1IE_RESUMEIE = U1IR_RESUMEIF
	U1IE_ATTACHIE = U1IR_ATTACHIF
	U1IE_STALLIE  = U1IR_STALLIF
)

// U1EIR bits (write-1-to-clear).
const (
	U1EIR_PIDEF   = 1 << 0 // PID check failure
	U1EIR_CRC5EF  = 1 << 1 // CRC5 host error
	U1EIR_CRC16EF = 1 << 2 // CRC16 failure
	U1EIR_DFN8EF  = 1 << 3 // data field size not a multiple of 8 bits
	U1EIR_BTOEF   = 1 << 4 // bus turnaround time-out
	U1EIR_DMAEF   = 1 << 5 // DMA error, e.g. buffer overrun
	U1EIR_BMXEF   = 1 << 6 // bus matrix error
	U1EIR_BTSEF   = 1 << 7 // bit stuff error
)

// U1CON bits.
const (
	U1CON_USBEN  = 1 << 0 // USB module and D+ pull-up enable (device mode), SOFEN in host mode
	U1CON_PPBRST = 1 << 1 // reset all ping-pong pointers to even
	U1CON_RESUME = 1 << 2 // drive resume signaling
	U1CON_HOSTEN = 1 << 3 // host mode enable
	U1CON_USBRST = 1 << 4 // drive reset signaling (host mode)
	U1CON_PKTDIS = 1 << 5 // token processing disabled, set by hardware on SETUP
	U1CON_SE0    = 1 << 6 // live single-ended zero
	U1CON_JSTATE = 1 << 7 // live differential receiver J state
)

// U1PWRC bits.
const (
	U1PWRC_USBPWR   = 1 << 0 // module power
	U1PWRC_USUSPEND = 1 << 1 // suspend
	U1PWRC_USBBUSY  = 1 << 3 // module busy
)

// U1EPn bits.
const (
	U1EP_EPHSHK   = 0x01 // handshake enable
	U1EP_EPSTALL  = 0x02 // endpoint stalled
	U1EP_EPTXEN   = 0x04 // TX (IN) enable
	U1EP_EPRXEN   = 0x08 // RX (OUT, SETUP) enable
	U1EP_EPCONDIS = 0x10 // control (SETUP) transfers disabled
)

// U1ADDR device address field.
const U1ADDR_DEVADDR = 0x7F

// U1STAT fields.
const (
	U1STAT_ENDPT_Msk = 0xF0
	U1STAT_ENDPT_Pos = 4
	U1STAT_DIR       = 1 << 3 // last transaction was IN (transmit)
	U1STAT_PPBI      = 1 << 2 // last transaction used the odd buffer
)

// Status is a snapshot of U1STAT identifying one completed transaction.
type Status uint32

// MakeStatus encodes the U1STAT value of a transaction.
func MakeStatus(ep int, in, odd bool) Status {
	s := Status(ep<<U1STAT_ENDPT_Pos) & U1STAT_ENDPT_Msk
	if in {
		s |= U1STAT_DIR
	}
	if odd {
		s |= U1STAT_PPBI
	}
	return s
}

// Endpoint returns the endpoint number of the transaction.
func (s Status) Endpoint() int {
	return int(s&U1STAT_ENDPT_Msk) >> U1STAT_ENDPT_Pos
}

// In reports whether the transaction was an IN (transmit) transaction.
func (s Status) In() bool {
	return s&U1STAT_DIR != 0
}

// Odd reports whether the transaction used the odd buffer.
func (s Status) Odd() bool {
	return s&U1STAT_PPBI != 0
}

// Index returns the position of the transaction's descriptor in the BDT.
func (s Status) Index() int {
	return int(s>>2) & (TableLen - 1)
}

// BDTPages splits the physical BDT address into the values of U1BDTP1,
// U1BDTP2 and U1BDTP3.
func BDTPages(p mem.PhysAddr) (p1, p2, p3 uint32) {
	return uint32(p>>8) & 0xFF, uint32(p>>16) & 0xFF, uint32(p>>24) & 0xFF
}

// BDTBase reassembles the physical BDT address from U1BDTP1..3. Bit 0 of
// U1BDTP1 is not implemented because the table is 512-byte aligned.
func BDTBase(p1, p2, p3 uint32) mem.PhysAddr {
	return mem.PhysAddr((p3&0xFF)<<24 | (p2&0xFF)<<16 | (p1&0xFE)<<8)
}

// Registers is the window onto the USB module's special function registers.
// Implementations perform every Load and Store as a volatile access of
// the 32-bit register at the given offset, including alias offsets.
type Registers interface {
	Load(r Reg) uint32
	Store(r Reg, value uint32)
}
