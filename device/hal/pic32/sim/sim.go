package sim

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ardnew/pic32usb/device/hal/pic32/regs"
	"github.com/ardnew/pic32usb/pkg"
	"github.com/ardnew/pic32usb/pkg/capture"
	"github.com/ardnew/pic32usb/pkg/mem"
)

// Simulated data RAM. PIC32MX data RAM starts at physical address 0.
const (
	RAMBase mem.PhysAddr = 0x00000000
	RAMSize              = 32 << 10
)

// statDepth is the depth of the U1STAT FIFO.
const statDepth = 4

// NewRAM returns a data RAM arena for use with [New].
func NewRAM() *mem.Arena {
	return mem.NewArena(RAMBase, RAMSize)
}

// Packet is a data packet returned by the device for an IN token.
type Packet struct {
	Data  []byte
	Data1 bool // sent as DATA1
}

// Peripheral is a behavioral model of the PIC32MX USB module in device mode,
// together with the host side of the bus.
//
// The device side is the [regs.Registers] window used by the driver. The
// host side issues tokens with [Peripheral.Setup], [Peripheral.Out] and
// [Peripheral.In]; each runs one complete transaction against the buffer
// descriptor table in RAM, the way the serial interface engine does.
type Peripheral struct {
	mutex sync.Mutex
	ram   *mem.Arena
	log   *slog.Logger
	cap   *capture.Writer

	reg  [regs.EndOfMap >> 4]uint32
	stat []regs.Status

	ppbi    [regs.NumEndpoints][2]bool // next descriptor of the module is odd
	hostOut [regs.NumEndpoints]bool    // host sends DATA1 on the next OUT
}

var _ regs.Registers = (*Peripheral)(nil)

// Option configures a Peripheral.
type Option func(*Peripheral)

// WithLogger sets the logger used by the simulator.
func WithLogger(l *slog.Logger) Option {
	return func(p *Peripheral) {
		if l != nil {
			p.log = l
		}
	}
}

// WithCapture records every host transaction to w.
func WithCapture(w *capture.Writer) Option {
	return func(p *Peripheral) {
		p.cap = w
	}
}

// New returns a powered-off module whose bus master sees ram.
func New(ram *mem.Arena, opts ...Option) *Peripheral {
	p := &Peripheral{
		ram: ram,
		log: pkg.Logger(pkg.ComponentSim),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RAM returns the arena the module performs DMA in.
func (p *Peripheral) RAM() *mem.Arena {
	return p.ram
}

func index(r regs.Reg) int {
	if r.Plain() >= regs.EndOfMap {
		panic(fmt.Sprintf("sim: register offset %#x out of range", uintptr(r)))
	}
	return int(r.Plain() >> 4)
}

// w1c reports whether the flags of r are cleared by writing ones.
func w1c(r regs.Reg) bool {
	switch r {
	case regs.U1OTGIR, regs.U1IR, regs.U1EIR:
		return true
	}
	return false
}

// Load implements [regs.Registers]. Alias registers read as zero.
func (p *Peripheral) Load(r regs.Reg) uint32 {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	i := index(r)
	if r.Alias() != 0 {
		return 0
	}
	if r == regs.U1STAT {
		if len(p.stat) == 0 {
			return 0
		}
		return uint32(p.stat[0])
	}
	return p.reg[i]
}

// Store implements [regs.Registers].
func (p *Peripheral) Store(r regs.Reg, value uint32) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	i := index(r)
	plain := r.Plain()
	if plain == regs.U1STAT {
		return
	}
	old := p.reg[i]
	switch {
	case r.IsClr():
		p.reg[i] &^= value
	case r.IsSet():
		p.reg[i] |= value
	case r.IsInv():
		p.reg[i] ^= value
	case w1c(r):
		p.reg[i] &^= value
	default:
		p.reg[i] = value
	}

	switch plain {
	case regs.U1IR:
		if old&^p.reg[i]&regs.U1IR_TRNIF != 0 {
			p.popStat()
		}
	case regs.U1CON:
		if p.reg[i]&regs.U1CON_PPBRST != 0 {
			p.ppbi = [regs.NumEndpoints][2]bool{}
		}
	}
}

// popStat advances the U1STAT FIFO after TRNIF was cleared. TRNIF is
// asserted again while transactions remain.
func (p *Peripheral) popStat() {
	if len(p.stat) > 0 {
		p.stat = p.stat[1:]
	}
	if len(p.stat) > 0 {
		p.reg[index(regs.U1IR)] |= regs.U1IR_TRNIF
	}
}

func (p *Peripheral) load(r regs.Reg) uint32 {
	return p.reg[index(r)]
}

func (p *Peripheral) set(r regs.Reg, bits uint32) {
	p.reg[index(r)] |= bits
}

// Enabled reports whether the module is powered and attached to the bus.
func (p *Peripheral) Enabled() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.enabled()
}

func (p *Peripheral) enabled() bool {
	return p.load(regs.U1PWRC)&regs.U1PWRC_USBPWR != 0 &&
		p.load(regs.U1CON)&regs.U1CON_USBEN != 0
}

// Pending reports whether an enabled interrupt is flagged, that is, whether
// the USB interrupt would be requested.
func (p *Peripheral) Pending() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.load(regs.U1IR)&p.load(regs.U1IE) != 0
}

// Address returns the device address programmed in U1ADDR.
func (p *Peripheral) Address() uint8 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return uint8(p.load(regs.U1ADDR) & regs.U1ADDR_DEVADDR)
}

// Queued returns the number of transactions waiting in the U1STAT FIFO.
func (p *Peripheral) Queued() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.stat)
}

// table returns the buffer descriptor table programmed in U1BDTP1..3.
func (p *Peripheral) table() (*regs.Table, error) {
	base := regs.BDTBase(p.load(regs.U1BDTP1), p.load(regs.U1BDTP2), p.load(regs.U1BDTP3))
	b, err := p.ram.Slice(base, regs.TableSize)
	if err != nil {
		return nil, fmt.Errorf("sim: bdt: %w", err)
	}
	return regs.TableAt(mem.Block{Bytes: b, Phys: base})
}

func (p *Peripheral) record(e capture.Event, err error) {
	if p.cap == nil {
		return
	}
	e.Status = pkg.StatusOf(err)
	if werr := p.cap.Write(e); werr != nil {
		p.log.Warn("capture failed", "error", werr)
	}
}
