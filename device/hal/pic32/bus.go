package pic32

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ardnew/pic32usb/device/hal"
	"github.com/ardnew/pic32usb/device/hal/pic32/regs"
	"github.com/ardnew/pic32usb/pkg"
	"github.com/ardnew/pic32usb/pkg/mem"
)

// Bus is the PIC32 USB device bus. It owns the buffer descriptor table, the
// USB module registers and the endpoint control blocks.
type Bus struct {
	g     guard
	r     regs.Registers
	alloc mem.Allocator
	log   *slog.Logger

	bdtMem mem.Block
	bdt    *regs.Table
	ecb    [regs.NumEndpoints][2]*endpointControlBlock

	// OUT and SETUP completions reported until the endpoint is read.
	prOut uint16
	prSu  uint16

	closed bool
}

var _ hal.Bus = (*Bus)(nil)

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used by the bus.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// New takes over the USB module behind r: it turns the module off, powers
// it, disables all endpoints, and programs the physical address of a buffer
// descriptor table allocated from a. Buffers of endpoints allocated later
// also come from a, which must hand out DMA-reachable memory.
func New(r regs.Registers, a mem.Allocator, opts ...Option) (*Bus, error) {
	b := &Bus{
		r:     r,
		alloc: a,
		log:   pkg.Logger(pkg.ComponentBus),
	}
	for _, opt := range opts {
		opt(b)
	}

	r.Store(regs.U1CON, 0)
	r.Store(regs.U1OTGCON, 0)
	r.Store(regs.U1PWRC, regs.U1PWRC_USBPWR)
	for i := 0; i < regs.NumEndpoints; i++ {
		r.Store(regs.U1EP(i), 0)
	}

	blk, err := a.Alloc(regs.TableSize, regs.TableAlign)
	if err != nil {
		return nil, fmt.Errorf("pic32: allocate bdt: %w", err)
	}
	bdt, err := regs.TableAt(blk)
	if err != nil {
		_ = a.Free(blk)
		return nil, fmt.Errorf("pic32: %w", err)
	}
	for i := range bdt {
		bdt[i].SetControl(0)
		bdt[i].SetBufferAddress(0)
	}
	b.bdtMem, b.bdt = blk, bdt

	p1, p2, p3 := regs.BDTPages(blk.Phys)
	r.Store(regs.U1BDTP3, p3)
	r.Store(regs.U1BDTP2, p2)
	r.Store(regs.U1BDTP1, p1)

	b.log.Debug("bus initialized", "bdt", blk.Phys)
	return b, nil
}

// Close masks all USB interrupts, powers the module down and releases the
// endpoint buffers and the descriptor table. The bus must not be used
// afterwards.
func (b *Bus) Close() error {
	b.g.acquire()
	defer b.g.release()

	if b.closed {
		return nil
	}
	b.closed = true
	b.r.Store(regs.U1IE, 0)
	b.r.Store(regs.U1PWRC, 0)

	var errs []error
	for ep := range b.ecb {
		for dir, e := range b.ecb[ep] {
			if e == nil {
				continue
			}
			if err := e.free(b.alloc); err != nil {
				errs = append(errs, err)
			}
			b.ecb[ep][dir] = nil
		}
	}
	if err := b.alloc.Free(b.bdtMem); err != nil {
		errs = append(errs, err)
	}
	b.bdt = nil
	b.log.Debug("bus closed")
	return errors.Join(errs...)
}

// dirIndex returns the ECB array index of a direction.
func dirIndex(in bool) int {
	if in {
		return 1
	}
	return 0
}

// AllocEP allocates an endpoint. A control endpoint is bidirectional and
// therefore allocated twice, once for each direction. OUT endpoints are
// armed for reception immediately.
func (b *Bus) AllocEP(dir hal.Direction, addr *hal.EndpointAddress, typ hal.EndpointType,
	maxPacketSize uint16, interval uint8,
) (hal.EndpointAddress, error) {
	b.g.acquire()
	defer b.g.release()

	if b.closed {
		return 0, fmt.Errorf("allocate endpoint on closed bus: %w", pkg.ErrInvalidState)
	}
	if maxPacketSize > regs.BD_COUNT_Msk {
		return 0, fmt.Errorf("max packet size %d: %w", maxPacketSize, pkg.ErrBufferOverflow)
	}

	var a hal.EndpointAddress
	if addr != nil {
		a = *addr
		if a.Direction() != dir {
			return 0, fmt.Errorf("%s: direction %s: %w", a, dir, pkg.ErrInvalidEndpoint)
		}
		if a.Index() >= regs.NumEndpoints {
			return 0, fmt.Errorf("%s: %w", a, pkg.ErrEndpointOverflow)
		}
		if b.ecb[a.Index()][dirIndex(a.IsIn())] != nil {
			return 0, fmt.Errorf("%s: in use: %w", a, pkg.ErrInvalidEndpoint)
		}
	} else {
		d := dirIndex(dir == hal.In)
		found := false
		for ep := 1; ep < regs.NumEndpoints; ep++ {
			if b.ecb[ep][d] == nil {
				a, found = hal.NewEndpointAddress(ep, dir), true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("no free %s endpoint: %w", dir, pkg.ErrEndpointOverflow)
		}
	}

	ep, d := a.Index(), dirIndex(a.IsIn())
	e, err := allocECB(b.r, b.alloc, maxPacketSize, typ, a, b.bdt.Pair(ep, a.IsIn()))
	if err != nil {
		return 0, err
	}
	b.ecb[ep][d] = e
	if a.IsOut() {
		if _, err := e.armGeneric(int(maxPacketSize), false); err != nil {
			return 0, fmt.Errorf("%s: arm: %w", a, err)
		}
	}

	b.log.Debug("endpoint allocated",
		"address", a, "type", typ, "size", maxPacketSize, "interval", interval)
	return a, nil
}

// Enable unmasks the transaction complete, stall and reset interrupts and
// attaches the device to the bus.
func (b *Bus) Enable() {
	b.g.acquire()
	defer b.g.release()

	b.r.Store(regs.U1IE, regs.U1IE_TRNIE|regs.U1IE_STALLIE|regs.U1IE_URSTIE)
	b.r.Store(regs.U1CON, regs.U1CON_USBEN)
	b.log.Debug("bus enabled")
}

// Reset drops unread packets of the control endpoint after a bus reset.
func (b *Bus) Reset() {
	b.g.acquire()
	defer b.g.release()

	if e := b.ecb[0][0]; e != nil {
		e.clearCompleted()
	}
}

// SetDeviceAddress programs the 7-bit device address.
func (b *Bus) SetDeviceAddress(addr uint8) {
	b.g.acquire()
	defer b.g.release()

	b.r.Store(regs.U1ADDR, uint32(addr&regs.U1ADDR_DEVADDR))
	b.log.Debug("device address set", "address", addr&regs.U1ADDR_DEVADDR)
}

// lookup returns the control block of an endpoint direction.
func (b *Bus) lookup(ep hal.EndpointAddress) (*endpointControlBlock, error) {
	i := ep.Index()
	if i >= regs.NumEndpoints {
		return nil, fmt.Errorf("%s: %w", ep, pkg.ErrInvalidEndpoint)
	}
	e := b.ecb[i][dirIndex(ep.IsIn())]
	if e == nil {
		return nil, fmt.Errorf("%s: not allocated: %w", ep, pkg.ErrInvalidEndpoint)
	}
	return e, nil
}

// Write queues one packet on endpoint ep. It returns pkg.ErrWouldBlock if
// both buffers of the endpoint are in use.
func (b *Bus) Write(ep hal.EndpointAddress, p []byte) (int, error) {
	b.g.acquire()
	defer b.g.release()

	e, err := b.lookup(ep)
	if err != nil {
		return 0, err
	}
	return e.write(p)
}

// Read copies one received packet of OUT endpoint ep into p. It returns
// pkg.ErrWouldBlock if no packet has been received.
func (b *Bus) Read(ep hal.EndpointAddress, p []byte) (int, error) {
	b.g.acquire()
	defer b.g.release()

	if !ep.IsOut() {
		return 0, fmt.Errorf("%s: read: %w", ep, pkg.ErrInvalidEndpoint)
	}
	e, err := b.lookup(ep)
	if err != nil {
		return 0, err
	}
	n, err := e.read(p)
	if err != nil {
		return 0, err
	}
	b.prOut &^= 1 << ep.Index()
	b.prSu &^= 1 << ep.Index()
	return n, nil
}

// SetStalled stalls endpoint ep. Clearing the stall is not done here: the
// module clears EP0 stalls once the STALL handshake went out, and arming
// the endpoint again clears a descriptor stall.
func (b *Bus) SetStalled(ep hal.EndpointAddress, stalled bool) {
	b.g.acquire()
	defer b.g.release()

	if !stalled || ep.Index() >= regs.NumEndpoints {
		return
	}
	b.r.Store(regs.U1EP(ep.Index()).Set(), regs.U1EP_EPSTALL)
	b.log.Debug("endpoint stalled", "address", ep)
}

// IsStalled always returns false; the stall state is not tracked.
func (b *Bus) IsStalled(ep hal.EndpointAddress) bool {
	return false
}

// Suspend does nothing.
func (b *Bus) Suspend() {}

// Resume does nothing.
func (b *Bus) Resume() {}
