package pic32

import (
	"errors"
	"fmt"

	"github.com/ardnew/pic32usb/device/hal"
	"github.com/ardnew/pic32usb/device/hal/pic32/regs"
	"github.com/ardnew/pic32usb/pkg"
	"github.com/ardnew/pic32usb/pkg/mem"
)

// bufferAlign is the alignment of endpoint transaction buffers. The module
// has no alignment requirement for buffers; word alignment keeps copies fast.
const bufferAlign = 4

// endpointControlBlock drives the ping-pong buffer pair of one endpoint
// direction.
//
// Buffers are used strictly in turn: nextOdd selects the buffer armed next
// and nextCompleteOdd the buffer whose completion software consumes next.
// armedCtr counts buffers owned by the module, completeCtr counts buffers
// completed by the module and not yet read. Their sum never exceeds 2.
type endpointControlBlock struct {
	nextOdd         bool
	data01          bool
	stalled         bool
	armedCtr        uint8
	completeCtr     uint8 // always 0 for IN
	nextCompleteOdd bool

	epType hal.EndpointType
	epSize uint16
	buf    [2]mem.Block
	bd     *[2]regs.BufferDescriptor
}

// allocECB allocates the transaction buffers of endpoint addr, hands both
// descriptors of bd to software and enables the endpoint in its U1EPn
// register.
func allocECB(r regs.Registers, a mem.Allocator, size uint16, typ hal.EndpointType,
	addr hal.EndpointAddress, bd *[2]regs.BufferDescriptor,
) (*endpointControlBlock, error) {
	var buf [2]mem.Block
	for i := range buf {
		b, err := a.Alloc(int(size), bufferAlign)
		if err != nil {
			for _, prev := range buf[:i] {
				_ = a.Free(prev)
			}
			return nil, fmt.Errorf("%s buffer %d: %w: %w", addr, i, pkg.ErrEndpointOverflow, err)
		}
		buf[i] = b
	}

	for i := range bd {
		bd[i].SetFlags(0)
		bd[i].SetBufferAddress(buf[i].Phys)
	}

	ep := regs.U1EP(addr.Index())
	epreg := r.Load(ep)
	if addr.IsIn() {
		epreg |= regs.U1EP_EPTXEN
	} else {
		epreg |= regs.U1EP_EPRXEN
	}
	switch typ {
	case hal.EndpointTypeControl:
		epreg |= regs.U1EP_EPHSHK
	case hal.EndpointTypeIsochronous:
		epreg |= regs.U1EP_EPCONDIS
	default:
		epreg |= regs.U1EP_EPCONDIS | regs.U1EP_EPHSHK
	}
	r.Store(ep, epreg)

	return &endpointControlBlock{
		epType: typ,
		epSize: size,
		buf:    buf,
		bd:     bd,
	}, nil
}

// slot converts a buffer selector into an index.
func slot(odd bool) int {
	if odd {
		return 1
	}
	return 0
}

// canArm returns the next buffer if its descriptor is owned by software.
func (e *endpointControlBlock) canArm() ([]byte, bool) {
	i := slot(e.nextOdd)
	if e.bd[i].Owner() == regs.Hardware {
		return nil, false
	}
	return e.buf[i].Bytes[:e.epSize], true
}

// armGeneric hands the next buffer to the module for a transaction of n
// bytes, or arms a STALL handshake if stall is set.
func (e *endpointControlBlock) armGeneric(n int, stall bool) (int, error) {
	if n > int(e.epSize) {
		return 0, pkg.ErrBufferOverflow
	}
	if e.armedCtr+e.completeCtr >= 2 {
		return 0, pkg.ErrWouldBlock
	}
	i := slot(e.nextOdd)
	bd := &e.bd[i]
	if e.stalled {
		if stall {
			return 0, pkg.ErrInvalidState
		}
		e.stalled = false
		bd.SetFlags(0)
	}

	bd.SetBufferAddress(e.buf[i].Phys)
	bd.SetByteCount(uint16(n))
	flags := uint16(regs.BD_UOWN)
	if e.data01 {
		flags |= regs.BD_DATA01
	}
	if e.epType != hal.EndpointTypeIsochronous {
		flags |= regs.BD_DTS
	}
	if stall {
		flags |= regs.BD_STALL
	}
	bd.SetFlags(flags)

	// A STALL handshake carries no data packet. The next arm reuses this
	// descriptor, so the ping-pong slot and DATA0/1 toggle stay put.
	if stall {
		e.stalled = true
		return n, nil
	}
	e.nextOdd = !e.nextOdd
	e.armedCtr++
	if e.epType != hal.EndpointTypeIsochronous {
		e.data01 = !e.data01
	}
	return n, nil
}

// cancel discards armed and completed transactions. The module must not be
// processing tokens for this endpoint, as is the case while PKTDIS is set
// after a SETUP.
func (e *endpointControlBlock) cancel() {
	e.clearCompleted()
	if e.armedCtr&1 != 0 {
		e.nextOdd = !e.nextOdd
	}
	e.armedCtr = 0
	e.bd[0].SetFlags(0)
	e.bd[1].SetFlags(0)
}

// clearCompleted discards completed transactions that were not read.
func (e *endpointControlBlock) clearCompleted() {
	if e.completeCtr&1 != 0 {
		e.nextCompleteOdd = !e.nextCompleteOdd
	}
	e.completeCtr = 0
}

// complete records a transaction finished by the module. OUT and SETUP
// completions queue the buffer for read.
func (e *endpointControlBlock) complete(queue bool) {
	if e.armedCtr > 0 {
		e.armedCtr--
	}
	if queue {
		e.completeCtr++
	}
}

// write copies p into the next free buffer and arms it.
func (e *endpointControlBlock) write(p []byte) (int, error) {
	b, ok := e.canArm()
	if !ok {
		return 0, pkg.ErrWouldBlock
	}
	if len(p) > len(b) {
		return 0, pkg.ErrBufferOverflow
	}
	copy(b, p)
	return e.armGeneric(len(p), false)
}

// read copies the oldest completed packet into p and re-arms its buffer for
// reception.
func (e *endpointControlBlock) read(p []byte) (int, error) {
	if e.completeCtr == 0 {
		return 0, pkg.ErrWouldBlock
	}
	i := slot(e.nextCompleteOdd)
	n := int(e.bd[i].ByteCount())
	if n > len(p) {
		return 0, pkg.ErrBufferOverflow
	}
	copy(p, e.buf[i].Bytes[:n])
	e.completeCtr--

	if _, err := e.armGeneric(int(e.epSize), false); err != nil {
		return 0, err
	}
	e.nextCompleteOdd = !e.nextCompleteOdd
	return n, nil
}

// free releases both transaction buffers.
func (e *endpointControlBlock) free(a mem.Allocator) error {
	var errs []error
	for i := range e.buf {
		if e.buf[i].Bytes == nil {
			continue
		}
		if err := a.Free(e.buf[i]); err != nil {
			errs = append(errs, err)
		}
		e.buf[i] = mem.Block{}
	}
	return errors.Join(errs...)
}
