package sim

import (
	"fmt"

	"github.com/ardnew/pic32usb/device/hal"
	"github.com/ardnew/pic32usb/device/hal/pic32/regs"
	"github.com/ardnew/pic32usb/pkg"
	"github.com/ardnew/pic32usb/pkg/capture"
)

// BusReset signals a USB reset: URSTIF is set and the host restarts its
// data toggles. The ping-pong pointers are left alone, as on silicon.
func (p *Peripheral) BusReset() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.set(regs.U1IR, regs.U1IR_URSTIF)
	p.hostOut = [regs.NumEndpoints]bool{}
	p.log.Debug("bus reset")
	p.record(capture.Event{Kind: capture.KindReset}, nil)
}

// Setup runs a SETUP transaction carrying pkt on endpoint ep.
func (p *Peripheral) Setup(ep int, pkt [hal.SetupPacketSize]byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	_, err := p.receive(ep, regs.PIDSetup, pkt[:])
	p.record(capture.Event{Kind: capture.KindSetup, Endpoint: uint8(ep), Data: pkt[:]}, err)
	return err
}

// Out runs an OUT transaction sending data to endpoint ep. The data toggle
// follows the host's sequence for the endpoint.
func (p *Peripheral) Out(ep int, data []byte) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	_, err := p.receive(ep, regs.PIDOut, data)
	p.record(capture.Event{Kind: capture.KindOut, Endpoint: uint8(ep), Data: data}, err)
	return err
}

// In runs an IN transaction on endpoint ep and returns the device's packet.
func (p *Peripheral) In(ep int) (Packet, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	pkt, err := p.transmit(ep)
	p.record(capture.Event{Kind: capture.KindIn, Endpoint: uint8(ep), Data: pkt.Data, Data1: pkt.Data1}, err)
	return pkt, err
}

// token performs the checks common to all tokens and returns the descriptor
// the module would use.
func (p *Peripheral) token(ep int, pid regs.PID) (*regs.BufferDescriptor, bool, error) {
	if ep < 0 || ep >= regs.NumEndpoints {
		return nil, false, fmt.Errorf("%s ep%d: %w", pid, ep, pkg.ErrInvalidParameter)
	}
	if !p.enabled() {
		return nil, false, fmt.Errorf("%s ep%d: %w", pid, ep, pkg.ErrNotConfigured)
	}
	if p.load(regs.U1CON)&regs.U1CON_PKTDIS != 0 {
		return nil, false, fmt.Errorf("%s ep%d: %w", pid, ep, pkg.ErrBusy)
	}

	in := pid == regs.PIDIn
	epreg := p.load(regs.U1EP(ep))
	enable := uint32(regs.U1EP_EPRXEN)
	if in {
		enable = regs.U1EP_EPTXEN
	}
	if epreg&enable == 0 {
		return nil, false, fmt.Errorf("%s ep%d: endpoint disabled: %w", pid, ep, pkg.ErrProtocol)
	}
	if pid == regs.PIDSetup && epreg&regs.U1EP_EPCONDIS != 0 {
		return nil, false, fmt.Errorf("%s ep%d: control disabled: %w", pid, ep, pkg.ErrProtocol)
	}

	// EPSTALL answers without touching the BD or the status FIFO.
	if pid != regs.PIDSetup && epreg&regs.U1EP_EPSTALL != 0 {
		p.set(regs.U1IR, regs.U1IR_STALLIF)
		return nil, false, fmt.Errorf("%s ep%d: %w", pid, ep, pkg.ErrStall)
	}

	if len(p.stat) >= statDepth {
		return nil, false, fmt.Errorf("%s ep%d: status fifo full: %w", pid, ep, pkg.ErrNAK)
	}
	t, err := p.table()
	if err != nil {
		return nil, false, err
	}
	odd := p.ppbi[ep][dir(in)]
	bd := t.At(regs.Index(ep, in, odd))
	if bd.Owner() != regs.Hardware {
		return nil, false, fmt.Errorf("%s ep%d: %w", pid, ep, pkg.ErrNAK)
	}
	if pid != regs.PIDSetup && bd.Flags()&regs.BD_STALL != 0 {
		p.set(regs.U1IR, regs.U1IR_STALLIF)
		return nil, false, fmt.Errorf("%s ep%d: %w", pid, ep, pkg.ErrStall)
	}
	return bd, odd, nil
}

func dir(in bool) int {
	if in {
		return 1
	}
	return 0
}

// receive moves a SETUP or OUT data packet into the armed buffer.
func (p *Peripheral) receive(ep int, pid regs.PID, data []byte) (int, error) {
	bd, odd, err := p.token(ep, pid)
	if err != nil {
		return 0, err
	}
	flags := bd.Flags()
	if pid == regs.PIDOut && flags&regs.BD_DTS != 0 {
		if want := flags&regs.BD_DATA01 != 0; want != p.hostOut[ep] {
			return 0, fmt.Errorf("%s ep%d: DATA%d expected: %w", pid, ep, data01(want), pkg.ErrDataToggle)
		}
	}
	if len(data) > int(bd.ByteCount()) {
		p.set(regs.U1EIR, regs.U1EIR_DMAEF)
		p.set(regs.U1IR, regs.U1IR_UERRIF)
		return 0, fmt.Errorf("%s ep%d: %d bytes into %d: %w", pid, ep, len(data), bd.ByteCount(), pkg.ErrOverrun)
	}
	buf, err := p.ram.Slice(bd.BufferAddress(), len(data))
	if err != nil {
		return 0, fmt.Errorf("sim: %s ep%d: %w", pid, ep, err)
	}
	copy(buf, data)

	switch pid {
	case regs.PIDSetup:
		p.hostOut[ep] = true
		p.set(regs.U1CON, regs.U1CON_PKTDIS)
	default:
		p.hostOut[ep] = !p.hostOut[ep]
	}
	p.complete(bd, ep, false, odd, pid, len(data))
	return len(data), nil
}

// transmit reads the packet of the armed IN buffer.
func (p *Peripheral) transmit(ep int) (Packet, error) {
	bd, odd, err := p.token(ep, regs.PIDIn)
	if err != nil {
		return Packet{}, err
	}
	n := int(bd.ByteCount())
	buf, err := p.ram.Slice(bd.BufferAddress(), n)
	if err != nil {
		return Packet{}, fmt.Errorf("sim: IN ep%d: %w", ep, err)
	}
	pkt := Packet{
		Data:  append([]byte(nil), buf...),
		Data1: bd.Flags()&regs.BD_DATA01 != 0,
	}
	p.complete(bd, ep, true, odd, regs.PIDIn, n)
	return pkt, nil
}

// complete writes the token PID and byte count back, returns the descriptor
// to software and reports the transaction in U1STAT.
func (p *Peripheral) complete(bd *regs.BufferDescriptor, ep int, in, odd bool, pid regs.PID, n int) {
	ctl := bd.Control()&regs.BD_DATA01 |
		uint32(n)&regs.BD_COUNT_Msk<<regs.BD_COUNT_Pos |
		uint32(pid)<<regs.BD_PID_Pos
	bd.SetControl(ctl)

	p.ppbi[ep][dir(in)] = !odd
	p.stat = append(p.stat, regs.MakeStatus(ep, in, odd))
	p.set(regs.U1IR, regs.U1IR_TRNIF)
	p.log.Debug("transaction", "pid", pid, "endpoint", ep, "odd", odd, "bytes", n)
}

func data01(b bool) int {
	if b {
		return 1
	}
	return 0
}
