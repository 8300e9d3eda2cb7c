package pic32

import (
	"github.com/ardnew/pic32usb/device/hal"
	"github.com/ardnew/pic32usb/device/hal/pic32/regs"
)

// Poll reconciles the transactions completed by the module with the
// endpoint control blocks and reports bus events. It may be called from the
// main loop or from the USB interrupt handler.
func (b *Bus) Poll() hal.PollResult {
	b.g.acquire()
	defer b.g.release()

	if b.closed {
		return hal.PollResult{Kind: hal.PollNone}
	}
	if eir := b.r.Load(regs.U1EIR); eir != 0 {
		b.r.Store(regs.U1EIR, eir)
		b.log.Warn("error interrupt", "u1eir", eir)
	}

	var prIn uint16
	for b.r.Load(regs.U1IR)&regs.U1IR_TRNIF != 0 {
		stat := regs.Status(b.r.Load(regs.U1STAT))
		b.r.Store(regs.U1IR, regs.U1IR_TRNIF)

		ep, d := stat.Endpoint(), dirIndex(stat.In())
		pid := b.bdt.At(stat.Index()).PID()
		b.log.Debug("transaction complete",
			"endpoint", ep, "in", stat.In(), "odd", stat.Odd(), "pid", pid)

		switch pid {
		case regs.PIDOut:
			if e := b.ecb[ep][d]; e != nil {
				e.complete(true)
			}
			b.prOut |= 1 << ep
		case regs.PIDIn:
			prIn |= 1 << ep
			if e := b.ecb[ep][d]; e != nil {
				e.complete(false)
			}
		case regs.PIDSetup:
			b.setup(ep)
		default:
			b.log.Warn("unexpected token", "endpoint", ep, "pid", pid)
		}
	}

	ir := b.r.Load(regs.U1IR)
	if ir&regs.U1IR_URSTIF != 0 {
		b.r.Store(regs.U1ADDR, 0)
		b.r.Store(regs.U1IR, regs.U1IR_URSTIF)
		b.log.Debug("bus reset")
		return hal.PollResult{Kind: hal.PollReset}
	}
	if ir&regs.U1IR_STALLIF != 0 {
		b.r.Store(regs.U1EP0.Clr(), regs.U1EP_EPSTALL)
		b.r.Store(regs.U1IR, regs.U1IR_STALLIF)
	}

	if b.prOut == 0 && prIn == 0 && b.prSu == 0 {
		return hal.PollResult{Kind: hal.PollNone}
	}
	return hal.PollResult{
		Kind:         hal.PollData,
		EPOut:        b.prOut,
		EPInComplete: prIn,
		EPSetup:      b.prSu,
	}
}

// setup handles a SETUP completion on endpoint ep. A SETUP starts a new
// control transfer: the pending IN response and unread OUT data are
// discarded, and both directions continue with DATA1. The module suspends
// token processing after a SETUP until PKTDIS is cleared.
func (b *Bus) setup(ep int) {
	out, in := b.ecb[ep][0], b.ecb[ep][1]
	if in != nil {
		in.cancel()
		in.data01 = true
	}
	if out != nil {
		out.clearCompleted()
		out.complete(true)
		out.data01 = true
	} else {
		b.log.Warn("setup on unallocated endpoint", "endpoint", ep)
	}
	b.prSu |= 1 << ep
	b.r.Store(regs.U1CON.Clr(), regs.U1CON_PKTDIS)
}
