package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ardnew/pic32usb/device/hal"
	"github.com/ardnew/pic32usb/device/hal/pic32/sim"
	"github.com/ardnew/pic32usb/pkg"
)

var (
	ep0Out = hal.NewEndpointAddress(0, hal.Out)
	ep0In  = hal.NewEndpointAddress(0, hal.In)
)

// device is the firmware side: a minimal endpoint 0 responder on top of
// hal.Bus. It answers GET_DESCRIPTOR(device) and SET_ADDRESS and stalls
// every other request.
type device struct {
	p          *sim.Peripheral
	bus        hal.Bus
	log        *slog.Logger
	packetSize int
	descriptor []byte

	tx      []byte // IN data not yet queued
	txZLP   bool   // a zero-length packet ends the data stage
	address int    // applied after the status stage, -1 if none
}

func newDevice(p *sim.Peripheral, bus hal.Bus, packetSize uint16) (*device, error) {
	for _, a := range []hal.EndpointAddress{ep0Out, ep0In} {
		if _, err := bus.AllocEP(a.Direction(), &a, hal.EndpointTypeControl, packetSize, 0); err != nil {
			return nil, fmt.Errorf("allocate %s: %w", a, err)
		}
	}
	return &device{
		p:          p,
		bus:        bus,
		log:        pkg.Logger(component).With("side", "device"),
		packetSize: int(packetSize),
		descriptor: (&hal.DeviceDescriptor{
			USBVersion:        0x0200,
			MaxPacketSize0:    uint8(packetSize),
			VendorID:          0x1234,
			ProductID:         0x5678,
			DeviceVersion:     0x0100,
			NumConfigurations: 1,
		}).Bytes(),
		address: -1,
	}, nil
}

// service is the USB interrupt handler: it polls the bus while an enabled
// interrupt is pending.
func (d *device) service() {
	for d.p.Pending() {
		d.handle(d.bus.Poll())
	}
}

func (d *device) handle(r hal.PollResult) {
	d.log.Debug("poll", "result", r)
	switch r.Kind {
	case hal.PollReset:
		d.bus.Reset()
		d.tx, d.txZLP, d.address = nil, false, -1
	case hal.PollData:
		if r.EPInComplete&1 != 0 {
			if d.address >= 0 && len(d.tx) == 0 && !d.txZLP {
				d.bus.SetDeviceAddress(uint8(d.address))
				d.address = -1
			}
			d.send()
		}
		if r.EPSetup&1 != 0 {
			d.setup()
		} else if r.EPOut&1 != 0 {
			var buf [64]byte
			if _, err := d.bus.Read(ep0Out, buf[:]); err != nil && !errors.Is(err, pkg.ErrWouldBlock) {
				d.log.Warn("status stage", "error", err)
			}
		}
	}
}

// setup decodes and answers a SETUP packet.
func (d *device) setup() {
	var buf [hal.SetupPacketSize]byte
	n, err := d.bus.Read(ep0Out, buf[:])
	if err != nil {
		d.log.Warn("read setup", "error", err)
		return
	}
	var pkt hal.SetupPacket
	if !hal.ParseSetupPacket(buf[:n], &pkt) {
		d.log.Warn("short setup packet", "bytes", n)
		return
	}
	d.log.Debug("setup", "request", pkt.Request, "value", pkt.Value, "length", pkt.Length)

	d.tx, d.txZLP, d.address = nil, false, -1
	switch {
	case pkt.Request == hal.RequestGetDescriptor && pkt.IsDeviceToHost() &&
		pkt.Value>>8 == hal.DescriptorTypeDevice:
		d.reply(d.descriptor, int(pkt.Length))
	case pkt.Request == hal.RequestSetAddress && !pkt.IsDeviceToHost():
		d.address = int(pkt.Value & 0x7F)
		d.reply(nil, 0)
	default:
		d.log.Debug("stall", "request", pkt.Request)
		d.bus.SetStalled(ep0In, true)
	}
}

// reply starts the IN data stage, or the status stage if data is empty.
func (d *device) reply(data []byte, length int) {
	if len(data) > length {
		data = data[:length]
	}
	d.tx = data
	d.txZLP = len(data) == 0 || (len(data) < length && len(data)%d.packetSize == 0)
	d.send()
}

// send queues as many packets of the data stage as the endpoint accepts.
func (d *device) send() {
	for len(d.tx) > 0 || d.txZLP {
		n := min(len(d.tx), d.packetSize)
		if _, err := d.bus.Write(ep0In, d.tx[:n]); err != nil {
			if !errors.Is(err, pkg.ErrWouldBlock) {
				d.log.Warn("write", "error", err)
				d.tx, d.txZLP = nil, false
			}
			return
		}
		if n == 0 {
			d.txZLP = false
		}
		d.tx = d.tx[n:]
	}
}
