package main

import (
	"errors"
	"fmt"

	"github.com/ardnew/pic32usb/device/hal"
	"github.com/ardnew/pic32usb/device/hal/pic32/sim"
	"github.com/ardnew/pic32usb/pkg"
)

// maxRetries bounds how often the host repeats a NAKed transaction before
// giving up on the device.
const maxRetries = 8

// host drives control transfers on endpoint 0 of the simulated module. The
// device's interrupt handler runs after every transaction.
type host struct {
	p          *sim.Peripheral
	service    func()
	packetSize int
}

func (h *host) reset() {
	h.p.BusReset()
	h.service()
}

// retry runs op until it succeeds or fails with something other than a NAK
// or a disabled packet pipeline.
func (h *host) retry(op func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = op()
		h.service()
		if !errors.Is(err, pkg.ErrNAK) && !errors.Is(err, pkg.ErrBusy) {
			return err
		}
	}
	return fmt.Errorf("no response after %d attempts: %w", maxRetries, err)
}

func (h *host) setup(pkt hal.SetupPacket) error {
	var b [hal.SetupPacketSize]byte
	pkt.MarshalTo(b[:])
	return h.retry(func() error { return h.p.Setup(0, b) })
}

// in reads one packet and checks its data toggle.
func (h *host) in(data1 bool) (sim.Packet, error) {
	var pkt sim.Packet
	err := h.retry(func() (err error) {
		pkt, err = h.p.In(0)
		return err
	})
	if err != nil {
		return pkt, err
	}
	if pkt.Data1 != data1 {
		return pkt, fmt.Errorf("IN packet DATA%d out of sequence: %w", toggle(pkt.Data1), pkg.ErrDataToggle)
	}
	return pkt, nil
}

// controlRead runs SETUP, IN data and OUT status stages and returns the
// data the device sent.
func (h *host) controlRead(pkt hal.SetupPacket) ([]byte, error) {
	if err := h.setup(pkt); err != nil {
		return nil, fmt.Errorf("setup stage: %w", err)
	}
	var (
		data  []byte
		data1 = true
	)
	for len(data) < int(pkt.Length) {
		p, err := h.in(data1)
		if err != nil {
			return data, fmt.Errorf("data stage: %w", err)
		}
		data = append(data, p.Data...)
		data1 = !data1
		if len(p.Data) < h.packetSize {
			break
		}
	}
	if err := h.retry(func() error { return h.p.Out(0, nil) }); err != nil {
		return data, fmt.Errorf("status stage: %w", err)
	}
	return data, nil
}

// controlWrite runs SETUP and IN status stages of a request without data.
func (h *host) controlWrite(pkt hal.SetupPacket) error {
	if err := h.setup(pkt); err != nil {
		return fmt.Errorf("setup stage: %w", err)
	}
	p, err := h.in(true)
	if err != nil {
		return fmt.Errorf("status stage: %w", err)
	}
	if len(p.Data) != 0 {
		return fmt.Errorf("status stage carried %d bytes: %w", len(p.Data), pkg.ErrProtocol)
	}
	return nil
}

func toggle(data1 bool) int {
	if data1 {
		return 1
	}
	return 0
}
