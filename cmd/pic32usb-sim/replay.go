package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ardnew/pic32usb/device/hal"
	"github.com/ardnew/pic32usb/device/hal/pic32/sim"
	"github.com/ardnew/pic32usb/pkg"
	"github.com/ardnew/pic32usb/pkg/capture"
)

// replay re-issues every transaction recorded in the capture at path and
// checks that the device answers the same way it did when recorded.
func replay(h *host, path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	r := capture.NewReader(f)
	for n := 0; ; n++ {
		e, err := r.Read()
		if errors.Is(err, io.EOF) {
			pkg.LogInfo(component, "replay complete", "events", n)
			return nil
		}
		if err != nil {
			return fmt.Errorf("event %d: %w", n, err)
		}
		if err := h.apply(e); err != nil {
			return fmt.Errorf("event %d (%s ep%d): %w", n, e.Kind, e.Endpoint, err)
		}
	}
}

// apply runs one recorded transaction and compares the outcome.
func (h *host) apply(e capture.Event) error {
	var (
		err error
		pkt []byte
		d1  bool
	)
	ep := int(e.Endpoint)
	switch e.Kind {
	case capture.KindReset:
		h.p.BusReset()
	case capture.KindSetup:
		var b [hal.SetupPacketSize]byte
		if len(e.Data) != len(b) {
			return fmt.Errorf("setup carries %d bytes: %w", len(e.Data), pkg.ErrInvalidParameter)
		}
		copy(b[:], e.Data)
		err = h.p.Setup(ep, b)
	case capture.KindOut:
		err = h.p.Out(ep, e.Data)
	case capture.KindIn:
		var p sim.Packet
		p, err = h.p.In(ep)
		pkt, d1 = p.Data, p.Data1
	default:
		return fmt.Errorf("kind %s: %w", e.Kind, pkg.ErrInvalidParameter)
	}
	h.service()

	if got := pkg.StatusOf(err); got != e.Status {
		return fmt.Errorf("status %s, recorded %s: %w", got, e.Status, pkg.ErrProtocol)
	}
	if e.Kind == capture.KindIn && err == nil {
		if !bytes.Equal(pkt, e.Data) || d1 != e.Data1 {
			return fmt.Errorf("IN DATA%d % x, recorded DATA%d % x: %w",
				toggle(d1), pkt, toggle(e.Data1), e.Data, pkg.ErrProtocol)
		}
	}
	return nil
}
