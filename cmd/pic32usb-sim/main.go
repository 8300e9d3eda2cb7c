// Package main runs the PIC32 USB device driver against the simulated USB
// module and drives it from a simulated host.
//
// By default the host enumerates the device far enough to exercise every
// path of the driver: bus reset, a control read (GET_DESCRIPTOR), a control
// write (SET_ADDRESS) and a stalled request. The device side is a minimal
// endpoint 0 responder.
//
// Usage:
//
//	go run ./cmd/pic32usb-sim [options]
//
// Options:
//
//	-v                 Enable verbose (debug) logging
//	-json              Use JSON log format
//	-address n         Device address assigned by SET_ADDRESS (default: 5)
//	-packet-size n     Max packet size of endpoint 0 (default: 8)
//	-capture file      Record host transactions to file (CBOR sequence)
//	-replay file       Replay host transactions from file instead of enumerating
//	-usbids file       USB ID database used to name the device (default: system copy)
//	-cpuprofile file   Write a CPU profile (requires -tags profile)
//	-memprofile file   Write a heap profile (requires -tags profile)
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ardnew/pic32usb/device/hal"
	"github.com/ardnew/pic32usb/device/hal/pic32"
	"github.com/ardnew/pic32usb/device/hal/pic32/sim"
	"github.com/ardnew/pic32usb/pkg"
	"github.com/ardnew/pic32usb/pkg/capture"
	"github.com/ardnew/pic32usb/pkg/prof"
	"github.com/ardnew/pic32usb/pkg/usbid"
)

// component identifies this executable for structured logging.
const component = pkg.ComponentApp

func main() {
	verbose := flag.Bool("v", false, "enable verbose (debug) logging")
	jsonLog := flag.Bool("json", false, "use JSON log format")
	address := flag.Uint("address", 5, "device address assigned by SET_ADDRESS")
	packetSize := flag.Uint("packet-size", 8, "max packet size of endpoint 0 (8, 16, 32 or 64)")
	capturePath := flag.String("capture", "", "record host transactions to `file`")
	replayPath := flag.String("replay", "", "replay host transactions from `file`")
	usbIDs := flag.String("usbids", "", "USB ID database `file`")
	cpuProfile := flag.String("cpuprofile", "", "write a CPU profile to `file`")
	memProfile := flag.String("memprofile", "", "write a heap profile to `file`")
	flag.Parse()

	if *verbose {
		pkg.SetLogLevel(slog.LevelDebug)
	}
	if *jsonLog {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}

	if (*cpuProfile != "" || *memProfile != "") && !prof.Enabled {
		pkg.LogWarn(component, "profiling not compiled in, rebuild with -tags profile")
	}
	session, err := prof.Start(*cpuProfile, *memProfile)
	if err != nil {
		pkg.LogError(component, "start profiling", "error", err)
		os.Exit(1)
	}

	cfg := config{
		address:     *address,
		packetSize:  *packetSize,
		capturePath: *capturePath,
		replayPath:  *replayPath,
		usbIDs:      *usbIDs,
	}
	err = run(cfg)
	if perr := session.Stop(); perr != nil {
		pkg.LogError(component, "write profiles", "error", perr)
	}
	if err != nil {
		pkg.LogError(component, "simulation failed", "error", err)
		os.Exit(1)
	}
}

type config struct {
	address     uint
	packetSize  uint
	capturePath string
	replayPath  string
	usbIDs      string
}

func (c config) validate() error {
	if c.address == 0 || c.address > 127 {
		return fmt.Errorf("address %d out of range 1..127: %w", c.address, pkg.ErrInvalidParameter)
	}
	switch c.packetSize {
	case 8, 16, 32, 64:
	default:
		return fmt.Errorf("packet size %d: %w", c.packetSize, pkg.ErrInvalidParameter)
	}
	if c.capturePath != "" && c.replayPath != "" {
		return fmt.Errorf("-capture and -replay are exclusive: %w", pkg.ErrInvalidParameter)
	}
	return nil
}

func run(cfg config) (err error) {
	if err := cfg.validate(); err != nil {
		return err
	}

	var opts []sim.Option
	opts = append(opts, sim.WithLogger(pkg.Logger(pkg.ComponentSim)))
	if cfg.capturePath != "" {
		f, err := os.Create(cfg.capturePath)
		if err != nil {
			return fmt.Errorf("create capture: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close capture: %w", cerr)
			}
		}()
		w := capture.NewWriter(f)
		opts = append(opts, sim.WithCapture(w))
		defer func() {
			pkg.LogInfo(component, "capture written", "path", cfg.capturePath, "events", w.Count())
		}()
	}

	ram := sim.NewRAM()
	p := sim.New(ram, opts...)
	bus, err := pic32.New(p, ram, pic32.WithLogger(pkg.Logger(pkg.ComponentBus)))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, bus.Close())
	}()

	dev, err := newDevice(p, bus, uint16(cfg.packetSize))
	if err != nil {
		return err
	}
	bus.Enable()
	h := &host{p: p, service: dev.service, packetSize: int(cfg.packetSize)}

	if cfg.replayPath != "" {
		return replay(h, cfg.replayPath)
	}
	return enumerate(h, dev, uint8(cfg.address), cfg.ids())
}

// ids loads the USB ID database. Names are cosmetic, so a missing
// database only costs the log its vendor and product strings.
func (c config) ids() *usbid.Database {
	var paths []string
	if c.usbIDs != "" {
		paths = append(paths, c.usbIDs)
	}
	db, err := usbid.Open(paths...)
	if err != nil {
		pkg.LogDebug(component, "no usb.ids", "error", err)
	}
	return db
}

// enumerate runs the default scenario and checks the device's answers.
func enumerate(h *host, dev *device, address uint8, ids *usbid.Database) error {
	h.reset()

	desc, err := h.controlRead(hal.SetupPacket{
		RequestType: hal.RequestDirectionDeviceToHost,
		Request:     hal.RequestGetDescriptor,
		Value:       hal.DescriptorTypeDevice << 8,
		Length:      64,
	})
	if err != nil {
		return fmt.Errorf("get device descriptor: %w", err)
	}
	if string(desc) != string(dev.descriptor) {
		return fmt.Errorf("device descriptor % x, want % x: %w", desc, dev.descriptor, pkg.ErrProtocol)
	}
	var dd hal.DeviceDescriptor
	if err := hal.ParseDeviceDescriptor(desc, &dd); err != nil {
		return err
	}
	pkg.LogInfo(component, "device descriptor", "id", ids.Describe(dd.VendorID, dd.ProductID),
		"ep0", dd.MaxPacketSize0)

	err = h.controlWrite(hal.SetupPacket{
		Request: hal.RequestSetAddress,
		Value:   uint16(address),
	})
	if err != nil {
		return fmt.Errorf("set address: %w", err)
	}
	if got := h.p.Address(); got != address {
		return fmt.Errorf("device address %d, want %d: %w", got, address, pkg.ErrProtocol)
	}
	pkg.LogInfo(component, "address assigned", "address", address)

	_, err = h.controlRead(hal.SetupPacket{
		RequestType: hal.RequestDirectionDeviceToHost,
		Request:     hal.RequestGetConfiguration,
		Length:      1,
	})
	if !errors.Is(err, pkg.ErrStall) {
		return fmt.Errorf("unsupported request: got %v, want stall: %w", err, pkg.ErrProtocol)
	}
	pkg.LogInfo(component, "unsupported request stalled")

	pkg.LogInfo(component, "enumeration complete")
	return nil
}
