package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardnew/pic32usb/pkg"
	"github.com/ardnew/pic32usb/pkg/capture"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config
		wantErr bool
	}{
		{"defaults", config{address: 5, packetSize: 8}, false},
		{"max address", config{address: 127, packetSize: 64}, false},
		{"zero address", config{address: 0, packetSize: 8}, true},
		{"address too large", config{address: 128, packetSize: 8}, true},
		{"odd packet size", config{address: 5, packetSize: 12}, true},
		{"capture and replay", config{address: 5, packetSize: 8, capturePath: "a", replayPath: "b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, pkg.ErrInvalidParameter) {
				t.Errorf("validate() error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestRunEnumerate(t *testing.T) {
	for _, size := range []uint{8, 16, 32, 64} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			if err := run(config{address: 42, packetSize: size}); err != nil {
				t.Fatalf("run() error = %v", err)
			}
		})
	}
}

func TestCaptureReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enum.cbor")

	if err := run(config{address: 9, packetSize: 8, capturePath: path}); err != nil {
		t.Fatalf("run(capture) error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	events, err := capture.NewReader(f).ReadAll()
	f.Close()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(events) == 0 || events[0].Kind != capture.KindReset {
		t.Fatalf("capture starts with %v, want reset", events)
	}
	var stalled bool
	for _, e := range events {
		if e.Status == pkg.TransferStatusStall {
			stalled = true
		}
	}
	if !stalled {
		t.Error("capture holds no stalled transaction")
	}

	if err := run(config{address: 9, packetSize: 8, replayPath: path}); err != nil {
		t.Fatalf("run(replay) error = %v", err)
	}
}

func TestReplayMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cbor")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := capture.NewWriter(f)
	for _, e := range []capture.Event{
		{Kind: capture.KindReset},
		{Kind: capture.KindIn, Data: []byte{0xAA}, Data1: true},
	} {
		if err := w.Write(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	// Nothing is queued on EP0 IN, so the device NAKs.
	err = run(config{address: 5, packetSize: 8, replayPath: path})
	if !errors.Is(err, pkg.ErrProtocol) {
		t.Errorf("run(replay) error = %v, want ErrProtocol", err)
	}
}

func TestReplayMissingFile(t *testing.T) {
	err := run(config{address: 5, packetSize: 8, replayPath: filepath.Join(t.TempDir(), "none")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("run(replay) error = %v, want ErrNotExist", err)
	}
}

func TestConfigIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usb.ids")
	if err := os.WriteFile(path, []byte("1234  Sim Vendor\n\t5678  Sim Device\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config{address: 5, packetSize: 8, usbIDs: path}
	if got, want := cfg.ids().Describe(0x1234, 0x5678), "1234:5678 Sim Vendor Sim Device"; got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
	if err := run(cfg); err != nil {
		t.Errorf("run() error = %v", err)
	}
}
