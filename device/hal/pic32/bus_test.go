package pic32

import (
	"errors"
	"io"
	"testing"

	"github.com/ardnew/pic32usb/device/hal"
	"github.com/ardnew/pic32usb/device/hal/pic32/regs"
	"github.com/ardnew/pic32usb/device/hal/pic32/sim"
	"github.com/ardnew/pic32usb/pkg"
	"github.com/ardnew/pic32usb/pkg/mem"
)

var discard = pkg.NewLogger(io.Discard, nil)

func newTestBus(t *testing.T) (*Bus, *sim.Peripheral) {
	t.Helper()
	ram := sim.NewRAM()
	p := sim.New(ram, sim.WithLogger(discard))
	b, err := New(p, ram, WithLogger(discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b, p
}

func addr(a hal.EndpointAddress) *hal.EndpointAddress {
	return &a
}

// allocControl allocates endpoint 0 in both directions.
func allocControl(t *testing.T, b *Bus, size uint16) {
	t.Helper()
	for _, a := range []hal.EndpointAddress{0x00, 0x80} {
		got, err := b.AllocEP(a.Direction(), addr(a), hal.EndpointTypeControl, size, 0)
		if err != nil {
			t.Fatalf("AllocEP(%s) error = %v", a, err)
		}
		if got != a {
			t.Fatalf("AllocEP(%s) = %s", a, got)
		}
	}
}

func TestNew(t *testing.T) {
	ram := sim.NewRAM()
	p := sim.New(ram, sim.WithLogger(discard))
	p.Store(regs.U1CON, regs.U1CON_USBEN)
	p.Store(regs.U1OTGCON, 0xFF)
	p.Store(regs.U1EP(5), regs.U1EP_EPTXEN)

	b, err := New(p, ram, WithLogger(discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := p.Load(regs.U1CON); got != 0 {
		t.Errorf("U1CON = %#x, want 0", got)
	}
	if got := p.Load(regs.U1OTGCON); got != 0 {
		t.Errorf("U1OTGCON = %#x, want 0", got)
	}
	if got := p.Load(regs.U1PWRC); got != regs.U1PWRC_USBPWR {
		t.Errorf("U1PWRC = %#x, want USBPWR", got)
	}
	for i := 0; i < regs.NumEndpoints; i++ {
		if got := p.Load(regs.U1EP(i)); got != 0 {
			t.Errorf("U1EP%d = %#x, want 0", i, got)
		}
	}
	base := regs.BDTBase(p.Load(regs.U1BDTP1), p.Load(regs.U1BDTP2), p.Load(regs.U1BDTP3))
	if base != b.bdtMem.Phys {
		t.Errorf("BDT base = %s, want %s", base, b.bdtMem.Phys)
	}
	if !base.Aligned(regs.TableAlign) {
		t.Errorf("BDT base %s not aligned", base)
	}
	if ram.Used() != regs.TableSize {
		t.Errorf("Used() = %d, want %d", ram.Used(), regs.TableSize)
	}
}

// skewed hands out blocks 4 bytes past an aligned address.
type skewed struct {
	*mem.Arena
}

func (s skewed) Alloc(size, align int) (mem.Block, error) {
	b, err := s.Arena.Alloc(size+4, align)
	if err != nil {
		return b, err
	}
	return mem.Block{Bytes: b.Bytes[4:], Phys: b.Phys + 4}, nil
}

func (s skewed) Free(b mem.Block) error {
	return s.Arena.Free(mem.Block{Bytes: b.Bytes, Phys: b.Phys - 4})
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name  string
		alloc func(ram *mem.Arena) mem.Allocator
		want  error
	}{
		{"no memory", func(*mem.Arena) mem.Allocator { return mem.NewArena(0, 64) }, pkg.ErrNoMemory},
		{"misaligned", func(ram *mem.Arena) mem.Allocator { return skewed{ram} }, pkg.ErrMisaligned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ram := sim.NewRAM()
			p := sim.New(ram, sim.WithLogger(discard))
			_, err := New(p, tt.alloc(ram), WithLogger(discard))
			if !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
			if ram.Used() != 0 {
				t.Errorf("Used() = %d after failed New", ram.Used())
			}
		})
	}
}

func TestAllocEP(t *testing.T) {
	b, p := newTestBus(t)
	allocControl(t, b, 8)

	if b.ecb[0][0].armedCtr != 1 {
		t.Errorf("EP0 OUT armed = %d, want 1", b.ecb[0][0].armedCtr)
	}
	if b.ecb[0][1].armedCtr != 0 {
		t.Errorf("EP0 IN armed = %d, want 0", b.ecb[0][1].armedCtr)
	}
	if b.bdt.At(regs.Index(0, false, false)).Owner() != regs.Hardware {
		t.Error("EP0 OUT even descriptor not armed")
	}

	tests := []struct {
		name string
		dir  hal.Direction
		addr *hal.EndpointAddress
		want error
	}{
		{"in use", hal.Out, addr(0x00), pkg.ErrInvalidEndpoint},
		{"direction mismatch", hal.Out, addr(0x81), pkg.ErrInvalidEndpoint},
		{"out of range", hal.In, addr(0x90), pkg.ErrEndpointOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.AllocEP(tt.dir, tt.addr, hal.EndpointTypeBulk, 64, 0)
			if !errors.Is(err, tt.want) {
				t.Errorf("AllocEP() error = %v, want %v", err, tt.want)
			}
		})
	}

	got, err := b.AllocEP(hal.In, nil, hal.EndpointTypeInterrupt, 8, 10)
	if err != nil {
		t.Fatalf("AllocEP(auto IN) error = %v", err)
	}
	if got != 0x81 {
		t.Errorf("AllocEP(auto IN) = %s, want EP1 IN", got)
	}
	want := uint32(regs.U1EP_EPTXEN | regs.U1EP_EPCONDIS | regs.U1EP_EPHSHK)
	if reg := p.Load(regs.U1EP(1)); reg != want {
		t.Errorf("U1EP1 = %#x, want %#x", reg, want)
	}
}

func TestAllocEPAutoExhausted(t *testing.T) {
	b, _ := newTestBus(t)
	for ep := 1; ep < regs.NumEndpoints; ep++ {
		got, err := b.AllocEP(hal.Out, nil, hal.EndpointTypeBulk, 8, 0)
		if err != nil {
			t.Fatalf("AllocEP() #%d error = %v", ep, err)
		}
		if got.Index() != ep || !got.IsOut() {
			t.Fatalf("AllocEP() #%d = %s", ep, got)
		}
	}
	if _, err := b.AllocEP(hal.Out, nil, hal.EndpointTypeBulk, 8, 0); !errors.Is(err, pkg.ErrEndpointOverflow) {
		t.Errorf("AllocEP() on full direction error = %v, want ErrEndpointOverflow", err)
	}
	if b.ecb[0][0] != nil {
		t.Error("automatic assignment used endpoint 0")
	}

	// The IN direction is independent.
	if got, err := b.AllocEP(hal.In, nil, hal.EndpointTypeBulk, 8, 0); err != nil || got != 0x81 {
		t.Errorf("AllocEP(auto IN) = %s, %v", got, err)
	}
}

func TestAllocEPTooLarge(t *testing.T) {
	b, _ := newTestBus(t)
	if _, err := b.AllocEP(hal.In, nil, hal.EndpointTypeIsochronous, 1024, 1); !errors.Is(err, pkg.ErrBufferOverflow) {
		t.Errorf("AllocEP(1024) error = %v, want ErrBufferOverflow", err)
	}
	if _, err := b.AllocEP(hal.In, nil, hal.EndpointTypeIsochronous, 1023, 1); err != nil {
		t.Errorf("AllocEP(1023) error = %v", err)
	}
}

func TestAllocEPOutOfMemory(t *testing.T) {
	ram := mem.NewArena(0, regs.TableSize+16)
	p := sim.New(ram, sim.WithLogger(discard))
	b, err := New(p, ram, WithLogger(discard))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.AllocEP(hal.Out, nil, hal.EndpointTypeBulk, 8, 0); err != nil {
		t.Fatalf("AllocEP(8) error = %v", err)
	}
	if _, err := b.AllocEP(hal.Out, nil, hal.EndpointTypeBulk, 8, 0); !errors.Is(err, pkg.ErrEndpointOverflow) {
		t.Errorf("AllocEP() without memory error = %v, want ErrEndpointOverflow", err)
	}
	if b.ecb[2][0] != nil {
		t.Error("failed allocation left a control block")
	}
}

func TestEnable(t *testing.T) {
	b, p := newTestBus(t)
	b.Enable()
	if got, want := p.Load(regs.U1IE), uint32(regs.U1IE_TRNIE|regs.U1IE_STALLIE|regs.U1IE_URSTIE); got != want {
		t.Errorf("U1IE = %#x, want %#x", got, want)
	}
	if !p.Enabled() {
		t.Error("module not enabled")
	}
}

func TestSetDeviceAddress(t *testing.T) {
	b, p := newTestBus(t)
	tests := []struct {
		addr uint8
		want uint32
	}{
		{0x05, 0x05},
		{0x7F, 0x7F},
		{0x85, 0x05},
		{0, 0},
	}
	for _, tt := range tests {
		b.SetDeviceAddress(tt.addr)
		if got := p.Load(regs.U1ADDR); got != tt.want {
			t.Errorf("SetDeviceAddress(%#x): U1ADDR = %#x, want %#x", tt.addr, got, tt.want)
		}
	}
}

func TestWriteReadValidation(t *testing.T) {
	b, _ := newTestBus(t)
	allocControl(t, b, 8)
	buf := make([]byte, 8)

	tests := []struct {
		name string
		op   func() error
	}{
		{"write out of range", func() error { _, err := b.Write(0x90, buf); return err }},
		{"write unallocated", func() error { _, err := b.Write(0x82, buf); return err }},
		{"read in address", func() error { _, err := b.Read(0x80, buf); return err }},
		{"read out of range", func() error { _, err := b.Read(0x10, buf); return err }},
		{"read unallocated", func() error { _, err := b.Read(0x03, buf); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, pkg.ErrInvalidEndpoint) {
				t.Errorf("error = %v, want ErrInvalidEndpoint", err)
			}
		})
	}

	if _, err := b.Read(0x00, buf); !errors.Is(err, pkg.ErrWouldBlock) {
		t.Errorf("Read() without data error = %v, want ErrWouldBlock", err)
	}
	if _, err := b.Write(0x80, make([]byte, 9)); !errors.Is(err, pkg.ErrBufferOverflow) {
		t.Errorf("Write(9 bytes) error = %v, want ErrBufferOverflow", err)
	}
}

func TestWriteWouldBlock(t *testing.T) {
	b, p := newTestBus(t)
	in, err := b.AllocEP(hal.In, nil, hal.EndpointTypeBulk, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	b.Enable()

	for i := 0; i < 2; i++ {
		if n, err := b.Write(in, []byte{byte(i)}); err != nil || n != 1 {
			t.Fatalf("Write() #%d = %d, %v", i, n, err)
		}
	}
	if _, err := b.Write(in, []byte{2}); !errors.Is(err, pkg.ErrWouldBlock) {
		t.Fatalf("third Write() error = %v, want ErrWouldBlock", err)
	}

	pkt, err := p.In(in.Index())
	if err != nil {
		t.Fatalf("In() error = %v", err)
	}
	if pkt.Data1 || len(pkt.Data) != 1 || pkt.Data[0] != 0 {
		t.Errorf("In() = %+v, want DATA0 [0]", pkt)
	}
	// Still blocked until Poll reconciles the completion.
	if _, err := b.Write(in, []byte{2}); !errors.Is(err, pkg.ErrWouldBlock) {
		t.Errorf("Write() before Poll error = %v, want ErrWouldBlock", err)
	}
	if r := b.Poll(); r.Kind != hal.PollData || r.EPInComplete != 1<<in.Index() {
		t.Fatalf("Poll() = %v", r)
	}
	if _, err := b.Write(in, []byte{2}); err != nil {
		t.Errorf("Write() after completion error = %v", err)
	}
}

func TestSetStalled(t *testing.T) {
	b, p := newTestBus(t)
	in, err := b.AllocEP(hal.In, nil, hal.EndpointTypeBulk, 8, 0)
	if err != nil {
		t.Fatal(err)
	}
	b.Enable()

	b.SetStalled(in, false)
	if p.Load(regs.U1EP(1))&regs.U1EP_EPSTALL != 0 {
		t.Error("SetStalled(false) set EPSTALL")
	}
	b.SetStalled(in, true)
	if p.Load(regs.U1EP(1))&regs.U1EP_EPSTALL == 0 {
		t.Fatal("EPSTALL not set")
	}
	if p.Load(regs.U1EP(1))&regs.U1EP_EPTXEN == 0 {
		t.Error("SetStalled cleared EPTXEN")
	}
	if b.IsStalled(in) {
		t.Error("IsStalled() = true")
	}
	b.SetStalled(0x9F, true) // out of range is ignored

	if _, err := b.Write(in, []byte{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.In(1); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("In() on stalled endpoint error = %v, want ErrStall", err)
	}
}

func TestReset(t *testing.T) {
	b, p := newTestBus(t)
	allocControl(t, b, 8)
	b.Enable()
	b.SetDeviceAddress(9)

	if err := p.Setup(0, [8]byte{}); err != nil {
		t.Fatal(err)
	}
	if r := b.Poll(); r.EPSetup != 1 {
		t.Fatalf("Poll() = %v", r)
	}

	p.BusReset()
	if r := b.Poll(); r.Kind != hal.PollReset {
		t.Fatalf("Poll() = %v, want reset", r)
	}
	if p.Address() != 0 {
		t.Errorf("address = %d after reset, want 0", p.Address())
	}
	if p.Load(regs.U1IR)&regs.U1IR_URSTIF != 0 {
		t.Error("URSTIF not cleared")
	}
	b.Reset()
	if b.ecb[0][0].completeCtr != 0 {
		t.Error("Reset() kept EP0 OUT data")
	}
	if _, err := b.Read(0x00, make([]byte, 8)); !errors.Is(err, pkg.ErrWouldBlock) {
		t.Errorf("Read() after reset error = %v, want ErrWouldBlock", err)
	}
}

func TestClose(t *testing.T) {
	b, p := newTestBus(t)
	allocControl(t, b, 64)
	if _, err := b.AllocEP(hal.In, nil, hal.EndpointTypeBulk, 64, 0); err != nil {
		t.Fatal(err)
	}
	b.Enable()

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if p.Load(regs.U1IE) != 0 || p.Load(regs.U1PWRC) != 0 {
		t.Error("interrupts or power left on")
	}
	if used := p.RAM().Used(); used != 0 {
		t.Errorf("Used() = %d after Close, want 0", used)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestUseAfterClose(t *testing.T) {
	tests := []struct {
		name  string
		setup bool
	}{
		{"idle", false},
		{"pending transaction", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, p := newTestBus(t)
			allocControl(t, b, 8)
			b.Enable()
			if tt.setup {
				if err := p.Setup(0, [8]byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x12, 0x00}); err != nil {
					t.Fatalf("Setup() error = %v", err)
				}
				if p.Load(regs.U1IR)&regs.U1IR_TRNIF == 0 {
					t.Fatal("TRNIF not set")
				}
			}
			if err := b.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			if r := b.Poll(); r.Kind != hal.PollNone {
				t.Errorf("Poll() after Close = %v, want none", r)
			}
			_, err := b.AllocEP(hal.In, nil, hal.EndpointTypeBulk, 8, 0)
			if !errors.Is(err, pkg.ErrInvalidState) {
				t.Errorf("AllocEP() after Close error = %v, want ErrInvalidState", err)
			}
			if _, err := b.Write(0x80, []byte{1}); err == nil {
				t.Error("Write() after Close succeeded")
			}
		})
	}
}

// reentrant calls back into the bus from a register access.
type reentrant struct {
	regs.Registers
	b    *Bus
	trip bool
}

func (r *reentrant) Load(reg regs.Reg) uint32 {
	if r.trip {
		r.trip = false
		r.b.Poll()
	}
	return r.Registers.Load(reg)
}

func TestReentrantAccessPanics(t *testing.T) {
	ram := sim.NewRAM()
	r := &reentrant{Registers: sim.New(ram, sim.WithLogger(discard))}
	b, err := New(r, ram, WithLogger(discard))
	if err != nil {
		t.Fatal(err)
	}
	r.b = b

	func() {
		defer func() {
			if recover() == nil {
				t.Error("re-entrant Poll did not panic")
			}
		}()
		r.trip = true
		b.Poll()
	}()

	// The guard is released after the panic unwound.
	if got := b.Poll(); got.Kind != hal.PollNone {
		t.Errorf("Poll() = %v, want none", got)
	}
}
