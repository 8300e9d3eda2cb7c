package regs

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/ardnew/pic32usb/pkg"
	"github.com/ardnew/pic32usb/pkg/mem"
)

func TestLayout(t *testing.T) {
	if got := unsafe.Sizeof(BufferDescriptor{}); got != DescriptorSize {
		t.Errorf("sizeof(BufferDescriptor) = %d, want %d", got, DescriptorSize)
	}
	if got := unsafe.Sizeof(Table{}); got != TableSize {
		t.Errorf("sizeof(Table) = %d, want %d", got, TableSize)
	}
}

func TestRegisterMap(t *testing.T) {
	tests := []struct {
		name string
		reg  Reg
		want uintptr
	}{
		{"U1IR", U1IR, 0xBF885200},
		{"U1STAT", U1STAT, 0xBF885240},
		{"U1CON", U1CON, 0xBF885250},
		{"U1BDTP1", U1BDTP1, 0xBF885270},
		{"U1BDTP3", U1BDTP3, 0xBF8852D0},
		{"U1EP0", U1EP(0), 0xBF885300},
		{"U1EP15", U1EP(15), 0xBF8853F0},
		{"U1CONCLR", U1CON.Clr(), 0xBF885254},
		{"U1EP0SET", U1EP0.Set(), 0xBF885308},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Base + uintptr(tt.reg); got != tt.want {
				t.Errorf("address = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestReg_Alias(t *testing.T) {
	r := U1IR.Inv()
	if !r.IsInv() || r.IsClr() || r.IsSet() {
		t.Errorf("U1IR.Inv() alias = %#x", r.Alias())
	}
	if r.Plain() != U1IR {
		t.Errorf("Plain() = %#x, want %#x", r.Plain(), U1IR)
	}
	if !U1EP(3).Clr().IsClr() {
		t.Error("U1EP3CLR not recognized as CLR alias")
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name  string
		ep    int
		in    bool
		odd   bool
		want  Status
		index int
	}{
		{"ep0 out even", 0, false, false, 0x00, 0},
		{"ep0 in odd", 0, true, true, 0x0C, 3},
		{"ep1 out odd", 1, false, true, 0x14, 5},
		{"ep15 in even", 15, true, false, 0xF8, 62},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := MakeStatus(tt.ep, tt.in, tt.odd)
			if s != tt.want {
				t.Fatalf("MakeStatus() = %#02x, want %#02x", s, tt.want)
			}
			if s.Endpoint() != tt.ep || s.In() != tt.in || s.Odd() != tt.odd {
				t.Errorf("decode = (%d, %v, %v), want (%d, %v, %v)",
					s.Endpoint(), s.In(), s.Odd(), tt.ep, tt.in, tt.odd)
			}
			if s.Index() != tt.index {
				t.Errorf("Index() = %d, want %d", s.Index(), tt.index)
			}
			if Index(tt.ep, tt.in, tt.odd) != tt.index {
				t.Errorf("Index(%d, %v, %v) = %d, want %d",
					tt.ep, tt.in, tt.odd, Index(tt.ep, tt.in, tt.odd), tt.index)
			}
		})
	}
}

func TestBDTPages(t *testing.T) {
	p1, p2, p3 := BDTPages(0x1D012600)
	if p1 != 0x26 || p2 != 0x01 || p3 != 0x1D {
		t.Errorf("BDTPages() = (%#x, %#x, %#x), want (0x26, 0x01, 0x1d)", p1, p2, p3)
	}
	if got := BDTBase(p1, p2, p3); got != 0x1D012600 {
		t.Errorf("BDTBase() = %s, want 0x1d012600", got)
	}
	// bit 8 is not implemented
	if got := BDTBase(0x27, 0, 0); got != 0x2600 {
		t.Errorf("BDTBase(0x27) = %s, want 0x00002600", got)
	}
}

func TestBufferDescriptor(t *testing.T) {
	var bd BufferDescriptor

	bd.SetBufferAddress(0x00001234)
	bd.SetByteCount(64)
	bd.SetFlags(BD_UOWN | BD_DATA01 | BD_DTS)

	if got := bd.BufferAddress(); got != 0x1234 {
		t.Errorf("BufferAddress() = %s, want 0x00001234", got)
	}
	if got := bd.ByteCount(); got != 64 {
		t.Errorf("ByteCount() = %d, want 64", got)
	}
	if got := bd.Control(); got != 64<<16|0xC8 {
		t.Errorf("Control() = %#08x, want %#08x", got, 64<<16|0xC8)
	}
	if bd.Owner() != Hardware {
		t.Errorf("Owner() = %v, want hardware", bd.Owner())
	}

	// the module writes back the token PID and releases the descriptor
	bd.SetControl(8<<16 | BD_DATA01 | uint32(PIDSetup)<<BD_PID_Pos)
	if bd.Owner() != Software {
		t.Errorf("Owner() = %v, want software", bd.Owner())
	}
	if bd.PID() != PIDSetup {
		t.Errorf("PID() = %v, want SETUP", bd.PID())
	}
	if bd.ByteCount() != 8 {
		t.Errorf("ByteCount() = %d, want 8", bd.ByteCount())
	}

	// flags and count are independent fields
	bd.SetFlags(0)
	if bd.ByteCount() != 8 {
		t.Errorf("SetFlags(0) changed ByteCount() to %d", bd.ByteCount())
	}
}

func TestPID_String(t *testing.T) {
	tests := []struct {
		pid  PID
		want string
	}{
		{PIDOut, "OUT"},
		{PIDIn, "IN"},
		{PIDSetup, "SETUP"},
		{PID(0x5), "PID(0x5)"},
	}

	for _, tt := range tests {
		if got := tt.pid.String(); got != tt.want {
			t.Errorf("PID(%d).String() = %q, want %q", tt.pid, got, tt.want)
		}
	}
}

func TestTable(t *testing.T) {
	arena := mem.NewArena(0x1000, 2048)
	if _, err := arena.Alloc(4, 1); err != nil {
		t.Fatal(err)
	}
	b, err := arena.Alloc(TableSize, TableAlign)
	if err != nil {
		t.Fatal(err)
	}

	table, err := TableAt(b)
	if err != nil {
		t.Fatalf("TableAt() error = %v", err)
	}

	pair := table.Pair(2, true)
	pair[1].SetBufferAddress(0xCAFE0)
	if got := table.At(Index(2, true, true)).BufferAddress(); got != 0xCAFE0 {
		t.Errorf("At(ep2 in odd).BufferAddress() = %s, want 0x000cafe0", got)
	}

	// the descriptor is visible at its physical position in the arena
	view, err := arena.Slice(b.Phys+mem.PhysAddr(Index(2, true, true)*DescriptorSize+4), 4)
	if err != nil {
		t.Fatal(err)
	}
	if view[0] != 0xE0 || view[1] != 0xAF || view[2] != 0x0C {
		t.Errorf("raw address bytes = %x, want e0af0c00", view)
	}
}

func TestTableAt_Errors(t *testing.T) {
	arena := mem.NewArena(0x1000, 4096)
	small, _ := arena.Alloc(64, TableAlign)
	if _, err := TableAt(small); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("TableAt(64 bytes) error = %v, want ErrInvalidParameter", err)
	}

	misaligned, _ := arena.Alloc(TableSize, 16)
	if misaligned.Phys.Aligned(TableAlign) {
		t.Skip("allocation happened to be 512-byte aligned")
	}
	if _, err := TableAt(misaligned); !errors.Is(err, pkg.ErrMisaligned) {
		t.Errorf("TableAt(misaligned) error = %v, want ErrMisaligned", err)
	}
}
