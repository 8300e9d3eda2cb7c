package hal

import "fmt"

// Direction is the direction of an endpoint, as encoded in bit 7 of an
// endpoint address.
type Direction uint8

// Endpoint directions.
const (
	Out Direction = 0x00 // Host to device
	In  Direction = 0x80 // Device to host
)

// String returns "OUT" or "IN".
func (d Direction) String() string {
	if d == In {
		return "IN"
	}
	return "OUT"
}

// EndpointType is the transfer type of an endpoint (USB 2.0 Spec Table 9-13).
type EndpointType uint8

// Endpoint transfer types.
const (
	EndpointTypeControl     EndpointType = 0x00 // Control transfer
	EndpointTypeIsochronous EndpointType = 0x01 // Isochronous transfer
	EndpointTypeBulk        EndpointType = 0x02 // Bulk transfer
	EndpointTypeInterrupt   EndpointType = 0x03 // Interrupt transfer
)

// String returns the transfer type name.
func (t EndpointType) String() string {
	switch t {
	case EndpointTypeControl:
		return "control"
	case EndpointTypeIsochronous:
		return "isochronous"
	case EndpointTypeBulk:
		return "bulk"
	case EndpointTypeInterrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("EndpointType(%d)", uint8(t))
	}
}

// EndpointAddress is a USB endpoint address: the endpoint number in the low
// bits and the direction in bit 7.
type EndpointAddress uint8

// NewEndpointAddress returns the address of endpoint index in direction dir.
func NewEndpointAddress(index int, dir Direction) EndpointAddress {
	return EndpointAddress(uint8(index)&0x7F | uint8(dir))
}

// Index returns the endpoint number. Bits 6:4 are reserved in valid
// addresses, so an index of 16 or more marks an address out of range.
func (a EndpointAddress) Index() int {
	return int(a &^ 0x80)
}

// Direction returns the direction encoded in the address.
func (a EndpointAddress) Direction() Direction {
	return Direction(a & 0x80)
}

// IsIn returns true if this is an IN endpoint (device to host).
func (a EndpointAddress) IsIn() bool {
	return a.Direction() == In
}

// IsOut returns true if this is an OUT endpoint (host to device).
func (a EndpointAddress) IsOut() bool {
	return a.Direction() == Out
}

// String returns a description such as "EP1 IN".
func (a EndpointAddress) String() string {
	return fmt.Sprintf("EP%d %s", a.Index(), a.Direction())
}

// PollKind classifies the outcome of [Bus.Poll].
type PollKind uint8

// Poll outcomes.
const (
	PollNone  PollKind = iota // Nothing happened
	PollReset                 // Bus reset detected
	PollData                  // Transactions completed, see PollResult bitmaps
)

// String returns the outcome name.
func (k PollKind) String() string {
	switch k {
	case PollNone:
		return "none"
	case PollReset:
		return "reset"
	case PollData:
		return "data"
	default:
		return fmt.Sprintf("PollKind(%d)", uint8(k))
	}
}

// PollResult reports which endpoints need attention. Bit n of each bitmap
// refers to endpoint number n. The bitmaps are only set for [PollData].
type PollResult struct {
	Kind         PollKind
	EPOut        uint16 // OUT data received and not yet read
	EPInComplete uint16 // IN transactions completed since the last poll
	EPSetup      uint16 // SETUP packet received and not yet read
}

// String returns a compact description of the result.
func (r PollResult) String() string {
	if r.Kind != PollData {
		return r.Kind.String()
	}
	return fmt.Sprintf("data(out=%#04x in=%#04x setup=%#04x)", r.EPOut, r.EPInComplete, r.EPSetup)
}

// Bus is the device-side USB bus: the operation set a USB device/class stack
// needs from a device controller driver.
//
// Every operation is non-blocking. Operations that cannot make progress
// return [pkg.ErrWouldBlock]; the caller retries after a later Poll.
//
// Implementations are not safe for concurrent use: callers serialize access,
// typically by calling the bus only from one execution context.
type Bus interface {
	// AllocEP reserves an endpoint. If addr is nil, the first free endpoint
	// number from 1 in direction dir is assigned; endpoint 0 is reserved for
	// control transfers. A control endpoint is bidirectional and therefore
	// allocated twice, once per direction.
	AllocEP(dir Direction, addr *EndpointAddress, typ EndpointType, maxPacketSize uint16, interval uint8) (EndpointAddress, error)

	// Enable attaches the device to the bus and unmasks the interrupts
	// required to call Poll from an interrupt handler.
	Enable()

	// Reset is called by the stack after Poll reported a bus reset.
	Reset()

	// SetDeviceAddress sets the 7-bit device address.
	SetDeviceAddress(addr uint8)

	// Write queues one packet for transmission on an IN endpoint.
	// Returns the number of bytes queued.
	Write(ep EndpointAddress, buf []byte) (int, error)

	// Read retrieves one received packet from an OUT endpoint.
	// Returns the number of bytes copied into buf.
	Read(ep EndpointAddress, buf []byte) (int, error)

	// SetStalled sets or clears the stall condition of an endpoint.
	SetStalled(ep EndpointAddress, stalled bool)

	// IsStalled reports the stall condition of an endpoint.
	IsStalled(ep EndpointAddress) bool

	// Suspend is called when the bus has been idle for 3 ms.
	Suspend()

	// Resume is called when bus activity resumes after a suspend.
	Resume()

	// Poll reconciles completed transactions and bus events.
	Poll() PollResult
}

// Standard USB request codes (USB 2.0 Spec Table 9-4).
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
)

// Request type direction values (bit 7 of bmRequestType).
const (
	RequestDirectionHostToDevice = 0x00 // Host to device
	RequestDirectionDeviceToHost = 0x80 // Device to host
)

// SetupPacket represents a USB SETUP packet in the HAL layer.
// This is a fixed-size, zero-allocation structure for SETUP transactions.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// IsDeviceToHost reports whether the data stage, if any, is IN.
func (s *SetupPacket) IsDeviceToHost() bool {
	return s.RequestType&RequestDirectionDeviceToHost != 0
}
