package pkg

import "errors"

// Bus errors returned by the device controller driver.
var (
	// ErrInvalidEndpoint indicates an endpoint address that is out of range,
	// has the wrong direction, or refers to an unallocated endpoint.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrEndpointOverflow indicates that no endpoint slot is free or that
	// endpoint buffers could not be allocated.
	ErrEndpointOverflow = errors.New("endpoint overflow")

	// ErrBufferOverflow indicates a caller buffer that is too small, or a
	// transfer larger than the endpoint's maximum packet size.
	ErrBufferOverflow = errors.New("buffer overflow")

	// ErrWouldBlock indicates that the operation cannot make progress now.
	// It is not a fault; callers retry after the next poll.
	ErrWouldBlock = errors.New("operation would block")

	// ErrInvalidState indicates an invalid endpoint state for the operation.
	ErrInvalidState = errors.New("invalid endpoint state")
)

// USB protocol errors reported by the simulated serial interface engine.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates a NAK response (device busy).
	ErrNAK = errors.New("NAK received")

	// ErrBusy indicates that token processing is suspended (PKTDIS set).
	ErrBusy = errors.New("token processing disabled")

	// ErrOverrun indicates a data overrun condition.
	ErrOverrun = errors.New("data overrun")

	// ErrDataToggle indicates a DATA0/DATA1 synchronization mismatch.
	ErrDataToggle = errors.New("data toggle mismatch")

	// ErrNotConfigured indicates the USB module is not powered or enabled.
	ErrNotConfigured = errors.New("module not enabled")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")
)

// Resource errors.
var (
	// ErrNoMemory indicates insufficient memory.
	ErrNoMemory = errors.New("insufficient memory")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrMisaligned indicates memory that violates a hardware alignment rule.
	ErrMisaligned = errors.New("misaligned memory")
)

// TransferStatus represents the completion status of a USB transaction.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess    TransferStatus = iota // Transaction completed successfully
	TransferStatusError                            // Transaction failed with error
	TransferStatusStall                            // Endpoint stalled
	TransferStatusNAK                              // NAK received
	TransferStatusBusy                             // Token processing disabled
	TransferStatusOverrun                          // Data overrun
	TransferStatusDataToggle                       // DATA0/1 mismatch
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusStall:
		return "stall"
	case TransferStatusNAK:
		return "nak"
	case TransferStatusBusy:
		return "busy"
	case TransferStatusOverrun:
		return "overrun"
	case TransferStatusDataToggle:
		return "toggle"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusNAK:
		return ErrNAK
	case TransferStatusBusy:
		return ErrBusy
	case TransferStatusOverrun:
		return ErrOverrun
	case TransferStatusDataToggle:
		return ErrDataToggle
	default:
		return ErrProtocol
	}
}

// StatusOf maps an error onto a transfer status.
// A nil error is [TransferStatusSuccess]; unknown errors are
// [TransferStatusError].
func StatusOf(err error) TransferStatus {
	switch {
	case err == nil:
		return TransferStatusSuccess
	case errors.Is(err, ErrStall):
		return TransferStatusStall
	case errors.Is(err, ErrNAK):
		return TransferStatusNAK
	case errors.Is(err, ErrBusy):
		return TransferStatusBusy
	case errors.Is(err, ErrOverrun):
		return TransferStatusOverrun
	case errors.Is(err, ErrDataToggle):
		return TransferStatusDataToggle
	default:
		return TransferStatusError
	}
}
