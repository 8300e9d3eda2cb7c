// Package capture records USB host transactions as a CBOR sequence so that a
// session against the simulator can be stored and replayed.
package capture

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/ardnew/pic32usb/pkg"
)

// Kind is the type of a captured transaction.
type Kind uint8

// Transaction kinds.
const (
	KindReset Kind = iota // Bus reset
	KindSetup             // SETUP token with its 8-byte DATA0 packet
	KindOut               // OUT token with a data packet
	KindIn                // IN token, Data holds the device's packet
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindReset:
		return "reset"
	case KindSetup:
		return "setup"
	case KindOut:
		return "out"
	case KindIn:
		return "in"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Event is one captured host transaction and its outcome.
type Event struct {
	Kind     Kind               `cbor:"1,keyasint"`
	Endpoint uint8              `cbor:"2,keyasint,omitempty"`
	Data     []byte             `cbor:"3,keyasint,omitempty"`
	Data1    bool               `cbor:"4,keyasint,omitempty"`
	Status   pkg.TransferStatus `cbor:"5,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
	dm, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dm
}

// Writer appends events to a CBOR sequence.
type Writer struct {
	enc *cbor.Encoder
	n   int
}

// NewWriter returns a writer encoding to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w)}
}

// Write encodes one event.
func (w *Writer) Write(e Event) error {
	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("capture: failed to encode %s event: %w", e.Kind, err)
	}
	w.n++
	return nil
}

// Count returns the number of events written.
func (w *Writer) Count() int {
	return w.n
}

// Reader decodes events from a CBOR sequence.
type Reader struct {
	src *countingReader
	dec *cbor.Decoder
}

// countingReader counts the bytes the decoder pulled from the source.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

// NewReader returns a reader decoding from r.
func NewReader(r io.Reader) *Reader {
	src := &countingReader{r: r}
	return &Reader{src: src, dec: decMode.NewDecoder(src)}
}

// Read decodes the next event. It returns io.EOF after the last event and
// io.ErrUnexpectedEOF if the input ends inside an event.
func (r *Reader) Read() (Event, error) {
	var e Event
	if err := r.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			// Bytes read but not decoded are a partial event.
			if r.src.n == r.dec.NumBytesRead() {
				return Event{}, io.EOF
			}
			err = io.ErrUnexpectedEOF
		}
		return Event{}, fmt.Errorf("capture: failed to decode event: %w", err)
	}
	return e, nil
}

// ReadAll decodes all remaining events.
func (r *Reader) ReadAll() ([]Event, error) {
	var events []Event
	for {
		e, err := r.Read()
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}
