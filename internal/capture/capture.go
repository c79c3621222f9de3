// Package capture records received OPC messages to a CBOR stream and
// reads them back for replay.
//
// A capture file is a sequence of CBOR-encoded Frame values with no
// header, so a file cut short by a crash is still readable up to the
// last complete frame.
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
)

const (
	dirPermissions  = 0750
	filePermissions = 0640
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("capture: writer closed")

// Frame is one recorded message. Integer keys keep the file compact.
type Frame struct {
	Time    time.Time `cbor:"1,keyasint"`
	Channel uint8     `cbor:"2,keyasint"`
	Command uint8     `cbor:"3,keyasint"`
	Data    []byte    `cbor:"4,keyasint"`
}

// Message returns the frame as an OPC message.
func (f Frame) Message() opc.Message {
	return opc.Message{Channel: f.Channel, Command: opc.Command(f.Command), Data: f.Data}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR decoder mode: %v", err))
	}
}

// Writer appends frames to a stream. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	closer  io.Closer
	encoder *cbor.Encoder
	now     func() time.Time
	frames  uint64
	closed  bool
}

// NewWriter writes frames to w.
func NewWriter(w io.Writer) *Writer {
	cw := &Writer{encoder: encMode.NewEncoder(w), now: time.Now}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	return cw
}

// Create opens path for appending, creating it and its directory if needed.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating capture directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening capture file: %w", err)
	}
	return NewWriter(f), nil
}

// Record appends msg. The payload is encoded before Record returns, so
// msg may alias a buffer the caller reuses.
func (w *Writer) Record(msg opc.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	frame := Frame{
		Time:    w.now().UTC(),
		Channel: msg.Channel,
		Command: uint8(msg.Command),
		Data:    msg.Data,
	}
	if err := w.encoder.Encode(frame); err != nil {
		return fmt.Errorf("encoding capture frame: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close closes the underlying file. Later Record calls fail with ErrClosed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Reader reads frames written by a Writer.
type Reader struct {
	decoder *cbor.Decoder
	closer  io.Closer
}

// NewReader reads frames from r.
func NewReader(r io.Reader) *Reader {
	cr := &Reader{decoder: decMode.NewDecoder(r)}
	if c, ok := r.(io.Closer); ok {
		cr.closer = c
	}
	return cr
}

// Open opens a capture file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture file: %w", err)
	}
	return NewReader(f), nil
}

// Next returns the next frame, or io.EOF at the end of the stream.
// A frame cut short at the end is reported as io.ErrUnexpectedEOF.
func (r *Reader) Next() (Frame, error) {
	var f Frame
	if err := r.decoder.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, err
		}
		return Frame{}, fmt.Errorf("decoding capture frame: %w", err)
	}
	return f, nil
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
