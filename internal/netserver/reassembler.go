package netserver

import (
	"fmt"

	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
)

// BufferBytes is the reassembly capacity: two maximum-size OPC messages.
const BufferBytes = 2 * opc.MaxMessageBytes

// Reassembler turns a byte stream into complete OPC messages.
//
// Output does not depend on how the stream is split across Feed calls.
// A Reassembler belongs to one connection and is not safe for concurrent use.
type Reassembler struct {
	buf []byte
	n   int
}

// NewReassembler returns an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{buf: make([]byte, BufferBytes)}
}

// Feed appends data and calls fn once for every message that is now
// complete, in stream order. The message data aliases the internal buffer
// and is only valid during the call.
//
// If data does not fit in the free space nothing is appended and
// ErrBufferOverflow is returned; the stream cannot be recovered.
func (r *Reassembler) Feed(data []byte, fn func(opc.Message)) error {
	if free := len(r.buf) - r.n; len(data) > free {
		return fmt.Errorf("%w: %d bytes buffered, %d received", ErrBufferOverflow, r.n, len(data))
	}
	r.n += copy(r.buf[r.n:], data)

	start := 0
	for {
		hdr, ok := opc.ParseHeader(r.buf[start:r.n])
		if !ok {
			break
		}
		end := start + hdr.FrameLength()
		if end > r.n {
			break
		}
		fn(opc.Message{
			Channel: hdr.Channel,
			Command: hdr.Command,
			Data:    r.buf[start+opc.HeaderBytes : end],
		})
		start = end
	}

	if start > 0 {
		r.n = copy(r.buf, r.buf[start:r.n])
	}
	return nil
}

// Buffered returns the number of bytes waiting for the rest of a message.
func (r *Reassembler) Buffered() int {
	return r.n
}
