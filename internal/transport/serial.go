package transport

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaudRate is used when a serial port has no configured rate.
// FTDI virtual COM ports ignore it, but the driver still requires one.
const DefaultBaudRate = 57600

// writeRequest is one queued write.
type writeRequest struct {
	data []byte
	done chan<- Completion
	gen  uint64
}

// SerialHandle writes to a serial port from a dedicated goroutine.
//
// Thread Safety:
//   - Submit, CancelAll and Close are safe for concurrent use.
type SerialHandle struct {
	id   Identity
	port io.WriteCloser

	queue   chan writeRequest
	closing chan struct{}
	stopped chan struct{}

	mu     sync.Mutex
	gen    uint64
	closed bool
	failed error
}

// OpenSerial opens the port at id.Path and starts its writer.
func OpenSerial(id Identity, baudRate int) (*SerialHandle, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(id.Path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", id.Path, err)
	}
	return newSerialHandle(id, port), nil
}

func newSerialHandle(id Identity, port io.WriteCloser) *SerialHandle {
	h := &SerialHandle{
		id:      id,
		port:    port,
		queue:   make(chan writeRequest, QueueDepth),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go h.run()
	return h
}

// Identity returns the port identity.
func (h *SerialHandle) Identity() Identity {
	return h.id
}

// Submit queues a copy of data.
func (h *SerialHandle) Submit(data []byte, done chan<- Completion) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	req := writeRequest{
		data: append([]byte(nil), data...),
		done: done,
		gen:  h.gen,
	}
	select {
	case h.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// CancelAll marks every queued write as cancelled.
func (h *SerialHandle) CancelAll() {
	h.mu.Lock()
	h.gen++
	h.mu.Unlock()
}

// Failed returns the first write error seen on the port, if any.
// A failed port usually means the device was unplugged.
func (h *SerialHandle) Failed() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failed
}

// Close stops the writer and closes the port.
func (h *SerialHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		<-h.stopped
		return nil
	}
	h.closed = true
	h.gen++
	h.mu.Unlock()

	close(h.closing)
	<-h.stopped

	if err := h.port.Close(); err != nil {
		return fmt.Errorf("closing serial port %s: %w", h.id.Path, err)
	}
	return nil
}

func (h *SerialHandle) run() {
	defer close(h.stopped)

	for {
		select {
		case <-h.closing:
			h.drain()
			return
		case req := <-h.queue:
			h.write(req)
		}
	}
}

func (h *SerialHandle) write(req writeRequest) {
	h.mu.Lock()
	current := h.gen
	h.mu.Unlock()

	if req.gen != current {
		req.done <- Completion{Err: ErrCancelled}
		return
	}

	n, err := h.port.Write(req.data)
	if err == nil && n < len(req.data) {
		err = fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(req.data))
	}
	if err != nil {
		h.mu.Lock()
		if h.failed == nil {
			h.failed = err
		}
		h.mu.Unlock()
	}
	req.done <- Completion{Bytes: n, Err: err}
}

// drain completes everything still queued. Submit refuses new work once
// closed is set, so the queue cannot grow while this runs.
func (h *SerialHandle) drain() {
	for {
		select {
		case req := <-h.queue:
			req.done <- Completion{Err: ErrClosed}
		default:
			return
		}
	}
}
