package transport

import "sync"

// NullHandle accepts writes and completes them immediately.
// It keeps every frame written so tests can inspect device output.
type NullHandle struct {
	id Identity

	mu     sync.Mutex
	writes [][]byte
	closed bool
	keep   int
}

// NewNull returns a handle that discards writes after recording the most
// recent keep frames. keep <= 0 records all of them.
func NewNull(id Identity, keep int) *NullHandle {
	return &NullHandle{id: id, keep: keep}
}

// Identity returns the declared identity.
func (h *NullHandle) Identity() Identity {
	return h.id
}

// Submit records a copy of data and reports success.
func (h *NullHandle) Submit(data []byte, done chan<- Completion) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.writes = append(h.writes, append([]byte(nil), data...))
	if h.keep > 0 && len(h.writes) > h.keep {
		h.writes = h.writes[len(h.writes)-h.keep:]
	}
	h.mu.Unlock()

	done <- Completion{Bytes: len(data)}
	return nil
}

// CancelAll is a no-op; nothing is ever queued.
func (h *NullHandle) CancelAll() {}

// Close marks the handle closed.
func (h *NullHandle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

// Writes returns the recorded frames, oldest first.
func (h *NullHandle) Writes() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.writes))
	copy(out, h.writes)
	return out
}

// Last returns the most recent frame, or nil.
func (h *NullHandle) Last() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.writes) == 0 {
		return nil
	}
	return h.writes[len(h.writes)-1]
}

// Reset forgets recorded frames.
func (h *NullHandle) Reset() {
	h.mu.Lock()
	h.writes = nil
	h.mu.Unlock()
}
