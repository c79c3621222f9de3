// Package transport is the byte-level delivery path to LED hardware.
//
// A Handle represents one opened device. Writes are submitted without
// blocking; each submission later produces exactly one Completion on the
// channel the caller supplied. Completions only update bookkeeping and are
// never retried.
//
// Two implementations are provided:
//   - Serial: a serial port (go.bug.st/serial), used for the Enttec DMX USB
//     Pro through its FTDI virtual COM port.
//   - Null: accepts and discards writes, keeping the last frames for
//     inspection. Used for dry runs and tests.
//
// The Watcher turns configured ports into arrival and removal events.
package transport

import (
	"fmt"
	"strings"
)

// QueueDepth is the maximum number of writes pending on one handle.
// Further submissions fail with ErrQueueFull.
const QueueDepth = 16

// Identity describes a device as reported by the host.
type Identity struct {
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	Serial       string
	BCDDevice    uint16
	Path         string
}

// String returns a short description for logs.
func (id Identity) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%04x:%04x", id.VendorID, id.ProductID)
	if id.Serial != "" {
		fmt.Fprintf(&b, " serial=%s", id.Serial)
	}
	if id.Path != "" {
		fmt.Fprintf(&b, " path=%s", id.Path)
	}
	return b.String()
}

// Completion reports the outcome of one submitted write.
type Completion struct {
	Bytes int
	Err   error
}

// Handle is an opened device.
type Handle interface {
	// Identity returns the device identity captured when it was opened.
	Identity() Identity

	// Submit queues data for writing and returns immediately. The data is
	// copied. If Submit returns nil, exactly one Completion is later sent
	// on done; the channel must have room for QueueDepth+1 completions.
	Submit(data []byte, done chan<- Completion) error

	// CancelAll completes every queued write with ErrCancelled.
	// A write already in progress finishes normally.
	CancelAll()

	// Close cancels pending writes and releases the device. Every accepted
	// submission has produced its Completion by the time Close returns.
	Close() error
}
