package transport

import "errors"

// Domain errors for the transport package.
var (
	// ErrQueueFull is returned by Submit when QueueDepth writes are pending.
	ErrQueueFull = errors.New("transport: write queue full")

	// ErrClosed is returned by Submit after Close, and reported for writes
	// still queued when the handle closed.
	ErrClosed = errors.New("transport: handle closed")

	// ErrCancelled is reported for writes removed by CancelAll.
	ErrCancelled = errors.New("transport: write cancelled")

	// ErrShortWrite is reported when the device accepted fewer bytes than submitted.
	ErrShortWrite = errors.New("transport: short write")
)
