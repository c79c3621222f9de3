package netserver

import "errors"

// Domain errors for the netserver package.
var (
	// ErrBufferOverflow is returned when a client sends more unframed bytes
	// than the reassembly buffer can hold. The connection is closed.
	ErrBufferOverflow = errors.New("netserver: reassembly buffer overflow")

	// ErrNotStarted is returned by operations that need a listener.
	ErrNotStarted = errors.New("netserver: server not started")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("netserver: server already started")
)
