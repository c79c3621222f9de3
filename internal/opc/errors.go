package opc

import "errors"

// Domain errors for the opc package.
var (
	// ErrMessageTooLarge is returned when a payload exceeds MaxDataBytes.
	ErrMessageTooLarge = errors.New("opc: message too large")

	// ErrFrameTruncated is returned when a frame is shorter than its header claims.
	ErrFrameTruncated = errors.New("opc: frame truncated")

	// ErrSysExTooShort is returned when a SysEx payload has no 4-byte id.
	ErrSysExTooShort = errors.New("opc: sysex message too short")

	// ErrNotSysEx is returned when SysEx fields are read from another command.
	ErrNotSysEx = errors.New("opc: not a sysex message")
)
