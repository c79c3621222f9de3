package coordinator

import "errors"

// Domain errors for the coordinator.
var (
	// ErrNoConfiguration is returned when a device matches no devices[] entry.
	ErrNoConfiguration = errors.New("coordinator: device has no matching configuration")

	// ErrUnknownHandle is returned when detaching a handle that is not attached.
	ErrUnknownHandle = errors.New("coordinator: handle is not attached")
)

// Error strings placed in control replies.
const (
	errTextUnknownType      = "Unknown message type"
	errTextNoMatchingDevice = "No matching device found"
	errTextHistoryDisabled  = "Device history is not enabled"
	errTextHistoryFailed    = "Device history is unavailable"
)

// fieldHealth carries health check results in server_info replies.
const fieldHealth = "health"
