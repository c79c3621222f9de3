package device

import "errors"

// Domain errors for the device package.
var (
	// ErrUnsupportedDevice is returned when an identity matches no driver.
	ErrUnsupportedDevice = errors.New("device: unsupported device")

	// ErrProbeFailed is returned when a device looked right by vendor and
	// product id but failed the closer check after opening.
	ErrProbeFailed = errors.New("device: probe after opening failed")

	// ErrMapNotArray is logged when a configured map is present but not a list.
	ErrMapNotArray = errors.New("device: configuration 'map' must be an array")

	// ErrUnsupportedInstruction is logged for mapping entries this device cannot use.
	ErrUnsupportedInstruction = errors.New("device: unsupported mapping instruction")

	// ErrFirmwareConfigNotObject is logged when firmware options are not an object.
	ErrFirmwareConfigNotObject = errors.New("device: firmware configuration is not an object")
)

// Error strings placed in control replies.
const (
	errTextUnknownDeviceMessage = "Unknown device-specific message type"
	errTextPixelArrayMissing    = "Pixel array is missing"
)
