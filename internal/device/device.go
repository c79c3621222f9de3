package device

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-fcserver/internal/colorcurve"
	"github.com/nerrad567/gray-logic-fcserver/internal/control"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fcserver/internal/jsonvalue"
	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
	"github.com/nerrad567/gray-logic-fcserver/internal/transport"
)

// Logger defines the logging interface used by devices.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Kind identifies a driver.
type Kind string

// Supported drivers. The values are the type strings used in
// configuration and device descriptions.
const (
	KindFadecandy Kind = "fadecandy"
	KindEnttec    Kind = "enttec"
)

// Device is one attached LED controller.
//
// The set of implementations is closed: *Fadecandy and *Enttec.
type Device interface {
	// Type returns the configuration type string.
	Type() string

	// Serial returns the USB serial number, or "" if unknown.
	Serial() string

	// Name returns a human readable name for logs.
	Name() string

	// Handle returns the transport handle the device writes to.
	Handle() transport.Handle

	// Matches reports whether a configuration entry or a control message
	// "device" object selects this device.
	Matches(matcher any) bool

	// LoadConfiguration applies a devices[] entry.
	LoadConfiguration(cfg config.DeviceConfig)

	// WriteMessage applies one OPC message.
	WriteMessage(msg opc.Message)

	// HandleControl applies a device-targeted control message, recording
	// errors on reply.
	HandleControl(req *control.Request, reply *control.Reply)

	// WriteColorCorrection recomputes and sends the colour lookup table.
	WriteColorCorrection(cfg colorcurve.Config)

	// Flush consumes finished transport writes.
	Flush()

	// Describe returns the device description sent to clients.
	Describe() map[string]any

	// Stats returns transfer counters.
	Stats() Stats

	// Close cancels and drains pending writes, then closes the handle.
	Close() error

	sealed()
}

// Options configure a new device.
type Options struct {
	Verbose bool
	Logger  Logger
	// Now is used for the attach timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Probe returns the driver for an identity by vendor and product id.
func Probe(id transport.Identity) (Kind, bool) {
	switch {
	case id.VendorID == fadecandyVendorID && id.ProductID == fadecandyProductID:
		return KindFadecandy, true
	case id.VendorID == ftdiVendorID && id.ProductID == ftdiFT245ProductID:
		return KindEnttec, true
	default:
		return "", false
	}
}

// Open creates the driver for an opened handle. It returns
// ErrUnsupportedDevice when no driver claims the identity and
// ErrProbeFailed when the closer check after opening rejects it.
// The handle is not closed on error.
func Open(h transport.Handle, opts Options) (Device, error) {
	id := h.Identity()
	kind, ok := Probe(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDevice, id)
	}

	switch kind {
	case KindFadecandy:
		return newFadecandy(h, opts), nil
	case KindEnttec:
		if !enttecProbeAfterOpening(id) {
			return nil, fmt.Errorf("%w: %s is not an Enttec DMX USB Pro", ErrProbeFailed, id)
		}
		return newEnttec(h, opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDevice, id)
	}
}

// matches implements the shared matching rule: the matcher must be an
// object; its type, if present and non-null, must equal the device type;
// its serial, if present and non-null, must equal the device serial. A
// device without a serial number matches any serial.
func matches(matcher any, typ, serial string) bool {
	obj, ok := jsonvalue.Object(matcher)
	if !ok {
		return false
	}

	if v := obj["type"]; v != nil {
		s, ok := jsonvalue.String(v)
		if !ok || s != typ {
			return false
		}
	}

	if v := obj["serial"]; v != nil && serial != "" {
		s, ok := jsonvalue.String(v)
		if !ok || s != serial {
			return false
		}
	}

	return true
}

// ConfigMatcher converts a devices[] entry into the matcher form.
func ConfigMatcher(cfg config.DeviceConfig) map[string]any {
	return map[string]any{
		"type":   cfg.Type,
		"serial": cfg.Serial,
	}
}
