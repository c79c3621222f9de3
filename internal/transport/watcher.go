package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial/enumerator"

	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
)

// Logger is the logging interface used by the watcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Events receives device arrival and removal.
// Removal hands back the same Handle passed to Arrived; the receiver is
// responsible for closing it.
type Events interface {
	Arrived(h Handle)
	Removed(h Handle)
}

// portLister returns the serial ports currently present.
type portLister func() ([]*enumerator.PortDetails, error)

// serialOpener opens one serial port.
type serialOpener func(id Identity, baudRate int) (failingHandle, error)

// failingHandle is a Handle that can report a dead device.
type failingHandle interface {
	Handle
	Failed() error
}

// Watcher turns configured ports into arrival and removal events.
//
// Null devices arrive once at Start. Serial ports are polled every
// ScanInterval: a port that appears is opened and announced; a port that
// disappears, or whose writes start failing, is announced as removed.
type Watcher struct {
	cfg      config.TransportConfig
	interval time.Duration
	events   Events
	logger   Logger

	list portLister
	open serialOpener

	mu     sync.Mutex
	active map[string]failingHandle
	nulls  []*NullHandle

	wg sync.WaitGroup
}

// NewWatcher creates a watcher for the configured transports.
func NewWatcher(cfg config.TransportConfig, events Events) *Watcher {
	return &Watcher{
		cfg:      cfg,
		interval: cfg.GetScanInterval(),
		events:   events,
		logger:   noopLogger{},
		list:     enumerator.GetDetailedPortsList,
		open: func(id Identity, baud int) (failingHandle, error) {
			return OpenSerial(id, baud)
		},
		active: make(map[string]failingHandle),
	}
}

// SetLogger sets the logger for the watcher.
func (w *Watcher) SetLogger(logger Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// Start announces null devices, runs one serial scan and, when an
// interval is configured, keeps polling until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	for i, nc := range w.cfg.Null {
		id, err := nullIdentity(nc)
		if err != nil {
			return fmt.Errorf("transports.null[%d]: %w", i, err)
		}
		h := NewNull(id, 1)
		w.mu.Lock()
		w.nulls = append(w.nulls, h)
		w.mu.Unlock()
		w.logger.Info("null device declared", "identity", id.String())
		w.events.Arrived(h)
	}

	if len(w.cfg.Serial) == 0 {
		return nil
	}

	w.Scan()

	if w.interval <= 0 {
		return nil
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Scan()
			}
		}
	}()
	return nil
}

// Wait blocks until the poll loop has exited.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// Scan checks configured serial ports once.
func (w *Watcher) Scan() {
	ports, err := w.list()
	if err != nil {
		w.logger.Warn("listing serial ports failed", "error", err)
		return
	}

	present := make(map[string]*enumerator.PortDetails, len(ports))
	for _, p := range ports {
		present[p.Name] = p
	}

	for _, sc := range w.cfg.Serial {
		details, isPresent := present[sc.Path]

		w.mu.Lock()
		h, isOpen := w.active[sc.Path]
		w.mu.Unlock()

		switch {
		case isOpen && (!isPresent || h.Failed() != nil):
			w.mu.Lock()
			delete(w.active, sc.Path)
			w.mu.Unlock()
			w.logger.Info("serial device removed", "path", sc.Path, "error", h.Failed())
			w.events.Removed(h)

		case !isOpen && isPresent:
			id, err := serialIdentity(sc, details)
			if err != nil {
				w.logger.Warn("bad serial port identity", "path", sc.Path, "error", err)
				continue
			}
			nh, err := w.open(id, sc.BaudRate)
			if err != nil {
				w.logger.Debug("opening serial port failed", "path", sc.Path, "error", err)
				continue
			}
			w.mu.Lock()
			w.active[sc.Path] = nh
			w.mu.Unlock()
			w.logger.Info("serial device arrived", "identity", id.String())
			w.events.Arrived(nh)
		}
	}
}

// serialIdentity merges configured identity fields with what the host reports.
func serialIdentity(sc config.SerialPortConfig, details *enumerator.PortDetails) (Identity, error) {
	id := Identity{
		Manufacturer: sc.Manufacturer,
		Product:      sc.Product,
		Serial:       sc.Serial,
		Path:         sc.Path,
	}

	vid, pid := sc.VendorID, sc.ProductID
	if details != nil && details.IsUSB {
		if vid == "" {
			vid = details.VID
		}
		if pid == "" {
			pid = details.PID
		}
		if id.Serial == "" {
			id.Serial = details.SerialNumber
		}
		if id.Product == "" {
			id.Product = details.Product
		}
	}

	var err error
	if id.VendorID, err = parseHex16(vid); err != nil {
		return Identity{}, fmt.Errorf("vendor id: %w", err)
	}
	if id.ProductID, err = parseHex16(pid); err != nil {
		return Identity{}, fmt.Errorf("product id: %w", err)
	}
	return id, nil
}

func nullIdentity(nc config.NullDeviceConfig) (Identity, error) {
	id := Identity{
		Manufacturer: nc.Manufacturer,
		Product:      nc.Product,
		Serial:       nc.Serial,
		Path:         "null",
	}
	var err error
	if id.VendorID, err = parseHex16(nc.VendorID); err != nil {
		return Identity{}, fmt.Errorf("vendor id: %w", err)
	}
	if id.ProductID, err = parseHex16(nc.ProductID); err != nil {
		return Identity{}, fmt.Errorf("product id: %w", err)
	}
	if id.BCDDevice, err = parseHex16(nc.BCDDevice); err != nil {
		return Identity{}, fmt.Errorf("bcd device: %w", err)
	}
	return id, nil
}

// parseHex16 accepts "1d50", "0x1d50" or "" (zero).
func parseHex16(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
