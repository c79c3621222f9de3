package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-fcserver/internal/colorcurve"
	"github.com/nerrad567/gray-logic-fcserver/internal/control"
	"github.com/nerrad567/gray-logic-fcserver/internal/device"
	"github.com/nerrad567/gray-logic-fcserver/internal/history"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fcserver/internal/jsonvalue"
	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
	"github.com/nerrad567/gray-logic-fcserver/internal/transport"
)

// Logger defines the logging interface used by the coordinator.
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

// Hub delivers a serialised message to every connected client.
type Hub interface {
	Broadcast(msg []byte)
}

// Publisher sends device events to a message broker.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// History persists device sessions and answers device_history.
type History interface {
	RecordAttach(ctx context.Context, typ, serial, name string, at time.Time) (int64, error)
	RecordDetach(ctx context.Context, id int64, at time.Time) error
	Recent(ctx context.Context, limit int) ([]history.Session, error)
}

// Recorder captures received pixel messages.
type Recorder interface {
	Record(msg opc.Message) error
}

// HealthCheck reports whether a backing service is usable.
type HealthCheck func(ctx context.Context) error

const (
	historyTimeout      = 5 * time.Second
	healthTimeout       = 2 * time.Second
	defaultHistoryLimit = 20
	maxHistoryLimit     = 1000
)

// Options configure a Coordinator.
type Options struct {
	// Version is reported by server_info.
	Version string
	Verbose bool
	Logger  Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// DeviceStats are the counters of one attached device.
type DeviceStats struct {
	Name   string
	Type   string
	Serial string
	device.Stats
}

// Stats is a snapshot of coordinator activity.
type Stats struct {
	PixelMessages   uint64
	ControlMessages uint64
	Devices         []DeviceStats
}

// Coordinator owns the attached devices.
type Coordinator struct {
	cfg     *config.Config
	color   colorcurve.Config
	version string
	verbose bool
	logger  Logger
	now     func() time.Time

	hub        Hub
	publisher  Publisher
	eventTopic string
	history    History
	recorder   Recorder
	health     map[string]HealthCheck

	mu       sync.Mutex
	devices  []device.Device
	sessions map[device.Device]int64

	pixelMessages   uint64
	controlMessages uint64
}

// New creates a coordinator for a loaded configuration.
// Invalid fields of the global colour correction are logged and skipped.
func New(cfg *config.Config, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	color, err := colorcurve.Parse(cfg.Color)
	if err != nil {
		logger.Warn("global color correction", "error", err)
	}

	return &Coordinator{
		cfg:      cfg,
		color:    color,
		version:  opts.Version,
		verbose:  opts.Verbose,
		logger:   logger,
		now:      now,
		sessions: make(map[device.Device]int64),
		health:   make(map[string]HealthCheck),
	}
}

// SetHub sets where connected_devices_changed is broadcast.
func (c *Coordinator) SetHub(h Hub) {
	c.mu.Lock()
	c.hub = h
	c.mu.Unlock()
}

// SetPublisher sets a broker publisher for device events on topic.
func (c *Coordinator) SetPublisher(p Publisher, topic string) {
	c.mu.Lock()
	c.publisher = p
	c.eventTopic = topic
	c.mu.Unlock()
}

// SetHistory enables session recording and device_history.
func (c *Coordinator) SetHistory(h History) {
	c.mu.Lock()
	c.history = h
	c.mu.Unlock()
}

// AddHealthCheck registers check under name. server_info reports the
// result of every registered check.
func (c *Coordinator) AddHealthCheck(name string, check HealthCheck) {
	c.mu.Lock()
	c.health[name] = check
	c.mu.Unlock()
}

// SetRecorder enables pixel message capture.
func (c *Coordinator) SetRecorder(r Recorder) {
	c.mu.Lock()
	c.recorder = r
	c.mu.Unlock()
}

// Arrived implements transport.Events. Rejected handles are closed.
func (c *Coordinator) Arrived(h transport.Handle) {
	if err := c.Attach(h); err != nil {
		c.logger.Debug("device not attached", "identity", h.Identity().String(), "error", err)
	}
}

// Removed implements transport.Events.
func (c *Coordinator) Removed(h transport.Handle) {
	if err := c.Detach(h); err != nil {
		c.logger.Debug("device removal ignored", "identity", h.Identity().String(), "error", err)
	}
}

// Attach opens a driver for h and keeps it if a devices[] entry matches.
// On error the handle has been closed.
func (c *Coordinator) Attach(h transport.Handle) error {
	dev, err := device.Open(h, device.Options{
		Verbose: c.verbose,
		Logger:  c.logger,
		Now:     c.now,
	})
	if err != nil {
		if cerr := h.Close(); cerr != nil {
			c.logger.Debug("closing rejected handle", "error", cerr)
		}
		return err
	}

	c.mu.Lock()
	cfg, ok := c.matchConfiguration(dev)
	if !ok {
		c.mu.Unlock()
		c.logger.Info("device has no matching configuration, not using it", "device", dev.Name())
		if cerr := dev.Close(); cerr != nil {
			c.logger.Debug("closing unused device", "error", cerr)
		}
		return fmt.Errorf("%w: %s", ErrNoConfiguration, dev.Name())
	}

	dev.LoadConfiguration(cfg)
	dev.WriteColorCorrection(c.color)
	c.devices = append(c.devices, dev)
	hist := c.history
	c.mu.Unlock()

	c.logger.Info("device attached", "device", dev.Name())

	if hist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		id, herr := hist.RecordAttach(ctx, dev.Type(), dev.Serial(), dev.Name(), c.now())
		cancel()
		if herr != nil {
			c.logger.Warn("recording device attach", "device", dev.Name(), "error", herr)
		} else if !c.storeSession(dev, id) {
			// Removed while the row was written; close it now.
			dctx, dcancel := context.WithTimeout(context.Background(), historyTimeout)
			if err := hist.RecordDetach(dctx, id, c.now()); err != nil {
				c.logger.Warn("recording device detach", "device", dev.Name(), "error", err)
			}
			dcancel()
			return nil
		}
	}

	c.publishDeviceEvent("attached", dev)
	c.devicesChanged()
	return nil
}

// storeSession keeps the history row id of dev if dev is still attached.
func (c *Coordinator) storeSession(dev device.Device, id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.devices, dev) {
		return false
	}
	c.sessions[dev] = id
	return true
}

// Detach removes the device using h, drains its pending writes and
// closes the handle.
func (c *Coordinator) Detach(h transport.Handle) error {
	c.mu.Lock()
	idx := -1
	for i, d := range c.devices {
		if d.Handle() == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return ErrUnknownHandle
	}

	dev := c.devices[idx]
	c.devices = append(c.devices[:idx], c.devices[idx+1:]...)
	closeErr := dev.Close()
	sessionID, hasSession := c.sessions[dev]
	delete(c.sessions, dev)
	hist := c.history
	c.mu.Unlock()

	c.logger.Info("device removed", "device", dev.Name())
	if closeErr != nil {
		c.logger.Debug("closing removed device", "device", dev.Name(), "error", closeErr)
	}

	if hist != nil && hasSession {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := hist.RecordDetach(ctx, sessionID, c.now()); err != nil {
			c.logger.Warn("recording device detach", "device", dev.Name(), "error", err)
		}
		cancel()
	}

	c.publishDeviceEvent("detached", dev)
	c.devicesChanged()
	return nil
}

// matchConfiguration returns the first devices[] entry matching dev.
// Caller holds c.mu.
func (c *Coordinator) matchConfiguration(dev device.Device) (config.DeviceConfig, bool) {
	for _, cfg := range c.cfg.Devices {
		if dev.Matches(device.ConfigMatcher(cfg)) {
			return cfg, true
		}
	}
	return config.DeviceConfig{}, false
}

// HandlePixelMessage hands msg to every attached device.
func (c *Coordinator) HandlePixelMessage(msg opc.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pixelMessages++
	if c.recorder != nil {
		if err := c.recorder.Record(msg); err != nil {
			c.logger.Debug("capture failed", "error", err)
		}
	}

	for _, d := range c.devices {
		d.WriteMessage(msg)
	}
}

// HandleControl processes one JSON control message and returns the reply.
// ok is false when the message is dropped without a reply: invalid JSON,
// a non-object root or a missing "type" string.
func (c *Coordinator) HandleControl(ctx context.Context, data []byte) (reply []byte, ok bool) {
	req, err := control.ParseRequest(data)
	if err != nil {
		c.logger.Debug("control message dropped", "error", err)
		return nil, false
	}

	out, err := json.Marshal(c.Dispatch(ctx, req))
	if err != nil {
		c.logger.Error("encoding control reply", "type", req.Type, "error", err)
		return nil, false
	}
	return out, true
}

// Dispatch answers a parsed control request.
func (c *Coordinator) Dispatch(ctx context.Context, req *control.Request) *control.Reply {
	reply := control.NewReply(req)

	c.mu.Lock()
	c.controlMessages++
	switch {
	case req.Type == control.TypeListConnectedDevices:
		reply.Set(control.FieldDevices, c.describeDevices())
	case req.Type == control.TypeServerInfo:
		reply.Set(control.FieldVersion, c.version)
		reply.Set(control.FieldConfig, c.cfg.Public())
		if len(c.health) > 0 {
			checks := maps.Clone(c.health)
			c.mu.Unlock()
			reply.Set(fieldHealth, runHealthChecks(ctx, checks))
			c.mu.Lock()
		}
	case req.Type == control.TypeDeviceHistory:
		hist := c.history
		c.mu.Unlock()
		c.deviceHistory(ctx, hist, req, reply)
		c.mu.Lock()
	case req.Has(control.FieldDevice):
		c.dispatchDevice(req, reply)
	default:
		reply.SetError(errTextUnknownType)
	}
	c.mu.Unlock()

	reply.Remove(control.FieldPixels)
	return reply
}

// dispatchDevice gives each matching device the message, stopping once
// one of them reports an error. Caller holds c.mu.
func (c *Coordinator) dispatchDevice(req *control.Request, reply *control.Reply) {
	matcher, _ := req.Get(control.FieldDevice)
	matched := false

	if _, isObj := jsonvalue.Object(matcher); isObj {
		for _, d := range c.devices {
			if !d.Matches(matcher) {
				continue
			}
			matched = true
			d.HandleControl(req, reply)
			if reply.HasError() {
				break
			}
		}
	}

	if !matched {
		reply.SetError(errTextNoMatchingDevice)
	}
}

// runHealthChecks maps each check name to "ok" or its error text.
func runHealthChecks(ctx context.Context, checks map[string]HealthCheck) map[string]string {
	out := make(map[string]string, len(checks))
	for name, check := range checks {
		cctx, cancel := context.WithTimeout(ctx, healthTimeout)
		if err := check(cctx); err != nil {
			out[name] = err.Error()
		} else {
			out[name] = "ok"
		}
		cancel()
	}
	return out
}

func (c *Coordinator) deviceHistory(ctx context.Context, hist History, req *control.Request, reply *control.Reply) {
	if hist == nil {
		reply.SetError(errTextHistoryDisabled)
		return
	}

	limit := defaultHistoryLimit
	if v, ok := req.Get("limit"); ok {
		if n, ok := jsonvalue.Uint(v); ok && n > 0 {
			limit = int(min(n, maxHistoryLimit))
		}
	}

	sessions, err := hist.Recent(ctx, limit)
	if err != nil {
		c.logger.Warn("reading device history", "error", err)
		reply.SetError(errTextHistoryFailed)
		return
	}
	reply.Set("sessions", sessions)
}

// describeDevices returns the description of every attached device.
// Caller holds c.mu.
func (c *Coordinator) describeDevices() []any {
	list := make([]any, 0, len(c.devices))
	for _, d := range c.devices {
		list = append(list, d.Describe())
	}
	return list
}

// devicesChanged broadcasts connected_devices_changed.
func (c *Coordinator) devicesChanged() {
	c.mu.Lock()
	ev := control.Event(control.TypeConnectedDevicesChanged)
	ev.Set(control.FieldDevices, c.describeDevices())
	hub := c.hub
	c.mu.Unlock()

	if hub == nil {
		return
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("encoding device list", "error", err)
		return
	}
	hub.Broadcast(msg)
}

func (c *Coordinator) publishDeviceEvent(event string, dev device.Device) {
	c.mu.Lock()
	pub, topic := c.publisher, c.eventTopic
	c.mu.Unlock()
	if pub == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"event":  event,
		"name":   dev.Name(),
		"device": dev.Describe(),
	})
	if err != nil {
		c.logger.Error("encoding device event", "error", err)
		return
	}
	if err := pub.Publish(topic, payload, 1, false); err != nil {
		c.logger.Warn("publishing device event", "event", event, "error", err)
	}
}

// Flush consumes finished transport writes on every device.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.devices {
		d.Flush()
	}
}

// RunFlusher calls Flush every interval until ctx is done.
func (c *Coordinator) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

// DeviceCount returns the number of attached devices.
func (c *Coordinator) DeviceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.devices)
}

// Stats returns a snapshot of activity counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		PixelMessages:   c.pixelMessages,
		ControlMessages: c.controlMessages,
		Devices:         make([]DeviceStats, 0, len(c.devices)),
	}
	for _, d := range c.devices {
		s.Devices = append(s.Devices, DeviceStats{
			Name:   d.Name(),
			Type:   d.Type(),
			Serial: d.Serial(),
			Stats:  d.Stats(),
		})
	}
	return s
}

// Close detaches every device without broadcasting.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	devices := c.devices
	sessions := c.sessions
	hist := c.history
	c.devices = nil
	c.sessions = make(map[device.Device]int64)

	var errs []error
	for _, d := range devices {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", d.Name(), err))
		}
	}
	c.mu.Unlock()

	if hist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		for _, id := range sessions {
			if err := hist.RecordDetach(ctx, id, c.now()); err != nil {
				c.logger.Warn("recording device detach", "error", err)
			}
		}
	}
	return errors.Join(errs...)
}
