package device

import (
	"time"

	"github.com/nerrad567/gray-logic-fcserver/internal/colorcurve"
	"github.com/nerrad567/gray-logic-fcserver/internal/control"
	"github.com/nerrad567/gray-logic-fcserver/internal/transport"
)

// Stats are cumulative transfer counters for one device.
type Stats struct {
	Submitted      uint64
	BytesSubmitted uint64
	Completed      uint64
	BytesWritten   uint64
	SubmitErrors   uint64
	WriteErrors    uint64
	Pending        int
}

// base holds what every driver shares: identity, the transport handle,
// the completion channel and the parsed mapping.
type base struct {
	typ     Kind
	id      transport.Identity
	handle  transport.Handle
	verbose bool
	logger  Logger

	attached time.Time
	done     chan transport.Completion
	pending  int
	stats    Stats

	// active is false until a valid map is loaded.
	active  bool
	mapping []Instruction
}

func newBase(typ Kind, h transport.Handle, opts Options) base {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return base{
		typ:      typ,
		id:       h.Identity(),
		handle:   h,
		verbose:  opts.Verbose,
		logger:   logger,
		attached: now(),
		done:     make(chan transport.Completion, 4*transport.QueueDepth),
	}
}

// Type returns the configuration type string.
func (b *base) Type() string { return string(b.typ) }

// Serial returns the USB serial number.
func (b *base) Serial() string { return b.id.Serial }

// Handle returns the transport handle.
func (b *base) Handle() transport.Handle { return b.handle }

// Matches applies the shared matching rule.
func (b *base) Matches(matcher any) bool { return matches(matcher, string(b.typ), b.id.Serial) }

// Flush consumes finished transport writes.
func (b *base) Flush() { b.collect() }

// WriteColorCorrection is ignored by drivers without a lookup table.
func (b *base) WriteColorCorrection(colorcurve.Config) {}

// Stats returns transfer counters.
func (b *base) Stats() Stats {
	s := b.stats
	s.Pending = b.pending
	return s
}

func (b *base) describe() map[string]any {
	d := map[string]any{
		"type":      string(b.typ),
		"timestamp": b.attached.UnixMilli(),
	}
	if b.id.Serial != "" {
		d["serial"] = b.id.Serial
	}
	return d
}

// loadMap parses and stores a mapping. Anything other than a list
// deactivates the device.
func (b *base) loadMap(v any, forms formSet) {
	instrs, ok, errs := parseMap(v, forms)
	for _, err := range errs {
		b.logger.Debug("mapping instruction skipped", "device", b.id.String(), "error", err)
	}
	b.active = ok
	b.mapping = instrs
}

// submit sends one complete packet set. Failures drop the write.
func (b *base) submit(data []byte) {
	b.collect()

	if err := b.handle.Submit(data, b.done); err != nil {
		b.stats.SubmitErrors++
		b.logger.Debug("error submitting transfer", "device", b.id.String(), "error", err)
		return
	}
	b.pending++
	b.stats.Submitted++
	b.stats.BytesSubmitted += uint64(len(data))
}

// collect consumes every completion already delivered.
func (b *base) collect() {
	for {
		select {
		case c := <-b.done:
			b.account(c)
		default:
			return
		}
	}
}

func (b *base) account(c transport.Completion) {
	b.pending--
	b.stats.Completed++
	b.stats.BytesWritten += uint64(c.Bytes)
	if c.Err != nil {
		b.stats.WriteErrors++
		b.logger.Debug("transfer failed", "device", b.id.String(), "error", c.Err)
	}
}

// Close cancels queued writes, closes the handle and waits for every
// outstanding completion so nothing refers to the device afterwards.
func (b *base) Close() error {
	b.handle.CancelAll()
	err := b.handle.Close()
	for b.pending > 0 {
		b.account(<-b.done)
	}
	return err
}

// handleCommonControl covers message types shared by all drivers.
func (b *base) handleCommonControl(d Device, req *control.Request, reply *control.Reply) {
	switch req.Type {
	case control.TypeDeviceColorCorrection:
		v, _ := req.Get(control.FieldColor)
		cfg, err := colorcurve.Parse(v)
		if err != nil {
			b.logger.Debug("color correction", "device", b.id.String(), "error", err)
		}
		d.WriteColorCorrection(cfg)
	default:
		reply.SetError(errTextUnknownDeviceMessage)
	}
}
