package influxdb

import (
	"context"
	"time"
)

// SnapshotWriter is implemented by *Client.
type SnapshotWriter interface {
	WriteSnapshot(s Snapshot, at time.Time)
}

// Reporter periodically samples counters and writes them.
type Reporter struct {
	w      SnapshotWriter
	sample func() Snapshot
	now    func() time.Time
}

// NewReporter creates a Reporter that writes sample() to w on every tick.
func NewReporter(w SnapshotWriter, sample func() Snapshot) *Reporter {
	return &Reporter{w: w, sample: sample, now: time.Now}
}

// Report writes a single snapshot.
func (r *Reporter) Report() {
	r.w.WriteSnapshot(r.sample(), r.now())
}

// Run reports every interval until ctx is cancelled, then writes a final
// snapshot. A non-positive interval returns immediately.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Report()
			return
		case <-ticker.C:
			r.Report()
		}
	}
}
