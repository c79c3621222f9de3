package transport

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"

	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
)

// fakePort records writes and can block or fail on demand.
type fakePort struct {
	mu      sync.Mutex
	writes  [][]byte
	err     error
	short   bool
	gate    chan struct{}
	closed  bool
	written chan struct{}
}

func newFakePort() *fakePort {
	return &fakePort{written: make(chan struct{}, 64)}
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, append([]byte(nil), b...))
	p.written <- struct{}{}
	if p.err != nil {
		return 0, p.err
	}
	if p.short {
		return len(b) - 1, nil
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func recv(t *testing.T, done <-chan Completion) Completion {
	t.Helper()
	select {
	case c := <-done:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
		return Completion{}
	}
}

func TestSerialHandle_SubmitCompletes(t *testing.T) {
	port := newFakePort()
	h := newSerialHandle(Identity{Path: "/dev/ttyUSB0"}, port)
	done := make(chan Completion, QueueDepth+1)

	data := []byte{0x7E, 0x06, 0x02, 0x00, 0x00, 0x00, 0xE7}
	require.NoError(t, h.Submit(data, done))
	data[0] = 0 // Submit copies

	c := recv(t, done)
	assert.NoError(t, c.Err)
	assert.Equal(t, 7, c.Bytes)

	require.NoError(t, h.Close())
	assert.True(t, port.closed)
	assert.Equal(t, byte(0x7E), port.writes[0][0])
}

func TestSerialHandle_WriteErrorMarksFailed(t *testing.T) {
	port := newFakePort()
	port.err = errors.New("device unplugged")
	h := newSerialHandle(Identity{}, port)
	done := make(chan Completion, QueueDepth+1)

	require.NoError(t, h.Submit([]byte{1, 2, 3}, done))
	c := recv(t, done)
	assert.Error(t, c.Err)
	assert.Error(t, h.Failed())

	require.NoError(t, h.Close())
}

func TestSerialHandle_ShortWrite(t *testing.T) {
	port := newFakePort()
	port.short = true
	h := newSerialHandle(Identity{}, port)
	defer h.Close()
	done := make(chan Completion, QueueDepth+1)

	require.NoError(t, h.Submit([]byte{1, 2, 3}, done))
	c := recv(t, done)
	assert.ErrorIs(t, c.Err, ErrShortWrite)
}

func TestSerialHandle_QueueFullAndCancel(t *testing.T) {
	port := newFakePort()
	port.gate = make(chan struct{})
	h := newSerialHandle(Identity{}, port)
	done := make(chan Completion, QueueDepth+2)

	// The first write is picked up by the worker and blocks on the gate.
	require.NoError(t, h.Submit([]byte{0}, done))
	require.Eventually(t, func() bool { return len(h.queue) == 0 }, time.Second, time.Millisecond)

	for i := 0; i < QueueDepth; i++ {
		require.NoError(t, h.Submit([]byte{byte(i)}, done))
	}
	assert.ErrorIs(t, h.Submit([]byte{0xFF}, done), ErrQueueFull)

	h.CancelAll()
	close(port.gate)

	first := recv(t, done)
	assert.NoError(t, first.Err, "write in progress finishes normally")
	for i := 0; i < QueueDepth; i++ {
		c := recv(t, done)
		assert.ErrorIs(t, c.Err, ErrCancelled)
	}

	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Submit([]byte{1}, done), ErrClosed)
}

func TestSerialHandle_CloseCompletesQueued(t *testing.T) {
	port := newFakePort()
	port.gate = make(chan struct{})
	h := newSerialHandle(Identity{}, port)
	done := make(chan Completion, QueueDepth+2)

	require.NoError(t, h.Submit([]byte{0}, done))
	require.Eventually(t, func() bool { return len(h.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, h.Submit([]byte{1}, done))
	require.NoError(t, h.Submit([]byte{2}, done))

	closed := make(chan struct{})
	go func() {
		_ = h.Close()
		close(closed)
	}()
	close(port.gate)
	<-closed

	// One write ran; the other two either ran cancelled or were drained.
	assert.Len(t, done, 3)
	for i := 0; i < 3; i++ {
		<-done
	}
}

func TestNullHandle(t *testing.T) {
	h := NewNull(Identity{Serial: "N1"}, 2)
	done := make(chan Completion, 4)

	for i := byte(0); i < 3; i++ {
		require.NoError(t, h.Submit([]byte{i}, done))
		c := recv(t, done)
		assert.Equal(t, 1, c.Bytes)
	}

	writes := h.Writes()
	require.Len(t, writes, 2, "keeps only the most recent frames")
	assert.Equal(t, []byte{2}, h.Last())

	h.Reset()
	assert.Nil(t, h.Last())

	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Submit([]byte{0}, done), ErrClosed)
}

func TestIdentityString(t *testing.T) {
	id := Identity{VendorID: 0x1d50, ProductID: 0x607a, Serial: "ABC"}
	assert.Equal(t, "1d50:607a serial=ABC", id.String())
}

func TestParseHex16(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{"", 0, false},
		{"0403", 0x0403, false},
		{"0x1D50", 0x1d50, false},
		{"zz", 0, true},
		{"12345", 0, true},
	}
	for _, tt := range tests {
		got, err := parseHex16(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseHex16(%q) = %#x, %v, want %#x, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

type recordingEvents struct {
	mu      sync.Mutex
	arrived []Handle
	removed []Handle
}

func (r *recordingEvents) Arrived(h Handle) {
	r.mu.Lock()
	r.arrived = append(r.arrived, h)
	r.mu.Unlock()
}

func (r *recordingEvents) Removed(h Handle) {
	r.mu.Lock()
	r.removed = append(r.removed, h)
	r.mu.Unlock()
}

func TestWatcher_NullDevicesArriveAtStart(t *testing.T) {
	ev := &recordingEvents{}
	w := NewWatcher(config.TransportConfig{
		Null: []config.NullDeviceConfig{{VendorID: "1d50", ProductID: "607a", Serial: "SIM", BCDDevice: "0107"}},
	}, ev)

	require.NoError(t, w.Start(t.Context()))
	require.Len(t, ev.arrived, 1)

	id := ev.arrived[0].Identity()
	assert.Equal(t, uint16(0x1d50), id.VendorID)
	assert.Equal(t, uint16(0x0107), id.BCDDevice)
	assert.Equal(t, "SIM", id.Serial)
}

func TestWatcher_NullDeviceBadIdentity(t *testing.T) {
	w := NewWatcher(config.TransportConfig{
		Null: []config.NullDeviceConfig{{VendorID: "nothex"}},
	}, &recordingEvents{})
	assert.Error(t, w.Start(t.Context()))
}

func TestWatcher_SerialArrivalAndRemoval(t *testing.T) {
	ev := &recordingEvents{}
	w := NewWatcher(config.TransportConfig{
		Serial: []config.SerialPortConfig{{Path: "/dev/ttyUSB0", Manufacturer: "ENTTEC"}},
	}, ev)

	ports := []*enumerator.PortDetails{{
		Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001",
		SerialNumber: "EN123", Product: "DMX USB PRO",
	}}
	w.list = func() ([]*enumerator.PortDetails, error) { return ports, nil }

	port := newFakePort()
	w.open = func(id Identity, baud int) (failingHandle, error) {
		return newSerialHandle(id, port), nil
	}

	w.Scan()
	require.Len(t, ev.arrived, 1)
	id := ev.arrived[0].Identity()
	assert.Equal(t, uint16(0x0403), id.VendorID)
	assert.Equal(t, uint16(0x6001), id.ProductID)
	assert.Equal(t, "ENTTEC", id.Manufacturer)
	assert.Equal(t, "DMX USB PRO", id.Product)
	assert.Equal(t, "EN123", id.Serial)

	// Still present: nothing happens.
	w.Scan()
	assert.Len(t, ev.arrived, 1)
	assert.Empty(t, ev.removed)

	ports = nil
	w.Scan()
	require.Len(t, ev.removed, 1)
	assert.Same(t, ev.arrived[0], ev.removed[0])
	require.NoError(t, ev.removed[0].Close())
}
