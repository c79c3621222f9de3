package device

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-fcserver/internal/control"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
	"github.com/nerrad567/gray-logic-fcserver/internal/transport"
)

func newTestEnttec(t *testing.T, m any) (*Enttec, *transport.NullHandle) {
	t.Helper()
	h := transport.NewNull(enttecIdentity("EN01"), 0)
	d := newEnttec(h, Options{})
	d.LoadConfiguration(config.DeviceConfig{Type: "enttec", Map: m})
	h.Reset()
	return d, h
}

func TestEnttecInitialFrame(t *testing.T) {
	d, h := newTestEnttec(t, []any{})

	d.WriteMessage(opc.Message{Command: opc.SetPixelColors})

	assert.Equal(t, []byte{0x7E, 0x06, 0x02, 0x00, 0x00, 0x00, 0xE7}, h.Last())
	assert.Len(t, d.frame(), d.length+5)
}

func TestEnttecMapping(t *testing.T) {
	d, h := newTestEnttec(t, []any{
		[]any{0, 0, "r", 1},
		[]any{0, 0, "g", 3},
		[]any{200, 5},
		[]any{0, 7, "b", 6}, // pixel out of range
	})

	d.WriteMessage(opc.Message{Command: opc.SetPixelColors, Data: []byte{10, 20, 30}})

	assert.Equal(t, []byte{
		0x7E, 0x06, 0x06, 0x00,
		0x00, 10, 0x00, 20, 0x00, 200,
		0xE7,
	}, h.Last())
}

func TestEnttecConstantClamped(t *testing.T) {
	d, _ := newTestEnttec(t, []any{[]any{300, 2}})

	d.WriteMessage(opc.Message{Command: opc.SetPixelColors})

	assert.Equal(t, uint8(255), d.Channel(2))
}

func TestEnttecSetChannelBounds(t *testing.T) {
	d := newEnttec(transport.NewNull(enttecIdentity("EN01"), 0), Options{})

	d.setChannel(0, 9)
	d.setChannel(513, 9)
	assert.Equal(t, 2, d.length)

	d.setChannel(512, 42)
	assert.Equal(t, 513, d.length)
	frame := d.frame()
	require.Len(t, frame, 518)
	assert.Equal(t, []byte{0x01, 0x02}, frame[2:4])
	assert.Equal(t, byte(42), frame[516])
	assert.Equal(t, byte(0xE7), frame[517])

	// The frame never shrinks.
	d.setChannel(3, 1)
	assert.Equal(t, 513, d.length)
	assert.Equal(t, byte(0xE7), d.frame()[517])
}

func TestEnttecOtherChannel(t *testing.T) {
	d, _ := newTestEnttec(t, []any{[]any{1, 0, "r", 1}})

	d.WriteMessage(opc.Message{Channel: 0, Command: opc.SetPixelColors, Data: []byte{10, 20, 30}})
	assert.Zero(t, d.Channel(1))

	d.WriteMessage(opc.Message{Channel: 1, Command: opc.SetPixelColors, Data: []byte{10, 20, 30}})
	assert.Equal(t, uint8(10), d.Channel(1))
}

func TestEnttecIgnoresSysEx(t *testing.T) {
	d, h := newTestEnttec(t, []any{})

	d.WriteMessage(opc.NewSysEx(0, opc.SetFirmwareConfiguration, []byte{1}))

	assert.Empty(t, h.Writes())
}

type debugRecorder struct {
	noopLogger
	msgs []string
}

func (r *debugRecorder) Debug(msg string, args ...any) {
	r.msgs = append(r.msgs, fmt.Sprint(append([]any{msg}, args...)...))
}

func TestEnttecLogsUnsupportedCommand(t *testing.T) {
	log := &debugRecorder{}
	h := transport.NewNull(enttecIdentity("EN01"), 0)
	d := newEnttec(h, Options{Logger: log})
	h.Reset()

	d.WriteMessage(opc.NewSysEx(0, opc.SetFirmwareConfiguration, []byte{1}))
	assert.Empty(t, log.msgs, "SysEx is ignored quietly")

	d.WriteMessage(opc.Message{Command: opc.Command(0x42), Data: []byte{1, 2, 3}})
	require.Len(t, log.msgs, 1)
	assert.Contains(t, log.msgs[0], "unsupported OPC command")
	assert.Contains(t, log.msgs[0], "command(0x42)")
	assert.Empty(t, h.Writes())
}

func TestEnttecControl(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{"options", `{"type":"device_options","device":{},"options":{}}`, true},
		{"pixels", `{"type":"device_pixels","device":{},"pixels":[1,2,3]}`, true},
		{"color correction", `{"type":"device_color_correction","device":{},"color":{}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, h := newTestEnttec(t, []any{})
			req := mustRequest(t, tt.message)
			reply := control.NewReply(req)

			d.HandleControl(req, reply)

			assert.Equal(t, tt.wantErr, reply.HasError())
			if tt.wantErr {
				v, _ := reply.Get(control.FieldError)
				assert.Equal(t, "Unknown device-specific message type", v)
			}
			assert.Empty(t, h.Writes())
		})
	}
}

func TestEnttecNameAndDescribe(t *testing.T) {
	d, _ := newTestEnttec(t, nil)

	assert.Equal(t, "Enttec DMX USB Pro (Serial# EN01)", d.Name())
	desc := d.Describe()
	assert.Equal(t, "enttec", desc["type"])
	assert.Equal(t, "EN01", desc["serial"])
	assert.Contains(t, desc, "timestamp")
	assert.NotContains(t, desc, "version")
}
