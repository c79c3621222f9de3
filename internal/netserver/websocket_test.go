package netserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
)

func TestDecodeBinaryFrame(t *testing.T) {
	t.Run("shorter than header", func(t *testing.T) {
		_, ok := decodeBinaryFrame([]byte{0, 0}, noopLogger{})
		assert.False(t, ok)
	})

	t.Run("header only", func(t *testing.T) {
		msg, ok := decodeBinaryFrame([]byte{3, 0, 0, 0}, noopLogger{})
		require.True(t, ok)
		assert.Equal(t, uint8(3), msg.Channel)
		assert.Empty(t, msg.Data)
	})

	t.Run("frame size wins over length field", func(t *testing.T) {
		msg, ok := decodeBinaryFrame([]byte{0, 0, 0, 99, 1, 2, 3}, noopLogger{})
		require.True(t, ok)
		assert.Equal(t, opc.SetPixelColors, msg.Command)
		assert.Equal(t, []byte{1, 2, 3}, msg.Data)
	})

	t.Run("oversized frame is truncated", func(t *testing.T) {
		frame := make([]byte, opc.MaxMessageBytes+100)
		frame[1] = byte(opc.SystemExclusive)
		msg, ok := decodeBinaryFrame(frame, noopLogger{})
		require.True(t, ok)
		assert.Equal(t, opc.SystemExclusive, msg.Command)
		assert.Len(t, msg.Data, opc.MaxDataBytes)
	})
}

func TestReadLimit(t *testing.T) {
	assert.Equal(t, int64(2*opc.MaxMessageBytes), readLimit(config.WebSocketConfig{MaxMessageSize: 1024}))
	assert.Equal(t, int64(1<<20), readLimit(config.WebSocketConfig{MaxMessageSize: 1 << 20}))
}

func TestHub_QueueUntilFlush(t *testing.T) {
	h := NewHub(nil)
	client := &wsClient{id: "test", hub: h, send: make(chan []byte, 4)}
	h.register(client)

	h.Broadcast([]byte(`{"type":"a"}`))
	h.Broadcast([]byte(`{"type":"b"}`))
	assert.Equal(t, 2, h.Pending())
	assert.Empty(t, client.send, "nothing is sent before a flush")

	h.Flush()
	assert.Zero(t, h.Pending())
	require.Len(t, client.send, 2)
	assert.Equal(t, `{"type":"a"}`, string(<-client.send))
	assert.Equal(t, `{"type":"b"}`, string(<-client.send))
}

func TestHub_FullClientDropsMessage(t *testing.T) {
	h := NewHub(nil)
	client := &wsClient{id: "slow", hub: h, send: make(chan []byte, 1)}
	h.register(client)

	h.Broadcast([]byte("1"))
	h.Broadcast([]byte("2"))
	h.Flush()

	require.Len(t, client.send, 1)
	assert.Equal(t, "1", string(<-client.send))
}

func TestHub_UnregisterClosesOnce(t *testing.T) {
	h := NewHub(nil)
	client := &wsClient{id: "gone", hub: h, send: make(chan []byte, 1)}
	h.register(client)
	assert.Equal(t, 1, h.ClientCount())

	h.unregister(client)
	h.unregister(client)
	assert.Zero(t, h.ClientCount())

	// A late send to the closed channel is absorbed.
	assert.NotPanics(t, func() { client.trySend([]byte("late")) })
}
