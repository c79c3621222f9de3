package device

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
	"github.com/nerrad567/gray-logic-fcserver/internal/transport"
)

func fadecandyIdentity(serial string) transport.Identity {
	return transport.Identity{
		VendorID:     fadecandyVendorID,
		ProductID:    fadecandyProductID,
		Manufacturer: "scanlime",
		Product:      "Fadecandy",
		Serial:       serial,
		BCDDevice:    0x0107,
	}
}

func enttecIdentity(serial string) transport.Identity {
	return transport.Identity{
		VendorID:     ftdiVendorID,
		ProductID:    ftdiFT245ProductID,
		Manufacturer: enttecManufacturer,
		Product:      enttecProduct,
		Serial:       serial,
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name   string
		id     transport.Identity
		want   Kind
		wantOK bool
	}{
		{"fadecandy", fadecandyIdentity("A"), KindFadecandy, true},
		{"ftdi", transport.Identity{VendorID: 0x0403, ProductID: 0x6001}, KindEnttec, true},
		{"wrong product", transport.Identity{VendorID: 0x1d50, ProductID: 0x6001}, "", false},
		{"unknown", transport.Identity{VendorID: 0x1234, ProductID: 0x5678}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Probe(tt.id)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen(t *testing.T) {
	d, err := Open(transport.NewNull(fadecandyIdentity("A"), 0), Options{})
	require.NoError(t, err)
	assert.IsType(t, &Fadecandy{}, d)

	d, err = Open(transport.NewNull(enttecIdentity("B"), 0), Options{})
	require.NoError(t, err)
	assert.IsType(t, &Enttec{}, d)

	// Some other FT245 gadget.
	other := transport.Identity{VendorID: ftdiVendorID, ProductID: ftdiFT245ProductID, Manufacturer: "FTDI", Product: "FT245R"}
	_, err = Open(transport.NewNull(other, 0), Options{})
	assert.ErrorIs(t, err, ErrProbeFailed)

	_, err = Open(transport.NewNull(transport.Identity{VendorID: 1, ProductID: 2}, 0), Options{})
	assert.ErrorIs(t, err, ErrUnsupportedDevice)
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		matcher any
		serial  string
		want    bool
	}{
		{"empty object", map[string]any{}, "ABC", true},
		{"not an object", "fadecandy", "ABC", false},
		{"nil matcher", nil, "ABC", false},
		{"type matches", map[string]any{"type": "fadecandy"}, "ABC", true},
		{"type differs", map[string]any{"type": "enttec"}, "ABC", false},
		{"type not a string", map[string]any{"type": 5}, "ABC", false},
		{"null type", map[string]any{"type": nil}, "ABC", true},
		{"serial matches", map[string]any{"type": "fadecandy", "serial": "ABC"}, "ABC", true},
		{"serial differs", map[string]any{"serial": "XYZ"}, "ABC", false},
		{"serial not a string", map[string]any{"serial": 12}, "ABC", false},
		{"device without serial", map[string]any{"serial": "XYZ"}, "", true},
		{"yaml map", map[any]any{"type": "fadecandy"}, "ABC", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matches(tt.matcher, "fadecandy", tt.serial))
		})
	}
}

func TestConfigMatcher(t *testing.T) {
	d := newFadecandy(transport.NewNull(fadecandyIdentity("ABC"), 0), Options{})

	assert.True(t, d.Matches(ConfigMatcher(config.DeviceConfig{Type: "fadecandy"})))
	assert.True(t, d.Matches(ConfigMatcher(config.DeviceConfig{Type: "fadecandy", Serial: "ABC"})))
	assert.False(t, d.Matches(ConfigMatcher(config.DeviceConfig{Type: "fadecandy", Serial: "DEF"})))
	assert.False(t, d.Matches(ConfigMatcher(config.DeviceConfig{Type: "enttec"})))
}

func TestParseMap(t *testing.T) {
	t.Run("nil map", func(t *testing.T) {
		instrs, ok, errs := parseMap(nil, formRange)
		assert.False(t, ok)
		assert.Empty(t, instrs)
		assert.Empty(t, errs)
	})

	t.Run("not an array", func(t *testing.T) {
		_, ok, errs := parseMap(map[string]any{}, formRange)
		assert.False(t, ok)
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], ErrMapNotArray)
	})

	t.Run("fadecandy forms", func(t *testing.T) {
		v := []any{
			[]any{0, 0, 0, 512},
			[]any{1, 0, 10, 5, "bgr"},
			[]any{1, 0, 10, 5, "rgx"}, // invalid selector
			[]any{1, 0, 10, 5, "rg"},  // too short
			[]any{0, 0, "r", 1},       // enttec only
			[]any{255, 1},             // enttec only
			"garbage",
			[]any{-1, 0, 0, 1},
		}
		instrs, ok, errs := parseMap(v, formRange|formSwizzle)
		assert.True(t, ok)
		assert.Equal(t, []Instruction{
			Range{Channel: 0, FirstSource: 0, FirstDest: 0, Count: 512},
			Range{Channel: 1, FirstSource: 0, FirstDest: 10, Count: 5, Swizzle: "bgr"},
		}, instrs)
		assert.Len(t, errs, 6)
		for _, err := range errs {
			assert.ErrorIs(t, err, ErrUnsupportedInstruction)
		}
	})

	t.Run("enttec forms", func(t *testing.T) {
		v := []any{
			[]any{0, 3, "g", 7},
			[]any{0, 3, "luminance", 8},
			[]any{0, 3, "x", 9},
			[]any{128, 20},
			[]any{0, 0, 0, 512},
		}
		instrs, ok, errs := parseMap(v, formColorChannel|formConstant)
		assert.True(t, ok)
		assert.Equal(t, []Instruction{
			ColorChannel{Channel: 0, Pixel: 3, Selector: 'g', DMXChannel: 7},
			ColorChannel{Channel: 0, Pixel: 3, Selector: 'l', DMXChannel: 8},
			Constant{Value: 128, DMXChannel: 20},
		}, instrs)
		assert.Len(t, errs, 2)
	})
}

type testBuffer struct {
	data []byte
}

func newTestBuffer(pixels int) *testBuffer {
	return &testBuffer{data: make([]byte, pixels*3)}
}

func (b *testBuffer) pixelCapacity() int { return len(b.data) / 3 }
func (b *testBuffer) pixel(i int) []byte { return b.data[i*3 : i*3+3] }

func rampMessage(channel uint8, pixels int) opc.Message {
	data := make([]byte, pixels*3)
	for i := range data {
		data[i] = byte(i)
	}
	return opc.Message{Channel: channel, Command: opc.SetPixelColors, Data: data}
}

func TestApplyRangeClamps(t *testing.T) {
	huge := uint64(1) << 40

	tests := []struct {
		name  string
		r     Range
		src   int
		dst   int
		wantN int // pixels written
	}{
		{"exact", Range{Count: 4}, 4, 4, 4},
		{"source shorter", Range{Count: 10}, 3, 10, 3},
		{"destination shorter", Range{Count: 10}, 10, 3, 3},
		{"first source past end", Range{FirstSource: 20, Count: 5}, 10, 10, 0},
		{"first dest past end", Range{FirstDest: 20, Count: 5}, 10, 10, 0},
		{"huge count", Range{FirstSource: 2, FirstDest: 1, Count: huge}, 10, 5, 4},
		{"huge offsets", Range{FirstSource: huge, FirstDest: huge, Count: huge}, 10, 5, 0},
		{"other channel", Range{Channel: 3, Count: 4}, 4, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := newTestBuffer(tt.dst)
			msg := rampMessage(0, tt.src)
			// Partial trailing pixel must be ignored.
			msg.Data = append(msg.Data, 0xAA)

			applyRange(tt.r, msg, buf)

			written := 0
			for i := 0; i < tt.dst; i++ {
				px := buf.pixel(i)
				if px[0] != 0 || px[1] != 0 || px[2] != 0 {
					written++
				}
			}
			// Source pixel 0 is (0,1,2), so it always reads as written.
			assert.Equal(t, tt.wantN, written)
		})
	}
}

func TestApplyRangeClampsRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	// Small values land inside the buffers, the rest far past them.
	index := func() uint64 {
		switch rng.Intn(4) {
		case 0:
			return math.MaxUint64 - uint64(rng.Intn(4))
		case 1:
			return rng.Uint64()
		default:
			return uint64(rng.Intn(48))
		}
	}

	for i := 0; i < 2000; i++ {
		r := Range{FirstSource: index(), FirstDest: index(), Count: index()}
		src, dst := rng.Intn(40), rng.Intn(40)
		msg := rampMessage(0, src)
		buf := newTestBuffer(dst)
		// Marks pixels the range must leave alone.
		for j := range buf.data {
			buf.data[j] = 0xEE
		}

		require.NotPanics(t, func() { applyRange(r, msg, buf) }, "%+v src=%d dst=%d", r, src, dst)

		first := min(r.FirstSource, uint64(src))
		out := min(r.FirstDest, uint64(dst))
		n := min(r.Count, uint64(src)-first, uint64(dst)-out)
		for p := 0; p < dst; p++ {
			want := []byte{0xEE, 0xEE, 0xEE}
			if k := uint64(p); k >= out && k < out+n {
				want = msg.Pixel(int(first + k - out))
			}
			if !assert.Equal(t, want, buf.pixel(p), "%+v src=%d dst=%d pixel %d", r, src, dst, p) {
				return
			}
		}
	}
}

func TestApplyRangeSwizzle(t *testing.T) {
	buf := newTestBuffer(2)
	msg := opc.Message{Command: opc.SetPixelColors, Data: []byte{10, 20, 30, 3, 6, 9}}

	applyRange(Range{Count: 1, Swizzle: "bgr"}, msg, buf)
	applyRange(Range{FirstSource: 1, FirstDest: 1, Count: 1, Swizzle: "LRb"}, msg, buf)

	assert.Equal(t, []byte{30, 20, 10}, buf.pixel(0))
	assert.Equal(t, []byte{6, 3, 9}, buf.pixel(1))
}
