package colorcurve

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIdentityRamp(t *testing.T) {
	lut := Compute(Default())

	for ch := 0; ch < Channels; ch++ {
		for e := 0; e < Entries; e++ {
			want := math.Round(float64(e) / 256 * 65535)
			if want > 65535 {
				want = 65535
			}
			diff := math.Abs(float64(lut[ch][e]) - want)
			require.LessOrEqualf(t, diff, 256.0, "channel %d entry %d = %d, want ~%v", ch, e, lut[ch][e], want)
		}
		assert.Equal(t, uint16(0), lut[ch][0])
		assert.Equal(t, uint16(0x8000), lut[ch][128])
		assert.Equal(t, uint16(0xFFFF), lut[ch][256], "top entry clamps")
	}
}

func TestComputeIsMonotonicWithGamma(t *testing.T) {
	cfg := Default()
	cfg.Gamma = 2.5
	lut := Compute(cfg)

	for ch := 0; ch < Channels; ch++ {
		for e := 1; e < Entries; e++ {
			assert.GreaterOrEqual(t, lut[ch][e], lut[ch][e-1])
		}
	}
	// 0.5^2.5 * 65535 ~= 11585
	assert.InDelta(t, 11585, float64(lut[0][128]), 2)
}

func TestComputeWhitepointScalesChannel(t *testing.T) {
	cfg := Default()
	cfg.Whitepoint = [Channels]float64{1, 0.5, 0}
	lut := Compute(cfg)

	assert.Equal(t, uint16(0xFFFF), lut[0][256])
	assert.InDelta(t, 32768, float64(lut[1][256]), 2)
	assert.Equal(t, uint16(0), lut[2][256])
}

func TestComputeLinearSection(t *testing.T) {
	cfg := Default()
	cfg.Gamma = 2.0
	cfg.LinearSlope = 0.5
	cfg.LinearCutoff = 0.1
	lut := Compute(cfg)

	// entry 32 -> input 0.125, 0.125*0.5 = 0.0625 <= 0.1 : linear
	assert.InDelta(t, 4096, float64(lut[0][32]), 1)

	assert.Equal(t, uint16(0xFFFF), lut[0][256])
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Config
		wantErr []error
	}{
		{
			name: "nil is default",
			in:   nil,
			want: Default(),
		},
		{
			name: "all fields",
			in: map[string]any{
				"gamma":        2.5,
				"whitepoint":   []any{0.9, 1, json.Number("0.8")},
				"linearSlope":  1,
				"linearCutoff": 0.00390625,
			},
			want: Config{Gamma: 2.5, Whitepoint: [3]float64{0.9, 1, 0.8}, LinearSlope: 1, LinearCutoff: 0.00390625},
		},
		{
			name: "null fields keep defaults",
			in:   map[string]any{"gamma": nil, "whitepoint": nil},
			want: Default(),
		},
		{
			name:    "not an object",
			in:      []any{1, 2},
			want:    Default(),
			wantErr: []error{ErrNotObject},
		},
		{
			name: "bad fields reported, good fields applied",
			in: map[string]any{
				"gamma":       "high",
				"whitepoint":  []any{1, 1},
				"linearSlope": 0.5,
			},
			want:    Config{Gamma: 1, Whitepoint: [3]float64{1, 1, 1}, LinearSlope: 0.5},
			wantErr: []error{ErrBadGamma, ErrBadWhitepoint},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			assert.Equal(t, tt.want, got)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			for _, want := range tt.wantErr {
				assert.True(t, errors.Is(err, want), "error %v should wrap %v", err, want)
			}
		})
	}
}

func TestQuantizeClamps(t *testing.T) {
	assert.Equal(t, uint16(0), quantize(-1))
	assert.Equal(t, uint16(0), quantize(math.NaN()))
	assert.Equal(t, uint16(0xFFFF), quantize(2))
	assert.Equal(t, uint16(1), quantize(1.0/65535))
}
