// Package colorcurve computes the 16-bit colour lookup table sent to LED
// controllers.
//
// The curve has a linear section near zero and a gamma section above it:
//
//	input = entry/256 scaled by the channel whitepoint
//	input*slope <= cutoff : output = input*slope
//	otherwise             : output = cutoff + ((input - slope*cutoff)/(1-cutoff))^gamma * (1-cutoff)
//
// The linear section is disabled by default (cutoff 0). A cutoff of about
// 1/256 keeps very dim values out of the dithering range.
package colorcurve

import (
	"errors"
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-fcserver/internal/jsonvalue"
)

// Table dimensions.
const (
	Channels = 3
	Entries  = 257
)

// LUT holds one 16-bit output per channel and input level.
type LUT [Channels][Entries]uint16

// Config holds the curve parameters.
type Config struct {
	Gamma        float64
	Whitepoint   [Channels]float64
	LinearSlope  float64
	LinearCutoff float64
}

// Default returns the identity curve.
func Default() Config {
	return Config{
		Gamma:        1.0,
		Whitepoint:   [Channels]float64{1, 1, 1},
		LinearSlope:  1.0,
		LinearCutoff: 0.0,
	}
}

// Errors returned by Parse. Several may be joined together.
var (
	ErrNotObject       = errors.New("colorcurve: color correction value must be an object")
	ErrBadGamma        = errors.New("colorcurve: gamma must be a number")
	ErrBadLinearSlope  = errors.New("colorcurve: linearSlope must be a number")
	ErrBadLinearCutoff = errors.New("colorcurve: linearCutoff must be a number")
	ErrBadWhitepoint   = errors.New("colorcurve: whitepoint must be a list of 3 numbers")
)

// Parse reads a colour correction value.
//
// A nil value yields Default. Each valid field is applied even when others
// are invalid; every invalid field contributes an error to the joined result.
// Callers that must not apply partial input check the error and discard the
// returned Config.
func Parse(v any) (Config, error) {
	cfg := Default()
	if jsonvalue.IsNull(v) {
		return cfg, nil
	}

	obj, ok := jsonvalue.Object(v)
	if !ok {
		return cfg, ErrNotObject
	}

	var errs []error

	if raw, present := obj["gamma"]; present && raw != nil {
		if f, ok := jsonvalue.Float(raw); ok {
			cfg.Gamma = f
		} else {
			errs = append(errs, ErrBadGamma)
		}
	}

	if raw, present := obj["linearSlope"]; present && raw != nil {
		if f, ok := jsonvalue.Float(raw); ok {
			cfg.LinearSlope = f
		} else {
			errs = append(errs, ErrBadLinearSlope)
		}
	}

	if raw, present := obj["linearCutoff"]; present && raw != nil {
		if f, ok := jsonvalue.Float(raw); ok {
			cfg.LinearCutoff = f
		} else {
			errs = append(errs, ErrBadLinearCutoff)
		}
	}

	if raw, present := obj["whitepoint"]; present && raw != nil {
		wp, err := parseWhitepoint(raw)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.Whitepoint = wp
		}
	}

	return cfg, errors.Join(errs...)
}

func parseWhitepoint(v any) ([Channels]float64, error) {
	var wp [Channels]float64
	arr, ok := jsonvalue.Array(v)
	if !ok || len(arr) != Channels {
		return wp, ErrBadWhitepoint
	}
	for i, item := range arr {
		f, ok := jsonvalue.Float(item)
		if !ok {
			return wp, fmt.Errorf("%w: element %d", ErrBadWhitepoint, i)
		}
		wp[i] = f
	}
	return wp, nil
}

// Compute builds the lookup table for cfg.
func Compute(cfg Config) LUT {
	var lut LUT
	for ch := 0; ch < Channels; ch++ {
		for entry := 0; entry < Entries; entry++ {
			lut[ch][entry] = cfg.evaluate(ch, entry)
		}
	}
	return lut
}

func (c Config) evaluate(ch, entry int) uint16 {
	// The last entry sits just above 1.0 and is never quite reached.
	input := float64(entry<<8) / 65535.0
	input *= c.Whitepoint[ch]

	var output float64
	if input*c.LinearSlope <= c.LinearCutoff {
		output = input * c.LinearSlope
	} else {
		scale := 1.0 - c.LinearCutoff
		nonlinear := input - c.LinearSlope*c.LinearCutoff
		output = c.LinearCutoff + math.Pow(nonlinear/scale, c.Gamma)*scale
	}

	return quantize(output)
}

func quantize(output float64) uint16 {
	scaled := output*0xFFFF + 0.5
	switch {
	case math.IsNaN(scaled) || scaled <= 0:
		return 0
	case scaled >= 0xFFFF:
		return 0xFFFF
	}
	return uint16(int64(scaled))
}
