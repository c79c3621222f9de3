package device

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-fcserver/internal/jsonvalue"
	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
)

// Instruction is one parsed mapping entry.
type Instruction interface {
	instruction()
}

// Range copies count RGB pixels from an OPC channel into the framebuffer.
// A non-empty Swizzle holds three colour selectors applied to each pixel.
type Range struct {
	Channel     uint64
	FirstSource uint64
	FirstDest   uint64
	Count       uint64
	Swizzle     string
}

// ColorChannel copies one colour component of one pixel into a DMX channel.
type ColorChannel struct {
	Channel    uint64
	Pixel      uint64
	Selector   byte
	DMXChannel uint64
}

// Constant writes a fixed value into a DMX channel.
type Constant struct {
	Value      uint64
	DMXChannel uint64
}

func (Range) instruction()        {}
func (ColorChannel) instruction() {}
func (Constant) instruction()     {}

// formSet selects which instruction shapes a driver accepts.
type formSet uint8

const (
	formRange formSet = 1 << iota
	formSwizzle
	formColorChannel
	formConstant
)

// parseMap parses a configured map. ok is false when v is not a list;
// errs lists the instructions that were skipped.
func parseMap(v any, forms formSet) (instrs []Instruction, ok bool, errs []error) {
	if v == nil {
		return nil, false, nil
	}
	arr, isArr := jsonvalue.Array(v)
	if !isArr {
		return nil, false, []error{ErrMapNotArray}
	}

	instrs = make([]Instruction, 0, len(arr))
	for _, raw := range arr {
		inst, err := parseInstruction(raw, forms)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		instrs = append(instrs, inst)
	}
	return instrs, true, errs
}

func parseInstruction(v any, forms formSet) (Instruction, error) {
	arr, _ := jsonvalue.Array(v)

	switch len(arr) {
	case 4:
		if forms&formRange != 0 {
			if u, ok := uints(arr); ok {
				return Range{Channel: u[0], FirstSource: u[1], FirstDest: u[2], Count: u[3]}, nil
			}
		}
		if forms&formColorChannel != 0 {
			if inst, ok := parseColorChannel(arr); ok {
				return inst, nil
			}
		}
	case 5:
		if forms&formSwizzle != 0 {
			if u, ok := uints(arr[:4]); ok {
				if sw, ok := jsonvalue.String(arr[4]); ok && validSwizzle(sw) {
					return Range{Channel: u[0], FirstSource: u[1], FirstDest: u[2], Count: u[3], Swizzle: sw}, nil
				}
			}
		}
	case 2:
		if forms&formConstant != 0 {
			if u, ok := uints(arr); ok {
				return Constant{Value: u[0], DMXChannel: u[1]}, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedInstruction, describeJSON(v))
}

func parseColorChannel(arr []any) (Instruction, bool) {
	ch, ok1 := jsonvalue.Uint(arr[0])
	px, ok2 := jsonvalue.Uint(arr[1])
	sel, ok3 := jsonvalue.String(arr[2])
	dmx, ok4 := jsonvalue.Uint(arr[3])
	if !ok1 || !ok2 || !ok3 || !ok4 || sel == "" || !opc.ValidColorSelector(sel[0]) {
		return nil, false
	}
	return ColorChannel{Channel: ch, Pixel: px, Selector: sel[0], DMXChannel: dmx}, true
}

// validSwizzle requires exactly three valid selectors, so a swizzle never
// fails halfway through a pixel.
func validSwizzle(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if !opc.ValidColorSelector(s[i]) {
			return false
		}
	}
	return true
}

func uints(arr []any) ([]uint64, bool) {
	out := make([]uint64, len(arr))
	for i, v := range arr {
		u, ok := jsonvalue.Uint(v)
		if !ok {
			return nil, false
		}
		out[i] = u
	}
	return out, true
}

func describeJSON(v any) string {
	b, err := json.Marshal(jsonvalue.Normalize(v))
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// pixelTarget is an RGB framebuffer.
type pixelTarget interface {
	pixelCapacity() int
	pixel(i int) []byte
}

// channelTarget is a DMX channel buffer.
type channelTarget interface {
	setChannel(n uint64, value uint8)
}

// applyRange copies the clamped range. Indices are clamped to both the
// source pixel count and the destination capacity, so neither buffer is
// ever indexed out of bounds.
func applyRange(r Range, msg opc.Message, dst pixelTarget) {
	if r.Channel != uint64(msg.Channel) {
		return
	}

	src := uint64(msg.PixelCount())
	capacity := uint64(dst.pixelCapacity())

	first := min(r.FirstSource, src)
	out := min(r.FirstDest, capacity)
	count := min(r.Count, src-first)
	count = min(count, capacity-out)

	for i := uint64(0); i < count; i++ {
		in := msg.Pixel(int(first + i))
		o := dst.pixel(int(out + i))
		if r.Swizzle == "" {
			copy(o, in)
			continue
		}
		for c := 0; c < 3; c++ {
			if v, ok := opc.PickColorChannel(r.Swizzle[c], in); ok {
				o[c] = v
			}
		}
	}
}

func applyColorChannel(cc ColorChannel, msg opc.Message, dst channelTarget) {
	if cc.Channel != uint64(msg.Channel) || cc.Pixel >= uint64(msg.PixelCount()) {
		return
	}
	if v, ok := opc.PickColorChannel(cc.Selector, msg.Pixel(int(cc.Pixel))); ok {
		dst.setChannel(cc.DMXChannel, v)
	}
}

func applyConstant(c Constant, dst channelTarget) {
	dst.setChannel(c.DMXChannel, uint8(min(c.Value, 255)))
}
