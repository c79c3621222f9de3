package device

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-fcserver/internal/colorcurve"
	"github.com/nerrad567/gray-logic-fcserver/internal/control"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fcserver/internal/jsonvalue"
	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
	"github.com/nerrad567/gray-logic-fcserver/internal/transport"
)

// Fadecandy USB identity.
const (
	fadecandyVendorID  = 0x1d50
	fadecandyProductID = 0x607a
)

// Fadecandy packet layout. Every USB packet is 64 bytes: a control byte
// followed by 63 data bytes.
const (
	FadecandyPixels = 512

	packetSize         = 64
	pixelsPerPacket    = 21
	framebufferPackets = 25
	lutPackets         = 25

	typeFramebuffer = 0x00
	typeLUT         = 0x40
	typeConfig      = 0x80
	flagFinal       = 0x20

	cflagNoDithering     = 1 << 0
	cflagNoInterpolation = 1 << 1
	cflagNoActivityLED   = 1 << 2
	cflagLEDControl      = 1 << 3
)

// Fadecandy drives a Fadecandy controller: 512 RGB pixels on 8 strips.
type Fadecandy struct {
	base

	framebuffer [framebufferPackets * packetSize]byte
	lut         [lutPackets * packetSize]byte
	fwConfig    [packetSize]byte
}

func newFadecandy(h transport.Handle, opts Options) *Fadecandy {
	d := &Fadecandy{base: newBase(KindFadecandy, h, opts)}

	for i := 0; i < framebufferPackets; i++ {
		d.framebuffer[i*packetSize] = typeFramebuffer | byte(i)
	}
	d.framebuffer[(framebufferPackets-1)*packetSize] |= flagFinal

	for i := 0; i < lutPackets; i++ {
		d.lut[i*packetSize] = typeLUT | byte(i)
	}
	d.lut[(lutPackets-1)*packetSize] |= flagFinal

	d.fwConfig[0] = typeConfig
	return d
}

func (*Fadecandy) sealed() {}

// Version returns the firmware version derived from bcdDevice.
func (d *Fadecandy) Version() string {
	return fmt.Sprintf("%x.%02x", d.id.BCDDevice>>8, d.id.BCDDevice&0xFF)
}

// Name returns e.g. "Fadecandy (Serial# ABC, Version 1.07)".
func (d *Fadecandy) Name() string {
	if d.id.Serial == "" {
		return "Fadecandy"
	}
	return fmt.Sprintf("Fadecandy (Serial# %s, Version %s)", d.id.Serial, d.Version())
}

// Describe adds the firmware version to the common description.
func (d *Fadecandy) Describe() map[string]any {
	desc := d.describe()
	desc["version"] = d.Version()
	desc["bcd_version"] = int(d.id.BCDDevice)
	return desc
}

// LoadConfiguration stores the map and sends the firmware configuration.
func (d *Fadecandy) LoadConfiguration(cfg config.DeviceConfig) {
	d.loadMap(cfg.Map, formRange|formSwizzle)

	options := map[string]any{}
	if cfg.LED != nil {
		options["led"] = *cfg.LED
	}
	if cfg.Dither != nil {
		options["dither"] = *cfg.Dither
	}
	if cfg.Interpolate != nil {
		options["interpolate"] = *cfg.Interpolate
	}
	d.writeFirmwareOptions(options)
}

// WriteMessage applies one OPC message.
func (d *Fadecandy) WriteMessage(msg opc.Message) {
	switch msg.Command {
	case opc.SetPixelColors:
		d.setPixelColors(msg)
		d.writeFramebuffer()
	case opc.SystemExclusive:
		d.sysEx(msg)
	default:
		d.logger.Debug("unsupported OPC command", "device", d.Name(), "command", msg.Command.String())
	}
}

func (d *Fadecandy) setPixelColors(msg opc.Message) {
	if !d.active {
		return
	}
	for _, inst := range d.mapping {
		if r, ok := inst.(Range); ok {
			applyRange(r, msg, d)
		}
	}
}

func (d *Fadecandy) sysEx(msg opc.Message) {
	id, data, err := msg.SysEx()
	if err != nil {
		d.logger.Debug("bad SysEx message", "device", d.Name(), "error", err)
		return
	}

	switch id {
	case opc.SetGlobalColorCorrection:
		d.sysExColorCorrection(data)
	case opc.SetFirmwareConfiguration:
		n := copy(d.fwConfig[1:], data)
		d.logger.Debug("raw firmware configuration", "device", d.Name(), "bytes", n)
		d.writeFirmwareConfig()
	}
	// Other SysEx ids are ignored quietly.
}

// sysExColorCorrection applies a JSON colour correction payload. Any
// parse or validation error rejects the whole payload.
func (d *Fadecandy) sysExColorCorrection(data []byte) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		d.logger.Debug("parse error in color correction JSON", "device", d.Name(), "error", err)
		return
	}

	cfg, err := colorcurve.Parse(v)
	if err != nil {
		d.logger.Debug("invalid color correction", "device", d.Name(), "error", err)
		return
	}
	d.WriteColorCorrection(cfg)
}

// HandleControl handles device_options, device_pixels and
// device_color_correction.
func (d *Fadecandy) HandleControl(req *control.Request, reply *control.Reply) {
	switch req.Type {
	case control.TypeDeviceOptions:
		v, _ := req.Get(control.FieldOptions)
		d.writeFirmwareOptions(v)
	case control.TypeDevicePixels:
		d.writeDevicePixels(req, reply)
	default:
		d.handleCommonControl(d, req, reply)
	}
}

// writeDevicePixels writes a flat [r,g,b,...] integer list straight into
// the framebuffer. Values are clamped to 0..255; non-integers become 0.
func (d *Fadecandy) writeDevicePixels(req *control.Request, reply *control.Reply) {
	v, _ := req.Get(control.FieldPixels)
	pixels, ok := jsonvalue.Array(v)
	if !ok {
		reply.SetError(errTextPixelArrayMissing)
		return
	}

	n := min(len(pixels)/3, FadecandyPixels)
	for i := 0; i < n; i++ {
		out := d.pixel(i)
		for c := 0; c < 3; c++ {
			out[c] = clampByte(pixels[i*3+c])
		}
	}
	d.writeFramebuffer()
}

func clampByte(v any) byte {
	i, ok := jsonvalue.Int(v)
	if !ok {
		return 0
	}
	return byte(max(0, min(255, i)))
}

// writeFirmwareOptions builds the config flags from led/dither/interpolate.
// led: null or absent keeps the default activity LED, true forces it on,
// false forces it off.
func (d *Fadecandy) writeFirmwareOptions(v any) {
	obj, ok := jsonvalue.Object(v)
	if !ok {
		d.logger.Debug("firmware configuration skipped", "device", d.Name(), "error", ErrFirmwareConfigNotObject)
		return
	}

	led := obj["led"]
	if _, isBool := led.(bool); !isBool && led != nil {
		d.logger.Debug("LED configuration must be true (always on), false (always off), or null (default)", "device", d.Name())
	}

	var flags byte
	if led != nil {
		flags |= cflagNoActivityLED
	}
	if led == true {
		flags |= cflagLEDControl
	}
	if obj["dither"] == false {
		flags |= cflagNoDithering
	}
	if obj["interpolate"] == false {
		flags |= cflagNoInterpolation
	}

	d.fwConfig[1] = flags
	d.writeFirmwareConfig()
}

// WriteColorCorrection recomputes the lookup table and sends all LUT packets.
func (d *Fadecandy) WriteColorCorrection(cfg colorcurve.Config) {
	table := colorcurve.Compute(cfg)

	const firstByteOffset = 1 // padding byte after the control byte
	packet := 0
	offset := firstByteOffset

	for ch := 0; ch < colorcurve.Channels; ch++ {
		for e := 0; e < colorcurve.Entries; e++ {
			v := table[ch][e]
			at := packet*packetSize + 1 + offset
			d.lut[at] = byte(v)
			d.lut[at+1] = byte(v >> 8)
			offset += 2
			if offset >= packetSize-1 {
				offset = firstByteOffset
				packet++
			}
		}
	}

	d.submit(d.lut[:])
}

func (d *Fadecandy) writeFramebuffer() {
	d.submit(d.framebuffer[:])
}

func (d *Fadecandy) writeFirmwareConfig() {
	d.submit(d.fwConfig[:])
}

func (d *Fadecandy) pixelCapacity() int {
	return FadecandyPixels
}

// pixel returns the three framebuffer bytes of pixel i.
func (d *Fadecandy) pixel(i int) []byte {
	off := (i/pixelsPerPacket)*packetSize + 1 + 3*(i%pixelsPerPacket)
	return d.framebuffer[off : off+3]
}

// Pixel returns a copy of the RGB value of framebuffer pixel i.
func (d *Fadecandy) Pixel(i int) [3]byte {
	var rgb [3]byte
	copy(rgb[:], d.pixel(i))
	return rgb
}
