package device

import (
	"fmt"

	"github.com/nerrad567/gray-logic-fcserver/internal/control"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
	"github.com/nerrad567/gray-logic-fcserver/internal/transport"
)

// FTDI FT245 identity shared by the Enttec DMX USB Pro and many other
// devices, so the strings are checked after opening.
const (
	ftdiVendorID       = 0x0403
	ftdiFT245ProductID = 0x6001

	enttecManufacturer = "ENTTEC"
	enttecProduct      = "DMX USB PRO"
)

// DMX USB Pro framing.
const (
	DMXChannels = 512

	enttecStartByte   = 0x7E
	enttecEndByte     = 0xE7
	enttecSendDMX     = 0x06
	enttecHeaderBytes = 4
)

// Enttec drives an Enttec DMX USB Pro: one DMX universe of 512 channels.
type Enttec struct {
	base

	// packet is the full wire frame. Byte 4 is the DMX start code,
	// channel n lives at 4+n and the end byte follows the last channel.
	packet [enttecHeaderBytes + 1 + DMXChannels + 1]byte
	length int
}

func enttecProbeAfterOpening(id transport.Identity) bool {
	return id.Manufacturer == enttecManufacturer && id.Product == enttecProduct
}

func newEnttec(h transport.Handle, opts Options) *Enttec {
	d := &Enttec{base: newBase(KindEnttec, h, opts)}
	d.packet[0] = enttecStartByte
	d.packet[1] = enttecSendDMX
	d.length = 0
	// Start with one zeroed channel so the frame is never empty.
	d.setChannel(1, 0)
	return d
}

func (*Enttec) sealed() {}

// Name returns e.g. "Enttec DMX USB Pro (Serial# ABC)".
func (d *Enttec) Name() string {
	return fmt.Sprintf("Enttec DMX USB Pro (Serial# %s)", d.id.Serial)
}

// Describe returns the common description.
func (d *Enttec) Describe() map[string]any {
	return d.describe()
}

// LoadConfiguration stores the map.
func (d *Enttec) LoadConfiguration(cfg config.DeviceConfig) {
	d.loadMap(cfg.Map, formColorChannel|formConstant)
}

// WriteMessage applies pixel messages. SysEx is ignored.
func (d *Enttec) WriteMessage(msg opc.Message) {
	switch msg.Command {
	case opc.SetPixelColors:
	case opc.SystemExclusive:
		return
	default:
		d.logger.Debug("unsupported OPC command", "device", d.Name(), "command", msg.Command.String())
		return
	}

	if d.active {
		for _, inst := range d.mapping {
			switch in := inst.(type) {
			case ColorChannel:
				applyColorChannel(in, msg, d)
			case Constant:
				applyConstant(in, d)
			}
		}
	}
	d.writeDMXPacket()
}

// HandleControl handles the shared device messages.
func (d *Enttec) HandleControl(req *control.Request, reply *control.Reply) {
	d.handleCommonControl(d, req, reply)
}

// setChannel sets DMX channel n (1..512). The frame grows to cover the
// highest channel written and never shrinks.
func (d *Enttec) setChannel(n uint64, value uint8) {
	if n < 1 || n > DMXChannels {
		return
	}
	data := d.packet[enttecHeaderBytes:]
	if int(n)+1 > d.length {
		d.length = int(n) + 1
	}
	data[n] = value
	data[d.length] = enttecEndByte
	d.packet[2] = byte(d.length)
	d.packet[3] = byte(d.length >> 8)
}

// Channel returns the current value of DMX channel n.
func (d *Enttec) Channel(n int) uint8 {
	if n < 1 || n > DMXChannels || n >= d.length {
		return 0
	}
	return d.packet[enttecHeaderBytes+n]
}

// frame returns the bytes currently sent on each write.
func (d *Enttec) frame() []byte {
	return d.packet[:d.length+enttecHeaderBytes+1]
}

func (d *Enttec) writeDMXPacket() {
	d.submit(d.frame())
}
