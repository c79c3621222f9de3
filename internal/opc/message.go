package opc

import (
	"encoding/binary"
	"fmt"
)

// Wire constants.
const (
	// HeaderBytes is the size of the OPC header.
	HeaderBytes = 4

	// MaxDataBytes is the largest payload the 16-bit length field can describe.
	MaxDataBytes = 0xFFFF

	// MaxMessageBytes is the largest complete OPC frame.
	MaxMessageBytes = HeaderBytes + MaxDataBytes

	// BytesPerPixel is the size of one RGB triple.
	BytesPerPixel = 3

	// sysExIDBytes is the size of the SysEx sub-command id.
	sysExIDBytes = 4
)

// Command identifies what an OPC message does.
type Command uint8

// OPC commands.
const (
	SetPixelColors  Command = 0x00
	SystemExclusive Command = 0xFF
)

// String returns a readable command name.
func (c Command) String() string {
	switch c {
	case SetPixelColors:
		return "set_pixel_colors"
	case SystemExclusive:
		return "system_exclusive"
	default:
		return fmt.Sprintf("command(0x%02X)", uint8(c))
	}
}

// SysExID is the 32-bit sub-command id carried by SystemExclusive messages.
type SysExID uint32

// Fadecandy SysEx ids.
const (
	SetGlobalColorCorrection SysExID = 0x00010001
	SetFirmwareConfiguration SysExID = 0x00010002
)

// Header is the parsed 4-byte OPC header.
type Header struct {
	Channel uint8
	Command Command
	Length  uint16
}

// ParseHeader parses the first HeaderBytes of b.
// It returns false when fewer than HeaderBytes are available; the caller
// should wait for more input rather than treat this as an error.
func ParseHeader(b []byte) (Header, bool) {
	if len(b) < HeaderBytes {
		return Header{}, false
	}
	return Header{
		Channel: b[0],
		Command: Command(b[1]),
		Length:  binary.BigEndian.Uint16(b[2:4]),
	}, true
}

// FrameLength returns the number of bytes the whole frame occupies.
func (h Header) FrameLength() int {
	return HeaderBytes + int(h.Length)
}

// Message is one OPC message.
//
// Data may alias a receive buffer owned by the caller. Handlers that keep
// the payload beyond the call must copy it.
type Message struct {
	Channel uint8
	Command Command
	Data    []byte
}

// Length returns the payload length.
func (m Message) Length() int {
	return len(m.Data)
}

// PixelCount returns the number of whole RGB pixels in the payload.
// A trailing partial pixel is ignored.
func (m Message) PixelCount() int {
	return len(m.Data) / BytesPerPixel
}

// Pixel returns the RGB triple for pixel i. It panics if i is out of range,
// so callers clamp against PixelCount first.
func (m Message) Pixel(i int) []byte {
	off := i * BytesPerPixel
	return m.Data[off : off+BytesPerPixel]
}

// SysEx splits a SystemExclusive payload into its id and remaining data.
func (m Message) SysEx() (SysExID, []byte, error) {
	if m.Command != SystemExclusive {
		return 0, nil, ErrNotSysEx
	}
	if len(m.Data) < sysExIDBytes {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrSysExTooShort, len(m.Data))
	}
	id := SysExID(binary.BigEndian.Uint32(m.Data[:sysExIDBytes]))
	return id, m.Data[sysExIDBytes:], nil
}

// Encode serialises m as a complete OPC frame.
func Encode(m Message) ([]byte, error) {
	if len(m.Data) > MaxDataBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(m.Data), MaxDataBytes)
	}
	out := make([]byte, HeaderBytes+len(m.Data))
	out[0] = m.Channel
	out[1] = byte(m.Command)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(m.Data)))
	copy(out[HeaderBytes:], m.Data)
	return out, nil
}

// Decode parses one complete frame. Bytes beyond the frame length are ignored.
// The returned message aliases frame.
func Decode(frame []byte) (Message, error) {
	hdr, ok := ParseHeader(frame)
	if !ok {
		return Message{}, fmt.Errorf("%w: %d bytes, need header", ErrFrameTruncated, len(frame))
	}
	if len(frame) < hdr.FrameLength() {
		return Message{}, fmt.Errorf("%w: have %d of %d bytes", ErrFrameTruncated, len(frame), hdr.FrameLength())
	}
	return Message{
		Channel: hdr.Channel,
		Command: hdr.Command,
		Data:    frame[HeaderBytes:hdr.FrameLength()],
	}, nil
}

// NewSysEx builds a SystemExclusive message for the given id and data.
func NewSysEx(channel uint8, id SysExID, data []byte) Message {
	payload := make([]byte, sysExIDBytes+len(data))
	binary.BigEndian.PutUint32(payload, uint32(id))
	copy(payload[sysExIDBytes:], data)
	return Message{Channel: channel, Command: SystemExclusive, Data: payload}
}
