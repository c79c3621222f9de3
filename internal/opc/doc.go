// Package opc defines the Open Pixel Control (OPC) message model.
//
// An OPC message is a 4-byte header followed by a payload:
//
//	[channel:u8][command:u8][lenHigh:u8][lenLow:u8][data:length]
//
// The same layout is used on a dedicated TCP stream, where the length field
// frames each message, and inside WebSocket binary frames, where the frame
// itself carries the length and the header length field is redundant.
//
// This package only parses and builds messages. Stream reassembly lives in
// the netserver package, which forwards parsed messages without copying.
//
// # Commands
//
//   - SetPixelColors (0x00): payload is a flat sequence of RGB triples.
//   - SystemExclusive (0xFF): payload starts with a big-endian 32-bit
//     sub-command id, followed by sub-command data.
//
// Usage:
//
//	hdr, ok := opc.ParseHeader(buf)
//	if !ok || len(buf) < hdr.FrameLength() {
//	    // wait for more bytes
//	}
//	msg := opc.Message{Channel: hdr.Channel, Command: hdr.Command, Data: buf[opc.HeaderBytes:hdr.FrameLength()]}
package opc
