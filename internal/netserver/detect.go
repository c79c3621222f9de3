package netserver

import "bytes"

// DetectBytes is how many bytes a connection must deliver before its
// protocol is known.
const DetectBytes = 4

// Protocol is the state of a connection's protocol detection.
type Protocol int

// Connection protocols.
const (
	// ProtocolDetect means fewer than DetectBytes have arrived.
	ProtocolDetect Protocol = iota
	// ProtocolOPC is raw Open Pixel Control framing.
	ProtocolOPC
	// ProtocolHTTP is HTTP, possibly upgraded to WebSocket.
	ProtocolHTTP
)

var httpGet = []byte("GET ")

// String returns the protocol name used in logs.
func (p Protocol) String() string {
	switch p {
	case ProtocolOPC:
		return "opc"
	case ProtocolHTTP:
		return "http"
	default:
		return "detect"
	}
}

// Detect classifies a connection from its first bytes.
// Only an exact "GET " prefix selects HTTP; any other four bytes are OPC,
// even when they would also parse as an OPC header.
func Detect(head []byte) Protocol {
	if len(head) < DetectBytes {
		return ProtocolDetect
	}
	if bytes.Equal(head[:DetectBytes], httpGet) {
		return ProtocolHTTP
	}
	return ProtocolOPC
}
