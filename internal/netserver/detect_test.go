package netserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want Protocol
	}{
		{name: "http get", head: []byte("GET / HTTP/1.1\r\n"), want: ProtocolHTTP},
		{name: "exactly four bytes", head: []byte("GET "), want: ProtocolHTTP},
		{name: "too short", head: []byte("GET"), want: ProtocolDetect},
		{name: "empty", head: nil, want: ProtocolDetect},
		{name: "opc header", head: []byte{0, 0, 0, 3}, want: ProtocolOPC},
		{name: "post is not detected", head: []byte("POST / HTTP/1.1"), want: ProtocolOPC},
		{name: "lowercase get", head: []byte("get /"), want: ProtocolOPC},
		{name: "no space", head: []byte("GETX"), want: ProtocolOPC},
		{name: "opc header on channel G", head: []byte{'G', 0, 0, 0}, want: ProtocolOPC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.head))
		})
	}
}

func TestProtocolString(t *testing.T) {
	assert.Equal(t, "detect", ProtocolDetect.String())
	assert.Equal(t, "opc", ProtocolOPC.String())
	assert.Equal(t, "http", ProtocolHTTP.String())
}
