// Package control models JSON control messages exchanged over WebSocket
// text frames and the MQTT control topic.
//
// A Request is parsed once and never modified. Handlers build a Reply from
// it, which starts as a copy of every request field so that clients can
// correlate asynchronous replies through any extra fields they included.
package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// Message types.
const (
	TypeListConnectedDevices    = "list_connected_devices"
	TypeServerInfo              = "server_info"
	TypeConnectedDevicesChanged = "connected_devices_changed"
	TypeDeviceOptions           = "device_options"
	TypeDevicePixels            = "device_pixels"
	TypeDeviceColorCorrection   = "device_color_correction"
	TypeDeviceHistory           = "device_history"
)

// Well-known field names.
const (
	FieldType    = "type"
	FieldDevice  = "device"
	FieldDevices = "devices"
	FieldError   = "error"
	FieldPixels  = "pixels"
	FieldOptions = "options"
	FieldColor   = "color"
	FieldVersion = "version"
	FieldConfig  = "config"
)

// Errors returned by ParseRequest.
var (
	ErrInvalidJSON = errors.New("control: invalid JSON")
	ErrNotObject   = errors.New("control: message is not a JSON object")
	ErrMissingType = errors.New(`control: message is missing mandatory "type" string`)
)

// Request is a parsed control message.
type Request struct {
	Type   string
	fields map[string]any
}

// ParseRequest decodes one control message. Numbers are kept as
// json.Number so they are echoed back exactly.
func ParseRequest(data []byte) (*Request, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}

	fields, ok := root.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return NewRequest(fields)
}

// NewRequest wraps an already decoded object.
func NewRequest(fields map[string]any) (*Request, error) {
	typ, ok := fields[FieldType].(string)
	if !ok {
		return nil, ErrMissingType
	}
	return &Request{Type: typ, fields: fields}, nil
}

// Get returns a top-level field.
func (r *Request) Get(key string) (any, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Has reports whether a top-level field is present, even if null.
func (r *Request) Has(key string) bool {
	_, ok := r.fields[key]
	return ok
}

// Reply is the response to a Request, or a server-initiated event.
type Reply struct {
	fields map[string]any
}

// NewReply starts a reply that echoes every request field.
func NewReply(req *Request) *Reply {
	return &Reply{fields: maps.Clone(req.fields)}
}

// Event starts a server-initiated message of the given type.
func Event(typ string) *Reply {
	return &Reply{fields: map[string]any{FieldType: typ}}
}

// Set adds or replaces a field.
func (r *Reply) Set(key string, v any) {
	r.fields[key] = v
}

// Get returns a field.
func (r *Reply) Get(key string) (any, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Remove deletes a field.
func (r *Reply) Remove(key string) {
	delete(r.fields, key)
}

// SetError annotates the reply with an error message.
func (r *Reply) SetError(msg string) {
	r.fields[FieldError] = msg
}

// HasError reports whether an error annotation was added.
func (r *Reply) HasError() bool {
	_, ok := r.fields[FieldError]
	return ok
}

// Type returns the reply's type field.
func (r *Reply) Type() string {
	s, _ := r.fields[FieldType].(string)
	return s
}

// MarshalJSON encodes the reply as a flat JSON object.
func (r *Reply) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields)
}
