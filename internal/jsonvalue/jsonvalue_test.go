package jsonvalue

import (
	"encoding/json"
	"testing"
)

func TestUint(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   uint64
		wantOK bool
	}{
		{"int", 5, 5, true},
		{"negative int", -1, 0, false},
		{"int64", int64(7), 7, true},
		{"uint64", uint64(9), 9, true},
		{"integral float", float64(12), 12, true},
		{"fractional float", 1.5, 0, false},
		{"json number", json.Number("512"), 512, true},
		{"json number fraction", json.Number("1.5"), 0, false},
		{"string", "3", 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Uint(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Uint(%v) = %d, %v, want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFloat(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{2.5, 2.5, true},
		{3, 3, true},
		{json.Number("0.25"), 0.25, true},
		{"x", 0, false},
		{true, 0, false},
	}

	for _, tt := range tests {
		got, ok := Float(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Float(%v) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestInt(t *testing.T) {
	if v, ok := Int(-4); !ok || v != -4 {
		t.Errorf("Int(-4) = %d, %v", v, ok)
	}
	if v, ok := Int(json.Number("300")); !ok || v != 300 {
		t.Errorf("Int(300) = %d, %v", v, ok)
	}
	if _, ok := Int(0.5); ok {
		t.Error("Int(0.5) should fail")
	}
}

func TestObjectAcceptsAnyKeyedMaps(t *testing.T) {
	m, ok := Object(map[any]any{"type": "fadecandy"})
	if !ok || m["type"] != "fadecandy" {
		t.Errorf("Object(map[any]any) = %v, %v", m, ok)
	}

	if _, ok := Object(map[any]any{1: "x"}); ok {
		t.Error("Object() with non-string key should fail")
	}

	if _, ok := Object([]any{}); ok {
		t.Error("Object([]) should fail")
	}
}

func TestNormalize(t *testing.T) {
	in := map[string]any{
		"nested": map[any]any{"a": []any{map[any]any{"b": 1}}},
	}

	out := Normalize(in)
	if _, err := json.Marshal(out); err != nil {
		t.Fatalf("Marshal(Normalize()) error = %v", err)
	}
}
