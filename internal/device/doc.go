// Package device implements the LED controller drivers and the pixel
// mapping engine.
//
// Each attached controller is a Device. A Device owns its framebuffer,
// its parsed mapping and, for Fadecandy, its colour lookup table and
// firmware configuration packet. Buffers are mutated only through the
// Device's own methods, and every mutation submits the complete affected
// packet set to the transport in a single write.
//
// # Architecture
//
//	            opc.Message / control.Request
//	                        │
//	                        ▼
//	┌──────────────────────────────────────────────────────────┐
//	│ Device (sealed: *Fadecandy, *Enttec)                      │
//	│                                                           │
//	│  mapping.go   parsed instructions, clamped application    │
//	│  fadecandy.go 25×64-byte framebuffer, LUT and config      │
//	│  enttec.go    DMX USB Pro packet, 512 channels            │
//	│  base.go      submission, completion bookkeeping, stats   │
//	└──────────────────────────┬───────────────────────────────┘
//	                           │ Submit (non-blocking, copied)
//	                           ▼
//	                   transport.Handle
//
// # Mapping forms
//
// Fadecandy:
//
//	[channel, firstSourcePixel, firstDestPixel, count]
//	[channel, firstSourcePixel, firstDestPixel, count, "rgb"]
//
// Enttec:
//
//	[channel, sourcePixel, "r"|"g"|"b"|"l", dmxChannel]
//	[value, dmxChannel]
//
// Instructions are parsed once when the configuration is loaded.
// Unsupported instructions are logged and skipped there; a map that is not
// a list leaves the device attached but inactive.
//
// # Thread Safety
//
// A Device is not safe for concurrent use. The coordinator serialises all
// calls under its mutex. Transport completions arrive on a channel owned by
// the device and are consumed by Flush, by the next submission, and by Close.
package device
