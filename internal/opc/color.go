package opc

// PickColorChannel selects one byte from an RGB triple.
//
//	'r', 'R' -> red
//	'g', 'G' -> green
//	'b', 'B' -> blue
//	'l', 'L' -> luminance, the mean of r, g and b rounded down
//
// Any other selector returns false and the caller leaves its destination
// byte unmodified.
func PickColorChannel(selector byte, rgb []byte) (uint8, bool) {
	switch selector {
	case 'r', 'R':
		return rgb[0], true
	case 'g', 'G':
		return rgb[1], true
	case 'b', 'B':
		return rgb[2], true
	case 'l', 'L':
		return uint8((uint(rgb[0]) + uint(rgb[1]) + uint(rgb[2])) / 3), true
	default:
		return 0, false
	}
}

// ValidColorSelector reports whether PickColorChannel accepts selector.
func ValidColorSelector(selector byte) bool {
	_, ok := PickColorChannel(selector, []byte{0, 0, 0})
	return ok
}
