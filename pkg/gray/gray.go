// Package gray maps the 4-bit sensor pattern printed around the wheel rim to
// one of 16 rotational positions.
package gray

// Positions is the number of segments around the wheel.
const Positions = 16

// Table holds the reflected binary code of each position, in the order the
// segments pass the sensors. Neighbouring entries differ in exactly one bit so
// a single sensor flipping late can only ever report an adjacent segment.
var Table = [Positions]uint8{
	0x0, 0x1, 0x3, 0x2,
	0x6, 0x7, 0x5, 0x4,
	0xC, 0xD, 0xF, 0xE,
	0xA, 0xB, 0x9, 0x8,
}

// BinaryToGray converts a binary number into its reflected binary code.
func BinaryToGray(n uint8) uint8 {
	return n ^ (n >> 1)
}

// GrayToBinary converts a reflected binary code back to binary.
func GrayToBinary(g uint8) uint8 {
	for shift := g >> 1; shift != 0; shift >>= 1 {
		g ^= shift
	}
	return g
}

// Index returns the position whose code equals code.
// The second result is false if code is not in the table.
func Index(code uint8) (int, bool) {
	for i, c := range Table {
		if c == code {
			return i, true
		}
	}
	return 0, false
}

// Decode returns the position of code, or prev when code is not in the table.
func Decode(code uint8, prev int) int {
	if i, ok := Index(code); ok {
		return i
	}
	return prev
}
