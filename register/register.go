// Package register converts between an 8-bit port register and the
// per-line states of that port. Line 0 is the least significant bit.
package register

// Width is the number of lines held by a single port register.
const Width = 8

func Decode(value uint8) (bits [Width]bool) {
	for i := 0; i < Width; i++ {
		bits[i] = value>>uint(i)&0x01 == 1
	}
	return
}

func Encode(bits [Width]bool) (value uint8) {
	for i, b := range bits {
		if b {
			value |= 1 << uint(i)
		}
	}
	return
}
