package adsb

import "fmt"

// id13ToGillham rearranges the interleaved 13-bit identity field
// (C1 A1 C2 A2 C4 A4 X B1 D1 B2 D2 B4 D4) into 0xABCD nibble order,
// one octal digit per nibble.
func id13ToGillham(id13 uint64) uint32 {
	var g uint32
	if id13&0x1000 != 0 {
		g |= 0x0010 // C1
	}
	if id13&0x0800 != 0 {
		g |= 0x1000 // A1
	}
	if id13&0x0400 != 0 {
		g |= 0x0020 // C2
	}
	if id13&0x0200 != 0 {
		g |= 0x2000 // A2
	}
	if id13&0x0100 != 0 {
		g |= 0x0040 // C4
	}
	if id13&0x0080 != 0 {
		g |= 0x4000 // A4
	}
	if id13&0x0020 != 0 {
		g |= 0x0100 // B1
	}
	if id13&0x0010 != 0 {
		g |= 0x0001 // D1
	}
	if id13&0x0008 != 0 {
		g |= 0x0200 // B2
	}
	if id13&0x0004 != 0 {
		g |= 0x0002 // D2
	}
	if id13&0x0002 != 0 {
		g |= 0x0400 // B4
	}
	if id13&0x0001 != 0 {
		g |= 0x0004 // D4
	}
	return g
}

// decodeSquawk renders a 13-bit identity field as four octal digits.
func decodeSquawk(id13 uint64) string {
	return fmt.Sprintf("%04X", id13ToGillham(id13))
}
