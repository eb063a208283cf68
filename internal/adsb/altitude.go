package adsb

import "math"

const feetPerMetre = 3.28084

// gillhamToAltitude converts a Mode C code in 0xABCD nibble order to
// hundreds of feet. ok is false for codes outside the Gillham table.
func gillhamToAltitude(modeA uint32) (int, bool) {
	// D1 never carries altitude; at least one C bit must be set.
	if modeA&0xffff8889 != 0 || modeA&0x00f0 == 0 {
		return 0, false
	}

	var oneHundreds, fiveHundreds uint32

	if modeA&0x0010 != 0 {
		oneHundreds ^= 0x007 // C1
	}
	if modeA&0x0020 != 0 {
		oneHundreds ^= 0x003 // C2
	}
	if modeA&0x0040 != 0 {
		oneHundreds ^= 0x001 // C4
	}

	// swap 5 and 7
	if oneHundreds&5 == 5 {
		oneHundreds ^= 2
	}
	if oneHundreds > 5 {
		return 0, false
	}

	if modeA&0x0002 != 0 {
		fiveHundreds ^= 0x0ff // D2
	}
	if modeA&0x0004 != 0 {
		fiveHundreds ^= 0x07f // D4
	}
	if modeA&0x1000 != 0 {
		fiveHundreds ^= 0x03f // A1
	}
	if modeA&0x2000 != 0 {
		fiveHundreds ^= 0x01f // A2
	}
	if modeA&0x4000 != 0 {
		fiveHundreds ^= 0x00f // A4
	}
	if modeA&0x0100 != 0 {
		fiveHundreds ^= 0x007 // B1
	}
	if modeA&0x0200 != 0 {
		fiveHundreds ^= 0x003 // B2
	}
	if modeA&0x0400 != 0 {
		fiveHundreds ^= 0x001 // B4
	}

	// odd 500ft bands count the 100ft steps downwards
	if fiveHundreds&1 != 0 {
		oneHundreds = 6 - oneHundreds
	}

	return int(fiveHundreds*5+oneHundreds) - 13, true
}

// decodeAC13 decodes the 13-bit altitude code of DF0/4/16/20. ok is false
// when the field is zero (altitude not available).
func decodeAC13(ac13 uint64) (feet int, ok bool, err error) {
	if ac13 == 0 {
		return 0, false, nil
	}

	if ac13&0x0040 != 0 {
		// M bit: metric altitude, one metre steps
		metres := (ac13&0x1f80)>>1 | ac13&0x003f
		return int(math.Round(float64(metres) * feetPerMetre)), true, nil
	}

	if ac13&0x0010 != 0 {
		// Q bit: 25ft increments
		n := (ac13&0x1f80)>>2 | (ac13&0x0020)>>1 | ac13&0x000f
		return int(n)*25 - 1000, true, nil
	}

	hundreds, legal := gillhamToAltitude(id13ToGillham(ac13))
	if !legal {
		return 0, false, &FieldError{Field: "altitude", Value: ac13}
	}
	return hundreds * 100, true, nil
}

// decodeAC12 decodes the 12-bit altitude of an airborne position message,
// which is the 13-bit code without the M bit.
func decodeAC12(ac12 uint64) (feet int, ok bool, err error) {
	if ac12 == 0 {
		return 0, false, nil
	}

	if ac12&0x0010 != 0 {
		n := (ac12&0x0fe0)>>1 | ac12&0x000f
		return int(n)*25 - 1000, true, nil
	}

	ac13 := (ac12&0x0fc0)<<1 | ac12&0x003f
	hundreds, legal := gillhamToAltitude(id13ToGillham(ac13))
	if !legal {
		return 0, false, &FieldError{Field: "altitude", Value: ac12}
	}
	return hundreds * 100, true, nil
}
