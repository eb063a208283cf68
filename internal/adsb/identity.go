package adsb

import (
	"fmt"
	"strings"
)

// Charset maps 6-bit callsign codes to characters. '#' marks unassigned codes.
const Charset = "#ABCDEFGHIJKLMNOPQRSTUVWXYZ##### ###############0123456789######"

// decodeCallsign reads eight 6-bit characters starting at message bit 40.
func decodeCallsign(data []byte) string {
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		sb.WriteByte(Charset[bit(data, 40+i*6, 6)])
	}
	return strings.TrimRight(sb.String(), " ")
}

// emitterCategory combines the type code and category field, e.g. "A3".
// TC4 is set A, TC1 is set D.
func emitterCategory(tc uint8, ca uint64) string {
	return fmt.Sprintf("%X%d", 0x0e-tc, ca)
}

func decodeIdentification(frag *Fragment, data []byte) {
	frag.Kind = KindIdentification
	frag.Callsign = ptr(decodeCallsign(data))
	frag.Category = ptr(emitterCategory(frag.TypeCode, bit(data, 37, 3)))
}
