package adsb

import "fmt"

// Mode S CRC-24 generator polynomial
const GeneratorPoly = 0xfff409

// Pre-computed CRC table, one entry per leading byte
var crcTable [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		c := uint32(i) << 16
		for j := 0; j < 8; j++ {
			if c&0x800000 != 0 {
				c = (c << 1) ^ GeneratorPoly
			} else {
				c = c << 1
			}
		}
		crcTable[i] = c & 0x00ffffff
	}
}

// crc24 computes the Mode S remainder of data
func crc24(data []byte) uint32 {
	var rem uint32
	for _, b := range data {
		rem = (rem << 8) ^ crcTable[uint32(b)^((rem&0xff0000)>>16)]
		rem &= 0xffffff
	}
	return rem
}

// Checksum returns the CRC-24 of everything but the trailing 24-bit parity field.
func Checksum(msg []byte) uint32 {
	if len(msg) < 3 {
		return 0
	}
	return crc24(msg[:len(msg)-3])
}

// ParityField returns the trailing 24 bits of a message.
func ParityField(msg []byte) uint32 {
	n := len(msg)
	if n < 3 {
		return 0
	}
	return uint32(msg[n-3])<<16 | uint32(msg[n-2])<<8 | uint32(msg[n-1])
}

// Remainder is the CRC over the whole message. It is zero for an intact
// DF17/18 frame and equals the address for address/parity formats.
func Remainder(msg []byte) uint32 {
	return Checksum(msg) ^ ParityField(msg)
}

// Stamp overwrites the parity field of msg with a valid CRC.
func Stamp(msg []byte) {
	n := len(msg)
	if n < 3 {
		return
	}
	p := Checksum(msg)
	msg[n-3] = byte(p >> 16)
	msg[n-2] = byte(p >> 8)
	msg[n-1] = byte(p)
}

// AddressSource tells how a frame's address was obtained
type AddressSource uint8

const (
	AddressUnknown AddressSource = iota
	AddressCRC                   // explicit address, parity verified
	AddressParity                // recovered from address/parity overlay
)

func (s AddressSource) String() string {
	switch s {
	case AddressCRC:
		return "crc"
	case AddressParity:
		return "parity"
	default:
		return "unknown"
	}
}

// Validate checks the integrity of a Mode S message and returns the
// transmitter address.
//
// DF11/17/18 carry the address explicitly and are checked against the CRC;
// DF11 tolerates an interrogator identifier in the low 7 bits. The
// surveillance and Comm-B replies overlay address and parity, so the address
// is recovered by XOR and cannot be independently verified.
func Validate(msg []byte) (ICAO, AddressSource, error) {
	if len(msg) < ShortFrameLen {
		return 0, AddressUnknown, fmt.Errorf("message of %d bytes: %w", len(msg), ErrOutOfRange)
	}

	df := DF(msg[0] >> 3)
	explicit := ICAO(bit(msg, 8, 24))

	switch df {
	case DFExtSquitter, DFExtSquitterNT:
		got, want := Checksum(msg), ParityField(msg)
		if got != want {
			return 0, AddressUnknown, &CRCError{Expected: want, Got: got}
		}
		return explicit, AddressCRC, nil

	case DFAllCall:
		if rem := Remainder(msg); rem&0xffff80 != 0 {
			return 0, AddressUnknown, &CRCError{Expected: ParityField(msg), Got: Checksum(msg)}
		}
		return explicit, AddressCRC, nil

	case DFShortAirAir, DFSurveillanceAlt, DFSurveillanceID, DFLongAirAir, DFCommBAlt, DFCommBID:
		addr := Remainder(msg)
		if addr == 0 {
			return 0, AddressUnknown, &CRCError{Expected: ParityField(msg), Got: Checksum(msg)}
		}
		return ICAO(addr), AddressParity, nil

	default:
		if df >= 24 {
			df = DFCommD
		}
		return 0, AddressUnknown, &FormatError{DF: df}
	}
}
