package adsb

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frame lengths in bytes
const (
	ModeACLen     = 2
	ShortFrameLen = 7  // 56 bits
	LongFrameLen  = 14 // 112 bits
)

// DF is a Mode S downlink format
type DF uint8

// Downlink formats handled by the decoder
const (
	DFShortAirAir     DF = 0
	DFSurveillanceAlt DF = 4
	DFSurveillanceID  DF = 5
	DFAllCall         DF = 11
	DFLongAirAir      DF = 16
	DFExtSquitter     DF = 17
	DFExtSquitterNT   DF = 18
	DFMilitary        DF = 19
	DFCommBAlt        DF = 20
	DFCommBID         DF = 21
	DFCommD           DF = 24
)

// Long reports whether frames of this format carry 112 bits.
func (df DF) Long() bool {
	return df >= 16
}

// ICAO is a 24-bit transponder address
type ICAO uint32

func (a ICAO) String() string {
	return fmt.Sprintf("%06X", uint32(a))
}

// MarshalText renders the address as six hex digits.
func (a ICAO) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses six hex digits.
func (a *ICAO) UnmarshalText(b []byte) error {
	v, err := ParseICAO(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseICAO parses a hex ICAO address, with or without a leading '~'.
func ParseICAO(s string) (ICAO, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "~")
	v, err := strconv.ParseUint(s, 16, 24)
	if err != nil {
		return 0, fmt.Errorf("invalid ICAO address %q: %w", s, err)
	}
	return ICAO(v), nil
}

// Frame is one received message with its reception metadata. Frames are
// created by the input adapters and are not modified afterwards.
type Frame struct {
	Data      []byte
	Timestamp time.Time
	MLAT      uint64  // 12MHz counter from Beast input, zero otherwise
	Signal    float64 // dBFS, zero when unknown
	Source    string
}

// NewFrame copies data into a new frame.
func NewFrame(data []byte, ts time.Time) *Frame {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Frame{Data: buf, Timestamp: ts}
}

// DF extracts the downlink format. Formats 24 and above share the DF24 layout.
func (f *Frame) DF() DF {
	if len(f.Data) == 0 {
		return 0
	}
	df := f.Data[0] >> 3
	if df >= 24 {
		return DFCommD
	}
	return DF(df)
}

// ICAO returns the address field of DF11/17/18 frames. Other formats overlay
// the address with parity; see Validate.
func (f *Frame) ICAO() ICAO {
	if len(f.Data) < 4 {
		return 0
	}
	return ICAO(uint32(f.Data[1])<<16 | uint32(f.Data[2])<<8 | uint32(f.Data[3]))
}

// TypeCode extracts the ME type code for DF17/18 frames.
func (f *Frame) TypeCode() uint8 {
	df := f.DF()
	if (df != DFExtSquitter && df != DFExtSquitterNT) || len(f.Data) < 5 {
		return 0
	}
	return f.Data[4] >> 3
}

// Hex renders the payload as upper case hex.
func (f *Frame) Hex() string {
	return strings.ToUpper(hex.EncodeToString(f.Data))
}
