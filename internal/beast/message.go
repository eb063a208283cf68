package beast

import (
	"math"
	"time"

	"decode1090/internal/adsb"
)

// Beast mode message types
const (
	SyncByte   = 0x1A // Beast mode sync byte
	ModeAC     = 0x31 // Mode A/C
	ModeS      = 0x32 // Mode S Short (56 bits)
	ModeSLong  = 0x33 // Mode S Long (112 bits)
	ModeStatus = 0x34 // Status
)

// Header sizes after the type byte
const (
	mlatLen   = 6
	signalLen = 1
	headerLen = mlatLen + signalLen
)

// payloadLength returns the payload size for a message type, or 0 if unknown.
func payloadLength(messageType byte) int {
	switch messageType {
	case ModeAC, ModeStatus:
		return adsb.ModeACLen
	case ModeS:
		return adsb.ShortFrameLen
	case ModeSLong:
		return adsb.LongFrameLen
	default:
		return 0
	}
}

// Message represents one unescaped Beast frame
type Message struct {
	Type   byte
	MLAT   uint64 // 48-bit 12MHz counter
	Signal byte
	Data   []byte
	Raw    []byte // escaped bytes as received, including the sync byte
}

// IsModeS reports whether the message carries a Mode S payload.
func (m *Message) IsModeS() bool {
	return m.Type == ModeS || m.Type == ModeSLong
}

// SignalDBFS converts the signal byte to dBFS. Zero means unknown.
func (m *Message) SignalDBFS() float64 {
	if m.Signal == 0 {
		return 0
	}
	return 20 * math.Log10(float64(m.Signal)/255)
}

// Frame converts the message into a canonical frame received at ts.
func (m *Message) Frame(ts time.Time, source string) *adsb.Frame {
	f := adsb.NewFrame(m.Data, ts)
	f.MLAT = m.MLAT
	f.Signal = m.SignalDBFS()
	f.Source = source
	return f
}

// MarshalBinary encodes the message in Beast wire format with escaping.
func (m *Message) MarshalBinary() ([]byte, error) {
	body := make([]byte, 0, headerLen+len(m.Data))
	for i := mlatLen - 1; i >= 0; i-- {
		body = append(body, byte(m.MLAT>>(8*uint(i))))
	}
	body = append(body, m.Signal)
	body = append(body, m.Data...)

	out := []byte{SyncByte, m.Type}
	return append(out, Escape(body)...), nil
}

// Escape doubles every sync byte in b.
func Escape(b []byte) []byte {
	out := make([]byte, 0, len(b)+4)
	for _, c := range b {
		out = append(out, c)
		if c == SyncByte {
			out = append(out, SyncByte)
		}
	}
	return out
}

// Unescape collapses doubled sync bytes. Input without escapes is returned
// unchanged.
func Unescape(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		out = append(out, b[i])
		if b[i] == SyncByte && i+1 < len(b) && b[i+1] == SyncByte {
			i++
		}
	}
	return out
}
