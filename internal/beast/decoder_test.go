package beast

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decode1090/internal/adsb"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func encode(t *testing.T, msg *Message) []byte {
	t.Helper()
	b, err := msg.MarshalBinary()
	require.NoError(t, err)
	return b
}

// TestDecoder_ValidMessages tests decoding of each message type
func TestDecoder_ValidMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{
			name: "Mode S long",
			msg:  &Message{Type: ModeSLong, MLAT: 0x123456789A, Signal: 0x80, Data: mustHex(t, "8D4840D6202CC371C32CE0576098")},
		},
		{
			name: "Mode S short",
			msg:  &Message{Type: ModeS, MLAT: 1, Signal: 0x40, Data: mustHex(t, "5CABCDEFA197E0")},
		},
		{
			name: "Mode A/C",
			msg:  &Message{Type: ModeAC, MLAT: 2, Signal: 0x10, Data: []byte{0x12, 0x34}},
		},
		{
			name: "payload containing sync bytes",
			msg:  &Message{Type: ModeS, MLAT: 0x001A00000001, Signal: 0x1A, Data: mustHex(t, "5CABCDEFA197E0")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(quietLogger(), "test")
			msgs, err := d.Decode(encode(t, tt.msg))
			require.NoError(t, err)
			require.Len(t, msgs, 1)

			got := msgs[0]
			assert.Equal(t, tt.msg.Type, got.Type)
			assert.Equal(t, tt.msg.MLAT, got.MLAT)
			assert.Equal(t, tt.msg.Signal, got.Signal)
			assert.Equal(t, tt.msg.Data, got.Data)
			assert.Equal(t, 0, d.Pending())
		})
	}
}

// TestDecoder_EscapedBytes checks the exact wire form of an escaped frame
func TestDecoder_EscapedBytes(t *testing.T) {
	wire := mustHex(t, "1A32001A1A000000011A1A5CABCDEFA197E0")
	msg := &Message{Type: ModeS, MLAT: 0x001A00000001, Signal: 0x1A, Data: mustHex(t, "5CABCDEFA197E0")}
	assert.Equal(t, wire, encode(t, msg))

	d := NewDecoder(quietLogger(), "test")
	msgs, err := d.Decode(wire)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.Data, msgs[0].Data)
	assert.Equal(t, uint64(0x001A00000001), msgs[0].MLAT)
	assert.Equal(t, wire, msgs[0].Raw)
}

// TestDecoder_PartialChunks feeds a stream one byte at a time
func TestDecoder_PartialChunks(t *testing.T) {
	var stream []byte
	stream = append(stream, encode(t, &Message{Type: ModeSLong, Signal: 0x1A, MLAT: 0x1A1A, Data: mustHex(t, "8D4840D6202CC371C32CE0576098")})...)
	stream = append(stream, encode(t, &Message{Type: ModeS, Signal: 0x50, Data: mustHex(t, "5CABCDEFA197E0")})...)

	d := NewDecoder(quietLogger(), "test")
	var got []*Message
	for _, b := range stream {
		msgs, err := d.Decode([]byte{b})
		require.NoError(t, err)
		got = append(got, msgs...)
	}

	require.Len(t, got, 2)
	assert.Equal(t, byte(ModeSLong), got[0].Type)
	assert.Equal(t, uint64(0x1A1A), got[0].MLAT)
	assert.Equal(t, byte(ModeS), got[1].Type)
	assert.NoError(t, d.Flush())
}

// TestDecoder_InvalidMessages tests resynchronisation after framing errors
func TestDecoder_InvalidMessages(t *testing.T) {
	good := encode(t, &Message{Type: ModeS, Signal: 0x50, Data: mustHex(t, "5CABCDEFA197E0")})

	tests := []struct {
		name   string
		prefix []byte
	}{
		{"unknown type byte", []byte{0x1A, 0x39, 0x00, 0x01}},
		{"lone sync in body", []byte{0x1A, 0x32, 0x00, 0x00, 0x00}},
		{"garbage before sync", []byte{0x00, 0xFF, 0x13}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(quietLogger(), "test")
			stream := append(append([]byte{}, tt.prefix...), good...)

			msgs, err := d.Decode(stream)
			require.Len(t, msgs, 1)
			assert.Equal(t, mustHex(t, "5CABCDEFA197E0"), msgs[0].Data)
			if tt.name != "garbage before sync" {
				assert.ErrorIs(t, err, adsb.ErrFramingError)
				var fe *adsb.FramingError
				require.True(t, errors.As(err, &fe))
				assert.Equal(t, "test", fe.Source)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestDecoder_Flush tests reporting of a truncated trailing frame
func TestDecoder_Flush(t *testing.T) {
	good := encode(t, &Message{Type: ModeSLong, Data: mustHex(t, "8D4840D6202CC371C32CE0576098")})

	d := NewDecoder(quietLogger(), "test")
	msgs, err := d.Decode(good[:10])
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 10, d.Pending())

	assert.ErrorIs(t, d.Flush(), adsb.ErrFramingError)
	assert.Equal(t, 0, d.Pending())
	assert.NoError(t, d.Flush())
}

// TestUnescape tests escape handling on clean and escaped input
func TestUnescape(t *testing.T) {
	clean := mustHex(t, "8D4840D6202CC371C32CE0576098")
	assert.Equal(t, clean, Unescape(clean))
	assert.Equal(t, clean, Unescape(Unescape(clean)))

	payload := []byte{0x1A, 0x00, 0x1A, 0x1A, 0xFF}
	assert.Equal(t, payload, Unescape(Escape(payload)))
	assert.Equal(t, []byte{0x1A, 0x1A, 0x00, 0x1A, 0x1A, 0x1A, 0x1A, 0xFF}, Escape(payload))
}

// TestMessage_SignalDBFS tests the signal conversion
func TestMessage_SignalDBFS(t *testing.T) {
	assert.Equal(t, 0.0, (&Message{Signal: 0}).SignalDBFS())
	assert.InDelta(t, 0.0, (&Message{Signal: 255}).SignalDBFS(), 1e-9)
	assert.InDelta(t, -5.9866, (&Message{Signal: 0x80}).SignalDBFS(), 0.001)
}

// TestMessage_Frame tests conversion to a canonical frame
func TestMessage_Frame(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := &Message{Type: ModeSLong, MLAT: 42, Signal: 255, Data: mustHex(t, "8D4840D6202CC371C32CE0576098")}

	f := msg.Frame(ts, "beast")
	assert.Equal(t, ts, f.Timestamp)
	assert.Equal(t, uint64(42), f.MLAT)
	assert.Equal(t, "beast", f.Source)
	assert.Equal(t, adsb.DFExtSquitter, f.DF())
	assert.True(t, msg.IsModeS())

	// the frame owns its bytes
	msg.Data[0] = 0
	assert.Equal(t, adsb.DFExtSquitter, f.DF())
}

// TestAdapter_Stream tests the adapter end to end over a reader
func TestAdapter_Stream(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(encode(t, &Message{Type: ModeSLong, Signal: 0x80, Data: mustHex(t, "8D4840D6202CC371C32CE0576098")}))
	stream.Write(encode(t, &Message{Type: ModeStatus, Data: []byte{0x00, 0x00}}))
	stream.Write(encode(t, &Message{Type: ModeAC, Data: []byte{0x12, 0x34}}))
	stream.Write([]byte{0x1A, 0x33, 0x00})

	var mu sync.Mutex
	var errs []error
	a := NewAdapter(quietLogger(), func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a.Now = func() time.Time { return ts }

	out := make(chan *adsb.Frame, 10)
	require.NoError(t, a.Stream(context.Background(), &stream, "beast", out))
	close(out)

	var frames []*adsb.Frame
	for f := range out {
		frames = append(frames, f)
	}
	require.Len(t, frames, 2)
	assert.Len(t, frames[0].Data, adsb.LongFrameLen)
	assert.Equal(t, ts, frames[0].Timestamp)
	assert.Len(t, frames[1].Data, adsb.ModeACLen)

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], adsb.ErrFramingError)
}

// TestAdapter_Cancelled checks that a cancelled context stops the stream
func TestAdapter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAdapter(quietLogger(), nil)
	err := a.Stream(ctx, bytes.NewReader(encode(t, &Message{Type: ModeS, Data: mustHex(t, "5CABCDEFA197E0")})), "beast", make(chan *adsb.Frame))
	assert.ErrorIs(t, err, context.Canceled)
}
