package sdr

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decode1090/internal/adsb"
)

const (
	identFrame   = "8D4840D6202CC371C32CE0576098"
	allCallFrame = "5DABE65A2FBFAF"
)

var demodEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// pulses builds a magnitude vector holding each frame behind a preamble,
// with 10 leading quiet samples, gap samples between frames and trail after.
func pulses(t *testing.T, hi, lo uint16, gap, trail int, frames ...[]byte) []uint16 {
	t.Helper()
	m := make([]uint16, 10)
	for k := range m {
		m[k] = lo
	}
	for _, data := range frames {
		pre := make([]uint16, preambleSamples)
		for k := range pre {
			pre[k] = lo
		}
		for _, p := range []int{0, 2, 7, 9} {
			pre[p] = hi
		}
		m = append(m, pre...)
		for _, b := range data {
			for i := 7; i >= 0; i-- {
				if b>>uint(i)&1 == 1 {
					m = append(m, hi, lo)
				} else {
					m = append(m, lo, hi)
				}
			}
		}
		for k := 0; k < gap; k++ {
			m = append(m, lo)
		}
	}
	for k := 0; k < trail; k++ {
		m = append(m, lo)
	}
	return m
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// iqFor renders a two-level magnitude vector as raw I/Q samples
func iqFor(m []uint16, hi uint16) []byte {
	iq := make([]byte, 0, len(m)*2)
	for _, v := range m {
		if v == hi {
			iq = append(iq, 255, 127)
		} else {
			iq = append(iq, 127, 127)
		}
	}
	return iq
}

// TestMagnitude tests the I/Q lookup table
func TestMagnitude(t *testing.T) {
	tests := []struct {
		name string
		iq   []byte
		want uint16
	}{
		{"centre", []byte{127, 127}, 254},
		{"centre above", []byte{128, 128}, 254},
		{"full scale I", []byte{255, 127}, 45900},
		{"corner", []byte{0, 0}, 64912},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mag := Magnitude(tt.iq)
			require.Len(t, mag, 1)
			assert.Equal(t, tt.want, mag[0])
		})
	}

	assert.Len(t, Magnitude([]byte{1, 2, 3}), 1, "odd trailing byte ignored")
}

// TestDemodulate_SingleFrame tests slicing an extended squitter
func TestDemodulate_SingleFrame(t *testing.T) {
	d := NewDemodulator(quietLogger())
	frames := d.Demodulate(pulses(t, 6000, 0, 0, 250, mustHex(t, identFrame)), demodEpoch)

	require.Len(t, frames, 1)
	assert.Equal(t, identFrame, frames[0].Hex())
	assert.Equal(t, demodEpoch, frames[0].Timestamp)
	assert.InDelta(t, -20.7664, frames[0].Signal, 0.001)

	frag, err := adsb.Decode(frames[0])
	require.NoError(t, err)
	require.NotNil(t, frag.Callsign)
	assert.Equal(t, "KLM1023", *frag.Callsign)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Preambles)
	assert.Equal(t, uint64(1), stats.Accepted)
	assert.Zero(t, stats.RejectedBad)
}

// TestDemodulate_ShortAndLong tests consecutive frames of both lengths
func TestDemodulate_ShortAndLong(t *testing.T) {
	d := NewDemodulator(quietLogger())
	m := pulses(t, 6000, 0, 20, 250, mustHex(t, identFrame), mustHex(t, allCallFrame))
	frames := d.Demodulate(m, demodEpoch)

	require.Len(t, frames, 2)
	assert.Equal(t, identFrame, frames[0].Hex())
	assert.Equal(t, allCallFrame, frames[1].Hex())
	assert.Equal(t, uint64(2), d.Stats().Accepted)
}

// TestDemodulate_CorruptFrame tests that CRC failures are counted and dropped
func TestDemodulate_CorruptFrame(t *testing.T) {
	data := mustHex(t, identFrame)
	data[5] ^= 0x10

	d := NewDemodulator(quietLogger())
	frames := d.Demodulate(pulses(t, 6000, 0, 0, 250, data), demodEpoch)

	assert.Empty(t, frames)
	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Preambles)
	assert.Equal(t, uint64(1), stats.RejectedBad)
	assert.Zero(t, stats.Accepted)
}

// TestDemodulate_Silence tests that a flat signal yields nothing
func TestDemodulate_Silence(t *testing.T) {
	d := NewDemodulator(quietLogger())
	assert.Empty(t, d.Demodulate(make([]uint16, 4096), demodEpoch))
	assert.Zero(t, d.Stats().Preambles)
}

// TestDemodulate_AcrossBuffers tests a frame split between two calls
func TestDemodulate_AcrossBuffers(t *testing.T) {
	m := pulses(t, 6000, 0, 0, 250, mustHex(t, identFrame))
	d := NewDemodulator(quietLogger())

	assert.Empty(t, d.Demodulate(m[:150], demodEpoch))
	frames := d.Demodulate(m[150:], demodEpoch.Add(time.Millisecond))
	require.Len(t, frames, 1)
	assert.Equal(t, identFrame, frames[0].Hex())
}

// TestProcessIQ tests demodulation from raw dongle samples
func TestProcessIQ(t *testing.T) {
	const hi = 45900
	m := pulses(t, hi, 254, 0, 250, mustHex(t, identFrame))

	d := NewDemodulator(quietLogger())
	frames := d.ProcessIQ(iqFor(m, hi), demodEpoch)
	require.Len(t, frames, 1)
	assert.Equal(t, identFrame, frames[0].Hex())
	assert.InDelta(t, -3.0932, frames[0].Signal, 0.001)
}

type fakeDevice struct {
	chunks     [][]byte
	configured bool
	closed     bool
	gain       int
	startErr   error
}

func (f *fakeDevice) Configure(frequency, sampleRate uint32, gain int) error {
	f.configured = frequency == Frequency && sampleRate == SampleRate
	f.gain = gain
	return nil
}

func (f *fakeDevice) StartCapture(ctx context.Context, dataChan chan<- []byte) error {
	if f.startErr != nil {
		return f.startErr
	}
	for _, c := range f.chunks {
		select {
		case dataChan <- c:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

func (f *fakeDevice) Close() error {
	f.closed = true
	return nil
}

// TestSource_Run tests frames flowing from a device to the output channel
func TestSource_Run(t *testing.T) {
	const hi = 45900
	iq := iqFor(pulses(t, hi, 254, 0, 250, mustHex(t, identFrame)), hi)
	dev := &fakeDevice{chunks: [][]byte{iq}}

	src := NewDeviceSource(dev, Config{Gain: 40}, quietLogger())
	src.Now = func() time.Time { return demodEpoch }
	assert.Equal(t, "sdr", src.Name())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *adsb.Frame, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx, out) }()

	select {
	case f := <-out:
		assert.Equal(t, identFrame, f.Hex())
		assert.Equal(t, "sdr", f.Source)
		assert.Equal(t, demodEpoch, f.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("source did not stop")
	}

	assert.True(t, dev.configured)
	assert.Equal(t, 40, dev.gain)
	assert.True(t, dev.closed)
	assert.Equal(t, uint64(1), src.Stats().Accepted)
}

// TestSource_CaptureError tests that a failing capture ends the run
func TestSource_CaptureError(t *testing.T) {
	dev := &fakeDevice{startErr: errors.New("usb gone")}
	src := NewDeviceSource(dev, Config{}, quietLogger())

	err := src.Run(context.Background(), make(chan *adsb.Frame))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usb gone")
	assert.True(t, dev.closed)
}
