// Package sdr captures 1090MHz samples from an RTL-SDR dongle and
// demodulates Mode S frames from them.
package sdr

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"decode1090/internal/adsb"
)

// Receiver constants
const (
	Frequency  = 1090000000 // 1090 MHz
	SampleRate = 2000000    // 2 MHz, two samples per microsecond

	preambleSamples = 16
	shortBits       = 56
	longBits        = 112

	// Samples needed past a candidate preamble to slice a long frame
	window = preambleSamples + longBits*2

	// Minimum average pulse delta for a sliced message to be trusted
	minDelta = 10 * 255
)

// magLUT maps an interleaved uint8 I/Q pair (i<<8 | q) to magnitude
var magLUT [256 * 256]uint16

func init() {
	for i := 0; i < 256; i++ {
		for q := 0; q < 256; q++ {
			fi := float64(i) - 127.5
			fq := float64(q) - 127.5
			mag := math.Sqrt(fi*fi+fq*fq) * 360
			if mag > math.MaxUint16 {
				mag = math.MaxUint16
			}
			magLUT[i<<8|q] = uint16(mag)
		}
	}
}

// Magnitude converts interleaved uint8 I/Q samples to magnitudes. A trailing
// odd byte is ignored.
func Magnitude(iq []byte) []uint16 {
	mag := make([]uint16, len(iq)/2)
	for k := range mag {
		mag[k] = magLUT[int(iq[2*k])<<8|int(iq[2*k+1])]
	}
	return mag
}

// Stats counts demodulator outcomes
type Stats struct {
	Preambles       uint64 `json:"preambles"`
	Accepted        uint64 `json:"accepted"`
	RejectedBad     uint64 `json:"rejected_bad"`
	RejectedUnknown uint64 `json:"rejected_unknown"`
}

// Demodulator finds Mode S frames in a 2MHz magnitude stream. Samples that
// could hold the start of a frame at the end of one buffer are carried into
// the next call.
type Demodulator struct {
	logger *logrus.Logger
	tail   []uint16

	preambles       atomic.Uint64
	accepted        atomic.Uint64
	rejectedBad     atomic.Uint64
	rejectedUnknown atomic.Uint64
}

// NewDemodulator creates a demodulator
func NewDemodulator(logger *logrus.Logger) *Demodulator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Demodulator{logger: logger}
}

// Stats returns a copy of the counters
func (d *Demodulator) Stats() Stats {
	return Stats{
		Preambles:       d.preambles.Load(),
		Accepted:        d.accepted.Load(),
		RejectedBad:     d.rejectedBad.Load(),
		RejectedUnknown: d.rejectedUnknown.Load(),
	}
}

// ProcessIQ demodulates a chunk of raw uint8 I/Q samples
func (d *Demodulator) ProcessIQ(iq []byte, ts time.Time) []*adsb.Frame {
	return d.Demodulate(Magnitude(iq), ts)
}

// Demodulate scans mag for frames. Frames whose integrity check fails are
// counted and dropped; address/parity formats pass through and are judged
// downstream.
func (d *Demodulator) Demodulate(mag []uint16, ts time.Time) []*adsb.Frame {
	m := mag
	if len(d.tail) > 0 {
		m = make([]uint16, 0, len(d.tail)+len(mag))
		m = append(m, d.tail...)
		m = append(m, mag...)
	}

	var frames []*adsb.Frame
	j := 0
	for ; j < len(m)-window; j++ {
		if !preamble(m[j:]) {
			continue
		}
		d.preambles.Add(1)

		data, bits, ok := slice(m[j+preambleSamples:])
		if !ok {
			d.rejectedUnknown.Add(1)
			continue
		}
		if _, _, err := adsb.Validate(data); err != nil {
			d.rejectedBad.Add(1)
			d.logger.WithFields(logrus.Fields{
				"offset": j,
				"df":     data[0] >> 3,
			}).WithError(err).Debug("Demodulated frame failed integrity check")
			continue
		}

		f := adsb.NewFrame(data, ts)
		f.Signal = signalLevel(m[j+preambleSamples : j+preambleSamples+bits*2])
		frames = append(frames, f)
		d.accepted.Add(1)

		// Skip past the message
		j += preambleSamples + bits*2 - 1
	}

	if j < len(m) {
		d.tail = append(d.tail[:0:0], m[j:]...)
	} else {
		d.tail = nil
	}
	return frames
}

// preamble checks for the four-pulse Mode S preamble at m[0:16]: pulses at
// samples 0, 2, 7 and 9 with quiet gaps around them.
func preamble(m []uint16) bool {
	if !(m[0] > m[1] &&
		m[1] < m[2] &&
		m[2] > m[3] &&
		m[3] < m[0] &&
		m[4] < m[0] &&
		m[5] < m[0] &&
		m[6] < m[0] &&
		m[7] > m[8] &&
		m[8] < m[9] &&
		m[9] > m[6]) {
		return false
	}

	high := (int(m[0]) + int(m[2]) + int(m[7]) + int(m[9])) / 6
	if int(m[4]) >= high || int(m[5]) >= high {
		return false
	}
	for k := 11; k <= 14; k++ {
		if int(m[k]) >= high {
			return false
		}
	}
	return true
}

// slice reads pulse-position bits from m. The length comes from the DF in
// the first five bits; unknown formats are rejected.
func slice(m []uint16) ([]byte, int, bool) {
	var msg [adsb.LongFrameLen]byte
	var delta int
	bits := longBits
	prev := byte(0)

	for k := 0; k < bits; k++ {
		first, second := int(m[2*k]), int(m[2*k+1])
		d := first - second
		if d < 0 {
			d = -d
		}
		delta += d

		var b byte
		switch {
		case k > 0 && d < 256:
			b = prev
		case first > second:
			b = 1
		}
		prev = b
		if b == 1 {
			msg[k/8] |= 1 << (7 - uint(k%8))
		}

		if k == 4 {
			n, ok := frameBits(adsb.DF(msg[0] >> 3))
			if !ok {
				return nil, 0, false
			}
			bits = n
		}
	}

	if delta/(bits/2) < minDelta {
		return nil, 0, false
	}
	return append([]byte(nil), msg[:bits/8]...), bits, true
}

func frameBits(df adsb.DF) (int, bool) {
	switch df {
	case adsb.DFShortAirAir, adsb.DFSurveillanceAlt, adsb.DFSurveillanceID, adsb.DFAllCall:
		return shortBits, true
	case adsb.DFLongAirAir, adsb.DFExtSquitter, adsb.DFExtSquitterNT, adsb.DFMilitary,
		adsb.DFCommBAlt, adsb.DFCommBID:
		return longBits, true
	}
	if df >= adsb.DFCommD {
		return longBits, true
	}
	return 0, false
}

// signalLevel is the mean power of the pulse samples in dBFS
func signalLevel(m []uint16) float64 {
	if len(m) < 2 {
		return 0
	}
	var sum float64
	n := 0
	for k := 0; k+1 < len(m); k += 2 {
		v := float64(max(m[k], m[k+1])) / math.MaxUint16
		sum += v * v
		n++
	}
	if sum == 0 {
		return 0
	}
	return 10 * math.Log10(sum/float64(n))
}
