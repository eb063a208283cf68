package rawhex

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decode1090/internal/adsb"
	"decode1090/internal/input"
)

// TestSplit tests frame extraction from a text buffer
func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		buf      string
		frames   []string
		leftover string
		wantErr  bool
	}{
		{
			name:   "single long frame",
			buf:    "*8D4840D6202CC371C32CE0576098;\n",
			frames: []string{"8D4840D6202CC371C32CE0576098"},
		},
		{
			name:   "short and long frames",
			buf:    "*5CABCDEFA197E0;\n*8D4840D6202CC371C32CE0576098;",
			frames: []string{"5CABCDEFA197E0", "8D4840D6202CC371C32CE0576098"},
		},
		{
			name:   "mode A/C ignored",
			buf:    "*2000;*5CABCDEFA197E0;",
			frames: []string{"5CABCDEFA197E0"},
		},
		{
			name:   "whitespace inside frame",
			buf:    "*8D4840D6 202CC371\nC32CE0576098;",
			frames: []string{"8D4840D6202CC371C32CE0576098"},
		},
		{
			name:     "incomplete trailing frame",
			buf:      "*5CABCDEFA197E0;*8D4840D6202C",
			frames:   []string{"5CABCDEFA197E0"},
			leftover: "*8D4840D6202C",
		},
		{
			name:    "bad length skipped",
			buf:     "*8D4840D6202CC3;*5CABCDEFA197E0;",
			frames:  []string{"5CABCDEFA197E0"},
			wantErr: true,
		},
		{
			name:    "non-hex skipped",
			buf:     "*5CABCDEFA197EZ;*5CABCDEFA197E0;",
			frames:  []string{"5CABCDEFA197E0"},
			wantErr: true,
		},
		{
			name: "no frames",
			buf:  "noise without delimiters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, leftover, err := Split(tt.buf)
			assert.Equal(t, tt.frames, frames)
			assert.Equal(t, tt.leftover, leftover)
			if tt.wantErr {
				assert.ErrorIs(t, err, adsb.ErrFramingError)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestSplitLeftoverResumes checks that leftover completes on the next call
func TestSplitLeftoverResumes(t *testing.T) {
	frames, leftover, err := Split("*5CABCDEFA197E0;*8D4840D6202C")
	require.NoError(t, err)
	require.Len(t, frames, 1)

	frames, leftover, err = Split(leftover + "C371C32CE0576098;")
	require.NoError(t, err)
	assert.Equal(t, []string{"8D4840D6202CC371C32CE0576098"}, frames)
	assert.Empty(t, leftover)
}

// TestParse tests hex conversion
func TestParse(t *testing.T) {
	data, err := Parse("*8D4840D6202CC371C32CE0576098;")
	require.NoError(t, err)
	assert.Len(t, data, adsb.LongFrameLen)
	assert.Equal(t, byte(0x8D), data[0])

	data, err = Parse("5cabcdefa197e0")
	require.NoError(t, err)
	assert.Len(t, data, adsb.ShortFrameLen)

	_, err = Parse("8D48")
	assert.ErrorIs(t, err, adsb.ErrFramingError)

	_, err = Parse("")
	assert.ErrorIs(t, err, adsb.ErrFramingError)
}

// TestAdapter_Stream tests delimited and bare lines end to end
func TestAdapter_Stream(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	var errs []error
	a := NewAdapter(logger, func(err error) { errs = append(errs, err) })
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a.Now = func() time.Time { return ts }

	text := strings.Join([]string{
		"*8D4840D6202CC371C32CE0576098;",
		"5CABCDEFA197E0",
		"*2000;",
		"*8DAB44A7E1028900",
		"0000008922C1;",
		"*ZZZZZZZZZZZZZZ;",
		"*8D4840D6",
	}, "\n")

	out := make(chan *adsb.Frame, 10)
	require.NoError(t, a.Stream(context.Background(), strings.NewReader(text), "raw", out))
	close(out)

	var hexes []string
	for f := range out {
		assert.Equal(t, ts, f.Timestamp)
		assert.Equal(t, "raw", f.Source)
		hexes = append(hexes, f.Hex())
	}
	assert.Equal(t, []string{
		"8D4840D6202CC371C32CE0576098",
		"5CABCDEFA197E0",
		"8DAB44A7E10289000000008922C1",
	}, hexes)

	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.True(t, input.IsFraming(err))
	}
}

// TestAdapter_StreamLongLine tests that an over-long line does not end the
// stream
func TestAdapter_StreamLongLine(t *testing.T) {
	var errs []error
	a := NewAdapter(nil, func(err error) { errs = append(errs, err) })

	text := "*8D4840D6" + strings.Repeat("0", 70*1024) + "\n*8D4840D6202CC371C32CE0576098;\n"

	out := make(chan *adsb.Frame, 10)
	require.NoError(t, a.Stream(context.Background(), strings.NewReader(text), "raw", out))
	close(out)

	var hexes []string
	for f := range out {
		hexes = append(hexes, f.Hex())
	}
	assert.Equal(t, []string{"8D4840D6202CC371C32CE0576098"}, hexes)

	require.Len(t, errs, 1)
	assert.True(t, input.IsFraming(errs[0]))
}
