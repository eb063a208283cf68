// Package jsonfeed reads newline-delimited JSON records that embed a raw
// Mode S frame.
package jsonfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"decode1090/internal/adsb"
	"decode1090/internal/input"
	"decode1090/internal/rawhex"
)

// Record is one line of the feed. Only the raw message and its reception
// metadata are read; any decoded fields a producer adds are ignored.
type Record struct {
	Message   string          `json:"message"`
	Raw       string          `json:"raw"`
	Timestamp json.RawMessage `json:"timestamp"`
	RSSI      *float64        `json:"rssi"`
	Signal    *float64        `json:"signal"`
}

// ParseRecord decodes one JSON line into a frame. fallback is used when the
// record has no timestamp.
func ParseRecord(line []byte, fallback time.Time) (*adsb.Frame, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, &adsb.FramingError{Reason: fmt.Sprintf("invalid json record: %v", err)}
	}

	msg := rec.Message
	if msg == "" {
		msg = rec.Raw
	}
	if msg == "" {
		return nil, &adsb.FramingError{Reason: "record has no message"}
	}

	data, err := rawhex.Parse(msg)
	if err != nil {
		return nil, err
	}

	ts, err := parseTimestamp(rec.Timestamp, fallback)
	if err != nil {
		return nil, err
	}

	f := adsb.NewFrame(data, ts)
	switch {
	case rec.RSSI != nil:
		f.Signal = *rec.RSSI
	case rec.Signal != nil:
		f.Signal = *rec.Signal
	}
	return f, nil
}

// parseTimestamp accepts unix seconds as a number or an RFC 3339 string.
func parseTimestamp(raw json.RawMessage, fallback time.Time) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallback, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, &adsb.FramingError{Reason: fmt.Sprintf("invalid timestamp: %v", err)}
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, &adsb.FramingError{Reason: fmt.Sprintf("invalid timestamp %q", s)}
		}
		return ts, nil
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return time.Time{}, &adsb.FramingError{Reason: fmt.Sprintf("invalid timestamp: %v", err)}
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC(), nil
}

// Adapter reads JSON lines
type Adapter struct {
	Logger  *logrus.Logger
	OnError input.ErrorHandler
	Now     func() time.Time
}

// NewAdapter creates a JSON feed adapter
func NewAdapter(logger *logrus.Logger, onError input.ErrorHandler) *Adapter {
	return &Adapter{Logger: logger, OnError: onError, Now: time.Now}
}

// Stream reads one record per line, skipping records that fail to parse.
func (a *Adapter) Stream(ctx context.Context, r io.Reader, source string, out chan<- *adsb.Frame) error {
	now := a.Now
	if now == nil {
		now = time.Now
	}

	lines := input.NewLineReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := lines.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !input.IsFraming(err) {
			return fmt.Errorf("failed to read json stream: %w", err)
		}

		var f *adsb.Frame
		if err == nil {
			line := bytes.TrimSpace(raw)
			if len(line) == 0 {
				continue
			}
			f, err = ParseRecord(line, now())
		}
		if err != nil {
			a.report(source, err)
			continue
		}

		f.Source = source
		if !input.Send(ctx, out, f) {
			return ctx.Err()
		}
	}
}

func (a *Adapter) report(source string, err error) {
	var fe *adsb.FramingError
	if errors.As(err, &fe) && fe.Source == "" {
		fe.Source = source
	}
	if a.Logger != nil {
		a.Logger.WithField("source", source).WithError(err).Debug("Skipping json record")
	}
	if a.OnError != nil {
		a.OnError(err)
	}
}
