// Package rawhex reads the AVR text format: one hex frame per line wrapped
// in '*' and ';'.
package rawhex

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"decode1090/internal/adsb"
	"decode1090/internal/input"
)

// Frame body lengths in hex characters
const (
	modeACChars = 2 * adsb.ModeACLen
	shortChars  = 2 * adsb.ShortFrameLen
	longChars   = 2 * adsb.LongFrameLen
)

// Split extracts the bodies of complete "*...;" frames from buf. Whitespace
// is ignored. Mode A/C bodies are dropped silently and malformed bodies are
// reported in err while splitting continues. Text after the last complete
// frame is returned as leftover for the next call.
func Split(buf string) (frames []string, leftover string, err error) {
	var errs []error
	for {
		start := strings.IndexByte(buf, '*')
		if start < 0 {
			return frames, "", errors.Join(errs...)
		}
		end := strings.IndexByte(buf[start+1:], ';')
		if end < 0 {
			return frames, buf[start:], errors.Join(errs...)
		}

		body := stripSpace(buf[start+1 : start+1+end])
		buf = buf[start+1+end+1:]

		if len(body) == modeACChars {
			continue
		}
		if err := checkBody(body); err != nil {
			errs = append(errs, err)
			continue
		}
		frames = append(frames, body)
	}
}

// Parse converts a hex frame, with or without the '*' and ';' delimiters,
// into frame bytes.
func Parse(s string) ([]byte, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(stripSpace(s), "*"), ";")
	if err := checkBody(s); err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, &adsb.FramingError{Reason: err.Error()}
	}
	return data, nil
}

func checkBody(body string) error {
	if len(body) != shortChars && len(body) != longChars {
		return &adsb.FramingError{Reason: fmt.Sprintf("hex frame %q has %d characters", body, len(body))}
	}
	for i := 0; i < len(body); i++ {
		if !isHex(body[i]) {
			return &adsb.FramingError{Reason: fmt.Sprintf("non-hex character %q in frame", body[i])}
		}
	}
	return nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func stripSpace(s string) string {
	if strings.IndexFunc(s, isSpace) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}

// Adapter reads raw hex lines
type Adapter struct {
	Logger  *logrus.Logger
	OnError input.ErrorHandler
	Now     func() time.Time
}

// NewAdapter creates a raw hex adapter
func NewAdapter(logger *logrus.Logger, onError input.ErrorHandler) *Adapter {
	return &Adapter{Logger: logger, OnError: onError, Now: time.Now}
}

// Stream reads r line by line. Delimited frames may span lines; bare hex
// lines without delimiters are accepted as single frames.
func (a *Adapter) Stream(ctx context.Context, r io.Reader, source string, out chan<- *adsb.Frame) error {
	now := a.Now
	if now == nil {
		now = time.Now
	}

	lines := input.NewLineReader(r)
	pending := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := lines.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if input.IsFraming(err) {
			// The rest of a split frame went with the dropped line.
			pending = ""
			a.report(source, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read raw stream: %w", err)
		}

		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}

		var bodies []string
		if pending == "" && !strings.ContainsAny(line, "*;") {
			if len(line) == modeACChars {
				continue
			}
			if err := checkBody(stripSpace(line)); err != nil {
				a.report(source, err)
				continue
			}
			bodies = []string{stripSpace(line)}
		} else {
			bodies, pending, err = Split(pending + line)
			a.report(source, err)
		}

		ts := now()
		for _, body := range bodies {
			data, err := hex.DecodeString(body)
			if err != nil {
				a.report(source, &adsb.FramingError{Reason: err.Error()})
				continue
			}
			f := adsb.NewFrame(data, ts)
			f.Source = source
			if !input.Send(ctx, out, f) {
				return ctx.Err()
			}
		}
	}

	if pending != "" {
		a.report(source, &adsb.FramingError{Reason: "truncated frame at end of stream"})
	}
	return nil
}

func (a *Adapter) report(source string, err error) {
	input.EachError(err, func(e error) {
		if fe, ok := e.(*adsb.FramingError); ok && fe.Source == "" {
			fe.Source = source
		}
		if a.Logger != nil {
			a.Logger.WithField("source", source).WithError(e).Debug("Skipping raw frame")
		}
		if a.OnError != nil {
			a.OnError(e)
		}
	})
}
