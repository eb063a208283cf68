package beast

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"decode1090/internal/adsb"
	"decode1090/internal/input"
)

// Adapter reads Beast binary streams
type Adapter struct {
	Logger  *logrus.Logger
	OnError input.ErrorHandler
	Now     func() time.Time
}

// NewAdapter creates a Beast adapter
func NewAdapter(logger *logrus.Logger, onError input.ErrorHandler) *Adapter {
	return &Adapter{Logger: logger, OnError: onError, Now: time.Now}
}

// Stream decodes r until EOF, emitting Mode S and Mode A/C frames.
func (a *Adapter) Stream(ctx context.Context, r io.Reader, source string, out chan<- *adsb.Frame) error {
	dec := NewDecoder(a.Logger, source)
	now := a.Now
	if now == nil {
		now = time.Now
	}

	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			msgs, ferr := dec.Decode(buf[:n])
			input.EachError(ferr, a.OnError)

			ts := now()
			for _, msg := range msgs {
				if msg.Type == ModeStatus {
					continue
				}
				if !input.Send(ctx, out, msg.Frame(ts, source)) {
					return ctx.Err()
				}
			}
		}

		if err == io.EOF {
			input.EachError(dec.Flush(), a.OnError)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read beast stream: %w", err)
		}
	}
}
