// Package input connects byte streams to the wire-format adapters that turn
// them into frames.
package input

import (
	"context"
	"errors"
	"io"

	"decode1090/internal/adsb"
)

// Source produces frames until its stream ends or ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- *adsb.Frame) error
}

// Adapter decodes one wire format from r. It returns nil at end of stream
// and never stops on a per-frame error.
type Adapter interface {
	Stream(ctx context.Context, r io.Reader, source string, out chan<- *adsb.Frame) error
}

// ErrorHandler receives per-frame errors that do not stop an adapter.
type ErrorHandler func(error)

// Send delivers f unless ctx is done first. It reports whether f was sent.
func Send(ctx context.Context, out chan<- *adsb.Frame, f *adsb.Frame) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// EachError calls fn for every error joined into err.
func EachError(err error, fn ErrorHandler) {
	if err == nil || fn == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			EachError(e, fn)
		}
		return
	}
	fn(err)
}

// IsFraming reports whether err is a framing failure.
func IsFraming(err error) bool {
	return errors.Is(err, adsb.ErrFramingError)
}
