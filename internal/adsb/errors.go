package adsb

import (
	"errors"
	"fmt"
)

// Error kinds returned by the decoder. Callers match them with errors.Is.
var (
	ErrOutOfRange        = errors.New("bit range out of bounds")
	ErrCRCMismatch       = errors.New("crc mismatch")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrMalformedField    = errors.New("malformed field")
	ErrFramingError      = errors.New("framing error")
	ErrInsufficientData  = errors.New("insufficient data")
)

// FieldError reports a sub-field whose encoded value is outside its legal domain.
type FieldError struct {
	Field string
	Value uint64
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("malformed %s field: %#x", e.Field, e.Value)
}

func (e *FieldError) Unwrap() error { return ErrMalformedField }

// FormatError reports a downlink format or type code the decoder does not handle.
type FormatError struct {
	DF DF
	TC uint8
}

func (e *FormatError) Error() string {
	if e.TC != 0 {
		return fmt.Sprintf("unsupported format: DF%d TC%d", e.DF, e.TC)
	}
	return fmt.Sprintf("unsupported format: DF%d", e.DF)
}

func (e *FormatError) Unwrap() error { return ErrUnsupportedFormat }

// CRCError reports a parity field that does not match the recomputed remainder.
type CRCError struct {
	Expected uint32
	Got      uint32
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("crc mismatch: expected %06X, got %06X", e.Expected, e.Got)
}

func (e *CRCError) Unwrap() error { return ErrCRCMismatch }

// FramingError is returned by the input adapters when a frame cannot be
// delimited. The adapter resynchronises and keeps reading.
type FramingError struct {
	Source string
	Reason string
}

func (e *FramingError) Error() string {
	if e.Source == "" {
		return "framing error: " + e.Reason
	}
	return fmt.Sprintf("framing error (%s): %s", e.Source, e.Reason)
}

func (e *FramingError) Unwrap() error { return ErrFramingError }
