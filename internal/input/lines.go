package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"decode1090/internal/adsb"
)

// MaxLineLength bounds one line of a text feed, terminator included.
const MaxLineLength = 64 * 1024

// LineReader splits a text stream into lines. A line longer than its limit
// is consumed and reported as a framing error, and reading carries on with
// the next line.
type LineReader struct {
	r   *bufio.Reader
	max int
}

// NewLineReader reads lines of at most MaxLineLength bytes from r
func NewLineReader(r io.Reader) *LineReader {
	return NewLineReaderSize(r, MaxLineLength)
}

// NewLineReaderSize reads lines of at most max bytes from r
func NewLineReaderSize(r io.Reader, max int) *LineReader {
	return &LineReader{r: bufio.NewReader(r), max: max}
}

// Next returns the next line, terminator included. It returns io.EOF once
// the stream is exhausted, and a *adsb.FramingError for an over-long line.
func (l *LineReader) Next() ([]byte, error) {
	var line []byte
	tooLong := false

	for {
		chunk, err := l.r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > l.max {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil, errors.Is(err, io.EOF):
			if tooLong {
				return nil, &adsb.FramingError{Reason: fmt.Sprintf("line exceeds %d bytes", l.max)}
			}
			if err != nil && len(line) == 0 {
				return nil, io.EOF
			}
			return line, nil
		default:
			return nil, err
		}
	}
}
