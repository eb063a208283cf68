package beast

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"decode1090/internal/adsb"
)

// Decoder splits a Beast byte stream into messages. A partial frame at the
// end of one chunk is kept and completed by the next call.
type Decoder struct {
	logger *logrus.Logger
	source string
	buffer []byte
}

// NewDecoder creates a new Beast decoder
func NewDecoder(logger *logrus.Logger, source string) *Decoder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Decoder{
		logger: logger,
		source: source,
		buffer: make([]byte, 0, 4096),
	}
}

// Decode appends data to the pending buffer and returns every complete
// message. Frames that cannot be delimited are skipped; their errors are
// joined into the returned error and decoding resumes at the next sync byte.
func (d *Decoder) Decode(data []byte) ([]*Message, error) {
	d.buffer = append(d.buffer, data...)

	var (
		messages []*Message
		errs     []error
	)

	buf := d.buffer
	pos := 0
	for {
		idx := bytes.IndexByte(buf[pos:], SyncByte)
		if idx < 0 {
			pos = len(buf)
			break
		}
		start := pos + idx
		if start+1 >= len(buf) {
			pos = start
			break
		}

		messageType := buf[start+1]
		if messageType == SyncByte {
			// escaped pair from a frame we never synced to
			pos = start + 2
			continue
		}

		plen := payloadLength(messageType)
		if plen == 0 {
			errs = append(errs, d.framingError(fmt.Sprintf("unknown message type 0x%02x", messageType)))
			pos = start + 1
			continue
		}

		body, next, state := readBody(buf, start+2, headerLen+plen)
		if state == bodyIncomplete {
			pos = start
			break
		}
		if state == bodyBroken {
			errs = append(errs, d.framingError(fmt.Sprintf("unescaped sync byte inside type 0x%02x frame", messageType)))
			pos = next
			continue
		}

		raw := make([]byte, next-start)
		copy(raw, buf[start:next])
		messages = append(messages, parseBody(messageType, body, raw))
		pos = next
	}

	d.buffer = append(d.buffer[:0], buf[pos:]...)

	if len(messages) > 0 {
		d.logger.WithFields(logrus.Fields{
			"messages":    len(messages),
			"buffer_size": len(d.buffer),
		}).Debug("Decoded Beast messages")
	}

	return messages, errors.Join(errs...)
}

// Flush reports a partial frame left in the buffer and clears it.
func (d *Decoder) Flush() error {
	if len(d.buffer) == 0 {
		return nil
	}
	n := len(d.buffer)
	d.buffer = d.buffer[:0]
	return d.framingError(fmt.Sprintf("truncated frame of %d bytes at end of stream", n))
}

// Pending returns the number of buffered bytes awaiting completion.
func (d *Decoder) Pending() int {
	return len(d.buffer)
}

func (d *Decoder) framingError(reason string) error {
	return &adsb.FramingError{Source: d.source, Reason: reason}
}

type bodyState uint8

const (
	bodyComplete bodyState = iota
	bodyIncomplete
	bodyBroken
)

// readBody collects n unescaped bytes from buf starting at pos. It returns
// the body, the index after the last consumed byte and the outcome. A lone
// sync byte breaks the body; next then points at that byte so it can start
// the following frame.
func readBody(buf []byte, pos, n int) ([]byte, int, bodyState) {
	body := make([]byte, 0, n)
	for len(body) < n {
		if pos >= len(buf) {
			return nil, pos, bodyIncomplete
		}
		c := buf[pos]
		if c == SyncByte {
			if pos+1 >= len(buf) {
				return nil, pos, bodyIncomplete
			}
			if buf[pos+1] != SyncByte {
				return nil, pos, bodyBroken
			}
			pos += 2
		} else {
			pos++
		}
		body = append(body, c)
	}
	return body, pos, bodyComplete
}

// parseBody splits an unescaped body into header fields and payload.
func parseBody(messageType byte, body, raw []byte) *Message {
	var mlat uint64
	for i := 0; i < mlatLen; i++ {
		mlat = mlat<<8 | uint64(body[i])
	}

	data := make([]byte, len(body)-headerLen)
	copy(data, body[headerLen:])

	return &Message{
		Type:   messageType,
		MLAT:   mlat,
		Signal: body[mlatLen],
		Data:   data,
		Raw:    raw,
	}
}
