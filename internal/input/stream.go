package input

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"decode1090/internal/adsb"
)

// Reconnect backoff bounds for TCP sources
const (
	DefaultRetryBackoff = 1 * time.Second
	MaxRetryBackoff     = 30 * time.Second
	DialTimeout         = 5 * time.Second
)

// StreamSource feeds a TCP connection, a file or stdin to an adapter.
//
// Addr is "tcp://host:port", "-" for stdin, or a file path. Files ending in
// .zst or .gz are decompressed on the fly.
type StreamSource struct {
	name    string
	addr    string
	adapter Adapter
	logger  *logrus.Logger

	retryBackoff time.Duration
}

// NewStreamSource creates a source named name reading addr through adapter.
func NewStreamSource(name, addr string, adapter Adapter, logger *logrus.Logger) *StreamSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StreamSource{
		name:         name,
		addr:         addr,
		adapter:      adapter,
		logger:       logger,
		retryBackoff: DefaultRetryBackoff,
	}
}

// Name returns the source name used in logs and frame metadata.
func (s *StreamSource) Name() string {
	return s.name
}

// Run streams until the input ends or ctx is cancelled. TCP sources
// reconnect with exponential backoff and only return on cancellation.
func (s *StreamSource) Run(ctx context.Context, out chan<- *adsb.Frame) error {
	if hostport, ok := strings.CutPrefix(s.addr, "tcp://"); ok {
		return s.runTCP(ctx, hostport, out)
	}
	return s.runFile(ctx, out)
}

func (s *StreamSource) runFile(ctx context.Context, out chan<- *adsb.Frame) error {
	rc, err := OpenFile(s.addr)
	if err != nil {
		return err
	}
	defer rc.Close()

	s.logger.WithFields(logrus.Fields{
		"source": s.name,
		"path":   s.addr,
	}).Info("Reading input file")

	if err := s.adapter.Stream(ctx, rc, s.name, out); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}

func (s *StreamSource) runTCP(ctx context.Context, hostport string, out chan<- *adsb.Frame) error {
	retryCount := 0
	backoff := s.retryBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		dialer := net.Dialer{Timeout: DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", hostport)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			retryCount++
			s.logger.WithFields(logrus.Fields{
				"source": s.name,
				"addr":   hostport,
				"retry":  retryCount,
			}).WithError(err).Warn("Failed to connect, retrying")

			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			// Exponential backoff: 1s, 2s, 4s, 8s, max 30s
			backoff *= 2
			if backoff > MaxRetryBackoff {
				backoff = MaxRetryBackoff
			}
			continue
		}

		retryCount = 0
		backoff = s.retryBackoff
		s.logger.WithFields(logrus.Fields{
			"source": s.name,
			"addr":   hostport,
		}).Info("Connected to input")

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		err = s.adapter.Stream(ctx, conn, s.name, out)
		stop()
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.WithField("source", s.name).WithError(err).Warn("Connection error, reconnecting")
		} else {
			s.logger.WithField("source", s.name).Warn("Connection closed, reconnecting")
		}
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error {
	return r.close()
}

// OpenFile opens path for reading, "-" meaning stdin. Files ending in .zst
// and .gz are transparently decompressed.
func OpenFile(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input %s: %w", path, err)
	}

	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open zstd stream %s: %w", path, err)
		}
		return readCloser{Reader: zr, close: func() error {
			zr.Close()
			return f.Close()
		}}, nil

	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		return readCloser{Reader: gr, close: func() error {
			gr.Close()
			return f.Close()
		}}, nil

	default:
		return f, nil
	}
}
