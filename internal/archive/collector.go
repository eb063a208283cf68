package archive

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Collector defaults
const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
)

// Collector batches records from a channel into the repository
type Collector struct {
	repo          Repository
	records       <-chan *Record
	logger        *logrus.Logger
	batchSize     int           // records per transaction
	flushInterval time.Duration // flush a partial batch after this long
}

// NewCollector creates a collector. Non-positive settings take the defaults.
func NewCollector(repo Repository, records <-chan *Record, batchSize int, flushInterval time.Duration, logger *logrus.Logger) *Collector {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Collector{
		repo:          repo,
		records:       records,
		logger:        logger,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

// Start collects until ctx is cancelled or the channel is closed, flushing
// what is left before returning.
func (c *Collector) Start(ctx context.Context) error {
	batch := make([]*Record, 0, c.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := c.repo.InsertBatch(batch); err != nil {
			c.logger.WithError(err).WithField("batch_size", len(batch)).Error("Failed to archive frames")
		} else {
			c.logger.WithField("batch_size", len(batch)).Debug("Archived frames")
		}
		batch = make([]*Record, 0, c.batchSize)
	}

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flush()
			return ctx.Err()

		case <-ticker.C:
			flush()

		case rec, ok := <-c.records:
			if !ok {
				flush()
				return nil
			}
			if rec == nil {
				continue
			}
			batch = append(batch, rec)
			if len(batch) >= c.batchSize {
				flush()
			}
		}
	}
}
