package archive

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository records inserted batches
type mockRepository struct {
	mu      sync.Mutex
	records []*Record
	batches int
	errors  []error
}

func (m *mockRepository) InsertBatch(recs []*Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, recs...)
	m.batches++
	if len(m.errors) > 0 {
		err := m.errors[0]
		m.errors = m.errors[1:]
		return err
	}
	return nil
}

func (m *mockRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testRecord(icao string) *Record {
	return &Record{Timestamp: epoch, ICAO: icao, DF: 17, MessageHex: "8D"}
}

// TestNewCollector tests default settings
func TestNewCollector(t *testing.T) {
	c := NewCollector(&mockRepository{}, make(chan *Record), 0, 0, quietLogger())
	require.NotNil(t, c)
	assert.Equal(t, DefaultBatchSize, c.batchSize)
	assert.Equal(t, DefaultFlushInterval, c.flushInterval)

	c = NewCollector(&mockRepository{}, make(chan *Record), 5, time.Minute, nil)
	assert.Equal(t, 5, c.batchSize)
	assert.Equal(t, time.Minute, c.flushInterval)
}

// TestCollector_BatchFlush tests flushing a full batch
func TestCollector_BatchFlush(t *testing.T) {
	repo := &mockRepository{}
	records := make(chan *Record, 100)
	c := NewCollector(repo, records, 5, time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Start(ctx) }()

	for i := 0; i < 5; i++ {
		records <- testRecord("TEST01")
	}

	assert.Eventually(t, func() bool { return repo.count() == 5 }, time.Second, 10*time.Millisecond)
}

// TestCollector_TimeoutFlush tests flushing a partial batch on the interval
func TestCollector_TimeoutFlush(t *testing.T) {
	repo := &mockRepository{}
	records := make(chan *Record, 100)
	c := NewCollector(repo, records, 10, 50*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Start(ctx) }()

	records <- testRecord("TEST01")

	assert.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 10*time.Millisecond)
}

// TestCollector_ContextCancellation tests the final flush on cancel
func TestCollector_ContextCancellation(t *testing.T) {
	repo := &mockRepository{}
	records := make(chan *Record, 100)
	c := NewCollector(repo, records, 10, time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	records <- testRecord("TEST01")
	assert.Eventually(t, func() bool { return len(records) == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, repo.count())
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not exit after context cancellation")
	}
}

// TestCollector_ChannelClosed tests the final flush when input ends
func TestCollector_ChannelClosed(t *testing.T) {
	repo := &mockRepository{}
	records := make(chan *Record, 100)
	c := NewCollector(repo, records, 10, time.Hour, quietLogger())

	records <- testRecord("TEST01")
	records <- nil
	records <- testRecord("TEST02")
	close(records)

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 2, repo.count())
	assert.Equal(t, 1, repo.batches)
}

// TestCollector_InsertError tests that a failed batch does not stop collection
func TestCollector_InsertError(t *testing.T) {
	repo := &mockRepository{errors: []error{errors.New("database is locked")}}
	records := make(chan *Record, 100)
	c := NewCollector(repo, records, 1, time.Hour, quietLogger())

	records <- testRecord("TEST01")
	records <- testRecord("TEST02")
	close(records)

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 2, repo.batches)
}

// TestCollector_SQLite tests the collector against a real store
func TestCollector_SQLite(t *testing.T) {
	s := setupTestStore(t)
	records := make(chan *Record, 10)
	c := NewCollector(s, records, 3, time.Hour, quietLogger())

	for i, icao := range []string{"111111", "222222", "333333", "444444"} {
		rec := testRecord(icao)
		rec.Timestamp = epoch.Add(time.Duration(i) * time.Second)
		records <- rec
	}
	close(records)

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 4, countFrames(t, s))
}
