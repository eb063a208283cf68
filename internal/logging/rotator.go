// Package logging writes aircraft records to daily JSON-lines files and
// compresses the files of previous days.
package logging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
)

const (
	filePrefix     = "adsb_"
	fileExt        = ".jsonl"
	compressedExt  = ".jsonl.zst"
	dateLayout     = "2006-01-02"
	rotationPeriod = time.Minute
)

// LogRotator owns the current day's record file
type LogRotator struct {
	logDir      string
	useUTC      bool
	logger      *logrus.Logger
	currentFile *os.File
	currentDate string
	mutex       sync.RWMutex
	compressing sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	now func() time.Time
}

// NewLogRotator creates the log directory and opens today's file
func NewLogRotator(logDir string, useUTC bool, logger *logrus.Logger) (*LogRotator, error) {
	return newLogRotator(logDir, useUTC, logger, time.Now)
}

func newLogRotator(logDir string, useUTC bool, logger *logrus.Logger, now func() time.Time) (*LogRotator, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	rotator := &LogRotator{
		logDir: logDir,
		useUTC: useUTC,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		now:    now,
	}

	rotator.mutex.Lock()
	err := rotator.rotateLogFile()
	rotator.mutex.Unlock()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}

	return rotator, nil
}

func (r *LogRotator) today() string {
	now := r.now()
	if r.useUTC {
		now = now.UTC()
	}
	return now.Format(dateLayout)
}

func (r *LogRotator) logPath(date string) string {
	return filepath.Join(r.logDir, filePrefix+date+fileExt)
}

func (r *LogRotator) compressedPath(date string) string {
	return filepath.Join(r.logDir, filePrefix+date+compressedExt)
}

// Start checks for a date change every minute until ctx is cancelled
func (r *LogRotator) Start(ctx context.Context) {
	r.logger.Info("Starting log rotator")

	ticker := time.NewTicker(rotationPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Log rotator stopping")
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.checkRotation()
		}
	}
}

// checkRotation rolls the file over when the date has changed
func (r *LogRotator) checkRotation() {
	currentDate := r.today()

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.currentFile != nil && r.currentDate != currentDate {
		r.logger.WithFields(logrus.Fields{
			"old_date": r.currentDate,
			"new_date": currentDate,
		}).Info("Rotating log file")

		if err := r.rotateLogFile(); err != nil {
			r.logger.WithError(err).Error("Failed to rotate log file")
		}
	}
}

// rotateLogFile closes the current file, queues it for compression and
// opens the file for today. The caller holds the mutex.
func (r *LogRotator) rotateLogFile() error {
	newDate := r.today()
	if r.currentFile != nil && r.currentDate == newDate {
		return nil
	}

	if r.currentFile != nil {
		oldDate := r.currentDate
		if err := r.currentFile.Close(); err != nil {
			r.logger.WithError(err).Error("Failed to close old log file")
		}
		r.currentFile = nil

		r.compressing.Add(1)
		go func() {
			defer r.compressing.Done()
			r.compressLogFile(oldDate)
		}()
	}

	path := r.logPath(newDate)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file %s: %w", path, err)
	}

	r.currentFile = file
	r.currentDate = newDate

	r.logger.WithField("file", path).Info("Created new log file")
	return nil
}

// compressLogFile replaces a day's file with its zstd-compressed copy
func (r *LogRotator) compressLogFile(date string) {
	logFile := r.logPath(date)
	zstFile := r.compressedPath(date)

	log := r.logger.WithFields(logrus.Fields{
		"source": logFile,
		"target": zstFile,
	})
	log.Info("Compressing log file")

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		r.logger.WithField("file", logFile).Debug("Log file doesn't exist, skipping compression")
		return
	}

	if err := compressFile(logFile, zstFile); err != nil {
		log.WithError(err).Error("Failed to compress log file")
		os.Remove(zstFile)
		return
	}

	if err := os.Remove(logFile); err != nil {
		r.logger.WithError(err).WithField("file", logFile).Error("Failed to remove original log file")
		return
	}

	r.logger.WithField("file", zstFile).Info("Log file compressed successfully")
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create compressed file: %w", err)
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		return fmt.Errorf("failed to copy data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return out.Close()
}

// GetWriter returns the current log file
func (r *LogRotator) GetWriter() (io.Writer, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.currentFile == nil {
		return nil, errors.New("no current log file")
	}
	return r.currentFile, nil
}

// WriteJSON appends v to the current file as one JSON line, rolling the file
// over first if the date has changed.
func (r *LogRotator) WriteJSON(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	line = append(line, '\n')

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.currentFile == nil {
		return errors.New("no current log file")
	}
	if r.currentDate != r.today() {
		if err := r.rotateLogFile(); err != nil {
			return err
		}
	}
	if _, err := r.currentFile.Write(line); err != nil {
		return fmt.Errorf("failed to write to log: %w", err)
	}
	return nil
}

// Close closes the current file and waits for pending compression
func (r *LogRotator) Close() error {
	r.logger.Info("Closing log rotator")

	r.cancel()

	r.mutex.Lock()
	var err error
	if r.currentFile != nil {
		if err = r.currentFile.Close(); err != nil {
			r.logger.WithError(err).Error("Failed to close current log file")
		}
		r.currentFile = nil
	}
	r.mutex.Unlock()

	r.compressing.Wait()
	return err
}

// GetCurrentLogFile returns the current log file path
func (r *LogRotator) GetCurrentLogFile() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.currentDate == "" {
		return ""
	}
	return r.logPath(r.currentDate)
}

// GetLogFiles returns every record file, compressed or not
func (r *LogRotator) GetLogFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(r.logDir, filePrefix+"*"+fileExt+"*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}
	return files, nil
}

// CleanupOldLogs removes files last modified more than maxDays ago
func (r *LogRotator) CleanupOldLogs(maxDays int) error {
	if maxDays <= 0 {
		return fmt.Errorf("maxDays must be positive")
	}

	files, err := r.GetLogFiles()
	if err != nil {
		return fmt.Errorf("failed to get log files: %w", err)
	}

	cutoff := r.now().AddDate(0, 0, -maxDays)
	current := r.GetCurrentLogFile()

	removed := 0
	for _, file := range files {
		if file == current {
			continue
		}

		info, err := os.Stat(file)
		if err != nil {
			r.logger.WithError(err).WithField("file", file).Warn("Failed to stat log file")
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(file); err != nil {
				r.logger.WithError(err).WithField("file", file).Error("Failed to remove old log file")
			} else {
				r.logger.WithField("file", file).Info("Removed old log file")
				removed++
			}
		}
	}

	r.logger.WithField("count", removed).Info("Cleaned up old log files")
	return nil
}
