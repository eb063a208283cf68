//go:build cgo

package sdr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	rtlsdr "github.com/jpoirier/gortlsdr"
	"github.com/sirupsen/logrus"
)

// Async read buffer sizing
const (
	bufferChunkSize = 16384
	asyncBufLen     = 16 * bufferChunkSize
)

// RTLSDRDevice is an opened RTL-SDR dongle
type RTLSDRDevice struct {
	device *rtlsdr.Context
	logger *logrus.Logger
	index  int

	mu     sync.Mutex
	isOpen bool
}

// OpenDevice opens the dongle at index
func OpenDevice(index int, logger *logrus.Logger) (*RTLSDRDevice, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	count := rtlsdr.GetDeviceCount()
	if count == 0 {
		return nil, errors.New("no RTL-SDR devices found")
	}
	if index < 0 || index >= count {
		return nil, fmt.Errorf("device index %d out of range (0-%d)", index, count-1)
	}

	dev, err := rtlsdr.Open(index)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %d: %w", index, err)
	}

	logger.WithFields(logrus.Fields{
		"device_index": index,
		"device_name":  rtlsdr.GetDeviceName(index),
	}).Info("RTL-SDR device opened")

	return &RTLSDRDevice{device: dev, logger: logger, index: index, isOpen: true}, nil
}

// Configure tunes the device. A gain of 0 selects automatic gain; otherwise
// gain is in dB.
func (r *RTLSDRDevice) Configure(frequency, sampleRate uint32, gain int) error {
	if err := r.device.SetCenterFreq(int(frequency)); err != nil {
		return fmt.Errorf("failed to set frequency: %w", err)
	}
	if err := r.device.SetSampleRate(int(sampleRate)); err != nil {
		return fmt.Errorf("failed to set sample rate: %w", err)
	}

	if gain == 0 {
		if err := r.device.SetTunerGainMode(false); err != nil {
			return fmt.Errorf("failed to set auto gain: %w", err)
		}
	} else {
		if err := r.device.SetTunerGainMode(true); err != nil {
			return fmt.Errorf("failed to set manual gain mode: %w", err)
		}
		// librtlsdr takes tenths of a dB
		if err := r.device.SetTunerGain(gain * 10); err != nil {
			return fmt.Errorf("failed to set gain: %w", err)
		}
	}

	if err := r.device.ResetBuffer(); err != nil {
		return fmt.Errorf("failed to reset buffer: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"device_index": r.index,
		"frequency":    frequency,
		"sample_rate":  sampleRate,
		"gain":         gain,
	}).Info("RTL-SDR device configured")
	return nil
}

// StartCapture streams sample buffers to dataChan until ctx is cancelled.
// Buffers are dropped when dataChan is full.
func (r *RTLSDRDevice) StartCapture(ctx context.Context, dataChan chan<- []byte) error {
	r.mu.Lock()
	open := r.isOpen
	r.mu.Unlock()
	if !open {
		return errors.New("device not open")
	}

	callback := func(data []byte) {
		// librtlsdr reuses its buffers
		buf := make([]byte, len(data))
		copy(buf, data)
		select {
		case dataChan <- buf:
		case <-ctx.Done():
		default:
			r.logger.Debug("Dropping samples, channel full")
		}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("rtl-sdr capture panic: %v", p)
			}
		}()
		done <- r.device.ReadAsync(callback, nil, 0, asyncBufLen)
	}()

	r.logger.Info("Starting RTL-SDR capture")

	select {
	case <-ctx.Done():
		if err := r.device.CancelAsync(); err != nil {
			r.logger.WithError(err).Error("Failed to cancel async reading")
		}
		<-done
		return nil
	case err := <-done:
		if err != nil {
			return fmt.Errorf("rtl-sdr read async failed: %w", err)
		}
		return errors.New("rtl-sdr capture stopped")
	}
}

// Close releases the device
func (r *RTLSDRDevice) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isOpen {
		return nil
	}
	r.isOpen = false
	if err := r.device.Close(); err != nil {
		return fmt.Errorf("failed to close device: %w", err)
	}
	r.logger.Info("RTL-SDR device closed")
	return nil
}
