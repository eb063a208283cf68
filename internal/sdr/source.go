package sdr

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"decode1090/internal/adsb"
	"decode1090/internal/input"
)

// Device is the capture side of a dongle
type Device interface {
	Configure(frequency, sampleRate uint32, gain int) error
	StartCapture(ctx context.Context, dataChan chan<- []byte) error
	Close() error
}

// Config selects and tunes the dongle
type Config struct {
	DeviceIndex int
	Frequency   uint32
	Gain        int // dB, 0 for automatic
}

// Source demodulates frames from a Device
type Source struct {
	name   string
	cfg    Config
	device Device
	demod  *Demodulator
	logger *logrus.Logger

	Now func() time.Time
}

var _ input.Source = (*Source)(nil)

// NewSource opens the configured dongle
func NewSource(cfg Config, logger *logrus.Logger) (*Source, error) {
	dev, err := OpenDevice(cfg.DeviceIndex, logger)
	if err != nil {
		return nil, err
	}
	return NewDeviceSource(dev, cfg, logger), nil
}

// NewDeviceSource wraps an already opened device
func NewDeviceSource(dev Device, cfg Config, logger *logrus.Logger) *Source {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Frequency == 0 {
		cfg.Frequency = Frequency
	}
	return &Source{
		name:   "sdr",
		cfg:    cfg,
		device: dev,
		demod:  NewDemodulator(logger),
		logger: logger,
		Now:    time.Now,
	}
}

// Name returns "sdr"
func (s *Source) Name() string {
	return s.name
}

// Stats returns the demodulator counters
func (s *Source) Stats() Stats {
	return s.demod.Stats()
}

// Run captures until ctx is cancelled and closes the device on return.
func (s *Source) Run(ctx context.Context, out chan<- *adsb.Frame) error {
	defer func() {
		if err := s.device.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close RTL-SDR device")
		}
	}()

	if err := s.device.Configure(s.cfg.Frequency, SampleRate, s.cfg.Gain); err != nil {
		return fmt.Errorf("sdr: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dataChan := make(chan []byte, 64)
	done := make(chan error, 1)
	go func() {
		done <- s.device.StartCapture(ctx, dataChan)
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return ctx.Err()
		case err := <-done:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				return fmt.Errorf("sdr: %w", err)
			}
			return nil
		case buf := <-dataChan:
			for _, f := range s.demod.ProcessIQ(buf, s.Now()) {
				f.Source = s.name
				if !input.Send(ctx, out, f) {
					cancel()
					<-done
					return ctx.Err()
				}
			}
		}
	}
}
