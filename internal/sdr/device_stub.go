//go:build !cgo

package sdr

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrNoHardware is returned by builds without cgo
var ErrNoHardware = errors.New("RTL-SDR hardware support requires a cgo build")

// RTLSDRDevice is unavailable without cgo
type RTLSDRDevice struct{}

// OpenDevice always fails without cgo
func OpenDevice(index int, logger *logrus.Logger) (*RTLSDRDevice, error) {
	return nil, ErrNoHardware
}

// Configure always fails without cgo
func (r *RTLSDRDevice) Configure(frequency, sampleRate uint32, gain int) error {
	return ErrNoHardware
}

// StartCapture always fails without cgo
func (r *RTLSDRDevice) StartCapture(ctx context.Context, dataChan chan<- []byte) error {
	return ErrNoHardware
}

// Close is a no-op without cgo
func (r *RTLSDRDevice) Close() error {
	return nil
}
