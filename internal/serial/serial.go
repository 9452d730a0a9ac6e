// Package serial abstracts the byte transport between the driver and the
// BGAPI radio module. The production implementation sits on a native serial
// port; tests substitute an in-memory port.
package serial

import (
	"io"
	"time"
)

// Port is the byte transport the adapter reads from and writes to.
//
// Read must be bounded: when no data arrives within the configured read
// timeout it returns (0, nil) so the caller can check its stop signal. This
// mirrors the timeout behavior of the underlying serial driver.
type Port interface {
	io.ReadWriteCloser
}

// Config holds serial port parameters.
type Config struct {
	// Device path, e.g. "/dev/ttyACM0" or "COM3".
	Device string

	// Baud rate. The BLED112 presents a USB CDC endpoint and ignores the
	// configured rate, but the driver needs one to open the port.
	Baud int

	// ReadTimeout bounds a single blocking read so the receiver loop can
	// observe its stop signal promptly.
	ReadTimeout time.Duration
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 250 * time.Millisecond,
	}
}
