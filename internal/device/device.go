// Package device defines the line-oriented transports AcademyBot talks to:
// Arduino actuator boards over serial ports, and a console stand-in.
package device

import (
	"time"

	"AcademyBot/internal/model"
)

// Device defines an abstract interface for line based communication devices.
// Implementations can provide ReadLine/WriteLine operations with optional timeout.
type Device interface {
	// ReadLine reads a single line terminated by '\n'.
	// If timeout > 0, it must return after timeout even if no data available.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes s followed by '\n' to the device.
	WriteLine(s string) error

	// Close closes the device and releases underlying resources.
	Close() error
}

// Link is an actuator transport owned by the arbiter. A failed Send means the
// physical link is gone.
type Link interface {
	Send(cmd model.Command) error
	Close() error
}
