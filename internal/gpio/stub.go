//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errNotSupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(string) (*Chip, error) { return nil, errNotSupported }

// Close is a no-op on non-Linux platforms.
func (c *Chip) Close() error { return nil }

// Ultrasonic is not available on non-Linux platforms.
type Ultrasonic struct{}

// NewUltrasonic returns an error on non-Linux platforms.
func NewUltrasonic(*Chip, int, int) (*Ultrasonic, error) { return nil, errNotSupported }

// Read is not implemented on non-Linux platforms.
func (u *Ultrasonic) Read() (float64, bool, error) { return 0, false, errNotSupported }

// Initialized reports false on non-Linux platforms.
func (u *Ultrasonic) Initialized() bool { return false }

// Close is a no-op on non-Linux platforms.
func (u *Ultrasonic) Close() error { return nil }

// Motor is not available on non-Linux platforms.
type Motor struct{}

// NewMotor returns an error on non-Linux platforms.
func NewMotor(*Chip, int, int) (*Motor, error) { return nil, errNotSupported }

// Forward is not implemented on non-Linux platforms.
func (m *Motor) Forward(time.Duration) error { return errNotSupported }

// Reverse is not implemented on non-Linux platforms.
func (m *Motor) Reverse(time.Duration) error { return errNotSupported }

// Stop is not implemented on non-Linux platforms.
func (m *Motor) Stop() error { return errNotSupported }

// Initialized reports false on non-Linux platforms.
func (m *Motor) Initialized() bool { return false }

// Close is a no-op on non-Linux platforms.
func (m *Motor) Close() error { return nil }

// Relay is not available on non-Linux platforms.
type Relay struct{}

// NewRelay returns an error on non-Linux platforms.
func NewRelay(*Chip, int, string) (*Relay, error) { return nil, errNotSupported }

// On is not implemented on non-Linux platforms.
func (r *Relay) On() error { return errNotSupported }

// Off is not implemented on non-Linux platforms.
func (r *Relay) Off() error { return errNotSupported }

// Initialized reports false on non-Linux platforms.
func (r *Relay) Initialized() bool { return false }

// Close is a no-op on non-Linux platforms.
func (r *Relay) Close() error { return nil }
