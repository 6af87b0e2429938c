// Package device defines the capability interfaces the control core consumes.
// Real implementations live in internal/gpio, internal/govee, and
// internal/sound; fakes for testing live alongside the interfaces here.
package device

import "time"

// DistanceSensor produces distance samples on demand.
type DistanceSensor interface {
	// Read returns a distance in centimetres. ok=false means no sample was
	// available this attempt (e.g. echo timeout) — a transient condition,
	// not a fault. A non-nil error means the sensor itself failed.
	Read() (cm float64, ok bool, err error)

	// Initialized reports whether the sensor hardware came up.
	Initialized() bool

	// Close releases sensor resources.
	Close() error
}

// Motor drives the prop's linear actuator.
type Motor interface {
	// Forward runs the motor forward for the given duration, then stops.
	Forward(d time.Duration) error

	// Reverse runs the motor in reverse for the given duration, then stops.
	Reverse(d time.Duration) error

	// Stop halts the motor. Safe to call when already stopped.
	Stop() error

	// Initialized reports whether the motor hardware came up.
	Initialized() bool
}

// Relay switches a single mains/12V load (pump, smoke machine).
type Relay interface {
	// On energizes the relay. Idempotent.
	On() error

	// Off de-energizes the relay. Idempotent.
	Off() error

	// Initialized reports whether the relay hardware came up.
	Initialized() bool
}

// Light controls the color-capable show light.
type Light interface {
	SetColor(r, g, b uint8) error
	TurnOn() error
	TurnOff() error
}

// SoundPlayer plays a single pre-loaded audio cue. Audio is best-effort:
// a cue that fails to play never aborts the show, so there are no error
// returns.
type SoundPlayer interface {
	Play()
	Stop()
}
