// Package gpio provides the real hardware drivers for the prop: the HC-SR04
// ultrasonic sensors, the motor driver board, and the pump/smoke relays.
// The real implementations use the Linux GPIO character device and only
// build on Linux; on other platforms the constructors return an error.
// Test doubles live in internal/device.
package gpio

import "time"

// DefaultChip is the GPIO chip name on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Ultrasonic timing. The HC-SR04 needs a 10µs trigger pulse; at the
// sensor's 4m range the echo round trip is under 24ms, so a pulse that
// hasn't returned by echoTimeout never will.
const (
	triggerPulse     = 10 * time.Microsecond
	echoStartTimeout = 25 * time.Millisecond
	echoTimeout      = 35 * time.Millisecond

	// cmPerSecond converts echo round-trip time to distance:
	// speed of sound (34300 cm/s) halved for the there-and-back.
	cmPerSecond = 17150.0
)

// maxMove bounds a single motor movement; anything longer is a caller bug,
// not a show cue.
const maxMove = 60 * time.Second
