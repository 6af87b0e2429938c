//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Ultrasonic drives one HC-SR04 distance sensor.
type Ultrasonic struct {
	trig *gpiocdev.Line
	echo *gpiocdev.Line
	init bool
}

// NewUltrasonic requests the trigger (output) and echo (input) lines.
func NewUltrasonic(chip *Chip, trigPin, echoPin int) (*Ultrasonic, error) {
	trig, err := chip.output(trigPin, "ultrasonic trigger")
	if err != nil {
		return nil, err
	}
	echo, err := chip.input(echoPin, "ultrasonic echo")
	if err != nil {
		trig.Close()
		return nil, err
	}
	return &Ultrasonic{trig: trig, echo: echo, init: true}, nil
}

// Read pulses the trigger and times the echo. An echo that never starts or
// never ends within the sensor's range window returns ok=false (no object,
// or a missed pulse) — a transient, not a failure. Line errors are real
// sensor faults.
func (u *Ultrasonic) Read() (float64, bool, error) {
	if err := u.trig.SetValue(1); err != nil {
		return 0, false, fmt.Errorf("trigger high: %w", err)
	}
	time.Sleep(triggerPulse)
	if err := u.trig.SetValue(0); err != nil {
		return 0, false, fmt.Errorf("trigger low: %w", err)
	}

	start, ok, err := u.waitEcho(1, echoStartTimeout)
	if err != nil {
		return 0, false, fmt.Errorf("wait echo start: %w", err)
	}
	if !ok {
		return 0, false, nil
	}

	end, ok, err := u.waitEcho(0, echoTimeout)
	if err != nil {
		return 0, false, fmt.Errorf("wait echo end: %w", err)
	}
	if !ok {
		return 0, false, nil
	}

	return end.Sub(start).Seconds() * cmPerSecond, true, nil
}

// waitEcho polls the echo line until it reads want or the timeout passes.
func (u *Ultrasonic) waitEcho(want int, timeout time.Duration) (time.Time, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		v, err := u.echo.Value()
		if err != nil {
			return time.Time{}, false, err
		}
		now := time.Now()
		if v == want {
			return now, true, nil
		}
		if now.After(deadline) {
			return time.Time{}, false, nil
		}
	}
}

// Initialized reports whether both lines were requested successfully.
func (u *Ultrasonic) Initialized() bool { return u.init }

// Close releases both lines.
func (u *Ultrasonic) Close() error {
	u.init = false
	var errs []error
	if err := u.trig.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close trigger: %w", err))
	}
	if err := u.echo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close echo: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ultrasonic: %v", errs)
	}
	return nil
}
