//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Motor drives the lunge actuator through a two-channel driver board:
// one line per direction, never both high at once.
type Motor struct {
	fwd  *gpiocdev.Line
	rev  *gpiocdev.Line
	init bool
}

// NewMotor requests both direction lines as outputs, initially low.
func NewMotor(chip *Chip, fwdPin, revPin int) (*Motor, error) {
	fwd, err := chip.output(fwdPin, "motor forward")
	if err != nil {
		return nil, err
	}
	rev, err := chip.output(revPin, "motor reverse")
	if err != nil {
		fwd.Close()
		return nil, err
	}
	return &Motor{fwd: fwd, rev: rev, init: true}, nil
}

// Forward runs the motor forward for d, then stops.
func (m *Motor) Forward(d time.Duration) error {
	return m.move(m.fwd, m.rev, d, "forward")
}

// Reverse runs the motor in reverse for d, then stops.
func (m *Motor) Reverse(d time.Duration) error {
	return m.move(m.rev, m.fwd, d, "reverse")
}

func (m *Motor) move(on, off *gpiocdev.Line, d time.Duration, dir string) error {
	if d <= 0 || d > maxMove {
		return fmt.Errorf("motor %s: invalid duration %v", dir, d)
	}
	if err := off.SetValue(0); err != nil {
		return fmt.Errorf("motor %s: clear opposite: %w", dir, err)
	}
	if err := on.SetValue(1); err != nil {
		return fmt.Errorf("motor %s: energize: %w", dir, err)
	}
	time.Sleep(d)
	if err := on.SetValue(0); err != nil {
		// The line may still be driving the motor; make sure the caller
		// treats this as a failure needing the unwind.
		return fmt.Errorf("motor %s: de-energize: %w", dir, err)
	}
	return nil
}

// Stop drives both direction lines low. Safe when already stopped.
func (m *Motor) Stop() error {
	var errs []error
	if err := m.fwd.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("forward low: %w", err))
	}
	if err := m.rev.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("reverse low: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("motor stop: %v", errs)
	}
	return nil
}

// Initialized reports whether both lines were requested successfully.
func (m *Motor) Initialized() bool { return m.init }

// Close stops the motor and releases both lines.
func (m *Motor) Close() error {
	m.init = false
	var errs []error
	if err := m.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := m.fwd.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close forward: %w", err))
	}
	if err := m.rev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close reverse: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close motor: %v", errs)
	}
	return nil
}
