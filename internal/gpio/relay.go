//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Relay switches one load (pump or smoke machine) through an active-high
// relay module.
type Relay struct {
	line *gpiocdev.Line
	name string
	init bool
}

// NewRelay requests the relay line as an output, initially low (off).
func NewRelay(chip *Chip, pin int, name string) (*Relay, error) {
	line, err := chip.output(pin, name+" relay")
	if err != nil {
		return nil, err
	}
	return &Relay{line: line, name: name, init: true}, nil
}

// On energizes the relay. Idempotent: driving a high line high is a no-op.
func (r *Relay) On() error {
	if err := r.line.SetValue(1); err != nil {
		return fmt.Errorf("%s relay on: %w", r.name, err)
	}
	return nil
}

// Off de-energizes the relay. Idempotent.
func (r *Relay) Off() error {
	if err := r.line.SetValue(0); err != nil {
		return fmt.Errorf("%s relay off: %w", r.name, err)
	}
	return nil
}

// Initialized reports whether the line was requested successfully.
func (r *Relay) Initialized() bool { return r.init }

// Close drives the line low and releases it.
func (r *Relay) Close() error {
	r.init = false
	var errs []error
	if err := r.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drive low: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close %s relay: %v", r.name, errs)
	}
	return nil
}
