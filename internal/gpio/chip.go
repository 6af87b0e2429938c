//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Chip wraps the GPIO character device shared by all drivers.
type Chip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named GPIO chip (e.g. "gpiochip0").
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: chip}, nil
}

// Close releases the chip. Drivers must be closed first.
func (c *Chip) Close() error {
	return c.chip.Close()
}

// output requests a line as output, initially low.
func (c *Chip) output(pin int, what string) (*gpiocdev.Line, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", what, pin, err)
	}
	return line, nil
}

// input requests a line as input with pull-down, matching Pi boot defaults.
func (c *Chip) input(pin int, what string) (*gpiocdev.Line, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", what, pin, err)
	}
	return line, nil
}
