//go:build linux

package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/warthog618/go-gpiocdev"
)

// GPIOStarter pulses a GPIO line through the Linux GPIO character device.
type GPIOStarter struct {
	clock clockwork.Clock
}

// NewGPIOStarter returns a starter for gpio: targets.
func NewGPIOStarter(clock clockwork.Clock) *GPIOStarter {
	return &GPIOStarter{clock: clock}
}

// StartUnit drives the line active for the pulse width, then inactive.
// The line is handed back as an input with pull-down so the host sees
// the same state it had at boot.
func (g *GPIOStarter) StartUnit(ctx context.Context, target string) error {
	t, err := ParseGPIOTarget(target)
	if err != nil {
		return err
	}

	line, err := gpiocdev.RequestLine(t.Chip, t.Offset, gpiocdev.AsOutput(1), gpiocdev.WithConsumer("host-watchdog"))
	if err != nil {
		return fmt.Errorf("request %s line %d: %w", t.Chip, t.Offset, err)
	}

	var pulseErr error
	select {
	case <-g.clock.After(t.Pulse):
	case <-ctx.Done():
		pulseErr = ctx.Err()
	}

	var errs []error
	if err := line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("release line: %w", err))
	}
	if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
	}
	if err := line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	if pulseErr != nil {
		return fmt.Errorf("pulse %s interrupted: %w", t, pulseErr)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pulse %s: %w", t, err)
	}
	return nil
}
