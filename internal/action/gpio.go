package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GPIOPrefix marks a target that pulses a GPIO line instead of starting
// a systemd unit: gpio:<chip>:<offset>[:<pulse-ms>].
const GPIOPrefix = "gpio:"

// DefaultPulse is how long a line is held active when no width is given.
const DefaultPulse = 200 * time.Millisecond

// ErrInvalidGPIOTarget is returned for malformed gpio: targets.
var ErrInvalidGPIOTarget = errors.New("invalid gpio target")

// GPIOTarget is a parsed gpio: target.
type GPIOTarget struct {
	Chip   string
	Offset int
	Pulse  time.Duration
}

// ParseGPIOTarget parses "gpio:gpiochip0:17" or "gpio:gpiochip0:17:500".
func ParseGPIOTarget(s string) (GPIOTarget, error) {
	rest, ok := strings.CutPrefix(s, GPIOPrefix)
	if !ok {
		return GPIOTarget{}, fmt.Errorf("%w: %q: missing %q prefix", ErrInvalidGPIOTarget, s, GPIOPrefix)
	}
	parts := strings.Split(rest, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return GPIOTarget{}, fmt.Errorf("%w: %q", ErrInvalidGPIOTarget, s)
	}

	offset, err := strconv.Atoi(parts[1])
	if err != nil || offset < 0 {
		return GPIOTarget{}, fmt.Errorf("%w: %q: bad offset", ErrInvalidGPIOTarget, s)
	}

	target := GPIOTarget{Chip: parts[0], Offset: offset, Pulse: DefaultPulse}
	if len(parts) == 3 {
		ms, err := strconv.Atoi(parts[2])
		if err != nil || ms <= 0 {
			return GPIOTarget{}, fmt.Errorf("%w: %q: bad pulse width", ErrInvalidGPIOTarget, s)
		}
		target.Pulse = time.Duration(ms) * time.Millisecond
	}
	return target, nil
}

func (t GPIOTarget) String() string {
	return fmt.Sprintf("%s%s:%d:%d", GPIOPrefix, t.Chip, t.Offset, t.Pulse.Milliseconds())
}
