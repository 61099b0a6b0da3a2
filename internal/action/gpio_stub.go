//go:build !linux

package action

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
)

// GPIOStarter is not available on non-Linux platforms.
type GPIOStarter struct{}

func NewGPIOStarter(clockwork.Clock) *GPIOStarter {
	return &GPIOStarter{}
}

// StartUnit always fails on non-Linux platforms.
func (g *GPIOStarter) StartUnit(context.Context, string) error {
	return errors.New("gpio: not supported on this platform (requires Linux)")
}
