package action

import (
	"context"
	"strings"
)

// Mux routes gpio: targets to GPIO and everything else to Default.
type Mux struct {
	GPIO    Starter
	Default Starter
}

func (m *Mux) StartUnit(ctx context.Context, target string) error {
	if strings.HasPrefix(target, GPIOPrefix) && m.GPIO != nil {
		return m.GPIO.StartUnit(ctx, target)
	}
	return m.Default.StartUnit(ctx, target)
}
