// Package watchdog contains the host watchdog state machine.
// It has no transport dependencies: timers, unit starting and timeout
// notification are injected, and every method is expected to run on a
// single event-loop goroutine.
package watchdog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Interface is the D-Bus interface name the property surface is modelled on.
const Interface = "xyz.openbmc_project.State.Watchdog"

const (
	actionPrefix   = Interface + ".Action."
	timerUsePrefix = Interface + ".TimerUse."
)

// DefaultInterval is the primary interval used when no override is configured.
const DefaultInterval = 30 * time.Second

var (
	// ErrInvalidAction is returned when parsing an unknown action name.
	ErrInvalidAction = errors.New("invalid watchdog action")
	// ErrInvalidTimerUse is returned when parsing an unknown timer use name.
	ErrInvalidTimerUse = errors.New("invalid watchdog timer use")
)

// Action is the recovery operation selected on expiry.
type Action string

const (
	ActionNone       Action = "None"
	ActionHardReset  Action = "HardReset"
	ActionPowerOff   Action = "PowerOff"
	ActionPowerCycle Action = "PowerCycle"
)

// Actions lists every valid Action.
var Actions = []Action{ActionNone, ActionHardReset, ActionPowerOff, ActionPowerCycle}

// ParseAction accepts either the short name ("PowerOff") or the fully
// namespaced form ("xyz.openbmc_project.State.Watchdog.Action.PowerOff").
func ParseAction(s string) (Action, error) {
	name := strings.TrimPrefix(s, actionPrefix)
	for _, a := range Actions {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Namespaced returns the fully qualified D-Bus enumeration string.
func (a Action) Namespaced() string {
	return actionPrefix + string(a)
}

// TimerUse says which logical watchdog a timer pertains to.
// Observability only; it never affects control flow.
type TimerUse string

const (
	TimerUseReserved TimerUse = "Reserved"
	TimerUseBIOSFRB2 TimerUse = "BIOSFRB2"
	TimerUseBIOSPOST TimerUse = "BIOSPOST"
	TimerUseOSLoad   TimerUse = "OSLoad"
	TimerUseSMSOS    TimerUse = "SMSOS"
	TimerUseOEM      TimerUse = "OEM"
)

// TimerUses lists every valid TimerUse.
var TimerUses = []TimerUse{
	TimerUseReserved, TimerUseBIOSFRB2, TimerUseBIOSPOST,
	TimerUseOSLoad, TimerUseSMSOS, TimerUseOEM,
}

// ParseTimerUse accepts the short or namespaced form.
func ParseTimerUse(s string) (TimerUse, error) {
	name := strings.TrimPrefix(s, timerUsePrefix)
	for _, u := range TimerUses {
		if string(u) == name {
			return u, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTimerUse, s)
}

// Namespaced returns the fully qualified D-Bus enumeration string.
func (u TimerUse) Namespaced() string {
	return timerUsePrefix + string(u)
}

// Fallback configures the secondary deadline.
type Fallback struct {
	Action   Action
	Interval time.Duration
	// Always keeps the fallback armed even before the primary watchdog
	// has ever been enabled.
	Always bool
}

// Mode is the engine's single source of truth for which deadline, if
// any, the timer is counting down.
type Mode int

const (
	ModeOff Mode = iota
	ModePrimary
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModePrimary:
		return "primary"
	case ModeFallback:
		return "fallback"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}
