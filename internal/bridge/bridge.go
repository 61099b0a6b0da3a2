// Package bridge exposes a watchdog engine as a set of named properties.
//
// Every call is run on the event loop that owns the engine, so the
// projections built on top (D-Bus, MQTT, HTTP) may call in from any
// goroutine. Values cross the bridge in wire form: booleans, uint64
// milliseconds and enumeration names.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/host-watchdog/internal/watchdog"
)

// Property names.
const (
	Enabled         = "Enabled"
	Interval        = "Interval"
	TimeRemaining   = "TimeRemaining"
	ExpireAction    = "ExpireAction"
	CurrentTimerUse = "CurrentTimerUse"
	ExpiredTimerUse = "ExpiredTimerUse"
	Initialized     = "Initialized"
)

// Names lists every property in a stable order.
var Names = []string{
	Enabled, Interval, TimeRemaining, ExpireAction,
	CurrentTimerUse, ExpiredTimerUse, Initialized,
}

var (
	// ErrUnknownProperty is returned for a name not in Names.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrInvalidValue is returned when a value has the wrong type or is
	// not a member of the property's enumeration.
	ErrInvalidValue = errors.New("invalid property value")
	// ErrRejected is returned when the engine could not apply a write.
	ErrRejected = errors.New("write rejected")
)

// Runner runs fn on the engine's goroutine and waits for it.
// *eventloop.Loop implements it.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// Properties is a consistent snapshot of every property plus the
// engine's mode.
type Properties struct {
	Enabled         bool   `json:"Enabled"`
	Interval        uint64 `json:"Interval"`
	TimeRemaining   uint64 `json:"TimeRemaining"`
	ExpireAction    string `json:"ExpireAction"`
	CurrentTimerUse string `json:"CurrentTimerUse"`
	ExpiredTimerUse string `json:"ExpiredTimerUse"`
	Initialized     bool   `json:"Initialized"`

	Mode         string `json:"Mode"`
	TimerArmed   bool   `json:"TimerArmed"`
	TimerExpired bool   `json:"TimerExpired"`
}

// Value returns the named property from the snapshot in wire form.
func (p Properties) Value(name string) (any, error) {
	switch name {
	case Enabled:
		return p.Enabled, nil
	case Interval:
		return p.Interval, nil
	case TimeRemaining:
		return p.TimeRemaining, nil
	case ExpireAction:
		return p.ExpireAction, nil
	case CurrentTimerUse:
		return p.CurrentTimerUse, nil
	case ExpiredTimerUse:
		return p.ExpiredTimerUse, nil
	case Initialized:
		return p.Initialized, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
}

// Bridge serializes property access onto the engine's loop.
type Bridge struct {
	engine *watchdog.Engine
	loop   Runner
	log    *zap.Logger

	mu       sync.Mutex
	onChange []func(Properties)
}

func New(engine *watchdog.Engine, loop Runner, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{engine: engine, loop: loop, log: log}
}

// OnChange registers fn to receive a fresh snapshot after every
// successful write and every Publish. fn runs on the caller's goroutine,
// never on the loop.
func (b *Bridge) OnChange(fn func(Properties)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = append(b.onChange, fn)
}

func (b *Bridge) notify(p Properties) {
	b.mu.Lock()
	fns := append([]func(Properties){}, b.onChange...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

// Get reads one property.
func (b *Bridge) Get(ctx context.Context, name string) (any, error) {
	p, err := b.Properties(ctx)
	if err != nil {
		return nil, err
	}
	return p.Value(name)
}

// Properties reads every property in one loop turn.
func (b *Bridge) Properties(ctx context.Context) (Properties, error) {
	var p Properties
	err := b.loop.Do(ctx, func() { p = b.snapshot() })
	return p, err
}

// Publish sends the current snapshot to every OnChange receiver.
func (b *Bridge) Publish(ctx context.Context) error {
	p, err := b.Properties(ctx)
	if err != nil {
		return err
	}
	b.notify(p)
	return nil
}

// Set writes one property and returns the value the engine settled on,
// which may differ from the request (clamping, fallback override).
// Accepted Go types: bool for boolean properties, any integer type for
// millisecond properties, string (short or namespaced) for enumerations.
func (b *Bridge) Set(ctx context.Context, name string, value any) (any, error) {
	apply, err := b.prepare(name, value)
	if err != nil {
		return nil, err
	}

	var (
		result   any
		applyErr error
		p        Properties
	)
	if err := b.loop.Do(ctx, func() {
		result, applyErr = apply()
		p = b.snapshot()
	}); err != nil {
		return nil, err
	}
	if applyErr != nil {
		b.log.Warn("property write rejected", zap.String("property", name), zap.Error(applyErr))
		return nil, fmt.Errorf("%w: %s: %v", ErrRejected, name, applyErr)
	}

	b.log.Debug("property written", zap.String("property", name), zap.Any("value", result))
	b.notify(p)
	return result, nil
}

// SetString parses raw the way a text transport would carry it
// ("true", "5000", "PowerOff") and writes it.
func (b *Bridge) SetString(ctx context.Context, name, raw string) (any, error) {
	var value any
	switch name {
	case Enabled, Initialized:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q", ErrInvalidValue, name, raw)
		}
		value = v
	case Interval, TimeRemaining:
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %q", ErrInvalidValue, name, raw)
		}
		value = v
	case ExpireAction, CurrentTimerUse, ExpiredTimerUse:
		value = raw
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
	}
	return b.Set(ctx, name, value)
}

// ResetTimeRemaining sets the remaining time back to the full interval,
// optionally enabling the watchdog.
func (b *Bridge) ResetTimeRemaining(ctx context.Context, enable bool) error {
	var (
		resetErr error
		p        Properties
	)
	if err := b.loop.Do(ctx, func() {
		resetErr = b.engine.ResetTimeRemaining(enable)
		p = b.snapshot()
	}); err != nil {
		return err
	}
	if resetErr != nil {
		return fmt.Errorf("%w: reset: %v", ErrRejected, resetErr)
	}
	b.notify(p)
	return nil
}

// prepare validates value off the loop and returns the engine call.
// Bad input never reaches the engine.
func (b *Bridge) prepare(name string, value any) (func() (any, error), error) {
	e := b.engine
	switch name {
	case Enabled:
		v, ok := value.(bool)
		if !ok {
			return nil, typeError(name, "bool", value)
		}
		return func() (any, error) { return e.SetEnabled(v) }, nil

	case Initialized:
		v, ok := value.(bool)
		if !ok {
			return nil, typeError(name, "bool", value)
		}
		return func() (any, error) { return e.SetInitialized(v), nil }, nil

	case Interval:
		d, err := millis(name, value)
		if err != nil {
			return nil, err
		}
		return func() (any, error) { return toMillis(e.SetInterval(d)), nil }, nil

	case TimeRemaining:
		d, err := millis(name, value)
		if err != nil {
			return nil, err
		}
		return func() (any, error) {
			got, err := e.SetTimeRemaining(d)
			if errors.Is(err, watchdog.ErrNotArmed) {
				// Nothing is counting down; the write is a no-op.
				return uint64(0), nil
			}
			if err != nil {
				return nil, err
			}
			return toMillis(got), nil
		}, nil

	case ExpireAction:
		s, ok := enumString(value)
		if !ok {
			return nil, typeError(name, "string", value)
		}
		a, err := watchdog.ParseAction(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
		}
		return func() (any, error) { return string(e.SetExpireAction(a)), nil }, nil

	case CurrentTimerUse, ExpiredTimerUse:
		s, ok := enumString(value)
		if !ok {
			return nil, typeError(name, "string", value)
		}
		u, err := watchdog.ParseTimerUse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
		}
		if name == CurrentTimerUse {
			return func() (any, error) { return string(e.SetCurrentTimerUse(u)), nil }, nil
		}
		return func() (any, error) { return string(e.SetExpiredTimerUse(u)), nil }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
}

func (b *Bridge) snapshot() Properties {
	e := b.engine
	return Properties{
		Enabled:         e.Enabled(),
		Interval:        toMillis(e.Interval()),
		TimeRemaining:   toMillis(e.TimeRemaining()),
		ExpireAction:    string(e.ExpireAction()),
		CurrentTimerUse: string(e.CurrentTimerUse()),
		ExpiredTimerUse: string(e.ExpiredTimerUse()),
		Initialized:     e.Initialized(),
		Mode:            e.Mode().String(),
		TimerArmed:      e.TimerArmed(),
		TimerExpired:    e.TimerExpired(),
	}
}

func typeError(name, want string, got any) error {
	return fmt.Errorf("%w: %s: want %s, got %T", ErrInvalidValue, name, want, got)
}

func enumString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case watchdog.Action:
		return string(s), true
	case watchdog.TimerUse:
		return string(s), true
	}
	return "", false
}

// maxMillis keeps the conversion to time.Duration from overflowing.
const maxMillis = uint64(1<<63-1) / uint64(time.Millisecond)

func millis(name string, v any) (time.Duration, error) {
	var ms uint64
	switch n := v.(type) {
	case uint64:
		ms = n
	case uint32:
		ms = uint64(n)
	case uint:
		ms = uint64(n)
	case int:
		if n < 0 {
			return 0, fmt.Errorf("%w: %s: negative", ErrInvalidValue, name)
		}
		ms = uint64(n)
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("%w: %s: negative", ErrInvalidValue, name)
		}
		ms = uint64(n)
	default:
		return 0, typeError(name, "uint64", v)
	}
	if ms > maxMillis {
		ms = maxMillis
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func toMillis(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Millisecond)
}
