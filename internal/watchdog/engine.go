package watchdog

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sweeney/host-watchdog/internal/eventloop"
	"github.com/sweeney/host-watchdog/internal/timer"
)

// ErrNotArmed is returned by SetTimeRemaining when no countdown is running.
var ErrNotArmed = errors.New("watchdog: timer not armed")

// Timer is the countdown the engine drives. *timer.Timer implements it.
type Timer interface {
	Start(d time.Duration) error
	Cancel()
	ClearExpired()
	Remaining() time.Duration
	Armed() bool
	Expired() bool
	Close()
}

// Dispatcher maps an action to its target and starts it without waiting.
type Dispatcher interface {
	Resolve(a Action) (target string, ok bool)
	Invoke(target string)
}

// Notifier receives the Timeout signal for each dispatched expiry.
type Notifier interface {
	Timeout(a Action) error
}

// Config is the construction-time configuration of one engine.
type Config struct {
	Path            string
	MinInterval     time.Duration
	DefaultInterval time.Duration // zero keeps DefaultInterval
	Fallback        *Fallback
}

// Deps are the collaborators of one engine.
type Deps struct {
	Clock      clockwork.Clock
	Loop       eventloop.Poster
	Dispatcher Dispatcher
	Logger     *zap.Logger

	// OnTimeout, if set, runs after every expiry has been dispatched and
	// the fallback resolved. armed reports whether a fallback is now
	// counting down.
	OnTimeout func(a Action, armed bool)

	// NewTimer overrides the timer backend. Used by tests.
	NewTimer func(handler func()) Timer
}

// Engine is one host watchdog. All methods must run on the loop goroutine.
type Engine struct {
	path       string
	dispatcher Dispatcher
	notifiers  []Notifier
	onTimeout  func(Action, bool)
	log        *zap.Logger

	fallback    *Fallback
	minInterval time.Duration
	interval    time.Duration

	mode         Mode
	expireAction Action
	currentUse   TimerUse
	expiredUse   TimerUse
	initialized  bool

	timer Timer
}

// New builds an engine and resolves its initial fallback state, so an
// always-on fallback is armed before New returns.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Dispatcher == nil {
		return nil, errors.New("watchdog: dispatcher is required")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Fallback != nil {
		fb := *cfg.Fallback
		if _, err := ParseAction(string(fb.Action)); err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		cfg.Fallback = &fb
	}

	e := &Engine{
		path:         cfg.Path,
		dispatcher:   deps.Dispatcher,
		onTimeout:    deps.OnTimeout,
		log:          log.With(zap.String("path", cfg.Path)),
		fallback:     cfg.Fallback,
		minInterval:  cfg.MinInterval,
		interval:     DefaultInterval,
		expireAction: ActionHardReset,
		currentUse:   TimerUseReserved,
		expiredUse:   TimerUseReserved,
	}

	if deps.NewTimer != nil {
		e.timer = deps.NewTimer(e.timeout)
	} else {
		if deps.Clock == nil || deps.Loop == nil {
			return nil, errors.New("watchdog: clock and loop are required")
		}
		e.timer = timer.New(deps.Clock, deps.Loop, e.timeout, e.log.Named("timer"))
	}

	if cfg.DefaultInterval > 0 {
		e.SetInterval(cfg.DefaultInterval)
	} else {
		e.SetInterval(e.interval)
	}

	e.tryFallbackOrDisable(false)
	return e, nil
}

// AddNotifier registers a receiver for Timeout signals.
func (e *Engine) AddNotifier(n Notifier) {
	e.notifiers = append(e.notifiers, n)
}

// Path is the object path this engine was constructed for.
func (e *Engine) Path() string {
	return e.path
}

// Mode reports which deadline is active.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Fallback returns a copy of the fallback policy, or nil.
func (e *Engine) Fallback() *Fallback {
	if e.fallback == nil {
		return nil
	}
	fb := *e.fallback
	return &fb
}

// Enabled reports whether the primary watchdog is counting down.
// A running fallback reports false.
func (e *Engine) Enabled() bool {
	return e.mode == ModePrimary
}

// SetEnabled enables or disables the primary watchdog and returns the
// resulting Enabled value. Enabling an already enabled watchdog does not
// reset its remaining time. If arming fails, state is unchanged and the
// error is returned.
func (e *Engine) SetEnabled(enable bool) (bool, error) {
	if !enable {
		// A running fallback is not ended by disabling.
		if e.mode == ModePrimary {
			e.mode = ModeOff
			e.tryFallbackOrDisable(false)
		}
		return false, nil
	}

	if e.mode == ModePrimary {
		return true, nil
	}

	interval := e.Interval()
	if err := e.timer.Start(interval); err != nil {
		e.log.Error("watchdog: failed to enable", zap.Duration("interval", interval), zap.Error(err))
		return e.Enabled(), fmt.Errorf("arm primary timer: %w", err)
	}
	e.mode = ModePrimary
	e.log.Info("watchdog: enabled and started", zap.Duration("interval", interval))
	return true, nil
}

// Interval is the configured primary interval, never below the minimum.
func (e *Engine) Interval() time.Duration {
	if e.interval < e.minInterval {
		return e.minInterval
	}
	return e.interval
}

// SetInterval stores max(d, minimum) and returns it. The running timer
// is not touched; the value applies the next time the primary is armed.
func (e *Engine) SetInterval(d time.Duration) time.Duration {
	if d < e.minInterval {
		d = e.minInterval
	}
	e.interval = d
	return d
}

// MinInterval is the lower bound for Interval and primary TimeRemaining.
func (e *Engine) MinInterval() time.Duration {
	return e.minInterval
}

// TimeRemaining is the time left on whichever deadline is running,
// truncated to whole milliseconds. Zero when nothing is armed.
func (e *Engine) TimeRemaining() time.Duration {
	if !e.timer.Armed() {
		return 0
	}
	return e.timer.Remaining().Truncate(time.Millisecond)
}

// SetTimeRemaining re-arms the running deadline. While primary the
// value is clamped to the minimum interval; while in fallback the
// fallback interval is used regardless of d. Returns the armed duration.
// A disarmed timer is left alone and ErrNotArmed is returned.
func (e *Engine) SetTimeRemaining(d time.Duration) (time.Duration, error) {
	if !e.timer.Armed() {
		return 0, ErrNotArmed
	}

	switch e.mode {
	case ModePrimary:
		if d < e.minInterval {
			d = e.minInterval
		}
	case ModeFallback:
		d = e.fallback.Interval
	default:
		// Armed with mode off cannot happen; refuse rather than guess.
		return 0, ErrNotArmed
	}

	if err := e.timer.Start(d); err != nil {
		e.log.Error("watchdog: failed to reset timer", zap.Duration("value", d), zap.Error(err))
		return 0, fmt.Errorf("re-arm %s timer: %w", e.mode, err)
	}
	e.log.Debug("watchdog: reset timer", zap.Stringer("mode", e.mode), zap.Duration("value", d))
	return d, nil
}

// ResetTimeRemaining sets the remaining time back to the full interval
// and optionally enables the watchdog.
func (e *Engine) ResetTimeRemaining(enable bool) error {
	if _, err := e.SetTimeRemaining(e.Interval()); err != nil && !errors.Is(err, ErrNotArmed) {
		return err
	}
	if enable {
		if _, err := e.SetEnabled(true); err != nil {
			return err
		}
	}
	return nil
}

// ExpireAction is the action taken when the primary watchdog expires.
func (e *Engine) ExpireAction() Action {
	return e.expireAction
}

// SetExpireAction stores a and returns it. Allowed at any time.
func (e *Engine) SetExpireAction(a Action) Action {
	e.expireAction = a
	return a
}

// CurrentTimerUse is the timer use reported by the host.
func (e *Engine) CurrentTimerUse() TimerUse { return e.currentUse }

// SetCurrentTimerUse stores u and returns it.
func (e *Engine) SetCurrentTimerUse(u TimerUse) TimerUse {
	e.currentUse = u
	return u
}

// ExpiredTimerUse is the timer use recorded at the last primary expiry.
func (e *Engine) ExpiredTimerUse() TimerUse { return e.expiredUse }

// SetExpiredTimerUse stores u and returns it.
func (e *Engine) SetExpiredTimerUse(u TimerUse) TimerUse {
	e.expiredUse = u
	return u
}

// Initialized reports whether the host has claimed the watchdog.
func (e *Engine) Initialized() bool { return e.initialized }

// SetInitialized stores v and returns it.
func (e *Engine) SetInitialized(v bool) bool {
	e.initialized = v
	return v
}

// TimerArmed reports whether any deadline is counting down.
func (e *Engine) TimerArmed() bool {
	return e.timer.Armed()
}

// TimerExpired reports whether the last deadline ran out.
func (e *Engine) TimerExpired() bool {
	return e.timer.Expired()
}

// Close stops the timer permanently.
func (e *Engine) Close() {
	e.timer.Close()
	e.mode = ModeOff
}

// timeout is the timer's expiry handler.
func (e *Engine) timeout() {
	wasPrimary := e.mode == ModePrimary
	action := e.expireAction
	if !wasPrimary && e.fallback != nil {
		action = e.fallback.Action
	}

	e.expiredUse = e.currentUse

	if target, ok := e.dispatcher.Resolve(action); ok {
		e.log.Info("watchdog: timed out",
			zap.String("action", string(action)),
			zap.String("timer_use", string(e.expiredUse)),
			zap.String("target", target))
		for _, n := range e.notifiers {
			if err := n.Timeout(action); err != nil {
				e.log.Error("watchdog: failed to send timeout signal", zap.Error(err))
			}
		}
		e.dispatcher.Invoke(target)
	} else {
		e.log.Info("watchdog: timed out with no target",
			zap.String("action", string(action)),
			zap.String("timer_use", string(e.currentUse)))
	}

	e.tryFallbackOrDisable(wasPrimary)

	if e.onTimeout != nil {
		e.onTimeout(action, e.timer.Armed())
	}
}

// tryFallbackOrDisable enters (or refreshes) the fallback window when
// policy allows, otherwise settles the timer to off. wasPrimary is whether
// the primary watchdog was enabled when the caller left it. The engine
// is never left in ModePrimary.
func (e *Engine) tryFallbackOrDisable(wasPrimary bool) {
	if e.fallback != nil && (e.fallback.Always || wasPrimary) {
		interval := e.fallback.Interval
		err := e.timer.Start(interval)
		if err == nil {
			e.mode = ModeFallback
			e.log.Info("watchdog: falling back",
				zap.String("action", string(e.fallback.Action)),
				zap.Duration("interval", interval))
			return
		}
		e.log.Error("watchdog: failed to arm fallback", zap.Error(err))
	}

	if e.timer.Armed() {
		e.timer.Cancel()
		e.timer.ClearExpired()
		e.log.Info("watchdog: disabled")
	}
	e.mode = ModeOff
}
