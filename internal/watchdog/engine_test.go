package watchdog

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/host-watchdog/internal/timer"
)

// queue stands in for the event loop: posted expiries are run by the
// test goroutine, which is also the only goroutine calling the engine.
type queue struct {
	work chan func()
}

func (q *queue) Post(fn func()) bool {
	q.work <- fn
	return true
}

// expire advances the clock by d and runs the expiry it posts.
func (h *harness) expire(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	select {
	case fn := <-h.q.work:
		fn()
	case <-time.After(time.Second):
		h.t.Fatalf("no expiry posted after advancing %v", d)
	}
}

type fakeDispatcher struct {
	targets map[Action]string
	invoked []string
}

func (d *fakeDispatcher) Resolve(a Action) (string, bool) {
	target, ok := d.targets[a]
	return target, ok
}

func (d *fakeDispatcher) Invoke(target string) {
	d.invoked = append(d.invoked, target)
}

type fakeNotifier struct {
	actions []Action
	err     error
}

func (n *fakeNotifier) Timeout(a Action) error {
	n.actions = append(n.actions, a)
	return n.err
}

// faultTimer fails Start while failStart is set.
type faultTimer struct {
	*timer.Timer
	failStart bool
}

var errArm = errors.New("simulated arm failure")

func (f *faultTimer) Start(d time.Duration) error {
	if f.failStart {
		return errArm
	}
	return f.Timer.Start(d)
}

type harness struct {
	t          *testing.T
	e          *Engine
	clock      *clockwork.FakeClock
	q          *queue
	dispatcher *fakeDispatcher
	notifier   *fakeNotifier
	timer      *faultTimer
	timeouts   []Action
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: clockwork.NewFakeClock(),
		q:     &queue{work: make(chan func(), 16)},
		dispatcher: &fakeDispatcher{targets: map[Action]string{
			ActionHardReset:  "host-reset.target",
			ActionPowerOff:   "host-poweroff.target",
			ActionPowerCycle: "host-powercycle.target",
		}},
		notifier: &fakeNotifier{},
	}
	log := zaptest.NewLogger(t)

	e, err := New(cfg, Deps{
		Dispatcher: h.dispatcher,
		Logger:     log,
		OnTimeout:  func(a Action, _ bool) { h.timeouts = append(h.timeouts, a) },
		NewTimer: func(handler func()) Timer {
			h.timer = &faultTimer{Timer: timer.New(h.clock, h.q, handler, log)}
			return h.timer
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.AddNotifier(h.notifier)
	h.e = e
	return h
}

func (h *harness) enable() {
	h.t.Helper()
	got, err := h.e.SetEnabled(true)
	if err != nil || !got {
		h.t.Fatalf("SetEnabled(true): got (%v, %v), want (true, nil)", got, err)
	}
}

func (h *harness) assertOff(expired bool) {
	h.t.Helper()
	if h.e.Enabled() {
		h.t.Error("expected Enabled=false")
	}
	if got := h.e.TimeRemaining(); got != 0 {
		h.t.Errorf("TimeRemaining: got %v, want 0", got)
	}
	if h.e.TimerArmed() {
		h.t.Error("expected timer disarmed")
	}
	if h.e.TimerExpired() != expired {
		h.t.Errorf("TimerExpired: got %v, want %v", h.e.TimerExpired(), expired)
	}
	if h.e.Mode() != ModeOff {
		h.t.Errorf("Mode: got %v, want off", h.e.Mode())
	}
}

func (h *harness) assertFallback(remaining time.Duration) {
	h.t.Helper()
	if h.e.Enabled() {
		h.t.Error("fallback must report Enabled=false")
	}
	if !h.e.TimerArmed() {
		h.t.Error("expected timer armed in fallback")
	}
	if h.e.TimerExpired() {
		h.t.Error("expected TimerExpired=false in fallback")
	}
	if h.e.Mode() != ModeFallback {
		h.t.Errorf("Mode: got %v, want fallback", h.e.Mode())
	}
	if got := h.e.TimeRemaining(); got != remaining {
		h.t.Errorf("TimeRemaining: got %v, want %v", got, remaining)
	}
}

func TestCreateAndDontEnable(t *testing.T) {
	h := newHarness(t, Config{Path: "/xyz/openbmc_project/watchdog/host0"})

	h.assertOff(false)
	if got := h.e.Interval(); got != DefaultInterval {
		t.Errorf("Interval: got %v, want %v", got, DefaultInterval)
	}
	if got := h.e.ExpireAction(); got != ActionHardReset {
		t.Errorf("ExpireAction: got %q, want HardReset", got)
	}

	// Persistent properties are configurable while disabled.
	if got := h.e.SetExpireAction(ActionPowerOff); got != ActionPowerOff {
		t.Errorf("SetExpireAction: got %q", got)
	}
	if got := h.e.SetInterval(2 * DefaultInterval); got != 2*DefaultInterval {
		t.Errorf("SetInterval: got %v", got)
	}
	if h.e.ExpireAction() != ActionPowerOff || h.e.Interval() != 2*DefaultInterval {
		t.Error("persistent properties not retained")
	}

	// Scenario C: no deadline can be conjured from nothing.
	got, err := h.e.SetTimeRemaining(time.Second)
	if !errors.Is(err, ErrNotArmed) {
		t.Errorf("SetTimeRemaining: got err %v, want ErrNotArmed", err)
	}
	if got != 0 {
		t.Errorf("SetTimeRemaining: got %v, want 0", got)
	}
	h.assertOff(false)
}

func TestEnable(t *testing.T) {
	h := newHarness(t, Config{})

	h.enable()
	if !h.e.Enabled() {
		t.Error("expected Enabled=true")
	}
	if !h.e.TimerArmed() || h.e.TimerExpired() {
		t.Error("expected armed, not expired")
	}
	if got := h.e.TimeRemaining(); got != DefaultInterval {
		t.Errorf("TimeRemaining: got %v, want %v", got, DefaultInterval)
	}
}

func TestEnableIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})

	h.enable()
	h.clock.Advance(3 * time.Second)
	before := h.e.TimeRemaining()

	h.enable()
	if got := h.e.TimeRemaining(); got != before {
		t.Errorf("second enable reset the deadline: got %v, want %v", got, before)
	}
	if before != DefaultInterval-3*time.Second {
		t.Errorf("TimeRemaining: got %v, want %v", before, DefaultInterval-3*time.Second)
	}
}

func TestEnableThenDisable(t *testing.T) {
	h := newHarness(t, Config{})

	h.enable()
	got, err := h.e.SetEnabled(false)
	if err != nil || got {
		t.Fatalf("SetEnabled(false): got (%v, %v)", got, err)
	}
	h.assertOff(false)

	h.clock.Advance(2 * DefaultInterval)
	select {
	case fn := <-h.q.work:
		fn()
		t.Fatal("disabled watchdog posted an expiry")
	case <-time.After(50 * time.Millisecond):
	}
	if len(h.dispatcher.invoked) != 0 {
		t.Errorf("unexpected dispatch: %v", h.dispatcher.invoked)
	}
}

func TestDisableWhileOffIsNoop(t *testing.T) {
	h := newHarness(t, Config{})

	got, err := h.e.SetEnabled(false)
	if err != nil || got {
		t.Fatalf("SetEnabled(false): got (%v, %v)", got, err)
	}
	h.assertOff(false)
}

func TestScenarioAWaitTillEnd(t *testing.T) {
	h := newHarness(t, Config{})

	h.enable()
	if got := h.e.TimeRemaining(); got != 30000*time.Millisecond {
		t.Errorf("TimeRemaining: got %v, want 30s", got)
	}

	h.clock.Advance(5 * time.Second)
	if got := h.e.TimeRemaining(); got != 25000*time.Millisecond {
		t.Errorf("TimeRemaining after 5s: got %v, want 25s", got)
	}

	h.expire(25 * time.Second)
	h.assertOff(true)

	if len(h.dispatcher.invoked) != 1 || h.dispatcher.invoked[0] != "host-reset.target" {
		t.Errorf("invoked: got %v, want [host-reset.target]", h.dispatcher.invoked)
	}
	if len(h.notifier.actions) != 1 || h.notifier.actions[0] != ActionHardReset {
		t.Errorf("timeout signals: got %v, want [HardReset]", h.notifier.actions)
	}
	if len(h.timeouts) != 1 {
		t.Errorf("OnTimeout calls: got %d, want 1", len(h.timeouts))
	}
}

func TestResetTo5Seconds(t *testing.T) {
	h := newHarness(t, Config{})

	h.enable()
	h.clock.Advance(time.Second)

	got, err := h.e.SetTimeRemaining(5 * time.Second)
	if err != nil {
		t.Fatalf("SetTimeRemaining: %v", err)
	}
	if got != 5*time.Second {
		t.Errorf("SetTimeRemaining: got %v, want 5s", got)
	}
	if !h.e.Enabled() {
		t.Error("re-arming must keep the primary enabled")
	}

	h.expire(5 * time.Second)
	h.assertOff(true)
}

func TestTimeRemainingTruncatesToMilliseconds(t *testing.T) {
	h := newHarness(t, Config{})

	h.enable()
	h.clock.Advance(1500 * time.Microsecond)
	if got := h.e.TimeRemaining(); got != DefaultInterval-2*time.Millisecond {
		t.Errorf("TimeRemaining: got %v, want %v", got, DefaultInterval-2*time.Millisecond)
	}
}

func TestIntervalUpdateWhileRunning(t *testing.T) {
	h := newHarness(t, Config{})

	h.enable()
	if got := h.e.SetInterval(5 * time.Second); got != 5*time.Second {
		t.Fatalf("SetInterval: got %v", got)
	}

	// Only the interval changes; the running deadline is untouched.
	if got := h.e.TimeRemaining(); got != DefaultInterval {
		t.Errorf("TimeRemaining: got %v, want %v", got, DefaultInterval)
	}

	if err := h.e.ResetTimeRemaining(false); err != nil {
		t.Fatalf("ResetTimeRemaining: %v", err)
	}
	if got := h.e.TimeRemaining(); got != 5*time.Second {
		t.Errorf("TimeRemaining after reset: got %v, want 5s", got)
	}
}

func TestResetTimeRemainingWhileOff(t *testing.T) {
	h := newHarness(t, Config{})

	if err := h.e.ResetTimeRemaining(false); err != nil {
		t.Fatalf("ResetTimeRemaining(false): %v", err)
	}
	h.assertOff(false)

	if err := h.e.ResetTimeRemaining(true); err != nil {
		t.Fatalf("ResetTimeRemaining(true): %v", err)
	}
	if !h.e.Enabled() {
		t.Error("ResetTimeRemaining(true) should enable")
	}
	if got := h.e.TimeRemaining(); got != DefaultInterval {
		t.Errorf("TimeRemaining: got %v, want %v", got, DefaultInterval)
	}
}

func TestMinIntervalClamp(t *testing.T) {
	floor := 2 * time.Second
	h := newHarness(t, Config{MinInterval: floor})

	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, floor},
		{time.Second, floor},
		{floor - time.Millisecond, floor},
		{floor, floor},
		{floor + time.Millisecond, floor + time.Millisecond},
		{time.Minute, time.Minute},
	}
	for _, tt := range tests {
		if got := h.e.SetInterval(tt.in); got != tt.want {
			t.Errorf("SetInterval(%v): got %v, want %v", tt.in, got, tt.want)
		}
		if got := h.e.Interval(); got != tt.want {
			t.Errorf("Interval after SetInterval(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMinIntervalClampsTimeRemaining(t *testing.T) {
	h := newHarness(t, Config{MinInterval: 2 * time.Second})

	h.enable()
	got, err := h.e.SetTimeRemaining(time.Millisecond)
	if err != nil {
		t.Fatalf("SetTimeRemaining: %v", err)
	}
	if got != 2*time.Second {
		t.Errorf("SetTimeRemaining: got %v, want 2s", got)
	}
	if rem := h.e.TimeRemaining(); rem != 2*time.Second {
		t.Errorf("TimeRemaining: got %v, want 2s", rem)
	}
}

func TestConstructorMinIntervalAboveDefault(t *testing.T) {
	floor := DefaultInterval + 100*time.Millisecond
	h := newHarness(t, Config{MinInterval: floor})

	if got := h.e.Interval(); got != floor {
		t.Errorf("Interval: got %v, want %v", got, floor)
	}
}

func TestConstructorDefaultInterval(t *testing.T) {
	h := newHarness(t, Config{DefaultInterval: 5 * time.Second, MinInterval: time.Second})
	if got := h.e.Interval(); got != 5*time.Second {
		t.Errorf("Interval: got %v, want 5s", got)
	}

	h = newHarness(t, Config{DefaultInterval: 500 * time.Millisecond, MinInterval: time.Second})
	if got := h.e.Interval(); got != time.Second {
		t.Errorf("Interval clamped: got %v, want 1s", got)
	}
}

func TestFallbackTillEnd(t *testing.T) {
	primary := 5 * time.Second
	fallback := 2 * primary
	h := newHarness(t, Config{Fallback: &Fallback{Action: ActionPowerOff, Interval: fallback}})

	if got := h.e.SetInterval(primary); got != primary {
		t.Fatalf("SetInterval: got %v", got)
	}
	h.assertOff(false)

	h.enable()
	h.expire(primary)

	// Primary ran out: its action ran and the fallback took over.
	h.assertFallback(fallback)
	if len(h.dispatcher.invoked) != 1 || h.dispatcher.invoked[0] != "host-reset.target" {
		t.Errorf("invoked: got %v", h.dispatcher.invoked)
	}

	// Interval and action writes are visible but do not leave the fallback.
	newInterval := primary - time.Second
	if got := h.e.SetInterval(newInterval); got != newInterval {
		t.Errorf("SetInterval: got %v", got)
	}
	if got := h.e.SetExpireAction(ActionNone); got != ActionNone {
		t.Errorf("SetExpireAction: got %q", got)
	}
	h.assertFallback(fallback)

	// Setting TimeRemaining always resets to the fallback interval.
	h.clock.Advance(3 * time.Second)
	got, err := h.e.SetTimeRemaining(primary)
	if err != nil {
		t.Fatalf("SetTimeRemaining: %v", err)
	}
	if got != fallback {
		t.Errorf("SetTimeRemaining in fallback: got %v, want %v", got, fallback)
	}
	h.assertFallback(fallback)

	h.expire(fallback)
	h.assertOff(true)
	if len(h.dispatcher.invoked) != 2 || h.dispatcher.invoked[1] != "host-poweroff.target" {
		t.Errorf("fallback action: got %v", h.dispatcher.invoked)
	}

	// Re-enabling goes back to the primary with the current interval.
	h.enable()
	if got := h.e.TimeRemaining(); got != newInterval {
		t.Errorf("TimeRemaining after re-enable: got %v, want %v", got, newInterval)
	}
	if h.e.TimerExpired() {
		t.Error("re-enable must clear expired")
	}
}

func TestFallbackReEnable(t *testing.T) {
	primary := 5 * time.Second
	fallback := 2 * primary
	h := newHarness(t, Config{Fallback: &Fallback{Action: ActionPowerOff, Interval: fallback}})
	h.e.SetInterval(primary)

	h.enable()
	h.expire(primary)
	h.assertFallback(fallback)

	h.clock.Advance(time.Second)
	h.enable()
	if h.e.Mode() != ModePrimary {
		t.Errorf("Mode: got %v, want primary", h.e.Mode())
	}
	if got := h.e.TimeRemaining(); got != primary {
		t.Errorf("TimeRemaining: got %v, want %v", got, primary)
	}
}

func TestFallbackResetTimerEnable(t *testing.T) {
	primary := 5 * time.Second
	fallback := 2 * primary
	newInterval := 2 * fallback
	h := newHarness(t, Config{Fallback: &Fallback{Action: ActionPowerOff, Interval: fallback}})
	h.e.SetInterval(primary)

	h.enable()
	h.expire(primary)
	h.assertFallback(fallback)

	h.e.SetInterval(newInterval)
	if err := h.e.ResetTimeRemaining(true); err != nil {
		t.Fatalf("ResetTimeRemaining: %v", err)
	}
	if !h.e.Enabled() {
		t.Error("expected primary re-entered")
	}
	if got := h.e.TimeRemaining(); got != newInterval {
		t.Errorf("TimeRemaining: got %v, want %v", got, newInterval)
	}
}

func TestFallbackAlways(t *testing.T) {
	primary := 5 * time.Second
	fallback := 2 * primary
	h := newHarness(t, Config{
		MinInterval: time.Second,
		Fallback:    &Fallback{Action: ActionPowerOff, Interval: fallback, Always: true},
	})

	// Armed before the primary is ever enabled.
	h.assertFallback(fallback)

	h.e.SetInterval(primary)
	h.enable()
	if got := h.e.TimeRemaining(); got != primary {
		t.Errorf("TimeRemaining: got %v, want %v", got, primary)
	}

	h.expire(primary)
	h.assertFallback(fallback)

	// After the fallback runs out it is re-armed again.
	h.expire(fallback)
	h.assertFallback(fallback)

	want := []string{"host-reset.target", "host-poweroff.target"}
	if len(h.dispatcher.invoked) != len(want) {
		t.Fatalf("invoked: got %v, want %v", h.dispatcher.invoked, want)
	}
	for i := range want {
		if h.dispatcher.invoked[i] != want[i] {
			t.Errorf("invoked[%d]: got %q, want %q", i, h.dispatcher.invoked[i], want[i])
		}
	}
}

func TestFallbackAlwaysExpiresBeforeEnable(t *testing.T) {
	fallback := 10 * time.Second
	h := newHarness(t, Config{Fallback: &Fallback{Action: ActionPowerCycle, Interval: fallback, Always: true}})

	h.expire(fallback)
	h.assertFallback(fallback)
	if len(h.notifier.actions) != 1 || h.notifier.actions[0] != ActionPowerCycle {
		t.Errorf("timeout signals: got %v, want [PowerCycle]", h.notifier.actions)
	}
}

func TestDisableSettlesOff(t *testing.T) {
	fallback := 10 * time.Second
	h := newHarness(t, Config{Fallback: &Fallback{Action: ActionPowerOff, Interval: fallback}})

	h.enable()
	h.clock.Advance(time.Second)
	if _, err := h.e.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled(false): %v", err)
	}
	h.assertOff(false)

	h.clock.Advance(fallback)
	if n := len(h.q.work); n != 0 {
		t.Errorf("expiries posted after disable: got %d, want 0", n)
	}
	h.assertOff(false)
	if len(h.dispatcher.invoked) != 0 {
		t.Errorf("disabling must not dispatch: %v", h.dispatcher.invoked)
	}
	if len(h.notifier.actions) != 0 {
		t.Errorf("disabling must not signal: %v", h.notifier.actions)
	}
}

func TestDisableEntersFallbackWhenAlways(t *testing.T) {
	fallback := 10 * time.Second
	h := newHarness(t, Config{Fallback: &Fallback{Action: ActionPowerOff, Interval: fallback, Always: true}})

	h.enable()
	h.clock.Advance(time.Second)
	if _, err := h.e.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled(false): %v", err)
	}
	h.assertFallback(fallback)
	if len(h.dispatcher.invoked) != 0 {
		t.Errorf("disabling must not dispatch: %v", h.dispatcher.invoked)
	}
}

func TestDisableDuringFallbackKeepsWindow(t *testing.T) {
	primary := 5 * time.Second
	fallback := 10 * time.Second
	h := newHarness(t, Config{Fallback: &Fallback{Action: ActionPowerOff, Interval: fallback}})
	h.e.SetInterval(primary)

	h.enable()
	h.expire(primary)
	h.clock.Advance(4 * time.Second)

	if _, err := h.e.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled(false): %v", err)
	}
	h.assertFallback(fallback - 4*time.Second)
}

func TestExpiryWithNoTarget(t *testing.T) {
	h := newHarness(t, Config{})
	h.e.SetExpireAction(ActionNone)

	h.enable()
	h.expire(DefaultInterval)

	h.assertOff(true)
	if len(h.dispatcher.invoked) != 0 {
		t.Errorf("no target mapped, but invoked %v", h.dispatcher.invoked)
	}
	if len(h.notifier.actions) != 0 {
		t.Errorf("no target mapped, but signalled %v", h.notifier.actions)
	}
	if len(h.timeouts) != 1 || h.timeouts[0] != ActionNone {
		t.Errorf("OnTimeout: got %v, want [None]", h.timeouts)
	}
}

func TestExpiredTimerUseRecorded(t *testing.T) {
	h := newHarness(t, Config{})
	h.e.SetCurrentTimerUse(TimerUseOSLoad)

	h.enable()
	h.expire(DefaultInterval)

	if got := h.e.ExpiredTimerUse(); got != TimerUseOSLoad {
		t.Errorf("ExpiredTimerUse: got %q, want OSLoad", got)
	}
}

func TestNotifierFailureStillFallsBack(t *testing.T) {
	fallback := 10 * time.Second
	h := newHarness(t, Config{Fallback: &Fallback{Action: ActionPowerOff, Interval: fallback}})
	h.notifier.err = errors.New("bus gone")

	h.enable()
	h.expire(DefaultInterval)

	h.assertFallback(fallback)
	if len(h.dispatcher.invoked) != 1 {
		t.Errorf("dispatch should still run: %v", h.dispatcher.invoked)
	}
}

func TestEnableArmFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, Config{})
	h.timer.failStart = true

	got, err := h.e.SetEnabled(true)
	if !errors.Is(err, errArm) {
		t.Fatalf("SetEnabled(true): got err %v, want errArm", err)
	}
	if got {
		t.Error("SetEnabled should report false on failure")
	}
	h.assertOff(false)
}

func TestTimeRemainingArmFailureKeepsDeadline(t *testing.T) {
	h := newHarness(t, Config{})

	h.enable()
	h.clock.Advance(10 * time.Second)
	h.timer.failStart = true

	got, err := h.e.SetTimeRemaining(time.Minute)
	if !errors.Is(err, errArm) {
		t.Fatalf("SetTimeRemaining: got err %v, want errArm", err)
	}
	if got != 0 {
		t.Errorf("SetTimeRemaining: got %v, want 0", got)
	}
	if !h.e.Enabled() {
		t.Error("failed reset must keep the primary enabled")
	}
	if rem := h.e.TimeRemaining(); rem != 20*time.Second {
		t.Errorf("TimeRemaining: got %v, want 20s", rem)
	}
}

func TestFallbackArmFailureSettlesOff(t *testing.T) {
	h := newHarness(t, Config{Fallback: &Fallback{Action: ActionPowerOff, Interval: 10 * time.Second}})

	h.enable()
	h.timer.failStart = true
	h.expire(DefaultInterval)

	if h.e.Mode() != ModeOff {
		t.Errorf("Mode: got %v, want off", h.e.Mode())
	}
	if h.e.Enabled() || h.e.TimerArmed() {
		t.Error("expected disabled and disarmed")
	}
}

func TestNewRejectsBadFallbackAction(t *testing.T) {
	_, err := New(Config{Fallback: &Fallback{Action: "Explode", Interval: time.Second}}, Deps{
		Dispatcher: &fakeDispatcher{},
		Clock:      clockwork.NewFakeClock(),
		Loop:       &queue{work: make(chan func(), 1)},
	})
	if !errors.Is(err, ErrInvalidAction) {
		t.Errorf("got %v, want ErrInvalidAction", err)
	}
}

func TestNewRequiresDispatcher(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Error("expected error without dispatcher")
	}
}

func TestFallbackCopied(t *testing.T) {
	fb := &Fallback{Action: ActionPowerOff, Interval: time.Second}
	h := newHarness(t, Config{Fallback: fb})

	fb.Interval = time.Hour
	if got := h.e.Fallback().Interval; got != time.Second {
		t.Errorf("engine fallback changed through caller's pointer: %v", got)
	}
}

func TestCloseDisarms(t *testing.T) {
	h := newHarness(t, Config{})

	h.enable()
	h.e.Close()
	h.assertOff(false)

	if _, err := h.e.SetEnabled(true); !errors.Is(err, timer.ErrClosed) {
		t.Errorf("SetEnabled after Close: got %v, want timer.ErrClosed", err)
	}
}
