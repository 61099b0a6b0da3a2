// Package timer provides a re-armable one-shot countdown on a monotonic clock.
//
// The countdown itself is driven by a clockwork.Clock; expiry is not run
// on the clock's goroutine but posted onto an event loop, where a
// generation check discards any expiry belonging to an arm that has since
// been cancelled or replaced.
//
// A Timer is not safe for concurrent use: every method, and the expiry
// handler, runs on the loop goroutine.
package timer

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sweeney/host-watchdog/internal/eventloop"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("timer: closed")

// Timer is a single deadline. States: off, armed, expired.
type Timer struct {
	clock   clockwork.Clock
	loop    eventloop.Poster
	handler func()
	log     *zap.Logger

	pending  clockwork.Timer
	deadline time.Time
	gen      uint64
	armed    bool
	expired  bool
	closed   bool
}

// New creates an unarmed Timer. handler runs on the loop each time a
// countdown completes.
func New(clock clockwork.Clock, loop eventloop.Poster, handler func(), log *zap.Logger) *Timer {
	return &Timer{
		clock:   clock,
		loop:    loop,
		handler: handler,
		log:     log,
	}
}

// Start arms the timer to fire once, d from now. Any pending countdown
// is superseded and the expired flag is cleared.
func (t *Timer) Start(d time.Duration) error {
	if t.closed {
		return ErrClosed
	}
	if d < 0 {
		d = 0
	}

	t.stopPending()
	t.gen++
	gen := t.gen
	t.deadline = t.clock.Now().Add(d)
	t.armed = true
	t.expired = false
	t.pending = t.clock.AfterFunc(d, func() {
		if !t.loop.Post(func() { t.fire(gen) }) {
			t.log.Debug("timer: loop stopped, dropping expiry", zap.Uint64("gen", gen))
		}
	})
	return nil
}

// Cancel disarms the timer. The expired flag is left as is.
func (t *Timer) Cancel() {
	t.stopPending()
	t.gen++
	t.armed = false
}

// ClearExpired resets the expired flag without arming.
func (t *Timer) ClearExpired() {
	t.expired = false
}

// Remaining is the time left until the deadline. Zero when disarmed or
// when the deadline has already passed; never negative.
func (t *Timer) Remaining() time.Duration {
	if !t.armed {
		return 0
	}
	left := t.deadline.Sub(t.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Armed reports whether a countdown is pending.
func (t *Timer) Armed() bool {
	return t.armed
}

// Expired reports whether the most recent arm ran to completion.
func (t *Timer) Expired() bool {
	return t.expired
}

// Close cancels any countdown and rejects further Start calls.
func (t *Timer) Close() {
	t.Cancel()
	t.closed = true
}

func (t *Timer) stopPending() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// fire runs on the loop. Stale generations belong to an arm that was
// cancelled or replaced after the clock had already fired.
func (t *Timer) fire(gen uint64) {
	if gen != t.gen || !t.armed {
		return
	}
	t.pending = nil
	t.armed = false
	t.expired = true
	if t.handler != nil {
		t.handler()
	}
}
