// Package eventloop runs posted work on a single goroutine.
// Every watchdog engine mutation and every timer expiry goes through one
// Loop, so the engine itself needs no locks.
package eventloop

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrStopped is returned when work is submitted to a stopped loop.
var ErrStopped = errors.New("eventloop: stopped")

// Poster accepts work to run on the loop goroutine.
type Poster interface {
	// Post queues fn and returns immediately.
	// Returns false if the loop has stopped and fn will never run.
	Post(fn func()) bool
}

// Loop serializes posted functions onto the goroutine that calls Run.
type Loop struct {
	work     chan func()
	done     chan struct{}
	stopOnce sync.Once
	log      *zap.Logger
}

// New creates a Loop with room for queueLen pending functions.
func New(queueLen int, log *zap.Logger) *Loop {
	if queueLen <= 0 {
		queueLen = 64
	}
	return &Loop{
		work: make(chan func(), queueLen),
		done: make(chan struct{}),
		log:  log,
	}
}

// Post queues fn for the loop goroutine.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.work <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
// Must not be called from the loop goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// Run may have drained fn just before stopping.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted work until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.work:
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("eventloop: recovered from panic", zap.Any("panic", r))
		}
	}()
	fn()
}

// Stop ends Run. Pending work is dropped. Safe to call more than once
// and from the loop goroutine.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

// Done is closed once the loop has been stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
