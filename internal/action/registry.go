// Package action maps watchdog actions to external targets and starts
// them. Starting is fire-and-forget: the engine never waits for, or
// learns about, the outcome.
package action

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/host-watchdog/internal/watchdog"
)

// DefaultInvokeTimeout bounds a single start request.
const DefaultInvokeTimeout = 10 * time.Second

// TargetMap maps each action to the unit (or line) that carries it out.
// Actions without an entry have no target.
type TargetMap map[watchdog.Action]string

// Starter starts a named target. Implementations must be safe for
// concurrent use.
type Starter interface {
	StartUnit(ctx context.Context, target string) error
}

// Registry is an immutable action table bound to a Starter.
type Registry struct {
	targets TargetMap
	starter Starter
	log     *zap.Logger
	timeout time.Duration

	wg sync.WaitGroup
}

// NewRegistry copies targets so later changes by the caller are not seen.
func NewRegistry(targets TargetMap, starter Starter, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	copied := make(TargetMap, len(targets))
	for a, t := range targets {
		copied[a] = t
	}
	return &Registry{
		targets: copied,
		starter: starter,
		log:     log,
		timeout: DefaultInvokeTimeout,
	}
}

// Resolve returns the target mapped to a.
func (r *Registry) Resolve(a watchdog.Action) (string, bool) {
	t, ok := r.targets[a]
	return t, ok
}

// Invoke starts target on its own goroutine and returns immediately.
// Failures are logged, never reported back.
func (r *Registry) Invoke(target string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.starter.StartUnit(ctx, target); err != nil {
			r.log.Error("failed to start target", zap.String("target", target), zap.Error(err))
			return
		}
		r.log.Debug("started target", zap.String("target", target))
	}()
}

// Wait blocks until every Invoke issued so far has finished.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Entry is one row of the action table.
type Entry struct {
	Action watchdog.Action
	Target string
}

// Targets lists the table in the canonical action order.
func (r *Registry) Targets() []Entry {
	entries := make([]Entry, 0, len(r.targets))
	for a, t := range r.targets {
		entries = append(entries, Entry{Action: a, Target: t})
	}
	order := make(map[watchdog.Action]int, len(watchdog.Actions))
	for i, a := range watchdog.Actions {
		order[a] = i
	}
	sort.Slice(entries, func(i, j int) bool {
		return order[entries[i].Action] < order[entries[j].Action]
	})
	return entries
}
