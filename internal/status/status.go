// Package status provides a thread-safe status tracker for the host-watchdog
// daemon. It is read by the HTTP handlers and by lifecycle MQTT events.
package status

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/host-watchdog/internal/bridge"
	"github.com/sweeney/host-watchdog/internal/watchdog"
)

// Target is one row of the action table, for display.
type Target struct {
	Action string
	Target string
}

// Fallback is the fallback policy, for display.
type Fallback struct {
	Action     string
	IntervalMs int64
	Always     bool
}

// Config contains daemon configuration for display.
type Config struct {
	Path          string
	Service       string
	Broker        string
	MQTTPrefix    string
	HTTPAddr      string
	HeartbeatMs   int64
	MinIntervalMs int64
	Continue      bool
	Targets       []Target
	Fallback      *Fallback
}

// Timeout records one dispatched expiry.
type Timeout struct {
	Time   time.Time
	Action watchdog.Action
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Watchdog      bridge.Properties
	Timeouts      int
	LastTimeout   *Timeout
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	clock clockwork.Clock

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker that starts now on clock.
func NewTracker(clock clockwork.Clock, cfg Config) *Tracker {
	return &Tracker{
		clock: clock,
		snap: Snapshot{
			StartTime: clock.Now(),
			Config:    cfg,
		},
	}
}

// Update stores the latest property snapshot. Registered with
// bridge.OnChange.
func (t *Tracker) Update(p bridge.Properties) {
	t.mu.Lock()
	t.snap.Watchdog = p
	t.mu.Unlock()
}

// RecordTimeout counts an expiry that dispatched action a.
func (t *Tracker) RecordTimeout(a watchdog.Action) {
	t.mu.Lock()
	t.snap.Timeouts++
	t.snap.LastTimeout = &Timeout{Time: t.clock.Now(), Action: a}
	t.mu.Unlock()
}

// Timeout implements watchdog.Notifier so the tracker sees every
// dispatched expiry.
func (t *Tracker) Timeout(a watchdog.Action) error {
	t.RecordTimeout(a)
	return nil
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastTimeout != nil {
		last := *s.LastTimeout
		s.LastTimeout = &last
	}
	t.mu.RUnlock()
	s.Now = t.clock.Now()
	return s
}
