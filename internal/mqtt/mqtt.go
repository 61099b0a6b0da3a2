// Package mqtt publishes watchdog state and timeouts to an MQTT broker
// and accepts property writes from it.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/host-watchdog/internal/bridge"
	"github.com/sweeney/host-watchdog/internal/watchdog"
)

// Topics derives every topic from one prefix, e.g. bmc/watchdog/host0.
type Topics struct {
	Prefix string
}

// State carries the retained property snapshot.
func (t Topics) State() string { return t.Prefix + "/state" }

// Timeout carries one message per dispatched expiry.
func (t Topics) Timeout() string { return t.Prefix + "/timeout" }

// System carries lifecycle events and the last will.
func (t Topics) System() string { return t.Prefix + "/system" }

// Set is the write topic for one property.
func (t Topics) Set(property string) string { return t.Prefix + "/set/" + property }

// SetFilter subscribes to writes of every property.
func (t Topics) SetFilter() string { return t.Prefix + "/set/+" }

// Reset triggers ResetTimeRemaining; the payload says whether to enable.
func (t Topics) Reset() string { return t.Prefix + "/reset" }

// property returns the property name of a set topic.
func (t Topics) property(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.Prefix+"/set/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// Publisher publishes watchdog events.
type Publisher interface {
	// PublishState sends the retained property snapshot.
	PublishState(p bridge.Properties) error

	// PublishTimeout reports one expiry. Must not block on the network:
	// it is called from the watchdog's event loop.
	PublishTimeout(event TimeoutEvent) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// TimeoutEvent is one dispatched expiry.
type TimeoutEvent struct {
	Timestamp time.Time
	Action    watchdog.Action
}

// SystemEvent represents a lifecycle event (STARTUP, SHUTDOWN, LWT, RECONNECTED).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // e.g. "SIGTERM" (shutdown only)
	RawPayload []byte // pre-formatted payload; FormatSystemPayload returns it as is
	Retained   bool
}

// Notifier adapts a Publisher to watchdog.Notifier.
type Notifier struct {
	Publisher Publisher
	Now       func() time.Time
}

// Timeout implements watchdog.Notifier.
func (n *Notifier) Timeout(a watchdog.Action) error {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return n.Publisher.PublishTimeout(TimeoutEvent{Timestamp: now(), Action: a})
}

// StatePayload is the retained state message.
type StatePayload struct {
	Watchdog StateInner `json:"watchdog"`
}

type StateInner struct {
	Timestamp string `json:"timestamp"`
	bridge.Properties
}

// FormatStatePayload creates the JSON payload for a property snapshot.
func FormatStatePayload(p bridge.Properties, ts time.Time) ([]byte, error) {
	return json.Marshal(StatePayload{Watchdog: StateInner{
		Timestamp:  ts.UTC().Format(time.RFC3339),
		Properties: p,
	}})
}

// TimeoutPayload is the timeout message.
type TimeoutPayload struct {
	Timeout TimeoutInner `json:"timeout"`
}

type TimeoutInner struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
}

// FormatTimeoutPayload creates the JSON payload for a timeout event.
func FormatTimeoutPayload(event TimeoutEvent) ([]byte, error) {
	return json.Marshal(TimeoutPayload{Timeout: TimeoutInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Action:    string(event.Action),
	}})
}

// SystemPayload is used for simple events (LWT, RECONNECTED) that don't
// carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{System: SystemPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}})
}
