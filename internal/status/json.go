package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/host-watchdog/internal/bridge"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string            `json:"event,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Watchdog      bridge.Properties `json:"watchdog"`
	Timeouts      int               `json:"timeouts"`
	LastTimeout   *TimeoutJSON      `json:"last_timeout,omitempty"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StartTime     string            `json:"start_time"`
	Timestamp     string            `json:"timestamp"`
	MQTT          MQTTStatus        `json:"mqtt"`
	Config        ConfigJSON        `json:"config"`
}

// TimeoutJSON is the JSON representation of the last expiry.
type TimeoutJSON struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Prefix    string `json:"prefix,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Path          string            `json:"path"`
	Service       string            `json:"service,omitempty"`
	HTTPAddr      string            `json:"http_addr"`
	HeartbeatMs   int64             `json:"heartbeat_ms"`
	MinIntervalMs int64             `json:"min_interval_ms"`
	Continue      bool              `json:"continue"`
	Targets       map[string]string `json:"action_targets"`
	Fallback      *FallbackJSON     `json:"fallback,omitempty"`
}

// FallbackJSON is the JSON representation of the fallback policy.
type FallbackJSON struct {
	Action     string `json:"action"`
	IntervalMs int64  `json:"interval_ms"`
	Always     bool   `json:"always"`
}

func buildInner(snap Snapshot) StatusInner {
	targets := make(map[string]string, len(snap.Config.Targets))
	for _, t := range snap.Config.Targets {
		targets[t.Action] = t.Target
	}

	inner := StatusInner{
		Watchdog:      snap.Watchdog,
		Timeouts:      snap.Timeouts,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Prefix:    snap.Config.MQTTPrefix,
		},
		Config: ConfigJSON{
			Path:          snap.Config.Path,
			Service:       snap.Config.Service,
			HTTPAddr:      snap.Config.HTTPAddr,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			MinIntervalMs: snap.Config.MinIntervalMs,
			Continue:      snap.Config.Continue,
			Targets:       targets,
		},
	}
	if snap.LastTimeout != nil {
		inner.LastTimeout = &TimeoutJSON{
			Timestamp: snap.LastTimeout.Time.UTC().Format(time.RFC3339),
			Action:    string(snap.LastTimeout.Action),
		}
	}
	if fb := snap.Config.Fallback; fb != nil {
		inner.Config.Fallback = &FallbackJSON{Action: fb.Action, IntervalMs: fb.IntervalMs, Always: fb.Always}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
