package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/host-watchdog/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"millis": func(ms uint64) string {
		return (time.Duration(ms) * time.Millisecond).String()
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}).Parse(indexHTML))

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Host Watchdog</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.primary { color: green; font-weight: bold; }
.fallback { color: orange; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Host Watchdog</h1>
<p>{{.Config.Path}}</p>

<h2>Watchdog</h2>
<table>
<tr><th>Mode</th><td id="mode" class="{{.Watchdog.Mode}}">{{.Watchdog.Mode}}</td></tr>
<tr><th>Enabled</th><td>{{yesno .Watchdog.Enabled}}</td></tr>
<tr><th>Interval</th><td>{{millis .Watchdog.Interval}}</td></tr>
<tr><th>Time Remaining</th><td id="remaining">{{if .Watchdog.TimerArmed}}{{millis .Watchdog.TimeRemaining}}{{else}}-{{end}}</td></tr>
<tr><th>Expire Action</th><td>{{.Watchdog.ExpireAction}}</td></tr>
<tr><th>Current Timer Use</th><td>{{.Watchdog.CurrentTimerUse}}</td></tr>
<tr><th>Expired Timer Use</th><td>{{.Watchdog.ExpiredTimerUse}}</td></tr>
<tr><th>Initialized</th><td>{{yesno .Watchdog.Initialized}}</td></tr>
<tr><th>Expired</th><td>{{yesno .Watchdog.TimerExpired}}</td></tr>
</table>

<h2>Timeouts</h2>
<table>
<tr><th>Count</th><td>{{.Timeouts}}</td></tr>
{{with .LastTimeout}}<tr><th>Last</th><td>{{.Action}} at {{.Time.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>Action Targets</h2>
<table>
{{range .Config.Targets}}<tr><th>{{.Action}}</th><td>{{.Target}}</td></tr>
{{else}}<tr><td>none</td></tr>
{{end}}</table>
{{with .Config.Fallback}}
<h2>Fallback</h2>
<table>
<tr><th>Action</th><td>{{.Action}}</td></tr>
<tr><th>Interval</th><td>{{.IntervalMs}}ms</td></tr>
<tr><th>Always</th><td>{{yesno .Always}}</td></tr>
</table>
{{end}}
<h2>Connectivity</h2>
<table>
{{if .Config.Service}}<tr><th>D-Bus</th><td>{{.Config.Service}}</td></tr>{{end}}
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Prefix</th><td>{{.Config.MQTTPrefix}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Min Interval</th><td>{{.Config.MinIntervalMs}}ms</td></tr>
<tr><th>Continue</th><td>{{yesno .Config.Continue}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
