package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/mckinley/halloween-barrel/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
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
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"distance": func(cm float64, valid bool) string {
		if !valid {
			return "no reading"
		}
		return fmt.Sprintf("%.1f cm", cm)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Halloween Barrel</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.idle { color: #888; }
.active { color: green; font-weight: bold; }
.stopped { color: red; font-weight: bold; }
.ok { color: green; }
.bad { color: red; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Halloween Barrel</h1>

<h2>State</h2>
<table>
<tr><th>Sequence</th><td class="{{if eq (stateOrUnknown (printf "%s" .State)) "IDLE"}}idle{{else if eq (stateOrUnknown (printf "%s" .State)) "EMERGENCY_STOP"}}stopped{{else}}active{{end}}">{{stateOrUnknown (printf "%s" .State)}}</td></tr>
<tr><th>Distance</th><td>{{distance .DistanceCm .DistanceValid}}</td></tr>
{{if .HasTriggered}}<tr><th>Last Trigger</th><td>{{.LastTrigger.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
<tr><th>Failed Readings</th><td>{{.FailedReadings}}</td></tr>
</table>

<h2>Sensors</h2>
<table>
{{range .Sensors}}<tr><th>Sensor {{.ID}}</th><td class="{{if .Working}}ok{{else}}bad{{end}}">{{if .Working}}working{{else}}failed ({{.ConsecutiveFailures}} consecutive){{end}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Sequence Counts</h2>
<table>
<tr><th>Triggers</th><td>{{.Counts.Triggers}}</td></tr>
<tr><th>Completions</th><td>{{.Counts.Completions}}</td></tr>
<tr><th>Emergency Stops</th><td>{{.Counts.EmergencyStops}}</td></tr>
<tr><th>Cooldown Skips</th><td>{{.Counts.CooldownSkips}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Warning Band</th><td>{{.Config.WarningCm}}cm</td></tr>
<tr><th>Trigger Band</th><td>{{.Config.TriggerCm}}cm</td></tr>
<tr><th>Cooldown</th><td>{{.Config.CooldownSec}}s</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
