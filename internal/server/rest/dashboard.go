package rest

import (
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/flyvercity/c2ng/internal/stats"
)

// Signal quality thresholds in dBm.
const (
	excellentSignal = -80
	goodSignal      = -90
	fairSignal      = -100
	poorSignal      = -110
)

// Round-trip time thresholds in milliseconds.
const (
	excellentRTT = 40
	goodRTT      = 100
	fairRTT      = 200
)

// signalClass buckets a signal strength into a display class.
func signalClass(signal float64) string {
	switch {
	case signal >= excellentSignal:
		return "excellent"
	case signal >= goodSignal:
		return "good"
	case signal >= fairSignal:
		return "fair"
	case signal >= poorSignal:
		return "poor"
	default:
		return "none"
	}
}

// rttClass buckets a round-trip time into a display class.
func rttClass(rtt float64) string {
	switch {
	case rtt <= excellentRTT:
		return "excellent"
	case rtt <= goodRTT:
		return "good"
	case rtt <= fairRTT:
		return "fair"
	default:
		return "none"
	}
}

// dashboardRow is one rendered line of the session table.
type dashboardRow struct {
	UasID        string
	UAConnected  bool
	ADXConnected bool
	Signal       string
	SignalClass  string
	RTT          string
	RTTClass     string
}

// dashboardRows formats session stats for display. The quality class comes
// from the raw aggregate; the cell text is rounded, signal to a whole dBm
// and RTT to two decimals. Missing aggregates render as N/A with the "none"
// class.
func dashboardRows(sessions []stats.SessionStats) []dashboardRow {
	rows := make([]dashboardRow, 0, len(sessions))

	for _, sess := range sessions {
		row := dashboardRow{
			UasID:        sess.UasID,
			UAConnected:  sess.UAConnected,
			ADXConnected: sess.ADXConnected,
			Signal:       "N/A",
			SignalClass:  "none",
			RTT:          "N/A",
			RTTClass:     "none",
		}

		if sess.AvgSignal != nil {
			row.Signal = strconv.FormatFloat(math.Round(*sess.AvgSignal), 'f', -1, 64)
			row.SignalClass = signalClass(*sess.AvgSignal)
		}

		if sess.AvgRTT != nil {
			row.RTT = strconv.FormatFloat(math.Round(*sess.AvgRTT*100)/100, 'f', -1, 64)
			row.RTTClass = rttClass(*sess.AvgRTT)
		}

		rows = append(rows, row)
	}

	return rows
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<title>C2NG Dashboard</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.4em 0.8em; }
.excellent { background: #2e7d32; color: white; }
.good { background: #7cb342; }
.fair { background: #fdd835; }
.poor { background: #fb8c00; }
.none { background: #bdbdbd; }
.on { color: #2e7d32; font-weight: bold; }
.off { color: #9e9e9e; }
</style>
</head>
<body>
<h1>C2NG Sessions</h1>
<table>
<tr><th>UAS ID</th><th>UA</th><th>ADX</th><th>Avg Signal (dBm)</th><th>Avg RTT (ms)</th></tr>
{{range .}}<tr>
<td>{{.UasID}}</td>
<td class="{{if .UAConnected}}on{{else}}off{{end}}">{{if .UAConnected}}connected{{else}}offline{{end}}</td>
<td class="{{if .ADXConnected}}on{{else}}off{{end}}">{{if .ADXConnected}}connected{{else}}offline{{end}}</td>
<td class="{{.SignalClass}}">{{.Signal}}</td>
<td class="{{.RTTClass}}">{{.RTT}}</td>
</tr>
{{end}}</table>
</body>
</html>
`))

var dashboardErrorTemplate = template.Must(template.New("dashboard-error").Parse(`<!DOCTYPE html>
<html>
<head><title>C2NG Dashboard</title></head>
<body>
<h1>C2NG Sessions</h1>
<p>Session statistics are unavailable. See the service log.</p>
</body>
</html>
`))

// handleDashboard responds to GET /gui/dashboard with the rendered session
// table.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.stats.ListSessions(r.Context())
	if err != nil {
		s.logger.Error("rest: dashboard listing failed", slog.Any("error", err))
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusInternalServerError)
		_ = dashboardErrorTemplate.Execute(w, nil)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_ = dashboardTemplate.Execute(w, dashboardRows(sessions))
}
