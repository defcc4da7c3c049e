package signal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pointsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "c2ng_signal_points_written_total",
		Help: "Telemetry points written to the signal store.",
	})

	writeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "c2ng_signal_write_failures_total",
		Help: "Telemetry points that failed to write.",
	})

	readFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "c2ng_signal_read_failures_total",
		Help: "Aggregate queries that failed.",
	})
)
