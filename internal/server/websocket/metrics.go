package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "c2ng_websocket_clients",
		Help: "WebSocket notification clients currently connected.",
	})

	framesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "c2ng_websocket_frames_rejected_total",
		Help: "Inbound WebSocket frames rejected, by error code.",
	}, []string{"error"})
)
