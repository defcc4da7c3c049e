package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "c2ng_sessions_opened_total",
		Help: "Successful session opens by segment.",
	}, []string{"segment"})

	openFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "c2ng_session_open_failures_total",
		Help: "Failed session opens by reason.",
	}, []string{"reason"})

	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "c2ng_notifications_sent_total",
		Help: "Peer notifications delivered to a subscriber, by event.",
	}, []string{"event"})

	notificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "c2ng_notifications_dropped_total",
		Help: "Peer notifications dropped on a full subscriber buffer, by event.",
	}, []string{"event"})
)
