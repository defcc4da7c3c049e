// Package stats joins stored sessions with telemetry aggregates for the
// signal endpoint and the operator dashboard.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/flyvercity/c2ng/internal/server/storage"
	"github.com/flyvercity/c2ng/internal/signal"
)

// statsWindow is the trailing window for all operator-facing aggregates.
const statsWindow = 30 * time.Minute

// SignalReader serves windowed telemetry aggregates.
type SignalReader interface {
	Read(ctx context.Context, uasid, field string, window time.Duration) ([]float64, error)
}

// SessionLister scans the stored sessions.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]storage.Session, error)
}

// Manager composes sessions and telemetry into read-only views.
type Manager struct {
	signals  SignalReader
	sessions SessionLister
	logger   *slog.Logger
}

// NewManager wires a Manager from its backends.
func NewManager(signals SignalReader, sessions SessionLister, logger *slog.Logger) *Manager {
	return &Manager{
		signals:  signals,
		sessions: sessions,
		logger:   logger,
	}
}

// SignalStats returns the recent RSRP aggregates for one UAS, one value per
// recorded series.
func (m *Manager) SignalStats(ctx context.Context, uasid string) ([]float64, error) {
	return m.signals.Read(ctx, uasid, signal.FieldRSRP, statsWindow)
}

// SessionStats is one row of the session list join. Aggregates are nil when
// no telemetry was recorded in the window or the read failed.
type SessionStats struct {
	UasID        string
	AvgSignal    *float64
	AvgRTT       *float64
	UAConnected  bool
	ADXConnected bool
}

// ListSessions returns one row per stored session, ordered by UasID. A
// telemetry read failure for one UAS leaves that row's aggregate unset
// instead of failing the whole list.
func (m *Manager) ListSessions(ctx context.Context) ([]SessionStats, error) {
	sessions, err := m.sessions.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: list sessions: %w", err)
	}

	rows := []SessionStats{}
	for _, sess := range sessions {
		rows = append(rows, SessionStats{
			UasID:        sess.UasID,
			AvgSignal:    m.aggregate(ctx, sess.UasID, signal.FieldRSRP),
			AvgRTT:       m.aggregate(ctx, sess.UasID, signal.FieldRTT),
			UAConnected:  sess.UA != nil,
			ADXConnected: sess.ADX != nil,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].UasID < rows[j].UasID })
	return rows, nil
}

// aggregate blends the per-series means into one value for the row.
func (m *Manager) aggregate(ctx context.Context, uasid, field string) *float64 {
	values, err := m.signals.Read(ctx, uasid, field, statsWindow)
	if err != nil {
		m.logger.Warn("stats: aggregate read failed",
			slog.String("uasid", uasid),
			slog.String("field", field),
			slog.Any("error", err),
		)
		return nil
	}
	if len(values) == 0 {
		return nil
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	return &avg
}
