package rest

import (
	"context"

	"github.com/flyvercity/c2ng/internal/did"
	"github.com/flyvercity/c2ng/internal/server/storage"
	"github.com/flyvercity/c2ng/internal/session"
	"github.com/flyvercity/c2ng/internal/signal"
	"github.com/flyvercity/c2ng/internal/stats"
)

// The handlers see their backends through these narrow interfaces so they
// can be tested with in-memory fakes instead of live MongoDB, InfluxDB,
// Keycloak, and USSP connections.

// SessionManager opens and closes connectivity sessions.
type SessionManager interface {
	Open(ctx context.Context, req session.Request) (*session.Connection, error)
	Close(ctx context.Context, uasid string) error
}

// SessionReader is the subset of storage.Store used by the address and
// certificate handlers.
type SessionReader interface {
	GetSession(ctx context.Context, uasid string) (*storage.Session, error)
}

// SignalWriter records telemetry samples.
type SignalWriter interface {
	Write(ctx context.Context, uasid string, packet *signal.Packet) error
}

// StatsProvider serves aggregated telemetry views.
type StatsProvider interface {
	SignalStats(ctx context.Context, uasid string) ([]float64, error)
	ListSessions(ctx context.Context) ([]stats.SessionStats, error)
}

// TicketIssuer mints WebSocket tickets for authenticated clients.
type TicketIssuer interface {
	Issue(uasid string, segment storage.Segment) (string, error)
}

// DIDProvider serves decentralized-identity artifacts.
type DIDProvider interface {
	IssueJWT(resourceID string) (string, error)
	GenerateConfig(resourceID string) (*did.VerifierConfig, error)
}
