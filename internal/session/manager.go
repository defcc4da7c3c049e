package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flyvercity/c2ng/internal/security"
	"github.com/flyvercity/c2ng/internal/server/storage"
	"github.com/flyvercity/c2ng/internal/slice"
)

// Store is the slice of session persistence the manager needs.
type Store interface {
	GetSession(ctx context.Context, uasid string) (*storage.Session, error)
	PutSession(ctx context.Context, sess *storage.Session) error
}

// Approver asks the USS provider whether a flight is approved.
type Approver interface {
	Request(ctx context.Context, uasid string) (bool, error)
}

// CredentialIssuer mints client credentials for a session endpoint.
type CredentialIssuer interface {
	Issue(clientID string) (*security.Credential, error)
}

// Error is a session open failure that carries the structured error object
// returned to the requesting client.
type Error struct {
	// Errors maps a failed aspect of the request to an error code.
	Errors map[string]string

	reason string
}

func (e *Error) Error() string {
	return "session: " + e.reason
}

var (
	// ErrIMSIRequired rejects an aerial open that lacks a subscriber identity.
	ErrIMSIRequired = &Error{
		reason: "imsi_required",
		Errors: map[string]string{"Request": "imsi_required"},
	}

	// ErrProviderUnavailable reports that the USS provider could not be reached.
	ErrProviderUnavailable = &Error{
		reason: "provider_unavailable",
		Errors: map[string]string{"USS": "provider_unavailable"},
	}

	// ErrFlightNotApproved reports a USS refusal to approve the flight.
	ErrFlightNotApproved = &Error{
		reason: "flight_not_approved",
		Errors: map[string]string{"USS": "flight_not_approved"},
	}
)

// Request carries the parameters of a session open.
type Request struct {
	UasID   string
	Segment storage.Segment

	// IMSI identifies the UA's cellular subscription. Required for the UA
	// segment, ignored for ADX.
	IMSI string
}

// Connection is the connectivity data returned to a successfully opened
// endpoint. EncryptedPrivateKey is returned once and never persisted.
type Connection struct {
	IP                  string
	GatewayIP           string
	KID                 string
	EncryptedPrivateKey string
}

// Manager owns the session lifecycle for both segments.
type Manager struct {
	store    Store
	uss      Approver
	slice    slice.Provider
	issuer   CredentialIssuer
	registry *Registry
	logger   *slog.Logger
}

// NewManager wires a Manager from its collaborators. The registry is shared
// with the WebSocket layer, which registers subscribers on it.
func NewManager(store Store, uss Approver, provider slice.Provider, issuer CredentialIssuer, registry *Registry, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		uss:      uss,
		slice:    provider,
		issuer:   issuer,
		registry: registry,
		logger:   logger,
	}
}

// Registry returns the shared notification registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Open establishes or refreshes the session endpoint for req.Segment. Every
// open allocates a fresh address and fresh credentials, persists the session,
// and only then notifies the opposite segment's subscriber.
func (m *Manager) Open(ctx context.Context, req Request) (*Connection, error) {
	conn, err := m.open(ctx, req)
	if err != nil {
		var serr *Error
		if errors.As(err, &serr) {
			openFailures.WithLabelValues(serr.reason).Inc()
		} else {
			openFailures.WithLabelValues("internal").Inc()
		}
		return nil, err
	}

	sessionsOpened.WithLabelValues(string(req.Segment)).Inc()
	return conn, nil
}

func (m *Manager) open(ctx context.Context, req Request) (*Connection, error) {
	switch req.Segment {
	case storage.SegmentUA:
		return m.openUA(ctx, req)
	case storage.SegmentADX:
		return m.openADX(ctx, req)
	default:
		return nil, fmt.Errorf("session: unknown segment %q", req.Segment)
	}
}

// openUA handles the aerial side: flight approval comes first, then address
// and credentials.
func (m *Manager) openUA(ctx context.Context, req Request) (*Connection, error) {
	if req.IMSI == "" {
		return nil, ErrIMSIRequired
	}

	approved, err := m.uss.Request(ctx, req.UasID)
	if err != nil {
		m.logger.Error("sessman: uss approval request failed",
			slog.String("uasid", req.UasID),
			slog.Any("error", err),
		)
		return nil, ErrProviderUnavailable
	}
	if !approved {
		m.logger.Info("sessman: flight not approved", slog.String("uasid", req.UasID))
		return nil, ErrFlightNotApproved
	}

	sess, err := m.fetchOrCreate(ctx, req.UasID)
	if err != nil {
		return nil, err
	}

	creds, err := m.slice.UECreds(ctx, req.IMSI)
	if err != nil {
		return nil, fmt.Errorf("session: allocate ua address: %w", err)
	}

	return m.establish(ctx, sess, storage.SegmentUA, creds)
}

// openADX handles the ground side. There is no flight to approve and no
// IMSI; addresses are allocated against the UasID itself.
func (m *Manager) openADX(ctx context.Context, req Request) (*Connection, error) {
	sess, err := m.fetchOrCreate(ctx, req.UasID)
	if err != nil {
		return nil, err
	}

	creds, err := m.slice.ADXCreds(ctx, req.UasID)
	if err != nil {
		return nil, fmt.Errorf("session: allocate adx address: %w", err)
	}

	return m.establish(ctx, sess, storage.SegmentADX, creds)
}

// establish issues credentials for the segment, stores the updated session,
// and notifies the opposite segment. Notifications go out only after the
// session document is durable.
func (m *Manager) establish(ctx context.Context, sess *storage.Session, segment storage.Segment, creds *slice.Creds) (*Connection, error) {
	cred, err := m.issuer.Issue(clientID(sess.UasID, segment))
	if err != nil {
		return nil, fmt.Errorf("session: issue credentials: %w", err)
	}

	sess.SetEndpoint(segment, &storage.SessionEndpoint{
		IP:          creds.IP,
		GatewayIP:   creds.Gateway,
		KID:         cred.KID,
		Certificate: cred.Certificate,
	})

	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: persist session: %w", err)
	}

	peer := segment.Peer()
	m.registry.Notify(sess.UasID, peer, EventPeerAddressChanged)
	m.registry.Notify(sess.UasID, peer, EventPeerCredentialsChanged)

	m.logger.Info("sessman: session endpoint established",
		slog.String("uasid", sess.UasID),
		slog.String("segment", string(segment)),
		slog.String("kid", cred.KID),
	)

	return &Connection{
		IP:                  creds.IP,
		GatewayIP:           creds.Gateway,
		KID:                 cred.KID,
		EncryptedPrivateKey: cred.EncryptedPrivateKey,
	}, nil
}

// fetchOrCreate loads the session for uasid, or starts a blank one when none
// is stored yet.
func (m *Manager) fetchOrCreate(ctx context.Context, uasid string) (*storage.Session, error) {
	sess, err := m.store.GetSession(ctx, uasid)
	if errors.Is(err, storage.ErrNotFound) {
		return &storage.Session{UasID: uasid}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: fetch session: %w", err)
	}
	return sess, nil
}

// Close tears down the session for uasid.
//
// TODO: release slice allocations and revoke outstanding credentials.
func (m *Manager) Close(ctx context.Context, uasid string) error {
	m.logger.Info("sessman: session close requested", slog.String("uasid", uasid))
	return nil
}

// clientID names the certificate subject for a session endpoint.
func clientID(uasid string, segment storage.Segment) string {
	return uasid + "::" + strings.ToUpper(string(segment))
}
