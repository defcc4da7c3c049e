// Package websocket implements the notification frontend: short-lived
// ticket issuance and the ticket-authenticated WebSocket channel that
// delivers peer notifications to connected UA and ADX clients.
//
// Authentication is two-phase. A client first calls the bearer-authenticated
// ticket endpoint and receives a signed ticket binding its (UasID, segment)
// identity. It then opens the WebSocket and presents the ticket inside each
// subscribe or unsubscribe frame; the HTTP upgrade itself carries no
// credentials.
package websocket

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/flyvercity/c2ng/internal/server/storage"
)

// TicketManager signs and verifies WebSocket tickets and tracks the most
// recently issued ticket per (UasID, segment) slot. It is safe for
// concurrent use.
type TicketManager struct {
	secret []byte

	mu    sync.Mutex
	slots map[string]string
}

// NewTicketManager creates a TicketManager signing with secret. The secret
// comes from the environment, so an empty value means a deployment fault.
func NewTicketManager(secret string) (*TicketManager, error) {
	if secret == "" {
		return nil, errors.New("websocket: ticket secret is not set")
	}
	return &TicketManager{
		secret: []byte(secret),
		slots:  make(map[string]string),
	}, nil
}

// slotKey builds the slot key for a (UasID, segment) pair.
func slotKey(uasid string, segment storage.Segment) string {
	return uasid + "/" + string(segment)
}

// Issue signs a ticket binding (uasid, segment) and records it as the
// slot's current ticket, superseding any earlier one.
func (tm *TicketManager) Issue(uasid string, segment storage.Segment) (string, error) {
	claims := jwt.MapClaims{
		"UasID":   uasid,
		"Segment": string(segment),
	}

	ticket, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("websocket: sign ticket: %w", err)
	}

	tm.mu.Lock()
	tm.slots[slotKey(uasid, segment)] = ticket
	tm.mu.Unlock()

	return ticket, nil
}

// Decode verifies a ticket's signature and returns the identity it binds.
func (tm *TicketManager) Decode(ticket string) (string, storage.Segment, error) {
	claims := jwt.MapClaims{}

	_, err := jwt.ParseWithClaims(ticket, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return tm.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("websocket: invalid ticket: %w", err)
	}

	uasid, _ := claims["UasID"].(string)
	rawSegment, _ := claims["Segment"].(string)
	segment := storage.Segment(rawSegment)

	if uasid == "" || !segment.Valid() {
		return "", "", errors.New("websocket: ticket carries no usable identity")
	}

	return uasid, segment, nil
}

// Release frees the slot for (uasid, segment). Unknown slots are a no-op.
func (tm *TicketManager) Release(uasid string, segment storage.Segment) {
	tm.mu.Lock()
	delete(tm.slots, slotKey(uasid, segment))
	tm.mu.Unlock()
}
