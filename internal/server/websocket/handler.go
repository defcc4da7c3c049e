package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flyvercity/c2ng/internal/server/storage"
	"github.com/flyvercity/c2ng/internal/session"
)

// writeTimeout bounds a single frame write so one stalled client cannot
// wedge its pump goroutine forever.
const writeTimeout = 10 * time.Second

// maxMessageSize caps inbound frames. Client frames carry a ticket and an
// action name, so anything larger is a misbehaving client.
const maxMessageSize = 4 * 1024

// Client frame actions.
const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
)

// Error codes carried in error frames.
const (
	errAccessDenied = "access_denied"
	errBadRequest   = "bad_request"
)

// clientFrame is a message received from a client. Every frame carries the
// ticket; the channel itself holds no credentials.
type clientFrame struct {
	Ticket string `json:"Ticket"`
	Action string `json:"Action"`
}

// ackFrame confirms a successful subscribe.
type ackFrame struct {
	Action string `json:"Action"`
}

// errorFrame reports a rejected frame. The socket stays open.
type errorFrame struct {
	Action  string `json:"Action"`
	Error   string `json:"Error"`
	Message string `json:"Message"`
}

// Handler upgrades notification requests to WebSocket connections and
// serves the subscribe protocol over them.
type Handler struct {
	tickets  *TicketManager
	registry *session.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket notification handler.
func NewHandler(tickets *TicketManager, registry *session.Registry, logger *slog.Logger) *Handler {
	return &Handler{
		tickets:  tickets,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients connect from drones and provider backends, not
			// browsers, so origin checks do not apply.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// client tracks the state of one WebSocket connection. A connection starts
// unauthenticated; the first valid subscribe binds its identity for the
// lifetime of the socket.
type client struct {
	h    *Handler
	conn *websocket.Conn

	writeMu sync.Mutex

	uasid   string
	segment storage.Segment
	sub     *session.Subscriber
}

// ServeHTTP upgrades the connection and runs the read loop until the client
// disconnects or a write fails.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket: upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Any("error", err),
		)
		return
	}

	h.logger.Info("websocket: client connected", slog.String("remote_addr", r.RemoteAddr))
	clientsConnected.Inc()
	defer clientsConnected.Dec()

	conn.SetReadLimit(maxMessageSize)

	c := &client{h: h, conn: conn}
	defer c.teardown()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.logger.Info("websocket: client disconnected",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("uasid", c.uasid),
			)
			return
		}

		if !c.handleFrame(raw) {
			return
		}
	}
}

// handleFrame processes one inbound frame. It reports whether the
// connection should keep being served; protocol errors are answered with an
// error frame and do not end the connection.
func (c *client) handleFrame(raw []byte) bool {
	var frame clientFrame

	if err := json.Unmarshal(raw, &frame); err != nil {
		return c.reject(errBadRequest, "malformed message")
	}

	if frame.Ticket == "" {
		return c.reject(errAccessDenied, "ticket missing")
	}

	uasid, segment, err := c.h.tickets.Decode(frame.Ticket)
	if err != nil {
		c.h.logger.Warn("websocket: ticket rejected", slog.Any("error", err))
		return c.reject(errAccessDenied, "invalid ticket")
	}

	switch frame.Action {
	case actionSubscribe:
		return c.subscribe(uasid, segment)
	case actionUnsubscribe:
		return c.unsubscribe(uasid, segment)
	case "":
		return c.reject(errBadRequest, "action missing")
	default:
		return c.reject(errBadRequest, fmt.Sprintf("unknown action %q", frame.Action))
	}
}

// subscribe binds the socket to the ticket identity on first use and
// registers it for notifications. Re-subscribing refreshes the registration
// and is acknowledged again; a ticket for a different identity is rejected.
func (c *client) subscribe(uasid string, segment storage.Segment) bool {
	if c.uasid != "" && (c.uasid != uasid || c.segment != segment) {
		return c.reject(errBadRequest, "socket is bound to another identity")
	}

	if c.uasid == "" {
		c.uasid = uasid
		c.segment = segment
	}

	c.sub = c.h.registry.Subscribe(uasid, segment)
	go c.pump(uasid, c.sub)

	c.h.logger.Info("websocket: subscribed",
		slog.String("uasid", uasid),
		slog.String("segment", string(segment)),
	)

	return c.send(ackFrame{Action: "subscribed"})
}

// unsubscribe removes the registration for the bound identity. The socket
// stays open and the client may subscribe again; no acknowledgement is sent.
func (c *client) unsubscribe(uasid string, segment storage.Segment) bool {
	if c.uasid == "" || c.uasid != uasid || c.segment != segment {
		return c.reject(errBadRequest, "not subscribed with this identity")
	}

	c.h.registry.Unsubscribe(uasid, segment)
	c.sub = nil

	c.h.logger.Info("websocket: unsubscribed",
		slog.String("uasid", uasid),
		slog.String("segment", string(segment)),
	)

	return true
}

// pump forwards registry notifications to the socket until the subscription
// channel closes, which happens on unsubscribe or when a newer subscriber
// takes over the slot. It runs off the read loop, so it takes the identity
// as an argument instead of touching client state.
func (c *client) pump(uasid string, sub *session.Subscriber) {
	for raw := range sub.Send() {
		if err := c.write(raw); err != nil {
			c.h.logger.Warn("websocket: notification write failed",
				slog.String("uasid", uasid),
				slog.Any("error", err),
			)
			return
		}
	}
}

// teardown releases everything the connection holds. The registry removal
// is identity-checked, so a socket that was superseded cannot evict its
// replacement.
func (c *client) teardown() {
	if c.uasid != "" {
		c.h.tickets.Release(c.uasid, c.segment)
	}
	if c.sub != nil {
		c.h.registry.Remove(c.sub)
	}
	c.conn.Close()
}

// reject answers a bad frame with an error frame and keeps the connection
// going as long as the write itself succeeds.
func (c *client) reject(code string, message string) bool {
	c.h.logger.Warn("websocket: frame rejected",
		slog.String("error", code),
		slog.String("detail", message),
	)
	framesRejected.WithLabelValues(code).Inc()

	return c.send(errorFrame{Action: "error", Error: code, Message: message})
}

// send marshals and writes a frame, reporting whether the connection is
// still usable.
func (c *client) send(v any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		c.h.logger.Error("websocket: marshal frame", slog.Any("error", err))
		c.closeInternal()
		return false
	}

	if err := c.write(raw); err != nil {
		c.h.logger.Warn("websocket: write failed",
			slog.String("uasid", c.uasid),
			slog.Any("error", err),
		)
		return false
	}

	return true
}

// write sends one text frame. The pump goroutine and the read loop both
// write to the socket, so writes are serialized here.
func (c *client) write(raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}

	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// closeInternal signals an unexpected server-side failure before dropping
// the connection.
func (c *client) closeInternal() {
	msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error")

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
}
