package websocket_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/flyvercity/c2ng/internal/server/storage"
	"github.com/flyvercity/c2ng/internal/server/websocket"
	"github.com/flyvercity/c2ng/internal/session"
)

// frame mirrors every message the server can send; unused fields stay zero.
type frame struct {
	Action  string `json:"Action"`
	Event   string `json:"Event"`
	Error   string `json:"Error"`
	Message string `json:"Message"`
}

// testEnv wires a handler, its registry and its ticket manager behind an
// httptest server.
type testEnv struct {
	srv      *httptest.Server
	registry *session.Registry
	tickets  *websocket.TicketManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	tickets, err := websocket.NewTicketManager("test-secret")
	if err != nil {
		t.Fatalf("NewTicketManager: %v", err)
	}

	registry := session.NewRegistry(logger, 16)
	srv := httptest.NewServer(websocket.NewHandler(tickets, registry, logger))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, registry: registry, tickets: tickets}
}

// dial opens a WebSocket connection to the test server.
func (env *testEnv) dial(t *testing.T) *gws.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http")
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

// ticket issues a ticket for the given identity.
func (env *testEnv) ticket(t *testing.T, uasid string, segment storage.Segment) string {
	t.Helper()

	ticket, err := env.tickets.Issue(uasid, segment)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return ticket
}

// sendFrame writes a JSON frame to the connection.
func sendFrame(t *testing.T, conn *gws.Conn, v any) {
	t.Helper()

	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

// readFrame reads one frame within a second.
func readFrame(t *testing.T, conn *gws.Conn) frame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return f
}

// expectSilence asserts that no frame arrives within the given window. A
// timed-out read poisons the connection for gorilla, so this must be the
// last read a test performs on conn.
func expectSilence(t *testing.T, conn *gws.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}

	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected frame %q", raw)
	}

	var nerr net.Error
	if !errors.As(err, &nerr) || !nerr.Timeout() {
		t.Fatalf("read failed with %v, want timeout", err)
	}
}

// subscribe performs the subscribe exchange and asserts the acknowledgement.
func subscribe(t *testing.T, conn *gws.Conn, ticket string) {
	t.Helper()

	sendFrame(t, conn, map[string]string{"Ticket": ticket, "Action": "subscribe"})

	if f := readFrame(t, conn); f.Action != "subscribed" {
		t.Fatalf("ack Action = %q, want %q", f.Action, "subscribed")
	}
}

// TestSubscribeReceivesNotifications verifies the full happy path: a client
// subscribes with a valid ticket, is acknowledged, and then receives peer
// events in the order the registry emits them.
func TestSubscribeReceivesNotifications(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	conn := env.dial(t)

	subscribe(t, conn, env.ticket(t, "drone-17", storage.SegmentUA))

	env.registry.Notify("drone-17", storage.SegmentUA, session.EventPeerAddressChanged)
	env.registry.Notify("drone-17", storage.SegmentUA, session.EventPeerCredentialsChanged)

	first := readFrame(t, conn)
	if first.Action != "notification" || first.Event != session.EventPeerAddressChanged {
		t.Fatalf("first frame = %+v, want address notification", first)
	}

	second := readFrame(t, conn)
	if second.Action != "notification" || second.Event != session.EventPeerCredentialsChanged {
		t.Fatalf("second frame = %+v, want credentials notification", second)
	}
}

// TestSubscribeMissingTicket verifies that a frame without a ticket is
// refused with access_denied and the socket survives to subscribe properly.
func TestSubscribeMissingTicket(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	conn := env.dial(t)

	sendFrame(t, conn, map[string]string{"Action": "subscribe"})

	f := readFrame(t, conn)
	if f.Action != "error" || f.Error != "access_denied" {
		t.Fatalf("frame = %+v, want access_denied error", f)
	}

	subscribe(t, conn, env.ticket(t, "drone-17", storage.SegmentUA))
}

// TestSubscribeInvalidTicket verifies that an undecodable ticket is refused
// with access_denied.
func TestSubscribeInvalidTicket(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	conn := env.dial(t)

	sendFrame(t, conn, map[string]string{"Ticket": "garbage", "Action": "subscribe"})

	f := readFrame(t, conn)
	if f.Action != "error" || f.Error != "access_denied" {
		t.Fatalf("frame = %+v, want access_denied error", f)
	}
}

// TestMalformedFrame verifies that non-JSON input draws a bad_request error
// frame instead of dropping the connection.
func TestMalformedFrame(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	conn := env.dial(t)

	if err := conn.WriteMessage(gws.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	f := readFrame(t, conn)
	if f.Action != "error" || f.Error != "bad_request" {
		t.Fatalf("frame = %+v, want bad_request error", f)
	}

	subscribe(t, conn, env.ticket(t, "drone-17", storage.SegmentUA))
}

// TestUnknownAction verifies that a valid ticket with an unrecognized action
// is refused with bad_request.
func TestUnknownAction(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	conn := env.dial(t)

	ticket := env.ticket(t, "drone-17", storage.SegmentUA)
	sendFrame(t, conn, map[string]string{"Ticket": ticket, "Action": "dance"})

	f := readFrame(t, conn)
	if f.Action != "error" || f.Error != "bad_request" {
		t.Fatalf("frame = %+v, want bad_request error", f)
	}
}

// TestMissingAction verifies that a valid ticket without an action is
// refused with bad_request.
func TestMissingAction(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	conn := env.dial(t)

	ticket := env.ticket(t, "drone-17", storage.SegmentUA)
	sendFrame(t, conn, map[string]string{"Ticket": ticket})

	f := readFrame(t, conn)
	if f.Action != "error" || f.Error != "bad_request" {
		t.Fatalf("frame = %+v, want bad_request error", f)
	}
}

// TestIdentityConflict verifies that a socket bound by its first subscribe
// refuses a ticket for a different identity.
func TestIdentityConflict(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	conn := env.dial(t)

	subscribe(t, conn, env.ticket(t, "drone-17", storage.SegmentUA))

	other := env.ticket(t, "drone-17", storage.SegmentADX)
	sendFrame(t, conn, map[string]string{"Ticket": other, "Action": "subscribe"})

	f := readFrame(t, conn)
	if f.Action != "error" || f.Error != "bad_request" {
		t.Fatalf("frame = %+v, want bad_request error", f)
	}
}

// TestUnsubscribeStopsDelivery verifies that unsubscribe halts notifications
// without an acknowledgement and leaves the socket usable for a fresh
// subscribe.
func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	conn := env.dial(t)

	ticket := env.ticket(t, "drone-17", storage.SegmentUA)
	subscribe(t, conn, ticket)

	sendFrame(t, conn, map[string]string{"Ticket": ticket, "Action": "unsubscribe"})

	// Frames are processed in order, so the error reply to this probe
	// proves the unsubscribe ahead of it was handled.
	sendFrame(t, conn, map[string]string{"Ticket": ticket, "Action": "probe"})
	if f := readFrame(t, conn); f.Error != "bad_request" {
		t.Fatalf("probe reply = %+v, want bad_request error", f)
	}

	// This event has no subscriber to go to; if the unsubscribe had not
	// taken effect it would be the first frame read below.
	env.registry.Notify("drone-17", storage.SegmentUA, session.EventPeerCredentialsChanged)

	subscribe(t, conn, ticket)

	env.registry.Notify("drone-17", storage.SegmentUA, session.EventPeerAddressChanged)
	if f := readFrame(t, conn); f.Event != session.EventPeerAddressChanged {
		t.Fatalf("frame = %+v, want address notification", f)
	}

	expectSilence(t, conn, 150*time.Millisecond)
}

// TestUnsubscribeBeforeSubscribe verifies that unsubscribe on an unbound
// socket is refused with bad_request.
func TestUnsubscribeBeforeSubscribe(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	conn := env.dial(t)

	ticket := env.ticket(t, "drone-17", storage.SegmentUA)
	sendFrame(t, conn, map[string]string{"Ticket": ticket, "Action": "unsubscribe"})

	f := readFrame(t, conn)
	if f.Action != "error" || f.Error != "bad_request" {
		t.Fatalf("frame = %+v, want bad_request error", f)
	}
}

// TestResubscribeRefreshesRegistration verifies that subscribing twice with
// the same ticket keeps exactly one live registration.
func TestResubscribeRefreshesRegistration(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	conn := env.dial(t)

	ticket := env.ticket(t, "drone-17", storage.SegmentUA)
	subscribe(t, conn, ticket)
	subscribe(t, conn, ticket)

	env.registry.Notify("drone-17", storage.SegmentUA, session.EventPeerAddressChanged)

	if f := readFrame(t, conn); f.Event != session.EventPeerAddressChanged {
		t.Fatalf("frame = %+v, want address notification", f)
	}

	expectSilence(t, conn, 150*time.Millisecond)
}

// TestSupersededSocketDoesNotEvictReplacement verifies that when a second
// socket takes over an identity, closing the first one leaves the second
// socket's registration intact.
func TestSupersededSocketDoesNotEvictReplacement(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	first := env.dial(t)
	subscribe(t, first, env.ticket(t, "drone-17", storage.SegmentUA))

	second := env.dial(t)
	subscribe(t, second, env.ticket(t, "drone-17", storage.SegmentUA))

	first.Close()
	// Give the server a moment to run the first socket's teardown.
	time.Sleep(50 * time.Millisecond)

	env.registry.Notify("drone-17", storage.SegmentUA, session.EventPeerAddressChanged)

	if f := readFrame(t, second); f.Event != session.EventPeerAddressChanged {
		t.Fatalf("frame = %+v, want address notification", f)
	}
}
