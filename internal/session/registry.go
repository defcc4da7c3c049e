// Package session implements the C2NG session manager and the registry of
// peer notification subscribers.
//
// The manager owns the session lifecycle: flight approval, slice address
// allocation, credential issuance, persistence, and the peer notifications
// that follow every successful open. The registry tracks at most one live
// notification subscriber per (UasID, segment) slot and delivers events to
// it without ever blocking a session open.
package session

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/flyvercity/c2ng/internal/server/storage"
)

// Events pushed to a subscribed peer when the opposite segment of its
// session changes.
const (
	EventPeerAddressChanged     = "peer-address-changed"
	EventPeerCredentialsChanged = "peer-credentials-changed"

	// EventRequestOwnSession asks an endpoint to re-open its own session.
	// Declared for protocol completeness; nothing emits it yet.
	EventRequestOwnSession = "request-own-session"
)

// Notification is the JSON frame pushed to a subscribed peer.
type Notification struct {
	Action string `json:"Action"`
	Event  string `json:"Event"`
}

// Subscriber is one registered notification receiver. It is created by
// Registry.Subscribe and receives marshalled Notification frames on its Send
// channel until the channel is closed by Unsubscribe, Remove, or a
// replacing Subscribe.
type Subscriber struct {
	id        string
	key       string
	send      chan []byte
	closeOnce sync.Once
	Dropped   atomic.Int64 // incremented when the send buffer is full
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string { return s.id }

// Send returns the channel on which notification frames are delivered. The
// channel is closed when the subscriber leaves the registry.
func (s *Subscriber) Send() <-chan []byte { return s.send }

// closeSend closes the send channel exactly once.
func (s *Subscriber) closeSend() {
	s.closeOnce.Do(func() { close(s.send) })
}

// Registry tracks at most one notification subscriber per (UasID, segment)
// slot. A later Subscribe for the same slot silently replaces the earlier
// subscriber: the old channel is closed, the old socket stays open and
// simply stops receiving.
//
// All map mutations, channel closes, and the non-blocking delivery in
// Notify run under one mutex; none of them can block, so the lock is never
// held across real I/O.
type Registry struct {
	mu      sync.Mutex
	subs    map[string]*Subscriber
	bufSize int
	logger  *slog.Logger
}

// NewRegistry creates a Registry. bufSize is the per-subscriber channel
// buffer depth; pass 0 to use the default of 16, which covers many session
// reopens between socket writes.
func NewRegistry(logger *slog.Logger, bufSize int) *Registry {
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Registry{
		subs:    make(map[string]*Subscriber),
		bufSize: bufSize,
		logger:  logger,
	}
}

// subscriberKey builds the slot key for a (UasID, segment) pair.
func subscriberKey(uasid string, segment storage.Segment) string {
	return uasid + "::" + string(segment)
}

// Subscribe registers a receiver for (uasid, segment), replacing any
// current holder of the slot.
func (r *Registry) Subscribe(uasid string, segment storage.Segment) *Subscriber {
	sub := &Subscriber{
		id:   uuid.NewString(),
		key:  subscriberKey(uasid, segment),
		send: make(chan []byte, r.bufSize),
	}

	r.mu.Lock()
	if old, ok := r.subs[sub.key]; ok {
		old.closeSend()
	}
	r.subs[sub.key] = sub
	r.mu.Unlock()

	return sub
}

// Unsubscribe removes whatever subscriber currently holds the
// (uasid, segment) slot and closes its channel. Unknown slots are a no-op.
func (r *Registry) Unsubscribe(uasid string, segment storage.Segment) {
	key := subscriberKey(uasid, segment)

	r.mu.Lock()
	if sub, ok := r.subs[key]; ok {
		delete(r.subs, key)
		sub.closeSend()
	}
	r.mu.Unlock()
}

// Remove releases sub's slot if sub still holds it, and closes sub's
// channel either way. A subscriber that was already replaced cannot evict
// its replacement; this is the socket-close path.
func (r *Registry) Remove(sub *Subscriber) {
	r.mu.Lock()
	if cur, ok := r.subs[sub.key]; ok && cur.id == sub.id {
		delete(r.subs, sub.key)
	}
	sub.closeSend()
	r.mu.Unlock()
}

// Notify delivers event to the subscriber of (uasid, segment), if any.
// Delivery is best-effort: a missing subscriber or a full buffer drops the
// event with a log line, never blocking or retrying.
func (r *Registry) Notify(uasid string, segment storage.Segment, event string) {
	raw, err := json.Marshal(Notification{Action: "notification", Event: event})
	if err != nil {
		r.logger.Error("registry: marshal notification failed", slog.Any("error", err))
		return
	}
	key := subscriberKey(uasid, segment)

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[key]
	if !ok {
		r.logger.Info("registry: no subscriber for notification",
			slog.String("uasid", uasid),
			slog.String("segment", string(segment)),
			slog.String("event", event),
		)
		return
	}

	select {
	case sub.send <- raw:
		notificationsSent.WithLabelValues(event).Inc()
	default:
		sub.Dropped.Add(1)
		notificationsDropped.WithLabelValues(event).Inc()
		r.logger.Warn("registry: subscriber buffer full, dropping notification",
			slog.String("uasid", uasid),
			slog.String("segment", string(segment)),
			slog.String("event", event),
		)
	}
}
