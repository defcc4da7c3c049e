// Package storage provides the MongoDB-backed persistence layer for C2NG
// connectivity sessions. It exposes the session document model and a Store
// that wraps a mongo client with lookup, upsert, and full-scan operations
// over the c2session collection.
package storage

// Segment identifies which side of a C2 link an endpoint serves: the aerial
// unit ("ua") or the ground-side aviation data exchange ("adx").
type Segment string

const (
	SegmentUA  Segment = "ua"
	SegmentADX Segment = "adx"
)

// Valid reports whether s is one of the two defined segments.
func (s Segment) Valid() bool {
	return s == SegmentUA || s == SegmentADX
}

// Peer returns the opposite segment of a C2 link.
func (s Segment) Peer() Segment {
	if s == SegmentUA {
		return SegmentADX
	}
	return SegmentUA
}

// Session maps to a document in the `c2session` collection.
//
// The document `_id` is the UasID; the field is also stored verbatim so that
// scans can decode it without touching the raw `_id`. UA and ADX are nil
// until the corresponding segment opens a session, and each is replaced
// wholesale on every successful open (latest call wins).
type Session struct {
	UasID string           `bson:"UasID" json:"UasID"`
	UA    *SessionEndpoint `bson:"UA,omitempty" json:"UA,omitempty"`
	ADX   *SessionEndpoint `bson:"ADX,omitempty" json:"ADX,omitempty"`
}

// SessionEndpoint is the connectivity state of one segment of a session.
//
// KID identifies the most recently issued client credential; Certificate is
// the matching PEM. The encrypted private key is never persisted: it is
// handed to the requesting client once and dropped.
type SessionEndpoint struct {
	IP          string `bson:"IP" json:"IP"`
	GatewayIP   string `bson:"GatewayIP" json:"GatewayIP"`
	KID         string `bson:"KID" json:"KID"`
	Certificate string `bson:"Certificate" json:"Certificate"`
}

// Endpoint returns the endpoint record for seg, or nil when that segment has
// no session. An invalid segment also yields nil.
func (s *Session) Endpoint(seg Segment) *SessionEndpoint {
	switch seg {
	case SegmentUA:
		return s.UA
	case SegmentADX:
		return s.ADX
	}
	return nil
}

// SetEndpoint replaces the endpoint record for seg. Invalid segments are
// ignored.
func (s *Session) SetEndpoint(seg Segment, ep *SessionEndpoint) {
	switch seg {
	case SegmentUA:
		s.UA = ep
	case SegmentADX:
		s.ADX = ep
	}
}
