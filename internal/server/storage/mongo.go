package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	databaseName      = "c2ng"
	sessionCollection = "c2session"
)

// ErrNotFound is returned by GetSession when no document exists for the
// requested UasID.
var ErrNotFound = errors.New("storage: session not found")

// Store is the MongoDB-backed storage layer for connectivity sessions.
//
// All operations are single-document reads and writes keyed by UasID, which
// MongoDB executes atomically; concurrent opens for the same session resolve
// by last-writer-wins on the upsert.
type Store struct {
	client   *mongo.Client
	sessions *mongo.Collection
}

// New connects to the MongoDB instance at uri, pings it, and returns a Store
// bound to the c2ng.c2session collection.
func New(ctx context.Context, uri string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &Store{
		client:   client,
		sessions: client.Database(databaseName).Collection(sessionCollection),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// GetSession returns the session document for uasid, or ErrNotFound when the
// UasID has never opened a session.
func (s *Store) GetSession(ctx context.Context, uasid string) (*Session, error) {
	var sess Session
	err := s.sessions.FindOne(ctx, bson.M{"_id": uasid}).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session %s: %w", uasid, err)
	}
	return &sess, nil
}

// PutSession upserts the whole session document under `_id` = UasID.
func (s *Store) PutSession(ctx context.Context, sess *Session) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.sessions.ReplaceOne(ctx, bson.M{"_id": sess.UasID}, sess, opts); err != nil {
		return fmt.Errorf("put session %s: %w", sess.UasID, err)
	}
	return nil
}

// ListSessions returns every session document in the collection. The
// collection holds one document per aircraft ever seen, so a full scan stays
// small; it backs the statistics and dashboard views.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	cur, err := s.sessions.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var sessions []Session
	if err := cur.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}
