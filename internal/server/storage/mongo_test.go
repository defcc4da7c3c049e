//go:build integration

// Run with:
//
//	go test -tags integration -v ./internal/server/storage/...
//
// Requires Docker (for testcontainers-go) and a reachable Docker socket.
package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/flyvercity/c2ng/internal/server/storage"
)

// setupStore starts a MongoDB container and returns a Store connected to it.
func setupStore(t *testing.T) (*storage.Store, func()) {
	t.Helper()
	ctx := context.Background()

	mongoContainer, err := tcmongo.RunContainer(ctx, testcontainers.WithImage("mongo:7"))
	if err != nil {
		t.Fatalf("start mongo container: %v", err)
	}

	uri, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		_ = mongoContainer.Terminate(ctx)
		t.Fatalf("get connection string: %v", err)
	}

	store, err := storage.New(ctx, uri)
	if err != nil {
		_ = mongoContainer.Terminate(ctx)
		t.Fatalf("storage.New: %v", err)
	}

	cleanup := func() {
		_ = store.Close(ctx)
		_ = mongoContainer.Terminate(ctx)
	}
	return store, cleanup
}

func testSession(uasid string) *storage.Session {
	return &storage.Session{
		UasID: uasid,
		UA: &storage.SessionEndpoint{
			IP:          "10.0.0.2",
			GatewayIP:   "10.0.0.1",
			KID:         "11111111-1111-1111-1111-111111111111",
			Certificate: "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n",
		},
	}
}

func TestPutAndGetSession(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	sess := testSession("drone-1")
	if err := store.PutSession(ctx, sess); err != nil {
		t.Fatalf("PutSession: %v", err)
	}

	got, err := store.GetSession(ctx, "drone-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UasID != "drone-1" {
		t.Errorf("UasID = %q, want %q", got.UasID, "drone-1")
	}
	if got.UA == nil {
		t.Fatal("UA endpoint missing after round-trip")
	}
	if got.UA.IP != sess.UA.IP || got.UA.GatewayIP != sess.UA.GatewayIP {
		t.Errorf("UA address = %q/%q, want %q/%q", got.UA.IP, got.UA.GatewayIP, sess.UA.IP, sess.UA.GatewayIP)
	}
	if got.UA.KID != sess.UA.KID {
		t.Errorf("UA.KID = %q, want %q", got.UA.KID, sess.UA.KID)
	}
	if got.ADX != nil {
		t.Errorf("ADX endpoint = %+v, want nil", got.ADX)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	_, err := store.GetSession(context.Background(), "never-seen")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetSession error = %v, want ErrNotFound", err)
	}
}

func TestPutSession_UpsertReplaces(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	sess := testSession("drone-2")
	if err := store.PutSession(ctx, sess); err != nil {
		t.Fatalf("initial PutSession: %v", err)
	}

	// Reissue the UA credential and connect the ADX side, then upsert again.
	sess.UA.KID = "22222222-2222-2222-2222-222222222222"
	sess.ADX = &storage.SessionEndpoint{
		IP:          "10.0.0.3",
		GatewayIP:   "10.0.0.1",
		KID:         "33333333-3333-3333-3333-333333333333",
		Certificate: "-----BEGIN CERTIFICATE-----\nMIIC\n-----END CERTIFICATE-----\n",
	}
	if err := store.PutSession(ctx, sess); err != nil {
		t.Fatalf("update PutSession: %v", err)
	}

	got, err := store.GetSession(ctx, "drone-2")
	if err != nil {
		t.Fatalf("GetSession after update: %v", err)
	}
	if got.UA.KID != "22222222-2222-2222-2222-222222222222" {
		t.Errorf("UA.KID = %q, want replaced value", got.UA.KID)
	}
	if got.ADX == nil || got.ADX.IP != "10.0.0.3" {
		t.Errorf("ADX endpoint = %+v, want IP 10.0.0.3", got.ADX)
	}
}

func TestListSessions(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	for _, uasid := range []string{"drone-3", "drone-4"} {
		if err := store.PutSession(ctx, testSession(uasid)); err != nil {
			t.Fatalf("PutSession(%s): %v", uasid, err)
		}
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	seen := map[string]bool{}
	for _, s := range sessions {
		seen[s.UasID] = true
	}
	if !seen["drone-3"] || !seen["drone-4"] {
		t.Errorf("sessions = %+v, want drone-3 and drone-4", seen)
	}
}
