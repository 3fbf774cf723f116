package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benpsk/account-starter/internal/session"
	"github.com/google/uuid"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	client, err := Connect(context.Background(), "redis://"+mini.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client), mini
}

func TestConnectRejectsBadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "http://not-redis"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSessionStoreCreateFindAndExpire(t *testing.T) {
	store, mini := newTestStore(t)
	ctx := context.Background()
	accountID := uuid.New()

	err := store.Create(ctx, session.Session{
		TokenHash: "hash-1",
		AccountID: accountID,
		ExpiresAt: time.Now().Add(time.Hour),
		IP:        "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.FindByTokenHash(ctx, "hash-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.AccountID != accountID || got.IP != "10.0.0.1" || got.CreatedAt.IsZero() {
		t.Fatalf("unexpected session: %+v", got)
	}
	if ttl := mini.TTL("session:hash-1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mini.FastForward(2 * time.Hour)
	if _, err := store.FindByTokenHash(ctx, "hash-1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestSessionStoreRejectsInvalidSessions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, session.Session{TokenHash: "h", ExpiresAt: time.Now().Add(time.Hour)}); err == nil {
		t.Fatalf("expected missing account id error")
	}
	if err := store.Create(ctx, session.Session{TokenHash: "h", AccountID: uuid.New(), ExpiresAt: time.Now().Add(-time.Minute)}); err == nil {
		t.Fatalf("expected expired session error")
	}
}

func TestSessionStoreTouchKeepsTTL(t *testing.T) {
	store, mini := newTestStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, session.Session{TokenHash: "h", AccountID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	before := mini.TTL("session:h")

	seen := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)
	if err := store.Touch(ctx, "h", seen); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := store.FindByTokenHash(ctx, "h")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.LastSeenAt.Equal(seen) {
		t.Fatalf("expected last seen %v, got %v", seen, got.LastSeenAt)
	}
	if after := mini.TTL("session:h"); after != before {
		t.Fatalf("expected ttl kept at %v, got %v", before, after)
	}

	if err := store.Touch(ctx, "missing", seen); err != nil {
		t.Fatalf("touch missing: %v", err)
	}
}

func TestSessionStoreDeletes(t *testing.T) {
	store, mini := newTestStore(t)
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()
	for _, s := range []session.Session{
		{TokenHash: "a1", AccountID: owner, ExpiresAt: time.Now().Add(time.Hour)},
		{TokenHash: "a2", AccountID: owner, ExpiresAt: time.Now().Add(time.Hour)},
		{TokenHash: "b1", AccountID: other, ExpiresAt: time.Now().Add(time.Hour)},
	} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatalf("create %s: %v", s.TokenHash, err)
		}
	}

	if err := store.DeleteByTokenHash(ctx, "a1"); err != nil {
		t.Fatalf("delete a1: %v", err)
	}
	if ok, _ := mini.SIsMember("account_sessions:"+owner.String(), "a1"); ok {
		t.Fatalf("expected a1 removed from account index")
	}

	if err := store.DeleteByAccount(ctx, owner); err != nil {
		t.Fatalf("delete by account: %v", err)
	}
	if _, err := store.FindByTokenHash(ctx, "a2"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected a2 removed, got %v", err)
	}
	if _, err := store.FindByTokenHash(ctx, "b1"); err != nil {
		t.Fatalf("expected other account session kept: %v", err)
	}
	if err := store.DeleteByTokenHash(ctx, "never-existed"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}
