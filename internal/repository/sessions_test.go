package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verity/auth-identity/internal/model"
)

func newSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewSessionStore(rdb, time.Hour), mr
}

func newSession(accountID string) model.RefreshSession {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return model.RefreshSession{
		ID:        "sess-" + accountID,
		AccountID: accountID,
		Token:     "opaque-" + accountID,
		Valid:     true,
		UserAgent: "go-test",
		IPAddress: "127.0.0.1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestSessionCreateGetRoundTrip(t *testing.T) {
	store, mr := newSessionStore(t)
	ctx := context.Background()

	session := newSession("acct-1")
	require.NoError(t, store.Create(ctx, session))

	got, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, session, got)

	ttl := mr.TTL(sessionKey("acct-1"))
	assert.Equal(t, time.Hour, ttl)
}

func TestSessionCreateRefusesSecond(t *testing.T) {
	store, _ := newSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newSession("acct-1")))

	second := newSession("acct-1")
	second.Token = "different"
	err := store.Create(ctx, second)
	assert.ErrorIs(t, err, ErrSessionExists)

	got, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "opaque-acct-1", got.Token)
}

func TestSessionGetMissing(t *testing.T) {
	store, _ := newSessionStore(t)

	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionDeleteIsIdempotent(t *testing.T) {
	store, _ := newSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newSession("acct-1")))
	require.NoError(t, store.Delete(ctx, "acct-1"))
	require.NoError(t, store.Delete(ctx, "acct-1"))

	_, err := store.Get(ctx, "acct-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionInvalidateKeepsTTL(t *testing.T) {
	store, mr := newSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newSession("acct-1")))
	mr.FastForward(10 * time.Minute)

	require.NoError(t, store.Invalidate(ctx, "acct-1"))

	got, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.Equal(t, "opaque-acct-1", got.Token)
	assert.Equal(t, 50*time.Minute, mr.TTL(sessionKey("acct-1")))
}

func TestSessionInvalidateMissing(t *testing.T) {
	store, _ := newSessionStore(t)

	err := store.Invalidate(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
