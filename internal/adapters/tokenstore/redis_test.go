package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test:"), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	sess, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, sess.IsZero())

	want := domainauth.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)

	require.NoError(t, store.Clear(ctx))
	sess, err = store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, sess.IsZero())
}

func TestRedisStoreKeyHasTTL(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, store.Save(context.Background(), domainauth.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	// Tokens must not live in Redis forever.
	ttl := mr.TTL("test:tokens")
	assert.Greater(t, ttl, time.Hour)
}

func TestRedisStoreRejectsEmptySession(t *testing.T) {
	store, _ := newRedisStore(t)
	assert.Error(t, store.Save(context.Background(), domainauth.Session{}))
}

func TestRedisStoreDefaultPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(client, "")
	require.NoError(t, store.Save(context.Background(), domainauth.Session{
		AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour),
	}))
	assert.True(t, mr.Exists("canvango:tokens"))
}
