package postgrest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	apperrors "github.com/canvango/canvango-group/internal/errors"
)

func newTestReader(t *testing.T, handler http.Handler) *Reader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	reader, err := NewReader(ReaderConfig{
		ProjectURL: srv.URL,
		AnonKey:    "anon-key",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return reader
}

func TestProfileByID(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	reader := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/users", r.URL.Path)
		assert.Equal(t, "eq.user-1", r.URL.Query().Get("id"))
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.pgrst.object+json", r.Header.Get("Accept"))

		json.NewEncoder(w).Encode(map[string]any{
			"id":         "user-1",
			"username":   "alice",
			"email":      "alice@canvango.test",
			"full_name":  "Alice A",
			"role":       "member",
			"balance":    150000,
			"created_at": now,
			"updated_at": now,
		})
	}))

	profile, err := reader.ProfileByID(context.Background(), "access-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, domainauth.RoleMember, profile.Role)
	assert.Equal(t, int64(150000), profile.Balance)
}

func TestProfileByIDUnknownRoleDegradesToGuest(t *testing.T) {
	reader := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "user-1", "role": "superuser"})
	}))

	profile, err := reader.ProfileByID(context.Background(), "access-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleGuest, profile.Role)
}

func TestProfileByIDMissingRow(t *testing.T) {
	reader := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotAcceptable)
	}))

	_, err := reader.ProfileByID(context.Background(), "access-1", "user-404")
	assert.True(t, apperrors.IsProfileNotFound(err))
}

func TestProfileByIDExpiredToken(t *testing.T) {
	reader := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := reader.ProfileByID(context.Background(), "stale", "user-1")
	assert.True(t, apperrors.IsSessionExpired(err))
}

func TestProfileByIDTimeout(t *testing.T) {
	reader := newTestReader(t, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := reader.ProfileByID(ctx, "access-1", "user-1")
	assert.True(t, apperrors.IsTimeout(err))
}

func TestRoleByID(t *testing.T) {
	reader := newTestReader(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "role", r.URL.Query().Get("select"))
		json.NewEncoder(w).Encode(map[string]string{"role": "admin"})
	}))

	role, err := reader.RoleByID(context.Background(), "access-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, role)
}

func TestRoleByIDEmptyUserID(t *testing.T) {
	reader := newTestReader(t, http.NewServeMux())
	_, err := reader.RoleByID(context.Background(), "access-1", "")
	assert.True(t, apperrors.IsProfileNotFound(err))
}
