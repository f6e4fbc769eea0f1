package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	mockauth "github.com/canvango/canvango-group/internal/mocks/auth"
	"github.com/canvango/canvango-group/internal/service"
)

func newTestManager(t *testing.T, opts service.Options) *service.Manager {
	t.Helper()
	if opts.Backend == nil {
		opts.Backend = &mockauth.MockBackend{}
	}
	if opts.Profiles == nil {
		opts.Profiles = &mockauth.MockProfileReader{}
	}
	if opts.Tokens == nil {
		opts.Tokens = mockauth.NewMockTokenStore(domainauth.Session{})
	}
	m, err := service.NewManager(opts)
	require.NoError(t, err)
	require.NoError(t, m.Init(context.Background()))
	return m
}

func signIn(t *testing.T, m *service.Manager) {
	t.Helper()
	require.NoError(t, m.Login(context.Background(), domainauth.Credentials{
		Email:    "mock.user@example.com",
		Password: "pw",
	}))
}

func guardedRouter(t *testing.T, opts service.Options) (http.Handler, *service.Manager) {
	t.Helper()
	m := newTestManager(t, opts)
	return NewRouter(RouterServices{Manager: m, Guard: service.NewGuard(m)}), m
}

func TestRequireAuth_Unauthenticated(t *testing.T) {
	router, _ := guardedRouter(t, service.Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication_required")
}

func TestRequireAuth_BrowserRedirectsToLogin(t *testing.T) {
	router, _ := guardedRouter(t, service.Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/me?tab=orders", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect_uri=%2Fapi%2Fme%3Ftab%3Dorders", rec.Header().Get("Location"))
}

func TestRequireAuth_SignedInGetsProfile(t *testing.T) {
	router, m := guardedRouter(t, service.Options{})
	signIn(t, m)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"user-1"`)
	assert.Contains(t, rec.Body.String(), `"role":"member"`)
}

func TestRequireRole_MemberDeniedAdminRoute(t *testing.T) {
	router, m := guardedRouter(t, service.Options{})
	signIn(t, m)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/overview", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient_role")
}

func TestRequireRole_AdminAllowed(t *testing.T) {
	reader := &mockauth.MockProfileReader{
		ProfileFunc: func(_ context.Context, _, userID string) (domainauth.Profile, error) {
			p := mockauth.DefaultProfile()
			p.ID = userID
			p.Role = domainauth.RoleAdmin
			return p, nil
		},
		RoleFunc: func(context.Context, string, string) (domainauth.Role, error) {
			return domainauth.RoleAdmin, nil
		},
	}
	router, m := guardedRouter(t, service.Options{Profiles: reader})
	signIn(t, m)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/overview", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"admin":"mockuser"`)
}

func TestHealthz(t *testing.T) {
	router, _ := guardedRouter(t, service.Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
