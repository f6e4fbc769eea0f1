package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvango/canvango-group/internal/adapters/devauth"
	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	apperrors "github.com/canvango/canvango-group/internal/errors"
	mockauth "github.com/canvango/canvango-group/internal/mocks/auth"
	"github.com/canvango/canvango-group/internal/ports"
	"github.com/canvango/canvango-group/internal/service"
)

func TestLoginHandler_Success(t *testing.T) {
	router, _ := guardedRouter(t, service.Options{})

	body := strings.NewReader(`{"email":"a@b.c","password":"pw"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":true`)
	assert.Contains(t, rec.Body.String(), `"id":"user-1"`)
}

func TestLoginHandler_InvalidCredentials(t *testing.T) {
	backend := &mockauth.MockBackend{
		SignInFunc: func(context.Context, domainauth.Credentials) (ports.AuthResult, error) {
			return ports.AuthResult{}, apperrors.Authentication("invalid email or password")
		},
	}
	router, _ := guardedRouter(t, service.Options{Backend: backend})

	body := strings.NewReader(`{"email":"a@b.c","password":"bad"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication")
}

func TestLoginHandler_RejectsMalformedJSON(t *testing.T) {
	router, _ := guardedRouter(t, service.Options{})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_json")
}

func TestRegisterHandler_Conflict(t *testing.T) {
	backend := &mockauth.MockBackend{
		SignUpFunc: func(context.Context, domainauth.Registration) (ports.AuthResult, error) {
			return ports.AuthResult{}, apperrors.Conflict("an account with this email already exists")
		},
	}
	router, _ := guardedRouter(t, service.Options{Backend: backend})

	body := strings.NewReader(`{"email":"a@b.c","password":"pw","username":"u","full_name":"U"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogoutHandler(t *testing.T) {
	router, m := guardedRouter(t, service.Options{})
	signIn(t, m)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "signed_out")
	assert.False(t, m.IsAuthenticated())
}

func TestStatusHandler_SignedOut(t *testing.T) {
	router, _ := guardedRouter(t, service.Options{})

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":false`)
}

func TestSSOFlow_DevProvider(t *testing.T) {
	// The dev provider short-circuits the IdP round trip, which lets the
	// whole begin/callback handshake run inside one test.
	dev, err := devauth.NewBackend(devauth.Config{
		UserID: "user-1",
		Email:  "mock.user@example.com",
		Role:   domainauth.RoleMember,
	})
	require.NoError(t, err)

	m := newTestManager(t, service.Options{Backend: dev, Profiles: dev})
	router := NewRouter(RouterServices{Manager: m, Guard: service.NewGuard(m), SSO: dev})

	// Begin: expect a redirect carrying state, plus state/nonce cookies.
	req := httptest.NewRequest(http.MethodGet, "/auth/sso/login?redirect_uri=/account", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	// Callback: replay the cookies with the code and state from the redirect.
	req = httptest.NewRequest(http.MethodGet, "/auth/callback?code=dev&state="+url.QueryEscape(state), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/account", rec.Header().Get("Location"))
	assert.True(t, m.IsAuthenticated())
	user, ok := m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "user-1", user.ID)
}

func TestSSOLogin_NotConfigured(t *testing.T) {
	router, _ := guardedRouter(t, service.Options{})

	req := httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSafeRedirectPath(t *testing.T) {
	assert.Equal(t, "/", safeRedirectPath(""))
	assert.Equal(t, "/", safeRedirectPath("https://evil.example/phish"))
	assert.Equal(t, "/", safeRedirectPath("//evil.example"))
	assert.Equal(t, "/account?tab=orders", safeRedirectPath("/account?tab=orders"))
}
