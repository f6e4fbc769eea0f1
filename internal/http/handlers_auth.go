package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	"github.com/canvango/canvango-group/internal/ports"
	"github.com/canvango/canvango-group/internal/service"
)

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Manager *service.Manager
	SSO     ports.SSOProvider // optional; SSO endpoints 404 without it
	Logger  *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registrationRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// Login handles password sign-in.
// POST /auth/login with {"email": ..., "password": ...}.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	err := h.Manager.Login(r.Context(), domainauth.Credentials{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	h.writeStatus(w)
}

// Register handles account creation.
// POST /auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	err := h.Manager.Register(r.Context(), domainauth.Registration{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	h.writeStatus(w)
}

// Logout tears down the session. Always succeeds from the client's view.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.Manager.Logout(r.Context())
	WriteJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w)
}

// RefreshProfile refetches the profile row on demand.
// POST /auth/refresh.
func (h *AuthHandlers) RefreshProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.RefreshUser(r.Context()); err != nil {
		WriteAppError(w, err)
		return
	}
	h.writeStatus(w)
}

func (h *AuthHandlers) writeStatus(w http.ResponseWriter) {
	user, ok := h.Manager.CurrentUser()
	if !ok {
		WriteJSON(w, http.StatusOK, map[string]any{
			"authenticated": h.Manager.IsAuthenticated(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":        user.ID,
			"username":  user.Username,
			"email":     user.Email,
			"full_name": user.FullName,
			"role":      user.Role,
			"balance":   user.Balance,
		},
		"expires_at": h.Manager.CurrentSession().ExpiresAt,
	})
}

// SSOLogin initiates the OIDC flow.
// GET /auth/sso/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) SSOLogin(w http.ResponseWriter, r *http.Request) {
	if h.SSO == nil {
		http.NotFound(w, r)
		return
	}

	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	authURL, state, nonce, err := h.SSO.Begin(r.Context(), ports.BeginInput{RedirectURL: redirectURI})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "sso begin failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_failed", Err: err})
		return
	}

	h.setOAuthCookies(w, r, state, nonce, redirectURI)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// SSOCallback completes the OIDC flow and establishes a first-party session.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) SSOCallback(w http.ResponseWriter, r *http.Request) {
	if h.SSO == nil {
		http.NotFound(w, r)
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_parameters",
			Err:     errors.New("code and state are required"),
		})
		return
	}

	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie("oauth_nonce")
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce cookie"),
		})
		return
	}

	exchange, err := h.SSO.Exchange(r.Context(), ports.ExchangeInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "sso exchange failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "login_completion_failed", Err: err})
		return
	}

	if err := h.Manager.LoginWithIDToken(r.Context(), ports.IDTokenGrant{
		Provider: "oidc",
		IDToken:  exchange.RawIDToken,
		Nonce:    nonceCookie.Value,
	}); err != nil {
		WriteAppError(w, err)
		return
	}

	redirectURI := "/"
	if c, cookieErr := r.Cookie("oauth_redirect"); cookieErr == nil {
		redirectURI = safeRedirectPath(c.Value)
	}
	h.clearCookie(w, r, "oauth_state")
	h.clearCookie(w, r, "oauth_nonce")
	h.clearCookie(w, r, "oauth_redirect")
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

func (h *AuthHandlers) setOAuthCookies(w http.ResponseWriter, r *http.Request, state, nonce, redirectURI string) {
	secure := r.TLS != nil
	base := http.Cookie{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(10 * time.Minute),
	}

	stateCookie := base
	stateCookie.Name = "oauth_state"
	stateCookie.Value = state
	http.SetCookie(w, &stateCookie)

	nonceCookie := base
	nonceCookie.Name = "oauth_nonce"
	nonceCookie.Value = nonce
	http.SetCookie(w, &nonceCookie)

	redirectCookie := base
	redirectCookie.Name = "oauth_redirect"
	redirectCookie.Value = redirectURI
	http.SetCookie(w, &redirectCookie)
}

func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// safeRedirectPath constrains post-login redirects to relative paths.
func safeRedirectPath(raw string) string {
	if raw == "" {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return u.RequestURI()
}
