package gotrue

// Package gotrue provides an adapter for the backend's GoTrue-compatible auth
// API: password sign-in, sign-up, sign-out, and refresh-token exchange.
// It maps the vendor's wire shapes and error strings into domain types and
// the internal error taxonomy.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	apperrors "github.com/canvango/canvango-group/internal/errors"
	"github.com/canvango/canvango-group/internal/ports"
)

// Client talks to a GoTrue-compatible auth endpoint.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	now        func() time.Time
}

var _ ports.AuthBackend = (*Client)(nil)

// ClientConfig holds configuration for the auth client.
type ClientConfig struct {
	// ProjectURL is the backend project base URL; the auth API lives under
	// {ProjectURL}/auth/v1.
	ProjectURL string
	// AnonKey is the public API key sent as the apikey header.
	AnonKey string
	// HTTPClient is optional; defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// Now is optional and overridable for tests.
	Now func() time.Time
}

// NewClient creates a new auth API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, errors.New("project URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("anon key is required")
	}
	if _, err := url.Parse(cfg.ProjectURL); err != nil {
		return nil, fmt.Errorf("parse project URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.ProjectURL, "/") + "/auth/v1",
		anonKey:    cfg.AnonKey,
		httpClient: httpClient,
		now:        now,
	}, nil
}

// tokenResponse is the GoTrue token/signup response shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// errorResponse is the union of GoTrue error shapes across versions.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) SignInWithPassword(ctx context.Context, creds domainauth.Credentials) (ports.AuthResult, error) {
	if creds.Email == "" || creds.Password == "" {
		return ports.AuthResult{}, apperrors.Authentication("email and password are required")
	}

	body := map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	}
	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=password", "", body, &resp); err != nil {
		return ports.AuthResult{}, err
	}

	return ports.AuthResult{
		Session: c.sessionFromResponse(resp),
		UserID:  resp.User.ID,
	}, nil
}

func (c *Client) SignUp(ctx context.Context, reg domainauth.Registration) (ports.AuthResult, error) {
	if reg.Email == "" || reg.Password == "" {
		return ports.AuthResult{}, apperrors.Authentication("email and password are required")
	}

	body := map[string]any{
		"email":    reg.Email,
		"password": reg.Password,
		"data": map[string]string{
			"username":  reg.Username,
			"full_name": reg.FullName,
		},
	}
	var resp tokenResponse
	if err := c.post(ctx, "/signup", "", body, &resp); err != nil {
		return ports.AuthResult{}, err
	}

	// Sign-up with email confirmation enabled returns a user without tokens.
	// Surface that as an authentication error so the UI can prompt for
	// confirmation instead of treating the account as signed in.
	if resp.AccessToken == "" {
		return ports.AuthResult{}, apperrors.Authentication("email confirmation required before sign-in")
	}

	return ports.AuthResult{
		Session: c.sessionFromResponse(resp),
		UserID:  resp.User.ID,
	}, nil
}

// SignInWithIDToken trades a verified external id_token for a first-party
// token pair via the id_token grant.
func (c *Client) SignInWithIDToken(ctx context.Context, grant ports.IDTokenGrant) (ports.AuthResult, error) {
	if grant.IDToken == "" {
		return ports.AuthResult{}, apperrors.Authentication("id token is required")
	}

	body := map[string]string{
		"id_token": grant.IDToken,
	}
	if grant.Provider != "" {
		body["provider"] = grant.Provider
	}
	if grant.Nonce != "" {
		body["nonce"] = grant.Nonce
	}
	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=id_token", "", body, &resp); err != nil {
		return ports.AuthResult{}, err
	}

	return ports.AuthResult{
		Session: c.sessionFromResponse(resp),
		UserID:  resp.User.ID,
	}, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil // Nothing to invalidate server-side
	}
	return c.post(ctx, "/logout", accessToken, nil, nil)
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (domainauth.Session, error) {
	if refreshToken == "" {
		return domainauth.Session{}, apperrors.SessionExpired("no refresh token available")
	}

	body := map[string]string{"refresh_token": refreshToken}
	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		// A rejected refresh token means the session is unrecoverable.
		if apperrors.IsAuthentication(err) {
			return domainauth.Session{}, apperrors.Wrap(err, apperrors.ErrCodeSessionExpired, "refresh token rejected")
		}
		return domainauth.Session{}, err
	}

	return c.sessionFromResponse(resp), nil
}

// sessionFromResponse derives the domain session, preferring the absolute
// expires_at claim and falling back to expires_in relative to now.
func (c *Client) sessionFromResponse(resp tokenResponse) domainauth.Session {
	expiresAt := time.Unix(resp.ExpiresAt, 0)
	if resp.ExpiresAt == 0 {
		expiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return domainauth.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

// post issues a JSON POST to the auth API and decodes the response into out.
// Bearer falls back to the anon key when no access token is supplied.
func (c *Client) post(ctx context.Context, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)
	bearer := accessToken
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperrors.FromContext(ctxErr, "auth request")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "auth request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "read auth response")
	}

	if resp.StatusCode >= 400 {
		return c.mapError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode auth response")
		}
	}
	return nil
}

// mapError converts vendor error payloads into the internal taxonomy.
// The vendor contract is string-based, so matching is necessarily coupled to
// its known messages.
func (c *Client) mapError(status int, data []byte) error {
	var payload errorResponse
	_ = json.Unmarshal(data, &payload) // best effort; fall through on garbage

	message := payload.text()
	lower := strings.ToLower(message)

	switch {
	case status == http.StatusTooManyRequests,
		strings.Contains(payload.ErrorCode, "rate_limit"),
		strings.Contains(lower, "rate limit"):
		return apperrors.RateLimited("too many attempts, please try again later")

	case strings.Contains(lower, "invalid login credentials"),
		payload.ErrorCode == "invalid_credentials":
		return apperrors.Authentication("invalid email or password")

	case strings.Contains(lower, "email not confirmed"),
		payload.ErrorCode == "email_not_confirmed":
		return apperrors.Authentication("email address has not been confirmed")

	case status == http.StatusUnprocessableEntity && strings.Contains(lower, "already registered"),
		strings.Contains(lower, "already registered"),
		payload.ErrorCode == "user_already_exists":
		return apperrors.Conflict("an account with this email already exists")

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.SessionExpired("session token rejected by auth backend")

	case status >= 400 && status < 500:
		if message == "" {
			message = fmt.Sprintf("auth request rejected (HTTP %d)", status)
		}
		return apperrors.Authentication(message)

	default:
		return apperrors.Internalf("auth backend error (HTTP %d): %s", status, message)
	}
}
