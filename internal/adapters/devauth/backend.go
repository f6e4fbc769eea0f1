package devauth

// Package devauth provides a config-driven auth backend and profile reader
// for local development. No network calls are made; tokens are locally
// minted JWTs so the rest of the stack behaves exactly as in production.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	apperrors "github.com/canvango/canvango-group/internal/errors"
	"github.com/canvango/canvango-group/internal/ports"
)

// devSigningKey signs locally minted tokens. Development only.
var devSigningKey = []byte("canvango-dev-signing-key")

// Config controls the dev backend behavior. UserID and Email are required.
type Config struct {
	UserID          string
	Email           string
	Username        string
	Role            domainauth.Role
	SessionDuration time.Duration // default 8h when zero
	Now             func() time.Time
}

// Backend implements ports.AuthBackend, ports.ProfileReader and
// ports.SSOProvider against a single configured identity.
type Backend struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	profile domainauth.Profile
}

// NewBackend constructs a dev backend from Config.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = 8 * time.Hour
	}
	if !cfg.Role.Valid() {
		cfg.Role = domainauth.RoleMember
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	username := cfg.Username
	if username == "" {
		username = cfg.Email
	}
	return &Backend{
		cfg: cfg,
		now: now,
		profile: domainauth.Profile{
			ID:        cfg.UserID,
			Username:  username,
			Email:     cfg.Email,
			Role:      cfg.Role,
			CreatedAt: now(),
			UpdatedAt: now(),
		},
	}, nil
}

// SignInWithPassword accepts the configured email with any non-empty
// password and mints a local session.
func (b *Backend) SignInWithPassword(_ context.Context, creds domainauth.Credentials) (ports.AuthResult, error) {
	if creds.Email != b.cfg.Email || creds.Password == "" {
		return ports.AuthResult{}, apperrors.Authentication("invalid login credentials")
	}
	return b.mint()
}

// SignUp pretends registration succeeded and signs the caller in.
func (b *Backend) SignUp(_ context.Context, reg domainauth.Registration) (ports.AuthResult, error) {
	if reg.Email == b.cfg.Email {
		return ports.AuthResult{}, apperrors.Conflict("user already registered")
	}
	return b.mint()
}

// SignOut is a no-op; dev sessions have no server side.
func (b *Backend) SignOut(context.Context, string) error { return nil }

// RefreshSession mints a fresh pair for any non-empty refresh token.
func (b *Backend) RefreshSession(_ context.Context, refreshToken string) (domainauth.Session, error) {
	if refreshToken == "" {
		return domainauth.Session{}, apperrors.SessionExpired("missing refresh token")
	}
	res, err := b.mint()
	if err != nil {
		return domainauth.Session{}, err
	}
	return res.Session, nil
}

// SignInWithIDToken accepts any id_token and mints a local session.
func (b *Backend) SignInWithIDToken(_ context.Context, grant ports.IDTokenGrant) (ports.AuthResult, error) {
	if grant.IDToken == "" {
		return ports.AuthResult{}, apperrors.Authentication("missing id token")
	}
	return b.mint()
}

// ProfileByID returns the configured profile for the configured user id.
func (b *Backend) ProfileByID(_ context.Context, _, userID string) (domainauth.Profile, error) {
	if userID != b.cfg.UserID {
		return domainauth.Profile{}, apperrors.ProfileNotFoundf("no profile row for user %s", userID)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.profile, nil
}

// RoleByID returns the configured role.
func (b *Backend) RoleByID(ctx context.Context, accessToken, userID string) (domainauth.Role, error) {
	p, err := b.ProfileByID(ctx, accessToken, userID)
	if err != nil {
		return domainauth.RoleGuest, err
	}
	return p.Role, nil
}

// SetRole mutates the configured role, useful for exercising role-change
// handling in development.
func (b *Backend) SetRole(role domainauth.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profile.Role = role
	b.profile.UpdatedAt = b.now()
}

// Begin short-circuits the OAuth flow by redirecting straight back to our
// own callback with locally generated state and nonce.
func (b *Backend) Begin(context.Context, ports.BeginInput) (string, string, string, error) {
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	authURL := "/auth/callback?code=dev&state=" + state
	return authURL, state, nonce, nil
}

// Exchange ignores the code and returns the configured identity.
func (b *Backend) Exchange(context.Context, ports.ExchangeInput) (ports.SSOExchange, error) {
	idToken, err := b.signToken("id")
	if err != nil {
		return ports.SSOExchange{}, err
	}
	return ports.SSOExchange{
		RawIDToken: idToken,
		Subject:    b.cfg.UserID,
		Email:      b.cfg.Email,
	}, nil
}

func (b *Backend) mint() (ports.AuthResult, error) {
	access, err := b.signToken("access")
	if err != nil {
		return ports.AuthResult{}, fmt.Errorf("mint access token: %w", err)
	}
	refresh, err := randomString(24)
	if err != nil {
		return ports.AuthResult{}, fmt.Errorf("mint refresh token: %w", err)
	}
	return ports.AuthResult{
		UserID: b.cfg.UserID,
		Session: domainauth.Session{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    b.now().Add(b.cfg.SessionDuration),
		},
	}, nil
}

func (b *Backend) signToken(use string) (string, error) {
	now := b.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   b.cfg.UserID,
		"email": b.cfg.Email,
		"use":   use,
		"iat":   now.Unix(),
		"exp":   now.Add(b.cfg.SessionDuration).Unix(),
	})
	return tok.SignedString(devSigningKey)
}

func randomString(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
