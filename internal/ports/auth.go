package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
)

// AuthResult carries the outcome of a successful sign-in or sign-up: the
// issued token pair plus the backend's view of the authenticated user id.
type AuthResult struct {
	Session domainauth.Session
	UserID  string
}

// AuthBackend is the vendor auth contract: credential exchange, sign-out,
// and token renewal. Adapters map provider-specific wire shapes and error
// strings into domain types and the internal error taxonomy.
type AuthBackend interface {
	// SignInWithPassword exchanges credentials for a token pair.
	SignInWithPassword(ctx context.Context, creds domainauth.Credentials) (AuthResult, error)

	// SignUp registers a new account and returns its initial token pair.
	SignUp(ctx context.Context, reg domainauth.Registration) (AuthResult, error)

	// SignOut invalidates the session server-side. Local cleanup is the
	// caller's responsibility and must proceed even when this fails.
	SignOut(ctx context.Context, accessToken string) error

	// RefreshSession exchanges a refresh token for a fresh token pair.
	RefreshSession(ctx context.Context, refreshToken string) (domainauth.Session, error)

	// SignInWithIDToken trades a verified third-party id_token for a
	// first-party token pair. Used by the SSO callback handler.
	SignInWithIDToken(ctx context.Context, grant IDTokenGrant) (AuthResult, error)
}

// IDTokenGrant carries an external IdP id_token for backend exchange.
type IDTokenGrant struct {
	Provider string
	IDToken  string
	Nonce    string
}

// BeginInput carries inputs for initiating an SSO flow.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// SSOExchange is the outcome of a code exchange: the verified raw id_token
// for handoff to the auth backend plus the claims worth surfacing.
type SSOExchange struct {
	RawIDToken string
	Subject    string
	Email      string
	FullName   string
}

// SSOProvider abstracts the OIDC redirect dance. Begin returns the IdP
// authorization URL with fresh state and nonce; Exchange validates the
// callback and yields the id_token.
type SSOProvider interface {
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)
	Exchange(ctx context.Context, in ExchangeInput) (SSOExchange, error)
}

// ProfileReader fetches the authoritative user row.
type ProfileReader interface {
	// ProfileByID returns the full profile for the given user id.
	ProfileByID(ctx context.Context, accessToken, userID string) (domainauth.Profile, error)

	// RoleByID returns only the role column. The route guard uses this
	// narrow query so a role check never rides on cached profile state.
	RoleByID(ctx context.Context, accessToken, userID string) (domainauth.Role, error)
}

// TokenStore persists and retrieves the token pair. Implementations store
// tokens only; profiles are never persisted.
type TokenStore interface {
	Load(ctx context.Context) (domainauth.Session, error)
	Save(ctx context.Context, sess domainauth.Session) error
	Clear(ctx context.Context) error
}

// StoreWatcher is implemented by token stores that can report external
// changes (another process logging out or rotating tokens). Watch delivers
// the new stored session on each external change until ctx is done; a zero
// session means the tokens were cleared.
type StoreWatcher interface {
	Watch(ctx context.Context) (<-chan domainauth.Session, error)
}

// ProfileChange describes a server-pushed update to the user row.
type ProfileChange struct {
	UserID  string
	Role    domainauth.Role
	Balance int64
}

// RealtimeSubscriber delivers server-pushed user row changes.
type RealtimeSubscriber interface {
	// SubscribeUser starts a change feed scoped to the given user id.
	// The feed is torn down when ctx is done; implementations must not leak
	// one channel per login session.
	SubscribeUser(ctx context.Context, userID string) (<-chan ProfileChange, error)
}
