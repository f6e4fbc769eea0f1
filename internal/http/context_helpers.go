package httpx

import (
	"context"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
)

// profileKey is an unexported context key type to avoid collisions across
// packages. Centralized here so all handlers and middleware use the same key.
type profileKey struct{}

// SetProfileInContext returns a child context carrying the given profile.
func SetProfileInContext(ctx context.Context, profile domainauth.Profile) context.Context {
	return context.WithValue(ctx, profileKey{}, profile)
}

// ProfileFromContext returns the profile from context and whether one is set.
func ProfileFromContext(ctx context.Context) (domainauth.Profile, bool) {
	profile, ok := ctx.Value(profileKey{}).(domainauth.Profile)
	return profile, ok
}

// IsGuestUser reports whether the current request context carries no
// resolved profile or a guest one.
func IsGuestUser(ctx context.Context) bool {
	profile, ok := ProfileFromContext(ctx)
	return !ok || profile.IsGuest()
}
