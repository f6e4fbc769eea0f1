package auth

// Package auth contains domain-level types for authentication, sessions, and
// user profiles. It is pure and free of framework/adapter concerns.

import "time"

// Role represents an application's authorization role.
// Keep string form for easy persistence and comparison.
// Valid values are defined as constants below.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleGuest  Role = "guest"
)

// roleHierarchy orders roles for privilege comparison: Guest < Member < Admin.
var roleHierarchy = map[Role]int{
	RoleGuest:  0,
	RoleMember: 1,
	RoleAdmin:  2,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// AtLeast reports whether r meets or exceeds the required role.
// Unknown roles never satisfy any requirement.
func (r Role) AtLeast(required Role) bool {
	level, ok := roleHierarchy[r]
	requiredLevel, reqOK := roleHierarchy[required]
	if !ok || !reqOK {
		return false
	}
	return level >= requiredLevel
}

// Session holds the token pair issued by the auth backend.
// It is owned by the token store; the profile is never persisted with it.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsZero reports whether the session carries no tokens.
func (s Session) IsZero() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// TimeToExpiry returns the remaining lifetime of the access token at now.
// Negative values mean the token already expired.
func (s Session) TimeToExpiry(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// Profile is the client-side snapshot of the authoritative user row.
// The server copy is the source of truth; this snapshot lives in memory only
// and must never be written to the token store (a stale role must not grant
// stale privileges).
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsGuest returns true if the profile role is guest.
func (p Profile) IsGuest() bool { return p.Role == RoleGuest }

// IsAdmin returns true if the profile role is admin.
func (p Profile) IsAdmin() bool { return p.Role == RoleAdmin }

// GuestProfile returns the degraded fallback profile used when the
// authoritative row cannot be fetched but the caller still needs a principal.
func GuestProfile(id string) Profile {
	return Profile{ID: id, Role: RoleGuest}
}

// Credentials carries a password login request.
type Credentials struct {
	Email    string
	Password string
}

// Registration carries a sign-up request.
type Registration struct {
	Username string
	Email    string
	Password string
	FullName string
}

// CheckState is the ephemeral three-state outcome of a route-guard role check.
// It is recomputed on every check and never persisted.
type CheckState int

const (
	CheckChecking CheckState = iota
	CheckAllowed
	CheckDenied
)

// String returns the lowercase state name for logs and diagnostics.
func (s CheckState) String() string {
	switch s {
	case CheckChecking:
		return "checking"
	case CheckAllowed:
		return "allowed"
	case CheckDenied:
		return "denied"
	default:
		return "unknown"
	}
}
