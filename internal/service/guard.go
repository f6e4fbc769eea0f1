package service

// Route guarding. Role-gated routes verify the role with a fresh backend
// query instead of trusting cached state, so a demotion takes effect on the
// next navigation. A check always reaches a terminal verdict: the watchdog
// converts a hung query into a cached-role fallback, never an indefinite
// checking state.

import (
	"context"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
)

// CheckResult is the terminal outcome of a guard check.
type CheckResult struct {
	State        domainauth.CheckState
	RequiredRole domainauth.Role
	ActualRole   domainauth.Role

	// UsedFallback is set when the fresh role query failed or timed out and
	// the verdict was rendered from the cached profile role.
	UsedFallback bool

	// Reason explains a denial in log-friendly terms.
	Reason string
}

// Allowed reports whether the guarded route may render.
func (r CheckResult) Allowed() bool {
	return r.State == domainauth.CheckAllowed
}

// Guard renders access verdicts for guarded routes.
type Guard struct {
	manager *Manager
}

// NewGuard builds a Guard over the manager's session state.
func NewGuard(manager *Manager) *Guard {
	return &Guard{manager: manager}
}

// Check renders a verdict for a route requiring the given role. A zero
// required role means any signed-in user. Check blocks at most the guard
// timeout, waiting for initialization first and the fresh role query second.
func (g *Guard) Check(ctx context.Context, required domainauth.Role) CheckResult {
	m := g.manager
	ctx, cancel := context.WithTimeout(ctx, m.cfg.GuardTimeout)
	defer cancel()

	result := CheckResult{State: domainauth.CheckChecking, RequiredRole: required}

	// Verdicts rendered before initialization would race the session
	// restore and bounce signed-in users to the login page.
	select {
	case <-m.InitDone():
	case <-ctx.Done():
		result.State = domainauth.CheckDenied
		result.Reason = "initialization did not complete in time"
		m.metrics.Count("guard.check", 1, map[string]string{"outcome": "watchdog"})
		return result
	}

	sess := m.CurrentSession()
	if sess.IsZero() {
		result.State = domainauth.CheckDenied
		result.Reason = "not signed in"
		m.metrics.Count("guard.check", 1, map[string]string{"outcome": "unauthenticated"})
		return result
	}

	if required == "" || required == domainauth.RoleGuest {
		result.State = domainauth.CheckAllowed
		if user, ok := m.CurrentUser(); ok {
			result.ActualRole = user.Role
		}
		m.metrics.Count("guard.check", 1, map[string]string{"outcome": "allowed"})
		return result
	}

	actual, usedFallback := g.freshRole(ctx, sess.AccessToken)
	result.ActualRole = actual
	result.UsedFallback = usedFallback

	if !actual.AtLeast(required) {
		result.State = domainauth.CheckDenied
		result.Reason = "role " + string(actual) + " does not satisfy " + string(required)
		m.logger.Info("route access denied",
			"required", string(required), "actual", string(actual), "fallback", usedFallback)
		m.metrics.Count("guard.check", 1, map[string]string{"outcome": "denied"})
		return result
	}

	result.State = domainauth.CheckAllowed
	m.metrics.Count("guard.check", 1, map[string]string{"outcome": "allowed"})
	return result
}

// freshRole queries the authoritative role, falling back to the cached
// profile role when the query errors or the watchdog fires. The cached role
// still goes through the same comparison, so fallback loosens freshness, not
// enforcement.
func (g *Guard) freshRole(ctx context.Context, accessToken string) (domainauth.Role, bool) {
	m := g.manager

	m.mu.RLock()
	userID := m.userID
	m.mu.RUnlock()

	role, err := m.profiles.RoleByID(ctx, accessToken, userID)
	if err == nil {
		g.reconcileRole(userID, role)
		return role, false
	}
	m.logger.Warn("fresh role query failed, using cached role", "error", err)

	if user, ok := m.CurrentUser(); ok {
		return user.Role, true
	}
	return domainauth.RoleGuest, true
}

// reconcileRole folds a fresh query result back into the cached profile so
// the rest of the app converges without waiting for a realtime push.
func (g *Guard) reconcileRole(userID string, role domainauth.Role) {
	m := g.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil || m.userID != userID || m.user.Role == role {
		return
	}
	m.user.Role = role
	m.revision++
}
