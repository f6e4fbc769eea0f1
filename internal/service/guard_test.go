package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	apperrors "github.com/canvango/canvango-group/internal/errors"
	mockauth "github.com/canvango/canvango-group/internal/mocks/auth"
)

func signedInGuard(t *testing.T, reader *mockauth.MockProfileReader) (*Guard, *Manager) {
	t.Helper()
	opts := Options{}
	if reader != nil {
		opts.Profiles = reader
	}
	m := newTestManager(t, opts)
	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.Login(context.Background(), domainauth.Credentials{Email: "a@b.c", Password: "pw"}))
	return NewGuard(m), m
}

func TestGuard_UnauthenticatedDenied(t *testing.T) {
	m := newTestManager(t, Options{})
	require.NoError(t, m.Init(context.Background()))
	guard := NewGuard(m)

	result := guard.Check(context.Background(), domainauth.RoleMember)

	assert.Equal(t, domainauth.CheckDenied, result.State)
	assert.False(t, result.Allowed())
	assert.Equal(t, "not signed in", result.Reason)
}

func TestGuard_MemberDeniedAdminRoute(t *testing.T) {
	guard, _ := signedInGuard(t, nil) // default reader serves a member

	result := guard.Check(context.Background(), domainauth.RoleAdmin)

	assert.Equal(t, domainauth.CheckDenied, result.State)
	assert.Equal(t, domainauth.RoleAdmin, result.RequiredRole)
	assert.Equal(t, domainauth.RoleMember, result.ActualRole)
	assert.False(t, result.UsedFallback)
}

func TestGuard_AdminAllowedAdminRoute(t *testing.T) {
	reader := &mockauth.MockProfileReader{
		RoleFunc: func(context.Context, string, string) (domainauth.Role, error) {
			return domainauth.RoleAdmin, nil
		},
	}
	guard, _ := signedInGuard(t, reader)

	result := guard.Check(context.Background(), domainauth.RoleAdmin)

	assert.True(t, result.Allowed())
	assert.Equal(t, domainauth.RoleAdmin, result.ActualRole)
}

func TestGuard_AnyAuthenticatedRole(t *testing.T) {
	guard, _ := signedInGuard(t, nil)

	result := guard.Check(context.Background(), "")

	assert.True(t, result.Allowed())
	assert.Equal(t, domainauth.RoleMember, result.ActualRole)
}

func TestGuard_HungQueryFallsBackToCachedRole(t *testing.T) {
	// The fresh role query never answers. The watchdog must force a verdict
	// from the cached role within the guard timeout.
	reader := &mockauth.MockProfileReader{
		RoleFunc: func(ctx context.Context, _, _ string) (domainauth.Role, error) {
			<-ctx.Done()
			return domainauth.RoleGuest, apperrors.FromContext(ctx.Err(), "role query")
		},
	}
	guard, _ := signedInGuard(t, reader)

	start := time.Now()
	result := guard.Check(context.Background(), domainauth.RoleMember)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, result.Allowed(), "cached member role satisfies a member route")
	assert.True(t, result.UsedFallback)

	// The cached role still cannot open an admin route.
	result = guard.Check(context.Background(), domainauth.RoleAdmin)
	assert.Equal(t, domainauth.CheckDenied, result.State)
	assert.True(t, result.UsedFallback)
}

func TestGuard_QueryErrorWithNoCachedProfileDenied(t *testing.T) {
	reader := &mockauth.MockProfileReader{
		RoleFunc: func(context.Context, string, string) (domainauth.Role, error) {
			return domainauth.RoleGuest, apperrors.Internal("role query failed")
		},
	}
	m := newTestManager(t, Options{Profiles: reader})
	m.markInitialized()
	// Authenticated but with the profile never resolved.
	m.adopt(mockauth.DefaultSession(), "user-1")
	guard := NewGuard(m)

	result := guard.Check(context.Background(), domainauth.RoleMember)

	assert.Equal(t, domainauth.CheckDenied, result.State)
	assert.True(t, result.UsedFallback)
	assert.Equal(t, domainauth.RoleGuest, result.ActualRole)
}

func TestGuard_WaitsForInitialization(t *testing.T) {
	// Init has not run. The check must still terminate, denied, within the
	// guard timeout rather than spinning forever.
	m := newTestManager(t, Options{})
	guard := NewGuard(m)

	start := time.Now()
	result := guard.Check(context.Background(), domainauth.RoleMember)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, domainauth.CheckDenied, result.State)
	assert.Equal(t, "initialization did not complete in time", result.Reason)
}

func TestGuard_FreshRoleReconcilesCachedProfile(t *testing.T) {
	reader := &mockauth.MockProfileReader{
		RoleFunc: func(context.Context, string, string) (domainauth.Role, error) {
			return domainauth.RoleAdmin, nil
		},
	}
	guard, m := signedInGuard(t, reader)

	result := guard.Check(context.Background(), domainauth.RoleAdmin)
	require.True(t, result.Allowed())

	user, ok := m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, domainauth.RoleAdmin, user.Role)
}
