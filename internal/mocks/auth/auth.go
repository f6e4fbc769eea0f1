package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	apperrors "github.com/canvango/canvango-group/internal/errors"
	"github.com/canvango/canvango-group/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthBackend        = (*MockBackend)(nil)
	_ ports.ProfileReader      = (*MockProfileReader)(nil)
	_ ports.TokenStore         = (*MockTokenStore)(nil)
	_ ports.RealtimeSubscriber = (*FakeRealtime)(nil)
)

// DefaultSession returns a plausible token pair for tests.
func DefaultSession() domainauth.Session {
	return domainauth.Session{
		AccessToken:  "access-token-1",
		RefreshToken: "refresh-token-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

// DefaultProfile returns a plausible member profile for tests.
func DefaultProfile() domainauth.Profile {
	return domainauth.Profile{
		ID:       "user-1",
		Username: "mockuser",
		Email:    "mock.user@example.com",
		FullName: "Mock User",
		Role:     domainauth.RoleMember,
		Balance:  1500,
	}
}

// MockBackend simulates the auth backend with overridable behavior.
// The zero value signs anyone in with DefaultSession.
type MockBackend struct {
	SignInFunc  func(ctx context.Context, creds domainauth.Credentials) (ports.AuthResult, error)
	SignUpFunc  func(ctx context.Context, reg domainauth.Registration) (ports.AuthResult, error)
	SignOutFunc func(ctx context.Context, accessToken string) error
	RefreshFunc func(ctx context.Context, refreshToken string) (domainauth.Session, error)
	IDTokenFunc func(ctx context.Context, grant ports.IDTokenGrant) (ports.AuthResult, error)

	signOutCalls atomic.Int64
	refreshCalls atomic.Int64
}

func (m *MockBackend) SignInWithPassword(ctx context.Context, creds domainauth.Credentials) (ports.AuthResult, error) {
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, creds)
	}
	return ports.AuthResult{Session: DefaultSession(), UserID: DefaultProfile().ID}, nil
}

func (m *MockBackend) SignUp(ctx context.Context, reg domainauth.Registration) (ports.AuthResult, error) {
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, reg)
	}
	return ports.AuthResult{Session: DefaultSession(), UserID: DefaultProfile().ID}, nil
}

func (m *MockBackend) SignOut(ctx context.Context, accessToken string) error {
	m.signOutCalls.Add(1)
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx, accessToken)
	}
	return nil
}

func (m *MockBackend) RefreshSession(ctx context.Context, refreshToken string) (domainauth.Session, error) {
	m.refreshCalls.Add(1)
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	sess := DefaultSession()
	sess.AccessToken = "access-token-refreshed"
	sess.RefreshToken = "refresh-token-refreshed"
	return sess, nil
}

func (m *MockBackend) SignInWithIDToken(ctx context.Context, grant ports.IDTokenGrant) (ports.AuthResult, error) {
	if m.IDTokenFunc != nil {
		return m.IDTokenFunc(ctx, grant)
	}
	return ports.AuthResult{Session: DefaultSession(), UserID: DefaultProfile().ID}, nil
}

// SignOutCalls reports how many times SignOut was invoked.
func (m *MockBackend) SignOutCalls() int64 { return m.signOutCalls.Load() }

// RefreshCalls reports how many times RefreshSession was invoked.
func (m *MockBackend) RefreshCalls() int64 { return m.refreshCalls.Load() }

// MockProfileReader serves a fixed profile and counts queries so tests can
// assert on backend query volume.
type MockProfileReader struct {
	ProfileFunc func(ctx context.Context, accessToken, userID string) (domainauth.Profile, error)
	RoleFunc    func(ctx context.Context, accessToken, userID string) (domainauth.Role, error)

	profileCalls atomic.Int64
	roleCalls    atomic.Int64
}

func (m *MockProfileReader) ProfileByID(ctx context.Context, accessToken, userID string) (domainauth.Profile, error) {
	m.profileCalls.Add(1)
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx, accessToken, userID)
	}
	p := DefaultProfile()
	p.ID = userID
	return p, nil
}

func (m *MockProfileReader) RoleByID(ctx context.Context, accessToken, userID string) (domainauth.Role, error) {
	m.roleCalls.Add(1)
	if m.RoleFunc != nil {
		return m.RoleFunc(ctx, accessToken, userID)
	}
	return DefaultProfile().Role, nil
}

// ProfileCalls reports how many times ProfileByID was invoked.
func (m *MockProfileReader) ProfileCalls() int64 { return m.profileCalls.Load() }

// RoleCalls reports how many times RoleByID was invoked.
func (m *MockProfileReader) RoleCalls() int64 { return m.roleCalls.Load() }

// MockTokenStore is an in-memory token store with optional failure injection
// and an optional watch channel for cross-process change tests.
type MockTokenStore struct {
	LoadFunc  func(ctx context.Context) (domainauth.Session, error)
	SaveFunc  func(ctx context.Context, sess domainauth.Session) error
	ClearFunc func(ctx context.Context) error

	mu      sync.Mutex
	session domainauth.Session
	cleared bool
	watch   chan domainauth.Session
}

// NewMockTokenStore seeds the store with sess; a zero session leaves it empty.
func NewMockTokenStore(sess domainauth.Session) *MockTokenStore {
	return &MockTokenStore{session: sess}
}

func (m *MockTokenStore) Load(ctx context.Context) (domainauth.Session, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, nil
}

func (m *MockTokenStore) Save(ctx context.Context, sess domainauth.Session) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, sess)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = sess
	return nil
}

func (m *MockTokenStore) Clear(ctx context.Context) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = domainauth.Session{}
	m.cleared = true
	return nil
}

// Current returns the stored session.
func (m *MockTokenStore) Current() domainauth.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Cleared reports whether Clear was called at least once.
func (m *MockTokenStore) Cleared() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}

// Watch implements ports.StoreWatcher. Push external changes with PushExternal.
func (m *MockTokenStore) Watch(ctx context.Context) (<-chan domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watch == nil {
		m.watch = make(chan domainauth.Session, 4)
	}
	return m.watch, nil
}

// PushExternal simulates another process mutating the store.
func (m *MockTokenStore) PushExternal(sess domainauth.Session) {
	m.mu.Lock()
	ch := m.watch
	m.mu.Unlock()
	if ch != nil {
		ch <- sess
	}
}

// FakeRealtime hands out a change channel per subscription so tests can push
// server-side row updates.
type FakeRealtime struct {
	SubscribeFunc func(ctx context.Context, userID string) (<-chan ports.ProfileChange, error)

	mu         sync.Mutex
	ch         chan ports.ProfileChange
	subscribed []string
}

func (f *FakeRealtime) SubscribeUser(ctx context.Context, userID string) (<-chan ports.ProfileChange, error) {
	if f.SubscribeFunc != nil {
		return f.SubscribeFunc(ctx, userID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, userID)
	f.ch = make(chan ports.ProfileChange, 4)
	ch := f.ch
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.ch == ch {
			close(ch)
			f.ch = nil
		}
	}()
	return ch, nil
}

// Push delivers a change to the current subscriber, if any. The send happens
// under the same lock as channel close so a Push after teardown is a no-op
// rather than a panic.
func (f *FakeRealtime) Push(change ports.ProfileChange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch != nil {
		f.ch <- change
	}
}

// Subscribed returns the user ids subscriptions were opened for, in order.
func (f *FakeRealtime) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

// ErrStoreUnavailable is a canned failure for store fault injection.
var ErrStoreUnavailable = apperrors.Internal("token store unavailable")
