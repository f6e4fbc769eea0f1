package service

// Package service orchestrates the session lifecycle: credential exchange,
// profile resolution, background refresh, realtime role updates, and route
// guarding. Adapters do the vendor talking; this package owns the state.

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/canvango/canvango-group/config"
	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	apperrors "github.com/canvango/canvango-group/internal/errors"
	"github.com/canvango/canvango-group/internal/notify"
	"github.com/canvango/canvango-group/internal/observability/statsd"
	"github.com/canvango/canvango-group/internal/ports"
)

// Options configures a Manager. Backend, Profiles and Tokens are required.
type Options struct {
	Backend  ports.AuthBackend
	Profiles ports.ProfileReader
	Tokens   ports.TokenStore

	// Realtime is optional; without it role changes only land on refetch.
	Realtime ports.RealtimeSubscriber

	Notifier  notify.Sink    // optional, defaults to notify.Discard
	Logger    *slog.Logger   // optional, defaults to slog.Default()
	Metrics   statsd.Sink    // optional, defaults to statsd.Nop
	Lifecycle config.LifecycleConfig
	Now       func() time.Time // optional, for tests
}

// Manager owns the in-memory session state and keeps it consistent across
// logins, token refreshes, realtime pushes, and external store changes.
// All exported methods are safe for concurrent use.
type Manager struct {
	backend  ports.AuthBackend
	profiles ports.ProfileReader
	tokens   ports.TokenStore
	realtime ports.RealtimeSubscriber
	notifier notify.Sink
	logger   *slog.Logger
	metrics  statsd.Sink
	cfg      config.LifecycleConfig
	now      func() time.Time

	// fetches collapses concurrent profile fetches for the same user into a
	// single backend query.
	fetches singleflight.Group

	initOnce sync.Once
	initDone chan struct{}

	mu       sync.RWMutex
	session  domainauth.Session
	user     *domainauth.Profile
	userID   string
	revision uint64

	watchCancel context.CancelFunc
}

// NewManager validates Options and builds a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Backend == nil {
		return nil, errors.New("auth backend is required")
	}
	if opts.Profiles == nil {
		return nil, errors.New("profile reader is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("token store is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = statsd.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Lifecycle.Sanitize()

	return &Manager{
		backend:  opts.Backend,
		profiles: opts.Profiles,
		tokens:   opts.Tokens,
		realtime: opts.Realtime,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		cfg:      opts.Lifecycle,
		now:      opts.Now,
		initDone: make(chan struct{}),
	}, nil
}

// Init restores a persisted session and resolves its profile. It always
// completes within the configured watchdog: a hung store or backend leaves
// the manager initialized and signed out rather than stuck. Init never
// returns an error for recoverable conditions; callers can proceed and
// inspect CurrentUser.
func (m *Manager) Init(ctx context.Context) error {
	start := m.now()
	ctx, cancel := context.WithTimeout(ctx, m.cfg.InitWatchdog)
	defer cancel()
	defer func() {
		m.markInitialized()
		m.metrics.Timing("session.init", m.now().Sub(start), nil)
	}()

	sess, err := m.tokens.Load(ctx)
	if err != nil {
		m.logger.Warn("token load failed, starting signed out", "error", err)
		return nil
	}
	if sess.IsZero() {
		m.logger.Debug("no persisted session")
		return nil
	}

	userID, err := subjectFromToken(sess.AccessToken)
	if err != nil {
		m.logger.Warn("persisted access token unusable, clearing", "error", err)
		m.forceSignedOut(ctx)
		return nil
	}
	m.adopt(sess, userID)

	if err := m.resolveProfile(ctx, m.cfg.ProfileFetchTimeout); err != nil {
		if apperrors.IsAuthClass(err) {
			// The stored session is dead. Clear it so the next start does
			// not retry a doomed restore.
			m.logger.Info("persisted session rejected, clearing tokens", "user_id", userID)
			m.forceSignedOut(ctx)
			return nil
		}
		m.logger.Warn("initial profile fetch failed", "user_id", userID, "error", err)
		return nil
	}

	m.ensureRealtime()
	return nil
}

// Login exchanges credentials for a session, persists the token pair, and
// resolves the profile.
func (m *Manager) Login(ctx context.Context, creds domainauth.Credentials) error {
	res, err := m.backend.SignInWithPassword(ctx, creds)
	if err != nil {
		m.metrics.Count("auth.login", 1, map[string]string{"outcome": "failure"})
		return err
	}
	m.metrics.Count("auth.login", 1, map[string]string{"outcome": "success"})
	return m.establish(ctx, res, "signed in")
}

// Register creates an account and signs it in. When the backend requires
// email confirmation the returned error explains that no session exists yet.
func (m *Manager) Register(ctx context.Context, reg domainauth.Registration) error {
	res, err := m.backend.SignUp(ctx, reg)
	if err != nil {
		return err
	}
	return m.establish(ctx, res, "account created")
}

// LoginWithIDToken trades a verified external id_token for a session.
func (m *Manager) LoginWithIDToken(ctx context.Context, grant ports.IDTokenGrant) error {
	res, err := m.backend.SignInWithIDToken(ctx, grant)
	if err != nil {
		m.metrics.Count("auth.login", 1, map[string]string{"outcome": "failure"})
		return err
	}
	m.metrics.Count("auth.login", 1, map[string]string{"outcome": "success"})
	return m.establish(ctx, res, "signed in")
}

// Logout tears the session down. In-memory state is dropped immediately, the
// server-side sign-out is bounded by the logout timeout, and stored tokens
// are cleared regardless of how the backend call goes. Logout never blocks
// past the timeout and never fails the caller.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	accessToken := m.session.AccessToken
	m.session = domainauth.Session{}
	m.user = nil
	m.userID = ""
	m.revision++
	m.mu.Unlock()
	m.stopRealtime()

	// Detached from the caller's cancellation: cleanup must finish even if
	// the surrounding request goes away.
	base := context.WithoutCancel(ctx)

	if accessToken != "" {
		sctx, cancel := context.WithTimeout(base, m.cfg.LogoutTimeout)
		if err := m.backend.SignOut(sctx, accessToken); err != nil {
			m.logger.Warn("server-side sign-out failed", "error", err)
		}
		cancel()
	}
	if err := m.tokens.Clear(base); err != nil {
		m.logger.Warn("token clear failed", "error", err)
	}

	m.metrics.Count("auth.logout", 1, nil)
	m.notifyEvent(notify.KindLogout, notify.LevelInfo, "signed out")
}

// RefreshUser refetches the profile with the nested deadline. On failure the
// previous profile is retained, except for auth-class errors which force a
// local sign-out.
func (m *Manager) RefreshUser(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.NestedFetchTimeout)
	defer cancel()

	if err := m.resolveProfile(ctx, m.cfg.NestedFetchTimeout); err != nil {
		if apperrors.IsAuthClass(err) {
			m.logger.Info("session rejected during refetch, signing out")
			m.forceSignedOut(context.WithoutCancel(ctx))
		}
		return err
	}
	m.ensureRealtime()
	return nil
}

// RefreshSession exchanges the refresh token for a fresh pair and persists
// it. A rejected refresh token forces a local sign-out.
func (m *Manager) RefreshSession(ctx context.Context) error {
	m.mu.RLock()
	refreshToken := m.session.RefreshToken
	m.mu.RUnlock()
	if refreshToken == "" {
		return apperrors.SessionExpired("no refresh token available")
	}

	sess, err := m.backend.RefreshSession(ctx, refreshToken)
	if err != nil {
		if apperrors.IsAuthClass(err) {
			m.logger.Info("refresh token rejected, signing out")
			m.forceSignedOut(context.WithoutCancel(ctx))
		}
		return err
	}
	if sess.ExpiresAt.IsZero() {
		if exp, expErr := expiryFromToken(sess.AccessToken); expErr == nil {
			sess.ExpiresAt = exp
		}
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()

	if err := m.tokens.Save(ctx, sess); err != nil {
		m.logger.Warn("token save after refresh failed", "error", err)
	}
	m.metrics.Count("session.refresh", 1, nil)
	return nil
}

// CurrentUser returns the resolved profile, if any.
func (m *Manager) CurrentUser() (domainauth.Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return domainauth.Profile{}, false
	}
	return *m.user, true
}

// CurrentSession returns the active token pair, zero when signed out.
func (m *Manager) CurrentSession() domainauth.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// IsAuthenticated reports whether a session is active. The profile may still
// be unresolved.
func (m *Manager) IsAuthenticated() bool {
	return !m.CurrentSession().IsZero()
}

// InitDone is closed once initialization has completed, successfully or not.
func (m *Manager) InitDone() <-chan struct{} {
	return m.initDone
}

// Initialized reports whether Init has completed.
func (m *Manager) Initialized() bool {
	select {
	case <-m.initDone:
		return true
	default:
		return false
	}
}

// ApplyOptimisticEdit overwrites local profile fields after a successful
// profile-update call, without waiting for a refetch. Role and balance are
// authoritative server-side and are preserved.
func (m *Manager) ApplyOptimisticEdit(updated domainauth.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil || updated.ID != m.user.ID {
		return
	}
	updated.Role = m.user.Role
	updated.Balance = m.user.Balance
	m.user = &updated
	m.revision++
}

// StartStoreWatch observes external token store changes so a logout or token
// rotation in another process propagates here. No-op when the store cannot
// watch.
func (m *Manager) StartStoreWatch(ctx context.Context) error {
	watcher, ok := m.tokens.(ports.StoreWatcher)
	if !ok {
		return nil
	}
	ch, err := watcher.Watch(ctx)
	if err != nil {
		return err
	}
	go func() {
		for sess := range ch {
			m.onStoreChange(sess)
		}
	}()
	return nil
}

func (m *Manager) onStoreChange(sess domainauth.Session) {
	if sess.IsZero() {
		if !m.IsAuthenticated() {
			return
		}
		m.logger.Info("tokens cleared externally, signing out")
		m.stopRealtime()
		m.mu.Lock()
		m.session = domainauth.Session{}
		m.user = nil
		m.userID = ""
		m.revision++
		m.mu.Unlock()
		m.notifyEvent(notify.KindLogout, notify.LevelInfo, "signed out in another session")
		return
	}

	userID, err := subjectFromToken(sess.AccessToken)
	if err != nil {
		m.logger.Warn("external token change unusable", "error", err)
		return
	}

	m.mu.Lock()
	sameUser := userID == m.userID
	m.session = sess
	if !sameUser {
		m.user = nil
		m.userID = userID
		m.revision++
	}
	m.mu.Unlock()

	if !sameUser {
		m.stopRealtime()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProfileFetchTimeout)
		defer cancel()
		if err := m.resolveProfile(ctx, m.cfg.ProfileFetchTimeout); err != nil {
			m.logger.Warn("profile fetch after external login failed", "error", err)
			return
		}
		m.ensureRealtime()
	}
}

// establish installs a fresh auth result: persist tokens, reset state to the
// new identity, resolve the profile, and start the realtime feed.
func (m *Manager) establish(ctx context.Context, res ports.AuthResult, message string) error {
	sess := res.Session
	if sess.ExpiresAt.IsZero() {
		if exp, err := expiryFromToken(sess.AccessToken); err == nil {
			sess.ExpiresAt = exp
		}
	}
	userID := res.UserID
	if userID == "" {
		sub, err := subjectFromToken(sess.AccessToken)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "auth result carries no user id")
		}
		userID = sub
	}

	m.stopRealtime()
	m.adopt(sess, userID)

	if err := m.tokens.Save(ctx, sess); err != nil {
		// Session state is valid in memory; persistence failure only costs
		// restore-on-restart.
		m.logger.Warn("token save failed", "error", err)
	}

	if err := m.resolveProfile(ctx, m.cfg.ProfileFetchTimeout); err != nil {
		if apperrors.IsAuthClass(err) {
			m.forceSignedOut(context.WithoutCancel(ctx))
			return err
		}
		m.logger.Warn("profile fetch after sign-in failed", "user_id", userID, "error", err)
		m.notifyEvent(notify.KindLogin, notify.LevelWarning, "signed in, profile still loading")
		return nil
	}

	m.ensureRealtime()
	m.notifyEvent(notify.KindLogin, notify.LevelSuccess, message)
	return nil
}

// adopt replaces the tracked identity without touching persistence.
func (m *Manager) adopt(sess domainauth.Session, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = sess
	if userID != m.userID {
		m.user = nil
		m.userID = userID
	}
	m.revision++
}

// resolveProfile fetches the profile row, collapsing concurrent callers into
// one backend query. The fetch runs detached from the caller's context so an
// early waiter abandoning does not cancel it for the others; results are
// applied through a revision check so a slow fetch can never overwrite newer
// state.
func (m *Manager) resolveProfile(ctx context.Context, timeout time.Duration) error {
	m.mu.RLock()
	sess := m.session
	userID := m.userID
	base := m.revision
	m.mu.RUnlock()
	if sess.IsZero() || userID == "" {
		return apperrors.SessionExpired("no active session")
	}

	ch := m.fetches.DoChan("profile:"+userID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := m.now()
		profile, err := m.profiles.ProfileByID(fctx, sess.AccessToken, userID)
		m.metrics.Timing("profile.fetch", m.now().Sub(start), nil)
		if err != nil {
			return nil, err
		}
		return profile, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		m.applyFetched(res.Val.(domainauth.Profile), userID, base)
		return nil
	case <-ctx.Done():
		return apperrors.FromContext(ctx.Err(), "profile fetch")
	}
}

// applyFetched installs a fetch result unless newer state landed while the
// fetch was in flight.
func (m *Manager) applyFetched(profile domainauth.Profile, userID string, base uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userID != userID || m.revision != base {
		m.logger.Debug("stale profile fetch discarded",
			"user_id", userID, "fetch_revision", base, "current_revision", m.revision)
		return
	}
	m.user = &profile
	m.revision++
}

// forceSignedOut drops all local state and stored tokens. Used when the
// backend has rejected the session and re-login is the only way forward.
func (m *Manager) forceSignedOut(ctx context.Context) {
	m.stopRealtime()
	m.mu.Lock()
	m.session = domainauth.Session{}
	m.user = nil
	m.userID = ""
	m.revision++
	m.mu.Unlock()

	if err := m.tokens.Clear(ctx); err != nil {
		m.logger.Warn("token clear failed", "error", err)
	}
}

func (m *Manager) markInitialized() {
	m.initOnce.Do(func() { close(m.initDone) })
}

func (m *Manager) notifyEvent(kind notify.Kind, level notify.Level, message string) {
	m.notifier.Notify(context.Background(), notify.Event{
		Kind:       kind,
		Level:      level,
		Message:    message,
		OccurredAt: m.now(),
	})
}
