package service

// Background session refresh: a periodic check plus wake triggers (app focus,
// resume from sleep, network back). Wake triggers are debounced against the
// time since the last check; the periodic check always runs.

import (
	"context"
	"sync"
	"time"
)

// WakeReason labels the trigger that requested an out-of-band session check.
type WakeReason string

const (
	WakeFocus          WakeReason = "focus"
	WakeResume         WakeReason = "resume"
	WakeOnline         WakeReason = "online"
	WakeVisibilityGain WakeReason = "visibility"
)

// Refresher keeps the session fresh by renewing the token pair whenever
// expiry falls inside the configured threshold.
type Refresher struct {
	manager *Manager
	wake    chan WakeReason

	mu        sync.Mutex
	lastCheck time.Time
}

// NewRefresher builds a Refresher bound to the manager's configuration.
func NewRefresher(manager *Manager) *Refresher {
	return &Refresher{
		manager: manager,
		wake:    make(chan WakeReason, 4),
	}
}

// Wake requests an out-of-band check. Never blocks; overlapping triggers
// coalesce.
func (r *Refresher) Wake(reason WakeReason) {
	select {
	case r.wake <- reason:
	default:
	}
}

// Run drives the check loop until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	m := r.manager
	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()

	lastTick := m.now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			now := m.now()
			// A tick arriving far later than scheduled means the host was
			// suspended; the session may have aged past the threshold.
			if gap := now.Sub(lastTick); gap > m.cfg.RefreshInterval+30*time.Second {
				m.logger.Info("resumed after suspend", "gap", gap.String())
			}
			lastTick = now
			r.check(ctx, "interval", false)

		case reason := <-r.wake:
			r.check(ctx, string(reason), true)
		}
	}
}

// check renews the session when it expires within the threshold. Debounced
// callers are dropped when a check ran recently.
func (r *Refresher) check(ctx context.Context, trigger string, debounced bool) {
	m := r.manager
	now := m.now()

	r.mu.Lock()
	if debounced && !r.lastCheck.IsZero() && now.Sub(r.lastCheck) < m.cfg.WakeDebounce {
		r.mu.Unlock()
		m.logger.Debug("session check debounced", "trigger", trigger)
		return
	}
	r.lastCheck = now
	r.mu.Unlock()

	sess := m.CurrentSession()
	if sess.IsZero() {
		return
	}

	ttl := sess.TimeToExpiry(now)
	if ttl >= m.cfg.RefreshThreshold {
		m.logger.Debug("session still fresh", "trigger", trigger, "expires_in", ttl.String())
		return
	}

	m.logger.Info("refreshing session", "trigger", trigger, "expires_in", ttl.String())
	if err := m.RefreshSession(ctx); err != nil {
		m.logger.Warn("session refresh failed", "trigger", trigger, "error", err)
		m.metrics.Count("session.refresh_failure", 1, map[string]string{"trigger": trigger})
	}
}
