package service

// Realtime watching: one change feed per signed-in user, applied through the
// same revision-checked state as fetches. Role changes surface as a single
// notification per distinct change; balance updates are silent.

import (
	"context"
	"fmt"

	"github.com/canvango/canvango-group/internal/notify"
	"github.com/canvango/canvango-group/internal/ports"
)

// ensureRealtime opens the change feed for the current user if one is not
// already running. Safe to call repeatedly.
func (m *Manager) ensureRealtime() {
	if m.realtime == nil {
		return
	}

	m.mu.Lock()
	if m.watchCancel != nil || m.userID == "" {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.watchCancel = cancel
	userID := m.userID
	m.mu.Unlock()

	ch, err := m.realtime.SubscribeUser(ctx, userID)
	if err != nil {
		m.logger.Warn("realtime subscription failed", "user_id", userID, "error", err)
		cancel()
		m.mu.Lock()
		m.watchCancel = nil
		m.mu.Unlock()
		return
	}

	m.logger.Debug("realtime feed opened", "user_id", userID)
	go func() {
		for change := range ch {
			m.applyRealtime(change)
		}
	}()
}

// stopRealtime tears down the active feed, if any. The consuming goroutine
// exits when the adapter closes its channel.
func (m *Manager) stopRealtime() {
	m.mu.Lock()
	cancel := m.watchCancel
	m.watchCancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// applyRealtime merges a server-pushed row change into the profile.
// Duplicate pushes are dropped so each distinct role change announces
// exactly once.
func (m *Manager) applyRealtime(change ports.ProfileChange) {
	m.mu.Lock()
	if m.user == nil || change.UserID != m.userID {
		m.mu.Unlock()
		return
	}

	prevRole := m.user.Role
	newRole := change.Role
	if !newRole.Valid() {
		newRole = prevRole
	}
	if newRole == prevRole && change.Balance == m.user.Balance {
		m.mu.Unlock()
		return
	}

	m.user.Role = newRole
	m.user.Balance = change.Balance
	m.revision++
	m.mu.Unlock()

	if newRole != prevRole {
		m.logger.Info("role changed via realtime", "user_id", change.UserID,
			"from", string(prevRole), "to", string(newRole))
		m.metrics.Count("realtime.role_change", 1, nil)
		m.notifyEvent(notify.KindRoleChanged, notify.LevelInfo,
			fmt.Sprintf("your account role is now %s", newRole))
	}
}
