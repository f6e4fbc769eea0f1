package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, AuthModePassword, cfg.Auth.Mode)
	assert.Equal(t, TokenStoreFile, cfg.TokenStore.Kind)
	assert.Equal(t, 5*time.Second, cfg.Lifecycle.ProfileFetchTimeout)
	assert.Equal(t, 3*time.Second, cfg.Lifecycle.NestedFetchTimeout)
	assert.Equal(t, 10*time.Second, cfg.Lifecycle.InitWatchdog)
	assert.Equal(t, 5*time.Minute, cfg.Lifecycle.RefreshInterval)
	assert.Equal(t, 10*time.Minute, cfg.Lifecycle.RefreshThreshold)
	assert.Equal(t, 5*time.Second, cfg.Lifecycle.GuardTimeout)
}

func TestAuthModeUnmarshalText(t *testing.T) {
	var m AuthMode
	require.NoError(t, m.UnmarshalText([]byte("OIDC")))
	assert.Equal(t, AuthModeOIDC, m)

	require.NoError(t, m.UnmarshalText([]byte("mock")))
	assert.Equal(t, AuthModeMock, m)

	assert.Error(t, m.UnmarshalText([]byte("saml")))
}

func TestLifecycleSanitizeClamps(t *testing.T) {
	cfg := LifecycleConfig{
		ProfileFetchTimeout: -1,
		NestedFetchTimeout:  10 * time.Minute,
		InitWatchdog:        0,
		RefreshInterval:     time.Second,
		RefreshThreshold:    2 * time.Hour,
		WakeDebounce:        time.Second,
		GuardTimeout:        time.Millisecond,
	}
	cfg.Sanitize()

	assert.Equal(t, 5*time.Second, cfg.ProfileFetchTimeout)
	// Nested deadline never exceeds the initial one.
	assert.LessOrEqual(t, cfg.NestedFetchTimeout, cfg.ProfileFetchTimeout)
	assert.Equal(t, 10*time.Second, cfg.InitWatchdog)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, time.Hour, cfg.RefreshThreshold)
	assert.Equal(t, 10*time.Second, cfg.WakeDebounce)
	assert.Equal(t, 500*time.Millisecond, cfg.GuardTimeout)
}

func TestDetectDevMode(t *testing.T) {
	t.Setenv("NODE_ENV", "development")
	cfg := AppConfig{}
	cfg.Sanitize()
	assert.True(t, cfg.IsDev)
}

func TestMetricsSanitizeDisablesWithoutAddress(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   "}
	cfg.Sanitize()
	assert.False(t, cfg.IsEnabled())

	cfg = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "127.0.0.1:8125"}
	cfg.Sanitize()
	assert.True(t, cfg.IsEnabled())
}
