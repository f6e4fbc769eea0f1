package config

import "time"

// LifecycleConfig holds the timeouts and intervals driving the session
// lifecycle: profile fetch deadlines, the init watchdog, background refresh
// cadence, and the route-guard deadline.
type LifecycleConfig struct {
	// ProfileFetchTimeout bounds the initial profile fetch.
	ProfileFetchTimeout time.Duration `env:"PROFILE_FETCH_TIMEOUT" envDefault:"5s"`

	// NestedFetchTimeout bounds secondary queries (role-only reads, refetches).
	NestedFetchTimeout time.Duration `env:"NESTED_FETCH_TIMEOUT" envDefault:"3s"`

	// InitWatchdog bounds the whole initialization sequence so startup never
	// hangs on a broken network.
	InitWatchdog time.Duration `env:"INIT_WATCHDOG" envDefault:"10s"`

	// LogoutTimeout bounds the server-side sign-out call. Local cleanup
	// proceeds regardless of the outcome.
	LogoutTimeout time.Duration `env:"LOGOUT_TIMEOUT" envDefault:"3s"`

	// RefreshInterval is the background session check cadence.
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"5m"`

	// RefreshThreshold triggers a proactive token refresh when the session
	// expires within this window.
	RefreshThreshold time.Duration `env:"REFRESH_THRESHOLD" envDefault:"10m"`

	// WakeDebounce suppresses redundant checks when wake triggers (focus,
	// resume from sleep) overlap the periodic timer.
	WakeDebounce time.Duration `env:"WAKE_DEBOUNCE" envDefault:"2m"`

	// GuardTimeout bounds the route guard's fresh role query before it falls
	// back to the cached role.
	GuardTimeout time.Duration `env:"GUARD_TIMEOUT" envDefault:"5s"`
}

const (
	minFetchTimeout   = 500 * time.Millisecond
	minWatchdog       = time.Second
	minRefreshPeriod  = 30 * time.Second
	maxRefreshPeriod  = time.Hour
	minGuardTimeout   = 500 * time.Millisecond
	maxLifecycleBound = 5 * time.Minute
)

// Sanitize clamps lifecycle values into sane ranges. Zero or negative values
// fall back to the defaults documented on each field.
func (c *LifecycleConfig) Sanitize() {
	c.ProfileFetchTimeout = clampDuration(c.ProfileFetchTimeout, minFetchTimeout, maxLifecycleBound, 5*time.Second)
	c.NestedFetchTimeout = clampDuration(c.NestedFetchTimeout, minFetchTimeout, maxLifecycleBound, 3*time.Second)
	c.InitWatchdog = clampDuration(c.InitWatchdog, minWatchdog, maxLifecycleBound, 10*time.Second)
	c.LogoutTimeout = clampDuration(c.LogoutTimeout, minFetchTimeout, maxLifecycleBound, 3*time.Second)
	c.RefreshInterval = clampDuration(c.RefreshInterval, minRefreshPeriod, maxRefreshPeriod, 5*time.Minute)
	c.RefreshThreshold = clampDuration(c.RefreshThreshold, time.Minute, maxRefreshPeriod, 10*time.Minute)
	c.WakeDebounce = clampDuration(c.WakeDebounce, 10*time.Second, maxRefreshPeriod, 2*time.Minute)
	c.GuardTimeout = clampDuration(c.GuardTimeout, minGuardTimeout, maxLifecycleBound, 5*time.Second)

	// The nested deadline must not exceed the initial one, or the guard's
	// fallback ordering stops making sense.
	if c.NestedFetchTimeout > c.ProfileFetchTimeout {
		c.NestedFetchTimeout = c.ProfileFetchTimeout
	}
}

func clampDuration(v, minV, maxV, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
