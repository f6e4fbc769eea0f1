package config

import "time"

// BackendConfig describes the backend project serving auth, profile reads,
// and the realtime change feed.
type BackendConfig struct {
	// ProjectURL is the backend project base URL, e.g. https://xyz.supabase.co.
	ProjectURL string `env:"URL"`

	// AnonKey is the public API key sent with every request.
	AnonKey string `env:"ANON_KEY"`

	// HTTPTimeout is the outer timeout for a single backend HTTP call.
	// Individual lifecycle operations apply their own tighter deadlines.
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
}

const (
	minBackendTimeout = 1 * time.Second
	maxBackendTimeout = 2 * time.Minute
)

// Sanitize clamps timeout values into a sane range.
func (c *BackendConfig) Sanitize() {
	if c.HTTPTimeout < minBackendTimeout {
		c.HTTPTimeout = minBackendTimeout
	}
	if c.HTTPTimeout > maxBackendTimeout {
		c.HTTPTimeout = maxBackendTimeout
	}
}

// TokenStoreKind selects the token persistence backend.
type TokenStoreKind string

const (
	// TokenStoreFile persists tokens to a JSON file (the local-storage analog).
	TokenStoreFile TokenStoreKind = "file"
	// TokenStoreRedis persists tokens in Redis (headless/BFF deployments).
	TokenStoreRedis TokenStoreKind = "redis"
	// TokenStoreMemory keeps tokens in process memory only.
	TokenStoreMemory TokenStoreKind = "memory"
)

// TokenStoreConfig configures token persistence. Only tokens are ever stored;
// the user profile is deliberately never persisted.
type TokenStoreConfig struct {
	Kind TokenStoreKind `env:"KIND" envDefault:"file"`

	// Path is the token file location when Kind=file.
	// Empty means $HOME/.canvango/tokens.json.
	Path string `env:"PATH"`

	// Redis connection settings when Kind=redis.
	Redis RedisConfig `envPrefix:"REDIS_"`
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"       envDefault:"0"`
	// KeyPrefix namespaces token keys, e.g. per deployment.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"canvango:"`
}
