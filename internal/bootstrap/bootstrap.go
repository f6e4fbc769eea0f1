package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/canvango/canvango-group/config"
	"github.com/canvango/canvango-group/internal/adapters/devauth"
	"github.com/canvango/canvango-group/internal/adapters/gotrue"
	"github.com/canvango/canvango-group/internal/adapters/oidc"
	"github.com/canvango/canvango-group/internal/adapters/postgrest"
	"github.com/canvango/canvango-group/internal/adapters/realtime"
	"github.com/canvango/canvango-group/internal/adapters/tokenstore"
	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	httpx "github.com/canvango/canvango-group/internal/http"
	"github.com/canvango/canvango-group/internal/notify"
	"github.com/canvango/canvango-group/internal/observability/statsd"
	"github.com/canvango/canvango-group/internal/ports"
	"github.com/canvango/canvango-group/internal/service"
)

// InitLogger initializes the structured logger.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// App bundles the wired session lifecycle components.
type App struct {
	Manager   *service.Manager
	Guard     *service.Guard
	Refresher *service.Refresher
	Notify    *notify.Center
	Router    http.Handler
	Metrics   *statsd.Client
}

// Close releases owned resources.
func (a *App) Close() error {
	if a.Metrics != nil {
		return a.Metrics.Close()
	}
	return nil
}

// BuildApp wires adapters and services according to configuration.
func BuildApp(cfg config.AppConfig, logger *slog.Logger) (*App, error) {
	center := notify.NewCenter()

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  cfg.Observability.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	backend, profiles, rt, sso, err := buildAuthStack(cfg, logger, center)
	if err != nil {
		return nil, err
	}

	tokens, err := buildTokenStore(cfg.TokenStore, logger)
	if err != nil {
		return nil, fmt.Errorf("init token store: %w", err)
	}

	manager, err := service.NewManager(service.Options{
		Backend:   backend,
		Profiles:  profiles,
		Tokens:    tokens,
		Realtime:  rt,
		Notifier:  center,
		Logger:    logger,
		Metrics:   metrics,
		Lifecycle: cfg.Lifecycle,
	})
	if err != nil {
		return nil, fmt.Errorf("init session manager: %w", err)
	}

	guard := service.NewGuard(manager)
	app := &App{
		Manager:   manager,
		Guard:     guard,
		Refresher: service.NewRefresher(manager),
		Notify:    center,
		Metrics:   metrics,
	}
	app.Router = httpx.NewRouter(httpx.RouterServices{
		Manager: manager,
		Guard:   guard,
		SSO:     sso,
		Logger:  logger,
	})
	return app, nil
}

// buildAuthStack assembles the backend-facing adapters for the configured
// auth mode.
func buildAuthStack(cfg config.AppConfig, logger *slog.Logger, center *notify.Center) (
	ports.AuthBackend, ports.ProfileReader, ports.RealtimeSubscriber, ports.SSOProvider, error,
) {
	if cfg.Auth.Mode == config.AuthModeMock {
		if !cfg.IsDev {
			return nil, nil, nil, nil, errors.New("mock auth mode requires development mode")
		}
		dev, err := devauth.NewBackend(devauth.Config{
			UserID:   cfg.Auth.DevAuth.UserID,
			Email:    cfg.Auth.DevAuth.Email,
			Username: cfg.Auth.DevAuth.Username,
			Role:     domainauth.Role(strings.ToLower(cfg.Auth.DevAuth.Role)),
		})
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("init dev auth: %w", err)
		}
		return dev, dev, nil, dev, nil
	}

	if cfg.Backend.ProjectURL == "" || cfg.Backend.AnonKey == "" {
		return nil, nil, nil, nil, errors.New("BACKEND_URL and BACKEND_ANON_KEY are required")
	}

	httpClient := &http.Client{Timeout: cfg.Backend.HTTPTimeout}

	backend, err := gotrue.NewClient(gotrue.ClientConfig{
		ProjectURL: cfg.Backend.ProjectURL,
		AnonKey:    cfg.Backend.AnonKey,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init auth client: %w", err)
	}

	profiles, err := postgrest.NewReader(postgrest.ReaderConfig{
		ProjectURL: cfg.Backend.ProjectURL,
		AnonKey:    cfg.Backend.AnonKey,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init profile reader: %w", err)
	}

	rt, err := realtime.NewClient(realtime.ClientConfig{
		ProjectURL: cfg.Backend.ProjectURL,
		AnonKey:    cfg.Backend.AnonKey,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init realtime client: %w", err)
	}
	rt.SetConnectionCallback(func(connected bool) {
		ev := notify.Event{
			Kind:    notify.KindConnectivityRestored,
			Level:   notify.LevelSuccess,
			Message: "realtime connection restored",
		}
		if !connected {
			ev.Kind = notify.KindConnectivityLost
			ev.Level = notify.LevelWarning
			ev.Message = "realtime connection lost, retrying"
		}
		center.Notify(context.Background(), ev)
	})

	var sso ports.SSOProvider
	if cfg.Auth.Mode == config.AuthModeOIDC {
		provider, oidcErr := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     cfg.Auth.OIDC.ClientID,
			ClientSecret: cfg.Auth.OIDC.ClientSecret,
			RedirectURL:  cfg.Auth.OIDC.RedirectURL,
			Scope:        cfg.Auth.OIDC.Scope,
			DiscoveryURL: cfg.Auth.OIDC.DiscoveryURL,
			HTTPClient:   httpClient,
		})
		if oidcErr != nil {
			return nil, nil, nil, nil, fmt.Errorf("init oidc provider: %w", oidcErr)
		}
		sso = provider
	}

	return backend, profiles, rt, sso, nil
}

func buildTokenStore(cfg config.TokenStoreConfig, logger *slog.Logger) (ports.TokenStore, error) {
	switch cfg.Kind {
	case config.TokenStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		return tokenstore.NewRedisStore(client, cfg.Redis.KeyPrefix), nil

	case config.TokenStoreMemory:
		return tokenstore.NewMemoryStore(), nil

	case config.TokenStoreFile, "":
		return tokenstore.NewFileStore(tokenstore.FileStoreOptions{
			Path:   cfg.Path,
			Logger: logger,
		})

	default:
		return nil, fmt.Errorf("unknown token store kind %q", cfg.Kind)
	}
}
