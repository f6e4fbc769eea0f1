package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/canvango/canvango-group/internal/bootstrap"
	"github.com/canvango/canvango-group/internal/notify"
	"github.com/canvango/canvango-group/internal/service"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting canvango session gateway",
		"auth_mode", string(cfg.Auth.Mode),
		"token_store", string(cfg.TokenStore.Kind),
		"http_addr", cfg.HTTPAddr,
		"dev", cfg.IsDev)

	app, err := bootstrap.BuildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close app failed", "error", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Restore a persisted session before serving; bounded by the init
	// watchdog, so a broken backend cannot stall startup.
	if err = app.Manager.Init(ctx); err != nil {
		return err
	}
	if err = app.Manager.StartStoreWatch(ctx); err != nil {
		logger.WarnContext(ctx, "store watch unavailable", "error", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return runRefresher(gctx, app.Refresher)
	})

	group.Go(func() error {
		printNotifications(gctx, app.Notify, logger)
		return nil
	})

	group.Go(func() error {
		logger.InfoContext(gctx, "http server listening", "addr", cfg.HTTPAddr)
		if serveErr := server.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err = group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.InfoContext(ctx, "shutdown complete")
	return nil
}

func runRefresher(ctx context.Context, refresher *service.Refresher) error {
	if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// printNotifications surfaces lifecycle events (the toast channel) on the
// structured log until ctx is done.
func printNotifications(ctx context.Context, center *notify.Center, logger *slog.Logger) {
	events, unsubscribe := center.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			logger.InfoContext(ctx, "notification",
				"kind", string(ev.Kind),
				"level", string(ev.Level),
				"message", ev.Message)
		}
	}
}
