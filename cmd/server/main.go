package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cenkalti/backoff/v5"
	"github.com/jo-hoe/carddraw/internal/backend"
	"github.com/jo-hoe/carddraw/internal/backend/database"
	"github.com/jo-hoe/carddraw/internal/common"
	"github.com/jo-hoe/carddraw/internal/core"
	"github.com/jo-hoe/carddraw/internal/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type cli struct {
	Config string `help:"Path to the YAML configuration file." env:"CONFIG_PATH" default:"config.yaml" type:"path"`
}

func main() {
	var args cli
	kong.Parse(&args,
		kong.Name("carddraw"),
		kong.Description("Upload images and draw them at random, optionally split into groups."),
		kong.UsageOnError(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, args.Config); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	config, err := core.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	slog.SetDefault(config.Logging.NewLogger())

	store, err := openStore(ctx, config.Database)
	if err != nil {
		return err
	}

	m := metrics.New()
	coreService := core.NewCoreService(config, store, m, nil)
	defer func() {
		if err := coreService.Close(); err != nil {
			slog.Error("core service close error", "error", err)
		}
	}()

	server := defineServer(m)
	backend.NewAPIService(config, coreService, m).SetRoutes(server)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "port", config.Port, "database", config.Database.Type)
		if err := server.Start(fmt.Sprintf(":%d", config.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore connects to the configured store, retrying until it answers or
// the startup timeout runs out.
func openStore(ctx context.Context, config core.Database) (database.ImageStore, error) {
	expback := backoff.NewExponentialBackOff()
	expback.InitialInterval = 500 * time.Millisecond
	expback.MaxInterval = 5 * time.Second

	store, err := backoff.Retry(ctx, func() (database.ImageStore, error) {
		store, err := database.NewDatabase(ctx, config.Type, config.ConnectionString)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	},
		backoff.WithBackOff(expback),
		backoff.WithMaxElapsedTime(config.StartupTimeout),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("store not ready, retrying", "database", config.Type, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", config.Type, err)
	}
	return store, nil
}

func defineServer(m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Skip probe and scrape requests in the access log.
	e.Use(slogecho.NewWithFilters(slog.Default(), slogecho.IgnorePath("/probe", "/metrics")))
	e.Use(m.Middleware())
	e.Use(middleware.Recover())
	e.Pre(middleware.RemoveTrailingSlash())

	e.Validator = common.NewGenericEchoValidator()

	return e
}
