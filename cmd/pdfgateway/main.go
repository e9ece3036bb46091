package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"pdfgateway/internal/config"
	"pdfgateway/internal/domain"
	"pdfgateway/internal/http/handlers"
	"pdfgateway/internal/http/server"
	"pdfgateway/internal/infra/archive"
	"pdfgateway/internal/infra/cache"
	"pdfgateway/internal/infra/chromium"
	"pdfgateway/internal/infra/gotenberg"
	"pdfgateway/internal/infra/logging"
	"pdfgateway/internal/infra/postgres"
	"pdfgateway/internal/infra/ratelimit"
	"pdfgateway/internal/infra/staging"
	"pdfgateway/internal/tokens"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg := loadConfig(os.Args[1:])
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logging.Debug(fmt.Sprintf(format, args...))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		logging.Error("Startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	app := server.New(deps)
	logging.Info("Starting pdfgateway", "addr", cfg.Server.Host+cfg.Server.Port,
		"engine", deps.Info.Driver, "engine_address", deps.Info.Address)

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// loadConfig honours --config, then CONFIG_PATH, then config.yaml.
func loadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("pdfgateway", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	path := fs.StringP("config", "c", "", "path to the YAML config file")
	_ = fs.Parse(args)

	if *path != "" {
		return config.LoadFrom(*path)
	}
	return config.Load()
}

// buildDeps wires the infrastructure. cleanup releases everything started.
func buildDeps(ctx context.Context, cfg config.Config) (server.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (server.Deps, func(), error) {
		cleanup()
		return server.Deps{}, func() {}, err
	}

	deps := server.Deps{Config: cfg}
	deps.Engine, deps.Info = newEngine(cfg)

	stager, err := staging.New(cfg.Staging.Dir)
	if err != nil {
		return fail(fmt.Errorf("staging dir: %w", err))
	}
	deps.Stager = stager

	sweeper, err := staging.NewSweeper(stager.Dir(), cfg.Staging.MaxAge, cfg.Staging.SweepSchedule)
	if err != nil {
		return fail(fmt.Errorf("staging sweeper: %w", err))
	}
	sweeper.Start()
	closers = append(closers, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sweeper.Stop(stopCtx)
	})

	if cfg.Cache.PDFCacheEnabled && cfg.Cache.RedisHost != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.PDFCacheDB,
		})
		closers = append(closers, func() { _ = rdb.Close() })
		deps.Cache = cache.New(rdb, cfg.Cache.PDFCacheTTL)
	}

	deps.Store = ratelimit.NewStore(ratelimit.RedisConfig{
		Addr: cfg.Cache.RedisHost,
		DB:   cfg.Cache.RateLimitDB,
	})

	if cfg.Auth.Enabled {
		dsn, err := postgres.DSN(cfg.Auth.Postgres)
		if err != nil {
			return fail(fmt.Errorf("auth postgres: %w", err))
		}
		db := postgres.NewDB()
		closers = append(closers, func() { _ = db.Close() })

		keys := tokens.NewCache()
		reloader := tokens.NewReloader(postgres.NewTokenRepository(db, dsn), keys, cfg.Auth.TokenReloadInterval)
		// Keys answer 503 until the first successful load.
		if err := reloader.LoadOnce(ctx); err != nil {
			logging.Error("Failed to load API tokens", "error", err)
		}
		reloader.Start(ctx)
		deps.Keys = keys
	}

	if cfg.Archive.Enabled {
		a, err := archive.NewS3(ctx, archive.Options{
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			Endpoint:  cfg.Archive.Endpoint,
			Prefix:    cfg.Archive.Prefix,
			PathStyle: cfg.Archive.PathStyle,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		})
		if err != nil {
			return fail(err)
		}
		deps.Archive = a
	}

	return deps, cleanup, nil
}

func newEngine(cfg config.Config) (domain.Engine, handlers.EngineInfo) {
	if cfg.Engine.Driver == config.DriverChromium {
		return chromium.New(chromium.Options{
			ExecPath:  cfg.Engine.ChromePath,
			NoSandbox: cfg.Engine.ChromeNoSandbox,
			Timeout:   cfg.Engine.Timeout,
		}), handlers.EngineInfo{Driver: config.DriverChromium, Address: cfg.Engine.ChromePath}
	}
	return gotenberg.New(gotenberg.Options{
		BaseURL:  cfg.Engine.BaseURL,
		Timeout:  cfg.Engine.Timeout,
		Username: cfg.Engine.Username,
		Password: cfg.Engine.Password,
	}), handlers.EngineInfo{Driver: config.DriverGotenberg, Address: cfg.Engine.BaseURL}
}

// startServer runs the app until SIGINT or SIGTERM, then shuts it down.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
