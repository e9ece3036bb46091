package main

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfgateway/internal/config"
	"pdfgateway/internal/infra/chromium"
	"pdfgateway/internal/infra/gotenberg"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	err := os.WriteFile(path, []byte(`
server:
  host: "127.0.0.1"
  port: ":0"
logger:
  file: "`+filepath.Join(dir, "logs", "gateway.log")+`"
  level: "info"
  max_size_mb: 1
  max_backups: 1
  max_age_days: 1
cache:
  pdf_cache_enabled: false
  redis_host: "127.0.0.1:1"
engine:
  base_url: "http://127.0.0.1:1"
  timeout: 1s
staging:
  dir: "`+filepath.Join(dir, "staging")+`"
  sweep_schedule: "@every 1h"
`+extra), 0o644)
	require.NoError(t, err)
	return path
}

func TestLoadConfig_FlagAndEnv(t *testing.T) {
	flagPath := writeConfig(t, "")
	envPath := writeConfig(t, "rate_limiter:\n  user_limit: 7\n")
	t.Setenv("CONFIG_PATH", envPath)

	cfg := loadConfig([]string{"--config", flagPath, "-test.v=true"})
	assert.Equal(t, 0, cfg.RateLimiter.UserLimit)

	cfg = loadConfig([]string{"-c", flagPath})
	assert.Equal(t, 0, cfg.RateLimiter.UserLimit)

	cfg = loadConfig(nil)
	assert.Equal(t, 7, cfg.RateLimiter.UserLimit)
}

func TestBuildDeps_Defaults(t *testing.T) {
	cfg := config.LoadFrom(writeConfig(t, ""))

	deps, cleanup, err := buildDeps(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &gotenberg.Client{}, deps.Engine)
	assert.Equal(t, "gotenberg", deps.Info.Driver)
	assert.Equal(t, "http://127.0.0.1:1", deps.Info.Address)
	assert.NotNil(t, deps.Stager)
	assert.DirExists(t, deps.Stager.Dir())
	assert.NotNil(t, deps.Store)
	assert.Nil(t, deps.Cache)
	assert.Nil(t, deps.Keys)
	assert.Nil(t, deps.Archive)
}

func TestBuildDeps_ChromiumAndAuth(t *testing.T) {
	cfg := config.LoadFrom(writeConfig(t, `
auth:
  enabled: true
  postgres:
    host: "127.0.0.1"
    port: 1
    database: "tokens"
    user: "svc"
    sslmode: "disable"
`))
	cfg.Engine.Driver = config.DriverChromium
	cfg.Engine.ChromePath = "/opt/chrome"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deps, cleanup, err := buildDeps(ctx, cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &chromium.Engine{}, deps.Engine)
	assert.Equal(t, "/opt/chrome", deps.Info.Address)
	require.NotNil(t, deps.Keys)
	assert.False(t, deps.Keys.Ready())
}

func TestBuildDeps_InvalidSchedule(t *testing.T) {
	cfg := config.LoadFrom(writeConfig(t, ""))
	cfg.Staging.SweepSchedule = "whenever"

	_, cleanup, err := buildDeps(context.Background(), cfg)
	assert.Error(t, err)
	cleanup()
}

func TestStartServer_GracefulShutdownOnSignal(t *testing.T) {
	app := fiber.New()
	var cfg config.Config
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = ":0"

	idleConnsClosed := make(chan struct{})
	go startServer(app, cfg, idleConnsClosed)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-idleConnsClosed:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for graceful shutdown")
	}
}

func TestMain_UsesConfigAndShutsDown(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, ""))

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for main to exit")
	}
}
