package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 90*time.Second, cfg.Server.RequestTimeout)
	require.Equal(t, BackendMemory, cfg.Storage.Backend)
	require.Equal(t, BackendMemory, cfg.Archive.Backend)
	require.Equal(t, BackendMemory, cfg.Publisher.Backend)
	require.True(t, cfg.Headless.Enabled)
	require.Equal(t, 30*time.Second, cfg.Headless.NavigationTimeout)
	require.Equal(t, 10*time.Second, cfg.Headless.SelectorTimeout)
	require.Equal(t, 500*time.Millisecond, cfg.Headless.SettleDelay)
	require.Equal(t, 1, cfg.Refresh.Workers)
	require.Zero(t, cfg.Refresh.Interval)
	require.True(t, cfg.Financial.Enabled)
	require.Contains(t, cfg.Scraper.DetailURLTemplate, "%s")
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout: 45s
logging:
  development: false
  level: debug
scraper:
  keywords: ["ma ck", "ten"]
  ticker_pattern: "[A-Z]{3}"
  respect_robots: true
headless:
  navigation_timeout: 20s
  selector_timeout: 5s
  window_width: 1920
storage:
  backend: sqlite
  sqlite_path: /tmp/hnx.db
cache:
  addr: localhost:6379
  ttl: 1m
search:
  enabled: false
archive:
  backend: local
  base_dir: /tmp/snapshots
publisher:
  backend: nats
  nats_url: nats://localhost:4222
refresh:
  interval: 15m
  run_on_start: true
  workers: 2
  queue_depth: 4
  rate_rps: 1.5
financial:
  timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 45*time.Second, cfg.Server.RequestTimeout)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, []string{"ma ck", "ten"}, cfg.Scraper.Keywords)
	require.Equal(t, "[A-Z]{3}", cfg.Scraper.TickerPattern)
	require.True(t, cfg.Scraper.RespectRobots)
	require.Equal(t, 20*time.Second, cfg.Headless.NavigationTimeout)
	require.Equal(t, 1920, cfg.Headless.WindowWidth)
	require.Equal(t, BackendSQLite, cfg.Storage.Backend)
	require.Equal(t, "/tmp/hnx.db", cfg.Storage.SQLitePath)
	require.Equal(t, "localhost:6379", cfg.Cache.Addr)
	require.Equal(t, time.Minute, cfg.Cache.TTL)
	require.False(t, cfg.Search.Enabled)
	require.Equal(t, "/tmp/snapshots", cfg.Archive.BaseDir)
	require.Equal(t, BackendNATS, cfg.Publisher.Backend)
	require.Equal(t, 15*time.Minute, cfg.Refresh.Interval)
	require.True(t, cfg.Refresh.RunOnStart)
	require.Equal(t, 2, cfg.Refresh.Workers)
	require.InDelta(t, 1.5, cfg.Refresh.RateRPS, 0.0001)
	require.Equal(t, 5*time.Second, cfg.Financial.Timeout)
}

//nolint:paralleltest // t.Setenv forbids t.Parallel
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HNX_SERVER_PORT", "7070")
	t.Setenv("HNX_STORAGE_BACKEND", "postgres")
	t.Setenv("HNX_STORAGE_DSN", "postgres://hnx@localhost/hnx")
	t.Setenv("HNX_CACHE_ADDR", "redis:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, BackendPostgres, cfg.Storage.Backend)
	require.Equal(t, "postgres://hnx@localhost/hnx", cfg.Storage.DSN)
	require.Equal(t, "redis:6379", cfg.Cache.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:    ServerConfig{Port: 8080},
		HTTP:      HTTPConfig{Timeout: time.Second},
		Headless:  HeadlessConfig{NavigationTimeout: time.Second, SelectorTimeout: time.Second},
		Storage:   StorageConfig{Backend: BackendMemory},
		Archive:   ArchiveConfig{Backend: BackendMemory},
		Publisher: PublisherConfig{Backend: BackendMemory},
		Refresh:   RefreshConfig{Workers: 1, QueueDepth: 1},
		Financial: FinancialConfig{Enabled: true, Timeout: time.Second},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid http timeout", func(c *Config) { c.HTTP.Timeout = 0 }, "http.timeout"},
		{"invalid navigation timeout", func(c *Config) { c.Headless.NavigationTimeout = 0 }, "headless.navigation_timeout"},
		{"invalid selector timeout", func(c *Config) { c.Headless.SelectorTimeout = 0 }, "headless.selector_timeout"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "storage.dsn"},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = BackendSQLite }, "storage.sqlite_path"},
		{"local archive without dir", func(c *Config) { c.Archive.Backend = BackendLocal }, "archive.base_dir"},
		{"gcs archive without bucket", func(c *Config) { c.Archive.Backend = BackendGCS }, "archive.bucket"},
		{"unknown archive", func(c *Config) { c.Archive.Backend = "s3" }, "archive.backend"},
		{"pubsub without project", func(c *Config) { c.Publisher.Backend = BackendPubSub }, "publisher.project_id"},
		{"unknown publisher", func(c *Config) { c.Publisher.Backend = "kafka" }, "publisher.backend"},
		{"no workers", func(c *Config) { c.Refresh.Workers = 0 }, "refresh.workers"},
		{"no queue", func(c *Config) { c.Refresh.QueueDepth = 0 }, "refresh.queue_depth"},
		{"negative interval", func(c *Config) { c.Refresh.Interval = -time.Second }, "refresh.interval"},
		{"financial without timeout", func(c *Config) { c.Financial.Timeout = 0 }, "financial.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestDetailFetchBudget(t *testing.T) {
	t.Parallel()

	cfg := Config{HTTP: HTTPConfig{Timeout: 15 * time.Second}}
	require.Equal(t, 15*time.Second, cfg.DetailFetchBudget())
	cfg.Scraper.DetailTimeout = 3 * time.Second
	require.Equal(t, 3*time.Second, cfg.DetailFetchBudget())
}
