// Package config loads and validates tracker configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPubSub   = "pubsub"
	BackendNATS     = "nats"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Search    SearchConfig    `mapstructure:"search"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Financial FinancialConfig `mapstructure:"financial"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig holds the target page and extraction heuristics.
type ScraperConfig struct {
	TargetURL          string        `mapstructure:"target_url"`
	DetailURLTemplate  string        `mapstructure:"detail_url_template"`
	TableSelector      string        `mapstructure:"table_selector"`
	Keywords           []string      `mapstructure:"keywords"`
	TickerPattern      string        `mapstructure:"ticker_pattern"`
	DefaultReason      string        `mapstructure:"default_reason"`
	FallbackReason     string        `mapstructure:"fallback_reason"`
	FallbackNameFormat string        `mapstructure:"fallback_name_format"`
	UserAgent          string        `mapstructure:"user_agent"`
	DetailTimeout      time.Duration `mapstructure:"detail_timeout"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
	// PromotionThreshold is the body size under which a static detail probe
	// is re-rendered in the browser.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// HeadlessConfig configures the browser session.
type HeadlessConfig struct {
	// Enabled false leaves refreshes failing fast and detail pages on the
	// static probe only.
	Enabled           bool          `mapstructure:"enabled"`
	ExecPath          string        `mapstructure:"exec_path"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SelectorTimeout   time.Duration `mapstructure:"selector_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
}

// HTTPConfig configures the static fetcher.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects the relational backend.
type StorageConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// CacheConfig enables the Redis read-through cache when Addr is set.
type CacheConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SearchConfig controls the full-text index. An empty IndexPath keeps the
// index in memory.
type SearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	IndexPath string `mapstructure:"index_path"`
}

// ArchiveConfig selects where rendered pages are kept.
type ArchiveConfig struct {
	Backend      string `mapstructure:"backend"`
	Bucket       string `mapstructure:"bucket"`
	BaseDir      string `mapstructure:"base_dir"`
	Prefix       string `mapstructure:"prefix"`
	CacheControl string `mapstructure:"cache_control"`
}

// PublisherConfig selects where refresh events go.
type PublisherConfig struct {
	Backend       string `mapstructure:"backend"`
	Topic         string `mapstructure:"topic"`
	ProjectID     string `mapstructure:"project_id"`
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	Source        string `mapstructure:"source"`
}

// RefreshConfig governs queued and scheduled refreshes.
type RefreshConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	RunOnStart  bool          `mapstructure:"run_on_start"`
	QueueDepth  int           `mapstructure:"queue_depth"`
	Workers     int           `mapstructure:"workers"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	RunTimeout  time.Duration `mapstructure:"run_timeout"`
	RateRPS     float64       `mapstructure:"rate_rps"`
	RateBurst   int           `mapstructure:"rate_burst"`
}

// FinancialConfig controls the report aggregator.
type FinancialConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("HNX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("scraper.target_url", "https://www.hnx.vn/co-phieu-etfs/chung-khoan-uc-thong-tin-ck.html")
	v.SetDefault("scraper.detail_url_template", "https://www.hnx.vn/co-phieu-etfs/thong-tin-co-phieu.html?symbol=%s")
	v.SetDefault("scraper.table_selector", "table")
	v.SetDefault("scraper.ticker_pattern", `[A-Z]{3,4}`)
	v.SetDefault("scraper.default_reason", "Restricted trading")
	v.SetDefault("scraper.fallback_reason", "Trading restriction detected")
	v.SetDefault("scraper.fallback_name_format", "Company %s")
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("scraper.detail_timeout", 15*time.Second)
	v.SetDefault("scraper.respect_robots", false)
	v.SetDefault("scraper.promotion_threshold", 2048)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.navigation_timeout", 30*time.Second)
	v.SetDefault("headless.selector_timeout", 10*time.Second)
	v.SetDefault("headless.settle_delay", 500*time.Millisecond)
	v.SetDefault("headless.window_width", 1366)
	v.SetDefault("headless.window_height", 768)
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.sqlite_path", "hnx.db")
	v.SetDefault("storage.max_conns", 10)
	v.SetDefault("storage.auto_migrate", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("search.enabled", true)
	v.SetDefault("archive.backend", BackendMemory)
	v.SetDefault("archive.prefix", "snapshots")
	v.SetDefault("publisher.backend", BackendMemory)
	v.SetDefault("publisher.topic", "stocks.refreshed")
	v.SetDefault("publisher.subject_prefix", "hnx")
	v.SetDefault("publisher.source", "hnx-tracker")
	v.SetDefault("refresh.interval", 0)
	v.SetDefault("refresh.run_on_start", false)
	v.SetDefault("refresh.queue_depth", 8)
	v.SetDefault("refresh.workers", 1)
	v.SetDefault("refresh.max_attempts", 1)
	v.SetDefault("refresh.retry_delay", 5*time.Second)
	v.SetDefault("refresh.rate_rps", 0.2)
	v.SetDefault("refresh.rate_burst", 1)
	v.SetDefault("financial.enabled", true)
	v.SetDefault("financial.timeout", 20*time.Second)

	// Keys without a default still need env bindings to reach Unmarshal.
	for _, key := range []string{
		"headless.exec_path", "storage.dsn", "storage.min_conns", "storage.max_conn_lifetime",
		"cache.addr", "cache.password", "cache.db", "search.index_path",
		"archive.bucket", "archive.base_dir", "archive.cache_control",
		"publisher.project_id", "publisher.nats_url", "refresh.run_timeout",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Headless.NavigationTimeout <= 0 {
		return fmt.Errorf("headless.navigation_timeout must be > 0")
	}
	if c.Headless.SelectorTimeout <= 0 {
		return fmt.Errorf("headless.selector_timeout must be > 0")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set for the postgres backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must be set for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, postgres, sqlite")
	}
	switch c.Archive.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend must be one of memory, local, gcs")
	}
	switch c.Publisher.Backend {
	case BackendMemory, BackendNATS:
	case BackendPubSub:
		if c.Publisher.ProjectID == "" {
			return fmt.Errorf("publisher.project_id must be set for the pubsub backend")
		}
	default:
		return fmt.Errorf("publisher.backend must be one of memory, pubsub, nats")
	}
	if c.Refresh.Workers <= 0 {
		return fmt.Errorf("refresh.workers must be > 0")
	}
	if c.Refresh.QueueDepth <= 0 {
		return fmt.Errorf("refresh.queue_depth must be > 0")
	}
	if c.Refresh.Interval < 0 {
		return fmt.Errorf("refresh.interval must be >= 0")
	}
	if c.Financial.Enabled && c.Financial.Timeout <= 0 {
		return fmt.Errorf("financial.timeout must be > 0 when financial reports are enabled")
	}
	return nil
}

// DetailFetchBudget is the ceiling applied to a detail-page request.
func (c Config) DetailFetchBudget() time.Duration {
	if c.Scraper.DetailTimeout > 0 {
		return c.Scraper.DetailTimeout
	}
	return c.HTTP.Timeout
}
