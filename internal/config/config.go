// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-scraper/internal/extract"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int      `mapstructure:"port"`
	RequestTimeoutSeconds int      `mapstructure:"request_timeout_seconds"`
	ShutdownSeconds       int      `mapstructure:"shutdown_seconds"`
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig governs the catalog walk and the periodic loop.
type ScraperConfig struct {
	CatalogURL string        `mapstructure:"catalog_url"`
	PageSize   int           `mapstructure:"page_size"`
	PageParam  string        `mapstructure:"page_param"`
	SizeParam  string        `mapstructure:"size_param"`
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`

	// RequestsPerSecond paces page requests per site; 0 disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	Selectors extract.Selectors `mapstructure:"selectors"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// MaxBodyBytes rejects larger listing pages; 0 disables the cap.
	MaxBodyBytes int `mapstructure:"max_body_bytes"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig selects where raw listing pages are kept.
type ArchiveConfig struct {
	Backend  string `mapstructure:"backend"`
	LocalDir string `mapstructure:"local_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for forwarding events to Pub/Sub.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Archive backends.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// Load builds a Config from disk/environment. An empty path searches for
// config.{yaml,json,toml} in the working directory, /etc/catalog-scraper and
// $HOME/.catalog-scraper.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/catalog-scraper/")
		v.AddConfigPath("$HOME/.catalog-scraper")
	}
	if err := v.ReadInConfig(); err != nil {
		// Without an explicit path a missing file is fine: defaults and
		// environment variables still apply.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
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
	sel := extract.DefaultSelectors()
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_seconds", 15)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("scraper.catalog_url", "https://www.maxidom.ru/catalog/tovary-dlya-poliva/")
	v.SetDefault("scraper.page_size", 30)
	v.SetDefault("scraper.page_param", "PAGEN_2")
	v.SetDefault("scraper.size_param", "amount")
	v.SetDefault("scraper.interval", "2h")
	v.SetDefault("scraper.run_on_start", false)
	v.SetDefault("scraper.requests_per_second", 0)
	v.SetDefault("scraper.burst", 1)
	v.SetDefault("scraper.selectors.name", sel.Name)
	v.SetDefault("scraper.selectors.name_link", sel.NameLink)
	v.SetDefault("scraper.selectors.code", sel.Code)
	v.SetDefault("scraper.selectors.buy", sel.Buy)
	v.SetDefault("scraper.selectors.price", sel.Price)
	v.SetDefault("scraper.selectors.page_nav", sel.PageNav)
	v.SetDefault("scraper.selectors.page_nav_link", sel.PageNavLink)
	v.SetDefault("http.user_agent", "catalog-scraper/1.0")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_body_bytes", 32<<20)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "products")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.local_dir", "data/pages")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	u, err := url.Parse(c.Scraper.CatalogURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("scraper.catalog_url must be an absolute URL")
	}
	if c.Scraper.PageSize <= 0 {
		return fmt.Errorf("scraper.page_size must be > 0")
	}
	if c.Scraper.Interval <= 0 {
		return fmt.Errorf("scraper.interval must be > 0")
	}
	if c.Scraper.RequestsPerSecond < 0 {
		return fmt.Errorf("scraper.requests_per_second must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	switch c.Archive.Backend {
	case ArchiveNone, "":
	case ArchiveLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.backend is local")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("archive.backend must be one of none, local, gcs; got %q", c.Archive.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return errors.New("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout converts the server request timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ShutdownTimeout converts the graceful shutdown budget into a duration.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}
