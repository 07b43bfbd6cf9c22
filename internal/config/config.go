// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
// Components receive the structs they need; nothing reads viper globals.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Listing ListingConfig `mapstructure:"listing"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	DB      DBConfig      `mapstructure:"db"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Search  SearchConfig  `mapstructure:"search"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ListingConfig points at the committee listing page.
type ListingConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	Limit                int      `mapstructure:"limit"`
	DetailTimeoutSeconds int      `mapstructure:"detail_timeout_seconds"`
	RatePerSecond        float64  `mapstructure:"rate_per_second"`
	UserAgent            string   `mapstructure:"user_agent"`
	DocKeywords          []string `mapstructure:"doc_keywords"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// WorkerConfig identifies the external chat worker. URL and Secret have no
// defaults: their absence is reported at startup and fails chat requests
// with a configuration error rather than degrading silently.
type WorkerConfig struct {
	URL            string `mapstructure:"url"`
	Secret         string `mapstructure:"secret"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SearchConfig tunes result counts.
type SearchConfig struct {
	TopKDefault int `mapstructure:"top_k_default"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AGRIDOCS")
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

// setDefaults registers every config key. Viper only resolves environment
// variables for keys it already knows about, so keys whose natural default
// is empty still need an explicit entry here or their AGRIDOCS_* variables
// would be ignored in env-only deployments.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("listing.url", "https://www.europarl.europa.eu/committees/en/agri/documents/latest-documents")
	v.SetDefault("listing.timeout_seconds", 30)
	v.SetDefault("crawler.limit", 200)
	v.SetDefault("crawler.detail_timeout_seconds", 20)
	v.SetDefault("crawler.rate_per_second", 2.0)
	v.SetDefault("crawler.user_agent", "agridocs-indexer/1.0 (+https://github.com/mnbossa/agridocs)")
	v.SetDefault("crawler.doc_keywords", []string{"Opinion", "Report", "Amendment"})
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("worker.url", "")
	v.SetDefault("worker.secret", "")
	v.SetDefault("worker.model", "HuggingFaceTB/SmolLM3-3B:hf-inference")
	v.SetDefault("worker.timeout_seconds", 30)
	v.SetDefault("search.top_k_default", 5)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. Worker URL and
// secret are deliberately not required here; chat reports them as
// configuration errors at first use so the rest of the service still runs.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Listing.URL == "" {
		return fmt.Errorf("listing.url must be set")
	}
	if c.Listing.TimeoutSeconds <= 0 {
		return fmt.Errorf("listing.timeout_seconds must be > 0")
	}
	if c.Crawler.Limit <= 0 {
		return fmt.Errorf("crawler.limit must be > 0")
	}
	if c.Crawler.DetailTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.detail_timeout_seconds must be > 0")
	}
	if c.Crawler.DetailTimeoutSeconds > c.Listing.TimeoutSeconds {
		return fmt.Errorf("crawler.detail_timeout_seconds must not exceed listing.timeout_seconds")
	}
	if c.Search.TopKDefault <= 0 {
		return fmt.Errorf("search.top_k_default must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ListingTimeout returns the listing fetch budget as a duration.
func (c Config) ListingTimeout() time.Duration {
	return time.Duration(c.Listing.TimeoutSeconds) * time.Second
}

// DetailTimeout returns the per-item fetch budget as a duration.
func (c Config) DetailTimeout() time.Duration {
	return time.Duration(c.Crawler.DetailTimeoutSeconds) * time.Second
}

// WorkerTimeout returns the worker call budget as a duration.
func (c Config) WorkerTimeout() time.Duration {
	return time.Duration(c.Worker.TimeoutSeconds) * time.Second
}
