// Package config defines the service configuration file.
package config

import (
	"errors"
	"fmt"
	"time"

	"token-aggregator/internal/domain"
)

// Default values applied by applyDefaults.
const (
	DefaultAddr            = ":3000"
	DefaultShutdownTimeout = 10 * time.Second

	DefaultRefreshInterval    = 30 * time.Second
	DefaultFetchTimeout       = 10 * time.Second
	DefaultStopTimeout        = 15 * time.Second
	DefaultTopN               = 50
	DefaultPriceThresholdPct  = 5.0
	DefaultVolumeThresholdPct = 50.0

	DefaultSourceTimeout    = 10 * time.Second
	DefaultSourceRetries    = 3
	DefaultSourceRPS        = 5.0
	DefaultSourceBurst      = 5
	DefaultDexScreenerURL   = "https://api.dexscreener.com"
	DefaultJupiterURL       = "https://lite-api.jup.ag"
	DefaultGeckoTerminalURL = "https://api.geckoterminal.com/api/v2"
	DefaultChain            = "solana"

	DefaultSnapshotTTL = 60 * time.Second
	DefaultQueryTTL    = 30 * time.Second
	DefaultTokenTTL    = 30 * time.Second

	DefaultRateLimitRequests = 100
	DefaultRateLimitWindow   = time.Minute

	DefaultAlertsTopic = "token-alerts"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
	DefaultMetricsPath = "/metrics"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the root of the YAML configuration file.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Refresh    RefreshConfig   `yaml:"refresh"`
	Sources    SourcesConfig   `yaml:"sources"`
	Priorities map[string]int  `yaml:"priorities"`
	Cache      CacheConfig     `yaml:"cache"`
	Directory  DirectoryConfig `yaml:"directory"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`
	Alerts     AlertsConfig    `yaml:"alerts"`
	Logging    LoggingConfig   `yaml:"logging"`
	Metrics    MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RefreshConfig controls the refresh loop and alert thresholds.
type RefreshConfig struct {
	Interval           time.Duration `yaml:"interval"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
	StopTimeout        time.Duration `yaml:"stop_timeout"`
	TopN               int           `yaml:"top_n"`
	PriceThresholdPct  float64       `yaml:"price_threshold_pct"`
	VolumeThresholdPct float64       `yaml:"volume_threshold_pct"`
}

type SourcesConfig struct {
	DexScreener   SourceConfig `yaml:"dexscreener"`
	Jupiter       SourceConfig `yaml:"jupiter"`
	GeckoTerminal SourceConfig `yaml:"geckoterminal"`
}

// SourceConfig configures one upstream adapter. Enabled defaults to true.
type SourceConfig struct {
	Enabled           *bool         `yaml:"enabled"`
	BaseURL           string        `yaml:"base_url"`
	Chain             string        `yaml:"chain"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// IsEnabled reports whether the source should be polled.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type CacheConfig struct {
	Backend     string        `yaml:"backend"`
	Redis       RedisConfig   `yaml:"redis"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
	QueryTTL    time.Duration `yaml:"query_ttl"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DirectoryConfig selects the token directory store.
type DirectoryConfig struct {
	Backend        string        `yaml:"backend"`
	DSN            string        `yaml:"dsn"`
	MaxConns       int32         `yaml:"max_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type AlertsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = DefaultRefreshInterval
	}
	if c.Refresh.FetchTimeout == 0 {
		c.Refresh.FetchTimeout = DefaultFetchTimeout
	}
	if c.Refresh.StopTimeout == 0 {
		c.Refresh.StopTimeout = DefaultStopTimeout
	}
	if c.Refresh.TopN == 0 {
		c.Refresh.TopN = DefaultTopN
	}
	if c.Refresh.PriceThresholdPct == 0 {
		c.Refresh.PriceThresholdPct = DefaultPriceThresholdPct
	}
	if c.Refresh.VolumeThresholdPct == 0 {
		c.Refresh.VolumeThresholdPct = DefaultVolumeThresholdPct
	}

	c.Sources.DexScreener.applyDefaults(DefaultDexScreenerURL)
	c.Sources.Jupiter.applyDefaults(DefaultJupiterURL)
	c.Sources.GeckoTerminal.applyDefaults(DefaultGeckoTerminalURL)

	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendMemory
	}
	if c.Cache.SnapshotTTL == 0 {
		c.Cache.SnapshotTTL = DefaultSnapshotTTL
	}
	if c.Cache.QueryTTL == 0 {
		c.Cache.QueryTTL = DefaultQueryTTL
	}
	if c.Cache.TokenTTL == 0 {
		c.Cache.TokenTTL = DefaultTokenTTL
	}

	if c.Directory.Backend == "" {
		c.Directory.Backend = BackendMemory
	}

	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = DefaultRateLimitRequests
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = DefaultRateLimitWindow
	}

	if c.Alerts.Kafka.Topic == "" {
		c.Alerts.Kafka.Topic = DefaultAlertsTopic
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func (s *SourceConfig) applyDefaults(baseURL string) {
	if s.BaseURL == "" {
		s.BaseURL = baseURL
	}
	if s.Chain == "" {
		s.Chain = DefaultChain
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultSourceTimeout
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = DefaultSourceRetries
	}
	if s.RequestsPerSecond == 0 {
		s.RequestsPerSecond = DefaultSourceRPS
	}
	if s.Burst == 0 {
		s.Burst = DefaultSourceBurst
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Refresh.Interval < time.Second {
		return fmt.Errorf("refresh.interval (%s) must be at least 1s", c.Refresh.Interval)
	}
	if c.Refresh.TopN < 1 {
		return errors.New("refresh.top_n must be positive")
	}
	if c.Refresh.PriceThresholdPct < 0 || c.Refresh.VolumeThresholdPct < 0 {
		return errors.New("refresh thresholds cannot be negative")
	}
	if !c.Sources.DexScreener.IsEnabled() && !c.Sources.Jupiter.IsEnabled() && !c.Sources.GeckoTerminal.IsEnabled() {
		return errors.New("at least one source must be enabled")
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}

	switch c.Directory.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Directory.DSN == "" {
			return errors.New("directory.dsn is required")
		}
	default:
		return fmt.Errorf("directory.backend %q is not supported", c.Directory.Backend)
	}

	for name := range c.Priorities {
		if _, ok := domain.ParseSource(name); !ok {
			return fmt.Errorf("priorities: unknown source %q", name)
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.Requests < 1 {
		return errors.New("rate_limit.requests must be positive")
	}

	if c.Alerts.Kafka.Enabled && len(c.Alerts.Kafka.Brokers) == 0 {
		return errors.New("alerts.kafka.brokers is required")
	}

	return nil
}

// SourcePriorities returns the merge priority table: the built-in ranking
// with any configured overrides applied. Nil means no overrides.
func (c *Config) SourcePriorities(defaults map[domain.Source]int) map[domain.Source]int {
	if len(c.Priorities) == 0 {
		return nil
	}
	out := make(map[domain.Source]int, len(defaults)+len(c.Priorities))
	for src, p := range defaults {
		out[src] = p
	}
	for name, p := range c.Priorities {
		if src, ok := domain.ParseSource(name); ok {
			out[src] = p
		}
	}
	return out
}
