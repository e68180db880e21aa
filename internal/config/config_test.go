package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-aggregator/internal/domain"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndValidate_Defaults(t *testing.T) {
	cfg, err := LoadAndValidate("")
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultRefreshInterval, cfg.Refresh.Interval)
	assert.Equal(t, DefaultTopN, cfg.Refresh.TopN)
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, BackendMemory, cfg.Directory.Backend)
	assert.Equal(t, DefaultDexScreenerURL, cfg.Sources.DexScreener.BaseURL)
	assert.Equal(t, DefaultChain, cfg.Sources.GeckoTerminal.Chain)
	assert.True(t, cfg.Sources.Jupiter.IsEnabled())
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis:6379")

	path := writeTempFile(t, "config.yaml", `
refresh:
  interval: 45s
  top_n: 10
sources:
  jupiter:
    enabled: false
  geckoterminal:
    requests_per_second: 0.5
priorities:
  dexscreener: 1
  jupiter: 5
cache:
  backend: redis
  redis:
    addr: ${TEST_REDIS_ADDR}
alerts:
  kafka:
    enabled: true
    brokers: ["localhost:9092"]
`)

	cfg, err := LoadAndValidate(path)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Refresh.Interval)
	assert.Equal(t, 10, cfg.Refresh.TopN)
	assert.False(t, cfg.Sources.Jupiter.IsEnabled())
	assert.InDelta(t, 0.5, cfg.Sources.GeckoTerminal.RequestsPerSecond, 1e-9)
	assert.Equal(t, 5, cfg.Priorities["jupiter"])
	assert.Equal(t, "redis:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Alerts.Kafka.Brokers)
	assert.Equal(t, DefaultAlertsTopic, cfg.Alerts.Kafka.Topic)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeTempFile(t, "bad.yaml", "refresh: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	off := false

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"interval too short", func(c *Config) { c.Refresh.Interval = time.Millisecond }, "refresh.interval (1ms) must be at least 1s"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = BackendRedis }, "cache.redis.addr is required"},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }, `cache.backend "memcached" is not supported`},
		{"postgres without dsn", func(c *Config) { c.Directory.Backend = BackendPostgres }, "directory.dsn is required"},
		{"unknown priority source", func(c *Config) { c.Priorities = map[string]int{"birdeye": 4} }, `priorities: unknown source "birdeye"`},
		{"kafka without brokers", func(c *Config) { c.Alerts.Kafka.Enabled = true }, "alerts.kafka.brokers is required"},
		{"all sources disabled", func(c *Config) {
			c.Sources.DexScreener.Enabled = &off
			c.Sources.Jupiter.Enabled = &off
			c.Sources.GeckoTerminal.Enabled = &off
		}, "at least one source must be enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoadEnvFiles(t *testing.T) {
	path := writeTempFile(t, ".env", "TOKEN_AGG_TEST_VAR=from-file\n")
	t.Setenv("TOKEN_AGG_TEST_VAR", "")
	require.NoError(t, os.Unsetenv("TOKEN_AGG_TEST_VAR"))

	require.NoError(t, LoadEnvFiles(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "from-file", os.Getenv("TOKEN_AGG_TEST_VAR"))
}

func TestSourcePriorities(t *testing.T) {
	defaults := map[domain.Source]int{domain.SourceDexScreener: 3, domain.SourceJupiter: 2}

	cfg := Default()
	assert.Nil(t, cfg.SourcePriorities(defaults))

	cfg.Priorities = map[string]int{"Jupiter": 5}
	got := cfg.SourcePriorities(defaults)
	assert.Equal(t, 3, got[domain.SourceDexScreener])
	assert.Equal(t, 5, got[domain.SourceJupiter])
	assert.Equal(t, 2, defaults[domain.SourceJupiter])
}
