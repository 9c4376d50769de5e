package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, CacheTypeLocal, cfg.Cache.Type)
	assert.Equal(t, "relevanssi_search", cfg.Cache.Group)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Cache.StoreTimeout)
	assert.Equal(t, 30*time.Second, cfg.Cache.InvalidateTimeout)
	assert.False(t, cfg.Cache.CacheEmpty)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, CacheTypeLocal, cfg.Cache.Type)
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("TEST_REDIS_HOST", "cache.internal")

	path := writeConfig(t, `
server:
  port: "9090"
cache:
  type: redis
  group: shop_search
  ttl: 1h
  store_timeout: 100ms
  invalidate_timeout: 2m
  redis:
    url: redis://${TEST_REDIS_HOST}:6379/${TEST_REDIS_DB:-2}
search:
  postgres_url: postgres://localhost/shop
  listen: true
logging:
  format: text
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, CacheTypeRedis, cfg.Cache.Type)
	assert.Equal(t, "shop_search", cfg.Cache.Group)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 100*time.Millisecond, cfg.Cache.StoreTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Cache.InvalidateTimeout)
	assert.Equal(t, "redis://cache.internal:6379/2", cfg.Cache.Redis.URL)
	assert.True(t, cfg.Search.Listen)
	assert.Equal(t, "text", cfg.Logging.Format)

	// untouched sections keep their defaults
	assert.Equal(t, 10_000, cfg.Cache.Local.MaxEntries)
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "PORT override",
			envVars: map[string]string{"PORT": "3000"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "3000", cfg.Server.Port)
			},
		},
		{
			name:    "TTL in seconds",
			envVars: map[string]string{"SEARCH_CACHE_TTL": "86400"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
			},
		},
		{
			name:    "TTL as duration",
			envVars: map[string]string{"SEARCH_CACHE_TTL": "90m", "SEARCH_CACHE_STORE_TIMEOUT": "1s", "SEARCH_CACHE_INVALIDATE_TIMEOUT": "45"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 90*time.Minute, cfg.Cache.TTL)
				assert.Equal(t, time.Second, cfg.Cache.StoreTimeout)
				assert.Equal(t, 45*time.Second, cfg.Cache.InvalidateTimeout)
			},
		},
		{
			name:    "store overrides",
			envVars: map[string]string{"CACHE_TYPE": "postgres", "POSTGRES_URL": "postgres://localhost/test", "POSTGRES_DELETE_EXPIRED": "true"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, CacheTypePostgres, cfg.Cache.Type)
				assert.Equal(t, "postgres://localhost/test", cfg.Cache.Postgres.URL)
				assert.True(t, cfg.Cache.Postgres.DeleteExpiredItems)
			},
		},
		{
			name:    "bool overrides",
			envVars: map[string]string{"METRICS_ENABLED": "false", "SEARCH_CACHE_EMPTY": "1", "SEARCH_CACHE_COALESCE": "true"},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Metrics.Enabled)
				assert.True(t, cfg.Cache.CacheEmpty)
				assert.True(t, cfg.Cache.Coalesce)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := Defaults()
			require.NoError(t, applyEnvOverrides(&cfg))
			tt.check(t, &cfg)
		})
	}
}

func TestApplyEnvOverridesInvalid(t *testing.T) {
	t.Setenv("SEARCH_CACHE_TTL", "forever")
	t.Setenv("METRICS_ENABLED", "maybe")

	cfg := Defaults()
	err := applyEnvOverrides(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEARCH_CACHE_TTL")
	assert.Contains(t, err.Error(), "METRICS_ENABLED")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "unknown cache type", mutate: func(c *Config) { c.Cache.Type = "memcached" }, wantErr: "unknown cache type"},
		{name: "redis without url", mutate: func(c *Config) { c.Cache.Type = CacheTypeRedis }, wantErr: "cache.redis.url"},
		{name: "postgres without url", mutate: func(c *Config) { c.Cache.Type = CacheTypePostgres }, wantErr: "cache.postgres.url"},
		{name: "dynamodb without table", mutate: func(c *Config) { c.Cache.Type = CacheTypeDynamoDB; c.Cache.DynamoDB.Table = "" }, wantErr: "cache.dynamodb.table"},
		{name: "zero ttl", mutate: func(c *Config) { c.Cache.TTL = 0 }, wantErr: "cache.ttl"},
		{name: "listen without search db", mutate: func(c *Config) { c.Search.Listen = true }, wantErr: "search.listen"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandString(t *testing.T) {
	t.Setenv("API_HOST", "api.example.com")
	t.Setenv("EMPTY_VAR", "")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "no placeholders", input: "simple-string", expected: "simple-string"},
		{name: "simple expansion", input: "${API_HOST}", expected: "api.example.com"},
		{name: "default unused", input: "${API_HOST:-localhost}", expected: "api.example.com"},
		{name: "default used", input: "${MISSING_TEST_VAR:-localhost}", expected: "localhost"},
		{name: "empty var takes default", input: "${EMPTY_VAR:-fallback}", expected: "fallback"},
		{name: "missing without default", input: "a${MISSING_TEST_VAR}b", expected: "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandString(tt.input))
		})
	}
}
