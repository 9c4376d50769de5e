// Package config provides configuration management for the search cache server.
//
// Values are resolved in order: built-in defaults, the YAML file (with
// ${VAR} and ${VAR:-default} expansion), then environment variables. A .env
// file in the working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache store types.
const (
	CacheTypeLocal    = "local"
	CacheTypeRedis    = "redis"
	CacheTypePostgres = "postgres"
	CacheTypeDynamoDB = "dynamodb"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Search  SearchConfig  `yaml:"search"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`

	// AdminToken protects /admin routes with a bearer token when set.
	AdminToken string `yaml:"admin_token"`
}

// CacheConfig selects and configures the cache store.
type CacheConfig struct {
	Type              string        `yaml:"type"`
	Group             string        `yaml:"group"`
	TTL               time.Duration `yaml:"ttl"`
	StoreTimeout      time.Duration `yaml:"store_timeout"`
	InvalidateTimeout time.Duration `yaml:"invalidate_timeout"`
	CacheEmpty        bool          `yaml:"cache_empty"`
	Coalesce          bool          `yaml:"coalesce"`

	Local    LocalConfig    `yaml:"local"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// LocalConfig configures the in-process store.
type LocalConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string `yaml:"url"`
}

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	URL                string        `yaml:"url"`
	DeleteExpiredItems bool          `yaml:"delete_expired_items"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
}

// DynamoDBConfig configures the DynamoDB store.
type DynamoDBConfig struct {
	Table       string `yaml:"table"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	CreateTable bool   `yaml:"create_table"`
}

// SearchConfig configures the PostgreSQL search executor.
type SearchConfig struct {
	PostgresURL  string `yaml:"postgres_url"`
	EnsureSchema bool   `yaml:"ensure_schema"`

	// Listen subscribes to content change notifications and invalidates the
	// cache on every change.
	Listen bool `yaml:"listen"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Server: ServerConfig{Port: "8080"},
		Cache: CacheConfig{
			Type:              CacheTypeLocal,
			Group:             "relevanssi_search",
			TTL:               24 * time.Hour,
			StoreTimeout:      250 * time.Millisecond,
			InvalidateTimeout: 30 * time.Second,
			Local:             LocalConfig{MaxEntries: 10_000},
			Postgres:          PostgresConfig{CleanupInterval: 10 * time.Minute},
			DynamoDB:          DynamoDBConfig{Table: "search_cache"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Endpoint: "/metrics"},
	}
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	// Load .env file (optional, won't fail if not found)
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal([]byte(expandString(string(data))), &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the selected store has what it needs.
func (c *Config) Validate() error {
	switch c.Cache.Type {
	case CacheTypeLocal:
	case CacheTypeRedis:
		if c.Cache.Redis.URL == "" {
			return errors.New("cache.redis.url is required for redis cache")
		}
	case CacheTypePostgres:
		if c.Cache.Postgres.URL == "" {
			return errors.New("cache.postgres.url is required for postgres cache")
		}
	case CacheTypeDynamoDB:
		if c.Cache.DynamoDB.Table == "" {
			return errors.New("cache.dynamodb.table is required for dynamodb cache")
		}
	default:
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}

	if c.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}

	if c.Search.Listen && c.Search.PostgresURL == "" {
		return errors.New("search.listen requires search.postgres_url")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}

	return nil
}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} with environment values.
// Unset variables without a default expand to the empty string.
func expandString(s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholderPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(parts[1]); ok && v != "" {
			return v
		}
		return parts[2]
	})
}

func applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	var errs []error
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &cfg.Server.Port)
	str("ADMIN_TOKEN", &cfg.Server.AdminToken)

	str("CACHE_TYPE", &cfg.Cache.Type)
	str("SEARCH_CACHE_GROUP", &cfg.Cache.Group)
	duration("SEARCH_CACHE_TTL", &cfg.Cache.TTL)
	duration("SEARCH_CACHE_STORE_TIMEOUT", &cfg.Cache.StoreTimeout)
	duration("SEARCH_CACHE_INVALIDATE_TIMEOUT", &cfg.Cache.InvalidateTimeout)
	boolean("SEARCH_CACHE_EMPTY", &cfg.Cache.CacheEmpty)
	boolean("SEARCH_CACHE_COALESCE", &cfg.Cache.Coalesce)
	integer("LOCAL_CACHE_MAX_ENTRIES", &cfg.Cache.Local.MaxEntries)
	str("REDIS_URL", &cfg.Cache.Redis.URL)
	str("POSTGRES_URL", &cfg.Cache.Postgres.URL)
	boolean("POSTGRES_DELETE_EXPIRED", &cfg.Cache.Postgres.DeleteExpiredItems)
	str("DYNAMODB_TABLE", &cfg.Cache.DynamoDB.Table)
	str("DYNAMODB_REGION", &cfg.Cache.DynamoDB.Region)
	str("DYNAMODB_ENDPOINT", &cfg.Cache.DynamoDB.Endpoint)

	str("SEARCH_POSTGRES_URL", &cfg.Search.PostgresURL)
	boolean("SEARCH_LISTEN", &cfg.Search.Listen)
	boolean("SEARCH_ENSURE_SCHEMA", &cfg.Search.EnsureSchema)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("24h") and bare seconds ("86400").
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
