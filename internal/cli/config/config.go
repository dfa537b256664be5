// Package config loads searchy.yaml with environment overrides
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/conduit-lang/searchy/internal/orm/backend/sqlbackend"
)

// Config is the searchy configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Document DocumentConfig `mapstructure:"document"`
	Server   ServerConfig   `mapstructure:"server"`
	Search   SearchConfig   `mapstructure:"search"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQL backend
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DocumentConfig configures the document backend
type DocumentConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	// Profiling mounts pprof under /debug/pprof
	Profiling bool `mapstructure:"profiling"`
}

// SearchConfig configures compilation
type SearchConfig struct {
	// Backend is "sql" or "document"
	Backend     string   `mapstructure:"backend"`
	StrictJoins bool     `mapstructure:"strict_joins"`
	FetchAll    bool     `mapstructure:"fetch_all"`
	ArrayIn     bool     `mapstructure:"array_in"`
	Locale      string   `mapstructure:"locale"`
	Timezone    string   `mapstructure:"timezone"`
	Layouts     []string `mapstructure:"layouts"`
}

// RedisConfig configures rate limiting. An empty URL disables it.
type RedisConfig struct {
	URL    string        `mapstructure:"url"`
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// CacheConfig configures the search result cache. A zero TTL disables it.
type CacheConfig struct {
	// Store is "memory" or "redis"; redis uses redis.url
	Store string        `mapstructure:"store"`
	TTL   time.Duration `mapstructure:"ttl"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Address returns host:port
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration with precedence env > file > defaults. An
// explicit path must exist; otherwise searchy.yaml or searchy.yml in the
// working directory is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SEARCHY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("searchy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("document.uri", "")
	v.SetDefault("document.database", "searchy")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.profiling", false)

	v.SetDefault("search.backend", "sql")
	v.SetDefault("search.strict_joins", false)
	v.SetDefault("search.fetch_all", false)
	v.SetDefault("search.array_in", false)
	v.SetDefault("search.locale", "en-US")
	v.SetDefault("search.timezone", "UTC")
	v.SetDefault("search.layouts", []string{})

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.limit", 60)
	v.SetDefault("redis.window", time.Minute)

	v.SetDefault("cache.store", "memory")
	v.SetDefault("cache.ttl", time.Duration(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	switch cfg.Search.Backend {
	case "sql":
		if _, err := sqlbackend.ParseDialect(cfg.Database.Driver); err != nil {
			return fmt.Errorf("database.driver: %w", err)
		}
	case "document":
	default:
		return fmt.Errorf("search.backend must be sql or document, got: %s", cfg.Search.Backend)
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if _, err := language.Parse(cfg.Search.Locale); err != nil {
		return fmt.Errorf("search.locale: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Search.Timezone); err != nil {
		return fmt.Errorf("search.timezone: %w", err)
	}
	if cfg.Redis.URL != "" && (cfg.Redis.Limit <= 0 || cfg.Redis.Window <= 0) {
		return errors.New("redis.limit and redis.window must be positive when redis.url is set")
	}
	switch cfg.Cache.Store {
	case "memory":
	case "redis":
		if cfg.Cache.TTL > 0 && cfg.Redis.URL == "" {
			return errors.New("cache.store redis requires redis.url")
		}
	default:
		return fmt.Errorf("cache.store must be memory or redis, got: %s", cfg.Cache.Store)
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative: %s", cfg.Cache.TTL)
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got: %s", cfg.Log.Format)
	}
	return nil
}
