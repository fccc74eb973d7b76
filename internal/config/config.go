// Package config provides configuration loading and validation for the
// application: defaults, an optional YAML file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default configuration constants.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultMongoDBTimeout = 10 * time.Second

	DefaultRedisPoolSize = 10

	DefaultMaxHistorySize        = 1000
	DefaultSnapshotThreshold     = 100
	DefaultMaxEventsPerAggregate = 10000
	DefaultProjectionInterval    = 5 * time.Second
)

// Event store drivers.
const (
	StoreDriverMemory  = "memory"
	StoreDriverMongoDB = "mongodb"
)

// Config holds the complete application configuration.
type Config struct {
	App         AppConfig         `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	MongoDB     MongoDBConfig     `yaml:"mongodb"`
	Redis       RedisConfig       `yaml:"redis"`
	EventBus    EventBusConfig    `yaml:"eventbus"`
	EventStore  EventStoreConfig  `yaml:"eventstore"`
	Projections ProjectionsConfig `yaml:"projections"`
	Auth        AuthConfig        `yaml:"auth"`
	Log         LogConfig         `yaml:"log"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name        string `yaml:"name"        env:"APP_NAME"`
	Environment string `yaml:"environment" env:"APP_ENV"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// Address returns the host:port listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MongoDBConfig holds MongoDB connection configuration.
type MongoDBConfig struct {
	URI      string        `yaml:"uri"      env:"MONGODB_URI"`
	Database string        `yaml:"database" env:"MONGODB_DATABASE"`
	Timeout  time.Duration `yaml:"timeout"  env:"MONGODB_TIMEOUT"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `yaml:"addr"      env:"REDIS_ADDR"`
	Password string `yaml:"password"  env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"        env:"REDIS_DB"`
	PoolSize int    `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
}

// EventBusConfig holds event bus configuration.
type EventBusConfig struct {
	MaxHistorySize int    `yaml:"max_history_size" env:"EVENTBUS_MAX_HISTORY_SIZE"`
	ChannelPrefix  string `yaml:"channel_prefix"   env:"EVENTBUS_CHANNEL_PREFIX"`
	RelayEnabled   bool   `yaml:"relay_enabled"    env:"EVENTBUS_RELAY_ENABLED"`
}

// EventStoreConfig holds event store configuration.
type EventStoreConfig struct {
	Driver                string `yaml:"driver"                   env:"EVENTSTORE_DRIVER"`
	SnapshotThreshold     int    `yaml:"snapshot_threshold"       env:"EVENTSTORE_SNAPSHOT_THRESHOLD"`
	MaxEventsPerAggregate int    `yaml:"max_events_per_aggregate" env:"EVENTSTORE_MAX_EVENTS_PER_AGGREGATE"`
}

// ProjectionsConfig holds projection worker configuration.
type ProjectionsConfig struct {
	SyncInterval time.Duration `yaml:"sync_interval" env:"PROJECTIONS_SYNC_INTERVAL"`
}

// AuthConfig holds JWT verification configuration. When JWKSURL is set,
// keys come from the JWKS endpoint; otherwise Secret is used as an HMAC
// key. Disabled auth skips verification entirely.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"  env:"AUTH_ENABLED"`
	JWKSURL string `yaml:"jwks_url" env:"AUTH_JWKS_URL"`
	Secret  string `yaml:"secret"   env:"AUTH_SECRET"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Load builds the configuration from defaults, the optional YAML file at
// CONFIG_PATH (or config.yaml) and environment overrides, then validates
// it.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	if data, err := os.ReadFile(path); err == nil {
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	switch c.EventStore.Driver {
	case StoreDriverMemory, StoreDriverMongoDB:
	default:
		return fmt.Errorf("unknown event store driver %q", c.EventStore.Driver)
	}

	if c.EventStore.Driver == StoreDriverMongoDB && c.MongoDB.URI == "" {
		return errors.New("mongodb driver requires mongodb.uri")
	}

	if c.EventBus.RelayEnabled && c.Redis.Addr == "" {
		return errors.New("event bus relay requires redis.addr")
	}

	if c.Auth.Enabled && c.Auth.JWKSURL == "" && c.Auth.Secret == "" {
		return errors.New("auth requires either jwks_url or secret")
	}

	return nil
}

// IsProduction reports whether the app runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:        "eventra",
			Environment: "development",
		},
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		MongoDB: MongoDBConfig{
			Database: "eventra",
			Timeout:  DefaultMongoDBTimeout,
		},
		Redis: RedisConfig{
			PoolSize: DefaultRedisPoolSize,
		},
		EventBus: EventBusConfig{
			MaxHistorySize: DefaultMaxHistorySize,
			ChannelPrefix:  "events:",
		},
		EventStore: EventStoreConfig{
			Driver:                StoreDriverMemory,
			SnapshotThreshold:     DefaultSnapshotThreshold,
			MaxEventsPerAggregate: DefaultMaxEventsPerAggregate,
		},
		Projections: ProjectionsConfig{
			SyncInterval: DefaultProjectionInterval,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
