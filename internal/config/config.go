// Package config loads docmap settings from docmap.yaml and DOCMAP_ environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/internal/logging"
	"github.com/conduit-lang/docmap/internal/mapping/codec"
	"github.com/conduit-lang/docmap/internal/mapping/schema"
	"github.com/conduit-lang/docmap/internal/store"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the docmap configuration
type Config struct {
	Mapping MappingConfig `mapstructure:"mapping"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
}

// MappingConfig holds the global mapping policy flags
type MappingConfig struct {
	StoreNulls       bool   `mapstructure:"store_nulls"`
	StoreEmpties     bool   `mapstructure:"store_empties"`
	IgnoreFinals     bool   `mapstructure:"ignore_finals"`
	MapUnmarked      bool   `mapstructure:"map_unmarked"`
	DiscriminatorKey string `mapstructure:"discriminator_key"`
}

// StoreConfig selects and configures the document store
type StoreConfig struct {
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
	SQL    SQLConfig   `mapstructure:"sql"`
}

// RedisConfig represents Redis store configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SQLConfig represents SQL store configuration. DriverName picks the database/sql
// driver: "pgx" or "postgres" for PostgreSQL, "sqlite3" for SQLite.
type SQLConfig struct {
	DriverName string `mapstructure:"driver_name"`
	DSN        string `mapstructure:"dsn"`
	Table      string `mapstructure:"table"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads the configuration from path, or from docmap.yml / docmap.yaml in the
// working directory when path is empty
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("mapping.store_nulls", false)
	v.SetDefault("mapping.store_empties", false)
	v.SetDefault("mapping.ignore_finals", false)
	v.SetDefault("mapping.map_unmarked", true)
	v.SetDefault("mapping.discriminator_key", codec.DefaultDiscriminatorKey)
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "docmap:")
	v.SetDefault("store.sql.driver_name", "")
	v.SetDefault("store.sql.dsn", "")
	v.SetDefault("store.sql.table", "documents")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("docmap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DOCMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
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

// SchemaOptions returns the discovery options
func (c *Config) SchemaOptions() schema.Options {
	return schema.Options{
		MapUnmarked:  c.Mapping.MapUnmarked,
		IgnoreFinals: c.Mapping.IgnoreFinals,
	}
}

// CodecOptions returns the encoding options
func (c *Config) CodecOptions() codec.Options {
	return codec.Options{
		StoreNulls:       c.Mapping.StoreNulls,
		StoreEmpties:     c.Mapping.StoreEmpties,
		DiscriminatorKey: c.Mapping.DiscriminatorKey,
	}
}

// NewMapper builds a type registry and mapper that follow the mapping settings. st
// resolves references and may be nil.
func (c *Config) NewMapper(st store.Store, logger *zap.Logger, opts ...codec.Option) *codec.Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := schema.NewRegistry(nil, c.SchemaOptions(), logger)
	opts = append([]codec.Option{
		codec.WithOptions(c.CodecOptions()),
		codec.WithLogger(logger),
	}, opts...)
	return codec.New(registry, st, opts...)
}

// RedisOptions returns the Redis store configuration
func (c *Config) RedisOptions() store.RedisConfig {
	return store.RedisConfig{
		Addr:     c.Store.Redis.Addr,
		Password: c.Store.Redis.Password,
		DB:       c.Store.Redis.DB,
		Prefix:   c.Store.Redis.Prefix,
	}
}

// SQLDriverName returns the database/sql driver for the configured store
func (c *Config) SQLDriverName() string {
	if c.Store.SQL.DriverName != "" {
		return c.Store.SQL.DriverName
	}
	if c.Store.Driver == DriverSQLite {
		return "sqlite3"
	}
	return "pgx"
}

// SQLDialect returns the placeholder dialect of the configured store
func (c *Config) SQLDialect() store.Dialect {
	if c.Store.Driver == DriverSQLite {
		return store.DialectSQLite
	}
	return store.DialectPostgres
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Store.Driver {
	case DriverMemory, DriverRedis:
	case DriverPostgres, DriverSQLite:
		if cfg.Store.SQL.DSN == "" {
			return fmt.Errorf("store.sql.dsn is required for driver %s", cfg.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want memory, redis, postgres or sqlite)", cfg.Store.Driver)
	}

	key := cfg.Mapping.DiscriminatorKey
	if key == "" || key == schema.IdentityKey {
		return fmt.Errorf("mapping.discriminator_key must be non-empty and not %s, got: %q", schema.IdentityKey, key)
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}
