// Package config loads the process configuration: defaults, then an optional
// YAML file, then COUPONS_-prefixed environment variables.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gartstein/coupons/internal/coupons/db"
	e "github.com/gartstein/coupons/internal/coupons/errors"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "COUPONS_"

// Config holds all application configuration
type Config struct {
	App      AppConfig      `yaml:"app" env:",prefix=APP_"`
	Database DatabaseConfig `yaml:"database" env:",prefix=DB_"`
	Pool     PoolConfig     `yaml:"pool" env:",prefix=POOL_"`
	Sweeper  SweeperConfig  `yaml:"sweeper" env:",prefix=SWEEPER_"`
	Admin    AdminConfig    `yaml:"admin" env:",prefix=ADMIN_"`
	Auth     AuthConfig     `yaml:"auth" env:",prefix=AUTH_"`
	Kafka    KafkaConfig    `yaml:"kafka" env:",prefix=KAFKA_"`
	Metrics  MetricsConfig  `yaml:"metrics" env:",prefix=METRICS_"`
}

type AppConfig struct {
	Debug bool `yaml:"debug" env:"DEBUG,overwrite"`
}

// DatabaseConfig selects the storage driver. Path is used by sqlite, the
// remaining fields by postgres.
type DatabaseConfig struct {
	Driver         string `yaml:"driver" env:"DRIVER,overwrite"`
	Host           string `yaml:"host" env:"HOST,overwrite"`
	Port           int    `yaml:"port" env:"PORT,overwrite"`
	User           string `yaml:"user" env:"USER,overwrite"`
	Password       string `yaml:"password" env:"PASSWORD,overwrite"`
	Name           string `yaml:"name" env:"NAME,overwrite"`
	SSLMode        string `yaml:"sslmode" env:"SSL_MODE,overwrite"`
	Path           string `yaml:"path" env:"PATH,overwrite"`
	ConnectRetries uint64 `yaml:"connect_retries" env:"CONNECT_RETRIES,overwrite"`
}

type PoolConfig struct {
	Size int `yaml:"size" env:"SIZE,overwrite"`
}

type SweeperConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED,overwrite"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL,overwrite"`
}

type AdminConfig struct {
	Email    string `yaml:"email" env:"EMAIL,overwrite"`
	Password string `yaml:"password" env:"PASSWORD,overwrite"`
}

// AuthConfig enables session tokens when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET,overwrite"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL,overwrite"`
}

// KafkaConfig enables event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"BROKERS,overwrite"`
	Topic   string   `yaml:"topic" env:"TOPIC,overwrite"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR,overwrite"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:         db.DriverSQLite,
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Name:           "coupons",
			SSLMode:        "disable",
			Path:           "coupons.db",
			ConnectRetries: 5,
		},
		Pool:    PoolConfig{Size: 20},
		Sweeper: SweeperConfig{Enabled: true, Interval: 24 * time.Hour},
		Admin:   AdminConfig{Email: "admin@admin.com", Password: "admin"},
		Auth:    AuthConfig{TokenTTL: 24 * time.Hour},
		Kafka:   KafkaConfig{Topic: "coupons"},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Load reads path (skipped when empty) over the defaults, applies the
// environment and validates the result.
func Load(ctx context.Context, path string) (*Config, error) {
	return load(ctx, path, envconfig.OsLookuper())
}

func load(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, lookuper),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case db.DriverSQLite, db.DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown database driver %q", e.ErrInvalidInput, c.Database.Driver)
	}
	if c.Pool.Size < 1 {
		return fmt.Errorf("%w: pool size must be positive", e.ErrInvalidInput)
	}
	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("%w: sweeper interval must be positive", e.ErrInvalidInput)
	}
	if c.Admin.Email == "" || c.Admin.Password == "" {
		return fmt.Errorf("%w: admin credentials are required", e.ErrInvalidInput)
	}
	if c.Auth.JWTSecret != "" && c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("%w: token ttl must be positive", e.ErrInvalidInput)
	}
	return nil
}

// DB returns the storage settings in the form the repository expects.
func (c *Config) DB() *db.Config {
	return &db.Config{
		Driver:   c.Database.Driver,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		DBName:   c.Database.Name,
		SSLMode:  c.Database.SSLMode,
		Path:     c.Database.Path,
		PoolSize: c.Pool.Size,
	}
}
