package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/seb7887/lazarus/cfgmng"
)

// Config is the lazarus admin tool configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig selects the store. Driver is "cockroach" or "memory".
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	// Retries is how many times a transaction runs while it hits
	// serialization conflicts.
	Retries int `mapstructure:"retries"`
}

// RedisConfig enables the dependency graph cache.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	GraphTTL time.Duration `mapstructure:"graph_ttl"`
}

type EngineConfig struct {
	BatchSize int  `mapstructure:"batch_size"` // 0 restores everything in one transaction
	Workers   int  `mapstructure:"workers"`    // concurrent restores for --all
	Ancestors bool `mapstructure:"ancestors"`  // follow deleted parents transitively
}

// EventsConfig selects where deleted/restored events go: "none", "inmem" or "nats".
type EventsConfig struct {
	Driver        string `mapstructure:"driver"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig pushes operation metrics to a Prometheus push gateway when
// PushGateway is set.
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Namespace   string `mapstructure:"namespace"`
	PushGateway string `mapstructure:"push_gateway"`
	Job         string `mapstructure:"job"`
}

var defaults = map[string]any{
	"database.driver":       "cockroach",
	"database.dsn":          "postgresql://root@localhost:26257/lazarus?sslmode=disable",
	"database.max_conns":    4,
	"database.retries":      3,
	"redis.enabled":         false,
	"redis.addr":            "localhost:6379",
	"redis.password":        "",
	"redis.db":              0,
	"redis.graph_ttl":       "1h",
	"engine.batch_size":     0,
	"engine.workers":        1,
	"engine.ancestors":      false,
	"events.driver":         "none",
	"events.url":            "nats://localhost:4222",
	"events.subject_prefix": "lazarus",
	"logging.level":         "info",
	"logging.format":        "text",
	"metrics.enabled":       false,
	"metrics.namespace":     "lazarus",
	"metrics.push_gateway":  "",
	"metrics.job":           "lazarus",
}

// LoadConfig reads lazarus.yaml from the working directory, or file when
// set, with LAZARUS_* environment overrides.
func LoadConfig(file string) (*Config, error) {
	return cfgmng.LoadConfig[Config](".", "lazarus",
		cfgmng.WithDefaults(defaults),
		cfgmng.WithEnvPrefix("LAZARUS"),
		cfgmng.WithConfigFile(file),
	)
}

func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	if c.Engine.BatchSize < 0 {
		return errors.New("engine.batch_size must not be negative")
	}
	if c.Engine.Workers < 1 {
		return errors.New("engine.workers must be at least 1")
	}
	switch c.Events.Driver {
	case "none", "inmem":
	case "nats":
		if c.Events.URL == "" {
			return errors.New("events.url is required for the nats driver")
		}
	default:
		return fmt.Errorf("events.driver %q is not one of none, inmem, nats", c.Events.Driver)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "memory":
		return nil
	case "cockroach":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required")
		}
		if c.Database.MaxConns < 1 {
			return errors.New("database.max_conns must be at least 1")
		}
		if c.Database.Retries < 1 {
			return errors.New("database.retries must be at least 1")
		}
		return nil
	default:
		return fmt.Errorf("database.driver %q is not one of cockroach, memory", c.Database.Driver)
	}
}

// setupLogger builds the process logger. Logs go to w (stderr) so stdout
// only carries command output.
func setupLogger(conf LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(conf.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(conf.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
