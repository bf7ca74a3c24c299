// Package config loads the server configuration: defaults, then an optional
// YAML file, then TURNSTILE_* environment variables.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aretw0/turnstile/internal/logging"
	"github.com/aretw0/turnstile/pkg/persistence/middleware"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "TURNSTILE_"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

// Config is the full server configuration.
type Config struct {
	Addr        string `yaml:"addr" env:"ADDR"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat   string `yaml:"log_format" env:"LOG_FORMAT"`

	Store  StoreConfig  `yaml:"store" envPrefix:"STORE_"`
	Notify NotifyConfig `yaml:"notify" envPrefix:"NOTIFY_"`
	Audit  AuditConfig  `yaml:"audit" envPrefix:"AUDIT_"`
}

// StoreConfig selects and addresses the storage backend.
type StoreConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`

	// DSN is a file path or ":memory:" for sqlite, a connection URL for
	// postgres and a directory for file.
	DSN string `yaml:"dsn" env:"DSN"`

	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

// NotifyConfig tunes the notification dispatcher.
type NotifyConfig struct {
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Concurrency int           `yaml:"concurrency" env:"CONCURRENCY"`

	// SendersFile lists commands that deliver channels instead of the log sender.
	SendersFile string `yaml:"senders_file" env:"SENDERS_FILE"`
}

// AuditConfig controls what audit metadata is stored.
type AuditConfig struct {
	// RedactKeys are regular expressions matched against metadata keys.
	RedactKeys []string `yaml:"redact_keys" env:"REDACT_KEYS" envSeparator:","`

	// EncryptionKey is a base64 AES-256 key; empty disables sealing.
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Store: StoreConfig{
			Driver:      DriverMemory,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "turnstile:",
		},
		Notify: NotifyConfig{
			Timeout:     5 * time.Second,
			Concurrency: 8,
		},
	}
}

// Load reads path (if not empty) over the defaults, then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory, DriverRedis:
	case DriverSQLite, DriverPostgres, DriverFile:
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.Notify.Concurrency < 1 {
		errs = append(errs, errors.New("notify.concurrency must be at least 1"))
	}
	if c.Notify.Timeout <= 0 {
		errs = append(errs, errors.New("notify.timeout must be positive"))
	}
	if _, err := middleware.CompilePatterns(c.Audit.RedactKeys); err != nil {
		errs = append(errs, fmt.Errorf("audit.redact_keys: %w", err))
	}
	if c.Audit.EncryptionKey != "" {
		if _, err := c.Audit.Key(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Key decodes EncryptionKey; nil when sealing is off.
func (a AuditConfig) Key() ([]byte, error) {
	if a.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(a.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("audit.encryption_key is not base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("audit.encryption_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
