// Package config loads service configuration from a YAML file with ROI_*
// environment variable overrides. Secrets always come from the environment
// (optionally a .env file), never from the YAML file checked into deploys.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "5s" parse directly.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	MetricsAddr     string   `yaml:"metrics_addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type PostgresConfig struct {
	DSN           string `yaml:"dsn"`
	Enabled       bool   `yaml:"enabled"`
	MigrationsDir string `yaml:"migrations_dir"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type OKXConfig struct {
	BaseURL    string `yaml:"base_url"`
	Key        string `yaml:"-"`
	Secret     string `yaml:"-"`
	Passphrase string `yaml:"-"`
}

type BinanceConfig struct {
	BaseURL string `yaml:"base_url"`
	Key     string `yaml:"-"`
	Secret  string `yaml:"-"`
}

type SessionConfig struct {
	DefaultPolicy string `yaml:"default_policy"`
	Currency      string `yaml:"currency"`
}

type Config struct {
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	NATS     NATSConfig     `yaml:"nats"`
	OKX      OKXConfig      `yaml:"okx"`
	Binance  BinanceConfig  `yaml:"binance"`
	Session  SessionConfig  `yaml:"session"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsAddr:     ":9100",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			MigrationsDir: "migrations",
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		OKX: OKXConfig{
			BaseURL: "https://www.okx.com",
		},
		Binance: BinanceConfig{
			BaseURL: "https://fapi.binance.com",
		},
		Session: SessionConfig{
			DefaultPolicy: "hwm",
			Currency:      "USDT",
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty), merges it on
// top of the defaults, applies ROI_* environment overrides, and returns the
// final Config. A .env file is loaded first if present.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	switch c.Session.DefaultPolicy {
	case "hwm", "netflow", "simple":
	default:
		return fmt.Errorf("invalid session.default_policy %q", c.Session.DefaultPolicy)
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres enabled but no DSN configured")
	}
	return nil
}

// Redacted returns a loggable summary with secrets masked.
func (c Config) Redacted() string {
	return fmt.Sprintf(
		"Config{addr=%s, metrics=%s, postgres=%t, nats=%t, okx_key=%s, binance_key=%s, policy=%s}",
		c.Server.Addr, c.Server.MetricsAddr,
		c.Postgres.Enabled, c.NATS.Enabled,
		redact(c.OKX.Key), redact(c.Binance.Key),
		c.Session.DefaultPolicy,
	)
}

func redact(s string) string {
	if s == "" {
		return "unset"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "ROI_LOG_LEVEL")

	setStr(&cfg.Server.Addr, "ROI_SERVER_ADDR")
	setStr(&cfg.Server.MetricsAddr, "ROI_SERVER_METRICS_ADDR")

	setStr(&cfg.Postgres.DSN, "ROI_POSTGRES_DSN")
	setBool(&cfg.Postgres.Enabled, "ROI_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.MigrationsDir, "ROI_POSTGRES_MIGRATIONS_DIR")

	setStr(&cfg.NATS.URL, "ROI_NATS_URL")
	setBool(&cfg.NATS.Enabled, "ROI_NATS_ENABLED")

	setStr(&cfg.OKX.BaseURL, "ROI_OKX_BASE_URL")
	setStr(&cfg.OKX.Key, "ROI_OKX_API_KEY")
	setStr(&cfg.OKX.Secret, "ROI_OKX_API_SECRET")
	setStr(&cfg.OKX.Passphrase, "ROI_OKX_API_PASSPHRASE")

	setStr(&cfg.Binance.BaseURL, "ROI_BINANCE_BASE_URL")
	setStr(&cfg.Binance.Key, "ROI_BINANCE_API_KEY")
	setStr(&cfg.Binance.Secret, "ROI_BINANCE_API_SECRET")

	setStr(&cfg.Session.DefaultPolicy, "ROI_SESSION_DEFAULT_POLICY")
	setStr(&cfg.Session.Currency, "ROI_SESSION_CURRENCY")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
