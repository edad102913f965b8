// Package config loads service configuration: built-in defaults, then an
// optional TOML file named by CONFIG_FILE, then environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Events  EventsConfig  `toml:"events"`
	Limits  LimitsConfig  `toml:"limits"`
}

type ServerConfig struct {
	Port           string   `toml:"port"`
	LogLevel       string   `toml:"log_level"`
	CORSOrigins    []string `toml:"cors_origins"`
	AdminToken     string   `toml:"admin_token"`
	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
}

type StorageConfig struct {
	DatabaseURL string   `toml:"database_url"`
	RedisURL    string   `toml:"redis_url"`
	CacheTTL    Duration `toml:"cache_ttl"`
}

type EventsConfig struct {
	Stream       string `toml:"stream"`
	StreamMaxLen int64  `toml:"stream_maxlen"`
}

// LimitsConfig caps a user's share balance. Zero disables a cap.
type LimitsConfig struct {
	MaxPerOutcome uint64 `toml:"max_per_outcome"`
	MaxPerMarket  uint64 `toml:"max_per_market"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			LogLevel:       "info",
			CORSOrigins:    []string{"*"},
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Storage: StorageConfig{
			CacheTTL: Duration{30 * time.Second},
		},
		Events: EventsConfig{
			Stream:       "outcome-engine:events",
			StreamMaxLen: 100_000,
		},
	}
}

// Load builds the configuration from defaults, the file named by
// CONFIG_FILE (if set) and the environment.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.LogLevel = getEnv("LOG_LEVEL", c.Server.LogLevel)
	c.Server.AdminToken = getEnv("ADMIN_TOKEN", c.Server.AdminToken)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	c.Storage.DatabaseURL = getEnv("DATABASE_URL", c.Storage.DatabaseURL)
	c.Storage.RedisURL = getEnv("REDIS_URL", c.Storage.RedisURL)
	c.Events.Stream = getEnv("EVENT_STREAM", c.Events.Stream)

	var err error
	if c.Server.RateLimitRPS, err = getEnvFloat("RATE_LIMIT_RPS", c.Server.RateLimitRPS); err != nil {
		return err
	}
	if c.Server.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", c.Server.RateLimitBurst); err != nil {
		return err
	}
	if c.Storage.CacheTTL.Duration, err = getEnvDuration("CACHE_TTL", c.Storage.CacheTTL.Duration); err != nil {
		return err
	}
	if c.Events.StreamMaxLen, err = getEnvInt64("EVENT_STREAM_MAXLEN", c.Events.StreamMaxLen); err != nil {
		return err
	}
	if c.Limits.MaxPerOutcome, err = getEnvUint("MAX_PER_OUTCOME", c.Limits.MaxPerOutcome); err != nil {
		return err
	}
	if c.Limits.MaxPerMarket, err = getEnvUint("MAX_PER_MARKET", c.Limits.MaxPerMarket); err != nil {
		return err
	}
	return nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if _, err := strconv.ParseUint(c.Server.Port, 10, 16); err != nil {
		return fmt.Errorf("config: invalid port %q", c.Server.Port)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst == 0 {
		return fmt.Errorf("config: rate_limit_burst must be positive when rate limiting is enabled")
	}
	if c.Storage.CacheTTL.Duration <= 0 {
		return fmt.Errorf("config: cache_ttl must be positive")
	}
	if c.Events.StreamMaxLen < 0 {
		return fmt.Errorf("config: stream_maxlen must not be negative")
	}
	if c.Limits.MaxPerOutcome > 0 && c.Limits.MaxPerMarket > 0 && c.Limits.MaxPerMarket < c.Limits.MaxPerOutcome {
		return fmt.Errorf("config: max_per_market %d below max_per_outcome %d",
			c.Limits.MaxPerMarket, c.Limits.MaxPerOutcome)
	}
	return nil
}

// SlogLevel parses the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Server.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", c.Server.LogLevel)
	}
	return l, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return i, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return i, nil
}

func getEnvUint(key string, fallback uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	u, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return u, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
