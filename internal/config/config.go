// Package config loads wren settings from defaults, an optional YAML file
// and WREN_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	HTTP          HTTPConfig         `yaml:"http"`
	Store         StoreConfig        `yaml:"store"`
	Redis         RedisConfig        `yaml:"redis"`
	Feed          FeedConfig         `yaml:"feed"`
	Conversations ConversationConfig `yaml:"conversations"`
	AI            AIConfig           `yaml:"ai"`
	Log           LogConfig          `yaml:"log"`
	MaxInputSize  int                `yaml:"max_input_size" env:"WREN_MAX_INPUT_SIZE"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" env:"WREN_HTTP_ADDR"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" env:"WREN_STORE_DRIVER"`
	Path   string `yaml:"path" env:"WREN_STORE_PATH"`
}

// RedisConfig enables the cross-replica adapters when Addr is set.
type RedisConfig struct {
	Addr    string        `yaml:"addr" env:"WREN_REDIS_ADDR"`
	Prefix  string        `yaml:"prefix" env:"WREN_REDIS_PREFIX"`
	Lock    bool          `yaml:"lock" env:"WREN_REDIS_LOCK"`
	LockTTL time.Duration `yaml:"lock_ttl" env:"WREN_REDIS_LOCK_TTL"`
	Notify  bool          `yaml:"notify" env:"WREN_REDIS_NOTIFY"`
}

type FeedConfig struct {
	Interval    time.Duration `yaml:"interval" env:"WREN_FEED_INTERVAL"`
	RecentLimit int           `yaml:"recent_limit" env:"WREN_RECENT_LOG_LIMIT"`
}

// ConversationConfig controls the per-participant AI history.
// EncryptionKey and FallbackKeys are base64-encoded 32-byte keys.
type ConversationConfig struct {
	Store         string   `yaml:"store" env:"WREN_CONVERSATIONS_STORE"`
	History       int      `yaml:"history" env:"WREN_CONVERSATIONS_HISTORY"`
	Buffer        int      `yaml:"buffer" env:"WREN_CONVERSATIONS_BUFFER"`
	EncryptionKey string   `yaml:"encryption_key" env:"WREN_CONVERSATIONS_KEY"`
	FallbackKeys  []string `yaml:"fallback_keys" env:"WREN_CONVERSATIONS_FALLBACK_KEYS" envSeparator:","`
	Redact        []string `yaml:"redact" env:"WREN_CONVERSATIONS_REDACT" envSeparator:";"`
}

// AIConfig selects the completion bridge. Without an API key the simulated
// narrator is used.
type AIConfig struct {
	APIKey      string        `yaml:"api_key" env:"WREN_AI_API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"WREN_AI_BASE_URL"`
	Model       string        `yaml:"model" env:"WREN_AI_MODEL"`
	MaxTokens   int64         `yaml:"max_tokens" env:"WREN_AI_MAX_TOKENS"`
	Temperature float64       `yaml:"temperature" env:"WREN_AI_TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" env:"WREN_AI_TIMEOUT"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"WREN_LOG_LEVEL"`
	Format string `yaml:"format" env:"WREN_LOG_FORMAT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP:  HTTPConfig{Addr: ":8080"},
		Store: StoreConfig{Driver: DriverMemory, Path: "wren.db"},
		Redis: RedisConfig{Prefix: "wren", LockTTL: 30 * time.Second},
		Feed:  FeedConfig{Interval: 2 * time.Second, RecentLimit: 20},
		Conversations: ConversationConfig{
			Store:   DriverMemory,
			History: 5,
			Buffer:  20,
		},
		AI: AIConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   500,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		},
		Log:          LogConfig{Level: "info", Format: "text"},
		MaxInputSize: 4096,
	}
}

// Load builds the configuration. An empty path skips the file.
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
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside the engine.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.Store.Driver)
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		return fmt.Errorf("%w: sqlite store needs a path", ErrInvalid)
	}
	switch c.Conversations.Store {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("%w: unknown conversation store %q", ErrInvalid, c.Conversations.Store)
	}
	if c.Conversations.Store == DriverRedis && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis conversation store needs redis.addr", ErrInvalid)
	}
	if (c.Redis.Lock || c.Redis.Notify) && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis lock and notify need redis.addr", ErrInvalid)
	}
	if c.Feed.Interval <= 0 {
		return fmt.Errorf("%w: feed interval must be positive", ErrInvalid)
	}
	if c.MaxInputSize <= 0 {
		return fmt.Errorf("%w: max input size must be positive", ErrInvalid)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log format must be text or json", ErrInvalid)
	}
	return nil
}
