package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage types
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config is the complete server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Chat     ChatConfig     `yaml:"chat"`
	Presence PresenceConfig `yaml:"presence"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ServerConfig configures the HTTP listener and websocket transport
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ChatConfig configures the global channel
type ChatConfig struct {
	Cooldown          time.Duration `yaml:"cooldown"`
	HistoryLimit      int           `yaml:"history_limit"`
	NotifyRateLimited bool          `yaml:"notify_rate_limited"`
}

// PresenceConfig configures idle detection
type PresenceConfig struct {
	IdleAfter     time.Duration `yaml:"idle_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// AuthConfig configures credential hashing
type AuthConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// StorageConfig selects the account and token backend
type StorageConfig struct {
	Type      string        `yaml:"type"`
	RedisURL  string        `yaml:"redis_url"`
	KeyPrefix string        `yaml:"key_prefix"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			AllowedOrigins:  []string{"http://localhost:8080"},
			MaxMessageSize:  4096,
			ShutdownTimeout: 30 * time.Second,
		},
		Chat: ChatConfig{
			Cooldown: 3000 * time.Millisecond,
		},
		Presence: PresenceConfig{
			IdleAfter:     5 * time.Minute,
			SweepInterval: 15 * time.Second,
		},
		Auth: AuthConfig{
			BcryptCost: 10,
		},
		Storage: StorageConfig{
			Type:      StorageMemory,
			KeyPrefix: "globalchat",
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 -- path comes from the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		data = []byte(expandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	ApplyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// ApplyEnv overrides cfg with any recognised environment variables.
// Unparseable values are ignored.
func ApplyEnv(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = parsePort(port, cfg.Server.Port)
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = parseList(origins)
	}
	if size := os.Getenv("MAX_MESSAGE_SIZE"); size != "" {
		cfg.Server.MaxMessageSize = int64(parsePositiveInt(size, int(cfg.Server.MaxMessageSize)))
	}
	if typ := os.Getenv("STORAGE_TYPE"); typ != "" {
		cfg.Storage.Type = strings.ToLower(strings.TrimSpace(typ))
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Storage.RedisURL = url
	}
	if cooldown := os.Getenv("CHAT_COOLDOWN"); cooldown != "" {
		cfg.Chat.Cooldown = parseDuration(cooldown, cfg.Chat.Cooldown)
	}
	if limit := os.Getenv("CHAT_HISTORY_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(limit)); err == nil && n >= 0 {
			cfg.Chat.HistoryLimit = n
		}
	}
	if idle := os.Getenv("PRESENCE_IDLE_AFTER"); idle != "" {
		cfg.Presence.IdleAfter = parseDuration(idle, cfg.Presence.IdleAfter)
	}
	if sweep := os.Getenv("PRESENCE_SWEEP_INTERVAL"); sweep != "" {
		cfg.Presence.SweepInterval = parseDuration(sweep, cfg.Presence.SweepInterval)
	}
}

// applyDefaults fills zero or invalid values left by the file
func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = d.Server.Port
	}
	if cfg.Server.MaxMessageSize <= 0 {
		cfg.Server.MaxMessageSize = d.Server.MaxMessageSize
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if cfg.Chat.Cooldown <= 0 {
		cfg.Chat.Cooldown = d.Chat.Cooldown
	}
	if cfg.Chat.HistoryLimit < 0 {
		cfg.Chat.HistoryLimit = 0
	}
	if cfg.Presence.IdleAfter <= 0 {
		cfg.Presence.IdleAfter = d.Presence.IdleAfter
	}
	if cfg.Presence.SweepInterval <= 0 {
		cfg.Presence.SweepInterval = d.Presence.SweepInterval
	}
	if cfg.Auth.BcryptCost <= 0 {
		cfg.Auth.BcryptCost = d.Auth.BcryptCost
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = d.Storage.Type
	}
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = d.Storage.KeyPrefix
	}
}

// Validate reports configurations that cannot be served
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Type {
	case StorageMemory:
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("storage.redis_url is required when storage.type is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be %q or %q, got %q", StorageMemory, StorageRedis, c.Storage.Type))
	}

	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost))
	}
	if len(c.Server.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("server.allowed_origins must not be empty"))
	}

	return errors.Join(errs...)
}

func parsePort(s string, fallback int) int {
	s = strings.TrimPrefix(strings.TrimSpace(s), ":")
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return fallback
	}
	return port
}

func parseList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parsePositiveInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// parseDuration accepts Go duration strings or a bare number of milliseconds
func parseDuration(s string, fallback time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if ms, err := strconv.Atoi(s); err == nil {
		if ms <= 0 {
			return fallback
		}
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
