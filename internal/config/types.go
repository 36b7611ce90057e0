package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	Enabled           bool           `yaml:"enabled" mapstructure:"enabled"`
	Debug             bool           `yaml:"debug" mapstructure:"debug"`
	PlaceholderPrefix string         `yaml:"placeholder_prefix" mapstructure:"placeholder_prefix"`
	Session           SessionConfig  `yaml:"session" mapstructure:"session"`
	Patterns          map[string]any `yaml:"patterns" mapstructure:"patterns"`

	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream" mapstructure:"upstream"`
	Sessions  RegistryConfig  `yaml:"sessions" mapstructure:"sessions"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Stats     StatsConfig     `yaml:"stats" mapstructure:"stats"`

	// LoadedFrom is the config file that was read, empty when none was found
	LoadedFrom string `yaml:"-" mapstructure:"-"`

	viper *viper.Viper
}

// SessionConfig controls placeholder sessions. TTL is kept as written so
// day units ("7d") are accepted; use TTLDuration to read it.
type SessionConfig struct {
	TTL         string `yaml:"ttl" mapstructure:"ttl"`
	MaxMappings int    `yaml:"max_mappings" mapstructure:"max_mappings"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// UpstreamConfig contains upstream LLM provider configuration
type UpstreamConfig struct {
	OpenAI    string        `yaml:"openai" mapstructure:"openai"`
	Anthropic string        `yaml:"anthropic" mapstructure:"anthropic"`
	Ollama    string        `yaml:"ollama" mapstructure:"ollama"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RegistryConfig bounds the process-wide session cache
type RegistryConfig struct {
	MaxSessions int           `yaml:"max_sessions" mapstructure:"max_sessions"`
	TTL         time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains live event feed configuration
type WebSocketConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Events   struct {
		BroadcastRedactions  bool `yaml:"broadcast_redactions" mapstructure:"broadcast_redactions"`
		BroadcastRequests    bool `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
		BroadcastSystem      bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// RateLimitConfig contains per-client request limits
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// StatsConfig contains the redaction counter store configuration
type StatsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	RedisURL  string `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

const (
	defaultPrefix      = "__VG_"
	defaultTTL         = time.Hour
	defaultMaxMappings = 100000
)

// GetDefaults returns a configuration with sensible defaults. Redaction is
// off until a config file turns it on.
func GetDefaults() *Config {
	cfg := &Config{
		Enabled:           false,
		PlaceholderPrefix: defaultPrefix,
		Session: SessionConfig{
			TTL:         "1h",
			MaxMappings: defaultMaxMappings,
		},
		Patterns: map[string]any{},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 10 << 20,
		},
		Upstream: UpstreamConfig{
			OpenAI:    "https://api.openai.com",
			Anthropic: "https://api.anthropic.com",
			Ollama:    "http://localhost:11434",
			Timeout:   120 * time.Second,
		},
		Sessions: RegistryConfig{
			MaxSessions: 1024,
			TTL:         24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled: false,
			Path:    "/ws",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 600,
			Burst:             50,
		},
		Stats: StatsConfig{
			Enabled:   false,
			RedisURL:  "redis://localhost:6379/0",
			KeyPrefix: "vibeguard:",
		},
	}
	cfg.Logging.File.Path = "logs/vibeguard.log"
	cfg.WebSocket.Events.BroadcastRedactions = true
	cfg.WebSocket.Events.BroadcastRequests = true
	cfg.WebSocket.Events.BroadcastSystem = true
	cfg.WebSocket.Events.BroadcastConnections = true
	return cfg
}

// TTLDuration parses Session.TTL, falling back to one hour when it is empty
// or malformed. "0s" disables expiry.
func (s SessionConfig) TTLDuration() time.Duration {
	return ParseDuration(s.TTL, defaultTTL)
}

// MappingLimit returns Session.MaxMappings, replacing non-positive values
// with the default.
func (s SessionConfig) MappingLimit() int {
	if s.MaxMappings <= 0 {
		return defaultMaxMappings
	}
	return s.MaxMappings
}

// Prefix returns the placeholder prefix, never empty
func (c *Config) Prefix() string {
	if c.PlaceholderPrefix == "" {
		return defaultPrefix
	}
	return c.PlaceholderPrefix
}

// LogLevel returns the effective log level; debug mode forces "debug"
func (c *Config) LogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.Logging.Level
}
