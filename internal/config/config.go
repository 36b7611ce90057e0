package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvConfigPath names the environment variable that points at a config file
const EnvConfigPath = "VIBEGUARD_CONFIG"

// envKeys are the settings that may be overridden with VIBEGUARD_* variables
var envKeys = []string{
	"enabled",
	"debug",
	"placeholder_prefix",
	"session.ttl",
	"session.max_mappings",
	"server.port",
	"upstream.openai",
	"upstream.anthropic",
	"upstream.ollama",
	"logging.level",
	"logging.format",
	"websocket.enabled",
	"websocket.username",
	"websocket.password",
	"rate_limit.enabled",
	"stats.enabled",
	"stats.redis_url",
}

// Candidates lists the config files searched, in priority order, when no
// explicit path is given.
func Candidates(dir string) []string {
	if dir == "" {
		dir, _ = os.Getwd()
	}

	candidates := make([]string, 0, 4)
	if env := os.Getenv(EnvConfigPath); env != "" {
		if !filepath.IsAbs(env) {
			env = filepath.Join(dir, env)
		}
		candidates = append(candidates, env)
	}

	candidates = append(candidates,
		filepath.Join(dir, "vibeguard.config.json"),
		filepath.Join(dir, ".opencode", "vibeguard.config.json"),
	)

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "opencode", "vibeguard.config.json"))
	}

	return candidates
}

// Load loads configuration from file and environment variables. An explicit
// configPath must be readable; otherwise the first parseable candidate wins,
// and when none exists the defaults (redaction disabled) are used.
func Load(configPath string) (*Config, error) {
	v := newViper()

	loadedFrom := ""
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		loadedFrom = configPath
	} else {
		for _, candidate := range Candidates("") {
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			v.SetConfigFile(candidate)
			if err := v.ReadInConfig(); err != nil {
				// unreadable candidates are skipped, not fatal
				continue
			}
			loadedFrom = candidate
			break
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}
	config.LoadedFrom = loadedFrom
	config.viper = v

	return config, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("VIBEGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	config := GetDefaults()

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the loaded configuration
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Sessions.MaxSessions < 0 {
		return fmt.Errorf("invalid sessions.max_sessions: %d", config.Sessions.MaxSessions)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMinute <= 0 {
		return errors.New("rate_limit.requests_per_minute must be positive when rate limiting is enabled")
	}

	if config.WebSocket.Enabled && !strings.HasPrefix(config.WebSocket.Path, "/") {
		return fmt.Errorf("invalid websocket path: %q", config.WebSocket.Path)
	}

	return nil
}

// Watch starts watching the configuration file for changes. Reloads that
// fail to decode or validate are dropped and the previous config stays live.
func Watch(config *Config, callback func(*Config)) error {
	if config.viper == nil || config.LoadedFrom == "" {
		return errors.New("config was not loaded from a file")
	}

	v := config.viper
	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := decode(v)
		if err != nil {
			return
		}
		newConfig.LoadedFrom = config.LoadedFrom
		newConfig.viper = v
		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
