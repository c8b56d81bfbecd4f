package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COURIER"

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
	overrides  map[string]bool
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		overrides: make(map[string]bool),
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Viper's Unmarshal doesn't merge env vars into nested structs when a
	// config file is present.
	l.applyEnvOverrides(cfg)

	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// expandPaths expands ~ in all path-related config fields.
func expandPaths(cfg *Config) {
	cfg.Global.DataDir = expandTilde(cfg.Global.DataDir)
	cfg.Global.ConfigDir = expandTilde(cfg.Global.ConfigDir)
	cfg.Database.Path = expandTilde(cfg.Database.Path)
	cfg.Logging.File = expandTilde(cfg.Logging.File)
	cfg.Keys.PublicKeyPath = expandTilde(cfg.Keys.PublicKeyPath)
	cfg.Keys.PrivateKeyPath = expandTilde(cfg.Keys.PrivateKeyPath)
}

// setupViper configures Viper with defaults and environment bindings.
func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "courier"))
	}
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "courier"))
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	l.setDefaults(cfg)
	bindEnvVars(v)
	v.AutomaticEnv()
}

// setDefaults sets all default values in Viper.
func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	// Global
	v.SetDefault("global.data_dir", cfg.Global.DataDir)
	v.SetDefault("global.config_dir", cfg.Global.ConfigDir)

	// Database
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("database.max_connections", cfg.Database.MaxConnections)
	v.SetDefault("database.busy_timeout_ms", cfg.Database.BusyTimeoutMs)

	// Logging
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	// Identity
	v.SetDefault("identity.id", cfg.Identity.ID)
	v.SetDefault("identity.username", cfg.Identity.Username)

	// Keys
	v.SetDefault("keys.public_key_path", cfg.Keys.PublicKeyPath)
	v.SetDefault("keys.private_key_path", cfg.Keys.PrivateKeyPath)
	v.SetDefault("keys.public_key", cfg.Keys.PublicKey)
	v.SetDefault("keys.private_key", cfg.Keys.PrivateKey)

	// Transport
	v.SetDefault("transport.max_document_bytes", cfg.Transport.MaxDocumentBytes)
	v.SetDefault("transport.nats_url", cfg.Transport.NATSURL)
	v.SetDefault("transport.subject_prefix", cfg.Transport.SubjectPrefix)

	// Inbox
	v.SetDefault("inbox.default_filter", cfg.Inbox.DefaultFilter)
	v.SetDefault("inbox.sync_timeout", cfg.Inbox.SyncTimeout)

	// Chat
	v.SetDefault("chat.timezone", cfg.Chat.Timezone)

	// TUI
	v.SetDefault("tui.show_timestamps", cfg.TUI.ShowTimestamps)
	v.SetDefault("tui.show_status", cfg.TUI.ShowStatus)
}

// loadConfigFile attempts to load the configuration file.
func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}

	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Set sets a Viper value by key. Values set here win over every other
// source, which is how CLI flags are applied.
func (l *Loader) Set(key string, value any) {
	l.overrides[key] = true
	l.v.Set(key, value)
}

// AllSettings returns the merged settings map.
func (l *Loader) AllSettings() map[string]any {
	return l.v.AllSettings()
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	return NewLoader().Load()
}

// envBindings lists every key that accepts a COURIER_* override.
var envBindings = []string{
	"global.data_dir",
	"global.config_dir",
	"database.driver",
	"database.path",
	"database.max_connections",
	"database.busy_timeout_ms",
	"logging.level",
	"logging.format",
	"logging.file",
	"logging.enable_caller",
	"identity.id",
	"identity.username",
	"keys.public_key_path",
	"keys.private_key_path",
	"keys.public_key",
	"keys.private_key",
	"transport.max_document_bytes",
	"transport.nats_url",
	"transport.subject_prefix",
	"inbox.default_filter",
	"inbox.sync_timeout",
	"chat.timezone",
	"tui.show_timestamps",
	"tui.show_status",
}

// EnvVar returns the environment variable for a config key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// bindEnvVars binds environment variables for config keys.
// Viper's Unmarshal has issues with env vars on nested structs unless explicitly bound.
func bindEnvVars(v *viper.Viper) {
	for _, key := range envBindings {
		_ = v.BindEnv(key, EnvVar(key))
	}
}

// applyEnvOverrides copies explicitly set env vars onto cfg.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	v := l.v
	fromEnv := func(key string) bool {
		if l.overrides[key] {
			return false
		}
		_, ok := os.LookupEnv(EnvVar(key))
		return ok
	}
	str := func(key string, dst *string) {
		if fromEnv(key) {
			*dst = v.GetString(key)
		}
	}

	str("global.data_dir", &cfg.Global.DataDir)
	str("global.config_dir", &cfg.Global.ConfigDir)
	str("database.driver", &cfg.Database.Driver)
	str("database.path", &cfg.Database.Path)
	str("logging.level", &cfg.Logging.Level)
	str("logging.format", &cfg.Logging.Format)
	str("logging.file", &cfg.Logging.File)
	str("identity.id", &cfg.Identity.ID)
	str("identity.username", &cfg.Identity.Username)
	str("keys.public_key", &cfg.Keys.PublicKey)
	str("keys.private_key", &cfg.Keys.PrivateKey)
	str("transport.nats_url", &cfg.Transport.NATSURL)
	str("chat.timezone", &cfg.Chat.Timezone)

	if fromEnv("transport.max_document_bytes") {
		cfg.Transport.MaxDocumentBytes = v.GetInt("transport.max_document_bytes")
	}
}
