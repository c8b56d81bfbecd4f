// Package config handles courier configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/tOgg1/courier/internal/models"
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the root configuration structure for courier.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Identity is the local user.
	Identity IdentityConfig `yaml:"identity" mapstructure:"identity"`

	// Keys locates the message keypair.
	Keys KeysConfig `yaml:"keys" mapstructure:"keys"`

	// Transport settings
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`

	// Inbox settings
	Inbox InboxConfig `yaml:"inbox" mapstructure:"inbox"`

	// Chat settings
	Chat ChatConfig `yaml:"chat" mapstructure:"chat"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global courier settings.
type GlobalConfig struct {
	// DataDir is where courier stores its data (default: ~/.local/share/courier).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/courier).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains document store settings.
type DatabaseConfig struct {
	// Driver selects the store (sqlite, memory).
	Driver string `yaml:"driver" mapstructure:"driver"`

	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeout is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (auto, json, console). Auto picks console
	// on a terminal.
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// IdentityConfig names the local user.
type IdentityConfig struct {
	ID       string `yaml:"id" mapstructure:"id"`
	Username string `yaml:"username" mapstructure:"username"`
}

// KeysConfig locates the RSA keypair. Inline material wins over paths.
type KeysConfig struct {
	PublicKeyPath  string `yaml:"public_key_path" mapstructure:"public_key_path"`
	PrivateKeyPath string `yaml:"private_key_path" mapstructure:"private_key_path"`

	// PublicKey and PrivateKey hold PEM or base64 DER material.
	PublicKey  string `yaml:"public_key" mapstructure:"public_key"`
	PrivateKey string `yaml:"private_key" mapstructure:"private_key"`
}

// TransportConfig contains relay and size limit settings.
type TransportConfig struct {
	// MaxDocumentBytes caps a stored message.
	MaxDocumentBytes int `yaml:"max_document_bytes" mapstructure:"max_document_bytes"`

	// NATSURL enables the change relay when set.
	NATSURL string `yaml:"nats_url" mapstructure:"nats_url"`

	// SubjectPrefix roots relay subjects.
	SubjectPrefix string `yaml:"subject_prefix" mapstructure:"subject_prefix"`
}

// InboxConfig contains inbox settings.
type InboxConfig struct {
	// DefaultFilter is the filter applied at startup (all, favorites).
	DefaultFilter string `yaml:"default_filter" mapstructure:"default_filter"`

	// SyncTimeout bounds how long one-shot commands wait for the inbox.
	SyncTimeout time.Duration `yaml:"sync_timeout" mapstructure:"sync_timeout"`
}

// ChatConfig contains conversation view settings.
type ChatConfig struct {
	// Timezone renders date headers and message times (IANA name or "Local").
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// ShowTimestamps shows message times in the conversation pane.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`

	// ShowStatus shows Sent/Delivered/Seen under outgoing messages.
	ShowStatus bool `yaml:"show_status" mapstructure:"show_status"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".config", "courier")

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "courier"),
			ConfigDir: configDir,
		},
		Database: DatabaseConfig{
			Driver:         DriverSQLite,
			Path:           "", // Will be set to DataDir/courier.db
			MaxConnections: 4,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "auto",
			EnableCaller: false,
		},
		Keys: KeysConfig{
			PublicKeyPath:  filepath.Join(configDir, "keys", "public.pem"),
			PrivateKeyPath: filepath.Join(configDir, "keys", "private.pem"),
		},
		Transport: TransportConfig{
			MaxDocumentBytes: 1_000_000,
			SubjectPrefix:    "courier",
		},
		Inbox: InboxConfig{
			DefaultFilter: "all",
			SyncTimeout:   10 * time.Second,
		},
		Chat: ChatConfig{
			Timezone: "Local",
		},
		TUI: TUIConfig{
			ShowTimestamps: true,
			ShowStatus:     true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !slices.Contains([]string{DriverSQLite, DriverMemory}, c.Database.Driver) {
		return fmt.Errorf("database.driver must be one of sqlite, memory")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be at least 1")
	}
	if !slices.Contains([]string{"auto", "console", "json"}, c.Logging.Format) {
		return fmt.Errorf("logging.format must be one of auto, console, json")
	}
	if c.Identity.ID != "" {
		if err := models.ValidateIdentity(c.Identity.ID); err != nil {
			return fmt.Errorf("identity.id: %w", err)
		}
	}
	if c.Transport.MaxDocumentBytes < 1024 {
		return fmt.Errorf("transport.max_document_bytes must be at least 1024")
	}
	if !slices.Contains([]string{"all", "favorites"}, c.Inbox.DefaultFilter) {
		return fmt.Errorf("inbox.default_filter must be one of all, favorites")
	}
	if c.Inbox.SyncTimeout < 100*time.Millisecond {
		return fmt.Errorf("inbox.sync_timeout must be at least 100ms")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("chat.timezone: %w", err)
	}
	if (c.Keys.PublicKey == "") != (c.Keys.PrivateKey == "") {
		return fmt.Errorf("keys.public_key and keys.private_key must be set together")
	}
	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "courier.db")
}

// Location resolves chat.timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Chat.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Chat.Timezone)
	}
}

// InlineKeys reports whether key material is configured inline.
func (c *Config) InlineKeys() bool {
	return c.Keys.PublicKey != "" && c.Keys.PrivateKey != ""
}
