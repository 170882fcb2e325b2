// Package config handles Wanderdesk configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for Wanderdesk.
type Config struct {
	// API settings for the REST collaborator endpoints.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Socket settings for the push channel.
	Socket SocketConfig `yaml:"socket" mapstructure:"socket"`

	// Agency identifies the tenant this client operates for.
	Agency AgencyConfig `yaml:"agency" mapstructure:"agency"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Cache settings for the cold-start snapshot.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`
}

// APIConfig contains REST client settings.
type APIConfig struct {
	// BaseURL is the messaging API root, e.g. https://api.example.com/v1.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Token is the bearer token for API and socket auth.
	Token string `yaml:"token" mapstructure:"token"`

	// Timeout bounds individual REST calls.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SocketConfig contains push channel settings.
type SocketConfig struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string `yaml:"url" mapstructure:"url"`

	// ReconnectInterval is the pause between reconnect attempts.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" mapstructure:"reconnect_interval"`
}

// AgencyConfig identifies the operating agency and user.
type AgencyConfig struct {
	// ID is the agency identifier scoping all API calls.
	ID string `yaml:"id" mapstructure:"id"`

	// SelfID is the sender id stamped on locally composed messages.
	SelfID string `yaml:"self_id" mapstructure:"self_id"`

	// HistoryLimit is the message history page size.
	HistoryLimit int `yaml:"history_limit" mapstructure:"history_limit"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`
}

// CacheConfig contains snapshot cache settings.
type CacheConfig struct {
	// Path is the SQLite snapshot file. Empty disables the cache.
	Path string `yaml:"path" mapstructure:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		API: APIConfig{
			Timeout: 10 * time.Second,
		},
		Socket: SocketConfig{
			ReconnectInterval: 2 * time.Second,
		},
		Agency: AgencyConfig{
			HistoryLimit: 50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Cache: CacheConfig{
			Path: filepath.Join(homeDir, ".local", "share", "wanderdesk", "snapshot.db"),
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if strings.TrimSpace(c.Agency.ID) == "" {
		return fmt.Errorf("agency.id is required")
	}
	if c.Agency.HistoryLimit < 1 {
		return fmt.Errorf("agency.history_limit must be at least 1")
	}
	if c.API.Timeout < 100*time.Millisecond {
		return fmt.Errorf("api.timeout must be at least 100ms")
	}
	if c.Socket.ReconnectInterval < 100*time.Millisecond {
		return fmt.Errorf("socket.reconnect_interval must be at least 100ms")
	}
	return nil
}
