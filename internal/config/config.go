package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.tello/config.toml.
type Config struct {
	DefaultAccount string `toml:"default_account"`

	// RemoteEnabled toggles publishing to the shared append-only log.
	// When false the engine runs local-only and sends confirm immediately.
	RemoteEnabled bool `toml:"remote_enabled"`

	// Zero values fall back to the engine defaults.
	MessagePageSize      int `toml:"message_page_size"`
	ConversationPageSize int `toml:"conversation_page_size"`
	RateLimitPerMinute   int `toml:"rate_limit_per_minute"`
	PublishRetries       int `toml:"publish_retries"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
