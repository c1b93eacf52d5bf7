package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
)

// ClientConfig holds configuration for the terminal chat client.
type ClientConfig struct {
	GatewayURL string `toml:"gateway_url" env:"CHAT_GATEWAY_URL"`
	TokenFile  string `toml:"token_file" env:"CHAT_TOKEN_FILE"`
	Token      string `toml:"-" env:"CHAT_TOKEN"`
	LogFile    string `toml:"log_file" env:"CHAT_LOG_FILE"`
	LogLevel   string `toml:"log_level" env:"CHAT_LOG_LEVEL"`
}

// DefaultClientConfigPath returns ~/.config/chatbot/config.toml.
func DefaultClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(dir, "chatbot", "config.toml")
}

// LoadClient reads the client config file at path (missing is fine), then
// applies environment overrides and defaults.
func LoadClient(path string) (*ClientConfig, error) {
	LoadEnvFiles()

	cfg := &ClientConfig{}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read client config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(DefaultClientConfigPath()))
	return cfg, nil
}

func (c *ClientConfig) applyDefaults(dir string) {
	if c.GatewayURL == "" {
		c.GatewayURL = "http://localhost:8080"
	}
	if c.TokenFile == "" {
		c.TokenFile = filepath.Join(dir, "token")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(dir, "chat.log")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
