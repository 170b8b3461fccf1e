// Package config loads the steward configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"steward/internal/permission"
)

// Config is the full configuration tree, loaded from YAML with
// environment variable expansion.
type Config struct {
	Workspace string `yaml:"workspace"`

	Model struct {
		Provider  string `yaml:"provider"`
		Name      string `yaml:"name"`
		APIKey    string `yaml:"api_key"`
		BaseURL   string `yaml:"base_url"`
		MaxTokens int    `yaml:"max_tokens"`
	} `yaml:"model"`

	Agent struct {
		SystemPrompt  string `yaml:"system_prompt"`
		MaxIterations int    `yaml:"max_iterations"`
	} `yaml:"agent"`

	Permissions permission.Config `yaml:"permissions"`

	Storage struct {
		RulesPath    string `yaml:"rules_path"`
		SessionsPath string `yaml:"sessions_path"`
	} `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Metrics struct {
		// Addr is the listen address for the Prometheus scrape endpoint.
		// Empty disables the listener.
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.Workspace = "."
	cfg.Model.Provider = "anthropic"
	cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.Model.MaxTokens = 8192
	cfg.Agent.MaxIterations = 25
	cfg.Permissions = *permission.DefaultConfig()
	cfg.Storage.RulesPath = expandHome("~/.steward/rules.json")
	cfg.Storage.SessionsPath = expandHome("~/.steward/sessions.db")
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

// DefaultPath is where Load looks when no explicit path is given.
func DefaultPath() string {
	return expandHome("~/.steward/config.yaml")
}

// Load reads the config file at path, expanding ${VAR} references before
// parsing. A missing file yields the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Storage.RulesPath = expandHome(cfg.Storage.RulesPath)
	cfg.Storage.SessionsPath = expandHome(cfg.Storage.SessionsPath)
	return cfg, nil
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
