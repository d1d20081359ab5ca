package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	appName             = "dork-runner"
	envAPIKey           = "GOOGLE_API_KEY"
	envCSEID            = "GOOGLE_CSE_ID"
	defaultConfigName   = "config.json"
	defaultCredsName    = "creds.json"
	defaultDatabaseName = "dork-runner.db"
)

// Config represents the configuration file structure
type Config struct {
	APIKey            string  `json:"api_key"`
	CSEID             string  `json:"cse_id"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	DailyQuota        int     `json:"daily_quota"`
	SafeSearch        bool    `json:"safe_search"`
	Proxy             string  `json:"proxy"`
	Database          string  `json:"database"`
	ReturnPartial     bool    `json:"return_partial"`
	APIURL            string  `json:"api_url"`
}

// defaultConfig returns the built-in settings
func defaultConfig() *Config {
	return &Config{
		RequestsPerSecond: DefaultRequestsPerSecond,
		DailyQuota:        DefaultDailyQuota,
		APIURL:            DefaultAPIURL,
	}
}

// configDir returns the per-user configuration directory
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// loadConfigFromFile loads configuration from a local file on top of the defaults
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	config := defaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration with fallback priority:
// 1. Local file (explicit path, or the default location)
// 2. Built-in defaults
// Environment variables then override credentials from either source.
func LoadConfig(configPath string) *Config {
	explicit := configPath != ""
	if !explicit {
		if dir, err := configDir(); err == nil {
			configPath = filepath.Join(dir, defaultConfigName)
		}
	}

	var config *Config
	if configPath != "" {
		slog.Debug("Loading config from local file", "path", configPath)
		c, err := loadConfigFromFile(configPath)
		switch {
		case err == nil:
			slog.Info("Successfully loaded config from local file", "path", configPath)
			config = c
		case !explicit && errors.Is(err, os.ErrNotExist):
			slog.Debug("No config file found, using defaults", "path", configPath)
		default:
			slog.Warn("Failed to load local config, using defaults", "path", configPath, "error", err)
		}
	}

	if config == nil {
		config = defaultConfig()
	}

	applyEnv(config)
	return config
}

// applyEnv overrides credentials with environment variables when set
func applyEnv(config *Config) {
	if v := strings.TrimSpace(os.Getenv(envAPIKey)); v != "" {
		slog.Debug("Using API key from environment", "var", envAPIKey)
		config.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envCSEID)); v != "" {
		slog.Debug("Using CSE ID from environment", "var", envCSEID)
		config.CSEID = v
	}
}

// Credentials returns the credential pair held by the config
func (c *Config) Credentials() Credentials {
	return Credentials{APIKey: c.APIKey, CSEID: c.CSEID}
}

// databasePath resolves where the history database lives
func (c *Config) databasePath() (string, error) {
	if c.Database != "" {
		return c.Database, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultDatabaseName), nil
}
