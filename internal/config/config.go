package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          int    `yaml:"port"`
	Token         string `yaml:"token"`
	CampsRoot     string `yaml:"camps_root"`
	DatabasePath  string `yaml:"database_path"`
	ProvidersPath string `yaml:"providers_path"`
	PrintToken    bool   `yaml:"-"`

	path string
}

func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "basecamp")
	dataDir := filepath.Join(homeDir, ".local", "share", "basecamp")

	cfg := &Config{
		Port:          8765,
		CampsRoot:     filepath.Join(dataDir, "camps"),
		DatabasePath:  filepath.Join(dataDir, "basecamp.db"),
		ProvidersPath: filepath.Join(configDir, "providers.yaml"),
		path:          filepath.Join(configDir, "config.yaml"),
	}

	if err := cfg.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	flag.IntVar(&cfg.Port, "port", cfg.Port, "server port (1-65535)")
	flag.StringVar(&cfg.Token, "token", cfg.Token, "authentication token (auto-generated if empty)")
	flag.StringVar(&cfg.CampsRoot, "camps-root", cfg.CampsRoot, "directory holding camp folders")
	flag.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "path to the sqlite database")
	flag.StringVar(&cfg.ProvidersPath, "providers", cfg.ProvidersPath, "path to the provider settings file")
	flag.BoolVar(&cfg.PrintToken, "print-token", false, "print token to stdout (for local debugging)")
	flag.Parse()

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.Port)
	}
	if cfg.CampsRoot == "" {
		return nil, fmt.Errorf("camps root directory is required")
	}

	if cfg.Token == "" {
		token, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		cfg.Token = token
		if err := cfg.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.CampsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create camps root %q: %w", cfg.CampsRoot, err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid config file %q: %w", c.path, err)
	}
	return nil
}

func (c *Config) saveToFile() error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(c.path, data, 0o600)
}

func generateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
