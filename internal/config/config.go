package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blackroad/metricboard/pkg/dashboard"
	"github.com/blackroad/metricboard/pkg/storage"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Dashboards DashboardsConfig `yaml:"dashboards"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr string   `yaml:"listen_addr"`
	Timeout    Duration `yaml:"timeout"`
}

// Duration decodes from "30s" style YAML strings
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// StorageConfig holds point store configuration
type StorageConfig struct {
	Path       string `yaml:"path"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// DashboardsConfig holds dashboard registry configuration
type DashboardsConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			Timeout:    Duration(30 * time.Second),
		},
		Storage: StorageConfig{
			Path:       "./data",
			SyncWrites: true,
		},
		Dashboards: DashboardsConfig{
			Path: "./data/dashboards.db",
		},
	}
}

// Load reads a YAML config file over the defaults, then applies
// environment variable overrides on top. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides file values with environment variables. Env wins
// over the file, which wins over the defaults.
func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("SYNC_WRITES"); v != "" {
		c.Storage.SyncWrites = v == "true" || v == "1"
	}
	if v := os.Getenv("DASHBOARDS_PATH"); v != "" {
		c.Dashboards.Path = v
	}
}

// ToStorageConfig converts to storage.Config
func (c *Config) ToStorageConfig() *storage.Config {
	return &storage.Config{
		Path:       c.Storage.Path,
		SyncWrites: c.Storage.SyncWrites,
	}
}

// ToRegistryConfig converts to dashboard.RegistryConfig
func (c *Config) ToRegistryConfig() dashboard.RegistryConfig {
	cfg := dashboard.DefaultRegistryConfig()
	cfg.Path = c.Dashboards.Path
	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if c.Dashboards.Path == "" {
		return fmt.Errorf("dashboards path is required")
	}
	return nil
}
