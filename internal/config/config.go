package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Database DatabaseConfig          `yaml:"database"`
	Log      LogConfig               `yaml:"log"`
	Brokers  map[string]BrokerConfig `yaml:"brokers"`
	Metrics  MetricsConfig           `yaml:"metrics"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// BrokerConfig holds per-broker base URL, dispatch timeout, and the fallback
// credentials used when no owner-specific credentials exist. The fallback
// path exists for development and testing and is logged as such.
type BrokerConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	APIKey         string `yaml:"api_key,omitempty"`
	SecretKey      string `yaml:"secret_key,omitempty"`
	AccountID      string `yaml:"account_id,omitempty"`
	Passphrase     string `yaml:"passphrase,omitempty"`
}

// Timeout returns the dispatch timeout for the broker, defaulting to 30s for
// cloud brokerages. Local-machine connectors configure a shorter value.
func (b BrokerConfig) Timeout() time.Duration {
	if b.TimeoutSeconds > 0 {
		return time.Duration(b.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

// MetricsConfig represents the rolling metrics window configuration
type MetricsConfig struct {
	WindowSize int `yaml:"window_size"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, filename string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "tradewire.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.WindowSize == 0 {
		c.Metrics.WindowSize = 100
	}
}

// Broker returns the configuration for a broker identifier, zero value when
// the broker has no config section.
func (c *Config) Broker(name string) BrokerConfig {
	if c.Brokers == nil {
		return BrokerConfig{}
	}
	return c.Brokers[name]
}
