// Package config loads and validates the relay configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lanchat/relay/internal/oracle"
)

// Config is the root configuration for the relay.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Oracle   OracleConfig   `yaml:"oracle"`
}

// ServerConfig configures the HTTP/websocket listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig configures the chat log database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OracleConfig configures the reply oracle.
type OracleConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	SystemPrompt   string        `yaml:"system_prompt"`
	ProfileImage   string        `yaml:"profile_image"` // path to the avatar served with oracle frames
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBudgetUSD   float64       `yaml:"max_budget_usd"`
	Cost           oracle.Cost   `yaml:"cost"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML configuration file, expanding ${VAR} references from the
// environment before decoding, then applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.Path == "" {
		c.Database.Path = "chat_log.db"
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = "meta-llama/Llama-4-Maverick-17B-128E-Instruct-FP8"
	}
	if c.Oracle.BaseURL == "" {
		c.Oracle.BaseURL = "https://api.together.xyz/v1"
	}
	if c.Oracle.RequestTimeout <= 0 {
		c.Oracle.RequestTimeout = 60 * time.Second
	}
	if c.Oracle.MaxBudgetUSD == 0 {
		c.Oracle.MaxBudgetUSD = 5.0
	}
	if c.Oracle.Cost.Prompt == 0 {
		c.Oracle.Cost.Prompt = 0.5
	}
	if c.Oracle.Cost.Completion == 0 {
		c.Oracle.Cost.Completion = 1.5
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}
