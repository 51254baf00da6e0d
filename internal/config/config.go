// Package config loads agent configuration from the environment, with
// an optional YAML file layered underneath.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/mcpagent/config.yaml,
// /etc/mcpagent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mcpagent", "config.yaml"))
	}

	paths = append(paths, "/etc/mcpagent/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise the first existing path from DefaultSearchPaths wins.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all agent configuration.
type Config struct {
	LLM      LLMConfig `yaml:"llm"`
	MCP      MCPConfig `yaml:"mcp"`
	Debug    bool      `yaml:"debug"`
	LogLevel string    `yaml:"log_level"`
}

// LLMConfig defines the completion provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, anthropic
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// MCPConfig defines the MCP server connection.
type MCPConfig struct {
	BaseURL           string  `yaml:"base_url"`
	TimeoutSec        float64 `yaml:"timeout_sec"`
	ReconnectDelaySec float64 `yaml:"reconnect_delay_sec"`
	MaxReconnects     int     `yaml:"max_reconnects"`
}

// Timeout returns the per-call timeout as a duration.
func (c MCPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec * float64(time.Second))
}

// ReconnectDelay returns the base stream reconnect delay as a duration.
func (c MCPConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySec * float64(time.Second))
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		MCP: MCPConfig{
			BaseURL:           "http://localhost:8081",
			TimeoutSec:        60,
			ReconnectDelaySec: 1,
			MaxReconnects:     5,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from a YAML file on top of the defaults.
// Environment variable references in the file (${VAR}) are expanded
// before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv builds a config from the environment on top of the defaults.
// The variables and their defaults match the agent's documented set:
// LLM_PROVIDER, OPENAI_API_KEY/OPENAI_MODEL/OPENAI_BASE_URL,
// ANTHROPIC_API_KEY/ANTHROPIC_MODEL/ANTHROPIC_BASE_URL,
// LLM_TEMPERATURE, LLM_MAX_TOKENS, MCP_BASE_URL, MCP_TIMEOUT,
// MCP_RECONNECT_DELAY, DEBUG, LOG_LEVEL.
func FromEnv() *Config {
	cfg := Default()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overlays environment variables onto the config. Unset
// variables leave the existing values alone, so a YAML-loaded config
// can still be overridden from the environment.
func (c *Config) ApplyEnv() {
	setString(&c.LLM.Provider, "LLM_PROVIDER")

	switch c.LLM.Provider {
	case "anthropic":
		setString(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
		setString(&c.LLM.Model, "ANTHROPIC_MODEL")
		setString(&c.LLM.BaseURL, "ANTHROPIC_BASE_URL")
	default:
		setString(&c.LLM.APIKey, "OPENAI_API_KEY")
		setString(&c.LLM.Model, "OPENAI_MODEL")
		setString(&c.LLM.BaseURL, "OPENAI_BASE_URL")
	}

	setFloat(&c.LLM.Temperature, "LLM_TEMPERATURE")
	setInt(&c.LLM.MaxTokens, "LLM_MAX_TOKENS")

	setString(&c.MCP.BaseURL, "MCP_BASE_URL")
	setFloat(&c.MCP.TimeoutSec, "MCP_TIMEOUT")
	setFloat(&c.MCP.ReconnectDelaySec, "MCP_RECONNECT_DELAY")
	setInt(&c.MCP.MaxReconnects, "MCP_MAX_RECONNECTS")

	setBool(&c.Debug, "DEBUG")
	setString(&c.LogLevel, "LOG_LEVEL")

	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.Model = "claude-3-sonnet-20240229"
		default:
			c.LLM.Model = "gpt-4"
		}
	}
}

// Validate checks the fields a chat session needs. Commands that never
// touch the LLM skip it.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported provider %q (valid: openai, anthropic)", c.LLM.Provider)
	}

	if c.LLM.APIKey == "" {
		envVar := "OPENAI_API_KEY"
		if c.LLM.Provider == "anthropic" {
			envVar = "ANTHROPIC_API_KEY"
		}
		return fmt.Errorf("missing API key for %s: set %s", c.LLM.Provider, envVar)
	}

	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v == "true" || v == "1"
	}
}
