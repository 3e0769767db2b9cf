// Package config loads the confab YAML configuration: provider credentials,
// the active provider/model selection, and the MCP tool server set.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AnthropicConfig represents configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"` // Anthropic API key
	Model  string `yaml:"model,omitempty"`   // Default model name
}

// OpenAIConfig represents configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // OpenAI API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`        // Default model name
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// DeepSeekConfig represents configuration for the DeepSeek provider.
type DeepSeekConfig struct {
	APIKey string `yaml:"api_key,omitempty"` // DeepSeek API key
	Model  string `yaml:"model,omitempty"`   // Default model name
}

// OllamaConfig represents configuration for the Ollama provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`  // Ollama host (default: "http://localhost:11434")
	Model string `yaml:"model,omitempty"` // Default model name
}

// MCPServerConfig represents configuration for one MCP tool server.
type MCPServerConfig struct {
	Name    string   `yaml:"name,omitempty"`
	Command string   `yaml:"command,omitempty"` // For STDIO transport
	URL     string   `yaml:"url,omitempty"`     // For HTTP transport
	Args    []string `yaml:"args,omitempty"`    // Additional args for STDIO command
	Env     []string `yaml:"env,omitempty"`     // Environment variables for STDIO
}

// ChatConfig represents conversation settings.
type ChatConfig struct {
	ResponseLength string `yaml:"response_length,omitempty"` // concise, balanced, or detailed
}

// Config is the root confab configuration.
type Config struct {
	// Active provider selection
	Provider string `yaml:"provider,omitempty"` // anthropic, openai, deepseek, or ollama
	Model    string `yaml:"model,omitempty"`    // overrides the provider's default model

	// Provider configurations
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`
	DeepSeek  DeepSeekConfig  `yaml:"deepseek,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`

	// Tool servers
	MCPServers map[string]*MCPServerConfig `yaml:"mcp_servers,omitempty"`

	Chat ChatConfig `yaml:"chat,omitempty"`
}

// GetConfigPath returns the default config file path.
// Can be overridden via CONFAB_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("CONFAB_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.confab/config.yaml"
	}
	return filepath.Join(homeDir, ".confab", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Save writes the configuration to the specified path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads the configuration from path, merged onto defaults. A missing
// file returns the defaults rather than an error; API keys still come from
// the environment in that case.
func Load(path string) (*Config, error) {
	defaults := Config{
		Provider: "anthropic",
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		DeepSeek: DeepSeekConfig{
			Model: "deepseek-chat",
		},
		Ollama: OllamaConfig{
			Host:  "http://localhost:11434",
			Model: "llama3.2:3b",
		},
		MCPServers: make(map[string]*MCPServerConfig),
		Chat: ChatConfig{
			ResponseLength: "balanced",
		},
	}

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err != nil {
		return &defaults, nil
	}

	configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	}

	var loaded Config
	if err := yaml.Unmarshal(configYAML, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := mergo.Merge(&defaults, loaded, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	if defaults.MCPServers == nil {
		defaults.MCPServers = make(map[string]*MCPServerConfig)
	}
	for id, serverCfg := range defaults.MCPServers {
		if serverCfg.Name == "" {
			serverCfg.Name = id
		}
	}

	return &defaults, nil
}
