// Package config loads the TOML settings file from the platform config
// directory and resolves API keys from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/anvilworks/anvil/internal/audit"
	"github.com/anvilworks/anvil/internal/mcp"
	"github.com/anvilworks/anvil/internal/ratelimit"
)

// ModelConfig describes one configured model.
type ModelConfig struct {
	// Provider is one of anthropic, openai, ollama, gateway.
	Provider string `toml:"provider"`

	// APIKey inline in the file; APIKeyEnv names an environment variable
	// that wins over it.
	APIKey    string `toml:"api_key,omitempty"`
	APIKeyEnv string `toml:"api_key_env,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `toml:"base_url,omitempty"`

	// Model is the provider-side model identifier.
	Model string `toml:"model"`

	Temperature float32 `toml:"temperature,omitempty"`
	MaxTokens   int     `toml:"max_tokens,omitempty"`
}

// AgentConfig describes one configured agent persona.
type AgentConfig struct {
	Name         string   `toml:"name"`
	Description  string   `toml:"description,omitempty"`
	SystemPrompt string   `toml:"system_prompt"`
	Model        string   `toml:"model,omitempty"`
	Skills       []string `toml:"skills,omitempty"`
}

// SafetyConfig tunes the safety gate.
type SafetyConfig struct {
	ConfirmFileWrite    bool     `toml:"confirm_file_write"`
	ConfirmShellExecute bool     `toml:"confirm_shell_execute"`
	AllowGlobalAccess   bool     `toml:"allow_global_access"`
	BlockedCommands     []string `toml:"blocked_commands,omitempty"`
	BlockedPaths        []string `toml:"blocked_paths,omitempty"`
}

// Config is the persisted settings schema.
type Config struct {
	Models       map[string]ModelConfig `toml:"models"`
	Agents       map[string]AgentConfig `toml:"agents"`
	DefaultModel string                 `toml:"default_model"`
	DefaultAgent string                 `toml:"default_agent"`
	Safety       SafetyConfig           `toml:"safety"`

	MaxIterations int `toml:"max_iterations,omitempty"`

	Audit     audit.Config                `toml:"audit,omitempty"`
	RateLimit map[string]ratelimit.Config `toml:"rate_limit,omitempty"`

	PluginDirs []string `toml:"plugin_dirs,omitempty"`

	MCPServers []mcp.ServerConfig `toml:"mcp_servers,omitempty"`
}

// MCPServer returns the configured server by name.
func (c *Config) MCPServer(name string) (*mcp.ServerConfig, bool) {
	for i := range c.MCPServers {
		if c.MCPServers[i].Name == name {
			return &c.MCPServers[i], true
		}
	}
	return nil, false
}

// Default returns the baseline configuration used when no file exists.
func Default() *Config {
	return &Config{
		Models: map[string]ModelConfig{
			"claude": {
				Provider:  "anthropic",
				APIKeyEnv: "ANTHROPIC_API_KEY",
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 4096,
			},
			"gpt": {
				Provider:  "openai",
				APIKeyEnv: "OPENAI_API_KEY",
				Model:     "gpt-4o",
				MaxTokens: 4096,
			},
			"local": {
				Provider: "ollama",
				Model:    "llama3.2",
			},
		},
		Agents: map[string]AgentConfig{
			"coder": {
				Name:         "Coder",
				Description:  "General-purpose coding agent",
				SystemPrompt: "You are a careful software engineer working in the user's repository. Use the available tools to inspect and modify code. Prefer small, verifiable steps.",
				Model:        "claude",
			},
		},
		DefaultModel:  "claude",
		DefaultAgent:  "coder",
		MaxIterations: 10,
		Safety: SafetyConfig{
			ConfirmFileWrite:    true,
			ConfirmShellExecute: true,
		},
		Audit: audit.DefaultConfig(),
	}
}

// DefaultPath returns the platform config file location.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "anvil", "config.toml")
}

// DataDir returns the platform data directory for plugins, crew, and
// sessions.
func DataDir() string {
	if dir := os.Getenv("ANVIL_DATA_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserHomeDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, ".local", "share", "anvil")
}

// Load reads the config file, falling back to defaults when it does not
// exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config file, creating parent directories.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// Validate checks referential integrity.
func (c *Config) Validate() error {
	if c.DefaultModel != "" {
		if _, ok := c.Models[c.DefaultModel]; !ok {
			return fmt.Errorf("default_model %q is not defined in [models]", c.DefaultModel)
		}
	}
	if c.DefaultAgent != "" {
		if _, ok := c.Agents[c.DefaultAgent]; !ok {
			return fmt.Errorf("default_agent %q is not defined in [agents]", c.DefaultAgent)
		}
	}
	for name, model := range c.Models {
		switch model.Provider {
		case "anthropic", "openai", "ollama", "gateway":
		default:
			return fmt.Errorf("model %q has unknown provider %q", name, model.Provider)
		}
	}
	for name, agentCfg := range c.Agents {
		if agentCfg.Model != "" {
			if _, ok := c.Models[agentCfg.Model]; !ok {
				return fmt.Errorf("agent %q references unknown model %q", name, agentCfg.Model)
			}
		}
	}
	return nil
}

// Model resolves a model by name, falling back to the default.
func (c *Config) Model(name string) (ModelConfig, error) {
	if name == "" {
		name = c.DefaultModel
	}
	model, ok := c.Models[name]
	if !ok {
		return ModelConfig{}, fmt.Errorf("model %q is not configured", name)
	}
	return model, nil
}

// Agent resolves an agent by name, falling back to the default.
func (c *Config) Agent(name string) (AgentConfig, error) {
	if name == "" {
		name = c.DefaultAgent
	}
	agentCfg, ok := c.Agents[name]
	if !ok {
		return AgentConfig{}, fmt.Errorf("agent %q is not configured", name)
	}
	return agentCfg, nil
}

// ResolveAPIKey returns the model's API key: the named environment
// variable wins, then the inline key, then the provider's conventional
// variable.
func (m ModelConfig) ResolveAPIKey() string {
	if m.APIKeyEnv != "" {
		if key := os.Getenv(m.APIKeyEnv); key != "" {
			return key
		}
	}
	if m.APIKey != "" {
		return m.APIKey
	}
	switch m.Provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gateway":
		return os.Getenv("ANVIL_API_KEY")
	}
	return ""
}
