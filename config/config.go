// Package config loads codebuddy settings from ~/.codebuddy/config.toml and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/martinemde/codebuddy/sandbox"
)

// Config is the persisted configuration file schema.
type Config struct {
	Project ProjectConfig `toml:"project"`
	Agent   AgentConfig   `toml:"agent"`
	Tools   ToolsConfig   `toml:"tools"`
	Model   ModelConfig   `toml:"model"`
	Log     LogConfig     `toml:"log"`
	MCP     MCPConfig     `toml:"mcp"`

	// Source is the file the config was read from, if any.
	Source string `toml:"-"`
}

type ProjectConfig struct {
	Root               string `toml:"root"`
	AllowExternalPaths bool   `toml:"allow_external_paths"`
}

type AgentConfig struct {
	MaxIterations       int    `toml:"max_iterations"`
	SystemPrompt        string `toml:"system_prompt,omitempty"`
	Stream              bool   `toml:"stream"`
	LoopDetection       bool   `toml:"loop_detection"`
	LoopDetectionWindow int    `toml:"loop_detection_window"`
}

// ToolsConfig limits are in seconds and bytes.
type ToolsConfig struct {
	CommandTimeout     int            `toml:"command_timeout"`
	MaxCommandTimeout  int            `toml:"max_command_timeout"`
	MaxFileSize        int64          `toml:"max_file_size"`
	MaxDepth           int            `toml:"max_depth"`
	MaxSearchResults   int            `toml:"max_search_results"`
	HTTPTimeout        int            `toml:"http_timeout"`
	TruncationLimits   map[string]int `toml:"truncation_limits,omitempty"`
	AllowedGitCommands []string       `toml:"allowed_git_commands,omitempty"`
}

type ModelConfig struct {
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key,omitempty"`
	BaseURL     string  `toml:"base_url,omitempty"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	MaxRetries  int     `toml:"max_retries"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file,omitempty"`
}

type MCPConfig struct {
	Servers []MCPServer `toml:"servers,omitempty"`
}

// MCPServer is an external tool host started as a subprocess.
type MCPServer struct {
	Name    string   `toml:"name"`
	Command string   `toml:"command"`
	Args    []string `toml:"args,omitempty"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Project: ProjectConfig{Root: "."},
		Agent: AgentConfig{
			MaxIterations:       10,
			Stream:              true,
			LoopDetection:       true,
			LoopDetectionWindow: 6,
		},
		Tools: ToolsConfig{
			CommandTimeout:    60,
			MaxCommandTimeout: 600,
			MaxFileSize:       1 << 20,
			MaxDepth:          4,
			MaxSearchResults:  100,
			HTTPTimeout:       30,
		},
		Model: ModelConfig{
			Provider:    "openai",
			Temperature: 0.2,
			MaxTokens:   4096,
			MaxRetries:  2,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath returns ~/.codebuddy/config.toml, or "" when $HOME is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".codebuddy", "config.toml")
}

// Load reads path over the defaults and then applies environment overrides.
// A missing file is not an error. An empty path means DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := toml.Unmarshal(content, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
			cfg.Source = path
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg as TOML, creating the parent directory.
func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return errors.New("config path is empty and $HOME is not set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that limits are in range.
func (c Config) Validate() error {
	var errs []error
	if c.Agent.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be at least 1, got %d", c.Agent.MaxIterations))
	}
	if c.Agent.LoopDetection && c.Agent.LoopDetectionWindow < 2 {
		errs = append(errs, fmt.Errorf("agent.loop_detection_window must be at least 2, got %d", c.Agent.LoopDetectionWindow))
	}
	if c.Tools.CommandTimeout < 1 {
		errs = append(errs, fmt.Errorf("tools.command_timeout must be positive, got %d", c.Tools.CommandTimeout))
	}
	if c.Tools.MaxCommandTimeout < c.Tools.CommandTimeout {
		errs = append(errs, fmt.Errorf("tools.max_command_timeout (%d) is below tools.command_timeout (%d)", c.Tools.MaxCommandTimeout, c.Tools.CommandTimeout))
	}
	if c.Tools.MaxFileSize < 1 {
		errs = append(errs, fmt.Errorf("tools.max_file_size must be positive, got %d", c.Tools.MaxFileSize))
	}
	if c.Tools.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("tools.max_depth must be positive, got %d", c.Tools.MaxDepth))
	}
	if c.Tools.MaxSearchResults < 1 {
		errs = append(errs, fmt.Errorf("tools.max_search_results must be positive, got %d", c.Tools.MaxSearchResults))
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature must be within [0, 2], got %g", c.Model.Temperature))
	}
	if c.Model.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("model.max_retries must not be negative, got %d", c.Model.MaxRetries))
	}
	for i, s := range c.MCP.Servers {
		if s.Command == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d] (%s) has no command", i, s.Name))
		}
	}
	return errors.Join(errs...)
}

// SecurityMode maps AllowExternalPaths to a sandbox policy.
func (c Config) SecurityMode() sandbox.Mode {
	if c.Project.AllowExternalPaths {
		return sandbox.ModePermissive
	}
	return sandbox.ModeRestricted
}
