package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/martinemde/codebuddy/sandbox"
)

// clearEnv blanks every variable Load consults so the host environment does
// not leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PROJECT_ROOT", "ALLOW_EXTERNAL_PATHS", "MAX_FILE_SIZE", "MAX_DEPTH", "LOG_LEVEL",
		"CODEBUDDY_PROVIDER", "CODEBUDDY_MODEL", "CODEBUDDY_MAX_ITERATIONS",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Agent.MaxIterations != def.Agent.MaxIterations || cfg.Tools.MaxFileSize != def.Tools.MaxFileSize {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if cfg.Source != "" {
		t.Errorf("Source = %q for a missing file", cfg.Source)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[project]
root = "/srv/app"
allow_external_paths = true

[agent]
max_iterations = 25

[tools]
max_depth = 2
truncation_limits = { read_file = 1000 }

[model]
provider = "anthropic"
model = "claude-sonnet-4-5"

[[mcp.servers]]
name = "fs"
command = "codebuddy-mcp"
args = ["-root", "/srv/app"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != path {
		t.Errorf("Source = %q", cfg.Source)
	}
	if cfg.Project.Root != "/srv/app" || cfg.Agent.MaxIterations != 25 || cfg.Tools.MaxDepth != 2 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Tools.CommandTimeout != 60 {
		t.Errorf("unset keys should keep defaults, got command_timeout=%d", cfg.Tools.CommandTimeout)
	}
	if cfg.Tools.TruncationLimits["read_file"] != 1000 {
		t.Errorf("truncation limits = %v", cfg.Tools.TruncationLimits)
	}
	if len(cfg.MCP.Servers) != 1 || cfg.MCP.Servers[0].Args[1] != "/srv/app" {
		t.Errorf("mcp servers = %+v", cfg.MCP.Servers)
	}
	if cfg.SecurityMode() != sandbox.ModePermissive {
		t.Errorf("SecurityMode = %v", cfg.SecurityMode())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[agent]
max_iterations = 25

[model]
provider = "openai"
api_key = "from-file"
`)
	t.Setenv("CODEBUDDY_MAX_ITERATIONS", "3")
	t.Setenv("MAX_DEPTH", "7")
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("ANTHROPIC_API_KEY", "wrong-provider")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 3 || cfg.Tools.MaxDepth != 7 || cfg.Log.Level != "debug" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.Model.APIKey != "from-env" {
		t.Errorf("APIKey = %q", cfg.Model.APIKey)
	}
}

func TestEnvRejectsMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_FILE_SIZE", "big")
	t.Setenv("ALLOW_EXTERNAL_PATHS", "sometimes")

	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "MAX_FILE_SIZE") || !strings.Contains(err.Error(), "ALLOW_EXTERNAL_PATHS") {
		t.Errorf("expected both variables named in error, got %v", err)
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "[agent\nmax_iterations = ")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "max_iterations"},
		{"timeout order", func(c *Config) { c.Tools.MaxCommandTimeout = 10 }, "max_command_timeout"},
		{"temperature", func(c *Config) { c.Model.Temperature = 3 }, "temperature"},
		{"mcp command", func(c *Config) { c.MCP.Servers = []MCPServer{{Name: "x"}} }, "mcp.servers[0]"},
	}
	for _, tt := range tests {
		cfg := Default()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.field) {
			t.Errorf("%s: expected error mentioning %q, got %v", tt.name, tt.field, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Model.Model = "gpt-4o"
	cfg.Tools.AllowedGitCommands = []string{"fetch"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Model.Model != "gpt-4o" || len(loaded.Tools.AllowedGitCommands) != 1 {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Agent.MaxIterations = 4
	cfg.Tools.TruncationLimits = map[string]int{"git_diff": 500}

	opts := cfg.WorkspaceOptions()
	if opts.CommandTimeout != time.Minute || opts.MaxDepth != 4 {
		t.Errorf("WorkspaceOptions = %+v", opts)
	}
	sc := cfg.SessionConfig("/work")
	if sc.MaxIterations != 4 || sc.WorkingDir != "/work" || sc.ToolOutputLimits["git_diff"] != 500 {
		t.Errorf("SessionConfig = %+v", sc)
	}
	if sc.Model == "" {
		t.Error("SessionConfig should fall back to the provider's default model")
	}
}

func TestNewClientFromConfigRequiresKey(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKey = ""
	if _, err := NewClientFromConfig(cfg); err == nil {
		t.Error("expected an error without an OpenAI API key")
	}

	cfg.Model.APIKey = "sk-test"
	client, err := NewClientFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewClientFromConfig: %v", err)
	}
	if client.Model() == "" {
		t.Error("client should have a default model")
	}
}
