package main

import (
	"errors"
	"flag"
	"io"
	"testing"

	"github.com/martinemde/codebuddy/config"
)

func TestParseArgs(t *testing.T) {
	a, err := parseArgs([]string{"-root", "/srv/app", "-no-stream", "-max-iterations", "4", "fix", "the", "tests"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if a.root != "/srv/app" || !a.noStream || a.maxIterations != 4 {
		t.Errorf("flags not parsed: %+v", a)
	}
	if a.prompt != "fix the tests" {
		t.Errorf("prompt = %q", a.prompt)
	}
	if a.mcpCommand != "codebuddy-mcp" {
		t.Errorf("mcpCommand default = %q", a.mcpCommand)
	}
}

func TestParseArgsPromptFlagWins(t *testing.T) {
	a, err := parseArgs([]string{"-p", "explain main.go", "ignored"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if a.prompt != "explain main.go" {
		t.Errorf("prompt = %q", a.prompt)
	}
}

func TestParseArgsErrors(t *testing.T) {
	if _, err := parseArgs([]string{"-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("-h: got %v", err)
	}
	if _, err := parseArgs([]string{"-max-iterations", "many"}, io.Discard); err == nil {
		t.Error("expected error for a non-numeric flag")
	}
}

func TestApplyOverridesOnlySetFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Model = "from-file"
	cliArgs{provider: "anthropic", allowExternal: true, noStream: true}.apply(&cfg)

	if cfg.Model.Provider != "anthropic" || !cfg.Project.AllowExternalPaths || cfg.Agent.Stream {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.Model.Model != "from-file" {
		t.Errorf("unset -model overwrote the file value: %q", cfg.Model.Model)
	}
	if cfg.Agent.MaxIterations != config.Default().Agent.MaxIterations {
		t.Errorf("MaxIterations = %d", cfg.Agent.MaxIterations)
	}
}
