package main

import (
	"flag"
	"io"
	"strings"

	"github.com/martinemde/codebuddy/config"
)

type cliArgs struct {
	configPath    string
	root          string
	model         string
	provider      string
	prompt        string
	logLevel      string
	noStream      bool
	maxIterations int
	allowExternal bool
	useMCP        bool
	mcpCommand    string
}

func parseArgs(args []string, stderr io.Writer) (cliArgs, error) {
	var a cliArgs
	fs := flag.NewFlagSet("codebuddy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&a.configPath, "config", "", "Config file (default ~/.codebuddy/config.toml)")
	fs.StringVar(&a.root, "root", "", "Project root the tools may touch")
	fs.StringVar(&a.model, "model", "", "Model id")
	fs.StringVar(&a.provider, "provider", "", "Model provider: openai, anthropic, ollama, groq, ...")
	fs.StringVar(&a.prompt, "p", "", "Run one task and exit")
	fs.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&a.noStream, "no-stream", false, "Print the final answer at once instead of streaming it")
	fs.IntVar(&a.maxIterations, "max-iterations", 0, "Tool round trips allowed per request")
	fs.BoolVar(&a.allowExternal, "allow-external", false, "Allow absolute paths outside the project root")
	fs.BoolVar(&a.useMCP, "mcp", false, "Run the built-in tools in a codebuddy-mcp subprocess")
	fs.StringVar(&a.mcpCommand, "mcp-command", "codebuddy-mcp", "Tool host binary used with -mcp")
	if err := fs.Parse(args); err != nil {
		return cliArgs{}, err
	}
	if a.prompt == "" && fs.NArg() > 0 {
		a.prompt = strings.Join(fs.Args(), " ")
	}
	return a, nil
}

// apply lets explicit flags win over file and environment settings.
func (a cliArgs) apply(cfg *config.Config) {
	if a.root != "" {
		cfg.Project.Root = a.root
	}
	if a.model != "" {
		cfg.Model.Model = a.model
	}
	if a.provider != "" {
		cfg.Model.Provider = a.provider
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.noStream {
		cfg.Agent.Stream = false
	}
	if a.maxIterations > 0 {
		cfg.Agent.MaxIterations = a.maxIterations
	}
	if a.allowExternal {
		cfg.Project.AllowExternalPaths = true
	}
}
