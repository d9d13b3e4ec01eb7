// Command codebuddy-mcp serves the built-in project tools over MCP on
// stdin/stdout, so other agents (or codebuddy -mcp) can use them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/martinemde/codebuddy/config"
	"github.com/martinemde/codebuddy/logger"
	"github.com/martinemde/codebuddy/sandbox"
	"github.com/martinemde/codebuddy/toolhost"
	"github.com/martinemde/codebuddy/tools"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("codebuddy-mcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Config file (default ~/.codebuddy/config.toml)")
	root := fs.String("root", "", "Project root the tools may touch")
	allowExternal := fs.Bool("allow-external", false, "Allow absolute paths outside the project root")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "codebuddy-mcp: %v\n", err)
		return 1
	}
	if *root != "" {
		cfg.Project.Root = *root
	}
	if *allowExternal {
		cfg.Project.AllowExternalPaths = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "codebuddy-mcp: invalid configuration:\n%v\n", err)
		return 1
	}

	// Stdout carries the protocol, so logs go to the configured file or stderr.
	logger.Configure(cfg.Log.Level)
	if cfg.Log.File != "" {
		closer, _, err := logger.SetupFile(cfg.Log.File)
		if err != nil {
			fmt.Fprintf(stderr, "codebuddy-mcp: log file: %v\n", err)
			return 1
		}
		defer closer.Close()
	} else {
		logger.SetOutput(stderr)
	}
	log := logger.Named("mcp")

	validator, err := sandbox.NewValidator(cfg.Project.Root, cfg.SecurityMode())
	if err != nil {
		fmt.Fprintf(stderr, "codebuddy-mcp: %v\n", err)
		return 1
	}
	ws, err := tools.NewWorkspace(validator, cfg.WorkspaceOptions())
	if err != nil {
		fmt.Fprintf(stderr, "codebuddy-mcp: %v\n", err)
		return 1
	}
	reg, err := tools.NewRegistry(ws)
	if err != nil {
		fmt.Fprintf(stderr, "codebuddy-mcp: %v\n", err)
		return 1
	}

	log.WithField("root", validator.Root()).
		WithField("mode", validator.Mode().String()).
		WithField("tools", reg.Len()).
		Info("serving tools over stdio")
	if err := toolhost.Serve(ctx, reg, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("server stopped")
		return 1
	}
	return 0
}
