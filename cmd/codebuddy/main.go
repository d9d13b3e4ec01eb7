// Command codebuddy is an interactive coding assistant confined to one
// project directory.
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

	"github.com/martinemde/codebuddy/agentloop"
	"github.com/martinemde/codebuddy/config"
	"github.com/martinemde/codebuddy/logger"
	"github.com/martinemde/codebuddy/sandbox"
	"github.com/martinemde/codebuddy/toolhost"
	"github.com/martinemde/codebuddy/tools"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "codebuddy: %v\n", err)
		return 1
	}
	a.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "codebuddy: invalid configuration:\n%v\n", err)
		return 1
	}

	logger.Configure(cfg.Log.Level)
	if closer, _, err := logger.SetupFile(cfg.Log.File); err != nil {
		fmt.Fprintf(stderr, "codebuddy: log file: %v\n", err)
	} else {
		defer closer.Close()
	}
	log := logger.Named("cli")

	validator, err := sandbox.NewValidator(cfg.Project.Root, cfg.SecurityMode())
	if err != nil {
		fmt.Fprintf(stderr, "codebuddy: %v\n", err)
		return 1
	}
	ws, err := tools.NewWorkspace(validator, cfg.WorkspaceOptions())
	if err != nil {
		fmt.Fprintf(stderr, "codebuddy: %v\n", err)
		return 1
	}

	baseCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	reg, closeHosts, err := buildRegistry(baseCtx, a, cfg, ws)
	if err != nil {
		fmt.Fprintf(stderr, "codebuddy: %v\n", err)
		return 1
	}
	defer closeHosts()

	client, err := config.NewClientFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "codebuddy: %v\n", err)
		return 1
	}
	defer client.Close()

	sc := cfg.SessionConfig(validator.Root())
	session := agentloop.NewSession(client, reg, &sc)
	defer session.Close()

	log.WithField("root", validator.Root()).
		WithField("mode", validator.Mode().String()).
		WithField("model", client.Model()).
		WithField("tools", reg.Len()).
		WithField("session", session.ID()).
		Info("codebuddy started")

	out := newPrinter(stdout)
	go out.follow(session.Events())

	app := &app{
		session: session,
		ws:      ws,
		cfg:     cfg,
		out:     out,
		stderr:  stderr,
		model:   client.Model(),
	}
	if a.prompt != "" {
		if err := app.ask(baseCtx, a.prompt); err != nil {
			fmt.Fprintf(stderr, "codebuddy: %v\n", err)
			return 1
		}
		return 0
	}
	return app.repl(baseCtx)
}

// buildRegistry assembles the tool set: the built-in tools in process, or
// behind a codebuddy-mcp subprocess with -mcp, plus any configured MCP
// servers. The returned func closes every tool-host session.
func buildRegistry(ctx context.Context, a cliArgs, cfg config.Config, ws *tools.Workspace) (*agentloop.Registry, func(), error) {
	var sessions []*toolhost.ClientSession
	closeAll := func() {
		for _, s := range sessions {
			_ = s.Close()
		}
	}

	var extra []agentloop.Tool
	for _, srv := range cfg.MCP.Servers {
		cs, err := toolhost.ConnectCommand(ctx, srv.Command, srv.Args...)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("mcp server %s: %w", srv.Name, err)
		}
		sessions = append(sessions, cs)
		remote, err := toolhost.RemoteTools(ctx, cs)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("mcp server %s: %w", srv.Name, err)
		}
		extra = append(extra, remote...)
	}

	if !a.useMCP {
		reg, err := tools.NewRegistry(ws, extra...)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		return reg, closeAll, nil
	}

	hostArgs := []string{"-root", ws.Root()}
	if cfg.Project.AllowExternalPaths {
		hostArgs = append(hostArgs, "-allow-external")
	}
	if a.configPath != "" {
		hostArgs = append(hostArgs, "-config", a.configPath)
	}
	cs, err := toolhost.ConnectCommand(ctx, a.mcpCommand, hostArgs...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	sessions = append(sessions, cs)
	builtin, err := toolhost.RemoteTools(ctx, cs)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	reg, err := agentloop.NewRegistry(append(builtin, extra...)...)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return reg, closeAll, nil
}

// interruptible returns a context cancelled by SIGINT or SIGTERM, for the
// duration of one request.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
