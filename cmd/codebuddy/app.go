package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/martinemde/codebuddy/agentloop"
	"github.com/martinemde/codebuddy/config"
	"github.com/martinemde/codebuddy/tools"
)

type app struct {
	session *agentloop.Session
	ws      *tools.Workspace
	cfg     config.Config
	out     *printer
	stderr  io.Writer
	model   string
}

const helpText = `Commands:
  /help          Show this help
  /reset         Start a new conversation
  /tools         List available tools
  /files         List files in the project root
  /tree          Show the project tree
  /read <file>   Print a file
  /run <cmd>     Run a shell command
  /exit          Quit
Anything else is sent to the assistant. Ctrl-C cancels a running request.`

// ask sends one user message and prints the answer. Ctrl-C cancels the
// request without leaving the program.
func (a *app) ask(ctx context.Context, input string) error {
	ctx, stop := interruptible(ctx)
	defer stop()

	var (
		out *agentloop.Outcome
		err error
	)
	if a.cfg.Agent.Stream {
		streamed := false
		out, err = a.session.ChatStream(ctx, input, func(delta string) {
			streamed = true
			a.out.Print(delta)
		})
		if streamed {
			a.out.Print("\n")
		} else if err == nil && out != nil {
			// The answer came back whole, e.g. after an iteration cap.
			a.out.Print(out.Response + "\n")
		}
	} else {
		out, err = a.session.Chat(ctx, input)
		if err == nil {
			a.out.Print(out.Response + "\n")
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		a.out.Print("\033[33m[cancelled]\033[0m\n")
		return nil
	case err != nil:
		return err
	case !out.Complete():
		a.out.Printf("\033[33m[stopped after %d tool rounds]\033[0m\n", out.Iterations)
	}
	return nil
}

func (a *app) repl(ctx context.Context) int {
	a.out.Printf("codebuddy · %s · %s\nType /help for commands.\n\n", a.model, a.ws.Root())
	for {
		prompt := promptui.Prompt{Label: ">"}
		line, err := prompt.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return 0
		}
		if err != nil {
			fmt.Fprintf(a.stderr, "codebuddy: %v\n", err)
			return 1
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := a.command(ctx, line); quit {
				return 0
			}
			continue
		}
		if err := a.ask(ctx, line); err != nil {
			a.out.Printf("\033[31merror: %v\033[0m\n", err)
		}
	}
}

// command runs a slash command and reports whether the REPL should exit.
func (a *app) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/exit", "/quit":
		return true
	case "/help":
		a.out.Print(helpText + "\n")
	case "/reset":
		if a.confirm("Clear the conversation?") {
			a.session.Reset()
			a.out.Print("Conversation cleared.\n")
		}
	case "/tools":
		for _, t := range a.session.Registry().Tools() {
			a.out.Printf("  %-20s %s\n", t.Name(), t.Description())
		}
	case "/files":
		a.runTool(ctx, a.ws.ListDirectory(), map[string]any{})
	case "/tree":
		a.runTool(ctx, a.ws.DirectoryTree(), map[string]any{})
	case "/read":
		if arg == "" {
			a.out.Print("usage: /read <file>\n")
			return false
		}
		a.runTool(ctx, a.ws.ReadFile(), map[string]any{"filepath": arg})
	case "/run":
		if arg == "" {
			a.out.Print("usage: /run <command>\n")
			return false
		}
		a.runTool(ctx, a.ws.RunCommand(), map[string]any{"command": arg})
	default:
		a.out.Printf("unknown command %s; try /help\n", name)
	}
	return false
}

// runTool executes a tool directly on behalf of the user.
func (a *app) runTool(ctx context.Context, tool agentloop.Tool, args map[string]any) {
	ctx, stop := interruptible(ctx)
	defer stop()
	res := tool.Execute(ctx, args)
	if res.OK() {
		a.out.Print(res.Content + "\n")
		return
	}
	a.out.Printf("\033[31m%s\033[0m\n", res.Content)
}

func (a *app) confirm(label string) bool {
	sel := promptui.Select{
		Label:        label,
		Items:        []string{"Yes", "No"},
		Size:         2,
		HideSelected: true,
	}
	idx, _, err := sel.Run()
	return err == nil && idx == 0
}
