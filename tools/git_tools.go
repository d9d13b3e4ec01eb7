package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/martinemde/codebuddy/agentloop"
)

// blockedGitCommands reach the network or rewrite remotes.
var blockedGitCommands = []string{"push", "pull", "fetch", "clone", "remote"}

// GitStatus returns the git_status tool.
func (w *Workspace) GitStatus() agentloop.Tool {
	return agentloop.NewFuncTool("git_status",
		"Show the working tree status",
		nil,
		func(ctx context.Context, args map[string]any) (string, error) {
			out, err := w.git(ctx, "status", "--short", "--branch")
			if err != nil {
				return "", err
			}
			return out, nil
		})
}

// GitDiff returns the git_diff tool.
func (w *Workspace) GitDiff() agentloop.Tool {
	return agentloop.NewFuncTool("git_diff",
		"Show uncommitted changes",
		agentloop.ObjectSchema(map[string]any{
			"staged":   agentloop.Prop("boolean", "Show staged changes instead of unstaged"),
			"filepath": agentloop.Prop("string", "Limit the diff to one path"),
		}),
		func(ctx context.Context, args map[string]any) (string, error) {
			gitArgs := []string{"diff"}
			if staged, _ := agentloop.GetBoolArg(args, "staged"); staged {
				gitArgs = append(gitArgs, "--staged")
			}
			if path, ok := agentloop.GetStringArg(args, "filepath"); ok && path != "" {
				abs, err := w.Resolve(path)
				if err != nil {
					return "", err
				}
				gitArgs = append(gitArgs, "--", abs)
			}
			out, err := w.git(ctx, gitArgs...)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(out) == "" {
				return "No changes", nil
			}
			return out, nil
		})
}

// GitLog returns the git_log tool.
func (w *Workspace) GitLog() agentloop.Tool {
	return agentloop.NewFuncTool("git_log",
		"Show recent commits",
		agentloop.ObjectSchema(map[string]any{
			"max_count": agentloop.Prop("integer", "Number of commits (default: 10)"),
		}),
		func(ctx context.Context, args map[string]any) (string, error) {
			n := 10
			if v, ok := agentloop.GetIntArg(args, "max_count"); ok && v > 0 {
				n = v
			}
			return w.git(ctx, "log", "--oneline", "--decorate", "-n", fmt.Sprint(n))
		})
}

// Git returns the git tool for arbitrary local subcommands.
func (w *Workspace) Git() agentloop.Tool {
	return agentloop.NewFuncTool("git",
		"Run a git subcommand in the project, e.g. \"show HEAD --stat\"; network commands are blocked",
		agentloop.ObjectSchema(map[string]any{
			"command": agentloop.Prop("string", "Arguments after 'git'"),
		}, "command"),
		func(ctx context.Context, args map[string]any) (string, error) {
			command, err := agentloop.RequireString(args, "command")
			if err != nil {
				return "", err
			}
			fields := strings.Fields(command)
			if len(fields) > 0 && fields[0] == "git" {
				fields = fields[1:]
			}
			if len(fields) == 0 {
				return "", errors.New("git command is empty")
			}
			if err := w.checkGitCommand(fields[0]); err != nil {
				return "", err
			}
			return w.git(ctx, fields...)
		})
}

func (w *Workspace) checkGitCommand(sub string) error {
	if slices.Contains(blockedGitCommands, sub) && !slices.Contains(w.opts.AllowedGitCommands, sub) {
		return fmt.Errorf("git %s is not allowed", sub)
	}
	return nil
}

// git runs git in the project root. A non-zero exit becomes an error carrying
// git's stderr.
func (w *Workspace) git(ctx context.Context, args ...string) (string, error) {
	res, err := w.Exec(ctx, w.Root(), w.opts.CommandTimeout, "git", args...)
	if err != nil {
		return "", err
	}
	if res.TimedOut {
		return "", fmt.Errorf("git %s timed out", args[0])
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		return "", fmt.Errorf("git %s failed (exit code %d): %s", args[0], res.ExitCode, msg)
	}
	return res.Stdout, nil
}
