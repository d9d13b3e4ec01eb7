package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/martinemde/codebuddy/agentloop"
)

// RunCommand returns the run_command tool.
func (w *Workspace) RunCommand() agentloop.Tool {
	return agentloop.NewFuncTool("run_command",
		"Run a shell command in the project directory",
		agentloop.ObjectSchema(map[string]any{
			"command": agentloop.Prop("string", "Command line to run"),
			"cwd":     agentloop.Prop("string", "Working directory (default: project root)"),
			"timeout": agentloop.Prop("integer", fmt.Sprintf("Timeout in seconds (default: %d)", int(w.opts.CommandTimeout.Seconds()))),
		}, "command"),
		func(ctx context.Context, args map[string]any) (string, error) {
			command, err := agentloop.RequireString(args, "command")
			if err != nil {
				return "", err
			}
			dir, err := w.commandDir(args)
			if err != nil {
				return "", err
			}
			timeout := w.commandTimeout(args, w.opts.CommandTimeout)

			w.log.WithField("command", command).Info("run_command")
			res, err := w.Shell(ctx, dir, timeout, command)
			if err != nil {
				return "", err
			}
			if res.TimedOut {
				return "", fmt.Errorf("Command timed out after %ds", int(timeout.Seconds()))
			}
			return formatCommandResult(res), nil
		})
}

// formatCommandResult renders the status line and non-blank output streams.
func formatCommandResult(res *ExecResult) string {
	status := "Status: Success"
	if res.ExitCode != 0 {
		status = fmt.Sprintf("Status: Failed (exit code: %d)", res.ExitCode)
	}
	var parts []string
	if strings.TrimSpace(res.Stdout) != "" {
		parts = append(parts, "STDOUT:\n"+res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "" {
		parts = append(parts, "STDERR:\n"+res.Stderr)
	}
	if len(parts) == 0 {
		parts = append(parts, "(no output)")
	}
	return status + "\n\n" + strings.Join(parts, "\n\n")
}

func (w *Workspace) commandDir(args map[string]any) (string, error) {
	cwd, _ := agentloop.GetStringArg(args, "cwd")
	if strings.TrimSpace(cwd) == "" {
		return w.Root(), nil
	}
	abs, err := w.Resolve(cwd)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("working directory does not exist: %s", w.Display(abs))
	}
	return abs, nil
}

// commandTimeout reads the timeout argument in seconds, clamped to the
// configured maximum.
func (w *Workspace) commandTimeout(args map[string]any, fallback time.Duration) time.Duration {
	timeout := fallback
	if secs, ok := agentloop.GetIntArg(args, "timeout"); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	if timeout > w.opts.MaxCommandTimeout {
		timeout = w.opts.MaxCommandTimeout
	}
	return timeout
}

// RunPython returns the run_python tool.
func (w *Workspace) RunPython() agentloop.Tool {
	return agentloop.NewFuncTool("run_python",
		"Run a Python snippet or a Python file from the project",
		agentloop.ObjectSchema(map[string]any{
			"code":     agentloop.Prop("string", "Python source to execute"),
			"filepath": agentloop.Prop("string", "Python file to run instead of code"),
			"timeout":  agentloop.Prop("integer", fmt.Sprintf("Timeout in seconds (default: %d)", int(w.opts.PythonTimeout.Seconds()))),
		}),
		func(ctx context.Context, args map[string]any) (string, error) {
			var argv []string
			if code, ok := agentloop.GetStringArg(args, "code"); ok && code != "" {
				argv = []string{"-c", code}
			} else if path, ok := agentloop.GetStringArg(args, "filepath"); ok && path != "" {
				abs, err := w.Resolve(path)
				if err != nil {
					return "", err
				}
				if _, err := w.statFile(abs); err != nil {
					return "", err
				}
				argv = []string{abs}
			} else {
				return "", errors.New("provide either code or filepath")
			}
			timeout := w.commandTimeout(args, w.opts.PythonTimeout)

			res, err := w.Exec(ctx, w.Root(), timeout, w.opts.PythonPath, argv...)
			if err != nil {
				return "", err
			}
			if res.TimedOut {
				return "", fmt.Errorf("Execution timed out after %ds", int(timeout.Seconds()))
			}
			var parts []string
			if res.Stdout != "" {
				parts = append(parts, "Output:\n"+res.Stdout)
			}
			if res.Stderr != "" {
				parts = append(parts, "Errors:\n"+res.Stderr)
			}
			out := strings.Join(parts, "\n\n")
			if out == "" {
				out = "(no output)"
			}
			if res.ExitCode != 0 {
				return "", fmt.Errorf("exit code %d\n\n%s", res.ExitCode, out)
			}
			return out, nil
		})
}
