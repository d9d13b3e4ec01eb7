package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ExecResult holds the outcome of a subprocess run.
type ExecResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// sensitiveEnvSuffixes mark environment variables withheld from subprocesses.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// passthroughEnv are always forwarded.
var passthroughEnv = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"NVM_DIR": true, "RUSTUP_HOME": true, "PYENV_ROOT": true, "VIRTUAL_ENV": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnv(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

// filterEnvironment drops credentials from environ.
func filterEnvironment(environ []string) []string {
	filtered := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if passthroughEnv[name] || !isSensitiveEnv(name) {
			filtered = append(filtered, kv)
		}
	}
	return filtered
}

// Exec runs name with args in dir. The child gets its own process group, a
// filtered environment and no stdin; on timeout or cancellation the whole
// group is killed. A non-zero exit is reported in the result, not as an error.
func (w *Workspace) Exec(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (*ExecResult, error) {
	if dir == "" {
		dir = w.Root()
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = dir
	cmd.Env = filterEnvironment(os.Environ())
	cmd.WaitDelay = 2 * time.Second
	setProcessGroup(cmd)

	stdout := &cappedBuffer{limit: w.opts.MaxOutputBytes}
	stderr := &cappedBuffer{limit: w.opts.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	log := w.log.WithField("cmd", name).WithField("duration", result.Duration.Round(time.Millisecond))
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			log.WithError(ctx.Err()).Info("command cancelled")
			return result, fmt.Errorf("%s: %w", name, ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			result.TimedOut = true
			result.ExitCode = -1
			log.Warn("command timed out")
			return result, nil
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	log.WithField("exit_code", result.ExitCode).Debug("command finished")
	return result, nil
}

// Shell runs command through the platform shell.
func (w *Workspace) Shell(ctx context.Context, dir string, timeout time.Duration, command string) (*ExecResult, error) {
	shell, flag := shellFor(runtime.GOOS)
	return w.Exec(ctx, dir, timeout, shell, flag, command)
}

func shellFor(goos string) (string, string) {
	if goos == "windows" {
		return "cmd.exe", "/c"
	}
	if path, err := exec.LookPath("bash"); err == nil {
		return path, "-c"
	}
	return "/bin/sh", "-c"
}

// cappedBuffer keeps the first limit bytes written to it and counts the rest.
// Writes never fail, so a chatty process is not killed by a broken pipe.
type cappedBuffer struct {
	buf     bytes.Buffer
	limit   int64
	dropped int64
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - int64(b.buf.Len())
	if room <= 0 {
		b.dropped += int64(len(p))
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.dropped += int64(len(p)) - room
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	if b.dropped == 0 {
		return b.buf.String()
	}
	return fmt.Sprintf("%s\n[output truncated: %d more bytes]", b.buf.String(), b.dropped)
}
