package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/martinemde/codebuddy/agentloop"
	"github.com/martinemde/codebuddy/config"
	"github.com/martinemde/codebuddy/gateway"
	"github.com/martinemde/codebuddy/sandbox"
	"github.com/martinemde/codebuddy/tools"
)

type cannedGateway struct {
	answer string
	err    error
}

func (g cannedGateway) Chat(ctx context.Context, messages []gateway.Message, defs []gateway.ToolDefinition) (*gateway.Response, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Response{Content: g.answer, FinishReason: gateway.FinishReason{Reason: "stop"}}, nil
}

func (g cannedGateway) ChatStream(ctx context.Context, messages []gateway.Message) (<-chan gateway.StreamEvent, error) {
	return nil, errors.New("not streaming")
}

func newTestApp(t *testing.T, gw gateway.Gateway) (*app, *bytes.Buffer) {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err := sandbox.NewValidator(root, sandbox.ModeRestricted)
	if err != nil {
		t.Fatal(err)
	}
	ws, err := tools.NewWorkspace(v, tools.Options{})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := tools.NewRegistry(ws)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Agent.Stream = false
	sc := cfg.SessionConfig(root)
	sc.SystemPrompt = "test"
	session := agentloop.NewSession(gw, reg, &sc)
	t.Cleanup(session.Close)

	var buf bytes.Buffer
	return &app{session: session, ws: ws, cfg: cfg, out: newPrinter(&buf), stderr: &buf, model: "test-model"}, &buf
}

func TestAskPrintsAnswer(t *testing.T) {
	a, buf := newTestApp(t, cannedGateway{answer: "All good."})
	if err := a.ask(context.Background(), "status?"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got := buf.String(); got != "All good.\n" {
		t.Errorf("output = %q", got)
	}
}

func TestAskReturnsGatewayError(t *testing.T) {
	a, _ := newTestApp(t, cannedGateway{err: errors.New("rate limited")})
	if err := a.ask(context.Background(), "status?"); err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected gateway error, got %v", err)
	}
}

func TestSlashCommands(t *testing.T) {
	tests := []struct {
		line string
		quit bool
		want string
	}{
		{"/exit", true, ""},
		{"/help", false, "/read <file>"},
		{"/read notes.txt", false, "hello"},
		{"/read", false, "usage: /read"},
		{"/read ../outside.txt", false, "outside the project root"},
		{"/files", false, "notes.txt"},
		{"/tools", false, "read_file"},
		{"/bogus", false, "unknown command /bogus"},
	}
	for _, tt := range tests {
		a, buf := newTestApp(t, cannedGateway{answer: "ok"})
		if quit := a.command(context.Background(), tt.line); quit != tt.quit {
			t.Errorf("%s: quit = %v", tt.line, quit)
		}
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("%s: output %q missing %q", tt.line, buf.String(), tt.want)
		}
	}
}

func TestSummarizeArgs(t *testing.T) {
	got := summarizeArgs(map[string]any{"path": "a.go", "content": "x\ny"})
	if got != "content=x⏎y path=a.go" {
		t.Errorf("summarizeArgs = %q", got)
	}
}

func TestFollowPrintsToolActivity(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)
	ch := make(chan agentloop.Event, 2)
	ch <- agentloop.Event{Kind: agentloop.EventToolCallStart, Data: map[string]any{"tool_name": "read_file", "arguments": map[string]any{"filepath": "a.go"}}}
	ch <- agentloop.Event{Kind: agentloop.EventToolCallEnd, Data: map[string]any{"tool_name": "read_file", "success": false}}
	close(ch)
	p.follow(ch)
	out := buf.String()
	if !strings.Contains(out, "[*] read_file filepath=a.go") || !strings.Contains(out, "[x] read_file failed") {
		t.Errorf("output = %q", out)
	}
}
