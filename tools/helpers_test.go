package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/martinemde/codebuddy/agentloop"
	"github.com/martinemde/codebuddy/logger"
	"github.com/martinemde/codebuddy/sandbox"
)

func newTestWorkspace(t *testing.T, opts Options) *Workspace {
	t.Helper()
	v, err := sandbox.NewValidator(t.TempDir(), sandbox.ModeRestricted)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	ws, err := NewWorkspace(v, opts)
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	ws.log = logger.Discard()
	return ws
}

// writeFixture creates rel under the workspace root with content.
func writeFixture(t *testing.T, ws *Workspace, rel, content string) string {
	t.Helper()
	path := filepath.Join(ws.Root(), rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFixture(t *testing.T, ws *Workspace, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(ws.Root(), rel))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func run(tool agentloop.Tool, args map[string]any) agentloop.ToolResult {
	return tool.Execute(context.Background(), args)
}
