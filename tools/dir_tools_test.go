package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestListDirectory(t *testing.T) {
	ws := newTestWorkspace(t, Options{})
	writeFixture(t, ws, "b.txt", "12345")
	writeFixture(t, ws, "src/main.go", "package main")
	writeFixture(t, ws, "node_modules/pkg/index.js", "x")
	writeFixture(t, ws, "server.pem", "key")

	res := run(ws.ListDirectory(), map[string]any{})
	if !res.OK() {
		t.Fatalf("unexpected result %+v", res)
	}
	want := "[DIR]  src/\n[FILE] b.txt (5 bytes)"
	if res.Content != want {
		t.Errorf("got %q, want %q", res.Content, want)
	}

	res = run(ws.ListDirectory(), map[string]any{"recursive": true})
	if !strings.Contains(res.Content, filepath.Join("src", "main.go")) {
		t.Errorf("recursive listing missed nested file: %q", res.Content)
	}
	if strings.Contains(res.Content, "node_modules") || strings.Contains(res.Content, "server.pem") {
		t.Errorf("listing included ignored entries: %q", res.Content)
	}
}

func TestListDirectoryErrors(t *testing.T) {
	ws := newTestWorkspace(t, Options{})
	writeFixture(t, ws, "file.txt", "x")

	if res := run(ws.ListDirectory(), map[string]any{"dirpath": "file.txt"}); res.OK() {
		t.Error("listing a file should fail")
	}
	if res := run(ws.ListDirectory(), map[string]any{"dirpath": "../.."}); res.OK() {
		t.Error("listing outside the root should fail")
	}
}

func TestCreateAndDeleteDirectory(t *testing.T) {
	ws := newTestWorkspace(t, Options{})

	if res := run(ws.CreateDirectory(), map[string]any{"dirpath": "x/y"}); !res.OK() {
		t.Fatalf("create failed: %+v", res)
	}
	writeFixture(t, ws, "x/y/file.txt", "data")

	res := run(ws.DeleteDirectory(), map[string]any{"dirpath": "x"})
	if res.OK() || !strings.Contains(res.Content, "not empty") {
		t.Errorf("expected not-empty failure, got %+v", res)
	}
	if res := run(ws.DeleteDirectory(), map[string]any{"dirpath": "x", "force": true}); !res.OK() {
		t.Fatalf("forced delete failed: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(ws.Root(), "x")); !os.IsNotExist(err) {
		t.Error("directory still exists")
	}
	if res := run(ws.DeleteDirectory(), map[string]any{"dirpath": ".", "force": true}); res.OK() {
		t.Error("deleting the root must fail")
	}
}

func TestDirectoryTreeDepth(t *testing.T) {
	ws := newTestWorkspace(t, Options{MaxDepth: 1})
	writeFixture(t, ws, "a/b/c/deep.txt", "x")
	writeFixture(t, ws, "a/top.txt", "x")
	writeFixture(t, ws, ".git/HEAD", "ref")

	tree, err := ws.Tree(context.Background(), ws.Root(), ws.Options().MaxDepth)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(tree, "\n")
	want := []string{filepath.Base(ws.Root()) + "/", "  a/", "    b/", "    top.txt"}
	if len(lines) != len(want) {
		t.Fatalf("tree = %q", tree)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}

	// A larger requested depth is capped by configuration.
	res := run(ws.DirectoryTree(), map[string]any{"max_depth": 10})
	if strings.Contains(res.Content, "deep.txt") {
		t.Errorf("depth cap not applied: %q", res.Content)
	}
}
