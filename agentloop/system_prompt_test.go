package agentloop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiscoverProjectDocsStaysInRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "project")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "AGENTS.md"), []byte("parent rules"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("project rules"), 0o644); err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(parent, "elsewhere.md")
	if err := os.WriteFile(outside, []byte("outside text"), 0o644); err != nil {
		t.Fatal(err)
	}
	linked := os.Symlink(outside, filepath.Join(root, "CODEBUDDY.md")) == nil

	docs := DiscoverProjectDocs(root)
	if !strings.Contains(docs, "project rules") {
		t.Errorf("project doc missing: %q", docs)
	}
	if strings.Contains(docs, "parent rules") {
		t.Errorf("doc above the project root was loaded: %q", docs)
	}
	if linked && strings.Contains(docs, "outside text") {
		t.Errorf("symlinked doc outside the root was loaded: %q", docs)
	}
}

func TestDiscoverProjectDocsCap(t *testing.T) {
	root := t.TempDir()
	big := strings.Repeat("x", maxProjectDocBytes+10)
	if err := os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte(big), 0o644); err != nil {
		t.Fatal(err)
	}
	docs := DiscoverProjectDocs(root)
	if !strings.Contains(docs, "truncated at 32KB") || len(docs) > maxProjectDocBytes+200 {
		t.Errorf("doc not capped, len %d", len(docs))
	}
}
