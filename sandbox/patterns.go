package sandbox

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// SensitivePatterns are the shell-style globs for files tools must never touch.
// A "*" matches across path separators, so "*secret*" catches any path with
// "secret" anywhere in it.
var SensitivePatterns = []string{
	"*.env",
	".env*",
	"*.key",
	"*.pem",
	"*secret*",
	"*credential*",
	"*password*",
	".ssh/*",
	".aws/*",
	".config/*",
}

type sensitiveMatcher struct {
	globs []glob.Glob
	// dirs holds the directory names of the "<dir>/*" patterns.
	dirs []string
}

func newSensitiveMatcher(patterns []string) (*sensitiveMatcher, error) {
	m := &sensitiveMatcher{}
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, err
		}
		m.globs = append(m.globs, g)
		if strings.Contains(p, "/") {
			m.dirs = append(m.dirs, strings.ToLower(strings.TrimRight(p, "/*")))
		}
	}
	return m, nil
}

// match reports whether the canonical path hits any pattern, either by its
// base name, its full string, or a credential directory component.
func (m *sensitiveMatcher) match(path string) bool {
	full := strings.ToLower(filepath.ToSlash(path))
	name := strings.ToLower(filepath.Base(path))
	for _, g := range m.globs {
		if g.Match(name) || g.Match(full) {
			return true
		}
	}
	if len(m.dirs) == 0 {
		return false
	}
	for _, part := range strings.Split(full, "/") {
		for _, dir := range m.dirs {
			if part == dir {
				return true
			}
		}
	}
	return false
}
