// Package sandbox resolves and authorizes the filesystem paths tools touch.
//
// Every path argument a tool receives goes through Validator.Validate before
// any I/O. Relative paths are anchored at the project root. Absolute paths are
// canonicalized and then checked against the sensitive-file patterns and, in
// restricted mode, against the project root.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode selects how absolute paths outside the project root are treated.
type Mode int

const (
	// ModeRestricted confines every path to the project root.
	ModeRestricted Mode = iota
	// ModePermissive allows absolute paths outside the root unless they are sensitive.
	ModePermissive
)

func (m Mode) String() string {
	switch m {
	case ModeRestricted:
		return "restricted"
	case ModePermissive:
		return "permissive"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "restricted" or "permissive" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "restricted":
		return ModeRestricted, nil
	case "permissive":
		return ModePermissive, nil
	default:
		return ModeRestricted, fmt.Errorf("unknown security mode %q", s)
	}
}

// Violation classifies a PathSecurityError.
type Violation string

const (
	ViolationSensitive   Violation = "sensitive"
	ViolationOutsideRoot Violation = "outside_root"
)

// PathSecurityError is returned when a path is rejected by the policy.
type PathSecurityError struct {
	Path      string
	Root      string
	Violation Violation
}

func (e *PathSecurityError) Error() string {
	if e.Violation == ViolationSensitive {
		return fmt.Sprintf("Access denied: '%s' matches sensitive file pattern. "+
			"Files like .env, *.key, *.pem, and credential files are blocked for security.", e.Path)
	}
	return fmt.Sprintf("Access to path '%s' is outside the project root '%s'", e.Path, e.Root)
}

// IsPathSecurityError reports whether err is, or wraps, a *PathSecurityError.
func IsPathSecurityError(err error) bool {
	var pe *PathSecurityError
	return errors.As(err, &pe)
}

// Validator authorizes paths against a project root. It is immutable after
// construction and safe for concurrent use.
type Validator struct {
	root      string
	mode      Mode
	sensitive *sensitiveMatcher
}

// NewValidator creates a validator for root. The root is made absolute and
// symlink-resolved so containment checks compare canonical paths.
func NewValidator(root string, mode Mode) (*Validator, error) {
	if root == "" {
		return nil, errors.New("sandbox: project root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox: project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox: project root %s is not a directory", abs)
	}
	m, err := newSensitiveMatcher(SensitivePatterns)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compile patterns: %w", err)
	}
	return &Validator{
		root:      canonicalize(abs),
		mode:      mode,
		sensitive: m,
	}, nil
}

// Root returns the canonical project root.
func (v *Validator) Root() string { return v.root }

// Mode returns the configured policy mode.
func (v *Validator) Mode() Mode { return v.mode }

// Validate resolves path and returns its canonical absolute form, or a
// *PathSecurityError when the policy forbids it.
func (v *Validator) Validate(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is empty")
	}

	if !filepath.IsAbs(path) {
		full := canonicalize(filepath.Join(v.root, path))
		if v.sensitive.match(full) {
			return "", &PathSecurityError{Path: full, Root: v.root, Violation: ViolationSensitive}
		}
		// Relative input never leaves the root, whatever the mode.
		if !v.contains(full) {
			return "", &PathSecurityError{Path: full, Root: v.root, Violation: ViolationOutsideRoot}
		}
		return full, nil
	}

	full := canonicalize(path)
	if v.sensitive.match(full) {
		return "", &PathSecurityError{Path: full, Root: v.root, Violation: ViolationSensitive}
	}
	if v.mode == ModeRestricted && !v.contains(full) {
		return "", &PathSecurityError{Path: full, Root: v.root, Violation: ViolationOutsideRoot}
	}
	return full, nil
}

// IsSafe reports whether Validate would accept path.
func (v *Validator) IsSafe(path string) bool {
	_, err := v.Validate(path)
	return err == nil
}

// IsSensitive reports whether a path matches a sensitive pattern. Directory
// walkers use it to skip entries without failing the whole listing.
func (v *Validator) IsSensitive(path string) bool {
	return v.sensitive.match(path)
}

// Relative returns path relative to the root when it is inside the root, and
// path unchanged otherwise.
func (v *Validator) Relative(path string) string {
	if !v.contains(path) {
		return path
	}
	rel, err := filepath.Rel(v.root, path)
	if err != nil {
		return path
	}
	return rel
}

func (v *Validator) contains(path string) bool {
	if path == v.root {
		return true
	}
	rel, err := filepath.Rel(v.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// canonicalize cleans an absolute path and resolves symlinks on its longest
// existing prefix, so paths that do not exist yet still canonicalize.
func canonicalize(path string) string {
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	var missing []string
	current := path
	for {
		parent := filepath.Dir(current)
		missing = append(missing, filepath.Base(current))
		if parent == current {
			return path
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved
		}
		current = parent
	}
}
