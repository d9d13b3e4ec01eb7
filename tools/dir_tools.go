package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/martinemde/codebuddy/agentloop"
)

// ignoredDirs are never descended into by listings, trees or searches.
var ignoredDirs = map[string]bool{
	".git":          true,
	"node_modules":  true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	"dist":          true,
	"build":         true,
	".mypy_cache":   true,
	".pytest_cache": true,
	".idea":         true,
}

// skipDir reports whether walkers should leave a directory out. Hidden
// directories are skipped along with the ignore list.
func skipDir(name string) bool {
	return ignoredDirs[name] || (strings.HasPrefix(name, ".") && name != "." && name != "..")
}

// CreateDirectory returns the create_directory tool.
func (w *Workspace) CreateDirectory() agentloop.Tool {
	return agentloop.NewFuncTool("create_directory",
		"Create a directory and any missing parents",
		agentloop.ObjectSchema(map[string]any{
			"dirpath": agentloop.Prop("string", "Directory to create"),
		}, "dirpath"),
		func(ctx context.Context, args map[string]any) (string, error) {
			path, err := agentloop.RequireString(args, "dirpath")
			if err != nil {
				return "", err
			}
			abs, err := w.Resolve(path)
			if err != nil {
				return "", err
			}
			if info, err := os.Stat(abs); err == nil && !info.IsDir() {
				return "", fmt.Errorf("path '%s' exists and is not a directory", w.Display(abs))
			}
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return "", err
			}
			return fmt.Sprintf("Created directory '%s'.", w.Display(abs)), nil
		})
}

// ListDirectory returns the list_directory tool.
func (w *Workspace) ListDirectory() agentloop.Tool {
	return agentloop.NewFuncTool("list_directory",
		"List the entries of a directory",
		agentloop.ObjectSchema(map[string]any{
			"dirpath":   agentloop.Prop("string", "Directory to list (default: project root)"),
			"recursive": agentloop.Prop("boolean", "Include nested entries up to the configured depth"),
		}),
		func(ctx context.Context, args map[string]any) (string, error) {
			abs, err := w.resolveDir(args, "dirpath")
			if err != nil {
				return "", err
			}
			recursive, _ := agentloop.GetBoolArg(args, "recursive")
			depth := 0
			if recursive {
				depth = w.opts.MaxDepth
			}
			entries, err := w.walkEntries(ctx, abs, depth)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return fmt.Sprintf("Directory '%s' is empty.", w.Display(abs)), nil
			}
			var sb strings.Builder
			for _, e := range entries {
				if e.dir {
					fmt.Fprintf(&sb, "[DIR]  %s/\n", e.rel)
				} else {
					fmt.Fprintf(&sb, "[FILE] %s (%d bytes)\n", e.rel, e.size)
				}
			}
			return strings.TrimRight(sb.String(), "\n"), nil
		})
}

// DeleteDirectory returns the delete_directory tool.
func (w *Workspace) DeleteDirectory() agentloop.Tool {
	return agentloop.NewFuncTool("delete_directory",
		"Delete a directory; non-empty directories require force",
		agentloop.ObjectSchema(map[string]any{
			"dirpath": agentloop.Prop("string", "Directory to delete"),
			"force":   agentloop.Prop("boolean", "Delete recursively even if not empty"),
		}, "dirpath"),
		func(ctx context.Context, args map[string]any) (string, error) {
			path, err := agentloop.RequireString(args, "dirpath")
			if err != nil {
				return "", err
			}
			abs, err := w.Resolve(path)
			if err != nil {
				return "", err
			}
			if abs == w.Root() {
				return "", errors.New("refusing to delete the project root")
			}
			info, err := os.Stat(abs)
			if errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("directory '%s' does not exist", w.Display(abs))
			}
			if err != nil {
				return "", err
			}
			if !info.IsDir() {
				return "", fmt.Errorf("path '%s' is not a directory", w.Display(abs))
			}
			force, _ := agentloop.GetBoolArg(args, "force")
			if force {
				err = os.RemoveAll(abs)
			} else {
				err = os.Remove(abs)
				if err != nil && !errors.Is(err, fs.ErrNotExist) {
					if entries, rerr := os.ReadDir(abs); rerr == nil && len(entries) > 0 {
						return "", fmt.Errorf("directory '%s' is not empty (set force to delete it recursively)", w.Display(abs))
					}
				}
			}
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Deleted directory '%s'.", w.Display(abs)), nil
		})
}

// DirectoryTree returns the get_directory_tree tool.
func (w *Workspace) DirectoryTree() agentloop.Tool {
	return agentloop.NewFuncTool("get_directory_tree",
		"Show the project structure as an indented tree",
		agentloop.ObjectSchema(map[string]any{
			"dirpath":   agentloop.Prop("string", "Directory to start from (default: project root)"),
			"max_depth": agentloop.Prop("integer", "How many levels to descend"),
		}),
		func(ctx context.Context, args map[string]any) (string, error) {
			abs, err := w.resolveDir(args, "dirpath")
			if err != nil {
				return "", err
			}
			depth := w.opts.MaxDepth
			if d, ok := agentloop.GetIntArg(args, "max_depth"); ok && d >= 0 && d < depth {
				depth = d
			}
			return w.Tree(ctx, abs, depth)
		})
}

// Tree renders abs as an indented tree, directories first.
func (w *Workspace) Tree(ctx context.Context, abs string, depth int) (string, error) {
	entries, err := w.walkEntries(ctx, abs, depth)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	name := filepath.Base(abs)
	if abs == w.Root() {
		name = filepath.Base(w.Root())
	}
	sb.WriteString(name + "/\n")
	for _, e := range entries {
		sb.WriteString(strings.Repeat("  ", e.depth+1))
		sb.WriteString(filepath.Base(e.rel))
		if e.dir {
			sb.WriteString("/")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// resolveDir validates an optional directory argument, defaulting to the root.
func (w *Workspace) resolveDir(args map[string]any, key string) (string, error) {
	path, _ := agentloop.GetStringArg(args, key)
	if strings.TrimSpace(path) == "" {
		path = "."
	}
	abs, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("directory '%s' does not exist", w.Display(abs))
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path '%s' is not a directory", w.Display(abs))
	}
	return abs, nil
}

type dirEntry struct {
	rel   string
	depth int
	dir   bool
	size  int64
}

// walkEntries lists base depth-first, directories before files and names
// case-insensitively sorted at each level. Ignored directories and sensitive
// files are left out. depth 0 lists only the immediate children.
func (w *Workspace) walkEntries(ctx context.Context, base string, depth int) ([]dirEntry, error) {
	var out []dirEntry
	var visit func(dir, rel string, level int) error
	visit = func(dir, rel string, level int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		children, err := os.ReadDir(dir)
		if err != nil {
			if level == 0 {
				return err
			}
			return nil
		}
		sort.Slice(children, func(i, j int) bool {
			if children[i].IsDir() != children[j].IsDir() {
				return children[i].IsDir()
			}
			return strings.ToLower(children[i].Name()) < strings.ToLower(children[j].Name())
		})
		for _, c := range children {
			full := filepath.Join(dir, c.Name())
			childRel := filepath.Join(rel, c.Name())
			if c.IsDir() {
				if skipDir(c.Name()) || w.validator.IsSensitive(full) {
					continue
				}
				out = append(out, dirEntry{rel: childRel, depth: level, dir: true})
				if level < depth {
					if err := visit(full, childRel, level+1); err != nil {
						return err
					}
				}
				continue
			}
			if w.validator.IsSensitive(full) {
				continue
			}
			e := dirEntry{rel: childRel, depth: level}
			if info, err := c.Info(); err == nil {
				e.size = info.Size()
			}
			out = append(out, e)
		}
		return nil
	}
	if err := visit(base, "", 0); err != nil {
		return nil, err
	}
	return out, nil
}
