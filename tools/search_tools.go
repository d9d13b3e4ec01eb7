package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/martinemde/codebuddy/agentloop"
)

// binarySniffLen is how much of a file is checked for NUL bytes.
const binarySniffLen = 8000

// SearchInFiles returns the search_in_files tool.
func (w *Workspace) SearchInFiles() agentloop.Tool {
	return agentloop.NewFuncTool("search_in_files",
		"Search project files for a regular expression",
		agentloop.ObjectSchema(map[string]any{
			"pattern":        agentloop.Prop("string", "Regular expression (RE2 syntax)"),
			"file_pattern":   agentloop.Prop("string", "Glob filter for file names, e.g. *.go"),
			"case_sensitive": agentloop.Prop("boolean", "Match case exactly (default false)"),
			"max_results":    agentloop.Prop("integer", "Maximum matches to return"),
		}, "pattern"),
		func(ctx context.Context, args map[string]any) (string, error) {
			pattern, err := agentloop.RequireString(args, "pattern")
			if err != nil {
				return "", err
			}
			caseSensitive, _ := agentloop.GetBoolArg(args, "case_sensitive")
			if !caseSensitive {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return "", fmt.Errorf("invalid regex pattern: %w", err)
			}
			filter, err := compileFileFilter(args)
			if err != nil {
				return "", err
			}
			limit := w.opts.MaxSearchResults
			if n, ok := agentloop.GetIntArg(args, "max_results"); ok && n > 0 && n < limit {
				limit = n
			}

			matches, err := w.search(ctx, re, filter, limit)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No matches found", nil
			}
			noun := "matches"
			if len(matches) == 1 {
				noun = "match"
			}
			return fmt.Sprintf("Found %d %s:\n\n%s", len(matches), noun, strings.Join(matches, "\n")), nil
		})
}

// fileFilter matches a relative slash path against a glob. A pattern with no
// separator matches the base name as well.
type fileFilter struct {
	g        glob.Glob
	baseOnly bool
}

func compileFileFilter(args map[string]any) (*fileFilter, error) {
	pattern, _ := agentloop.GetStringArg(args, "file_pattern")
	if pattern == "" || pattern == "*" {
		return nil, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}
	return &fileFilter{g: g, baseOnly: !strings.Contains(pattern, "/")}, nil
}

func (f *fileFilter) match(rel string) bool {
	if f == nil {
		return true
	}
	slash := filepath.ToSlash(rel)
	if f.g.Match(slash) {
		return true
	}
	return f.baseOnly && f.g.Match(filepath.Base(slash))
}

func (w *Workspace) search(ctx context.Context, re *regexp.Regexp, filter *fileFilter, limit int) ([]string, error) {
	files, err := w.projectFiles(ctx, w.Root(), filter, w.opts.MaxFileSize)
	if err != nil {
		return nil, err
	}
	var results []string
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(w.Root(), rel))
		if err != nil || isBinary(data) {
			continue
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), int(w.opts.MaxFileSize)+1)
		line := 0
		for scanner.Scan() {
			line++
			text := scanner.Text()
			if !re.MatchString(text) {
				continue
			}
			results = append(results, fmt.Sprintf("%s:%d: %s", filepath.ToSlash(rel), line, strings.TrimSpace(text)))
			if len(results) >= limit {
				return results, nil
			}
		}
	}
	return results, nil
}

// projectFiles walks base and returns sorted root-relative paths of regular
// files that pass the filter, skipping ignored directories, sensitive paths
// and, when maxSize is positive, files larger than it.
func (w *Workspace) projectFiles(ctx context.Context, base string, filter *fileFilter, maxSize int64) ([]string, error) {
	var files []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == base {
				return err
			}
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if path != base && (skipDir(d.Name()) || w.validator.IsSensitive(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || w.validator.IsSensitive(path) {
			return nil
		}
		rel, rerr := filepath.Rel(w.Root(), path)
		if rerr != nil {
			return nil
		}
		if !filter.match(rel) {
			return nil
		}
		if maxSize > 0 {
			if info, ierr := d.Info(); ierr != nil || info.Size() > maxSize {
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data[:min(len(data), binarySniffLen)], 0) >= 0
}

// FindFiles returns the find_files tool.
func (w *Workspace) FindFiles() agentloop.Tool {
	return agentloop.NewFuncTool("find_files",
		"Find files whose path matches a glob; ** crosses directories",
		agentloop.ObjectSchema(map[string]any{
			"pattern": agentloop.Prop("string", "Glob such as *.go or src/**/*_test.go"),
			"dirpath": agentloop.Prop("string", "Directory to search (default: project root)"),
		}, "pattern"),
		func(ctx context.Context, args map[string]any) (string, error) {
			pattern, err := agentloop.RequireString(args, "pattern")
			if err != nil {
				return "", err
			}
			filter, err := compileFileFilter(map[string]any{"file_pattern": pattern})
			if err != nil {
				return "", err
			}
			abs, err := w.resolveDir(args, "dirpath")
			if err != nil {
				return "", err
			}
			files, err := w.projectFiles(ctx, abs, nil, 0)
			if err != nil {
				return "", err
			}
			var found []string
			for _, rel := range files {
				local, rerr := filepath.Rel(abs, filepath.Join(w.Root(), rel))
				if rerr != nil {
					continue
				}
				if filter.match(local) {
					found = append(found, filepath.ToSlash(rel))
				}
			}
			if len(found) == 0 {
				return fmt.Sprintf("No files found matching '%s'", pattern), nil
			}
			extra := ""
			if len(found) > w.opts.MaxSearchResults {
				extra = fmt.Sprintf("\n... and %d more", len(found)-w.opts.MaxSearchResults)
				found = found[:w.opts.MaxSearchResults]
			}
			return strings.Join(found, "\n") + extra, nil
		})
}
