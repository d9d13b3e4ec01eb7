package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/martinemde/codebuddy/agentloop"
)

// ReadFile returns the read_file tool.
func (w *Workspace) ReadFile() agentloop.Tool {
	return agentloop.NewFuncTool("read_file",
		"Read the contents of a file in the project",
		agentloop.ObjectSchema(map[string]any{
			"filepath": agentloop.Prop("string", "Path to the file, relative to the project root"),
		}, "filepath"),
		func(ctx context.Context, args map[string]any) (string, error) {
			path, err := agentloop.RequireString(args, "filepath")
			if err != nil {
				return "", err
			}
			abs, err := w.Resolve(path)
			if err != nil {
				return "", err
			}
			return w.readText(abs)
		})
}

// readText loads a regular file within the size cap. Content that is not
// valid UTF-8 is decoded as Latin-1.
func (w *Workspace) readText(abs string) (string, error) {
	info, err := w.statFile(abs)
	if err != nil {
		return "", err
	}
	if info.Size() > w.opts.MaxFileSize {
		return "", fmt.Errorf("File too large: %d bytes (max: %d bytes)", info.Size(), w.opts.MaxFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", w.Display(abs), err)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	return decodeLatin1(data), nil
}

func decodeLatin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

// statFile requires abs to exist and be a regular file.
func (w *Workspace) statFile(abs string) (os.FileInfo, error) {
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file '%s' does not exist", w.Display(abs))
	}
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path '%s' is not a file", w.Display(abs))
	}
	return info, nil
}

// WriteFile returns the write_file tool.
func (w *Workspace) WriteFile() agentloop.Tool {
	return agentloop.NewFuncTool("write_file",
		"Write content to a file, creating it and any parent directories if needed",
		agentloop.ObjectSchema(map[string]any{
			"filepath": agentloop.Prop("string", "Path to the file"),
			"content":  agentloop.Prop("string", "Full content to write"),
		}, "filepath", "content"),
		func(ctx context.Context, args map[string]any) (string, error) {
			path, err := agentloop.RequireString(args, "filepath")
			if err != nil {
				return "", err
			}
			content, _ := agentloop.GetStringArg(args, "content")
			abs, err := w.Resolve(path)
			if err != nil {
				return "", err
			}
			if err := writeFile(abs, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to '%s'.", len(content), w.Display(abs)), nil
		})
}

func writeFile(abs, content string) error {
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			return fmt.Errorf("path '%s' is a directory", abs)
		}
		mode = info.Mode().Perm()
	}
	return os.WriteFile(abs, []byte(content), mode)
}

// EditFile returns the edit_file tool.
func (w *Workspace) EditFile() agentloop.Tool {
	return agentloop.NewFuncTool("edit_file",
		"Replace every occurrence of old_content with new_content in a file",
		agentloop.ObjectSchema(map[string]any{
			"filepath":    agentloop.Prop("string", "Path to the file"),
			"old_content": agentloop.Prop("string", "Exact text to replace"),
			"new_content": agentloop.Prop("string", "Replacement text"),
		}, "filepath", "old_content", "new_content"),
		func(ctx context.Context, args map[string]any) (string, error) {
			path, err := agentloop.RequireString(args, "filepath")
			if err != nil {
				return "", err
			}
			oldContent, err := agentloop.RequireString(args, "old_content")
			if err != nil {
				return "", err
			}
			newContent, _ := agentloop.GetStringArg(args, "new_content")
			abs, err := w.Resolve(path)
			if err != nil {
				return "", err
			}
			text, err := w.readText(abs)
			if err != nil {
				return "", err
			}
			n := strings.Count(text, oldContent)
			if n == 0 {
				return "", fmt.Errorf("content to replace not found in '%s'", w.Display(abs))
			}
			if err := writeFile(abs, strings.ReplaceAll(text, oldContent, newContent)); err != nil {
				return "", err
			}
			return fmt.Sprintf("Edited '%s': replaced %d %s.", w.Display(abs), n, plural(n, "occurrence")), nil
		})
}

// DeleteFile returns the delete_file tool.
func (w *Workspace) DeleteFile() agentloop.Tool {
	return agentloop.NewFuncTool("delete_file",
		"Delete a single file",
		agentloop.ObjectSchema(map[string]any{
			"filepath": agentloop.Prop("string", "Path to the file"),
		}, "filepath"),
		func(ctx context.Context, args map[string]any) (string, error) {
			path, err := agentloop.RequireString(args, "filepath")
			if err != nil {
				return "", err
			}
			abs, err := w.Resolve(path)
			if err != nil {
				return "", err
			}
			if _, err := w.statFile(abs); err != nil {
				return "", err
			}
			if err := os.Remove(abs); err != nil {
				return "", err
			}
			return fmt.Sprintf("Deleted '%s'.", w.Display(abs)), nil
		})
}

// MoveFile returns the move_file tool.
func (w *Workspace) MoveFile() agentloop.Tool {
	return agentloop.NewFuncTool("move_file",
		"Move or rename a file",
		transferSchema(),
		func(ctx context.Context, args map[string]any) (string, error) {
			src, dst, err := w.transferPaths(args)
			if err != nil {
				return "", err
			}
			if err := os.Rename(src, dst); err != nil {
				// Rename fails across filesystems; fall back to copy and remove.
				if cerr := copyFile(src, dst); cerr != nil {
					return "", fmt.Errorf("move: %w", err)
				}
				if rerr := os.Remove(src); rerr != nil {
					return "", fmt.Errorf("move: remove source: %w", rerr)
				}
			}
			return fmt.Sprintf("Moved '%s' to '%s'.", w.Display(src), w.Display(dst)), nil
		})
}

// CopyFile returns the copy_file tool.
func (w *Workspace) CopyFile() agentloop.Tool {
	return agentloop.NewFuncTool("copy_file",
		"Copy a file",
		transferSchema(),
		func(ctx context.Context, args map[string]any) (string, error) {
			src, dst, err := w.transferPaths(args)
			if err != nil {
				return "", err
			}
			if err := copyFile(src, dst); err != nil {
				return "", err
			}
			return fmt.Sprintf("Copied '%s' to '%s'.", w.Display(src), w.Display(dst)), nil
		})
}

func transferSchema() map[string]any {
	return agentloop.ObjectSchema(map[string]any{
		"source_path":      agentloop.Prop("string", "Existing file"),
		"destination_path": agentloop.Prop("string", "Target path; parent directories are created"),
	}, "source_path", "destination_path")
}

// transferPaths validates both ends of a move or copy and prepares the
// destination directory.
func (w *Workspace) transferPaths(args map[string]any) (string, string, error) {
	srcArg, err := agentloop.RequireString(args, "source_path")
	if err != nil {
		return "", "", err
	}
	dstArg, err := agentloop.RequireString(args, "destination_path")
	if err != nil {
		return "", "", err
	}
	src, err := w.Resolve(srcArg)
	if err != nil {
		return "", "", err
	}
	dst, err := w.Resolve(dstArg)
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return "", "", fmt.Errorf("source file '%s' does not exist", w.Display(src))
	}
	if _, err := w.statFile(src); err != nil {
		return "", "", fmt.Errorf("source %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", "", fmt.Errorf("create parent directory: %w", err)
	}
	return src, dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
