package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/martinemde/codebuddy/sandbox"
)

const maxProjectDocBytes = 32 * 1024 // 32KB

// ProjectDocFiles are the instruction files at the project root that are
// loaded into the system prompt.
var ProjectDocFiles = []string{"AGENTS.md", "CODEBUDDY.md"}

// DefaultSystemPrompt is the base prompt for the coding assistant.
const DefaultSystemPrompt = `You are a coding assistant working inside a single project directory. You act only through the tools you are given: reading and writing files, searching, listing directories, running commands, git and HTTP requests.

How to work:
1. Make sure you understand the request. Ask when it is ambiguous.
2. Gather the information you need with tools before changing anything.
3. Make the smallest change that does the job.
4. Verify the change when a tool lets you (run the tests, re-read the file).
5. Finish with a short summary of what you did.

Paths are relative to the project root. Secrets such as .env files, keys and credential stores are off limits and requests for them will fail. When a tool reports an error, read it and adjust instead of repeating the same call.`

// PromptOptions controls what BuildSystemPrompt includes.
type PromptOptions struct {
	// Base replaces DefaultSystemPrompt when non-empty.
	Base       string
	WorkingDir string
	Model      string
	ToolNames  []string
}

// BuildSystemPrompt assembles the base prompt, the environment block, the git
// summary, the tool list and any project instruction files.
func BuildSystemPrompt(opts PromptOptions) string {
	base := strings.TrimSpace(opts.Base)
	if base == "" {
		base = DefaultSystemPrompt
	}
	sections := []string{base}

	if opts.WorkingDir != "" {
		sections = append(sections, BuildEnvironmentContext(opts.WorkingDir, opts.Model))
		if git := GetGitContext(opts.WorkingDir); git != "" {
			sections = append(sections, git)
		}
	}
	if len(opts.ToolNames) > 0 {
		sections = append(sections, "Available tools: "+strings.Join(opts.ToolNames, ", "))
	}
	if opts.WorkingDir != "" {
		if docs := DiscoverProjectDocs(opts.WorkingDir); docs != "" {
			sections = append(sections, docs)
		}
	}
	return strings.Join(sections, "\n\n")
}

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext(workingDir, model string) string {
	isGitRepo := isGitRepository(workingDir)

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", isGitRepo)
	if isGitRepo {
		if branch := getGitBranch(workingDir); branch != "" {
			fmt.Fprintf(&sb, "Git branch: %s\n", branch)
		}
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads ProjectDocFiles from the project root, capped at
// 32KB in total. Each file goes through a restricted validator, so a doc that
// is a symlink out of the root is skipped.
func DiscoverProjectDocs(projectRoot string) string {
	v, err := sandbox.NewValidator(projectRoot, sandbox.ModeRestricted)
	if err != nil {
		return ""
	}

	var docs []string
	totalBytes := 0
	for _, fileName := range ProjectDocFiles {
		path, err := v.Validate(fileName)
		if err != nil {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		remaining := maxProjectDocBytes - totalBytes
		if remaining <= 0 {
			docs = append(docs, "[Project instructions truncated at 32KB]")
			break
		}
		text := string(content)
		if len(text) > remaining {
			text = text[:runeStartBefore(text, remaining)] + "\n[Project instructions truncated at 32KB]"
		}
		docs = append(docs, fmt.Sprintf("# %s\n\n%s", fileName, text))
		totalBytes += len(text)
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// GetGitContext summarizes the branch, dirty file count and recent commits.
func GetGitContext(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<git_context>\n")
	if branch := getGitBranch(root); branch != "" {
		fmt.Fprintf(&sb, "Branch: %s\n", branch)
	}
	if status := strings.TrimSpace(runGitCommand(root, "status", "--short")); status != "" {
		fmt.Fprintf(&sb, "Modified/untracked files: %d\n", len(strings.Split(status, "\n")))
	}
	if log := runGitCommand(root, "log", "--oneline", "-5"); log != "" {
		sb.WriteString("Recent commits:\n")
		sb.WriteString(log)
	}
	sb.WriteString("</git_context>")
	return sb.String()
}

func isGitRepository(dir string) bool {
	return strings.TrimSpace(runGitCommand(dir, "rev-parse", "--is-inside-work-tree")) == "true"
}

func gitRoot(dir string) string {
	return strings.TrimSpace(runGitCommand(dir, "rev-parse", "--show-toplevel"))
}

func getGitBranch(dir string) string {
	return strings.TrimSpace(runGitCommand(dir, "rev-parse", "--abbrev-ref", "HEAD"))
}

func runGitCommand(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(out)
}
