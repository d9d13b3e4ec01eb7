package agentloop

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultCharLimit applies to tools without their own limit.
const DefaultCharLimit = 30000

// DefaultToolCharLimits are the per-tool character caps on output handed to
// the model.
var DefaultToolCharLimits = map[string]int{
	"read_file":          50000,
	"run_command":        30000,
	"run_python":         30000,
	"search_in_files":    20000,
	"find_files":         20000,
	"list_directory":     20000,
	"get_directory_tree": 20000,
	"git_diff":           40000,
	"git_log":            20000,
	"git":                30000,
	"http_request":       30000,
	"edit_file":          10000,
	"write_file":         1000,
}

// DefaultTruncationModes selects which end of the output survives. Listings
// keep their tail; everything else keeps head and tail.
var DefaultTruncationModes = map[string]TruncationMode{
	"search_in_files": TruncateTail,
	"find_files":      TruncateTail,
	"edit_file":       TruncateTail,
	"write_file":      TruncateTail,
}

// DefaultToolLineLimits are applied after character truncation.
var DefaultToolLineLimits = map[string]int{
	"run_command":     256,
	"run_python":      256,
	"search_in_files": 200,
	"find_files":      500,
}

// TruncateOutput applies character-based truncation to output. Cuts land on
// rune boundaries, so the kept text may be a few bytes under maxChars.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	if mode == TruncateTail {
		tail := output[runeStartAfter(output, len(output)-maxChars):]
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", len(output)-len(tail)) +
			tail
	}
	half := maxChars / 2
	head := output[:runeStartBefore(output, half)]
	tail := output[runeStartAfter(output, len(output)-half):]
	return head +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"Re-run the tool with more targeted parameters to see specific parts.]\n\n", len(output)-len(head)-len(tail)) +
		tail
}

// runeStartBefore moves i back to the start of the rune containing it.
func runeStartBefore(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeStartAfter moves i forward to the next rune start.
func runeStartAfter(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// TruncateLines keeps the first and last lines of output, maxLines in total.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies character then line truncation for toolName.
// Overrides in charLimits take precedence over the defaults.
func TruncateToolOutput(output, toolName string, charLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = DefaultCharLimit
		}
	}
	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}

	result := TruncateOutput(output, maxChars, mode)
	if maxLines := DefaultToolLineLimits[toolName]; maxLines > 0 {
		result = TruncateLines(result, maxLines)
	}
	return result
}
