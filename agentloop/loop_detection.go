package agentloop

import (
	"crypto/sha256"
	"fmt"

	"github.com/martinemde/codebuddy/gateway"
)

// DefaultLoopWindow is the number of recent tool calls inspected for a
// repeating pattern.
const DefaultLoopWindow = 6

// callSignature is the tool name plus a hash of the canonical argument JSON.
func callSignature(tc gateway.ToolCall) string {
	h := sha256.Sum256([]byte(tc.ArgumentsJSON()))
	return fmt.Sprintf("%s:%x", tc.Name, h[:8])
}

// recentSignatures returns up to count signatures from the newest assistant
// tool calls, oldest first.
func recentSignatures(messages []gateway.Message, count int) []string {
	var sigs []string
	for i := len(messages) - 1; i >= 0 && len(sigs) < count; i-- {
		msg := messages[i]
		if msg.Role != gateway.RoleAssistant {
			continue
		}
		for j := len(msg.ToolCalls) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, callSignature(msg.ToolCalls[j]))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop reports whether the last window tool calls repeat a pattern of
// length 1, 2, or 3.
func DetectLoop(messages []gateway.Message, window int) bool {
	if window <= 1 {
		return false
	}
	sigs := recentSignatures(messages, window)
	if len(sigs) < window {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if window%patternLen != 0 || window == patternLen {
			continue
		}
		match := true
		for i := patternLen; i < window && match; i++ {
			if sigs[i] != sigs[i%patternLen] {
				match = false
			}
		}
		if match {
			return true
		}
	}
	return false
}

func loopWarning(window int) string {
	return fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. "+
		"Stop repeating them and try a different approach, or explain what is blocking you.", window)
}
