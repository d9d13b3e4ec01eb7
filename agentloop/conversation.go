package agentloop

import (
	"sync"

	"github.com/martinemde/codebuddy/gateway"
)

// Conversation is the ordered message log of one task plus its iteration
// counter and completion flag. Only the owning Session mutates it.
type Conversation struct {
	mu            sync.RWMutex
	messages      []gateway.Message
	iteration     int
	complete      bool
	finalResponse string
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds a plain message with the given role.
func (c *Conversation) Append(role gateway.Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, gateway.Message{Role: role, Content: content})
}

// AppendAssistant adds an assistant message carrying the requested calls.
func (c *Conversation) AppendAssistant(content string, calls []gateway.ToolCall) {
	msg := gateway.AssistantMessage(content, calls...).Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// AppendToolResult adds a tool message answering res.ToolCallID.
func (c *Conversation) AppendToolResult(res ToolExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, gateway.ToolMessage(res.ToolCallID, res.Result))
}

// Messages returns a deep copy of the log.
func (c *Conversation) Messages() []gateway.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return gateway.CloneMessages(c.messages)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// HasSystemPrompt reports whether the log opens with a system message.
func (c *Conversation) HasSystemPrompt() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages) > 0 && c.messages[0].Role == gateway.RoleSystem
}

// Iteration returns the number of completed model/tool round trips.
func (c *Conversation) Iteration() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.iteration
}

// IncrementIteration bumps the round-trip counter and returns the new value.
func (c *Conversation) IncrementIteration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iteration++
	return c.iteration
}

// ResetIteration zeroes the counter and clears the completion flag for a new
// request on the same log.
func (c *Conversation) ResetIteration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iteration = 0
	c.complete = false
	c.finalResponse = ""
}

// MarkComplete records the final answer.
func (c *Conversation) MarkComplete(final string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete = true
	c.finalResponse = final
}

// IsComplete reports whether a final answer has been recorded.
func (c *Conversation) IsComplete() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.complete
}

// FinalResponse returns the recorded final answer, if any.
func (c *Conversation) FinalResponse() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.finalResponse
}

// Reset discards all state.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.iteration = 0
	c.complete = false
	c.finalResponse = ""
}

// contentChars sums the text carried by every message, including tool call
// arguments.
func (c *Conversation) contentChars() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, m := range c.messages {
		total += len(m.Content)
		for _, tc := range m.ToolCalls {
			total += len(tc.Name) + len(tc.ArgumentsJSON())
		}
	}
	return total
}
