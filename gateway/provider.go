package gateway

import "context"

// Gateway is the contract the agent loop depends on. Chat returns one full
// turn, possibly with tool calls. ChatStream returns the text of a final turn
// as a finite, forward-only sequence of fragments.
type Gateway interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error)
	ChatStream(ctx context.Context, messages []Message) (<-chan StreamEvent, error)
}

// ProviderAdapter is the interface every provider backend implements.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends a request and returns a channel of stream events.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// sendEvent delivers ev unless ctx is done first. Adapters use it so a
// consumer that stops reading never strands the producing goroutine.
func sendEvent(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
