package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmConfig configures a GollmAdapter.
type GollmConfig struct {
	Provider    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
	ExtraOpts   []gollm.ConfigOption
}

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter. It
// serves the providers that have no dedicated adapter (anthropic, ollama,
// groq, mistral, ...).
//
// gollm works on a single prompt, so the conversation is flattened into one
// prompt text and tool calls are recovered from JSON the model writes back.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
	// mu serializes SetOption+Generate pairs on the shared gollm instance.
	mu sync.Mutex
}

var _ ProviderAdapter = (*GollmAdapter)(nil)

// NewGollmAdapter creates a new GollmAdapter for the given provider.
// If APIKey is empty, gollm will attempt to read it from environment variables.
func NewGollmAdapter(cfg GollmConfig) (*GollmAdapter, error) {
	if cfg.Provider == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "gollm adapter requires a provider"}}
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel(cfg.Provider)
	}
	if model == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: fmt.Sprintf("no model configured for provider %q", cfg.Provider),
		}}
	}

	opts := []gollm.ConfigOption{
		gollm.SetProvider(cfg.Provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.MaxTokens),
		gollm.SetTemperature(cfg.Temperature),
		gollm.SetMaxRetries(0), // RetryMiddleware owns retries.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.APIKey != "" {
		opts = append(opts, gollm.SetAPIKey(cfg.APIKey))
	}
	opts = append(opts, cfg.ExtraOpts...)

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", cfg.Provider, err)
	}
	return &GollmAdapter{provider: cfg.Provider, llm: llm, model: model}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{provider: provider, llm: llm}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)

	a.mu.Lock()
	a.applyRequestOptions(req)
	text, err := a.llm.Generate(ctx, prompt)
	a.mu.Unlock()
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

// Stream sends a streaming request and returns a channel of text fragments.
// Providers without streaming support deliver the whole answer as one fragment.
func (a *GollmAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	prompt := a.translateRequest(req)
	ch := make(chan StreamEvent, 64)

	a.mu.Lock()
	a.applyRequestOptions(req)
	if !a.llm.SupportsStreaming() {
		a.mu.Unlock()
		go func() {
			defer close(ch)
			a.mu.Lock()
			text, err := a.llm.Generate(ctx, prompt)
			a.mu.Unlock()
			if err != nil {
				sendEvent(ctx, ch, StreamEvent{Type: StreamError, Err: a.translateError(err)})
				return
			}
			if !sendEvent(ctx, ch, StreamEvent{Type: StreamTextDelta, Delta: text}) {
				return
			}
			resp := a.buildResponse(req, text)
			sendEvent(ctx, ch, StreamEvent{Type: StreamFinish, FinishReason: &resp.FinishReason, Usage: &resp.Usage})
		}()
		return ch, nil
	}

	stream, err := a.llm.Stream(ctx, prompt)
	a.mu.Unlock()
	if err != nil {
		return nil, a.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()

		var fullText strings.Builder
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				sendEvent(ctx, ch, StreamEvent{Type: StreamError, Err: a.translateError(err)})
				return
			}
			if token == nil || token.Text == "" {
				continue
			}
			if !sendEvent(ctx, ch, StreamEvent{Type: StreamTextDelta, Delta: token.Text}) {
				return
			}
			fullText.WriteString(token.Text)
		}

		resp := a.buildResponse(req, fullText.String())
		sendEvent(ctx, ch, StreamEvent{Type: StreamFinish, FinishReason: &resp.FinishReason, Usage: &resp.Usage})
	}()
	return ch, nil
}

// translateRequest converts a Request into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt string
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.Content + "\n"
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, fmt.Sprintf("[Tool Call %s]: %s %s", tc.ID, tc.Name, tc.ArgumentsJSON()))
			}
		case RoleTool:
			parts = append(parts, fmt.Sprintf("[Tool Result %s]: %s", msg.ToolCallID, msg.Content))
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if len(req.Tools) > 0 {
		systemPrompt += "\nTo call tools, reply with only a JSON array of the form " +
			`[{"name": "<tool>", "arguments": {...}}]` + ".\n"
	}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		if req.ToolChoice != "" {
			promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice))
		}
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// buildResponse constructs a Response from the generated text.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	calls := parseToolCalls(text)
	content := text
	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if len(calls) > 0 {
		content = removeToolCallJSON(text)
		finish = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	inTokens := estimateTokens(req)
	return &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     a.provider,
		Content:      content,
		ToolCalls:    calls,
		FinishReason: finish,
		Usage: Usage{
			// gollm does not expose usage; estimate from text length.
			InputTokens:  inTokens,
			OutputTokens: len(text) / 4,
			TotalTokens:  inTokens + len(text)/4,
		},
	}
}

var toolCallMarkers = []string{`{"tool_calls"`, `[{"name"`}

// parseToolCalls extracts tool calls the model wrote as JSON into its answer.
// Both a bare array and an object with a "tool_calls" array are accepted.
func parseToolCalls(text string) []ToolCall {
	start := -1
	for _, marker := range toolCallMarkers {
		if idx := strings.Index(text, marker); idx != -1 && (start == -1 || idx < start) {
			start = idx
		}
	}
	if start == -1 {
		return nil
	}

	type rawCall struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	var raw []rawCall
	remaining := strings.TrimSpace(text[start:])
	if strings.HasPrefix(remaining, "[") {
		if err := decodeLeadingJSON(remaining, &raw); err != nil {
			return nil
		}
	} else {
		var wrapper struct {
			ToolCalls []rawCall `json:"tool_calls"`
		}
		if err := decodeLeadingJSON(remaining, &wrapper); err != nil {
			return nil
		}
		raw = wrapper.ToolCalls
	}

	calls := make([]ToolCall, 0, len(raw))
	for _, rc := range raw {
		if rc.Name == "" {
			continue
		}
		args := rc.Arguments
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, ToolCall{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: args,
		})
	}
	return calls
}

// removeToolCallJSON strips the tool call JSON, keeping any leading prose.
func removeToolCallJSON(text string) string {
	result := text
	for _, marker := range toolCallMarkers {
		if idx := strings.Index(result, marker); idx != -1 {
			result = result[:idx]
		}
	}
	return strings.TrimSpace(result)
}

// translateError converts a gollm error into the gateway error hierarchy.
// gollm reports provider failures as plain errors, so classification is by
// message text.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	if ce := contextError(err); ce != nil {
		return ce
	}
	msg := err.Error()
	pe := func(status int, retryable bool) ProviderError {
		return ProviderError{
			SDKError:   SDKError{Message: msg, Cause: err},
			Provider:   a.provider,
			StatusCode: status,
			Retryable:  retryable,
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "invalid key"):
		return &AuthenticationError{ProviderError: pe(401, false)}
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		return &AccessDeniedError{ProviderError: pe(403, false)}
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		return &NotFoundError{ProviderError: pe(404, false)}
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return &RateLimitError{ProviderError: pe(429, true)}
	case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
		return &ContextLengthError{ProviderError: pe(413, false)}
	case strings.Contains(lower, "500") || strings.Contains(lower, "internal server"):
		return &ServerError{ProviderError: pe(500, true)}
	case strings.Contains(lower, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: pe(0, false)}
	default:
		p := pe(0, true)
		return &p
	}
}

// decodeLeadingJSON decodes the first JSON value in s and ignores the rest.
func decodeLeadingJSON(s string, v any) error {
	return json.NewDecoder(strings.NewReader(s)).Decode(v)
}

// estimateTokens provides a rough token count estimate from request messages.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}
