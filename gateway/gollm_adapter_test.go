package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestGollmAdapterTranslateError(t *testing.T) {
	adapter := &GollmAdapter{provider: "anthropic"}

	tests := []struct {
		errMsg string
		check  func(error) bool
	}{
		{"401 Unauthorized", func(err error) bool { var e *AuthenticationError; return errors.As(err, &e) }},
		{"invalid api key", func(err error) bool { var e *AuthenticationError; return errors.As(err, &e) }},
		{"403 Forbidden", func(err error) bool { var e *AccessDeniedError; return errors.As(err, &e) }},
		{"404 not found", func(err error) bool { var e *NotFoundError; return errors.As(err, &e) }},
		{"429 rate limit exceeded", func(err error) bool { var e *RateLimitError; return errors.As(err, &e) }},
		{"context length exceeded", func(err error) bool { var e *ContextLengthError; return errors.As(err, &e) }},
		{"500 internal server error", func(err error) bool { var e *ServerError; return errors.As(err, &e) }},
		{"timeout waiting for response", func(err error) bool { var e *RequestTimeoutError; return errors.As(err, &e) }},
		{"content filter triggered", func(err error) bool { var e *ContentFilterError; return errors.As(err, &e) }},
		{"something unknown", func(err error) bool { _, ok := err.(*ProviderError); return ok }},
	}

	for _, tt := range tests {
		err := adapter.translateError(errors.New(tt.errMsg))
		if err == nil {
			t.Errorf("expected non-nil error for %q", tt.errMsg)
			continue
		}
		if !tt.check(err) {
			t.Errorf("for %q: unexpected error type %T", tt.errMsg, err)
		}
	}
}

func TestGollmAdapterTranslateContextError(t *testing.T) {
	adapter := &GollmAdapter{provider: "anthropic"}
	var abort *AbortError
	if !errors.As(adapter.translateError(context.Canceled), &abort) {
		t.Error("expected cancellation to map to AbortError")
	}
}

func TestParseToolCallsArray(t *testing.T) {
	text := `I'll read it.
[{"name": "read_file", "arguments": {"filepath": "notes.txt"}}, {"name": "list_directory", "arguments": {}}] trailing`
	calls := parseToolCalls(text)
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "read_file" || calls[0].Arguments["filepath"] != "notes.txt" {
		t.Errorf("unexpected first call: %+v", calls[0])
	}
	if calls[1].Arguments == nil {
		t.Error("missing arguments should become an empty map")
	}
	if !strings.HasPrefix(calls[0].ID, "call_") || calls[0].ID == calls[1].ID {
		t.Errorf("expected distinct call ids, got %q and %q", calls[0].ID, calls[1].ID)
	}
}

func TestParseToolCallsWrapper(t *testing.T) {
	calls := parseToolCalls(`{"tool_calls": [{"name": "git_status", "arguments": {}}]}`)
	if len(calls) != 1 || calls[0].Name != "git_status" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestParseToolCallsNone(t *testing.T) {
	for _, text := range []string{"", "plain answer", `[{"name": broken`} {
		if calls := parseToolCalls(text); len(calls) != 0 {
			t.Errorf("%q: expected no calls, got %+v", text, calls)
		}
	}
}

func TestRemoveToolCallJSON(t *testing.T) {
	got := removeToolCallJSON("Reading now.\n" + `[{"name": "read_file", "arguments": {}}]`)
	if got != "Reading now." {
		t.Errorf("got %q", got)
	}
}

func TestGollmBuildResponse(t *testing.T) {
	adapter := &GollmAdapter{provider: "ollama", model: "llama3.1"}

	resp := adapter.buildResponse(Request{}, "All done.")
	if resp.HasToolCalls() || resp.FinishReason.Reason != "stop" || resp.Content != "All done." {
		t.Errorf("unexpected plain response: %+v", resp)
	}
	if resp.Model != "llama3.1" || resp.Provider != "ollama" {
		t.Errorf("unexpected model/provider: %q/%q", resp.Model, resp.Provider)
	}

	resp = adapter.buildResponse(Request{Model: "other"}, `[{"name": "read_file", "arguments": {"filepath": "a"}}]`)
	if !resp.HasToolCalls() || resp.FinishReason.Reason != "tool_calls" {
		t.Errorf("expected tool calls, got %+v", resp)
	}
	if resp.Content != "" || resp.Model != "other" {
		t.Errorf("unexpected content/model: %q/%q", resp.Content, resp.Model)
	}
}

func TestNewGollmAdapterRequiresProvider(t *testing.T) {
	_, err := NewGollmAdapter(GollmConfig{})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	_, err = NewGollmAdapter(GollmConfig{Provider: "unknown-provider"})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for missing model, got %v", err)
	}
}

func TestEstimateTokens(t *testing.T) {
	req := Request{Messages: []Message{UserMessage("Hello world, this is a test message.")}}
	if tokens := estimateTokens(req); tokens <= 0 {
		t.Errorf("expected positive token estimate, got %d", tokens)
	}
	if tokens := estimateTokens(Request{}); tokens != 10 {
		t.Errorf("expected default token estimate of 10, got %d", tokens)
	}
}
