package agentloop

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/martinemde/codebuddy/gateway"
)

func quietConfig(maxIterations int) *SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.MaxIterations = maxIterations
	cfg.SystemPrompt = "You are a test assistant."
	cfg.EnableLoopDetection = false
	return &cfg
}

func TestRunCompletesAfterToolRoundTrip(t *testing.T) {
	gw := &scriptedGateway{responses: []*gateway.Response{
		toolResponse(call("call_1", "echo", map[string]any{"text": "hello"})),
		textResponse("The file says hello."),
	}}
	s := NewSession(gw, mustRegistry(echoTool()), quietConfig(10))
	defer s.Close()

	out, err := s.Run(context.Background(), "Read notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Complete() || out.Response != "The file says hello." || out.Iterations != 1 {
		t.Errorf("unexpected outcome %+v", out)
	}
	if s.State() != StateComplete {
		t.Errorf("expected COMPLETE, got %s", s.State())
	}

	msgs := s.Messages()
	roles := make([]gateway.Role, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	want := []gateway.Role{gateway.RoleSystem, gateway.RoleUser, gateway.RoleAssistant, gateway.RoleTool, gateway.RoleAssistant}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles = %v, want %v", roles, want)
		}
	}
	if msgs[3].ToolCallID != "call_1" || msgs[3].Content != "hello" {
		t.Errorf("unexpected tool message %+v", msgs[3])
	}

	// The second model call saw the tool result.
	second := gw.calls[1]
	if second[len(second)-1].Role != gateway.RoleTool {
		t.Error("model was not given the tool result")
	}
	if len(gw.toolDefs[0]) != 1 || gw.toolDefs[0][0].Name != "echo" {
		t.Errorf("tool schemas not advertised: %+v", gw.toolDefs[0])
	}
}

func TestToolMessagesFollowTheirAssistantTurn(t *testing.T) {
	gw := &scriptedGateway{responses: []*gateway.Response{
		toolResponse(
			call("a1", "echo", map[string]any{"text": "one"}),
			call("a2", "foo_bar", nil),
			call("a3", "echo", map[string]any{"text": "three"}),
		),
		toolResponse(call("b1", "echo", map[string]any{"text": "again"})),
		textResponse("done"),
	}}
	s := NewSession(gw, mustRegistry(echoTool()), quietConfig(10))
	if _, err := s.Run(context.Background(), "go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := s.Messages()
	for i, m := range msgs {
		if m.Role != gateway.RoleTool {
			continue
		}
		// Walk back to the assistant message that opened this batch.
		j := i - 1
		for j >= 0 && msgs[j].Role == gateway.RoleTool {
			j--
		}
		if j < 0 || msgs[j].Role != gateway.RoleAssistant {
			t.Fatalf("tool message %d is not preceded by an assistant turn", i)
		}
		pos := i - j - 1
		if pos >= len(msgs[j].ToolCalls) || msgs[j].ToolCalls[pos].ID != m.ToolCallID {
			t.Errorf("tool message %d (%s) out of order with its request", i, m.ToolCallID)
		}
	}
	if !strings.Contains(msgs[4].Content, "Unknown tool: foo_bar") {
		t.Errorf("expected unknown tool result, got %q", msgs[4].Content)
	}
}

func TestRunExhaustsAtIterationCap(t *testing.T) {
	gw := &scriptedGateway{repeat: toolResponse(call("c", "echo", map[string]any{"text": "x"}))}
	s := NewSession(gw, mustRegistry(echoTool()), quietConfig(2))

	out, err := s.Run(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("exhaustion must not be an error: %v", err)
	}
	if out.Status != OutcomeExhausted || out.Response != ExhaustedResponse || out.Iterations != 2 {
		t.Errorf("unexpected outcome %+v", out)
	}
	if gw.callCount() != 2 {
		t.Errorf("expected exactly 2 model calls, got %d", gw.callCount())
	}
	if s.State() != StateExhausted {
		t.Errorf("expected EXHAUSTED, got %s", s.State())
	}
	if out.Status.String() != "exhausted" {
		t.Errorf("unexpected status string %q", out.Status.String())
	}
}

func TestDefaultMaxIterations(t *testing.T) {
	gw := &scriptedGateway{repeat: toolResponse(call("c", "echo", map[string]any{"text": "x"}))}
	cfg := quietConfig(0)
	s := NewSession(gw, mustRegistry(echoTool()), cfg)
	out, err := s.Run(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Iterations != DefaultMaxIterations {
		t.Errorf("expected %d iterations, got %d", DefaultMaxIterations, out.Iterations)
	}
}

func TestGatewayErrorPropagates(t *testing.T) {
	authErr := &gateway.AuthenticationError{}
	gw := &scriptedGateway{
		responses: []*gateway.Response{toolResponse(call("c", "echo", map[string]any{"text": "x"}))},
		errs:      []error{nil, authErr},
	}
	s := NewSession(gw, mustRegistry(echoTool()), quietConfig(10))

	_, err := s.Run(context.Background(), "x")
	var target *gateway.AuthenticationError
	if !errors.As(err, &target) {
		t.Fatalf("expected wrapped AuthenticationError, got %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("session should be reusable after a gateway error, state %s", s.State())
	}

	// The tool round that did happen is still threaded correctly.
	msgs := s.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != gateway.RoleTool || last.ToolCallID != "c" {
		t.Errorf("unexpected last message %+v", last)
	}
}

func TestRunCancelledBeforeModelCall(t *testing.T) {
	gw := &scriptedGateway{repeat: textResponse("never")}
	s := NewSession(gw, nil, quietConfig(3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Run(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gw.callCount() != 0 {
		t.Error("no model call should be made after cancellation")
	}
}

func TestCancelDuringFinalRoundIsNotExhaustion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	aborting := NewFuncTool("abort", "cancels the request",
		ObjectSchema(nil),
		func(context.Context, map[string]any) (string, error) {
			cancel()
			return "stopped", nil
		})
	gw := &scriptedGateway{repeat: toolResponse(call("c1", "abort", nil), call("c2", "abort", nil))}
	s := NewSession(gw, mustRegistry(aborting), quietConfig(1))

	out, err := s.Run(ctx, "x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got outcome %+v err %v", out, err)
	}
	if out != nil {
		t.Errorf("expected no outcome, got %+v", out)
	}
	if s.State() != StateReady {
		t.Errorf("expected READY after cancellation, got %s", s.State())
	}

	msgs := s.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != gateway.RoleTool || last.ToolCallID != "c2" || !strings.HasPrefix(last.Content, "Cancelled:") {
		t.Errorf("remaining call should still get a result, got %+v", last)
	}
}

func TestChatKeepsHistory(t *testing.T) {
	gw := &scriptedGateway{responses: []*gateway.Response{textResponse("first"), textResponse("second")}}
	s := NewSession(gw, nil, quietConfig(3))

	if _, err := s.Chat(context.Background(), "one"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := s.Chat(context.Background(), "two")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Response != "second" {
		t.Errorf("unexpected response %q", out.Response)
	}

	msgs := s.Messages()
	systems := 0
	for _, m := range msgs {
		if m.Role == gateway.RoleSystem {
			systems++
		}
	}
	if systems != 1 || len(msgs) != 5 {
		t.Errorf("expected one system prompt and 5 messages, got %d system and %d total", systems, len(msgs))
	}

	// Run starts over.
	gw.responses = append(gw.responses, textResponse("fresh"))
	if _, err := s.Run(context.Background(), "three"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(s.Messages()); n != 3 {
		t.Errorf("Run should reset the conversation, got %d messages", n)
	}

	s.Reset()
	if len(s.Messages()) != 0 || s.State() != StateReady {
		t.Error("Reset should clear the conversation")
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	gw := &scriptedGateway{responses: []*gateway.Response{
		toolResponse(call("c", "echo", map[string]any{"text": "x"})),
		textResponse("ok"),
	}}
	s := NewSession(gw, mustRegistry(echoTool()), quietConfig(3))
	if _, err := s.Run(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := s.Messages()
	msgs[0].Content = "tampered"
	msgs[2].ToolCalls[0].Arguments["text"] = "tampered"
	fresh := s.Messages()
	if fresh[0].Content == "tampered" || fresh[2].ToolCalls[0].Arguments["text"] == "tampered" {
		t.Error("Messages must return a deep copy")
	}
}

func TestChatStreamDeliversFragments(t *testing.T) {
	gw := &scriptedGateway{
		responses: []*gateway.Response{
			toolResponse(call("c", "echo", map[string]any{"text": "x"})),
			textResponse("blocking answer"),
		},
		stream: fragments("Hel", "lo", " world"),
	}
	s := NewSession(gw, mustRegistry(echoTool()), quietConfig(5))

	var got []string
	out, err := s.ChatStream(context.Background(), "hi", func(f string) { got = append(got, f) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "|") != "Hel|lo| world" {
		t.Errorf("unexpected fragments %v", got)
	}
	if out.Response != "Hello world" || !out.Complete() || out.Iterations != 1 {
		t.Errorf("unexpected outcome %+v", out)
	}
	msgs := s.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != gateway.RoleAssistant || last.Content != "Hello world" {
		t.Errorf("streamed answer not appended: %+v", last)
	}
	if gw.streamCalls != 1 {
		t.Errorf("expected one stream call, got %d", gw.streamCalls)
	}
}

func TestChatStreamCancelKeepsPartialText(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gw := &scriptedGateway{
		responses: []*gateway.Response{textResponse("ignored")},
		stream: func(ctx context.Context) <-chan gateway.StreamEvent {
			ch := make(chan gateway.StreamEvent)
			go func() {
				defer close(ch)
				for _, f := range []string{"partial ", "answer"} {
					select {
					case ch <- gateway.StreamEvent{Type: gateway.StreamTextDelta, Delta: f}:
					case <-ctx.Done():
						return
					}
				}
				<-ctx.Done()
			}()
			return ch
		},
	}
	s := NewSession(gw, nil, quietConfig(5))

	_, err := s.ChatStream(ctx, "hi", func(f string) {
		if f == "answer" {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	msgs := s.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != gateway.RoleAssistant || last.Content != "partial answer" {
		t.Errorf("partial text not kept: %+v", last)
	}
	if s.State() != StateReady {
		t.Errorf("expected READY after cancellation, got %s", s.State())
	}
}

func TestChatStreamErrorKeepsPartialText(t *testing.T) {
	streamErr := &gateway.ServerError{}
	gw := &scriptedGateway{
		responses: []*gateway.Response{textResponse("ignored")},
		stream: func(ctx context.Context) <-chan gateway.StreamEvent {
			ch := make(chan gateway.StreamEvent, 2)
			ch <- gateway.StreamEvent{Type: gateway.StreamTextDelta, Delta: "half"}
			ch <- gateway.StreamEvent{Type: gateway.StreamError, Err: streamErr}
			close(ch)
			return ch
		},
	}
	s := NewSession(gw, nil, quietConfig(5))

	_, err := s.ChatStream(context.Background(), "hi", nil)
	var target *gateway.ServerError
	if !errors.As(err, &target) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	msgs := s.Messages()
	if last := msgs[len(msgs)-1]; last.Content != "half" {
		t.Errorf("partial text not kept: %+v", last)
	}
}

func TestLoopDetectionInjectsSteering(t *testing.T) {
	gw := &scriptedGateway{repeat: toolResponse(call("c", "echo", map[string]any{"text": "same"}))}
	cfg := quietConfig(5)
	cfg.EnableLoopDetection = true
	cfg.LoopDetectionWindow = 3
	s := NewSession(gw, mustRegistry(echoTool()), cfg)

	if _, err := s.Run(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, m := range s.Messages() {
		if m.Role == gateway.RoleUser && strings.HasPrefix(m.Content, "Loop detected") {
			found = true
		}
	}
	if !found {
		t.Error("expected a loop detection steering note")
	}
}

func TestSystemPromptOverride(t *testing.T) {
	gw := &scriptedGateway{repeat: textResponse("ok")}
	s := NewSession(gw, mustRegistry(echoTool()), quietConfig(1))
	if _, err := s.Run(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := s.Messages()[0]
	if first.Role != gateway.RoleSystem || !strings.HasPrefix(first.Content, "You are a test assistant.") {
		t.Errorf("unexpected system prompt %q", first.Content)
	}
	if !strings.Contains(first.Content, "Available tools: echo") {
		t.Errorf("system prompt should list tools, got %q", first.Content)
	}
}
