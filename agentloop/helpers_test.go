package agentloop

import (
	"context"
	"errors"
	"sync"

	"github.com/martinemde/codebuddy/gateway"
)

// scriptedGateway replays canned Chat responses in order and records every
// request it receives.
type scriptedGateway struct {
	mu        sync.Mutex
	responses []*gateway.Response
	errs      []error
	calls     [][]gateway.Message
	toolDefs  [][]gateway.ToolDefinition
	// repeat, when set, is returned once the script runs out.
	repeat *gateway.Response
	// stream produces the channel returned by ChatStream.
	stream      func(ctx context.Context) <-chan gateway.StreamEvent
	streamErr   error
	streamCalls int
}

func (g *scriptedGateway) Chat(ctx context.Context, messages []gateway.Message, tools []gateway.ToolDefinition) (*gateway.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := len(g.calls)
	g.calls = append(g.calls, messages)
	g.toolDefs = append(g.toolDefs, tools)
	if idx < len(g.errs) && g.errs[idx] != nil {
		return nil, g.errs[idx]
	}
	if idx < len(g.responses) {
		return g.responses[idx], nil
	}
	if g.repeat != nil {
		return g.repeat, nil
	}
	return nil, errors.New("script exhausted")
}

func (g *scriptedGateway) ChatStream(ctx context.Context, messages []gateway.Message) (<-chan gateway.StreamEvent, error) {
	g.mu.Lock()
	g.streamCalls++
	g.calls = append(g.calls, messages)
	g.mu.Unlock()
	if g.streamErr != nil {
		return nil, g.streamErr
	}
	return g.stream(ctx), nil
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func textResponse(text string) *gateway.Response {
	return &gateway.Response{Content: text, FinishReason: gateway.FinishReason{Reason: "stop"}}
}

func toolResponse(calls ...gateway.ToolCall) *gateway.Response {
	return &gateway.Response{ToolCalls: calls, FinishReason: gateway.FinishReason{Reason: "tool_calls"}}
}

func call(id, name string, args map[string]any) gateway.ToolCall {
	if args == nil {
		args = map[string]any{}
	}
	return gateway.ToolCall{ID: id, Name: name, Arguments: args}
}

// fragments returns a stream function that emits each text as a delta then
// finishes.
func fragments(texts ...string) func(ctx context.Context) <-chan gateway.StreamEvent {
	return func(ctx context.Context) <-chan gateway.StreamEvent {
		ch := make(chan gateway.StreamEvent, len(texts)+1)
		for _, t := range texts {
			ch <- gateway.StreamEvent{Type: gateway.StreamTextDelta, Delta: t}
		}
		ch <- gateway.StreamEvent{Type: gateway.StreamFinish}
		close(ch)
		return ch
	}
}

// echoTool returns its "text" argument.
func echoTool() Tool {
	return NewFuncTool("echo", "Echo text back",
		ObjectSchema(map[string]any{"text": Prop("string", "Text to echo")}, "text"),
		func(ctx context.Context, args map[string]any) (string, error) {
			s, _ := GetStringArg(args, "text")
			return s, nil
		})
}

// recordingTool appends its name to a shared log when executed.
type recordingTool struct {
	name string
	log  *[]string
}

func (t *recordingTool) Name() string                { return t.name }
func (t *recordingTool) Description() string         { return "records calls" }
func (t *recordingTool) InputSchema() map[string]any { return ObjectSchema(nil) }
func (t *recordingTool) Execute(ctx context.Context, args map[string]any) ToolResult {
	*t.log = append(*t.log, t.name)
	return Success(t.name + " ok")
}

type panicTool struct{}

func (panicTool) Name() string                { return "explode" }
func (panicTool) Description() string         { return "panics" }
func (panicTool) InputSchema() map[string]any { return ObjectSchema(nil) }
func (panicTool) Execute(ctx context.Context, args map[string]any) ToolResult {
	panic("kaboom")
}

func mustRegistry(tools ...Tool) *Registry {
	reg, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return reg
}
