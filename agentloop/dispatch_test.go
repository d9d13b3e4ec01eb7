package agentloop

import (
	"context"
	"strings"
	"testing"

	"github.com/martinemde/codebuddy/gateway"
)

func TestExecuteOneSuccess(t *testing.T) {
	d := NewDispatcher(mustRegistry(echoTool()))
	res := d.ExecuteOne(context.Background(), call("call_1", "echo", map[string]any{"text": "hello"}))
	if !res.Success || res.Result != "hello" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.ToolCallID != "call_1" || res.ToolName != "echo" {
		t.Errorf("call id and name must be echoed back, got %+v", res)
	}
}

func TestExecuteOneUnknownTool(t *testing.T) {
	d := NewDispatcher(mustRegistry(echoTool()))
	res := d.ExecuteOne(context.Background(), call("call_9", "foo_bar", nil))
	if res.Success {
		t.Fatal("unknown tool must fail")
	}
	if res.Result != "Unknown tool: foo_bar" || res.ToolCallID != "call_9" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestExecuteOnePanicIsContained(t *testing.T) {
	d := NewDispatcher(mustRegistry(panicTool{}))
	res := d.ExecuteOne(context.Background(), call("c", "explode", nil))
	if res.Success {
		t.Fatal("panic must become a failure")
	}
	if !strings.Contains(res.Result, "Tool error (explode)") || !strings.Contains(res.Result, "kaboom") {
		t.Errorf("unexpected result %q", res.Result)
	}
}

func TestExecuteOneValidation(t *testing.T) {
	d := NewDispatcher(mustRegistry(echoTool()), WithSchemaValidation(true))
	res := d.ExecuteOne(context.Background(), call("c", "echo", map[string]any{}))
	if res.Success || !strings.HasPrefix(res.Result, "Invalid arguments for echo") {
		t.Errorf("expected validation failure, got %+v", res)
	}

	raw := gateway.ToolCall{ID: "c2", Name: "echo", RawArguments: "{not json"}
	res = d.ExecuteOne(context.Background(), raw)
	if res.Success || !strings.HasPrefix(res.Result, "Invalid arguments for echo") {
		t.Errorf("expected failure for unparsable arguments, got %+v", res)
	}
}

func TestExecuteOneRunsToolWithUnusableSchema(t *testing.T) {
	odd := NewFuncTool("odd", "schema the validator cannot compile",
		map[string]any{"type": 5},
		func(context.Context, map[string]any) (string, error) { return "ran", nil })
	d := NewDispatcher(mustRegistry(odd), WithSchemaValidation(true))
	res := d.ExecuteOne(context.Background(), call("c", "odd", nil))
	if !res.Success || res.Result != "ran" {
		t.Errorf("expected the tool to run unvalidated, got %+v", res)
	}
}

func TestExecuteOneTruncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	d := NewDispatcher(mustRegistry(echoTool()), WithCharLimits(map[string]int{"echo": 100}))
	res := d.ExecuteOne(context.Background(), call("c", "echo", map[string]any{"text": long}))
	if !res.Success || !strings.Contains(res.Result, "truncated") || len(res.Result) >= len(long) {
		t.Errorf("expected truncated output, got %d chars", len(res.Result))
	}
}

func TestExecuteAllOrderAndCount(t *testing.T) {
	var log []string
	reg := mustRegistry(
		&recordingTool{name: "first", log: &log},
		&recordingTool{name: "second", log: &log},
		panicTool{},
	)
	d := NewDispatcher(reg)
	calls := []gateway.ToolCall{
		call("a", "second", nil),
		call("b", "missing", nil),
		call("c", "explode", nil),
		call("d", "first", nil),
		call("e", "second", nil),
	}

	results := d.ExecuteAll(context.Background(), calls)
	if len(results) != len(calls) {
		t.Fatalf("expected %d results, got %d", len(calls), len(results))
	}
	for i, r := range results {
		if r.ToolCallID != calls[i].ID {
			t.Errorf("result %d: id %q, want %q", i, r.ToolCallID, calls[i].ID)
		}
	}
	wantSuccess := []bool{true, false, false, true, true}
	for i, want := range wantSuccess {
		if results[i].Success != want {
			t.Errorf("result %d: success %v, want %v", i, results[i].Success, want)
		}
	}
	if strings.Join(log, ",") != "second,first,second" {
		t.Errorf("tools ran out of order: %v", log)
	}
}

func TestExecuteAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran []string
	cancelling := NewFuncTool("cancel", "", nil, func(ctx context.Context, args map[string]any) (string, error) {
		ran = append(ran, "cancel")
		cancel()
		return "cancelled the rest", nil
	})
	d := NewDispatcher(mustRegistry(cancelling, echoTool()))

	results := d.ExecuteAll(ctx, []gateway.ToolCall{
		call("1", "cancel", nil),
		call("2", "echo", map[string]any{"text": "never"}),
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success {
		t.Errorf("first call should have completed: %+v", results[0])
	}
	if results[1].Success || !strings.HasPrefix(results[1].Result, "Cancelled:") || results[1].ToolCallID != "2" {
		t.Errorf("second call should be cancelled: %+v", results[1])
	}
	if len(ran) != 1 {
		t.Errorf("expected one execution, got %v", ran)
	}
}

func TestExecuteOneEmitsEvents(t *testing.T) {
	emitter := NewEventEmitter("s", 8)
	d := NewDispatcher(mustRegistry(echoTool()), WithEmitter(emitter))
	d.ExecuteOne(context.Background(), call("c", "echo", map[string]any{"text": "hi"}))
	emitter.Close()

	var kinds []EventKind
	for ev := range emitter.Events() {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[0] != EventToolCallStart || kinds[1] != EventToolCallEnd {
		t.Errorf("unexpected events %v", kinds)
	}
}
