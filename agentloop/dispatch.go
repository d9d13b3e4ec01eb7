package agentloop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/sirupsen/logrus"

	"github.com/martinemde/codebuddy/gateway"
	"github.com/martinemde/codebuddy/logger"
)

// ToolExecutionResult is the outcome of one tool call. It is produced for
// every call, including unknown tools, panics and cancellations.
type ToolExecutionResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Result     string `json:"result"`
	Success    bool   `json:"success"`
}

// Dispatcher runs tool calls against a registry, one at a time, and turns
// every failure into a ToolExecutionResult.
type Dispatcher struct {
	registry   *Registry
	emitter    *EventEmitter
	log        *logrus.Entry
	charLimits map[string]int
	validate   bool
	// schemas holds the compiled input schemas when validation is on.
	schemas map[string]*jsonschema.Resolved
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithEmitter publishes tool_call_start and tool_call_end events.
func WithEmitter(e *EventEmitter) DispatcherOption {
	return func(d *Dispatcher) { d.emitter = e }
}

// WithDispatchLogger replaces the default "dispatch" logger.
func WithDispatchLogger(l *logrus.Entry) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithCharLimits overrides per-tool output character limits.
func WithCharLimits(limits map[string]int) DispatcherOption {
	return func(d *Dispatcher) { d.charLimits = limits }
}

// WithSchemaValidation checks arguments against each tool's input schema
// before executing it.
func WithSchemaValidation(enabled bool) DispatcherOption {
	return func(d *Dispatcher) { d.validate = enabled }
}

// NewDispatcher creates a Dispatcher over reg.
func NewDispatcher(reg *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		log:      logger.Named("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.validate && d.registry != nil {
		d.compileSchemas()
	}
	return d
}

// compileSchemas resolves every tool schema once. A tool whose schema cannot
// be compiled runs unvalidated.
func (d *Dispatcher) compileSchemas() {
	d.schemas = make(map[string]*jsonschema.Resolved, d.registry.Len())
	for _, tool := range d.registry.Tools() {
		schema := tool.InputSchema()
		if schema == nil {
			continue
		}
		rs, err := CompileSchema(schema)
		if err != nil {
			d.log.WithError(err).WithField("tool", tool.Name()).Warn("input schema not usable; arguments will not be validated")
			continue
		}
		d.schemas[tool.Name()] = rs
	}
}

// Registry returns the registry the dispatcher looks tools up in.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// ExecuteOne runs a single tool call. It never panics and never returns an
// error; the call id is echoed back unchanged.
func (d *Dispatcher) ExecuteOne(ctx context.Context, call gateway.ToolCall) ToolExecutionResult {
	start := time.Now()
	d.emitter.Emit(EventToolCallStart, map[string]any{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"arguments": call.Arguments,
	})

	res, full := d.execute(ctx, call)

	entry := d.log.WithFields(logrus.Fields{
		"tool":     call.Name,
		"call_id":  call.ID,
		"success":  res.Success,
		"duration": time.Since(start).Round(time.Millisecond),
	})
	if res.Success {
		entry.WithField("args", sanitizeForLog(call.ArgumentsJSON())).Info("tool call")
	} else {
		entry.WithField("result", sanitizeForLog(res.Result)).Warn("tool call failed")
	}

	d.emitter.Emit(EventToolCallEnd, map[string]any{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"success":   res.Success,
		"output":    full,
	})
	return res
}

// execute returns the result handed to the model and the untruncated text.
func (d *Dispatcher) execute(ctx context.Context, call gateway.ToolCall) (res ToolExecutionResult, full string) {
	res = ToolExecutionResult{ToolCallID: call.ID, ToolName: call.Name}

	tool, ok := d.registry.Lookup(call.Name)
	if !ok {
		res.Result = fmt.Sprintf("Unknown tool: %s", call.Name)
		return res, res.Result
	}

	args := call.Arguments
	if args == nil {
		if call.RawArguments != "" {
			res.Result = fmt.Sprintf("Invalid arguments for %s: arguments are not a JSON object", call.Name)
			return res, res.Result
		}
		args = map[string]any{}
	}
	if rs := d.schemas[call.Name]; rs != nil {
		if err := validateResolved(rs, args); err != nil {
			res.Result = fmt.Sprintf("Invalid arguments for %s: %v", call.Name, err)
			return res, res.Result
		}
	}

	out := runGuarded(ctx, tool, args)
	res.Success = out.OK()
	res.Result = TruncateToolOutput(out.Content, call.Name, d.charLimits)
	return res, out.Content
}

// runGuarded executes tool and converts a panic into a failure result.
func runGuarded(ctx context.Context, tool Tool, args map[string]any) (out ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			out = Failure(fmt.Sprintf("Tool error (%s): %v", tool.Name(), r))
		}
	}()
	return tool.Execute(ctx, args)
}

// ExecuteAll runs calls strictly in order and returns exactly one result per
// call. Once ctx is cancelled the remaining calls are not started; each gets
// a failure result instead.
func (d *Dispatcher) ExecuteAll(ctx context.Context, calls []gateway.ToolCall) []ToolExecutionResult {
	results := make([]ToolExecutionResult, 0, len(calls))
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			results = append(results, ToolExecutionResult{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Result:     fmt.Sprintf("Cancelled: %v", err),
			})
			continue
		}
		results = append(results, d.ExecuteOne(ctx, call))
	}
	return results
}

func sanitizeForLog(s string) string {
	return logger.Truncate(s, 200)
}
