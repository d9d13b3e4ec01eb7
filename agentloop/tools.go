package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/martinemde/codebuddy/gateway"
)

// ToolStatus reports whether a tool invocation succeeded.
type ToolStatus string

const (
	StatusSuccess ToolStatus = "success"
	StatusError   ToolStatus = "error"
)

// ToolResult is what a tool hands back to the loop. Tools report failures as
// an error-status result rather than returning a Go error.
type ToolResult struct {
	Content string     `json:"content"`
	Status  ToolStatus `json:"status"`
}

// Success builds a success-status result.
func Success(text string) ToolResult {
	return ToolResult{Content: text, Status: StatusSuccess}
}

// Failure builds an error-status result.
func Failure(text string) ToolResult {
	return ToolResult{Content: text, Status: StatusError}
}

// OK reports whether the result has success status.
func (r ToolResult) OK() bool { return r.Status == StatusSuccess }

// Tool is a named, schema-described capability the model may invoke.
type Tool interface {
	Name() string
	Description() string
	// InputSchema returns a JSON Schema object describing the arguments.
	InputSchema() map[string]any
	Execute(ctx context.Context, args map[string]any) ToolResult
}

// ToolFunc is the plain function form of a tool body.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// FuncTool adapts a ToolFunc into a Tool.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	Schema          map[string]any
	Fn              ToolFunc
}

var _ Tool = (*FuncTool)(nil)

// NewFuncTool creates a FuncTool.
func NewFuncTool(name, description string, schema map[string]any, fn ToolFunc) *FuncTool {
	return &FuncTool{ToolName: name, ToolDescription: description, Schema: schema, Fn: fn}
}

func (t *FuncTool) Name() string        { return t.ToolName }
func (t *FuncTool) Description() string { return t.ToolDescription }

func (t *FuncTool) InputSchema() map[string]any {
	if t.Schema == nil {
		return ObjectSchema(nil)
	}
	return t.Schema
}

// Execute runs the function. An error becomes "Error: <msg>" and an empty
// output becomes "No output".
func (t *FuncTool) Execute(ctx context.Context, args map[string]any) ToolResult {
	out, err := t.Fn(ctx, args)
	if err != nil {
		return Failure("Error: " + err.Error())
	}
	if out == "" {
		out = "No output"
	}
	return Success(out)
}

// Registry is an immutable name-to-tool table built once per session.
type Registry struct {
	tools map[string]Tool
	names []string
}

// NewRegistry builds a registry. Empty and duplicate names are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if tool == nil {
			return nil, fmt.Errorf("nil tool")
		}
		name := tool.Name()
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		r.tools[name] = tool
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the tool schemas advertised to the model, sorted by name.
func (r *Registry) Definitions() []gateway.ToolDefinition {
	if r == nil {
		return nil
	}
	defs := make([]gateway.ToolDefinition, 0, len(r.names))
	for _, name := range r.names {
		t := r.tools[name]
		defs = append(defs, gateway.ToolDefinition{
			Name:        name,
			Description: t.Description(),
			Parameters:  t.InputSchema(),
		})
	}
	return defs
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Tools returns the registered tools in name order.
func (r *Registry) Tools() []Tool {
	if r == nil {
		return nil
	}
	out := make([]Tool, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.tools[name])
	}
	return out
}

// Merge returns a new registry holding r's tools plus extra. r is unchanged.
func (r *Registry) Merge(extra ...Tool) (*Registry, error) {
	return NewRegistry(append(r.Tools(), extra...)...)
}

// ObjectSchema builds a JSON Schema object with the given properties and
// required names.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Prop builds a single schema property.
func Prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument from parsed tool arguments.
func GetIntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument from parsed tool arguments.
func GetBoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// RequireString returns a non-empty string argument or an error naming it.
func RequireString(args map[string]any, key string) (string, error) {
	s, ok := GetStringArg(args, key)
	if !ok || s == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return s, nil
}
