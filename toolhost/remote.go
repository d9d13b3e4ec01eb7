package toolhost

import (
	"context"
	"fmt"

	"github.com/martinemde/codebuddy/agentloop"
	"github.com/martinemde/codebuddy/gateway"
)

// RemoteTool proxies one tool living in a tool host.
type RemoteTool struct {
	def     gateway.ToolDefinition
	session Session
}

var _ agentloop.Tool = (*RemoteTool)(nil)

func (t *RemoteTool) Name() string                { return t.def.Name }
func (t *RemoteTool) Description() string         { return t.def.Description }
func (t *RemoteTool) InputSchema() map[string]any { return t.def.Parameters }

// Execute forwards the call. A transport error becomes a failure result.
func (t *RemoteTool) Execute(ctx context.Context, args map[string]any) agentloop.ToolResult {
	res, err := t.session.CallTool(ctx, t.def.Name, args)
	if err != nil {
		return agentloop.Failure("Error: " + err.Error())
	}
	return res
}

// RemoteTools lists the session's tools and wraps each one as an
// agentloop.Tool.
func RemoteTools(ctx context.Context, session Session) ([]agentloop.Tool, error) {
	defs, err := session.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	tools := make([]agentloop.Tool, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("toolhost: remote tool with empty name")
		}
		if def.Parameters == nil {
			def.Parameters = agentloop.ObjectSchema(nil)
		}
		tools = append(tools, &RemoteTool{def: def, session: session})
	}
	return tools, nil
}

// RemoteRegistry builds a registry from every tool the session offers.
func RemoteRegistry(ctx context.Context, session Session) (*agentloop.Registry, error) {
	tools, err := RemoteTools(ctx, session)
	if err != nil {
		return nil, err
	}
	return agentloop.NewRegistry(tools...)
}
