package toolhost

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/martinemde/codebuddy/agentloop"
	"github.com/martinemde/codebuddy/gateway"
	"github.com/martinemde/codebuddy/logger"
)

// NewServer exposes every tool in reg over MCP. Calls run through an
// agentloop.Dispatcher, so the server applies the same failure containment
// and output truncation as an in-process session.
func NewServer(reg *agentloop.Registry, name, version string) *mcp.Server {
	log := logger.Named("toolhost")
	dispatcher := agentloop.NewDispatcher(reg, agentloop.WithSchemaValidation(true))
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)

	for _, tool := range reg.Tools() {
		toolName := tool.Name()
		server.AddTool(&mcp.Tool{
			Name:        toolName,
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			call := gateway.ToolCall{ID: "mcp_" + uuid.NewString(), Name: toolName}
			args, err := decodeArguments(req.Params.Arguments)
			if err != nil {
				call.RawArguments = string(req.Params.Arguments)
			} else {
				call.Arguments = args
			}
			res := dispatcher.ExecuteOne(ctx, call)
			log.WithField("tool", toolName).WithField("success", res.Success).Debug("served tool call")
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: res.Result}},
				IsError: !res.Success,
			}, nil
		})
	}
	log.WithField("tools", reg.Len()).Info("tool host ready")
	return server
}

// Serve runs an MCP server for reg on transport until ctx ends or the client
// disconnects.
func Serve(ctx context.Context, reg *agentloop.Registry, transport mcp.Transport) error {
	server := NewServer(reg, ClientName, Version)
	if err := server.Run(ctx, transport); err != nil && ctx.Err() == nil {
		return fmt.Errorf("toolhost: serve: %w", err)
	}
	return nil
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
