package toolhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/martinemde/codebuddy/agentloop"
	"github.com/martinemde/codebuddy/gateway"
	"github.com/martinemde/codebuddy/logger"
)

// ClientName and Version identify codebuddy to MCP servers.
const (
	ClientName = "codebuddy"
	Version    = "0.1.0"
)

// Session is the tool-host contract the agent needs: list the tools, call one.
type Session interface {
	ListTools(ctx context.Context) ([]gateway.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (agentloop.ToolResult, error)
}

// ClientSession is a Session backed by an MCP client connection.
type ClientSession struct {
	session *mcp.ClientSession
	log     *logrus.Entry
}

var _ Session = (*ClientSession)(nil)

// Connect opens an MCP session over transport.
func Connect(ctx context.Context, transport mcp.Transport) (*ClientSession, error) {
	if transport == nil {
		return nil, errors.New("toolhost: transport is required")
	}
	client := mcp.NewClient(&mcp.Implementation{Name: ClientName, Version: Version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("toolhost: connect: %w", err)
	}
	return &ClientSession{session: session, log: logger.Named("toolhost")}, nil
}

// ConnectCommand starts command as a subprocess MCP server speaking over its
// stdin and stdout.
func ConnectCommand(ctx context.Context, command string, args ...string) (*ClientSession, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("toolhost: command is empty")
	}
	cmd := exec.CommandContext(ctx, command, args...)
	cs, err := Connect(ctx, &mcp.CommandTransport{Command: cmd})
	if err != nil {
		return nil, err
	}
	cs.log.WithField("command", command).Info("connected to tool host")
	return cs, nil
}

// ListTools returns the server's tools as model-facing definitions.
func (c *ClientSession) ListTools(ctx context.Context) ([]gateway.ToolDefinition, error) {
	var defs []gateway.ToolDefinition
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("toolhost: list tools: %w", err)
		}
		defs = append(defs, gateway.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schemaMap(tool.InputSchema),
		})
	}
	return defs, nil
}

// CallTool invokes a remote tool. Transport problems are returned as errors;
// a tool that ran and failed comes back as a failure result.
func (c *ClientSession) CallTool(ctx context.Context, name string, args map[string]any) (agentloop.ToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		c.log.WithError(err).WithField("tool", name).Warn("remote call failed")
		return agentloop.ToolResult{}, fmt.Errorf("toolhost: call %s: %w", name, err)
	}
	text := contentText(res.Content)
	if res.IsError {
		return agentloop.Failure(text), nil
	}
	return agentloop.Success(text), nil
}

// Close ends the session and, for command transports, the subprocess.
func (c *ClientSession) Close() error {
	if c == nil || c.session == nil {
		return nil
	}
	return c.session.Close()
}

func contentText(content []mcp.Content) string {
	var parts []string
	for _, item := range content {
		switch v := item.(type) {
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image: %s]", v.MIMEType))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio: %s]", v.MIMEType))
		}
	}
	return strings.Join(parts, "\n")
}

// schemaMap normalizes whatever the SDK decoded into a JSON object map.
func schemaMap(schema any) map[string]any {
	switch v := schema.(type) {
	case nil:
		return agentloop.ObjectSchema(nil)
	case map[string]any:
		return v
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return agentloop.ObjectSchema(nil)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return agentloop.ObjectSchema(nil)
	}
	return m
}
