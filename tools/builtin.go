package tools

import (
	"github.com/martinemde/codebuddy/agentloop"
)

// Builtin returns every built-in tool bound to ws.
func Builtin(ws *Workspace) []agentloop.Tool {
	return []agentloop.Tool{
		ws.ReadFile(),
		ws.WriteFile(),
		ws.EditFile(),
		ws.DeleteFile(),
		ws.MoveFile(),
		ws.CopyFile(),
		ws.CreateDirectory(),
		ws.ListDirectory(),
		ws.DeleteDirectory(),
		ws.DirectoryTree(),
		ws.SearchInFiles(),
		ws.FindFiles(),
		ws.RunCommand(),
		ws.RunPython(),
		ws.GitStatus(),
		ws.GitDiff(),
		ws.GitLog(),
		ws.Git(),
		ws.HTTPRequest(),
	}
}

// NewRegistry builds a registry of the built-in tools plus any extras, such
// as tools proxied from an MCP server.
func NewRegistry(ws *Workspace, extra ...agentloop.Tool) (*agentloop.Registry, error) {
	return agentloop.NewRegistry(append(Builtin(ws), extra...)...)
}
