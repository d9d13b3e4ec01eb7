// Package tools implements the built-in coding tools: file and directory
// operations, search, shell and Python execution, git and HTTP.
//
// Every tool is bound to a Workspace, and every path argument is checked by
// the workspace's sandbox.Validator before it is used. Tools report problems
// as failed agentloop.ToolResults so the model can read them and recover.
package tools
