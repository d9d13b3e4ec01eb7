// Package toolhost runs tools out of process over the Model Context Protocol.
//
// On the client side, Connect and ConnectCommand open a session to an MCP
// server and RemoteTools wraps its tools as agentloop.Tools. On the server
// side, NewServer and Serve publish an agentloop.Registry. The codebuddy-mcp
// command uses them to host the built-in tools.
package toolhost
