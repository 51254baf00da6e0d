// Package mcp implements the client side of the Model Context Protocol:
// JSON-RPC 2.0 over HTTP, the initialize/initialized handshake, and typed
// access to tools/list and tools/call.
//
// A Session owns the handshake state machine and performs at most one
// recovery cycle (reconnect + replay) when a request fails with a
// connection-class error or the server reports it is not initialized,
// which indicates a backend restart.
//
// This implementation covers the client/host side only; mcpagent does
// not act as an MCP server.
package mcp
