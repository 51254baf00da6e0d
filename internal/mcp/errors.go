package mcp

import (
	"errors"
	"fmt"
	"strings"
)

// ConnectionError reports a socket, DNS, or handshake failure reaching
// the MCP server.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("mcp connection to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("mcp connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a JSON-RPC level failure: either an error object
// returned by the server or a malformed response body.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mcp protocol error %d: %s", e.Code, e.Message)
}

// ToolExecutionError reports a failed tools/call, either as a JSON-RPC
// error response or an isError result payload.
type ToolExecutionError struct {
	Tool    string
	Code    int
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// serverNotInitializedCode is the JSON-RPC error code MCP servers use
// for requests received before (or after losing) the handshake.
const serverNotInitializedCode = -32002

// isRecoverable reports whether an error should trigger the session's
// single recovery cycle: connection-class failures and the semantic
// "server not initialized" error both indicate a backend restart.
func isRecoverable(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		if protoErr.Code == serverNotInitializedCode {
			return true
		}
		return strings.Contains(strings.ToLower(protoErr.Message), "server not initialized")
	}

	return false
}
