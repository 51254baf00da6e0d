package mcp

import "context"

// Transport is the interface for MCP server communication. Implementations
// handle framing and delivery of JSON-RPC messages over a specific
// transport; the HTTP variant pairs one request with one HTTP call.
type Transport interface {
	// Send sends a JSON-RPC request and returns the raw response.
	// Correlation happens through the HTTP request/response pairing.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Notify sends a JSON-RPC notification. Success is signaled by an
	// empty-body 2xx status, not by a JSON-RPC result.
	Notify(ctx context.Context, notif *Notification) error

	// Health performs the plain (non-JSON-RPC) health probe and returns
	// the decoded status document.
	Health(ctx context.Context) (map[string]any, error)

	// Close shuts down the transport and releases resources.
	Close() error
}
