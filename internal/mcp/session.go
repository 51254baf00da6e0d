package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"mcpagent/internal/buildinfo"
)

// protocolVersion is the MCP protocol version we advertise during initialization.
const protocolVersion = "2024-11-05"

// SessionState tracks where a session is in its lifecycle. Transitions
// only move forward, except StateError → StateDisconnected on an
// explicit Reset.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateInitialized
	StateError
)

// String returns the lowercase state name.
func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateInitialized:
		return "initialized"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ToolDescriptor is an MCP tool as returned by tools/list. Descriptors
// are immutable once fetched.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ContentBlock is a single content item in a tools/call response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerInfo identifies the remote server, as reported in the
// initialize response.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// callToolResult is the result payload of a tools/call response.
type callToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// toolsListResult is the result payload of a tools/list response.
type toolsListResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// initializeResult is the full initialize response result.
type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
	Capabilities    map[string]any `json:"capabilities"`
}

// Session owns the MCP handshake and request lifecycle against one tool
// server. It is created disconnected; Connect performs the health probe
// plus the initialize/initialized handshake, and requests made through
// it get at most one recovery cycle when the server restarts underneath.
type Session struct {
	transport Transport
	logger    *slog.Logger

	mu           sync.RWMutex
	state        SessionState
	protoVersion string
	serverInfo   ServerInfo
	capabilities map[string]any
}

// NewSession creates a session over the given transport. The session
// starts in StateDisconnected; call Connect before issuing requests.
func NewSession(transport Transport, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		transport: transport,
		logger:    logger,
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ServerInfo returns the server identity captured during the handshake.
func (s *Session) ServerInfo() ServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverInfo
}

// Capabilities returns the capabilities the server advertised during
// the handshake.
func (s *Session) Capabilities() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capabilities
}

// Connect performs the health probe and the MCP handshake: an
// initialize request followed by the initialized notification. The
// session reaches StateInitialized only when all three steps succeed;
// any failure, including a rejected notification, leaves it in
// StateError.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateConnecting)

	if _, err := s.transport.Health(ctx); err != nil {
		s.setState(StateError)
		return fmt.Errorf("health probe: %w", err)
	}

	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "mcpagent",
			"version": buildinfo.Version,
		},
	}

	resp, err := s.request(ctx, "initialize", params)
	if err != nil {
		s.setState(StateError)
		return fmt.Errorf("initialize: %w", err)
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		s.setState(StateError)
		return &ProtocolError{Message: fmt.Sprintf("malformed initialize result: %v", err)}
	}

	if result.ProtocolVersion != protocolVersion {
		s.logger.Warn("protocol version mismatch",
			"client", protocolVersion,
			"server", result.ProtocolVersion,
		)
	}

	// The handshake is complete only once the server accepts the
	// initialized notification.
	if err := s.transport.Notify(ctx, NewNotification("notifications/initialized", nil)); err != nil {
		s.setState(StateError)
		return fmt.Errorf("send initialized notification: %w", err)
	}

	s.mu.Lock()
	s.state = StateInitialized
	s.protoVersion = result.ProtocolVersion
	s.serverInfo = result.ServerInfo
	s.capabilities = result.Capabilities
	s.mu.Unlock()

	s.logger.Info("MCP session initialized",
		"server_name", result.ServerInfo.Name,
		"server_version", result.ServerInfo.Version,
		"protocol_version", result.ProtocolVersion,
	)

	return nil
}

// ListTools calls tools/list and returns the tool descriptors in server
// order. Catalog caching lives in the tools.Registry, not here.
func (s *Session) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := s.send(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}

	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("malformed tools/list result: %v", err)}
	}

	s.logger.Debug("listed MCP tools", "count", len(result.Tools))
	return result.Tools, nil
}

// CallTool invokes a tool by name with the given arguments. The result
// is extracted from the response content blocks as a single string;
// non-text blocks are described inline (e.g., "[image]"). A JSON-RPC
// error response or an isError result yields a ToolExecutionError.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	params := map[string]any{
		"name":      name,
		"arguments": args,
	}

	resp, err := s.send(ctx, "tools/call", params)
	if err != nil {
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			return "", &ToolExecutionError{Tool: name, Code: protoErr.Code, Message: protoErr.Message}
		}
		return "", fmt.Errorf("tools/call %s: %w", name, err)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", &ProtocolError{Message: fmt.Sprintf("malformed tools/call result: %v", err)}
	}

	text := extractText(result.Content)

	if result.IsError {
		return "", &ToolExecutionError{Tool: name, Message: text}
	}

	return text, nil
}

// Health performs the plain health probe without touching session state.
func (s *Session) Health(ctx context.Context) (map[string]any, error) {
	return s.transport.Health(ctx)
}

// Reset moves an errored session back to StateDisconnected so it can be
// connected again. It is the only backward state transition.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDisconnected
	s.serverInfo = ServerInfo{}
	s.capabilities = nil
}

// Close shuts down the session and its transport.
func (s *Session) Close() error {
	s.setState(StateDisconnected)
	return s.transport.Close()
}

// send issues a JSON-RPC request with the session's recovery protocol:
// a connection-class or "server not initialized" failure triggers
// exactly one reset + reconnect + replay before surfacing.
func (s *Session) send(ctx context.Context, method string, params any) (*Response, error) {
	resp, err := s.request(ctx, method, params)
	if err == nil {
		return resp, nil
	}

	if !isRecoverable(err) {
		return nil, err
	}

	s.logger.Warn("server restart suspected, attempting session recovery",
		"method", method,
		"error", err,
	)

	s.Reset()
	if rerr := s.transport.Close(); rerr != nil {
		s.logger.Debug("transport close during recovery", "error", rerr)
	}
	if rerr := s.Connect(ctx); rerr != nil {
		return nil, fmt.Errorf("session recovery failed: %w", err)
	}

	s.logger.Info("session recovered, replaying request", "method", method)
	return s.request(ctx, method, params)
}

// request issues one JSON-RPC request without recovery and maps a
// JSON-RPC error object to a ProtocolError.
func (s *Session) request(ctx context.Context, method string, params any) (*Response, error) {
	req := NewRequest(uuid.NewString(), method, params)

	resp, err := s.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, &ProtocolError{Code: resp.Error.Code, Message: resp.Error.Message}
	}

	return resp, nil
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// extractText joins all text content blocks into a single string.
// Non-text blocks are represented as inline markers.
func extractText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		case "image":
			parts = append(parts, "[image]")
		case "resource":
			parts = append(parts, "[resource]")
		default:
			parts = append(parts, fmt.Sprintf("[%s]", b.Type))
		}
	}
	return strings.Join(parts, "\n")
}
