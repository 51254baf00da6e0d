// Package llm provides LLM provider clients behind a common interface.
package llm

import "log/slog"

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message is the provider-neutral chat message. The JSON tags follow
// the OpenAI wire format; the Anthropic client converts at its boundary.
type Message struct {
	Role       string     `json:"role"` // system | user | assistant | tool
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool responses
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its raw JSON arguments.
// Arguments stay unparsed here; the orchestrator decodes them when it
// executes the call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Response is the unified completion response from any provider.
type Response struct {
	Content      string
	Model        string
	FinishReason string
	ToolCalls    []ToolCall

	InputTokens  int
	OutputTokens int
}

// StreamCallback receives incremental text chunks during streaming.
type StreamCallback func(token string)
