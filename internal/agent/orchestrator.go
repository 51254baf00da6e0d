// Package agent executes conversation turns: it interleaves LLM
// completions with MCP tool execution and streams the final response.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mcpagent/internal/llm"
	"mcpagent/internal/mcp"
	"mcpagent/internal/tools"
)

const systemPrompt = "You are a helpful assistant with access to tools. " +
	"Use the available tools when needed to help the user. " +
	"When you receive tool results, format them nicely for the user."

// EventType identifies what a streamed turn event carries.
type EventType string

const (
	// EventChunk is an incremental piece of assistant text.
	EventChunk EventType = "chunk"

	// EventToolNotification announces tool activity to the caller.
	EventToolNotification EventType = "tool_notification"

	// EventError is a terminal turn failure.
	EventError EventType = "error"
)

// Event is one item streamed to the caller during a turn.
type Event struct {
	Type    EventType
	Content string
}

// EmitFunc receives turn events. It is called from the turn's
// goroutine, in order.
type EmitFunc func(Event)

// ToolCall records a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult records the outcome of one tool execution.
type ToolResult struct {
	Name     string
	Success  bool
	Result   string
	Err      string
	Duration time.Duration
}

// ConversationContext carries the conversation across turns. It is
// mutated only by the orchestrator, one turn at a time.
type ConversationContext struct {
	Messages       []llm.Message
	AvailableTools []mcp.ToolDescriptor
	ToolCalls      []ToolCall
	ToolResults    []ToolResult
	SessionID      string
}

// NewConversationContext creates an empty conversation.
func NewConversationContext() *ConversationContext {
	return &ConversationContext{}
}

// ToolExecutor executes a single tool call. *mcp.Session satisfies it.
type ToolExecutor interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Orchestrator runs chat turns against one MCP session and one LLM
// provider.
type Orchestrator struct {
	executor ToolExecutor
	registry *tools.Registry
	llm      llm.Client
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given collaborators.
func NewOrchestrator(executor ToolExecutor, registry *tools.Registry, client llm.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		executor: executor,
		registry: registry,
		llm:      client,
		logger:   logger,
	}
}

// ChatStream executes one turn for userMessage, streaming events to
// emit. Tool calls requested by the model run sequentially in the
// order returned; a failed tool is folded into the conversation and
// the turn continues. An LLM failure aborts the turn: a terminal
// EventError is emitted and the error returned. On success the user
// message and the assistant output are appended to cctx.
func (o *Orchestrator) ChatStream(ctx context.Context, userMessage string, cctx *ConversationContext, emit EmitFunc) error {
	if cctx == nil {
		cctx = NewConversationContext()
	}
	if emit == nil {
		emit = func(Event) {}
	}

	schema := o.ensureTools(ctx, cctx)

	messages := make([]llm.Message, 0, len(cctx.Messages)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, cctx.Messages...)
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	// First pass, non-streaming: let the model decide on tool use.
	initial, err := o.llm.Complete(ctx, messages, schema)
	if err != nil {
		emit(Event{Type: EventError, Content: fmt.Sprintf("Error: %v", err)})
		return fmt.Errorf("completion: %w", err)
	}

	var final *llm.Response
	if len(initial.ToolCalls) > 0 {
		o.logger.Info("model requested tool calls", "count", len(initial.ToolCalls))

		// One assistant message carrying the full tool-call list, then
		// one tool message per result.
		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   initial.Content,
			ToolCalls: initial.ToolCalls,
		})

		for _, tc := range initial.ToolCalls {
			emit(Event{Type: EventToolNotification, Content: fmt.Sprintf("Using %s tool...", tc.Function.Name)})

			result := o.executeTool(ctx, tc)
			cctx.ToolCalls = append(cctx.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: decodeArguments(tc.Function.Arguments),
			})
			cctx.ToolResults = append(cctx.ToolResults, result)

			content := result.Result
			if !result.Success {
				content = "Error: " + result.Err
			}
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    content,
				Name:       tc.Function.Name,
				ToolCallID: tc.ID,
			})
		}

		emit(Event{Type: EventToolNotification, Content: "Tools completed, generating response..."})

		final, err = o.llm.Stream(ctx, messages, nil, func(token string) {
			emit(Event{Type: EventChunk, Content: token})
		})
	} else {
		// No tools requested: stream immediately, keeping the schema so
		// the provider may still answer with plain text about tools.
		final, err = o.llm.Stream(ctx, messages, schema, func(token string) {
			emit(Event{Type: EventChunk, Content: token})
		})
	}
	if err != nil {
		emit(Event{Type: EventError, Content: fmt.Sprintf("Error: %v", err)})
		return fmt.Errorf("stream: %w", err)
	}

	cctx.Messages = append(cctx.Messages,
		llm.Message{Role: "user", Content: userMessage},
		llm.Message{Role: "assistant", Content: final.Content},
	)

	return nil
}

// Chat executes one turn and returns the aggregated assistant text.
func (o *Orchestrator) Chat(ctx context.Context, userMessage string, cctx *ConversationContext) (string, error) {
	var sb strings.Builder
	err := o.ChatStream(ctx, userMessage, cctx, func(ev Event) {
		if ev.Type == EventChunk {
			sb.WriteString(ev.Content)
		}
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Stats reports a basic status snapshot for the CLI.
func (o *Orchestrator) Stats(ctx context.Context) map[string]any {
	catalog, err := o.registry.Discover(ctx)
	stats := map[string]any{
		"tools_cached": len(catalog),
	}
	if err != nil {
		stats["tools_error"] = err.Error()
	}
	return stats
}

// ensureTools populates the context's tool snapshot and returns the
// completion schema. Discovery failure is not fatal: the turn proceeds
// without tools, and a "server not initialized" failure invalidates
// the registry so the next turn refetches.
func (o *Orchestrator) ensureTools(ctx context.Context, cctx *ConversationContext) []map[string]any {
	catalog, err := o.registry.Discover(ctx)
	if err != nil {
		o.logger.Error("tool discovery failed", "error", err)
		if isServerNotInitialized(err) {
			o.logger.Info("invalidating tool cache after suspected server restart")
			o.registry.Invalidate()
		}
		cctx.AvailableTools = nil
		return nil
	}
	cctx.AvailableTools = catalog

	if !o.llm.SupportsTools() {
		return nil
	}

	schema, err := o.registry.CompletionSchema(ctx)
	if err != nil {
		o.logger.Error("tool schema conversion failed", "error", err)
		return nil
	}
	if len(schema) == 0 {
		o.logger.Warn("no tools available")
		return nil
	}
	return schema
}

// executeTool runs one tool call and captures the outcome. Transport
// failures become unsuccessful results, never turn aborts.
func (o *Orchestrator) executeTool(ctx context.Context, tc llm.ToolCall) ToolResult {
	args := decodeArguments(tc.Function.Arguments)

	o.logger.Info("executing tool", "tool", tc.Function.Name, "args", args)
	start := time.Now()

	result, err := o.executor.CallTool(ctx, tc.Function.Name, args)
	duration := time.Since(start)

	if err != nil {
		o.logger.Error("tool execution failed",
			"tool", tc.Function.Name,
			"duration", duration,
			"error", err,
		)
		if isServerNotInitialized(err) {
			o.registry.Invalidate()
		}
		return ToolResult{
			Name:     tc.Function.Name,
			Success:  false,
			Err:      err.Error(),
			Duration: duration,
		}
	}

	o.logger.Debug("tool execution complete",
		"tool", tc.Function.Name,
		"duration", duration,
		"result_len", len(result),
	)
	return ToolResult{
		Name:     tc.Function.Name,
		Success:  true,
		Result:   result,
		Duration: duration,
	}
}

func decodeArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"_raw": raw}
	}
	return args
}

func isServerNotInitialized(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "server not initialized")
}
