package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func anthropicTestClient(url string) *AnthropicClient {
	return NewAnthropicClient(Config{
		Provider:    "anthropic",
		APIKey:      "test-key",
		Model:       "claude-sonnet-4-20250514",
		BaseURL:     url,
		Temperature: 0.7,
		MaxTokens:   2000,
	})
}

func TestAnthropicClient_Complete(t *testing.T) {
	var gotKey, gotVersion, gotPath string
	var gotReq anthropicRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)

		json.NewEncoder(w).Encode(map[string]any{
			"role":  "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": []map[string]any{
				{"type": "text", "text": "The answer is 42."},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 12, "output_tokens": 6},
		})
	}))
	defer ts.Close()

	client := anthropicTestClient(ts.URL)
	resp, err := client.Complete(context.Background(), []Message{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "What is the answer?"},
	}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Content != "The answer is 42." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != "end_turn" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 6 {
		t.Errorf("tokens = %d/%d, want 12/6", resp.InputTokens, resp.OutputTokens)
	}

	if gotKey != "test-key" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion != anthropicAPIVersion {
		t.Errorf("anthropic-version = %q", gotVersion)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("path = %q, want %q", gotPath, "/v1/messages")
	}

	// System message must ride the system field, not the message list.
	if gotReq.System != "You are helpful." {
		t.Errorf("system = %q", gotReq.System)
	}
	if len(gotReq.Messages) != 1 {
		t.Fatalf("request carried %d messages, want 1", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "user" {
		t.Errorf("messages[0].Role = %q", gotReq.Messages[0].Role)
	}
}

func TestAnthropicClient_Complete_ToolUse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"role":  "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": []map[string]any{
				{"type": "text", "text": "Let me look that up."},
				{
					"type":  "tool_use",
					"id":    "toolu_01",
					"name":  "search_docs",
					"input": map[string]any{"query": "recovery"},
				},
			},
			"stop_reason": "tool_use",
		})
	}))
	defer ts.Close()

	client := anthropicTestClient(ts.URL)
	resp, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "find it"}}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Content != "Let me look that up." {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "toolu_01" {
		t.Errorf("ID = %q", tc.ID)
	}
	if tc.Function.Name != "search_docs" {
		t.Errorf("Function.Name = %q", tc.Function.Name)
	}

	// Arguments are re-encoded as a raw JSON string.
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v", err)
	}
	if args["query"] != "recovery" {
		t.Errorf("args[query] = %v", args["query"])
	}
}

func TestAnthropicClient_Complete_AuthError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid x-api-key"}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	client := anthropicTestClient(ts.URL)
	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error type = %T, want *AuthError", err)
	}
	if authErr.Provider != "anthropic" {
		t.Errorf("Provider = %q", authErr.Provider)
	}
}

func TestAnthropicClient_Stream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"type": "message_start", "message": {"model": "claude-sonnet-4-20250514", "usage": {"input_tokens": 8}}}`,
			`{"type": "content_block_delta", "delta": {"type": "text_delta", "text": "Hello"}}`,
			`{"type": "content_block_delta", "delta": {"type": "text_delta", "text": ", world"}}`,
			`{"type": "message_delta", "delta": {"stop_reason": "end_turn"}, "usage": {"output_tokens": 4}}`,
			`{"type": "message_stop"}`,
		}
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
		}
	}))
	defer ts.Close()

	var tokens string
	client := anthropicTestClient(ts.URL)
	resp, err := client.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, func(token string) {
		tokens += token
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if tokens != "Hello, world" {
		t.Errorf("streamed tokens = %q", tokens)
	}
	if resp.Content != "Hello, world" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != "end_turn" {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.InputTokens != 8 || resp.OutputTokens != 4 {
		t.Errorf("tokens = %d/%d, want 8/4", resp.InputTokens, resp.OutputTokens)
	}
}

func TestConvertToAnthropic(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "Be terse."},
		{Role: "user", Content: "turn on the search"},
		{Role: "assistant", Content: "", ToolCalls: []ToolCall{{
			ID:       "toolu_9",
			Function: FunctionCall{Name: "search_docs", Arguments: `{"query": "on"}`},
		}}},
		{Role: "tool", Content: "3 results", ToolCallID: "toolu_9"},
	}

	converted, system := convertToAnthropic(messages)

	if system != "Be terse." {
		t.Errorf("system = %q", system)
	}
	if len(converted) != 3 {
		t.Fatalf("got %d messages, want 3", len(converted))
	}

	// Assistant tool calls become tool_use content blocks.
	blocks, ok := converted[1].Content.([]anthropicContent)
	if !ok {
		t.Fatalf("assistant content type = %T, want blocks", converted[1].Content)
	}
	if len(blocks) != 1 || blocks[0].Type != "tool_use" {
		t.Fatalf("blocks = %+v, want one tool_use", blocks)
	}
	if blocks[0].ID != "toolu_9" || blocks[0].Name != "search_docs" {
		t.Errorf("tool_use block = %+v", blocks[0])
	}
	input, ok := blocks[0].Input.(map[string]any)
	if !ok || input["query"] != "on" {
		t.Errorf("tool_use input = %v", blocks[0].Input)
	}

	// Tool results become user messages with tool_result blocks.
	if converted[2].Role != "user" {
		t.Errorf("tool result role = %q, want user", converted[2].Role)
	}
	resultBlocks, ok := converted[2].Content.([]anthropicContent)
	if !ok || len(resultBlocks) != 1 {
		t.Fatalf("tool result content = %v", converted[2].Content)
	}
	if resultBlocks[0].Type != "tool_result" || resultBlocks[0].ToolUseID != "toolu_9" {
		t.Errorf("tool_result block = %+v", resultBlocks[0])
	}
	if resultBlocks[0].Content != "3 results" {
		t.Errorf("tool_result content = %q", resultBlocks[0].Content)
	}
}

func TestConvertToolsToAnthropic(t *testing.T) {
	tools := []map[string]any{{
		"type": "function",
		"function": map[string]any{
			"name":        "search_docs",
			"description": "Search the documentation",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
			},
		},
	}}

	converted := convertToolsToAnthropic(tools)
	if len(converted) != 1 {
		t.Fatalf("got %d tools, want 1", len(converted))
	}
	if converted[0].Name != "search_docs" {
		t.Errorf("Name = %q", converted[0].Name)
	}
	if converted[0].InputSchema == nil {
		t.Error("InputSchema is nil")
	}

	if got := convertToolsToAnthropic(nil); got != nil {
		t.Errorf("convertToolsToAnthropic(nil) = %v, want nil", got)
	}
}

func TestParseArguments(t *testing.T) {
	if got := parseArguments(""); len(got) != 0 {
		t.Errorf("parseArguments(\"\") = %v, want empty map", got)
	}
	if got := parseArguments(`{"a": 1}`); got["a"] != float64(1) {
		t.Errorf("parseArguments = %v", got)
	}
	got := parseArguments("not json")
	if got["_raw"] != "not json" {
		t.Errorf("malformed fallback = %v", got)
	}
}
