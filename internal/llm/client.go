package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Client is the interface every LLM provider implements.
type Client interface {
	// Complete sends a non-streaming completion request, passing the
	// tool schema so the model can request tool calls.
	Complete(ctx context.Context, messages []Message, tools []map[string]any) (*Response, error)

	// Stream sends a streaming request. Text chunks are forwarded to
	// callback as they arrive; the returned Response carries the
	// aggregated content.
	Stream(ctx context.Context, messages []Message, tools []map[string]any, callback StreamCallback) (*Response, error)

	// SupportsTools reports whether the provider handles tool schemas.
	SupportsTools() bool

	// Close releases provider resources.
	Close() error
}

// Config selects and configures a provider.
type Config struct {
	Provider    string // "openai" or "anthropic"
	APIKey      string
	Model       string
	BaseURL     string // optional override
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

// New creates the client for the configured provider.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
