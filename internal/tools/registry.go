// Package tools caches the MCP tool catalog for the lifetime of a
// session and converts it to the completion API's function format.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"mcpagent/internal/mcp"
)

// Lister fetches the tool catalog from the MCP server. *mcp.Session
// satisfies it.
type Lister interface {
	ListTools(ctx context.Context) ([]mcp.ToolDescriptor, error)
}

// Registry is the single source of truth for the tool catalog. The
// catalog is fetched at most once until Invalidate forces a refetch;
// one mutex serializes all cache access.
type Registry struct {
	lister Lister
	logger *slog.Logger

	mu        sync.Mutex
	populated bool
	catalog   []mcp.ToolDescriptor
	schema    []map[string]any
}

// NewRegistry creates a registry backed by the given lister.
func NewRegistry(lister Lister, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		lister: lister,
		logger: logger,
	}
}

// Discover returns the cached catalog, fetching it on first use.
// Calling twice without an intervening Invalidate issues no second
// network call. A failed fetch is not cached.
func (r *Registry) Discover(ctx context.Context) ([]mcp.ToolDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.populated {
		return r.catalog, nil
	}

	tools, err := r.lister.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover tools: %w", err)
	}

	r.catalog = tools
	r.schema = buildSchema(tools)
	r.populated = true

	r.logger.Info("tool catalog discovered", "count", len(tools))
	return r.catalog, nil
}

// Invalidate drops the cached catalog so the next Discover refetches.
// The orchestrator calls this when it suspects a backend restart.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.populated = false
	r.catalog = nil
	r.schema = nil
	r.logger.Debug("tool catalog invalidated")
}

// CompletionSchema returns the catalog in the completion API's
// function-definition format, in catalog order. The conversion is pure
// and cached alongside the catalog.
func (r *Registry) CompletionSchema(ctx context.Context) ([]map[string]any, error) {
	if _, err := r.Discover(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schema, nil
}

// Find looks up a cached descriptor by name. It does not trigger a
// fetch; call Discover first.
func (r *Registry) Find(name string) (mcp.ToolDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.catalog {
		if t.Name == name {
			return t, true
		}
	}
	return mcp.ToolDescriptor{}, false
}

func buildSchema(tools []mcp.ToolDescriptor) []map[string]any {
	schema := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		params := t.InputSchema
		if params == nil {
			params = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		schema = append(schema, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	return schema
}
