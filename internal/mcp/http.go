package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"mcpagent/internal/httpkit"
)

const (
	mcpPath    = "/mcp"
	healthPath = "/health"
	toolsPath  = "/tools"

	// maxResponseBody bounds how much of a JSON-RPC response we read.
	maxResponseBody = 10 << 20
)

// HTTPConfig configures an HTTP MCP transport that communicates with a
// remote MCP server via JSON-RPC over POST.
type HTTPConfig struct {
	// BaseURL is the MCP server root; the transport appends /mcp,
	// /health, and /tools.
	BaseURL string

	// Timeout is the per-request timeout. Zero means the httpkit default.
	Timeout time.Duration

	// Headers are additional HTTP headers sent with every request
	// (e.g., Authorization).
	Headers map[string]string

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// HTTPTransport communicates with an MCP server over HTTP. Each JSON-RPC
// request is one HTTP POST to the /mcp endpoint; the response comes back
// in the response body.
type HTTPTransport struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPTransport creates an HTTP transport for the given config.
// The underlying HTTP client is constructed via httpkit.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []httpkit.ClientOption{}
	if cfg.Timeout > 0 {
		opts = append(opts, httpkit.WithTimeout(cfg.Timeout))
	}

	return &HTTPTransport{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		headers:    cfg.Headers,
		httpClient: httpkit.NewClient(opts...),
		logger:     logger,
	}
}

// BaseURL returns the server root this transport talks to.
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

// Send sends a JSON-RPC request via HTTP POST and returns the response.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	httpResp, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	if httpResp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return nil, &ConnectionError{
			URL: t.baseURL + mcpPath,
			Err: fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, errBody),
		}
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, &ConnectionError{URL: t.baseURL + mcpPath, Err: fmt.Errorf("read response body: %w", err)}
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("malformed JSON-RPC response: %v", err)}
	}

	return &resp, nil
}

// Notify sends a JSON-RPC notification via HTTP POST. No JSON-RPC body
// is expected back; any 2xx status counts as delivered.
func (t *HTTPTransport) Notify(ctx context.Context, notif *Notification) error {
	httpResp, err := t.post(ctx, notif)
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return &ConnectionError{
			URL: t.baseURL + mcpPath,
			Err: fmt.Errorf("notification %s rejected: HTTP %d: %s", notif.Method, httpResp.StatusCode, errBody),
		}
	}

	t.logger.Debug("notification delivered", "method", notif.Method, "status", httpResp.StatusCode)
	return nil
}

// Health performs the plain GET /health probe.
func (t *HTTPTransport) Health(ctx context.Context) (map[string]any, error) {
	url := t.baseURL + healthPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create health request: %w", err)
	}
	t.applyHeaders(httpReq)

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	switch httpResp.StatusCode {
	case http.StatusOK:
		var health map[string]any
		if err := json.NewDecoder(io.LimitReader(httpResp.Body, 1<<20)).Decode(&health); err != nil {
			return nil, &ProtocolError{Message: fmt.Sprintf("malformed health response: %v", err)}
		}
		return health, nil
	case http.StatusNoContent:
		// Some servers answer health checks with 204; treat as healthy.
		return map[string]any{"status": "ok"}, nil
	default:
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return nil, &ConnectionError{
			URL: url,
			Err: fmt.Errorf("health check failed: HTTP %d: %s", httpResp.StatusCode, errBody),
		}
	}
}

// Tools fetches the catalog through the plain GET /tools convenience
// mirror. The JSON-RPC tools/list path through Session is authoritative;
// this one exists for quick inspection without a handshake.
func (t *HTTPTransport) Tools(ctx context.Context) ([]ToolDescriptor, error) {
	url := t.baseURL + toolsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create tools request: %w", err)
	}
	t.applyHeaders(httpReq)

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	if httpResp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return nil, &ConnectionError{
			URL: url,
			Err: fmt.Errorf("tools listing failed: HTTP %d: %s", httpResp.StatusCode, errBody),
		}
	}

	var result toolsListResult
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxResponseBody)).Decode(&result); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("malformed tools response: %v", err)}
	}
	return result.Tools, nil
}

// Close is a no-op for HTTP transports; the shared httpkit client
// manages its own connection pool.
func (t *HTTPTransport) Close() error {
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, msg any) (*http.Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	url := t.baseURL + mcpPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	t.applyHeaders(httpReq)

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{URL: url, Err: err}
	}
	return httpResp, nil
}

func (t *HTTPTransport) applyHeaders(req *http.Request) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
}
