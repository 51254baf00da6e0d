package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// mcpServer is a minimal HTTP MCP server for transport tests.
type mcpServer struct {
	mu       sync.Mutex
	requests []Request
	notifs   []Notification
}

func (s *mcpServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		// A message without an id is a notification.
		if _, hasID := raw["id"]; !hasID {
			var notif Notification
			data, _ := json.Marshal(raw)
			json.Unmarshal(data, &notif)
			s.mu.Lock()
			s.notifs = append(s.notifs, notif)
			s.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
			return
		}

		var req Request
		data, _ := json.Marshal(raw)
		json.Unmarshal(data, &req)
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		switch req.Method {
		case "tools/list":
			writeResult(w, req.ID, toolsListResult{
				Tools: []ToolDescriptor{{Name: "search_docs", Description: "Search the documentation"}},
			})
		default:
			resp := Response{
				JSONRPC: jsonrpcVersion,
				ID:      req.ID,
				Error:   &RPCError{Code: -32601, Message: "Method not found"},
			}
			json.NewEncoder(w).Encode(resp)
		}
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "healthy", "uptime": 12.5})
	})
	mux.HandleFunc("GET /tools", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(toolsListResult{
			Tools: []ToolDescriptor{{Name: "search_docs"}, {Name: "read_file"}},
		})
	})
	return mux
}

func writeResult(w http.ResponseWriter, id string, result any) {
	data, _ := json.Marshal(result)
	resp := Response{JSONRPC: jsonrpcVersion, ID: id, Result: data}
	json.NewEncoder(w).Encode(resp)
}

func TestHTTPTransport_Send(t *testing.T) {
	srv := &mcpServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: ts.URL})
	resp, err := tr.Send(context.Background(), NewRequest("req-1", "tools/list", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if resp.ID != "req-1" {
		t.Errorf("response ID = %q, want %q", resp.ID, "req-1")
	}
	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Tools) != 1 || result.Tools[0].Name != "search_docs" {
		t.Errorf("tools = %+v, want one tool search_docs", result.Tools)
	}
}

func TestHTTPTransport_Send_ServerDown(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: url})
	_, err := tr.Send(context.Background(), NewRequest("req-1", "tools/list", nil))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error type = %T, want *ConnectionError", err)
	}
}

func TestHTTPTransport_Send_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer ts.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: ts.URL})
	_, err := tr.Send(context.Background(), NewRequest("req-1", "tools/list", nil))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error type = %T, want *ConnectionError", err)
	}
}

func TestHTTPTransport_Send_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer ts.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: ts.URL})
	_, err := tr.Send(context.Background(), NewRequest("req-1", "tools/list", nil))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("error type = %T, want *ProtocolError", err)
	}
}

func TestHTTPTransport_Notify(t *testing.T) {
	srv := &mcpServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: ts.URL})
	notif := NewNotification("notifications/initialized", nil)
	if err := tr.Notify(context.Background(), notif); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.notifs) != 1 {
		t.Fatalf("server saw %d notifications, want 1", len(srv.notifs))
	}
	if srv.notifs[0].Method != "notifications/initialized" {
		t.Errorf("method = %q, want %q", srv.notifs[0].Method, "notifications/initialized")
	}
}

func TestHTTPTransport_Notify_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: ts.URL})
	err := tr.Notify(context.Background(), NewNotification("notifications/initialized", nil))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error type = %T, want *ConnectionError", err)
	}
}

func TestHTTPTransport_Health(t *testing.T) {
	srv := &mcpServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: ts.URL})
	health, err := tr.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("status = %v, want %q", health["status"], "healthy")
	}
}

func TestHTTPTransport_Health_NoContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: ts.URL})
	health, err := tr.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status = %v, want %q", health["status"], "ok")
	}
}

func TestHTTPTransport_Tools(t *testing.T) {
	srv := &mcpServer{}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	tr := NewHTTPTransport(HTTPConfig{BaseURL: ts.URL})
	tools, err := tr.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}
	if tools[0].Name != "search_docs" || tools[1].Name != "read_file" {
		t.Errorf("tools = %+v", tools)
	}
}

func TestHTTPTransport_CustomHeaders(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer ts.Close()

	tr := NewHTTPTransport(HTTPConfig{
		BaseURL: ts.URL,
		Headers: map[string]string{"Authorization": "Bearer secret"},
	})
	if _, err := tr.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer secret")
	}
}

func TestHTTPTransport_TrimsTrailingSlash(t *testing.T) {
	tr := NewHTTPTransport(HTTPConfig{BaseURL: "http://localhost:8081/"})
	if got := tr.BaseURL(); got != "http://localhost:8081" {
		t.Errorf("BaseURL() = %q, want %q", got, "http://localhost:8081")
	}
}
