package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("log_level: debug\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("log_level: info\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LLM.Provider != "openai" {
		t.Errorf("Provider = %q, want %q", cfg.LLM.Provider, "openai")
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens != 2000 {
		t.Errorf("MaxTokens = %d, want 2000", cfg.LLM.MaxTokens)
	}
	if cfg.MCP.BaseURL != "http://localhost:8081" {
		t.Errorf("MCP.BaseURL = %q", cfg.MCP.BaseURL)
	}
	if cfg.MCP.Timeout().Seconds() != 60 {
		t.Errorf("MCP.Timeout = %v, want 60s", cfg.MCP.Timeout())
	}
	if cfg.MCP.ReconnectDelay().Seconds() != 1 {
		t.Errorf("MCP.ReconnectDelay = %v, want 1s", cfg.MCP.ReconnectDelay())
	}
	if cfg.MCP.MaxReconnects != 5 {
		t.Errorf("MCP.MaxReconnects = %d, want 5", cfg.MCP.MaxReconnects)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("llm:\n  api_key: ${MCPAGENT_TEST_KEY}\n"), 0600)
	os.Setenv("MCPAGENT_TEST_KEY", "secret123")
	defer os.Unsetenv("MCPAGENT_TEST_KEY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LLM.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.LLM.APIKey, "secret123")
	}
}

func TestLoad_KeepsDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("mcp:\n  base_url: http://mcp.internal:9000\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MCP.BaseURL != "http://mcp.internal:9000" {
		t.Errorf("MCP.BaseURL = %q", cfg.MCP.BaseURL)
	}
	if cfg.LLM.MaxTokens != 2000 {
		t.Errorf("MaxTokens = %d, want default 2000", cfg.LLM.MaxTokens)
	}
}

func TestApplyEnv_OpenAI(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("LLM_MAX_TOKENS", "512")
	t.Setenv("MCP_BASE_URL", "http://localhost:9090")
	t.Setenv("MCP_TIMEOUT", "30")
	t.Setenv("MCP_RECONNECT_DELAY", "0.5")
	t.Setenv("DEBUG", "true")

	cfg := FromEnv()

	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("Temperature = %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d", cfg.LLM.MaxTokens)
	}
	if cfg.MCP.BaseURL != "http://localhost:9090" {
		t.Errorf("MCP.BaseURL = %q", cfg.MCP.BaseURL)
	}
	if cfg.MCP.Timeout().Seconds() != 30 {
		t.Errorf("MCP.Timeout = %v", cfg.MCP.Timeout())
	}
	if cfg.MCP.ReconnectDelay().Milliseconds() != 500 {
		t.Errorf("MCP.ReconnectDelay = %v", cfg.MCP.ReconnectDelay())
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
}

func TestApplyEnv_AnthropicUsesOwnVariables(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("OPENAI_API_KEY", "sk-wrong")

	cfg := FromEnv()

	if cfg.LLM.APIKey != "sk-ant-test" {
		t.Errorf("APIKey = %q, want the Anthropic key", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "claude-3-sonnet-20240229" {
		t.Errorf("Model = %q, want the Anthropic default", cfg.LLM.Model)
	}
}

func TestApplyEnv_DefaultModelPerProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := FromEnv()
	if cfg.LLM.Model != "gpt-4" {
		t.Errorf("Model = %q, want %q", cfg.LLM.Model, "gpt-4")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-test"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	cfg.LLM.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate passed without an API key")
	}

	cfg.LLM.APIKey = "k"
	cfg.LLM.Provider = "cohere"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate passed with an unsupported provider")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"trace", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	attr := slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(LevelTrace)}
	got := ReplaceLogLevelNames(nil, attr)
	if got.Value.String() != "TRACE" {
		t.Errorf("trace rendered as %q, want %q", got.Value.String(), "TRACE")
	}

	attr = slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(slog.LevelInfo)}
	got = ReplaceLogLevelNames(nil, attr)
	if got.Value.Any().(slog.Level) != slog.LevelInfo {
		t.Errorf("info level was rewritten: %v", got.Value)
	}
}
