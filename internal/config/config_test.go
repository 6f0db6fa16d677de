package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesConfigurationTable(t *testing.T) {
	cfg := Default()
	if cfg.Turn.MaxRequestLimit != 25 {
		t.Fatalf("max_request_limit = %d, want 25", cfg.Turn.MaxRequestLimit)
	}
	if cfg.Turn.ModelHTTPRetries != 2 {
		t.Fatalf("model_http_retries = %d, want 2", cfg.Turn.ModelHTTPRetries)
	}
	if cfg.Turn.ToolRetries != 3 {
		t.Fatalf("tool_retries = %d, want 3", cfg.Turn.ToolRetries)
	}
	if cfg.History.MaxHistoryMessages != 40 {
		t.Fatalf("max_history_messages = %d, want 40", cfg.History.MaxHistoryMessages)
	}
	if cfg.History.ToolOutputTrimChars != 2000 {
		t.Fatalf("tool_output_trim_chars = %d, want 2000", cfg.History.ToolOutputTrimChars)
	}
	if cfg.Sandbox.Network != "none" {
		t.Fatalf("sandbox_network = %q, want none", cfg.Sandbox.Network)
	}
	if cfg.Sandbox.Backend != "auto" {
		t.Fatalf("sandbox_backend = %q, want auto", cfg.Sandbox.Backend)
	}
	if cfg.Approval.AutoConfirm {
		t.Fatal("auto_confirm should default to false")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Turn.MaxRequestLimit != 25 {
		t.Fatalf("expected default turn config, got %+v", cfg.Turn)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "turn:\n  max_request_limit: 10\nsandbox:\n  sandbox_backend: subprocess\napproval:\n  auto_confirm: true\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Turn.MaxRequestLimit != 10 {
		t.Fatalf("max_request_limit = %d, want 10", cfg.Turn.MaxRequestLimit)
	}
	if cfg.Sandbox.Backend != "subprocess" {
		t.Fatalf("sandbox_backend = %q, want subprocess", cfg.Sandbox.Backend)
	}
	if !cfg.Approval.AutoConfirm {
		t.Fatal("expected auto_confirm to be overridden to true")
	}
	// Fields not present in the file keep their defaults.
	if cfg.History.MaxHistoryMessages != 40 {
		t.Fatalf("max_history_messages = %d, want unchanged default 40", cfg.History.MaxHistoryMessages)
	}
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sandbox:\n  sandbox_backend: nonsense\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown sandbox_backend")
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("AGENTCORE_TEST_KEY", "secret-value")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "llm:\n  default_provider: anthropic\n  providers:\n    anthropic:\n      api_key: ${AGENTCORE_TEST_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "secret-value" {
		t.Fatalf("api_key = %q, want expanded secret-value", cfg.LLM.Providers["anthropic"].APIKey)
	}
}
