// Package config loads and resolves the agentcore configuration file.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure for the agentcore REPL.
type Config struct {
	Turn      TurnConfig      `yaml:"turn"`
	History   HistoryConfig   `yaml:"history"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Approval  ApprovalConfig  `yaml:"approval"`
	LLM       LLMConfig       `yaml:"llm"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TurnConfig bounds a single turn's model calls and retry behavior.
// Field names and defaults follow the configuration table: max_request_limit,
// model_http_retries, tool_retries.
type TurnConfig struct {
	// MaxRequestLimit bounds the number of model requests issued in one
	// turn before the turn aborts with a budget-exceeded error. Default 25.
	MaxRequestLimit int `yaml:"max_request_limit"`

	// ModelHTTPRetries is how many times a Backoff-classified provider
	// error is retried before the turn gives up. Default 2.
	ModelHTTPRetries int `yaml:"model_http_retries"`

	// ToolRetries is how many times a Backoff-classified tool error is
	// retried before surfacing it to the model as a failure. Default 3.
	ToolRetries int `yaml:"tool_retries"`
}

// DefaultTurnConfig returns the configuration table's defaults.
func DefaultTurnConfig() TurnConfig {
	return TurnConfig{
		MaxRequestLimit:  25,
		ModelHTTPRetries: 2,
		ToolRetries:      3,
	}
}

// HistoryConfig controls sliding-window summarization and tool-output
// truncation (C6).
type HistoryConfig struct {
	// MaxHistoryMessages is the message count above which summarization
	// triggers. Default 40.
	MaxHistoryMessages int `yaml:"max_history_messages"`

	// ToolOutputTrimChars caps a single tool result's length before it is
	// committed to history. Default 2000.
	ToolOutputTrimChars int `yaml:"tool_output_trim_chars"`

	// SummarizationModel optionally names a distinct (usually cheaper)
	// model used only to produce the folded summary message. Empty means
	// the turn's primary model is reused.
	SummarizationModel string `yaml:"summarization_model"`
}

// DefaultHistoryConfig returns the configuration table's defaults.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		MaxHistoryMessages:  40,
		ToolOutputTrimChars: 2000,
		SummarizationModel:  "",
	}
}

// SandboxConfig selects and configures the shell tool's execution backend
// (C3). Field names follow the configuration table: sandbox_backend,
// sandbox_network, sandbox_fallback, shell_max_timeout.
type SandboxConfig struct {
	// Backend is one of "auto", "docker", "subprocess". Default "auto".
	Backend string `yaml:"sandbox_backend"`

	// Network is one of "none" (default) or "bridge". Any other value is
	// treated as "none".
	Network string `yaml:"sandbox_network"`

	// Fallback controls behavior when the requested backend cannot be
	// constructed: "warn" (degrade to subprocess, default) or "error".
	Fallback string `yaml:"sandbox_fallback"`

	// ShellMaxTimeout bounds how long a single shell command may run,
	// regardless of the per-call timeout_seconds parameter. Default 600s.
	ShellMaxTimeout time.Duration `yaml:"shell_max_timeout"`

	// Image is the container image used by the Docker backend.
	Image string `yaml:"image"`

	// Workspace is the host directory the sandbox operates against.
	Workspace string `yaml:"workspace"`
}

// DefaultSandboxConfig returns the configuration table's defaults.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Backend:         "auto",
		Network:         "none",
		Fallback:        "warn",
		ShellMaxTimeout: 600 * time.Second,
		Image:           "alpine:3.20",
	}
}

// ApprovalConfig mirrors agent.ApprovalPolicy's yaml-facing fields so it can
// be loaded directly from the config file.
type ApprovalConfig struct {
	Allowlist       []string      `yaml:"allowlist"`
	Denylist        []string      `yaml:"denylist"`
	RequireApproval []string      `yaml:"require_approval"`
	SafeBins        []string      `yaml:"safe_bins"`
	SkillAllowlist  bool          `yaml:"skill_allowlist"`
	AskFallback     bool          `yaml:"ask_fallback"`

	// AutoConfirm is the auto_confirm config key: when true it wins over a
	// tool's require_approval entry but never over Denylist. Default false.
	AutoConfirm bool `yaml:"auto_confirm"`

	DefaultDecision string        `yaml:"default_decision"`
	RequestTTL      time.Duration `yaml:"request_ttl"`
}

// DefaultApprovalConfig returns the configuration table's defaults.
func DefaultApprovalConfig() ApprovalConfig {
	return ApprovalConfig{
		DefaultDecision: "pending",
		RequestTTL:      5 * time.Minute,
		AutoConfirm:     false,
	}
}

// LLMConfig selects the active provider and holds per-provider credentials.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig holds the settings needed to construct one of the
// concrete LLMProvider implementations in internal/agent/providers.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	Region       string `yaml:"region"` // bedrock
}

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// DefaultLoggingConfig returns the configuration table's defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info", Console: true}
}

// TelemetryConfig controls the embedded span store (C4).
type TelemetryConfig struct {
	// Path is the SQLite database file. Defaults to
	// ~/.local/share/agentcore/telemetry.db when empty.
	Path string `yaml:"path"`

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// TracingEndpoint is the OTLP gRPC collector endpoint. Empty disables
	// span export.
	TracingEndpoint string `yaml:"tracing_endpoint"`
}

// Default returns a Config populated entirely with the configuration
// table's documented defaults.
func Default() Config {
	return Config{
		Turn:     DefaultTurnConfig(),
		History:  DefaultHistoryConfig(),
		Sandbox:  DefaultSandboxConfig(),
		Approval: DefaultApprovalConfig(),
		Logging:  DefaultLoggingConfig(),
	}
}

// Validate checks invariants Load cannot express through yaml tags alone.
func (c Config) Validate() error {
	if c.Turn.MaxRequestLimit <= 0 {
		return fmt.Errorf("turn.max_request_limit must be positive")
	}
	if c.History.MaxHistoryMessages <= 0 {
		return fmt.Errorf("history.max_history_messages must be positive")
	}
	switch c.Sandbox.Backend {
	case "auto", "docker", "subprocess", "":
	default:
		return fmt.Errorf("sandbox.sandbox_backend: unknown value %q", c.Sandbox.Backend)
	}
	switch c.Sandbox.Fallback {
	case "warn", "error", "":
	default:
		return fmt.Errorf("sandbox.sandbox_fallback: unknown value %q", c.Sandbox.Fallback)
	}
	return nil
}
