package agent

import (
	"net/http"
	"testing"
	"time"

	"github.com/binlecode/agentcore/internal/agent/providers"
)

func TestClassifyProviderStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		reason providers.FailoverReason
		want   Action
	}{
		{"bad request reflects", http.StatusBadRequest, providers.FailoverInvalidRequest, ActionReflect},
		{"rate limited backs off", http.StatusTooManyRequests, providers.FailoverRateLimit, ActionBackoff},
		{"server error backs off", http.StatusInternalServerError, providers.FailoverServerError, ActionBackoff},
		{"unauthorized aborts", http.StatusUnauthorized, providers.FailoverAuth, ActionAbort},
		{"forbidden aborts", http.StatusForbidden, providers.FailoverAuth, ActionAbort},
		{"not found aborts", http.StatusNotFound, providers.FailoverModelUnavailable, ActionAbort},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := providers.NewProviderError("anthropic", "claude", nil).WithStatus(tc.status)
			got := Classify(err)
			if got.Action != tc.want {
				t.Fatalf("status %d: got action %q, want %q", tc.status, got.Action, tc.want)
			}
		})
	}
}

func TestClassifyProviderRetryAfterPropagates(t *testing.T) {
	err := providers.NewProviderError("openai", "gpt", nil).
		WithStatus(http.StatusTooManyRequests).
		WithRetryAfter("5")

	got := Classify(err)
	if got.Action != ActionBackoff {
		t.Fatalf("expected backoff, got %q", got.Action)
	}
	if got.DelayHint != 5*time.Second {
		t.Fatalf("expected 5s delay hint, got %v", got.DelayHint)
	}
}

func TestClassifyToolErrors(t *testing.T) {
	transient := NewToolError("shell", nil).WithType(ToolErrorTimeout)
	if got := Classify(transient).Action; got != ActionBackoff {
		t.Fatalf("expected backoff for transient tool error, got %q", got)
	}

	misuse := NewToolError("shell", nil).WithType(ToolErrorInvalidInput)
	if got := Classify(misuse).Action; got != ActionReflect {
		t.Fatalf("expected reflect for tool misuse, got %q", got)
	}

	terminal := NewToolError("shell", nil).WithType(ToolErrorPermission)
	if got := Classify(terminal).Action; got != ActionAbort {
		t.Fatalf("expected abort for terminal tool error, got %q", got)
	}
}

func TestClassifyStructuralErrorsAlwaysAbort(t *testing.T) {
	for _, err := range []error{
		&UserInterruptError{},
		&BudgetExceededError{Max: 25},
		&InternalInvariantError{Invariant: "H1", Detail: "dangling call"},
		&SandboxError{Kind: SandboxBackendUnavailable},
	} {
		if got := Classify(err).Action; got != ActionAbort {
			t.Fatalf("%T: expected abort, got %q", err, got)
		}
	}
}
