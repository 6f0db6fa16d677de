package agent

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/binlecode/agentcore/internal/agent/providers"
)

// Action is the turn machine's decision for how to continue after an
// error surfaces mid-turn.
type Action string

const (
	// ActionReflect feeds the error back to the model as a tool/user
	// message and lets it try again within the same turn.
	ActionReflect Action = "reflect"

	// ActionBackoff waits (optionally honoring a provider-supplied
	// delay hint) and retries the same request.
	ActionBackoff Action = "backoff"

	// ActionAbort ends the turn and surfaces the error to the user.
	ActionAbort Action = "abort"
)

// Decision is the outcome of classifying an error mid-turn.
type Decision struct {
	Action Action
	// DelayHint is a provider-supplied retry delay (e.g. Retry-After),
	// used only when Action == ActionBackoff. Zero means "use the
	// backoff policy's own schedule."
	DelayHint time.Duration
	Reason    string
}

// BudgetExceededError marks a turn ended because its TurnBudget reached
// zero requests remaining.
type BudgetExceededError struct {
	Max int
}

func (e *BudgetExceededError) Error() string {
	return "turn budget exceeded (max " + strconv.Itoa(e.Max) + " requests)"
}

// InternalInvariantError marks a violated internal invariant (e.g. H1
// failing to hold at a commit boundary after repair). It is always
// ActionAbort and is never retried or reflected.
type InternalInvariantError struct {
	Invariant string
	Detail    string
}

func (e *InternalInvariantError) Error() string {
	return "internal invariant violated: " + e.Invariant + ": " + e.Detail
}

// UserInterruptError marks a turn ended by explicit user interrupt
// (e.g. Ctrl-C during streaming or tool execution).
type UserInterruptError struct{}

func (e *UserInterruptError) Error() string { return "interrupted by user" }

// Classify inspects an error surfaced mid-turn and returns the action
// the turn state machine (C9) should take, per the taxonomy:
//
//	ProviderRecoverable: 400 -> REFLECT, 429/5xx/timeout -> BACKOFF
//	ProviderFatal:        401/403/404 -> ABORT
//	ToolMisuse (invalid input) -> REFLECT
//	ToolTerminal -> ABORT
//	ToolTransient -> BACKOFF
//	SandboxError, BudgetExceeded, InternalInvariant, UserInterrupt -> ABORT
func Classify(err error) Decision {
	if err == nil {
		return Decision{Action: ActionAbort, Reason: "nil error classified defensively"}
	}

	var interrupt *UserInterruptError
	if errors.As(err, &interrupt) {
		return Decision{Action: ActionAbort, Reason: "user interrupt"}
	}

	var budget *BudgetExceededError
	if errors.As(err, &budget) {
		return Decision{Action: ActionAbort, Reason: "turn budget exhausted"}
	}

	var invariant *InternalInvariantError
	if errors.As(err, &invariant) {
		return Decision{Action: ActionAbort, Reason: "internal invariant: " + invariant.Invariant}
	}

	var sandboxErr *SandboxError
	if errors.As(err, &sandboxErr) {
		return Decision{Action: ActionAbort, Reason: "sandbox error: " + string(sandboxErr.Kind)}
	}

	if provErr, ok := providers.GetProviderError(err); ok {
		return classifyProviderError(provErr)
	}

	if toolErr, ok := GetToolError(err); ok {
		return classifyToolErrorDecision(toolErr)
	}

	// Unclassified: default to a single backoff-retry rather than
	// aborting outright, since most unknown failures are transient.
	return Decision{Action: ActionBackoff, Reason: "unclassified error"}
}

func classifyProviderError(e *providers.ProviderError) Decision {
	switch {
	case e.Status == http.StatusBadRequest:
		return Decision{Action: ActionReflect, Reason: "provider rejected the request (400)"}
	case e.Status == http.StatusTooManyRequests:
		return Decision{Action: ActionBackoff, Reason: "provider rate limited (429)", DelayHint: e.RetryAfter}
	case e.Status >= 500:
		return Decision{Action: ActionBackoff, Reason: "provider server error (5xx)"}
	case e.Reason == providers.FailoverTimeout:
		return Decision{Action: ActionBackoff, Reason: "provider request timed out"}
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden, e.Status == http.StatusNotFound:
		return Decision{Action: ActionAbort, Reason: "provider fatal error"}
	case e.Reason == providers.FailoverAuth, e.Reason == providers.FailoverModelUnavailable:
		return Decision{Action: ActionAbort, Reason: "provider fatal error"}
	default:
		return Decision{Action: ActionBackoff, Reason: "unclassified provider error"}
	}
}

func classifyToolErrorDecision(e *ToolError) Decision {
	switch e.Type {
	case ToolErrorTimeout, ToolErrorNetwork, ToolErrorRateLimit:
		return Decision{Action: ActionBackoff, Reason: "transient tool error: " + string(e.Type)}
	case ToolErrorInvalidInput:
		return Decision{Action: ActionReflect, Reason: "tool misuse: invalid input, let the model retry"}
	default:
		return Decision{Action: ActionAbort, Reason: "terminal tool error: " + string(e.Type)}
	}
}

// SandboxErrorKind enumerates the sandbox failure modes the turn
// machine treats as fatal to the current turn.
type SandboxErrorKind string

const (
	SandboxBackendUnavailable SandboxErrorKind = "backend_unavailable"
	SandboxCommandTimeout     SandboxErrorKind = "command_timeout"
	SandboxNonZeroExit        SandboxErrorKind = "non_zero_exit"
)

// SandboxError wraps a sandbox backend failure (C3) for classification.
type SandboxError struct {
	Kind     SandboxErrorKind
	ExitCode int
	Message  string
	Cause    error
}

func (e *SandboxError) Error() string {
	if e.Message != "" {
		return "sandbox: " + string(e.Kind) + ": " + e.Message
	}
	if e.Cause != nil {
		return "sandbox: " + string(e.Kind) + ": " + e.Cause.Error()
	}
	return "sandbox: " + string(e.Kind)
}

func (e *SandboxError) Unwrap() error { return e.Cause }
