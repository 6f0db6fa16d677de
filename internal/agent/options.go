package agent

import "time"

// RuntimeOptions configures per-request turn behavior: the request
// budget, backoff attempts, and generation limits. A caller supplies
// overrides via WithRuntimeOptions; DefaultRuntimeOptions fills in the
// rest.
type RuntimeOptions struct {
	// MaxRequests caps model round-trips within a single turn (the
	// turn budget's Max). Zero means use the default of 25.
	MaxRequests int

	// MaxBackoffAttempts caps how many times the turn machine retries
	// a BACKOFF-classified error before aborting the turn.
	MaxBackoffAttempts int

	// ToolTimeout bounds a single tool call's execution time. Zero
	// means no explicit timeout beyond the tool's own default.
	ToolTimeout time.Duration

	// MaxTokens limits the model's response length for this request.
	MaxTokens int

	// EnableThinking requests extended thinking from providers that
	// support it.
	EnableThinking bool

	// ThinkingBudgetTokens sets the token budget for extended thinking
	// when EnableThinking is true.
	ThinkingBudgetTokens int
}

// DefaultRuntimeOptions returns the baseline per-request options.
func DefaultRuntimeOptions() RuntimeOptions {
	return RuntimeOptions{
		MaxRequests:        25,
		MaxBackoffAttempts: 2,
		MaxTokens:          4096,
	}
}

// mergeRuntimeOptions layers override on top of base, keeping base's
// value wherever override leaves a field at its zero value.
func mergeRuntimeOptions(base, override RuntimeOptions) RuntimeOptions {
	merged := base
	if override.MaxRequests > 0 {
		merged.MaxRequests = override.MaxRequests
	}
	if override.MaxBackoffAttempts > 0 {
		merged.MaxBackoffAttempts = override.MaxBackoffAttempts
	}
	if override.ToolTimeout > 0 {
		merged.ToolTimeout = override.ToolTimeout
	}
	if override.MaxTokens > 0 {
		merged.MaxTokens = override.MaxTokens
	}
	if override.EnableThinking {
		merged.EnableThinking = true
	}
	if override.ThinkingBudgetTokens > 0 {
		merged.ThinkingBudgetTokens = override.ThinkingBudgetTokens
	}
	return merged
}
