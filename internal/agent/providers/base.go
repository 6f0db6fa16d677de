package providers

import (
	"context"
	"time"

	"github.com/binlecode/agentcore/internal/retry"
)

// BaseProvider holds shared retry configuration for LLM providers.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

// NewBaseProvider creates a base provider with sane defaults.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Retry executes op with exponential backoff, retrying only errors
// isRetryable accepts. Non-retryable errors are wrapped in
// retry.Permanent so retry.Do returns on the first attempt.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	cfg := retry.Exponential(b.maxRetries, b.retryDelay, 30*time.Second)
	result := retry.Do(ctx, cfg, func() error {
		err := op()
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if result.Err == nil {
		return nil
	}
	if permanent, ok := result.Err.(*retry.PermanentError); ok {
		return permanent.Unwrap()
	}
	return result.Err
}
