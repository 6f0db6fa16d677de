package repl

import (
	"context"
	"fmt"

	"github.com/binlecode/agentcore/internal/agent"
)

// providerSummaryModel adapts an agent.LLMProvider into the
// agentcontext.SummaryModel interface, for both the sliding-window
// summariser (C6) and /compact (C10): a disposable, tool-free
// completion request asking the model to summarize a transcript.
type providerSummaryModel struct {
	provider agent.LLMProvider
	model    string
}

// NewProviderSummaryModel builds a SummaryModel backed by provider,
// using model for every summarization request (independent of
// whatever model the live conversation is using).
func NewProviderSummaryModel(provider agent.LLMProvider, model string) *providerSummaryModel {
	return &providerSummaryModel{provider: provider, model: model}
}

func (s *providerSummaryModel) Summarize(ctx context.Context, transcript string, maxChars int) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following conversation transcript in at most %d characters. "+
			"Preserve concrete facts, decisions, and any unresolved questions. "+
			"Do not add commentary about the summarization itself.\n\n%s",
		maxChars, transcript,
	)

	req := &agent.CompletionRequest{
		Model:     s.model,
		System:    "You summarize agent conversation transcripts concisely and factually.",
		Messages:  []agent.CompletionMessage{{Role: "user", Content: prompt}},
		MaxTokens: 1024,
	}

	chunks, err := s.provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	var out []byte
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", fmt.Errorf("summarize: %w", chunk.Error)
		}
		out = append(out, chunk.Text...)
		if chunk.Done {
			break
		}
	}

	summary := string(out)
	if len(summary) > maxChars {
		summary = summary[:maxChars]
	}
	return summary, nil
}
