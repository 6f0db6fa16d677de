package context

import (
	"context"
	"testing"

	"github.com/binlecode/agentcore/pkg/models"
)

type fakeSummaryModel struct {
	called    bool
	transcript string
}

func (f *fakeSummaryModel) Summarize(ctx context.Context, transcript string, maxChars int) (string, error) {
	f.called = true
	f.transcript = transcript
	return "summary of earlier turns", nil
}

func buildHistory(n int) *models.MessageHistory {
	h := &models.MessageHistory{}
	for i := 0; i < n; i++ {
		h.Append(models.Message{Role: models.RoleUser, Parts: []models.Part{models.UserText("message")}})
	}
	return h
}

func TestSlidingWindowSummariserTriggersAtThreshold(t *testing.T) {
	cfg := SummarizeConfig{Threshold: 40, KeepRecent: 10, KeepHead: 2, MaxSummaryChars: 2000}
	fake := &fakeSummaryModel{}
	s := NewSlidingWindowSummariser(fake, cfg)

	h := buildHistory(41)
	if !s.ShouldSummarize(h) {
		t.Fatalf("expected summarization to trigger at 41 messages with threshold 40")
	}

	out, err := s.Summarize(context.Background(), h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fake.called {
		t.Fatalf("expected summary model to be invoked")
	}
	// head(2) + summary(1) + recent(10)
	if len(out) != 13 {
		t.Fatalf("expected 13 messages after summarization, got %d", len(out))
	}
}

func TestSlidingWindowSummariserNoOpBelowThreshold(t *testing.T) {
	cfg := DefaultSummarizeConfig()
	fake := &fakeSummaryModel{}
	s := NewSlidingWindowSummariser(fake, cfg)

	h := buildHistory(5)
	out, err := s.Summarize(context.Background(), h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.called {
		t.Fatalf("summary model should not be invoked below threshold")
	}
	if len(out) != 5 {
		t.Fatalf("expected history unchanged, got %d messages", len(out))
	}
}

func TestSlidingWindowSummariserTriggersOnTokenBudget(t *testing.T) {
	cfg := SummarizeConfig{Threshold: 1000, KeepRecent: 10, KeepHead: 2, MaxSummaryChars: 2000}
	fake := &fakeSummaryModel{}
	s := NewSlidingWindowSummariser(fake, cfg).WithModelWindow("gpt-4")

	// gpt-4's window is 8192 tokens; a handful of long messages should
	// push remaining budget below WarnBelowTokens well before the
	// 1000-message count threshold is anywhere close.
	h := &models.MessageHistory{}
	long := make([]byte, 30000)
	for i := range long {
		long[i] = 'x'
	}
	for i := 0; i < 5; i++ {
		h.Append(models.Message{Role: models.RoleAssistant, Parts: []models.Part{models.AssistantText(string(long))}})
	}

	if !s.ShouldSummarize(h) {
		t.Fatalf("expected token-budget trigger to fire well under the message-count threshold")
	}
}

func TestSlidingWindowSummariserNoTokenTriggerWithoutWindow(t *testing.T) {
	cfg := SummarizeConfig{Threshold: 1000, KeepRecent: 10, KeepHead: 2, MaxSummaryChars: 2000}
	fake := &fakeSummaryModel{}
	s := NewSlidingWindowSummariser(fake, cfg)

	h := &models.MessageHistory{}
	long := make([]byte, 30000)
	for i := range long {
		long[i] = 'x'
	}
	for i := 0; i < 5; i++ {
		h.Append(models.Message{Role: models.RoleAssistant, Parts: []models.Part{models.AssistantText(string(long))}})
	}

	if s.ShouldSummarize(h) {
		t.Fatalf("without WithModelWindow, large content should not trigger summarization below the message-count threshold")
	}
}
