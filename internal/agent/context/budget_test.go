package context

import (
	"testing"

	"github.com/binlecode/agentcore/pkg/models"
)

func TestNewWindowForModelExactMatch(t *testing.T) {
	w := NewWindowForModel("gpt-4o")
	info := w.Info()
	if info.TotalTokens != 128000 {
		t.Fatalf("expected 128000 tokens for gpt-4o, got %d", info.TotalTokens)
	}
	if info.Source != "model" {
		t.Fatalf("expected source=model, got %q", info.Source)
	}
}

func TestNewWindowForModelPrefixMatch(t *testing.T) {
	w := NewWindowForModel("claude-opus-4-20250514")
	if w.Info().TotalTokens != 200000 {
		t.Fatalf("expected prefix match on claude-opus-4, got %d", w.Info().TotalTokens)
	}
}

func TestNewWindowForModelUnknownFallsBackToDefault(t *testing.T) {
	w := NewWindowForModel("some-future-model")
	info := w.Info()
	if info.TotalTokens != DefaultContextWindow {
		t.Fatalf("expected default window, got %d", info.TotalTokens)
	}
	if info.Source != "default" {
		t.Fatalf("expected source=default, got %q", info.Source)
	}
}

func TestWindowInfoShouldWarnAndBlock(t *testing.T) {
	w := &Window{total: 200000}
	w.SetUsed(0)
	if w.Info().ShouldWarn() {
		t.Fatalf("fresh window should not warn")
	}

	w.SetUsed(180000) // remaining = 20000: under WarnBelowTokens, over MinContextWindow
	if !w.Info().ShouldWarn() {
		t.Fatalf("expected warn once remaining tokens drop below threshold")
	}
	if w.Info().ShouldBlock() {
		t.Fatalf("did not expect block yet")
	}

	w.SetUsed(190000) // remaining = 10000: under MinContextWindow
	if !w.Info().ShouldBlock() {
		t.Fatalf("expected block once remaining tokens drop below MinContextWindow")
	}
}

func TestEstimateTokensForMessages(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Parts: []models.Part{models.UserText("hello there")}},
		{Role: models.RoleAssistant, Parts: []models.Part{models.AssistantText("hi!")}},
	}
	tokens := EstimateTokensForMessages(msgs)
	if tokens <= 0 {
		t.Fatalf("expected positive token estimate, got %d", tokens)
	}
}

func TestEstimateTokensEmptyText(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty text, got %d", got)
	}
}
