package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/binlecode/agentcore/pkg/models"
)

// SummarizeConfig controls when the sliding-window summariser fires.
type SummarizeConfig struct {
	// Threshold is the committed-message count that triggers
	// summarization. Default: 40, matching max_history_messages.
	Threshold int

	// KeepRecent is how many of the most recent messages are kept
	// verbatim (the "tail zone"); everything older than that, except a
	// small head zone, is folded into a summary message.
	KeepRecent int

	// KeepHead is how many of the earliest messages (typically the
	// opening user request and system framing) are always kept
	// verbatim, even after summarization.
	KeepHead int

	// MaxSummaryChars bounds the generated summary's length.
	MaxSummaryChars int
}

// DefaultSummarizeConfig returns the runtime's default thresholds.
func DefaultSummarizeConfig() SummarizeConfig {
	return SummarizeConfig{
		Threshold:       40,
		KeepRecent:      10,
		KeepHead:        2,
		MaxSummaryChars: 2000,
	}
}

// SummaryModel generates natural-language summaries. A disposable
// zero-tool agent run against summarization_model implements this in
// production; tests substitute a canned fake.
type SummaryModel interface {
	Summarize(ctx context.Context, transcript string, maxChars int) (string, error)
}

// SlidingWindowSummariser replaces the middle zone of a long message
// history with a single system-role summary message, keeping a fixed
// head and tail verbatim. It never runs mid-tool-call: callers must
// only invoke Summarize at a commit boundary, where H1 already holds.
type SlidingWindowSummariser struct {
	model  SummaryModel
	cfg    SummarizeConfig
	window *Window
}

// NewSlidingWindowSummariser builds a summariser against the given model.
func NewSlidingWindowSummariser(model SummaryModel, cfg SummarizeConfig) *SlidingWindowSummariser {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 40
	}
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = 10
	}
	if cfg.MaxSummaryChars <= 0 {
		cfg.MaxSummaryChars = 2000
	}
	return &SlidingWindowSummariser{model: model, cfg: cfg}
}

// WithModelWindow gives the summariser a second, token-aware trigger
// sized to modelID's real context window: ShouldSummarize returns true
// once estimated usage runs low on remaining budget, even if the
// message count hasn't reached Threshold yet. Returns the receiver for
// chaining.
func (s *SlidingWindowSummariser) WithModelWindow(modelID string) *SlidingWindowSummariser {
	s.window = NewWindowForModel(modelID)
	return s
}

// ShouldSummarize reports whether history has grown past the configured
// message-count threshold, or, when a model window was set via
// WithModelWindow, whether estimated token usage has eaten into the
// model's remaining context budget.
func (s *SlidingWindowSummariser) ShouldSummarize(history *models.MessageHistory) bool {
	if history.Len() > s.cfg.Threshold {
		return true
	}
	if s.window == nil {
		return false
	}
	s.window.SetUsed(EstimateTokensForMessages(history.Messages))
	return s.window.Info().ShouldWarn()
}

// Summarize folds the middle zone of history into one system message,
// returning the new, shorter slice of messages. It is a pure function:
// the caller is responsible for committing the result back onto the
// history. If fewer messages exist than KeepHead+KeepRecent, history is
// returned unchanged.
func (s *SlidingWindowSummariser) Summarize(ctx context.Context, history *models.MessageHistory) ([]models.Message, error) {
	msgs := history.Messages
	if !s.ShouldSummarize(history) {
		return msgs, nil
	}

	head := s.cfg.KeepHead
	tail := s.cfg.KeepRecent
	if head+tail >= len(msgs) {
		return msgs, nil
	}

	middle := msgs[head : len(msgs)-tail]
	if len(middle) == 0 {
		return msgs, nil
	}

	transcript := renderTranscript(middle)
	summaryText, err := s.model.Summarize(ctx, transcript, s.cfg.MaxSummaryChars)
	if err != nil {
		return nil, fmt.Errorf("summarize middle zone: %w", err)
	}

	summaryMsg := models.Message{
		ID:   uuid.NewString(),
		Role: RoleSummary,
		Parts: []models.Part{
			models.AssistantText(summaryText),
		},
	}

	out := make([]models.Message, 0, head+1+tail)
	out = append(out, msgs[:head]...)
	out = append(out, summaryMsg)
	out = append(out, msgs[len(msgs)-tail:]...)
	return out, nil
}

// RoleSummary is the role assigned to a synthetic summary message. It
// is a system message by provider-wire convention, but flagged so
// downstream display can distinguish "real" system framing from a
// generated summary.
const RoleSummary = models.RoleSystem

func renderTranscript(msgs []models.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		for _, p := range m.Parts {
			switch p.Kind {
			case models.PartUserText:
				sb.WriteString("[user]: " + p.Text + "\n")
			case models.PartAssistantText:
				sb.WriteString("[assistant]: " + p.Text + "\n")
			case models.PartToolCall:
				sb.WriteString(fmt.Sprintf("[assistant called %s]\n", p.ToolName))
			case models.PartToolReturn:
				content := p.Content
				if p.HasDisplay() {
					content = *p.Display
				}
				if len(content) > 400 {
					content = content[:400] + "..."
				}
				status := "ok"
				if p.IsError {
					status = "error"
				}
				sb.WriteString(fmt.Sprintf("[tool result (%s)]: %s\n", status, content))
			}
		}
	}
	return sb.String()
}
