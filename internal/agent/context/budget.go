package context

import (
	"strings"
	"unicode/utf8"

	"github.com/binlecode/agentcore/pkg/models"
)

// Token budget constants. TokensPerChar is a conservative estimate used
// when no provider-reported token count is available.
const (
	DefaultContextWindow = 128000
	MinContextWindow     = 16000
	WarnBelowTokens      = 32000
	TokensPerChar        = 0.25
)

// modelContextWindows maps known model IDs to their context window size
// in tokens. Looked up by prefix, since provider model IDs carry dated
// suffixes (e.g. "claude-opus-4-20250514").
var modelContextWindows = map[string]int{
	"claude-3-opus":     200000,
	"claude-3-sonnet":   200000,
	"claude-3-haiku":    200000,
	"claude-3-5-sonnet": 200000,
	"claude-3-5-haiku":  200000,
	"claude-opus-4":     200000,
	"claude-sonnet-4":   200000,

	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"gpt-3.5-turbo":     16385,
	"gpt-3.5-turbo-16k": 16385,
	"o1":                200000,
	"o1-mini":           128000,
	"o1-preview":        128000,
	"o3-mini":           200000,

	"gemini-pro":       32768,
	"gemini-1.5-pro":   2097152,
	"gemini-1.5-flash": 1048576,
	"gemini-2.0-flash": 1048576,
}

// WindowInfo is a point-in-time snapshot of a Window's budget.
type WindowInfo struct {
	TotalTokens     int
	UsedTokens      int
	RemainingTokens int
	UsedPercent     float64
	Source          string
}

// ShouldWarn reports whether the remaining budget is getting low.
func (w WindowInfo) ShouldWarn() bool { return w.RemainingTokens < WarnBelowTokens }

// ShouldBlock reports whether the remaining budget is too low to
// safely continue without summarizing.
func (w WindowInfo) ShouldBlock() bool { return w.RemainingTokens < MinContextWindow }

// Window tracks estimated token usage against a model's context window,
// giving the sliding-window summariser a second, token-aware trigger
// alongside its message-count threshold.
type Window struct {
	total  int
	used   int
	source string
}

// NewWindowForModel builds a Window sized for modelID, falling back to
// DefaultContextWindow if the model (or its prefix) is unrecognized.
func NewWindowForModel(modelID string) *Window {
	if tokens, ok := lookupModelWindow(modelID); ok {
		return &Window{total: tokens, source: "model"}
	}
	return &Window{total: DefaultContextWindow, source: "default"}
}

func lookupModelWindow(modelID string) (int, bool) {
	if tokens, ok := modelContextWindows[modelID]; ok {
		return tokens, true
	}
	bestPrefix, bestTokens := "", 0
	for prefix, tokens := range modelContextWindows {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix, bestTokens = prefix, tokens
		}
	}
	if bestPrefix != "" {
		return bestTokens, true
	}
	return 0, false
}

// SetUsed records the current estimated or reported token usage.
func (w *Window) SetUsed(tokens int) { w.used = tokens }

// Info returns the current snapshot of the window's budget.
func (w *Window) Info() WindowInfo {
	remaining := w.total - w.used
	if remaining < 0 {
		remaining = 0
	}
	var usedPercent float64
	if w.total > 0 {
		usedPercent = float64(w.used) / float64(w.total) * 100
	}
	return WindowInfo{
		TotalTokens:     w.total,
		UsedTokens:      w.used,
		RemainingTokens: remaining,
		UsedPercent:     usedPercent,
		Source:          w.source,
	}
}

// EstimateTokens gives a conservative character-based token estimate
// for text whose real token count hasn't been reported by a provider.
func EstimateTokens(text string) int {
	chars := utf8.RuneCountInString(text)
	tokens := int(float64(chars) * TokensPerChar)
	if tokens == 0 && chars > 0 {
		return 1
	}
	return tokens
}

// EstimateTokensForMessages sums a conservative token estimate across
// every text-bearing part of a committed history, plus a small
// per-message overhead for role and formatting.
func EstimateTokensForMessages(msgs []models.Message) int {
	total := 0
	for _, m := range msgs {
		for _, p := range m.Parts {
			switch p.Kind {
			case models.PartUserText, models.PartAssistantText, models.PartThinking:
				total += EstimateTokens(p.Text)
			case models.PartToolCall:
				total += EstimateTokens(string(p.ToolArgs))
			case models.PartToolReturn:
				if p.HasDisplay() {
					total += EstimateTokens(*p.Display)
				} else {
					total += EstimateTokens(p.Content)
				}
			}
			total += 4
		}
	}
	return total
}
