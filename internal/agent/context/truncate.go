// Package context implements the history processors run at each
// turn's commit boundary: per-message tool-output truncation, sliding
// window summarization, and interrupted-transcript repair.
package context

import "strconv"

// TruncateConfig bounds a single tool-return's content length.
type TruncateConfig struct {
	// MaxChars is the hard cap on a tool return's Content field.
	// Default: 2000, matching tool_output_trim_chars.
	MaxChars int
}

// DefaultTruncateConfig returns the runtime's default trim threshold.
func DefaultTruncateConfig() TruncateConfig {
	return TruncateConfig{MaxChars: 2000}
}

// Truncator trims over-long tool output to a fixed character budget,
// keeping a head and tail slice and dropping the middle. It never
// touches any other Part kind: only ToolReturn content is trimmed.
type Truncator struct {
	cfg TruncateConfig
}

// NewTruncator builds a Truncator. A non-positive MaxChars disables
// trimming (TruncateContent becomes a no-op).
func NewTruncator(cfg TruncateConfig) *Truncator {
	return &Truncator{cfg: cfg}
}

// TruncateContent returns content unchanged if it fits within MaxChars,
// otherwise returns a head+tail trim with a note recording how much was
// dropped.
func (t *Truncator) TruncateContent(content string) string {
	if t.cfg.MaxChars <= 0 || len(content) <= t.cfg.MaxChars {
		return content
	}

	keepFirst := t.cfg.MaxChars * 2 / 3
	keepLast := t.cfg.MaxChars - keepFirst
	if keepFirst+keepLast >= len(content) {
		return content
	}

	head := content[:keepFirst]
	tail := content[len(content)-keepLast:]
	dropped := len(content) - keepFirst - keepLast

	return head + "\n...[" + strconv.Itoa(dropped) + " chars truncated]...\n" + tail
}
