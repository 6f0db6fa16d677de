// Package repl implements the terminal REPL dispatcher (C10): the
// read-eval-print loop, its slash-command registry, and the concrete
// terminal rendering of the frontend contract (C5).
package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/binlecode/agentcore/internal/agent"
	"github.com/binlecode/agentcore/internal/tools"
	"github.com/binlecode/agentcore/pkg/models"
)

// defaultTruncateWidth is the plain-string tool-output truncation length
// used when stdout isn't a real terminal (piped output, tests) or its
// width can't be determined.
const defaultTruncateWidth = 400

// terminalTruncateWidth reports how many characters of a plain-string
// tool result to show before truncating, scaled to the terminal's
// reported column width when stdout is a TTY; piped output keeps the
// fixed default instead of guessing a width that doesn't apply.
func terminalTruncateWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultTruncateWidth
	}
	cols, _, err := term.GetSize(fd)
	if err != nil || cols <= 0 {
		return defaultTruncateWidth
	}
	// Roughly four lines' worth of a result panel.
	width := cols * 4
	if width < defaultTruncateWidth {
		width = defaultTruncateWidth
	}
	return width
}

// TerminalFrontend is the synchronous half of the frontend contract
// (agent.Frontend), backed by plain stdin/stdout. It deliberately does
// no raw-mode input handling: approval prompts are answered with a
// newline-terminated line, matching the teacher's own bufio-based
// prompt idiom rather than a full-screen TUI.
type TerminalFrontend struct {
	out io.Writer
	in  *bufio.Reader
}

// NewTerminalFrontend builds a TerminalFrontend over the given streams.
func NewTerminalFrontend(out io.Writer, in io.Reader) *TerminalFrontend {
	return &TerminalFrontend{out: out, in: bufio.NewReader(in)}
}

// OnStatus prints a status line prefixed to distinguish it from model
// output (retry notices, cancellation warnings).
func (f *TerminalFrontend) OnStatus(message string) {
	fmt.Fprintf(f.out, "· %s\n", message)
}

// OnFinalOutput prints the turn's answer when it was not already
// streamed delta-by-delta.
func (f *TerminalFrontend) OnFinalOutput(text string) {
	fmt.Fprintln(f.out, text)
}

// Cleanup ends the turn's output region with a blank line.
func (f *TerminalFrontend) Cleanup() {
	fmt.Fprintln(f.out)
}

// PromptApproval blocks for a line of input and normalizes it to "y",
// "n", or "a". Anything else (including a read error) is treated as a
// denial, never as a silent approval.
func (f *TerminalFrontend) PromptApproval(description string) string {
	fmt.Fprintf(f.out, "approve %s? [y/n/a] ", description)
	line, err := f.in.ReadString('\n')
	if err != nil {
		return "n"
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	switch answer {
	case "y", "n", "a":
		return answer
	default:
		return "n"
	}
}

// StreamRenderer is the streaming half of the frontend contract: an
// agent.EventSink that turns model.delta/model.completed/tool.started/
// tool.finished events into on_text_delta/on_text_commit/on_tool_call/
// on_tool_result rendering. It is driven independently of
// Dispatcher and TurnMachine, subscribed to the same EventEmitter, so
// the turn machine never has to know whether anything is watching.
//
// This module's model.delta event carries only accumulated model text,
// not a separate thinking channel (see pkg/models.StreamEventPayload),
// so on_thinking_delta has no wire event to drive it; thinking is shown
// only at commit, from the Thinking part already folded into history,
// and only when verbose is enabled.
type StreamRenderer struct {
	out     io.Writer
	verbose bool

	mu      sync.Mutex
	pending map[string]string // callID -> one-line tool summary, from tool.started to tool.finished
	open    bool              // a text run is open (delta seen since last commit)
}

// NewStreamRenderer builds a StreamRenderer. verbose additionally logs
// tool timing once a call finishes.
func NewStreamRenderer(out io.Writer, verbose bool) *StreamRenderer {
	return &StreamRenderer{out: out, verbose: verbose, pending: make(map[string]string)}
}

// Emit implements agent.EventSink.
func (r *StreamRenderer) Emit(ctx context.Context, e models.AgentEvent) {
	switch e.Type {
	case models.AgentEventModelDelta:
		r.onTextDelta(e)
	case models.AgentEventModelCompleted:
		r.onTextCommit()
	case models.AgentEventToolStarted:
		r.onToolCall(e)
	case models.AgentEventToolFinished, models.AgentEventToolTimedOut:
		r.onToolResult(e)
	}
}

func (r *StreamRenderer) onTextDelta(e models.AgentEvent) {
	if e.Stream == nil || e.Stream.Delta == "" {
		return
	}
	fmt.Fprint(r.out, e.Stream.Delta)
	r.mu.Lock()
	r.open = true
	r.mu.Unlock()
}

// onTextCommit implements the boundary rule: the open text
// run, if any, is closed with a trailing newline before any subsequent
// tool event is rendered. Idempotent when no run is open.
func (r *StreamRenderer) onTextCommit() {
	r.mu.Lock()
	wasOpen := r.open
	r.open = false
	r.mu.Unlock()
	if wasOpen {
		fmt.Fprintln(r.out)
	}
}

func (r *StreamRenderer) onToolCall(e models.AgentEvent) {
	if e.Tool == nil {
		return
	}
	var args interface{}
	if len(e.Tool.ArgsJSON) > 0 {
		_ = json.Unmarshal(e.Tool.ArgsJSON, &args)
	}
	display := tools.ResolveToolDisplay(e.Tool.Name, args, "")
	summary := tools.FormatToolSummary(display)
	r.mu.Lock()
	r.pending[e.Tool.CallID] = summary
	r.mu.Unlock()
	fmt.Fprintf(r.out, "\n%s\n", summary)
}

func (r *StreamRenderer) onToolResult(e models.AgentEvent) {
	if e.Tool == nil {
		return
	}
	r.mu.Lock()
	delete(r.pending, e.Tool.CallID)
	r.mu.Unlock()

	status := "ok"
	if !e.Tool.Success {
		status = "failed"
	}
	if e.Type == models.AgentEventToolTimedOut {
		status = "timed out"
	}
	content, display := decodeToolContent(e.Tool.ResultJSON)
	switch {
	case display != "":
		// The tool's own authored UX: render verbatim, never truncated,
		// including any embedded URLs.
		fmt.Fprintf(r.out, "  [%s] %s\n", status, display)
	case content != "":
		fmt.Fprintf(r.out, "  [%s] %s\n", status, truncateForDisplay(content, terminalTruncateWidth()))
	default:
		fmt.Fprintf(r.out, "  [%s]\n", status)
	}
	if r.verbose {
		fmt.Fprintf(r.out, "  (%s, %s)\n", e.Tool.Name, e.Tool.Elapsed)
	}
}

// toolResultWire mirrors internal/agent's wire shape for a tool result
// event payload: a plain Content string, or a Display field carrying the
// tool's own authored output that must never be truncated or reformatted.
type toolResultWire struct {
	Content string  `json:"content,omitempty"`
	Display *string `json:"display,omitempty"`
}

// decodeToolContent recovers the tool result from a ToolFinished event's
// ResultJSON. Most calls carry the structured {content, display} wire
// shape; a few synthetic results (denial, not-found, panic) still carry
// a bare JSON string for backward compatibility with those call sites —
// both decode here.
func decodeToolContent(raw []byte) (content, display string) {
	if len(raw) == 0 {
		return "", ""
	}
	if raw[0] == '{' {
		var wire toolResultWire
		if err := json.Unmarshal(raw, &wire); err == nil {
			if wire.Display != nil {
				return wire.Content, *wire.Display
			}
			return wire.Content, ""
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, ""
	}
	return string(raw), ""
}

func truncateForDisplay(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
