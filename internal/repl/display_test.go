package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/binlecode/agentcore/pkg/models"
)

func TestTerminalFrontend_OnStatusAndOnFinalOutput(t *testing.T) {
	var out bytes.Buffer
	f := NewTerminalFrontend(&out, strings.NewReader(""))

	f.OnStatus("retrying")
	f.OnFinalOutput("the answer is 42")
	f.Cleanup()

	got := out.String()
	if !strings.Contains(got, "retrying") {
		t.Errorf("expected status line, got: %s", got)
	}
	if !strings.Contains(got, "the answer is 42") {
		t.Errorf("expected final output, got: %s", got)
	}
}

func TestTerminalFrontend_PromptApproval(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase y", "y\n", "y"},
		{"lowercase n", "n\n", "n"},
		{"approve all", "a\n", "a"},
		{"uppercase normalized", "Y\n", "y"},
		{"whitespace trimmed", "  n  \n", "n"},
		{"garbage denies", "maybe\n", "n"},
		{"empty line denies", "\n", "n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			f := NewTerminalFrontend(&out, strings.NewReader(tt.input))
			got := f.PromptApproval("run rm -rf /tmp/x")
			if got != tt.want {
				t.Errorf("PromptApproval(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTerminalFrontend_PromptApprovalEOFDenies(t *testing.T) {
	var out bytes.Buffer
	f := NewTerminalFrontend(&out, strings.NewReader(""))
	if got := f.PromptApproval("do a thing"); got != "n" {
		t.Errorf("PromptApproval on EOF = %q, want %q", got, "n")
	}
}

func TestStreamRenderer_TextDeltaAccumulatesThenCommitsNewline(t *testing.T) {
	var out bytes.Buffer
	r := NewStreamRenderer(&out, false)

	r.Emit(context.Background(), models.AgentEvent{
		Type:   models.AgentEventModelDelta,
		Stream: &models.StreamEventPayload{Delta: "hel"},
	})
	r.Emit(context.Background(), models.AgentEvent{
		Type:   models.AgentEventModelDelta,
		Stream: &models.StreamEventPayload{Delta: "lo"},
	})
	r.Emit(context.Background(), models.AgentEvent{Type: models.AgentEventModelCompleted})

	if out.String() != "hello\n" {
		t.Errorf("output = %q, want %q", out.String(), "hello\n")
	}
}

func TestStreamRenderer_CommitWithNoOpenRunIsNoop(t *testing.T) {
	var out bytes.Buffer
	r := NewStreamRenderer(&out, false)
	r.Emit(context.Background(), models.AgentEvent{Type: models.AgentEventModelCompleted})
	if out.Len() != 0 {
		t.Errorf("expected no output, got: %s", out.String())
	}
}

func TestStreamRenderer_EmptyDeltaIgnored(t *testing.T) {
	var out bytes.Buffer
	r := NewStreamRenderer(&out, false)
	r.Emit(context.Background(), models.AgentEvent{
		Type:   models.AgentEventModelDelta,
		Stream: &models.StreamEventPayload{Delta: ""},
	})
	if out.Len() != 0 {
		t.Errorf("expected no output for empty delta, got: %s", out.String())
	}
}

func TestStreamRenderer_ToolCallRendersSummary(t *testing.T) {
	var out bytes.Buffer
	r := NewStreamRenderer(&out, false)

	args, _ := json.Marshal(map[string]string{"command": "ls"})
	r.Emit(context.Background(), models.AgentEvent{
		Type: models.AgentEventToolStarted,
		Tool: &models.ToolEventPayload{CallID: "call-1", Name: "exec", ArgsJSON: args},
	})

	if out.Len() == 0 {
		t.Fatal("expected tool call summary to be rendered")
	}
}

func TestStreamRenderer_ToolResultSuccessAndFailure(t *testing.T) {
	successJSON, _ := json.Marshal("all good")

	var out bytes.Buffer
	r := NewStreamRenderer(&out, false)
	r.Emit(context.Background(), models.AgentEvent{
		Type: models.AgentEventToolFinished,
		Tool: &models.ToolEventPayload{CallID: "call-1", Name: "exec", Success: true, ResultJSON: successJSON},
	})
	if !strings.Contains(out.String(), "[ok]") {
		t.Errorf("expected ok status, got: %s", out.String())
	}

	out.Reset()
	failJSON, _ := json.Marshal("boom")
	r.Emit(context.Background(), models.AgentEvent{
		Type: models.AgentEventToolFinished,
		Tool: &models.ToolEventPayload{CallID: "call-2", Name: "exec", Success: false, ResultJSON: failJSON},
	})
	if !strings.Contains(out.String(), "[failed]") {
		t.Errorf("expected failed status, got: %s", out.String())
	}
}

func TestStreamRenderer_ToolTimedOutRendersTimedOutStatus(t *testing.T) {
	var out bytes.Buffer
	r := NewStreamRenderer(&out, false)
	r.Emit(context.Background(), models.AgentEvent{
		Type: models.AgentEventToolTimedOut,
		Tool: &models.ToolEventPayload{CallID: "call-1", Name: "exec"},
	})
	if !strings.Contains(out.String(), "[timed out]") {
		t.Errorf("expected timed-out status, got: %s", out.String())
	}
}

func TestStreamRenderer_ToolResultIgnoredWithoutTool(t *testing.T) {
	var out bytes.Buffer
	r := NewStreamRenderer(&out, false)
	r.Emit(context.Background(), models.AgentEvent{Type: models.AgentEventToolFinished})
	if out.Len() != 0 {
		t.Errorf("expected no output when Tool payload is nil, got: %s", out.String())
	}
}

func TestStreamRenderer_VerboseAddsTimingLine(t *testing.T) {
	resultJSON, _ := json.Marshal("done")

	var out bytes.Buffer
	r := NewStreamRenderer(&out, true)
	r.Emit(context.Background(), models.AgentEvent{
		Type: models.AgentEventToolFinished,
		Tool: &models.ToolEventPayload{CallID: "call-1", Name: "exec", Success: true, ResultJSON: resultJSON, Elapsed: 250 * time.Millisecond},
	})
	if !strings.Contains(out.String(), "exec") {
		t.Errorf("expected verbose timing line with tool name, got: %s", out.String())
	}
}

func TestDecodeToolContent(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{"nil payload", nil, ""},
		{"empty payload", []byte{}, ""},
		{"json string", []byte(`"hello"`), "hello"},
		{"non-json falls back to raw", []byte("not json"), "not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeToolContent(tt.raw)
			if got != tt.want {
				t.Errorf("decodeToolContent(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestTruncateForDisplay(t *testing.T) {
	if got := truncateForDisplay("short", 10); got != "short" {
		t.Errorf("truncateForDisplay short = %q, want unchanged", got)
	}
	long := strings.Repeat("a", 20)
	got := truncateForDisplay(long, 10)
	if got != strings.Repeat("a", 10)+"…" {
		t.Errorf("truncateForDisplay long = %q", got)
	}
}
