package repl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/binlecode/agentcore/pkg/models"
)

// commandFunc runs one slash command against the REPL's live state.
// args is the remainder of the line after the command word, already
// trimmed.
type commandFunc func(r *REPL, args string) error

// commandSpec is one entry in the explicit slash-command registry: no
// reflection, every command named and described up front.
type commandSpec struct {
	Name string
	Help string
	Run  commandFunc
}

func defaultCommands() []commandSpec {
	return []commandSpec{
		{"help", "Print registered commands.", cmdHelp},
		{"clear", "Replace history with an empty conversation.", cmdClear},
		{"status", "System health snapshot (sandbox state, provider reachability).", cmdStatus},
		{"tools", "List registered tool names.", cmdTools},
		{"history", "Message/turn counts (read-only).", cmdHistory},
		{"compact", "Replace history with a compacted summary pair.", cmdCompact},
		{"yolo", "Toggle auto_confirm.", cmdYolo},
	}
}

func cmdHelp(r *REPL, _ string) error {
	fmt.Fprintln(r.out, "Commands:")
	for _, c := range r.commands {
		fmt.Fprintf(r.out, "  /%-10s %s\n", c.Name, c.Help)
	}
	return nil
}

func cmdClear(r *REPL, _ string) error {
	r.history.Messages = nil
	fmt.Fprintln(r.out, "history cleared")
	return nil
}

func cmdStatus(r *REPL, _ string) error {
	fmt.Fprintln(r.out, "Status")
	fmt.Fprintln(r.out, "------")
	sandboxName := "none"
	if r.sandbox != nil {
		sandboxName = r.sandbox.Name()
	}
	fmt.Fprintf(r.out, "sandbox backend : %s\n", sandboxName)
	fmt.Fprintf(r.out, "llm provider    : %s\n", r.providerName)
	fmt.Fprintf(r.out, "model           : %s\n", r.model)
	fmt.Fprintf(r.out, "tools registered: %d\n", len(r.registry.Names()))
	fmt.Fprintf(r.out, "messages        : %d\n", r.history.Len())
	fmt.Fprintf(r.out, "auto_confirm    : %t\n", r.approvals.PolicyFor(r.agentID).AutoConfirm)
	if r.stats != nil {
		stats := r.stats.Stats()
		fmt.Fprintf(r.out, "turns completed : %d\n", stats.Turns)
		fmt.Fprintf(r.out, "model requests  : %d\n", stats.Iters)
		fmt.Fprintf(r.out, "tokens in/out   : %d/%d\n", stats.InputTokens, stats.OutputTokens)
		fmt.Fprintf(r.out, "tool calls      : %d\n", stats.ToolCalls)
	}
	return nil
}

func cmdTools(r *REPL, _ string) error {
	names := r.registry.Names()
	if len(names) == 0 {
		fmt.Fprintln(r.out, "no tools registered")
		return nil
	}
	for _, name := range names {
		fmt.Fprintf(r.out, "  %s\n", name)
	}
	return nil
}

func cmdHistory(r *REPL, _ string) error {
	turns := 0
	for _, m := range r.history.Messages {
		if m.Role == models.RoleUser {
			turns++
		}
	}
	fmt.Fprintf(r.out, "messages: %d, turns: %d\n", r.history.Len(), turns)
	return nil
}

func cmdCompact(r *REPL, _ string) error {
	if r.history.Len() == 0 {
		fmt.Fprintln(r.out, "nothing to compact")
		return nil
	}
	if r.summaryModel == nil {
		return fmt.Errorf("compact: no summarization model configured")
	}

	transcript := renderHistoryTranscript(r.history.Messages)
	summary, err := r.summaryModel.Summarize(context.Background(), transcript, 2000)
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}

	now := time.Now()
	r.history.Messages = []models.Message{
		{
			ID:        uuid.NewString(),
			Role:      models.RoleUser,
			Parts:     []models.Part{models.UserText("[Compacted conversation summary]\n" + summary)},
			CreatedAt: now,
		},
		{
			ID:        uuid.NewString(),
			Role:      models.RoleAssistant,
			Parts:     []models.Part{models.AssistantText("Understood.")},
			CreatedAt: now,
		},
	}
	fmt.Fprintln(r.out, "history compacted")
	return nil
}

func cmdYolo(r *REPL, _ string) error {
	policy := *r.approvals.PolicyFor(r.agentID)
	policy.AutoConfirm = !policy.AutoConfirm
	r.approvals.SetAgentPolicy(r.agentID, &policy)
	fmt.Fprintf(r.out, "auto_confirm: %t\n", policy.AutoConfirm)
	return nil
}

// renderHistoryTranscript flattens committed messages into the plain-text
// form a disposable summarization call consumes, mirroring the shape
// internal/agent/context's sliding-window summariser renders for its own
// middle zone.
func renderHistoryTranscript(msgs []models.Message) string {
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
				} else if len(content) > 400 {
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
