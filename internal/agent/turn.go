package agent

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	agentcontext "github.com/binlecode/agentcore/internal/agent/context"
	"github.com/binlecode/agentcore/internal/agent/providers"
	"github.com/binlecode/agentcore/internal/backoff"
	"github.com/binlecode/agentcore/pkg/models"
)

// TurnResult is what a completed (or interrupted) turn hands back to
// the REPL dispatcher (C10): the messages committed to history this
// turn, the final text if the turn completed normally, and whether it
// was cut short.
type TurnResult struct {
	Messages    []models.Message
	Output      string
	Error       error
	Interrupted bool
}

// TurnMachine runs one run_turn: a single user request through
// however many model round-trips, tool calls, and approval cycles it
// takes to produce a final answer, enforcing the turn's request
// budget and the REFLECT/BACKOFF/ABORT error-recovery contract.
type TurnMachine struct {
	dispatcher *Dispatcher
	emitter    *EventEmitter
	frontend   Frontend

	truncator  *agentcontext.Truncator
	summariser *agentcontext.SlidingWindowSummariser

	fullIsolation bool
	defaultModel  string
	defaultSystem string
}

// SetDefaults sets the model and system prompt used when a turn's
// context carries no per-request override (WithModel / WithSystemPrompt).
func (m *TurnMachine) SetDefaults(model, system string) {
	m.defaultModel = model
	m.defaultSystem = system
}

// NewTurnMachine builds a TurnMachine. truncator and summariser are
// optional history processors (C6); a nil truncator or summariser
// simply skips that processing step.
func NewTurnMachine(dispatcher *Dispatcher, emitter *EventEmitter, frontend Frontend) *TurnMachine {
	if emitter == nil {
		emitter = NewEventEmitter("", nil)
	}
	if frontend == nil {
		frontend = nopFrontend{}
	}
	return &TurnMachine{dispatcher: dispatcher, emitter: emitter, frontend: frontend}
}

// SetHistoryProcessors wires the truncation and summarization
// processors (C6) to run at the end of every turn.
func (m *TurnMachine) SetHistoryProcessors(truncator *agentcontext.Truncator, summariser *agentcontext.SlidingWindowSummariser) {
	m.truncator = truncator
	m.summariser = summariser
}

// SetFullIsolation records whether the sandbox backing this turn's
// shell tool runs at full isolation, which gates the C2 safe-command
// approval bypass.
func (m *TurnMachine) SetFullIsolation(full bool) { m.fullIsolation = full }

// RunTurn appends userInput to history (after repairing any dangling
// tool calls left by a prior interrupt), then drives model round-trips
// until the model produces a final answer, the turn's request budget
// is exhausted, or the turn is aborted or interrupted.
func (m *TurnMachine) RunTurn(ctx context.Context, userInput string, history *models.MessageHistory, cfg RuntimeOptions) (result TurnResult) {
	cfg = mergeRuntimeOptions(DefaultRuntimeOptions(), cfg)

	m.emitter.TurnStarted(ctx)
	defer m.emitter.TurnFinished(ctx)
	defer func() {
		// Processors run exactly once, at the turn's commit boundary,
		// using a fresh context: summarization must still be allowed
		// to complete even when the turn itself was interrupted.
		m.applyHistoryProcessors(context.Background(), history)
		m.frontend.Cleanup()
	}()

	agentcontext.RepairInterrupted(history)

	var turnMessages []models.Message
	appendMsg := func(role models.Role, parts []models.Part) models.Message {
		msg := models.Message{ID: uuid.NewString(), Role: role, Parts: parts, CreatedAt: time.Now()}
		history.Append(msg)
		turnMessages = append(turnMessages, msg)
		return msg
	}

	if strings.TrimSpace(userInput) != "" {
		appendMsg(models.RoleUser, []models.Part{models.UserText(userInput)})
	}

	budget := models.NewTurnBudget(cfg.MaxRequests)
	attempt := 0
	lastReflectedSignature := ""

	for {
		if ctx.Err() != nil {
			return m.interrupted(history, turnMessages)
		}
		if budget.Remaining <= 0 {
			err := &BudgetExceededError{Max: budget.Max}
			m.emitter.RunError(ctx, err, false)
			return TurnResult{Messages: turnMessages, Error: err}
		}
		budget.Consume()

		m.emitter.IterStarted(ctx)
		req := &CompletionRequest{
			Model:                modelFromCtxOr(ctx, m.defaultModel),
			System:               systemPromptFromCtxOr(ctx, m.defaultSystem),
			Messages:             buildCompletionMessages(history),
			Tools:                m.dispatcher.registry.AsLLMTools(),
			MaxTokens:            cfg.MaxTokens,
			EnableThinking:       cfg.EnableThinking,
			ThinkingBudgetTokens: cfg.ThinkingBudgetTokens,
		}

		step, err := m.dispatcher.Step(ctx, req, m.fullIsolation)
		if err != nil {
			m.emitter.IterFinished(ctx)
			decision := Classify(err)
			switch decision.Action {
			case ActionReflect:
				sig := reflectSignature(err)
				if sig != "" && sig == lastReflectedSignature {
					// The model produced the same rejected request twice
					// in a row: reflecting again would just loop forever,
					// so escalate to ABORT instead of appending a third
					// copy of the same correction.
					m.emitter.RunError(ctx, err, false)
					return TurnResult{Messages: turnMessages, Error: err}
				}
				lastReflectedSignature = sig
				appendMsg(models.RoleUser, []models.Part{models.UserText(err.Error())})
				continue
			case ActionBackoff:
				if attempt >= cfg.MaxBackoffAttempts {
					m.emitter.RunError(ctx, err, false)
					return TurnResult{Messages: turnMessages, Error: err}
				}
				delay := decision.DelayHint
				if delay <= 0 {
					delay = backoff.ComputeBackoff(backoff.TurnBackoffPolicy(), attempt+1)
				}
				if delay > 30*time.Second {
					delay = 30 * time.Second
				}
				m.frontend.OnStatus("retrying in " + delay.Round(time.Millisecond).String() + ": " + decision.Reason)
				if sleepErr := backoff.SleepWithContext(ctx, delay); sleepErr != nil {
					return m.interrupted(history, turnMessages)
				}
				attempt++
				continue
			default: // ActionAbort
				m.frontend.OnStatus(err.Error())
				m.emitter.RunError(ctx, err, false)
				return TurnResult{Messages: turnMessages, Error: err}
			}
		}
		m.emitter.IterFinished(ctx)

		switch step.Outcome {
		case StepFinal:
			if len(step.NewParts) > 0 {
				appendMsg(models.RoleAssistant, step.NewParts)
			}
			if !step.StreamedText {
				m.frontend.OnFinalOutput(step.FinalText)
			}
			return TurnResult{Messages: turnMessages, Output: step.FinalText}

		case StepContinue:
			appendMsg(models.RoleAssistant, step.NewParts)
			continue

		case StepDeferred:
			msg := appendMsg(models.RoleAssistant, step.NewParts)

			resolutions, aborted := m.approvalCycle(ctx, step.Deferred)
			if aborted {
				return m.interrupted(history, turnMessages)
			}
			resolvedParts := m.dispatcher.ResolveDeferred(ctx, step.Deferred, resolutions)
			appendPartsToMessage(history, msg.ID, resolvedParts)
			appendPartsToLastTurnMessage(turnMessages, msg.ID, resolvedParts)
			continue
		}
	}
}

// reflectSignature identifies a reflected error by its HTTP status and
// body text, so RunTurn can tell a genuinely new rejection apart from
// the model repeating the same malformed request. Errors that carry no
// such signature (tool-misuse reflections) return "", which never
// matches a prior signature and so never triggers escalation.
func reflectSignature(err error) string {
	provErr, ok := providers.GetProviderError(err)
	if !ok {
		return ""
	}
	return strconv.Itoa(provErr.Status) + "|" + provErr.Message
}

// approvalCycle prompts the frontend for each deferred tool call in
// order. Answering "a" approves the rest of this cycle (and every
// later deferred call this turn) without further prompts.
func (m *TurnMachine) approvalCycle(ctx context.Context, deferred []models.DeferredToolRequest) (map[string]ApprovalResolution, bool) {
	resolutions := make(map[string]ApprovalResolution, len(deferred))
	autoApprove := false

	for _, req := range deferred {
		if ctx.Err() != nil {
			return resolutions, true
		}
		if autoApprove {
			resolutions[req.CallID] = ApprovalResolution{Approved: true}
			continue
		}
		switch strings.ToLower(strings.TrimSpace(m.frontend.PromptApproval(req.Description))) {
		case "a":
			autoApprove = true
			resolutions[req.CallID] = ApprovalResolution{Approved: true}
		case "y":
			resolutions[req.CallID] = ApprovalResolution{Approved: true}
		default:
			resolutions[req.CallID] = ApprovalResolution{Approved: false, Reason: "denied by user"}
		}
	}

	if autoApprove && m.dispatcher.approvals != nil {
		policy := *m.dispatcher.approvals.PolicyFor(m.dispatcher.agentID)
		policy.AutoConfirm = true
		m.dispatcher.approvals.SetAgentPolicy(m.dispatcher.agentID, &policy)
	}
	return resolutions, false
}

// interrupted repairs any dangling tool call left by an in-flight
// approval or backoff wait that the user cut short, and reports the
// turn as interrupted rather than errored.
func (m *TurnMachine) interrupted(history *models.MessageHistory, turnMessages []models.Message) TurnResult {
	agentcontext.RepairInterrupted(history)
	if n := len(turnMessages); n > 0 && len(history.Messages) > 0 {
		last := history.Messages[len(history.Messages)-1]
		if turnMessages[n-1].ID == last.ID {
			turnMessages[n-1] = last
		}
	}
	m.emitter.RunCancelled(context.Background())
	return TurnResult{Messages: turnMessages, Interrupted: true}
}

// applyHistoryProcessors runs the truncation processor over all but
// the most recent two messages (so freshly committed tool output is
// never immediately re-trimmed), then summarizes the transcript if it
// has grown past the configured threshold.
func (m *TurnMachine) applyHistoryProcessors(ctx context.Context, history *models.MessageHistory) {
	if m.truncator != nil {
		n := len(history.Messages)
		for i := 0; i < n-2; i++ {
			parts := history.Messages[i].Parts
			for j := range parts {
				if parts[j].Kind == models.PartToolReturn && !parts[j].HasDisplay() {
					parts[j].Content = m.truncator.TruncateContent(parts[j].Content)
				}
			}
		}
	}
	if m.summariser != nil && m.summariser.ShouldSummarize(history) {
		if replaced, err := m.summariser.Summarize(ctx, history); err == nil {
			history.Messages = replaced
		} else {
			m.emitter.RunError(ctx, err, true)
		}
	}
}

// appendPartsToMessage appends parts to the committed history message
// with the given ID, keeping a deferred tool call's eventual
// ToolReturn on the same message as its ToolCall (required by H1).
func appendPartsToMessage(history *models.MessageHistory, messageID string, parts []models.Part) {
	for i := range history.Messages {
		if history.Messages[i].ID == messageID {
			history.Messages[i].Parts = append(history.Messages[i].Parts, parts...)
			return
		}
	}
}

// appendPartsToLastTurnMessage mirrors appendPartsToMessage onto the
// turn's own in-memory message snapshot (turnMessages), so the
// TurnResult returned to the caller reflects the final, H1-satisfying
// state rather than the pre-approval one.
func appendPartsToLastTurnMessage(turnMessages []models.Message, messageID string, parts []models.Part) {
	for i := range turnMessages {
		if turnMessages[i].ID == messageID {
			turnMessages[i].Parts = append(turnMessages[i].Parts, parts...)
			return
		}
	}
}

// buildCompletionMessages flattens Part-based history into the flat
// CompletionMessage shape an LLMProvider speaks. Thinking parts are
// not replayed as conversation content: they were the model's own
// private reasoning, not something to feed back as input.
func buildCompletionMessages(history *models.MessageHistory) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(history.Messages))
	for _, msg := range history.Messages {
		var content strings.Builder
		var calls []models.ToolCall
		var results []models.ToolResult
		for _, p := range msg.Parts {
			switch p.Kind {
			case models.PartUserText, models.PartAssistantText:
				content.WriteString(p.Text)
			case models.PartToolCall:
				calls = append(calls, models.ToolCall{ID: p.CallID, Name: p.ToolName, Input: p.ToolArgs})
			case models.PartToolReturn:
				// The model itself still needs text to reason over even
				// when the tool authored a display-only result: fall back
				// to Display verbatim rather than sending empty content.
				text := p.Content
				if p.HasDisplay() {
					text = *p.Display
				}
				results = append(results, models.ToolResult{ToolCallID: p.CallID, Content: text, IsError: p.IsError})
			}
		}
		out = append(out, CompletionMessage{
			Role:        string(msg.Role),
			Content:     content.String(),
			ToolCalls:   calls,
			ToolResults: results,
		})
	}
	return out
}

func modelFromCtxOr(ctx context.Context, fallback string) string {
	if model, ok := modelFromContext(ctx); ok {
		return model
	}
	return fallback
}

func systemPromptFromCtxOr(ctx context.Context, fallback string) string {
	if prompt, ok := systemPromptFromContext(ctx); ok {
		return prompt
	}
	return fallback
}
