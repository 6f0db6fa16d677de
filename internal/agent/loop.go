package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/binlecode/agentcore/pkg/models"
)

// StepOutcome discriminates how a single Dispatcher.Step call ended.
type StepOutcome string

const (
	// StepFinal means the model produced a plain-text answer with no
	// tool calls: the turn is over.
	StepFinal StepOutcome = "final"

	// StepContinue means every tool call this iteration was resolved
	// (allowed-and-executed or denied) and the turn machine should
	// send another request with the results appended.
	StepContinue StepOutcome = "continue"

	// StepDeferred means one or more tool calls are waiting on human
	// approval; the turn machine must run the approval cycle (C8)
	// before it can continue.
	StepDeferred StepOutcome = "deferred"
)

// StepResult is what one model round-trip plus sequential tool
// dispatch produced.
type StepResult struct {
	Outcome StepOutcome

	// FinalText is the model's plain-text answer when Outcome ==
	// StepFinal.
	FinalText string

	// StreamedText is true when FinalText was already streamed to the
	// frontend delta-by-delta as it arrived, so the caller should not
	// render it again on commit.
	StreamedText bool

	// NewParts are the parts to commit as one assistant message this
	// iteration: assistant text/thinking, plus interleaved ToolCall
	// and (for resolved calls) ToolReturn parts.
	NewParts []models.Part

	// Deferred lists tool calls awaiting approval. Non-empty only
	// when Outcome == StepDeferred.
	Deferred []models.DeferredToolRequest

	InputTokens  int
	OutputTokens int
}

// Dispatcher drives a single model round-trip and the sequential
// execution of any tool calls it produces. Unlike a pooled executor,
// tool calls here run one at a time: a request, a stream, a tool
// call, and an approval prompt are all suspension points in one
// cooperative loop, never concurrent goroutines racing for the same
// turn's state.
type Dispatcher struct {
	provider  LLMProvider
	registry  *ToolRegistry
	approvals *ApprovalChecker
	emitter   *EventEmitter

	shellToolName string
	agentID       string
}

// NewDispatcher builds a Dispatcher. approvals may be nil, in which
// case every tool call is allowed without a check (useful for tests
// and for callers that run their own approval gate upstream).
func NewDispatcher(provider LLMProvider, registry *ToolRegistry, approvals *ApprovalChecker, emitter *EventEmitter) *Dispatcher {
	if emitter == nil {
		emitter = NewEventEmitter("", nil)
	}
	return &Dispatcher{
		provider:  provider,
		registry:  registry,
		approvals: approvals,
		emitter:   emitter,
	}
}

// SetShellTool records which registered tool name is the built-in
// shell tool, so the safe-command bypass (C2, via ApprovalChecker)
// only ever applies to it.
func (d *Dispatcher) SetShellTool(name string) { d.shellToolName = name }

// SetAgentID scopes approval-policy lookups to a specific agent.
func (d *Dispatcher) SetAgentID(id string) { d.agentID = id }

// Step runs one model request to completion, streaming deltas through
// the event emitter as they arrive, then sequentially resolves any
// tool calls the model produced: denied calls are answered inline,
// allowed calls execute immediately, and calls requiring approval are
// returned as StepDeferred for the caller's approval cycle.
func (d *Dispatcher) Step(ctx context.Context, req *CompletionRequest, fullIsolation bool) (*StepResult, error) {
	if d.provider == nil {
		return nil, &LoopError{Phase: PhaseStream, Message: ErrNoProvider.Error(), Cause: ErrNoProvider}
	}

	chunks, err := d.provider.Complete(ctx, req)
	if err != nil {
		return nil, &LoopError{Phase: PhaseStream, Cause: err}
	}

	var text, thinking strings.Builder
	var toolCalls []models.ToolCall
	var inputTokens, outputTokens int
	streamedText := false

	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, &LoopError{Phase: PhaseStream, Cause: chunk.Error}
		}
		if chunk.Text != "" {
			if text.Len()+len(chunk.Text) > MaxResponseTextSize {
				return nil, &LoopError{Phase: PhaseStream, Message: "response text exceeded size limit"}
			}
			text.WriteString(chunk.Text)
			streamedText = true
			d.emitter.ModelDelta(ctx, chunk.Text)
		}
		if chunk.Thinking != "" {
			thinking.WriteString(chunk.Thinking)
		}
		if chunk.ToolCall != nil {
			if len(toolCalls) >= MaxToolCallsPerIteration {
				return nil, &LoopError{Phase: PhaseStream, Message: "too many tool calls in one iteration"}
			}
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			inputTokens = chunk.InputTokens
			outputTokens = chunk.OutputTokens
		}
	}

	// Commit boundary: once the stream ends, the accumulated text and
	// thinking are final. Everything from here (tool calls, approval
	// prompts) happens only after this commit.
	d.emitter.ModelCompleted(ctx, d.provider.Name(), req.Model, inputTokens, outputTokens)

	var parts []models.Part
	if text.Len() > 0 {
		parts = append(parts, models.AssistantText(text.String()))
	}
	if thinking.Len() > 0 {
		parts = append(parts, models.Thinking(thinking.String()))
	}

	if len(toolCalls) == 0 {
		return &StepResult{
			Outcome:      StepFinal,
			FinalText:    text.String(),
			StreamedText: streamedText,
			NewParts:     parts,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
		}, nil
	}

	var deferred []models.DeferredToolRequest
	for _, tc := range toolCalls {
		parts = append(parts, models.ToolCallPart(tc.ID, tc.Name, tc.Input))

		decision, reason := ApprovalAllowed, "no approval checker configured"
		if d.approvals != nil {
			shellCtx := ShellCallContext{
				IsShellTool:   d.shellToolName != "" && tc.Name == d.shellToolName,
				CommandLine:   commandLineOf(tc),
				FullIsolation: fullIsolation,
			}
			decision, reason = d.approvals.Check(ctx, d.agentID, tc, shellCtx)
		}

		switch decision {
		case ApprovalDenied:
			content := "denied: " + reason
			d.emitter.ToolFinished(ctx, tc.ID, tc.Name, false, mustJSON(content), 0)
			parts = append(parts, models.ToolReturnPart(tc.ID, content, true))
		case ApprovalPending:
			var schema json.RawMessage
			if tool, ok := d.registry.Get(tc.Name); ok {
				schema = tool.Schema()
			}
			deferred = append(deferred, models.DeferredToolRequest{
				CallID:      tc.ID,
				ToolName:    tc.Name,
				ToolArgs:    tc.Input,
				Description: describeToolCall(tc, schema),
				RequestedAt: time.Now(),
			})
		default: // ApprovalAllowed
			parts = append(parts, d.executeTool(ctx, tc))
		}
	}

	if len(deferred) > 0 {
		return &StepResult{
			Outcome:      StepDeferred,
			NewParts:     parts,
			Deferred:     deferred,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
		}, nil
	}
	return &StepResult{
		Outcome:      StepContinue,
		NewParts:     parts,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// ApprovalResolution is the caller's verdict on one deferred tool
// call, gathered during the approval cycle (C8).
type ApprovalResolution struct {
	Approved bool
	Reason   string // populated when Approved is false
}

// ResolveDeferred executes (or synthesizes a denial for) each
// previously deferred tool call now that the approval cycle has
// supplied a decision for it. The returned parts belong on the same
// message as the original ToolCall parts, to satisfy H1.
func (d *Dispatcher) ResolveDeferred(ctx context.Context, deferred []models.DeferredToolRequest, resolutions map[string]ApprovalResolution) []models.Part {
	parts := make([]models.Part, 0, len(deferred))
	for _, req := range deferred {
		res, ok := resolutions[req.CallID]
		if !ok || !res.Approved {
			reason := "denied by user"
			if ok && res.Reason != "" {
				reason = res.Reason
			}
			d.emitter.ToolFinished(ctx, req.CallID, req.ToolName, false, mustJSON(reason), 0)
			parts = append(parts, models.ToolReturnPart(req.CallID, reason, true))
			continue
		}
		tc := models.ToolCall{ID: req.CallID, Name: req.ToolName, Input: req.ToolArgs}
		parts = append(parts, d.executeTool(ctx, tc))
	}
	return parts
}

// executeTool looks up and runs a single allowed tool call, recovering
// from a panic the way a misbehaving tool implementation would
// otherwise take down the whole turn.
func (d *Dispatcher) executeTool(ctx context.Context, tc models.ToolCall) (part models.Part) {
	d.emitter.ToolStarted(ctx, tc.ID, tc.Name, tc.Input)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := NewToolError(tc.Name, ErrToolPanic).WithToolCallID(tc.ID).WithMessage(fmt.Sprintf("panic: %v", r))
			d.emitter.ToolFinished(ctx, tc.ID, tc.Name, false, nil, time.Since(start))
			part = models.ToolReturnPart(tc.ID, err.Error(), true)
		}
	}()

	tool, ok := d.registry.Get(tc.Name)
	if !ok {
		d.emitter.ToolFinished(ctx, tc.ID, tc.Name, false, nil, time.Since(start))
		return models.ToolReturnPart(tc.ID, ErrToolNotFound.Error()+": "+tc.Name, true)
	}

	result, err := tool.Execute(ctx, tc.Input)
	elapsed := time.Since(start)
	if err != nil {
		toolErr := NewToolError(tc.Name, err).WithToolCallID(tc.ID)
		d.emitter.ToolFinished(ctx, tc.ID, tc.Name, false, nil, elapsed)
		return models.ToolReturnPart(tc.ID, toolErr.Error(), true)
	}

	d.emitter.ToolFinished(ctx, tc.ID, tc.Name, !result.IsError, mustJSONResult(result), elapsed)
	if result.Display != nil {
		return models.ToolReturnDisplayPart(tc.ID, tc.Name, *result.Display, result.IsError)
	}
	return models.ToolReturnPart(tc.ID, result.Content, result.IsError)
}

// toolResultWire is the ResultJSON wire shape a ToolFinished event
// carries: Content for the plain-string variant, Display when the tool
// authored its own verbatim UX. Consumers (StreamRenderer, StatsCollector)
// must never summarise or truncate Display.
type toolResultWire struct {
	Content string  `json:"content,omitempty"`
	Display *string `json:"display,omitempty"`
}

// mustJSONResult marshals a ToolResult's content/display pair for a
// ToolFinished event payload. Marshaling these fields cannot fail.
func mustJSONResult(result *ToolResult) []byte {
	b, _ := json.Marshal(toolResultWire{Content: result.Content, Display: result.Display})
	return b
}

// mustJSON marshals a string for inclusion in a ToolEventPayload's
// ResultJSON field. Marshaling a string value cannot fail.
func mustJSON(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

// commandLineOf extracts the literal command line from a shell-tool
// call's raw input, for the C2 safe-command check. Non-shell tools
// never reach this path with a meaningful shellCtx.IsShellTool, so a
// miss here just means the bypass doesn't apply.
func commandLineOf(tc models.ToolCall) string {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(tc.Input, &input); err != nil {
		return ""
	}
	return input.Command
}

// describeToolCall renders a one-line, human-readable summary of a
// pending tool call for the approval prompt and for
// DeferredToolRequest.Description. schema, when the tool registered one,
// is validated against the parsed args first; a mismatch is folded into
// the description as a caveat rather than blocking the approval prompt —
// the human approver still gets the final say.
func describeToolCall(tc models.ToolCall, schema json.RawMessage) string {
	base := fmt.Sprintf("%s(%s)", tc.Name, string(tc.Input))
	if cmd := commandLineOf(tc); cmd != "" {
		base = fmt.Sprintf("%s: %s", tc.Name, cmd)
	}
	if err := validateAgainstSchema(schema, tc.Input); err != nil {
		base = fmt.Sprintf("%s [args do not match tool schema: %s]", base, err.Error())
	}
	return base
}
