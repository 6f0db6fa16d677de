package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartKind discriminates the variants of Part.
type PartKind string

const (
	PartUserText      PartKind = "user_text"
	PartAssistantText PartKind = "assistant_text"
	PartThinking      PartKind = "thinking"
	PartToolCall      PartKind = "tool_call"
	PartToolReturn    PartKind = "tool_return"
)

// Part is a single piece of a Message's content. Exactly one of the
// payload fields is populated, selected by Kind.
//
// A ToolCall part and its matching ToolReturn part are paired by CallID;
// invariant H1 requires every ToolCall in committed history to have a
// corresponding ToolReturn before the next UserRequest is appended.
type Part struct {
	Kind PartKind `json:"kind"`

	// UserText / AssistantText / Thinking payload.
	Text string `json:"text,omitempty"`

	// ToolCall payload.
	CallID   string          `json:"call_id,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	ToolArgs json.RawMessage `json:"tool_args,omitempty"`

	// ToolReturn payload. Content is the string variant. Display, when
	// non-nil, is the tool's own authored UX for this result (the
	// `object-with-display` variant): frontend and history-processor code
	// must render or retain it verbatim, never truncating, summarising, or
	// otherwise reformatting it, even when it embeds URLs.
	Content  string  `json:"content,omitempty"`
	Display  *string `json:"display,omitempty"`
	IsError  bool    `json:"is_error,omitempty"`
	Deferred bool    `json:"deferred,omitempty"`
}

// HasDisplay reports whether this Part carries the tool's own authored
// display content rather than a plain string result.
func (p Part) HasDisplay() bool { return p.Display != nil }

// UserText builds a user-text Part.
func UserText(text string) Part { return Part{Kind: PartUserText, Text: text} }

// AssistantText builds an assistant-text Part.
func AssistantText(text string) Part { return Part{Kind: PartAssistantText, Text: text} }

// Thinking builds a thinking Part.
func Thinking(text string) Part { return Part{Kind: PartThinking, Text: text} }

// ToolCallPart builds a tool-call Part.
func ToolCallPart(callID, name string, args json.RawMessage) Part {
	return Part{Kind: PartToolCall, CallID: callID, ToolName: name, ToolArgs: args}
}

// ToolReturnPart builds a tool-return Part.
func ToolReturnPart(callID, content string, isError bool) Part {
	return Part{Kind: PartToolReturn, CallID: callID, Content: content, IsError: isError}
}

// ToolReturnDisplayPart builds a tool-return Part whose content is the
// tool's own authored display string — rendered verbatim by every
// downstream consumer, never truncated or summarised.
func ToolReturnDisplayPart(callID, toolName, display string, isError bool) Part {
	return Part{Kind: PartToolReturn, CallID: callID, ToolName: toolName, Display: &display, IsError: isError}
}

// InterruptedToolReturn is the synthetic ToolReturn used to repair a
// transcript left with a dangling tool call after a user interrupt.
func InterruptedToolReturn(callID string) Part {
	return Part{Kind: PartToolReturn, CallID: callID, Content: "Interrupted by user.", IsError: true}
}

// Message is one turn of conversation: a role and an ordered list of parts.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolCalls returns the tool-call parts in the message, in order.
func (m Message) ToolCalls() []Part {
	var out []Part
	for _, p := range m.Parts {
		if p.Kind == PartToolCall {
			out = append(out, p)
		}
	}
	return out
}

// ToolReturns returns the tool-return parts in the message, in order.
func (m Message) ToolReturns() []Part {
	var out []Part
	for _, p := range m.Parts {
		if p.Kind == PartToolReturn {
			out = append(out, p)
		}
	}
	return out
}

// UserRequest is a single user-submitted turn: free text plus any
// tool-return parts satisfying a prior DeferredToolRequest.
type UserRequest struct {
	Text        string `json:"text"`
	ToolReturns []Part `json:"tool_returns,omitempty"`
}

// ModelResponse is the accumulated result of one model turn: the parts
// the model produced, in order, plus whether it ended on a pending
// tool call (RequiresToolExec) the turn machine must now execute.
type ModelResponse struct {
	Parts            []Part `json:"parts"`
	RequiresToolExec bool   `json:"requires_tool_exec"`
	InputTokens      int    `json:"input_tokens"`
	OutputTokens     int    `json:"output_tokens"`
}

// MessageHistory is the ordered, append-only log of committed messages
// that backs a turn. Only full Message values (never partial streaming
// state) are appended, preserving invariant H1 at every commit boundary.
type MessageHistory struct {
	Messages []Message `json:"messages"`
}

// Append commits a message to history.
func (h *MessageHistory) Append(m Message) {
	h.Messages = append(h.Messages, m)
}

// Len returns the number of committed messages.
func (h *MessageHistory) Len() int { return len(h.Messages) }

// DanglingToolCallIDs returns call IDs from the last message's ToolCall
// parts that have no matching ToolReturn anywhere in that same message.
// A non-empty result means the transcript violates H1 and must be
// repaired (see internal/agent/context.RepairInterrupted) before a new
// UserRequest can be appended.
func (h *MessageHistory) DanglingToolCallIDs() []string {
	if len(h.Messages) == 0 {
		return nil
	}
	last := h.Messages[len(h.Messages)-1]
	returned := map[string]bool{}
	for _, p := range last.Parts {
		if p.Kind == PartToolReturn {
			returned[p.CallID] = true
		}
	}
	var dangling []string
	for _, p := range last.Parts {
		if p.Kind == PartToolCall && !returned[p.CallID] {
			dangling = append(dangling, p.CallID)
		}
	}
	return dangling
}

// TurnBudget caps the number of model round-trips within a single turn.
// The default of 25 matches the runtime's max_request_limit default.
type TurnBudget struct {
	Max       int `json:"max"`
	Remaining int `json:"remaining"`
}

// NewTurnBudget constructs a budget with Remaining == Max.
func NewTurnBudget(max int) TurnBudget {
	return TurnBudget{Max: max, Remaining: max}
}

// Consume decrements Remaining by one request and reports whether the
// budget is now exhausted. Remaining never goes below zero: budget
// monotonicity, it only decreases, never resets mid-turn.
func (b *TurnBudget) Consume() (exhausted bool) {
	if b.Remaining > 0 {
		b.Remaining--
	}
	return b.Remaining <= 0
}

// DeferredToolRequest describes a tool call the turn machine has paused
// on, awaiting either human approval (C8) or a later UserRequest that
// supplies the matching ToolReturn.
type DeferredToolRequest struct {
	CallID      string          `json:"call_id"`
	ToolName    string          `json:"tool_name"`
	ToolArgs    json.RawMessage `json:"tool_args"`
	Description string          `json:"description"`
	RequestedAt time.Time       `json:"requested_at"`
}
