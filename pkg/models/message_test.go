package models

import "testing"

func TestMessageHistoryDanglingToolCallIDs(t *testing.T) {
	h := &MessageHistory{}
	h.Append(Message{Role: RoleUser, Parts: []Part{UserText("list files")}})
	h.Append(Message{Role: RoleAssistant, Parts: []Part{
		AssistantText("sure"),
		ToolCallPart("call-1", "shell", nil),
	}})

	dangling := h.DanglingToolCallIDs()
	if len(dangling) != 1 || dangling[0] != "call-1" {
		t.Fatalf("expected dangling [call-1], got %v", dangling)
	}

	h.Messages[len(h.Messages)-1].Parts = append(h.Messages[len(h.Messages)-1].Parts,
		ToolReturnPart("call-1", "a.txt\nb.txt", false))

	if got := h.DanglingToolCallIDs(); len(got) != 0 {
		t.Fatalf("expected no dangling calls after pairing, got %v", got)
	}
}

func TestTurnBudgetConsume(t *testing.T) {
	b := NewTurnBudget(2)
	if exhausted := b.Consume(); exhausted {
		t.Fatalf("budget should not be exhausted after first consume")
	}
	if exhausted := b.Consume(); !exhausted {
		t.Fatalf("budget should be exhausted after second consume")
	}
	if b.Remaining != 0 {
		t.Fatalf("remaining should be 0, got %d", b.Remaining)
	}
	// Further consumes must not go negative.
	b.Consume()
	if b.Remaining != 0 {
		t.Fatalf("remaining must not go below zero, got %d", b.Remaining)
	}
}

func TestInterruptedToolReturn(t *testing.T) {
	p := InterruptedToolReturn("call-9")
	if p.Kind != PartToolReturn || p.CallID != "call-9" || !p.IsError {
		t.Fatalf("unexpected synthetic tool return: %+v", p)
	}
	if p.Content != "Interrupted by user." {
		t.Fatalf("unexpected content: %q", p.Content)
	}
}
