package context

import "github.com/binlecode/agentcore/pkg/models"

// RepairInterrupted restores invariant H1 after a user interrupt leaves
// a dangling tool call in the last committed message: every ToolCall
// part without a matching ToolReturn gets a synthetic
// ToolReturn(content="Interrupted by user.", is_error=true) appended,
// in call order. If the last message has no dangling calls, history is
// returned unchanged.
func RepairInterrupted(history *models.MessageHistory) {
	dangling := history.DanglingToolCallIDs()
	if len(dangling) == 0 {
		return
	}
	last := &history.Messages[len(history.Messages)-1]
	for _, callID := range dangling {
		last.Parts = append(last.Parts, models.InterruptedToolReturn(callID))
	}
}
