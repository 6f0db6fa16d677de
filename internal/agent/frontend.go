package agent

// Frontend is the synchronous half of the turn driver's contract with
// whatever is presenting the conversation to a human. The streaming
// half (text/thinking deltas and commits, tool call/result rendering)
// is driven separately, by subscribing an EventSink to the same
// EventEmitter the turn machine already reports to; only the calls
// that need a direct, non-event round-trip live here.
type Frontend interface {
	// OnStatus reports a turn-machine status change (e.g. "retrying in 2s")
	// that isn't itself an AgentEvent.
	OnStatus(message string)

	// OnFinalOutput delivers the turn's final answer when it was not
	// already streamed delta-by-delta (StepResult.StreamedText false).
	OnFinalOutput(text string)

	// Cleanup is called exactly once when the turn ends, however it
	// ends, so the frontend can flush any in-progress rendering.
	Cleanup()

	// PromptApproval blocks for a human decision on a pending tool
	// call and returns "y" (approve), "n" (deny), or "a" (approve this
	// and every remaining call in the same turn).
	PromptApproval(description string) string
}

// nopFrontend discards everything and denies every approval prompt.
// It backs a TurnMachine built without an explicit Frontend, so
// headless callers (tests, batch runs) don't need to stub one out.
type nopFrontend struct{}

func (nopFrontend) OnStatus(string)              {}
func (nopFrontend) OnFinalOutput(string)         {}
func (nopFrontend) Cleanup()                     {}
func (nopFrontend) PromptApproval(string) string { return "n" }
