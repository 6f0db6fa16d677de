package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/binlecode/agentcore/pkg/models"
)

func TestChanSink_Emit(t *testing.T) {
	ch := make(chan models.AgentEvent, 10)
	sink := NewChanSink(ch)

	event := models.AgentEvent{Type: models.AgentEventModelDelta, RunID: "test"}
	sink.Emit(context.Background(), event)

	select {
	case received := <-ch:
		if received.RunID != "test" {
			t.Errorf("RunID = %q, want %q", received.RunID, "test")
		}
	default:
		t.Error("expected event in channel")
	}
}

func TestChanSink_FullChannel(t *testing.T) {
	ch := make(chan models.AgentEvent, 1)
	sink := NewChanSink(ch)

	sink.Emit(context.Background(), models.AgentEvent{RunID: "first"})

	done := make(chan struct{})
	go func() {
		sink.Emit(context.Background(), models.AgentEvent{RunID: "second"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("ChanSink.Emit blocked on full channel")
	}
}

func TestChanSink_ContextCancelled(t *testing.T) {
	ch := make(chan models.AgentEvent, 1)
	sink := NewChanSink(ch)

	sink.Emit(context.Background(), models.AgentEvent{RunID: "first"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sink.Emit(ctx, models.AgentEvent{RunID: "cancelled"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("ChanSink.Emit blocked with cancelled context")
	}
}

func TestMultiSink_Emit(t *testing.T) {
	var order []string
	var mu sync.Mutex

	sink1 := NewCallbackSink(func(ctx context.Context, e models.AgentEvent) {
		mu.Lock()
		order = append(order, "sink1")
		mu.Unlock()
	})
	sink2 := NewCallbackSink(func(ctx context.Context, e models.AgentEvent) {
		mu.Lock()
		order = append(order, "sink2")
		mu.Unlock()
	})

	multi := NewMultiSink(sink1, sink2)
	multi.Emit(context.Background(), models.AgentEvent{})

	mu.Lock()
	defer mu.Unlock()

	if len(order) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(order))
	}
	if order[0] != "sink1" || order[1] != "sink2" {
		t.Errorf("order = %v, want [sink1 sink2]", order)
	}
}

func TestMultiSink_FiltersNil(t *testing.T) {
	var called bool
	sink := NewCallbackSink(func(ctx context.Context, e models.AgentEvent) {
		called = true
	})

	multi := NewMultiSink(nil, sink, nil)
	multi.Emit(context.Background(), models.AgentEvent{})

	if !called {
		t.Error("expected non-nil sink to be called")
	}
}

func TestCallbackSink_Emit(t *testing.T) {
	var received models.AgentEvent
	sink := NewCallbackSink(func(ctx context.Context, e models.AgentEvent) {
		received = e
	})

	event := models.AgentEvent{Type: models.AgentEventRunStarted, RunID: "callback-test"}
	sink.Emit(context.Background(), event)

	if received.RunID != "callback-test" {
		t.Errorf("RunID = %q, want %q", received.RunID, "callback-test")
	}
}

func TestCallbackSink_NilFunc(t *testing.T) {
	sink := NewCallbackSink(nil)

	// Should not panic
	sink.Emit(context.Background(), models.AgentEvent{})
}

func TestNopSink_Emit(t *testing.T) {
	sink := NopSink{}

	// Should not panic
	sink.Emit(context.Background(), models.AgentEvent{})
}

func TestBackpressureSink_HighPriNeverDropped(t *testing.T) {
	sink, out := NewBackpressureSink(BackpressureConfig{HighPriBuffer: 1, LowPriBuffer: 1})
	defer sink.Close()

	sink.Emit(context.Background(), models.AgentEvent{Type: models.AgentEventRunStarted, RunID: "a"})
	sink.Emit(context.Background(), models.AgentEvent{Type: models.AgentEventRunFinished, RunID: "b"})

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case e := <-out:
			got = append(got, e.RunID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for merged event")
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if sink.DroppedCount() != 0 {
		t.Errorf("expected no drops, got %d", sink.DroppedCount())
	}
}

func TestBackpressureSink_LowPriDroppedWhenFull(t *testing.T) {
	sink, out := NewBackpressureSink(BackpressureConfig{HighPriBuffer: 1, LowPriBuffer: 1})
	defer sink.Close()

	// Fill the low-priority lane without a consumer draining it yet.
	sink.Emit(context.Background(), models.AgentEvent{Type: models.AgentEventModelDelta, RunID: "first"})
	sink.Emit(context.Background(), models.AgentEvent{Type: models.AgentEventModelDelta, RunID: "second"})
	sink.Emit(context.Background(), models.AgentEvent{Type: models.AgentEventModelDelta, RunID: "third"})

	// Drain whatever made it through the merge loop.
	timeout := time.After(200 * time.Millisecond)
drain:
	for {
		select {
		case <-out:
		case <-timeout:
			break drain
		}
	}

	if sink.DroppedCount() == 0 {
		t.Error("expected some low-priority events to be dropped under backpressure")
	}
}

func TestBackpressureSink_CloseStopsEmit(t *testing.T) {
	sink, out := NewBackpressureSink(DefaultBackpressureConfig())
	sink.Close()

	// Emit after close must not panic or block.
	sink.Emit(context.Background(), models.AgentEvent{Type: models.AgentEventRunStarted})

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected merged channel to be closed with no pending events")
		}
	case <-time.After(time.Second):
		t.Fatal("expected merged channel to be closed")
	}
}

func TestIsDroppableEvent(t *testing.T) {
	droppable := []models.AgentEventType{
		models.AgentEventModelDelta,
		models.AgentEventToolStdout,
		models.AgentEventToolStderr,
	}
	for _, typ := range droppable {
		if !isDroppableEvent(typ) {
			t.Errorf("expected %s to be droppable", typ)
		}
	}

	nonDroppable := []models.AgentEventType{
		models.AgentEventRunStarted,
		models.AgentEventRunFinished,
		models.AgentEventToolStarted,
		models.AgentEventToolFinished,
		models.AgentEventContextPacked,
	}
	for _, typ := range nonDroppable {
		if isDroppableEvent(typ) {
			t.Errorf("expected %s to be non-droppable", typ)
		}
	}
}
