package repl

import (
	"context"
	"errors"
	"testing"

	"github.com/binlecode/agentcore/internal/agent"
)

// fakeProvider is a minimal agent.LLMProvider stub for summarization tests.
type fakeProvider struct {
	chunks []*agent.CompletionChunk
	err    error
}

func (p *fakeProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan *agent.CompletionChunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) Name() string         { return "fake" }
func (p *fakeProvider) Models() []agent.Model { return nil }
func (p *fakeProvider) SupportsTools() bool  { return false }

func TestProviderSummaryModel_ConcatenatesChunksUntilDone(t *testing.T) {
	provider := &fakeProvider{
		chunks: []*agent.CompletionChunk{
			{Text: "first "},
			{Text: "second"},
			{Done: true},
		},
	}
	model := NewProviderSummaryModel(provider, "test-model")

	summary, err := model.Summarize(context.Background(), "irrelevant transcript", 100)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "first second" {
		t.Errorf("summary = %q, want %q", summary, "first second")
	}
}

func TestProviderSummaryModel_TruncatesToMaxChars(t *testing.T) {
	provider := &fakeProvider{
		chunks: []*agent.CompletionChunk{
			{Text: "0123456789"},
			{Done: true},
		},
	}
	model := NewProviderSummaryModel(provider, "test-model")

	summary, err := model.Summarize(context.Background(), "transcript", 5)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "01234" {
		t.Errorf("summary = %q, want %q", summary, "01234")
	}
}

func TestProviderSummaryModel_PropagatesCompleteError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider unavailable")}
	model := NewProviderSummaryModel(provider, "test-model")

	_, err := model.Summarize(context.Background(), "transcript", 100)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestProviderSummaryModel_PropagatesChunkError(t *testing.T) {
	provider := &fakeProvider{
		chunks: []*agent.CompletionChunk{
			{Text: "partial"},
			{Error: errors.New("stream broke")},
		},
	}
	model := NewProviderSummaryModel(provider, "test-model")

	_, err := model.Summarize(context.Background(), "transcript", 100)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestProviderSummaryModel_RequestShape(t *testing.T) {
	var captured *agent.CompletionRequest
	provider := &capturingProvider{
		onComplete: func(req *agent.CompletionRequest) {
			captured = req
		},
		chunks: []*agent.CompletionChunk{{Text: "ok"}, {Done: true}},
	}
	model := NewProviderSummaryModel(provider, "summary-model-x")

	if _, err := model.Summarize(context.Background(), "some transcript text", 50); err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if captured == nil {
		t.Fatal("expected request to be captured")
	}
	if captured.Model != "summary-model-x" {
		t.Errorf("Model = %q, want %q", captured.Model, "summary-model-x")
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" {
		t.Fatalf("expected a single user message, got %+v", captured.Messages)
	}
	if captured.Tools != nil {
		t.Error("expected no tools on a summarization request")
	}
}

// capturingProvider records the request it was called with, for assertions
// on the shape of the summarization prompt.
type capturingProvider struct {
	onComplete func(*agent.CompletionRequest)
	chunks     []*agent.CompletionChunk
}

func (p *capturingProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	p.onComplete(req)
	ch := make(chan *agent.CompletionChunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *capturingProvider) Name() string          { return "capturing" }
func (p *capturingProvider) Models() []agent.Model { return nil }
func (p *capturingProvider) SupportsTools() bool   { return false }
