package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSubprocessBackendRunsCommand(t *testing.T) {
	backend := NewSubprocessBackend(t.TempDir())
	defer backend.Close()

	result, err := backend.Run(context.Background(), ExecRequest{Command: "echo hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Fatalf("expected stdout to contain hello, got %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestSubprocessBackendNonZeroExit(t *testing.T) {
	backend := NewSubprocessBackend(t.TempDir())
	defer backend.Close()

	result, err := backend.Run(context.Background(), ExecRequest{Command: "exit 3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
}

func TestSubprocessBackendTimeout(t *testing.T) {
	backend := NewSubprocessBackend(t.TempDir())
	defer backend.Close()

	_, err := backend.Run(context.Background(), ExecRequest{
		Command: "sleep 2",
		Timeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBackendName(t *testing.T) {
	backend := NewSubprocessBackend(t.TempDir())
	if backend.Name() != "subprocess" {
		t.Fatalf("expected name subprocess, got %s", backend.Name())
	}
}
