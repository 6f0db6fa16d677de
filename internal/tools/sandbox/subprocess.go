package sandbox

import (
	"context"
	"strings"

	"github.com/binlecode/agentcore/internal/tools/exec"
)

// SubprocessBackend runs commands directly on the host via os/exec, scoped
// to a workspace directory. It provides no resource or network isolation;
// it exists for environments without a container runtime and is selected
// by sandbox_backend=subprocess or as the auto fallback.
type SubprocessBackend struct {
	manager *exec.Manager
}

// NewSubprocessBackend creates a subprocess backend rooted at workspace.
func NewSubprocessBackend(workspace string) *SubprocessBackend {
	return &SubprocessBackend{manager: exec.NewManager(workspace)}
}

func (b *SubprocessBackend) Name() string { return "subprocess" }

func (b *SubprocessBackend) Run(ctx context.Context, req ExecRequest) (ExecResult, error) {
	result, err := b.manager.RunCommand(ctx, req.Command, req.Cwd, req.Env, req.Stdin, req.Timeout)
	if err != nil {
		return ExecResult{}, err
	}
	return ExecResult{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitCode,
		Duration: result.Duration,
		TimedOut: result.ExitCode == -1 && strings.Contains(result.Error, "context deadline exceeded"),
	}, nil
}

func (b *SubprocessBackend) Close() error { return nil }
