package sandbox

import (
	"context"

	"github.com/binlecode/agentcore/internal/tools/exec"
)

// ExecRunner adapts a Backend to exec.SandboxRunner, letting the shell tool
// dispatch foreground commands through whichever backend was selected
// (Docker or subprocess) without the exec package depending on this one.
type ExecRunner struct {
	Backend Backend
}

// Run implements exec.SandboxRunner.
func (r ExecRunner) Run(ctx context.Context, req exec.RunRequest) (exec.RunResult, error) {
	res, err := r.Backend.Run(ctx, ExecRequest{
		Command: req.Command,
		Cwd:     req.Cwd,
		Env:     req.Env,
		Stdin:   req.Stdin,
		Timeout: req.Timeout,
	})
	if err != nil {
		return exec.RunResult{}, err
	}
	return exec.RunResult{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		Duration: res.Duration,
		TimedOut: res.TimedOut,
	}, nil
}
