package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/binlecode/agentcore/internal/agent"
	agentcontext "github.com/binlecode/agentcore/internal/agent/context"
	"github.com/binlecode/agentcore/internal/tools/sandbox"
	"github.com/binlecode/agentcore/pkg/models"
)

// REPL is the single-threaded cooperative loop: read a line, dispatch it
// as a sandbox passthrough, a slash command, or a turn, and repeat until
// the user exits or stdin closes.
type REPL struct {
	out io.Writer
	in  *bufio.Reader

	turnMachine  *agent.TurnMachine
	registry     *agent.ToolRegistry
	approvals    *agent.ApprovalChecker
	sandbox      sandbox.Backend
	summaryModel agentcontext.SummaryModel

	history       *models.MessageHistory
	runtimeOpts   agent.RuntimeOptions
	commands      []commandSpec
	agentID       string
	providerName  string
	model         string
	shellTimeout  time.Duration
	stats         *agent.StatsCollector

	lastInterrupt time.Time
}

// Config bundles everything New needs to wire together a REPL. Fields
// left zero take the documented default.
type Config struct {
	Out          io.Writer
	In           io.Reader
	TurnMachine  *agent.TurnMachine
	Registry     *agent.ToolRegistry
	Approvals    *agent.ApprovalChecker
	Sandbox      sandbox.Backend
	SummaryModel agentcontext.SummaryModel
	AgentID      string
	ProviderName string
	Model        string
	ShellTimeout time.Duration
	RuntimeOpts  agent.RuntimeOptions
	// Stats, if set, accumulates run statistics (turns, iterations,
	// tokens, tool calls) from the same event stream the turn machine
	// drives, surfaced by the /status command.
	Stats *agent.StatsCollector
}

// New builds a REPL ready to Run. The caller owns history's lifetime
// across REPL instances (e.g. a `chat` subcommand invocation reuses
// none, but tests can pre-seed one).
func New(cfg Config, history *models.MessageHistory) *REPL {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.ShellTimeout <= 0 {
		cfg.ShellTimeout = 30 * time.Second
	}
	if history == nil {
		history = &models.MessageHistory{}
	}
	return &REPL{
		out:          cfg.Out,
		in:           bufio.NewReader(cfg.In),
		turnMachine:  cfg.TurnMachine,
		registry:     cfg.Registry,
		approvals:    cfg.Approvals,
		sandbox:      cfg.Sandbox,
		summaryModel: cfg.SummaryModel,
		history:      history,
		runtimeOpts:  cfg.RuntimeOpts,
		commands:     defaultCommands(),
		agentID:      cfg.AgentID,
		providerName: cfg.ProviderName,
		model:        cfg.Model,
		shellTimeout: cfg.ShellTimeout,
		stats:        cfg.Stats,
	}
}

// Run drives the loop until "exit"/"quit", EOF on stdin, or a double
// Ctrl-C. It always runs the sandbox cleanup step on the way out,
// matching the pseudocode's `finally: sandbox.cleanup()`.
func (r *REPL) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	var turnMu sync.Mutex
	var turnCancel context.CancelFunc

	go r.watchInterrupts(sigCh, &turnMu, &turnCancel)

	defer func() {
		if r.sandbox != nil {
			_ = r.sandbox.Close()
		}
	}()

	for {
		fmt.Fprint(r.out, "> ")
		line, err := r.in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		switch {
		case input == "":
			continue
		case input == "exit" || input == "quit":
			return nil
		case strings.HasPrefix(input, "!"):
			r.runSandboxCommand(ctx, strings.TrimSpace(strings.TrimPrefix(input, "!")))
		case strings.HasPrefix(input, "/"):
			r.dispatchSlash(strings.TrimPrefix(input, "/"))
		default:
			turnCtx, cancel := context.WithCancel(ctx)
			turnMu.Lock()
			turnCancel = cancel
			turnMu.Unlock()

			result := r.turnMachine.RunTurn(turnCtx, input, r.history, r.runtimeOpts)

			turnMu.Lock()
			turnCancel = nil
			turnMu.Unlock()
			cancel()

			if result.Error != nil {
				fmt.Fprintf(r.out, "error: %v\n", result.Error)
			} else if result.Interrupted {
				fmt.Fprintln(r.out, "(turn interrupted)")
			}
		}
	}
}

// watchInterrupts implements the Ctrl-C contract: the
// first interrupt during a turn cancels it; the first interrupt at an
// idle prompt just warns. A second interrupt within 2s of the first,
// in either state, exits the process immediately — os.Exit works even
// while the main goroutine is blocked in a stdin read, which a context
// cancellation alone could not unblock.
func (r *REPL) watchInterrupts(sigCh <-chan os.Signal, turnMu *sync.Mutex, turnCancel *context.CancelFunc) {
	for range sigCh {
		turnMu.Lock()
		cancel := *turnCancel
		turnMu.Unlock()

		now := time.Now()
		if !r.lastInterrupt.IsZero() && now.Sub(r.lastInterrupt) < 2*time.Second {
			fmt.Fprintln(r.out, "\ninterrupted again, exiting")
			os.Exit(130)
		}
		r.lastInterrupt = now

		if cancel != nil {
			cancel()
			fmt.Fprintln(r.out, "\ninterrupted — press Ctrl-C again within 2s to exit")
		} else {
			fmt.Fprintln(r.out, "\n(press Ctrl-C again within 2s to exit)")
		}
	}
}

func (r *REPL) dispatchSlash(rest string) {
	name, args, _ := strings.Cut(strings.TrimSpace(rest), " ")
	name = strings.ToLower(name)
	for _, c := range r.commands {
		if c.Name == name {
			if err := c.Run(r, strings.TrimSpace(args)); err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			return
		}
	}
	fmt.Fprintf(r.out, "unknown command: /%s (try /help)\n", name)
}

// runSandboxCommand implements the "!"-prefix passthrough: the command
// runs directly against the sandbox backend, bypassing the tool
// registry and the approval cycle entirely.
func (r *REPL) runSandboxCommand(ctx context.Context, command string) {
	if command == "" {
		return
	}
	if r.sandbox == nil {
		fmt.Fprintln(r.out, "error: no sandbox backend configured")
		return
	}
	res, err := r.sandbox.Run(ctx, sandbox.ExecRequest{
		Command: command,
		Timeout: r.shellTimeout,
	})
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	if res.Stdout != "" {
		fmt.Fprint(r.out, res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprint(r.out, res.Stderr)
	}
	fmt.Fprintf(r.out, "(exit %d)\n", res.ExitCode)
}
