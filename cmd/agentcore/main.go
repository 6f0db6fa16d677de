// Package main is the CLI entry point for agentcore, a single-agent
// terminal coding assistant: one conversation, one sandboxed shell tool,
// one provider at a time.
//
// Usage:
//
//	agentcore chat --config agentcore.yaml
//	agentcore chat --record session.tape.json
//	agentcore chat --replay session.tape.json
//	agentcore chat --trace session.trace.jsonl
//	agentcore status --config agentcore.yaml
//	agentcore trace-replay session.trace.jsonl
//
// Configuration can be provided via environment variables referenced
// from the YAML file with ${VAR} expansion (e.g. ${ANTHROPIC_API_KEY}).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/binlecode/agentcore/internal/agent"
	agentcontext "github.com/binlecode/agentcore/internal/agent/context"
	"github.com/binlecode/agentcore/internal/agent/providers"
	"github.com/binlecode/agentcore/internal/agent/tape"
	"github.com/binlecode/agentcore/internal/config"
	"github.com/binlecode/agentcore/internal/logging"
	"github.com/binlecode/agentcore/internal/observability"
	"github.com/binlecode/agentcore/internal/repl"
	"github.com/binlecode/agentcore/internal/telemetry"
	shellexec "github.com/binlecode/agentcore/internal/tools/exec"
	"github.com/binlecode/agentcore/internal/tools/sandbox"
	"github.com/binlecode/agentcore/pkg/models"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "agentcore",
		Short:   "A terminal coding agent backed by a sandboxed shell tool",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "path to YAML configuration file")

	root.AddCommand(buildChatCmd(&configPath), buildStatusCmd(&configPath), buildTraceReplayCmd())
	return root
}

// buildChatCmd wires every component (C1-C10) into a running REPL, per
// the minimum CLI surface: a single `chat` entry point, --verbose for
// thinking streams, and --theme, which is accepted but applies no palette.
func buildChatCmd(configPath *string) *cobra.Command {
	var verbose bool
	var theme string
	var recordPath string
	var replayPath string
	var tracePath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnvironment(*configPath, envOptions{
				Verbose:    verbose,
				RecordPath: recordPath,
				ReplayPath: replayPath,
				TracePath:  tracePath,
			})
			if err != nil {
				return fmt.Errorf("startup: %w", err)
			}
			defer env.Close()

			_ = theme // not passed to the renderer: every theme value prints with the same colors

			return env.repl.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "stream thinking content and tool timing")
	cmd.Flags().StringVar(&theme, "theme", "plain", "display color theme (plain, dark, light)")
	cmd.Flags().StringVar(&recordPath, "record", "", "record every LLM request/response to this tape file")
	cmd.Flags().StringVar(&replayPath, "replay", "", "replay a previously recorded tape instead of calling a live provider")
	cmd.Flags().StringVar(&tracePath, "trace", "", "write every agent event as JSONL to this file for later replay or audit")
	return cmd
}

// buildTraceReplayCmd replays a JSONL trace written by `chat --trace`
// through a StatsCollector and prints the resulting run statistics,
// without needing a live provider, sandbox, or config file.
func buildTraceReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace-replay <file>",
		Short: "Replay a recorded event trace and print its run statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open trace %q: %w", args[0], err)
			}
			defer f.Close()

			reader, err := agent.NewTraceReader(f)
			if err != nil {
				return fmt.Errorf("read trace header: %w", err)
			}

			stats, err := agent.ReplayToStats(reader)
			if err != nil {
				return fmt.Errorf("replay trace: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run_id        : %s\n", stats.RunID)
			fmt.Fprintf(out, "turns         : %d\n", stats.Turns)
			fmt.Fprintf(out, "iterations    : %d\n", stats.Iters)
			fmt.Fprintf(out, "tool calls    : %d\n", stats.ToolCalls)
			fmt.Fprintf(out, "tool timeouts : %d\n", stats.ToolTimeouts)
			fmt.Fprintf(out, "input tokens  : %d\n", stats.InputTokens)
			fmt.Fprintf(out, "output tokens : %d\n", stats.OutputTokens)
			fmt.Fprintf(out, "model time    : %s\n", stats.ModelWallTime)
			fmt.Fprintf(out, "tool time     : %s\n", stats.ToolWallTime)
			return nil
		},
	}
}

// buildStatusCmd mirrors /status's output for scripting and CI health
// checks, without entering the REPL loop.
func buildStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print configuration and sandbox status",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := buildEnvironment(*configPath, envOptions{})
			if err != nil {
				return fmt.Errorf("startup: %w", err)
			}
			defer env.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sandbox backend : %s\n", env.sandboxBackend.Name())
			fmt.Fprintf(out, "llm provider    : %s\n", env.providerName)
			fmt.Fprintf(out, "model           : %s\n", env.model)
			fmt.Fprintf(out, "tools registered: %d\n", len(env.registry.Names()))
			return nil
		},
	}
}

// environment bundles every wired component a `chat` or `status`
// invocation needs, plus whatever needs a deferred Close.
type environment struct {
	repl           *repl.REPL
	sandboxBackend sandbox.Backend
	registry       *agent.ToolRegistry
	providerName   string
	model          string

	telemetryStore *telemetry.Store
	tracerShutdown func(context.Context) error
	metricsServer  *http.Server

	recorder   *tape.Recorder
	recordPath string
	tracer     *agent.TracePlugin
}

func (e *environment) Close() {
	if e.recorder != nil && e.recordPath != "" {
		if data, err := e.recorder.Tape().Marshal(); err == nil {
			_ = os.WriteFile(e.recordPath, data, 0o644)
		}
	}
	if e.tracer != nil {
		_ = e.tracer.Close()
	}
	if e.telemetryStore != nil {
		_ = e.telemetryStore.Close()
	}
	if e.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.tracerShutdown(ctx)
	}
	if e.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.metricsServer.Shutdown(ctx)
	}
}

// envOptions carries the per-invocation flags buildEnvironment needs,
// beyond what lives in the YAML config.
type envOptions struct {
	Verbose    bool
	RecordPath string
	ReplayPath string
	TracePath  string
}

// buildEnvironment performs the full startup wiring: load config, set up
// logging and telemetry, select an LLM provider and sandbox backend,
// register tools, and assemble the turn machine and REPL around them.
func buildEnvironment(configPath string, opts envOptions) (*environment, error) {
	verbose := opts.Verbose
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Console: cfg.Logging.Console})

	store, err := telemetry.New(telemetry.Config{Path: cfg.Telemetry.Path}, logger)
	if err != nil {
		return nil, fmt.Errorf("open telemetry store: %w", err)
	}

	provider, providerName, model, err := selectProvider(cfg.LLM)
	if err != nil {
		store.Close()
		return nil, err
	}

	// --replay/--record substitute or wrap the live provider with the
	// tape package's LLMProvider decorators, for deterministic demos and
	// bug repros that don't need (or shouldn't use) a real API key.
	var recorder *tape.Recorder
	if opts.ReplayPath != "" {
		data, readErr := os.ReadFile(opts.ReplayPath)
		if readErr != nil {
			store.Close()
			return nil, fmt.Errorf("read tape %q: %w", opts.ReplayPath, readErr)
		}
		recorded, parseErr := tape.Unmarshal(data)
		if parseErr != nil {
			store.Close()
			return nil, fmt.Errorf("parse tape %q: %w", opts.ReplayPath, parseErr)
		}
		provider = tape.NewReplayer(recorded)
		providerName = "replay:" + providerName
		if recorded.Model != "" {
			model = recorded.Model
		}
	} else if opts.RecordPath != "" {
		recorder = tape.NewRecorder(provider).WithModel(model)
		provider = recorder
	}

	backend, err := selectSandboxBackend(cfg.Sandbox, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("select sandbox backend: %w", err)
	}

	manager := shellexec.NewManager(cfg.Sandbox.Workspace)
	execTool := shellexec.NewExecTool("exec", manager)
	execTool.SetRunner(sandbox.ExecRunner{Backend: backend})
	processTool := shellexec.NewProcessTool(manager)

	registry := agent.NewToolRegistry()
	registry.Register(execTool)
	registry.Register(processTool)

	approvalPolicy := &agent.ApprovalPolicy{
		Allowlist:       cfg.Approval.Allowlist,
		Denylist:        cfg.Approval.Denylist,
		RequireApproval: cfg.Approval.RequireApproval,
		SafeBins:        cfg.Approval.SafeBins,
		SkillAllowlist:  cfg.Approval.SkillAllowlist,
		AskFallback:     cfg.Approval.AskFallback,
		AutoConfirm:     cfg.Approval.AutoConfirm,
		DefaultDecision: agent.ApprovalDecision(cfg.Approval.DefaultDecision),
		RequestTTL:      cfg.Approval.RequestTTL,
	}
	approvals := agent.NewApprovalChecker(approvalPolicy)

	tracer, tracerShutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "agentcore",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.TracingEndpoint,
	})

	var metricsServer *http.Server
	metrics := observability.NewMetrics()
	if cfg.Telemetry.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	runID := uuid.NewString()

	var tracePlugin *agent.TracePlugin
	sinks := []agent.EventSink{
		repl.NewStreamRenderer(os.Stdout, verbose),
		newSpanRecordingSink(store),
		newObservabilitySink(metrics, tracer),
	}
	statsCollector := agent.NewStatsCollector(runID)
	sinks = append(sinks, agent.NewCallbackSink(statsCollector.OnEvent))
	if opts.TracePath != "" {
		tp, traceErr := agent.NewTracePluginFile(opts.TracePath, runID, agent.WithAppVersion(version))
		if traceErr != nil {
			store.Close()
			return nil, fmt.Errorf("open trace file %q: %w", opts.TracePath, traceErr)
		}
		tracePlugin = tp
		sinks = append(sinks, agent.NewCallbackSink(tracePlugin.OnEvent))
	}
	emitter := agent.NewEventEmitter(runID, agent.NewMultiSink(sinks...))

	dispatcher := agent.NewDispatcher(provider, registry, approvals, emitter)
	dispatcher.SetShellTool(execTool.Name())
	dispatcher.SetAgentID("default")

	frontend := repl.NewTerminalFrontend(os.Stdout, os.Stdin)
	turnMachine := agent.NewTurnMachine(dispatcher, emitter, frontend)
	turnMachine.SetDefaults(model, "")
	turnMachine.SetFullIsolation(backend.Name() == "docker")

	truncator := agentcontext.NewTruncator(agentcontext.TruncateConfig{MaxChars: cfg.History.ToolOutputTrimChars})
	summaryModel := repl.NewProviderSummaryModel(provider, summarizationModel(cfg, model))
	summarizeCfg := agentcontext.DefaultSummarizeConfig()
	summarizeCfg.Threshold = cfg.History.MaxHistoryMessages
	summariser := agentcontext.NewSlidingWindowSummariser(summaryModel, summarizeCfg).WithModelWindow(model)
	turnMachine.SetHistoryProcessors(truncator, summariser)

	session := repl.New(repl.Config{
		Out:          os.Stdout,
		In:           os.Stdin,
		TurnMachine:  turnMachine,
		Registry:     registry,
		Approvals:    approvals,
		Sandbox:      backend,
		SummaryModel: summaryModel,
		AgentID:      "default",
		ProviderName: providerName,
		Model:        model,
		ShellTimeout: cfg.Sandbox.ShellMaxTimeout,
		Stats:        statsCollector,
	}, &models.MessageHistory{})

	return &environment{
		repl:           session,
		sandboxBackend: backend,
		registry:       registry,
		providerName:   providerName,
		model:          model,
		telemetryStore: store,
		tracerShutdown: tracerShutdown,
		metricsServer:  metricsServer,
		recorder:       recorder,
		recordPath:     opts.RecordPath,
		tracer:         tracePlugin,
	}, nil
}

// selectProvider picks the configured default provider and constructs
// its concrete implementation. A missing API key for the selected
// provider is a fatal startup error, not a deferred one: there is no
// point entering the REPL only to fail on the first turn.
func selectProvider(cfg config.LLMConfig) (agent.LLMProvider, string, string, error) {
	name := cfg.DefaultProvider
	if name == "" {
		name = "anthropic"
	}
	pc := cfg.Providers[name]

	switch name {
	case "anthropic":
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
		if err != nil {
			return nil, "", "", fmt.Errorf("anthropic provider: %w", err)
		}
		return p, name, modelOrDefault(pc.DefaultModel, "claude-sonnet-4-20250514"), nil

	case "openai":
		if pc.APIKey == "" {
			return nil, "", "", fmt.Errorf("openai provider: api_key is required")
		}
		p := providers.NewOpenAIProvider(pc.APIKey)
		return p, name, modelOrDefault(pc.DefaultModel, "gpt-4o"), nil

	case "bedrock":
		p, err := providers.NewBedrockProvider(providers.BedrockConfig{
			Region:       pc.Region,
			DefaultModel: pc.DefaultModel,
		})
		if err != nil {
			return nil, "", "", fmt.Errorf("bedrock provider: %w", err)
		}
		return p, name, modelOrDefault(pc.DefaultModel, "anthropic.claude-3-sonnet-20240229-v1:0"), nil

	case "google":
		p, err := providers.NewGoogleProvider(providers.GoogleConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
		})
		if err != nil {
			return nil, "", "", fmt.Errorf("google provider: %w", err)
		}
		return p, name, modelOrDefault(pc.DefaultModel, "gemini-2.0-flash"), nil

	default:
		return nil, "", "", fmt.Errorf("unknown llm.default_provider %q", name)
	}
}

func modelOrDefault(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

// summarizationModel returns the model used only for history
// summarization, falling back to the conversation's own model when the
// configuration table leaves summarization_model empty.
func summarizationModel(cfg config.Config, conversationModel string) string {
	if cfg.History.SummarizationModel != "" {
		return cfg.History.SummarizationModel
	}
	return conversationModel
}

// selectSandboxBackend resolves sandbox_backend to a concrete Backend,
// honoring sandbox_fallback when the preferred backend can't be built.
func selectSandboxBackend(cfg config.SandboxConfig, logger zerolog.Logger) (sandbox.Backend, error) {
	return sandbox.NewBackend(sandbox.SelectConfig{
		Backend:   sandbox.BackendKind(cfg.Backend),
		Fallback:  sandbox.FallbackPolicy(cfg.Fallback),
		Workspace: cfg.Workspace,
		Network:   cfg.Network == "bridge",
		Docker:    sandbox.DockerConfig{Image: cfg.Image},
	}, logger)
}

// newObservabilitySink bridges the agent event stream into Prometheus
// metrics and OTLP trace spans, alongside (not instead of) the embedded
// SQLite span store: both read the same turn.started/turn.finished and
// tool.started/tool.finished/tool.timed_out pairs, one persisting locally,
// the other exporting to whatever cfg.telemetry.metrics_addr/
// tracing_endpoint point at. Either or both may be disabled by leaving the
// corresponding config field empty, in which case NewMetrics still
// collects in-process (cheap, unexported) and NewTracer is a no-op.
func newObservabilitySink(metrics *observability.Metrics, tracer *observability.Tracer) agent.EventSink {
	type iterKey struct {
		runID string
		turn  int
		iter  int
	}
	iterStarts := map[iterKey]time.Time{}
	toolStarts := map[string]time.Time{}
	turnSpans := map[string]trace.Span{}
	erroredRuns := map[string]bool{}

	return agent.NewCallbackSink(func(ctx context.Context, e models.AgentEvent) {
		switch e.Type {
		case models.AgentEventTurnStarted:
			_, span := tracer.TraceTurn(ctx, e.RunID, e.TurnIndex)
			turnSpans[e.RunID] = span

		case models.AgentEventTurnFinished:
			if span, ok := turnSpans[e.RunID]; ok {
				span.End()
				delete(turnSpans, e.RunID)
			}
			if erroredRuns[e.RunID] {
				metrics.RecordRunAttempt("failed")
			} else {
				metrics.RecordRunAttempt("success")
			}
			delete(erroredRuns, e.RunID)

		case models.AgentEventIterStarted:
			iterStarts[iterKey{e.RunID, e.TurnIndex, e.IterIndex}] = e.Time

		case models.AgentEventModelCompleted:
			if e.Stream == nil {
				return
			}
			start, ok := iterStarts[iterKey{e.RunID, e.TurnIndex, e.IterIndex}]
			if !ok {
				start = e.Time
			}
			metrics.RecordLLMRequest(e.Stream.Provider, e.Stream.Model, "success",
				e.Time.Sub(start).Seconds(), e.Stream.InputTokens, e.Stream.OutputTokens)

		case models.AgentEventToolStarted:
			if e.Tool != nil {
				toolStarts[e.Tool.CallID] = e.Time
				_, span := tracer.TraceToolExecution(ctx, e.Tool.Name)
				turnSpans["tool:"+e.Tool.CallID] = span
			}

		case models.AgentEventToolFinished, models.AgentEventToolTimedOut:
			if e.Tool == nil {
				return
			}
			start, ok := toolStarts[e.Tool.CallID]
			if !ok {
				start = e.Time
			}
			delete(toolStarts, e.Tool.CallID)

			status := "ok"
			if e.Type == models.AgentEventToolTimedOut {
				status = "timed_out"
			} else if !e.Tool.Success {
				status = "error"
			}
			metrics.RecordToolExecution(e.Tool.Name, status, e.Time.Sub(start).Seconds())

			if span, ok := turnSpans["tool:"+e.Tool.CallID]; ok {
				if status != "ok" {
					tracer.RecordError(span, fmt.Errorf("tool %s: %s", e.Tool.Name, status))
				}
				span.End()
				delete(turnSpans, "tool:"+e.Tool.CallID)
			}

		case models.AgentEventRunError:
			if e.Error == nil || e.Error.Err == nil {
				return
			}
			decision := agent.Classify(e.Error.Err)
			phase := "unknown"
			var loopErr *agent.LoopError
			if errors.As(e.Error.Err, &loopErr) {
				phase = string(loopErr.Phase)
			}
			metrics.RecordError(phase, string(decision.Action))
			if decision.Action == agent.ActionAbort {
				erroredRuns[e.RunID] = true
			} else {
				metrics.RecordRunAttempt("retry")
			}
		}
	})
}

// newSpanRecordingSink bridges the agent event stream into the telemetry
// store: one span per tool call, timed from tool.started to
// tool.finished/tool.timed_out, plus one span per turn from turn.started
// to turn.finished. An end event with no matching start (a timeout racing
// a dropped start under backpressure) is still recorded, as a zero-length
// span that starts at the end event's own time.
func newSpanRecordingSink(store *telemetry.Store) agent.EventSink {
	starts := map[string]time.Time{}
	return agent.NewCallbackSink(func(_ context.Context, e models.AgentEvent) {
		switch e.Type {
		case models.AgentEventToolStarted:
			if e.Tool != nil {
				starts[e.Tool.CallID] = e.Time
			}
		case models.AgentEventToolFinished, models.AgentEventToolTimedOut:
			if e.Tool == nil {
				return
			}
			start, ok := starts[e.Tool.CallID]
			if !ok {
				start = e.Time
			}
			delete(starts, e.Tool.CallID)
			status := "ok"
			if !e.Tool.Success {
				status = "error"
			}
			store.Record(models.SpanRecord{
				TraceID:    e.RunID,
				SpanID:     e.Tool.CallID,
				Name:       "tool:" + e.Tool.Name,
				StartNanos: start.UnixNano(),
				EndNanos:   e.Time.UnixNano(),
				Status:     status,
			})
		case models.AgentEventTurnStarted:
			starts["turn:"+e.RunID] = e.Time
		case models.AgentEventTurnFinished:
			start, ok := starts["turn:"+e.RunID]
			if !ok {
				start = e.Time
			}
			delete(starts, "turn:"+e.RunID)
			store.Record(models.SpanRecord{
				TraceID:    e.RunID,
				SpanID:     fmt.Sprintf("turn-%d", e.TurnIndex),
				Name:       "turn",
				StartNanos: start.UnixNano(),
				EndNanos:   e.Time.UnixNano(),
				Status:     "ok",
			})
		}
	})
}
