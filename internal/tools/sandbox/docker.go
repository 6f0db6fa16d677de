package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// containerTimeoutExitCode is what the in-container `timeout` wrapper
// reports when it kills the wrapped command for running past its
// budget, per the timeout(1) convention.
const containerTimeoutExitCode = 124

// DockerConfig configures the container-isolated backend.
type DockerConfig struct {
	// Image is the container image commands run inside. Defaults to a
	// minimal shell-capable image if empty.
	Image string

	// Workspace is the host directory mounted into the container.
	Workspace string

	// WorkspaceAccess controls whether the mount is read-only, read-write,
	// or absent entirely.
	WorkspaceAccess WorkspaceAccessMode

	// NetworkEnabled controls whether the container gets network access.
	// Defaults to disabled (sandbox_network=none).
	NetworkEnabled bool

	// NanoCPUs and MemoryBytes bound container resource usage. Zero means
	// no limit is imposed for that dimension.
	NanoCPUs    int64
	MemoryBytes int64

	// PidsLimit bounds the number of processes the whole container (and
	// thus every command exec'd into it) may have alive at once. Zero
	// falls back to 256.
	PidsLimit int64

	// User is the in-container uid[:gid] commands run as. Empty falls
	// back to "1000:1000" — never root.
	User string
}

// DefaultDockerConfig returns conservative defaults: no network, a small
// Alpine-based image, one CPU, 512MB of memory, a non-root user, and a
// 256-process cap.
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		Image:           "alpine:3.20",
		WorkspaceAccess: WorkspaceReadOnly,
		NetworkEnabled:  false,
		NanoCPUs:        1_000_000_000,
		MemoryBytes:     512 * 1024 * 1024,
		PidsLimit:       256,
		User:            "1000:1000",
	}
}

// DockerBackend runs commands against one long-lived, hardened container
// per session, execing each command into it rather than creating a fresh
// container per call. The container carries no Linux capabilities, no
// privilege escalation, a process-count ceiling, and a non-root user; it
// is torn down on Close.
type DockerBackend struct {
	cli *client.Client
	cfg DockerConfig

	mu          sync.Mutex
	pulled      bool
	containerID string
}

// NewDockerBackend connects to the Docker daemon using the standard
// DOCKER_HOST/DOCKER_CERT_PATH environment conventions. The container
// itself is started lazily, on the first Run call.
func NewDockerBackend(cfg DockerConfig) (*DockerBackend, error) {
	if cfg.Image == "" {
		cfg.Image = DefaultDockerConfig().Image
	}
	if cfg.PidsLimit == 0 {
		cfg.PidsLimit = DefaultDockerConfig().PidsLimit
	}
	if cfg.User == "" {
		cfg.User = DefaultDockerConfig().User
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return &DockerBackend{cli: cli, cfg: cfg}, nil
}

func (b *DockerBackend) Name() string { return "docker" }

// Close removes the session's container, if one was started, and
// disconnects from the daemon.
func (b *DockerBackend) Close() error {
	b.mu.Lock()
	id := b.containerID
	b.containerID = ""
	b.mu.Unlock()
	if id != "" {
		_ = b.cli.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
	}
	return b.cli.Close()
}

// Run execs a command inside the session's long-lived container,
// starting that container first if this is the first call. The command
// is wrapped in an in-container `timeout` so a runaway process is
// reaped by the container's own init rather than relying solely on the
// outer context deadline; ctx still bounds the whole call as a second,
// independent layer in case the daemon itself stalls.
func (b *DockerBackend) Run(ctx context.Context, req ExecRequest) (ExecResult, error) {
	containerID, err := b.ensureContainer(ctx)
	if err != nil {
		return ExecResult{}, err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		// Give the outer context a little headroom over the in-container
		// timeout so the wrapper, not the API call, is normally what
		// ends a runaway command.
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout+5*time.Second)
		defer cancel()
	}

	env := make([]string, 0, len(req.Env))
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}

	command := req.Command
	if req.Timeout > 0 {
		seconds := int(req.Timeout / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		command = fmt.Sprintf("timeout %ds sh -c %s", seconds, shellQuote(req.Command))
	}
	cwd := "/workspace"
	if req.Cwd != "" {
		cwd = req.Cwd
	}

	execCfg := container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", command},
		Env:          env,
		WorkingDir:   cwd,
		AttachStdin:  req.Stdin != "",
		AttachStdout: true,
		AttachStderr: true,
	}

	start := time.Now()
	created, err := b.cli.ContainerExecCreate(runCtx, containerID, execCfg)
	if err != nil {
		return ExecResult{}, fmt.Errorf("create exec: %w", err)
	}

	attach, err := b.cli.ContainerExecAttach(runCtx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	if req.Stdin != "" {
		_, _ = io.Copy(attach.Conn, strings.NewReader(req.Stdin))
		attach.CloseWrite()
	}

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- copyErr
	}()

	var timedOut bool
	select {
	case <-copyDone:
	case <-runCtx.Done():
		timedOut = true
		<-copyDone
	}

	inspect, err := b.cli.ContainerExecInspect(context.Background(), created.ID)
	if err != nil {
		return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start), TimedOut: timedOut}, nil
	}

	exitCode := inspect.ExitCode
	if exitCode == containerTimeoutExitCode {
		timedOut = true
	}

	return ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: time.Since(start),
		TimedOut: timedOut,
	}, nil
}

// ensureContainer starts the session's single long-lived, hardened
// container on first use and returns its ID on every subsequent call.
func (b *DockerBackend) ensureContainer(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.containerID != "" {
		return b.containerID, nil
	}

	if err := b.ensureImageLocked(ctx); err != nil {
		return "", err
	}

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			NanoCPUs:  b.cfg.NanoCPUs,
			Memory:    b.cfg.MemoryBytes,
			PidsLimit: &b.cfg.PidsLimit,
		},
		// No Linux capabilities, no privilege escalation: a command
		// running inside this container cannot chmod/chown its way out
		// of the non-root user it was started with.
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		AutoRemove:  false,
	}
	if b.cfg.NetworkEnabled {
		hostConfig.NetworkMode = "bridge"
	}
	if b.cfg.Workspace != "" && b.cfg.WorkspaceAccess != WorkspaceNone {
		mode := "ro"
		if b.cfg.WorkspaceAccess == WorkspaceReadWrite {
			mode = "rw"
		}
		hostConfig.Binds = []string{fmt.Sprintf("%s:/workspace:%s", b.cfg.Workspace, mode)}
	}

	containerCfg := &container.Config{
		Image: b.cfg.Image,
		// Idle forever on a command the hardened, non-root user can always
		// run; every actual command is exec'd in afterward, so the
		// container's own entrypoint never has to understand our commands.
		Cmd:          []string{"sleep", "infinity"},
		User:         b.cfg.User,
		WorkingDir:   "/workspace",
		ExposedPorts: nat.PortSet{},
	}
	hostConfig.PortBindings = nat.PortMap{}

	created, err := b.cli.ContainerCreate(ctx, containerCfg, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	if err := b.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = b.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container: %w", err)
	}

	b.containerID = created.ID
	return created.ID, nil
}

func (b *DockerBackend) ensureImageLocked(ctx context.Context) error {
	if b.pulled {
		return nil
	}
	reader, err := b.cli.ImagePull(ctx, b.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", b.cfg.Image, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	b.pulled = true
	return nil
}

// shellQuote wraps s in single quotes for safe embedding in the outer
// `timeout ... sh -c` invocation, escaping any single quotes s itself
// contains.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
